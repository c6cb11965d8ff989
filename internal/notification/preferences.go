// Moodlog - Emotional Baseline Deviation and Notification Service
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/moodlog

package notification

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/tomtom215/moodlog/internal/alerting"
	"github.com/tomtom215/moodlog/internal/logging"
)

// ErrMuted is returned by Dispatch when the recipient's preferences turn the
// notification off. Nothing is stored or pushed.
var ErrMuted = errors.New("notification muted by recipient preferences")

// ErrPreferencesUnavailable is returned by UpdatePreferences when the
// dispatcher has no preference store.
var ErrPreferencesUnavailable = errors.New("notification preferences are not configured")

// Preferences are one user's delivery settings. A user with no stored row
// gets DefaultPreferences.
type Preferences struct {
	UserID string `json:"userId"`
	// Enabled off mutes everything except critical alerts.
	Enabled bool `json:"enabled"`
	// Types overrides the per-type defaults. Missing types use the default.
	Types map[alerting.AlertType]bool `json:"types"`
	// DailyDigest opts into the evening summary.
	DailyDigest bool `json:"dailyDigest"`
	// ReEngagement allows a nudge after a stretch without entries.
	ReEngagement bool      `json:"reEngagement"`
	UpdatedAt    time.Time `json:"updatedAt"`
}

// DefaultPreferences returns the settings of a user who never changed them.
func DefaultPreferences(userID string) Preferences {
	return Preferences{
		UserID:       userID,
		Enabled:      true,
		Types:        map[alerting.AlertType]bool{},
		ReEngagement: true,
	}
}

// DefaultTypes returns the per-type defaults. Every type is on except
// BASELINE_UPDATE, which follows deliverBaselineUpdates.
func DefaultTypes(deliverBaselineUpdates bool) map[alerting.AlertType]bool {
	types := make(map[alerting.AlertType]bool, len(alerting.AllTypes))
	for _, t := range alerting.AllTypes {
		types[t] = true
	}
	types[alerting.TypeBaselineUpdate] = deliverBaselineUpdates
	return types
}

// Allows reports whether a notification of type t and priority p may be
// delivered. Critical priority is always delivered.
func (p *Preferences) Allows(t alerting.AlertType, priority alerting.Priority, defaults map[alerting.AlertType]bool) bool {
	if priority >= alerting.PriorityCritical {
		return true
	}
	if !p.Enabled {
		return false
	}
	if on, ok := p.Types[t]; ok {
		return on
	}
	return defaults[t]
}

// PreferenceStore persists Preferences.
type PreferenceStore interface {
	// GetPreferences returns ErrNotFound for a user with no stored row.
	GetPreferences(ctx context.Context, userID string) (*Preferences, error)
	SavePreferences(ctx context.Context, p *Preferences) error
	// DigestSubscribers lists users with notifications and the daily digest
	// on, sorted by id.
	DigestSubscribers(ctx context.Context) ([]string, error)
}

// MemoryPreferenceStore is an in-process PreferenceStore for tests.
type MemoryPreferenceStore struct {
	mu    sync.RWMutex
	prefs map[string]Preferences
}

var _ PreferenceStore = (*MemoryPreferenceStore)(nil)

// NewMemoryPreferenceStore creates an empty store.
func NewMemoryPreferenceStore() *MemoryPreferenceStore {
	return &MemoryPreferenceStore{prefs: make(map[string]Preferences)}
}

// GetPreferences implements PreferenceStore.
func (s *MemoryPreferenceStore) GetPreferences(_ context.Context, userID string) (*Preferences, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.prefs[userID]
	if !ok {
		return nil, ErrNotFound
	}
	return clonePreferences(&p), nil
}

// SavePreferences implements PreferenceStore.
func (s *MemoryPreferenceStore) SavePreferences(_ context.Context, p *Preferences) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.prefs[p.UserID] = *clonePreferences(p)
	return nil
}

// DigestSubscribers implements PreferenceStore.
func (s *MemoryPreferenceStore) DigestSubscribers(_ context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var ids []string
	for id, p := range s.prefs {
		if p.Enabled && p.DailyDigest {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	return ids, nil
}

func clonePreferences(p *Preferences) *Preferences {
	c := *p
	c.Types = make(map[alerting.AlertType]bool, len(p.Types))
	for t, on := range p.Types {
		c.Types[t] = on
	}
	return &c
}

// WithPreferences gates Dispatch on the recipient's preferences. defaults
// is the per-type table from DefaultTypes; nil means DefaultTypes(false).
func (d *Dispatcher) WithPreferences(store PreferenceStore, defaults map[alerting.AlertType]bool) *Dispatcher {
	if defaults == nil {
		defaults = DefaultTypes(false)
	}
	d.prefs = store
	d.defaults = defaults
	return d
}

// Preferences returns userID's settings, or the defaults when none are
// stored or no preference store is configured.
func (d *Dispatcher) Preferences(ctx context.Context, userID string) (*Preferences, error) {
	if d.prefs == nil {
		p := DefaultPreferences(userID)
		return &p, nil
	}
	p, err := d.prefs.GetPreferences(ctx, userID)
	if errors.Is(err, ErrNotFound) {
		def := DefaultPreferences(userID)
		return &def, nil
	}
	if err != nil {
		return nil, err
	}
	return p, nil
}

// OptedIn reports whether userID has explicitly turned type t on. Lookup
// errors and missing rows report false.
func (d *Dispatcher) OptedIn(ctx context.Context, userID string, t alerting.AlertType) bool {
	if d.prefs == nil {
		return false
	}
	p, err := d.prefs.GetPreferences(ctx, userID)
	if err != nil {
		return false
	}
	return p.Enabled && p.Types[t]
}

// PreferencesUpdate is a partial change. Nil fields are left as they are;
// Types entries are merged into the stored overrides.
type PreferencesUpdate struct {
	Enabled      *bool
	Types        map[alerting.AlertType]bool
	DailyDigest  *bool
	ReEngagement *bool
}

// UpdatePreferences applies u to userID's settings and stores the result.
func (d *Dispatcher) UpdatePreferences(ctx context.Context, userID string, u PreferencesUpdate) (*Preferences, error) {
	if d.prefs == nil {
		return nil, ErrPreferencesUnavailable
	}
	p, err := d.Preferences(ctx, userID)
	if err != nil {
		return nil, err
	}
	for t := range u.Types {
		if !t.Valid() {
			return nil, fmt.Errorf("%w: unknown type %q", ErrInvalidInput, t)
		}
	}
	if u.Enabled != nil {
		p.Enabled = *u.Enabled
	}
	if u.DailyDigest != nil {
		p.DailyDigest = *u.DailyDigest
	}
	if u.ReEngagement != nil {
		p.ReEngagement = *u.ReEngagement
	}
	if p.Types == nil {
		p.Types = map[alerting.AlertType]bool{}
	}
	for t, on := range u.Types {
		p.Types[t] = on
	}
	p.UpdatedAt = d.now().UTC()

	if err := d.prefs.SavePreferences(ctx, p); err != nil {
		return nil, err
	}
	return p, nil
}

// allowed reports whether n passes its recipient's preferences. Lookup
// errors deliver the notification.
func (d *Dispatcher) allowed(ctx context.Context, n *Notification) bool {
	if d.prefs == nil {
		return true
	}
	p, err := d.Preferences(ctx, n.UserID)
	if err != nil {
		logging.Ctx(ctx).Warn().Err(err).Str("user_id", n.UserID).Msg("Failed to load notification preferences, delivering anyway")
		return true
	}
	return p.Allows(n.Type, n.Severity, d.defaults)
}
