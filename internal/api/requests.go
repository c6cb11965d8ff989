// Moodlog - Emotional Baseline Deviation and Notification Service
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/moodlog

package api

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/goccy/go-json"

	"github.com/tomtom215/moodlog/internal/alerting"
	"github.com/tomtom215/moodlog/internal/audit"
	"github.com/tomtom215/moodlog/internal/notification"
)

// markBatchRequest is the body of POST /notifications/read/batch.
type markBatchRequest struct {
	IDs []string `json:"ids" validate:"required,min=1,max=100,dive,required,max=64"`
}

// analyzeRequest is the body of POST /journals/analyze. The user is always
// the authenticated subject.
type analyzeRequest struct {
	EntryID  string             `json:"entryId" validate:"omitempty,max=128"`
	Text     string             `json:"text" validate:"omitempty,max=20000"`
	Emotions map[string]float64 `json:"emotions" validate:"omitempty,max=64"`
}

// preferencesRequest is the body of PUT /notifications/preferences. Absent
// fields keep their stored value.
type preferencesRequest struct {
	Enabled      *bool           `json:"enabled"`
	Types        map[string]bool `json:"types" validate:"omitempty,max=16,dive,keys,alerttype,endkeys"`
	DailyDigest  *bool           `json:"dailyDigest"`
	ReEngagement *bool           `json:"reEngagement"`
}

func (req *preferencesRequest) update() notification.PreferencesUpdate {
	u := notification.PreferencesUpdate{
		Enabled:      req.Enabled,
		DailyDigest:  req.DailyDigest,
		ReEngagement: req.ReEngagement,
	}
	if len(req.Types) > 0 {
		u.Types = make(map[alerting.AlertType]bool, len(req.Types))
		for t, on := range req.Types {
			u.Types[alerting.AlertType(t)] = on
		}
	}
	return u
}

// decodeJSON reads a single JSON document from the request body.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst interface{}) error {
	body := http.MaxBytesReader(w, r.Body, maxBodyBytes)
	dec := json.NewDecoder(body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			return fmt.Errorf("request body is empty")
		}
		return fmt.Errorf("invalid JSON body: %w", err)
	}
	return nil
}

// parseFilter reads the notification list query:
//
//	read=true|false, type=RISK_ALERT, severity=high,critical,
//	include_dismissed=true, limit=20, offset=40 or page=3
func parseFilter(q url.Values) (notification.Filter, error) {
	var f notification.Filter

	if v := q.Get("read"); v != "" {
		read, err := strconv.ParseBool(v)
		if err != nil {
			return f, fmt.Errorf("read must be true or false")
		}
		f.Read = &read
	}

	if v := q.Get("type"); v != "" {
		t := alerting.AlertType(strings.ToUpper(v))
		if !t.Valid() {
			return f, fmt.Errorf("unknown notification type %q", v)
		}
		f.Type = t
	}

	if v := q.Get("severity"); v != "" {
		for _, name := range strings.Split(v, ",") {
			p, err := alerting.ParsePriority(name)
			if err != nil {
				return f, err
			}
			f.Severities = append(f.Severities, p)
		}
	}

	if v := q.Get("include_dismissed"); v != "" {
		inc, err := strconv.ParseBool(v)
		if err != nil {
			return f, fmt.Errorf("include_dismissed must be true or false")
		}
		f.IncludeDismissed = inc
	}

	var err error
	if f.Limit, err = intParam(q, "limit", 0); err != nil {
		return f, err
	}
	if f.Limit > notification.MaxPageSize {
		return f, fmt.Errorf("limit must be at most %d", notification.MaxPageSize)
	}
	if f.Offset, err = intParam(q, "offset", 0); err != nil {
		return f, err
	}

	// page is 1-based and wins over offset.
	page, err := intParam(q, "page", 0)
	if err != nil {
		return f, err
	}
	if page > 0 {
		f.Offset = (page - 1) * f.Normalize().Limit
	}

	return f.Normalize(), nil
}

// parseAuditFilter reads the audit query:
//
//	type=baseline.update,notification.broadcast, actor_id=, target_id=,
//	correlation_id=, start=RFC3339, end=RFC3339, limit=100, offset=0
func parseAuditFilter(q url.Values) (audit.QueryFilter, error) {
	var f audit.QueryFilter

	if v := q.Get("type"); v != "" {
		for _, name := range strings.Split(v, ",") {
			t := audit.EventType(strings.TrimSpace(name))
			if !t.Valid() {
				return f, fmt.Errorf("unknown audit event type %q", name)
			}
			f.Types = append(f.Types, t)
		}
	}
	f.ActorID = q.Get("actor_id")
	f.TargetID = q.Get("target_id")
	f.CorrelationID = q.Get("correlation_id")

	for name, dst := range map[string]**time.Time{"start": &f.StartTime, "end": &f.EndTime} {
		v := q.Get(name)
		if v == "" {
			continue
		}
		ts, err := time.Parse(time.RFC3339, v)
		if err != nil {
			return f, fmt.Errorf("%s must be an RFC 3339 timestamp", name)
		}
		*dst = &ts
	}

	var err error
	if f.Limit, err = intParam(q, "limit", 0); err != nil {
		return f, err
	}
	if f.Limit > audit.MaxQueryLimit {
		return f, fmt.Errorf("limit must be at most %d", audit.MaxQueryLimit)
	}
	if f.Offset, err = intParam(q, "offset", 0); err != nil {
		return f, err
	}
	return f.Normalize(), nil
}

func intParam(q url.Values, name string, def int) (int, error) {
	v := q.Get(name)
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		return 0, fmt.Errorf("%s must be a non-negative integer", name)
	}
	return n, nil
}
