// Moodlog - Emotional Baseline Deviation and Notification Service
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/moodlog

package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/goccy/go-json"

	"github.com/tomtom215/moodlog/internal/audit"
	"github.com/tomtom215/moodlog/internal/logging"
)

// AuditStore implements audit.Store on the audit_events table.
type AuditStore struct {
	db *DB
}

var _ audit.Store = (*AuditStore)(nil)

// Audit returns the audit event store.
func (db *DB) Audit() *AuditStore { return &AuditStore{db: db} }

const auditColumns = `id, timestamp, type, severity, outcome, actor_id, actor_type, actor_roles,
	target_id, target_type, source_ip, source_user_agent, action, description, metadata,
	correlation_id, request_id`

// Save implements audit.Store.
func (s *AuditStore) Save(ctx context.Context, e *audit.Event) (err error) {
	if e == nil {
		return fmt.Errorf("event cannot be nil")
	}
	ctx, cancel := ensureContext(ctx)
	defer cancel()
	defer track("insert", "audit_events")(&err)

	var targetID, targetType any
	if e.Target != nil {
		targetID, targetType = e.Target.ID, e.Target.Type
	}
	var metadata any
	if len(e.Metadata) > 0 {
		metadata = string(e.Metadata)
	}

	_, err = s.db.conn.ExecContext(ctx, `INSERT INTO audit_events (`+auditColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		e.ID, e.Timestamp.UTC(), string(e.Type), string(e.Severity), string(e.Outcome),
		e.Actor.ID, e.Actor.Type, marshalRoles(e.Actor.Roles),
		targetID, targetType, e.Source.IPAddress, e.Source.UserAgent,
		e.Action, e.Description, metadata, e.CorrelationID, e.RequestID,
	)
	if err != nil {
		return fmt.Errorf("failed to save audit event: %w", err)
	}
	return nil
}

// Get implements audit.Store.
func (s *AuditStore) Get(ctx context.Context, id string) (e *audit.Event, err error) {
	ctx, cancel := ensureContext(ctx)
	defer cancel()
	defer track("select", "audit_events")(&err)

	row := s.db.conn.QueryRowContext(ctx, `SELECT `+auditColumns+` FROM audit_events WHERE id = ?`, id)
	e, err = scanAuditEvent(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", audit.ErrNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get audit event: %w", err)
	}
	return e, nil
}

// Query implements audit.Store.
func (s *AuditStore) Query(ctx context.Context, filter audit.QueryFilter) (events []audit.Event, err error) {
	ctx, cancel := ensureContext(ctx)
	defer cancel()
	defer track("select", "audit_events")(&err)

	filter = filter.Normalize()
	where, args := auditWhere(&filter)
	args = append(args, filter.Limit, filter.Offset)

	rows, err := s.db.conn.QueryContext(ctx,
		`SELECT `+auditColumns+` FROM audit_events`+where+` ORDER BY timestamp DESC, id DESC LIMIT ? OFFSET ?`, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query audit events: %w", err)
	}
	defer closeWithLog(rows, "rows")

	events = []audit.Event{}
	for rows.Next() {
		e, scanErr := scanAuditEvent(rows)
		if scanErr != nil {
			logging.Warn().Err(scanErr).Msg("Failed to scan audit event row")
			continue
		}
		events = append(events, *e)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating audit events: %w", err)
	}
	return events, nil
}

// Count implements audit.Store.
func (s *AuditStore) Count(ctx context.Context, filter audit.QueryFilter) (count int64, err error) {
	ctx, cancel := ensureContext(ctx)
	defer cancel()
	defer track("select", "audit_events")(&err)

	where, args := auditWhere(&filter)
	if err = s.db.conn.QueryRowContext(ctx, `SELECT COUNT(*) FROM audit_events`+where, args...).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count audit events: %w", err)
	}
	return count, nil
}

// Delete implements audit.Store.
func (s *AuditStore) Delete(ctx context.Context, olderThan time.Time) (deleted int64, err error) {
	ctx, cancel := ensureContext(ctx)
	defer cancel()
	defer track("delete", "audit_events")(&err)

	res, err := s.db.conn.ExecContext(ctx, `DELETE FROM audit_events WHERE timestamp < ?`, olderThan.UTC())
	if err != nil {
		return 0, fmt.Errorf("failed to delete old audit events: %w", err)
	}
	deleted, err = res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return deleted, nil
}

func auditWhere(f *audit.QueryFilter) (string, []any) {
	var (
		clauses []string
		args    []any
	)
	if len(f.Types) > 0 {
		clauses = append(clauses, "type IN ("+placeholders(len(f.Types))+")")
		for _, t := range f.Types {
			args = append(args, string(t))
		}
	}
	if f.ActorID != "" {
		clauses = append(clauses, "actor_id = ?")
		args = append(args, f.ActorID)
	}
	if f.TargetID != "" {
		clauses = append(clauses, "target_id = ?")
		args = append(args, f.TargetID)
	}
	if f.CorrelationID != "" {
		clauses = append(clauses, "correlation_id = ?")
		args = append(args, f.CorrelationID)
	}
	if f.StartTime != nil {
		clauses = append(clauses, "timestamp >= ?")
		args = append(args, f.StartTime.UTC())
	}
	if f.EndTime != nil {
		clauses = append(clauses, "timestamp <= ?")
		args = append(args, f.EndTime.UTC())
	}
	if len(clauses) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(clauses, " AND "), args
}

func marshalRoles(roles []string) string {
	if len(roles) == 0 {
		return "[]"
	}
	if data, err := json.Marshal(roles); err == nil {
		return string(data)
	}
	return "[]"
}

func scanAuditEvent(row rowScanner) (*audit.Event, error) {
	var (
		e                             audit.Event
		typ, severity, outcome        string
		roles, targetID, targetType   sql.NullString
		sourceIP, userAgent, metadata sql.NullString
		correlationID, requestID      sql.NullString
	)
	if err := row.Scan(&e.ID, &e.Timestamp, &typ, &severity, &outcome, &e.Actor.ID, &e.Actor.Type, &roles,
		&targetID, &targetType, &sourceIP, &userAgent, &e.Action, &e.Description, &metadata,
		&correlationID, &requestID); err != nil {
		return nil, err
	}
	e.Type = audit.EventType(typ)
	e.Severity = audit.Severity(severity)
	e.Outcome = audit.Outcome(outcome)
	if roles.Valid && roles.String != "" && roles.String != "[]" {
		if err := json.Unmarshal([]byte(roles.String), &e.Actor.Roles); err != nil {
			return nil, fmt.Errorf("failed to decode actor roles: %w", err)
		}
	}
	if targetID.Valid {
		e.Target = &audit.Target{ID: targetID.String, Type: targetType.String}
	}
	e.Source = audit.Source{IPAddress: sourceIP.String, UserAgent: userAgent.String}
	if metadata.Valid {
		e.Metadata = json.RawMessage(metadata.String)
	}
	e.CorrelationID = correlationID.String
	e.RequestID = requestID.String
	return &e, nil
}
