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

	"github.com/tomtom215/moodlog/internal/alerting"
	"github.com/tomtom215/moodlog/internal/logging"
	"github.com/tomtom215/moodlog/internal/notification"
)

// NotificationStore implements notification.Store.
type NotificationStore struct {
	db *DB
}

var _ notification.Store = (*NotificationStore)(nil)

const notificationColumns = `id, user_id, type, severity, title, message, description, trigger_data,
	journal_id, action, is_read, read_at, is_dismissed, dismissed_at, created_at, expires_at`

// Insert implements notification.Store. All rows are written in one
// transaction; ids already present are left as they are.
func (s *NotificationStore) Insert(ctx context.Context, ns []*notification.Notification) (err error) {
	if len(ns) == 0 {
		return nil
	}
	ctx, cancel := ensureContext(ctx)
	defer cancel()
	defer track("insert", "notifications")(&err)

	tx, err := s.db.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		if err != nil {
			if rbErr := tx.Rollback(); rbErr != nil {
				logging.Error().Err(rbErr).AnErr("original_error", err).Msg("Transaction rollback failed")
			}
		}
	}()

	stmt, err := tx.PrepareContext(ctx, `INSERT INTO notifications (`+notificationColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (id) DO NOTHING`)
	if err != nil {
		return fmt.Errorf("failed to prepare notification insert: %w", err)
	}
	defer closeWithLog(stmt, "prepared statement")

	for _, n := range ns {
		var trigger any
		if n.Trigger != nil {
			raw, mErr := json.Marshal(n.Trigger)
			if mErr != nil {
				return fmt.Errorf("failed to marshal trigger data: %w", mErr)
			}
			trigger = string(raw)
		}
		if _, err = stmt.ExecContext(ctx,
			n.ID, n.UserID, string(n.Type), int(n.Severity), n.Title, n.Message, n.Description, trigger,
			n.JournalID, string(n.Action), n.Read, utcOrNil(n.ReadAt), n.Dismissed, utcOrNil(n.DismissedAt),
			n.CreatedAt.UTC(), n.ExpiresAt.UTC(),
		); err != nil {
			return fmt.Errorf("failed to insert notification %s: %w", n.ID, err)
		}
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit notifications: %w", err)
	}
	return nil
}

// Get implements notification.Store.
func (s *NotificationStore) Get(ctx context.Context, userID, id string) (n *notification.Notification, err error) {
	ctx, cancel := ensureContext(ctx)
	defer cancel()
	defer track("select", "notifications")(&err)

	row := s.db.conn.QueryRowContext(ctx,
		`SELECT `+notificationColumns+` FROM notifications WHERE user_id = ? AND id = ?`, userID, id)
	n, err = scanNotification(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, notification.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query notification: %w", err)
	}
	return n, nil
}

// List implements notification.Store.
func (s *NotificationStore) List(ctx context.Context, userID string, f notification.Filter) (items []notification.Notification, total int, err error) {
	ctx, cancel := ensureContext(ctx)
	defer cancel()
	defer track("select", "notifications")(&err)

	where, args := filterClause(userID, f)

	if err = s.db.conn.QueryRowContext(ctx, `SELECT COUNT(*) FROM notifications WHERE `+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("failed to count notifications: %w", err)
	}

	query := `SELECT ` + notificationColumns + ` FROM notifications WHERE ` + where +
		` ORDER BY created_at DESC, id DESC`
	if f.Limit > 0 {
		query += ` LIMIT ? OFFSET ?`
		args = append(args, f.Limit, f.Offset)
	} else if f.Offset > 0 {
		query += ` OFFSET ?`
		args = append(args, f.Offset)
	}

	rows, err := s.db.conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to query notifications: %w", err)
	}
	defer closeWithLog(rows, "rows")

	items = []notification.Notification{}
	for rows.Next() {
		n, scanErr := scanNotification(rows)
		if scanErr != nil {
			return nil, 0, fmt.Errorf("failed to scan notification: %w", scanErr)
		}
		items = append(items, *n)
	}
	if err = rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("failed to iterate notifications: %w", err)
	}
	return items, total, nil
}

// MarkRead implements notification.Store.
func (s *NotificationStore) MarkRead(ctx context.Context, userID string, ids []string, at time.Time) (changed int, err error) {
	if len(ids) == 0 {
		return 0, nil
	}
	ctx, cancel := ensureContext(ctx)
	defer cancel()
	defer track("update", "notifications")(&err)

	args := []any{at.UTC(), userID}
	for _, id := range ids {
		args = append(args, id)
	}
	err = withConflictRetry(ctx, func(ctx context.Context) error {
		res, execErr := s.db.conn.ExecContext(ctx,
			`UPDATE notifications SET is_read = true, read_at = ?
			WHERE user_id = ? AND id IN (`+placeholders(len(ids))+`) AND NOT is_read`, args...)
		if execErr != nil {
			return fmt.Errorf("failed to mark notifications read: %w", execErr)
		}
		affected, execErr := res.RowsAffected()
		if execErr != nil {
			return fmt.Errorf("failed to get rows affected: %w", execErr)
		}
		changed = int(affected)
		return nil
	})
	return changed, err
}

// Dismiss implements notification.Store.
func (s *NotificationStore) Dismiss(ctx context.Context, userID, id string, at time.Time) (changed bool, err error) {
	ctx, cancel := ensureContext(ctx)
	defer cancel()
	defer track("update", "notifications")(&err)

	var affected int64
	err = withConflictRetry(ctx, func(ctx context.Context) error {
		res, execErr := s.db.conn.ExecContext(ctx,
			`UPDATE notifications SET is_dismissed = true, dismissed_at = ?
			WHERE user_id = ? AND id = ? AND NOT is_dismissed`, at.UTC(), userID, id)
		if execErr != nil {
			return fmt.Errorf("failed to dismiss notification: %w", execErr)
		}
		affected, execErr = res.RowsAffected()
		return execErr
	})
	if err != nil {
		return false, err
	}
	if affected > 0 {
		return true, nil
	}
	exists, err := s.exists(ctx, userID, id)
	if err != nil {
		return false, err
	}
	if !exists {
		return false, notification.ErrNotFound
	}
	return false, nil
}

// Delete implements notification.Store.
func (s *NotificationStore) Delete(ctx context.Context, userID, id string) (err error) {
	ctx, cancel := ensureContext(ctx)
	defer cancel()
	defer track("delete", "notifications")(&err)

	res, err := s.db.conn.ExecContext(ctx, `DELETE FROM notifications WHERE user_id = ? AND id = ?`, userID, id)
	if err != nil {
		return fmt.Errorf("failed to delete notification: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if affected == 0 {
		return notification.ErrNotFound
	}
	return nil
}

// DeleteAll implements notification.Store.
func (s *NotificationStore) DeleteAll(ctx context.Context, userID string) (removed int, err error) {
	ctx, cancel := ensureContext(ctx)
	defer cancel()
	defer track("delete", "notifications")(&err)

	res, err := s.db.conn.ExecContext(ctx, `DELETE FROM notifications WHERE user_id = ?`, userID)
	if err != nil {
		return 0, fmt.Errorf("failed to clear notifications: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return int(affected), nil
}

// CountUnread implements notification.Store.
func (s *NotificationStore) CountUnread(ctx context.Context, userID string) (count int, err error) {
	ctx, cancel := ensureContext(ctx)
	defer cancel()
	defer track("select", "notifications")(&err)

	if err = s.db.conn.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM notifications WHERE user_id = ? AND NOT is_read`, userID).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count unread notifications: %w", err)
	}
	return count, nil
}

// DeleteExpired implements notification.Store.
func (s *NotificationStore) DeleteExpired(ctx context.Context, now time.Time) (removed int, err error) {
	ctx, cancel := ensureContext(ctx)
	defer cancel()
	defer track("delete", "notifications")(&err)

	res, err := s.db.conn.ExecContext(ctx, `DELETE FROM notifications WHERE expires_at <= ?`, now.UTC())
	if err != nil {
		return 0, fmt.Errorf("failed to delete expired notifications: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return int(affected), nil
}

func (s *NotificationStore) exists(ctx context.Context, userID, id string) (bool, error) {
	var count int
	if err := s.db.conn.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM notifications WHERE user_id = ? AND id = ?`, userID, id).Scan(&count); err != nil {
		return false, fmt.Errorf("failed to look up notification: %w", err)
	}
	return count > 0, nil
}

func filterClause(userID string, f notification.Filter) (string, []any) {
	clauses := []string{"user_id = ?"}
	args := []any{userID}
	if f.Read != nil {
		clauses = append(clauses, "is_read = ?")
		args = append(args, *f.Read)
	}
	if f.Type != "" {
		clauses = append(clauses, "type = ?")
		args = append(args, string(f.Type))
	}
	if len(f.Severities) > 0 {
		clauses = append(clauses, "severity IN ("+placeholders(len(f.Severities))+")")
		for _, p := range f.Severities {
			args = append(args, int(p))
		}
	}
	if !f.IncludeDismissed {
		clauses = append(clauses, "NOT is_dismissed")
	}
	return strings.Join(clauses, " AND "), args
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanNotification(row rowScanner) (*notification.Notification, error) {
	var (
		n                   notification.Notification
		typ, action         string
		severity            int
		trigger             sql.NullString
		readAt, dismissedAt sql.NullTime
	)
	if err := row.Scan(&n.ID, &n.UserID, &typ, &severity, &n.Title, &n.Message, &n.Description, &trigger,
		&n.JournalID, &action, &n.Read, &readAt, &n.Dismissed, &dismissedAt, &n.CreatedAt, &n.ExpiresAt); err != nil {
		return nil, err
	}
	n.Type = alerting.AlertType(typ)
	n.Severity = alerting.Priority(severity)
	n.Action = notification.Action(action)
	if trigger.Valid {
		n.Trigger = &alerting.TriggerData{}
		if err := json.Unmarshal([]byte(trigger.String), n.Trigger); err != nil {
			return nil, fmt.Errorf("failed to decode trigger data: %w", err)
		}
	}
	if readAt.Valid {
		t := readAt.Time
		n.ReadAt = &t
	}
	if dismissedAt.Valid {
		t := dismissedAt.Time
		n.DismissedAt = &t
	}
	return &n, nil
}

func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?, ", n), ", ")
}

func utcOrNil(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.UTC()
}
