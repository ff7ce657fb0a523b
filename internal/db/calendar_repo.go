package db

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
)

const calendarColumns = `id, user_id, title, description, start_time, end_time, created_at, updated_at`

type CalendarRepo struct {
	db *sql.DB
}

func NewCalendarRepo(db *sql.DB) *CalendarRepo {
	return &CalendarRepo{db: db}
}

func (r *CalendarRepo) Create(ctx context.Context, event *CalendarEvent) error {
	if event.ID == "" {
		id, err := NewID()
		if err != nil {
			return err
		}
		event.ID = id
	}
	if event.UserID == "" {
		event.UserID = DefaultUserID
	}
	if event.CreatedAt.IsZero() {
		event.CreatedAt = nowUTC()
	}
	if event.UpdatedAt.IsZero() {
		event.UpdatedAt = event.CreatedAt
	}

	_, err := r.db.ExecContext(ctx, `
INSERT INTO calendar_events (id, user_id, title, description, start_time, end_time, created_at, updated_at)
VALUES (?, ?, ?, ?, ?, ?, ?, ?)
`, event.ID, event.UserID, event.Title, event.Description, formatOptionalTimestamp(event.StartTime), formatOptionalTimestamp(event.EndTime), formatTimestamp(event.CreatedAt), formatTimestamp(event.UpdatedAt))
	if err != nil {
		return fmt.Errorf("failed to create calendar event: %w", err)
	}
	return nil
}

func (r *CalendarRepo) Get(ctx context.Context, id string) (*CalendarEvent, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+calendarColumns+` FROM calendar_events WHERE id = ?`, id)
	e, err := scanCalendarEvent(row)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get calendar event %q: %w", id, err)
	}
	return e, nil
}

// List returns events ordered by start time. Start and End bound start_time
// inclusively; events without a start time are only listed when unbounded.
func (r *CalendarRepo) List(ctx context.Context, filter CalendarFilter) ([]*CalendarEvent, error) {
	userID := filter.UserID
	if userID == "" {
		userID = DefaultUserID
	}
	where := []string{"user_id = ?"}
	args := []any{userID}
	if filter.Start != nil {
		where = append(where, "start_time >= ?")
		args = append(args, formatTimestamp(*filter.Start))
	}
	if filter.End != nil {
		where = append(where, "start_time <= ?")
		args = append(args, formatTimestamp(*filter.End))
	}
	query := `SELECT ` + calendarColumns + ` FROM calendar_events WHERE ` + strings.Join(where, " AND ") +
		` ORDER BY start_time IS NULL, start_time ASC, rowid ASC`

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list calendar events: %w", err)
	}
	defer rows.Close()

	events := []*CalendarEvent{}
	for rows.Next() {
		e, err := scanCalendarEvent(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan calendar event: %w", err)
		}
		events = append(events, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed while iterating calendar events: %w", err)
	}
	return events, nil
}

func (r *CalendarRepo) Update(ctx context.Context, event *CalendarEvent) error {
	event.UpdatedAt = nowUTC()
	res, err := r.db.ExecContext(ctx, `
UPDATE calendar_events
SET title = ?, description = ?, start_time = ?, end_time = ?, updated_at = ?
WHERE id = ?
`, event.Title, event.Description, formatOptionalTimestamp(event.StartTime), formatOptionalTimestamp(event.EndTime), formatTimestamp(event.UpdatedAt), event.ID)
	if err != nil {
		return fmt.Errorf("failed to update calendar event %q: %w", event.ID, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read updated rows for calendar event %q: %w", event.ID, err)
	}
	if affected == 0 {
		return fmt.Errorf("calendar event %q not found", event.ID)
	}
	return nil
}

// Delete reports whether a row was removed.
func (r *CalendarRepo) Delete(ctx context.Context, id string) (bool, error) {
	res, err := r.db.ExecContext(ctx, `DELETE FROM calendar_events WHERE id = ?`, id)
	if err != nil {
		return false, fmt.Errorf("failed to delete calendar event %q: %w", id, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to read deleted rows for calendar event %q: %w", id, err)
	}
	return affected > 0, nil
}

func scanCalendarEvent(row rowScanner) (*CalendarEvent, error) {
	var e CalendarEvent
	var startRaw, endRaw sql.NullString
	var createdAtRaw, updatedAtRaw string
	if err := row.Scan(&e.ID, &e.UserID, &e.Title, &e.Description, &startRaw, &endRaw, &createdAtRaw, &updatedAtRaw); err != nil {
		return nil, err
	}
	var err error
	if e.StartTime, err = parseOptionalTimestamp(startRaw); err != nil {
		return nil, err
	}
	if e.EndTime, err = parseOptionalTimestamp(endRaw); err != nil {
		return nil, err
	}
	if e.CreatedAt, err = parseTimestamp(createdAtRaw); err != nil {
		return nil, err
	}
	if e.UpdatedAt, err = parseTimestamp(updatedAtRaw); err != nil {
		return nil, err
	}
	return &e, nil
}
