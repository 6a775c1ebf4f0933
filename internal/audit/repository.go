package audit

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Entry kinds.
const (
	KindCommand = "command"
	KindEvent   = "event"
)

// timeFormat is fixed-width so created_at sorts as text.
const timeFormat = "2006-01-02T15:04:05.000000Z07:00"

// Page size limits for List.
const (
	defaultLimit = 50
	maxLimit     = 200
)

// Entry is one line of the activity log.
type Entry struct {
	ID        string         `json:"id"`
	DeviceID  string         `json:"device_id"`
	Kind      string         `json:"kind"`
	Name      string         `json:"name"`
	Source    string         `json:"source"`
	UserID    string         `json:"user_id,omitempty"`
	Status    string         `json:"status"`
	ErrorCode string         `json:"error_code,omitempty"`
	Details   map[string]any `json:"details,omitempty"`
	CreatedAt time.Time      `json:"created_at"`
}

// Filter selects entries for List. Zero fields match everything.
type Filter struct {
	DeviceID string
	Kind     string
	Limit    int // default 50, max 200
	Offset   int
}

// ListResult is one page of entries, newest first.
type ListResult struct {
	Entries []Entry `json:"entries"`
	Total   int     `json:"total"`
	Limit   int     `json:"limit"`
	Offset  int     `json:"offset"`
}

// Repository stores activity entries.
type Repository interface {
	Create(ctx context.Context, e *Entry) error
	List(ctx context.Context, filter Filter) (*ListResult, error)
	Prune(ctx context.Context, before time.Time) (int64, error)
}

// SQLiteRepository implements Repository on the karotz_activity table.
type SQLiteRepository struct {
	db *sql.DB
}

// NewSQLiteRepository creates an activity repository.
func NewSQLiteRepository(db *sql.DB) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

// Create inserts e, filling ID and CreatedAt when empty.
func (r *SQLiteRepository) Create(ctx context.Context, e *Entry) error {
	if e.DeviceID == "" || e.Kind == "" || e.Name == "" {
		return fmt.Errorf("%w: device_id, kind and name are required", ErrInvalidEntry)
	}
	if e.ID == "" {
		e.ID = "act-" + uuid.NewString()[:8]
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now().UTC()
	}

	var details *string
	if len(e.Details) > 0 {
		b, err := json.Marshal(e.Details)
		if err != nil {
			return fmt.Errorf("marshalling activity details: %w", err)
		}
		s := string(b)
		details = &s
	}

	_, err := r.db.ExecContext(ctx,
		`INSERT INTO karotz_activity (id, device_id, kind, name, source, user_id, status, error_code, details, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		e.ID, e.DeviceID, e.Kind, e.Name, e.Source,
		nullableString(e.UserID), e.Status, nullableString(e.ErrorCode),
		details, e.CreatedAt.UTC().Format(timeFormat),
	)
	if err != nil {
		return fmt.Errorf("inserting activity entry: %w", err)
	}
	return nil
}

// nullableString maps "" to NULL for optional TEXT columns.
func nullableString(s string) any {
	if s == "" {
		return nil
	}
	return s
}

// List returns entries matching filter, newest first.
func (r *SQLiteRepository) List(ctx context.Context, filter Filter) (*ListResult, error) {
	if filter.Limit <= 0 {
		filter.Limit = defaultLimit
	}
	if filter.Limit > maxLimit {
		filter.Limit = maxLimit
	}
	if filter.Offset < 0 {
		filter.Offset = 0
	}

	var conditions []string
	var args []any
	if filter.DeviceID != "" {
		conditions = append(conditions, "device_id = ?")
		args = append(args, filter.DeviceID)
	}
	if filter.Kind != "" {
		conditions = append(conditions, "kind = ?")
		args = append(args, filter.Kind)
	}
	where := ""
	if len(conditions) > 0 {
		where = "WHERE " + strings.Join(conditions, " AND ")
	}

	var total int
	countQuery := "SELECT COUNT(*) FROM karotz_activity " + where //nolint:gosec // WHERE built from parameterised conditions
	if err := r.db.QueryRowContext(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, fmt.Errorf("counting activity entries: %w", err)
	}

	query := "SELECT id, device_id, kind, name, source, user_id, status, error_code, details, created_at " + //nolint:gosec // WHERE built from parameterised conditions
		"FROM karotz_activity " + where + " ORDER BY created_at DESC, id LIMIT ? OFFSET ?"
	rows, err := r.db.QueryContext(ctx, query, append(args, filter.Limit, filter.Offset)...)
	if err != nil {
		return nil, fmt.Errorf("querying activity entries: %w", err)
	}
	defer rows.Close()

	entries := []Entry{}
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating activity entries: %w", err)
	}

	return &ListResult{
		Entries: entries,
		Total:   total,
		Limit:   filter.Limit,
		Offset:  filter.Offset,
	}, nil
}

func scanEntry(rows *sql.Rows) (Entry, error) {
	var (
		e                        Entry
		userID, errCode, details sql.NullString
		createdAt                string
	)
	if err := rows.Scan(&e.ID, &e.DeviceID, &e.Kind, &e.Name, &e.Source,
		&userID, &e.Status, &errCode, &details, &createdAt); err != nil {
		return Entry{}, fmt.Errorf("scanning activity entry: %w", err)
	}
	e.UserID = userID.String
	e.ErrorCode = errCode.String
	if details.Valid && details.String != "" {
		if err := json.Unmarshal([]byte(details.String), &e.Details); err != nil {
			return Entry{}, fmt.Errorf("decoding activity details %s: %w", e.ID, err)
		}
	}
	t, err := time.Parse(timeFormat, createdAt)
	if err != nil {
		return Entry{}, fmt.Errorf("parsing activity timestamp %q: %w", createdAt, err)
	}
	e.CreatedAt = t
	return e, nil
}

// Prune deletes entries created before the cutoff and returns how many.
func (r *SQLiteRepository) Prune(ctx context.Context, before time.Time) (int64, error) {
	res, err := r.db.ExecContext(ctx,
		"DELETE FROM karotz_activity WHERE created_at < ?", before.UTC().Format(timeFormat))
	if err != nil {
		return 0, fmt.Errorf("pruning activity entries: %w", err)
	}
	return res.RowsAffected()
}
