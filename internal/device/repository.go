package device

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/mattn/go-sqlite3"
)

// DefaultName is the entry name used when none is configured.
const DefaultName = "Karotz"

// Entry is the stored configuration of one rabbit.
//
// The host doubles as the rabbit's unique identity. WebhookID is generated
// once and stays stable across restarts because it is programmed into the
// rabbit's event callback URL.
type Entry struct {
	ID              string    `json:"id"`
	Name            string    `json:"name"`
	Host            string    `json:"host"`
	WebhookID       string    `json:"webhook_id"`
	FirmwareVersion string    `json:"firmware_version,omitempty"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
}

// Validate checks the fields the bridge relies on.
func (e *Entry) Validate() error {
	var problems []string
	if strings.TrimSpace(e.ID) == "" {
		problems = append(problems, "id is required")
	}
	if strings.TrimSpace(e.Host) == "" {
		problems = append(problems, "host is required")
	}
	if strings.ContainsAny(e.Host, "/?#") {
		problems = append(problems, "host must be a bare host or host:port")
	}
	if len(problems) > 0 {
		return fmt.Errorf("%w: %s", ErrInvalidEntry, strings.Join(problems, "; "))
	}
	return nil
}

// Repository persists rabbit entries.
type Repository interface {
	// GetByID returns ErrEntryNotFound when the id is unknown.
	GetByID(ctx context.Context, id string) (*Entry, error)

	// GetByWebhookID resolves an incoming webhook to its entry.
	GetByWebhookID(ctx context.Context, webhookID string) (*Entry, error)

	List(ctx context.Context) ([]Entry, error)

	// Ensure creates the entry if it does not exist, otherwise updates
	// its name and host. The webhook id of an existing entry is kept.
	Ensure(ctx context.Context, id, name, host string) (*Entry, error)

	UpdateFirmware(ctx context.Context, id, version string) error

	Delete(ctx context.Context, id string) error
}

// SQLiteRepository implements Repository on the karotz_devices table.
type SQLiteRepository struct {
	db *sql.DB
}

// NewSQLiteRepository creates a repository over an open, migrated database.
func NewSQLiteRepository(db *sql.DB) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

const entryColumns = `id, name, host, webhook_id, firmware_version, created_at, updated_at`

// GetByID retrieves an entry by id.
func (r *SQLiteRepository) GetByID(ctx context.Context, id string) (*Entry, error) {
	return r.getOne(ctx, "id", id)
}

// GetByWebhookID retrieves an entry by webhook id.
func (r *SQLiteRepository) GetByWebhookID(ctx context.Context, webhookID string) (*Entry, error) {
	return r.getOne(ctx, "webhook_id", webhookID)
}

func (r *SQLiteRepository) getOne(ctx context.Context, column, value string) (*Entry, error) {
	query := `SELECT ` + entryColumns + ` FROM karotz_devices WHERE ` + column + ` = ?`

	entry, err := scanEntry(r.db.QueryRowContext(ctx, query, value))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrEntryNotFound
		}
		return nil, fmt.Errorf("querying entry by %s: %w", column, err)
	}
	return entry, nil
}

// List returns every entry ordered by name.
func (r *SQLiteRepository) List(ctx context.Context) ([]Entry, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT `+entryColumns+` FROM karotz_devices ORDER BY name, id`)
	if err != nil {
		return nil, fmt.Errorf("querying entries: %w", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		entry, err := scanEntry(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning entry: %w", err)
		}
		entries = append(entries, *entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating entries: %w", err)
	}
	return entries, nil
}

// Ensure creates or updates the entry for id.
func (r *SQLiteRepository) Ensure(ctx context.Context, id, name, host string) (*Entry, error) {
	if name == "" {
		name = DefaultName
	}
	candidate := &Entry{ID: id, Name: name, Host: host}
	if err := candidate.Validate(); err != nil {
		return nil, err
	}

	now := time.Now().UTC().Format(time.RFC3339)

	// The webhook id is only used on insert; the conflict branch leaves
	// the stored one untouched.
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO karotz_devices (id, name, host, webhook_id, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			host = excluded.host,
			updated_at = excluded.updated_at
		WHERE karotz_devices.name != excluded.name OR karotz_devices.host != excluded.host`,
		id, name, host, uuid.NewString(), now, now,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, fmt.Errorf("%w: host %s", ErrEntryExists, host)
		}
		return nil, fmt.Errorf("ensuring entry: %w", err)
	}

	return r.GetByID(ctx, id)
}

// UpdateFirmware records the firmware version last reported by the rabbit.
func (r *SQLiteRepository) UpdateFirmware(ctx context.Context, id, version string) error {
	result, err := r.db.ExecContext(ctx,
		`UPDATE karotz_devices SET firmware_version = ?, updated_at = ? WHERE id = ?`,
		version, time.Now().UTC().Format(time.RFC3339), id,
	)
	if err != nil {
		return fmt.Errorf("updating firmware: %w", err)
	}
	return requireAffected(result)
}

// Delete removes an entry.
func (r *SQLiteRepository) Delete(ctx context.Context, id string) error {
	result, err := r.db.ExecContext(ctx, `DELETE FROM karotz_devices WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("deleting entry: %w", err)
	}
	return requireAffected(result)
}

func requireAffected(result sql.Result) error {
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("checking rows affected: %w", err)
	}
	if n == 0 {
		return ErrEntryNotFound
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanEntry(row rowScanner) (*Entry, error) {
	var (
		e                    Entry
		firmware             sql.NullString
		createdAt, updatedAt string
	)
	if err := row.Scan(&e.ID, &e.Name, &e.Host, &e.WebhookID, &firmware, &createdAt, &updatedAt); err != nil {
		return nil, err
	}
	e.FirmwareVersion = firmware.String
	e.CreatedAt, _ = time.Parse(time.RFC3339, createdAt) //nolint:errcheck // written by us
	e.UpdatedAt, _ = time.Parse(time.RFC3339, updatedAt) //nolint:errcheck // written by us
	return &e, nil
}

func isUniqueViolation(err error) bool {
	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) {
		return sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique
	}
	return false
}
