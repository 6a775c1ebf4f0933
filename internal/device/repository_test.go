package device

import (
	"context"
	"errors"
	"testing"

	"github.com/nerrad567/gray-logic-karotz/internal/infrastructure/config"
	"github.com/nerrad567/gray-logic-karotz/internal/infrastructure/database"
	"github.com/nerrad567/gray-logic-karotz/migrations"
)

// setupTestRepo opens an in-memory database with the real migrations applied.
func setupTestRepo(t *testing.T) *SQLiteRepository {
	t.Helper()

	ctx := context.Background()
	db, err := database.Open(ctx, config.DatabaseConfig{Path: database.MemoryPath})
	if err != nil {
		t.Fatalf("failed to open test database: %v", err)
	}
	t.Cleanup(func() { db.Close() }) //nolint:errcheck // test cleanup

	if err := db.Migrate(ctx, migrations.FS); err != nil {
		t.Fatalf("failed to migrate test database: %v", err)
	}

	return NewSQLiteRepository(db.DB)
}

func TestEnsure_CreatesEntryWithWebhookID(t *testing.T) {
	repo := setupTestRepo(t)
	ctx := context.Background()

	entry, err := repo.Ensure(ctx, "kitchen", "", "192.168.1.20")
	if err != nil {
		t.Fatalf("Ensure() error = %v", err)
	}

	if entry.Name != DefaultName {
		t.Errorf("Name = %q, want %q", entry.Name, DefaultName)
	}
	if entry.Host != "192.168.1.20" {
		t.Errorf("Host = %q, want %q", entry.Host, "192.168.1.20")
	}
	if len(entry.WebhookID) != 36 {
		t.Errorf("WebhookID = %q, want a uuid", entry.WebhookID)
	}
	if entry.CreatedAt.IsZero() {
		t.Error("CreatedAt not set")
	}
}

func TestEnsure_KeepsWebhookIDAcrossUpdates(t *testing.T) {
	repo := setupTestRepo(t)
	ctx := context.Background()

	first, err := repo.Ensure(ctx, "kitchen", "Kitchen", "192.168.1.20")
	if err != nil {
		t.Fatalf("Ensure() error = %v", err)
	}

	second, err := repo.Ensure(ctx, "kitchen", "Kitchen rabbit", "192.168.1.21")
	if err != nil {
		t.Fatalf("second Ensure() error = %v", err)
	}

	if second.WebhookID != first.WebhookID {
		t.Errorf("WebhookID changed from %q to %q", first.WebhookID, second.WebhookID)
	}
	if second.Name != "Kitchen rabbit" || second.Host != "192.168.1.21" {
		t.Errorf("entry not updated: %+v", second)
	}
}

func TestEnsure_DuplicateHost(t *testing.T) {
	repo := setupTestRepo(t)
	ctx := context.Background()

	if _, err := repo.Ensure(ctx, "kitchen", "Kitchen", "192.168.1.20"); err != nil {
		t.Fatalf("Ensure() error = %v", err)
	}

	_, err := repo.Ensure(ctx, "hall", "Hall", "192.168.1.20")
	if !errors.Is(err, ErrEntryExists) {
		t.Errorf("Ensure() error = %v, want ErrEntryExists", err)
	}
}

func TestEnsure_Invalid(t *testing.T) {
	repo := setupTestRepo(t)

	tests := []struct {
		name, id, host string
	}{
		{"missing id", "", "10.0.0.1"},
		{"missing host", "k1", ""},
		{"url instead of host", "k1", "http://10.0.0.1/cgi-bin"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := repo.Ensure(context.Background(), tt.id, "Karotz", tt.host)
			if !errors.Is(err, ErrInvalidEntry) {
				t.Errorf("Ensure() error = %v, want ErrInvalidEntry", err)
			}
		})
	}
}

func TestGetByWebhookID(t *testing.T) {
	repo := setupTestRepo(t)
	ctx := context.Background()

	created, err := repo.Ensure(ctx, "kitchen", "Kitchen", "192.168.1.20")
	if err != nil {
		t.Fatalf("Ensure() error = %v", err)
	}

	got, err := repo.GetByWebhookID(ctx, created.WebhookID)
	if err != nil {
		t.Fatalf("GetByWebhookID() error = %v", err)
	}
	if got.ID != "kitchen" {
		t.Errorf("ID = %q, want %q", got.ID, "kitchen")
	}

	if _, err := repo.GetByWebhookID(ctx, "unknown"); !errors.Is(err, ErrEntryNotFound) {
		t.Errorf("GetByWebhookID(unknown) error = %v, want ErrEntryNotFound", err)
	}
}

func TestListUpdateDelete(t *testing.T) {
	repo := setupTestRepo(t)
	ctx := context.Background()

	for _, e := range []struct{ id, name, host string }{
		{"b", "Bedroom", "10.0.0.2"},
		{"a", "Attic", "10.0.0.1"},
	} {
		if _, err := repo.Ensure(ctx, e.id, e.name, e.host); err != nil {
			t.Fatalf("Ensure(%s) error = %v", e.id, err)
		}
	}

	entries, err := repo.List(ctx)
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(entries) != 2 || entries[0].Name != "Attic" {
		t.Fatalf("List() = %+v, want Attic first", entries)
	}

	if err := repo.UpdateFirmware(ctx, "a", "200"); err != nil {
		t.Fatalf("UpdateFirmware() error = %v", err)
	}
	got, err := repo.GetByID(ctx, "a")
	if err != nil {
		t.Fatalf("GetByID() error = %v", err)
	}
	if got.FirmwareVersion != "200" {
		t.Errorf("FirmwareVersion = %q, want %q", got.FirmwareVersion, "200")
	}

	if err := repo.Delete(ctx, "a"); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
	if err := repo.Delete(ctx, "a"); !errors.Is(err, ErrEntryNotFound) {
		t.Errorf("second Delete() error = %v, want ErrEntryNotFound", err)
	}
	if err := repo.UpdateFirmware(ctx, "missing", "1"); !errors.Is(err, ErrEntryNotFound) {
		t.Errorf("UpdateFirmware(missing) error = %v, want ErrEntryNotFound", err)
	}
}
