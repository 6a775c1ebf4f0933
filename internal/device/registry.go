package device

import (
	"context"
	"fmt"
	"sort"
	"sync"
)

// Logger defines the logging interface used by the Registry.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Spec is the configured identity of a rabbit, as read from config.yaml.
type Spec struct {
	ID   string
	Name string
	Host string
}

// Registry caches entries by id and by webhook id on top of a Repository.
//
// Webhook requests arrive from the LAN at any time, so lookups are served
// from memory. All public methods are thread-safe.
type Registry struct {
	repo   Repository
	logger Logger

	mu        sync.RWMutex
	byID      map[string]Entry
	byWebhook map[string]string // webhook id -> entry id
}

// NewRegistry creates a registry backed by repo.
func NewRegistry(repo Repository) *Registry {
	return &Registry{
		repo:      repo,
		logger:    noopLogger{},
		byID:      make(map[string]Entry),
		byWebhook: make(map[string]string),
	}
}

// SetLogger sets the logger for the registry.
func (r *Registry) SetLogger(logger Logger) {
	r.logger = logger
}

// Sync ensures an entry exists for every configured rabbit and reloads the
// cache. Entries in the database that are no longer configured are kept
// (their webhook ids stay valid if the rabbit is added back) but are not
// returned by Sync.
func (r *Registry) Sync(ctx context.Context, specs []Spec) ([]Entry, error) {
	synced := make([]Entry, 0, len(specs))
	for _, s := range specs {
		entry, err := r.repo.Ensure(ctx, s.ID, s.Name, s.Host)
		if err != nil {
			return nil, fmt.Errorf("syncing entry %s: %w", s.ID, err)
		}
		synced = append(synced, *entry)
	}

	if err := r.Refresh(ctx); err != nil {
		return nil, err
	}

	r.logger.Info("device entries synced", "configured", len(synced))
	return synced, nil
}

// Refresh reloads every entry from the repository.
func (r *Registry) Refresh(ctx context.Context) error {
	entries, err := r.repo.List(ctx)
	if err != nil {
		return fmt.Errorf("loading entries: %w", err)
	}

	byID := make(map[string]Entry, len(entries))
	byWebhook := make(map[string]string, len(entries))
	for _, e := range entries {
		byID[e.ID] = e
		byWebhook[e.WebhookID] = e.ID
	}

	r.mu.Lock()
	r.byID = byID
	r.byWebhook = byWebhook
	r.mu.Unlock()

	return nil
}

// Get returns the cached entry for id.
func (r *Registry) Get(id string) (Entry, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	e, ok := r.byID[id]
	if !ok {
		return Entry{}, ErrEntryNotFound
	}
	return e, nil
}

// ByWebhookID resolves a webhook id to its entry.
func (r *Registry) ByWebhookID(webhookID string) (Entry, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	id, ok := r.byWebhook[webhookID]
	if !ok {
		return Entry{}, ErrEntryNotFound
	}
	return r.byID[id], nil
}

// List returns cached entries sorted by name.
func (r *Registry) List() []Entry {
	r.mu.RLock()
	entries := make([]Entry, 0, len(r.byID))
	for _, e := range r.byID {
		entries = append(entries, e)
	}
	r.mu.RUnlock()

	sort.Slice(entries, func(i, j int) bool {
		if entries[i].Name != entries[j].Name {
			return entries[i].Name < entries[j].Name
		}
		return entries[i].ID < entries[j].ID
	})
	return entries
}

// RecordFirmware stores a newly observed firmware version. Unchanged
// versions are not written.
func (r *Registry) RecordFirmware(ctx context.Context, id, version string) error {
	r.mu.RLock()
	e, ok := r.byID[id]
	r.mu.RUnlock()

	if !ok {
		return ErrEntryNotFound
	}
	if version == "" || e.FirmwareVersion == version {
		return nil
	}

	if err := r.repo.UpdateFirmware(ctx, id, version); err != nil {
		return err
	}

	r.mu.Lock()
	if cur, ok := r.byID[id]; ok {
		cur.FirmwareVersion = version
		r.byID[id] = cur
	}
	r.mu.Unlock()

	r.logger.Info("firmware version recorded", "device_id", id, "version", version)
	return nil
}
