package database

import (
	"context"
	"maps"
	"sync"
	"time"

	"github.com/davidleathers/compliance-gateway/internal/domain/dnc"
	"github.com/davidleathers/compliance-gateway/internal/domain/errors"
)

// MemoryEntryRepository is an in-process dnc.EntryRepository with the same
// upsert and visibility rules as the PostgreSQL implementation.
type MemoryEntryRepository struct {
	mu      sync.RWMutex
	entries map[string]*dnc.Entry
}

func NewMemoryEntryRepository() *MemoryEntryRepository {
	return &MemoryEntryRepository{entries: make(map[string]*dnc.Entry)}
}

func (r *MemoryEntryRepository) FindActive(_ context.Context, phone string, now time.Time) (*dnc.Entry, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	e, ok := r.entries[phone]
	if !ok || !e.IsBlocking(now) {
		return nil, nil
	}
	return cloneEntry(e), nil
}

func (r *MemoryEntryRepository) Upsert(_ context.Context, entry *dnc.Entry) (*dnc.Entry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	stored := cloneEntry(entry)
	if existing, ok := r.entries[entry.PhoneNumber]; ok {
		merged := maps.Clone(existing.Metadata)
		if merged == nil {
			merged = map[string]any{}
		}
		maps.Copy(merged, entry.Metadata)
		stored.Metadata = merged
	}
	r.entries[entry.PhoneNumber] = stored
	return cloneEntry(stored), nil
}

func (r *MemoryEntryRepository) Delete(_ context.Context, phone string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.entries[phone]; !ok {
		return errors.NewNotFoundError("suppression entry")
	}
	delete(r.entries, phone)
	return nil
}

// Len returns the number of stored rows, including inactive and expired ones.
func (r *MemoryEntryRepository) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.entries)
}

func cloneEntry(e *dnc.Entry) *dnc.Entry {
	c := *e
	c.Metadata = maps.Clone(e.Metadata)
	if c.Metadata == nil {
		c.Metadata = map[string]any{}
	}
	if e.ExpirationDate != nil {
		exp := *e.ExpirationDate
		c.ExpirationDate = &exp
	}
	return &c
}
