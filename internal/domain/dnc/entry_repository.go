package dnc

import (
	"context"
	"time"
)

// EntryRepository persists suppression entries keyed by E.164 phone number.
type EntryRepository interface {
	// FindActive returns the entry for phone when it is active and not
	// expired at now. It returns nil, nil when no such entry exists.
	FindActive(ctx context.Context, phone string, now time.Time) (*Entry, error)

	// Upsert inserts the entry or replaces every field of the existing row
	// with the same phone number. Metadata is merged with the stored value.
	// It returns the row as persisted.
	Upsert(ctx context.Context, entry *Entry) (*Entry, error)

	// Delete hard-deletes the entry for phone. Missing rows are a not-found error.
	Delete(ctx context.Context, phone string) error
}

// Notifier is told about every successful write to the suppression list.
// Implementations must not block the caller.
type Notifier interface {
	Notify(entry *Entry)
}
