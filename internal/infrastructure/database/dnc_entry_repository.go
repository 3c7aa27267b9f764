package database

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/davidleathers/compliance-gateway/internal/domain/dnc"
	domainerrors "github.com/davidleathers/compliance-gateway/internal/domain/errors"
)

const entryColumns = `phone_number, date_added, reason, source, added_by, status, metadata, expiration_date`

// DNCEntryRepository implements dnc.EntryRepository on PostgreSQL.
type DNCEntryRepository struct {
	db *pgxpool.Pool
}

// NewDNCEntryRepository creates a new PostgreSQL suppression entry repository
func NewDNCEntryRepository(db *pgxpool.Pool) *DNCEntryRepository {
	return &DNCEntryRepository{db: db}
}

// FindActive returns the active, unexpired entry for phone or nil.
func (r *DNCEntryRepository) FindActive(ctx context.Context, phone string, now time.Time) (*dnc.Entry, error) {
	query := `
		SELECT ` + entryColumns + `
		FROM dnc_entries
		WHERE phone_number = $1
		  AND status = 'active'
		  AND (expiration_date IS NULL OR expiration_date > $2)
	`

	entry, err := scanEntry(r.db.QueryRow(ctx, query, phone, now))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, domainerrors.NewInternalError("failed to query suppression entry").WithCause(err)
	}
	return entry, nil
}

// Upsert inserts the entry or replaces the row with the same phone number.
// Stored metadata keys absent from the new entry are kept.
func (r *DNCEntryRepository) Upsert(ctx context.Context, entry *dnc.Entry) (*dnc.Entry, error) {
	query := `
		INSERT INTO dnc_entries (` + entryColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (phone_number)
		DO UPDATE SET
			date_added = EXCLUDED.date_added,
			reason = EXCLUDED.reason,
			source = EXCLUDED.source,
			added_by = EXCLUDED.added_by,
			status = EXCLUDED.status,
			metadata = dnc_entries.metadata || EXCLUDED.metadata,
			expiration_date = EXCLUDED.expiration_date
		RETURNING ` + entryColumns

	metadataJSON, err := json.Marshal(entry.Metadata)
	if err != nil {
		return nil, domainerrors.NewInternalError("failed to marshal metadata").WithCause(err)
	}

	stored, err := scanEntry(r.db.QueryRow(ctx, query,
		entry.PhoneNumber,
		entry.DateAdded,
		entry.Reason,
		entry.Source,
		entry.AddedBy,
		string(entry.Status),
		metadataJSON,
		entry.ExpirationDate,
	))
	if err != nil {
		return nil, domainerrors.NewInternalError("failed to upsert suppression entry").WithCause(err)
	}
	return stored, nil
}

// Delete removes the row for phone.
func (r *DNCEntryRepository) Delete(ctx context.Context, phone string) error {
	tag, err := r.db.Exec(ctx, `DELETE FROM dnc_entries WHERE phone_number = $1`, phone)
	if err != nil {
		return domainerrors.NewInternalError("failed to delete suppression entry").WithCause(err)
	}
	if tag.RowsAffected() == 0 {
		return domainerrors.NewNotFoundError("suppression entry")
	}
	return nil
}

func scanEntry(row pgx.Row) (*dnc.Entry, error) {
	var (
		entry        dnc.Entry
		status       string
		metadataJSON []byte
	)
	if err := row.Scan(
		&entry.PhoneNumber,
		&entry.DateAdded,
		&entry.Reason,
		&entry.Source,
		&entry.AddedBy,
		&status,
		&metadataJSON,
		&entry.ExpirationDate,
	); err != nil {
		return nil, err
	}

	entry.Status = dnc.Status(status)
	entry.Metadata = map[string]any{}
	if len(metadataJSON) > 0 {
		if err := json.Unmarshal(metadataJSON, &entry.Metadata); err != nil {
			return nil, err
		}
	}
	entry.DateAdded = entry.DateAdded.UTC()
	return &entry, nil
}
