package dnc

import (
	"time"

	"github.com/davidleathers/compliance-gateway/internal/domain/errors"
	"github.com/davidleathers/compliance-gateway/internal/domain/values"
)

// Status is the lifecycle state of a suppression entry.
type Status string

const (
	StatusActive   Status = "active"
	StatusInactive Status = "inactive"
)

// Defaults applied to an add request that leaves the field empty.
const (
	DefaultReason  = "User opted out"
	DefaultSource  = "manual"
	DefaultAddedBy = "system"

	// MetadataLastUpdated is written on every insert or update.
	MetadataLastUpdated = "lastUpdated"
)

// Entry is a phone number on the internal suppression list.
type Entry struct {
	PhoneNumber    string         `json:"phone_number"`
	DateAdded      time.Time      `json:"date_added"`
	Reason         string         `json:"reason"`
	Source         string         `json:"source"`
	AddedBy        string         `json:"added_by"`
	Status         Status         `json:"status"`
	Metadata       map[string]any `json:"metadata"`
	ExpirationDate *time.Time     `json:"expiration_date"`
}

// IsBlocking reports whether the entry suppresses contact at the given time.
// A nil expiration means the entry is permanent.
func (e *Entry) IsBlocking(now time.Time) bool {
	if e.Status != StatusActive {
		return false
	}
	return e.ExpirationDate == nil || e.ExpirationDate.After(now)
}

// AddRequest is the write model for a single suppression entry.
type AddRequest struct {
	PhoneNumber    string         `json:"phone_number" validate:"required"`
	Reason         string         `json:"reason,omitempty"`
	Source         string         `json:"source,omitempty"`
	AddedBy        string         `json:"added_by,omitempty"`
	Status         Status         `json:"status,omitempty" validate:"omitempty,oneof=active inactive"`
	Metadata       map[string]any `json:"metadata,omitempty"`
	ExpirationDate *time.Time     `json:"expiration_date,omitempty"`
}

// NewEntry validates the request and builds the entry that will be upserted.
func NewEntry(req AddRequest, now time.Time) (*Entry, error) {
	if err := values.ValidatePhoneDigits(req.PhoneNumber); err != nil {
		return nil, errors.NewValidationError("INVALID_PHONE_NUMBER", err.Error())
	}

	status := req.Status
	switch status {
	case "":
		status = StatusActive
	case StatusActive, StatusInactive:
	default:
		return nil, errors.NewValidationError("INVALID_STATUS", "status must be active or inactive")
	}

	return &Entry{
		PhoneNumber:    values.NormalizePhone(req.PhoneNumber),
		DateAdded:      now.UTC(),
		Reason:         orDefault(req.Reason, DefaultReason),
		Source:         orDefault(req.Source, DefaultSource),
		AddedBy:        orDefault(req.AddedBy, DefaultAddedBy),
		Status:         status,
		Metadata:       MergeMetadata(nil, req.Metadata, now),
		ExpirationDate: req.ExpirationDate,
	}, nil
}

// MergeMetadata overlays incoming onto existing and stamps lastUpdated.
// Keys present only in existing are kept. Neither input is modified.
func MergeMetadata(existing, incoming map[string]any, now time.Time) map[string]any {
	merged := make(map[string]any, len(existing)+len(incoming)+1)
	for k, v := range existing {
		merged[k] = v
	}
	for k, v := range incoming {
		merged[k] = v
	}
	merged[MetadataLastUpdated] = now.UTC().Format(time.RFC3339Nano)
	return merged
}

// BulkError records why one row of a bulk add was rejected.
type BulkError struct {
	PhoneNumber string `json:"phone_number"`
	Error       string `json:"error"`
}

// BulkResult summarises a bulk add. Errors are in input order.
type BulkResult struct {
	TotalProcessed int         `json:"totalProcessed"`
	Successful     int         `json:"successful"`
	Failed         int         `json:"failed"`
	Errors         []BulkError `json:"errors"`
}

func orDefault(v, def string) string {
	if v == "" {
		return def
	}
	return v
}
