// Package rest exposes the compliance engine and the suppression list
// administration over HTTP.
package rest

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"reflect"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/davidleathers/compliance-gateway/internal/domain/compliance"
	"github.com/davidleathers/compliance-gateway/internal/domain/dnc"
	"github.com/davidleathers/compliance-gateway/internal/domain/errors"
	"github.com/davidleathers/compliance-gateway/internal/domain/values"
)

// ComplianceEngine runs compliance checks.
type ComplianceEngine interface {
	CheckPhoneNumber(ctx context.Context, phone string, lead *compliance.LeadContext) *compliance.Report
	CheckPhoneNumbers(ctx context.Context, phones []string) []*compliance.Report
	Checkers() []string
}

// SuppressionList is the administrative surface of the internal DNC list.
type SuppressionList interface {
	compliance.Checker
	AddToDNC(ctx context.Context, req dnc.AddRequest) (*dnc.Entry, error)
	BulkAddToDNC(ctx context.Context, reqs []dnc.AddRequest) dnc.BulkResult
}

// SuppressionDeleter hard-deletes suppression entries.
type SuppressionDeleter interface {
	Delete(ctx context.Context, phone string) error
}

// Handler serves the v1 API.
type Handler struct {
	engine    ComplianceEngine
	list      SuppressionList
	deleter   SuppressionDeleter
	validator *validator.Validate
	logger    *zap.Logger
	version   string
	health    map[string]func(context.Context) error
}

func NewHandler(engine ComplianceEngine, list SuppressionList, deleter SuppressionDeleter, logger *zap.Logger) *Handler {
	v := validator.New()
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" || name == "" {
			return f.Name
		}
		return name
	})

	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{
		engine:    engine,
		list:      list,
		deleter:   deleter,
		validator: v,
		logger:    logger,
		health:    make(map[string]func(context.Context) error),
	}
}

// WithVersion sets the version reported by /health.
func (h *Handler) WithVersion(version string) *Handler {
	h.version = version
	return h
}

// AddHealthCheck registers a dependency probe reported by /health.
func (h *Handler) AddHealthCheck(name string, check func(context.Context) error) {
	h.health[name] = check
}

func (h *Handler) handleCheck(w http.ResponseWriter, r *http.Request) {
	var req CheckRequest
	if err := h.decodeAndValidate(r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}
	if err := values.ValidatePhoneDigits(req.PhoneNumber); err != nil {
		h.writeError(w, r, errors.NewValidationError("INVALID_PHONE_NUMBER", err.Error()))
		return
	}

	report := h.engine.CheckPhoneNumber(r.Context(), req.PhoneNumber, req.Lead())
	writeJSON(w, http.StatusOK, report)
}

func (h *Handler) handleBatchCheck(w http.ResponseWriter, r *http.Request) {
	var req BatchCheckRequest
	if err := h.decodeAndValidate(r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}

	invalid := make(map[string]interface{})
	for i, phone := range req.PhoneNumbers {
		if err := values.ValidatePhoneDigits(phone); err != nil {
			invalid[fmt.Sprintf("phone_numbers[%d]", i)] = err.Error()
		}
	}
	if len(invalid) > 0 {
		h.writeError(w, r, errors.NewValidationError("INVALID_PHONE_NUMBER", "one or more phone numbers are invalid").WithDetails(invalid))
		return
	}

	reports := h.engine.CheckPhoneNumbers(r.Context(), req.PhoneNumbers)
	resp := BatchCheckResponse{Reports: reports, Total: len(reports)}
	for _, rep := range reports {
		if !rep.IsCompliant {
			resp.Blocked++
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) handleGetDNC(w http.ResponseWriter, r *http.Request) {
	phone, err := phoneParam(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	res, err := h.list.CheckNumber(r.Context(), phone, nil)
	if err != nil {
		h.logger.Warn("Suppression check failed",
			zap.String("request_id", RequestID(r.Context())),
			zap.String("policy", h.list.FailurePolicy().String()),
			zap.Error(err),
		)
	}
	settled := compliance.Settle(h.list.Name(), h.list.FailurePolicy(), values.NormalizePhone(phone), res, err)
	writeJSON(w, http.StatusOK, settled)
}

func (h *Handler) handleAddDNC(w http.ResponseWriter, r *http.Request) {
	var req dnc.AddRequest
	if err := h.decodeAndValidate(r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}

	entry, err := h.list.AddToDNC(r.Context(), req)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, entry)
}

func (h *Handler) handleBulkAddDNC(w http.ResponseWriter, r *http.Request) {
	var req BulkAddRequest
	if err := h.decodeAndValidate(r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}

	result := h.list.BulkAddToDNC(r.Context(), req.Entries)
	writeJSON(w, http.StatusOK, result)
}

func (h *Handler) handleDeleteDNC(w http.ResponseWriter, r *http.Request) {
	phone, err := phoneParam(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	if err := h.deleter.Delete(r.Context(), phone); err != nil {
		h.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func phoneParam(r *http.Request) (string, error) {
	phone, err := url.PathUnescape(chi.URLParam(r, "phone"))
	if err != nil {
		return "", errors.NewValidationError("INVALID_PHONE_NUMBER", "phone number is not properly escaped")
	}
	if err := values.ValidatePhoneDigits(phone); err != nil {
		return "", errors.NewValidationError("INVALID_PHONE_NUMBER", err.Error())
	}
	return phone, nil
}

// decodeAndValidate reads a JSON body into v and runs struct validation.
func (h *Handler) decodeAndValidate(r *http.Request, v any) error {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		var maxBytesErr *http.MaxBytesError
		switch {
		case stderrors.As(err, &maxBytesErr):
			return err
		case stderrors.Is(err, io.EOF):
			return errors.NewValidationError("EMPTY_BODY", "request body cannot be empty")
		default:
			return errors.NewValidationError("INVALID_JSON", "invalid JSON format").WithCause(err)
		}
	}
	if err := h.validator.Struct(v); err != nil {
		return formatValidationError(err)
	}
	return nil
}
