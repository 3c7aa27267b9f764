package rest

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"net/http"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/davidleathers/compliance-gateway/internal/domain/errors"
)

// writeJSON writes v with the given status.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError maps err to a status code and the standard error body.
// Internal errors never leak their cause to the client.
func (h *Handler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status, detail := classifyError(err)
	detail.RequestID = RequestID(r.Context())

	if status >= http.StatusInternalServerError {
		h.logger.Error("Request failed",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.String("request_id", detail.RequestID),
			zap.Error(err),
		)
	}
	writeJSON(w, status, ErrorBody{Error: detail})
}

func classifyError(err error) (int, ErrorDetail) {
	var appErr *errors.AppError
	if stderrors.As(err, &appErr) {
		detail := ErrorDetail{Code: appErr.Code, Message: appErr.Message, Details: appErr.Details}
		if appErr.Type == errors.ErrorTypeInternal {
			detail.Details = nil
		}
		return appErr.StatusCode, detail
	}

	var maxBytesErr *http.MaxBytesError
	if stderrors.As(err, &maxBytesErr) {
		return http.StatusRequestEntityTooLarge, ErrorDetail{
			Code:    "BODY_TOO_LARGE",
			Message: fmt.Sprintf("request body exceeds %d bytes", maxBytesErr.Limit),
		}
	}

	if stderrors.Is(err, context.DeadlineExceeded) {
		return http.StatusGatewayTimeout, ErrorDetail{Code: "REQUEST_TIMEOUT", Message: "Request timed out"}
	}

	return http.StatusInternalServerError, ErrorDetail{Code: "INTERNAL_ERROR", Message: "An internal error occurred"}
}

// formatValidationError turns validator failures into a field-keyed
// validation error.
func formatValidationError(err error) error {
	var validationErrors validator.ValidationErrors
	if !stderrors.As(err, &validationErrors) {
		return errors.NewValidationError("VALIDATION_FAILED", "request validation failed").WithCause(err)
	}

	details := make(map[string]interface{}, len(validationErrors))
	for _, fe := range validationErrors {
		var msg string
		switch fe.Tag() {
		case "required":
			msg = "This field is required"
		case "len":
			msg = fmt.Sprintf("Must be exactly %s characters", fe.Param())
		case "alpha":
			msg = "Must contain only letters"
		case "oneof":
			msg = fmt.Sprintf("Must be one of: %s", fe.Param())
		case "max":
			msg = fmt.Sprintf("Must contain at most %s items", fe.Param())
		case "min":
			msg = fmt.Sprintf("Must contain at least %s items", fe.Param())
		default:
			msg = fmt.Sprintf("Invalid value for field %s", fe.Field())
		}
		details[fe.Field()] = msg
	}
	return errors.NewValidationError("VALIDATION_FAILED", "request validation failed").WithDetails(details)
}
