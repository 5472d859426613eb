package httpx

import (
	"errors"
	"net/http"

	"github.com/meridian-erp/meridian-erp/internal/shared"
)

// Error maps the shared error taxonomy onto HTTP statuses and writes the
// error envelope. Unknown errors become an opaque 500 so internals never leak.
func Error(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, shared.ErrValidation):
		Fail(w, http.StatusBadRequest, "validation_error", err.Error())
	case errors.Is(err, shared.ErrNotFound):
		Fail(w, http.StatusNotFound, "not_found", err.Error())
	case errors.Is(err, shared.ErrDuplicate):
		Fail(w, http.StatusConflict, "duplicate", err.Error())
	case errors.Is(err, shared.ErrInsufficientStock):
		Fail(w, http.StatusConflict, "insufficient_stock", err.Error())
	case errors.Is(err, shared.ErrIdempotencyConflict):
		Fail(w, http.StatusConflict, "already_processed", err.Error())
	case errors.Is(err, shared.ErrBusinessRule):
		Fail(w, http.StatusUnprocessableEntity, "business_rule", err.Error())
	default:
		Fail(w, http.StatusInternalServerError, "internal", "internal server error")
	}
}
