package httpx

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/odyssey-erp/backoffice/internal/shared"
)

// StatusFor maps the domain error taxonomy to HTTP status codes.
func StatusFor(err error) int {
	switch {
	case errors.Is(err, shared.ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, shared.ErrInsufficientStock):
		return http.StatusConflict
	case errors.Is(err, shared.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, shared.ErrConflict):
		return http.StatusConflict
	case errors.Is(err, shared.ErrAuthorization):
		return http.StatusForbidden
	case errors.Is(err, shared.ErrUnauthenticated):
		return http.StatusUnauthorized
	default:
		return http.StatusInternalServerError
	}
}

// RespondError maps domain errors to HTTP responses using RFC7807.
func RespondError(w http.ResponseWriter, err error) {
	status := StatusFor(err)
	if status == http.StatusInternalServerError {
		Problem(w, status, "Internal Error", "")
		return
	}
	problem := ProblemDetail{
		Type:   problemType(err),
		Title:  http.StatusText(status),
		Status: status,
		Detail: err.Error(),
	}
	var stockErr *shared.InsufficientStockError
	if errors.As(err, &stockErr) {
		problem.Shortage = &Shortage{
			ItemID:    stockErr.ItemID,
			Item:      stockErr.Item,
			Requested: stockErr.Requested.String(),
			Available: stockErr.Available.String(),
			Shortfall: stockErr.Shortfall().String(),
		}
	}
	JSON(w, status, problem)
}

// Fail logs unexpected errors before responding. Expected domain errors are
// reported to the caller as-is.
func Fail(w http.ResponseWriter, r *http.Request, logger *slog.Logger, err error) {
	if StatusFor(err) == http.StatusInternalServerError && logger != nil {
		logger.Error("request failed",
			slog.String("method", r.Method),
			slog.String("path", r.URL.Path),
			slog.Any("error", err))
	}
	RespondError(w, err)
}

func problemType(err error) string {
	switch {
	case errors.Is(err, shared.ErrValidation):
		return "validation"
	case errors.Is(err, shared.ErrInsufficientStock):
		return "insufficient-stock"
	case errors.Is(err, shared.ErrNotFound):
		return "not-found"
	case errors.Is(err, shared.ErrConflict):
		return "conflict"
	case errors.Is(err, shared.ErrAuthorization):
		return "authorization"
	case errors.Is(err, shared.ErrUnauthenticated):
		return "unauthenticated"
	}
	return ""
}
