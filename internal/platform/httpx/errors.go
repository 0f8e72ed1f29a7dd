package httpx

import (
	"errors"
	"net/http"

	"github.com/tempora-app/tempora/internal/shared"
)

// RespondError maps domain errors to HTTP responses using RFC7807.
//
// Unauthenticated, forbidden and not-found are deliberately distinct
// statuses: conflating forbidden with not-found leaks resource existence
// one way and over-reveals denial reasons the other. Forbidden responses
// never carry a detail so the missing capability cannot be enumerated.
func RespondError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, shared.ErrUnauthenticated):
		Problem(w, http.StatusUnauthorized, "Unauthenticated", "")
	case errors.Is(err, shared.ErrForbidden), errors.Is(err, shared.ErrAccountLocked):
		Problem(w, http.StatusForbidden, "Forbidden", "")
	case errors.Is(err, shared.ErrNotFound):
		Problem(w, http.StatusNotFound, "Not Found", err.Error())
	case errors.Is(err, shared.ErrInvalidCredentials):
		Problem(w, http.StatusUnauthorized, "Invalid Credentials", err.Error())
	case errors.Is(err, shared.ErrTargetInvalid):
		Problem(w, http.StatusUnprocessableEntity, "Target Invalid", err.Error())
	case errors.Is(err, shared.ErrSessionConflict):
		Problem(w, http.StatusConflict, "Session Conflict", err.Error())
	case errors.Is(err, shared.ErrDuplicate):
		Problem(w, http.StatusConflict, "Duplicate", err.Error())
	default:
		Problem(w, http.StatusInternalServerError, "Internal Error", "")
	}
}
