package httpapi

import (
	"net/http"

	"github.com/dlalloyd/adaptive-kernel/internal/apperr"
)

// statusFor maps an apperr kind to its HTTP status once, centrally,
// rather than per handler. Conflicts on the session routes (a completed
// session, a duplicate answer) are reported as 400.
func statusFor(err error) int {
	switch {
	case apperr.Is(err, apperr.ErrInvalidArgument):
		return http.StatusBadRequest
	case apperr.Is(err, apperr.ErrNotFound):
		return http.StatusNotFound
	case apperr.Is(err, apperr.ErrConflict):
		return http.StatusBadRequest
	case apperr.Is(err, apperr.ErrNumeric):
		return http.StatusInternalServerError
	default:
		return http.StatusInternalServerError
	}
}
