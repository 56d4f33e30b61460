package httpx

import (
	"errors"
	"net/http"

	"github.com/mizan-books/mizan/internal/shared"
)

// RespondError maps the engine's error taxonomy to RFC7807 responses. The
// wrapped message carries the specific reason (which account, which field),
// so the detail is always err.Error().
func RespondError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, shared.ErrNotFound):
		Problem(w, http.StatusNotFound, "Not Found", err.Error())
	case errors.Is(err, shared.ErrValidation):
		Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
	case errors.Is(err, shared.ErrUnbalancedEntry):
		Problem(w, http.StatusUnprocessableEntity, "Unbalanced Entry", err.Error())
	case errors.Is(err, shared.ErrInactiveAccount):
		Problem(w, http.StatusUnprocessableEntity, "Inactive Account", err.Error())
	case errors.Is(err, shared.ErrAlreadyFiled),
		errors.Is(err, shared.ErrAlreadyProcessed),
		errors.Is(err, shared.ErrConflict):
		Problem(w, http.StatusConflict, "Conflict", err.Error())
	default:
		Problem(w, http.StatusInternalServerError, "Internal Error", "")
	}
}
