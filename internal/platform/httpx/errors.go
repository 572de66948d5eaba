package httpx

import (
	"context"
	"errors"
	"net/http"

	"github.com/odyssey-erp/odyssey-quotes/internal/shared"
)

// RespondError maps shared sentinel errors to HTTP responses using RFC7807.
// Domain packages with their own sentinels map them before falling back here.
func RespondError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, shared.ErrNotFound):
		Problem(w, http.StatusNotFound, "Not Found", err.Error())
	case errors.Is(err, shared.ErrValidation):
		p := ProblemDetail{Title: "Validation Failed", Status: http.StatusBadRequest, Detail: shared.ErrValidation.Error()}
		if fe, ok := shared.AsFieldErrors(err); ok {
			p.Errors = fe
		} else {
			p.Detail = err.Error()
		}
		WriteProblem(w, p)
	case errors.Is(err, context.DeadlineExceeded):
		Problem(w, http.StatusServiceUnavailable, "Timeout", "the operation did not complete in time; its outcome is unknown")
	default:
		Problem(w, http.StatusInternalServerError, "Internal Error", "")
	}
}
