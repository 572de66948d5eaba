package httpx

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/odyssey-quotes/internal/shared"
)

func decodeProblem(t *testing.T, rr *httptest.ResponseRecorder) ProblemDetail {
	t.Helper()
	assert.Equal(t, "application/problem+json", rr.Header().Get("Content-Type"))
	var p ProblemDetail
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &p))
	return p
}

func TestRespondError(t *testing.T) {
	fe := shared.FieldErrors{}
	fe.Add("items[0].quantity", "must be greater than zero")

	cases := []struct {
		name   string
		err    error
		status int
	}{
		{"not found", fmt.Errorf("get quotation: %w", shared.ErrNotFound), http.StatusNotFound},
		{"validation", fmt.Errorf("create: %w", fe), http.StatusBadRequest},
		{"bare validation", shared.ErrValidation, http.StatusBadRequest},
		{"timeout", fmt.Errorf("reserve: %w", context.DeadlineExceeded), http.StatusServiceUnavailable},
		{"internal", errors.New("connection reset"), http.StatusInternalServerError},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rr := httptest.NewRecorder()
			RespondError(rr, tc.err)
			assert.Equal(t, tc.status, rr.Code)
			p := decodeProblem(t, rr)
			assert.Equal(t, tc.status, p.Status)
		})
	}
}

func TestRespondErrorCarriesFieldErrors(t *testing.T) {
	fe := shared.FieldErrors{}
	fe.Add("payment_plan.terms", "must add up to 100")
	rr := httptest.NewRecorder()
	RespondError(rr, fe)

	p := decodeProblem(t, rr)
	assert.Equal(t, map[string]string{"payment_plan.terms": "must add up to 100"}, p.Errors)
}

func TestInternalErrorHidesDetail(t *testing.T) {
	rr := httptest.NewRecorder()
	RespondError(rr, errors.New("pq: password authentication failed"))
	assert.NotContains(t, rr.Body.String(), "password")
}
