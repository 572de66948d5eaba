package quotations

import (
	"bytes"
	"encoding/json"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/odyssey-quotes/internal/platform/db"
	"github.com/odyssey-erp/odyssey-quotes/internal/platform/httpx"
	"github.com/odyssey-erp/odyssey-quotes/internal/shared"
)

const createBody = `{
	"enquiry_id": 7,
	"quotation_date": "2026-03-31",
	"valid_until": "2026-04-30",
	"customer_name": "Acme Process Pvt Ltd",
	"items": [
		{"description": "Shell and tube heat exchanger", "quantity": 1, "unit_price": 2000000},
		{"description": "Erection and commissioning", "quantity": 1, "unit_price": "300000"}
	],
	"terms": {"transport_cost": 50000, "insurance_cost": 25000},
	"payment_plan": {"kind": "CUSTOM", "terms": "30-30-40"}
}`

func newTestRouter(f *fixture) http.Handler {
	r := chi.NewRouter()
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			actor := shared.Actor{ID: req.Header.Get("X-Actor-ID"), Name: req.Header.Get("X-Actor-Name")}
			next.ServeHTTP(w, req.WithContext(shared.ContextWithActor(req.Context(), actor)))
		})
	})
	r.Route("/sales", NewHandler(nil, f.svc).MountRoutes)
	return r
}

func do(t *testing.T, h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Actor-ID", "u-42")
	req.Header.Set("X-Actor-Name", "Priya")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decodeProblem(t *testing.T, rec *httptest.ResponseRecorder) httpx.ProblemDetail {
	t.Helper()
	assert.Equal(t, "application/problem+json", rec.Header().Get("Content-Type"))
	var p httpx.ProblemDetail
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &p))
	return p
}

func TestHandlerCreateAndShow(t *testing.T) {
	f := newFixture(t)
	h := newTestRouter(f)

	rec := do(t, h, http.MethodPost, "/sales/quotations", createBody)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	var created map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &created))
	assert.Equal(t, "QT/25-26/0001", created["quotation_number"])
	assert.Equal(t, "2444000", created["total_value"])
	assert.Equal(t, "DRAFT", created["status"])
	assert.Equal(t, "u-42 (Priya)", created["created_by"])

	rec = do(t, h, http.MethodGet, "/sales/quotations/1", "")
	require.Equal(t, http.StatusOK, rec.Code)

	rec = do(t, h, http.MethodGet, "/sales/quotations/404", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	decodeProblem(t, rec)

	rec = do(t, h, http.MethodGet, "/sales/quotations/abc", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandlerValidationProblem(t *testing.T) {
	f := newFixture(t)
	h := newTestRouter(f)

	rec := do(t, h, http.MethodPost, "/sales/quotations", `{"quotation_date": "31/03/2026", "items": []}`)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	p := decodeProblem(t, rec)
	assert.Equal(t, "Validation Failed", p.Title)
	assert.Contains(t, p.Errors, "quotation_date")
	assert.Contains(t, p.Errors, "customer_name")
	assert.Contains(t, p.Errors, "items")
	assert.Contains(t, p.Errors, "enquiry_id")

	rec = do(t, h, http.MethodPost, "/sales/quotations", `{"unknown": true}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "Malformed Request", decodeProblem(t, rec).Title)
}

func TestHandlerNumberConflict(t *testing.T) {
	f := newFixture(t)
	h := newTestRouter(f)

	body := strings.Replace(createBody, `"enquiry_id": 7,`, `"enquiry_id": 7, "quotation_number": "QT-100",`, 1)
	require.Equal(t, http.StatusCreated, do(t, h, http.MethodPost, "/sales/quotations", body).Code)

	rec := do(t, h, http.MethodPost, "/sales/quotations", body)
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "Quotation Number Taken", decodeProblem(t, rec).Title)

	rec = do(t, h, http.MethodGet, "/sales/quotation-numbers/qt-100/availability", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"quotation_number": "QT-100", "available": false}`, rec.Body.String())

	rec = do(t, h, http.MethodGet, "/sales/quotation-numbers/QT%2F25-26%2F0009/availability", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"quotation_number": "QT/25-26/0009", "available": true}`, rec.Body.String())

	rec = do(t, h, http.MethodPost, "/sales/quotation-numbers/generate", `{"quotation_date": "2026-03-31"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"quotation_number": "QT/25-26/0001", "available": true}`, rec.Body.String())
}

func TestHandlerTransitionProblems(t *testing.T) {
	f := newFixture(t)
	h := newTestRouter(f)
	require.Equal(t, http.StatusCreated, do(t, h, http.MethodPost, "/sales/quotations", createBody).Code)

	rec := do(t, h, http.MethodPost, "/sales/quotations/1/transitions", `{"event": "WIN"}`)
	require.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	p := decodeProblem(t, rec)
	assert.Equal(t, []string{"PUBLISH"}, p.NextEvents)

	rec = do(t, h, http.MethodPost, "/sales/quotations/1/transitions", `{"event": "PUBLISH"}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = do(t, h, http.MethodPost, "/sales/quotations/1/transitions", `{"event": "LOSE"}`)
	require.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	p = decodeProblem(t, rec)
	assert.Contains(t, p.Errors, "lost_reason")
	assert.Contains(t, p.NextEvents, "LOSE")

	rec = do(t, h, http.MethodPost, "/sales/quotations/1/transitions", `{"event": "LOSE", "lost_reason": "PRICE"}`)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = do(t, h, http.MethodPut, "/sales/quotations/1", createBody)
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)

	rec = do(t, h, http.MethodGet, "/sales/quotations/1/transitions", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var history struct {
		Data []map[string]any `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &history))
	require.Len(t, history.Data, 2)
	assert.Equal(t, "LOST", history.Data[1]["to"])
	assert.Equal(t, "2444000", history.Data[1]["value_snapshot"])
}

func TestHandlerMultipartReceivePO(t *testing.T) {
	f := newFixture(t)
	h := newTestRouter(f)
	require.Equal(t, http.StatusCreated, do(t, h, http.MethodPost, "/sales/quotations", createBody).Code)
	require.Equal(t, http.StatusOK, do(t, h, http.MethodPost, "/sales/quotations/1/transitions", `{"event": "PUBLISH"}`).Code)

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	require.NoError(t, mw.WriteField("payload", `{"event": "RECEIVE_PO", "purchase_order": {"number": "PO/7781", "value": "2400000"}}`))
	part, err := mw.CreateFormFile("file", "po.pdf")
	require.NoError(t, err)
	_, err = part.Write([]byte("%PDF-1.4"))
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/sales/quotations/1/transitions", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var q Quotation
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &q))
	require.NotNil(t, q.PurchaseOrder)
	assert.Equal(t, "PO/7781", q.PurchaseOrder.Number)
	assert.NotEmpty(t, q.PurchaseOrder.AttachmentRef)
	assert.Len(t, f.store.Keys(), 1)

	var again bytes.Buffer
	mw = multipart.NewWriter(&again)
	part, err = mw.CreateFormFile("file", "po-copy.pdf")
	require.NoError(t, err)
	_, _ = part.Write([]byte("%PDF"))
	require.NoError(t, mw.Close())
	req = httptest.NewRequest(http.MethodPost, "/sales/quotations/1/purchase-order/attachment", &again)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
}

func TestHandlerDocuments(t *testing.T) {
	f := newFixture(t)
	h := newTestRouter(f)
	require.Equal(t, http.StatusCreated, do(t, h, http.MethodPost, "/sales/quotations", createBody).Code)

	rec := do(t, h, http.MethodGet, "/sales/quotations/1/document", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"number":"QT/25-26/0001"`)

	rec = do(t, h, http.MethodGet, "/sales/quotations/1/document.pdf", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/pdf", rec.Header().Get("Content-Type"))
	assert.Equal(t, `attachment; filename="QT-25-26-0001.pdf"`, rec.Header().Get("Content-Disposition"))
	assert.Equal(t, "%PDF-1.7", rec.Body.String())

	rec = do(t, h, http.MethodGet, "/sales/quotations/1/document.xlsx", "")
	assert.Equal(t, http.StatusNotImplemented, rec.Code)
}

func TestHandlerStatelessEndpoints(t *testing.T) {
	f := newFixture(t)
	h := newTestRouter(f)

	rec := do(t, h, http.MethodPost, "/sales/totals/preview", `{
		"items": [{"description": "Exchanger", "quantity": 2, "unit_price": 1000000}, {"description": "Service", "quantity": 1, "unit_price": 300000}],
		"terms": {"transport_cost": 50000, "insurance_cost": 25000}
	}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var totals map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &totals))
	assert.Equal(t, "₹24,44,000.00", totals["grand_total_text"])

	rec = do(t, h, http.MethodPost, "/sales/payment-plans/parse", `{"terms": "50-50", "grand_total": 1000}`)
	require.Equal(t, http.StatusOK, rec.Code)
	var plan PlanView
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &plan))
	assert.True(t, plan.Valid)
	require.Len(t, plan.Milestones, 2)
	assert.Equal(t, "₹500.00", plan.Milestones[1].AmountText)

	rec = do(t, h, http.MethodGet, "/sales/money/format?amount=1234567.5&currency=usd", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var m moneyResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &m))
	assert.Equal(t, "USD", m.Currency)
	assert.Equal(t, "$1,234,567.50", m.Formatted)

	rec = do(t, h, http.MethodGet, "/sales/money/format?amount=abc", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandlerConcurrentUpdateIsConflict(t *testing.T) {
	f := newFixture(t)
	h := newTestRouter(f)
	race := fmt.Errorf("%w: %w", db.ErrSerialization, &pgconn.PgError{Code: "40P01"})
	f.repo.txFailures = []error{race, race, race}

	rec := do(t, h, http.MethodPost, "/sales/quotations", createBody)
	require.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "Concurrent Update", decodeProblem(t, rec).Title)
}

func TestHandlerFormatMoneyRejectsOutOfRange(t *testing.T) {
	f := newFixture(t)
	h := newTestRouter(f)

	for query, want := range map[string]string{
		"amount=1e200000":          "is out of range",
		"amount=-1e30000000":       "is out of range",
		"amount=1e-3000000":        "is out of range",
		"amount=10000000000000000": "is out of range",
		"amount=1.12345":           "supports at most 4 decimal places",
	} {
		rec := do(t, h, http.MethodGet, "/sales/money/format?"+query, "")
		require.Equal(t, http.StatusBadRequest, rec.Code, query)
		assert.Equal(t, want, decodeProblem(t, rec).Errors["amount"], query)
	}

	rec := do(t, h, http.MethodGet, "/sales/money/format?amount=-1234.5&currency=usd", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var m moneyResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &m))
	assert.Equal(t, "-$1,234.50", m.Formatted)
}

func TestHandlerListFilters(t *testing.T) {
	f := newFixture(t)
	h := newTestRouter(f)
	for i := 0; i < 3; i++ {
		require.Equal(t, http.StatusCreated, do(t, h, http.MethodPost, "/sales/quotations", createBody).Code)
	}

	rec := do(t, h, http.MethodGet, "/sales/quotations?per_page=2&page=2", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var page listResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &page))
	assert.Len(t, page.Data, 1)
	assert.Equal(t, 3, page.Pagination.Total)

	rec = do(t, h, http.MethodGet, "/sales/quotations?status=won", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `[]`, string(mustField(t, rec.Body.Bytes(), "data")))

	rec = do(t, h, http.MethodGet, "/sales/quotations?date_from=yesterday", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func mustField(t *testing.T, body []byte, field string) json.RawMessage {
	t.Helper()
	var m map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(body, &m))
	return m[field]
}
