package quotations

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/odyssey-quotes/internal/money"
	"github.com/odyssey-erp/odyssey-quotes/internal/platform/db"
	"github.com/odyssey-erp/odyssey-quotes/internal/platform/httpx"
	"github.com/odyssey-erp/odyssey-quotes/internal/platform/storage"
	"github.com/odyssey-erp/odyssey-quotes/internal/sales/lifecycle"
	"github.com/odyssey-erp/odyssey-quotes/internal/sales/numbering"
	"github.com/odyssey-erp/odyssey-quotes/internal/sales/pricing"
	"github.com/odyssey-erp/odyssey-quotes/internal/shared"
)

const (
	contentTypePDF  = "application/pdf"
	contentTypeXLSX = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
)

// Handler serves the quotation JSON API.
type Handler struct {
	logger  *slog.Logger
	service *Service
}

// NewHandler builds the handler.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{logger: logger, service: service}
}

type listResponse struct {
	Data       []Quotation       `json:"data"`
	Pagination shared.Pagination `json:"pagination"`
}

type availabilityResponse struct {
	Number    string `json:"quotation_number"`
	Available bool   `json:"available"`
}

type suggestRequest struct {
	QuotationDate string `json:"quotation_date,omitempty"`
}

type moneyResponse struct {
	Amount    string `json:"amount"`
	Currency  string `json:"currency"`
	Formatted string `json:"formatted"`
	InWords   string `json:"in_words"`
}

func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	var req QuotationRequest
	if !h.decode(w, r, &req) {
		return
	}
	q, err := h.service.Create(r.Context(), req, shared.ActorFromContext(r.Context()))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, q)
}

func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	req, err := parseListRequest(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	items, page, err := h.service.List(r.Context(), req)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	if items == nil {
		items = []Quotation{}
	}
	httpx.JSON(w, http.StatusOK, listResponse{Data: items, Pagination: page})
}

func (h *Handler) Show(w http.ResponseWriter, r *http.Request) {
	id, ok := h.id(w, r)
	if !ok {
		return
	}
	q, err := h.service.Get(r.Context(), id)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, q)
}

func (h *Handler) Update(w http.ResponseWriter, r *http.Request) {
	id, ok := h.id(w, r)
	if !ok {
		return
	}
	var req QuotationRequest
	if !h.decode(w, r, &req) {
		return
	}
	q, err := h.service.UpdateDraft(r.Context(), id, req, shared.ActorFromContext(r.Context()))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, q)
}

func (h *Handler) Revise(w http.ResponseWriter, r *http.Request) {
	id, ok := h.id(w, r)
	if !ok {
		return
	}
	var req QuotationRequest
	if !h.decode(w, r, &req) {
		return
	}
	q, err := h.service.Revise(r.Context(), id, req, shared.ActorFromContext(r.Context()))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, q)
}

// Transition accepts JSON, or multipart with a "payload" JSON field and an
// optional "file" carrying the PO document.
func (h *Handler) Transition(w http.ResponseWriter, r *http.Request) {
	id, ok := h.id(w, r)
	if !ok {
		return
	}
	var req TransitionRequest
	var file *Upload
	if strings.HasPrefix(r.Header.Get("Content-Type"), "multipart/form-data") {
		upload, err := h.readMultipart(w, r, false)
		if err != nil {
			h.writeError(w, r, err)
			return
		}
		if err := json.Unmarshal([]byte(r.FormValue("payload")), &req); err != nil {
			h.writeError(w, r, shared.FieldErrors{"payload": "must be a JSON transition request"})
			return
		}
		file = upload
	} else if !h.decode(w, r, &req) {
		return
	}
	q, err := h.service.Transition(r.Context(), id, req, file, shared.ActorFromContext(r.Context()))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, q)
}

func (h *Handler) Transitions(w http.ResponseWriter, r *http.Request) {
	id, ok := h.id(w, r)
	if !ok {
		return
	}
	records, err := h.service.Transitions(r.Context(), id)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	if records == nil {
		records = []lifecycle.Record{}
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"data": records})
}

func (h *Handler) AttachPurchaseOrder(w http.ResponseWriter, r *http.Request) {
	id, ok := h.id(w, r)
	if !ok {
		return
	}
	upload, err := h.readMultipart(w, r, true)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	q, err := h.service.AttachPurchaseOrder(r.Context(), id, *upload, shared.ActorFromContext(r.Context()))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, q)
}

func (h *Handler) Document(w http.ResponseWriter, r *http.Request) {
	id, ok := h.id(w, r)
	if !ok {
		return
	}
	doc, err := h.service.Document(r.Context(), id)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, doc)
}

func (h *Handler) DocumentPDF(w http.ResponseWriter, r *http.Request) {
	id, ok := h.id(w, r)
	if !ok {
		return
	}
	data, name, err := h.service.RenderPDF(r.Context(), id)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	httpx.Binary(w, contentTypePDF, name, data)
}

func (h *Handler) DocumentXLSX(w http.ResponseWriter, r *http.Request) {
	id, ok := h.id(w, r)
	if !ok {
		return
	}
	data, name, err := h.service.RenderXLSX(r.Context(), id)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	httpx.Binary(w, contentTypeXLSX, name, data)
}

func (h *Handler) Availability(w http.ResponseWriter, r *http.Request) {
	number, err := url.PathUnescape(chi.URLParam(r, "number"))
	if err != nil {
		h.writeError(w, r, shared.FieldErrors{"quotation_number": "is not a valid path segment"})
		return
	}
	available, err := h.service.CheckAvailability(r.Context(), number)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	normalized, _ := numbering.Normalize(number)
	httpx.JSON(w, http.StatusOK, availabilityResponse{Number: normalized, Available: available})
}

func (h *Handler) SuggestNumber(w http.ResponseWriter, r *http.Request) {
	var req suggestRequest
	if r.ContentLength != 0 && !h.decode(w, r, &req) {
		return
	}
	var date time.Time
	if req.QuotationDate != "" {
		d, err := time.Parse(dateLayout, req.QuotationDate)
		if err != nil {
			h.writeError(w, r, shared.FieldErrors{"quotation_date": "must be a date in YYYY-MM-DD format"})
			return
		}
		date = d
	}
	number, err := h.service.SuggestNumber(r.Context(), date)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, availabilityResponse{Number: number, Available: true})
}

func (h *Handler) PreviewTotals(w http.ResponseWriter, r *http.Request) {
	var req TotalsPreviewRequest
	if !h.decode(w, r, &req) {
		return
	}
	view, err := h.service.PreviewTotals(req)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, view)
}

func (h *Handler) ParsePlan(w http.ResponseWriter, r *http.Request) {
	var req PlanParseRequest
	if !h.decode(w, r, &req) {
		return
	}
	view, err := h.service.ParsePlan(req)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, view)
}

func (h *Handler) FormatMoney(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	amount, err := decimal.NewFromString(strings.TrimSpace(query.Get("amount")))
	if err != nil {
		h.writeError(w, r, shared.FieldErrors{"amount": "must be a decimal number"})
		return
	}
	if msg := pricing.AmountProblem(amount.Abs()); msg != "" {
		h.writeError(w, r, shared.FieldErrors{"amount": msg})
		return
	}
	currency, ok := currencyOf(query.Get("currency"))
	if !ok {
		h.writeError(w, r, shared.FieldErrors{"currency": "is not an ISO 4217 currency code"})
		return
	}
	httpx.JSON(w, http.StatusOK, moneyResponse{
		Amount:    amount.String(),
		Currency:  currency,
		Formatted: money.Format(amount, currency),
		InWords:   money.AmountInWords(amount, currency),
	})
}

func (h *Handler) id(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		httpx.Problem(w, http.StatusBadRequest, "Invalid ID", "id must be a positive integer")
		return 0, false
	}
	return id, true
}

func (h *Handler) decode(w http.ResponseWriter, r *http.Request, target any) bool {
	if err := httpx.DecodeJSON(r, target); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Malformed Request", err.Error())
		return false
	}
	return true
}

// readMultipart reads the "file" part. A missing file is an error only when
// required is set.
func (h *Handler) readMultipart(w http.ResponseWriter, r *http.Request, required bool) (*Upload, error) {
	r.Body = http.MaxBytesReader(w, r.Body, maxAttachmentBytes+1<<20)
	if err := r.ParseMultipartForm(maxAttachmentBytes); err != nil {
		return nil, shared.FieldErrors{"file": "must be a multipart upload of at most 10 MB"}
	}
	f, header, err := r.FormFile("file")
	if errors.Is(err, http.ErrMissingFile) {
		if required {
			return nil, shared.FieldErrors{"file": "is required"}
		}
		return nil, nil
	}
	if err != nil {
		return nil, shared.FieldErrors{"file": "could not be read"}
	}
	defer f.Close()
	data, err := io.ReadAll(f)
	if err != nil {
		return nil, shared.FieldErrors{"file": "could not be read"}
	}
	return &Upload{
		Filename:    header.Filename,
		ContentType: header.Header.Get("Content-Type"),
		Data:        data,
	}, nil
}

func (h *Handler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	var te *TransitionError
	switch {
	case errors.Is(err, numbering.ErrConflict):
		httpx.Problem(w, http.StatusConflict, "Quotation Number Taken", err.Error())
	case db.IsRetryable(err):
		httpx.Problem(w, http.StatusConflict, "Concurrent Update", "the quotation changed while saving; retry the request")
	case errors.Is(err, numbering.ErrExhausted):
		httpx.Problem(w, http.StatusServiceUnavailable, "Numbering Unavailable", err.Error())
	case errors.As(err, &te) && !errors.Is(err, shared.ErrValidation):
		p := httpx.ProblemDetail{Title: "Transition Rejected", Status: http.StatusUnprocessableEntity, Detail: err.Error()}
		for _, ev := range te.NextEvents() {
			p.NextEvents = append(p.NextEvents, string(ev))
		}
		httpx.WriteProblem(w, p)
	case errors.As(err, &te):
		p := httpx.ProblemDetail{Title: "Transition Requirements Not Met", Status: http.StatusUnprocessableEntity, Detail: lifecycle.ErrGuardFailed.Error()}
		if fe, ok := shared.AsFieldErrors(err); ok {
			p.Errors = fe
		}
		for _, ev := range te.NextEvents() {
			p.NextEvents = append(p.NextEvents, string(ev))
		}
		httpx.WriteProblem(w, p)
	case errors.Is(err, ErrNotEditable), errors.Is(err, lifecycle.ErrNoPendingAttachment):
		httpx.Problem(w, http.StatusUnprocessableEntity, "Not Allowed In Current Status", err.Error())
	case errors.Is(err, storage.ErrNotFound):
		httpx.Problem(w, http.StatusNotFound, "Not Found", err.Error())
	case errors.Is(err, ErrRendererUnavailable):
		httpx.Problem(w, http.StatusNotImplemented, "Renderer Unavailable", err.Error())
	case errors.Is(err, shared.ErrValidation), errors.Is(err, shared.ErrNotFound):
		h.logger.Debug("request rejected", slog.String("path", r.URL.Path), slog.Any("error", err))
		httpx.RespondError(w, err)
	default:
		h.logger.Error("quotation request failed", slog.String("path", r.URL.Path), slog.Any("error", err))
		httpx.RespondError(w, err)
	}
}

func parseListRequest(r *http.Request) (ListRequest, error) {
	query := r.URL.Query()
	fe := shared.FieldErrors{}
	var req ListRequest
	if v := query.Get("enquiry_id"); v != "" {
		if id, err := strconv.ParseInt(v, 10, 64); err == nil && id > 0 {
			req.EnquiryID = &id
		} else {
			fe.Add("enquiry_id", "must be a positive integer")
		}
	}
	if v := query.Get("status"); v != "" {
		status := lifecycle.Status(strings.ToUpper(v))
		req.Status = &status
	}
	for _, p := range []struct {
		name string
		dst  **time.Time
	}{{"date_from", &req.DateFrom}, {"date_to", &req.DateTo}} {
		if v := query.Get(p.name); v != "" {
			d, err := time.Parse(dateLayout, v)
			if err != nil {
				fe.Add(p.name, "must be a date in YYYY-MM-DD format")
				continue
			}
			*p.dst = &d
		}
	}
	req.Page, _ = strconv.Atoi(query.Get("page"))
	req.PerPage, _ = strconv.Atoi(query.Get("per_page"))
	return req, fe.Err()
}
