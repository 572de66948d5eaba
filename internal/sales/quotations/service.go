package quotations

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/odyssey-quotes/internal/money"
	"github.com/odyssey-erp/odyssey-quotes/internal/platform/db"
	"github.com/odyssey-erp/odyssey-quotes/internal/platform/storage"
	"github.com/odyssey-erp/odyssey-quotes/internal/sales/document"
	"github.com/odyssey-erp/odyssey-quotes/internal/sales/lifecycle"
	"github.com/odyssey-erp/odyssey-quotes/internal/sales/numbering"
	"github.com/odyssey-erp/odyssey-quotes/internal/sales/paymentplan"
	"github.com/odyssey-erp/odyssey-quotes/internal/sales/pricing"
	"github.com/odyssey-erp/odyssey-quotes/internal/shared"
)

var (
	// ErrNotEditable rejects content changes in the current status.
	ErrNotEditable = errors.New("quotation cannot be edited in its current status")
	// ErrRendererUnavailable is returned when no renderer is configured for a format.
	ErrRendererUnavailable = errors.New("document renderer not configured")
)

const (
	auditEntity          = "quotation"
	maxAttachmentBytes   = 10 << 20
	generateTxAttempts   = 3
	purchaseOrderPrefix  = "purchase-orders"
	renderedDocumentPath = "quotations"
)

// Renderer turns a laid out document into file bytes.
type Renderer interface {
	Render(ctx context.Context, doc document.PrintableDocument) ([]byte, error)
}

// RenderEnqueuer schedules background PDF rendering.
type RenderEnqueuer interface {
	EnqueueRenderPDF(ctx context.Context, quotationID int64) error
}

// Observer receives business events for metrics.
type Observer interface {
	TransitionApplied(from, to string)
	DocumentRendered(format string)
}

// TransitionError is a rejected lifecycle event. It carries the status the
// quotation was in so callers can list what is allowed instead.
type TransitionError struct {
	Status lifecycle.Status
	Err    error
}

func (e *TransitionError) Error() string { return e.Err.Error() }

func (e *TransitionError) Unwrap() error { return e.Err }

// NextEvents lists the events valid from the quotation's status.
func (e *TransitionError) NextEvents() []lifecycle.Event {
	return lifecycle.NextEvents(e.Status)
}

// Dependencies wires a Service. Storage, renderers, Jobs and Metrics are
// optional.
type Dependencies struct {
	Repo          Repository
	Registry      *numbering.Registry
	Storage       storage.Store
	PDF           Renderer
	XLSX          Renderer
	Jobs          RenderEnqueuer
	Metrics       Observer
	Logger        *slog.Logger
	Document      document.Options
	RenderOnClose bool
	Clock         func() time.Time
}

// Service orchestrates quotation business logic.
type Service struct {
	repo          Repository
	registry      *numbering.Registry
	storage       storage.Store
	pdf           Renderer
	xlsx          Renderer
	jobs          RenderEnqueuer
	metrics       Observer
	logger        *slog.Logger
	docOpts       document.Options
	renderOnClose bool
	now           func() time.Time
	validate      *validator.Validate
}

// NewService constructs the service.
func NewService(deps Dependencies) *Service {
	s := &Service{
		repo:          deps.Repo,
		registry:      deps.Registry,
		storage:       deps.Storage,
		pdf:           deps.PDF,
		xlsx:          deps.XLSX,
		jobs:          deps.Jobs,
		metrics:       deps.Metrics,
		logger:        deps.Logger,
		docOpts:       deps.Document,
		renderOnClose: deps.RenderOnClose,
		now:           deps.Clock,
		validate:      newValidator(),
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	if s.now == nil {
		s.now = time.Now
	}
	return s
}

// Create validates and stores a new DRAFT quotation. A supplied number is
// reserved as is; otherwise the next one is generated.
func (s *Service) Create(ctx context.Context, req QuotationRequest, actor shared.Actor) (Quotation, error) {
	c, err := parseContent(s.validate, req)
	if req.EnquiryID <= 0 {
		fe := shared.FieldErrors{}
		if m, ok := shared.AsFieldErrors(err); ok {
			fe.Merge("", m)
		} else if err != nil {
			return Quotation{}, err
		}
		fe.Add("enquiry_id", "is required")
		err = fe
	}
	if err != nil {
		return Quotation{}, err
	}

	now := s.now().UTC()
	q := Quotation{
		EnquiryID: req.EnquiryID,
		Status:    lifecycle.StatusDraft,
		CreatedBy: actor.Label(),
		CreatedAt: now,
		UpdatedAt: now,
	}
	c.applyTo(&q)
	q.applyTotals()

	candidate := strings.TrimSpace(req.QuotationNumber)
	for attempt := 1; ; attempt++ {
		err = s.repo.WithTx(ctx, func(ctx context.Context, repo Repository) error {
			var number string
			var err error
			if candidate != "" {
				number, err = s.registry.ReserveWith(ctx, repo.Numbers(), candidate, actor.Label())
			} else {
				number, err = s.registry.GenerateWith(ctx, repo.Numbers(), q.QuotationDate, actor.Label())
			}
			if err != nil {
				return err
			}
			q.Number = number
			id, err := repo.Insert(ctx, q)
			if err != nil {
				return err
			}
			q.ID = id
			return repo.RecordAudit(ctx, s.audit(actor, "quotation.created", id, map[string]any{
				"quotation_number": number,
				"enquiry_id":       q.EnquiryID,
				"total_value":      q.TotalValue.String(),
			}))
		})
		if err == nil || attempt >= generateTxAttempts || !retryCreate(err, candidate) {
			break
		}
		s.logger.Debug("create lost a race, retrying", slog.Int("attempt", attempt), slog.Any("error", err))
	}
	if err != nil {
		return Quotation{}, err
	}
	s.logger.Info("quotation created", slog.Int64("id", q.ID), slog.String("number", q.Number), slog.String("actor", actor.Label()))
	return q, nil
}

// retryCreate reports whether a failed create transaction may run again.
// Serialization failures always may; a number conflict only when the number
// was generated.
func retryCreate(err error, candidate string) bool {
	if db.IsRetryable(err) {
		return true
	}
	return candidate == "" && errors.Is(err, numbering.ErrConflict)
}

// UpdateDraft replaces the content of a DRAFT quotation.
func (s *Service) UpdateDraft(ctx context.Context, id int64, req QuotationRequest, actor shared.Actor) (Quotation, error) {
	c, err := parseContent(s.validate, req)
	if err != nil {
		return Quotation{}, err
	}
	var out Quotation
	err = s.repo.WithTx(ctx, func(ctx context.Context, repo Repository) error {
		q, err := repo.GetForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if q.Status != lifecycle.StatusDraft {
			return fmt.Errorf("%w: %s is %s, revise it instead", ErrNotEditable, q.Number, q.Status)
		}
		c.applyTo(&q)
		q.applyTotals()
		q.UpdatedAt = s.now().UTC()
		if err := repo.Update(ctx, q); err != nil {
			return err
		}
		out = q
		return repo.RecordAudit(ctx, s.audit(actor, "quotation.updated", id, map[string]any{
			"total_value": q.TotalValue.String(),
		}))
	})
	return out, err
}

// Revise snapshots the current revision and stores req as the next one.
// Only DRAFT and LIVE quotations can be revised.
func (s *Service) Revise(ctx context.Context, id int64, req QuotationRequest, actor shared.Actor) (Quotation, error) {
	c, err := parseContent(s.validate, req)
	if err != nil {
		return Quotation{}, err
	}
	var out Quotation
	err = s.repo.WithTx(ctx, func(ctx context.Context, repo Repository) error {
		q, err := repo.GetForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if !q.Editable() {
			return &TransitionError{
				Status: q.Status,
				Err:    fmt.Errorf("%w: %w: %s", ErrNotEditable, lifecycle.ErrTerminalState, q.Status),
			}
		}
		now := s.now().UTC()
		if err := repo.SaveRevision(ctx, Revision{
			QuotationID:    q.ID,
			RevisionNumber: q.RevisionNumber,
			Snapshot:       q,
			CreatedBy:      actor.Label(),
			CreatedAt:      now,
		}); err != nil {
			return err
		}
		c.applyTo(&q)
		q.RevisionNumber++
		q.applyTotals()
		q.UpdatedAt = now
		if err := repo.Update(ctx, q); err != nil {
			return err
		}
		out = q
		return repo.RecordAudit(ctx, s.audit(actor, "quotation.revised", id, map[string]any{
			"revision_number": q.RevisionNumber,
			"total_value":     q.TotalValue.String(),
		}))
	})
	return out, err
}

// Transition applies a lifecycle event. For RECEIVE_PO an optional PO
// document is stored first and referenced from the purchase order.
func (s *Service) Transition(ctx context.Context, id int64, req TransitionRequest, file *Upload, actor shared.Actor) (Quotation, error) {
	if err := s.validate.Struct(req); err != nil {
		return Quotation{}, fieldErrors(err)
	}
	ev, ok := lifecycle.ParseEvent(req.Event)
	if !ok {
		return Quotation{}, shared.FieldErrors{"event": "must be one of PUBLISH, WIN, LOSE, MARK_BUDGETARY, RECEIVE_PO, MARK_DEAD"}
	}
	in := req.input()
	if file != nil {
		if ev != lifecycle.EventReceivePO || in.PurchaseOrder == nil {
			return Quotation{}, shared.FieldErrors{"file": "is only accepted with RECEIVE_PO and a purchase order"}
		}
		// Reject before uploading when the event cannot apply anyway.
		current, err := s.repo.Get(ctx, id)
		if err != nil {
			return Quotation{}, err
		}
		if _, err := lifecycle.Apply(current.Snapshot(), ev, in, actor.Label(), s.now()); err != nil {
			return Quotation{}, &TransitionError{Status: current.Status, Err: err}
		}
		ref, err := s.putAttachment(ctx, id, *file)
		if err != nil {
			return Quotation{}, err
		}
		in.PurchaseOrder.AttachmentRef = ref
	}

	var out Quotation
	var rec lifecycle.Record
	err := s.repo.WithTx(ctx, func(ctx context.Context, repo Repository) error {
		q, err := repo.GetForUpdate(ctx, id)
		if err != nil {
			return err
		}
		rec, err = lifecycle.Apply(q.Snapshot(), ev, in, actor.Label(), s.now())
		if err != nil {
			return &TransitionError{Status: q.Status, Err: err}
		}
		q.applyRecord(rec)
		if err := repo.UpdateStatus(ctx, q, rec); err != nil {
			return err
		}
		out = q
		meta := map[string]any{"from": rec.From, "to": rec.To, "event": rec.Event}
		if rec.ValueSnapshot != nil {
			meta["value_snapshot"] = rec.ValueSnapshot.String()
		}
		return repo.RecordAudit(ctx, s.audit(actor, "quotation.transitioned", id, meta))
	})
	if err != nil {
		return Quotation{}, err
	}

	if s.metrics != nil {
		s.metrics.TransitionApplied(string(rec.From), string(rec.To))
	}
	s.logger.Info("quotation transitioned",
		slog.Int64("id", id),
		slog.String("from", string(rec.From)),
		slog.String("to", string(rec.To)),
		slog.String("actor", actor.Label()),
	)
	if s.renderOnClose && rec.To.Terminal() && s.jobs != nil {
		if err := s.jobs.EnqueueRenderPDF(ctx, id); err != nil {
			s.logger.Error("enqueue render pdf", slog.Int64("id", id), slog.Any("error", err))
		}
	}
	return out, nil
}

// AttachPurchaseOrder stores the PO document of a RECEIVED quotation that
// was accepted without one.
func (s *Service) AttachPurchaseOrder(ctx context.Context, id int64, file Upload, actor shared.Actor) (Quotation, error) {
	q, err := s.repo.Get(ctx, id)
	if err != nil {
		return Quotation{}, err
	}
	if _, err := lifecycle.AttachDocument(q.Status, q.PurchaseOrder, "pending"); err != nil {
		return Quotation{}, &TransitionError{Status: q.Status, Err: err}
	}
	ref, err := s.putAttachment(ctx, id, file)
	if err != nil {
		return Quotation{}, err
	}

	var out Quotation
	err = s.repo.WithTx(ctx, func(ctx context.Context, repo Repository) error {
		q, err := repo.GetForUpdate(ctx, id)
		if err != nil {
			return err
		}
		po, err := lifecycle.AttachDocument(q.Status, q.PurchaseOrder, ref)
		if err != nil {
			return &TransitionError{Status: q.Status, Err: err}
		}
		if err := repo.AttachPurchaseOrder(ctx, id, po); err != nil {
			return err
		}
		q.PurchaseOrder = &po
		out = q
		return repo.RecordAudit(ctx, s.audit(actor, "quotation.po_attached", id, map[string]any{"attachment_ref": ref}))
	})
	return out, err
}

func (s *Service) putAttachment(ctx context.Context, id int64, file Upload) (string, error) {
	fe := shared.FieldErrors{}
	switch {
	case len(file.Data) == 0:
		fe.Add("file", "is required")
	case len(file.Data) > maxAttachmentBytes:
		fe.Add("file", "must be at most 10 MB")
	}
	if err := fe.Err(); err != nil {
		return "", err
	}
	if s.storage == nil {
		return "", errors.New("attachment storage not configured")
	}
	key := storage.NewKey(fmt.Sprintf("%s/%d", purchaseOrderPrefix, id), file.Filename)
	ref, err := s.storage.Put(ctx, key, file.Data, file.ContentType)
	if err != nil {
		return "", fmt.Errorf("store purchase order: %w", err)
	}
	return ref, nil
}

// Get returns a quotation by id.
func (s *Service) Get(ctx context.Context, id int64) (Quotation, error) {
	return s.repo.Get(ctx, id)
}

// GetByNumber returns a quotation by its number.
func (s *Service) GetByNumber(ctx context.Context, number string) (Quotation, error) {
	n, err := numbering.Normalize(number)
	if err != nil {
		return Quotation{}, err
	}
	return s.repo.GetByNumber(ctx, n)
}

// List returns a filtered page of quotations, newest first.
func (s *Service) List(ctx context.Context, req ListRequest) ([]Quotation, shared.Pagination, error) {
	if req.Status != nil && !req.Status.Valid() {
		return nil, shared.Pagination{}, shared.FieldErrors{"status": "is not a known status"}
	}
	if req.DateFrom != nil && req.DateTo != nil && req.DateTo.Before(*req.DateFrom) {
		return nil, shared.Pagination{}, shared.FieldErrors{"date_to": "must not be before date_from"}
	}
	filter, page := req.filter()
	items, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, shared.Pagination{}, err
	}
	return items, shared.NewPagination(page.Page, page.PerPage, total), nil
}

// Transitions returns the lifecycle history of a quotation, oldest first.
func (s *Service) Transitions(ctx context.Context, id int64) ([]lifecycle.Record, error) {
	if _, err := s.repo.Get(ctx, id); err != nil {
		return nil, err
	}
	return s.repo.ListTransitions(ctx, id)
}

// Document lays the quotation out for printing.
func (s *Service) Document(ctx context.Context, id int64) (document.PrintableDocument, error) {
	q, err := s.repo.Get(ctx, id)
	if err != nil {
		return document.PrintableDocument{}, err
	}
	return document.Assemble(q.DocumentSource(), q.Totals(), s.docOpts), nil
}

// RenderPDF returns the PDF bytes and a download filename.
func (s *Service) RenderPDF(ctx context.Context, id int64) ([]byte, string, error) {
	return s.render(ctx, id, s.pdf, "pdf")
}

// RenderXLSX returns the spreadsheet bytes and a download filename.
func (s *Service) RenderXLSX(ctx context.Context, id int64) ([]byte, string, error) {
	return s.render(ctx, id, s.xlsx, "xlsx")
}

func (s *Service) render(ctx context.Context, id int64, r Renderer, format string) ([]byte, string, error) {
	if r == nil {
		return nil, "", fmt.Errorf("%w: %s", ErrRendererUnavailable, format)
	}
	doc, err := s.Document(ctx, id)
	if err != nil {
		return nil, "", err
	}
	data, err := r.Render(ctx, doc)
	if err != nil {
		return nil, "", fmt.Errorf("render %s: %w", format, err)
	}
	if s.metrics != nil {
		s.metrics.DocumentRendered(format)
	}
	return data, Filename(doc.Number, doc.Revision, format), nil
}

// StorePDF renders the PDF and keeps it in storage, recording the reference
// on the quotation. It backs the render job.
func (s *Service) StorePDF(ctx context.Context, id int64) (string, error) {
	if s.storage == nil {
		return "", errors.New("document storage not configured")
	}
	data, name, err := s.RenderPDF(ctx, id)
	if err != nil {
		return "", err
	}
	ref, err := s.storage.Put(ctx, fmt.Sprintf("%s/%d/%s", renderedDocumentPath, id, name), data, "application/pdf")
	if err != nil {
		return "", fmt.Errorf("store pdf: %w", err)
	}
	if err := s.repo.SetDocumentRef(ctx, id, ref); err != nil {
		return "", err
	}
	return ref, nil
}

// Filename is the download name of a rendered quotation.
func Filename(number string, revision int, ext string) string {
	safe := strings.Map(func(r rune) rune {
		switch {
		case r >= 'A' && r <= 'Z', r >= 'a' && r <= 'z', r >= '0' && r <= '9', r == '-', r == '_':
			return r
		default:
			return '-'
		}
	}, number)
	if safe == "" {
		safe = "quotation"
	}
	if revision > 0 {
		safe += "-R" + strconv.Itoa(revision)
	}
	return safe + "." + ext
}

// PreviewTotals computes totals for unsaved input. An empty item list is
// allowed and yields zero.
func (s *Service) PreviewTotals(req TotalsPreviewRequest) (TotalsView, error) {
	fe := shared.FieldErrors{}
	if err := s.validate.Struct(req); err != nil {
		if m, ok := shared.AsFieldErrors(fieldErrors(err)); ok {
			fe.Merge("", m)
		}
	}
	items := toItems(req.Items)
	if len(items) > 0 {
		if m, ok := shared.AsFieldErrors(pricing.ValidateItems(items)); ok {
			fe.Merge("", m)
		}
	}
	if m, ok := shared.AsFieldErrors(pricing.ValidateTerms(req.Terms)); ok {
		fe.Merge("", m)
	}
	currency, ok := currencyOf(req.Currency)
	if !ok {
		fe.Add("currency", "is not an ISO 4217 currency code")
	}
	if err := fe.Err(); err != nil {
		return TotalsView{}, err
	}
	t := pricing.ComputeTotals(items, req.Terms)
	if err := pricing.ValidateTotals(t); err != nil {
		return TotalsView{}, err
	}
	return TotalsView{
		Totals:         t,
		Currency:       currency,
		SubtotalText:   money.Format(t.Subtotal, currency),
		GrandTotalText: money.Format(t.GrandTotal, currency),
		InWords:        money.AmountInWords(t.GrandTotal, currency),
	}, nil
}

// ParsePlan parses free-text payment terms. Malformed terms are reported as
// Valid=false, not as an error.
func (s *Service) ParsePlan(req PlanParseRequest) (PlanView, error) {
	currency, ok := currencyOf(req.Currency)
	if !ok {
		return PlanView{}, shared.FieldErrors{"currency": "is not an ISO 4217 currency code"}
	}
	if req.GrandTotal != nil {
		if msg := pricing.AmountProblem(*req.GrandTotal); msg != "" {
			return PlanView{}, shared.FieldErrors{"grand_total": msg}
		}
	}
	percentages, valid := paymentplan.Parse(req.Terms)
	if !valid {
		return PlanView{Valid: false}, nil
	}
	view := PlanView{Valid: true}
	for _, p := range percentages {
		view.Percentages = append(view.Percentages, p.String())
	}
	total := decimal.Zero
	if req.GrandTotal != nil {
		total = *req.GrandTotal
	}
	for _, m := range paymentplan.Milestones(percentages, total, 2) {
		mv := MilestoneView{Milestone: m}
		if req.GrandTotal != nil {
			mv.AmountText = money.Format(m.Amount, currency)
		}
		view.Milestones = append(view.Milestones, mv)
	}
	return view, nil
}

// CheckAvailability reports whether number looks free. The answer is advisory.
func (s *Service) CheckAvailability(ctx context.Context, number string) (bool, error) {
	return s.registry.CheckAvailability(ctx, number)
}

// SuggestNumber proposes the next generated number for date without
// reserving it.
func (s *Service) SuggestNumber(ctx context.Context, date time.Time) (string, error) {
	if date.IsZero() {
		date = s.now()
	}
	return s.registry.Suggest(ctx, date)
}

func (s *Service) audit(actor shared.Actor, action string, id int64, meta map[string]any) shared.AuditLog {
	if actor.ID == "" {
		actor = shared.SystemActor
	}
	meta["actor"] = actor.Label()
	return shared.AuditLog{
		ActorID:  actor.ID,
		Action:   action,
		Entity:   auditEntity,
		EntityID: strconv.FormatInt(id, 10),
		Meta:     meta,
		At:       s.now().UTC(),
	}
}

func currencyOf(code string) (string, bool) {
	if strings.TrimSpace(code) == "" {
		return money.DefaultCurrency, true
	}
	c := money.Canonical(code)
	return c, c != ""
}
