package quotations

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/odyssey-quotes/internal/platform/db"
	"github.com/odyssey-erp/odyssey-quotes/internal/sales/lifecycle"
	"github.com/odyssey-erp/odyssey-quotes/internal/sales/numbering"
	"github.com/odyssey-erp/odyssey-quotes/internal/shared"
)

// Repository persists quotations. Implementations map a duplicate quotation
// number to numbering.ErrConflict and a missing row to shared.ErrNotFound.
type Repository interface {
	WithTx(ctx context.Context, fn func(context.Context, Repository) error) error
	Numbers() numbering.Store
	Insert(ctx context.Context, q Quotation) (int64, error)
	Get(ctx context.Context, id int64) (Quotation, error)
	GetForUpdate(ctx context.Context, id int64) (Quotation, error)
	GetByNumber(ctx context.Context, number string) (Quotation, error)
	List(ctx context.Context, f Filter) ([]Quotation, int, error)
	Update(ctx context.Context, q Quotation) error
	SaveRevision(ctx context.Context, rev Revision) error
	UpdateStatus(ctx context.Context, q Quotation, rec lifecycle.Record) error
	AttachPurchaseOrder(ctx context.Context, id int64, po lifecycle.PurchaseOrder) error
	SetDocumentRef(ctx context.Context, id int64, ref string) error
	ListTransitions(ctx context.Context, id int64) ([]lifecycle.Record, error)
	RecordAudit(ctx context.Context, log shared.AuditLog) error
}

type dbtx interface {
	Exec(context.Context, string, ...any) (pgconn.CommandTag, error)
	Query(context.Context, string, ...any) (pgx.Rows, error)
	QueryRow(context.Context, string, ...any) pgx.Row
}

type repository struct {
	db   dbtx
	pool *pgxpool.Pool
}

// NewRepository returns the Postgres repository.
func NewRepository(pool *pgxpool.Pool) Repository {
	return &repository{db: pool, pool: pool}
}

func (r *repository) WithTx(ctx context.Context, fn func(context.Context, Repository) error) error {
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(ctx, &repository{db: tx, pool: r.pool})
	})
}

func (r *repository) Numbers() numbering.Store {
	return numbering.NewPostgresStore(r.db)
}

const selectColumns = `
	id, quotation_number, enquiry_id, revision_number, quotation_date, valid_until, currency,
	customer_name, customer_address, contact_person, items, terms, payment_plan,
	delivery_schedule, special_instructions, status, lost_reason, lost_note,
	po_number, po_value::text, po_attachment_ref, subtotal::text, total_value::text,
	total_frozen_at, document_ref, created_by, created_at, updated_at`

func (r *repository) Insert(ctx context.Context, q Quotation) (int64, error) {
	items, terms, plan, err := marshalContent(q)
	if err != nil {
		return 0, err
	}
	var id int64
	err = r.db.QueryRow(ctx, `
		INSERT INTO quotations (
			quotation_number, enquiry_id, revision_number, quotation_date, valid_until, currency,
			customer_name, customer_address, contact_person, items, terms, payment_plan,
			delivery_schedule, special_instructions, status, subtotal, total_value, created_by,
			created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16::numeric, $17::numeric, $18, $19, $19)
		RETURNING id`,
		q.Number, q.EnquiryID, q.RevisionNumber, q.QuotationDate, q.ValidUntil, q.Currency,
		q.CustomerName, q.CustomerAddress, q.ContactPerson, items, terms, plan,
		q.DeliverySchedule, q.SpecialInstructions, string(q.Status), q.Subtotal.String(), q.TotalValue.String(), q.CreatedBy,
		q.CreatedAt,
	).Scan(&id)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return 0, fmt.Errorf("%w: %s", numbering.ErrConflict, q.Number)
		}
		return 0, fmt.Errorf("insert quotation: %w", err)
	}
	return id, nil
}

func (r *repository) Get(ctx context.Context, id int64) (Quotation, error) {
	return r.getOne(ctx, `SELECT`+selectColumns+` FROM quotations WHERE id = $1`, id)
}

func (r *repository) GetForUpdate(ctx context.Context, id int64) (Quotation, error) {
	return r.getOne(ctx, `SELECT`+selectColumns+` FROM quotations WHERE id = $1 FOR UPDATE`, id)
}

func (r *repository) GetByNumber(ctx context.Context, number string) (Quotation, error) {
	return r.getOne(ctx, `SELECT`+selectColumns+` FROM quotations WHERE quotation_number = $1`, number)
}

func (r *repository) getOne(ctx context.Context, query string, arg any) (Quotation, error) {
	q, err := scanQuotation(r.db.QueryRow(ctx, query, arg))
	if errors.Is(err, pgx.ErrNoRows) {
		return Quotation{}, fmt.Errorf("%w: quotation %v", shared.ErrNotFound, arg)
	}
	return q, err
}

func (r *repository) List(ctx context.Context, f Filter) ([]Quotation, int, error) {
	var conditions []string
	var args []any
	add := func(cond string, v any) {
		args = append(args, v)
		conditions = append(conditions, fmt.Sprintf(cond, len(args)))
	}
	if f.EnquiryID != nil {
		add("enquiry_id = $%d", *f.EnquiryID)
	}
	if f.Status != nil {
		add("status = $%d", string(*f.Status))
	}
	if f.DateFrom != nil {
		add("quotation_date >= $%d", *f.DateFrom)
	}
	if f.DateTo != nil {
		add("quotation_date <= $%d", *f.DateTo)
	}
	where := ""
	if len(conditions) > 0 {
		where = "WHERE " + strings.Join(conditions, " AND ")
	}

	var total int
	if err := r.db.QueryRow(ctx, "SELECT COUNT(*) FROM quotations "+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count quotations: %w", err)
	}

	query := fmt.Sprintf(`SELECT%s FROM quotations %s ORDER BY quotation_date DESC, id DESC LIMIT $%d OFFSET $%d`,
		selectColumns, where, len(args)+1, len(args)+2)
	rows, err := r.db.Query(ctx, query, append(args, f.Limit, f.Offset)...)
	if err != nil {
		return nil, 0, fmt.Errorf("list quotations: %w", err)
	}
	defer rows.Close()

	var out []Quotation
	for rows.Next() {
		q, err := scanQuotation(rows)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, q)
	}
	return out, total, rows.Err()
}

func (r *repository) Update(ctx context.Context, q Quotation) error {
	items, terms, plan, err := marshalContent(q)
	if err != nil {
		return err
	}
	tag, err := r.db.Exec(ctx, `
		UPDATE quotations SET
			revision_number = $2, quotation_date = $3, valid_until = $4, currency = $5,
			customer_name = $6, customer_address = $7, contact_person = $8,
			items = $9, terms = $10, payment_plan = $11,
			delivery_schedule = $12, special_instructions = $13,
			subtotal = $14::numeric, total_value = $15::numeric, updated_at = $16
		WHERE id = $1 AND status IN ('DRAFT', 'LIVE')`,
		q.ID, q.RevisionNumber, q.QuotationDate, q.ValidUntil, q.Currency,
		q.CustomerName, q.CustomerAddress, q.ContactPerson,
		items, terms, plan,
		q.DeliverySchedule, q.SpecialInstructions,
		q.Subtotal.String(), q.TotalValue.String(), q.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("update quotation: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: quotation %d", ErrNotEditable, q.ID)
	}
	return nil
}

func (r *repository) SaveRevision(ctx context.Context, rev Revision) error {
	snapshot, err := json.Marshal(rev.Snapshot)
	if err != nil {
		return fmt.Errorf("encode revision: %w", err)
	}
	_, err = r.db.Exec(ctx, `
		INSERT INTO quotation_revisions (quotation_id, revision_number, snapshot, created_by, created_at)
		VALUES ($1, $2, $3, $4, $5)`,
		rev.QuotationID, rev.RevisionNumber, snapshot, rev.CreatedBy, rev.CreatedAt)
	if err != nil {
		return fmt.Errorf("save revision: %w", err)
	}
	return nil
}

func (r *repository) UpdateStatus(ctx context.Context, q Quotation, rec lifecycle.Record) error {
	var poNumber, poValue, poRef *string
	if po := q.PurchaseOrder; po != nil {
		poNumber = &po.Number
		if po.Value != nil {
			v := po.Value.String()
			poValue = &v
		}
		if po.AttachmentRef != "" {
			poRef = &po.AttachmentRef
		}
	}
	tag, err := r.db.Exec(ctx, `
		UPDATE quotations SET
			status = $2, lost_reason = $3, lost_note = $4,
			po_number = $5, po_value = $6::numeric, po_attachment_ref = $7,
			total_value = $8::numeric, total_frozen_at = $9, updated_at = $10
		WHERE id = $1 AND status = $11`,
		q.ID, string(q.Status), nullable(string(q.LostReason)), nullable(q.LostNote),
		poNumber, poValue, poRef,
		q.TotalValue.String(), q.TotalFrozenAt, rec.At, string(rec.From),
	)
	if err != nil {
		return fmt.Errorf("update quotation status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: quotation %d left %s concurrently", lifecycle.ErrInvalidTransition, q.ID, rec.From)
	}

	var valueSnapshot *string
	if rec.ValueSnapshot != nil {
		v := rec.ValueSnapshot.String()
		valueSnapshot = &v
	}
	var po []byte
	if rec.PurchaseOrder != nil {
		if po, err = json.Marshal(rec.PurchaseOrder); err != nil {
			return fmt.Errorf("encode purchase order: %w", err)
		}
	}
	_, err = r.db.Exec(ctx, `
		INSERT INTO quotation_transitions (id, quotation_id, from_status, to_status, event, actor, value_snapshot, lost_reason, lost_note, purchase_order, occurred_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7::numeric, $8, $9, $10, $11)`,
		rec.ID, q.ID, string(rec.From), string(rec.To), string(rec.Event), rec.Actor,
		valueSnapshot, nullable(string(rec.LostReason)), nullable(rec.LostNote), po, rec.At,
	)
	if err != nil {
		return fmt.Errorf("insert transition: %w", err)
	}
	return nil
}

func (r *repository) AttachPurchaseOrder(ctx context.Context, id int64, po lifecycle.PurchaseOrder) error {
	tag, err := r.db.Exec(ctx, `
		UPDATE quotations SET po_attachment_ref = $2, updated_at = NOW()
		WHERE id = $1 AND status = 'RECEIVED' AND po_attachment_ref IS NULL`,
		id, po.AttachmentRef)
	if err != nil {
		return fmt.Errorf("attach purchase order: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: quotation %d", lifecycle.ErrNoPendingAttachment, id)
	}
	return nil
}

func (r *repository) SetDocumentRef(ctx context.Context, id int64, ref string) error {
	tag, err := r.db.Exec(ctx, `UPDATE quotations SET document_ref = $2 WHERE id = $1`, id, ref)
	if err != nil {
		return fmt.Errorf("set document ref: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: quotation %d", shared.ErrNotFound, id)
	}
	return nil
}

func (r *repository) ListTransitions(ctx context.Context, id int64) ([]lifecycle.Record, error) {
	rows, err := r.db.Query(ctx, `
		SELECT id, from_status, to_status, event, actor, value_snapshot::text, lost_reason, lost_note, purchase_order, occurred_at
		FROM quotation_transitions WHERE quotation_id = $1 ORDER BY occurred_at, id`, id)
	if err != nil {
		return nil, fmt.Errorf("list transitions: %w", err)
	}
	defer rows.Close()

	var out []lifecycle.Record
	for rows.Next() {
		var rec lifecycle.Record
		var from, to, event string
		var value, lostReason, lostNote *string
		var po []byte
		if err := rows.Scan(&rec.ID, &from, &to, &event, &rec.Actor, &value, &lostReason, &lostNote, &po, &rec.At); err != nil {
			return nil, fmt.Errorf("scan transition: %w", err)
		}
		rec.From, rec.To, rec.Event = lifecycle.Status(from), lifecycle.Status(to), lifecycle.Event(event)
		if rec.ValueSnapshot, err = optionalDecimal(value); err != nil {
			return nil, err
		}
		rec.LostReason = lifecycle.LostReason(deref(lostReason))
		rec.LostNote = deref(lostNote)
		if len(po) > 0 {
			rec.PurchaseOrder = &lifecycle.PurchaseOrder{}
			if err := json.Unmarshal(po, rec.PurchaseOrder); err != nil {
				return nil, fmt.Errorf("decode purchase order: %w", err)
			}
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

func (r *repository) RecordAudit(ctx context.Context, log shared.AuditLog) error {
	return shared.NewAuditLogger(r.db).Record(ctx, log)
}

func marshalContent(q Quotation) (items, terms, plan []byte, err error) {
	if items, err = json.Marshal(q.Items); err != nil {
		return nil, nil, nil, fmt.Errorf("encode items: %w", err)
	}
	if terms, err = json.Marshal(q.Terms); err != nil {
		return nil, nil, nil, fmt.Errorf("encode terms: %w", err)
	}
	if plan, err = json.Marshal(q.PaymentPlan); err != nil {
		return nil, nil, nil, fmt.Errorf("encode payment plan: %w", err)
	}
	return items, terms, plan, nil
}

func scanQuotation(row pgx.Row) (Quotation, error) {
	var q Quotation
	var validUntil, frozenAt *time.Time
	var items, terms, plan []byte
	var status string
	var lostReason, lostNote, poNumber, poValue, poRef, docRef *string
	var subtotal, total string
	err := row.Scan(
		&q.ID, &q.Number, &q.EnquiryID, &q.RevisionNumber, &q.QuotationDate, &validUntil, &q.Currency,
		&q.CustomerName, &q.CustomerAddress, &q.ContactPerson, &items, &terms, &plan,
		&q.DeliverySchedule, &q.SpecialInstructions, &status, &lostReason, &lostNote,
		&poNumber, &poValue, &poRef, &subtotal, &total,
		&frozenAt, &docRef, &q.CreatedBy, &q.CreatedAt, &q.UpdatedAt,
	)
	if err != nil {
		return Quotation{}, err
	}
	q.ValidUntil = validUntil
	q.TotalFrozenAt = frozenAt
	q.Currency = strings.TrimSpace(q.Currency)
	q.Status = lifecycle.Status(status)
	q.LostReason = lifecycle.LostReason(deref(lostReason))
	q.LostNote = deref(lostNote)
	q.DocumentRef = deref(docRef)

	if err := json.Unmarshal(items, &q.Items); err != nil {
		return Quotation{}, fmt.Errorf("decode items: %w", err)
	}
	if err := json.Unmarshal(terms, &q.Terms); err != nil {
		return Quotation{}, fmt.Errorf("decode terms: %w", err)
	}
	if err := json.Unmarshal(plan, &q.PaymentPlan); err != nil {
		return Quotation{}, fmt.Errorf("decode payment plan: %w", err)
	}
	if q.Subtotal, err = decimal.NewFromString(subtotal); err != nil {
		return Quotation{}, fmt.Errorf("decode subtotal: %w", err)
	}
	if q.TotalValue, err = decimal.NewFromString(total); err != nil {
		return Quotation{}, fmt.Errorf("decode total value: %w", err)
	}
	if poNumber != nil {
		po := lifecycle.PurchaseOrder{Number: *poNumber, AttachmentRef: deref(poRef)}
		if po.Value, err = optionalDecimal(poValue); err != nil {
			return Quotation{}, err
		}
		q.PurchaseOrder = &po
	}
	return q, nil
}

func optionalDecimal(s *string) (*decimal.Decimal, error) {
	if s == nil {
		return nil, nil
	}
	d, err := decimal.NewFromString(*s)
	if err != nil {
		return nil, fmt.Errorf("decode numeric %q: %w", *s, err)
	}
	return &d, nil
}

func nullable(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
