package quotations

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/odyssey-erp/odyssey-quotes/internal/sales/lifecycle"
	"github.com/odyssey-erp/odyssey-quotes/internal/sales/numbering"
	"github.com/odyssey-erp/odyssey-quotes/internal/shared"
)

// mockRepository is a map-backed Repository. Transactions are not rolled
// back; error injection covers the failure paths.
type mockRepository struct {
	mu          sync.Mutex
	numbers     *numbering.MemoryStore
	quotations  map[int64]Quotation
	revisions   []Revision
	transitions map[int64][]lifecycle.Record
	audits      []shared.AuditLog
	nextID      int64

	// Error injection
	txFailures  []error // consumed one per WithTx call in place of running fn
	txCalls     int
	txError     error
	insertError error
	listError   error
}

func newMockRepository() *mockRepository {
	return &mockRepository{
		numbers:     numbering.NewMemoryStore(),
		quotations:  make(map[int64]Quotation),
		transitions: make(map[int64][]lifecycle.Record),
		nextID:      1,
	}
}

func (m *mockRepository) WithTx(ctx context.Context, fn func(context.Context, Repository) error) error {
	if m.txError != nil {
		return m.txError
	}
	m.mu.Lock()
	m.txCalls++
	var fail error
	if len(m.txFailures) > 0 {
		fail, m.txFailures = m.txFailures[0], m.txFailures[1:]
	}
	m.mu.Unlock()
	if fail != nil {
		return fail
	}
	return fn(ctx, m)
}

func (m *mockRepository) Numbers() numbering.Store {
	return m.numbers
}

func (m *mockRepository) Insert(_ context.Context, q Quotation) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.insertError != nil {
		return 0, m.insertError
	}
	for _, existing := range m.quotations {
		if existing.Number == q.Number {
			return 0, fmt.Errorf("%w: %s", numbering.ErrConflict, q.Number)
		}
	}
	q.ID = m.nextID
	m.nextID++
	m.quotations[q.ID] = q
	return q.ID, nil
}

func (m *mockRepository) Get(_ context.Context, id int64) (Quotation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	q, ok := m.quotations[id]
	if !ok {
		return Quotation{}, fmt.Errorf("%w: quotation %d", shared.ErrNotFound, id)
	}
	return q, nil
}

func (m *mockRepository) GetForUpdate(ctx context.Context, id int64) (Quotation, error) {
	return m.Get(ctx, id)
}

func (m *mockRepository) GetByNumber(_ context.Context, number string) (Quotation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, q := range m.quotations {
		if q.Number == number {
			return q, nil
		}
	}
	return Quotation{}, fmt.Errorf("%w: quotation %s", shared.ErrNotFound, number)
}

func (m *mockRepository) List(_ context.Context, f Filter) ([]Quotation, int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.listError != nil {
		return nil, 0, m.listError
	}
	var matched []Quotation
	for _, q := range m.quotations {
		if f.EnquiryID != nil && q.EnquiryID != *f.EnquiryID {
			continue
		}
		if f.Status != nil && q.Status != *f.Status {
			continue
		}
		matched = append(matched, q)
	}
	sort.Slice(matched, func(i, j int) bool { return matched[i].ID > matched[j].ID })
	total := len(matched)
	if f.Offset >= total {
		return nil, total, nil
	}
	end := min(f.Offset+f.Limit, total)
	return matched[f.Offset:end], total, nil
}

func (m *mockRepository) Update(_ context.Context, q Quotation) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	current, ok := m.quotations[q.ID]
	if !ok {
		return shared.ErrNotFound
	}
	if !current.Editable() {
		return ErrNotEditable
	}
	m.quotations[q.ID] = q
	return nil
}

func (m *mockRepository) SaveRevision(_ context.Context, rev Revision) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.revisions = append(m.revisions, rev)
	return nil
}

func (m *mockRepository) UpdateStatus(_ context.Context, q Quotation, rec lifecycle.Record) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	current, ok := m.quotations[q.ID]
	if !ok {
		return shared.ErrNotFound
	}
	if current.Status != rec.From {
		return lifecycle.ErrInvalidTransition
	}
	m.quotations[q.ID] = q
	m.transitions[q.ID] = append(m.transitions[q.ID], rec)
	return nil
}

func (m *mockRepository) AttachPurchaseOrder(_ context.Context, id int64, po lifecycle.PurchaseOrder) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	q := m.quotations[id]
	q.PurchaseOrder = &po
	m.quotations[id] = q
	return nil
}

func (m *mockRepository) SetDocumentRef(_ context.Context, id int64, ref string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	q, ok := m.quotations[id]
	if !ok {
		return shared.ErrNotFound
	}
	q.DocumentRef = ref
	m.quotations[id] = q
	return nil
}

func (m *mockRepository) ListTransitions(_ context.Context, id int64) ([]lifecycle.Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]lifecycle.Record(nil), m.transitions[id]...), nil
}

func (m *mockRepository) RecordAudit(_ context.Context, log shared.AuditLog) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.audits = append(m.audits, log)
	return nil
}

type recordingObserver struct {
	mu          sync.Mutex
	transitions []string
	rendered    []string
}

func (o *recordingObserver) TransitionApplied(from, to string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.transitions = append(o.transitions, from+"->"+to)
}

func (o *recordingObserver) DocumentRendered(format string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.rendered = append(o.rendered, format)
}

type recordingJobs struct {
	mu       sync.Mutex
	enqueued []int64
	err      error
}

func (j *recordingJobs) EnqueueRenderPDF(_ context.Context, id int64) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.err != nil {
		return j.err
	}
	j.enqueued = append(j.enqueued, id)
	return nil
}
