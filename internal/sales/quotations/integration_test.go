package quotations

import (
	"context"
	"sync"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"

	"github.com/odyssey-erp/odyssey-quotes/internal/sales/document"
	"github.com/odyssey-erp/odyssey-quotes/internal/sales/lifecycle"
)

// QuotationWorkflowSuite drives quotations through their whole life against
// the in-memory repository.
type QuotationWorkflowSuite struct {
	suite.Suite
	f   *fixture
	ctx context.Context
}

func (s *QuotationWorkflowSuite) SetupTest() {
	s.f = newFixture(s.T(), func(d *Dependencies) { d.RenderOnClose = true })
	s.ctx = context.Background()
}

// Draft → revised draft → LIVE → RECEIVED → PO document attached.
func (s *QuotationWorkflowSuite) TestWonThroughPurchaseOrder() {
	t := s.T()

	q := s.f.create(t)
	available, err := s.f.svc.CheckAvailability(s.ctx, q.Number)
	require.NoError(t, err)
	assert.False(t, available)

	req := sampleRequest()
	req.Terms.TransportCost = decimal.NewFromInt(80000)
	q, err = s.f.svc.Revise(s.ctx, q.ID, req, priya)
	require.NoError(t, err)
	assert.Equal(t, 1, q.RevisionNumber)
	assert.True(t, decimal.NewFromInt(2474000).Equal(q.TotalValue), q.TotalValue.String())

	q = s.f.transition(t, q.ID, TransitionRequest{Event: "publish"})
	assert.Equal(t, lifecycle.StatusLive, q.Status)

	_, err = s.f.svc.UpdateDraft(s.ctx, q.ID, sampleRequest(), priya)
	assert.ErrorIs(t, err, ErrNotEditable)

	q = s.f.transition(t, q.ID, TransitionRequest{
		Event:         "RECEIVE_PO",
		PurchaseOrder: &PurchaseOrderRequest{Number: "PO/7781"},
	})
	assert.Equal(t, lifecycle.StatusReceived, q.Status)
	require.NotNil(t, q.TotalFrozenAt)
	assert.Equal(t, []int64{q.ID}, s.f.jobs.enqueued)

	q, err = s.f.svc.AttachPurchaseOrder(s.ctx, q.ID, Upload{Filename: "po.pdf", ContentType: "application/pdf", Data: []byte("%PDF")}, priya)
	require.NoError(t, err)
	require.NotNil(t, q.PurchaseOrder)
	assert.False(t, q.PurchaseOrder.PendingAttachment())

	history, err := s.f.svc.Transitions(s.ctx, q.ID)
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.Equal(t, lifecycle.StatusDraft, history[0].From)
	assert.Equal(t, lifecycle.StatusReceived, history[1].To)

	doc, err := s.f.svc.Document(s.ctx, q.ID)
	require.NoError(t, err)
	totals, ok := doc.Find(document.BlockTotals)
	require.True(t, ok)
	assert.Equal(t, "₹24,74,000.00", totals.Totals.GrandTotal.Text)

	_, err = s.f.svc.Revise(s.ctx, q.ID, sampleRequest(), priya)
	assert.ErrorIs(t, err, lifecycle.ErrTerminalState)
}

func (s *QuotationWorkflowSuite) TestLostKeepsReasonAndValue() {
	t := s.T()
	q := s.f.create(t)
	s.f.transition(t, q.ID, TransitionRequest{Event: "PUBLISH"})

	_, err := s.f.svc.Transition(s.ctx, q.ID, TransitionRequest{Event: "LOSE"}, nil, priya)
	var terr *TransitionError
	require.ErrorAs(t, err, &terr)
	assert.Contains(t, terr.NextEvents(), lifecycle.EventLose)

	q = s.f.transition(t, q.ID, TransitionRequest{Event: "LOSE", LostReason: "PRICE", LostNote: "L1 was 8% lower"})
	assert.Equal(t, lifecycle.StatusLost, q.Status)
	assert.Equal(t, lifecycle.LostReasonPrice, q.LostReason)
	assert.True(t, decimal.NewFromInt(2444000).Equal(q.TotalValue))
	assert.Equal(t, []string{"DRAFT->LIVE", "LIVE->LOST"}, s.f.metrics.transitions)
}

func (s *QuotationWorkflowSuite) TestConcurrentCreatesGetDistinctNumbers() {
	t := s.T()
	const workers = 4
	numbers := make([]string, workers)
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			q, err := s.f.svc.Create(s.ctx, sampleRequest(), priya)
			if assert.NoError(t, err) {
				numbers[i] = q.Number
			}
		}(i)
	}
	wg.Wait()

	seen := map[string]bool{}
	for _, n := range numbers {
		assert.False(t, seen[n], "duplicate %s", n)
		seen[n] = true
	}
	assert.ElementsMatch(t, []string{"QT/25-26/0001", "QT/25-26/0002", "QT/25-26/0003", "QT/25-26/0004"}, numbers)
}

func TestQuotationWorkflowSuite(t *testing.T) {
	suite.Run(t, new(QuotationWorkflowSuite))
}
