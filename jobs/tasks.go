package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/hibiken/asynq"

	jobmetrics "github.com/odyssey-erp/odyssey-quotes/internal/jobs"
	"github.com/odyssey-erp/odyssey-quotes/internal/sales/quotations"
	"github.com/odyssey-erp/odyssey-quotes/internal/shared"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskRenderQuotationPDF renders a quotation and stores the PDF.
	TaskRenderQuotationPDF = "quotation:render_pdf"
)

// RenderQuotationPDFPayload identifies the quotation to render.
type RenderQuotationPDFPayload struct {
	QuotationID int64 `json:"quotation_id"`
}

// NewRenderQuotationPDFTask constructs an Asynq task.
func NewRenderQuotationPDFTask(payload RenderQuotationPDFPayload) (*asynq.Task, error) {
	if payload.QuotationID <= 0 {
		return nil, fmt.Errorf("render pdf: invalid quotation id %d", payload.QuotationID)
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskRenderQuotationPDF, data, asynq.MaxRetry(5)), nil
}

// PDFStorer renders and stores a quotation PDF, returning the storage reference.
type PDFStorer interface {
	StorePDF(ctx context.Context, id int64) (string, error)
}

// RenderPDFJob handles TaskRenderQuotationPDF.
type RenderPDFJob struct {
	Storer  PDFStorer
	Logger  *slog.Logger
	Metrics *jobmetrics.Metrics
}

// NewRenderPDFJob wires dependencies for the handler.
func NewRenderPDFJob(storer PDFStorer, logger *slog.Logger, metrics *jobmetrics.Metrics) *RenderPDFJob {
	return &RenderPDFJob{Storer: storer, Logger: logger, Metrics: metrics}
}

// Handle processes render tasks. Missing quotations and an unconfigured
// renderer are not retried.
func (j *RenderPDFJob) Handle(ctx context.Context, t *asynq.Task) (err error) {
	if j == nil || j.Storer == nil {
		return errors.New("render pdf: handler not configured")
	}
	var payload RenderQuotationPDFPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil || payload.QuotationID <= 0 {
		return asynq.SkipRetry
	}

	tracker := j.Metrics.Track(TaskRenderQuotationPDF)
	defer func() {
		err = tracker.End(err)
	}()

	logger := j.logger().With(slog.Int64("quotation_id", payload.QuotationID))
	ref, err := j.Storer.StorePDF(ctx, payload.QuotationID)
	switch {
	case err == nil:
		logger.Info("quotation pdf stored", slog.String("ref", ref))
		return nil
	case errors.Is(err, shared.ErrNotFound), errors.Is(err, quotations.ErrRendererUnavailable):
		logger.Warn("quotation pdf skipped", slog.Any("error", err))
		return fmt.Errorf("%w: %v", asynq.SkipRetry, err)
	default:
		logger.Error("quotation pdf failed", slog.Any("error", err))
		return err
	}
}

func (j *RenderPDFJob) logger() *slog.Logger {
	if j.Logger != nil {
		return j.Logger
	}
	return slog.Default()
}
