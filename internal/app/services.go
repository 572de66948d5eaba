package app

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/odyssey-erp/odyssey-quotes/internal/observability"
	"github.com/odyssey-erp/odyssey-quotes/internal/platform/storage"
	"github.com/odyssey-erp/odyssey-quotes/internal/sales/document"
	"github.com/odyssey-erp/odyssey-quotes/internal/sales/numbering"
	"github.com/odyssey-erp/odyssey-quotes/internal/sales/quotations"
	"github.com/odyssey-erp/odyssey-quotes/report"
)

// ServiceDeps collects the runtime clients shared by the server and worker.
type ServiceDeps struct {
	Config  *Config
	Pool    *pgxpool.Pool
	Redis   *redis.Client
	Logger  *slog.Logger
	Metrics *observability.Metrics
	Jobs    quotations.RenderEnqueuer
}

// NewStorage selects the attachment store named by STORAGE_DRIVER.
func NewStorage(ctx context.Context, cfg *Config) (storage.Store, error) {
	if cfg.StorageDriver != "s3" {
		return storage.NewMemoryStore(), nil
	}
	store, err := storage.NewS3Store(ctx, storage.S3Config{
		Bucket:          cfg.S3Bucket,
		Region:          cfg.S3Region,
		Endpoint:        cfg.S3Endpoint,
		AccessKeyID:     cfg.S3AccessKeyID,
		SecretAccessKey: cfg.S3SecretAccessKey,
		PathStyle:       cfg.S3PathStyle,
	})
	if err != nil {
		return nil, fmt.Errorf("init s3 storage: %w", err)
	}
	return store, nil
}

// NewPDFRenderer selects the PDF renderer named by PDF_RENDERER. The Gotenberg
// client is returned for health checks and is nil for maroto.
func NewPDFRenderer(cfg *Config) (quotations.Renderer, *report.Client) {
	if cfg.PDFRenderer == "maroto" {
		return report.NewMarotoRenderer(), nil
	}
	client := report.NewClient(cfg.GotenbergURL)
	return report.NewGotenbergRenderer(client), client
}

// DocumentOptions returns the layout options carrying the issuing company.
func DocumentOptions(cfg *Config) document.Options {
	return document.Options{
		Company: document.Party{
			Name:    cfg.CompanyName,
			Address: cfg.CompanyAddress,
			Phone:   cfg.CompanyPhone,
			Email:   cfg.CompanyEmail,
			TaxID:   cfg.CompanyTaxID,
		},
	}
}

// NewQuotationService wires the quotation service against Postgres, Redis and
// the configured storage and renderers.
func NewQuotationService(ctx context.Context, deps ServiceDeps) (*quotations.Service, *report.Client, error) {
	cfg := deps.Config
	store, err := NewStorage(ctx, cfg)
	if err != nil {
		return nil, nil, err
	}
	repo := quotations.NewRepository(deps.Pool)

	opts := []numbering.Option{
		numbering.WithPrefix(cfg.QuoteNumberPrefix),
		numbering.WithLogger(deps.Logger),
	}
	if deps.Redis != nil {
		opts = append(opts, numbering.WithCache(deps.Redis, cfg.AvailabilityCacheTTL))
	}
	if deps.Metrics != nil {
		opts = append(opts, numbering.WithObserver(deps.Metrics))
	}
	registry := numbering.NewRegistry(repo.Numbers(), opts...)

	pdf, client := NewPDFRenderer(cfg)
	svcDeps := quotations.Dependencies{
		Repo:          repo,
		Registry:      registry,
		Storage:       store,
		PDF:           pdf,
		XLSX:          report.NewXLSXRenderer(),
		Jobs:          deps.Jobs,
		Logger:        deps.Logger,
		Document:      DocumentOptions(cfg),
		RenderOnClose: cfg.RenderOnClose && deps.Jobs != nil,
	}
	if deps.Metrics != nil {
		svcDeps.Metrics = deps.Metrics
	}
	return quotations.NewService(svcDeps), client, nil
}
