package main

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/odyssey-quotes/internal/app"
	"github.com/odyssey-erp/odyssey-quotes/internal/platform/db"
	"github.com/odyssey-erp/odyssey-quotes/internal/sales/lifecycle"
	"github.com/odyssey-erp/odyssey-quotes/internal/sales/pricing"
	"github.com/odyssey-erp/odyssey-quotes/internal/sales/quotations"
	"github.com/odyssey-erp/odyssey-quotes/internal/shared"
)

var seeder = shared.Actor{ID: "seed", Name: "Seed Script"}

type demo struct {
	enquiry  int64
	customer string
	items    []quotations.LineItemRequest
	plan     quotations.PaymentPlanRequest
	events   []quotations.TransitionRequest
}

func main() {
	cfg, err := app.LoadConfig()
	if err != nil {
		log.Fatalf("load config: %v", err)
	}
	cfg.PDFRenderer = "maroto"
	ctx := context.Background()

	pool, err := db.New(ctx, cfg.PGDSN, cfg.PoolOptions("seed"))
	if err != nil {
		log.Fatalf("connect postgres: %v", err)
	}
	defer pool.Close()
	if err := db.Migrate(pool); err != nil {
		log.Fatalf("migrate: %v", err)
	}

	svc, _, err := app.NewQuotationService(ctx, app.ServiceDeps{Config: cfg, Pool: pool, Logger: app.NewLogger(cfg)})
	if err != nil {
		log.Fatalf("init service: %v", err)
	}

	date := time.Now().Format("2006-01-02")
	for _, d := range demos() {
		q, err := svc.Create(ctx, quotations.QuotationRequest{
			EnquiryID:        d.enquiry,
			QuotationDate:    date,
			CustomerName:     d.customer,
			Items:            d.items,
			Terms:            pricing.CommercialTerms{TransportCost: decimal.NewFromInt(50000), InsuranceCost: decimal.NewFromInt(25000)},
			PaymentPlan:      d.plan,
			DeliverySchedule: "12 weeks from receipt of advance",
		}, seeder)
		if err != nil {
			log.Fatalf("create quotation for enquiry %d: %v", d.enquiry, err)
		}
		for _, ev := range d.events {
			next, err := svc.Transition(ctx, q.ID, ev, nil, seeder)
			if err != nil {
				log.Fatalf("%s %s: %v", q.Number, ev.Event, err)
			}
			q = next
		}
		fmt.Printf("→ %s %s %s\n", q.Number, q.Status, q.TotalValue.StringFixed(2))
	}
	fmt.Println("✓ Seed complete at", time.Now().Format(time.RFC3339))
}

func demos() []demo {
	publish := quotations.TransitionRequest{Event: string(lifecycle.EventPublish)}
	return []demo{
		{
			enquiry:  1001,
			customer: "Acme Process Pvt Ltd",
			items: []quotations.LineItemRequest{
				{Description: "Shell and tube heat exchanger", Quantity: 1, UnitPrice: decimal.NewFromInt(2000000)},
				{Description: "Installation and commissioning", Quantity: 1, UnitPrice: decimal.NewFromInt(300000)},
			},
			plan:   quotations.PaymentPlanRequest{Kind: "CUSTOM", Terms: "30-30-40"},
			events: []quotations.TransitionRequest{publish, {Event: string(lifecycle.EventWin)}},
		},
		{
			enquiry:  1002,
			customer: "Deccan Chemicals Ltd",
			items: []quotations.LineItemRequest{
				{Description: "Plate heat exchanger", Quantity: 2, UnitPrice: decimal.NewFromInt(450000)},
			},
			plan: quotations.PaymentPlanRequest{Kind: "CUSTOM", Terms: "50-50"},
			events: []quotations.TransitionRequest{publish, {
				Event:      string(lifecycle.EventLose),
				LostReason: string(lifecycle.LostReasonPrice),
				LostNote:   "competitor quoted 8% lower",
			}},
		},
		{
			enquiry:  1003,
			customer: "Konkan Refineries",
			items: []quotations.LineItemRequest{
				{Description: "Air cooled condenser", Quantity: 1, UnitPrice: decimal.NewFromInt(1250000)},
			},
			plan:   quotations.PaymentPlanRequest{Kind: "CUSTOM", Terms: "10-40-50"},
			events: []quotations.TransitionRequest{publish},
		},
	}
}
