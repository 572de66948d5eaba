package quotations

import (
	"github.com/go-chi/chi/v5"
)

// MountRoutes registers the API under r, typically mounted at /sales.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Route("/quotations", func(r chi.Router) {
		r.Post("/", h.Create)
		r.Get("/", h.List)
		r.Route("/{id}", func(r chi.Router) {
			r.Get("/", h.Show)
			r.Put("/", h.Update)
			r.Post("/revisions", h.Revise)
			r.Get("/transitions", h.Transitions)
			r.Post("/transitions", h.Transition)
			r.Post("/purchase-order/attachment", h.AttachPurchaseOrder)
			r.Get("/document", h.Document)
			r.Get("/document.pdf", h.DocumentPDF)
			r.Get("/document.xlsx", h.DocumentXLSX)
		})
	})
	r.Get("/quotation-numbers/{number}/availability", h.Availability)
	r.Post("/quotation-numbers/generate", h.SuggestNumber)
	r.Post("/totals/preview", h.PreviewTotals)
	r.Post("/payment-plans/parse", h.ParsePlan)
	r.Get("/money/format", h.FormatMoney)
}
