package http

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/viralforge/mesh/services/commerce/M24-retail-ordering-service/internal/application"
	"github.com/viralforge/mesh/services/commerce/M24-retail-ordering-service/internal/contracts"
)

type Handler struct {
	service *application.Service
	logger  *slog.Logger
}

func NewHandler(service *application.Service, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{service: service, logger: logger}
}

// NewRouter mounts the API. ready backs /readyz; nil means always ready.
func NewRouter(handler *Handler, ready func(context.Context) error) http.Handler {
	r := chi.NewRouter()
	r.Use(requestIDMiddleware)
	r.Use(recoverMiddleware(handler.logger))
	r.Use(loggingMiddleware(handler.logger))

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) { writeMessage(w, http.StatusOK, "ok") })
	r.Get("/readyz", func(w http.ResponseWriter, r *http.Request) {
		if ready != nil {
			if err := ready(r.Context()); err != nil {
				writeError(w, http.StatusServiceUnavailable, contracts.ErrorPayload{
					Code:      "NOT_READY",
					Message:   "dependencies unavailable",
					RequestID: requestIDFromContext(r.Context()),
				})
				return
			}
		}
		writeMessage(w, http.StatusOK, "ready")
	})

	r.Route("/v1", func(r chi.Router) {
		r.Use(handler.authMiddleware)

		r.Route("/stores/{store_id}", func(r chi.Router) {
			r.Get("/products", handler.listOrderableProducts)
			r.Get("/cart", handler.getCart)
			r.Post("/cart/items", handler.addToCart)
			r.Patch("/cart/items/{product_id}", handler.changeQuantity)
			r.Get("/cart/limits", handler.previewLimits)
			r.Post("/orders", handler.submitOrder)
		})
		r.Post("/cart/changes/{change_id}/revert", handler.revertChange)

		r.Get("/orders", handler.listOrders)
		r.Post("/orders/status", handler.changeOrderStatus)
		r.Get("/orders/{order_id}", handler.getOrder)
		r.Post("/orders/{order_id}/approve", handler.approveOrder)

		r.Post("/allocations", handler.allocate)
		r.Delete("/allocations", handler.deallocate)
		r.Put("/products/{product_id}/stores", handler.syncProductStores)

		r.Post("/stock/adjustments", handler.restock)
		r.Get("/stock/movements", handler.listStockMovements)
	})
	return r
}
