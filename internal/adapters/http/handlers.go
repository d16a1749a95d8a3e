package http

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/viralforge/mesh/services/commerce/M24-retail-ordering-service/internal/application"
	"github.com/viralforge/mesh/services/commerce/M24-retail-ordering-service/internal/contracts"
	"github.com/viralforge/mesh/services/commerce/M24-retail-ordering-service/internal/domain"
	"github.com/viralforge/mesh/services/commerce/M24-retail-ordering-service/internal/ports"
)

const maxBodyBytes = 1 << 20

func (h *Handler) authMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw, err := bearerTokenFromHeader(r.Header.Get("Authorization"))
		if err == nil {
			var claims ports.AuthClaims
			if claims, err = h.service.ValidateToken(r.Context(), raw); err == nil {
				next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), ctxKeyClaims, claims)))
				return
			}
		}
		h.fail(w, r, domain.ErrUnauthorized)
	})
}

// fail writes err as an error envelope and logs it. Server faults are logged
// at error level with the underlying cause.
func (h *Handler) fail(w http.ResponseWriter, r *http.Request, err error) {
	status, payload := mapDomainError(err)
	payload.RequestID = requestIDFromContext(r.Context())
	level := slog.LevelWarn
	if status >= http.StatusInternalServerError {
		level = slog.LevelError
	}
	h.logger.Log(r.Context(), level, "request failed",
		"module", "http.handlers",
		"layer", "adapter",
		"operation", r.Method+" "+r.URL.Path,
		"outcome", "failure",
		"code", payload.Code,
		"request_id", payload.RequestID,
		"error", err,
	)
	writeError(w, status, payload)
}

func decodeBody(r *http.Request, out any) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(out); err != nil {
		if errors.Is(err, io.EOF) {
			return fmt.Errorf("%w: request body is required", domain.ErrInvalidInput)
		}
		return fmt.Errorf("%w: invalid json body", domain.ErrInvalidInput)
	}
	return nil
}

func actor(r *http.Request) ports.AuthClaims {
	claims, _ := claimsFromContext(r.Context())
	return claims
}

func (h *Handler) listOrderableProducts(w http.ResponseWriter, r *http.Request) {
	resp, err := h.service.ListOrderableProducts(r.Context(), actor(r), chi.URLParam(r, "store_id"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeSuccess(w, http.StatusOK, map[string]any{"products": resp})
}

func (h *Handler) getCart(w http.ResponseWriter, r *http.Request) {
	resp, err := h.service.GetCart(r.Context(), actor(r), chi.URLParam(r, "store_id"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeSuccess(w, http.StatusOK, resp)
}

func (h *Handler) addToCart(w http.ResponseWriter, r *http.Request) {
	var req contracts.AddToCartRequest
	if err := decodeBody(r, &req); err != nil {
		h.fail(w, r, err)
		return
	}
	resp, err := h.service.AddToCart(r.Context(), actor(r), chi.URLParam(r, "store_id"), req)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeSuccess(w, http.StatusOK, resp)
}

func (h *Handler) changeQuantity(w http.ResponseWriter, r *http.Request) {
	var req contracts.ChangeQuantityRequest
	if err := decodeBody(r, &req); err != nil {
		h.fail(w, r, err)
		return
	}
	resp, err := h.service.ChangeQuantity(r.Context(), actor(r), chi.URLParam(r, "store_id"), domain.QuantityChange{
		ChangeID:  req.ChangeID,
		ProductID: chi.URLParam(r, "product_id"),
		Delta:     req.Delta,
	})
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeSuccess(w, http.StatusOK, resp)
}

func (h *Handler) revertChange(w http.ResponseWriter, r *http.Request) {
	resp, err := h.service.RevertChange(r.Context(), actor(r), chi.URLParam(r, "change_id"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeSuccess(w, http.StatusOK, resp)
}

func (h *Handler) previewLimits(w http.ResponseWriter, r *http.Request) {
	resp, err := h.service.PreviewLimits(r.Context(), actor(r), chi.URLParam(r, "store_id"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeSuccess(w, http.StatusOK, resp)
}

func (h *Handler) submitOrder(w http.ResponseWriter, r *http.Request) {
	resp, err := h.service.SubmitOrder(r.Context(), actor(r), chi.URLParam(r, "store_id"), r.Header.Get("Idempotency-Key"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	status := http.StatusCreated
	if resp.RequiresApproval {
		status = http.StatusAccepted
	}
	writeSuccess(w, status, resp)
}

func (h *Handler) getOrder(w http.ResponseWriter, r *http.Request) {
	resp, err := h.service.GetOrder(r.Context(), actor(r), chi.URLParam(r, "order_id"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeSuccess(w, http.StatusOK, resp)
}

func (h *Handler) listOrders(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	limit, _ := strconv.Atoi(q.Get("limit"))
	offset, _ := strconv.Atoi(q.Get("offset"))
	orders, err := h.service.ListOrders(r.Context(), actor(r), application.ListOrdersQuery{
		StoreID: q.Get("store_id"),
		Status:  q.Get("status"),
		Limit:   limit,
		Offset:  offset,
	})
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeSuccess(w, http.StatusOK, map[string]any{
		"orders": orders,
		"pagination": map[string]any{
			"limit":  limit,
			"offset": offset,
		},
	})
}

func (h *Handler) approveOrder(w http.ResponseWriter, r *http.Request) {
	var req contracts.ApproveOrderRequest
	if r.ContentLength != 0 {
		if err := decodeBody(r, &req); err != nil {
			h.fail(w, r, err)
			return
		}
	}
	resp, err := h.service.ApproveOrder(r.Context(), actor(r), chi.URLParam(r, "order_id"), req)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeSuccess(w, http.StatusOK, resp)
}

// changeOrderStatus answers 200 even when some orders failed; each result
// says whether its order moved.
func (h *Handler) changeOrderStatus(w http.ResponseWriter, r *http.Request) {
	var req contracts.ChangeOrderStatusRequest
	if err := decodeBody(r, &req); err != nil {
		h.fail(w, r, err)
		return
	}
	results, err := h.service.ChangeOrderStatus(r.Context(), actor(r), req)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeSuccess(w, http.StatusOK, map[string]any{"results": results})
}

func (h *Handler) allocate(w http.ResponseWriter, r *http.Request) {
	var req contracts.AllocationRequest
	if err := decodeBody(r, &req); err != nil {
		h.fail(w, r, err)
		return
	}
	resp, err := h.service.Allocate(r.Context(), actor(r), req)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeSuccess(w, http.StatusOK, resp)
}

func (h *Handler) deallocate(w http.ResponseWriter, r *http.Request) {
	var req contracts.AllocationRequest
	if err := decodeBody(r, &req); err != nil {
		h.fail(w, r, err)
		return
	}
	resp, err := h.service.Deallocate(r.Context(), actor(r), req)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeSuccess(w, http.StatusOK, resp)
}

func (h *Handler) syncProductStores(w http.ResponseWriter, r *http.Request) {
	var req contracts.SyncProductStoresRequest
	if err := decodeBody(r, &req); err != nil {
		h.fail(w, r, err)
		return
	}
	resp, err := h.service.SyncProductStores(r.Context(), actor(r), chi.URLParam(r, "product_id"), req)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeSuccess(w, http.StatusOK, resp)
}

func (h *Handler) restock(w http.ResponseWriter, r *http.Request) {
	var req contracts.RestockRequest
	if err := decodeBody(r, &req); err != nil {
		h.fail(w, r, err)
		return
	}
	resp, err := h.service.Restock(r.Context(), actor(r), req)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeSuccess(w, http.StatusOK, resp)
}

func (h *Handler) listStockMovements(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	movements, err := h.service.GetStockMovements(r.Context(), actor(r), q.Get("product_id"), q.Get("store_id"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeSuccess(w, http.StatusOK, map[string]any{"movements": movements})
}
