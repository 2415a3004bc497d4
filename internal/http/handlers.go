package http

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/go-chi/chi/v5"
	"github.com/savebox/box-orders/internal/domain"
	"github.com/savebox/box-orders/internal/fulfillment"
	"github.com/savebox/box-orders/internal/idempotency"
	"github.com/savebox/box-orders/internal/observability"
	"github.com/savebox/box-orders/internal/reservation"
)

type Handlers struct {
	reservations *reservation.Service
	orders       *fulfillment.Service
	idemp        *idempotency.Idempotency
	logger       observability.Logger
}

func NewHandlers(reservations *reservation.Service, orders *fulfillment.Service, idemp *idempotency.Idempotency, logger observability.Logger) *Handlers {
	return &Handlers{
		reservations: reservations,
		orders:       orders,
		idemp:        idemp,
		logger:       logger,
	}
}

// Denials the caller branches on get their own status codes; everything
// unexpected collapses to 500 without leaking internals.
func writeError(w http.ResponseWriter, err error) {
	var code int
	switch {
	case errors.Is(err, domain.ErrInvalidTTL),
		errors.Is(err, domain.ErrInvalidAmount),
		errors.Is(err, domain.ErrDeliveryAddressRequired),
		errors.Is(err, domain.ErrInvalidPickupCode):
		code = http.StatusBadRequest
	case errors.Is(err, domain.ErrBoxNotFound),
		errors.Is(err, domain.ErrOrderNotFound):
		code = http.StatusNotFound
	case errors.Is(err, domain.ErrAlreadyReserved),
		errors.Is(err, domain.ErrBoxNotAvailable),
		errors.Is(err, domain.ErrNotReservedByCustomer),
		errors.Is(err, domain.ErrReservationExpired),
		errors.Is(err, domain.ErrStoreMismatch),
		errors.Is(err, domain.ErrAlreadyFinalized),
		errors.Is(err, domain.ErrSerializationFailure):
		code = http.StatusConflict
	default:
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	http.Error(w, err.Error(), code)
}

func (h *Handlers) writeJSON(w http.ResponseWriter, r *http.Request, status int, resp interface{}) {
	data, _ := json.Marshal(resp)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	w.Write(data)

	if key := r.Header.Get("Idempotency-Key"); key != "" {
		h.idemp.Set(r.Context(), key, idempotency.Response{Status: status, Result: data})
	}
}

// replayIdempotent writes a previously cached response for this
// Idempotency-Key and reports whether it did.
func (h *Handlers) replayIdempotent(w http.ResponseWriter, r *http.Request) bool {
	key := r.Header.Get("Idempotency-Key")
	existing, err := h.idemp.Get(r.Context(), key)
	if err != nil {
		h.logger.Warn("idempotency lookup failed", err)
		return false
	}
	if existing == nil {
		return false
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(existing.Status)
	w.Write(existing.Result)
	return true
}

func (h *Handlers) ReserveBox(w http.ResponseWriter, r *http.Request) {
	if h.replayIdempotent(w, r) {
		return
	}

	boxID, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		http.Error(w, "invalid box id", http.StatusBadRequest)
		return
	}

	var req struct {
		CustomerID int64 `json:"customer_id"`
		TTLMinutes int   `json:"ttl_minutes"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	expiresAt, err := h.reservations.ReserveBox(r.Context(), boxID, req.CustomerID, req.TTLMinutes)
	if err != nil {
		writeError(w, err)
		return
	}

	h.writeJSON(w, r, http.StatusCreated, map[string]interface{}{
		"expires_at": expiresAt.Format(time.RFC3339),
	})
}

func (h *Handlers) CreateOrder(w http.ResponseWriter, r *http.Request) {
	if h.replayIdempotent(w, r) {
		return
	}

	var req struct {
		BoxID           int64  `json:"box_id"`
		CustomerID      int64  `json:"customer_id"`
		StoreID         int64  `json:"store_id"`
		PaymentType     string `json:"payment_type"`
		FulfillmentType string `json:"fulfillment_type"`
		PaymentMethod   string `json:"payment_method"`
		Amount          int64  `json:"amount"`
		DeliveryAddress string `json:"delivery_address"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	order, err := h.orders.CreateOrder(r.Context(), fulfillment.CreateOrderInput{
		BoxID:           req.BoxID,
		CustomerID:      req.CustomerID,
		StoreID:         req.StoreID,
		PaymentType:     domain.PaymentType(req.PaymentType),
		FulfillmentType: domain.FulfillmentType(req.FulfillmentType),
		PaymentMethod:   domain.PaymentMethod(req.PaymentMethod),
		Amount:          req.Amount,
		DeliveryAddress: req.DeliveryAddress,
	})
	if err != nil {
		writeError(w, err)
		return
	}

	h.writeJSON(w, r, http.StatusCreated, map[string]interface{}{
		"order_id":    order.ID,
		"pickup_code": order.PickupCode,
		"status":      order.Status,
	})
}

func (h *Handlers) CompleteOrder(w http.ResponseWriter, r *http.Request) {
	if h.replayIdempotent(w, r) {
		return
	}

	orderID, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		http.Error(w, "invalid order id", http.StatusBadRequest)
		return
	}

	var req struct {
		PickupCode string `json:"pickup_code"`
		StoreID    int64  `json:"store_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	if err := h.orders.CompleteOrder(r.Context(), orderID, req.PickupCode, req.StoreID); err != nil {
		writeError(w, err)
		return
	}

	h.writeJSON(w, r, http.StatusOK, map[string]interface{}{
		"order_id": orderID,
		"status":   domain.OrderCompleted,
	})
}

func (h *Handlers) GetOrder(w http.ResponseWriter, r *http.Request) {
	orderID, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		http.Error(w, "invalid order id", http.StatusBadRequest)
		return
	}

	order, err := h.orders.GetOrder(r.Context(), orderID)
	if err != nil {
		writeError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(orderResponse(order))
}

func (h *Handlers) FindOrderByPickupCode(w http.ResponseWriter, r *http.Request) {
	storeID, err := strconv.ParseInt(r.URL.Query().Get("store_id"), 10, 64)
	if err != nil {
		http.Error(w, "invalid store id", http.StatusBadRequest)
		return
	}

	order, err := h.orders.FindOrderByPickupCode(r.Context(), chi.URLParam(r, "code"), storeID)
	if err != nil {
		writeError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(orderResponse(order))
}

func orderResponse(order *domain.Order) map[string]interface{} {
	resp := map[string]interface{}{
		"order_id":         order.ID,
		"customer_id":      order.CustomerID,
		"box_id":           order.BoxID,
		"store_id":         order.StoreID,
		"status":           order.Status,
		"payment_type":     order.PaymentType,
		"fulfillment_type": order.FulfillmentType,
		"amount":           order.Amount,
		"pickup_code":      order.PickupCode,
		"order_date":       order.OrderDate.Format(time.RFC3339),
	}
	if order.PickupedAt != nil {
		resp["pickuped_at"] = order.PickupedAt.Format(time.RFC3339)
	}
	return resp
}

func (h *Handlers) Healthz(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("OK"))
}

func (h *Handlers) Readyz(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("Ready"))
}
