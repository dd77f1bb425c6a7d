package http

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/shopspring/decimal"

	"github.com/storefront/checkout/internal/entity"
	"github.com/storefront/checkout/internal/payfast"
	"github.com/storefront/checkout/internal/repository"
	"github.com/storefront/checkout/internal/service"
)

// Handler handles HTTP requests for the application.
type Handler struct {
	checkoutSvc  *service.CheckoutService
	reconcileSvc *service.ReconcileService
	catalog      repository.CatalogStore
	orders       repository.OrderStore
	payments     *payfast.Builder
}

func NewHandler(
	checkoutSvc *service.CheckoutService,
	reconcileSvc *service.ReconcileService,
	catalog repository.CatalogStore,
	orders repository.OrderStore,
	payments *payfast.Builder,
) *Handler {
	return &Handler{
		checkoutSvc:  checkoutSvc,
		reconcileSvc: reconcileSvc,
		catalog:      catalog,
		orders:       orders,
		payments:     payments,
	}
}

func (h *Handler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/products", h.handleGetProducts)
	mux.HandleFunc("GET /api/orders", h.handleListOrders)
	mux.HandleFunc("POST /api/orders", h.handleCreateOrder)
	mux.HandleFunc("GET /api/orders/{id}", h.handleGetOrder)
	mux.HandleFunc("POST /api/orders/{id}/pay", h.handleInitiatePayment)
	mux.HandleFunc("GET /api/coupons/validate", h.handleValidateCoupon)
	mux.HandleFunc("POST /api/payments/notify", h.handlePaymentNotify)
}

func (h *Handler) handleGetProducts(w http.ResponseWriter, r *http.Request) {
	products, err := h.catalog.FindAll(r.Context())
	if err != nil {
		slog.Error("Failed to get products", "err", err)
		http.Error(w, "internal server error", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, products)
}

type CreateOrderRequest struct {
	UserID          string               `json:"user_id,omitempty"`
	GuestContact    *entity.GuestContact `json:"guest_contact,omitempty"`
	Items           []entity.LineItem    `json:"items,omitempty"`
	ShippingAddress entity.Address       `json:"shipping_address"`
	PaymentMethod   string               `json:"payment_method"`
	CouponCode      string               `json:"coupon_code,omitempty"`
}

func (h *Handler) handleCreateOrder(w http.ResponseWriter, r *http.Request) {
	var req CreateOrderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body", "")
		return
	}

	order, err := h.checkoutSvc.CreateOrder(r.Context(), service.CreateOrderInput{
		UserID:          req.UserID,
		GuestContact:    req.GuestContact,
		Items:           req.Items,
		ShippingAddress: req.ShippingAddress,
		PaymentMethod:   req.PaymentMethod,
		CouponCode:      req.CouponCode,
	})
	if err != nil {
		writeCheckoutError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, order)
}

// recentOrdersLimit caps the back-office order listing.
const recentOrdersLimit = 20

func (h *Handler) handleListOrders(w http.ResponseWriter, r *http.Request) {
	orders, err := h.orders.FindRecent(r.Context(), recentOrdersLimit)
	if err != nil {
		slog.Error("Failed to list orders", "err", err)
		http.Error(w, "internal server error", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, orders)
}

func (h *Handler) handleGetOrder(w http.ResponseWriter, r *http.Request) {
	order, err := h.orders.FindByID(r.Context(), r.PathValue("id"))
	if errors.Is(err, repository.ErrNotFound) {
		writeError(w, http.StatusNotFound, "order not found", "")
		return
	}
	if err != nil {
		slog.Error("Failed to get order", "err", err)
		http.Error(w, "internal server error", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, order)
}

// handleInitiatePayment emits the signed redirect field map that sends the
// buyer to the gateway for an unpaid order.
func (h *Handler) handleInitiatePayment(w http.ResponseWriter, r *http.Request) {
	order, err := h.orders.FindByID(r.Context(), r.PathValue("id"))
	if errors.Is(err, repository.ErrNotFound) {
		writeError(w, http.StatusNotFound, "order not found", "")
		return
	}
	if err != nil {
		slog.Error("Failed to get order", "err", err)
		http.Error(w, "internal server error", http.StatusInternalServerError)
		return
	}
	if order.IsPaid {
		writeError(w, http.StatusConflict, "order already paid", "")
		return
	}

	fields := h.payments.PaymentFields(order)
	payload := make(map[string]string, len(fields))
	for _, f := range fields {
		payload[f.Key] = f.Value
	}
	writeJSON(w, http.StatusOK, payload)
}

func (h *Handler) handleValidateCoupon(w http.ResponseWriter, r *http.Request) {
	code := r.URL.Query().Get("code")
	if code == "" {
		writeError(w, http.StatusBadRequest, "code is required", "")
		return
	}
	subtotal, err := decimal.NewFromString(r.URL.Query().Get("subtotal"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "subtotal is required", "")
		return
	}

	discount, err := h.checkoutSvc.ValidateCoupon(r.Context(), code, subtotal)
	if err != nil {
		var couponErr *service.CouponError
		if errors.As(err, &couponErr) {
			writeJSON(w, http.StatusUnprocessableEntity, map[string]any{
				"valid":  false,
				"reason": string(couponErr.Reason),
			})
			return
		}
		slog.Error("Failed to validate coupon", "err", err)
		http.Error(w, "internal server error", http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"valid":    true,
		"discount": discount,
	})
}

// handlePaymentNotify ingests the gateway's asynchronous ITN. Per webhook
// convention it always acknowledges success; anything abnormal is logged,
// never surfaced, so the gateway does not retry-storm us.
func (h *Handler) handlePaymentNotify(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		slog.Error("Failed to read notification body", "err", err)
		w.WriteHeader(http.StatusOK)
		return
	}

	if err := h.reconcileSvc.HandleNotification(r.Context(), string(body)); err != nil {
		slog.Error("Payment reconciliation anomaly", "err", err)
	}
	w.WriteHeader(http.StatusOK)
}

// writeCheckoutError maps checkout pipeline failures onto the HTTP taxonomy:
// validation 400, unknown product 404, insufficient stock 409, coupon
// rejection 422, everything else a retryable 500.
func writeCheckoutError(w http.ResponseWriter, err error) {
	var (
		addrErr   *service.AddressError
		itemErr   *service.ItemError
		couponErr *service.CouponError
	)
	switch {
	case errors.Is(err, service.ErrEmptyCart),
		errors.Is(err, service.ErrGuestContactRequired),
		errors.Is(err, service.ErrInvalidQuantity):
		writeError(w, http.StatusBadRequest, err.Error(), "")
	case errors.As(err, &addrErr):
		writeError(w, http.StatusBadRequest, addrErr.Error(), "")
	case errors.As(err, &itemErr):
		status := http.StatusConflict
		if errors.Is(itemErr.Err, repository.ErrNotFound) {
			status = http.StatusNotFound
		} else if errors.Is(itemErr.Err, service.ErrInvalidQuantity) {
			status = http.StatusBadRequest
		}
		writeError(w, status, itemErr.Error(), itemErr.ProductID)
	case errors.As(err, &couponErr):
		writeError(w, http.StatusUnprocessableEntity, couponErr.Error(), string(couponErr.Reason))
	default:
		slog.Error("Failed to create order", "err", err)
		http.Error(w, "failed to create order", http.StatusInternalServerError)
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg, detail string) {
	body := map[string]string{"error": msg}
	if detail != "" {
		body["detail"] = detail
	}
	writeJSON(w, status, body)
}

// EnableCORS is a middleware to allow the storefront frontend to connect.
func EnableCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}
		next.ServeHTTP(w, r)
	})
}
