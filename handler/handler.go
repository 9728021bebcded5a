package handler

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"storefront-cart/cart"
	"storefront-cart/checkout"
	models "storefront-cart/model"
	"storefront-cart/service"
)

// HeaderCartSession carries the opaque session id a cart belongs to.
const HeaderCartSession = "X-Cart-Session"

// Handler is the HTTP layer that talks to service.ServiceInterface
type Handler struct {
	svc    service.ServiceInterface
	logger *zap.Logger
}

// NewHandler returns a Handler instance
func NewHandler(s service.ServiceInterface, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{svc: s, logger: logger}
}

// RegisterRoutes registers all routes on the provided router
func (h *Handler) RegisterRoutes(r *mux.Router) {
	r.Use(h.logRequests)

	r.HandleFunc("/healthz", h.Health).Methods("GET")

	// Cart
	r.HandleFunc("/cart", h.GetCart).Methods("GET")
	r.HandleFunc("/cart", h.ClearCart).Methods("DELETE")
	r.HandleFunc("/cart/items", h.AddToCart).Methods("POST")
	r.HandleFunc("/cart/items/{id}", h.RemoveFromCart).Methods("DELETE")

	// Checkout
	r.HandleFunc("/checkout", h.Checkout).Methods("POST")
}

// --- request / response shapes ---
type addItemReq struct {
	ID       string           `json:"id"`
	Name     string           `json:"name"`
	Price    *decimal.Decimal `json:"price"`
	Currency string           `json:"currency"`
	Image    string           `json:"image,omitempty"`
	Category string           `json:"category,omitempty"`
}

type cartResp struct {
	service.CartDTO
	Added   *bool `json:"added,omitempty"`
	Removed *bool `json:"removed,omitempty"`
}

type errorResp struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
}

// --- helpers ---
func writeJSON(w http.ResponseWriter, code int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeErr(w http.ResponseWriter, code int, errCode, msg string) {
	writeJSON(w, code, errorResp{Error: errCode, Message: msg})
}

// maxBodyBytes caps request bodies; a cart line or checkout form is far smaller.
const maxBodyBytes = 1 << 20

// decodeJSON reads r's body into v and writes the error response itself when
// that fails. It reports whether v was decoded.
func decodeJSON(w http.ResponseWriter, r *http.Request, v interface{}) bool {
	err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(v)
	if err == nil {
		return true
	}
	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) {
		writeErr(w, http.StatusRequestEntityTooLarge, "body_too_large", "request body exceeds 1 MiB")
		return false
	}
	writeErr(w, http.StatusBadRequest, "invalid_json", err.Error())
	return false
}

// writeServiceErr maps known errors to status codes.
func (h *Handler) writeServiceErr(w http.ResponseWriter, r *http.Request, err error) {
	var apiErr *checkout.APIError
	switch {
	case errors.Is(err, cart.ErrNoSession):
		writeErr(w, http.StatusBadRequest, "session_required", HeaderCartSession+" header is required")
	case errors.Is(err, cart.ErrInvalidSession):
		writeErr(w, http.StatusBadRequest, "invalid_session", HeaderCartSession+" must be a UUID")
	case errors.Is(err, cart.ErrInvalidItem):
		writeErr(w, http.StatusBadRequest, "invalid_item", err.Error())
	case errors.Is(err, checkout.ErrEmptyCart):
		writeErr(w, http.StatusConflict, "empty_cart", err.Error())
	case errors.Is(err, checkout.ErrInvalidDetails):
		writeErr(w, http.StatusBadRequest, "invalid_details", err.Error())
	case errors.Is(err, checkout.ErrMixedCurrency):
		writeErr(w, http.StatusUnprocessableEntity, "mixed_currency", err.Error())
	case errors.Is(err, cart.ErrPersist):
		h.logger.Error("cart storage failure", zap.String("path", r.URL.Path), zap.Error(err))
		writeErr(w, http.StatusServiceUnavailable, "storage_unavailable", "")
	case errors.As(err, &apiErr):
		writeErr(w, http.StatusBadGateway, "order_api_error", apiErr.Message)
	case errors.Is(err, checkout.ErrOrderSubmit):
		h.logger.Warn("order api unreachable", zap.Error(err))
		writeErr(w, http.StatusBadGateway, "order_api_unavailable", "")
	default:
		h.logger.Error("request failed", zap.String("path", r.URL.Path), zap.Error(err))
		writeErr(w, http.StatusInternalServerError, "internal_error", "")
	}
}

func session(r *http.Request) string { return r.Header.Get(HeaderCartSession) }

// --- Handler ---

// Health handles GET /healthz
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// GetCart handles GET /cart
func (h *Handler) GetCart(w http.ResponseWriter, r *http.Request) {
	dto, err := h.svc.GetCart(r.Context(), session(r))
	if err != nil {
		h.writeServiceErr(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, cartResp{CartDTO: dto})
}

// AddToCart handles POST /cart/items
// body: { "id": "p1", "name": "Mug", "price": 5000, "currency": "RWF" }
// 201 when added, 200 when the item was already in the cart.
func (h *Handler) AddToCart(w http.ResponseWriter, r *http.Request) {
	var req addItemReq
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.Price == nil {
		writeErr(w, http.StatusBadRequest, "invalid_item", "price is required")
		return
	}

	added, dto, err := h.svc.AddToCart(r.Context(), session(r), models.CartLineItem{
		ID:       req.ID,
		Name:     req.Name,
		Price:    *req.Price,
		Currency: req.Currency,
		Image:    req.Image,
		Category: req.Category,
	})
	if err != nil {
		h.writeServiceErr(w, r, err)
		return
	}

	code := http.StatusOK
	if added {
		code = http.StatusCreated
	}
	writeJSON(w, code, cartResp{CartDTO: dto, Added: &added})
}

// RemoveFromCart handles DELETE /cart/items/{id}
func (h *Handler) RemoveFromCart(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	removed, dto, err := h.svc.RemoveFromCart(r.Context(), session(r), id)
	if err != nil {
		h.writeServiceErr(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, cartResp{CartDTO: dto, Removed: &removed})
}

// ClearCart handles DELETE /cart
func (h *Handler) ClearCart(w http.ResponseWriter, r *http.Request) {
	if err := h.svc.ClearCart(r.Context(), session(r)); err != nil {
		h.writeServiceErr(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "cleared"})
}

// Checkout handles POST /checkout
// body: { "shipping_address": "...", "shipping_phone": "...", "customer_notes": "...", "shipping_fee": 1500 }
func (h *Handler) Checkout(w http.ResponseWriter, r *http.Request) {
	var req service.CheckoutInput
	if !decodeJSON(w, r, &req) {
		return
	}
	order, err := h.svc.Checkout(r.Context(), session(r), req)
	if err != nil {
		h.writeServiceErr(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, order)
}

// statusRecorder captures the response code for request logging.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (s *statusRecorder) WriteHeader(code int) {
	s.status = code
	s.ResponseWriter.WriteHeader(code)
}

func (h *Handler) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		h.logger.Info("http request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", rec.status),
			zap.Duration("latency", time.Since(start)),
		)
	})
}
