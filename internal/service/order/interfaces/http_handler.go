package interfaces

import (
	"context"
	"net/http"

	"nexus-ledger/internal/pkg/httpx"
	invdomain "nexus-ledger/internal/service/inventory/domain"
	"nexus-ledger/internal/service/order/application"
	"nexus-ledger/internal/service/order/domain"
	promodomain "nexus-ledger/internal/service/promotion/domain"

	"github.com/pkg/errors"
	"go.opentelemetry.io/otel/baggage"
)

// CancelRequest 取消订单
type CancelRequest struct {
	Actor  string `json:"actor" validate:"required,max=64"`
	Reason string `json:"reason" validate:"max=255"`
}

// ResubmitRequest 要求用户重新提交
type ResubmitRequest struct {
	Reason string `json:"reason" validate:"required,max=255"`
}

// OrderHandler 订单生命周期的 HTTP 接口
type OrderHandler struct {
	orders OrderService
}

// NewOrderHandler 创建一个新的 HTTP 处理器实例
func NewOrderHandler(orders OrderService) *OrderHandler {
	return &OrderHandler{orders: orders}
}

// RegisterRoutes 在 ServeMux 上注册所有路由
func (h *OrderHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("POST /orders", h.handleCheckout)
	mux.HandleFunc("POST /orders/drafts", h.handleDraft)
	mux.HandleFunc("GET /orders/{id}", h.handleGet)
	mux.HandleFunc("POST /orders/{id}/submit", h.simple(h.orders.Submit))
	mux.HandleFunc("POST /orders/{id}/pay", h.simple(h.orders.MarkPaid))
	mux.HandleFunc("POST /orders/{id}/ship", h.simple(h.orders.Ship))
	mux.HandleFunc("POST /orders/{id}/complete", h.simple(h.orders.Complete))
	mux.HandleFunc("POST /orders/{id}/resubmit", h.simple(h.orders.Resubmit))
	mux.HandleFunc("POST /orders/{id}/resubmit-request", h.handleRequestResubmit)
	mux.HandleFunc("POST /orders/{id}/cancel", h.handleCancel)
	mux.HandleFunc("POST /orders/{id}/reprice", h.handleReprice)
}

func (h *OrderHandler) handleCheckout(w http.ResponseWriter, r *http.Request) {
	var req application.CheckoutRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.WriteError(w, r, err, http.StatusBadRequest)
		return
	}
	ctx := httpx.Context(r)
	// 网关通过 baggage 透传用户身份时以它为准
	if uid := baggage.FromContext(ctx).Member("user.id").Value(); uid != "" {
		req.UserID = uid
	}
	o, err := h.orders.Checkout(ctx, &req)
	if err != nil {
		httpx.WriteError(w, r, err, statusOf(err))
		return
	}
	httpx.WriteJSON(w, http.StatusCreated, o)
}

func (h *OrderHandler) handleDraft(w http.ResponseWriter, r *http.Request) {
	var req application.CheckoutRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.WriteError(w, r, err, http.StatusBadRequest)
		return
	}
	o, err := h.orders.CreateDraft(httpx.Context(r), &req)
	if err != nil {
		httpx.WriteError(w, r, err, statusOf(err))
		return
	}
	httpx.WriteJSON(w, http.StatusCreated, o)
}

func (h *OrderHandler) handleGet(w http.ResponseWriter, r *http.Request) {
	o, err := h.orders.Get(httpx.Context(r), r.PathValue("id"))
	if err != nil {
		httpx.WriteError(w, r, err, statusOf(err))
		return
	}
	httpx.WriteJSON(w, http.StatusOK, o)
}

func (h *OrderHandler) handleCancel(w http.ResponseWriter, r *http.Request) {
	var req CancelRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.WriteError(w, r, err, http.StatusBadRequest)
		return
	}
	ctx := httpx.Context(r)
	id := r.PathValue("id")
	if err := h.orders.Cancel(ctx, id, req.Actor, req.Reason); err != nil {
		httpx.WriteError(w, r, err, statusOf(err))
		return
	}
	o, err := h.orders.Get(ctx, id)
	if err != nil {
		httpx.WriteError(w, r, err, statusOf(err))
		return
	}
	httpx.WriteJSON(w, http.StatusOK, o)
}

func (h *OrderHandler) handleRequestResubmit(w http.ResponseWriter, r *http.Request) {
	var req ResubmitRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.WriteError(w, r, err, http.StatusBadRequest)
		return
	}
	o, err := h.orders.RequestResubmit(httpx.Context(r), r.PathValue("id"), req.Reason)
	if err != nil {
		httpx.WriteError(w, r, err, statusOf(err))
		return
	}
	httpx.WriteJSON(w, http.StatusOK, o)
}

func (h *OrderHandler) handleReprice(w http.ResponseWriter, r *http.Request) {
	var req application.RepriceRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.WriteError(w, r, err, http.StatusBadRequest)
		return
	}
	o, err := h.orders.Reprice(httpx.Context(r), r.PathValue("id"), &req)
	if err != nil {
		httpx.WriteError(w, r, err, statusOf(err))
		return
	}
	httpx.WriteJSON(w, http.StatusOK, o)
}

// simple 包装只需要订单 ID 的流转
func (h *OrderHandler) simple(fn func(ctx context.Context, id string) (*domain.Order, error)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		o, err := fn(httpx.Context(r), r.PathValue("id"))
		if err != nil {
			httpx.WriteError(w, r, err, statusOf(err))
			return
		}
		httpx.WriteJSON(w, http.StatusOK, o)
	}
}

func statusOf(err error) int {
	switch {
	case errors.Is(err, domain.ErrOrderNotFound),
		errors.Is(err, promodomain.ErrPromoNotFound):
		return http.StatusNotFound
	case errors.Is(err, invdomain.ErrInsufficientStock),
		errors.Is(err, promodomain.ErrCodeExhausted),
		errors.Is(err, promodomain.ErrCodeUnavailable),
		errors.Is(err, domain.ErrInvalidTransition):
		return http.StatusConflict
	case errors.Is(err, domain.ErrInvalidOrder),
		errors.Is(err, invdomain.ErrInvalidQuantity),
		errors.Is(err, invdomain.ErrNoBinding),
		errors.Is(err, promodomain.ErrInvalidCondition):
		return http.StatusUnprocessableEntity
	default:
		return 0
	}
}
