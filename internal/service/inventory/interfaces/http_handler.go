package interfaces

import (
	"net/http"
	"time"

	"nexus-ledger/internal/pkg/httpx"
	auditapp "nexus-ledger/internal/service/audit/application"
	audit "nexus-ledger/internal/service/audit/domain"
	"nexus-ledger/internal/service/inventory/application"
	"nexus-ledger/internal/service/inventory/domain"

	"github.com/pkg/errors"
)

// AdjustRequest 管理端调整请求
type AdjustRequest struct {
	StockDelta     int64  `json:"stockDelta"`
	AvailableDelta int64  `json:"availableDelta"`
	Actor          string `json:"actor" validate:"required,max=64"`
	Reason         string `json:"reason" validate:"required,max=255"`
}

// InventoryHandler 库存台账的管理端 HTTP 接口。只暴露调整与查询，预占/释放/扣减只能经由订单链路调用。
type InventoryHandler struct {
	engine     *application.StockEngine
	query      *application.StockQueryService
	reconciler *application.Reconciler
	audit      *auditapp.QueryService
	feed       http.Handler
}

// NewInventoryHandler feed 为 nil 时不注册实时面板
func NewInventoryHandler(engine *application.StockEngine, query *application.StockQueryService,
	reconciler *application.Reconciler, auditQuery *auditapp.QueryService, feed http.Handler) *InventoryHandler {
	return &InventoryHandler{engine: engine, query: query, reconciler: reconciler, audit: auditQuery, feed: feed}
}

// RegisterRoutes 在 ServeMux 上注册所有路由
func (h *InventoryHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /stocks", h.handleList)
	mux.HandleFunc("GET /stocks/{id}", h.handleGet)
	mux.HandleFunc("POST /stocks/{id}/adjust", h.handleAdjust)
	mux.HandleFunc("GET /stocks/{id}/reconcile", h.handleReconcile)
	mux.HandleFunc("GET /audit", h.handleAudit)
	if h.feed != nil {
		mux.Handle("GET /ws/feed", h.feed)
	}
}

func (h *InventoryHandler) handleList(w http.ResponseWriter, r *http.Request) {
	page, err := h.query.List(httpx.Context(r), httpx.QueryInt(r, "page", 1), httpx.QueryInt(r, "pageSize", 50))
	if err != nil {
		httpx.WriteError(w, r, err, statusOf(err))
		return
	}
	httpx.WriteJSON(w, http.StatusOK, page)
}

func (h *InventoryHandler) handleGet(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.PathUint64(r, "id")
	if err != nil {
		httpx.WriteError(w, r, err, http.StatusBadRequest)
		return
	}
	rec, err := h.query.Get(httpx.Context(r), id)
	if err != nil {
		httpx.WriteError(w, r, err, statusOf(err))
		return
	}
	httpx.WriteJSON(w, http.StatusOK, rec)
}

func (h *InventoryHandler) handleAdjust(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.PathUint64(r, "id")
	if err != nil {
		httpx.WriteError(w, r, err, http.StatusBadRequest)
		return
	}
	var req AdjustRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.WriteError(w, r, err, http.StatusBadRequest)
		return
	}
	rec, err := h.engine.AdjustByDelta(httpx.Context(r), id, req.StockDelta, req.AvailableDelta, req.Actor, req.Reason)
	if err != nil {
		httpx.WriteError(w, r, err, statusOf(err))
		return
	}
	httpx.WriteJSON(w, http.StatusOK, rec)
}

func (h *InventoryHandler) handleReconcile(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.PathUint64(r, "id")
	if err != nil {
		httpx.WriteError(w, r, err, http.StatusBadRequest)
		return
	}
	res, err := h.reconciler.Reconcile(httpx.Context(r), id)
	if err != nil {
		httpx.WriteError(w, r, err, statusOf(err))
		return
	}
	httpx.WriteJSON(w, http.StatusOK, res)
}

func (h *InventoryHandler) handleAudit(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	f := audit.Filter{
		LedgerType: audit.LedgerType(q.Get("ledgerType")),
		OrderRef:   q.Get("orderRef"),
		Page:       httpx.QueryInt(r, "page", 1),
		PageSize:   httpx.QueryInt(r, "pageSize", 50),
	}
	if v := q.Get("ledgerId"); v != "" {
		id := httpx.QueryInt(r, "ledgerId", -1)
		if id < 0 {
			httpx.WriteError(w, r, errors.Errorf("invalid ledgerId %q", v), http.StatusBadRequest)
			return
		}
		f.LedgerID = uint64(id)
	}
	for name, dst := range map[string]*time.Time{"from": &f.From, "to": &f.To} {
		if v := q.Get(name); v != "" {
			t, err := time.Parse(time.RFC3339, v)
			if err != nil {
				httpx.WriteError(w, r, errors.Wrapf(err, "invalid %s", name), http.StatusBadRequest)
				return
			}
			*dst = t
		}
	}

	page, err := h.audit.List(httpx.Context(r), f)
	if err != nil {
		httpx.WriteError(w, r, err, statusOf(err))
		return
	}
	httpx.WriteJSON(w, http.StatusOK, page)
}

func statusOf(err error) int {
	switch {
	case errors.Is(err, domain.ErrStockNotFound):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrInsufficientStock):
		return http.StatusConflict
	case errors.Is(err, domain.ErrInvalidAdjustment), errors.Is(err, domain.ErrInvalidQuantity):
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}
