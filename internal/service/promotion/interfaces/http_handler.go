package interfaces

import (
	"net/http"

	"nexus-ledger/internal/pkg/httpx"
	"nexus-ledger/internal/service/promotion/application"
	"nexus-ledger/internal/service/promotion/domain"

	"github.com/pkg/errors"
)

// PromoPage 优惠码分页
type PromoPage struct {
	Items []domain.PromoCode `json:"items"`
	Total int64              `json:"total"`
}

// PromotionHandler 优惠码台账的只读 HTTP 接口
type PromotionHandler struct {
	engine *application.PromoEngine
}

// NewPromotionHandler 创建一个新的 HTTP 处理器实例
func NewPromotionHandler(engine *application.PromoEngine) *PromotionHandler {
	return &PromotionHandler{engine: engine}
}

// RegisterRoutes 在 ServeMux 上注册所有路由
func (h *PromotionHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /promos", h.handleList)
	mux.HandleFunc("GET /promos/{code}", h.handleGet)
}

func (h *PromotionHandler) handleList(w http.ResponseWriter, r *http.Request) {
	items, total, err := h.engine.List(httpx.Context(r), httpx.QueryInt(r, "page", 1), httpx.QueryInt(r, "pageSize", 50))
	if err != nil {
		httpx.WriteError(w, r, err, http.StatusInternalServerError)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, PromoPage{Items: items, Total: total})
}

func (h *PromotionHandler) handleGet(w http.ResponseWriter, r *http.Request) {
	p, err := h.engine.FindByCode(httpx.Context(r), r.PathValue("code"))
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, domain.ErrPromoNotFound) {
			status = http.StatusNotFound
		}
		httpx.WriteError(w, r, err, status)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, p)
}
