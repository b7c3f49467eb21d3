package application

import (
	"context"

	"nexus-ledger/internal/pkg/logger"
	auditapp "nexus-ledger/internal/service/audit/application"
	audit "nexus-ledger/internal/service/audit/domain"
	"nexus-ledger/internal/service/inventory/domain"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// StockPage 库存分页
type StockPage struct {
	Items    []domain.StockRecord `json:"items"`
	Total    int64                `json:"total"`
	Page     int                  `json:"page"`
	PageSize int                  `json:"pageSize"`
}

// StockQueryService 库存只读查询，结果只用于展示，不能作为扣减依据
type StockQueryService struct {
	reader domain.StockReader
	cache  domain.SnapshotCache
	tracer trace.Tracer
}

// NewStockQueryService cache 可以为 nil
func NewStockQueryService(reader domain.StockReader, cache domain.SnapshotCache, tracer trace.Tracer) *StockQueryService {
	return &StockQueryService{reader: reader, cache: cache, tracer: tracer}
}

// Get 先读快照缓存，未命中再查库并回填
func (s *StockQueryService) Get(ctx context.Context, id uint64) (*domain.StockRecord, error) {
	ctx, span := s.tracer.Start(ctx, "StockQueryService.Get")
	defer span.End()
	span.SetAttributes(attribute.Int64("stock.id", int64(id)))

	if s.cache != nil {
		rec, hit, err := s.cache.Get(ctx, id)
		if err != nil {
			logger.Ctx(ctx).Warn().Err(err).Uint64("stock_id", id).Msg("snapshot cache unavailable, falling back to database")
		} else if hit {
			span.SetAttributes(attribute.Bool("cache.hit", true))
			return rec, nil
		}
	}

	rec, err := s.reader.Get(ctx, id)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	if s.cache != nil {
		if err := s.cache.Put(ctx, rec); err != nil {
			logger.Ctx(ctx).Warn().Err(err).Uint64("stock_id", id).Msg("failed to fill snapshot cache")
		}
	}
	return rec, nil
}

// List 分页列出库存
func (s *StockQueryService) List(ctx context.Context, page, pageSize int) (*StockPage, error) {
	ctx, span := s.tracer.Start(ctx, "StockQueryService.List")
	defer span.End()

	items, total, err := s.reader.List(ctx, page, pageSize)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	return &StockPage{Items: items, Total: total, Page: page, PageSize: pageSize}, nil
}

// Reconciler 用审计记录核对库存行当前的预占量
type Reconciler struct {
	reader domain.StockReader
	audit  *auditapp.QueryService
}

// NewReconciler 创建对账器
func NewReconciler(reader domain.StockReader, auditQuery *auditapp.QueryService) *Reconciler {
	return &Reconciler{reader: reader, audit: auditQuery}
}

// Reconcile 读取库中最新值（不走快照缓存）后与审计累计值比较
func (r *Reconciler) Reconcile(ctx context.Context, id uint64) (*auditapp.ReconcileResult, error) {
	rec, err := r.reader.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	return r.audit.Reconcile(ctx, audit.LedgerStock, id, rec.ReservedQuantity)
}
