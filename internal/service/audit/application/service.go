// internal/service/audit/application/service.go
package application

import (
	"context"

	"nexus-ledger/internal/service/audit/domain"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// Page 分页结果
type Page struct {
	Items    []domain.Entry `json:"items"`
	Total    int64          `json:"total"`
	Page     int            `json:"page"`
	PageSize int            `json:"pageSize"`
}

// ReconcileResult 对账结果：审计记录累计的预占变化应等于台账当前的预占量
type ReconcileResult struct {
	LedgerType       domain.LedgerType `json:"ledgerType"`
	LedgerID         uint64            `json:"ledgerId"`
	AuditReservedSum int64             `json:"auditReservedSum"`
	CurrentReserved  int64             `json:"currentReserved"`
	Consistent       bool              `json:"consistent"`
}

// QueryService 审计查询与对账
type QueryService struct {
	repo   domain.Repository
	tracer trace.Tracer
}

// NewQueryService 创建查询服务
func NewQueryService(repo domain.Repository, tracer trace.Tracer) *QueryService {
	return &QueryService{repo: repo, tracer: tracer}
}

// List 按台账、订单号或时间范围分页查询
func (s *QueryService) List(ctx context.Context, f domain.Filter) (*Page, error) {
	ctx, span := s.tracer.Start(ctx, "AuditQueryService.List")
	defer span.End()

	f = f.Normalize()
	items, total, err := s.repo.List(ctx, f)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	return &Page{Items: items, Total: total, Page: f.Page, PageSize: f.PageSize}, nil
}

// Reconcile 校验某个台账行的预占量能否由审计记录完整重建
func (s *QueryService) Reconcile(ctx context.Context, ledgerType domain.LedgerType, ledgerID uint64, currentReserved int64) (*ReconcileResult, error) {
	ctx, span := s.tracer.Start(ctx, "AuditQueryService.Reconcile")
	defer span.End()
	span.SetAttributes(
		attribute.String("ledger.type", string(ledgerType)),
		attribute.Int64("ledger.id", int64(ledgerID)),
	)

	sum, err := s.repo.SumReservedDelta(ctx, ledgerType, ledgerID)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	res := &ReconcileResult{
		LedgerType:       ledgerType,
		LedgerID:         ledgerID,
		AuditReservedSum: sum,
		CurrentReserved:  currentReserved,
		Consistent:       sum == currentReserved,
	}
	span.SetAttributes(attribute.Bool("ledger.consistent", res.Consistent))
	return res, nil
}
