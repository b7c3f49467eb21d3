package wiring

import (
	"context"
	"os"
	"time"

	"nexus-ledger/internal/pkg/logger"
	invdomain "nexus-ledger/internal/service/inventory/domain"
	invinfra "nexus-ledger/internal/service/inventory/infrastructure"
	promodomain "nexus-ledger/internal/service/promotion/domain"
	promoinfra "nexus-ledger/internal/service/promotion/infrastructure"

	"github.com/go-playground/validator/v10"
	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
	"gorm.io/gorm"
)

// SeedData 本地开发与压测用的初始台账
type SeedData struct {
	Stocks []SeedStock `yaml:"stocks" validate:"dive"`
	Promos []SeedPromo `yaml:"promos" validate:"dive"`
}

// SeedStock 一行库存及其绑定的商品
type SeedStock struct {
	SKU         string        `yaml:"sku" validate:"required"`
	Name        string        `yaml:"name"`
	Stock       int64         `yaml:"stock" validate:"gte=0"`
	Available   int64         `yaml:"available" validate:"gte=0"`
	SafetyStock int64         `yaml:"safetyStock" validate:"gte=0"`
	Products    []SeedBinding `yaml:"products" validate:"dive"`
}

type SeedBinding struct {
	ProductID string `yaml:"productId" validate:"required"`
	Mode      string `yaml:"mode" validate:"omitempty,oneof=fixed random"`
	Priority  int    `yaml:"priority"`
}

type SeedPromo struct {
	Code      string        `yaml:"code" validate:"required"`
	Name      string        `yaml:"name"`
	Total     int64         `yaml:"total" validate:"gte=0"`
	ValidFor  time.Duration `yaml:"validFor"` // 0 表示 30 天
	Condition string        `yaml:"condition"`
}

// SeedResult 写入后的 ID，按 SKU / Code 索引
type SeedResult struct {
	Stocks map[string]uint64
	Promos map[string]uint64
}

// LoadSeed 读取 YAML 格式的种子文件
func LoadSeed(path string) (*SeedData, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "seed: read %s", path)
	}
	var data SeedData
	if err := yaml.Unmarshal(raw, &data); err != nil {
		return nil, errors.Wrapf(err, "seed: parse %s", path)
	}
	if err := validator.New().Struct(&data); err != nil {
		return nil, errors.Wrap(err, "seed: validation failed")
	}
	return &data, nil
}

// Seed 在一个事务中建档。available 为 0 时与 stock 相同。
func Seed(ctx context.Context, db *gorm.DB, data *SeedData, now time.Time) (*SeedResult, error) {
	res := &SeedResult{Stocks: map[string]uint64{}, Promos: map[string]uint64{}}
	err := db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		stocks := invinfra.NewGormStockRepository(tx)
		for _, s := range data.Stocks {
			available := s.Available
			if available == 0 {
				available = s.Stock
			}
			rec := &invdomain.StockRecord{
				SKU:               s.SKU,
				Name:              s.Name,
				Stock:             s.Stock,
				AvailableQuantity: available,
				SafetyStock:       s.SafetyStock,
				Active:            true,
			}
			if err := stocks.Create(ctx, rec); err != nil {
				return errors.WithMessagef(err, "seed stock %s", s.SKU)
			}
			res.Stocks[s.SKU] = rec.ID
			for _, p := range s.Products {
				mode := invdomain.BindingMode(p.Mode)
				if mode == "" {
					mode = invdomain.BindingFixed
				}
				b := &invdomain.Binding{ProductID: p.ProductID, StockID: rec.ID, Mode: mode, Priority: p.Priority}
				if err := stocks.CreateBinding(ctx, b); err != nil {
					return errors.WithMessagef(err, "seed binding %s", p.ProductID)
				}
			}
		}

		promos := promoinfra.NewGormPromoRepository(tx)
		for _, p := range data.Promos {
			validFor := p.ValidFor
			if validFor <= 0 {
				validFor = 30 * 24 * time.Hour
			}
			code := &promodomain.PromoCode{
				Code:          p.Code,
				Name:          p.Name,
				TotalQuantity: p.Total,
				ValidFrom:     now,
				ValidTo:       now.Add(validFor),
				Status:        promodomain.StatusActive,
				Condition:     p.Condition,
			}
			if err := promos.Create(ctx, code); err != nil {
				return errors.WithMessagef(err, "seed promo %s", p.Code)
			}
			res.Promos[p.Code] = code.ID
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	logger.Ctx(ctx).Info().Int("stocks", len(res.Stocks)).Int("promos", len(res.Promos)).Msg("seed data written")
	return res, nil
}
