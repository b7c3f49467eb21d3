// cmd/ledger-migrate/main.go
package main

import (
	"context"
	"flag"
	"time"

	"nexus-ledger/internal/pkg/bootstrap"
	"nexus-ledger/internal/pkg/database"
	"nexus-ledger/internal/pkg/logger"
	"nexus-ledger/internal/wiring"
)

const serviceName = "ledger-migrate"

// main 建表，并可选地写入种子数据（-seed configs/seed.yaml）
func main() {
	seedPath := flag.String("seed", "", "optional seed file")
	flag.Parse()

	cfg := bootstrap.Init(serviceName)
	log := logger.Logger()

	db, err := database.Open(cfg.Infra.Database)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to open database")
	}
	if sqlDB, err := db.DB(); err == nil {
		defer sqlDB.Close()
	}

	if err := wiring.Migrate(db); err != nil {
		log.Fatal().Err(err).Msg("migration failed")
	}
	log.Info().Str("dialect", cfg.Infra.Database.Dialect).Msg("ledger tables migrated")

	if *seedPath == "" {
		return
	}
	data, err := wiring.LoadSeed(*seedPath)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load seed file")
	}
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()
	res, err := wiring.Seed(ctx, db, data, time.Now())
	if err != nil {
		log.Fatal().Err(err).Msg("seeding failed")
	}
	for sku, id := range res.Stocks {
		log.Info().Str("sku", sku).Uint64("stock_id", id).Msg("stock seeded")
	}
	for code, id := range res.Promos {
		log.Info().Str("code", code).Uint64("promo_id", id).Msg("promo seeded")
	}
}
