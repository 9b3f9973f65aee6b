package main

import (
	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/disburse/internal/audit"
	"github.com/smallbiznis/disburse/internal/batch"
	"github.com/smallbiznis/disburse/internal/clock"
	"github.com/smallbiznis/disburse/internal/commission"
	"github.com/smallbiznis/disburse/internal/config"
	"github.com/smallbiznis/disburse/internal/events"
	"github.com/smallbiznis/disburse/internal/migration"
	"github.com/smallbiznis/disburse/internal/observability"
	"github.com/smallbiznis/disburse/internal/orchestrator"
	"github.com/smallbiznis/disburse/internal/payee"
	"github.com/smallbiznis/disburse/internal/provider"
	"github.com/smallbiznis/disburse/internal/seed"
	"github.com/smallbiznis/disburse/internal/server"
	"github.com/smallbiznis/disburse/pkg/db"
	"go.uber.org/fx"
	"gorm.io/gorm"
)

func main() {
	app := fx.New(
		config.Module,
		observability.Module,
		fx.Provide(RegisterSnowflake),
		db.Module,
		clock.Module,

		fx.Invoke(RunMigrations),
		fx.Invoke(SeedDemoData),

		audit.Module,
		commission.Module,
		payee.Module,
		provider.Module,
		events.Module,
		batch.Module,
		orchestrator.Module,
		server.Module,
	)
	app.Run()
}

func RegisterSnowflake() *snowflake.Node {
	node, err := snowflake.NewNode(1)
	if err != nil {
		panic(err)
	}
	return node
}

func RunMigrations(conn *gorm.DB) error {
	sqlDB, err := conn.DB()
	if err != nil {
		return err
	}
	return migration.RunMigrations(sqlDB)
}

func SeedDemoData(cfg config.Config, conn *gorm.DB) error {
	if cfg.IsProduction() {
		return nil
	}
	return seed.EnsureDemoData(conn)
}
