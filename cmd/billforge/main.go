package main

import (
	"github.com/bwmarrin/snowflake"
	"go.uber.org/fx"

	"github.com/billforge/billforge/internal/clock"
	"github.com/billforge/billforge/internal/config"
	"github.com/billforge/billforge/internal/document"
	"github.com/billforge/billforge/internal/migration"
	"github.com/billforge/billforge/internal/observability"
	"github.com/billforge/billforge/internal/payment"
	"github.com/billforge/billforge/internal/schedule"
	"github.com/billforge/billforge/internal/scheduler"
	"github.com/billforge/billforge/internal/server"
	"github.com/billforge/billforge/pkg/db"
	"github.com/billforge/billforge/pkg/telemetry"
)

func main() {
	app := fx.New(
		// Core infrastructure
		config.Module,
		observability.Module,
		telemetry.Module,
		fx.Provide(RegisterSnowflake),
		db.Module,
		clock.Module,
		migration.Module,

		// Functional domains
		document.Module,
		payment.Module,
		schedule.Module,
		scheduler.Module,

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
