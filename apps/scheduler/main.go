package main

import (
	"github.com/bwmarrin/snowflake"
	"go.uber.org/fx"

	"github.com/billforge/billforge/internal/clock"
	"github.com/billforge/billforge/internal/config"
	"github.com/billforge/billforge/internal/migration"
	"github.com/billforge/billforge/internal/observability"
	"github.com/billforge/billforge/internal/schedule"
	"github.com/billforge/billforge/internal/scheduler"
	"github.com/billforge/billforge/pkg/db"
	"github.com/billforge/billforge/pkg/telemetry"
)

// Headless document generation worker. Runs the recurring schedule
// batch loop without the HTTP surface.
func main() {
	app := fx.New(
		config.Module,
		observability.Module,
		telemetry.Module,
		fx.Provide(RegisterSnowflake),
		db.Module,
		clock.Module,
		migration.Module,

		schedule.Module,
		scheduler.Module,
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
