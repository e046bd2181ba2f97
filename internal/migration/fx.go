package migration

import (
	"go.uber.org/fx"
	"gorm.io/gorm"

	"github.com/billforge/billforge/internal/config"
	documentdomain "github.com/billforge/billforge/internal/document/domain"
	notificationdomain "github.com/billforge/billforge/internal/notification/domain"
	paymentdomain "github.com/billforge/billforge/internal/payment/domain"
	scheduledomain "github.com/billforge/billforge/internal/schedule/domain"
)

var Module = fx.Module("migrations",
	fx.Invoke(func(conn *gorm.DB, cfg config.Config) error {
		if cfg.DBType != "postgres" {
			// The SQL migration files target Postgres. Other dialects
			// (sqlite for local runs) get the schema from the model
			// definitions instead.
			return conn.AutoMigrate(
				&documentdomain.Document{},
				&documentdomain.LineItem{},
				&paymentdomain.Payment{},
				&scheduledomain.RecurringSchedule{},
				&notificationdomain.Notification{},
			)
		}

		sqlDB, err := conn.DB()
		if err != nil {
			return err
		}
		return RunMigrations(sqlDB)
	}),
)
