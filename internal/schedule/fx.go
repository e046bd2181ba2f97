package schedule

import (
	"go.uber.org/fx"
	"gorm.io/gorm"

	scheduledomain "github.com/billforge/billforge/internal/schedule/domain"
	"github.com/billforge/billforge/internal/schedule/service"
	"github.com/billforge/billforge/pkg/repository"
)

var Module = fx.Module("schedule.service",
	fx.Provide(
		func(db *gorm.DB) repository.Repository[scheduledomain.RecurringSchedule] {
			return repository.ProvideStore[scheduledomain.RecurringSchedule](db)
		},
		service.NewService,
	),
)
