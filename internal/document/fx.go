package document

import (
	"go.uber.org/fx"
	"gorm.io/gorm"

	documentdomain "github.com/billforge/billforge/internal/document/domain"
	"github.com/billforge/billforge/internal/document/service"
	"github.com/billforge/billforge/pkg/repository"
)

var Module = fx.Module("document.service",
	fx.Provide(
		func(db *gorm.DB) repository.Repository[documentdomain.Document] {
			return repository.ProvideStore[documentdomain.Document](db)
		},
		service.NewService,
	),
)
