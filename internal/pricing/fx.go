package pricing

import (
	"github.com/prepware/creditengine/internal/pricing/repository"
	"github.com/prepware/creditengine/internal/pricing/service"
	"go.uber.org/fx"
)

var Module = fx.Module("pricing.service",
	fx.Provide(repository.Provide),
	fx.Provide(service.NewService),
)
