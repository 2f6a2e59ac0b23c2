package aiusage

import (
	"github.com/prepware/creditengine/internal/aiusage/repository"
	"github.com/prepware/creditengine/internal/aiusage/service"
	"go.uber.org/fx"
)

var Module = fx.Module("aiusage.service",
	fx.Provide(repository.Provide),
	fx.Provide(service.NewService),
)
