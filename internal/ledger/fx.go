package ledger

import (
	"github.com/prepware/creditengine/internal/ledger/repository"
	"github.com/prepware/creditengine/internal/ledger/service"
	"go.uber.org/fx"
)

var Module = fx.Module("ledger.service",
	fx.Provide(repository.Provide),
	fx.Provide(service.NewService),
)
