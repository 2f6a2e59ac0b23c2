package balance

import (
	"github.com/prepware/creditengine/internal/balance/repository"
	"go.uber.org/fx"
)

var Module = fx.Module("balance.store",
	fx.Provide(repository.Provide),
)
