package main

import (
	"github.com/bwmarrin/snowflake"
	"github.com/prepware/creditengine/internal/aiusage"
	"github.com/prepware/creditengine/internal/balance"
	"github.com/prepware/creditengine/internal/billing"
	"github.com/prepware/creditengine/internal/cache"
	"github.com/prepware/creditengine/internal/clock"
	"github.com/prepware/creditengine/internal/config"
	"github.com/prepware/creditengine/internal/events"
	"github.com/prepware/creditengine/internal/ledger"
	"github.com/prepware/creditengine/internal/logger"
	"github.com/prepware/creditengine/internal/migration"
	"github.com/prepware/creditengine/internal/observability"
	"github.com/prepware/creditengine/internal/pricing"
	"github.com/prepware/creditengine/internal/ratelimit"
	"github.com/prepware/creditengine/internal/server"
	"github.com/prepware/creditengine/pkg/db"
	"go.uber.org/fx"
)

func main() {
	app := fx.New(
		// Core infrastructure
		config.Module,
		logger.Module,
		observability.Module,
		fx.Provide(RegisterSnowflake),
		db.Module,
		clock.Module,
		cache.Module,
		migration.Module,

		// Functional domains
		pricing.Module,
		balance.Module,
		ledger.Module,
		aiusage.Module,
		billing.Module,
		events.Module,
		ratelimit.Module,

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
