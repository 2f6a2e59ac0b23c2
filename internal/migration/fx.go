package migration

import (
	"github.com/bwmarrin/snowflake"
	aiusagedomain "github.com/prepware/creditengine/internal/aiusage/domain"
	balancedomain "github.com/prepware/creditengine/internal/balance/domain"
	"github.com/prepware/creditengine/internal/config"
	"github.com/prepware/creditengine/internal/events"
	ledgerdomain "github.com/prepware/creditengine/internal/ledger/domain"
	pricingdomain "github.com/prepware/creditengine/internal/pricing/domain"
	"github.com/prepware/creditengine/internal/seed"
	"go.uber.org/fx"
	"gorm.io/gorm"
)

var Module = fx.Module("migrations",
	fx.Invoke(func(conn *gorm.DB, cfg config.Config, node *snowflake.Node) error {
		if cfg.DBType == "postgres" {
			sqlDB, err := conn.DB()
			if err != nil {
				return err
			}
			if err := RunMigrations(sqlDB); err != nil {
				return err
			}
		} else if err := AutoMigrate(conn); err != nil {
			return err
		}
		return seed.EnsureDefaultCatalog(conn, node)
	}),
)

// AutoMigrate covers the dialects the versioned SQL does not (sqlite for
// local and test use, mysql). The gorm tags carry the same indexes and
// constraints the SQL files declare.
func AutoMigrate(conn *gorm.DB) error {
	return conn.AutoMigrate(
		&pricingdomain.FeaturePrice{},
		&pricingdomain.ModelPrice{},
		&balancedomain.Account{},
		&ledgerdomain.Transaction{},
		&aiusagedomain.Record{},
		&events.OutboxEvent{},
	)
}
