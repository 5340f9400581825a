package main

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/merchline/internal/accesscontrol"
	"github.com/smallbiznis/merchline/internal/account"
	accountdomain "github.com/smallbiznis/merchline/internal/account/domain"
	"github.com/smallbiznis/merchline/internal/authorization"
	"github.com/smallbiznis/merchline/internal/campaign"
	"github.com/smallbiznis/merchline/internal/catalog"
	"github.com/smallbiznis/merchline/internal/clock"
	"github.com/smallbiznis/merchline/internal/config"
	"github.com/smallbiznis/merchline/internal/lock"
	"github.com/smallbiznis/merchline/internal/logger"
	"github.com/smallbiznis/merchline/internal/migration"
	"github.com/smallbiznis/merchline/internal/observability"
	"github.com/smallbiznis/merchline/internal/order"
	"github.com/smallbiznis/merchline/internal/orderquantity"
	"github.com/smallbiznis/merchline/internal/providers"
	"github.com/smallbiznis/merchline/internal/scheduler"
	"github.com/smallbiznis/merchline/internal/seed"
	"github.com/smallbiznis/merchline/internal/server"
	"github.com/smallbiznis/merchline/pkg/db"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

func main() {
	app := fx.New(
		// Core Infrastructure
		config.Module,
		logger.Module,
		observability.Module,
		fx.Provide(RegisterSnowflake),
		db.Module,
		migration.Module,
		clock.Module,
		lock.Module,
		authorization.Module,
		providers.Module,

		// Functional Domains
		account.Module,
		accesscontrol.Module,
		catalog.Module,
		orderquantity.Module,
		campaign.Module,
		order.Module,

		fx.Invoke(seedPlatformAdmin),

		scheduler.Module,
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

func seedPlatformAdmin(cfg config.Config, conn *gorm.DB, node *snowflake.Node, repo accountdomain.Repository, log *zap.Logger) error {
	if cfg.SeedAdminEmail == "" {
		return nil
	}
	user, err := seed.EnsurePlatformAdmin(context.Background(), conn, node, repo, cfg.SeedAdminEmail)
	if err != nil {
		return err
	}
	log.Info("platform admin ready", zap.String("user_id", user.ID.String()))
	return nil
}
