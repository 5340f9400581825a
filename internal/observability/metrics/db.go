package metrics

import (
	"strings"

	"go.uber.org/zap"
	"gorm.io/gorm"
	gormprometheus "gorm.io/plugin/prometheus"
)

// InstrumentDB publishes connection pool statistics for the shared gorm handle.
func InstrumentDB(db *gorm.DB, cfg Config, log *zap.Logger) error {
	if db == nil || !cfg.DBStatsEnabled {
		return nil
	}
	name := strings.TrimSpace(cfg.ServiceName)
	if name == "" {
		name = "merchline"
	}
	err := db.Use(gormprometheus.New(gormprometheus.Config{
		DBName:          name,
		RefreshInterval: 15,
		StartServer:     false,
	}))
	if err != nil {
		return err
	}
	if log != nil {
		log.Info("db stats collector registered", zap.String("db_name", name))
	}
	return nil
}
