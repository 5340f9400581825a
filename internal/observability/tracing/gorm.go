package tracing

import (
	"github.com/uptrace/opentelemetry-go-extra/otelgorm"
	"gorm.io/gorm"
)

// InstrumentDB attaches span creation to every gorm statement.
// Query variables are never recorded.
func InstrumentDB(db *gorm.DB, cfg Config) error {
	if db == nil || !cfg.Enabled {
		return nil
	}
	return db.Use(otelgorm.NewPlugin(
		otelgorm.WithDBName(cfg.ServiceName),
		otelgorm.WithoutQueryVariables(),
	))
}
