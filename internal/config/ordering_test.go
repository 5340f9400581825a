package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestOrderingConfigHolderDefaults(t *testing.T) {
	var holder *OrderingConfigHolder
	assert.Equal(t, DefaultOrderingConfig(), holder.Get())

	empty := &OrderingConfigHolder{}
	assert.Equal(t, DefaultMaxOrderQuantity, empty.Get().MaxQuantity)
}

func TestStaticOrderingConfigHolder(t *testing.T) {
	holder := NewStaticOrderingConfigHolder(OrderingConfig{MaxQuantity: 250, NearThresholdPercent: 90})
	cfg := holder.Get()
	assert.Equal(t, 250, cfg.MaxQuantity)
	assert.Equal(t, 90, cfg.NearThresholdPercent)
}

func TestValidateOrderingConfig(t *testing.T) {
	assert.NoError(t, validateOrderingConfig(DefaultOrderingConfig()))
	assert.Error(t, validateOrderingConfig(OrderingConfig{MaxQuantity: 0, NearThresholdPercent: 80}))
	assert.Error(t, validateOrderingConfig(OrderingConfig{MaxQuantity: 10, NearThresholdPercent: 120}))
}

func TestLoadReadsEnvironment(t *testing.T) {
	t.Setenv("APP_SERVICE", "merchline-test")
	t.Setenv("REDIS_ADDR", "redis:6379")
	t.Setenv("EMAIL_ENABLED", "yes")
	t.Setenv("ACL_CACHE_TTL_SECONDS", "30")

	cfg := Load()
	assert.Equal(t, "merchline-test", cfg.AppName)
	assert.True(t, cfg.Redis.Enabled())
	assert.True(t, cfg.Email.Enabled)
	assert.Equal(t, float64(30), cfg.ACLCacheTTL.Seconds())
}
