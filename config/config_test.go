package config

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func TestLoadDefaults(t *testing.T) {
	cfg := Load()

	assert.Equal(t, "8080", cfg.Server.Port)
	assert.True(t, cfg.Business.CommissionRate.Equal(decimalOf("0.05")))
	assert.True(t, cfg.Business.InspectorShare.Equal(decimalOf("0.8")))
	assert.Equal(t, int64(100), cfg.Business.InspectionFee)
	assert.Equal(t, int64(1000), cfg.Business.PointsPerCurrency)
	assert.Equal(t, 30*time.Second, cfg.Business.IdempotencyLockTTL)
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("COMMISSION_RATE", "0.1")
	t.Setenv("INSPECTION_FEE_POINTS", "250")
	t.Setenv("DATABASE_DRIVER", "memory")
	t.Setenv("KAFKA_BROKERS", "a:9092,b:9092")
	t.Setenv("REDIS_ENABLED", "false")

	cfg := Load()

	assert.True(t, cfg.Business.CommissionRate.Equal(decimalOf("0.1")))
	assert.Equal(t, int64(250), cfg.Business.InspectionFee)
	assert.Equal(t, "memory", cfg.Database.Driver)
	assert.Equal(t, []string{"a:9092", "b:9092"}, cfg.Kafka.Brokers)
	assert.False(t, cfg.Redis.Enabled)
}

func TestInvalidDecimalFallsBack(t *testing.T) {
	t.Setenv("INSPECTOR_SHARE", "eighty")

	cfg := Load()

	assert.True(t, cfg.Business.InspectorShare.Equal(decimalOf("0.8")))
}

func TestInvalidIntegerFallsBack(t *testing.T) {
	t.Setenv("INSPECTION_FEE_POINTS", "abc")
	t.Setenv("POINTS_PER_CURRENCY_UNIT", "0")
	t.Setenv("IDEMPOTENCY_LOCK_TTL_SECONDS", "-5")
	t.Setenv("REDIS_DB", "two")

	cfg := Load()

	assert.Equal(t, int64(100), cfg.Business.InspectionFee)
	assert.Equal(t, int64(1000), cfg.Business.PointsPerCurrency)
	assert.Equal(t, 30*time.Second, cfg.Business.IdempotencyLockTTL)
	assert.Equal(t, 0, cfg.Redis.DB)
}

func decimalOf(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}
