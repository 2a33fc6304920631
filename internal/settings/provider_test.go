package settings

import (
	"bytes"
	"context"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/glowbook/glowbook-backend/internal/pricing"
	"github.com/glowbook/glowbook-backend/pkg/config"
	"github.com/glowbook/glowbook-backend/pkg/db/models"
	"github.com/glowbook/glowbook-backend/pkg/db/sqlitetest"
	"github.com/glowbook/glowbook-backend/pkg/enums"
	"github.com/glowbook/glowbook-backend/pkg/logger"
)

type memoryCache struct {
	data map[string]string
	sets int
}

func newMemoryCache() *memoryCache {
	return &memoryCache{data: map[string]string{}}
}

func (m *memoryCache) Get(_ context.Context, key string) (string, error) {
	v, ok := m.data[key]
	if !ok {
		return "", redis.Nil
	}
	return v, nil
}

func (m *memoryCache) Set(_ context.Context, key string, value any, _ time.Duration) error {
	m.sets++
	m.data[key] = value.(string)
	return nil
}

func (m *memoryCache) Del(_ context.Context, keys ...string) error {
	for _, k := range keys {
		delete(m.data, k)
	}
	return nil
}

func (m *memoryCache) SettingsKey(name string) string { return "gb:settings:" + name }

func testLogger() *logger.Logger {
	return logger.New(logger.Options{ServiceName: "settings-test", Output: &bytes.Buffer{}})
}

func defaults() pricing.PlatformSettings {
	return pricing.PlatformSettings{
		CommissionRate:    decimal.RequireFromString("0.10"),
		CommissionEnabled: true,
		ServiceFeeKind:    enums.AmountKindFixed,
		ServiceFeeValue:   decimal.RequireFromString("2"),
	}
}

func TestSnapshotFallsBackToDefaultsWithoutRow(t *testing.T) {
	conn := sqlitetest.Open(t)
	p, err := NewProvider(ProviderParams{DB: conn, Defaults: defaults(), Logger: testLogger()})
	require.NoError(t, err)

	snap, err := p.Snapshot(context.Background())
	require.NoError(t, err)
	assert.True(t, snap.CommissionRate.Equal(decimal.RequireFromString("0.10")))
	assert.Equal(t, enums.AmountKindFixed, snap.ServiceFeeKind)
}

func TestSnapshotReadsRowAndCaches(t *testing.T) {
	conn := sqlitetest.Open(t)
	require.NoError(t, conn.Create(&models.PlatformSetting{
		ID:                    1,
		CommissionRate:        decimal.RequireFromString("0.2"),
		CommissionEnabled:     true,
		ServiceFeeKind:        enums.AmountKindPercentage,
		ServiceFeeValue:       decimal.RequireFromString("5"),
		TaxRate:               decimal.RequireFromString("0.075"),
		TaxEnabled:            true,
		AllowConflictOverride: true,
		LoyaltyPointValue:     decimal.RequireFromString("0.01"),
		LoyaltyEarnRate:       decimal.RequireFromString("1"),
	}).Error)

	cache := newMemoryCache()
	p, err := NewProvider(ProviderParams{DB: conn, Cache: cache, TTL: time.Minute, Defaults: defaults(), Logger: testLogger()})
	require.NoError(t, err)

	ctx := context.Background()
	snap, err := p.Snapshot(ctx)
	require.NoError(t, err)
	assert.True(t, snap.CommissionRate.Equal(decimal.RequireFromString("0.2")))
	assert.True(t, snap.AllowConflictOverride)
	assert.Equal(t, 1, cache.sets)

	require.NoError(t, conn.Model(&models.PlatformSetting{}).Where("id = 1").Update("commission_rate", "0.3").Error)

	cached, err := p.Snapshot(ctx)
	require.NoError(t, err)
	assert.True(t, cached.CommissionRate.Equal(decimal.RequireFromString("0.2")), "cached snapshot should be served")

	require.NoError(t, p.Invalidate(ctx))
	fresh, err := p.Snapshot(ctx)
	require.NoError(t, err)
	assert.True(t, fresh.CommissionRate.Equal(decimal.RequireFromString("0.3")))
}

func TestDefaultsFromConfig(t *testing.T) {
	snap, err := DefaultsFromConfig(config.PlatformConfig{
		CommissionRate:    "0.15",
		CommissionEnabled: true,
		ServiceFeeKind:    "percentage",
		ServiceFeeValue:   "5",
		TaxRate:           "0",
		LoyaltyPointValue: "0.01",
		LoyaltyEarnRate:   "1",
	})
	require.NoError(t, err)
	assert.True(t, snap.CommissionRate.Equal(decimal.RequireFromString("0.15")))
	assert.Equal(t, enums.AmountKindPercentage, snap.ServiceFeeKind)

	_, err = DefaultsFromConfig(config.PlatformConfig{ServiceFeeKind: "flat"})
	require.Error(t, err)
}
