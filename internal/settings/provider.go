package settings

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/glowbook/glowbook-backend/internal/pricing"
	"github.com/glowbook/glowbook-backend/pkg/config"
	"github.com/glowbook/glowbook-backend/pkg/db"
	"github.com/glowbook/glowbook-backend/pkg/db/models"
	"github.com/glowbook/glowbook-backend/pkg/enums"
	"github.com/glowbook/glowbook-backend/pkg/logger"
)

const (
	platformCacheName = "platform"
	platformRowID     = 1
)

type cache interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key string, value any, ttl time.Duration) error
	Del(ctx context.Context, keys ...string) error
	SettingsKey(name string) string
}

// Source yields the platform settings snapshot for one booking attempt.
type Source interface {
	Snapshot(ctx context.Context) (pricing.PlatformSettings, error)
}

// ProviderParams wires a Provider.
type ProviderParams struct {
	DB       *gorm.DB
	Cache    cache
	TTL      time.Duration
	Defaults pricing.PlatformSettings
	Logger   *logger.Logger
}

// Provider loads platform_settings, caching the snapshot in Redis.
type Provider struct {
	db       *gorm.DB
	cache    cache
	ttl      time.Duration
	defaults pricing.PlatformSettings
	logg     *logger.Logger
}

// NewProvider builds a settings provider. Cache is optional.
func NewProvider(params ProviderParams) (*Provider, error) {
	if params.DB == nil {
		return nil, fmt.Errorf("db required")
	}
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	return &Provider{
		db:       params.DB,
		cache:    params.Cache,
		ttl:      params.TTL,
		defaults: params.Defaults,
		logg:     params.Logger,
	}, nil
}

// Snapshot returns the current settings. The cache is consulted first; a
// missing row or table falls back to the configured defaults.
func (p *Provider) Snapshot(ctx context.Context) (pricing.PlatformSettings, error) {
	if cached, ok := p.readCache(ctx); ok {
		return cached, nil
	}

	var row models.PlatformSetting
	err := p.db.WithContext(ctx).Where("id = ?", platformRowID).Take(&row).Error
	var snapshot pricing.PlatformSettings
	switch {
	case err == nil:
		snapshot = fromRow(row)
	case errors.Is(err, gorm.ErrRecordNotFound), db.IsMissingTable(err):
		snapshot = p.defaults
	default:
		return pricing.PlatformSettings{}, fmt.Errorf("load platform settings: %w", err)
	}

	p.writeCache(ctx, snapshot)
	return snapshot, nil
}

// Invalidate drops the cached snapshot so the next read hits the database.
func (p *Provider) Invalidate(ctx context.Context) error {
	if p.cache == nil {
		return nil
	}
	return p.cache.Del(ctx, p.cache.SettingsKey(platformCacheName))
}

func (p *Provider) readCache(ctx context.Context) (pricing.PlatformSettings, bool) {
	if p.cache == nil || p.ttl <= 0 {
		return pricing.PlatformSettings{}, false
	}
	raw, err := p.cache.Get(ctx, p.cache.SettingsKey(platformCacheName))
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			p.logg.Warn(p.logg.WithField(ctx, "error", err.Error()), "settings cache read failed")
		}
		return pricing.PlatformSettings{}, false
	}
	var snapshot pricing.PlatformSettings
	if err := json.Unmarshal([]byte(raw), &snapshot); err != nil {
		p.logg.Warn(p.logg.WithField(ctx, "error", err.Error()), "settings cache entry corrupt")
		return pricing.PlatformSettings{}, false
	}
	return snapshot, true
}

func (p *Provider) writeCache(ctx context.Context, snapshot pricing.PlatformSettings) {
	if p.cache == nil || p.ttl <= 0 {
		return
	}
	payload, err := json.Marshal(snapshot)
	if err != nil {
		return
	}
	if err := p.cache.Set(ctx, p.cache.SettingsKey(platformCacheName), string(payload), p.ttl); err != nil {
		p.logg.Warn(p.logg.WithField(ctx, "error", err.Error()), "settings cache write failed")
	}
}

func fromRow(row models.PlatformSetting) pricing.PlatformSettings {
	return pricing.PlatformSettings{
		CommissionRate:        row.CommissionRate,
		CommissionEnabled:     row.CommissionEnabled,
		ServiceFeeKind:        row.ServiceFeeKind,
		ServiceFeeValue:       row.ServiceFeeValue,
		TaxRate:               row.TaxRate,
		TaxEnabled:            row.TaxEnabled,
		AllowConflictOverride: row.AllowConflictOverride,
		LoyaltyPointValue:     row.LoyaltyPointValue,
		LoyaltyEarnRate:       row.LoyaltyEarnRate,
	}
}

// DefaultsFromConfig converts the env fallback into a snapshot.
func DefaultsFromConfig(cfg config.PlatformConfig) (pricing.PlatformSettings, error) {
	kind, err := enums.ParseAmountKind(strings.TrimSpace(cfg.ServiceFeeKind))
	if err != nil {
		return pricing.PlatformSettings{}, err
	}
	parse := func(raw string) decimal.Decimal {
		v, err := decimal.NewFromString(strings.TrimSpace(raw))
		if err != nil {
			return decimal.Zero
		}
		return v
	}
	return pricing.PlatformSettings{
		CommissionRate:        parse(cfg.CommissionRate),
		CommissionEnabled:     cfg.CommissionEnabled,
		ServiceFeeKind:        kind,
		ServiceFeeValue:       parse(cfg.ServiceFeeValue),
		TaxRate:               parse(cfg.TaxRate),
		TaxEnabled:            cfg.TaxEnabled,
		AllowConflictOverride: cfg.AllowConflictOverride,
		LoyaltyPointValue:     parse(cfg.LoyaltyPointValue),
		LoyaltyEarnRate:       parse(cfg.LoyaltyEarnRate),
	}, nil
}
