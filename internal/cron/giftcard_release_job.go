package cron

import (
	"context"
	"fmt"
	"time"

	"github.com/glowbook/glowbook-backend/pkg/logger"
)

const defaultReleaseBatch = 100

type GiftCardReleaseJobParams struct {
	Logger    *logger.Logger
	GiftCards staleHoldReleaser
	BatchSize int
}

type staleHoldReleaser interface {
	ReleaseStale(ctx context.Context, now time.Time, limit int) (int, error)
}

// NewGiftCardReservationReleaseJob returns holds that outlived their TTL on
// bookings that never got paid.
func NewGiftCardReservationReleaseJob(params GiftCardReleaseJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.GiftCards == nil {
		return nil, fmt.Errorf("gift card service required")
	}
	batch := params.BatchSize
	if batch <= 0 {
		batch = defaultReleaseBatch
	}
	return &giftCardReleaseJob{
		logg:  params.Logger,
		cards: params.GiftCards,
		batch: batch,
		now:   time.Now,
	}, nil
}

type giftCardReleaseJob struct {
	logg  *logger.Logger
	cards staleHoldReleaser
	batch int
	now   func() time.Time
}

func (j *giftCardReleaseJob) Name() string { return "gift-card-reservation-release" }

func (j *giftCardReleaseJob) Run(ctx context.Context) error {
	now := j.now().UTC()
	total := 0
	for {
		released, err := j.cards.ReleaseStale(ctx, now, j.batch)
		total += released
		if err != nil {
			j.logg.Info(j.logg.WithField(ctx, "holds_released", total), "gift card hold release incomplete")
			return fmt.Errorf("release stale gift card holds: %w", err)
		}
		// a short page means the backlog is drained
		if released < j.batch {
			break
		}
	}
	j.logg.Info(j.logg.WithFields(ctx, map[string]any{
		"holds_released": total,
		"as_of":          now,
	}), "gift card hold release complete")
	return nil
}
