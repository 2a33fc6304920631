package bookings

import (
	"context"
	"errors"
	"fmt"

	"github.com/speps/go-hashids/v2"
	"gorm.io/gorm"
)

const (
	numberPrefix      = "BK-"
	numberAlphabet    = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"
	numberCounterName = "booking_number"
)

// NumberGenerator allocates booking numbers from the booking_counters row and
// encodes them with hashids so consecutive bookings do not look sequential.
type NumberGenerator struct {
	codec *hashids.HashID
}

// NewNumberGenerator builds a generator for the given salt and minimum code
// length.
func NewNumberGenerator(salt string, minLength int) (*NumberGenerator, error) {
	data := hashids.NewData()
	data.Alphabet = numberAlphabet
	data.Salt = salt
	data.MinLength = minLength
	codec, err := hashids.NewWithData(data)
	if err != nil {
		return nil, fmt.Errorf("booking number codec: %w", err)
	}
	return &NumberGenerator{codec: codec}, nil
}

// Next increments the counter inside tx and returns the encoded number. The
// increment is rolled back together with the booking insert.
func (g *NumberGenerator) Next(ctx context.Context, tx *gorm.DB) (string, error) {
	if tx == nil {
		return "", errors.New("transaction required")
	}
	var seq int64
	err := tx.WithContext(ctx).Raw(`
INSERT INTO booking_counters (name, last_value) VALUES (?, 1)
ON CONFLICT (name) DO UPDATE SET last_value = booking_counters.last_value + 1
RETURNING last_value`, numberCounterName).Scan(&seq).Error
	if err != nil {
		return "", fmt.Errorf("allocate booking number: %w", err)
	}
	return g.Format(seq)
}

// Format encodes a counter value.
func (g *NumberGenerator) Format(seq int64) (string, error) {
	if seq <= 0 {
		return "", fmt.Errorf("booking sequence must be positive, got %d", seq)
	}
	encoded, err := g.codec.EncodeInt64([]int64{seq})
	if err != nil {
		return "", err
	}
	return numberPrefix + encoded, nil
}
