package giftcards

import (
	"context"
	"io"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	dbpkg "github.com/glowbook/glowbook-backend/pkg/db"
	"github.com/glowbook/glowbook-backend/pkg/db/models"
	"github.com/glowbook/glowbook-backend/pkg/db/sqlitetest"
	"github.com/glowbook/glowbook-backend/pkg/enums"
	pkgerrors "github.com/glowbook/glowbook-backend/pkg/errors"
	"github.com/glowbook/glowbook-backend/pkg/logger"
	"github.com/glowbook/glowbook-backend/pkg/outbox"
)

var fixedNow = time.Date(2026, 7, 1, 9, 0, 0, 0, time.UTC)

func newTestService(t *testing.T) (*Service, *gorm.DB, models.Booking) {
	t.Helper()
	db := sqlitetest.Open(t)
	logg := logger.New(logger.Options{ServiceName: "giftcards-test", Output: io.Discard})
	svc, err := NewService(dbpkg.Wrap(db), NewRepository(db), outbox.NewService(outbox.NewRepository(db), logg), logg, time.Hour)
	require.NoError(t, err)
	svc.now = func() time.Time { return fixedNow }

	customer := sqlitetest.User(t, db)
	provider := sqlitetest.Provider(t, db, customer.ID)
	offering := sqlitetest.Offering(t, db, provider.ID, "1000", 60)
	staff := sqlitetest.Staff(t, db, provider.ID, offering.ID)
	booking := sqlitetest.Booking(t, db, customer.ID, provider.ID, staff.ID, offering.ID, fixedNow.Add(24*time.Hour), 60, "1050")
	return svc, db, booking
}

func cardBalance(t *testing.T, db *gorm.DB, id uuid.UUID) decimal.Decimal {
	t.Helper()
	var card models.GiftCard
	require.NoError(t, db.First(&card, "id = ?", id).Error)
	return card.Balance
}

func TestReserveCoversWholeAmount(t *testing.T) {
	svc, db, booking := newTestService(t)
	card := sqlitetest.GiftCard(t, db, "GLOW-1050", "1050")

	res, err := svc.Reserve(context.Background(), ReserveRequest{
		Code:      "glow-1050",
		Amount:    decimal.RequireFromString("1050"),
		BookingID: booking.ID,
		Currency:  "USD",
	})
	require.NoError(t, err)
	assert.True(t, res.Amount.Equal(decimal.RequireFromString("1050")))
	assert.Equal(t, enums.GiftCardReservationStatusReserved, res.Status)
	assert.Equal(t, fixedNow.Add(time.Hour), res.ExpiresAt.UTC())
	assert.True(t, cardBalance(t, db, card.ID).IsZero())
}

func TestReservePartialBalance(t *testing.T) {
	svc, db, booking := newTestService(t)
	card := sqlitetest.GiftCard(t, db, "HALF", "500")

	res, err := svc.Reserve(context.Background(), ReserveRequest{
		Code:      "HALF",
		Amount:    decimal.RequireFromString("1050"),
		BookingID: booking.ID,
	})
	require.NoError(t, err)
	assert.True(t, res.Amount.Equal(decimal.RequireFromString("500")))
	assert.True(t, cardBalance(t, db, card.ID).IsZero())
}

func TestReserveRejectsUnusableCards(t *testing.T) {
	svc, db, booking := newTestService(t)
	sqlitetest.GiftCard(t, db, "EMPTY", "0")
	expired := sqlitetest.GiftCard(t, db, "OLD", "100")
	past := fixedNow.Add(-time.Minute)
	require.NoError(t, db.Model(&expired).Update("expires_at", past).Error)
	disabled := sqlitetest.GiftCard(t, db, "OFF", "100")
	require.NoError(t, db.Model(&disabled).Update("status", enums.GiftCardStatusDisabled).Error)
	sqlitetest.GiftCard(t, db, "EURO", "100")
	require.NoError(t, db.Model(&models.GiftCard{}).Where("code = ?", "EURO").Update("currency", "EUR").Error)

	for _, code := range []string{"MISSING", "EMPTY", "OLD", "OFF", "EURO", ""} {
		_, err := svc.Reserve(context.Background(), ReserveRequest{
			Code:      code,
			Amount:    decimal.RequireFromString("50"),
			BookingID: booking.ID,
			Currency:  "USD",
		})
		require.Error(t, err, code)
		assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeGiftCardInvalid), code)
	}

	var count int64
	require.NoError(t, db.Model(&models.GiftCardReservation{}).Count(&count).Error)
	assert.Zero(t, count)
}

func TestCaptureFinalizesOpenHolds(t *testing.T) {
	svc, db, booking := newTestService(t)
	sqlitetest.GiftCard(t, db, "CAP", "300")
	_, err := svc.Reserve(context.Background(), ReserveRequest{Code: "CAP", Amount: decimal.RequireFromString("200"), BookingID: booking.ID})
	require.NoError(t, err)

	var captured decimal.Decimal
	require.NoError(t, db.Transaction(func(tx *gorm.DB) error {
		var err error
		captured, err = svc.Capture(context.Background(), tx, booking.ID)
		return err
	}))
	assert.True(t, captured.Equal(decimal.RequireFromString("200")))

	var row models.GiftCardReservation
	require.NoError(t, db.First(&row, "booking_id = ?", booking.ID).Error)
	assert.Equal(t, enums.GiftCardReservationStatusCaptured, row.Status)
	require.NotNil(t, row.CapturedAt)

	// captured holds cannot be released
	require.NoError(t, svc.Release(context.Background(), row.ID, "manual"))
	var card models.GiftCard
	require.NoError(t, db.First(&card, "code = ?", "CAP").Error)
	assert.True(t, card.Balance.Equal(decimal.RequireFromString("100")))
}

func TestReleaseRestoresBalanceOnce(t *testing.T) {
	svc, db, booking := newTestService(t)
	card := sqlitetest.GiftCard(t, db, "REL", "400")
	res, err := svc.Reserve(context.Background(), ReserveRequest{Code: "REL", Amount: decimal.RequireFromString("150"), BookingID: booking.ID})
	require.NoError(t, err)
	assert.True(t, cardBalance(t, db, card.ID).Equal(decimal.RequireFromString("250")))

	require.NoError(t, svc.Release(context.Background(), res.ID, "payment_failed"))
	require.NoError(t, svc.Release(context.Background(), res.ID, "payment_failed"))
	assert.True(t, cardBalance(t, db, card.ID).Equal(decimal.RequireFromString("400")))

	var events []models.OutboxEvent
	require.NoError(t, db.Where("event_type = ?", enums.EventGiftCardReservationReleased).Find(&events).Error)
	assert.Len(t, events, 1)
}

func TestReleaseUnknownReservation(t *testing.T) {
	svc, _, _ := newTestService(t)
	err := svc.Release(context.Background(), uuid.New(), "manual")
	require.Error(t, err)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeNotFound))
}

func TestReleaseStaleSkipsPaidBookings(t *testing.T) {
	svc, db, unpaid := newTestService(t)
	var paid models.Booking
	require.NoError(t, db.First(&paid, "id = ?", unpaid.ID).Error)
	paid.ID = uuid.Nil
	paid.BookingNumber = "BK-PAID"
	paid.PaymentStatus = enums.PaymentStatusPaid
	paid.Services = nil
	require.NoError(t, db.Create(&paid).Error)

	card := sqlitetest.GiftCard(t, db, "STALE", "500")
	_, err := svc.Reserve(context.Background(), ReserveRequest{Code: "STALE", Amount: decimal.RequireFromString("100"), BookingID: unpaid.ID})
	require.NoError(t, err)
	_, err = svc.Reserve(context.Background(), ReserveRequest{Code: "STALE", Amount: decimal.RequireFromString("100"), BookingID: paid.ID})
	require.NoError(t, err)

	// not expired yet
	n, err := svc.ReleaseStale(context.Background(), fixedNow.Add(30*time.Minute), 10)
	require.NoError(t, err)
	assert.Zero(t, n)

	n, err = svc.ReleaseStale(context.Background(), fixedNow.Add(2*time.Hour), 10)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.True(t, cardBalance(t, db, card.ID).Equal(decimal.RequireFromString("400")))
}
