package ledger

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/glowbook/glowbook-backend/internal/pricing"
	"github.com/glowbook/glowbook-backend/pkg/db/models"
	"github.com/glowbook/glowbook-backend/pkg/db/sqlitetest"
	"github.com/glowbook/glowbook-backend/pkg/enums"
	"github.com/glowbook/glowbook-backend/pkg/logger"
)

var settings = pricing.PlatformSettings{
	CommissionRate:    decimal.RequireFromString("0.15"),
	CommissionEnabled: true,
}

func d(v string) decimal.Decimal { return decimal.RequireFromString(v) }

func testLogger() *logger.Logger {
	return logger.New(logger.Options{ServiceName: "ledger-test", Output: io.Discard})
}

// paidBooking mirrors a 1000 subtotal with a 50 service fee.
func paidBooking(t *testing.T, db *gorm.DB) *models.Booking {
	t.Helper()
	customer := sqlitetest.User(t, db)
	provider := sqlitetest.Provider(t, db, customer.ID)
	offering := sqlitetest.Offering(t, db, provider.ID, "1000", 60)
	staff := sqlitetest.Staff(t, db, provider.ID, offering.ID)
	start := time.Date(2026, 7, 2, 14, 0, 0, 0, time.UTC)
	b := sqlitetest.Booking(t, db, customer.ID, provider.ID, staff.ID, offering.ID, start, 60, "1050")
	b.CommissionBase = d("1000")
	b.Subtotal = d("1000")
	b.ServiceFeeAmount = d("50")
	b.PaymentStatus = enums.PaymentStatusPaid
	require.NoError(t, db.Save(&b).Error)
	return &b
}

func amountOf(rows []models.FinanceTransaction, kind enums.FinanceTransactionType) decimal.Decimal {
	for _, r := range rows {
		if r.Type == kind {
			return r.Amount
		}
	}
	return decimal.Zero
}

func TestWriteInternalSettlementGiftCardCoversTotal(t *testing.T) {
	db := sqlitetest.Open(t)
	booking := paidBooking(t, db)
	svc, err := NewService(NewRepository(db), testLogger())
	require.NoError(t, err)

	var entries *Entries
	require.NoError(t, db.Transaction(func(tx *gorm.DB) error {
		entries, err = svc.WriteInternalSettlement(context.Background(), tx, booking, settings, Funding{GiftCard: d("1050")})
		return err
	}))

	require.Len(t, entries.Payments, 1)
	payment := entries.Payments[0]
	assert.Equal(t, enums.PaymentProviderInternal, payment.Provider)
	assert.Equal(t, enums.FundingSourceGiftCard, payment.FundingSource)
	assert.True(t, payment.Amount.Equal(d("1050")))
	assert.True(t, payment.Fees.IsZero())
	assert.True(t, payment.Net.Equal(d("1050")))

	rows, err := NewRepository(db).ListFinance(context.Background(), booking.ID)
	require.NoError(t, err)
	types := map[enums.FinanceTransactionType]models.FinanceTransaction{}
	for _, r := range rows {
		types[r.Type] = r
	}
	require.Len(t, types, 5)
	assert.NotContains(t, types, enums.FinanceTransactionTypeTravelFee)
	assert.True(t, types[enums.FinanceTransactionTypePayment].Commission.Equal(d("150")))
	assert.True(t, types[enums.FinanceTransactionTypePayment].Net.Equal(d("850")))
	assert.True(t, types[enums.FinanceTransactionTypeServiceFee].Amount.Equal(d("50")))
	assert.True(t, types[enums.FinanceTransactionTypeTip].Net.IsZero())
	assert.True(t, types[enums.FinanceTransactionTypeTax].Net.IsZero())
}

func TestFinanceRowsReconcile(t *testing.T) {
	cases := []struct {
		name     string
		base     string
		travel   string
		tip      string
		settings pricing.PlatformSettings
	}{
		{"plain", "1000", "0", "0", settings},
		{"travel and tip", "433.33", "25", "40.5", settings},
		{"commission disabled", "800", "15", "0", pricing.PlatformSettings{CommissionRate: d("0.2")}},
		{"odd rate", "99.99", "0", "7", pricing.PlatformSettings{CommissionRate: d("0.125"), CommissionEnabled: true}},
	}
	for _, tc := range cases {
		booking := &models.Booking{
			ID:             uuid.New(),
			ProviderID:     uuid.New(),
			BookingNumber:  "BK-TEST",
			Currency:       "USD",
			CommissionBase: d(tc.base),
			TravelFee:      d(tc.travel),
			TipAmount:      d(tc.tip),
		}
		rows := BuildFinanceRows(booking, tc.settings)
		var payment models.FinanceTransaction
		for _, r := range rows {
			if r.Type == enums.FinanceTransactionTypePayment {
				payment = r
			}
		}
		earnings := amountOf(rows, enums.FinanceTransactionTypeProviderEarnings)
		got := payment.Commission.Add(earnings)
		want := booking.CommissionBase.Add(booking.TravelFee).Add(booking.TipAmount)
		if !got.Equal(want) {
			t.Fatalf("%s: commission+earnings=%s want %s", tc.name, got, want)
		}
		hasTravel := false
		for _, r := range rows {
			if r.Type == enums.FinanceTransactionTypeTravelFee {
				hasTravel = true
			}
		}
		if hasTravel != booking.TravelFee.IsPositive() {
			t.Fatalf("%s: travel fee row presence mismatch", tc.name)
		}
	}
}

func TestWriteIsIdempotent(t *testing.T) {
	db := sqlitetest.Open(t)
	booking := paidBooking(t, db)
	svc, err := NewService(NewRepository(db), testLogger())
	require.NoError(t, err)

	funding := Funding{GiftCard: d("500"), Wallet: d("550")}
	for i := 0; i < 2; i++ {
		var entries *Entries
		require.NoError(t, db.Transaction(func(tx *gorm.DB) error {
			entries, err = svc.WriteInternalSettlement(context.Background(), tx, booking, settings, funding)
			return err
		}))
		assert.Equal(t, i == 1, entries.Duplicate)
	}

	payments, err := NewRepository(db).ListPayments(context.Background(), booking.ID)
	require.NoError(t, err)
	require.Len(t, payments, 1)
	assert.Equal(t, enums.FundingSourceMixed, payments[0].FundingSource)
}

func TestDepositWritesPaymentOnly(t *testing.T) {
	db := sqlitetest.Open(t)
	booking := paidBooking(t, db)
	booking.PaymentStatus = enums.PaymentStatusDepositPaid
	svc, err := NewService(NewRepository(db), testLogger())
	require.NoError(t, err)

	require.NoError(t, db.Transaction(func(tx *gorm.DB) error {
		_, err := svc.WriteInternalSettlement(context.Background(), tx, booking, settings, Funding{Wallet: d("315")})
		return err
	}))
	rows, err := NewRepository(db).ListFinance(context.Background(), booking.ID)
	require.NoError(t, err)
	assert.Empty(t, rows)
	payments, err := NewRepository(db).ListPayments(context.Background(), booking.ID)
	require.NoError(t, err)
	require.Len(t, payments, 1)
	assert.Equal(t, enums.PaymentStatusDepositPaid, payments[0].Status)
}

func TestWriteGatewaySettlementSplitsRows(t *testing.T) {
	db := sqlitetest.Open(t)
	booking := paidBooking(t, db)
	svc, err := NewService(NewRepository(db), testLogger())
	require.NoError(t, err)

	funding := Funding{
		GiftCard:         d("500"),
		Gateway:          d("550"),
		GatewayProvider:  enums.PaymentProviderStripe,
		GatewayReference: "cs_test_1",
		GatewayFees:      d("16.25"),
	}
	require.NoError(t, db.Transaction(func(tx *gorm.DB) error {
		_, err := svc.WriteGatewaySettlement(context.Background(), tx, booking, settings, funding)
		return err
	}))

	payments, err := NewRepository(db).ListPayments(context.Background(), booking.ID)
	require.NoError(t, err)
	require.Len(t, payments, 2)
	byProvider := map[enums.PaymentProvider]models.PaymentTransaction{}
	for _, p := range payments {
		byProvider[p.Provider] = p
	}
	assert.True(t, byProvider[enums.PaymentProviderInternal].Amount.Equal(d("500")))
	assert.True(t, byProvider[enums.PaymentProviderStripe].Net.Equal(d("533.75")))
	assert.Equal(t, enums.FundingSourceMixed, funding.Source())
}

func TestWriteRejectsBadFunding(t *testing.T) {
	db := sqlitetest.Open(t)
	booking := paidBooking(t, db)
	svc, err := NewService(NewRepository(db), testLogger())
	require.NoError(t, err)

	_, err = svc.WriteInternalSettlement(context.Background(), db, booking, settings, Funding{Gateway: d("10")})
	assert.Error(t, err)
	_, err = svc.WriteInternalSettlement(context.Background(), db, booking, settings, Funding{})
	assert.Error(t, err)
	_, err = svc.WriteGatewaySettlement(context.Background(), db, booking, settings, Funding{Gateway: d("10"), GatewayProvider: enums.PaymentProviderStripe})
	assert.Error(t, err)
	_, err = svc.WriteGatewaySettlement(context.Background(), db, booking, settings, Funding{Gateway: d("10"), GatewayReference: "x", GatewayProvider: enums.PaymentProviderInternal})
	assert.Error(t, err)
}

type failingRepository struct {
	Repository
}

func (f failingRepository) WithTx(*gorm.DB) Repository { return f }

func (f failingRepository) CreateFinance(context.Context, []models.FinanceTransaction) error {
	return errors.New("disk full")
}

func TestFinanceInsertFailurePropagates(t *testing.T) {
	db := sqlitetest.Open(t)
	booking := paidBooking(t, db)
	svc, err := NewService(failingRepository{Repository: NewRepository(db)}, testLogger())
	require.NoError(t, err)

	_, err = svc.WriteInternalSettlement(context.Background(), db, booking, settings, Funding{GiftCard: d("1050")})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "disk full")
}
