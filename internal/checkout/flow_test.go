package checkout

import (
	"context"
	"io"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/glowbook/glowbook-backend/internal/bookings"
	"github.com/glowbook/glowbook-backend/internal/catalog"
	"github.com/glowbook/glowbook-backend/internal/giftcards"
	"github.com/glowbook/glowbook-backend/internal/ledger"
	"github.com/glowbook/glowbook-backend/internal/payments"
	"github.com/glowbook/glowbook-backend/internal/pricing"
	"github.com/glowbook/glowbook-backend/internal/settlement"
	"github.com/glowbook/glowbook-backend/internal/validation"
	"github.com/glowbook/glowbook-backend/internal/wallets"
	dbpkg "github.com/glowbook/glowbook-backend/pkg/db"
	"github.com/glowbook/glowbook-backend/pkg/db/models"
	"github.com/glowbook/glowbook-backend/pkg/db/sqlitetest"
	"github.com/glowbook/glowbook-backend/pkg/enums"
	pkgerrors "github.com/glowbook/glowbook-backend/pkg/errors"
	"github.com/glowbook/glowbook-backend/pkg/logger"
	"github.com/glowbook/glowbook-backend/pkg/metrics"
	"github.com/glowbook/glowbook-backend/pkg/outbox"
)

type flatSettings struct{}

func (flatSettings) Snapshot(context.Context) (pricing.PlatformSettings, error) {
	return pricing.PlatformSettings{
		CommissionRate:    decimal.RequireFromString("0.15"),
		CommissionEnabled: true,
	}, nil
}

type hostedGateway struct {
	inits []payments.InitializeRequest
}

func (g *hostedGateway) Provider() enums.PaymentProvider { return enums.PaymentProviderStripe }

func (g *hostedGateway) InitializeTransaction(_ context.Context, req payments.InitializeRequest) (*payments.InitializeResult, error) {
	g.inits = append(g.inits, req)
	return &payments.InitializeResult{
		Provider:         enums.PaymentProviderStripe,
		Reference:        req.Reference,
		SessionID:        "cs_flow",
		AuthorizationURL: "https://pay.test/" + req.Reference,
	}, nil
}

func (g *hostedGateway) ChargeAuthorization(_ context.Context, req payments.ChargeRequest) (*payments.ChargeResult, error) {
	return &payments.ChargeResult{Provider: enums.PaymentProviderStripe, Reference: req.Reference, Status: payments.ChargeSucceeded}, nil
}

type hostedRouter struct{ gateway *hostedGateway }

func (r hostedRouter) Checkout() payments.Gateway { return r.gateway }

func (r hostedRouter) ForMethod(models.SavedPaymentMethod) (payments.Gateway, error) {
	return r.gateway, nil
}

type flow struct {
	db       *gorm.DB
	svc      Service
	gateway  *hostedGateway
	customer models.User
	draft    validation.BookingDraft
}

// newFlow wires checkout over sqlite with every real stage and a hosted
// gateway stub. The draft books one 1000 service with no fees.
func newFlow(t *testing.T) *flow {
	t.Helper()
	db := sqlitetest.Open(t)
	logg := logger.New(logger.Options{ServiceName: "checkout-flow-test", Output: io.Discard})
	tx := dbpkg.Wrap(db)
	events := outbox.NewService(outbox.NewRepository(db), logg)
	catalogRepo := catalog.NewRepository(db)
	bookingRepo := bookings.NewRepository(db)

	validator, err := validation.NewService(validation.ServiceParams{
		Catalog:   catalogRepo,
		Conflicts: bookingRepo,
		Settings:  flatSettings{},
	})
	require.NoError(t, err)
	numbers, err := bookings.NewNumberGenerator("flow-salt", 8)
	require.NoError(t, err)
	bookingSvc, err := bookings.NewService(bookings.ServiceParams{
		TX:      tx,
		Repo:    bookingRepo,
		Catalog: catalogRepo,
		Numbers: numbers,
		Outbox:  events,
		Logger:  logg,
	})
	require.NoError(t, err)

	cards, err := giftcards.NewService(tx, giftcards.NewRepository(db), events, logg, time.Hour)
	require.NoError(t, err)
	walletSvc, err := wallets.NewService(tx, wallets.NewRepository(db), logg)
	require.NoError(t, err)
	ledgerSvc, err := ledger.NewService(ledger.NewRepository(db), logg)
	require.NoError(t, err)
	gateway := &hostedGateway{}
	settler, err := settlement.NewService(settlement.ServiceParams{
		TX:        tx,
		Repo:      settlement.NewRepository(db),
		GiftCards: cards,
		Wallets:   walletSvc,
		Gateways:  hostedRouter{gateway: gateway},
		Ledger:    ledgerSvc,
		Outbox:    events,
		Settings:  flatSettings{},
		Logger:    logg,
	})
	require.NoError(t, err)

	svc, err := NewService(ServiceParams{
		Validator:  validator,
		Bookings:   bookingSvc,
		Settlement: settler,
		Metrics:    metrics.NewBookingMetrics(prometheus.NewRegistry()),
		Logger:     logg,
	})
	require.NoError(t, err)

	customer := sqlitetest.User(t, db)
	owner := sqlitetest.User(t, db)
	provider := sqlitetest.Provider(t, db, owner.ID)
	location := sqlitetest.Location(t, db, provider.ID)
	offering := sqlitetest.Offering(t, db, provider.ID, "1000", 60)
	staff := sqlitetest.Staff(t, db, provider.ID, offering.ID)

	missing := "MISSING"
	return &flow{
		db:       db,
		svc:      svc,
		gateway:  gateway,
		customer: customer,
		draft: validation.BookingDraft{
			ProviderID:       provider.ID,
			Services:         []validation.ServiceRequest{{OfferingID: offering.ID, StaffID: staff.ID}},
			ScheduledStartAt: time.Now().UTC().Add(72 * time.Hour).Truncate(time.Hour),
			LocationType:     enums.LocationTypeBusinessLocation,
			LocationID:       &location.ID,
			GiftCardCode:     &missing,
			PaymentMethod:    enums.PaymentMethodCard,
		},
	}
}

func (f *flow) booking(t *testing.T, id uuid.UUID) models.Booking {
	t.Helper()
	var b models.Booking
	require.NoError(t, f.db.First(&b, "id = ?", id).Error)
	return b
}

func (f *flow) walletBalance(t *testing.T) decimal.Decimal {
	t.Helper()
	var w models.Wallet
	require.NoError(t, f.db.First(&w, "user_id = ?", f.customer.ID).Error)
	return w.Balance
}

func bookingIDFrom(t *testing.T, err error) uuid.UUID {
	t.Helper()
	typed := pkgerrors.As(err)
	require.NotNil(t, typed, "expected typed error, got %v", err)
	details, ok := typed.Details().(map[string]any)
	require.True(t, ok, "expected map details, got %T", typed.Details())
	id, ok := details["booking_id"].(uuid.UUID)
	require.True(t, ok, "booking_id missing from %v", details)
	return id
}

func TestCheckoutRetriesSettlementOnHeldSlot(t *testing.T) {
	f := newFlow(t)
	ctx := context.Background()
	sqlitetest.Wallet(t, f.db, f.customer.ID, "400")

	_, err := f.svc.CreateBooking(ctx, f.draft, f.customer.ID)
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeGiftCardInvalid), "got %v", err)
	bookingID := bookingIDFrom(t, err)

	held := f.booking(t, bookingID)
	assert.Equal(t, enums.BookingStatusPending, held.Status)
	assert.Equal(t, enums.PaymentStatusPending, held.PaymentStatus)
	assert.Nil(t, held.PaymentReference)

	// Submitting the draft again runs into the customer's own booking.
	again := f.draft
	again.GiftCardCode = nil
	_, err = f.svc.CreateBooking(ctx, again, f.customer.ID)
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeSlotConflict), "got %v", err)

	_, err = f.svc.RetrySettlement(ctx, bookingID, f.customer.ID, validation.FundingDraft{PaymentMethod: enums.PaymentMethodWallet})
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeWalletError), "got %v", err)
	assert.Equal(t, bookingID, bookingIDFrom(t, err))
	assert.True(t, f.walletBalance(t).Equal(decimal.NewFromInt(400)), "shortfall refunds the wallet")

	_, err = f.svc.RetrySettlement(ctx, bookingID, uuid.New(), validation.FundingDraft{PaymentMethod: enums.PaymentMethodCash})
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeNotFound), "got %v", err)

	res, err := f.svc.RetrySettlement(ctx, bookingID, f.customer.ID, validation.FundingDraft{PaymentMethod: enums.PaymentMethodCard, UseWallet: true})
	require.NoError(t, err)
	assert.Equal(t, bookingID, res.Booking.ID)
	require.NotNil(t, res.PaymentURL)
	require.Len(t, f.gateway.inits, 1)
	assert.True(t, f.gateway.inits[0].Amount.Equal(decimal.NewFromInt(600)), f.gateway.inits[0].Amount.String())
	assert.True(t, f.walletBalance(t).IsZero())

	stored := f.booking(t, bookingID)
	assert.Equal(t, enums.PaymentStatusPending, stored.PaymentStatus)
	assert.Equal(t, enums.PaymentMethodCard, stored.PaymentMethod)
	assert.True(t, stored.WalletAmount.Equal(decimal.NewFromInt(400)))
	require.NotNil(t, stored.PaymentReference)

	var count int64
	require.NoError(t, f.db.Model(&models.Booking{}).Where("customer_id = ?", f.customer.ID).Count(&count).Error)
	assert.EqualValues(t, 1, count, "retries reuse the reserved booking")

	// A hosted checkout is now in flight.
	_, err = f.svc.RetrySettlement(ctx, bookingID, f.customer.ID, validation.FundingDraft{PaymentMethod: enums.PaymentMethodCash})
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeStateConflict), "got %v", err)
}

func TestCheckoutRetryWithCashConfirmsBooking(t *testing.T) {
	f := newFlow(t)
	ctx := context.Background()

	_, err := f.svc.CreateBooking(ctx, f.draft, f.customer.ID)
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeGiftCardInvalid), "got %v", err)
	bookingID := bookingIDFrom(t, err)

	res, err := f.svc.RetrySettlement(ctx, bookingID, f.customer.ID, validation.FundingDraft{PaymentMethod: enums.PaymentMethodCash})
	require.NoError(t, err)
	assert.Nil(t, res.PaymentURL)
	assert.Empty(t, f.gateway.inits)

	stored := f.booking(t, bookingID)
	assert.Equal(t, enums.BookingStatusConfirmed, stored.Status)
	assert.Equal(t, enums.PaymentStatusPending, stored.PaymentStatus)
	assert.Equal(t, enums.PaymentMethodCash, stored.PaymentMethod)
	assert.True(t, stored.AmountToCollect.Equal(decimal.NewFromInt(1000)))

	_, err = f.svc.RetrySettlement(ctx, bookingID, f.customer.ID, validation.FundingDraft{PaymentMethod: enums.PaymentMethodCash})
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeStateConflict), "got %v", err)
}
