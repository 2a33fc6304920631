package settlement

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

	"github.com/glowbook/glowbook-backend/internal/giftcards"
	"github.com/glowbook/glowbook-backend/internal/ledger"
	"github.com/glowbook/glowbook-backend/internal/payments"
	"github.com/glowbook/glowbook-backend/internal/pricing"
	"github.com/glowbook/glowbook-backend/internal/validation"
	"github.com/glowbook/glowbook-backend/internal/wallets"
	dbpkg "github.com/glowbook/glowbook-backend/pkg/db"
	"github.com/glowbook/glowbook-backend/pkg/db/models"
	"github.com/glowbook/glowbook-backend/pkg/db/sqlitetest"
	"github.com/glowbook/glowbook-backend/pkg/enums"
	pkgerrors "github.com/glowbook/glowbook-backend/pkg/errors"
	"github.com/glowbook/glowbook-backend/pkg/logger"
	"github.com/glowbook/glowbook-backend/pkg/outbox"
)

var platform = pricing.PlatformSettings{
	CommissionRate:    decimal.RequireFromString("0.15"),
	CommissionEnabled: true,
}

func d(v string) decimal.Decimal { return decimal.RequireFromString(v) }

type fixedSettings struct{}

func (fixedSettings) Snapshot(context.Context) (pricing.PlatformSettings, error) {
	return platform, nil
}

type fakeGateway struct {
	provider  enums.PaymentProvider
	initReq   *payments.InitializeRequest
	chargeReq *payments.ChargeRequest
	status    payments.ChargeStatus
	reason    string
	err       error
	onCall    func()
}

func (g *fakeGateway) Provider() enums.PaymentProvider { return g.provider }

func (g *fakeGateway) InitializeTransaction(_ context.Context, req payments.InitializeRequest) (*payments.InitializeResult, error) {
	g.initReq = &req
	if g.onCall != nil {
		g.onCall()
	}
	if g.err != nil {
		return nil, g.err
	}
	return &payments.InitializeResult{
		Provider:         g.provider,
		Reference:        req.Reference,
		SessionID:        "cs_test",
		AuthorizationURL: "https://pay.test/" + req.Reference,
	}, nil
}

func (g *fakeGateway) ChargeAuthorization(_ context.Context, req payments.ChargeRequest) (*payments.ChargeResult, error) {
	g.chargeReq = &req
	if g.onCall != nil {
		g.onCall()
	}
	if g.err != nil {
		return nil, g.err
	}
	return &payments.ChargeResult{
		Provider:          g.provider,
		Reference:         req.Reference,
		ProviderPaymentID: "pi_test",
		Status:            g.status,
		FailureReason:     g.reason,
	}, nil
}

type fakeRouter struct{ gateway *fakeGateway }

func (r fakeRouter) Checkout() payments.Gateway { return r.gateway }

func (r fakeRouter) ForMethod(models.SavedPaymentMethod) (payments.Gateway, error) {
	return r.gateway, nil
}

// brokenLedger fails gateway settlements, as a lost database connection
// would after the card was charged.
type brokenLedger struct {
	ledger.Service
}

func (brokenLedger) WriteGatewaySettlement(context.Context, *gorm.DB, *models.Booking, pricing.PlatformSettings, ledger.Funding) (*ledger.Entries, error) {
	return nil, errors.New("connection reset")
}

type fixture struct {
	db       *gorm.DB
	svc      *Service
	gateway  *fakeGateway
	customer models.User
	provider models.Provider
	booking  models.Booking
}

// newFixture reserves a pending 1050 booking: 1000 of services plus a 50
// service fee.
func newFixture(t *testing.T) *fixture {
	t.Helper()
	db := sqlitetest.Open(t)
	logg := logger.New(logger.Options{ServiceName: "settlement-test", Output: io.Discard})
	tx := dbpkg.Wrap(db)
	events := outbox.NewService(outbox.NewRepository(db), logg)

	cards, err := giftcards.NewService(tx, giftcards.NewRepository(db), events, logg, time.Hour)
	require.NoError(t, err)
	walletSvc, err := wallets.NewService(tx, wallets.NewRepository(db), logg)
	require.NoError(t, err)
	ledgerSvc, err := ledger.NewService(ledger.NewRepository(db), logg)
	require.NoError(t, err)

	gateway := &fakeGateway{provider: enums.PaymentProviderStripe, status: payments.ChargeSucceeded}
	svc, err := NewService(ServiceParams{
		TX:        tx,
		Repo:      NewRepository(db),
		GiftCards: cards,
		Wallets:   walletSvc,
		Gateways:  fakeRouter{gateway: gateway},
		Ledger:    ledgerSvc,
		Outbox:    events,
		Settings:  fixedSettings{},
		Logger:    logg,
	})
	require.NoError(t, err)

	customer := sqlitetest.User(t, db)
	owner := sqlitetest.User(t, db)
	provider := sqlitetest.Provider(t, db, owner.ID)
	offering := sqlitetest.Offering(t, db, provider.ID, "1000", 60)
	staff := sqlitetest.Staff(t, db, provider.ID, offering.ID)
	start := time.Date(2026, 7, 2, 14, 0, 0, 0, time.UTC)
	booking := sqlitetest.Booking(t, db, customer.ID, provider.ID, staff.ID, offering.ID, start, 60, "1050")
	booking.Status = enums.BookingStatusPending
	booking.Subtotal = d("1000")
	booking.CommissionBase = d("1000")
	booking.ServiceFeeAmount = d("50")
	require.NoError(t, db.Save(&booking).Error)

	return &fixture{db: db, svc: svc, gateway: gateway, customer: customer, provider: provider, booking: booking}
}

func (f *fixture) validated(method enums.PaymentMethod) *validation.ValidatedBookingData {
	return &validation.ValidatedBookingData{
		CustomerID:        f.customer.ID,
		CustomerEmail:     f.customer.Email,
		Provider:          f.provider,
		Currency:          "USD",
		Settings:          platform,
		AppointmentStatus: enums.BookingStatusConfirmed,
		PaymentMethod:     method,
		PaymentOption:     enums.PaymentOptionFull,
	}
}

func (f *fixture) reload(t *testing.T) models.Booking {
	t.Helper()
	var b models.Booking
	require.NoError(t, f.db.First(&b, "id = ?", f.booking.ID).Error)
	return b
}

func (f *fixture) count(t *testing.T, model any, query string, args ...any) int64 {
	t.Helper()
	var n int64
	require.NoError(t, f.db.Model(model).Where(query, args...).Count(&n).Error)
	return n
}

func (f *fixture) cardBalance(t *testing.T, id uuid.UUID) decimal.Decimal {
	t.Helper()
	var card models.GiftCard
	require.NoError(t, f.db.First(&card, "id = ?", id).Error)
	return card.Balance
}

func (f *fixture) walletBalance(t *testing.T) decimal.Decimal {
	t.Helper()
	var w models.Wallet
	require.NoError(t, f.db.First(&w, "user_id = ?", f.customer.ID).Error)
	return w.Balance
}

func strPtr(s string) *string { return &s }

func TestSettleGiftCardCoversTotal(t *testing.T) {
	f := newFixture(t)
	card := sqlitetest.GiftCard(t, f.db, "GLOW-1050", "1050")
	v := f.validated(enums.PaymentMethodGiftCard)
	v.GiftCardCode = strPtr("glow-1050")

	res, err := f.svc.Settle(context.Background(), Input{Booking: &f.booking, Validated: v})
	require.NoError(t, err)
	assert.Equal(t, PathInternal, res.Path)
	assert.Nil(t, res.PaymentURL)
	assert.Nil(t, f.gateway.initReq)
	assert.Nil(t, f.gateway.chargeReq)

	stored := f.reload(t)
	assert.Equal(t, enums.PaymentStatusPaid, stored.PaymentStatus)
	assert.Equal(t, enums.BookingStatusConfirmed, stored.Status)
	assert.True(t, stored.GiftCardAmount.Equal(d("1050")))
	assert.True(t, stored.AmountPaid.Equal(d("1050")))
	require.NotNil(t, stored.PaymentProvider)
	assert.Equal(t, enums.PaymentProviderInternal, *stored.PaymentProvider)
	assert.True(t, f.cardBalance(t, card.ID).IsZero())

	assert.EqualValues(t, 1, f.count(t, &models.PaymentTransaction{}, "booking_id = ?", f.booking.ID))
	assert.EqualValues(t, 5, f.count(t, &models.FinanceTransaction{}, "booking_id = ?", f.booking.ID))
	assert.EqualValues(t, 1, f.count(t, &models.GiftCardReservation{}, "booking_id = ? AND status = ?", f.booking.ID, enums.GiftCardReservationStatusCaptured))
	assert.EqualValues(t, 1, f.count(t, &models.OutboxEvent{}, "event_type = ?", enums.EventBookingPaid))
	assert.EqualValues(t, 2, f.count(t, &models.OutboxEvent{}, "event_type = ?", enums.EventNotificationRequested))
}

func TestSettlePartialGiftCardRedirectsRemainder(t *testing.T) {
	f := newFixture(t)
	card := sqlitetest.GiftCard(t, f.db, "GLOW-500", "500")
	v := f.validated(enums.PaymentMethodCard)
	v.GiftCardCode = strPtr("GLOW-500")

	res, err := f.svc.Settle(context.Background(), Input{Booking: &f.booking, Validated: v})
	require.NoError(t, err)
	assert.Equal(t, PathRedirect, res.Path)
	require.NotNil(t, res.PaymentURL)
	require.NotNil(t, f.gateway.initReq)
	assert.True(t, f.gateway.initReq.Amount.Equal(d("550")), f.gateway.initReq.Amount.String())
	assert.Equal(t, "500.00", f.gateway.initReq.Metadata["gift_card_amount"])
	assert.Equal(t, "1050.00", f.gateway.initReq.Metadata["total_amount"])
	assert.Equal(t, f.booking.ID.String(), f.gateway.initReq.Metadata["booking_id"])

	stored := f.reload(t)
	assert.Equal(t, enums.PaymentStatusPending, stored.PaymentStatus)
	assert.True(t, stored.GiftCardAmount.Equal(d("500")))
	require.NotNil(t, stored.PaymentReference)
	assert.True(t, f.cardBalance(t, card.ID).IsZero())
	assert.EqualValues(t, 1, f.count(t, &models.GiftCardReservation{}, "booking_id = ? AND status = ?", f.booking.ID, enums.GiftCardReservationStatusReserved))
	assert.EqualValues(t, 1, f.count(t, &models.OutboxEvent{}, "event_type = ?", enums.EventBookingPaymentPending))

	confirm := ConfirmInput{
		BookingID: f.booking.ID,
		Provider:  enums.PaymentProviderStripe,
		Reference: *stored.PaymentReference,
		Amount:    d("550"),
	}
	paid, err := f.svc.ConfirmGatewayPayment(context.Background(), confirm)
	require.NoError(t, err)
	assert.Equal(t, enums.PaymentStatusPaid, paid.PaymentStatus)
	assert.True(t, paid.AmountPaid.Equal(d("1050")))
	assert.EqualValues(t, 2, f.count(t, &models.PaymentTransaction{}, "booking_id = ?", f.booking.ID))
	assert.EqualValues(t, 1, f.count(t, &models.GiftCardReservation{}, "booking_id = ? AND status = ?", f.booking.ID, enums.GiftCardReservationStatusCaptured))

	_, err = f.svc.ConfirmGatewayPayment(context.Background(), confirm)
	require.NoError(t, err)
	assert.EqualValues(t, 2, f.count(t, &models.PaymentTransaction{}, "booking_id = ?", f.booking.ID))
	assert.EqualValues(t, 1, f.count(t, &models.OutboxEvent{}, "event_type = ?", enums.EventBookingPaid))
}

func TestSettleWalletThenSavedCard(t *testing.T) {
	f := newFixture(t)
	sqlitetest.Wallet(t, f.db, f.customer.ID, "200")
	v := f.validated(enums.PaymentMethodCard)
	v.UseWallet = true
	v.SavedPaymentMethod = &models.SavedPaymentMethod{Provider: enums.PaymentProviderStripe, ProviderCustomerID: "cus_1", ProviderPaymentMethodID: "pm_1"}

	res, err := f.svc.Settle(context.Background(), Input{Booking: &f.booking, Validated: v})
	require.NoError(t, err)
	assert.Equal(t, PathCard, res.Path)
	require.NotNil(t, f.gateway.chargeReq)
	assert.True(t, f.gateway.chargeReq.Amount.Equal(d("850")), f.gateway.chargeReq.Amount.String())

	stored := f.reload(t)
	assert.Equal(t, enums.PaymentStatusPaid, stored.PaymentStatus)
	assert.True(t, stored.WalletAmount.Equal(d("200")))
	assert.True(t, stored.AmountPaid.Equal(d("1050")))
	assert.True(t, f.walletBalance(t).IsZero())
	assert.Equal(t, enums.FundingSourceMixed, res.Funding.Source())
	assert.EqualValues(t, 2, f.count(t, &models.PaymentTransaction{}, "booking_id = ?", f.booking.ID))
}

func TestSettleWalletThenSavedCardWithoutFees(t *testing.T) {
	f := newFixture(t)
	f.booking.ServiceFeeAmount = decimal.Zero
	f.booking.TotalAmount = d("1000")
	f.booking.AmountToCollect = d("1000")
	require.NoError(t, f.db.Save(&f.booking).Error)
	sqlitetest.Wallet(t, f.db, f.customer.ID, "200")
	v := f.validated(enums.PaymentMethodCard)
	v.UseWallet = true
	v.SavedPaymentMethod = &models.SavedPaymentMethod{Provider: enums.PaymentProviderStripe, ProviderCustomerID: "cus_1", ProviderPaymentMethodID: "pm_1"}

	res, err := f.svc.Settle(context.Background(), Input{Booking: &f.booking, Validated: v})
	require.NoError(t, err)
	assert.Equal(t, PathCard, res.Path)
	assert.True(t, f.gateway.chargeReq.Amount.Equal(d("800")), f.gateway.chargeReq.Amount.String())
	assert.True(t, res.Funding.Wallet.Equal(d("200")))
	assert.True(t, res.Funding.Gateway.Equal(d("800")))

	stored := f.reload(t)
	assert.Equal(t, enums.PaymentStatusPaid, stored.PaymentStatus)
	assert.True(t, stored.AmountPaid.Equal(d("1000")))
	assert.True(t, f.walletBalance(t).IsZero())
}

func TestSettleStagesInternalFundingBeforeCharging(t *testing.T) {
	f := newFixture(t)
	sqlitetest.Wallet(t, f.db, f.customer.ID, "200")
	f.svc.ledger = brokenLedger{Service: f.svc.ledger}
	var atCharge models.Booking
	f.gateway.onCall = func() { atCharge = f.reload(t) }
	v := f.validated(enums.PaymentMethodCard)
	v.UseWallet = true
	v.SavedPaymentMethod = &models.SavedPaymentMethod{Provider: enums.PaymentProviderStripe}

	_, err := f.svc.Settle(context.Background(), Input{Booking: &f.booking, Validated: v})
	require.Error(t, err)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeInternal))

	assert.True(t, atCharge.WalletAmount.Equal(d("200")), "wallet part persisted before the charge")
	require.NotNil(t, atCharge.PaymentReference)
	assert.Equal(t, f.gateway.chargeReq.Reference, *atCharge.PaymentReference)

	stored := f.reload(t)
	assert.Equal(t, enums.PaymentStatusPending, stored.PaymentStatus)
	assert.True(t, stored.WalletAmount.Equal(d("200")))
	assert.True(t, f.walletBalance(t).IsZero(), "charged card keeps the wallet debit")

	f.svc.ledger = f.svc.ledger.(brokenLedger).Service
	id, err := f.svc.BookingIDByReference(context.Background(), f.gateway.chargeReq.Reference)
	require.NoError(t, err)
	paid, err := f.svc.ConfirmGatewayPayment(context.Background(), ConfirmInput{
		BookingID: id,
		Provider:  enums.PaymentProviderStripe,
		Reference: f.gateway.chargeReq.Reference,
		Amount:    d("850"),
	})
	require.NoError(t, err)
	assert.Equal(t, enums.PaymentStatusPaid, paid.PaymentStatus)
	assert.True(t, paid.WalletAmount.Equal(d("200")))
	assert.True(t, paid.AmountPaid.Equal(d("1050")))
}

func TestSettleDepositFromWallet(t *testing.T) {
	f := newFixture(t)
	f.booking.PaymentOption = enums.PaymentOptionDeposit
	f.booking.DepositAmount = d("315")
	f.booking.AmountToCollect = d("315")
	require.NoError(t, f.db.Save(&f.booking).Error)
	sqlitetest.Wallet(t, f.db, f.customer.ID, "1000")
	v := f.validated(enums.PaymentMethodWallet)

	res, err := f.svc.Settle(context.Background(), Input{Booking: &f.booking, Validated: v})
	require.NoError(t, err)
	assert.Equal(t, PathInternal, res.Path)

	stored := f.reload(t)
	assert.Equal(t, enums.PaymentStatusDepositPaid, stored.PaymentStatus)
	assert.True(t, stored.AmountPaid.Equal(d("315")))
	assert.True(t, f.walletBalance(t).Equal(d("685")))
	assert.Zero(t, f.count(t, &models.FinanceTransaction{}, "booking_id = ?", f.booking.ID))
	assert.EqualValues(t, 1, f.count(t, &models.PaymentTransaction{}, "booking_id = ?", f.booking.ID))
}

func TestSettleDeclineReturnsInternalFunds(t *testing.T) {
	f := newFixture(t)
	card := sqlitetest.GiftCard(t, f.db, "GLOW-500", "500")
	sqlitetest.Wallet(t, f.db, f.customer.ID, "100")
	f.gateway.status = payments.ChargeFailed
	f.gateway.reason = "Your card was declined."
	v := f.validated(enums.PaymentMethodCard)
	v.GiftCardCode = strPtr("GLOW-500")
	v.UseWallet = true
	v.SavedPaymentMethod = &models.SavedPaymentMethod{Provider: enums.PaymentProviderStripe}

	_, err := f.svc.Settle(context.Background(), Input{Booking: &f.booking, Validated: v})
	require.Error(t, err)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodePaymentFailed))
	assert.Contains(t, err.Error(), "declined")
	assert.True(t, f.gateway.chargeReq.Amount.Equal(d("450")))

	assert.True(t, f.cardBalance(t, card.ID).Equal(d("500")))
	assert.True(t, f.walletBalance(t).Equal(d("100")))
	stored := f.reload(t)
	assert.Equal(t, enums.PaymentStatusPending, stored.PaymentStatus, "a declined card leaves the booking retryable")
	assert.Nil(t, stored.PaymentReference)
	assert.Nil(t, stored.PaymentProvider)
	assert.True(t, stored.GiftCardAmount.IsZero())
	assert.True(t, stored.WalletAmount.IsZero())
	assert.Zero(t, f.count(t, &models.PaymentTransaction{}, "booking_id = ?", f.booking.ID))
	assert.EqualValues(t, 1, f.count(t, &models.OutboxEvent{}, "event_type = ?", enums.EventBookingPaymentFailed))

	// The declined attempt's webhook arrives after the booking moved on.
	require.NoError(t, f.svc.FailGatewayPayment(context.Background(), FailInput{
		BookingID: f.booking.ID,
		Provider:  enums.PaymentProviderStripe,
		Reference: f.gateway.chargeReq.Reference,
		Reason:    "declined",
	}))
	assert.Equal(t, enums.PaymentStatusPending, f.reload(t).PaymentStatus)

	f.gateway.status = payments.ChargeSucceeded
	retry := f.reload(t)
	res, err := f.svc.Settle(context.Background(), Input{Booking: &retry, Validated: v})
	require.NoError(t, err)
	assert.Equal(t, PathCard, res.Path)
	assert.Equal(t, enums.PaymentStatusPaid, f.reload(t).PaymentStatus)
	assert.True(t, f.cardBalance(t, card.ID).IsZero())
	assert.True(t, f.walletBalance(t).IsZero())
}

func TestSettleGatewayOutageIsPaymentFailed(t *testing.T) {
	f := newFixture(t)
	sqlitetest.Wallet(t, f.db, f.customer.ID, "300")
	f.gateway.err = pkgerrors.New(pkgerrors.CodeDependency, "stripe unavailable")
	v := f.validated(enums.PaymentMethodCard)
	v.UseWallet = true

	_, err := f.svc.Settle(context.Background(), Input{Booking: &f.booking, Validated: v})
	require.Error(t, err)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodePaymentFailed))
	require.NotNil(t, f.gateway.initReq)
	assert.True(t, f.gateway.initReq.Amount.Equal(d("750")))

	stored := f.reload(t)
	assert.Equal(t, enums.PaymentStatusPending, stored.PaymentStatus)
	assert.Nil(t, stored.PaymentReference)
	assert.True(t, stored.WalletAmount.IsZero())
	assert.True(t, f.walletBalance(t).Equal(d("300")))
}

func TestSettleInvalidGiftCardLeavesBookingUnpaid(t *testing.T) {
	f := newFixture(t)
	v := f.validated(enums.PaymentMethodCard)
	v.GiftCardCode = strPtr("MISSING")

	_, err := f.svc.Settle(context.Background(), Input{Booking: &f.booking, Validated: v})
	require.Error(t, err)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeGiftCardInvalid))
	assert.Nil(t, f.gateway.initReq)
	stored := f.reload(t)
	assert.Equal(t, enums.PaymentStatusPending, stored.PaymentStatus)
	assert.True(t, stored.AmountPaid.IsZero())
}

func TestSettleEmptyWalletReleasesGiftCard(t *testing.T) {
	f := newFixture(t)
	card := sqlitetest.GiftCard(t, f.db, "GLOW-300", "300")
	v := f.validated(enums.PaymentMethodCard)
	v.GiftCardCode = strPtr("GLOW-300")
	v.UseWallet = true

	_, err := f.svc.Settle(context.Background(), Input{Booking: &f.booking, Validated: v})
	require.Error(t, err)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeWalletError))
	assert.True(t, f.cardBalance(t, card.ID).Equal(d("300")))
	assert.EqualValues(t, 1, f.count(t, &models.GiftCardReservation{}, "booking_id = ? AND status = ?", f.booking.ID, enums.GiftCardReservationStatusReleased))
}

func TestSettleWalletMethodShortfall(t *testing.T) {
	f := newFixture(t)
	sqlitetest.Wallet(t, f.db, f.customer.ID, "40")

	_, err := f.svc.Settle(context.Background(), Input{Booking: &f.booking, Validated: f.validated(enums.PaymentMethodWallet)})
	require.Error(t, err)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeWalletError))
	assert.True(t, f.walletBalance(t).Equal(d("40")))
}

func TestSettleCashCapturesInternalPart(t *testing.T) {
	f := newFixture(t)
	sqlitetest.GiftCard(t, f.db, "GLOW-50", "50")
	v := f.validated(enums.PaymentMethodCash)
	v.GiftCardCode = strPtr("GLOW-50")

	res, err := f.svc.Settle(context.Background(), Input{Booking: &f.booking, Validated: v})
	require.NoError(t, err)
	assert.Equal(t, PathCash, res.Path)
	stored := f.reload(t)
	assert.Equal(t, enums.PaymentStatusPending, stored.PaymentStatus)
	assert.Equal(t, enums.BookingStatusConfirmed, stored.Status)
	assert.True(t, stored.AmountPaid.Equal(d("50")))
	assert.EqualValues(t, 1, f.count(t, &models.PaymentTransaction{}, "booking_id = ?", f.booking.ID))
	assert.Zero(t, f.count(t, &models.FinanceTransaction{}, "booking_id = ?", f.booking.ID))
}

func TestFailGatewayPaymentRestoresFunds(t *testing.T) {
	f := newFixture(t)
	sqlitetest.Wallet(t, f.db, f.customer.ID, "250")
	v := f.validated(enums.PaymentMethodCard)
	v.UseWallet = true

	_, err := f.svc.Settle(context.Background(), Input{Booking: &f.booking, Validated: v})
	require.NoError(t, err)
	assert.True(t, f.walletBalance(t).IsZero())

	in := FailInput{BookingID: f.booking.ID, Provider: enums.PaymentProviderStripe, Reason: "checkout expired"}
	require.NoError(t, f.svc.FailGatewayPayment(context.Background(), in))
	require.NoError(t, f.svc.FailGatewayPayment(context.Background(), in))

	assert.True(t, f.walletBalance(t).Equal(d("250")))
	assert.Equal(t, enums.PaymentStatusFailed, f.reload(t).PaymentStatus)
	assert.EqualValues(t, 1, f.count(t, &models.OutboxEvent{}, "event_type = ?", enums.EventBookingPaymentFailed))

	err = f.svc.FailGatewayPayment(context.Background(), FailInput{BookingID: uuid.New()})
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeNotFound))
}

func TestSettleRequiresInput(t *testing.T) {
	f := newFixture(t)
	_, err := f.svc.Settle(context.Background(), Input{})
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeInternal))
}

func TestReducerConservesAmount(t *testing.T) {
	cases := []struct {
		due, gift, wallet string
	}{
		{"1050", "1050", "0"},
		{"1050", "500", "200"},
		{"1050", "2000", "50"},
		{"99.99", "0", "150"},
		{"0", "10", "10"},
	}
	for _, tc := range cases {
		st := newState(d(tc.due)).withGiftCard(d(tc.gift), uuid.New()).withWallet(d(tc.wallet))
		sum := st.giftCard.Add(st.wallet).Add(st.due)
		if !sum.Equal(d(tc.due)) {
			t.Fatalf("due %s: parts sum to %s", tc.due, sum)
		}
		if st.due.IsNegative() {
			t.Fatalf("due %s: negative remainder %s", tc.due, st.due)
		}
	}

	base := newState(d("100"))
	_ = base.withWallet(d("100"))
	if !base.due.Equal(d("100")) {
		t.Fatalf("reducer mutated its receiver")
	}
}

func TestWithCodeKeepsExistingCode(t *testing.T) {
	coded := pkgerrors.New(pkgerrors.CodeGiftCardInvalid, "expired")
	assert.Same(t, coded, withCode(coded, pkgerrors.CodeInternal, "x"))
	assert.True(t, pkgerrors.IsCode(withCode(errors.New("boom"), pkgerrors.CodeWalletError, "x"), pkgerrors.CodeWalletError))
}

func TestBookingIDByReference(t *testing.T) {
	f := newFixture(t)
	ref := f.booking.BookingNumber + "-a1b2c3d4"
	require.NoError(t, f.db.Model(&models.Booking{}).Where("id = ?", f.booking.ID).Update("payment_reference", ref).Error)

	id, err := f.svc.BookingIDByReference(context.Background(), ref)
	require.NoError(t, err)
	assert.Equal(t, f.booking.ID, id)

	_, err = f.svc.BookingIDByReference(context.Background(), "BK-UNKNOWN-00000000")
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeNotFound))

	_, err = f.svc.BookingIDByReference(context.Background(), " ")
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))
}
