package validation

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/glowbook/glowbook-backend/internal/catalog"
	"github.com/glowbook/glowbook-backend/internal/pricing"
	"github.com/glowbook/glowbook-backend/pkg/db/models"
	"github.com/glowbook/glowbook-backend/pkg/db/sqlitetest"
	"github.com/glowbook/glowbook-backend/pkg/enums"
	pkgerrors "github.com/glowbook/glowbook-backend/pkg/errors"
)

var fixedNow = time.Date(2026, 6, 1, 9, 0, 0, 0, time.UTC)

type staticSettings struct{ snap pricing.PlatformSettings }

func (s staticSettings) Snapshot(context.Context) (pricing.PlatformSettings, error) { return s.snap, nil }

type stubConflicts struct {
	ids     []uuid.UUID
	windows []Window
}

func (s *stubConflicts) FindConflicts(_ context.Context, windows []Window) ([]uuid.UUID, error) {
	s.windows = windows
	return s.ids, nil
}

type fixture struct {
	db        *gorm.DB
	customer  models.User
	provider  models.Provider
	location  models.ProviderLocation
	cut       models.Offering
	color     models.Offering
	stylist   models.StaffMember
	conflicts *stubConflicts
	settings  pricing.PlatformSettings
}

func newFixture(t *testing.T, mutate ...func(*models.Provider)) *fixture {
	t.Helper()
	db := sqlitetest.Open(t)
	customer := sqlitetest.User(t, db)
	provider := sqlitetest.Provider(t, db, customer.ID, mutate...)
	location := sqlitetest.Location(t, db, provider.ID)
	cut := sqlitetest.Offering(t, db, provider.ID, "600", 45)
	color := sqlitetest.Offering(t, db, provider.ID, "400", 60)
	stylist := sqlitetest.Staff(t, db, provider.ID, cut.ID, color.ID)
	return &fixture{
		db:        db,
		customer:  customer,
		provider:  provider,
		location:  location,
		cut:       cut,
		color:     color,
		stylist:   stylist,
		conflicts: &stubConflicts{},
		settings: pricing.PlatformSettings{
			CommissionRate:    decimal.RequireFromString("0.15"),
			CommissionEnabled: true,
			ServiceFeeKind:    enums.AmountKindPercentage,
			ServiceFeeValue:   decimal.NewFromInt(5),
			LoyaltyPointValue: decimal.RequireFromString("0.01"),
			LoyaltyEarnRate:   decimal.NewFromInt(1),
		},
	}
}

func (f *fixture) validator(t *testing.T) Validator {
	t.Helper()
	v, err := NewService(ServiceParams{
		Catalog:   catalog.NewRepository(f.db),
		Conflicts: f.conflicts,
		Settings:  staticSettings{snap: f.settings},
		Now:       func() time.Time { return fixedNow },
	})
	require.NoError(t, err)
	return v
}

func (f *fixture) draft() BookingDraft {
	return BookingDraft{
		ProviderID: f.provider.ID,
		Services: []ServiceRequest{
			{OfferingID: f.cut.ID, StaffID: f.stylist.ID},
			{OfferingID: f.color.ID, StaffID: f.stylist.ID},
		},
		ScheduledStartAt: fixedNow.Add(24 * time.Hour),
		LocationType:     enums.LocationTypeBusinessLocation,
		LocationID:       &f.location.ID,
		PaymentMethod:    enums.PaymentMethodCard,
	}
}

func requireCode(t *testing.T, err error, code pkgerrors.Code) *pkgerrors.Error {
	t.Helper()
	require.Error(t, err)
	typed := pkgerrors.As(err)
	require.NotNil(t, typed, "expected typed error, got %v", err)
	require.Equal(t, code, typed.Code(), typed.Message())
	return typed
}

func TestValidateComputesBreakdownAndTiming(t *testing.T) {
	f := newFixture(t)
	out, err := f.validator(t).Validate(context.Background(), f.draft(), f.customer.ID)
	require.NoError(t, err)

	assert.True(t, out.Breakdown.Subtotal.Equal(decimal.NewFromInt(1000)))
	assert.True(t, out.Breakdown.CommissionBase.Equal(decimal.NewFromInt(1000)))
	assert.True(t, out.Breakdown.ServiceFeeAmount.Equal(decimal.NewFromInt(50)))
	assert.True(t, out.Breakdown.Total.Equal(decimal.NewFromInt(1050)))
	assert.Equal(t, enums.BookingStatusConfirmed, out.AppointmentStatus)
	assert.Equal(t, f.customer.Email, out.CustomerEmail)

	require.Len(t, out.Services, 2)
	start := fixedNow.Add(24 * time.Hour)
	assert.Equal(t, start, out.Services[0].StartAt)
	assert.Equal(t, start.Add(45*time.Minute), out.Services[1].StartAt)
	assert.Equal(t, start.Add(105*time.Minute), out.ScheduledEndAt)
	assert.Len(t, f.conflicts.windows, 2)
	assert.False(t, out.Conflict.HasConflict())
}

func TestValidateRejectsUnknownOffering(t *testing.T) {
	f := newFixture(t)
	draft := f.draft()
	draft.Services[0].OfferingID = uuid.New()

	_, err := f.validator(t).Validate(context.Background(), draft, f.customer.ID)
	typed := requireCode(t, err, pkgerrors.CodeValidation)
	assert.Equal(t, "unknown offering", typed.Message())
}

func TestValidateRejectsStaffNotAssignedToOffering(t *testing.T) {
	f := newFixture(t)
	junior := sqlitetest.Staff(t, f.db, f.provider.ID, f.cut.ID)
	draft := f.draft()
	draft.Services[1].StaffID = junior.ID

	_, err := f.validator(t).Validate(context.Background(), draft, f.customer.ID)
	typed := requireCode(t, err, pkgerrors.CodeValidation)
	assert.Equal(t, "staff unavailable for offering", typed.Message())
}

func TestValidateRejectsExpiredPromo(t *testing.T) {
	f := newFixture(t)
	ended := fixedNow.Add(-time.Hour)
	require.NoError(t, f.db.Create(&models.PromoCode{
		Code:     "OLD",
		Kind:     enums.AmountKindFixed,
		Value:    decimal.NewFromInt(10),
		EndsAt:   &ended,
		IsActive: true,
	}).Error)
	draft := f.draft()
	code := "old"
	draft.PromoCode = &code

	_, err := f.validator(t).Validate(context.Background(), draft, f.customer.ID)
	typed := requireCode(t, err, pkgerrors.CodeValidation)
	assert.Equal(t, "invalid promo code", typed.Message())
}

func TestValidateAppliesDiscountsInOrder(t *testing.T) {
	f := newFixture(t)
	pkg := models.ServicePackage{
		ProviderID:    f.provider.ID,
		Name:          "Cut & Color",
		DiscountKind:  enums.AmountKindPercentage,
		DiscountValue: decimal.NewFromInt(10),
		IsActive:      true,
		Offerings:     []models.ServicePackageOffering{{OfferingID: f.cut.ID}},
	}
	require.NoError(t, f.db.Create(&pkg).Error)
	require.NoError(t, f.db.Create(&models.PromoCode{
		Code:     "TAKE50",
		Kind:     enums.AmountKindFixed,
		Value:    decimal.NewFromInt(50),
		IsActive: true,
	}).Error)
	require.NoError(t, f.db.Create(&models.LoyaltyAccount{UserID: f.customer.ID, PointsBalance: 5000}).Error)
	membership := models.Membership{
		UserID:             f.customer.ID,
		PlanName:           "Glow Club",
		DiscountPercentage: decimal.NewFromInt(10),
		Status:             enums.MembershipStatusActive,
	}
	require.NoError(t, f.db.Create(&membership).Error)

	draft := f.draft()
	code := "TAKE50"
	draft.PackageID = &pkg.ID
	draft.PromoCode = &code
	draft.LoyaltyPoints = 5000
	draft.MembershipID = &membership.ID

	out, err := f.validator(t).Validate(context.Background(), draft, f.customer.ID)
	require.NoError(t, err)

	b := out.Breakdown
	// 1000 -> package 100 -> promo 50 -> loyalty 50 -> membership 80
	assert.True(t, b.PackageDiscount.Equal(decimal.NewFromInt(100)), b.PackageDiscount.String())
	assert.True(t, b.PromoDiscount.Equal(decimal.NewFromInt(50)), b.PromoDiscount.String())
	assert.True(t, b.LoyaltyDiscount.Equal(decimal.NewFromInt(50)), b.LoyaltyDiscount.String())
	assert.True(t, b.MembershipDiscount.Equal(decimal.NewFromInt(80)), b.MembershipDiscount.String())
	assert.True(t, b.CommissionBase.Equal(decimal.NewFromInt(720)), b.CommissionBase.String())
	assert.Equal(t, int64(5000), b.LoyaltyPointsRedeemed)
	require.NotNil(t, out.PackageID)
	require.NotNil(t, out.PromoCodeID)
	require.NotNil(t, out.MembershipID)
}

func TestValidateRejectsInsufficientLoyalty(t *testing.T) {
	f := newFixture(t)
	draft := f.draft()
	draft.LoyaltyPoints = 10

	_, err := f.validator(t).Validate(context.Background(), draft, f.customer.ID)
	typed := requireCode(t, err, pkgerrors.CodeValidation)
	assert.Equal(t, "insufficient loyalty points", typed.Message())
}

func TestValidateLocationTypeMismatch(t *testing.T) {
	f := newFixture(t)
	draft := f.draft()
	draft.LocationType = enums.LocationTypeCustomerAddress
	draft.LocationID = nil
	draft.Address = &Address{Line1: "9 Elm", City: "Austin", Region: "TX", PostalCode: "78702", Country: "US"}

	_, err := f.validator(t).Validate(context.Background(), draft, f.customer.ID)
	typed := requireCode(t, err, pkgerrors.CodeValidation)
	assert.Equal(t, "location type mismatch", typed.Message())
}

func TestValidateHomeServiceAddsTravelFee(t *testing.T) {
	f := newFixture(t, func(p *models.Provider) {
		p.OffersHomeService = true
		p.TravelFee = decimal.NewFromInt(25)
	})
	draft := f.draft()
	draft.LocationType = enums.LocationTypeCustomerAddress
	draft.LocationID = nil
	draft.Address = &Address{Line1: "9 Elm", City: "Austin", Region: "TX", PostalCode: "78702", Country: "US"}

	out, err := f.validator(t).Validate(context.Background(), draft, f.customer.ID)
	require.NoError(t, err)
	assert.True(t, out.Breakdown.TravelFee.Equal(decimal.NewFromInt(25)))
	assert.True(t, out.Breakdown.CommissionBase.Equal(decimal.NewFromInt(1000)), "travel fee stays outside the commission base")
	assert.True(t, out.Breakdown.Total.Equal(decimal.NewFromInt(1075)))
}

func TestValidateGroupBookingNeedsParticipants(t *testing.T) {
	f := newFixture(t)
	draft := f.draft()
	draft.IsGroupBooking = true

	_, err := f.validator(t).Validate(context.Background(), draft, f.customer.ID)
	typed := requireCode(t, err, pkgerrors.CodeValidation)
	assert.Equal(t, "group booking requires at least one participant", typed.Message())
}

func TestValidateGroupBookingPlansGuestsBackToBack(t *testing.T) {
	f := newFixture(t)
	draft := f.draft()
	draft.Services = draft.Services[:1]
	draft.IsGroupBooking = true
	draft.Participants = []ParticipantRequest{{Name: "Ana"}, {Name: "Bea"}}

	out, err := f.validator(t).Validate(context.Background(), draft, f.customer.ID)
	require.NoError(t, err)
	require.NotNil(t, out.Group)
	require.Len(t, out.Group.Services, 2)

	start := fixedNow.Add(24 * time.Hour)
	assert.Equal(t, start.Add(45*time.Minute), out.Group.Services[0].StartAt)
	assert.Equal(t, "Ana", *out.Group.Services[0].ParticipantName)
	assert.Equal(t, start.Add(90*time.Minute), out.Group.Services[1].StartAt)
	assert.Equal(t, start.Add(135*time.Minute), out.ScheduledEndAt)
	assert.Len(t, out.Windows(), 3)

	// Organizer plus two guests, each having the 600 cut.
	assert.True(t, out.Breakdown.Subtotal.Equal(decimal.NewFromInt(1800)), "subtotal %s", out.Breakdown.Subtotal)
	assert.True(t, out.Breakdown.CommissionBase.Equal(decimal.NewFromInt(1800)))
	assert.True(t, out.Breakdown.ServiceFeeAmount.Equal(decimal.NewFromInt(90)))
	assert.True(t, out.Breakdown.Total.Equal(decimal.NewFromInt(1890)), "total %s", out.Breakdown.Total)
	rows := decimal.Zero
	for _, svc := range append(append([]PlannedService{}, out.Services...), out.Group.Services...) {
		rows = rows.Add(svc.Price)
	}
	assert.True(t, rows.Equal(out.Breakdown.Subtotal))
}

func TestValidateConflictOverrideNeedsPolicy(t *testing.T) {
	f := newFixture(t)
	existing := uuid.New()
	f.conflicts.ids = []uuid.UUID{existing}
	draft := f.draft()
	draft.ConflictOverride = true

	out, err := f.validator(t).Validate(context.Background(), draft, f.customer.ID)
	require.NoError(t, err)
	assert.True(t, out.Conflict.HasConflict())
	assert.True(t, out.Conflict.OverrideRequested)
	assert.False(t, out.Conflict.OverridePermitted)

	f.settings.AllowConflictOverride = true
	out, err = f.validator(t).Validate(context.Background(), draft, f.customer.ID)
	require.NoError(t, err)
	assert.True(t, out.Conflict.OverridePermitted)
	assert.Equal(t, []uuid.UUID{existing}, out.Conflict.ConflictingBookingIDs)
}

func TestValidateDepositOptionRequiresDepositProvider(t *testing.T) {
	f := newFixture(t)
	draft := f.draft()
	draft.PaymentOption = enums.PaymentOptionDeposit

	_, err := f.validator(t).Validate(context.Background(), draft, f.customer.ID)
	typed := requireCode(t, err, pkgerrors.CodeValidation)
	assert.Equal(t, "provider does not take deposits", typed.Message())
}

func TestValidateRejectsPastStart(t *testing.T) {
	f := newFixture(t)
	draft := f.draft()
	draft.ScheduledStartAt = fixedNow.Add(-time.Minute)

	_, err := f.validator(t).Validate(context.Background(), draft, f.customer.ID)
	requireCode(t, err, pkgerrors.CodeValidation)
}

func TestValidateStructTags(t *testing.T) {
	f := newFixture(t)
	draft := f.draft()
	draft.Services = nil

	_, err := f.validator(t).Validate(context.Background(), draft, f.customer.ID)
	typed := requireCode(t, err, pkgerrors.CodeValidation)
	details, ok := typed.Details().(map[string]string)
	require.True(t, ok)
	assert.Contains(t, details, "BookingDraft.services")
}

func TestValidateFundingKeepsStoredAmounts(t *testing.T) {
	f := newFixture(t)
	start := fixedNow.Add(24 * time.Hour)
	booking := sqlitetest.Booking(t, f.db, f.customer.ID, f.provider.ID, f.stylist.ID, f.cut.ID, start, 45, "630")
	code := "  GLOW-1  "
	draft := FundingDraft{PaymentMethod: enums.PaymentMethodCash, UseWallet: true, GiftCardCode: &code}

	out, err := f.validator(t).ValidateFunding(context.Background(), &booking, draft, f.customer.ID)
	require.NoError(t, err)
	assert.Equal(t, f.provider.ID, out.Provider.ID)
	assert.Equal(t, enums.PaymentMethodCash, out.PaymentMethod)
	assert.True(t, out.UseWallet)
	require.NotNil(t, out.GiftCardCode)
	assert.Equal(t, "GLOW-1", *out.GiftCardCode)
	assert.True(t, out.Breakdown.AmountToCollect.Equal(booking.AmountToCollect))
	assert.Equal(t, booking.ScheduledStartAt, out.ScheduledStartAt)
	assert.Equal(t, enums.BookingStatusConfirmed, out.AppointmentStatus)
	assert.Empty(t, out.Windows(), "funding checks never re-plan the schedule")
}

func TestValidateFundingRejectsBadChoices(t *testing.T) {
	f := newFixture(t)
	booking := sqlitetest.Booking(t, f.db, f.customer.ID, f.provider.ID, f.stylist.ID, f.cut.ID, fixedNow.Add(24*time.Hour), 45, "630")
	v := f.validator(t)
	ctx := context.Background()

	_, err := v.ValidateFunding(ctx, &booking, FundingDraft{}, f.customer.ID)
	requireCode(t, err, pkgerrors.CodeValidation)

	_, err = v.ValidateFunding(ctx, &booking, FundingDraft{PaymentMethod: enums.PaymentMethodGiftCard}, f.customer.ID)
	requireCode(t, err, pkgerrors.CodeValidation)

	unknown := uuid.New()
	_, err = v.ValidateFunding(ctx, &booking, FundingDraft{PaymentMethod: enums.PaymentMethodCash, SavedPaymentMethodID: &unknown}, f.customer.ID)
	requireCode(t, err, pkgerrors.CodeValidation)

	_, err = v.ValidateFunding(ctx, &booking, FundingDraft{PaymentMethod: enums.PaymentMethodCash}, uuid.Nil)
	requireCode(t, err, pkgerrors.CodeUnauthorized)
}
