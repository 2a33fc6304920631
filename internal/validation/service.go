package validation

import (
	"context"
	"fmt"
	"reflect"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/glowbook/glowbook-backend/internal/catalog"
	"github.com/glowbook/glowbook-backend/internal/pricing"
	"github.com/glowbook/glowbook-backend/pkg/db/models"
	"github.com/glowbook/glowbook-backend/pkg/enums"
	pkgerrors "github.com/glowbook/glowbook-backend/pkg/errors"
)

type catalogReader interface {
	FindUser(ctx context.Context, id uuid.UUID) (*models.User, error)
	FindActiveProvider(ctx context.Context, id uuid.UUID) (*models.Provider, error)
	FindActiveLocation(ctx context.Context, providerID, locationID uuid.UUID) (*models.ProviderLocation, error)
	ActiveOfferings(ctx context.Context, providerID uuid.UUID, ids []uuid.UUID) (map[uuid.UUID]models.Offering, error)
	ActiveStaff(ctx context.Context, providerID uuid.UUID, ids []uuid.UUID) (map[uuid.UUID]models.StaffMember, error)
	StaffAssignments(ctx context.Context, staffIDs []uuid.UUID) (map[catalog.StaffAssignment]bool, error)
	ActiveAddons(ctx context.Context, providerID uuid.UUID, ids []uuid.UUID) (map[uuid.UUID]models.Addon, error)
	ActiveProducts(ctx context.Context, providerID uuid.UUID, ids []uuid.UUID) (map[uuid.UUID]models.Product, error)
	ActiveResources(ctx context.Context, providerID uuid.UUID, ids []uuid.UUID) (map[uuid.UUID]models.Resource, error)
	FindPromoCode(ctx context.Context, code string) (*models.PromoCode, error)
	FindActivePackage(ctx context.Context, providerID, packageID uuid.UUID) (*models.ServicePackage, error)
	FindActiveMembership(ctx context.Context, userID, membershipID uuid.UUID, now time.Time) (*models.Membership, error)
	LoyaltyBalance(ctx context.Context, userID uuid.UUID) (int64, error)
	FindSavedPaymentMethod(ctx context.Context, userID, id uuid.UUID) (*models.SavedPaymentMethod, error)
}

// ConflictFinder reports bookings holding any of the windows.
type ConflictFinder interface {
	FindConflicts(ctx context.Context, windows []Window) ([]uuid.UUID, error)
}

type settingsSource interface {
	Snapshot(ctx context.Context) (pricing.PlatformSettings, error)
}

// Validator turns drafts into ValidatedBookingData.
type Validator interface {
	Validate(ctx context.Context, draft BookingDraft, userID uuid.UUID) (*ValidatedBookingData, error)
	ValidateFunding(ctx context.Context, booking *models.Booking, draft FundingDraft, userID uuid.UUID) (*ValidatedBookingData, error)
}

// ServiceParams wires the validator.
type ServiceParams struct {
	Catalog         catalogReader
	Conflicts       ConflictFinder
	Settings        settingsSource
	DefaultCurrency string
	Now             func() time.Time
}

type service struct {
	catalog         catalogReader
	conflicts       ConflictFinder
	settings        settingsSource
	defaultCurrency string
	now             func() time.Time
	structs         *validator.Validate
}

// NewService builds the validation stage.
func NewService(params ServiceParams) (Validator, error) {
	if params.Catalog == nil {
		return nil, fmt.Errorf("catalog required")
	}
	if params.Conflicts == nil {
		return nil, fmt.Errorf("conflict finder required")
	}
	if params.Settings == nil {
		return nil, fmt.Errorf("settings source required")
	}
	now := params.Now
	if now == nil {
		now = time.Now
	}
	currency := params.DefaultCurrency
	if currency == "" {
		currency = "USD"
	}
	return &service{
		catalog:         params.Catalog,
		conflicts:       params.Conflicts,
		settings:        params.Settings,
		defaultCurrency: currency,
		now:             now,
		structs:         newStructValidator(),
	}, nil
}

func newStructValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		tag := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if tag == "" {
			return f.Name
		}
		return tag
	})
	return v
}

func invalid(message string, details map[string]any) error {
	err := pkgerrors.New(pkgerrors.CodeValidation, message)
	if details != nil {
		err = err.WithDetails(details)
	}
	return err
}

func fetchFailed(err error, what string) error {
	return pkgerrors.Wrap(pkgerrors.CodeFetchError, err, "load "+what)
}

// Validate resolves every reference in draft and prices the booking. It reads
// but never writes.
func (s *service) Validate(ctx context.Context, draft BookingDraft, userID uuid.UUID) (*ValidatedBookingData, error) {
	if userID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "user id required")
	}
	if err := s.structs.Struct(draft); err != nil {
		return nil, structErrors(err)
	}
	now := s.now().UTC()
	start := draft.ScheduledStartAt.UTC()
	if !start.After(now) {
		return nil, invalid("scheduled start must be in the future", map[string]any{"field": "scheduled_start_at"})
	}
	if !draft.PaymentMethod.IsValid() {
		return nil, invalid("unknown payment method", map[string]any{"payment_method": draft.PaymentMethod})
	}
	option := draft.PaymentOption
	if option == "" {
		option = enums.PaymentOptionFull
	}
	if !option.IsValid() {
		return nil, invalid("unknown payment option", map[string]any{"payment_option": draft.PaymentOption})
	}
	if draft.IsGroupBooking && len(draft.Participants) == 0 {
		return nil, invalid("group booking requires at least one participant", nil)
	}

	settings, err := s.settings.Snapshot(ctx)
	if err != nil {
		return nil, fetchFailed(err, "platform settings")
	}

	customer, err := s.catalog.FindUser(ctx, userID)
	if err != nil {
		return nil, fetchFailed(err, "customer")
	}
	if customer == nil || !customer.IsActive {
		return nil, invalid("unknown customer", nil)
	}

	provider, err := s.catalog.FindActiveProvider(ctx, draft.ProviderID)
	if err != nil {
		return nil, fetchFailed(err, "provider")
	}
	if provider == nil {
		return nil, invalid("unknown provider", map[string]any{"provider_id": draft.ProviderID})
	}

	out := &ValidatedBookingData{
		CustomerID:       customer.ID,
		CustomerEmail:    customer.Email,
		Provider:         *provider,
		LocationType:     draft.LocationType,
		ScheduledStartAt: start,
		Currency:         provider.Currency,
		Settings:         settings,
		PaymentMethod:    draft.PaymentMethod,
		PaymentOption:    option,
		UseWallet:        draft.UseWallet || draft.PaymentMethod == enums.PaymentMethodWallet,
		GiftCardCode:     trimmed(draft.GiftCardCode),
		Notes:            draft.Notes,
	}
	if out.Currency == "" {
		out.Currency = s.defaultCurrency
	}

	travelFee, err := s.resolveLocation(ctx, draft, provider, out)
	if err != nil {
		return nil, err
	}
	servicesTotal, err := s.resolveServices(ctx, draft, provider, out)
	if err != nil {
		return nil, err
	}
	addonsTotal, err := s.resolveAddons(ctx, draft, provider, out)
	if err != nil {
		return nil, err
	}
	productsTotal, err := s.resolveProducts(ctx, draft, provider, out)
	if err != nil {
		return nil, err
	}
	if err := s.resolveResources(ctx, draft, provider, out); err != nil {
		return nil, err
	}
	if draft.IsGroupBooking {
		s.planGroup(draft, out)
		for _, guest := range out.Group.Services {
			servicesTotal = servicesTotal.Add(guest.Price)
		}
	}
	out.ScheduledEndAt = latestEnd(out)

	subtotal := servicesTotal.Add(addonsTotal).Add(productsTotal)
	input := pricing.Input{
		ServicesTotal:     servicesTotal,
		AddonsTotal:       addonsTotal,
		ProductsTotal:     productsTotal,
		TravelFee:         travelFee,
		Settings:          settings,
		DepositRequired:   provider.DepositRequired,
		DepositPercentage: provider.DepositPercentage,
		PaymentOption:     option,
	}
	if draft.Tip != nil {
		if draft.Tip.IsNegative() {
			return nil, invalid("tip must not be negative", map[string]any{"field": "tip"})
		}
		input.Tip = *draft.Tip
	}
	if provider.ServiceFeeKind != nil && provider.ServiceFeeValue != nil {
		input.ServiceFee = &pricing.FeeRule{Kind: *provider.ServiceFeeKind, Value: *provider.ServiceFeeValue}
	}
	if err := s.resolveDiscounts(ctx, draft, userID, provider, subtotal, now, &input, out); err != nil {
		return nil, err
	}

	if err := s.resolvePayment(ctx, draft, userID, provider, option, out); err != nil {
		return nil, err
	}

	breakdown, err := pricing.Compute(input)
	if err != nil {
		return nil, invalid(err.Error(), nil)
	}
	out.Breakdown = breakdown

	out.AppointmentStatus = enums.BookingStatusConfirmed
	if provider.RequiresManualConfirmation {
		out.AppointmentStatus = enums.BookingStatusPending
	}

	conflicts, err := s.conflicts.FindConflicts(ctx, out.Windows())
	if err != nil {
		return nil, fetchFailed(err, "schedule")
	}
	out.Conflict = ConflictResult{
		ConflictingBookingIDs: conflicts,
		OverrideRequested:     draft.ConflictOverride,
		OverridePermitted:     draft.ConflictOverride && settings.AllowConflictOverride,
	}
	return out, nil
}

func (s *service) resolveLocation(ctx context.Context, draft BookingDraft, provider *models.Provider, out *ValidatedBookingData) (decimal.Decimal, error) {
	switch draft.LocationType {
	case enums.LocationTypeBusinessLocation:
		if !provider.OffersBusinessLocation || draft.LocationID == nil {
			return decimal.Zero, invalid("location type mismatch", map[string]any{"location_type": draft.LocationType})
		}
		location, err := s.catalog.FindActiveLocation(ctx, provider.ID, *draft.LocationID)
		if err != nil {
			return decimal.Zero, fetchFailed(err, "location")
		}
		if location == nil {
			return decimal.Zero, invalid("location type mismatch", map[string]any{"location_id": *draft.LocationID})
		}
		out.Location = location
		return decimal.Zero, nil
	case enums.LocationTypeCustomerAddress:
		if !provider.OffersHomeService || draft.Address == nil {
			return decimal.Zero, invalid("location type mismatch", map[string]any{"location_type": draft.LocationType})
		}
		out.Address = draft.Address
		return provider.TravelFee, nil
	default:
		return decimal.Zero, invalid("location type mismatch", map[string]any{"location_type": draft.LocationType})
	}
}

func (s *service) resolveServices(ctx context.Context, draft BookingDraft, provider *models.Provider, out *ValidatedBookingData) (decimal.Decimal, error) {
	offeringIDs := make([]uuid.UUID, 0, len(draft.Services))
	staffIDs := make([]uuid.UUID, 0, len(draft.Services))
	for _, svc := range draft.Services {
		offeringIDs = append(offeringIDs, svc.OfferingID)
		staffIDs = append(staffIDs, svc.StaffID)
	}

	offerings, err := s.catalog.ActiveOfferings(ctx, provider.ID, offeringIDs)
	if err != nil {
		return decimal.Zero, fetchFailed(err, "offerings")
	}
	staff, err := s.catalog.ActiveStaff(ctx, provider.ID, staffIDs)
	if err != nil {
		return decimal.Zero, fetchFailed(err, "staff")
	}
	assignments, err := s.catalog.StaffAssignments(ctx, staffIDs)
	if err != nil {
		return decimal.Zero, fetchFailed(err, "staff assignments")
	}

	total := decimal.Zero
	cursor := out.ScheduledStartAt
	out.Services = make([]PlannedService, 0, len(draft.Services))
	for i, svc := range draft.Services {
		offering, ok := offerings[svc.OfferingID]
		if !ok {
			return decimal.Zero, invalid("unknown offering", map[string]any{"index": i, "offering_id": svc.OfferingID})
		}
		if _, ok := staff[svc.StaffID]; !ok {
			return decimal.Zero, invalid("unknown staff member", map[string]any{"index": i, "staff_id": svc.StaffID})
		}
		if !assignments[catalog.StaffAssignment{StaffID: svc.StaffID, OfferingID: svc.OfferingID}] {
			return decimal.Zero, invalid("staff unavailable for offering", map[string]any{
				"index":       i,
				"staff_id":    svc.StaffID,
				"offering_id": svc.OfferingID,
			})
		}
		end := cursor.Add(time.Duration(offering.DurationMinutes) * time.Minute)
		out.Services = append(out.Services, PlannedService{
			OfferingID:      offering.ID,
			StaffID:         svc.StaffID,
			Price:           offering.Price,
			DurationMinutes: offering.DurationMinutes,
			StartAt:         cursor,
			EndAt:           end,
		})
		cursor = end
		total = total.Add(offering.Price)
	}
	out.Offerings = offerings
	out.Staff = staff
	return total, nil
}

func (s *service) resolveAddons(ctx context.Context, draft BookingDraft, provider *models.Provider, out *ValidatedBookingData) (decimal.Decimal, error) {
	out.Addons = map[uuid.UUID]models.Addon{}
	if len(draft.Addons) == 0 {
		return decimal.Zero, nil
	}
	ids := make([]uuid.UUID, 0, len(draft.Addons))
	for _, a := range draft.Addons {
		ids = append(ids, a.AddonID)
	}
	addons, err := s.catalog.ActiveAddons(ctx, provider.ID, ids)
	if err != nil {
		return decimal.Zero, fetchFailed(err, "addons")
	}
	total := decimal.Zero
	for i, req := range draft.Addons {
		addon, ok := addons[req.AddonID]
		if !ok {
			return decimal.Zero, invalid("unknown addon", map[string]any{"index": i, "addon_id": req.AddonID})
		}
		if addon.OfferingID != nil {
			if _, ok := out.Offerings[*addon.OfferingID]; !ok {
				return decimal.Zero, invalid("addon does not apply to the selected services", map[string]any{"addon_id": req.AddonID})
			}
		}
		out.AddonLines = append(out.AddonLines, AddonLine{AddonID: addon.ID, Quantity: req.Quantity, UnitPrice: addon.Price})
		total = total.Add(addon.Price.Mul(decimal.NewFromInt(int64(req.Quantity))))
	}
	out.Addons = addons
	return total, nil
}

func (s *service) resolveProducts(ctx context.Context, draft BookingDraft, provider *models.Provider, out *ValidatedBookingData) (decimal.Decimal, error) {
	out.Products = map[uuid.UUID]models.Product{}
	if len(draft.Products) == 0 {
		return decimal.Zero, nil
	}
	ids := make([]uuid.UUID, 0, len(draft.Products))
	for _, p := range draft.Products {
		ids = append(ids, p.ProductID)
	}
	products, err := s.catalog.ActiveProducts(ctx, provider.ID, ids)
	if err != nil {
		return decimal.Zero, fetchFailed(err, "products")
	}
	total := decimal.Zero
	for i, req := range draft.Products {
		product, ok := products[req.ProductID]
		if !ok {
			return decimal.Zero, invalid("unknown product", map[string]any{"index": i, "product_id": req.ProductID})
		}
		out.ProductLines = append(out.ProductLines, ProductLine{ProductID: product.ID, Quantity: req.Quantity, UnitPrice: product.Price})
		total = total.Add(product.Price.Mul(decimal.NewFromInt(int64(req.Quantity))))
	}
	out.Products = products
	return total, nil
}

func (s *service) resolveResources(ctx context.Context, draft BookingDraft, provider *models.Provider, out *ValidatedBookingData) error {
	if len(draft.Resources) == 0 {
		return nil
	}
	ids := make([]uuid.UUID, 0, len(draft.Resources))
	for _, r := range draft.Resources {
		if r.ServiceIndex >= len(out.Services) {
			return invalid("resource references an unknown service", map[string]any{"service_index": r.ServiceIndex})
		}
		ids = append(ids, r.ResourceID)
	}
	resources, err := s.catalog.ActiveResources(ctx, provider.ID, ids)
	if err != nil {
		return fetchFailed(err, "resources")
	}
	for _, r := range draft.Resources {
		if _, ok := resources[r.ResourceID]; !ok {
			return invalid("unknown resource", map[string]any{"resource_id": r.ResourceID})
		}
	}
	out.Resources = draft.Resources
	return nil
}

// planGroup gives each guest the organizer's services back to back, guest k
// starting where guest k-1 finished. Durations come from the resolved
// offerings.
func (s *service) planGroup(draft BookingDraft, out *ValidatedBookingData) {
	durations := make(map[uuid.UUID]time.Duration, len(out.Offerings))
	for id, offering := range out.Offerings {
		durations[id] = time.Duration(offering.DurationMinutes) * time.Minute
	}
	plan := &GroupPlan{Participants: draft.Participants}
	cursor := out.Services[len(out.Services)-1].EndAt
	for i := range draft.Participants {
		name := draft.Participants[i].Name
		for _, svc := range out.Services {
			end := cursor.Add(durations[svc.OfferingID])
			plan.Services = append(plan.Services, PlannedService{
				OfferingID:      svc.OfferingID,
				StaffID:         svc.StaffID,
				ParticipantName: &name,
				Price:           svc.Price,
				DurationMinutes: svc.DurationMinutes,
				StartAt:         cursor,
				EndAt:           end,
			})
			cursor = end
		}
	}
	out.Group = plan
}

func (s *service) resolveDiscounts(
	ctx context.Context,
	draft BookingDraft,
	userID uuid.UUID,
	provider *models.Provider,
	subtotal decimal.Decimal,
	now time.Time,
	input *pricing.Input,
	out *ValidatedBookingData,
) error {
	if draft.PackageID != nil {
		pkg, err := s.catalog.FindActivePackage(ctx, provider.ID, *draft.PackageID)
		if err != nil {
			return fetchFailed(err, "package")
		}
		if pkg == nil || !packageCovers(pkg, out.Offerings) {
			return invalid("package does not apply to the selected services", map[string]any{"package_id": *draft.PackageID})
		}
		input.Package = &pricing.Adjustment{Kind: pkg.DiscountKind, Value: pkg.DiscountValue}
		out.PackageID = &pkg.ID
	}

	if code := trimmed(draft.PromoCode); code != nil {
		promo, err := s.catalog.FindPromoCode(ctx, *code)
		if err != nil {
			return fetchFailed(err, "promo code")
		}
		if reason := promoRejection(promo, provider.ID, subtotal, now); reason != "" {
			return invalid("invalid promo code", map[string]any{"promo_code": *code, "reason": reason})
		}
		input.Promo = &pricing.Adjustment{Kind: promo.Kind, Value: promo.Value, Max: promo.MaxDiscount}
		out.PromoCodeID = &promo.ID
	}

	if draft.LoyaltyPoints > 0 {
		balance, err := s.catalog.LoyaltyBalance(ctx, userID)
		if err != nil {
			return fetchFailed(err, "loyalty balance")
		}
		if draft.LoyaltyPoints > balance {
			return invalid("insufficient loyalty points", map[string]any{"requested": draft.LoyaltyPoints, "available": balance})
		}
		input.LoyaltyPts = draft.LoyaltyPoints
	}

	if draft.MembershipID != nil {
		membership, err := s.catalog.FindActiveMembership(ctx, userID, *draft.MembershipID, now)
		if err != nil {
			return fetchFailed(err, "membership")
		}
		if membership == nil || (membership.ProviderID != nil && *membership.ProviderID != provider.ID) {
			return invalid("membership is not valid for this provider", map[string]any{"membership_id": *draft.MembershipID})
		}
		input.Membership = &pricing.Adjustment{Kind: enums.AmountKindPercentage, Value: membership.DiscountPercentage}
		out.MembershipID = &membership.ID
	}
	return nil
}

func (s *service) resolvePayment(ctx context.Context, draft BookingDraft, userID uuid.UUID, provider *models.Provider, option enums.PaymentOption, out *ValidatedBookingData) error {
	if option == enums.PaymentOptionDeposit && !provider.DepositRequired {
		return invalid("provider does not take deposits", map[string]any{"payment_option": option})
	}
	if draft.PaymentMethod == enums.PaymentMethodGiftCard && out.GiftCardCode == nil {
		return invalid("gift card code required", map[string]any{"field": "gift_card_code"})
	}
	if draft.SavedPaymentMethodID == nil {
		return nil
	}
	if draft.PaymentMethod != enums.PaymentMethodCard {
		return invalid("saved payment method requires card payment", map[string]any{"payment_method": draft.PaymentMethod})
	}
	method, err := s.catalog.FindSavedPaymentMethod(ctx, userID, *draft.SavedPaymentMethodID)
	if err != nil {
		return fetchFailed(err, "saved payment method")
	}
	if method == nil {
		return invalid("unknown saved payment method", map[string]any{"saved_payment_method_id": *draft.SavedPaymentMethodID})
	}
	out.SavedPaymentMethod = method
	return nil
}

func packageCovers(pkg *models.ServicePackage, offerings map[uuid.UUID]models.Offering) bool {
	for _, item := range pkg.Offerings {
		if _, ok := offerings[item.OfferingID]; ok {
			return true
		}
	}
	return false
}

func promoRejection(promo *models.PromoCode, providerID uuid.UUID, subtotal decimal.Decimal, now time.Time) string {
	switch {
	case promo == nil:
		return "not_found"
	case !promo.IsActive:
		return "inactive"
	case promo.ProviderID != nil && *promo.ProviderID != providerID:
		return "wrong_provider"
	case promo.StartsAt != nil && now.Before(*promo.StartsAt):
		return "not_started"
	case promo.EndsAt != nil && !now.Before(*promo.EndsAt):
		return "expired"
	case promo.UsageLimit != nil && promo.UsedCount >= *promo.UsageLimit:
		return "usage_limit_reached"
	case promo.MinSubtotal != nil && subtotal.LessThan(*promo.MinSubtotal):
		return "below_minimum"
	}
	return ""
}

func latestEnd(out *ValidatedBookingData) time.Time {
	end := out.ScheduledStartAt
	for _, w := range out.Windows() {
		if w.EndAt.After(end) {
			end = w.EndAt
		}
	}
	return end
}

func trimmed(v *string) *string {
	if v == nil {
		return nil
	}
	t := strings.TrimSpace(*v)
	if t == "" {
		return nil
	}
	return &t
}

func structErrors(err error) error {
	errs, ok := err.(validator.ValidationErrors)
	if !ok {
		return pkgerrors.Wrap(pkgerrors.CodeValidation, err, "validation failed")
	}
	details := map[string]string{}
	for _, fe := range errs {
		details[fe.Namespace()] = fe.Tag()
	}
	return pkgerrors.New(pkgerrors.CodeValidation, "validation failed").WithDetails(details)
}
