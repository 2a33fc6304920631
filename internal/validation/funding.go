package validation

import (
	"context"

	"github.com/google/uuid"

	"github.com/glowbook/glowbook-backend/internal/pricing"
	"github.com/glowbook/glowbook-backend/pkg/db/models"
	"github.com/glowbook/glowbook-backend/pkg/enums"
	pkgerrors "github.com/glowbook/glowbook-backend/pkg/errors"
)

// FundingDraft picks new funding for a booking whose settlement did not go
// through.
type FundingDraft struct {
	PaymentMethod        enums.PaymentMethod `json:"payment_method" validate:"required"`
	UseWallet            bool                `json:"use_wallet,omitempty"`
	GiftCardCode         *string             `json:"gift_card_code,omitempty" validate:"omitempty,max=64"`
	SavedPaymentMethodID *uuid.UUID          `json:"saved_payment_method_id,omitempty"`
}

// ValidateFunding checks draft against an already reserved booking. Schedule
// and amounts come from the booking as stored; only the funding is resolved.
func (s *service) ValidateFunding(ctx context.Context, booking *models.Booking, draft FundingDraft, userID uuid.UUID) (*ValidatedBookingData, error) {
	if userID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "user id required")
	}
	if booking == nil {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "booking not found")
	}
	if err := s.structs.Struct(draft); err != nil {
		return nil, structErrors(err)
	}
	if !draft.PaymentMethod.IsValid() {
		return nil, invalid("unknown payment method", map[string]any{"payment_method": draft.PaymentMethod})
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
	provider, err := s.catalog.FindActiveProvider(ctx, booking.ProviderID)
	if err != nil {
		return nil, fetchFailed(err, "provider")
	}
	if provider == nil {
		return nil, invalid("unknown provider", map[string]any{"provider_id": booking.ProviderID})
	}

	out := &ValidatedBookingData{
		CustomerID:       customer.ID,
		CustomerEmail:    customer.Email,
		Provider:         *provider,
		LocationType:     booking.LocationType,
		ScheduledStartAt: booking.ScheduledStartAt,
		ScheduledEndAt:   booking.ScheduledEndAt,
		Currency:         booking.Currency,
		Breakdown:        breakdownOf(booking),
		Settings:         settings,
		PromoCodeID:      booking.PromoCodeID,
		PackageID:        booking.PackageID,
		MembershipID:     booking.MembershipID,
		PaymentMethod:    draft.PaymentMethod,
		PaymentOption:    booking.PaymentOption,
		UseWallet:        draft.UseWallet || draft.PaymentMethod == enums.PaymentMethodWallet,
		GiftCardCode:     trimmed(draft.GiftCardCode),
		Notes:            booking.Notes,
	}
	payment := BookingDraft{PaymentMethod: draft.PaymentMethod, SavedPaymentMethodID: draft.SavedPaymentMethodID}
	if err := s.resolvePayment(ctx, payment, userID, provider, booking.PaymentOption, out); err != nil {
		return nil, err
	}

	out.AppointmentStatus = enums.BookingStatusConfirmed
	if provider.RequiresManualConfirmation {
		out.AppointmentStatus = enums.BookingStatusPending
	}
	return out, nil
}

func breakdownOf(b *models.Booking) pricing.Breakdown {
	return pricing.Breakdown{
		Subtotal:              b.Subtotal,
		PackageDiscount:       b.PackageDiscount,
		PromoDiscount:         b.PromoDiscount,
		LoyaltyDiscount:       b.LoyaltyDiscount,
		MembershipDiscount:    b.MembershipDiscount,
		DiscountTotal:         b.DiscountTotal,
		CommissionBase:        b.CommissionBase,
		TravelFee:             b.TravelFee,
		ServiceFeeAmount:      b.ServiceFeeAmount,
		ServiceFeePercentage:  b.ServiceFeePercentage,
		TaxRate:               b.TaxRate,
		TaxAmount:             b.TaxAmount,
		Tip:                   b.TipAmount,
		Total:                 b.TotalAmount,
		DepositAmount:         b.DepositAmount,
		AmountToCollect:       b.AmountToCollect,
		LoyaltyPointsRedeemed: b.LoyaltyPointsRedeemed,
		LoyaltyPointsEarned:   b.LoyaltyPointsEarned,
	}
}
