package ledger

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/glowbook/glowbook-backend/internal/pricing"
	"github.com/glowbook/glowbook-backend/pkg/db/models"
	"github.com/glowbook/glowbook-backend/pkg/enums"
	"github.com/glowbook/glowbook-backend/pkg/logger"
)

// Funding splits what a settlement collected by instrument. Amounts are in
// major currency units.
type Funding struct {
	GiftCard         decimal.Decimal
	Wallet           decimal.Decimal
	Gateway          decimal.Decimal
	GatewayProvider  enums.PaymentProvider
	GatewayReference string
	GatewayFees      decimal.Decimal
}

// Internal is the part covered without a gateway.
func (f Funding) Internal() decimal.Decimal {
	return f.GiftCard.Add(f.Wallet)
}

func (f Funding) Total() decimal.Decimal {
	return f.Internal().Add(f.Gateway)
}

// InternalSource tags the gift card and wallet portion.
func (f Funding) InternalSource() enums.FundingSource {
	switch {
	case f.GiftCard.IsPositive() && f.Wallet.IsPositive():
		return enums.FundingSourceMixed
	case f.Wallet.IsPositive():
		return enums.FundingSourceWallet
	default:
		return enums.FundingSourceGiftCard
	}
}

// Source tags the settlement as a whole.
func (f Funding) Source() enums.FundingSource {
	if !f.Gateway.IsPositive() {
		return f.InternalSource()
	}
	if f.Internal().IsPositive() {
		return enums.FundingSourceMixed
	}
	return enums.FundingSourceCard
}

// Entries are the rows a write produced.
type Entries struct {
	Payments []models.PaymentTransaction
	Finance  []models.FinanceTransaction
	// Duplicate is set when every row already existed.
	Duplicate bool
}

// Service records ledger rows for settled bookings.
type Service interface {
	WriteInternalSettlement(ctx context.Context, tx *gorm.DB, booking *models.Booking, settings pricing.PlatformSettings, funding Funding) (*Entries, error)
	WriteGatewaySettlement(ctx context.Context, tx *gorm.DB, booking *models.Booking, settings pricing.PlatformSettings, funding Funding) (*Entries, error)
}

type service struct {
	repo Repository
	logg *logger.Logger
}

// NewService wires a ledger service with the provided repository.
func NewService(repo Repository, logg *logger.Logger) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("ledger repository required")
	}
	if logg == nil {
		return nil, fmt.Errorf("logger required")
	}
	return &service{repo: repo, logg: logg}, nil
}

// WriteInternalSettlement records a booking settled by gift card and wallet
// alone. Finance rows are written only once the booking is fully paid.
func (s *service) WriteInternalSettlement(ctx context.Context, tx *gorm.DB, booking *models.Booking, settings pricing.PlatformSettings, funding Funding) (*Entries, error) {
	if funding.Gateway.IsPositive() {
		return nil, fmt.Errorf("internal settlement cannot include a gateway amount")
	}
	if !funding.Internal().IsPositive() {
		return nil, fmt.Errorf("internal settlement requires a gift card or wallet amount")
	}
	entries, err := s.write(ctx, tx, booking, settings, funding)
	if err != nil {
		return nil, err
	}
	s.logWrite(ctx, "ledger.internal_settlement_written", booking, funding, entries)
	return entries, nil
}

// WriteGatewaySettlement records a booking whose remainder a gateway
// collected. The gift card and wallet portion gets its own internal row.
func (s *service) WriteGatewaySettlement(ctx context.Context, tx *gorm.DB, booking *models.Booking, settings pricing.PlatformSettings, funding Funding) (*Entries, error) {
	if !funding.Gateway.IsPositive() {
		return nil, fmt.Errorf("gateway settlement requires a gateway amount")
	}
	if funding.GatewayReference == "" {
		return nil, fmt.Errorf("gateway reference is required")
	}
	if !funding.GatewayProvider.IsValid() || funding.GatewayProvider == enums.PaymentProviderInternal {
		return nil, fmt.Errorf("invalid gateway provider %q", funding.GatewayProvider)
	}
	entries, err := s.write(ctx, tx, booking, settings, funding)
	if err != nil {
		return nil, err
	}
	s.logWrite(ctx, "ledger.gateway_settlement_written", booking, funding, entries)
	return entries, nil
}

func (s *service) write(ctx context.Context, tx *gorm.DB, booking *models.Booking, settings pricing.PlatformSettings, funding Funding) (*Entries, error) {
	if tx == nil {
		return nil, fmt.Errorf("transaction required")
	}
	if booking == nil {
		return nil, fmt.Errorf("booking required")
	}
	repo := s.repo.WithTx(tx)
	entries := &Entries{}
	meta, err := paymentMetadata(booking, settings, funding)
	if err != nil {
		return nil, err
	}

	payments := make([]models.PaymentTransaction, 0, 2)
	if funding.Internal().IsPositive() {
		payments = append(payments, models.PaymentTransaction{
			BookingID:     booking.ID,
			CustomerID:    booking.CustomerID,
			Provider:      enums.PaymentProviderInternal,
			FundingSource: funding.InternalSource(),
			Reference:     InternalReference(booking),
			Amount:        funding.Internal(),
			Fees:          decimal.Zero,
			Net:           funding.Internal(),
			Currency:      booking.Currency,
			Status:        booking.PaymentStatus,
			Metadata:      meta,
		})
	}
	if funding.Gateway.IsPositive() {
		payments = append(payments, models.PaymentTransaction{
			BookingID:     booking.ID,
			CustomerID:    booking.CustomerID,
			Provider:      funding.GatewayProvider,
			FundingSource: enums.FundingSourceCard,
			Reference:     funding.GatewayReference,
			Amount:        funding.Gateway,
			Fees:          funding.GatewayFees,
			Net:           funding.Gateway.Sub(funding.GatewayFees),
			Currency:      booking.Currency,
			Status:        booking.PaymentStatus,
			Metadata:      meta,
		})
	}
	for i := range payments {
		exists, err := repo.PaymentExists(ctx, payments[i].Reference)
		if err != nil {
			return nil, err
		}
		if exists {
			continue
		}
		if err := repo.CreatePayment(ctx, &payments[i]); err != nil {
			return nil, fmt.Errorf("insert payment transaction: %w", err)
		}
		entries.Payments = append(entries.Payments, payments[i])
	}

	if booking.PaymentStatus == enums.PaymentStatusPaid {
		exists, err := repo.FinanceExists(ctx, booking.ID)
		if err != nil {
			return nil, err
		}
		if !exists {
			rows := BuildFinanceRows(booking, settings)
			if err := repo.CreateFinance(ctx, rows); err != nil {
				return nil, fmt.Errorf("insert finance transactions: %w", err)
			}
			entries.Finance = rows
		}
	}
	entries.Duplicate = len(entries.Payments) == 0 && len(entries.Finance) == 0
	return entries, nil
}

// InternalReference is the payment reference of a booking's internally funded part.
func InternalReference(booking *models.Booking) string {
	return booking.BookingNumber + "-INT"
}

// BuildFinanceRows splits a paid booking into typed finance entries.
// Commission applies to the commission base only; travel fee and tip pass
// through to the provider.
func BuildFinanceRows(booking *models.Booking, settings pricing.PlatformSettings) []models.FinanceTransaction {
	base := booking.CommissionBase
	commission := settings.Commission(base)
	row := func(kind enums.FinanceTransactionType, amount, commission, net decimal.Decimal, desc string) models.FinanceTransaction {
		return models.FinanceTransaction{
			BookingID:   booking.ID,
			ProviderID:  booking.ProviderID,
			Type:        kind,
			Amount:      amount,
			Commission:  commission,
			Net:         net,
			Currency:    booking.Currency,
			Description: fmt.Sprintf("%s for booking %s", desc, booking.BookingNumber),
		}
	}

	earnings := base.Sub(commission).Add(booking.TravelFee).Add(booking.TipAmount)
	rows := []models.FinanceTransaction{
		row(enums.FinanceTransactionTypePayment, base, commission, base.Sub(commission), "Service payment"),
		row(enums.FinanceTransactionTypeProviderEarnings, earnings, decimal.Zero, earnings, "Provider earnings"),
	}
	if booking.ServiceFeeAmount.IsPositive() {
		rows = append(rows, row(enums.FinanceTransactionTypeServiceFee, booking.ServiceFeeAmount, decimal.Zero, booking.ServiceFeeAmount, "Platform service fee"))
	}
	rows = append(rows,
		row(enums.FinanceTransactionTypeTip, booking.TipAmount, decimal.Zero, decimal.Zero, "Tip"),
		row(enums.FinanceTransactionTypeTax, booking.TaxAmount, decimal.Zero, decimal.Zero, "Tax"),
	)
	if booking.TravelFee.IsPositive() {
		rows = append(rows, row(enums.FinanceTransactionTypeTravelFee, booking.TravelFee, decimal.Zero, booking.TravelFee, "Travel fee"))
	}
	return rows
}

func paymentMetadata(booking *models.Booking, settings pricing.PlatformSettings, funding Funding) (json.RawMessage, error) {
	return json.Marshal(map[string]any{
		"booking_number":   booking.BookingNumber,
		"commission_base":  booking.CommissionBase.StringFixed(2),
		"commission":       settings.Commission(booking.CommissionBase).StringFixed(2),
		"commission_rate":  settings.CommissionRate.String(),
		"total_amount":     booking.TotalAmount.StringFixed(2),
		"gift_card_amount": funding.GiftCard.StringFixed(2),
		"wallet_amount":    funding.Wallet.StringFixed(2),
		"gateway_amount":   funding.Gateway.StringFixed(2),
	})
}

func (s *service) logWrite(ctx context.Context, msg string, booking *models.Booking, funding Funding, entries *Entries) {
	ctx = s.logg.WithFields(s.logg.WithBookingID(ctx, booking.ID.String()), map[string]any{
		"funding_source": string(funding.Source()),
		"payment_rows":   len(entries.Payments),
		"finance_rows":   len(entries.Finance),
		"duplicate":      entries.Duplicate,
	})
	if entries.Duplicate {
		s.logg.Warn(ctx, msg)
		return
	}
	s.logg.Info(ctx, msg)
}
