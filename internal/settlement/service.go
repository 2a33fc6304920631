// Package settlement collects the amount due on a freshly reserved booking.
// Funding is attempted in a fixed order: gift card, wallet, then a card
// gateway for whatever remains.
package settlement

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/glowbook/glowbook-backend/internal/giftcards"
	"github.com/glowbook/glowbook-backend/internal/ledger"
	"github.com/glowbook/glowbook-backend/internal/payments"
	"github.com/glowbook/glowbook-backend/internal/pricing"
	"github.com/glowbook/glowbook-backend/internal/validation"
	"github.com/glowbook/glowbook-backend/internal/wallets"
	"github.com/glowbook/glowbook-backend/pkg/db/models"
	"github.com/glowbook/glowbook-backend/pkg/enums"
	pkgerrors "github.com/glowbook/glowbook-backend/pkg/errors"
	"github.com/glowbook/glowbook-backend/pkg/logger"
	"github.com/glowbook/glowbook-backend/pkg/outbox"
	"github.com/glowbook/glowbook-backend/pkg/outbox/payloads"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type giftCardService interface {
	Reserve(ctx context.Context, req giftcards.ReserveRequest) (*models.GiftCardReservation, error)
	Capture(ctx context.Context, tx *gorm.DB, bookingID uuid.UUID) (decimal.Decimal, error)
	ReleaseForBooking(ctx context.Context, tx *gorm.DB, bookingID uuid.UUID, reason string) error
}

type walletService interface {
	Balance(ctx context.Context, userID uuid.UUID) (decimal.Decimal, error)
	DebitSelf(ctx context.Context, m wallets.Movement) (*models.WalletTransaction, error)
	CreditSelfTx(ctx context.Context, tx *gorm.DB, m wallets.Movement) (*models.WalletTransaction, error)
}

type gatewayRouter interface {
	Checkout() payments.Gateway
	ForMethod(method models.SavedPaymentMethod) (payments.Gateway, error)
}

type outboxPublisher interface {
	Emit(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error
	EmitIfNotExists(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error
}

type settingsSource interface {
	Snapshot(ctx context.Context) (pricing.PlatformSettings, error)
}

// Path names how a settlement finished.
type Path string

const (
	PathInternal    Path = "internal"
	PathCash        Path = "cash"
	PathCard        Path = "card"
	PathCardPending Path = "card_pending"
	PathRedirect    Path = "redirect"
)

// Input is a reserved booking plus the validated draft it came from.
type Input struct {
	Booking   *models.Booking
	Validated *validation.ValidatedBookingData
}

// Result is the booking after settlement. PaymentURL is set when the
// customer must finish paying on a hosted checkout.
type Result struct {
	Booking    *models.Booking
	PaymentURL *string
	Path       Path
	Funding    ledger.Funding
}

// ConfirmInput reports a gateway payment the provider says succeeded.
type ConfirmInput struct {
	BookingID uuid.UUID
	Provider  enums.PaymentProvider
	Reference string
	Amount    decimal.Decimal
	Fees      decimal.Decimal
}

// FailInput reports a gateway payment that was declined or abandoned.
type FailInput struct {
	BookingID uuid.UUID
	Provider  enums.PaymentProvider
	Reference string
	Reason    string
}

// ServiceParams wires the settlement service.
type ServiceParams struct {
	TX        txRunner
	Repo      *Repository
	GiftCards giftCardService
	Wallets   walletService
	Gateways  gatewayRouter
	Ledger    ledger.Service
	Outbox    outboxPublisher
	Settings  settingsSource
	Logger    *logger.Logger
}

type Service struct {
	tx        txRunner
	repo      *Repository
	giftCards giftCardService
	wallets   walletService
	gateways  gatewayRouter
	ledger    ledger.Service
	outbox    outboxPublisher
	settings  settingsSource
	logg      *logger.Logger
	now       func() time.Time
}

func NewService(params ServiceParams) (*Service, error) {
	switch {
	case params.TX == nil:
		return nil, fmt.Errorf("tx runner required")
	case params.Repo == nil:
		return nil, fmt.Errorf("settlement repository required")
	case params.GiftCards == nil:
		return nil, fmt.Errorf("gift card service required")
	case params.Wallets == nil:
		return nil, fmt.Errorf("wallet service required")
	case params.Gateways == nil:
		return nil, fmt.Errorf("gateway router required")
	case params.Ledger == nil:
		return nil, fmt.Errorf("ledger service required")
	case params.Outbox == nil:
		return nil, fmt.Errorf("outbox publisher required")
	case params.Settings == nil:
		return nil, fmt.Errorf("settings source required")
	case params.Logger == nil:
		return nil, fmt.Errorf("logger required")
	}
	return &Service{
		tx:        params.TX,
		repo:      params.Repo,
		giftCards: params.GiftCards,
		wallets:   params.Wallets,
		gateways:  params.Gateways,
		ledger:    params.Ledger,
		outbox:    params.Outbox,
		settings:  params.Settings,
		logg:      params.Logger,
		now:       func() time.Time { return time.Now().UTC() },
	}, nil
}

// Settle collects the booking's amount to collect. Money taken from a gift
// card or wallet is given back when a later step fails.
func (s *Service) Settle(ctx context.Context, in Input) (*Result, error) {
	if in.Booking == nil || in.Validated == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "booking and validated data are required")
	}
	booking := *in.Booking
	v := in.Validated
	booking.PaymentMethod = v.PaymentMethod
	ctx = s.logg.WithBookingID(ctx, booking.ID.String())
	st := newState(booking.AmountToCollect)

	if code := giftCardCode(v); code != "" && st.due.IsPositive() {
		reservation, err := s.giftCards.Reserve(ctx, giftcards.ReserveRequest{
			Code:      code,
			Amount:    st.due,
			BookingID: booking.ID,
			Currency:  booking.Currency,
		})
		if err != nil {
			return nil, withCode(err, pkgerrors.CodeGiftCardInvalid, "reserve gift card")
		}
		st = st.withGiftCard(reservation.Amount, reservation.ID)
	}

	if (v.UseWallet || v.PaymentMethod == enums.PaymentMethodWallet) && st.due.IsPositive() {
		next, err := s.debitWallet(ctx, &booking, st)
		if err != nil {
			s.compensate(ctx, &booking, st, "wallet_failed")
			return nil, err
		}
		st = next
	}

	if st.covered() {
		return s.finishInternal(ctx, &booking, v, st)
	}

	switch v.PaymentMethod {
	case enums.PaymentMethodCash:
		return s.finishCash(ctx, &booking, v, st)
	case enums.PaymentMethodCard:
		return s.collectCard(ctx, &booking, v, st)
	case enums.PaymentMethodWallet:
		s.compensate(ctx, &booking, st, "insufficient_wallet")
		return nil, pkgerrors.New(pkgerrors.CodeWalletError, "wallet balance does not cover the amount due")
	default:
		s.compensate(ctx, &booking, st, "insufficient_gift_card")
		return nil, pkgerrors.New(pkgerrors.CodeGiftCardInvalid, "gift card balance does not cover the amount due")
	}
}

func (s *Service) debitWallet(ctx context.Context, booking *models.Booking, st state) (state, error) {
	balance, err := s.wallets.Balance(ctx, booking.CustomerID)
	if err != nil {
		return st, withCode(err, pkgerrors.CodeWalletError, "read wallet balance")
	}
	amount := decimal.Min(balance, st.due)
	if !amount.IsPositive() {
		return st, pkgerrors.New(pkgerrors.CodeWalletError, "wallet balance is empty")
	}
	bookingID := booking.ID
	if _, err := s.wallets.DebitSelf(ctx, wallets.Movement{
		UserID:        booking.CustomerID,
		Amount:        amount,
		Description:   "Booking " + booking.BookingNumber,
		ReferenceID:   &bookingID,
		ReferenceType: "booking",
	}); err != nil {
		return st, withCode(err, pkgerrors.CodeWalletError, "debit wallet")
	}
	return st.withWallet(amount), nil
}

func (s *Service) finishInternal(ctx context.Context, booking *models.Booking, v *validation.ValidatedBookingData, st state) (*Result, error) {
	funding := st.funding()
	paid := *booking
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		return s.markPaid(ctx, tx, &paid, v.AppointmentStatus, v.Settings, funding, st.reservationID != nil)
	})
	if err != nil {
		s.compensate(ctx, booking, st, "settlement_failed")
		return nil, withCode(err, pkgerrors.CodeInternal, "record internal settlement")
	}
	s.logSettled(ctx, PathInternal, &paid, funding)
	return &Result{Booking: &paid, Path: PathInternal, Funding: funding}, nil
}

// finishCash keeps the remainder due at the appointment. Any gift card or
// wallet part is captured now.
func (s *Service) finishCash(ctx context.Context, booking *models.Booking, v *validation.ValidatedBookingData, st state) (*Result, error) {
	funding := st.funding()
	out := *booking
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		out.Status = v.AppointmentStatus
		out.GiftCardAmount = st.giftCard
		out.WalletAmount = st.wallet
		out.AmountPaid = st.internal()
		if st.internal().IsPositive() {
			provider := enums.PaymentProviderInternal
			reference := ledger.InternalReference(&out)
			now := s.now()
			out.PaymentProvider = &provider
			out.PaymentReference = &reference
			out.PaymentDate = &now
		}
		if err := s.repo.WithTx(tx).SavePayment(ctx, &out); err != nil {
			return err
		}
		if st.reservationID != nil {
			if _, err := s.giftCards.Capture(ctx, tx, out.ID); err != nil {
				return err
			}
		}
		if st.internal().IsPositive() {
			if _, err := s.ledger.WriteInternalSettlement(ctx, tx, &out, v.Settings, funding); err != nil {
				return err
			}
		}
		return s.notifyBooked(ctx, tx, &out, v.Provider.OwnerUserID)
	})
	if err != nil {
		s.compensate(ctx, booking, st, "settlement_failed")
		return nil, withCode(err, pkgerrors.CodeInternal, "record cash settlement")
	}
	s.logSettled(ctx, PathCash, &out, funding)
	return &Result{Booking: &out, Path: PathCash, Funding: funding}, nil
}

func (s *Service) collectCard(ctx context.Context, booking *models.Booking, v *validation.ValidatedBookingData, st state) (*Result, error) {
	remaining := st.due
	reference := booking.BookingNumber + "-" + uuid.NewString()[:8]
	metadata := gatewayMetadata(booking, st)
	description := fmt.Sprintf("Booking %s with %s", booking.BookingNumber, v.Provider.Name)
	staged := *booking
	staged.GiftCardAmount = st.giftCard
	staged.WalletAmount = st.wallet
	staged.AmountPaid = decimal.Zero

	if v.SavedPaymentMethod != nil {
		gateway, err := s.gateways.ForMethod(*v.SavedPaymentMethod)
		if err != nil {
			s.compensate(ctx, booking, st, "gateway_unavailable")
			return nil, withCode(err, pkgerrors.CodePaymentFailed, "resolve payment gateway")
		}
		if err := s.stage(ctx, &staged, gateway.Provider(), reference); err != nil {
			s.compensate(ctx, booking, st, "settlement_failed")
			return nil, withCode(err, pkgerrors.CodeInternal, "stage card payment")
		}
		charge, err := gateway.ChargeAuthorization(ctx, payments.ChargeRequest{
			BookingID:   booking.ID,
			Reference:   reference,
			Amount:      remaining,
			Currency:    booking.Currency,
			Description: description,
			Method:      *v.SavedPaymentMethod,
			Metadata:    metadata,
		})
		if err != nil {
			s.failSync(ctx, &staged, gateway.Provider(), reference, err.Error())
			return nil, pkgerrors.Wrap(pkgerrors.CodePaymentFailed, err, "charge saved payment method")
		}
		switch charge.Status {
		case payments.ChargeSucceeded:
			funding := st.funding()
			funding.Gateway = remaining
			funding.GatewayProvider = charge.Provider
			funding.GatewayReference = charge.Reference
			funding.GatewayFees = decimal.Zero
			err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
				return s.markPaid(ctx, tx, &staged, v.AppointmentStatus, v.Settings, funding, st.reservationID != nil)
			})
			if err != nil {
				// The card was charged. The staged columns let the webhook
				// confirmation settle the booking.
				s.logg.Error(ctx, "settlement.record_card_payment_failed", err)
				return nil, withCode(err, pkgerrors.CodeInternal, "record card settlement")
			}
			s.logSettled(ctx, PathCard, &staged, funding)
			return &Result{Booking: &staged, Path: PathCard, Funding: funding}, nil
		case payments.ChargePending:
			if err := s.markPending(ctx, &staged, charge.Provider, charge.Reference, remaining, nil); err != nil {
				return nil, withCode(err, pkgerrors.CodeInternal, "record pending card payment")
			}
			return &Result{Booking: &staged, Path: PathCardPending, Funding: st.funding()}, nil
		default:
			reason := charge.FailureReason
			if reason == "" {
				reason = "card was declined"
			}
			s.failSync(ctx, &staged, charge.Provider, reference, reason)
			return nil, pkgerrors.New(pkgerrors.CodePaymentFailed, reason)
		}
	}

	gateway := s.gateways.Checkout()
	if err := s.stage(ctx, &staged, gateway.Provider(), reference); err != nil {
		s.compensate(ctx, booking, st, "settlement_failed")
		return nil, withCode(err, pkgerrors.CodeInternal, "stage checkout payment")
	}
	checkout, err := gateway.InitializeTransaction(ctx, payments.InitializeRequest{
		BookingID:     booking.ID,
		Reference:     reference,
		Amount:        remaining,
		Currency:      booking.Currency,
		CustomerEmail: v.CustomerEmail,
		Description:   description,
		Metadata:      metadata,
	})
	if err != nil {
		s.failSync(ctx, &staged, gateway.Provider(), reference, err.Error())
		return nil, pkgerrors.Wrap(pkgerrors.CodePaymentFailed, err, "initialize payment")
	}
	url := checkout.AuthorizationURL
	if err := s.markPending(ctx, &staged, checkout.Provider, checkout.Reference, remaining, &url); err != nil {
		return nil, withCode(err, pkgerrors.CodeInternal, "record pending checkout")
	}
	return &Result{Booking: &staged, PaymentURL: &url, Path: PathRedirect, Funding: st.funding()}, nil
}

// stage persists the gift card and wallet parts together with the gateway
// reference before the gateway is called. A confirmation arriving after a
// crash settles the booking from these columns.
func (s *Service) stage(ctx context.Context, booking *models.Booking, provider enums.PaymentProvider, reference string) error {
	booking.PaymentProvider = &provider
	booking.PaymentReference = &reference
	return s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		return s.repo.WithTx(tx).SavePayment(ctx, booking)
	})
}

// markPaid settles booking inside tx: columns, gift card capture, ledger rows
// and the paid events.
func (s *Service) markPaid(ctx context.Context, tx *gorm.DB, booking *models.Booking, status enums.BookingStatus, settings pricing.PlatformSettings, funding ledger.Funding, capture bool) error {
	now := s.now()
	provider := enums.PaymentProviderInternal
	reference := ledger.InternalReference(booking)
	if funding.Gateway.IsPositive() {
		provider = funding.GatewayProvider
		reference = funding.GatewayReference
	}
	booking.Status = status
	booking.PaymentStatus = settledStatus(booking)
	booking.GiftCardAmount = funding.GiftCard
	booking.WalletAmount = funding.Wallet
	booking.AmountPaid = funding.Total()
	booking.PaymentProvider = &provider
	booking.PaymentReference = &reference
	booking.PaymentDate = &now
	if err := s.repo.WithTx(tx).SavePayment(ctx, booking); err != nil {
		return err
	}
	if capture {
		if _, err := s.giftCards.Capture(ctx, tx, booking.ID); err != nil {
			return err
		}
	}
	var err error
	switch {
	case funding.Gateway.IsPositive():
		_, err = s.ledger.WriteGatewaySettlement(ctx, tx, booking, settings, funding)
	case funding.Internal().IsPositive():
		_, err = s.ledger.WriteInternalSettlement(ctx, tx, booking, settings, funding)
	default:
		// Nothing was collected, so there is nothing to ledger.
		s.logg.Warn(ctx, "settlement.zero_amount_booking")
	}
	if err != nil {
		return err
	}
	if err := s.outbox.EmitIfNotExists(ctx, tx, outbox.DomainEvent{
		EventType:     enums.EventBookingPaid,
		AggregateType: enums.AggregateBooking,
		AggregateID:   booking.ID,
		Data: payloads.BookingPaidEvent{
			BookingID:     booking.ID,
			BookingNumber: booking.BookingNumber,
			Status:        booking.Status,
			PaymentStatus: booking.PaymentStatus,
			Provider:      provider,
			FundingSource: funding.Source(),
			Reference:     reference,
			AmountPaid:    booking.AmountPaid,
			Currency:      booking.Currency,
			PaidAt:        now,
		},
	}); err != nil {
		return err
	}
	providerOwner, err := s.providerOwner(ctx, tx, booking)
	if err != nil {
		return err
	}
	return s.notifyBooked(ctx, tx, booking, providerOwner)
}

func (s *Service) markPending(ctx context.Context, booking *models.Booking, provider enums.PaymentProvider, reference string, due decimal.Decimal, url *string) error {
	booking.PaymentProvider = &provider
	booking.PaymentReference = &reference
	booking.AmountPaid = decimal.Zero
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		if err := s.repo.WithTx(tx).SavePayment(ctx, booking); err != nil {
			return err
		}
		if err := s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventBookingPaymentPending,
			AggregateType: enums.AggregateBooking,
			AggregateID:   booking.ID,
			Data: payloads.BookingPaymentPendingEvent{
				BookingID:        booking.ID,
				Provider:         provider,
				Reference:        reference,
				AuthorizationURL: url,
				AmountDue:        due,
				Currency:         booking.Currency,
			},
		}); err != nil {
			return err
		}
		return s.notify(ctx, tx, booking.ID, booking.CustomerID, enums.NotificationTypePaymentPending, "Complete your payment to secure booking "+booking.BookingNumber)
	})
	if err != nil {
		return err
	}
	s.logg.Info(s.logg.WithFields(ctx, map[string]any{
		"provider":   string(provider),
		"reference":  reference,
		"amount_due": due.StringFixed(2),
	}), "settlement.payment_pending")
	return nil
}

// ConfirmGatewayPayment settles a booking whose gateway payment completed
// after the request returned. Repeated confirmations are no-ops.
func (s *Service) ConfirmGatewayPayment(ctx context.Context, in ConfirmInput) (*models.Booking, error) {
	ctx = s.logg.WithBookingID(ctx, in.BookingID.String())
	settings, err := s.settings.Snapshot(ctx)
	if err != nil {
		return nil, withCode(err, pkgerrors.CodeFetchError, "load platform settings")
	}
	var out *models.Booking
	duplicate := false
	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		booking, err := repo.LockBooking(ctx, in.BookingID)
		if err != nil {
			return err
		}
		if booking == nil {
			return pkgerrors.New(pkgerrors.CodeNotFound, "booking not found")
		}
		out = booking
		if settledStatus(booking) == booking.PaymentStatus {
			duplicate = true
			return nil
		}
		provider, err := repo.FindProvider(ctx, booking.ProviderID)
		if err != nil {
			return err
		}
		amount := in.Amount
		if !amount.IsPositive() {
			amount = booking.AmountToCollect.Sub(booking.GiftCardAmount).Sub(booking.WalletAmount)
		}
		reference := in.Reference
		if reference == "" && booking.PaymentReference != nil {
			reference = *booking.PaymentReference
		}
		funding := ledger.Funding{
			GiftCard:         booking.GiftCardAmount,
			Wallet:           booking.WalletAmount,
			Gateway:          amount,
			GatewayProvider:  in.Provider,
			GatewayReference: reference,
			GatewayFees:      in.Fees,
		}
		return s.markPaid(ctx, tx, booking, appointmentStatus(provider), settings, funding, booking.GiftCardAmount.IsPositive())
	})
	if err != nil {
		return nil, withCode(err, pkgerrors.CodeInternal, "confirm gateway payment")
	}
	if duplicate {
		s.logg.Warn(ctx, "settlement.confirmation_duplicate")
		return out, nil
	}
	s.logSettled(ctx, PathCard, out, ledger.Funding{
		GiftCard: out.GiftCardAmount,
		Wallet:   out.WalletAmount,
		Gateway:  out.AmountPaid.Sub(out.GiftCardAmount).Sub(out.WalletAmount),
	})
	return out, nil
}

// BookingIDByReference resolves the booking a gateway reference was issued for.
func (s *Service) BookingIDByReference(ctx context.Context, reference string) (uuid.UUID, error) {
	if strings.TrimSpace(reference) == "" {
		return uuid.Nil, pkgerrors.New(pkgerrors.CodeValidation, "payment reference required")
	}
	booking, err := s.repo.FindByPaymentReference(ctx, reference)
	if err != nil {
		return uuid.Nil, pkgerrors.Wrap(pkgerrors.CodeFetchError, err, "find booking by reference")
	}
	if booking == nil {
		return uuid.Nil, pkgerrors.New(pkgerrors.CodeNotFound, "booking not found for reference")
	}
	return booking.ID, nil
}

// FailGatewayPayment marks a pending gateway payment failed and returns the
// gift card and wallet funds it had taken.
func (s *Service) FailGatewayPayment(ctx context.Context, in FailInput) error {
	ctx = s.logg.WithBookingID(ctx, in.BookingID.String())
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		booking, err := s.repo.WithTx(tx).LockBooking(ctx, in.BookingID)
		if err != nil {
			return err
		}
		if booking == nil {
			return pkgerrors.New(pkgerrors.CodeNotFound, "booking not found")
		}
		if booking.PaymentStatus != enums.PaymentStatusPending {
			return nil
		}
		if in.Reference != "" && (booking.PaymentReference == nil || *booking.PaymentReference != in.Reference) {
			// A failure for an attempt the booking has since moved past.
			s.logg.Warn(s.logg.WithField(ctx, "reference", in.Reference), "settlement.stale_failure_ignored")
			return nil
		}
		return s.failInTx(ctx, tx, booking, in.Provider, in.Reference, in.Reason, true)
	})
	if err != nil {
		return withCode(err, pkgerrors.CodeInternal, "fail gateway payment")
	}
	return nil
}

// failSync records a gateway failure seen during Settle itself. The booking
// stays pending with no reference so checkout can retry it.
func (s *Service) failSync(ctx context.Context, booking *models.Booking, provider enums.PaymentProvider, reference, reason string) {
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		return s.failInTx(ctx, tx, booking, provider, reference, reason, false)
	})
	if err != nil {
		s.logg.Error(ctx, "settlement.record_failure_failed", err)
	}
}

// failInTx returns the internal funds a gateway attempt had taken. A final
// failure marks the payment failed; otherwise the attempt is cleared.
func (s *Service) failInTx(ctx context.Context, tx *gorm.DB, booking *models.Booking, provider enums.PaymentProvider, reference, reason string, final bool) error {
	if err := s.giftCards.ReleaseForBooking(ctx, tx, booking.ID, "payment_failed"); err != nil {
		return err
	}
	if booking.WalletAmount.IsPositive() {
		bookingID := booking.ID
		if _, err := s.wallets.CreditSelfTx(ctx, tx, wallets.Movement{
			UserID:        booking.CustomerID,
			Amount:        booking.WalletAmount,
			Description:   "Refund for booking " + booking.BookingNumber,
			ReferenceID:   &bookingID,
			ReferenceType: "booking",
		}); err != nil {
			return err
		}
	}
	booking.GiftCardAmount = decimal.Zero
	booking.WalletAmount = decimal.Zero
	booking.AmountPaid = decimal.Zero
	if final {
		booking.PaymentStatus = enums.PaymentStatusFailed
	} else {
		booking.PaymentStatus = enums.PaymentStatusPending
		booking.PaymentProvider = nil
		booking.PaymentReference = nil
		booking.PaymentDate = nil
	}
	if err := s.repo.WithTx(tx).SavePayment(ctx, booking); err != nil {
		return err
	}
	if err := s.outbox.Emit(ctx, tx, outbox.DomainEvent{
		EventType:     enums.EventBookingPaymentFailed,
		AggregateType: enums.AggregateBooking,
		AggregateID:   booking.ID,
		Data: payloads.BookingPaymentFailedEvent{
			BookingID: booking.ID,
			Provider:  provider,
			Reference: reference,
			Reason:    reason,
			FailedAt:  s.now(),
		},
	}); err != nil {
		return err
	}
	if err := s.notify(ctx, tx, booking.ID, booking.CustomerID, enums.NotificationTypePaymentFailed, "Payment for booking "+booking.BookingNumber+" failed"); err != nil {
		return err
	}
	s.logg.Warn(s.logg.WithFields(ctx, map[string]any{
		"provider":       string(provider),
		"reference":      reference,
		"reason":         reason,
		"payment_status": booking.PaymentStatus.String(),
	}), "settlement.payment_failed")
	return nil
}

// compensate gives back gift card and wallet funds taken before a failure.
// Errors are logged; the stale gift card job is the backstop.
func (s *Service) compensate(ctx context.Context, booking *models.Booking, st state, reason string) {
	if st.reservationID == nil && !st.wallet.IsPositive() {
		return
	}
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		if st.reservationID != nil {
			if err := s.giftCards.ReleaseForBooking(ctx, tx, booking.ID, reason); err != nil {
				return err
			}
		}
		if st.wallet.IsPositive() {
			bookingID := booking.ID
			if _, err := s.wallets.CreditSelfTx(ctx, tx, wallets.Movement{
				UserID:        booking.CustomerID,
				Amount:        st.wallet,
				Description:   "Refund for booking " + booking.BookingNumber,
				ReferenceID:   &bookingID,
				ReferenceType: "booking",
			}); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		s.logg.Error(s.logg.WithField(ctx, "reason", reason), "settlement.compensation_failed", err)
		return
	}
	s.logg.Info(s.logg.WithFields(ctx, map[string]any{
		"reason":           reason,
		"gift_card_amount": st.giftCard.StringFixed(2),
		"wallet_amount":    st.wallet.StringFixed(2),
	}), "settlement.compensated")
}

func (s *Service) notifyBooked(ctx context.Context, tx *gorm.DB, booking *models.Booking, providerOwner uuid.UUID) error {
	customerType := enums.NotificationTypeBookingConfirmed
	if booking.Status == enums.BookingStatusPending {
		customerType = enums.NotificationTypeBookingRequested
	}
	if err := s.notify(ctx, tx, booking.ID, booking.CustomerID, customerType, "Booking "+booking.BookingNumber+" is "+booking.Status.String()); err != nil {
		return err
	}
	if providerOwner == uuid.Nil {
		return nil
	}
	return s.notify(ctx, tx, booking.ID, providerOwner, enums.NotificationTypeNewBooking, "New booking "+booking.BookingNumber)
}

func (s *Service) notify(ctx context.Context, tx *gorm.DB, bookingID, recipient uuid.UUID, kind enums.NotificationType, message string) error {
	return s.outbox.Emit(ctx, tx, outbox.DomainEvent{
		EventType:     enums.EventNotificationRequested,
		AggregateType: enums.AggregateNotification,
		AggregateID:   bookingID,
		Data: payloads.NotificationRequestedEvent{
			BookingID:   bookingID,
			RecipientID: recipient,
			Type:        string(kind),
			Message:     message,
		},
	})
}

func (s *Service) providerOwner(ctx context.Context, tx *gorm.DB, booking *models.Booking) (uuid.UUID, error) {
	provider, err := s.repo.WithTx(tx).FindProvider(ctx, booking.ProviderID)
	if err != nil {
		return uuid.Nil, err
	}
	return provider.OwnerUserID, nil
}

func (s *Service) logSettled(ctx context.Context, path Path, booking *models.Booking, funding ledger.Funding) {
	s.logg.Info(s.logg.WithFields(ctx, map[string]any{
		"path":             string(path),
		"payment_status":   booking.PaymentStatus.String(),
		"gift_card_amount": funding.GiftCard.StringFixed(2),
		"wallet_amount":    funding.Wallet.StringFixed(2),
		"gateway_amount":   funding.Gateway.StringFixed(2),
	}), "settlement.completed")
}

// settledStatus is the payment status a booking reaches once its amount to
// collect is in: a deposit leaves the rest for later.
func settledStatus(booking *models.Booking) enums.PaymentStatus {
	if booking.AmountToCollect.LessThan(booking.TotalAmount) {
		return enums.PaymentStatusDepositPaid
	}
	return enums.PaymentStatusPaid
}

func appointmentStatus(provider *models.Provider) enums.BookingStatus {
	if provider.RequiresManualConfirmation {
		return enums.BookingStatusPending
	}
	return enums.BookingStatusConfirmed
}

func giftCardCode(v *validation.ValidatedBookingData) string {
	if v.GiftCardCode == nil {
		return ""
	}
	return strings.TrimSpace(*v.GiftCardCode)
}

// gatewayMetadata is the breakdown sent with every gateway request.
func gatewayMetadata(booking *models.Booking, st state) map[string]string {
	return map[string]string{
		"booking_id":        booking.ID.String(),
		"booking_number":    booking.BookingNumber,
		"subtotal":          booking.Subtotal.StringFixed(2),
		"discount_total":    booking.DiscountTotal.StringFixed(2),
		"commission_base":   booking.CommissionBase.StringFixed(2),
		"travel_fee":        booking.TravelFee.StringFixed(2),
		"service_fee":       booking.ServiceFeeAmount.StringFixed(2),
		"tax_amount":        booking.TaxAmount.StringFixed(2),
		"tip_amount":        booking.TipAmount.StringFixed(2),
		"total_amount":      booking.TotalAmount.StringFixed(2),
		"amount_to_collect": booking.AmountToCollect.StringFixed(2),
		"gift_card_amount":  st.giftCard.StringFixed(2),
		"wallet_amount":     st.wallet.StringFixed(2),
		"amount_due":        st.due.StringFixed(2),
		"payment_option":    string(booking.PaymentOption),
	}
}

func withCode(err error, code pkgerrors.Code, msg string) error {
	if pkgerrors.As(err) != nil {
		return err
	}
	return pkgerrors.Wrap(code, err, msg)
}
