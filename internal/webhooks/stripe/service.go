package stripewebhook

import (
	"context"
	"encoding/json"

	"github.com/google/uuid"
	"github.com/stripe/stripe-go/v76"

	"github.com/glowbook/glowbook-backend/internal/settlement"
	"github.com/glowbook/glowbook-backend/pkg/db/models"
	"github.com/glowbook/glowbook-backend/pkg/enums"
	pkgerrors "github.com/glowbook/glowbook-backend/pkg/errors"
	"github.com/glowbook/glowbook-backend/pkg/logger"
	stripeclient "github.com/glowbook/glowbook-backend/pkg/stripe"
	"github.com/glowbook/glowbook-backend/pkg/types"
)

// Events this handler acts on; everything else is acknowledged and ignored.
const (
	eventCheckoutCompleted      stripe.EventType = "checkout.session.completed"
	eventCheckoutAsyncSucceeded stripe.EventType = "checkout.session.async_payment_succeeded"
	eventCheckoutAsyncFailed    stripe.EventType = "checkout.session.async_payment_failed"
	eventCheckoutExpired        stripe.EventType = "checkout.session.expired"
	eventIntentSucceeded        stripe.EventType = "payment_intent.succeeded"
	eventIntentFailed           stripe.EventType = "payment_intent.payment_failed"
)

type settlementService interface {
	ConfirmGatewayPayment(ctx context.Context, in settlement.ConfirmInput) (*models.Booking, error)
	FailGatewayPayment(ctx context.Context, in settlement.FailInput) error
}

type ServiceParams struct {
	Settlement settlementService
	Logger     *logger.Logger
}

// Service applies Stripe payment events to bookings.
type Service struct {
	settlement settlementService
	logg       *logger.Logger
}

func NewService(params ServiceParams) (*Service, error) {
	if params.Settlement == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "settlement service required")
	}
	if params.Logger == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "logger required")
	}
	return &Service{settlement: params.Settlement, logg: params.Logger}, nil
}

func (s *Service) HandleEvent(ctx context.Context, event *stripe.Event) error {
	if event == nil || event.Data == nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "stripe event data required")
	}
	ctx = s.logg.WithFields(ctx, map[string]any{"stripe_event_id": event.ID, "stripe_event_type": string(event.Type)})

	switch event.Type {
	case eventCheckoutCompleted, eventCheckoutAsyncSucceeded:
		var session stripe.CheckoutSession
		if err := json.Unmarshal(event.Data.Raw, &session); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeValidation, err, "decode checkout session")
		}
		if session.PaymentStatus != stripe.CheckoutSessionPaymentStatusPaid {
			s.logg.Info(ctx, "stripe.checkout_awaiting_payment")
			return nil
		}
		bookingID, err := bookingIDFrom(session.Metadata)
		if err != nil {
			return err
		}
		_, err = s.settlement.ConfirmGatewayPayment(ctx, settlement.ConfirmInput{
			BookingID: bookingID,
			Provider:  enums.PaymentProviderStripe,
			Reference: session.ClientReferenceID,
			Amount:    types.FromMinorUnits(session.AmountTotal, string(session.Currency)),
		})
		return err
	case eventIntentSucceeded:
		var intent stripe.PaymentIntent
		if err := json.Unmarshal(event.Data.Raw, &intent); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeValidation, err, "decode payment intent")
		}
		bookingID, err := bookingIDFrom(intent.Metadata)
		if err != nil {
			return err
		}
		_, err = s.settlement.ConfirmGatewayPayment(ctx, settlement.ConfirmInput{
			BookingID: bookingID,
			Provider:  enums.PaymentProviderStripe,
			Reference: intent.Metadata["reference"],
			Amount:    types.FromMinorUnits(intent.AmountReceived, string(intent.Currency)),
		})
		return err
	case eventIntentFailed:
		var intent stripe.PaymentIntent
		if err := json.Unmarshal(event.Data.Raw, &intent); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeValidation, err, "decode payment intent")
		}
		// A hosted checkout lets the customer retry; its expiry is the failure.
		if intent.Metadata["flow"] == stripeclient.FlowCheckout {
			return nil
		}
		bookingID, err := bookingIDFrom(intent.Metadata)
		if err != nil {
			return err
		}
		reason := "payment failed"
		if intent.LastPaymentError != nil && intent.LastPaymentError.Msg != "" {
			reason = intent.LastPaymentError.Msg
		}
		return s.settlement.FailGatewayPayment(ctx, settlement.FailInput{
			BookingID: bookingID,
			Provider:  enums.PaymentProviderStripe,
			Reference: intent.Metadata["reference"],
			Reason:    reason,
		})
	case eventCheckoutExpired, eventCheckoutAsyncFailed:
		var session stripe.CheckoutSession
		if err := json.Unmarshal(event.Data.Raw, &session); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeValidation, err, "decode checkout session")
		}
		bookingID, err := bookingIDFrom(session.Metadata)
		if err != nil {
			return err
		}
		reason := "checkout session expired"
		if event.Type == eventCheckoutAsyncFailed {
			reason = "asynchronous payment failed"
		}
		return s.settlement.FailGatewayPayment(ctx, settlement.FailInput{
			BookingID: bookingID,
			Provider:  enums.PaymentProviderStripe,
			Reference: session.ClientReferenceID,
			Reason:    reason,
		})
	default:
		return nil
	}
}

func bookingIDFrom(metadata map[string]string) (uuid.UUID, error) {
	raw, ok := metadata["booking_id"]
	if !ok || raw == "" {
		return uuid.Nil, pkgerrors.New(pkgerrors.CodeValidation, "booking id missing from metadata")
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid booking id in metadata")
	}
	return id, nil
}
