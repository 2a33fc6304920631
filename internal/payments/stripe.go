package payments

import (
	"context"
	"fmt"

	"github.com/stripe/stripe-go/v76"

	"github.com/glowbook/glowbook-backend/pkg/enums"
	pkgerrors "github.com/glowbook/glowbook-backend/pkg/errors"
	stripeclient "github.com/glowbook/glowbook-backend/pkg/stripe"
)

type stripeAPI interface {
	CreateCheckoutSession(ctx context.Context, p stripeclient.CheckoutParams) (*stripe.CheckoutSession, error)
	ChargeSavedMethod(ctx context.Context, p stripeclient.ChargeParams) (*stripe.PaymentIntent, error)
}

// StripeGateway settles through Stripe Checkout and off-session intents.
type StripeGateway struct {
	api stripeAPI
}

func NewStripeGateway(api stripeAPI) (*StripeGateway, error) {
	if api == nil {
		return nil, fmt.Errorf("stripe client required")
	}
	return &StripeGateway{api: api}, nil
}

func (g *StripeGateway) Provider() enums.PaymentProvider {
	return enums.PaymentProviderStripe
}

func (g *StripeGateway) InitializeTransaction(ctx context.Context, req InitializeRequest) (*InitializeResult, error) {
	session, err := g.api.CreateCheckoutSession(ctx, stripeclient.CheckoutParams{
		Reference:      req.Reference,
		Amount:         req.Amount,
		Currency:       req.Currency,
		Description:    req.Description,
		CustomerEmail:  req.CustomerEmail,
		Metadata:       req.Metadata,
		IdempotencyKey: "checkout-" + req.Reference,
	})
	if err != nil {
		return nil, err
	}
	if session.URL == "" {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "stripe returned no checkout url")
	}
	return &InitializeResult{
		Provider:         enums.PaymentProviderStripe,
		Reference:        req.Reference,
		SessionID:        session.ID,
		AuthorizationURL: session.URL,
	}, nil
}

func (g *StripeGateway) ChargeAuthorization(ctx context.Context, req ChargeRequest) (*ChargeResult, error) {
	intent, err := g.api.ChargeSavedMethod(ctx, stripeclient.ChargeParams{
		Reference:       req.Reference,
		CustomerID:      req.Method.ProviderCustomerID,
		PaymentMethodID: req.Method.ProviderPaymentMethodID,
		Amount:          req.Amount,
		Currency:        req.Currency,
		Description:     req.Description,
		Metadata:        req.Metadata,
		IdempotencyKey:  "charge-" + req.Reference,
	})
	if err != nil {
		if pkgerrors.IsCode(err, pkgerrors.CodePaymentFailed) {
			return &ChargeResult{
				Provider:      enums.PaymentProviderStripe,
				Reference:     req.Reference,
				Status:        ChargeFailed,
				FailureReason: pkgerrors.As(err).Message(),
			}, nil
		}
		return nil, err
	}
	result := &ChargeResult{
		Provider:          enums.PaymentProviderStripe,
		Reference:         req.Reference,
		ProviderPaymentID: intent.ID,
	}
	switch intent.Status {
	case stripe.PaymentIntentStatusSucceeded:
		result.Status = ChargeSucceeded
	case stripe.PaymentIntentStatusProcessing:
		result.Status = ChargePending
	default:
		result.Status = ChargeFailed
		result.FailureReason = fmt.Sprintf("payment intent %s", intent.Status)
		if intent.LastPaymentError != nil && intent.LastPaymentError.Msg != "" {
			result.FailureReason = intent.LastPaymentError.Msg
		}
	}
	return result, nil
}
