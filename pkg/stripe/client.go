package stripe

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stripe/stripe-go/v76"
	"github.com/stripe/stripe-go/v76/client"
	"github.com/stripe/stripe-go/v76/webhook"

	"github.com/glowbook/glowbook-backend/pkg/config"
	pkgerrors "github.com/glowbook/glowbook-backend/pkg/errors"
	"github.com/glowbook/glowbook-backend/pkg/logger"
	"github.com/glowbook/glowbook-backend/pkg/types"
)

const (
	testEnv = "test"
	liveEnv = "live"

	referencePlaceholder = "{reference}"

	// Sessions close before the gift card hold TTL so an abandoned checkout
	// fails the booking through checkout.session.expired.
	checkoutSessionTTL = time.Hour
)

var (
	errAPIKeyRequired   = errors.New("stripe secret key is required")
	errSecretRequired   = errors.New("stripe webhook secret is required")
	errInvalidStripeEnv = fmt.Errorf("stripe environment must be %q or %q", testEnv, liveEnv)
)

// Client wraps Stripe's API client plus env-specific metadata.
type Client struct {
	api           *client.API
	environment   string
	signingSecret string
	successURL    string
	cancelURL     string
	logger        *logger.Logger
}

// CheckoutParams describes a hosted checkout for one booking payment.
type CheckoutParams struct {
	Reference      string
	Amount         decimal.Decimal
	Currency       string
	Description    string
	CustomerEmail  string
	Metadata       map[string]string
	IdempotencyKey string
}

// ChargeParams describes an off-session charge against a saved card.
type ChargeParams struct {
	Reference       string
	CustomerID      string
	PaymentMethodID string
	Amount          decimal.Decimal
	Currency        string
	Description     string
	Metadata        map[string]string
	IdempotencyKey  string
}

// NewClient initializes Stripe once with the configured secrets and env.
func NewClient(ctx context.Context, cfg config.StripeConfig, logg *logger.Logger) (*Client, error) {
	env, err := normalizeEnv(cfg.Environment())
	if err != nil {
		return nil, err
	}

	apiKey := strings.TrimSpace(cfg.SecretKey)
	if apiKey == "" {
		return nil, errAPIKeyRequired
	}

	signingSecret := strings.TrimSpace(cfg.WebhookSecret)
	if signingSecret == "" {
		return nil, errSecretRequired
	}

	if err := validateAPIKey(env, apiKey); err != nil {
		return nil, err
	}

	api := &client.API{}
	api.Init(apiKey, nil)

	if logg != nil {
		logg.Info(ctx, fmt.Sprintf("stripe client initialized (%s)", env))
	}

	return &Client{
		api:           api,
		environment:   env,
		signingSecret: signingSecret,
		successURL:    cfg.SuccessURL,
		cancelURL:     cfg.CancelURL,
		logger:        logg,
	}, nil
}

// Environment reports the normalized Stripe environment in use.
func (c *Client) Environment() string {
	if c == nil {
		return ""
	}
	return c.environment
}

// CreateCheckoutSession opens a hosted payment page for the amount.
func (c *Client) CreateCheckoutSession(ctx context.Context, p CheckoutParams) (*stripe.CheckoutSession, error) {
	amount, err := types.MinorUnits(p.Amount, p.Currency)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "convert checkout amount")
	}
	currency := strings.ToLower(strings.TrimSpace(p.Currency))
	params := &stripe.CheckoutSessionParams{
		Mode:              stripe.String(string(stripe.CheckoutSessionModePayment)),
		ClientReferenceID: stripe.String(p.Reference),
		ExpiresAt:         stripe.Int64(time.Now().Add(checkoutSessionTTL).Unix()),
		SuccessURL:        stripe.String(withReference(c.successURL, p.Reference)),
		CancelURL:         stripe.String(withReference(c.cancelURL, p.Reference)),
		LineItems: []*stripe.CheckoutSessionLineItemParams{{
			Quantity: stripe.Int64(1),
			PriceData: &stripe.CheckoutSessionLineItemPriceDataParams{
				Currency:   stripe.String(currency),
				UnitAmount: stripe.Int64(amount),
				ProductData: &stripe.CheckoutSessionLineItemPriceDataProductDataParams{
					Name: stripe.String(p.Description),
				},
			},
		}},
		PaymentIntentData: &stripe.CheckoutSessionPaymentIntentDataParams{
			Metadata: intentMetadata(p.Metadata, p.Reference, FlowCheckout),
		},
	}
	if email := strings.TrimSpace(p.CustomerEmail); email != "" {
		params.CustomerEmail = stripe.String(email)
	}
	for k, v := range p.Metadata {
		params.AddMetadata(k, v)
	}
	params.Context = ctx
	if p.IdempotencyKey != "" {
		params.SetIdempotencyKey(p.IdempotencyKey)
	}

	c.log(ctx, "request", "create_checkout_session", map[string]any{"reference": p.Reference, "amount": amount, "currency": currency})
	session, err := c.api.CheckoutSessions.New(params)
	if err != nil {
		c.log(ctx, "error", "create_checkout_session", map[string]any{"error": err.Error()})
		return nil, mapStripeError(err, "create checkout session")
	}
	c.log(ctx, "response", "create_checkout_session", map[string]any{"session_id": session.ID})
	return session, nil
}

// ChargeSavedMethod confirms an off-session payment intent immediately.
func (c *Client) ChargeSavedMethod(ctx context.Context, p ChargeParams) (*stripe.PaymentIntent, error) {
	amount, err := types.MinorUnits(p.Amount, p.Currency)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "convert charge amount")
	}
	currency := strings.ToLower(strings.TrimSpace(p.Currency))
	params := &stripe.PaymentIntentParams{
		Amount:        stripe.Int64(amount),
		Currency:      stripe.String(currency),
		Customer:      stripe.String(p.CustomerID),
		PaymentMethod: stripe.String(p.PaymentMethodID),
		OffSession:    stripe.Bool(true),
		Confirm:       stripe.Bool(true),
		Description:   stripe.String(p.Description),
	}
	for k, v := range intentMetadata(p.Metadata, p.Reference, FlowSavedCard) {
		params.AddMetadata(k, v)
	}
	params.Context = ctx
	if p.IdempotencyKey != "" {
		params.SetIdempotencyKey(p.IdempotencyKey)
	}

	c.log(ctx, "request", "charge_saved_method", map[string]any{"reference": p.Reference, "amount": amount, "currency": currency})
	intent, err := c.api.PaymentIntents.New(params)
	if err != nil {
		c.log(ctx, "error", "charge_saved_method", map[string]any{"error": err.Error()})
		return nil, mapStripeError(err, "charge saved payment method")
	}
	c.log(ctx, "response", "charge_saved_method", map[string]any{"payment_intent_id": intent.ID, "status": string(intent.Status)})
	return intent, nil
}

// Payment intent flows, stored under the "flow" metadata key so webhook
// handlers can tell a hosted checkout attempt from an off-session charge.
const (
	FlowCheckout  = "checkout"
	FlowSavedCard = "saved_card"
)

func intentMetadata(base map[string]string, reference, flow string) map[string]string {
	out := make(map[string]string, len(base)+2)
	for k, v := range base {
		out[k] = v
	}
	out["reference"] = reference
	out["flow"] = flow
	return out
}

// ConstructEvent verifies the webhook signature and decodes the event.
func (c *Client) ConstructEvent(payload []byte, signature string) (stripe.Event, error) {
	return webhook.ConstructEventWithOptions(payload, signature, c.signingSecret, webhook.ConstructEventOptions{
		IgnoreAPIVersionMismatch: true,
	})
}

func withReference(template, reference string) string {
	return strings.ReplaceAll(template, referencePlaceholder, reference)
}

func mapStripeError(err error, op string) error {
	var stripeErr *stripe.Error
	if errors.As(err, &stripeErr) {
		switch {
		case stripeErr.Type == stripe.ErrorTypeCard:
			return pkgerrors.Wrap(pkgerrors.CodePaymentFailed, err, declineMessage(stripeErr))
		case stripeErr.HTTPStatusCode == 401:
			return pkgerrors.Wrap(pkgerrors.CodeUnauthorized, err, fmt.Sprintf("stripe %s failed", op))
		case stripeErr.HTTPStatusCode == 429:
			return pkgerrors.Wrap(pkgerrors.CodeRateLimit, err, fmt.Sprintf("stripe %s failed", op))
		case stripeErr.Type == stripe.ErrorTypeIdempotency:
			return pkgerrors.Wrap(pkgerrors.CodeIdempotency, err, fmt.Sprintf("stripe %s failed", op))
		case stripeErr.Type == stripe.ErrorTypeInvalidRequest:
			return pkgerrors.Wrap(pkgerrors.CodeValidation, err, fmt.Sprintf("stripe %s failed", op))
		}
	}
	return pkgerrors.Wrap(pkgerrors.CodeDependency, err, fmt.Sprintf("stripe %s failed", op))
}

func declineMessage(e *stripe.Error) string {
	if e.Msg != "" {
		return e.Msg
	}
	if e.DeclineCode != "" {
		return fmt.Sprintf("card declined (%s)", e.DeclineCode)
	}
	return "card declined"
}

func (c *Client) log(ctx context.Context, phase, op string, fields map[string]any) {
	if c == nil || c.logger == nil {
		return
	}
	logFields := map[string]any{"operation": op, "phase": phase}
	for k, v := range fields {
		logFields[k] = v
	}
	ctx = c.logger.WithFields(ctx, logFields)
	if phase == "error" {
		c.logger.Error(ctx, fmt.Sprintf("stripe %s", op), errors.New(fmt.Sprint(fields["error"])))
		return
	}
	c.logger.Info(ctx, fmt.Sprintf("stripe %s", phase))
}

func normalizeEnv(raw string) (string, error) {
	env := strings.TrimSpace(strings.ToLower(raw))
	if env == "" {
		env = testEnv
	}
	switch env {
	case testEnv, liveEnv:
		return env, nil
	default:
		return "", errInvalidStripeEnv
	}
}

func validateAPIKey(env, key string) error {
	switch env {
	case testEnv:
		if strings.HasPrefix(key, "sk_test") || strings.HasPrefix(key, "rk_test") {
			return nil
		}
		return fmt.Errorf("stripe environment %q requires a test secret key (sk_test/rk_test)", testEnv)
	case liveEnv:
		if strings.HasPrefix(key, "sk_live") || strings.HasPrefix(key, "rk_live") {
			return nil
		}
		return fmt.Errorf("stripe environment %q requires a live secret key (sk_live/rk_live)", liveEnv)
	default:
		return errInvalidStripeEnv
	}
}
