// Package payments adapts card gateways to the two operations booking
// settlement needs: opening a hosted checkout and charging a saved card.
package payments

import (
	"context"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/glowbook/glowbook-backend/pkg/db/models"
	"github.com/glowbook/glowbook-backend/pkg/enums"
)

// InitializeRequest opens a hosted payment for Amount. Amounts are in major
// units; gateways convert.
type InitializeRequest struct {
	BookingID     uuid.UUID
	Reference     string
	Amount        decimal.Decimal
	Currency      string
	CustomerEmail string
	Description   string
	Metadata      map[string]string
}

// InitializeResult carries the URL the customer completes payment on.
type InitializeResult struct {
	Provider         enums.PaymentProvider
	Reference        string
	SessionID        string
	AuthorizationURL string
}

// ChargeRequest charges a stored card off-session.
type ChargeRequest struct {
	BookingID   uuid.UUID
	Reference   string
	Amount      decimal.Decimal
	Currency    string
	Description string
	Method      models.SavedPaymentMethod
	Metadata    map[string]string
}

// ChargeStatus is the gateway's verdict on a charge.
type ChargeStatus string

const (
	ChargeSucceeded ChargeStatus = "succeeded"
	ChargePending   ChargeStatus = "pending"
	ChargeFailed    ChargeStatus = "failed"
)

// ChargeResult is the outcome of ChargeAuthorization.
type ChargeResult struct {
	Provider          enums.PaymentProvider
	Reference         string
	ProviderPaymentID string
	Status            ChargeStatus
	FailureReason     string
}

// Gateway is implemented per payment provider.
type Gateway interface {
	Provider() enums.PaymentProvider
	InitializeTransaction(ctx context.Context, req InitializeRequest) (*InitializeResult, error)
	ChargeAuthorization(ctx context.Context, req ChargeRequest) (*ChargeResult, error)
}
