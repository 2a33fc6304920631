package payments

import (
	"context"
	"fmt"
	"strings"

	sq "github.com/square/square-go-sdk"

	"github.com/glowbook/glowbook-backend/pkg/enums"
	pkgerrors "github.com/glowbook/glowbook-backend/pkg/errors"
	"github.com/glowbook/glowbook-backend/pkg/square"
)

type squareAPI interface {
	ChargeCardOnFile(ctx context.Context, params square.PaymentCreateParams) (*sq.Payment, error)
}

// SquareGateway charges cards stored in Square. Hosted checkout is not
// offered through Square.
type SquareGateway struct {
	api squareAPI
}

func NewSquareGateway(api squareAPI) (*SquareGateway, error) {
	if api == nil {
		return nil, fmt.Errorf("square client required")
	}
	return &SquareGateway{api: api}, nil
}

func (g *SquareGateway) Provider() enums.PaymentProvider {
	return enums.PaymentProviderSquare
}

func (g *SquareGateway) InitializeTransaction(context.Context, InitializeRequest) (*InitializeResult, error) {
	return nil, pkgerrors.New(pkgerrors.CodeValidation, "square does not support hosted checkout")
}

func (g *SquareGateway) ChargeAuthorization(ctx context.Context, req ChargeRequest) (*ChargeResult, error) {
	payment, err := g.api.ChargeCardOnFile(ctx, square.PaymentCreateParams{
		Amount:         req.Amount,
		Currency:       req.Currency,
		CustomerID:     req.Method.ProviderCustomerID,
		SourceID:       req.Method.ProviderPaymentMethodID,
		IdempotencyKey: "charge-" + req.Reference,
		Note:           req.Description,
		ReferenceID:    req.Reference,
	})
	if err != nil {
		if pkgerrors.IsCode(err, pkgerrors.CodePaymentFailed) {
			return &ChargeResult{
				Provider:      enums.PaymentProviderSquare,
				Reference:     req.Reference,
				Status:        ChargeFailed,
				FailureReason: "card declined",
			}, nil
		}
		return nil, err
	}
	result := &ChargeResult{
		Provider:  enums.PaymentProviderSquare,
		Reference: req.Reference,
	}
	if id := payment.GetID(); id != nil {
		result.ProviderPaymentID = *id
	}
	status := ""
	if s := payment.GetStatus(); s != nil {
		status = strings.ToUpper(*s)
	}
	switch status {
	case "COMPLETED":
		result.Status = ChargeSucceeded
	case "APPROVED", "PENDING":
		result.Status = ChargePending
	default:
		result.Status = ChargeFailed
		result.FailureReason = fmt.Sprintf("square payment %s", strings.ToLower(status))
	}
	return result, nil
}
