package squarewebhook

import (
	"context"
	"strings"

	"github.com/google/uuid"

	"github.com/glowbook/glowbook-backend/internal/settlement"
	"github.com/glowbook/glowbook-backend/pkg/db/models"
	"github.com/glowbook/glowbook-backend/pkg/enums"
	pkgerrors "github.com/glowbook/glowbook-backend/pkg/errors"
	"github.com/glowbook/glowbook-backend/pkg/logger"
	"github.com/glowbook/glowbook-backend/pkg/types"
)

const (
	paymentCompleted = "COMPLETED"
	paymentFailed    = "FAILED"
	paymentCanceled  = "CANCELED"
)

type settlementService interface {
	BookingIDByReference(ctx context.Context, reference string) (uuid.UUID, error)
	ConfirmGatewayPayment(ctx context.Context, in settlement.ConfirmInput) (*models.Booking, error)
	FailGatewayPayment(ctx context.Context, in settlement.FailInput) error
}

type ServiceParams struct {
	Settlement settlementService
	Logger     *logger.Logger
}

// Service applies Square payment notifications to bookings whose card
// charge came back pending.
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

type SquareWebhookEvent struct {
	EventID string            `json:"event_id"`
	Type    string            `json:"type"`
	Data    SquareWebhookData `json:"data"`
}

type SquareWebhookData struct {
	Type   string              `json:"type"`
	ID     string              `json:"id"`
	Object SquareWebhookObject `json:"object"`
}

type SquareWebhookObject struct {
	Payment *SquarePayment `json:"payment"`
}

type SquarePayment struct {
	ID            string       `json:"id"`
	Status        string       `json:"status"`
	ReferenceID   string       `json:"reference_id"`
	AmountMoney   *SquareMoney `json:"amount_money"`
	ProcessingFee []SquareFee  `json:"processing_fee"`
}

type SquareMoney struct {
	Amount   int64  `json:"amount"`
	Currency string `json:"currency"`
}

type SquareFee struct {
	AmountMoney *SquareMoney `json:"amount_money"`
}

// HandleEvent processes payment.created / payment.updated notifications.
func (s *Service) HandleEvent(ctx context.Context, event *SquareWebhookEvent) error {
	if event == nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "square event required")
	}

	switch strings.ToLower(event.Type) {
	case "payment.created", "payment.updated":
	default:
		return nil
	}

	payment := event.Data.Object.Payment
	if payment == nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "payment payload missing")
	}
	reference := strings.TrimSpace(payment.ReferenceID)
	if reference == "" {
		// Not one of ours.
		return nil
	}
	ctx = s.logg.WithFields(ctx, map[string]any{
		"square_event_id":   event.EventID,
		"square_payment_id": payment.ID,
		"payment_reference": reference,
		"square_status":     payment.Status,
	})

	status := strings.ToUpper(payment.Status)
	if status != paymentCompleted && status != paymentFailed && status != paymentCanceled {
		s.logg.Info(ctx, "square.payment_in_progress")
		return nil
	}

	bookingID, err := s.settlement.BookingIDByReference(ctx, reference)
	if err != nil {
		return err
	}

	if status == paymentCompleted {
		in := settlement.ConfirmInput{
			BookingID: bookingID,
			Provider:  enums.PaymentProviderSquare,
			Reference: reference,
		}
		if payment.AmountMoney != nil {
			in.Amount = types.FromMinorUnits(payment.AmountMoney.Amount, payment.AmountMoney.Currency)
		}
		for _, fee := range payment.ProcessingFee {
			if fee.AmountMoney != nil {
				in.Fees = in.Fees.Add(types.FromMinorUnits(fee.AmountMoney.Amount, fee.AmountMoney.Currency))
			}
		}
		_, err = s.settlement.ConfirmGatewayPayment(ctx, in)
		return err
	}

	return s.settlement.FailGatewayPayment(ctx, settlement.FailInput{
		BookingID: bookingID,
		Provider:  enums.PaymentProviderSquare,
		Reference: reference,
		Reason:    "square payment " + strings.ToLower(status),
	})
}
