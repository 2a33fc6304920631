package settlement

import (
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/glowbook/glowbook-backend/internal/ledger"
)

// state is the running result of the funding attempts. Each step returns a
// new value; giftCard + wallet + due always equals the amount to collect.
type state struct {
	due           decimal.Decimal
	giftCard      decimal.Decimal
	wallet        decimal.Decimal
	reservationID *uuid.UUID
}

func newState(amountToCollect decimal.Decimal) state {
	due := amountToCollect
	if due.IsNegative() {
		due = decimal.Zero
	}
	return state{due: due, giftCard: decimal.Zero, wallet: decimal.Zero}
}

// withGiftCard applies a reserved gift card amount, clamped to what is due.
func (s state) withGiftCard(amount decimal.Decimal, reservationID uuid.UUID) state {
	applied := clamp(amount, s.due)
	id := reservationID
	s.giftCard = s.giftCard.Add(applied)
	s.due = s.due.Sub(applied)
	s.reservationID = &id
	return s
}

// withWallet applies a wallet debit, clamped to what is due.
func (s state) withWallet(amount decimal.Decimal) state {
	applied := clamp(amount, s.due)
	s.wallet = s.wallet.Add(applied)
	s.due = s.due.Sub(applied)
	return s
}

func (s state) covered() bool {
	return !s.due.IsPositive()
}

func (s state) internal() decimal.Decimal {
	return s.giftCard.Add(s.wallet)
}

func (s state) funding() ledger.Funding {
	return ledger.Funding{GiftCard: s.giftCard, Wallet: s.wallet}
}

func clamp(amount, ceiling decimal.Decimal) decimal.Decimal {
	if !amount.IsPositive() {
		return decimal.Zero
	}
	return decimal.Min(amount, ceiling)
}
