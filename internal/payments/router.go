package payments

import (
	"fmt"

	"github.com/glowbook/glowbook-backend/pkg/db/models"
	"github.com/glowbook/glowbook-backend/pkg/enums"
	pkgerrors "github.com/glowbook/glowbook-backend/pkg/errors"
)

// Router picks the gateway for a settlement. Hosted checkouts go to the
// default provider; saved cards go to the provider that stored them.
type Router struct {
	gateways map[enums.PaymentProvider]Gateway
	fallback enums.PaymentProvider
}

func NewRouter(fallback enums.PaymentProvider, gateways ...Gateway) (*Router, error) {
	r := &Router{gateways: map[enums.PaymentProvider]Gateway{}, fallback: fallback}
	for _, g := range gateways {
		if g == nil {
			continue
		}
		r.gateways[g.Provider()] = g
	}
	if _, ok := r.gateways[fallback]; !ok {
		return nil, fmt.Errorf("default gateway %s not configured", fallback)
	}
	return r, nil
}

// Checkout returns the gateway that hosts payment pages.
func (r *Router) Checkout() Gateway {
	return r.gateways[r.fallback]
}

// ForMethod returns the gateway that holds the saved card.
func (r *Router) ForMethod(method models.SavedPaymentMethod) (Gateway, error) {
	g, ok := r.gateways[method.Provider]
	if !ok {
		return nil, pkgerrors.New(pkgerrors.CodePaymentFailed, fmt.Sprintf("payment provider %s is not available", method.Provider))
	}
	return g, nil
}
