package billing

import (
	"context"
	"errors"
	"fmt"

	"github.com/stripe/stripe-go/v72"
	"github.com/stripe/stripe-go/v72/client"
)

// Price is a purchasable plan price as listed by Stripe.
type Price struct {
	ID         string `json:"id"`
	Nickname   string `json:"nickname"`
	ProductID  string `json:"product_id"`
	UnitAmount int64  `json:"unit_amount"`
	Currency   string `json:"currency"`
	Interval   string `json:"interval,omitempty"`
}

// Catalog reads the price list from Stripe.
type Catalog struct {
	api *client.API
}

// NewCatalog creates a Catalog. backends may be nil to use the Stripe API.
func NewCatalog(secretKey string, backends *stripe.Backends) (*Catalog, error) {
	if secretKey == "" {
		return nil, errors.New("stripe secret key is required")
	}
	api := &client.API{}
	api.Init(secretKey, backends)
	return &Catalog{api: api}, nil
}

// ActivePrices lists every active price.
func (c *Catalog) ActivePrices(ctx context.Context) ([]Price, error) {
	params := &stripe.PriceListParams{Active: stripe.Bool(true)}
	params.Limit = stripe.Int64(100)
	params.Context = ctx

	iter := c.api.Prices.List(params)
	var out []Price
	for iter.Next() {
		p := iter.Price()
		price := Price{
			ID:         p.ID,
			Nickname:   p.Nickname,
			UnitAmount: p.UnitAmount,
			Currency:   string(p.Currency),
		}
		if p.Product != nil {
			price.ProductID = p.Product.ID
		}
		if p.Recurring != nil {
			price.Interval = string(p.Recurring.Interval)
		}
		out = append(out, price)
	}
	if err := iter.Err(); err != nil {
		return nil, fmt.Errorf("listing stripe prices: %w", err)
	}
	return out, nil
}
