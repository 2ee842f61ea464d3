// Package commerce talks to the storefront that owns products, variants and
// carts.
package commerce

import (
	"context"
	"errors"
	"strings"

	"github.com/shopspring/decimal"
)

// DefaultAPIVersion is the Storefront API version used when none is configured.
const DefaultAPIVersion = "2024-07"

var (
	// ErrVariantNotFound is returned by GetVariant for unknown ids.
	ErrVariantNotFound = errors.New("commerce: variant not found")
	// ErrInvalidStoreConfig reports a store bundle with missing fields.
	ErrInvalidStoreConfig = errors.New("commerce: invalid store config")
)

// StoreConfig identifies a store, its access token and the variant that
// engraved maps are sold as.
type StoreConfig struct {
	Domain      string `json:"domain"`
	AccessToken string `json:"-"`
	VariantID   string `json:"variant_id"`
	APIVersion  string `json:"api_version,omitempty"`
}

// Validate checks that every required field is present.
func (c StoreConfig) Validate() error {
	var missing []string
	if strings.TrimSpace(c.Domain) == "" {
		missing = append(missing, "domain")
	}
	if strings.TrimSpace(c.AccessToken) == "" {
		missing = append(missing, "access token")
	}
	if strings.TrimSpace(c.VariantID) == "" {
		missing = append(missing, "variant id")
	}
	if len(missing) > 0 {
		return errors.Join(ErrInvalidStoreConfig, errors.New("missing "+strings.Join(missing, ", ")))
	}
	return nil
}

// Version returns the API version, defaulting to DefaultAPIVersion.
func (c StoreConfig) Version() string {
	if v := strings.TrimSpace(c.APIVersion); v != "" {
		return v
	}
	return DefaultAPIVersion
}

// Money is an amount in a currency.
type Money struct {
	Amount       decimal.Decimal `json:"amount"`
	CurrencyCode string          `json:"currencyCode"`
}

// Attribute is a key/value pair attached to a cart line.
type Attribute struct {
	Key   string `json:"key"`
	Value string `json:"value"`
}

// CartLine is one line of a remote cart.
type CartLine struct {
	ID            string      `json:"id"`
	MerchandiseID string      `json:"merchandise_id"`
	Quantity      int         `json:"quantity"`
	Attributes    []Attribute `json:"attributes"`
}

// Attribute returns the value stored under key.
func (l CartLine) Attribute(key string) (string, bool) {
	for _, a := range l.Attributes {
		if a.Key == key {
			return a.Value, true
		}
	}
	return "", false
}

// Cart is the remote cart document.
type Cart struct {
	ID            string     `json:"id"`
	CheckoutURL   string     `json:"checkout_url"`
	TotalQuantity int        `json:"total_quantity"`
	Lines         []CartLine `json:"lines"`
	Subtotal      Money      `json:"subtotal"`
	Total         Money      `json:"total"`
}

// LineByMerchandise returns the line holding merchandiseID.
func (c *Cart) LineByMerchandise(merchandiseID string) (CartLine, bool) {
	for _, l := range c.Lines {
		if l.MerchandiseID == merchandiseID {
			return l, true
		}
	}
	return CartLine{}, false
}

// LineInput is one requested change. Lines with an ID update that line;
// lines without add new merchandise.
type LineInput struct {
	ID            string
	MerchandiseID string
	Quantity      int
	Attributes    []Attribute
}

// Variant is a purchasable variant of a product.
type Variant struct {
	ID               string `json:"id"`
	Title            string `json:"title"`
	AvailableForSale bool   `json:"available_for_sale"`
	Price            Money  `json:"price"`
}

// Product is a catalog product with its variants.
type Product struct {
	ID       string    `json:"id"`
	Title    string    `json:"title"`
	Handle   string    `json:"handle"`
	Variants []Variant `json:"variants"`
}

// ProductQuery filters FindProducts.
type ProductQuery struct {
	Query string
	First int
}

// Backend is the remote cart and variant store.
type Backend interface {
	FindProducts(ctx context.Context, cfg StoreConfig, q ProductQuery) ([]Product, error)
	// GetCart returns nil and no error when the cart does not exist.
	GetCart(ctx context.Context, cfg StoreConfig, cartID string) (*Cart, error)
	// MutateCart creates a cart when cartID is empty.
	MutateCart(ctx context.Context, cfg StoreConfig, cartID string, lines []LineInput) (*Cart, error)
	GetVariant(ctx context.Context, cfg StoreConfig, variantID string) (*Variant, error)
}
