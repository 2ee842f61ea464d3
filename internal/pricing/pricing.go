// Package pricing computes the price of an engraved map from its product
// configuration and customization counts.
package pricing

import (
	"fmt"

	"github.com/shopspring/decimal"
	"golang.org/x/text/currency"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
	"golang.org/x/text/number"

	"mapengrave/internal/catalog"
	"mapengrave/internal/domain"
)

// Quote is a price rounded to cents.
type Quote struct {
	Amount   decimal.Decimal `json:"amount"`
	Currency string          `json:"currency"`
}

// String renders the amount with exactly two decimals, e.g. "72.99".
func (q Quote) String() string {
	return q.Amount.StringFixed(2)
}

// Engine prices products against a catalog. It holds no mutable state.
type Engine struct {
	cat *catalog.Catalog
}

// NewEngine returns an engine for cat, or for the built-in catalog when nil.
func NewEngine(cat *catalog.Catalog) *Engine {
	if cat == nil {
		cat = catalog.Default()
	}
	return &Engine{cat: cat}
}

// Quote prices product with the items of custom.
func (e *Engine) Quote(product domain.ProductConfig, custom domain.Customizations) Quote {
	texts, icons, compass := custom.Counts()
	return e.QuoteCounts(product, texts, icons, compass)
}

// QuoteCounts prices product from customization counts. Shape and aspect
// ratio are ignored. Unknown sizes use the fallback tier.
func (e *Engine) QuoteCounts(product domain.ProductConfig, texts, icons int, compass bool) Quote {
	size, ok := product.SizeTier()
	if !ok {
		size = e.cat.FallbackSize
	}
	tier, ok := e.cat.Tier(size)
	if !ok {
		tier, _ = e.cat.Tier(e.cat.FallbackSize)
	}

	amount := tier.BasePrice
	amount = amount.Add(e.cat.Premium(product.Material))
	if texts > 0 {
		amount = amount.Add(e.cat.PerText.Mul(decimal.NewFromInt(int64(texts))))
	}
	if icons > 0 {
		amount = amount.Add(e.cat.PerIcon.Mul(decimal.NewFromInt(int64(icons))))
	}
	if compass {
		amount = amount.Add(e.cat.Compass)
	}
	// decimal.Round rounds half away from zero, which is half-up for prices.
	return Quote{Amount: amount.Round(2), Currency: e.cat.Currency}
}

// Format renders q for display in the given locale: the currency symbol
// followed by the amount with the locale's separators, e.g. "$ 72.99" or
// "$ 72,99" for German.
func Format(q Quote, tag language.Tag) string {
	unit, err := currency.ParseISO(q.Currency)
	if err != nil {
		return fmt.Sprintf("%s %s", q.Amount.StringFixed(2), q.Currency)
	}
	value, _ := q.Amount.Float64()
	p := message.NewPrinter(tag)
	return p.Sprintf("%v %v", currency.Symbol(unit), number.Decimal(value, number.Scale(2)))
}
