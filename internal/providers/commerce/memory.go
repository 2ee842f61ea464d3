package commerce

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/shopspring/decimal"
)

// Memory is an in-process Backend. Carts live for the lifetime of the value.
// It backs development setups without store credentials and tests.
type Memory struct {
	mu       sync.Mutex
	currency string
	products []Product
	variants map[string]Variant
	carts    map[string]*Cart
	seq      int
}

// NewMemory returns a store selling products in currency.
func NewMemory(currency string, products ...Product) *Memory {
	if currency == "" {
		currency = "USD"
	}
	m := &Memory{
		currency: currency,
		variants: make(map[string]Variant),
		carts:    make(map[string]*Cart),
	}
	for _, p := range products {
		m.products = append(m.products, p)
		for _, v := range p.Variants {
			m.variants[v.ID] = v
		}
	}
	return m
}

func (m *Memory) FindProducts(ctx context.Context, cfg StoreConfig, q ProductQuery) ([]Product, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	out := append([]Product(nil), m.products...)
	if q.First > 0 && len(out) > q.First {
		out = out[:q.First]
	}
	return out, nil
}

func (m *Memory) GetCart(ctx context.Context, cfg StoreConfig, cartID string) (*Cart, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	cart, ok := m.carts[cartID]
	if !ok {
		return nil, nil
	}
	return cloneCart(cart), nil
}

func (m *Memory) MutateCart(ctx context.Context, cfg StoreConfig, cartID string, lines []LineInput) (*Cart, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if len(lines) == 0 {
		return nil, errors.New("commerce: no cart lines to apply")
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	var cart *Cart
	if cartID == "" {
		m.seq++
		cart = &Cart{
			ID:          fmt.Sprintf("gid://memory/Cart/%d", m.seq),
			CheckoutURL: fmt.Sprintf("https://checkout.invalid/cart/%d", m.seq),
		}
	} else {
		existing, ok := m.carts[cartID]
		if !ok {
			return nil, fmt.Errorf("commerce: cart %s does not exist", cartID)
		}
		cart = cloneCart(existing)
	}

	for _, in := range lines {
		if in.Quantity <= 0 {
			return nil, fmt.Errorf("commerce: quantity must be positive, got %d", in.Quantity)
		}
		if in.ID != "" {
			idx := -1
			for i, l := range cart.Lines {
				if l.ID == in.ID {
					idx = i
				}
			}
			if idx < 0 {
				return nil, fmt.Errorf("commerce: line %s not in cart", in.ID)
			}
			cart.Lines[idx].Quantity = in.Quantity
			if in.Attributes != nil {
				cart.Lines[idx].Attributes = append([]Attribute(nil), in.Attributes...)
			}
			continue
		}
		if _, ok := m.variants[in.MerchandiseID]; !ok && len(m.variants) > 0 {
			return nil, fmt.Errorf("commerce: merchandise %s does not exist", in.MerchandiseID)
		}
		m.seq++
		cart.Lines = append(cart.Lines, CartLine{
			ID:            fmt.Sprintf("gid://memory/CartLine/%d", m.seq),
			MerchandiseID: in.MerchandiseID,
			Quantity:      in.Quantity,
			Attributes:    append([]Attribute(nil), in.Attributes...),
		})
	}
	m.recompute(cart)
	m.carts[cart.ID] = cart
	return cloneCart(cart), nil
}

func (m *Memory) GetVariant(ctx context.Context, cfg StoreConfig, variantID string) (*Variant, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.variants[variantID]
	if !ok {
		return nil, ErrVariantNotFound
	}
	return &v, nil
}

// recompute derives totals from variant prices the way a remote store does.
func (m *Memory) recompute(cart *Cart) {
	total := decimal.Zero
	qty := 0
	for _, l := range cart.Lines {
		qty += l.Quantity
		if v, ok := m.variants[l.MerchandiseID]; ok {
			total = total.Add(v.Price.Amount.Mul(decimal.NewFromInt(int64(l.Quantity))))
		}
	}
	cart.TotalQuantity = qty
	cart.Subtotal = Money{Amount: total, CurrencyCode: m.currency}
	cart.Total = Money{Amount: total, CurrencyCode: m.currency}
}

func cloneCart(c *Cart) *Cart {
	out := *c
	out.Lines = make([]CartLine, len(c.Lines))
	for i, l := range c.Lines {
		l.Attributes = append([]Attribute(nil), l.Attributes...)
		out.Lines[i] = l
	}
	return &out
}

var _ Backend = (*Memory)(nil)
