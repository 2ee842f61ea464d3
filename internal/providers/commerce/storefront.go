package commerce

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"mapengrave/internal/infra"
)

const cartFields = `
fragment CartFields on Cart {
  id
  checkoutUrl
  totalQuantity
  cost {
    subtotalAmount { amount currencyCode }
    totalAmount { amount currencyCode }
  }
  lines(first: 100) {
    edges {
      node {
        id
        quantity
        merchandise { ... on ProductVariant { id } }
        attributes { key value }
      }
    }
  }
}`

const cartQuery = `query cart($id: ID!) { cart(id: $id) { ...CartFields } }` + cartFields

const cartCreateMutation = `mutation cartCreate($input: CartInput!) {
  cartCreate(input: $input) { cart { ...CartFields } userErrors { field message } }
}` + cartFields

const cartLinesAddMutation = `mutation cartLinesAdd($cartId: ID!, $lines: [CartLineInput!]!) {
  cartLinesAdd(cartId: $cartId, lines: $lines) { cart { ...CartFields } userErrors { field message } }
}` + cartFields

const cartLinesUpdateMutation = `mutation cartLinesUpdate($cartId: ID!, $lines: [CartLineUpdateInput!]!) {
  cartLinesUpdate(cartId: $cartId, lines: $lines) { cart { ...CartFields } userErrors { field message } }
}` + cartFields

const productsQuery = `query products($first: Int!, $query: String) {
  products(first: $first, query: $query) {
    edges {
      node {
        id
        title
        handle
        variants(first: 25) {
          edges { node { id title availableForSale price { amount currencyCode } } }
        }
      }
    }
  }
}`

const variantQuery = `query variant($id: ID!) {
  node(id: $id) { ... on ProductVariant { id title availableForSale price { amount currencyCode } } }
}`

// StorefrontOptions configures the Storefront GraphQL client.
type StorefrontOptions struct {
	HTTPClient     *http.Client
	RequestTimeout time.Duration
	Logger         *infra.Logger
}

// Storefront implements Backend over the Shopify Storefront GraphQL API.
type Storefront struct {
	httpClient *http.Client
	logger     *infra.Logger
}

// NewStorefront applies defaults to opts.
func NewStorefront(opts StorefrontOptions) *Storefront {
	httpClient := opts.HTTPClient
	if httpClient == nil {
		timeout := opts.RequestTimeout
		if timeout <= 0 {
			timeout = 20 * time.Second
		}
		httpClient = &http.Client{Timeout: timeout}
	}
	var logger *infra.Logger
	if opts.Logger != nil {
		logger = opts.Logger
	} else {
		discard := zerolog.New(io.Discard)
		l := infra.Logger(discard)
		logger = &l
	}
	return &Storefront{httpClient: httpClient, logger: logger}
}

type gqlRequest struct {
	Query     string         `json:"query"`
	Variables map[string]any `json:"variables,omitempty"`
}

type gqlError struct {
	Message string `json:"message"`
}

type userError struct {
	Field   []string `json:"field"`
	Message string   `json:"message"`
}

type gqlMoney struct {
	Amount       string `json:"amount"`
	CurrencyCode string `json:"currencyCode"`
}

type gqlCart struct {
	ID            string `json:"id"`
	CheckoutURL   string `json:"checkoutUrl"`
	TotalQuantity int    `json:"totalQuantity"`
	Cost          struct {
		SubtotalAmount gqlMoney `json:"subtotalAmount"`
		TotalAmount    gqlMoney `json:"totalAmount"`
	} `json:"cost"`
	Lines struct {
		Edges []struct {
			Node struct {
				ID          string `json:"id"`
				Quantity    int    `json:"quantity"`
				Merchandise struct {
					ID string `json:"id"`
				} `json:"merchandise"`
				Attributes []Attribute `json:"attributes"`
			} `json:"node"`
		} `json:"edges"`
	} `json:"lines"`
}

type cartPayload struct {
	Cart       *gqlCart    `json:"cart"`
	UserErrors []userError `json:"userErrors"`
}

type gqlVariant struct {
	ID               string   `json:"id"`
	Title            string   `json:"title"`
	AvailableForSale bool     `json:"availableForSale"`
	Price            gqlMoney `json:"price"`
}

type cartLineInput struct {
	MerchandiseID string      `json:"merchandiseId"`
	Quantity      int         `json:"quantity"`
	Attributes    []Attribute `json:"attributes,omitempty"`
}

type cartLineUpdateInput struct {
	ID            string      `json:"id"`
	MerchandiseID string      `json:"merchandiseId,omitempty"`
	Quantity      int         `json:"quantity"`
	Attributes    []Attribute `json:"attributes,omitempty"`
}

// Endpoint returns the GraphQL URL for cfg. Domains without a scheme use https.
func Endpoint(cfg StoreConfig) string {
	domain := strings.TrimRight(strings.TrimSpace(cfg.Domain), "/")
	if !strings.HasPrefix(domain, "http://") && !strings.HasPrefix(domain, "https://") {
		domain = "https://" + domain
	}
	return fmt.Sprintf("%s/api/%s/graphql.json", domain, cfg.Version())
}

func (s *Storefront) do(ctx context.Context, cfg StoreConfig, op, query string, vars map[string]any, out any) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	body, err := json.Marshal(gqlRequest{Query: query, Variables: vars})
	if err != nil {
		return fmt.Errorf("commerce: encode %s: %w", op, err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, Endpoint(cfg), bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("commerce: build %s request: %w", op, err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Shopify-Storefront-Access-Token", cfg.AccessToken)

	start := time.Now()
	resp, err := s.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("commerce: %s: %w", op, err)
	}
	defer resp.Body.Close()
	raw, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return fmt.Errorf("commerce: read %s response: %w", op, err)
	}
	s.logger.Debug().Str("op", op).Int("status", resp.StatusCode).Dur("took", time.Since(start)).Msg("storefront call")
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("commerce: %s: status %d: %s", op, resp.StatusCode, truncate(string(raw), 300))
	}
	var envelope struct {
		Data   json.RawMessage `json:"data"`
		Errors []gqlError      `json:"errors"`
	}
	if err := json.Unmarshal(raw, &envelope); err != nil {
		return fmt.Errorf("commerce: decode %s response: %w", op, err)
	}
	if len(envelope.Errors) > 0 {
		msgs := make([]string, 0, len(envelope.Errors))
		for _, e := range envelope.Errors {
			msgs = append(msgs, e.Message)
		}
		return fmt.Errorf("commerce: %s: %s", op, strings.Join(msgs, "; "))
	}
	if out == nil || len(envelope.Data) == 0 {
		return nil
	}
	if err := json.Unmarshal(envelope.Data, out); err != nil {
		return fmt.Errorf("commerce: decode %s data: %w", op, err)
	}
	return nil
}

// FindProducts lists products matching q.
func (s *Storefront) FindProducts(ctx context.Context, cfg StoreConfig, q ProductQuery) ([]Product, error) {
	first := q.First
	if first <= 0 || first > 250 {
		first = 20
	}
	vars := map[string]any{"first": first}
	if strings.TrimSpace(q.Query) != "" {
		vars["query"] = q.Query
	}
	var data struct {
		Products struct {
			Edges []struct {
				Node struct {
					ID       string `json:"id"`
					Title    string `json:"title"`
					Handle   string `json:"handle"`
					Variants struct {
						Edges []struct {
							Node gqlVariant `json:"node"`
						} `json:"edges"`
					} `json:"variants"`
				} `json:"node"`
			} `json:"edges"`
		} `json:"products"`
	}
	if err := s.do(ctx, cfg, "products", productsQuery, vars, &data); err != nil {
		return nil, err
	}
	out := make([]Product, 0, len(data.Products.Edges))
	for _, edge := range data.Products.Edges {
		p := Product{ID: edge.Node.ID, Title: edge.Node.Title, Handle: edge.Node.Handle}
		for _, ve := range edge.Node.Variants.Edges {
			v, err := ve.Node.toVariant()
			if err != nil {
				return nil, err
			}
			p.Variants = append(p.Variants, v)
		}
		out = append(out, p)
	}
	return out, nil
}

// GetCart fetches a cart, returning nil when the id is unknown.
func (s *Storefront) GetCart(ctx context.Context, cfg StoreConfig, cartID string) (*Cart, error) {
	var data struct {
		Cart *gqlCart `json:"cart"`
	}
	if err := s.do(ctx, cfg, "cart", cartQuery, map[string]any{"id": cartID}, &data); err != nil {
		return nil, err
	}
	if data.Cart == nil {
		return nil, nil
	}
	return data.Cart.toCart()
}

// MutateCart creates a cart with lines when cartID is empty. Otherwise lines
// with an ID are updated and the rest are added.
func (s *Storefront) MutateCart(ctx context.Context, cfg StoreConfig, cartID string, lines []LineInput) (*Cart, error) {
	if len(lines) == 0 {
		return nil, errors.New("commerce: no cart lines to apply")
	}
	var adds []cartLineInput
	var updates []cartLineUpdateInput
	for _, l := range lines {
		if l.ID != "" {
			updates = append(updates, cartLineUpdateInput{ID: l.ID, MerchandiseID: l.MerchandiseID, Quantity: l.Quantity, Attributes: l.Attributes})
			continue
		}
		adds = append(adds, cartLineInput{MerchandiseID: l.MerchandiseID, Quantity: l.Quantity, Attributes: l.Attributes})
	}

	if cartID == "" {
		if len(updates) > 0 {
			return nil, errors.New("commerce: cannot update lines of a cart that does not exist")
		}
		var data struct {
			CartCreate cartPayload `json:"cartCreate"`
		}
		vars := map[string]any{"input": map[string]any{"lines": adds}}
		if err := s.do(ctx, cfg, "cartCreate", cartCreateMutation, vars, &data); err != nil {
			return nil, err
		}
		return data.CartCreate.result("cartCreate")
	}

	var cart *Cart
	if len(updates) > 0 {
		var data struct {
			CartLinesUpdate cartPayload `json:"cartLinesUpdate"`
		}
		vars := map[string]any{"cartId": cartID, "lines": updates}
		if err := s.do(ctx, cfg, "cartLinesUpdate", cartLinesUpdateMutation, vars, &data); err != nil {
			return nil, err
		}
		c, err := data.CartLinesUpdate.result("cartLinesUpdate")
		if err != nil {
			return nil, err
		}
		cart = c
	}
	if len(adds) > 0 {
		var data struct {
			CartLinesAdd cartPayload `json:"cartLinesAdd"`
		}
		vars := map[string]any{"cartId": cartID, "lines": adds}
		if err := s.do(ctx, cfg, "cartLinesAdd", cartLinesAddMutation, vars, &data); err != nil {
			return nil, err
		}
		c, err := data.CartLinesAdd.result("cartLinesAdd")
		if err != nil {
			return nil, err
		}
		cart = c
	}
	return cart, nil
}

// GetVariant fetches a product variant by id.
func (s *Storefront) GetVariant(ctx context.Context, cfg StoreConfig, variantID string) (*Variant, error) {
	var data struct {
		Node *gqlVariant `json:"node"`
	}
	if err := s.do(ctx, cfg, "variant", variantQuery, map[string]any{"id": variantID}, &data); err != nil {
		return nil, err
	}
	if data.Node == nil || data.Node.ID == "" {
		return nil, ErrVariantNotFound
	}
	v, err := data.Node.toVariant()
	if err != nil {
		return nil, err
	}
	return &v, nil
}

func (p cartPayload) result(op string) (*Cart, error) {
	if len(p.UserErrors) > 0 {
		msgs := make([]string, 0, len(p.UserErrors))
		for _, ue := range p.UserErrors {
			if len(ue.Field) > 0 {
				msgs = append(msgs, strings.Join(ue.Field, ".")+": "+ue.Message)
				continue
			}
			msgs = append(msgs, ue.Message)
		}
		return nil, fmt.Errorf("commerce: %s: %s", op, strings.Join(msgs, "; "))
	}
	if p.Cart == nil {
		return nil, fmt.Errorf("commerce: %s returned no cart", op)
	}
	return p.Cart.toCart()
}

func (c *gqlCart) toCart() (*Cart, error) {
	subtotal, err := c.Cost.SubtotalAmount.toMoney()
	if err != nil {
		return nil, err
	}
	total, err := c.Cost.TotalAmount.toMoney()
	if err != nil {
		return nil, err
	}
	out := &Cart{
		ID:            c.ID,
		CheckoutURL:   c.CheckoutURL,
		TotalQuantity: c.TotalQuantity,
		Subtotal:      subtotal,
		Total:         total,
		Lines:         make([]CartLine, 0, len(c.Lines.Edges)),
	}
	for _, edge := range c.Lines.Edges {
		out.Lines = append(out.Lines, CartLine{
			ID:            edge.Node.ID,
			MerchandiseID: edge.Node.Merchandise.ID,
			Quantity:      edge.Node.Quantity,
			Attributes:    edge.Node.Attributes,
		})
	}
	return out, nil
}

func (v gqlVariant) toVariant() (Variant, error) {
	price, err := v.Price.toMoney()
	if err != nil {
		return Variant{}, err
	}
	return Variant{ID: v.ID, Title: v.Title, AvailableForSale: v.AvailableForSale, Price: price}, nil
}

func (m gqlMoney) toMoney() (Money, error) {
	if strings.TrimSpace(m.Amount) == "" {
		return Money{CurrencyCode: m.CurrencyCode}, nil
	}
	amount, err := decimal.NewFromString(m.Amount)
	if err != nil {
		return Money{}, fmt.Errorf("commerce: parse amount %q: %w", m.Amount, err)
	}
	return Money{Amount: amount, CurrencyCode: m.CurrencyCode}, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}

var _ Backend = (*Storefront)(nil)
