package cart

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mapengrave/internal/domain"
	"mapengrave/internal/pricing"
	"mapengrave/internal/providers/commerce"
)

const variantID = "gid://shopify/ProductVariant/1"

var store = commerce.StoreConfig{Domain: "maps.example.com", AccessToken: "tok", VariantID: variantID}

func newMemory() *commerce.Memory {
	return commerce.NewMemory("USD", commerce.Product{
		ID:    "gid://shopify/Product/1",
		Title: "Engraved map",
		Variants: []commerce.Variant{{
			ID:               variantID,
			AvailableForSale: true,
			Price:            commerce.Money{Amount: decimal.RequireFromString("64.99"), CurrencyCode: "USD"},
		}},
	})
}

func parisRequest() Request {
	return Request{
		Product: domain.ProductConfig{Shape: "rectangle", Size: "standard", Material: "wood"},
		Customizations: domain.Customizations{
			domain.TextItem{ID: "t1", Content: "Paris", X: 50, Y: 50, FontSize: 24},
			domain.IconItem{ID: "i1", Type: "heart", X: 20, Y: 20, Size: 30},
		},
		Location: "Paris, France",
		ExportID: "exp-1",
		Quote:    pricing.Quote{Amount: decimal.RequireFromString("72.99"), Currency: "USD"},
	}
}

func TestAddToCartCreatesThenMerges(t *testing.T) {
	ctx := context.Background()
	r := NewReconciler(newMemory(), Options{})

	first, err := r.AddToCart(ctx, store, parisRequest())
	require.NoError(t, err)
	assert.Equal(t, OutcomeCreated, first.Outcome)
	require.Len(t, first.Cart.Lines, 1)
	assert.Equal(t, 1, first.Cart.Lines[0].Quantity)

	req := parisRequest()
	req.CartID = first.Cart.ID
	req.Quantity = 2
	second, err := r.AddToCart(ctx, store, req)
	require.NoError(t, err)
	assert.Equal(t, OutcomeMerged, second.Outcome)
	assert.Equal(t, first.Cart.ID, second.Cart.ID)
	require.Len(t, second.Cart.Lines, 1)
	assert.Equal(t, 3, second.Cart.Lines[0].Quantity)
	assert.Equal(t, "194.97", second.Cart.Total.Amount.StringFixed(2))
}

func TestAddToCartUnknownCartCreates(t *testing.T) {
	r := NewReconciler(newMemory(), Options{})
	req := parisRequest()
	req.CartID = "gid://memory/Cart/404"
	res, err := r.AddToCart(context.Background(), store, req)
	require.NoError(t, err)
	assert.Equal(t, OutcomeCreated, res.Outcome)
	assert.NotEqual(t, req.CartID, res.Cart.ID)
}

func TestAddToCartAddsLineWhenMerchandiseMissing(t *testing.T) {
	ctx := context.Background()
	mem := newMemory()
	c, err := mem.MutateCart(ctx, store, "", []commerce.LineInput{{MerchandiseID: "gid://shopify/ProductVariant/9", Quantity: 1}})
	require.NoError(t, err)

	r := NewReconciler(mem, Options{})
	req := parisRequest()
	req.CartID = c.ID
	res, err := r.AddToCart(ctx, store, req)
	require.NoError(t, err)
	assert.Equal(t, OutcomeMerged, res.Outcome)
	require.Len(t, res.Cart.Lines, 2)
	line, ok := res.Cart.LineByMerchandise(variantID)
	require.True(t, ok)
	assert.Equal(t, 1, line.Quantity)
}

func TestAddToCartAttributes(t *testing.T) {
	r := NewReconciler(newMemory(), Options{})
	res, err := r.AddToCart(context.Background(), store, parisRequest())
	require.NoError(t, err)
	line := res.Cart.Lines[0]

	for key, want := range map[string]string{
		AttrLocation: "Paris, France",
		AttrSize:     "standard",
		AttrMaterial: "wood",
		AttrShape:    "rectangle",
		AttrPrice:    "72.99",
		AttrExportID: "exp-1",
	} {
		got, ok := line.Attribute(key)
		assert.True(t, ok, key)
		assert.Equal(t, want, got, key)
	}
	raw, ok := line.Attribute(AttrCustomizations)
	require.True(t, ok)
	var s Summary
	require.NoError(t, json.Unmarshal([]byte(raw), &s))
	assert.Equal(t, []string{"Paris"}, s.Texts)
	assert.Equal(t, []string{"heart"}, s.Icons)
	assert.Empty(t, s.Compass)
}

func TestAttributesSkipEmpty(t *testing.T) {
	req := Request{
		Product: domain.ProductConfig{Size: "large"},
		Quote:   pricing.Quote{Amount: decimal.RequireFromString("84.99"), Currency: "USD"},
	}
	attrs := Attributes(req)
	keys := make([]string, 0, len(attrs))
	for _, a := range attrs {
		keys = append(keys, a.Key)
	}
	assert.Equal(t, []string{AttrSize, AttrShape, AttrPrice}, keys)
}

type failingBackend struct {
	commerce.Backend
	mutations int
}

func (f *failingBackend) GetVariant(context.Context, commerce.StoreConfig, string) (*commerce.Variant, error) {
	return &commerce.Variant{ID: variantID, AvailableForSale: true}, nil
}

func (f *failingBackend) GetCart(context.Context, commerce.StoreConfig, string) (*commerce.Cart, error) {
	return nil, nil
}

func (f *failingBackend) MutateCart(context.Context, commerce.StoreConfig, string, []commerce.LineInput) (*commerce.Cart, error) {
	f.mutations++
	return nil, errors.New("cartCreate: merchandiseId: does not exist")
}

func TestAddToCartBackendFailure(t *testing.T) {
	backend := &failingBackend{}
	r := NewReconciler(backend, Options{})
	_, err := r.AddToCart(context.Background(), store, parisRequest())
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrCartOperationFailed)
	assert.Contains(t, err.Error(), "does not exist")
	stage, ok := domain.StageOf(err)
	require.True(t, ok)
	assert.Equal(t, domain.StageCart, stage)
	assert.Equal(t, 1, backend.mutations)
}

func TestAddToCartInvalidStore(t *testing.T) {
	r := NewReconciler(newMemory(), Options{})
	_, err := r.AddToCart(context.Background(), commerce.StoreConfig{Domain: "x"}, parisRequest())
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrInvalidConfig)
	assert.ErrorIs(t, err, commerce.ErrInvalidStoreConfig)
}

func TestAddToCartIdempotencyReplay(t *testing.T) {
	ctx := context.Background()
	idem := NewMemoryIdempotency(0)
	r := NewReconciler(newMemory(), Options{Idempotency: idem})

	req := parisRequest()
	req.IdempotencyKey = "key-1"
	first, err := r.AddToCart(ctx, store, req)
	require.NoError(t, err)
	assert.False(t, first.Replayed)

	again, err := r.AddToCart(ctx, store, req)
	require.NoError(t, err)
	assert.True(t, again.Replayed)
	assert.Equal(t, first.Cart.ID, again.Cart.ID)
	require.Len(t, again.Cart.Lines, 1)
	assert.Equal(t, 1, again.Cart.Lines[0].Quantity)
}

func TestAddToCartIdempotencyInFlight(t *testing.T) {
	ctx := context.Background()
	idem := NewMemoryIdempotency(0)
	locked, err := idem.TryLock(ctx, store.Domain, "key-2")
	require.NoError(t, err)
	require.True(t, locked)

	r := NewReconciler(newMemory(), Options{Idempotency: idem})
	req := parisRequest()
	req.IdempotencyKey = "key-2"
	_, err = r.AddToCart(ctx, store, req)
	assert.ErrorIs(t, err, ErrDuplicate)
	assert.ErrorIs(t, err, domain.ErrCartOperationFailed)
}

// flakyBackend fails the first mutations and then defers to the memory store.
type flakyBackend struct {
	*commerce.Memory
	failures  int
	mutations int
}

func (f *flakyBackend) MutateCart(ctx context.Context, cfg commerce.StoreConfig, cartID string, lines []commerce.LineInput) (*commerce.Cart, error) {
	f.mutations++
	if f.failures > 0 {
		f.failures--
		return nil, errors.New("503 service unavailable")
	}
	return f.Memory.MutateCart(ctx, cfg, cartID, lines)
}

func TestAddToCartFailureReleasesIdempotencyKey(t *testing.T) {
	ctx := context.Background()
	backend := &flakyBackend{Memory: newMemory(), failures: 1}
	r := NewReconciler(backend, Options{Idempotency: NewMemoryIdempotency(0)})
	req := parisRequest()
	req.IdempotencyKey = "key-3"

	_, err := r.AddToCart(ctx, store, req)
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrCartOperationFailed)
	assert.NotErrorIs(t, err, ErrDuplicate)

	res, err := r.AddToCart(ctx, store, req)
	require.NoError(t, err)
	assert.Equal(t, OutcomeCreated, res.Outcome)
	assert.False(t, res.Replayed)
	assert.Equal(t, 2, backend.mutations)

	again, err := r.AddToCart(ctx, store, req)
	require.NoError(t, err)
	assert.True(t, again.Replayed)
	assert.Equal(t, res.Cart.ID, again.Cart.ID)
}

func TestAddToCartRequiresKnownVariant(t *testing.T) {
	backend := &flakyBackend{Memory: newMemory()}
	r := NewReconciler(backend, Options{Idempotency: NewMemoryIdempotency(0)})
	unknown := store
	unknown.VariantID = "gid://shopify/ProductVariant/404"
	req := parisRequest()
	req.IdempotencyKey = "key-4"

	_, err := r.AddToCart(context.Background(), unknown, req)
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrCartOperationFailed)
	assert.ErrorIs(t, err, commerce.ErrVariantNotFound)
	assert.Equal(t, "cart_operation_failed", domain.Code(err))
	assert.Zero(t, backend.mutations)
}

func TestAddToCartRejectsVariantNotForSale(t *testing.T) {
	mem := commerce.NewMemory("USD", commerce.Product{
		ID:       "gid://shopify/Product/2",
		Variants: []commerce.Variant{{ID: variantID, Price: commerce.Money{Amount: decimal.RequireFromString("64.99"), CurrencyCode: "USD"}}},
	})
	backend := &flakyBackend{Memory: mem}
	r := NewReconciler(backend, Options{})

	_, err := r.AddToCart(context.Background(), store, parisRequest())
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrCartOperationFailed)
	assert.ErrorIs(t, err, ErrVariantUnavailable)
	assert.Zero(t, backend.mutations)
}

// brokenRecall fails every Recall and otherwise behaves like the memory store.
type brokenRecall struct {
	*MemoryIdempotency
}

func (b brokenRecall) Recall(context.Context, string, string) (string, bool, error) {
	return "", false, errors.New("redis: connection refused")
}

func TestAddToCartLogsRecallFailure(t *testing.T) {
	var buf bytes.Buffer
	logger := zerolog.New(&buf)
	r := NewReconciler(newMemory(), Options{Idempotency: brokenRecall{NewMemoryIdempotency(0)}, Logger: &logger})
	req := parisRequest()
	req.IdempotencyKey = "key-5"

	res, err := r.AddToCart(context.Background(), store, req)
	require.NoError(t, err)
	assert.Equal(t, OutcomeCreated, res.Outcome)
	assert.Contains(t, buf.String(), "idempotency recall failed")
	assert.Contains(t, buf.String(), `"level":"warn"`)
}
