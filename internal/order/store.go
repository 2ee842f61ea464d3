package order

import (
	"context"
	"fmt"
	"strings"

	"mapengrave/internal/providers/commerce"
)

// StoreResolver returns the store an order is carted into.
type StoreResolver interface {
	StoreConfig(ctx context.Context) (commerce.StoreConfig, error)
}

// TokenSource looks up a storefront access token by shop domain.
type TokenSource interface {
	StorefrontToken(ctx context.Context, shopDomain string) (string, error)
}

// ConfiguredStore resolves to Base, reading the access token from Tokens when
// Base carries none.
type ConfiguredStore struct {
	Base   commerce.StoreConfig
	Tokens TokenSource
}

func (s ConfiguredStore) StoreConfig(ctx context.Context) (commerce.StoreConfig, error) {
	cfg := s.Base
	if strings.TrimSpace(cfg.AccessToken) == "" && s.Tokens != nil && cfg.Domain != "" {
		token, err := s.Tokens.StorefrontToken(ctx, cfg.Domain)
		if err != nil {
			return commerce.StoreConfig{}, fmt.Errorf("order: load storefront token: %w", err)
		}
		cfg.AccessToken = token
	}
	return cfg, nil
}
