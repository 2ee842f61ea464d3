// Package credentials keeps storefront access tokens in PostgreSQL so they
// can be rotated without redeploying.
package credentials

import (
	"context"
	"errors"
	"strings"

	"mapengrave/internal/infra"
	"mapengrave/internal/sqlinline"
)

var errNoDomain = errors.New("credentials: shop domain is required")

// Store reads and writes one token per shop domain.
type Store struct {
	sql infra.SQLExecutor
}

func NewStore(sql infra.SQLExecutor) *Store {
	return &Store{sql: sql}
}

// StorefrontToken returns the token stored for shopDomain, or "" when none is.
func (s *Store) StorefrontToken(ctx context.Context, shopDomain string) (string, error) {
	d := normalizeDomain(shopDomain)
	if d == "" {
		return "", errNoDomain
	}
	var token string
	if err := s.sql.QueryRow(ctx, sqlinline.QSelectStorefrontToken, d).Scan(&token); err != nil {
		if infra.IsNoRows(err) {
			return "", nil
		}
		return "", err
	}
	return strings.TrimSpace(token), nil
}

// SetStorefrontToken replaces the token of shopDomain.
func (s *Store) SetStorefrontToken(ctx context.Context, shopDomain, token string) error {
	d := normalizeDomain(shopDomain)
	if d == "" {
		return errNoDomain
	}
	token = strings.TrimSpace(token)
	if token == "" {
		return errors.New("credentials: storefront token is required")
	}
	_, err := s.sql.Exec(ctx, sqlinline.QUpsertStorefrontToken, d, token)
	return err
}

// normalizeDomain lowercases a shop domain and strips scheme and trailing slashes.
func normalizeDomain(shopDomain string) string {
	d := strings.ToLower(strings.TrimSpace(shopDomain))
	d = strings.TrimPrefix(d, "https://")
	d = strings.TrimPrefix(d, "http://")
	return strings.TrimRight(d, "/")
}
