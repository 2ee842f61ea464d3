// Package catalog holds the product table shared by the dimension scaler and
// the pricing engine: physical sizes per tier and every price component.
package catalog

import (
	_ "embed"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"

	"mapengrave/internal/domain"
)

//go:embed default.yaml
var defaultYAML []byte

// PhysicalSize is a portrait print size in inches.
type PhysicalSize struct {
	WidthIn  float64
	HeightIn float64
}

// Tier is one size tier of the catalog.
type Tier struct {
	Size      domain.Size
	Physical  PhysicalSize
	BasePrice decimal.Decimal
}

// Catalog is the parsed, validated product table.
type Catalog struct {
	Currency         string
	FallbackSize     domain.Size
	Tiers            map[domain.Size]Tier
	MaterialPremiums map[string]decimal.Decimal
	PerText          decimal.Decimal
	PerIcon          decimal.Decimal
	Compass          decimal.Decimal
}

type fileTier struct {
	WidthIn   float64 `yaml:"width_in"`
	HeightIn  float64 `yaml:"height_in"`
	BasePrice string  `yaml:"base_price"`
}

type file struct {
	Currency         string              `yaml:"currency"`
	FallbackSize     string              `yaml:"fallback_size"`
	Sizes            map[string]fileTier `yaml:"sizes"`
	MaterialPremiums map[string]string   `yaml:"material_premiums"`
	PerText          string              `yaml:"per_text"`
	PerIcon          string              `yaml:"per_icon"`
	Compass          string              `yaml:"compass"`
}

// Default returns the built-in catalog.
func Default() *Catalog {
	cat, err := Parse(defaultYAML)
	if err != nil {
		panic(fmt.Sprintf("catalog: embedded default invalid: %v", err))
	}
	return cat
}

// Load reads a catalog from path, or returns the default when path is empty.
func Load(path string) (*Catalog, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return Default(), nil
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("catalog: read %s: %w", path, err)
	}
	return Parse(raw)
}

// Parse decodes and validates a YAML catalog.
func Parse(raw []byte) (*Catalog, error) {
	var f file
	if err := yaml.Unmarshal(raw, &f); err != nil {
		return nil, fmt.Errorf("catalog: decode: %w", err)
	}
	cat := &Catalog{
		Currency:         strings.ToUpper(strings.TrimSpace(f.Currency)),
		Tiers:            make(map[domain.Size]Tier, len(f.Sizes)),
		MaterialPremiums: make(map[string]decimal.Decimal, len(f.MaterialPremiums)),
	}
	if cat.Currency == "" {
		cat.Currency = "USD"
	}
	for name, t := range f.Sizes {
		size, ok := domain.NormalizeSize(name)
		if !ok {
			return nil, fmt.Errorf("catalog: unknown size tier %q", name)
		}
		if t.WidthIn <= 0 || t.HeightIn <= 0 {
			return nil, fmt.Errorf("catalog: size %q needs positive dimensions", name)
		}
		price, err := parseAmount("base_price of "+name, t.BasePrice)
		if err != nil {
			return nil, err
		}
		cat.Tiers[size] = Tier{
			Size:      size,
			Physical:  PhysicalSize{WidthIn: t.WidthIn, HeightIn: t.HeightIn},
			BasePrice: price,
		}
	}
	fallback, _ := domain.NormalizeSize(f.FallbackSize)
	if fallback == "" {
		fallback = domain.SizeStandard
	}
	if _, ok := cat.Tiers[fallback]; !ok {
		return nil, fmt.Errorf("catalog: fallback size %q is not defined", fallback)
	}
	cat.FallbackSize = fallback
	for material, amount := range f.MaterialPremiums {
		premium, err := parseAmount("premium of "+material, amount)
		if err != nil {
			return nil, err
		}
		cat.MaterialPremiums[strings.ToLower(strings.TrimSpace(material))] = premium
	}
	var err error
	if cat.PerText, err = parseAmount("per_text", f.PerText); err != nil {
		return nil, err
	}
	if cat.PerIcon, err = parseAmount("per_icon", f.PerIcon); err != nil {
		return nil, err
	}
	if cat.Compass, err = parseAmount("compass", f.Compass); err != nil {
		return nil, err
	}
	return cat, nil
}

// Tier returns the tier for size, or false when the catalog has none.
func (c *Catalog) Tier(size domain.Size) (Tier, bool) {
	t, ok := c.Tiers[size]
	return t, ok
}

// Premium returns the surcharge for material, zero when none applies.
func (c *Catalog) Premium(material string) decimal.Decimal {
	if p, ok := c.MaterialPremiums[strings.ToLower(strings.TrimSpace(material))]; ok {
		return p
	}
	return decimal.Zero
}

func parseAmount(field, value string) (decimal.Decimal, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return decimal.Zero, nil
	}
	d, err := decimal.NewFromString(value)
	if err != nil {
		return decimal.Zero, fmt.Errorf("catalog: %s: %w", field, err)
	}
	if d.IsNegative() {
		return decimal.Zero, errors.New("catalog: " + field + " must not be negative")
	}
	return d, nil
}
