package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"

	"mapengrave/internal/infra"
	"mapengrave/internal/infra/credentials"
	"mapengrave/internal/providers/commerce"
)

func main() {
	_ = godotenv.Load()

	var (
		domainFlag  string
		tokenFlag   string
		variantFlag string
		queryFlag   string
		skipCheck   bool
	)
	flag.StringVar(&domainFlag, "domain", os.Getenv("STOREFRONT_DOMAIN"), "Shop domain, e.g. maps.myshopify.com")
	flag.StringVar(&tokenFlag, "token", "", "Storefront access token (fallbacks to STOREFRONT_TOKEN)")
	flag.StringVar(&variantFlag, "variant", os.Getenv("STOREFRONT_VARIANT_ID"), "Variant engraved maps are sold as")
	flag.StringVar(&queryFlag, "query", "", "Product search used to list variants while checking the token")
	flag.BoolVar(&skipCheck, "skip-check", false, "Store the token without querying the storefront")
	flag.Parse()

	shopDomain := strings.TrimSpace(domainFlag)
	if shopDomain == "" {
		fmt.Fprintln(os.Stderr, "shop domain is required via -domain or STOREFRONT_DOMAIN")
		os.Exit(1)
	}
	token := strings.TrimSpace(tokenFlag)
	if token == "" {
		token = strings.TrimSpace(os.Getenv("STOREFRONT_TOKEN"))
	}
	if token == "" {
		fmt.Fprintln(os.Stderr, "storefront token is required via -token or STOREFRONT_TOKEN")
		os.Exit(1)
	}

	if !skipCheck {
		cfg := commerce.StoreConfig{
			Domain:      shopDomain,
			AccessToken: token,
			VariantID:   strings.TrimSpace(variantFlag),
			APIVersion:  os.Getenv("STOREFRONT_API_VERSION"),
		}
		ctxCheck, cancelCheck := context.WithTimeout(context.Background(), 15*time.Second)
		err := checkStore(ctxCheck, commerce.NewStorefront(commerce.StorefrontOptions{}), cfg, queryFlag, os.Stdout)
		cancelCheck()
		if err != nil {
			fmt.Fprintf(os.Stderr, "storefront check failed: %v\n", err)
			os.Exit(1)
		}
	}

	dbURL := strings.TrimSpace(os.Getenv("DATABASE_URL"))
	if dbURL == "" {
		fmt.Fprintln(os.Stderr, "DATABASE_URL is required")
		os.Exit(1)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	pool, err := pgxpool.New(ctx, dbURL)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to create pool: %v\n", err)
		os.Exit(1)
	}
	defer pool.Close()

	logger := infra.NewLogger(&infra.Config{AppEnv: "cli"}).With().Str("cmd", "storefronttoken").Str("shop", shopDomain).Logger()
	store := credentials.NewStore(infra.NewSQLRunner(pool, logger))

	ctxExec, cancelExec := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancelExec()
	if err := store.SetStorefrontToken(ctxExec, shopDomain, token); err != nil {
		fmt.Fprintf(os.Stderr, "failed to persist storefront token: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("storefront token for %s stored successfully\n", shopDomain)
}

// checkStore lists the variants matching query with the given token and
// confirms that cfg.VariantID is for sale.
func checkStore(ctx context.Context, backend commerce.Backend, cfg commerce.StoreConfig, query string, w io.Writer) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	products, err := backend.FindProducts(ctx, cfg, commerce.ProductQuery{Query: query, First: 10})
	if err != nil {
		return fmt.Errorf("list products: %w", err)
	}
	for _, p := range products {
		for _, v := range p.Variants {
			fmt.Fprintf(w, "%s\t%s / %s\t%s %s\n", v.ID, p.Title, v.Title, v.Price.Amount.StringFixed(2), v.Price.CurrencyCode)
		}
	}
	v, err := backend.GetVariant(ctx, cfg, cfg.VariantID)
	if err != nil {
		return fmt.Errorf("variant %s: %w", cfg.VariantID, err)
	}
	if !v.AvailableForSale {
		return fmt.Errorf("variant %s is not available for sale", cfg.VariantID)
	}
	return nil
}
