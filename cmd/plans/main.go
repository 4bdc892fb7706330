// Command plans manages the plan tier catalog: seeding the default tiers,
// listing them, and binding each paid tier to a Stripe price.
package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/PortNumber53/tubeshelf/backend/internal/logging"
	"github.com/PortNumber53/tubeshelf/backend/internal/models"
	"github.com/PortNumber53/tubeshelf/backend/internal/plans"
	"github.com/joho/godotenv"
	_ "github.com/lib/pq"
	"github.com/spf13/cobra"
	"github.com/stripe/stripe-go/v79"
	"github.com/stripe/stripe-go/v79/client"
)

// PriceCreator creates a recurring monthly price for a tier and returns its id.
type PriceCreator func(ctx context.Context, tier models.PlanTier) (string, error)

type deps struct {
	getenv   func(string) string
	openDB   func(driverName, dataSourceName string) (*sql.DB, error)
	newPrice func(secretKey string) PriceCreator
	out      io.Writer
}

func defaultDeps() deps {
	return deps{getenv: os.Getenv, openDB: sql.Open, newPrice: stripePriceCreator, out: os.Stdout}
}

func main() {
	_ = godotenv.Load()
	logging.Install(os.Stderr, logging.Config{Level: "info", Format: "console"})
	if err := newRootCmd(defaultDeps()).Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd(d deps) *cobra.Command {
	var db *sql.DB
	root := &cobra.Command{
		Use:           "plans",
		Short:         "Manage TubeShelf plan tiers",
		SilenceUsage:  true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			url := strings.TrimSpace(d.getenv("DATABASE_URL"))
			if url == "" {
				return errors.New("DATABASE_URL not set")
			}
			var err error
			db, err = d.openDB("postgres", url)
			if err != nil {
				return fmt.Errorf("open database: %w", err)
			}
			return nil
		},
		PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
			if db != nil {
				return db.Close()
			}
			return nil
		},
	}
	root.SetOut(d.out)
	catalog := func() *plans.Catalog { return plans.NewCatalog(db) }

	root.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "Print every tier",
		RunE: func(cmd *cobra.Command, args []string) error {
			tiers, err := catalog().List(cmd.Context())
			if err != nil {
				return err
			}
			return printTiers(cmd.OutOrStdout(), tiers)
		},
	})

	root.AddCommand(&cobra.Command{
		Use:   "seed",
		Short: "Insert missing default tiers",
		RunE: func(cmd *cobra.Command, args []string) error {
			n, err := catalog().EnsureDefaults(cmd.Context())
			if err != nil {
				return err
			}
			if n == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "Plans already exist, skipping insertion")
				return nil
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Inserted %d default plans\n", n)
			return nil
		},
	})

	root.AddCommand(&cobra.Command{
		Use:   "set-price <tier> <stripe-price-id>",
		Short: "Bind a tier to an existing Stripe price (empty id clears it)",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			tier, ok := models.ParsePlanType(args[0])
			if !ok {
				return fmt.Errorf("unknown tier %q", args[0])
			}
			if err := catalog().SetPrice(cmd.Context(), tier, strings.TrimSpace(args[1])); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Updated %s\n", tier)
			return nil
		},
	})

	root.AddCommand(&cobra.Command{
		Use:   "sync-prices",
		Short: "Create Stripe prices for paid tiers that have none",
		RunE: func(cmd *cobra.Command, args []string) error {
			key := strings.TrimSpace(d.getenv("STRIPE_SECRET_KEY"))
			if key == "" {
				return errors.New("STRIPE_SECRET_KEY not set")
			}
			return syncPrices(cmd.Context(), cmd.OutOrStdout(), catalog(), d.newPrice(key))
		},
	})
	return root
}

func printTiers(w io.Writer, tiers []models.PlanTier) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tNAME\tUPLOADS/MONTH\tPRICE\tSTRIPE PRICE")
	for _, t := range tiers {
		limit := fmt.Sprint(t.MonthlyUploadLimit)
		if t.MonthlyUploadLimit >= models.UnlimitedUploads {
			limit = "unlimited"
		}
		price := "-"
		if t.StripePriceID != nil {
			price = *t.StripePriceID
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%d.%02d %s\t%s\n", t.ID, t.Name, limit,
			t.PriceCents/100, t.PriceCents%100, strings.ToUpper(t.Currency), price)
	}
	return tw.Flush()
}

func syncPrices(ctx context.Context, w io.Writer, catalog *plans.Catalog, create PriceCreator) error {
	tiers, err := catalog.List(ctx)
	if err != nil {
		return err
	}
	for _, t := range tiers {
		if !t.ID.Paid() || t.StripePriceID != nil {
			continue
		}
		id, err := create(ctx, t)
		if err != nil {
			return fmt.Errorf("create price for %s: %w", t.ID, err)
		}
		if err := catalog.SetPrice(ctx, t.ID, id); err != nil {
			return err
		}
		log := logging.Component("plans")
		log.Info().Str("tier", string(t.ID)).Str("price", id).Msg("stripe price created")
		fmt.Fprintf(w, "Created %s for %s\n", id, t.ID)
	}
	return nil
}

func stripePriceCreator(secretKey string) PriceCreator {
	sc := &client.API{}
	sc.Init(secretKey, nil)
	return func(ctx context.Context, t models.PlanTier) (string, error) {
		pp := &stripe.ProductParams{
			Name:     stripe.String("TubeShelf " + t.Name),
			Metadata: map[string]string{"planType": string(t.ID)},
		}
		pp.Context = ctx
		product, err := sc.Products.New(pp)
		if err != nil {
			return "", err
		}
		params := &stripe.PriceParams{
			Currency:   stripe.String(t.Currency),
			UnitAmount: stripe.Int64(int64(t.PriceCents)),
			Product:    stripe.String(product.ID),
			Recurring: &stripe.PriceRecurringParams{
				Interval: stripe.String(string(stripe.PriceRecurringIntervalMonth)),
			},
			Metadata: map[string]string{"planType": string(t.ID)},
		}
		params.Context = ctx
		price, err := sc.Prices.New(params)
		if err != nil {
			return "", err
		}
		return price.ID, nil
	}
}
