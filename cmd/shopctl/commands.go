package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/rl1809/shop/internal/app"
	"github.com/rl1809/shop/internal/config"
	"github.com/rl1809/shop/internal/core/domain"
	"github.com/rl1809/shop/internal/platform/observability"
)

type seedProduct struct {
	name  string
	price string
	stock int
}

var (
	seedAdminEmail    = "admin@example.com"
	seedAdminPassword = "admin123"
	seedProducts      = []seedProduct{
		{name: "Chips", price: "1.50", stock: 100},
		{name: "Cola", price: "1.20", stock: 80},
	}
)

type rootOptions struct {
	configPath string
	timeout    time.Duration
}

// openInfra is swapped in tests.
var openInfra = func(ctx context.Context, opts *rootOptions) (*app.Infrastructure, error) {
	cfg, err := config.Load(opts.configPath)
	if err != nil {
		return nil, err
	}
	logger, err := observability.NewLogger(cfg.Log)
	if err != nil {
		return nil, err
	}
	return app.NewInfrastructure(ctx, cfg, logger)
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}

	root := &cobra.Command{
		Use:           "shopctl",
		Short:         "Operator commands for the shop database",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&opts.configPath, "config", "", "path to YAML config file")
	root.PersistentFlags().DurationVar(&opts.timeout, "timeout", 30*time.Second, "overall command timeout")

	root.AddCommand(
		newMigrateCmd(opts),
		newSeedCmd(opts),
		newMakeAdminCmd(opts),
	)
	return root
}

func withInfra(opts *rootOptions, fn func(ctx context.Context, infra *app.Infrastructure, out io.Writer) error) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, _ []string) error {
		ctx, cancel := context.WithTimeout(cmd.Context(), opts.timeout)
		defer cancel()

		infra, err := openInfra(ctx, opts)
		if err != nil {
			return err
		}
		defer infra.Close()

		return fn(ctx, infra, cmd.OutOrStdout())
	}
}

func newMigrateCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create the database schema",
		Args:  cobra.NoArgs,
		RunE: withInfra(opts, func(ctx context.Context, infra *app.Infrastructure, out io.Writer) error {
			if err := infra.Migrate(ctx); err != nil {
				return err
			}
			fmt.Fprintln(out, "schema is up to date")
			return nil
		}),
	}
}

func newSeedCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "seed",
		Short: "Create the schema, a default admin and sample products",
		Args:  cobra.NoArgs,
		RunE: withInfra(opts, func(ctx context.Context, infra *app.Infrastructure, out io.Writer) error {
			if err := infra.Migrate(ctx); err != nil {
				return err
			}
			return seed(ctx, infra, out)
		}),
	}
}

func seed(ctx context.Context, infra *app.Infrastructure, out io.Writer) error {
	admin, err := infra.Accounts.Register(ctx, seedAdminEmail, seedAdminPassword)
	switch {
	case errors.Is(err, domain.ErrDuplicateEmail):
		fmt.Fprintf(out, "admin %s already exists\n", seedAdminEmail)
	case err != nil:
		return fmt.Errorf("create admin: %w", err)
	default:
		if _, err := infra.Accounts.PromoteByEmail(ctx, admin.Email); err != nil {
			return fmt.Errorf("promote admin: %w", err)
		}
		fmt.Fprintf(out, "created admin %s\n", admin.Email)
	}

	existing, err := infra.Catalog.ListProducts(ctx)
	if err != nil {
		return err
	}
	have := make(map[string]bool, len(existing))
	for _, p := range existing {
		have[strings.ToLower(p.Name)] = true
	}

	for _, sp := range seedProducts {
		if have[strings.ToLower(sp.name)] {
			continue
		}
		now := time.Now().UTC()
		p, err := infra.DB.CreateProduct(ctx, domain.Product{
			Name:      sp.name,
			Price:     decimal.RequireFromString(sp.price),
			Stock:     sp.stock,
			CreatedAt: now,
			UpdatedAt: now,
		})
		if err != nil {
			return fmt.Errorf("create product %s: %w", sp.name, err)
		}
		infra.Logger.Info("seeded product", zap.Int64("product_id", p.ID), zap.String("name", p.Name))
		fmt.Fprintf(out, "created product %s (%s x %d)\n", p.Name, p.Price.StringFixed(2), p.Stock)
	}
	return nil
}

func newMakeAdminCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "make-admin <email>",
		Short: "Grant the admin role to an existing user",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			email := args[0]
			return withInfra(opts, func(ctx context.Context, infra *app.Infrastructure, out io.Writer) error {
				user, err := infra.Accounts.PromoteByEmail(ctx, email)
				if errors.Is(err, domain.ErrNotFound) {
					return fmt.Errorf("no user with email %s", email)
				}
				if err != nil {
					return err
				}
				fmt.Fprintf(out, "%s is now an admin\n", user.Email)
				return nil
			})(cmd, args)
		},
	}
}
