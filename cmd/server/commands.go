package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/warp/pos-ledger/api"
	"github.com/warp/pos-ledger/internal/config"
	"github.com/warp/pos-ledger/internal/logger"
	"github.com/warp/pos-ledger/ledger"
	"github.com/warp/pos-ledger/pos"
	"github.com/warp/pos-ledger/reporting"
	"github.com/warp/pos-ledger/store/gormdb"
	"github.com/warp/pos-ledger/store/sqlite"
)

var version = "dev"

func newRootCmd(cfg *config.Config) *cobra.Command {
	root := &cobra.Command{
		Use:           "server",
		Short:         "Point-of-sale ledger and reconciliation server",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return cfg.Validate()
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(contextOf(cmd), cfg)
		},
	}
	root.PersistentFlags().StringVar(&cfg.DBDriver, "driver", cfg.DBDriver, "storage driver: sqlite or postgres")
	root.PersistentFlags().StringVar(&cfg.DBPath, "db", cfg.DBPath, `SQLite database path (":memory:" for in-memory)`)
	root.PersistentFlags().StringVar(&cfg.DatabaseURL, "database-url", cfg.DatabaseURL, "PostgreSQL DSN")

	serve := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(contextOf(cmd), cfg)
		},
	}
	serve.Flags().IntVar(&cfg.Port, "port", cfg.Port, "HTTP server port")
	serve.Flags().DurationVar(&cfg.BalanceCheckInterval, "balance-check", cfg.BalanceCheckInterval, "balance re-check interval (0 disables)")

	migrate := &cobra.Command{
		Use:   "migrate",
		Short: "Create or upgrade the schema and seed number counters",
		RunE: func(cmd *cobra.Command, args []string) error {
			// Opening a store migrates it.
			_, closer, err := openStore(cfg)
			if err != nil {
				return err
			}
			defer closer.Close()
			log := logger.WithComponent("migrate")
			log.Info().Str("driver", cfg.DBDriver).Msg("schema up to date")
			return nil
		},
	}

	recompute := &cobra.Command{
		Use:   "recompute-balances",
		Short: "Rewrite every cached account balance from its movements",
		RunE: func(cmd *cobra.Command, args []string) error {
			store, closer, err := openStore(cfg)
			if err != nil {
				return err
			}
			defer closer.Close()
			svc := ledger.NewService(store, ledger.WithLogger(logger.GetLogger()))
			changed, err := svc.RecomputeAll(contextOf(cmd))
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%d balance(s) corrected\n", changed)
			return nil
		},
	}

	report := &cobra.Command{
		Use:   "report",
		Short: "Print the dashboard summary as JSON",
		RunE: func(cmd *cobra.Command, args []string) error {
			store, closer, err := openStore(cfg)
			if err != nil {
				return err
			}
			defer closer.Close()
			summary, err := buildSummary(contextOf(cmd), cfg, store)
			if err != nil {
				return err
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(summary)
		},
	}

	root.AddCommand(serve, migrate, recompute, report)
	return root
}

// openStore picks the store implementation from the configured driver.
func openStore(cfg *config.Config) (pos.TxStore, io.Closer, error) {
	switch cfg.DBDriver {
	case config.DriverPostgres:
		s, err := gormdb.OpenPostgres(cfg.DatabaseURL, gormdb.Config{Debug: cfg.DBDebug})
		if err != nil {
			return nil, nil, err
		}
		return s, s, nil
	case config.DriverSQLite:
		s, err := sqlite.New(cfg.DBPath)
		if err != nil {
			return nil, nil, err
		}
		return s, s, nil
	}
	return nil, nil, fmt.Errorf("unknown driver %q", cfg.DBDriver)
}

func runServe(ctx context.Context, cfg *config.Config) error {
	log := logger.WithComponent("server")

	store, closer, err := openStore(cfg)
	if err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}
	defer closer.Close()

	if cfg.BalanceCheckInterval > 0 {
		svc := ledger.NewService(store, ledger.WithLogger(logger.GetLogger()))
		sched := ledger.NewBalanceScheduler(svc, cfg.BalanceCheckInterval,
			ledger.WithSchedulerLogger(logger.GetLogger()))
		sched.Start(ctx)
		defer sched.Stop()
	}

	agg := reporting.NewAggregator(reporting.WithLocation(cfg.Location()))
	handler := api.NewHandler(store, agg,
		api.WithLogger(logger.GetLogger()),
		api.WithTopLimit(cfg.ReportTopLimit),
	)

	server := &http.Server{
		Addr:         cfg.Addr(),
		Handler:      api.NewRouter(handler, cfg.CORSOrigins),
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("addr", server.Addr).Str("driver", cfg.DBDriver).Msg("server starting")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server failed: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	log.Info().Msg("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}
	log.Info().Msg("server stopped")
	return nil
}

func buildSummary(ctx context.Context, cfg *config.Config, store pos.TxStore) (reporting.Summary, error) {
	sales, err := store.ListSales(ctx, pos.SaleFilter{})
	if err != nil {
		return reporting.Summary{}, err
	}
	notes, err := store.ListCreditNotes(ctx, pos.SaleFilter{})
	if err != nil {
		return reporting.Summary{}, err
	}
	accounts, err := ledger.NewService(store).AccountsWithBalances(ctx)
	if err != nil {
		return reporting.Summary{}, err
	}
	products, err := store.ListProducts(ctx)
	if err != nil {
		return reporting.Summary{}, err
	}
	agg := reporting.NewAggregator(
		reporting.WithLocation(cfg.Location()),
		reporting.WithResolver(reporting.ResolverFromProducts(products)),
	)
	return agg.Summary(reporting.SummaryInput{
		Sales:       sales,
		CreditNotes: notes,
		Accounts:    accounts,
		Products:    products,
		TopLimit:    cfg.ReportTopLimit,
		Now:         time.Now(),
	}), nil
}

func contextOf(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}
