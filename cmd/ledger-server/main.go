package main

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"sort"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/carehub/ledger/internal/config"
	"github.com/carehub/ledger/internal/domain/facility"
	"github.com/carehub/ledger/internal/ledger"
	"github.com/carehub/ledger/internal/platform/db"
	"github.com/carehub/ledger/internal/platform/remote"
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "ledger-server",
		Short: "Admin workflow and resource ledger",
	}

	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(migrateCmd())
	rootCmd.AddCommand(canonicalCmd())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func newLogger(env string) zerolog.Logger {
	if env == "development" {
		return zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout}).With().Timestamp().Logger()
	}
	return zerolog.New(os.Stdout).With().Timestamp().Logger()
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the admin API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer()
		},
	}
}

func migrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Run database migrations",
	}
	cmd.PersistentFlags().String("dir", "./migrations", "Path to migrations directory")

	cmd.AddCommand(&cobra.Command{
		Use:   "up",
		Short: "Apply pending migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			dir, _ := cmd.Flags().GetString("dir")
			return withMigrator(cmd.Context(), dir, func(ctx context.Context, m *db.Migrator) error {
				count, err := m.Up(ctx)
				if err != nil {
					return fmt.Errorf("migration failed: %w", err)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Applied %d migration(s).\n", count)
				return nil
			})
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "status",
		Short: "Show migration status",
		RunE: func(cmd *cobra.Command, args []string) error {
			dir, _ := cmd.Flags().GetString("dir")
			return withMigrator(cmd.Context(), dir, func(ctx context.Context, m *db.Migrator) error {
				statuses, err := m.Status(ctx)
				if err != nil {
					return fmt.Errorf("migration status: %w", err)
				}
				printStatuses(cmd.OutOrStdout(), statuses)
				return nil
			})
		},
	})
	return cmd
}

func withMigrator(ctx context.Context, dir string, fn func(context.Context, *db.Migrator) error) error {
	if ctx == nil {
		ctx = context.Background()
	}
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	pool, err := db.NewPool(ctx, poolSettings(cfg))
	if err != nil {
		return err
	}
	defer pool.Close()
	return fn(ctx, db.NewMigrator(pool, os.DirFS(dir)))
}

func printStatuses(w io.Writer, statuses []db.MigrationStatus) {
	fmt.Fprintf(w, "%-10s %-40s %-10s %s\n", "VERSION", "NAME", "STATUS", "APPLIED AT")
	for _, s := range statuses {
		status, appliedAt := "pending", ""
		if s.Applied {
			status = "applied"
			if s.AppliedAt != nil {
				appliedAt = s.AppliedAt.Format("2006-01-02 15:04:05")
			}
		}
		fmt.Fprintf(w, "%-10d %-40s %-10s %s\n", s.Version, s.Name, status, appliedAt)
	}
}

func canonicalCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "canonical",
		Short: "Inspect canonical resource rows",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "report",
		Short: "List the canonical bed inventory row per type and the rows it supersedes",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			if ctx == nil {
				ctx = context.Background()
			}
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			pool, err := db.NewPool(ctx, poolSettings(cfg))
			if err != nil {
				return err
			}
			defer pool.Close()

			store := remote.WithTimeout(remote.NewPG(pool), cfg.RemoteCallTimeout)
			return canonicalReport(ctx, cmd.OutOrStdout(), facility.NewRepository(store))
		},
	})
	return cmd
}

// canonicalReport is read-only: it never deletes superseded rows.
func canonicalReport(ctx context.Context, w io.Writer, repo facility.Repository) error {
	rows, err := repo.ListBeds(ctx)
	if err != nil {
		return err
	}
	canon := ledger.Canonicalize(rows)
	dups := ledger.Duplicates(rows)

	fmt.Fprintf(w, "%-16s %-38s %-10s %-10s %s\n", "BED TYPE", "CANONICAL ROW", "AVAILABLE", "TOTAL", "SUPERSEDED")
	for _, b := range ledger.Sorted(canon) {
		var superseded []string
		for _, d := range dups[b.LogicalKey()] {
			superseded = append(superseded, d.ID)
		}
		sort.Strings(superseded)
		fmt.Fprintf(w, "%-16s %-38s %-10d %-10d %v\n", b.LogicalKey(), b.ID, b.AvailableBeds, b.TotalBeds, superseded)
	}
	return nil
}

func runServer() error {
	logger := newLogger(os.Getenv("ENV"))

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to load config")
	}
	if err := cfg.Validate(); err != nil {
		logger.Fatal().Err(err).Msg("invalid configuration")
	}
	if cfg.IsDev() {
		logger.Warn().Msg("development mode: unauthenticated requests act as an administrator")
	}

	ctx := context.Background()
	pool, err := db.NewPool(ctx, poolSettings(cfg))
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect to database")
	}
	defer pool.Close()
	logger.Info().Msg("connected to database")

	store := remote.WithTimeout(remote.NewPG(pool), cfg.RemoteCallTimeout)
	a := newApp(cfg, store, pool, newRegistry(), logger)
	defer a.close()

	sweeper, err := a.sweep(cfg.SweepSchedule, cfg.RequestTimeout)
	if err != nil {
		return fmt.Errorf("schedule sweep: %w", err)
	}
	logger.Info().Str("schedule", cfg.SweepSchedule).Msg("reconciliation sweep scheduled")

	go func() {
		addr := ":" + cfg.Port
		logger.Info().Str("addr", addr).Msg("starting server")
		if err := a.echo.Start(addr); err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("server error")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info().Msg("shutting down server")
	<-sweeper.Stop().Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := a.echo.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown: %w", err)
	}
	logger.Info().Msg("server stopped")
	return nil
}

func poolSettings(cfg *config.Config) db.PoolSettings {
	return db.PoolSettings{
		DatabaseURL:       cfg.DatabaseURL,
		MaxConns:          cfg.DBMaxConns,
		MinConns:          cfg.DBMinConns,
		MaxConnIdleTime:   cfg.DBMaxConnIdle,
		HealthCheckPeriod: cfg.DBHealthCheck,
	}
}
