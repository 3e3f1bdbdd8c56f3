package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/grantorhq/grantor/internal/cache"
	cachememory "github.com/grantorhq/grantor/internal/cache/memory"
	cacheredis "github.com/grantorhq/grantor/internal/cache/redis"
	"github.com/grantorhq/grantor/internal/config"
	httpserver "github.com/grantorhq/grantor/internal/http"
	"github.com/grantorhq/grantor/internal/identity"
	"github.com/grantorhq/grantor/internal/oauth"
	"github.com/grantorhq/grantor/internal/observability/logger"
	"github.com/grantorhq/grantor/internal/store/core"
	storememory "github.com/grantorhq/grantor/internal/store/memory"
	"github.com/grantorhq/grantor/internal/store/pg"
	migrations "github.com/grantorhq/grantor/migrations/postgres"
)

var version = "dev"

func main() {
	var (
		configPath string
		envFile    string
	)

	root := &cobra.Command{
		Use:           "grantor",
		Short:         "OAuth2 authorization server",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			// Missing .env is fine; env vars may come from the runtime.
			_ = godotenv.Load(envFile)
		},
	}
	root.PersistentFlags().StringVarP(&configPath, "config", "c", "", "path to config.yaml")
	root.PersistentFlags().StringVar(&envFile, "env-file", ".env", "path to .env file")

	root.AddCommand(serveCmd(&configPath), migrateCmd(&configPath))

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func serveCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the authorization server",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(*configPath)
			if err != nil {
				return err
			}
			logger.Init(logger.Config{
				Env:         cfg.App.Env,
				Level:       cfg.Log.Level,
				ServiceName: "grantor",
				Version:     version,
			})
			defer logger.Sync()

			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			store, err := openStore(ctx, cfg)
			if err != nil {
				return err
			}
			defer store.Close()

			if cfg.Storage.Migrate {
				if pgStore, ok := store.(*pg.Store); ok {
					if err := pgStore.Migrate(ctx, migrations.FS, migrations.Dir); err != nil {
						return fmt.Errorf("migrate: %w", err)
					}
				}
			}

			registry := oauth.NewRegistry(oauth.RegistryDeps{
				Clients: store.Clients(),
				Cache:   openCache(cfg),
			})
			codes := oauth.NewCodeLedger(oauth.CodeLedgerDeps{
				Codes: store.Codes(),
				TTL:   cfg.OAuth.CodeTTL,
			})
			tokens := oauth.NewTokenLedger(oauth.TokenLedgerDeps{
				Store:      store.Tokens(),
				Secret:     []byte(cfg.OAuth.SigningSecret),
				Issuer:     cfg.OAuth.Issuer,
				AccessTTL:  cfg.OAuth.AccessTTL,
				RefreshTTL: cfg.OAuth.RefreshTTL,
			})
			orch := oauth.NewOrchestrator(oauth.OrchestratorDeps{
				Registry: registry,
				Codes:    codes,
				Tokens:   tokens,
			})

			metricsHandler, err := httpserver.RegisterMetrics(nil)
			if err != nil {
				return fmt.Errorf("metrics: %w", err)
			}
			handlers := httpserver.NewHandlers(httpserver.HandlersDeps{
				Orchestrator: orch,
				Identity:     identity.NewProvider(store.Users()),
				Store:        store,
				AdminAPIKey:  cfg.Admin.APIKey,
			})
			srv := httpserver.NewServer(httpserver.ServerConfig{
				Addr:            cfg.Server.Addr,
				ReadTimeout:     cfg.Server.ReadTimeout,
				WriteTimeout:    cfg.Server.WriteTimeout,
				ShutdownTimeout: cfg.Server.ShutdownTimeout,
			}, httpserver.NewRouter(handlers, metricsHandler))

			sweeper := oauth.NewSweeper(codes, tokens, cfg.OAuth.SweepInterval)

			g, gctx := errgroup.WithContext(ctx)
			g.Go(func() error { return srv.Run(gctx) })
			g.Go(func() error { return sweeper.Run(gctx) })

			err = g.Wait()
			if errors.Is(err, context.Canceled) {
				return nil
			}
			return err
		},
	}
}

func migrateCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending database migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(*configPath)
			if err != nil {
				return err
			}
			if cfg.Storage.Driver != "postgres" {
				return fmt.Errorf("migrate requires storage.driver=postgres, got %q", cfg.Storage.Driver)
			}

			ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
			defer cancel()

			store, err := pg.New(ctx, cfg.Storage.DSN, pg.Config{
				MaxConns:        int32(cfg.Storage.Postgres.MaxConns),
				MinConns:        int32(cfg.Storage.Postgres.MinConns),
				ConnMaxLifetime: cfg.Storage.Postgres.ConnMaxLifetime,
			})
			if err != nil {
				return err
			}
			defer store.Close()

			if err := store.Migrate(ctx, migrations.FS, migrations.Dir); err != nil {
				return err
			}
			fmt.Println("migrations applied")
			return nil
		},
	}
}

func openStore(ctx context.Context, cfg *config.Config) (core.Repository, error) {
	switch cfg.Storage.Driver {
	case "postgres":
		return pg.New(ctx, cfg.Storage.DSN, pg.Config{
			MaxConns:        int32(cfg.Storage.Postgres.MaxConns),
			MinConns:        int32(cfg.Storage.Postgres.MinConns),
			ConnMaxLifetime: cfg.Storage.Postgres.ConnMaxLifetime,
		})
	case "memory":
		return storememory.New(), nil
	default:
		return nil, fmt.Errorf("unknown storage driver %q", cfg.Storage.Driver)
	}
}

func openCache(cfg *config.Config) cache.Cache {
	switch cfg.Cache.Kind {
	case "redis":
		return cacheredis.New(cfg.Cache.Redis.Addr, cfg.Cache.Redis.DB)
	default:
		return cachememory.New(cfg.Cache.Memory.DefaultTTL)
	}
}
