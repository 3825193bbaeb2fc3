package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sort"
	"strings"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/dropDatabas3/crossjohn/internal/app"
	"github.com/dropDatabas3/crossjohn/internal/config"
	"github.com/dropDatabas3/crossjohn/internal/observability/logger"
	migrations "github.com/dropDatabas3/crossjohn/migrations/postgres"
)

func main() {
	var (
		cfgPath = envOr("CROSSJOHN_CONFIG", "config.yaml")
		envFile = envOr("CROSSJOHN_ENV_FILE", ".env")
		logEnv  = envOr("CROSSJOHN_LOG_ENV", "dev")
		logLvl  = envOr("CROSSJOHN_LOG_LEVEL", "info")
	)

	root := &cobra.Command{
		Use:   "crossjohn",
		Short: "Broker de identidad federada (OAuth2, OIDC, SAML, REST token, local)",
	}
	root.PersistentFlags().StringVar(&cfgPath, "config", cfgPath, "ruta del archivo de configuración YAML")
	root.PersistentFlags().StringVar(&envFile, "env-file", envFile, "archivo .env opcional")

	serveCmd := &cobra.Command{
		Use:   "serve",
		Short: "Levanta el broker HTTP",
		RunE: func(cmd *cobra.Command, args []string) error {
			// .env es opcional; si no existe seguimos con el entorno real
			_ = godotenv.Load(envFile)

			logger.Init(logger.Config{Env: logEnv, Level: logLvl, ServiceName: "crossjohn"})
			defer func() { _ = logger.Sync() }()

			cfg, err := config.Load(cfgPath)
			if err != nil {
				return fmt.Errorf("cargar configuración: %w", err)
			}

			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			a, err := app.New(ctx, cfg)
			if err != nil {
				return err
			}
			defer func() { _ = a.Close() }()

			srv := &http.Server{
				Addr:              cfg.Server.Addr,
				Handler:           a.Handler,
				ReadHeaderTimeout: 10 * time.Second,
			}

			errCh := make(chan error, 1)
			go func() {
				logger.L().Info("broker listening", logger.String("addr", cfg.Server.Addr))
				errCh <- srv.ListenAndServe()
			}()

			select {
			case err := <-errCh:
				if err != nil && !errors.Is(err, http.ErrServerClosed) {
					return err
				}
			case <-ctx.Done():
				logger.L().Info("shutdown signal received")
				shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
				defer cancel()
				if err := srv.Shutdown(shutdownCtx); err != nil {
					return err
				}
			}
			return nil
		},
	}

	validateCmd := &cobra.Command{
		Use:   "validate",
		Short: "Valida la configuración sin levantar el servicio",
		RunE: func(cmd *cobra.Command, args []string) error {
			_ = godotenv.Load(envFile)
			cfg, err := config.Load(cfgPath)
			if err != nil {
				return err
			}
			if err := cfg.Validate(); err != nil {
				return err
			}
			fmt.Printf("config ok: %d providers, storage=%s\n", len(cfg.Providers), cfg.Storage.Driver)
			return nil
		},
	}

	configCmd := &cobra.Command{
		Use:   "config",
		Short: "Operaciones sobre la configuración",
	}
	configCmd.AddCommand(validateCmd)

	migrateCmd := &cobra.Command{
		Use:   "migrate",
		Short: "Aplica las migraciones de postgres embebidas",
		RunE: func(cmd *cobra.Command, args []string) error {
			_ = godotenv.Load(envFile)
			cfg, err := config.Load(cfgPath)
			if err != nil {
				return err
			}
			if cfg.Storage.Driver != "postgres" {
				return fmt.Errorf("migrate: storage.driver es %q, se requiere postgres", cfg.Storage.Driver)
			}
			return runMigrations(cmd.Context(), cfg.Storage.DSN)
		},
	}

	root.AddCommand(serveCmd, configCmd, migrateCmd)

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

// runMigrations aplica en orden ascendente los *.sql embebidos. Las
// migraciones son idempotentes (CREATE TABLE IF NOT EXISTS), así que correr
// de nuevo es seguro.
func runMigrations(ctx context.Context, dsn string) error {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return fmt.Errorf("migrate: conectar: %w", err)
	}
	defer pool.Close()

	entries, err := migrations.BrokerFS.ReadDir(migrations.BrokerDir)
	if err != nil {
		return err
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if !e.IsDir() && strings.HasSuffix(e.Name(), ".sql") {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)

	for _, name := range names {
		sql, err := migrations.BrokerFS.ReadFile(migrations.BrokerDir + "/" + name)
		if err != nil {
			return err
		}
		if _, err := pool.Exec(ctx, string(sql)); err != nil {
			return fmt.Errorf("migrate: %s: %w", name, err)
		}
		fmt.Println("applied", name)
	}
	return nil
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
