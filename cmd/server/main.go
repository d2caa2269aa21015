package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"lims/internal/api"
	"lims/internal/config"
	"lims/internal/db"
	"lims/internal/dsl"
	"lims/internal/logging"
	"lims/internal/reference"
	"lims/internal/resources"
	"lims/internal/tenant"
)

var configFile string

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "lims",
		Short:         "Multi-tenant laboratory backend",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	pf := root.PersistentFlags()
	pf.StringVar(&configFile, "config", "", "Path to config file (yaml/json)")
	pf.String("port", "8080", "HTTP port")
	pf.String("resources-dir", "resources", "Path to resource definitions")
	pf.String("enums-dir", "reference/enums", "Path to value catalogs")
	pf.String("db-url", "sqlite::memory:", "Default tenant database (postgres://... | sqlite:<path>)")
	pf.Bool("auto-migrate", false, "Create missing tables on tenant connect")
	pf.String("log-level", "info", "Log level")
	pf.Bool("log-development", false, "Human-readable console logs")

	root.AddCommand(newServerCmd(), newMigrateCmd(), newLintCmd())
	return root
}

// bootstrap — общая часть команд: конфиг, логгер, описания ресурсов.
func bootstrap(cmd *cobra.Command) (config.Config, *zap.Logger, *api.Registry, error) {
	cfg, err := config.Load(configFile, cmd.Flags())
	if err != nil {
		return cfg, nil, nil, err
	}
	log, err := logging.New(cfg.LogLevel, cfg.LogDevelopment)
	if err != nil {
		return cfg, nil, nil, fmt.Errorf("logger: %w", err)
	}

	rl := api.Reloader{ResourcesDir: cfg.ResourcesDir, EnumsDir: cfg.EnumsDir, Hooks: resources.Hooks(), Log: log}
	reg, err := rl.Load()
	if err != nil {
		return cfg, log, nil, fmt.Errorf("load resources: %w", err)
	}
	log.Info("resources loaded", zap.Strings("resources", reg.Names()), zap.Int("catalogs", len(reg.Catalogs())))
	return cfg, log, reg, nil
}

func migrate(reg *api.Registry, log *zap.Logger) func(name string, c *db.Conn) error {
	return func(name string, c *db.Conn) error {
		ddl, err := db.GenerateDDL(reg.Resources())
		if err != nil {
			return err
		}
		log.Info("applying DDL", zap.String("tenant", name), zap.Int("tables", len(ddl)))
		return db.ApplyDDL(c.DB, ddl, log)
	}
}

func newServerCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "server",
		Short: "Serve the REST API",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, log, reg, err := bootstrap(cmd)
			if err != nil {
				return err
			}
			defer func() { _ = log.Sync() }()

			var poolOpts []tenant.PoolOption
			poolOpts = append(poolOpts, tenant.WithLogger(log))
			if cfg.AutoMigrate {
				poolOpts = append(poolOpts, tenant.WithOnOpen(migrate(reg, log)))
			}
			pool, err := tenant.NewPool(cfg.Tenants, cfg.DefaultTenant, cfg.TenantPoolSize, poolOpts...)
			if err != nil {
				return err
			}
			defer pool.Close()

			if !cfg.LogDevelopment {
				gin.SetMode(gin.ReleaseMode)
			}
			router := api.NewRouter(reg, api.Options{
				Tenant: tenant.Middleware(pool, cfg.TenantHeader),
				Reloader: api.Reloader{
					ResourcesDir: cfg.ResourcesDir,
					EnumsDir:     cfg.EnumsDir,
					Hooks:        resources.Hooks(),
					Log:          log,
				},
				Log: log,
			})

			srv := &http.Server{Addr: cfg.Addr(), Handler: router, ReadHeaderTimeout: 10 * time.Second}
			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			errCh := make(chan error, 1)
			go func() {
				log.Info("listening", zap.String("addr", srv.Addr), zap.Strings("tenants", pool.Names()))
				errCh <- srv.ListenAndServe()
			}()

			select {
			case err := <-errCh:
				if !errors.Is(err, http.ErrServerClosed) {
					return err
				}
				return nil
			case <-ctx.Done():
			}

			log.Info("shutting down")
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		},
	}
}

func newMigrateCmd() *cobra.Command {
	var tenantName string
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Create missing tables for every configured tenant",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, log, reg, err := bootstrap(cmd)
			if err != nil {
				return err
			}
			defer func() { _ = log.Sync() }()

			apply := migrate(reg, log)
			for name, url := range cfg.Tenants {
				if tenantName != "" && tenantName != name {
					continue
				}
				conn, err := db.Open(url)
				if err != nil {
					return fmt.Errorf("tenant %s: %w", name, err)
				}
				err = apply(name, conn)
				_ = conn.Close()
				if err != nil {
					return fmt.Errorf("tenant %s: %w", name, err)
				}
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&tenantName, "tenant", "", "Migrate only this tenant")
	return cmd
}

func newLintCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "lint",
		Short: "Validate resource definitions and catalogs",
		RunE: func(cmd *cobra.Command, _ []string) error {
			dir, _ := cmd.Flags().GetString("resources-dir")
			enums, _ := cmd.Flags().GetString("enums-dir")

			defs, err := dsl.LoadAllResources(dir)
			var issues dsl.Issues
			if errors.As(err, &issues) {
				for _, it := range issues {
					fmt.Fprintf(cmd.OutOrStdout(), "%s.%s [%s] %s\n", it.Resource, it.Field, it.Code, it.Message)
				}
				return fmt.Errorf("%d blocking issue(s)", len(issues))
			}
			if err != nil {
				return err
			}
			catalogs, err := reference.LoadEnumCatalog(enums)
			if err != nil {
				return err
			}
			if _, err := api.BuildRegistry(defs, catalogs, resources.Hooks(), nil); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "ok: %d resources, %d catalogs\n", len(defs), len(catalogs))
			return nil
		},
	}
}
