// cmd/server/main.go
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
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/javajoker/imi-licensing/internal/cart"
	"github.com/javajoker/imi-licensing/internal/config"
	"github.com/javajoker/imi-licensing/internal/database"
	"github.com/javajoker/imi-licensing/internal/event"
	"github.com/javajoker/imi-licensing/internal/models"
	"github.com/javajoker/imi-licensing/internal/router"
	"github.com/javajoker/imi-licensing/internal/services"
	"github.com/javajoker/imi-licensing/internal/utils"
)

func main() {
	if err := rootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:          "imi",
		Short:        "IP marketplace licensing and authorization engine",
		SilenceUsage: true,
	}
	root.AddCommand(serveCmd(), migrateCmd(), expireCmd(), tokenCmd())
	return root
}

func setup() (*config.Config, *logrus.Entry, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	return cfg, newLogger(cfg.Log), nil
}

func newLogger(cfg config.LogConfig) *logrus.Entry {
	logger := logrus.New()
	if cfg.Format == "json" {
		logger.SetFormatter(&logrus.JSONFormatter{})
	} else {
		logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}
	level, err := logrus.ParseLevel(cfg.Level)
	if err != nil {
		level = logrus.InfoLevel
	}
	logger.SetLevel(level)
	return logrus.NewEntry(logger).WithField("service", "imi")
}

func serveCmd() *cobra.Command {
	var expireEvery time.Duration
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := setup()
			if err != nil {
				return err
			}

			store, err := database.OpenStore(cfg.Database, logger, true)
			if err != nil {
				return err
			}
			defer store.Close()

			cartStore, err := cart.NewBadgerStore(cfg.Cart.DataDir, cfg.Cart.TTL, logger)
			if err != nil {
				return fmt.Errorf("failed to open cart store: %w", err)
			}
			defer cartStore.Close()
			carts := cart.NewManager(cartStore, logger)

			registry := prometheus.NewRegistry()
			registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

			bus := event.NewEventBus(registry, logger)
			defer bus.Stop()
			svc := services.New(store, bus, registry, cfg.Marketplace, logger)

			if cfg.Environment == "production" {
				gin.SetMode(gin.ReleaseMode)
			}
			r := router.Initialize(svc, carts, registry, cfg, logger)

			srv := &http.Server{
				Addr:         fmt.Sprintf("%s:%s", cfg.Server.Host, cfg.Server.Port),
				Handler:      r,
				ReadTimeout:  time.Duration(cfg.Server.ReadTimeout) * time.Second,
				WriteTimeout: time.Duration(cfg.Server.WriteTimeout) * time.Second,
				IdleTimeout:  time.Duration(cfg.Server.IdleTimeout) * time.Second,
			}

			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			if expireEvery > 0 {
				go runExpiry(ctx, svc.License, expireEvery, logger)
			}

			serveErr := make(chan error, 1)
			go func() {
				logger.WithField("addr", srv.Addr).Info("Starting server")
				if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					serveErr <- err
				}
				close(serveErr)
			}()

			select {
			case err := <-serveErr:
				if err != nil {
					return fmt.Errorf("server failed: %w", err)
				}
			case <-ctx.Done():
			}
			logger.Info("Shutting down server...")

			shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Duration(cfg.Server.ShutdownTimeout)*time.Second)
			defer cancel()
			if err := srv.Shutdown(shutdownCtx); err != nil {
				return fmt.Errorf("server forced to shutdown: %w", err)
			}
			logger.Info("Server exited")
			return nil
		},
	}
	cmd.Flags().DurationVar(&expireEvery, "expire-every", 15*time.Minute, "interval for expiring licenses past their term (0 disables)")
	return cmd
}

func runExpiry(ctx context.Context, licenses *services.LicenseService, every time.Duration, logger *logrus.Entry) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			n, err := licenses.ExpireDue(ctx, now)
			if err != nil {
				logger.WithError(err).Error("License expiry sweep failed")
				continue
			}
			if n > 0 {
				logger.WithField("expired", n).Info("Expired licenses")
			}
		}
	}
}

func migrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create or update the database schema",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := setup()
			if err != nil {
				return err
			}
			db, err := database.Initialize(cfg.Database, logger)
			if err != nil {
				return err
			}
			defer database.Close(db, logger)
			return database.RunMigrations(db, logger)
		},
	}
}

func expireCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "expire",
		Short: "Expire approved licenses whose term has ended",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := setup()
			if err != nil {
				return err
			}
			store, err := database.OpenStore(cfg.Database, logger, false)
			if err != nil {
				return err
			}
			defer store.Close()

			bus := event.NewEventBus(nil, logger)
			defer bus.Stop()
			svc := services.New(store, bus, nil, cfg.Marketplace, logger)

			n, err := svc.License.ExpireDue(cmd.Context(), time.Now())
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "expired %d license(s)\n", n)
			return nil
		},
	}
}

func tokenCmd() *cobra.Command {
	var (
		userID string
		role   string
		ttl    int
	)
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Issue a bearer token for an actor",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, _, err := setup()
			if err != nil {
				return err
			}
			id := uuid.New()
			if userID != "" {
				if id, err = uuid.Parse(userID); err != nil {
					return fmt.Errorf("invalid user id: %w", err)
				}
			}
			userType := models.UserType(role)
			if !userType.Valid() {
				return fmt.Errorf("invalid role %q", role)
			}
			if ttl <= 0 {
				ttl = cfg.JWT.AccessTokenTTL
			}

			utils.SetJWTSecret(cfg.JWT.SecretKey)
			token, err := utils.GenerateJWT(id, userType, ttl)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "user_id: %s\ntoken: %s\n", id, token)
			return nil
		},
	}
	cmd.Flags().StringVar(&userID, "user", "", "user id (random when empty)")
	cmd.Flags().StringVar(&role, "role", string(models.UserTypeCreator), "creator, secondary_creator, buyer or admin")
	cmd.Flags().IntVar(&ttl, "ttl", 0, "token lifetime in hours")
	return cmd
}
