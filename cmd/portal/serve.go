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

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/frontiertower/guest-portal/internal/api"
	"github.com/frontiertower/guest-portal/internal/auth"
	"github.com/frontiertower/guest-portal/internal/controller"
	"github.com/frontiertower/guest-portal/internal/guest"
	"github.com/frontiertower/guest-portal/internal/settings"
)

const (
	shutdownTimeout   = 30 * time.Second
	readHeaderTimeout = 5 * time.Second
	readTimeout       = 15 * time.Second
	// Long enough for a controller round trip plus the legacy fallbacks.
	writeTimeout = 60 * time.Second
	idleTimeout  = 60 * time.Second
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP API",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}

		logger, err := newLogger(cfg.Log)
		if err != nil {
			return err
		}
		defer logger.Sync()

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		st, err := openStores(ctx, cfg, logger.Named("store"))
		if err != nil {
			return err
		}
		defer st.Close()

		resolver := settings.NewResolver(st.settings, cfg.SettingDefaults())
		bridge := controller.NewBridge(resolver, controller.Config{
			Timeout: cfg.Controller.Timeout,
			Logger:  logger.Named("controller"),
		})

		guests := guest.NewManager(st.db, cfg.Guests.SweepInterval, logger.Named("guest"))
		defer guests.Stop()

		handlerCfg := api.HandlerConfig{
			Authorizer: bridge,
			Guests:     guests,
			Store:      st.settings,
			Resolver:   resolver,
			TokenTTL:   cfg.Admin.TokenTTL,
			Logger:     logger.Named("api"),
		}
		if cfg.Admin.Password != "" {
			keyPair, err := auth.LoadOrGenerateKeyPair(cfg.Admin.KeysDir)
			if err != nil {
				return fmt.Errorf("failed to initialize admin keys: %w", err)
			}
			handlerCfg.JWT = auth.NewJWTService(keyPair, "guest-portal")
			handlerCfg.AdminPassword = cfg.Admin.Password
		} else {
			logger.Warn("admin.password not set, admin API disabled")
		}

		if mode, err := bridge.TestConnection(ctx); err != nil {
			logger.Warn("controller check failed", zap.Error(err))
		} else {
			logger.Info("controller ready", zap.String("mode", mode.Name()))
		}

		srv := &http.Server{
			Addr:              cfg.Server.Addr(),
			Handler:           api.NewRouter(api.NewHandler(handlerCfg)),
			ReadHeaderTimeout: readHeaderTimeout,
			ReadTimeout:       readTimeout,
			WriteTimeout:      writeTimeout,
			IdleTimeout:       idleTimeout,
		}

		errCh := make(chan error, 1)
		go func() {
			logger.Info("HTTP server listening", zap.String("addr", srv.Addr), zap.String("version", Version))
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				errCh <- err
			}
			close(errCh)
		}()

		select {
		case err := <-errCh:
			if err != nil {
				return fmt.Errorf("server error: %w", err)
			}
			return nil
		case <-ctx.Done():
		}

		logger.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("server shutdown: %w", err)
		}

		logger.Info("server stopped cleanly")
		return nil
	},
}
