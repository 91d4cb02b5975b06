package main

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/italolelis/restricted_saver/internal/batch"
	"github.com/italolelis/restricted_saver/internal/bot"
	"github.com/italolelis/restricted_saver/internal/broadcast"
	"github.com/italolelis/restricted_saver/internal/cleanup"
	"github.com/italolelis/restricted_saver/internal/config"
	"github.com/italolelis/restricted_saver/internal/flood"
	"github.com/italolelis/restricted_saver/internal/http/rest"
	"github.com/italolelis/restricted_saver/internal/logctx"
	"github.com/italolelis/restricted_saver/internal/notifier"
	"github.com/italolelis/restricted_saver/internal/pipeline"
	"github.com/italolelis/restricted_saver/internal/progress"
	"github.com/italolelis/restricted_saver/internal/session"
	"github.com/italolelis/restricted_saver/internal/storage/sqlite"
	"github.com/italolelis/restricted_saver/internal/telegram"
	"github.com/italolelis/restricted_saver/internal/telegram/botapi"
	"github.com/italolelis/restricted_saver/internal/telemetry"
	"golang.org/x/sync/errgroup"

	// Session-layer drivers register themselves on import.
	_ "github.com/italolelis/restricted_saver/internal/telegram/mtproto"
)

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		slog.Error("config error", "err", err)
		os.Exit(1)
	}

	logger := slog.New(logctx.NewTraceHandler(
		slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: cfg.SlogLevel()}),
	))
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	slog.Info("restricted saver starting...", "log_level", cfg.LogLevel)

	if err := run(logctx.WithLogger(ctx, logger), cfg); err != nil {
		slog.Error("fatal error", "err", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config) error {
	logger := logctx.LoggerFromContext(ctx)

	// =========================================================================
	// Start Database
	database, err := sqlite.InitDB(cfg.DBPath)
	if err != nil {
		logger.Error("DB error", "err", err)

		return err
	}
	defer database.Close()

	users := sqlite.NewUserRepository(database)

	if err := os.MkdirAll(cfg.StagingDir, 0o755); err != nil {
		return fmt.Errorf("failed to create staging dir: %w", err)
	}

	// =========================================================================
	// Start Telemetry
	tel, err := telemetry.New("restricted_saver")
	if err != nil {
		return fmt.Errorf("failed to initialize telemetry: %w", err)
	}

	// =========================================================================
	// Start Telegram Surfaces
	messenger := botapi.NewClient(cfg.BotAPIURL, cfg.BotToken)

	dialer, err := telegram.OpenDialer(cfg.SessionDriver)
	if err != nil {
		return fmt.Errorf("failed to open session driver: %w", err)
	}

	var shared telegram.Performer

	if !cfg.LoginSystem {
		shared, err = dialer.DialSession(ctx, cfg.APIID, cfg.APIHash, cfg.StringSession)
		if err != nil {
			return fmt.Errorf("failed to open operator session: %w", err)
		}
		defer shared.Close()
	}

	// =========================================================================
	// Start Orchestration Core
	guard := flood.NewGuard()
	guard.Tel = tel
	monitor := progress.NewMonitor(guard, cfg.ProgressInterval)

	pipe := pipeline.New(messenger, guard, monitor, tel,
		cfg.StagingDir, cfg.ChannelID, cfg.ErrorMessage)

	orch := batch.NewOrchestrator(users, dialer, messenger, pipe, guard, tel,
		shared, cfg.LoginSystem, cfg.WaitingTime, cfg.ChannelID)

	broker := session.NewBroker(users, dialer, tel,
		cfg.APIID, cfg.APIHash, cfg.SessionMinLength, cfg.PromptTimeout, cfg.CodeTimeout)

	bcast := broadcast.NewBroadcaster(users, guard, tel)

	handler := bot.NewHandler(messenger, users, broker, orch, bcast, guard,
		shared, cfg.LoginSystem, cfg.AdminIDs())

	// =========================================================================
	// Start Notification
	setupNotification(ctx, orch, cfg)

	// =========================================================================
	// Start Cleanup
	setupCleanup(ctx, cfg)

	// =========================================================================
	// Start API Service
	server := setupServer(ctx, tel, cfg)

	// =========================================================================
	// Start Main Loop
	updates, err := messenger.Updates(ctx)
	if err != nil {
		return fmt.Errorf("failed to open update stream: %w", err)
	}

	group, gctx := errgroup.WithContext(ctx)

	group.Go(func() error {
		logger.Info("initializing API support", "host", cfg.Web.BindAddress)

		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return fmt.Errorf("server error: %w", err)
		}

		return nil
	})

	group.Go(func() error {
		logger.Info("waiting for updates...",
			"login_system", cfg.LoginSystem,
			"relay_channel", cfg.ChannelID,
			"waiting_time", cfg.WaitingTime.String(),
		)

		for upd := range updates {
			// Independent requesters run concurrently; the orchestrator
			// serializes per requester.
			go handler.HandleUpdate(gctx, upd)
		}

		return nil
	})

	group.Go(func() error {
		<-gctx.Done()
		logger.Info("start shutdown")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Web.ShutdownTimeout)
		defer cancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Error("failed to gracefully shutdown the server", "err", err)

			if err = server.Close(); err != nil {
				return fmt.Errorf("could not stop server gracefully: %w", err)
			}
		}

		return nil
	})

	return group.Wait()
}

// setupNotification forwards per-item batch failures to the ops webhook.
func setupNotification(ctx context.Context, orch *batch.Orchestrator, cfg *config.Config) {
	logger := logctx.LoggerFromContext(ctx)

	var notif notifier.Notifier
	if cfg.OpsWebhookURL != "" {
		notif = &notifier.WebhookNotifier{WebhookURL: cfg.OpsWebhookURL}
	}

	go func() {
		for event := range orch.OnItemFailed {
			logger.Warn("item transfer failed", "requester_id", event.RequesterID, "item_id", event.ItemID)

			if notif == nil {
				continue
			}

			if notifyErr := notif.Notify(ctx, "Transfer failed",
				fmt.Sprintf("Item %d (requester %d)", event.ItemID, event.RequesterID),
			); notifyErr != nil {
				logger.Error("failed to send notification", "err", notifyErr)
			}
		}
	}()
}

// setupServer prepares the liveness and metrics endpoints.
func setupServer(ctx context.Context, tel *telemetry.Telemetry, cfg *config.Config) *http.Server {
	r := chi.NewRouter()
	r.Mount("/", rest.NewStatusHandler(tel).Routes())

	return &http.Server{
		Addr:         cfg.Web.BindAddress,
		ReadTimeout:  cfg.Web.ReadTimeout,
		WriteTimeout: cfg.Web.WriteTimeout,
		IdleTimeout:  cfg.Web.IdleTimeout,
		Handler:      r,
		BaseContext: func(net.Listener) context.Context {
			return ctx
		},
	}
}

func setupCleanup(ctx context.Context, cfg *config.Config) {
	logger := logctx.LoggerFromContext(ctx)

	go func() {
		ticker := time.NewTicker(cfg.CleanupInterval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				logger.Info("cleanup goroutine shutting down")

				return
			case <-ticker.C:
				if err := cleanup.SweepStagingDir(ctx, cfg.StagingDir, cfg.StagingRetention); err != nil {
					logger.Error("failed to sweep staging dir", "err", err)
				}
			}
		}
	}()
}
