package main

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/avolkov/carpoolbot/internal/api"
	"github.com/avolkov/carpoolbot/internal/config"
	"github.com/avolkov/carpoolbot/internal/handlers"
	"github.com/avolkov/carpoolbot/internal/repository/postgres"
	"github.com/avolkov/carpoolbot/internal/service"
	"github.com/avolkov/carpoolbot/internal/telegram"
	"github.com/avolkov/carpoolbot/pkg/logger"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	l := logger.New(cfg.LogLevel, cfg.LogFormat)
	l.Info("Starting CarpoolBot...")

	// Database
	db, err := config.NewDatabase(cfg.DatabaseURL, l)
	if err != nil {
		l.Fatalf("Failed to connect to database: %v", err)
	}
	defer db.Close()

	// Run migrations
	if err := db.Migrate(cfg.MigrationsPath); err != nil {
		l.Fatalf("Failed to run migrations: %v", err)
	}

	store := postgres.NewStore(db.DB)

	// Telegram bot
	bot, err := telegram.NewBot(cfg.TelegramToken, l)
	if err != nil {
		l.Fatalf("Failed to create Telegram bot: %v", err)
	}

	// Service layer. The notifier needs the service for name lookups and
	// the service needs the notifier for event delivery, so the service is
	// built first and the dispatcher injected via the directory interface.
	var notifier *telegram.Notifier
	svc := service.New(store, service.DispatcherFunc(func(ctx context.Context, e service.Event) error {
		return notifier.Notify(ctx, e)
	}), l)
	notifier = telegram.NewNotifier(bot, svc, l)

	// Register command handlers
	bot.RegisterCommand("start", handlers.NewStartHandler(svc, l))
	bot.RegisterCommand("help", handlers.NewHelpHandler(l))

	// Trip handlers
	bot.RegisterCommand("trip", handlers.NewTripHandler(svc, l))
	bot.RegisterCommand("deletetrip", handlers.NewDeleteTripHandler(svc, l))
	bot.RegisterCommand("cars", handlers.NewCarsHandler(svc, l))
	bot.RegisterCommand("status", handlers.NewStatusHandler(svc, l))

	// Driver handlers
	bot.RegisterCommand("car", handlers.NewCarHandler(svc, l))
	bot.RegisterCommand("seats", handlers.NewSeatsHandler(svc, l))
	bot.RegisterCommand("delete", handlers.NewDeleteCarHandler(svc, l))
	bot.RegisterCommand("add", handlers.NewAddHandler(svc, l))
	bot.RegisterCommand("boot", handlers.NewBootHandler(svc, l))

	// Rider handlers
	bot.RegisterCommand("needride", handlers.NewNeedRideHandler(svc, l))
	bot.RegisterCommand("in", handlers.NewInHandler(svc, l))
	bot.RegisterCommand("cancel", handlers.NewCancelHandler(svc, l))
	bot.RegisterCommand("out", handlers.NewOutHandler(svc, l))

	// Inline keyboard callbacks for join request decisions
	bot.RegisterCallback(telegram.CallbackApprove, handlers.NewApprovalCallback(svc, l, true))
	bot.RegisterCallback(telegram.CallbackDeny, handlers.NewApprovalCallback(svc, l, false))

	// Seats are freed when someone leaves the group
	bot.RegisterMemberLeft(handlers.NewChatLeftHandler(svc, l))

	// Context for graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-sigChan
		l.Info("Received shutdown signal...")
		cancel()
	}()

	// HTTP server: read API, metrics, and the webhook endpoint when enabled
	apiServer := api.NewServer(svc, l)
	mux := http.NewServeMux()
	mux.Handle("/", apiServer.Handler())

	// Telegram updates: webhook when configured, long polling otherwise
	if cfg.WebhookURL != "" {
		if err := bot.SetWebhook(cfg.WebhookURL); err != nil {
			l.Fatalf("Failed to set webhook: %v", err)
		}
		mux.HandleFunc("POST /telegram/webhook", func(w http.ResponseWriter, r *http.Request) {
			var update tgbotapi.Update
			if err := json.NewDecoder(r.Body).Decode(&update); err != nil {
				http.Error(w, "malformed update", http.StatusBadRequest)
				return
			}
			bot.HandleWebhook(update)
			w.WriteHeader(http.StatusOK)
		})
	} else {
		go func() {
			if err := bot.Start(ctx); err != nil {
				l.Errorf("Bot error: %v", err)
			}
		}()
	}

	httpServer := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: mux,
	}

	go func() {
		l.Infof("HTTP server listening on :%s", cfg.Port)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			l.Errorf("HTTP server error: %v", err)
		}
	}()

	l.Info("CarpoolBot started successfully")

	<-ctx.Done()

	l.Info("Shutting down HTTP server...")
	httpServer.Close()

	l.Info("CarpoolBot stopped")
}
