package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/joho/godotenv"
	"github.com/lbot-tgbot-go/internal/commands"
	"github.com/lbot-tgbot-go/internal/config"
	"github.com/lbot-tgbot-go/internal/handlers"
	"github.com/lbot-tgbot-go/internal/i18n"
	"github.com/lbot-tgbot-go/internal/middleware"
	"github.com/lbot-tgbot-go/internal/router"
	"github.com/lbot-tgbot-go/internal/services/cache"
	"github.com/lbot-tgbot-go/internal/services/classifier"
	"github.com/lbot-tgbot-go/internal/services/storage"
	"github.com/lbot-tgbot-go/internal/text"
	"github.com/lbot-tgbot-go/pkg/logger"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

func main() {
	// Parse command line flags
	configPath := flag.String("config", "configs/config.yaml", "Path to configuration file")
	envFile := flag.String("env", ".env", "Path to .env file")
	flag.Parse()

	// Load .env file if exists
	if err := godotenv.Load(*envFile); err != nil {
		// It's okay if .env doesn't exist
		fmt.Printf("Warning: .env file not found: %v\n", err)
	}

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		fmt.Printf("Failed to load config: %v\n", err)
		os.Exit(1)
	}

	log, err := logger.NewLogger(&cfg.Logging)
	if err != nil {
		fmt.Printf("Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}

	if err := run(cfg, log); err != nil {
		log.WithError(err).Fatal("Bot stopped with error")
	}
	log.Info("Bot stopped")
}

func run(cfg *config.Config, log *logrus.Logger) error {
	log.Info("Starting Telegram Bot...")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	bot, err := tgbotapi.NewBotAPI(cfg.Bot.Token)
	if err != nil {
		return fmt.Errorf("failed to create bot: %w", err)
	}
	bot.Debug = cfg.Logging.Level == "debug"
	bot.Buffer = cfg.Bot.QueueSize
	log.WithField("username", bot.Self.UserName).Info("Bot authorized")

	metrics := middleware.NewMetrics()

	storageManager, err := storage.NewManager(cfg, log, metrics)
	if err != nil {
		return fmt.Errorf("failed to initialize storage: %w", err)
	}
	defer storageManager.Close()

	var labels cache.Service
	if cfg.Classifier.Type != config.ClassifierNone && cfg.Classifier.Cache.Enabled {
		labels, err = cache.NewCache(&cfg.Classifier.Cache, log)
		if err != nil {
			return fmt.Errorf("failed to initialize classifier cache: %w", err)
		}
		if closer, ok := labels.(io.Closer); ok {
			defer closer.Close()
		}
	}

	classifierService, err := classifier.New(ctx, &cfg.Classifier, labels, metrics, log)
	if err != nil {
		return fmt.Errorf("failed to initialize classifier: %w", err)
	}
	defer classifierService.Close()

	localizer, err := i18n.NewLocalizer(&cfg.I18n)
	if err != nil {
		return fmt.Errorf("failed to initialize i18n: %w", err)
	}

	rateLimiter := middleware.NewRateLimiter(&cfg.RateLimit, log)
	defer rateLimiter.Stop()

	parser := commands.NewParser(cfg.Bot.CommandPrefix, bot.Self.UserName)
	if err := registerCommands(bot); err != nil {
		// Cosmetic only; the bot still parses commands without it
		log.WithError(err).Warn("Failed to register bot commands")
	}

	transport := handlers.NewTransport(bot, log)
	messageRouter := router.NewRouter(
		storageManager,
		classifierService,
		text.NewNormalizer(cfg.Normalizer.Language),
		parser,
		router.NewUniformSelector(),
		transport,
		localizer,
		metrics,
		router.Options{
			ClassifierTimeout:  cfg.Classifier.Timeout,
			ClassifierLanguage: cfg.Classifier.Language,
			UseClientLanguage:  cfg.Classifier.UseClientLanguage,
		},
		log,
	)
	messageHandler := handlers.NewMessageHandler(bot.Self.ID, messageRouter, transport, rateLimiter, metrics, log)
	dispatcher := handlers.NewDispatcher(cfg.Bot.Workers, messageHandler.HandleUpdate, log)

	g, ctx := errgroup.WithContext(ctx)

	if cfg.Monitoring.Metrics.Enabled {
		g.Go(func() error {
			log.WithFields(logrus.Fields{
				"port": cfg.Monitoring.Metrics.Port,
				"path": cfg.Monitoring.Metrics.Path,
			}).Info("Starting metrics server")
			return middleware.StartMetricsServer(ctx, cfg.Monitoring.Metrics.Port, cfg.Monitoring.Metrics.Path, log)
		})
	}

	updates, err := startUpdates(ctx, g, bot, cfg, log)
	if err != nil {
		return err
	}

	g.Go(func() error {
		return dispatcher.Run(ctx, updates)
	})

	g.Go(func() error {
		startPeriodicTasks(ctx, storageManager, metrics, log)
		return nil
	})

	<-ctx.Done()
	log.Info("Shutdown signal received")

	if cfg.Bot.Webhook.Enabled {
		if _, err := bot.Request(tgbotapi.DeleteWebhookConfig{}); err != nil {
			log.WithError(err).Error("Failed to delete webhook")
		}
	} else {
		bot.StopReceivingUpdates()
	}

	return g.Wait()
}

// registerCommands publishes the command list shown by Telegram clients
func registerCommands(bot *tgbotapi.BotAPI) error {
	specs := commands.All()
	botCommands := make([]tgbotapi.BotCommand, 0, len(specs))
	for _, s := range specs {
		botCommands = append(botCommands, tgbotapi.BotCommand{
			Command:     s.Name,
			Description: s.Description,
		})
	}
	_, err := bot.Request(tgbotapi.NewSetMyCommands(botCommands...))
	return err
}

// startUpdates sets up webhook or long polling delivery
func startUpdates(ctx context.Context, g *errgroup.Group, bot *tgbotapi.BotAPI, cfg *config.Config, log *logrus.Logger) (tgbotapi.UpdatesChannel, error) {
	if !cfg.Bot.Webhook.Enabled {
		u := tgbotapi.NewUpdate(0)
		u.Timeout = cfg.Bot.UpdateTimeout
		log.Info("Using long polling")
		return bot.GetUpdatesChan(u), nil
	}

	webhookURL := fmt.Sprintf("%s/%s", cfg.Bot.Webhook.URL, bot.Token)
	webhook, err := tgbotapi.NewWebhook(webhookURL)
	if err != nil {
		return nil, fmt.Errorf("failed to create webhook: %w", err)
	}
	if _, err := bot.Request(webhook); err != nil {
		return nil, fmt.Errorf("failed to set webhook: %w", err)
	}

	updates := bot.ListenForWebhook("/" + bot.Token)
	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Bot.Webhook.Port),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}

	g.Go(func() error {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("webhook server failed: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})

	log.WithField("port", cfg.Bot.Webhook.Port).Info("Webhook set")
	return updates, nil
}

// startPeriodicTasks refreshes the stored row gauges
func startPeriodicTasks(ctx context.Context, manager *storage.Manager, metrics *middleware.Metrics, log *logrus.Logger) {
	ticker := time.NewTicker(5 * time.Minute)
	defer ticker.Stop()

	update := func() {
		counts, err := manager.Counts(ctx)
		if err != nil {
			log.WithError(err).Warn("Failed to count stored rows")
			return
		}
		metrics.SetStoredRows("members", counts.Members)
		metrics.SetStoredRows("stats", counts.Stats)
		metrics.SetStoredRows("phrases", counts.Phrases)
		metrics.SetStoredRows("responses", counts.Responses)
	}

	update()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			update()
		}
	}
}
