package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/nahidhasan98/finetune-relay/internal/classifier"
	"github.com/nahidhasan98/finetune-relay/internal/config"
	"github.com/nahidhasan98/finetune-relay/internal/diff"
	"github.com/nahidhasan98/finetune-relay/internal/gitbot"
	"github.com/nahidhasan98/finetune-relay/internal/handlers"
	"github.com/nahidhasan98/finetune-relay/internal/ledger"
	"github.com/nahidhasan98/finetune-relay/internal/logger"
	"github.com/nahidhasan98/finetune-relay/internal/notify"
	"github.com/nahidhasan98/finetune-relay/internal/pipeline"
	"github.com/nahidhasan98/finetune-relay/internal/record"
	"github.com/nahidhasan98/finetune-relay/internal/server"
	"github.com/nahidhasan98/finetune-relay/internal/store"
	"github.com/nahidhasan98/finetune-relay/internal/whatsapp"
)

// Global variables for configuration and services
var (
	cfg      *config.Config
	log      *logger.Logger
	records  store.Store
	hub      *notify.Hub
	natsPub  *notify.NATS
	waClient *whatsapp.Client
	waNotify *notify.WhatsApp
	relay    *pipeline.Pipeline
	errChan  = make(chan error, 2)
)

func main() {
	// Create a context for graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var wg sync.WaitGroup

	if err := initialize(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Initialization error: %v\n", err)
		os.Exit(1)
	}

	startWhatsAppClient(ctx, &wg)
	startWebServer(ctx, &wg)

	waitForShutdown(cancel, &wg)
	closeResources()
}

func initialize(ctx context.Context) error {
	var err error

	cfg, err = config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	log = logger.New(cfg.Log.Level, cfg.Log.Format)
	log.Info("Starting fine-tune relay")

	records, err = store.Open(ctx, cfg.Store)
	if err != nil {
		return fmt.Errorf("failed to open record store: %w", err)
	}
	log.With("store", records.Kind()).Info("Record store ready")

	fetcher, err := diff.NewGitHubFetcher(cfg.GitHub.Token, cfg.GitHub.APIURL, cfg.GitHub.HTTPTimeout, log)
	if err != nil {
		return fmt.Errorf("failed to create diff fetcher: %w", err)
	}

	notifiers, err := buildNotifiers(ctx)
	if err != nil {
		return err
	}

	prompts := ledger.New()
	for _, p := range cfg.Pipeline.SeedPrompts {
		if err := prompts.Append(p); err != nil {
			log.Warnf("Seed prompt skipped: %v", err)
		}
	}
	if n := prompts.Len(); n > 0 {
		log.Infof("Seeded %d prompts", n)
	}

	relay = pipeline.New(
		classifier.New(cfg.Pipeline.BotName),
		fetcher,
		prompts,
		record.NewAssembler(records, notifiers, log),
		log,
	)
	relay.SetFetchLimit(cfg.Pipeline.FetchConcurrency)

	if cfg.Bot.Enabled() {
		committer, err := gitbot.Open(cfg.Bot, cfg.Pipeline.BotName, cfg.GitHub.Token, log)
		if err != nil {
			return fmt.Errorf("failed to open bot repository: %w", err)
		}
		relay.SetPromptCommitter(committer)
		log.With("repo", cfg.Bot.RepoPath).Info("Bot prompt commits enabled")
	}

	return nil
}

func buildNotifiers(ctx context.Context) (*notify.Multi, error) {
	hub = notify.NewHub(cfg.Security.AllowedOrigins, log)
	notifiers := notify.NewMulti(log, hub)

	if cfg.NATS.Enabled() {
		var err error
		natsPub, err = notify.NewNATS(cfg.NATS, log)
		if err != nil {
			return nil, fmt.Errorf("failed to connect to NATS: %w", err)
		}
		notifiers.Add(natsPub)
		log.With("subject", natsPub.Subject()).Info("NATS notifications enabled")
	}

	if cfg.WhatsApp.Enabled() {
		var err error
		waClient, err = whatsapp.New(ctx, cfg.WhatsApp, log)
		if err != nil {
			return nil, fmt.Errorf("failed to create WhatsApp client: %w", err)
		}
		waNotify = notify.NewWhatsApp(waClient, cfg.WhatsApp.Recipient, log)
		notifiers.Add(waNotify)
		log.Info("WhatsApp notifications enabled")
	}

	log.Infof("Notification channels: %v", notifiers.Channels())
	return notifiers, nil
}

func startWhatsAppClient(ctx context.Context, wg *sync.WaitGroup) {
	if waClient == nil {
		return
	}

	wg.Go(func() {
		defer waClient.Disconnect()

		if err := waClient.Connect(ctx); err != nil {
			errChan <- fmt.Errorf("failed to connect to WhatsApp: %w", err)
			return
		}

		// Reconnection is handled by the client
		<-ctx.Done()
		log.Info("WhatsApp client shutting down...")
	})
}

func startWebServer(ctx context.Context, wg *sync.WaitGroup) {
	wg.Go(func() {
		httpHandler := handlers.New(relay, handlers.Status{
			StoreKind:   records.Kind(),
			Subscribers: hub.Subscribers,
		}, log)

		httpServer := server.New(cfg, httpHandler, hub, log)
		httpServer.Start(errChan)

		<-ctx.Done()
		log.Info("HTTP server shutting down...")
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer shutdownCancel()

		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			log.Error("Error during HTTP server shutdown", err)
		}
		hub.Close()
	})
}

func waitForShutdown(cancel context.CancelFunc, wg *sync.WaitGroup) {
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-errChan:
		log.Error("Service failed", err)
	case <-sigChan:
		log.Info("Received shutdown signal")
	}

	cancel()
	wg.Wait()
}

// closeResources runs after the HTTP server has drained
func closeResources() {
	if waNotify != nil {
		waNotify.Wait()
	}
	if natsPub != nil {
		natsPub.Close()
	}
	if err := records.Close(); err != nil {
		log.Error("Failed to close record store", err)
	}
	log.Info("Application stopped")
}
