package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	openaiadapter "github.com/cardland/jared-relay/internal/adapters/openai"
	"github.com/cardland/jared-relay/internal/config"
	"github.com/cardland/jared-relay/internal/httpserver"
	"github.com/cardland/jared-relay/internal/observability"
	"github.com/cardland/jared-relay/internal/relay"
	"github.com/cardland/jared-relay/internal/storage/uploads"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load(config.Options{})
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	obs, err := observability.Setup(ctx, cfg.Observability)
	if err != nil {
		log.Fatalf("setup observability: %v", err)
	}
	if obs != nil {
		defer obs.Shutdown(ctx)
	}

	spool, err := uploads.NewSpool(cfg.Uploads)
	if err != nil {
		log.Fatalf("create upload spool: %v", err)
	}
	if err := spool.Sweep(); err != nil {
		log.Printf("spool sweep: %v", err)
	}

	adapter, err := openaiadapter.New(openaiadapter.Options{
		APIKey:  cfg.Provider.OpenAIKey,
		BaseURL: cfg.Provider.BaseURL,
	})
	if err != nil {
		log.Fatalf("construct provider adapter: %v", err)
	}

	svc := relay.NewService(adapter, adapter, relay.Config{
		ChatModel:       cfg.Provider.ChatModel,
		SpeechModel:     cfg.Provider.SpeechModel,
		SpeechVoice:     cfg.Provider.SpeechVoice,
		SpeechFormat:    cfg.Provider.SpeechFormat,
		ProviderTimeout: cfg.Server.ProviderTimeout,
	}, obs)

	server, err := httpserver.New(cfg, svc, spool, obs)
	if err != nil {
		log.Fatalf("construct server: %v", err)
	}

	log.Printf("relay listening on %s", cfg.Server.ListenAddr)
	if err := server.Listen(ctx); err != nil && err != context.Canceled {
		log.Fatalf("server stopped: %v", err)
	}
}
