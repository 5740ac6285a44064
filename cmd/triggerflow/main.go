package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"triggerflow/internal/adapters/cache/redis"
	"triggerflow/internal/adapters/orderstore/memory"
	"triggerflow/internal/adapters/orderstore/postgresql"
	"triggerflow/internal/adapters/pricestream/ws"
	"triggerflow/internal/adapters/quotes/jupiter"
	"triggerflow/internal/adapters/swap"
	"triggerflow/internal/adapters/wallet/local"
	"triggerflow/internal/adapters/web"
	"triggerflow/internal/application/ports"
	"triggerflow/internal/config"
	"triggerflow/internal/engine"
	"triggerflow/internal/logger"
	"triggerflow/internal/pricing"
)

func main() {
	var (
		port = flag.Int("port", 8080, "Port number")
		help = flag.Bool("help", false, "Show help")
	)
	flag.Parse()

	if *help {
		printUsage()
		return
	}

	// Initialize logger
	log := logger.New()

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Error("Failed to load configuration", "error", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Initialize order store
	var store ports.OrderRepository
	if cfg.Database.Host != "" {
		store, err = postgresql.New(cfg.Database)
		if err != nil {
			log.Error("Failed to initialize order store", "error", err)
			os.Exit(1)
		}
	} else {
		log.Info("No database configured, using in-memory order store")
		store = memory.New()
	}
	defer store.Close()

	// Initialize the shared quote cache tier
	var quoteCache ports.QuoteCache
	if cfg.Cache.Addr != "" {
		quoteCache, err = redis.New(cfg.Cache)
		if err != nil {
			log.Error("Failed to initialize quote cache", "error", err)
			os.Exit(1)
		}
		defer quoteCache.Close()
	}

	// Initialize the aggregator client and signing wallet
	quotes := jupiter.New(cfg.Quotes)
	signer, err := local.New(cfg.Wallet.KeypairFile)
	if err != nil {
		log.Error("Failed to load wallet keypair", "error", err)
		os.Exit(1)
	}
	log.Info("Wallet loaded", "wallet", signer.PublicKey())

	// Initialize pricing
	cache := pricing.NewCache(quotes, quoteCache, log)

	var push ports.PushSource
	if cfg.Feed.PushURL != "" {
		push = ws.New(cfg.Feed.PushURL)
	}

	var feedOpts []pricing.FeedOption
	if cfg.Feed.PollIntervalSeconds > 0 {
		feedOpts = append(feedOpts, pricing.WithPollInterval(time.Duration(cfg.Feed.PollIntervalSeconds)*time.Second))
	}
	feed := pricing.NewFeed(quotes, push, cache, log, feedOpts...)

	// Initialize the execution pipeline
	executor := swap.New(quotes, quotes, cfg.RPC, cfg.Quotes, log)

	var coordOpts []engine.CoordinatorOption
	if cfg.Engine.ExecuteTimeoutSeconds > 0 {
		coordOpts = append(coordOpts, engine.WithExecuteTimeout(time.Duration(cfg.Engine.ExecuteTimeoutSeconds)*time.Second))
	}
	if cfg.Engine.StuckThresholdMinutes > 0 {
		coordOpts = append(coordOpts, engine.WithStuckThreshold(time.Duration(cfg.Engine.StuckThresholdMinutes)*time.Minute))
	}
	coordinator := engine.NewCoordinator(store, cache, executor, signer, log, coordOpts...)

	var engineOpts []engine.EngineOption
	if cfg.Engine.ScanIntervalSeconds > 0 {
		engineOpts = append(engineOpts, engine.WithScanInterval(time.Duration(cfg.Engine.ScanIntervalSeconds)*time.Second))
	}
	orderEngine := engine.New(store, feed, coordinator, log, engineOpts...)

	if err := orderEngine.Start(ctx); err != nil {
		log.Error("Failed to start order engine", "error", err)
		os.Exit(1)
	}

	// Initialize web server
	serverPort := *port
	if cfg.Server.Port != 0 && serverPort == 8080 {
		serverPort = cfg.Server.Port
	}
	webServer := web.NewServer(serverPort, orderEngine, cache, quotes, log)

	go func() {
		if err := webServer.Start(); err != nil {
			log.Error("Failed to start web server", "error", err)
			cancel()
		}
	}()

	// Wait for shutdown signal
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-sigChan:
		log.Info("Received shutdown signal")
	case <-ctx.Done():
		log.Info("Context cancelled")
	}

	// Graceful shutdown
	log.Info("Shutting down gracefully...")
	webServer.Shutdown(context.Background())
	orderEngine.Stop()
	log.Info("Shutdown complete")
}

func printUsage() {
	fmt.Println("Usage:")
	fmt.Println("  triggerflow [--port <N>]")
	fmt.Println("  triggerflow --help")
	fmt.Println()
	fmt.Println("Options:")
	fmt.Println("  --port N     Port number")
}
