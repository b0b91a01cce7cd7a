package main

import (
	"context"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jwebster45206/tileworld/internal/config"
	"github.com/jwebster45206/tileworld/internal/handlers"
	"github.com/jwebster45206/tileworld/internal/logger"
	"github.com/jwebster45206/tileworld/internal/middleware"
	"github.com/jwebster45206/tileworld/internal/services"
	"github.com/jwebster45206/tileworld/internal/services/events"
	"github.com/jwebster45206/tileworld/internal/worker"
	"github.com/jwebster45206/tileworld/pkg/render"
	"github.com/jwebster45206/tileworld/pkg/state"
)

const frameInterval = 100 * time.Millisecond

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal(err)
	}

	log := logger.Setup(cfg)

	log.Info("Starting Tileworld API",
		"port", cfg.Port,
		"environment", cfg.Environment,
		"llm_provider", cfg.LLMProvider,
		"model_name", cfg.ModelName,
		"grid", []int{cfg.GridWidth, cfg.GridHeight})

	var (
		llmService services.LLMService
		manual     *services.ManualResponder
	)
	switch cfg.LLMProvider {
	case config.ProviderAnthropic:
		llmService = services.NewAnthropicService(cfg.AnthropicAPIKey, cfg.ModelName, cfg.LLMTimeout, log)
	case config.ProviderOpenAI:
		llmService = services.NewOpenAIService(cfg.OpenAIAPIKey, cfg.ModelName, cfg.OpenAIBaseURL, cfg.LLMTimeout, log)
	case config.ProviderOllama:
		llmService = services.NewOllamaService(cfg.OllamaURL, cfg.ModelName, cfg.LLMTimeout, log)
	case config.ProviderManual:
		manual = services.NewManualResponder(log)
		llmService = manual
	}
	log.Info("Using LLM provider", "provider", cfg.LLMProvider)

	// Initialize the model on startup
	initCtx, initCancel := context.WithTimeout(context.Background(), 10*time.Minute)
	if err := llmService.InitModel(initCtx, cfg.ModelName); err != nil {
		initCancel()
		log.Error("Failed to initialize LLM model", "error", err, "model", cfg.ModelName)
		os.Exit(1)
	}
	initCancel()

	// Event broadcasting is optional
	var (
		redisService *services.RedisService
		broadcaster  *events.Broadcaster
		publisher    worker.Publisher
	)
	if cfg.RedisURL != "" {
		redisService, err = services.NewRedisService(cfg.RedisURL, log)
		if err != nil {
			log.Error("Invalid redis configuration", "error", err)
			os.Exit(1)
		}
		redisCtx, redisCancel := context.WithTimeout(context.Background(), 2*time.Minute)
		err = redisService.WaitForConnection(redisCtx)
		redisCancel()
		if err != nil {
			log.Error("Failed to connect to redis", "error", err)
			os.Exit(1)
		}
		broadcaster = events.NewBroadcaster(redisService.GetClient(), log)
		publisher = broadcaster
		log.Info("Event broadcasting enabled")
	}

	processor := worker.NewTurnProcessor(llmService, publisher, worker.Config{
		World: state.Options{
			GridWidth:    cfg.GridWidth,
			GridHeight:   cfg.GridHeight,
			BaseCapacity: cfg.InventoryCapacity,
			CustomRules:  cfg.CustomRules,
		},
		GeneratorTimeout: cfg.GeneratorTimeout,
	}, log)

	if manual != nil && broadcaster != nil {
		manual.OnPending(func(p services.PendingPrompt) {
			gameID := processor.Snapshot().ID
			go func() {
				ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				if err := broadcaster.PublishPromptPending(ctx, gameID, p.ID); err != nil {
					log.Warn("Failed to publish pending prompt", "error", err)
				}
			}()
		})
	}

	// A Renderer is single-threaded: one for the loop, one for on-demand frames
	renderer, err := render.New(render.Options{CellSize: cfg.CellSize, Logger: log})
	if err != nil {
		log.Error("Failed to create renderer", "error", err)
		os.Exit(1)
	}
	loopRenderer, err := render.New(render.Options{CellSize: cfg.CellSize, Logger: log})
	if err != nil {
		log.Error("Failed to create renderer", "error", err)
		os.Exit(1)
	}

	ctx, stop := context.WithCancel(context.Background())
	defer stop()
	processorDone := make(chan struct{})
	go func() {
		defer close(processorDone)
		if err := processor.Start(ctx); err != nil {
			log.Error("Turn processor failed", "error", err)
		}
	}()

	frameLoop := render.NewLoop(loopRenderer, processor, render.Ticker(ctx, frameInterval))
	go func() {
		if err := frameLoop.Run(ctx); err != nil && ctx.Err() == nil {
			log.Error("Render loop stopped", "error", err)
		}
	}()

	mux := http.NewServeMux()

	var redisPinger handlers.Pinger
	if redisService != nil {
		redisPinger = redisService
	}
	mux.Handle("/health", handlers.NewHealthHandler(processor, redisPinger, log))

	turnHandler := handlers.NewTurnHandler(processor, log)
	mux.Handle("/v1/turn", turnHandler)
	mux.Handle("/v1/turn/", turnHandler)

	gameStateHandler := handlers.NewGameStateHandler(processor, log)
	mux.Handle("/v1/gamestate", gameStateHandler)
	mux.Handle("/v1/gamestate/", gameStateHandler)

	mux.Handle("/v1/frame.png", handlers.NewFrameHandler(processor, renderer, frameLoop, log))

	if manual != nil {
		mux.Handle("/v1/manual", handlers.NewManualHandler(manual, log))
	}
	if broadcaster != nil {
		mux.Handle("/v1/events/gamestate/", handlers.NewEventsHandler(broadcaster, log))
	}

	server := &http.Server{
		Addr:        ":" + cfg.Port,
		Handler:     middleware.Logger(log, mux),
		ReadTimeout: 15 * time.Second,
		// No WriteTimeout: turns wait on the generator and SSE streams stay open
		IdleTimeout: 60 * time.Second,
	}

	go func() {
		log.Info("Server starting", "addr", server.Addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("Server failed to start", "error", err)
			os.Exit(1)
		}
	}()

	// Wait for interrupt signal to gracefully shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("Server is shutting down...")
	shutdown(log, server, processor, stop, processorDone, redisService)
	log.Info("Server exited")
}

func shutdown(log *slog.Logger, server *http.Server, processor *worker.TurnProcessor, stop context.CancelFunc, processorDone <-chan struct{}, redisService *services.RedisService) {
	// Abort a turn stuck on the generator so handlers can return
	processor.Cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error("Server forced to shutdown", "error", err)
	}

	stop()
	<-processorDone

	if redisService != nil {
		if err := redisService.Close(); err != nil {
			log.Error("Error closing redis connection", "error", err)
		}
	}
}
