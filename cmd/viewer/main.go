package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"strconv"
	"time"

	"github.com/hajimehoshi/ebiten/v2"

	"github.com/jwebster45206/tileworld/internal/client"
	"github.com/jwebster45206/tileworld/internal/config"
	"github.com/jwebster45206/tileworld/internal/logger"
	"github.com/jwebster45206/tileworld/pkg/render"
)

func main() {
	cfg := config.Default()
	cfg.LogFile = os.Getenv("VIEWER_LOG_FILE")
	if n, err := strconv.Atoi(os.Getenv("CELL_SIZE")); err == nil && n >= 8 {
		cfg.CellSize = n
	}
	log := logger.Setup(cfg)

	baseURL := getEnv("API_BASE_URL", "http://localhost:8080")
	src := client.NewStateSource(&http.Client{Timeout: 10 * time.Second}, baseURL, log)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := src.Refresh(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Could not reach the API at %s: %v\n", baseURL, err)
		os.Exit(1)
	}
	go src.Poll(ctx, time.Second)

	r, err := render.New(render.Options{CellSize: cfg.CellSize, Logger: log})
	if err != nil {
		log.Error("Failed to create renderer", "error", err)
		os.Exit(1)
	}
	v := newViewer(render.NewLoop(r, src, nil), src)

	if gs := src.Snapshot(); gs != nil {
		ebiten.SetWindowSize(gs.GridWidth*cfg.CellSize, gs.GridHeight*cfg.CellSize)
	}
	ebiten.SetWindowTitle("Tileworld")
	ebiten.SetWindowResizingMode(ebiten.WindowResizingModeEnabled)
	ebiten.SetTPS(30)

	if err := ebiten.RunGame(v); err != nil {
		log.Error("Viewer stopped", "error", err)
		os.Exit(1)
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
