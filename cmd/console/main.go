package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/google/uuid"
)

type ConsoleConfig struct {
	APIBaseURL string
	Timeout    time.Duration
}

func main() {
	timeout := 5 * time.Minute
	if v, err := time.ParseDuration(getEnv("CONSOLE_TIMEOUT", "")); err == nil && v > 0 {
		timeout = v
	}
	cfg := &ConsoleConfig{
		APIBaseURL: getEnv("API_BASE_URL", "http://localhost:8080"),
		Timeout:    timeout,
	}

	api := NewAPIClient(&http.Client{Timeout: cfg.Timeout}, cfg.APIBaseURL)

	if !api.testConnection() {
		fmt.Fprintf(os.Stderr, "Could not connect to API. Please ensure the API is running.\nTry: docker-compose up -d\n")
		os.Exit(1)
	}

	gv, err := api.GameState(context.Background())
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load game state: %v\n", err)
		os.Exit(1)
	}

	p := tea.NewProgram(NewConsoleUI(cfg, api, gv),
		tea.WithAltScreen(),
		tea.WithMouseCellMotion())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go followEvents(ctx, api, gv.ID, p.Send)

	if _, err := p.Run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error running program: %v\n", err)
		os.Exit(1)
	}
}

// followEvents streams a game's events into the UI. A reset moves the game to
// a new id, so the listener follows it there.
func followEvents(ctx context.Context, api *APIClient, gameID uuid.UUID, send func(tea.Msg)) {
	backoff := time.Second
	for ctx.Err() == nil {
		events := make(chan SSEEvent, 16)
		streamCtx, stop := context.WithCancel(ctx)
		done := make(chan error, 1)
		go func() {
			done <- api.listenToSSE(streamCtx, gameID, events)
		}()

	stream:
		for {
			select {
			case ev := <-events:
				backoff = time.Second
				send(sseEventMsg{event: ev})
				if ev.Type != "game.reset" {
					continue
				}
				if next, ok := ev.Data["new_game_id"].(string); ok {
					if id, err := uuid.Parse(next); err == nil {
						gameID = id
					}
				}
				stop()
				<-done
				break stream
			case err := <-done:
				if err != nil && !errors.Is(err, context.Canceled) {
					send(sseStatusMsg{err: err})
				}
				select {
				case <-ctx.Done():
				case <-time.After(backoff):
				}
				backoff = min(backoff*2, 30*time.Second)
				break stream
			}
		}
		stop()
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
