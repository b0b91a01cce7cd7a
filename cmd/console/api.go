package main

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/jwebster45206/tileworld/pkg/camera"
	"github.com/jwebster45206/tileworld/pkg/state"
)

type ErrorResponse struct {
	Error string `json:"error"`
}

// GameView is the api's game state response.
type GameView struct {
	state.GameState
	View   camera.Window `json:"view"`
	Status string        `json:"status"`
}

// TurnResult mirrors the api's turn response.
type TurnResult struct {
	TurnID    string       `json:"turnId"`
	Turn      int          `json:"turn"`
	Narrative string       `json:"narrative"`
	Report    state.Report `json:"report"`
	Error     string       `json:"error"`
	Cancelled bool         `json:"cancelled"`
}

type PendingPrompt struct {
	ID     int    `json:"id"`
	Prompt string `json:"prompt"`
}

// errNoPrompt is returned when no manual prompt is waiting.
var errNoPrompt = errors.New("no prompt is waiting")

// APIClient talks to the tileworld api.
type APIClient struct {
	client  *http.Client
	baseURL string
}

func NewAPIClient(client *http.Client, baseURL string) *APIClient {
	return &APIClient{client: client, baseURL: strings.TrimSuffix(baseURL, "/")}
}

func (c *APIClient) testConnection() bool {
	resp, err := c.client.Get(c.baseURL + "/health")
	if err != nil {
		return false
	}
	defer func() {
		_ = resp.Body.Close() // Ignore error in defer
	}()
	return resp.StatusCode == http.StatusOK
}

// do sends a request and decodes a JSON body into out. Non-2xx responses
// become errors carrying the api's error message.
func (c *APIClient) do(ctx context.Context, method, path string, in, out any) (int, error) {
	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return 0, fmt.Errorf("failed to marshal request: %w", err)
		}
		body = bytes.NewReader(data)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return 0, fmt.Errorf("failed to create request: %w", err)
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return 0, fmt.Errorf("failed to send request: %w", err)
	}
	defer func() {
		_ = resp.Body.Close() // Ignore error in defer
	}()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return resp.StatusCode, fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode >= 300 {
		// failed turns still carry a result
		if out != nil && json.Unmarshal(data, out) == nil {
			if tr, ok := out.(*TurnResult); ok && tr.TurnID != "" {
				return resp.StatusCode, nil
			}
		}
		var errorResp ErrorResponse
		if err := json.Unmarshal(data, &errorResp); err != nil || errorResp.Error == "" {
			return resp.StatusCode, fmt.Errorf("API returned status %d: %s", resp.StatusCode, string(data))
		}
		return resp.StatusCode, errors.New(errorResp.Error)
	}

	if out != nil && len(data) > 0 {
		if err := json.Unmarshal(data, out); err != nil {
			return resp.StatusCode, fmt.Errorf("failed to parse response: %w", err)
		}
	}
	return resp.StatusCode, nil
}

func (c *APIClient) GameState(ctx context.Context) (*GameView, error) {
	var gv GameView
	if _, err := c.do(ctx, http.MethodGet, "/v1/gamestate", nil, &gv); err != nil {
		return nil, err
	}
	return &gv, nil
}

func (c *APIClient) SendTurn(ctx context.Context, message string) (*TurnResult, error) {
	var res TurnResult
	if _, err := c.do(ctx, http.MethodPost, "/v1/turn", map[string]string{"message": message}, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

func (c *APIClient) ContinueStory(ctx context.Context) (*TurnResult, error) {
	var res TurnResult
	if _, err := c.do(ctx, http.MethodPost, "/v1/turn/continue", nil, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

func (c *APIClient) CancelTurn(ctx context.Context) error {
	_, err := c.do(ctx, http.MethodDelete, "/v1/turn", nil, nil)
	return err
}

func (c *APIClient) Reset(ctx context.Context) (*GameView, error) {
	var gv GameView
	if _, err := c.do(ctx, http.MethodPost, "/v1/gamestate/reset", nil, &gv); err != nil {
		return nil, err
	}
	return &gv, nil
}

func (c *APIClient) Restart(ctx context.Context, persona string) (*GameView, error) {
	var gv GameView
	if _, err := c.do(ctx, http.MethodPost, "/v1/gamestate/restart", map[string]string{"persona": persona}, &gv); err != nil {
		return nil, err
	}
	return &gv, nil
}

func (c *APIClient) PendingPrompt(ctx context.Context) (*PendingPrompt, error) {
	var p PendingPrompt
	status, err := c.do(ctx, http.MethodGet, "/v1/manual", nil, &p)
	if err != nil {
		return nil, err
	}
	if status == http.StatusNoContent {
		return nil, errNoPrompt
	}
	return &p, nil
}

func (c *APIClient) RespondManual(ctx context.Context, response string) error {
	_, err := c.do(ctx, http.MethodPost, "/v1/manual", map[string]string{"response": response}, nil)
	return err
}

func (c *APIClient) DeclineManual(ctx context.Context) error {
	_, err := c.do(ctx, http.MethodDelete, "/v1/manual", nil, nil)
	return err
}

// SSEEvent represents an event from the SSE stream
type SSEEvent struct {
	Type   string         `json:"type"`
	TurnID string         `json:"turn_id"`
	GameID string         `json:"game_id"`
	Data   map[string]any `json:"data"`
}

// listenToSSE connects to the SSE endpoint and streams events to a channel
func (c *APIClient) listenToSSE(ctx context.Context, gameStateID uuid.UUID, eventChan chan<- SSEEvent) error {
	url := fmt.Sprintf("%s/v1/events/gamestate/%s", c.baseURL, gameStateID.String())

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "text/event-stream")
	req.Header.Set("Cache-Control", "no-cache")

	// the shared client has a timeout that would cut the stream
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to connect to SSE: %w", err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("SSE connection failed with status %d: %s", resp.StatusCode, string(body))
	}

	scanner := bufio.NewScanner(resp.Body)
	var current SSEEvent
	for scanner.Scan() {
		line := scanner.Text()
		switch {
		case line == "":
			// Empty line signals end of event
			if current.Type != "" {
				select {
				case eventChan <- current:
				case <-ctx.Done():
					return ctx.Err()
				}
			}
			current = SSEEvent{}
		case strings.HasPrefix(line, "event: "):
			current.Type = strings.TrimPrefix(line, "event: ")
		case strings.HasPrefix(line, "data: "):
			var ev SSEEvent
			if err := json.Unmarshal([]byte(strings.TrimPrefix(line, "data: ")), &ev); err == nil {
				current.TurnID, current.GameID, current.Data = ev.TurnID, ev.GameID, ev.Data
			}
		}
	}

	if err := scanner.Err(); err != nil && ctx.Err() == nil {
		return fmt.Errorf("error reading SSE stream: %w", err)
	}
	return ctx.Err()
}
