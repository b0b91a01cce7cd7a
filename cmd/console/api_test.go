package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T, h http.HandlerFunc) *APIClient {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	return NewAPIClient(srv.Client(), srv.URL+"/")
}

func TestAPIClient_GameState(t *testing.T) {
	api := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/gamestate", r.URL.Path)
		_, _ = fmt.Fprint(w, `{"id":"7f1c7a52-5d61-4d1e-9b8e-1c9e0f1b2a3c","turn":3,"locationName":"Harbor",
			"gridWidth":6,"gridHeight":4,"view":{"minX":1,"minY":2,"maxX":7,"maxY":6},"status":"idle"}`)
	})

	gv, err := api.GameState(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 3, gv.Turn)
	assert.Equal(t, "Harbor", gv.LocationName)
	assert.Equal(t, 7, gv.View.MaxX)
	assert.Equal(t, "idle", gv.Status)
}

func TestAPIClient_SendTurn(t *testing.T) {
	tests := []struct {
		name       string
		status     int
		body       string
		wantErr    string
		wantResult string
	}{
		{name: "success", status: http.StatusOK, body: `{"turn":1,"narrative":"The tide turns."}`, wantResult: "The tide turns."},
		{name: "failed turn keeps result", status: http.StatusBadGateway, body: `{"turnId":"turn-1","turn":0,"error":"Failed to parse AI response."}`},
		{name: "busy", status: http.StatusConflict, body: `{"error":"A turn is already in progress."}`, wantErr: "A turn is already in progress."},
		{name: "garbage", status: http.StatusInternalServerError, body: `oops`, wantErr: "API returned status 500: oops"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			api := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				var body map[string]string
				_ = json.NewDecoder(r.Body).Decode(&body)
				assert.Equal(t, "look around", body["message"])
				w.WriteHeader(tt.status)
				_, _ = fmt.Fprint(w, tt.body)
			})

			res, err := api.SendTurn(context.Background(), "look around")
			if tt.wantErr != "" {
				assert.EqualError(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantResult, res.Narrative)
			if tt.status != http.StatusOK {
				assert.NotEmpty(t, res.Error)
			}
		})
	}
}

func TestAPIClient_PendingPrompt(t *testing.T) {
	waiting := false
	api := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if !waiting {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		_, _ = fmt.Fprint(w, `{"id":2,"prompt":"You are the narrator."}`)
	})

	_, err := api.PendingPrompt(context.Background())
	assert.ErrorIs(t, err, errNoPrompt)

	waiting = true
	p, err := api.PendingPrompt(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, p.ID)
}

func TestAPIClient_ListenToSSE(t *testing.T) {
	gameID := uuid.New()
	api := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/events/gamestate/"+gameID.String(), r.URL.Path)
		w.Header().Set("Content-Type", "text/event-stream")
		_, _ = fmt.Fprint(w, "event: connected\ndata: {\"game_id\":\""+gameID.String()+"\"}\n\n")
		_, _ = fmt.Fprint(w, ": keepalive\n\n")
		_, _ = fmt.Fprint(w, "event: game.state_updated\ndata: {\"type\":\"game.state_updated\",\"data\":{\"turn\":4}}\n\n")
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	events := make(chan SSEEvent, 4)
	err := api.listenToSSE(ctx, gameID, events)
	require.NoError(t, err)
	close(events)

	var got []SSEEvent
	for ev := range events {
		got = append(got, ev)
	}
	require.Len(t, got, 2)
	assert.Equal(t, "connected", got[0].Type)
	assert.Equal(t, gameID.String(), got[0].GameID)
	assert.Equal(t, "game.state_updated", got[1].Type)
	assert.Equal(t, float64(4), got[1].Data["turn"])
}

func TestFormatNarratorResponse(t *testing.T) {
	got := formatNarratorResponse("The gulls scream overhead.", 80)
	if !strings.Contains(got, AgentName) {
		t.Errorf("expected narrator prefix, got %q", got)
	}

	got = formatNarratorResponse("Old Tom: Mind the rocks.", 80)
	if strings.Contains(got, AgentName+":") {
		t.Errorf("speaker lines must not get a narrator prefix, got %q", got)
	}
}
