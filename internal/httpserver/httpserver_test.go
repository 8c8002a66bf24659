package httpserver

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"colosseum/internal/game"
	"colosseum/internal/lobby"
)

func TestHandleHealthReportsOK(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	registry := game.Start(nil)
	lob := lobby.Start(ctx, lobby.Config{Registry: registry})

	s := New(Config{BindAddress: "127.0.0.1", ListenPort: 0, Lobby: lob, CORSOrigins: []string{"*"}})

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	s.handleHealth(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var body map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if body["status"] != "ok" {
		t.Fatalf("unexpected status field: %v", body["status"])
	}
}

func TestHandleStatsReportsEmptyLobby(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	registry := game.Start(nil)
	lob := lobby.Start(ctx, lobby.Config{Registry: registry})

	s := New(Config{BindAddress: "127.0.0.1", ListenPort: 0, Lobby: lob, CORSOrigins: []string{"*"}})

	req := httptest.NewRequest(http.MethodGet, "/stats", nil)
	rec := httptest.NewRecorder()
	s.handleStats(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var body map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if int(body["matches"].(float64)) != 0 {
		t.Fatalf("expected no matches, got %v", body["matches"])
	}
	if int(body["connections"].(float64)) != 0 {
		t.Fatalf("expected no connections, got %v", body["connections"])
	}
}
