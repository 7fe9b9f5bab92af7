package web_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"EduQuest/server/internal/config"
	"EduQuest/server/internal/engine"
	"EduQuest/server/internal/web"
)

type stubModel struct{}

func (stubModel) Complete(ctx context.Context, prompt string, timeout time.Duration) (string, error) {
	return "", errors.New("model unavailable")
}

func newTestRouter() http.Handler {
	cfg := &config.Config{}
	workflow := engine.NewWorkflow(engine.WorkflowDeps{
		Model:       stubModel{},
		Config:      config.WorkflowConfig{},
		ChatTimeout: time.Second,
	})
	return web.NewRouter(cfg, workflow, nil, nil)
}

func TestHealthCheck(t *testing.T) {
	rec := httptest.NewRecorder()
	newTestRouter().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var body map[string]string
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("invalid response body: %v", err)
	}
	if body["service"] != "eduquest" || body["status"] != "ok" {
		t.Errorf("unexpected body: %v", body)
	}
}

func TestStartSessionReturnsID(t *testing.T) {
	rec := httptest.NewRecorder()
	newTestRouter().ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/v1/session/start", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var body web.StartSessionResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("invalid response body: %v", err)
	}
	if !body.Success || !strings.HasPrefix(body.SessionID, "sess_") {
		t.Errorf("unexpected response: %+v", body)
	}
	if body.Message == "" {
		t.Error("expected a greeting message")
	}
}

func TestProcessTurnRejectsInvalidBody(t *testing.T) {
	router := newTestRouter()

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/v1/session/turn", strings.NewReader("not json")))
	if rec.Code != http.StatusBadRequest {
		t.Errorf("malformed body: expected 400, got %d", rec.Code)
	}

	payload, _ := json.Marshal(web.TurnRequest{SessionID: "", Text: "hello"})
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/v1/session/turn", bytes.NewReader(payload)))
	if rec.Code != http.StatusBadRequest {
		t.Errorf("missing session_id: expected 400, got %d", rec.Code)
	}
}

func TestStatusUnknownSession(t *testing.T) {
	rec := httptest.NewRecorder()
	newTestRouter().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/session/sess_missing/status", nil))

	if rec.Code != http.StatusNotFound {
		t.Errorf("expected 404, got %d", rec.Code)
	}
}

func TestStoryWithoutStorage(t *testing.T) {
	rec := httptest.NewRecorder()
	newTestRouter().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/story/story_abc", nil))

	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("expected 503 without storage, got %d", rec.Code)
	}
}

func TestProgressStreamWithoutHub(t *testing.T) {
	rec := httptest.NewRecorder()
	newTestRouter().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/progress", nil))

	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("expected 503 without hub, got %d", rec.Code)
	}
}

func TestTurnRateLimit(t *testing.T) {
	router := newTestRouter()

	sawTooMany := false
	for i := 0; i < 10; i++ {
		payload, _ := json.Marshal(web.TurnRequest{SessionID: "sess_x", Text: "hi"})
		rec := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodPost, "/api/v1/session/turn", bytes.NewReader(payload))
		req.RemoteAddr = "192.0.2.1:1234"
		router.ServeHTTP(rec, req)
		if rec.Code == http.StatusTooManyRequests {
			sawTooMany = true
			break
		}
	}
	if !sawTooMany {
		t.Error("expected the rate limiter to reject rapid turns")
	}
}

func TestCORSPreflight(t *testing.T) {
	rec := httptest.NewRecorder()
	newTestRouter().ServeHTTP(rec, httptest.NewRequest(http.MethodOptions, "/api/v1/session/start", nil))

	if rec.Code != http.StatusOK {
		t.Errorf("expected 200 for preflight, got %d", rec.Code)
	}
	if rec.Header().Get("Access-Control-Allow-Origin") != "*" {
		t.Error("expected CORS headers on preflight response")
	}
}
