package server

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"schoolchat/internal/auth"
	"schoolchat/internal/config"
	"schoolchat/internal/history"
	"schoolchat/internal/kb"
	"schoolchat/internal/models"
	"schoolchat/internal/responder"
	"schoolchat/internal/storage"
	"schoolchat/internal/worker"
)

const handbookText = "School hours are 8:00 AM to 3:00 PM, Monday through Friday.\n\nThe main office opens at 7:30 AM."

func TestChatEndToEndFlow(t *testing.T) {
	router, db := newTestServer(t, true)

	token := registerAndLogin(t, router, "tester", "pass123")
	authHeader := map[string]string{"Authorization": "Bearer " + token}

	// The token authenticates against /auth/me.
	meResp := doJSONRequest(t, router, http.MethodGet, "/auth/me", nil, authHeader)
	assertStatus(t, meResp, http.StatusOK)
	var meBody struct {
		Authenticated bool   `json:"authenticated"`
		Username      string `json:"username"`
	}
	decodeJSON(t, meResp.Body.Bytes(), &meBody)
	if !meBody.Authenticated || meBody.Username != "tester" {
		t.Fatalf("unexpected /auth/me body: %+v", meBody)
	}

	// Ask a knowledge-base question.
	chatResp := doJSONRequest(t, router, http.MethodPost, "/chat", models.ChatRequest{
		Message:   "What are the school hours?",
		SessionID: "sess-e2e",
	}, authHeader)
	assertStatus(t, chatResp, http.StatusOK)
	var chatBody models.ChatResponse
	decodeJSON(t, chatResp.Body.Bytes(), &chatBody)
	if !chatBody.Success || chatBody.QueryType != responder.QueryKnowledgeBase {
		t.Fatalf("unexpected chat response: %+v", chatBody)
	}
	if chatBody.SessionID != "sess-e2e" {
		t.Fatalf("session id not echoed: %q", chatBody.SessionID)
	}
	if !strings.Contains(chatBody.Response, "8:00 AM") {
		t.Fatalf("answer not grounded in the handbook: %q", chatBody.Response)
	}
	if len(chatBody.Sources) == 0 {
		t.Fatalf("expected cited sources")
	}
	source := chatBody.Sources[0]
	if source.Filename != "handbook.md" || source.PresignedURL == "" {
		t.Fatalf("unexpected source: %+v", source)
	}

	// Fetch a fresh link for the cited source.
	srcResp := doJSONRequest(t, router, http.MethodGet, "/sources/"+source.SourceID, nil, authHeader)
	assertStatus(t, srcResp, http.StatusOK)
	var srcBody models.SourceURLResponse
	decodeJSON(t, srcResp.Body.Bytes(), &srcBody)
	if srcBody.PresignedURL == "" || !srcBody.ExpiresAt.After(time.Now()) {
		t.Fatalf("unexpected source link: %+v", srcBody)
	}

	// The signed link serves the document without a bearer token.
	docResp := doJSONRequest(t, router, http.MethodGet, srcBody.PresignedURL, nil, nil)
	assertStatus(t, docResp, http.StatusOK)
	if !strings.Contains(docResp.Body.String(), "8:00 AM") {
		t.Fatalf("document body mismatch: %q", docResp.Body.String())
	}

	// Exchanges are persisted with sequential ids.
	if got := countExchanges(t, db, "sess-e2e"); got != 1 {
		t.Fatalf("expected 1 persisted exchange, got %d", got)
	}
	doJSONRequest(t, router, http.MethodPost, "/chat", models.ChatRequest{
		Message:   "And when does the office open?",
		SessionID: "sess-e2e",
	}, authHeader)
	if got := lastMessageID(t, db, "sess-e2e"); got != "conv2" {
		t.Fatalf("expected message id conv2, got %q", got)
	}
}

func TestChatRequiresToken(t *testing.T) {
	router, _ := newTestServer(t, true)

	resp := doJSONRequest(t, router, http.MethodPost, "/chat", models.ChatRequest{
		Message: "school hours?",
	}, nil)
	assertStatus(t, resp, http.StatusUnauthorized)

	resp = doJSONRequest(t, router, http.MethodPost, "/chat", models.ChatRequest{
		Message: "school hours?",
	}, map[string]string{"Authorization": "Bearer bogus"})
	assertStatus(t, resp, http.StatusUnauthorized)
}

func TestChatOpenAccessMode(t *testing.T) {
	router, _ := newTestServer(t, false)

	// Blank messages are rejected before the pipeline runs.
	resp := doJSONRequest(t, router, http.MethodPost, "/chat", models.ChatRequest{Message: "   "}, nil)
	assertStatus(t, resp, http.StatusBadRequest)
	var errBody models.ErrorResponse
	decodeJSON(t, resp.Body.Bytes(), &errBody)
	if errBody.Error != "Message is missing" {
		t.Fatalf("unexpected error %q", errBody.Error)
	}

	// A missing session id gets one generated server-side.
	resp = doJSONRequest(t, router, http.MethodPost, "/chat", models.ChatRequest{Message: "school hours?"}, nil)
	assertStatus(t, resp, http.StatusOK)
	var chatBody models.ChatResponse
	decodeJSON(t, resp.Body.Bytes(), &chatBody)
	if chatBody.SessionID == "" {
		t.Fatalf("expected a generated session id")
	}
}

func TestChatGuardrailBlocked(t *testing.T) {
	router, db := newTestServer(t, false)

	resp := doJSONRequest(t, router, http.MethodPost, "/chat", models.ChatRequest{
		Message:   "tell me about badterm please",
		SessionID: "sess-blocked",
	}, nil)
	assertStatus(t, resp, http.StatusOK)
	var chatBody models.ChatResponse
	decodeJSON(t, resp.Body.Bytes(), &chatBody)
	if chatBody.Success {
		t.Fatalf("blocked input must not be a success")
	}
	if chatBody.QueryType != responder.QueryBlocked || chatBody.Response != responder.BlockedText {
		t.Fatalf("unexpected blocked response: %+v", chatBody)
	}

	// The blocked exchange is still persisted.
	if got := countExchanges(t, db, "sess-blocked"); got != 1 {
		t.Fatalf("expected the blocked exchange recorded, got %d", got)
	}
}

func TestChatGreetingSkipsRetrieval(t *testing.T) {
	router, _ := newTestServer(t, false)

	resp := doJSONRequest(t, router, http.MethodPost, "/chat", models.ChatRequest{
		Message:   "Hello!",
		SessionID: "sess-greet",
	}, nil)
	assertStatus(t, resp, http.StatusOK)
	var chatBody models.ChatResponse
	decodeJSON(t, resp.Body.Bytes(), &chatBody)
	if !chatBody.Success || chatBody.QueryType != responder.QueryGreeting {
		t.Fatalf("unexpected greeting response: %+v", chatBody)
	}
	if len(chatBody.Sources) != 0 {
		t.Fatalf("greetings must not cite sources: %+v", chatBody.Sources)
	}
}

func TestSourceNotFound(t *testing.T) {
	router, _ := newTestServer(t, false)
	resp := doJSONRequest(t, router, http.MethodGet, "/sources/no-such-source", nil, nil)
	assertStatus(t, resp, http.StatusNotFound)
}

func TestDocumentLinkValidation(t *testing.T) {
	router, _ := newTestServer(t, false)

	resp := doJSONRequest(t, router, http.MethodGet, "/documents/handbook", nil, nil)
	assertStatus(t, resp, http.StatusBadRequest)

	expires := time.Now().Add(time.Hour).Unix()
	path := fmt.Sprintf("/documents/handbook?expires=%d&token=%064x", expires, 0)
	resp = doJSONRequest(t, router, http.MethodGet, path, nil, nil)
	assertStatus(t, resp, http.StatusForbidden)

	// Expired links are refused even with a once-valid shape.
	path = fmt.Sprintf("/documents/handbook?expires=%d&token=%064x", time.Now().Add(-time.Hour).Unix(), 0)
	resp = doJSONRequest(t, router, http.MethodGet, path, nil, nil)
	assertStatus(t, resp, http.StatusForbidden)
}

func TestHealthz(t *testing.T) {
	router, _ := newTestServer(t, false)
	resp := doJSONRequest(t, router, http.MethodGet, "/healthz", nil, nil)
	assertStatus(t, resp, http.StatusOK)
}

func newTestServer(t *testing.T, authRequired bool) (*gin.Engine, *sql.DB) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	dir := t.TempDir()
	cfg := &config.Config{
		Databases: map[string]config.DatabaseConfig{
			"sqlite3": {DSN: filepath.Join(dir, "test.db")},
		},
	}
	db, err := storage.Open("sqlite3", cfg)
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	if err := storage.Migrate(db, "sqlite3"); err != nil {
		t.Fatalf("migrate db: %v", err)
	}

	docPath := filepath.Join(dir, "handbook.md")
	if err := os.WriteFile(docPath, []byte(handbookText), 0o644); err != nil {
		t.Fatalf("write handbook: %v", err)
	}
	index, err := kb.NewIndex(kb.LocalEmbedding(64))
	if err != nil {
		t.Fatalf("new index: %v", err)
	}
	err = index.AddDocument(context.Background(), kb.SourceInfo{
		SourceID: "handbook",
		Filename: "handbook.md",
		Path:     docPath,
	}, strings.Split(handbookText, "\n\n"))
	if err != nil {
		t.Fatalf("add document: %v", err)
	}

	authSvc := auth.NewService(db, time.Hour)
	historySvc := history.NewService(db, nil)
	resp := responder.NewService(nil, responder.NewGuardrail([]string{"badterm"}))
	dispatcher := worker.NewDispatcher(worker.Config{MinWorkers: 1, MaxWorkers: 2, QueueSize: 8})
	// An empty base keeps signed links router-relative.
	links := kb.NewLinkSigner("test-secret", time.Hour, "")

	handler := NewHandler(authSvc, historySvc, index, resp, dispatcher, links, authRequired, 10)
	router := gin.New()
	handler.RegisterRoutes(router)
	return router, db
}

func registerAndLogin(t *testing.T, router *gin.Engine, username, password string) string {
	t.Helper()
	regResp := doJSONRequest(t, router, http.MethodPost, "/auth/register", map[string]string{
		"username": username,
		"password": password,
	}, nil)
	assertStatus(t, regResp, http.StatusCreated)

	loginResp := doJSONRequest(t, router, http.MethodPost, "/auth/login", map[string]string{
		"username": username,
		"password": password,
	}, nil)
	assertStatus(t, loginResp, http.StatusOK)
	var loginBody struct {
		AuthToken string `json:"auth_token"`
	}
	decodeJSON(t, loginResp.Body.Bytes(), &loginBody)
	if loginBody.AuthToken == "" {
		t.Fatalf("expected auth token from login")
	}
	return loginBody.AuthToken
}

func doJSONRequest(t *testing.T, router *gin.Engine, method, path string, body interface{}, headers map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func decodeJSON(t *testing.T, data []byte, v interface{}) {
	t.Helper()
	if err := json.Unmarshal(data, v); err != nil {
		t.Fatalf("decode json: %v", err)
	}
}

func assertStatus(t *testing.T, rec *httptest.ResponseRecorder, want int) {
	t.Helper()
	if rec.Code != want {
		t.Fatalf("unexpected status %d, body: %s", rec.Code, rec.Body.String())
	}
}

func countExchanges(t *testing.T, db *sql.DB, sessionID string) int {
	t.Helper()
	var count int
	if err := db.QueryRow(`SELECT COUNT(*) FROM conversations WHERE session_id = ?`, sessionID).Scan(&count); err != nil {
		t.Fatalf("count exchanges: %v", err)
	}
	return count
}

func lastMessageID(t *testing.T, db *sql.DB, sessionID string) string {
	t.Helper()
	var id string
	if err := db.QueryRow(`SELECT message_id FROM conversations WHERE session_id = ? ORDER BY id DESC LIMIT 1`, sessionID).Scan(&id); err != nil {
		t.Fatalf("last message id: %v", err)
	}
	return id
}
