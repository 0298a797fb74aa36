package server

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/alfredlabs/alfred/internal/audit"
	"github.com/alfredlabs/alfred/internal/db"
	"github.com/alfredlabs/alfred/internal/engine"
	"github.com/alfredlabs/alfred/internal/knowledge"
	"github.com/alfredlabs/alfred/internal/resolver"
	"github.com/alfredlabs/alfred/internal/session"
)

type stubEmbedder struct{}

const stubDims = 8

func (stubEmbedder) Embed(_ context.Context, texts []string) ([][]float32, error) {
	known := map[string]int{"hello": 0, "hi": 1, "bye": 2}
	out := make([][]float32, len(texts))
	for i, text := range texts {
		v := make([]float32, stubDims)
		idx, ok := known[text]
		if !ok {
			idx = stubDims - 1
		}
		v[idx] = 1
		out[i] = v
	}
	return out, nil
}

func (stubEmbedder) Dimensions() int { return stubDims }
func (stubEmbedder) Name() string    { return "stub" }

const testKB = `{
	"version": "1.0.0",
	"metadata": {
		"search_config": {"default_confidence_threshold": 0.25},
		"fallback_responses": ["Sorry, what?"]
	},
	"intents": [
		{
			"id": "greeting",
			"patterns": ["hello", "hi"],
			"responses": ["Hi there!"],
			"metadata": {"category": "smalltalk", "priority": 1}
		},
		{
			"id": "farewell",
			"patterns": ["bye"],
			"responses": ["Bye!"],
			"metadata": {"category": "smalltalk", "priority": 1}
		}
	]
}`

func newTestServer(t *testing.T) (*httptest.Server, string) {
	t.Helper()

	kbPath := filepath.Join(t.TempDir(), "kb.json")
	if err := os.WriteFile(kbPath, []byte(testKB), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	emb := stubEmbedder{}
	index, err := knowledge.Load(context.Background(), kbPath, emb, knowledge.NewMemoryBackend())
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	sessions := session.NewMemoryStore(time.Minute, 0)
	t.Cleanup(sessions.Close)

	database, err := db.OpenMemory()
	if err != nil {
		t.Fatalf("OpenMemory: %v", err)
	}
	t.Cleanup(func() { database.Close() })
	decisions := audit.NewStore(database)

	eng := engine.New(index, sessions, resolver.New(emb), decisions)
	srv := New(Config{Port: 0}, eng, decisions)

	ts := httptest.NewServer(srv.Router())
	t.Cleanup(ts.Close)
	return ts, kbPath
}

func postJSON(t *testing.T, url string, body any) *http.Response {
	t.Helper()
	data, err := json.Marshal(body)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	resp, err := http.Post(url, "application/json", bytes.NewReader(data))
	if err != nil {
		t.Fatalf("POST %s: %v", url, err)
	}
	return resp
}

func decode[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	defer resp.Body.Close()
	var v T
	if err := json.NewDecoder(resp.Body).Decode(&v); err != nil {
		t.Fatalf("decode: %v", err)
	}
	return v
}

func TestHealthz(t *testing.T) {
	ts, _ := newTestServer(t)

	resp, err := http.Get(ts.URL + "/healthz")
	if err != nil {
		t.Fatalf("GET /healthz: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("status = %d, want 200", resp.StatusCode)
	}
}

func TestChat(t *testing.T) {
	ts, _ := newTestServer(t)

	resp := postJSON(t, ts.URL+"/api/chat", map[string]string{"message": "hello"})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	decision := decode[resolver.MatchDecision](t, resp)

	if decision.IntentID != "greeting" {
		t.Errorf("intent_id = %q, want greeting", decision.IntentID)
	}
	if decision.SessionID == "" {
		t.Error("session_id missing")
	}
	if decision.Response != "Hi there!" {
		t.Errorf("response = %q", decision.Response)
	}

	// Same session id continues the conversation.
	resp2 := postJSON(t, ts.URL+"/api/chat", map[string]string{"message": "bye", "session_id": decision.SessionID})
	if resp2.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp2.StatusCode)
	}
	second := decode[resolver.MatchDecision](t, resp2)
	if second.SessionID != decision.SessionID {
		t.Errorf("session id changed: %q -> %q", decision.SessionID, second.SessionID)
	}
}

func TestChat_EmptyMessage(t *testing.T) {
	ts, _ := newTestServer(t)

	resp := postJSON(t, ts.URL+"/api/chat", map[string]string{"message": "   "})
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", resp.StatusCode)
	}
}

func TestChat_InvalidBody(t *testing.T) {
	ts, _ := newTestServer(t)

	resp, err := http.Post(ts.URL+"/api/chat", "application/json", bytes.NewReader([]byte(`{`)))
	if err != nil {
		t.Fatalf("POST: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", resp.StatusCode)
	}
}

func TestChat_Fallback(t *testing.T) {
	ts, _ := newTestServer(t)

	resp := postJSON(t, ts.URL+"/api/chat", map[string]string{"message": "xyzzy"})
	decision := decode[resolver.MatchDecision](t, resp)

	if decision.IntentID != resolver.FallbackIntentID {
		t.Errorf("intent_id = %q, want fallback", decision.IntentID)
	}
	if decision.Confidence != 0 {
		t.Errorf("confidence = %v, want 0", decision.Confidence)
	}
	if decision.MatchedQuery != nil {
		t.Errorf("matched_query = %v, want null", *decision.MatchedQuery)
	}
}

func TestSessionLifecycle(t *testing.T) {
	ts, _ := newTestServer(t)

	created := postJSON(t, ts.URL+"/api/sessions", map[string]any{
		"user_id":           "alice",
		"context_variables": map[string]any{"plan": "pro"},
	})
	if created.StatusCode != http.StatusCreated {
		t.Fatalf("create status = %d, want 201", created.StatusCode)
	}
	sess := decode[session.Session](t, created)
	if sess.ID == "" {
		t.Fatal("created session has no id")
	}

	got, err := http.Get(ts.URL + "/api/sessions/" + sess.ID)
	if err != nil {
		t.Fatalf("GET session: %v", err)
	}
	fetched := decode[session.Session](t, got)
	if fetched.UserID != "alice" || fetched.ContextVariables["plan"] != "pro" {
		t.Errorf("fetched session = %+v", fetched)
	}

	patch, err := http.NewRequest(http.MethodPatch, ts.URL+"/api/sessions/"+sess.ID+"/context",
		bytes.NewReader([]byte(`{"plan": "free"}`)))
	if err != nil {
		t.Fatalf("NewRequest: %v", err)
	}
	patch.Header.Set("Content-Type", "application/json")
	patched, err := http.DefaultClient.Do(patch)
	if err != nil {
		t.Fatalf("PATCH context: %v", err)
	}
	merged := decode[session.Session](t, patched)
	if merged.ContextVariables["plan"] != "free" {
		t.Errorf("plan = %v, want free", merged.ContextVariables["plan"])
	}

	del, err := http.NewRequest(http.MethodDelete, ts.URL+"/api/sessions/"+sess.ID, nil)
	if err != nil {
		t.Fatalf("NewRequest: %v", err)
	}
	deleted, err := http.DefaultClient.Do(del)
	if err != nil {
		t.Fatalf("DELETE session: %v", err)
	}
	deleted.Body.Close()
	if deleted.StatusCode != http.StatusNoContent {
		t.Errorf("delete status = %d, want 204", deleted.StatusCode)
	}

	gone, err := http.Get(ts.URL + "/api/sessions/" + sess.ID)
	if err != nil {
		t.Fatalf("GET deleted session: %v", err)
	}
	gone.Body.Close()
	if gone.StatusCode != http.StatusNotFound {
		t.Errorf("status after delete = %d, want 404", gone.StatusCode)
	}
}

func TestSession_Unknown(t *testing.T) {
	ts, _ := newTestServer(t)

	resp, err := http.Get(ts.URL + "/api/sessions/no-such-id")
	if err != nil {
		t.Fatalf("GET: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("status = %d, want 404", resp.StatusCode)
	}
}

func TestStatsEndpoint(t *testing.T) {
	ts, _ := newTestServer(t)

	resp, err := http.Get(ts.URL + "/api/stats")
	if err != nil {
		t.Fatalf("GET /api/stats: %v", err)
	}
	stats := decode[engine.Stats](t, resp)
	if stats.TotalIntents != 2 {
		t.Errorf("total_intents = %d, want 2", stats.TotalIntents)
	}
	if stats.KnowledgeBaseVersion != "1.0.0" {
		t.Errorf("knowledge_base_version = %q, want 1.0.0", stats.KnowledgeBaseVersion)
	}
}

func TestReloadEndpoint(t *testing.T) {
	ts, kbPath := newTestServer(t)

	ok := postJSON(t, ts.URL+"/api/knowledge/reload", nil)
	ok.Body.Close()
	if ok.StatusCode != http.StatusOK {
		t.Fatalf("reload status = %d, want 200", ok.StatusCode)
	}

	if err := os.WriteFile(kbPath, []byte(`{"broken`), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	bad := postJSON(t, ts.URL+"/api/knowledge/reload", nil)
	bad.Body.Close()
	if bad.StatusCode != http.StatusUnprocessableEntity {
		t.Fatalf("broken reload status = %d, want 422", bad.StatusCode)
	}

	// The previous snapshot keeps answering.
	resp := postJSON(t, ts.URL+"/api/chat", map[string]string{"message": "hello"})
	decision := decode[resolver.MatchDecision](t, resp)
	if decision.IntentID != "greeting" {
		t.Errorf("intent_id after failed reload = %q, want greeting", decision.IntentID)
	}
}

func TestDecisionLogWired(t *testing.T) {
	ts, _ := newTestServer(t)

	postJSON(t, ts.URL+"/api/chat", map[string]string{"message": "hello"}).Body.Close()

	resp, err := http.Get(ts.URL + "/api/decisions")
	if err != nil {
		t.Fatalf("GET /api/decisions: %v", err)
	}
	entries := decode[[]audit.Entry](t, resp)
	if len(entries) != 1 {
		t.Fatalf("got %d decision entries, want 1", len(entries))
	}
	if entries[0].IntentID != "greeting" {
		t.Errorf("logged intent = %q, want greeting", entries[0].IntentID)
	}
}

func TestWriteError_QuotesStayValidJSON(t *testing.T) {
	rec := httptest.NewRecorder()
	msg := `open "kb.json": no such file`
	writeError(rec, http.StatusInternalServerError, msg)

	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d, want 500", rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("Content-Type = %q, want application/json", ct)
	}

	var body map[string]string
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("body is not valid JSON: %v\n%s", err, rec.Body.String())
	}
	if body["error"] != msg {
		t.Errorf("error = %q, want %q", body["error"], msg)
	}
}
