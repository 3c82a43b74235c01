package httpapi

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	gormsqlite "github.com/glebarez/sqlite"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/mosskim/gembot/internal/config"
	"github.com/mosskim/gembot/internal/httpapi/middleware"
	"github.com/mosskim/gembot/internal/store"
)

const testSecret = "test-secret"

func newTestRouter(t *testing.T) (http.Handler, *store.Store) {
	t.Helper()
	dsn := "file:" + strings.NewReplacer("/", "_", " ", "_").Replace(t.Name()) +
		"?mode=memory&cache=shared"
	db, err := gorm.Open(gormsqlite.Open(dsn), &gorm.Config{
		TranslateError: true,
		Logger:         logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	if err := db.AutoMigrate(&store.User{}, &store.Chat{}, &store.Message{}, &store.TokenUsage{}); err != nil {
		t.Fatalf("automigrate: %v", err)
	}
	st := store.New(db)
	t.Cleanup(func() { st.Close() })

	r := NewRouter(st, config.HTTP{Addr: ":0", JWTSecret: testSecret}, zap.NewNop())
	return r, st
}

func authedRequest(t *testing.T, method, target string, body string) *http.Request {
	t.Helper()
	token, err := middleware.SignToken("admin", testSecret, time.Hour)
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, target, nil)
	} else {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Authorization", "Bearer "+token)
	return req
}

func seedConversation(t *testing.T, st *store.Store) {
	t.Helper()
	ctx := context.Background()
	if _, err := st.UpsertUser(ctx, 42, "Alice"); err != nil {
		t.Fatalf("upsert user: %v", err)
	}
	if _, err := st.UpsertChat(ctx, 1, store.ChatDirect, "alice"); err != nil {
		t.Fatalf("upsert chat: %v", err)
	}
	uid := int64(42)
	if _, err := st.SaveMessage(ctx, 1, &uid, store.RoleUser, "hello server", "01HTTP0000000000000000001A", time.Time{}); err != nil {
		t.Fatalf("save message: %v", err)
	}
	if _, err := st.SaveMessage(ctx, 1, nil, store.RoleAssistant, "hello client", "01HTTP0000000000000000001A", time.Time{}); err != nil {
		t.Fatalf("save message: %v", err)
	}
	if _, err := st.SaveTokenUsage(ctx, "01HTTP0000000000000000001A", 10, 5); err != nil {
		t.Fatalf("save usage: %v", err)
	}
}

func TestHealthz_NoAuthRequired(t *testing.T) {
	r, _ := newTestRouter(t)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	if w.Header().Get("X-Request-ID") == "" {
		t.Fatalf("request id header missing")
	}
}

func TestAPI_RejectsMissingAndBadTokens(t *testing.T) {
	r, _ := newTestRouter(t)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/stats", nil))
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("no token: status = %d, want 401", w.Code)
	}

	req := httptest.NewRequest(http.MethodGet, "/api/stats", nil)
	req.Header.Set("Authorization", "Bearer not-a-token")
	w = httptest.NewRecorder()
	r.ServeHTTP(w, req)
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("garbage token: status = %d, want 401", w.Code)
	}

	token, err := middleware.SignToken("admin", "wrong-secret", time.Hour)
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	req = httptest.NewRequest(http.MethodGet, "/api/stats", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	w = httptest.NewRecorder()
	r.ServeHTTP(w, req)
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("wrong secret: status = %d, want 401", w.Code)
	}
}

func TestDatabaseStatsEndpoint(t *testing.T) {
	r, st := newTestRouter(t)
	seedConversation(t, st)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, authedRequest(t, http.MethodGet, "/api/stats", ""))
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", w.Code, w.Body.String())
	}

	var resp struct {
		Code int `json:"code"`
		Data struct {
			TotalUsers    int64 `json:"total_users"`
			TotalChats    int64 `json:"total_chats"`
			TotalMessages int64 `json:"total_messages"`
		} `json:"data"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if resp.Data.TotalUsers != 1 || resp.Data.TotalChats != 1 || resp.Data.TotalMessages != 2 {
		t.Fatalf("unexpected stats: %+v", resp.Data)
	}
}

func TestSearchEndpoint(t *testing.T) {
	r, st := newTestRouter(t)
	seedConversation(t, st)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, authedRequest(t, http.MethodGet, "/api/search?q=hello&chat_id=1", ""))
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", w.Code, w.Body.String())
	}
	var resp struct {
		Data struct {
			Count int `json:"count"`
		} `json:"data"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if resp.Data.Count != 2 {
		t.Fatalf("count = %d, want 2", resp.Data.Count)
	}

	// missing q is a client error
	w = httptest.NewRecorder()
	r.ServeHTTP(w, authedRequest(t, http.MethodGet, "/api/search", ""))
	if w.Code != http.StatusBadRequest {
		t.Fatalf("missing q: status = %d, want 400", w.Code)
	}
}

func TestExportEndpoint(t *testing.T) {
	r, st := newTestRouter(t)
	seedConversation(t, st)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, authedRequest(t, http.MethodGet, "/api/chats/1/export?format=text", ""))
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", w.Code, w.Body.String())
	}
	if ct := w.Header().Get("Content-Type"); !strings.HasPrefix(ct, "text/plain") {
		t.Fatalf("content type = %q", ct)
	}
	if !strings.Contains(w.Body.String(), "user: hello server") {
		t.Fatalf("export body missing message: %q", w.Body.String())
	}

	w = httptest.NewRecorder()
	r.ServeHTTP(w, authedRequest(t, http.MethodGet, "/api/chats/1/export?format=xml", ""))
	if w.Code != http.StatusBadRequest {
		t.Fatalf("bad format: status = %d, want 400", w.Code)
	}

	w = httptest.NewRecorder()
	r.ServeHTTP(w, authedRequest(t, http.MethodGet, "/api/chats/abc/export", ""))
	if w.Code != http.StatusBadRequest {
		t.Fatalf("bad id: status = %d, want 400", w.Code)
	}
}

func TestDeleteAndPurgeEndpoints(t *testing.T) {
	r, st := newTestRouter(t)
	seedConversation(t, st)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, authedRequest(t, http.MethodDelete, "/api/chats/1/messages", ""))
	if w.Code != http.StatusOK {
		t.Fatalf("delete: status = %d: %s", w.Code, w.Body.String())
	}
	var resp struct {
		Data struct {
			Deleted int64 `json:"deleted"`
		} `json:"data"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if resp.Data.Deleted != 2 {
		t.Fatalf("deleted = %d, want 2", resp.Data.Deleted)
	}

	w = httptest.NewRecorder()
	r.ServeHTTP(w, authedRequest(t, http.MethodPost, "/api/purge", `{"days": 30}`))
	if w.Code != http.StatusOK {
		t.Fatalf("purge: status = %d: %s", w.Code, w.Body.String())
	}

	w = httptest.NewRecorder()
	r.ServeHTTP(w, authedRequest(t, http.MethodPost, "/api/purge", `{"days": -1}`))
	if w.Code != http.StatusBadRequest {
		t.Fatalf("negative days: status = %d, want 400", w.Code)
	}
}

func TestUnknownRoute(t *testing.T) {
	r, _ := newTestRouter(t)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/nope", nil))
	if w.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", w.Code)
	}
	var resp struct {
		Code int `json:"code"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if resp.Code != 40400 {
		t.Fatalf("envelope code = %d, want 40400", resp.Code)
	}
}
