package handler

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	ws "github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"linknote-server/internal/ratelimit"
	"linknote-server/internal/render"
	"linknote-server/internal/repository"
	"linknote-server/internal/service"
	"linknote-server/internal/websocket"
)

const adminHeader = "X-Auth-Email"

type testServer struct {
	router  http.Handler
	manager *websocket.Manager
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	return newTestServerWith(t, PublicConfig{CookieSecure: true})
}

func newTestServerWith(t *testing.T, public PublicConfig) *testServer {
	t.Helper()

	repo := repository.NewRecordRepository(repository.NewMemoryKV())
	manager := websocket.NewManager(websocket.Options{}, nil)
	limiter := ratelimit.New(ratelimit.DefaultMaxAttempts, ratelimit.DefaultWindow)

	gate := service.NewGateService(repo, limiter, service.GateConfig{Secret: "s3cret"}, nil)
	records := service.NewRecordService(repo, manager, nil)
	bulk := service.NewBulkService(repo, manager, nil, 2)

	pages, err := render.New()
	require.NoError(t, err)

	router := NewRouter(RouterConfig{
		AdminHeader:    adminHeader,
		AdminAllowed:   []string{"me@example.com"},
		AllowedOrigins: []string{"*"},
		AllowedMethods: "GET,PUT,POST,DELETE,OPTIONS",
		AllowedHeaders: "Content-Type",
	},
		NewPublicHandler(gate, pages, public, nil),
		NewAdminHandler(records, bulk, nil),
		NewWebSocketHandler(manager, 1024, 1024, nil, nil),
		nopLogger{},
	)

	return &testServer{router: router, manager: manager}
}

type nopLogger struct{}

func (nopLogger) Debug(string, ...any) {}
func (nopLogger) Info(string, ...any)  {}
func (nopLogger) Warn(string, ...any)  {}
func (nopLogger) Error(string, ...any) {}

func (s *testServer) do(t *testing.T, r *http.Request) *httptest.ResponseRecorder {
	t.Helper()
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, r)
	return w
}

func (s *testServer) admin(t *testing.T, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	r := httptest.NewRequest(method, path, strings.NewReader(body))
	r.Header.Set(adminHeader, "me@example.com")
	return s.do(t, r)
}

func (s *testServer) unlock(t *testing.T, key, password string) *httptest.ResponseRecorder {
	t.Helper()
	return s.do(t, unlockRequest(key, password))
}

func unlockRequest(key, password string) *http.Request {
	form := url.Values{"password": {password}}
	r := httptest.NewRequest(http.MethodPost, "/"+key+"/unlock", strings.NewReader(form.Encode()))
	r.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	r.RemoteAddr = "192.0.2.1:4000"
	return r
}

const scenario = "a -> https://a.com\nb [hunter2] ---\nHello **there**\n---\n"

func TestBulkSaveAndPublicAccess(t *testing.T) {
	s := newTestServer(t)

	w := s.admin(t, http.MethodPut, "/api/v1/admin/bulk", scenario)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var saved struct {
		Data struct {
			SavedCount int `json:"saved_count"`
		} `json:"data"`
	}
	require.NoError(t, json.NewDecoder(w.Body).Decode(&saved))
	assert.Equal(t, 2, saved.Data.SavedCount)

	w = s.do(t, httptest.NewRequest(http.MethodGet, "/a", nil))
	assert.Equal(t, http.StatusFound, w.Code)
	assert.Equal(t, "https://a.com", w.Header().Get("Location"))

	w = s.do(t, httptest.NewRequest(http.MethodGet, "/b", nil))
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Contains(t, w.Body.String(), `action="/b/unlock"`)
	assert.NotContains(t, w.Body.String(), "Hello")

	w = s.do(t, httptest.NewRequest(http.MethodGet, "/b/raw", nil))
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Equal(t, "unauthorized\n", w.Body.String())

	w = s.do(t, httptest.NewRequest(http.MethodGet, "/missing", nil))
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestUnlockFlow(t *testing.T) {
	s := newTestServer(t)
	s.admin(t, http.MethodPut, "/api/v1/admin/bulk", scenario)

	w := s.unlock(t, "b", "wrong")
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Contains(t, w.Body.String(), "Incorrect password")

	w = s.unlock(t, "missing", "anything")
	assert.Equal(t, http.StatusUnauthorized, w.Code, "missing keys look like wrong passwords")

	w = s.unlock(t, "b", "hunter2")
	require.Equal(t, http.StatusSeeOther, w.Code)
	assert.Equal(t, "/b", w.Header().Get("Location"))

	cookies := w.Result().Cookies()
	require.Len(t, cookies, 1)
	c := cookies[0]
	assert.Equal(t, UnlockCookieName, c.Name)
	assert.Equal(t, "/b", c.Path)
	assert.True(t, c.HttpOnly)
	assert.True(t, c.Secure)
	assert.Equal(t, http.SameSiteLaxMode, c.SameSite)
	assert.Equal(t, int(service.DefaultUnlockTTL.Seconds()), c.MaxAge)

	r := httptest.NewRequest(http.MethodGet, "/b", nil)
	r.AddCookie(c)
	w = s.do(t, r)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "<strong>there</strong>")

	r = httptest.NewRequest(http.MethodGet, "/b/raw", nil)
	r.AddCookie(c)
	w = s.do(t, r)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "Hello **there**", w.Body.String())
}

func TestUnlockCookieIsScopedToKey(t *testing.T) {
	s := newTestServer(t)
	s.admin(t, http.MethodPut, "/api/v1/admin/bulk", "x [one] -> https://x.example\ny [one] -> https://y.example\n")

	w := s.unlock(t, "x", "one")
	require.Equal(t, http.StatusSeeOther, w.Code)
	c := w.Result().Cookies()[0]

	r := httptest.NewRequest(http.MethodGet, "/y", nil)
	r.AddCookie(c)
	w = s.do(t, r)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestUnlockRateLimited(t *testing.T) {
	s := newTestServer(t)
	s.admin(t, http.MethodPut, "/api/v1/admin/bulk", scenario)

	for i := 0; i < ratelimit.DefaultMaxAttempts; i++ {
		w := s.unlock(t, "b", "wrong")
		require.Equal(t, http.StatusUnauthorized, w.Code)
	}

	w := s.unlock(t, "b", "hunter2")
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.NotEmpty(t, w.Header().Get("Retry-After"))
}

func TestUnlockIgnoresSpoofedForwardingHeaders(t *testing.T) {
	s := newTestServer(t)
	s.admin(t, http.MethodPut, "/api/v1/admin/bulk", scenario)

	throttled := 0
	for i := 0; i < 30; i++ {
		r := unlockRequest("b", "wrong")
		r.Header.Set("X-Forwarded-For", fmt.Sprintf("10.0.0.%d", i))
		r.Header.Set("X-Real-IP", fmt.Sprintf("10.0.1.%d", i))
		if s.do(t, r).Code == http.StatusTooManyRequests {
			throttled++
		}
	}

	assert.Equal(t, 30-ratelimit.DefaultMaxAttempts, throttled)
}

func TestUnlockTrustedProxyUsesLastHop(t *testing.T) {
	s := newTestServerWith(t, PublicConfig{CookieSecure: true, TrustProxyHeaders: true})
	s.admin(t, http.MethodPut, "/api/v1/admin/bulk", scenario)

	for i := 0; i < ratelimit.DefaultMaxAttempts; i++ {
		r := unlockRequest("b", "wrong")
		r.Header.Set("X-Forwarded-For", fmt.Sprintf("10.0.0.%d, 203.0.113.7", i))
		require.Equal(t, http.StatusUnauthorized, s.do(t, r).Code)
	}

	r := unlockRequest("b", "wrong")
	r.Header.Set("X-Forwarded-For", "10.9.9.9, 203.0.113.7")
	assert.Equal(t, http.StatusTooManyRequests, s.do(t, r).Code, "client chosen prefixes do not reset the limit")

	r = unlockRequest("b", "hunter2")
	r.Header.Set("X-Forwarded-For", "203.0.113.8")
	assert.Equal(t, http.StatusSeeOther, s.do(t, r).Code, "a different edge-reported peer is its own client")
}

func TestAdminRequiresIdentity(t *testing.T) {
	s := newTestServer(t)

	w := s.do(t, httptest.NewRequest(http.MethodGet, "/api/v1/admin/bulk", nil))
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	r := httptest.NewRequest(http.MethodGet, "/api/v1/admin/bulk", nil)
	r.Header.Set(adminHeader, "stranger@example.com")
	w = s.do(t, r)
	assert.Equal(t, http.StatusForbidden, w.Code)
}

func TestBulkExportAndRejection(t *testing.T) {
	s := newTestServer(t)
	s.admin(t, http.MethodPut, "/api/v1/admin/bulk", scenario)

	w := s.admin(t, http.MethodGet, "/api/v1/admin/bulk", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "b [********] ---\nHello **there**\n---\n")
	assert.NotContains(t, w.Body.String(), "hunter2")

	w = s.admin(t, http.MethodPut, "/api/v1/admin/bulk", "oops\n")
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
	assert.Contains(t, w.Body.String(), "unrecognized format at line 1")

	w = s.do(t, httptest.NewRequest(http.MethodGet, "/a", nil))
	assert.Equal(t, http.StatusFound, w.Code, "rejected save leaves records alone")
}

func TestBulkPreview(t *testing.T) {
	s := newTestServer(t)
	s.admin(t, http.MethodPut, "/api/v1/admin/bulk", scenario)

	w := s.admin(t, http.MethodPost, "/api/v1/admin/bulk/preview", "a -> https://changed.example\n")
	require.Equal(t, http.StatusOK, w.Code)

	var body struct {
		Data struct {
			Removed []string `json:"removed"`
			Changed []string `json:"changed"`
		} `json:"data"`
	}
	require.NoError(t, json.NewDecoder(w.Body).Decode(&body))
	assert.Equal(t, []string{"b"}, body.Data.Removed)
	assert.Equal(t, []string{"a"}, body.Data.Changed)
}

func TestRecordsCRUD(t *testing.T) {
	s := newTestServer(t)

	w := s.admin(t, http.MethodPut, "/api/v1/admin/records/todo", `{"type":"note","content":"- [ ] milk","password":"pw"}`)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Contains(t, w.Body.String(), `"has_password":true`)
	assert.NotContains(t, w.Body.String(), "password_hash")

	w = s.admin(t, http.MethodPut, "/api/v1/admin/records/admin", `{"type":"uri","content":"https://x.example"}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = s.admin(t, http.MethodPut, "/api/v1/admin/records/bad", `{"type":"uri","content":"mailto:x@example.com"}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = s.admin(t, http.MethodGet, "/api/v1/admin/records", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"key":"todo"`)

	w = s.admin(t, http.MethodGet, "/api/v1/admin/records/todo", "")
	assert.Equal(t, http.StatusOK, w.Code)

	w = s.admin(t, http.MethodDelete, "/api/v1/admin/records/todo", "")
	assert.Equal(t, http.StatusNoContent, w.Code)

	w = s.admin(t, http.MethodGet, "/api/v1/admin/records/todo", "")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestHealth(t *testing.T) {
	s := newTestServer(t)
	w := s.do(t, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestChangeFeed(t *testing.T) {
	s := newTestServer(t)
	srv := httptest.NewServer(s.router)
	defer srv.Close()
	defer s.manager.CloseAll()

	header := http.Header{}
	header.Set(adminHeader, "me@example.com")
	conn, _, err := ws.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http")+"/api/v1/admin/ws", header)
	require.NoError(t, err)
	defer conn.Close()

	conn.SetReadDeadline(time.Now().Add(5 * time.Second))

	var msg websocket.Message
	require.NoError(t, conn.ReadJSON(&msg))
	assert.Equal(t, websocket.TypeHello, msg.Type)

	req, _ := http.NewRequest(http.MethodPut, srv.URL+"/api/v1/admin/bulk", strings.NewReader(scenario))
	req.Header.Set(adminHeader, "me@example.com")
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	require.NoError(t, conn.ReadJSON(&msg))
	assert.Equal(t, websocket.TypeRecordsChanged, msg.Type)

	var payload websocket.RecordsChangedPayload
	require.NoError(t, msg.UnmarshalPayload(&payload))
	assert.Equal(t, "me@example.com", payload.Actor)
	assert.ElementsMatch(t, []string{"a", "b"}, payload.Saved)
}
