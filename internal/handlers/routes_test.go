package handlers

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"chatline/internal/auth"
	"chatline/internal/delivery"
	"chatline/internal/events"
	"chatline/internal/repositories"
	"chatline/internal/services"
	"chatline/internal/ws"
)

func newTestServer(t *testing.T) (*gin.Engine, *ws.Hub) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	store := repositories.NewMemoryStore()
	authService := auth.NewService(store, "test-secret", time.Hour)
	hub := ws.NewHub()
	bus := events.NewBus(delivery.NewRouter(hub))

	router := NewRouter(Routes{
		ServiceName:   "chatline-test",
		Auth:          NewAuthHandler(authService, services.NewUserService(store, nil), nil, false),
		Messages:      NewMessageHandler(services.NewMessageService(store, store, nil, bus), nil),
		Groups:        NewGroupHandler(services.NewGroupService(store, store, store, nil, bus), nil),
		Presence:      NewPresenceHandler(hub),
		WebSocket:     ws.NewWebSocketHandler(hub, authService, nil).Handle,
		Authenticator: authService,
	})
	return router, hub
}

func doJSON(router *gin.Engine, method, path, body string, cookies ...*http.Cookie) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, bytes.NewBufferString(body))
	req.Header.Set("Content-Type", "application/json")
	for _, c := range cookies {
		req.AddCookie(c)
	}
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func sessionCookie(t *testing.T, rec *httptest.ResponseRecorder) *http.Cookie {
	t.Helper()
	for _, c := range rec.Result().Cookies() {
		if c.Name == auth.CookieName {
			return c
		}
	}
	t.Fatalf("no %s cookie in response", auth.CookieName)
	return nil
}

func TestSignupLoginCheckFlow(t *testing.T) {
	router, _ := newTestServer(t)

	rec := doJSON(router, http.MethodPost, "/api/auth/signup", `{"full_name":"Ada","email":"ada@test.io","password":"secret1"}`)
	require.Equal(t, http.StatusCreated, rec.Code)
	assert.NotContains(t, rec.Body.String(), "password")
	cookie := sessionCookie(t, rec)
	assert.True(t, cookie.HttpOnly)

	rec = doJSON(router, http.MethodPost, "/api/auth/signup", `{"full_name":"Ada","email":"ADA@test.io","password":"secret1"}`)
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = doJSON(router, http.MethodPost, "/api/auth/login", `{"email":"ada@test.io","password":"wrong"}`)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = doJSON(router, http.MethodPost, "/api/auth/login", `{"email":"ada@test.io","password":"secret1"}`)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = doJSON(router, http.MethodGet, "/api/auth/check", "", cookie)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"full_name":"Ada"`)

	rec = doJSON(router, http.MethodGet, "/api/auth/check", "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = doJSON(router, http.MethodPost, "/api/auth/logout", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "", sessionCookie(t, rec).Value)
}

func TestSignupRejectsShortPassword(t *testing.T) {
	router, _ := newTestServer(t)
	rec := doJSON(router, http.MethodPost, "/api/auth/signup", `{"full_name":"Ada","email":"ada@test.io","password":"123"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestGroupLifecycleOverHTTP(t *testing.T) {
	router, _ := newTestServer(t)

	rec := doJSON(router, http.MethodPost, "/api/auth/signup", `{"full_name":"U1","email":"u1@test.io","password":"secret1"}`)
	require.Equal(t, http.StatusCreated, rec.Code)
	u1 := sessionCookie(t, rec)
	rec = doJSON(router, http.MethodPost, "/api/auth/signup", `{"full_name":"U2","email":"u2@test.io","password":"secret1"}`)
	require.Equal(t, http.StatusCreated, rec.Code)
	u2 := sessionCookie(t, rec)
	var signup struct {
		User struct {
			ID int `json:"id"`
		} `json:"user"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &signup))

	rec = doJSON(router, http.MethodPost, "/api/groups", `{"name":"team"}`, u1)
	require.Equal(t, http.StatusCreated, rec.Code)
	var created struct {
		Group struct {
			ID int `json:"id"`
		} `json:"group"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &created))
	base := "/api/groups/" + itoa(created.Group.ID)

	rec = doJSON(router, http.MethodPost, base+"/members", `{"members":[`+itoa(signup.User.ID)+`]}`, u1)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = doJSON(router, http.MethodPut, base, `{"name":"hijack"}`, u2)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = doJSON(router, http.MethodPost, base+"/messages", `{"text":"hi all"}`, u2)
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = doJSON(router, http.MethodGet, base+"/messages", "", u1)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "hi all")

	rec = doJSON(router, http.MethodDelete, base+"/leave", "", u1)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"admin_id":`+itoa(signup.User.ID))

	rec = doJSON(router, http.MethodDelete, base, "", u2)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = doJSON(router, http.MethodGet, base, "", u2)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestPresenceAndHealth(t *testing.T) {
	router, _ := newTestServer(t)

	rec := doJSON(router, http.MethodGet, "/healthz", "")
	require.Equal(t, http.StatusOK, rec.Code)

	rec = doJSON(router, http.MethodPost, "/api/auth/signup", `{"full_name":"U1","email":"u1@test.io","password":"secret1"}`)
	require.Equal(t, http.StatusCreated, rec.Code)
	rec = doJSON(router, http.MethodGet, "/api/presence/online", "", sessionCookie(t, rec))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"online_users":[]}`, rec.Body.String())

	rec = doJSON(router, http.MethodGet, "/metrics", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "chatline_http_requests_total")
}

func TestWebSocketRejectsMissingToken(t *testing.T) {
	router, _ := newTestServer(t)

	rec := doJSON(router, http.MethodGet, "/ws", "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestWebSocketReceivesDirectMessage(t *testing.T) {
	router, hub := newTestServer(t)
	srv := httptest.NewServer(router)
	defer srv.Close()

	var signup struct {
		User struct {
			ID int `json:"id"`
		} `json:"user"`
		Token string `json:"token"`
	}
	rec := doJSON(router, http.MethodPost, "/api/auth/signup", `{"full_name":"Bob","email":"bob@test.io","password":"secret1"}`)
	require.Equal(t, http.StatusCreated, rec.Code)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &signup))
	rec = doJSON(router, http.MethodPost, "/api/auth/signup", `{"full_name":"Alice","email":"alice@test.io","password":"secret1"}`)
	require.Equal(t, http.StatusCreated, rec.Code)
	alice := sessionCookie(t, rec)

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws?token=" + signup.Token
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	defer conn.Close()

	require.Eventually(t, func() bool {
		_, ok := hub.Lookup(signup.User.ID)
		return ok
	}, 2*time.Second, 10*time.Millisecond)

	rec = doJSON(router, http.MethodPost, "/api/messages/send/"+itoa(signup.User.ID), `{"text":"hello bob"}`, alice)
	require.Equal(t, http.StatusCreated, rec.Code)

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	for {
		_, raw, err := conn.ReadMessage()
		require.NoError(t, err)
		var event struct {
			Event string          `json:"event"`
			Data  json.RawMessage `json:"data"`
		}
		require.NoError(t, json.Unmarshal(raw, &event))
		if event.Event == "online-users" {
			continue
		}
		assert.Equal(t, "new-direct-message", event.Event)
		assert.Contains(t, string(event.Data), "hello bob")
		break
	}
}

func itoa(n int) string {
	return strconv.Itoa(n)
}
