package http

import (
	"bytes"
	"context"
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/json"
	"encoding/pem"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/go-notify-hub/internal/application/notification"
	"github.com/go-notify-hub/internal/application/registry"
	"github.com/go-notify-hub/internal/application/router"
	"github.com/go-notify-hub/internal/application/socket"
	"github.com/go-notify-hub/internal/config"
	"github.com/go-notify-hub/internal/domain"
	jwtinfra "github.com/go-notify-hub/internal/infrastructure/jwt"
	"github.com/go-notify-hub/internal/infrastructure/memory"
	"github.com/go-notify-hub/internal/transport/ws"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

const internalToken = "trusted-caller"

type stack struct {
	srv *httptest.Server
	jwt *jwtinfra.Provider
	hub *ws.Hub
}

func newJWTProvider(t *testing.T) *jwtinfra.Provider {
	t.Helper()
	privKey, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)

	dir := t.TempDir()
	privPath := filepath.Join(dir, "private.pem")
	pubPath := filepath.Join(dir, "public.pem")
	privPEM := pem.EncodeToMemory(&pem.Block{Type: "RSA PRIVATE KEY", Bytes: x509.MarshalPKCS1PrivateKey(privKey)})
	require.NoError(t, os.WriteFile(privPath, privPEM, 0600))
	pubBytes, err := x509.MarshalPKIXPublicKey(&privKey.PublicKey)
	require.NoError(t, err)
	pubPEM := pem.EncodeToMemory(&pem.Block{Type: "PUBLIC KEY", Bytes: pubBytes})
	require.NoError(t, os.WriteFile(pubPath, pubPEM, 0600))

	p, err := jwtinfra.NewProvider(&config.Config{
		JWTPrivateKeyPath: privPath,
		JWTPublicKeyPath:  pubPath,
		JWTExpiry:         time.Hour,
	})
	require.NoError(t, err)
	return p
}

func newStack(t *testing.T) *stack {
	t.Helper()
	hash, err := bcrypt.GenerateFromPassword([]byte(internalToken), bcrypt.MinCost)
	require.NoError(t, err)
	cfg := &config.Config{InternalTokenHash: string(hash), AllowedOrigins: []string{"*"}}
	p := newJWTProvider(t)

	reg := registry.New()
	rt := router.New(reg, nil)
	svc := notification.NewService(notification.ServiceDeps{
		Store:    memory.NewNotificationRepo(),
		Router:   rt,
		Presence: reg,
	})
	hub := ws.NewHub(socket.NewDispatcher(socket.Deps{
		Bindings:      reg,
		Sender:        rt,
		Notifications: svc,
		Tokens:        p,
		RequireToken:  true,
	}), ws.Options{})
	rt.SetSender(hub)

	h, stop := NewRouter(cfg, &Deps{Notifications: svc, Registry: reg, Router: rt, Hub: hub, JWTProvider: p})
	srv := httptest.NewServer(h)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = hub.Shutdown(ctx)
		srv.Close()
		stop()
	})
	return &stack{srv: srv, jwt: p, hub: hub}
}

func (s *stack) do(t *testing.T, method, path string, body interface{}, headers map[string]string) *http.Response {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req, err := http.NewRequest(method, s.srv.URL+path, &buf)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { _ = resp.Body.Close() })
	return resp
}

func (s *stack) bearer(t *testing.T, userID, role string) map[string]string {
	t.Helper()
	token, err := s.jwt.Sign(userID, role)
	require.NoError(t, err)
	return map[string]string{"Authorization": "Bearer " + token}
}

func (s *stack) dial(t *testing.T) *websocket.Conn {
	t.Helper()
	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(s.srv.URL, "http")+"/ws", nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func readFrame(t *testing.T, conn *websocket.Conn) domain.Frame {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	var f domain.Frame
	require.NoError(t, conn.ReadJSON(&f))
	return f
}

func TestRouter_InternalSendReachesSocketAndREST(t *testing.T) {
	s := newStack(t)
	conn := s.dial(t)

	token, err := s.jwt.Sign("u1", "")
	require.NoError(t, err)
	require.NoError(t, conn.WriteJSON(map[string]interface{}{
		"type": domain.EventAuthenticate,
		"data": map[string]string{"userId": "u1", "token": token},
	}))
	assert.Equal(t, domain.EventUnreadNotifications, readFrame(t, conn).Type)
	assert.Equal(t, domain.EventNotificationStats, readFrame(t, conn).Type)
	assert.Equal(t, domain.EventAuthenticated, readFrame(t, conn).Type)

	resp := s.do(t, http.MethodPost, "/v1/internal/notifications/send",
		domain.CreateNotificationRequest{Title: "Deploy", Message: "v2 is live", RecipientID: "u1"},
		map[string]string{"X-Internal-Token": internalToken})
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	f := readFrame(t, conn)
	assert.Equal(t, domain.EventNewNotification, f.Type)
	var pushed domain.NotificationPayload
	require.NoError(t, json.Unmarshal(f.Data, &pushed))
	assert.Equal(t, "Deploy", pushed.Notification.Title)
	assert.Equal(t, domain.EventNotificationStats, readFrame(t, conn).Type)

	resp = s.do(t, http.MethodGet, "/v1/notifications/unread", nil, s.bearer(t, "u1", ""))
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var unread domain.NotificationListPayload
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&unread))
	require.Equal(t, 1, unread.Count)

	resp = s.do(t, http.MethodPut, "/v1/notifications/"+unread.Notifications[0].NotificationID+"/read", nil, s.bearer(t, "u1", ""))
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, domain.EventNotificationUpdated, readFrame(t, conn).Type)
}

func TestRouter_RouteGuards(t *testing.T) {
	s := newStack(t)

	cases := []struct {
		name    string
		method  string
		path    string
		headers map[string]string
		want    int
	}{
		{"internal without token", http.MethodGet, "/v1/internal/socket/stats", nil, http.StatusUnauthorized},
		{"internal with wrong token", http.MethodGet, "/v1/internal/socket/stats", map[string]string{"X-Internal-Token": "nope"}, http.StatusUnauthorized},
		{"internal with token", http.MethodGet, "/v1/internal/socket/stats", map[string]string{"X-Internal-Token": internalToken}, http.StatusOK},
		{"user routes without bearer", http.MethodGet, "/v1/notifications", nil, http.StatusUnauthorized},
		{"admin stats as user", http.MethodGet, "/v1/admin/socket/stats", s.bearer(t, "u1", "user"), http.StatusForbidden},
		{"admin stats as admin", http.MethodGet, "/v1/admin/socket/stats", s.bearer(t, "ops", "admin"), http.StatusOK},
		{"health", http.MethodGet, "/v1/health", nil, http.StatusOK},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			resp := s.do(t, tc.method, tc.path, nil, tc.headers)
			assert.Equal(t, tc.want, resp.StatusCode)
		})
	}
}

func TestRouter_StaticRoutesWinOverIDs(t *testing.T) {
	s := newStack(t)

	resp := s.do(t, http.MethodDelete, "/v1/notifications/all", nil, s.bearer(t, "u1", ""))
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var env struct {
		Count int `json:"count"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&env))
	assert.Equal(t, 0, env.Count)

	resp = s.do(t, http.MethodGet, "/v1/notifications/missing", nil, s.bearer(t, "u1", ""))
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestRouter_IssuedTokenAuthenticatesAndAuditSeesDeletes(t *testing.T) {
	s := newStack(t)
	internal := map[string]string{"X-Internal-Token": internalToken}

	resp := s.do(t, http.MethodPost, "/v1/internal/socket/token", map[string]string{"userId": "u7"}, internal)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	var issued struct {
		Token string `json:"token"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&issued))

	conn := s.dial(t)
	require.NoError(t, conn.WriteJSON(map[string]interface{}{
		"type": domain.EventAuthenticate,
		"data": map[string]string{"userId": "u7", "token": issued.Token},
	}))
	readFrame(t, conn)
	readFrame(t, conn)
	assert.Equal(t, domain.EventAuthenticated, readFrame(t, conn).Type)

	resp = s.do(t, http.MethodPost, "/v1/internal/notifications/send",
		domain.CreateNotificationRequest{Title: "Invoice", Message: "paid", RecipientID: "u7"}, internal)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	var sent struct {
		Notification domain.Notification `json:"notification"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&sent))
	nid := sent.Notification.NotificationID

	resp = s.do(t, http.MethodDelete, "/v1/notifications/"+nid, nil, s.bearer(t, "u7", ""))
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp = s.do(t, http.MethodGet, "/v1/internal/notifications/"+nid, nil, internal)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var audited domain.Notification
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&audited))
	assert.True(t, audited.IsDeleted)
}
