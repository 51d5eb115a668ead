package handler

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"

	"github.com/faltrading/FAL-chat-service/internal/config"
	"github.com/faltrading/FAL-chat-service/internal/domain"
	"github.com/faltrading/FAL-chat-service/internal/middleware"
	"github.com/faltrading/FAL-chat-service/internal/realtime"
	"github.com/faltrading/FAL-chat-service/internal/repository"
	"github.com/faltrading/FAL-chat-service/internal/repository/memory"
	"github.com/faltrading/FAL-chat-service/internal/service"
	"github.com/faltrading/FAL-chat-service/pkg/jwt"
	"github.com/faltrading/FAL-chat-service/pkg/logger"
)

const testSecret = "handler-test-secret"

type testUser struct {
	ID    uuid.UUID
	Name  string
	Token string
}

type testEnv struct {
	t        *testing.T
	router   *gin.Engine
	server   *httptest.Server
	store    *memory.Store
	registry *realtime.Registry
	groupID  uuid.UUID
	alice    testUser
	bob      testUser
	admin    testUser
	outsider testUser
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	gin.SetMode(gin.TestMode)

	cfg := &config.Config{
		Environment: "test",
		JWT:         config.JWTConfig{Secret: testSecret, Issuer: "test"},
		Chat: config.ChatConfig{
			AdminUsername:       "root",
			HistoryDefaultLimit: 50,
			HistoryMaxLimit:     200,
			SendRateLimit:       1000,
			SendRateWindow:      time.Minute,
			WSActionRate:        1000,
			WSActionBurst:       1000,
			WSSendBuffer:        64,
		},
	}
	log := logger.Nop()

	store := memory.NewStore()
	repos := store.Repositories(
		repository.NewPresenceRepository(nil, log),
		repository.NewRateLimitRepository(nil, log),
	)
	registry := realtime.NewRegistry()
	broadcaster := realtime.NewBroadcaster(registry, log)
	services := service.NewServices(repos, broadcaster, cfg, log)
	handlers := NewHandlers(services, registry, broadcaster, nil, cfg, log)
	router := SetupRouter(
		handlers,
		middleware.NewAuthMiddleware(services.Auth, log),
		middleware.NewRateLimitMiddleware(services.RateLimit, log),
		nil,
		cfg,
		log,
	)

	env := &testEnv{
		t:        t,
		router:   router,
		store:    store,
		registry: registry,
		groupID:  uuid.New(),
	}
	env.alice = env.newUser("alice", "")
	env.bob = env.newUser("bob", "")
	env.admin = env.newUser("root", "")
	env.outsider = env.newUser("eve", "")

	store.AddGroup(env.groupID, false)
	store.AddMember(env.groupID, env.alice.ID)
	store.AddMember(env.groupID, env.bob.ID)
	store.AddMember(env.groupID, env.admin.ID)

	env.server = httptest.NewServer(router)
	t.Cleanup(func() {
		registry.CloseAll(websocket.CloseGoingAway, "test done")
		env.server.Close()
	})
	return env
}

func (e *testEnv) newUser(name, role string) testUser {
	e.t.Helper()
	id := uuid.New()
	token, err := jwt.GenerateAccessToken(id, name, role, testSecret, "test", time.Hour)
	require.NoError(e.t, err)
	return testUser{ID: id, Name: name, Token: token}
}

func (e *testEnv) messagesPath(groupID uuid.UUID) string {
	return "/api/v1/chat/groups/" + groupID.String() + "/messages"
}

func (e *testEnv) request(method, path string, user *testUser, body any) *httptest.ResponseRecorder {
	e.t.Helper()
	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(e.t, err)
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if user != nil {
		req.Header.Set("Authorization", "Bearer "+user.Token)
	}
	rec := httptest.NewRecorder()
	e.router.ServeHTTP(rec, req)
	return rec
}

func (e *testEnv) sendMessage(user testUser, content string) domain.MessageView {
	e.t.Helper()
	rec := e.request(http.MethodPost, e.messagesPath(e.groupID), &user, gin.H{"content": content})
	require.Equal(e.t, http.StatusCreated, rec.Code, rec.Body.String())
	var view domain.MessageView
	decode(e.t, rec, &view)
	return view
}

func decode(t *testing.T, rec *httptest.ResponseRecorder, out any) {
	t.Helper()
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), out), rec.Body.String())
}

func (e *testEnv) dial(groupID uuid.UUID, token string) *websocket.Conn {
	e.t.Helper()
	url := "ws" + strings.TrimPrefix(e.server.URL, "http") + "/api/v1/ws/chat/" + groupID.String()
	if token != "" {
		url += "?token=" + token
	}
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(e.t, err)
	e.t.Cleanup(func() { conn.Close() })
	return conn
}

// connect открывает сокет и ждет, пока сервер его зарегистрирует
func (e *testEnv) connect(user testUser) *websocket.Conn {
	e.t.Helper()
	conn := e.dial(e.groupID, user.Token)
	require.Eventually(e.t, func() bool {
		_, ok := e.registry.Lookup(e.groupID, user.ID)
		return ok
	}, 2*time.Second, 10*time.Millisecond)
	return conn
}

type envelope struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

// readUntil пропускает события других типов
func readUntil(t *testing.T, conn *websocket.Conn, eventType string) envelope {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	for {
		_, raw, err := conn.ReadMessage()
		require.NoError(t, err)
		var env envelope
		require.NoError(t, json.Unmarshal(raw, &env))
		if env.Type == eventType {
			return env
		}
	}
}
