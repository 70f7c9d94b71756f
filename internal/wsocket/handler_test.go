package wsocket

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"lumina_studio_go_backend/internal/models"
	"lumina_studio_go_backend/internal/services"
	"lumina_studio_go_backend/internal/utils/broker"
	"lumina_studio_go_backend/internal/wallet"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeStreamer struct{}

type chunkStream struct {
	chunks []string
}

func (s *chunkStream) Next() (string, error) {
	if len(s.chunks) == 0 {
		return "", io.EOF
	}
	c := s.chunks[0]
	s.chunks = s.chunks[1:]
	return c, nil
}

func (fakeStreamer) StreamChat(_ context.Context, history []models.ChatMessage, message string) (services.ChatStream, error) {
	return &chunkStream{chunks: []string{"echo: ", message}}, nil
}

type fakeSpender struct {
	mu      sync.Mutex
	balance int
	charges int
}

func (s *fakeSpender) Charges() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.charges
}

func (s *fakeSpender) Spend(_ context.Context, userID uuid.UUID, amount int, _ string) (*models.Profile, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.balance < amount {
		return nil, wallet.ErrInsufficientDiamonds
	}
	s.balance -= amount
	s.charges++
	return &models.Profile{ID: userID, Diamonds: s.balance}, nil
}

type fakeLimiter struct {
	mu      sync.Mutex
	allowed int
}

func (l *fakeLimiter) Allow(uuid.UUID) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.allowed == 0 {
		return false
	}
	l.allowed--
	return true
}

type wsEnv struct {
	conn    *websocket.Conn
	broker  *broker.Broker
	spender *fakeSpender
	user    *models.User
}

func newWSEnv(t *testing.T, balance int) *wsEnv {
	return newLimitedWSEnv(t, balance, nil)
}

func newLimitedWSEnv(t *testing.T, balance int, limiter Limiter) *wsEnv {
	t.Helper()
	b := broker.NewBroker()
	spender := &fakeSpender{balance: balance}
	sessions := services.NewChatSessionService(fakeStreamer{}, time.Minute)
	user := &models.User{ID: uuid.New()}
	h := NewHandler(sessions, spender, limiter, b, websocket.Upgrader{}, 1)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		h.HandleWebSocket(w, r, user)
	}))
	t.Cleanup(srv.Close)

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http"), nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })

	return &wsEnv{conn: conn, broker: b, spender: spender, user: user}
}

func (e *wsEnv) read(t *testing.T) Message {
	t.Helper()
	require.NoError(t, e.conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	var msg Message
	require.NoError(t, e.conn.ReadJSON(&msg))
	return msg
}

func (e *wsEnv) startSession(t *testing.T) string {
	t.Helper()
	require.NoError(t, e.conn.WriteJSON(Message{Type: "start"}))
	msg := e.read(t)
	require.Equal(t, "session_started", msg.Type)
	require.NotEmpty(t, msg.SessionID)
	return msg.SessionID
}

func TestHandler_StreamsChat(t *testing.T) {
	env := newWSEnv(t, 3)
	sessionID := env.startSession(t)

	require.NoError(t, env.conn.WriteJSON(Message{Type: "chat", SessionID: sessionID, Content: "hi"}))

	var chunks []string
	for {
		msg := env.read(t)
		require.Equal(t, "ai", msg.Type)
		if msg.Content == endOfMessage {
			break
		}
		chunks = append(chunks, msg.Content)
	}
	assert.Equal(t, []string{"echo: ", "hi"}, chunks)
	assert.Equal(t, 1, env.spender.Charges())
}

func TestHandler_ChatWithoutDiamonds(t *testing.T) {
	env := newWSEnv(t, 0)
	sessionID := env.startSession(t)

	require.NoError(t, env.conn.WriteJSON(Message{Type: "chat", SessionID: sessionID, Content: "hi"}))

	msg := env.read(t)
	assert.Equal(t, "error", msg.Type)
	assert.Equal(t, "Not enough diamonds", msg.Content)
}

func TestHandler_UnknownSessionIsNotCharged(t *testing.T) {
	env := newWSEnv(t, 5)

	require.NoError(t, env.conn.WriteJSON(Message{Type: "chat", SessionID: "nope", Content: "hi"}))

	msg := env.read(t)
	assert.Equal(t, "error", msg.Type)
	assert.Equal(t, 0, env.spender.Charges())
}

func waitForSubscribers(t *testing.T, b *broker.Broker, topic string) {
	t.Helper()
	require.Eventually(t, func() bool { return b.SubscriberCount(topic) > 0 }, 2*time.Second, 10*time.Millisecond)
}

func TestHandler_PushesProfileUpdates(t *testing.T) {
	env := newWSEnv(t, 5)
	topic := services.ProfileUpdateTopic(env.user.ID)
	waitForSubscribers(t, env.broker, topic)

	env.broker.Publish(topic, models.Profile{ID: env.user.ID, Diamonds: 42, Plan: wallet.PlanFree})

	msg := env.read(t)
	assert.Equal(t, "profile_update", msg.Type)
	require.NotNil(t, msg.Profile)
	assert.Equal(t, 42, msg.Profile.Diamonds)
}

func TestHandler_ClosesOnSignOut(t *testing.T) {
	env := newWSEnv(t, 5)
	topic := services.SessionTopic(env.user.ID)
	waitForSubscribers(t, env.broker, topic)

	env.broker.Publish(topic, services.SessionEvent{Event: services.SessionSignedOut})

	msg := env.read(t)
	assert.Equal(t, "session", msg.Type)
	assert.Equal(t, services.SessionSignedOut, msg.Content)

	require.NoError(t, env.conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, _, err := env.conn.ReadMessage()
	assert.Error(t, err)
}

func TestHandler_Ping(t *testing.T) {
	env := newWSEnv(t, 0)

	require.NoError(t, env.conn.WriteJSON(Message{Type: "ping"}))
	assert.Equal(t, "pong", env.read(t).Type)
}

func TestHandler_RateLimitedChatIsNotCharged(t *testing.T) {
	env := newLimitedWSEnv(t, 5, &fakeLimiter{allowed: 1})
	sessionID := env.startSession(t)

	require.NoError(t, env.conn.WriteJSON(Message{Type: "chat", SessionID: sessionID, Content: "hi"}))
	for msg := env.read(t); msg.Content != endOfMessage; msg = env.read(t) {
		require.Equal(t, "ai", msg.Type)
	}

	require.NoError(t, env.conn.WriteJSON(Message{Type: "chat", SessionID: sessionID, Content: "again"}))
	msg := env.read(t)
	assert.Equal(t, "error", msg.Type)
	assert.Equal(t, "Too many requests, slow down", msg.Content)
	assert.Equal(t, 1, env.spender.Charges())
}
