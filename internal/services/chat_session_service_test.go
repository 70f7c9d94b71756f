package services_test

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"lumina_studio_go_backend/internal/models"
	"lumina_studio_go_backend/internal/services"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type MockChatStreamer struct {
	mock.Mock
}

func (m *MockChatStreamer) StreamChat(ctx context.Context, history []models.ChatMessage, message string) (services.ChatStream, error) {
	args := m.Called(ctx, history, message)
	stream, _ := args.Get(0).(services.ChatStream)
	return stream, args.Error(1)
}

type sliceStream struct {
	chunks []string
	err    error
}

func (s *sliceStream) Next() (string, error) {
	if len(s.chunks) == 0 {
		if s.err != nil {
			return "", s.err
		}
		return "", io.EOF
	}
	chunk := s.chunks[0]
	s.chunks = s.chunks[1:]
	return chunk, nil
}

func TestChatSessionService_StreamChatMessage(t *testing.T) {
	ctx := context.Background()
	userID := uuid.New()

	streamer := new(MockChatStreamer)
	css := services.NewChatSessionService(streamer, 10*time.Minute)
	sessionID := css.StartChatSession(userID)

	streamer.On("StreamChat", mock.Anything, []models.ChatMessage(nil), "Hi").
		Return(&sliceStream{chunks: []string{"Hel", "lo"}}, nil).Once()

	var got []string
	reply, err := css.StreamChatMessage(ctx, userID, sessionID, "Hi", func(chunk string) error {
		got = append(got, chunk)
		return nil
	})

	require.NoError(t, err)
	assert.Equal(t, "Hello", reply)
	assert.Equal(t, []string{"Hel", "lo"}, got)

	history, err := css.History(userID, sessionID)
	require.NoError(t, err)
	assert.Equal(t, []models.ChatMessage{{Role: "user", Text: "Hi"}, {Role: "model", Text: "Hello"}}, history)

	streamer.On("StreamChat", mock.Anything, history, "And again").
		Return(&sliceStream{chunks: []string{"Sure"}}, nil).Once()
	_, err = css.StreamChatMessage(ctx, userID, sessionID, "And again", func(string) error { return nil })
	require.NoError(t, err)

	history, _ = css.History(userID, sessionID)
	assert.Len(t, history, 4)
	streamer.AssertExpectations(t)
}

func TestChatSessionService_StreamFailureKeepsHistory(t *testing.T) {
	userID := uuid.New()
	streamer := new(MockChatStreamer)
	css := services.NewChatSessionService(streamer, 10*time.Minute)
	sessionID := css.StartChatSession(userID)

	streamer.On("StreamChat", mock.Anything, mock.Anything, "Hi").
		Return(&sliceStream{chunks: []string{"partial"}, err: errors.New("stream reset")}, nil).Once()

	_, err := css.StreamChatMessage(context.Background(), userID, sessionID, "Hi", func(string) error { return nil })

	assert.ErrorContains(t, err, "stream reset")
	history, _ := css.History(userID, sessionID)
	assert.Empty(t, history)
}

func TestChatSessionService_Ownership(t *testing.T) {
	owner, other := uuid.New(), uuid.New()
	css := services.NewChatSessionService(new(MockChatStreamer), 10*time.Minute)
	sessionID := css.StartChatSession(owner)

	_, err := css.History(other, sessionID)
	assert.ErrorIs(t, err, services.ErrSessionForbidden)

	err = css.TerminateSession(other, sessionID, services.UserInitiated)
	assert.ErrorIs(t, err, services.ErrSessionForbidden)

	require.NoError(t, css.TerminateSession(owner, sessionID, services.UserInitiated))
	_, err = css.History(owner, sessionID)
	assert.ErrorIs(t, err, services.ErrSessionNotFound)
}

func TestChatSessionService_Cleanup(t *testing.T) {
	userID := uuid.New()
	css := services.NewChatSessionService(new(MockChatStreamer), 50*time.Millisecond)

	stale := css.StartChatSession(userID)
	time.Sleep(80 * time.Millisecond)
	fresh := css.StartChatSession(userID)

	css.CleanupExpiredSessions()

	_, err := css.History(userID, stale)
	assert.ErrorIs(t, err, services.ErrSessionNotFound)
	_, err = css.History(userID, fresh)
	assert.NoError(t, err)
}

func TestChatSessionService_TerminateUserSessions(t *testing.T) {
	a, b := uuid.New(), uuid.New()
	css := services.NewChatSessionService(new(MockChatStreamer), time.Minute)
	css.StartChatSession(a)
	css.StartChatSession(a)
	css.StartChatSession(b)

	assert.Equal(t, 2, css.TerminateUserSessions(a))
	assert.Equal(t, 1, css.SessionCount())
}

func TestChatSessionService_StartCleanup(t *testing.T) {
	css := services.NewChatSessionService(new(MockChatStreamer), time.Minute)

	assert.Error(t, css.StartCleanup("not a schedule"))
	require.NoError(t, css.StartCleanup("@every 1m"))
	css.StopCleanup()
}
