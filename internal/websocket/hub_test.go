package websocket

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	gorilla "github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"onenight-backend/internal/models"
)

type staticTokens map[string]uuid.UUID

func (s staticTokens) ParseWorkspaceToken(token string) (uuid.UUID, error) {
	id, ok := s[token]
	if !ok {
		return uuid.Nil, errors.New("bad token")
	}
	return id, nil
}

func TestHub_RejectsMissingOrBadToken(t *testing.T) {
	hub := NewHub(nil, staticTokens{}, nil)

	for _, target := range []string{"/ws", "/ws?token=nope"} {
		rec := httptest.NewRecorder()
		hub.HandleWebSocket(rec, httptest.NewRequest(http.MethodGet, target, nil))
		assert.Equal(t, http.StatusUnauthorized, rec.Code, target)
	}
}

func TestHub_PublishWithoutRedisDeliversLocally(t *testing.T) {
	workspaceID := uuid.New()
	hub := NewHub(nil, staticTokens{"good": workspaceID}, nil)
	srv := httptest.NewServer(http.HandlerFunc(hub.HandleWebSocket))
	t.Cleanup(srv.Close)

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "?token=good"
	conn, _, err := gorilla.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })

	require.Eventually(t, func() bool { return hub.Connections(workspaceID) == 1 }, time.Second, 5*time.Millisecond)

	hub.Publish(context.Background(), workspaceID, models.WSMessage{
		Type:    models.EventTick,
		Payload: models.Tick{RemainingSeconds: 59, Clock: "0:59"},
	})
	hub.Publish(context.Background(), uuid.New(), models.WSMessage{Type: models.EventTick})

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, data, err := conn.ReadMessage()
	require.NoError(t, err)

	var got struct {
		Type    string      `json:"type"`
		Payload models.Tick `json:"payload"`
	}
	require.NoError(t, json.Unmarshal(data, &got))
	assert.Equal(t, models.EventTick, got.Type)
	assert.Equal(t, 59, got.Payload.RemainingSeconds)

	conn.Close()
	require.Eventually(t, func() bool { return hub.Connections(workspaceID) == 0 }, time.Second, 5*time.Millisecond)
}
