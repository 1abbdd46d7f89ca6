package websocket

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"onenight-backend/internal/models"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// TokenParser resolves a workspace token to its workspace id.
type TokenParser interface {
	ParseWorkspaceToken(token string) (uuid.UUID, error)
}

// Hub fans workspace events out to every connected browser tab. With Redis
// configured, events travel through workspace_updates:<id> so any replica
// holding the socket can deliver them; without it they are written directly.
type Hub struct {
	mu          sync.RWMutex
	connections map[uuid.UUID][]*client
	redisClient *redis.Client
	tokens      TokenParser
	logger      *zap.Logger
	cancelFuncs map[uuid.UUID]context.CancelFunc
}

// client serializes writes; gorilla connections allow one writer at a time.
type client struct {
	conn *websocket.Conn
	mu   sync.Mutex
}

func (c *client) write(data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn.WriteMessage(websocket.TextMessage, data)
}

func NewHub(redisClient *redis.Client, tokens TokenParser, logger *zap.Logger) *Hub {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Hub{
		connections: make(map[uuid.UUID][]*client),
		redisClient: redisClient,
		tokens:      tokens,
		logger:      logger,
		cancelFuncs: make(map[uuid.UUID]context.CancelFunc),
	}
}

func channelName(workspaceID uuid.UUID) string {
	return "workspace_updates:" + workspaceID.String()
}

func (h *Hub) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	// Browsers cannot set headers on a websocket handshake.
	tokenStr := r.URL.Query().Get("token")
	if tokenStr == "" {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	workspaceID, err := h.tokens.ParseWorkspaceToken(tokenStr)
	if err != nil {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", zap.Error(err))
		return
	}

	c := &client{conn: conn}
	h.registerConnection(workspaceID, c)

	// Keep connection alive and handle disconnect
	go func() {
		defer h.unregisterConnection(workspaceID, c)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				break
			}
		}
	}()
}

func (h *Hub) registerConnection(workspaceID uuid.UUID, c *client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.connections[workspaceID] = append(h.connections[workspaceID], c)

	// Start pub/sub subscription if this is the first connection for this workspace
	if h.redisClient != nil && len(h.connections[workspaceID]) == 1 {
		ctx, cancel := context.WithCancel(context.Background())
		h.cancelFuncs[workspaceID] = cancel
		go h.subscribeToPubSub(ctx, workspaceID)
	}

	h.logger.Debug("websocket connected",
		zap.String("workspace_id", workspaceID.String()),
		zap.Int("connections", len(h.connections[workspaceID])))
}

func (h *Hub) unregisterConnection(workspaceID uuid.UUID, c *client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	c.conn.Close()

	conns := h.connections[workspaceID]
	for i, existing := range conns {
		if existing == c {
			h.connections[workspaceID] = append(conns[:i], conns[i+1:]...)
			break
		}
	}

	// If no more connections, cancel pub/sub
	if len(h.connections[workspaceID]) == 0 {
		delete(h.connections, workspaceID)
		if cancel, ok := h.cancelFuncs[workspaceID]; ok {
			cancel()
			delete(h.cancelFuncs, workspaceID)
		}
	}

	h.logger.Debug("websocket disconnected", zap.String("workspace_id", workspaceID.String()))
}

func (h *Hub) subscribeToPubSub(ctx context.Context, workspaceID uuid.UUID) {
	pubsub := h.redisClient.Subscribe(ctx, channelName(workspaceID))
	defer pubsub.Close()

	ch := pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}
			h.broadcast(workspaceID, []byte(msg.Payload))
		}
	}
}

func (h *Hub) broadcast(workspaceID uuid.UUID, data []byte) {
	h.mu.RLock()
	conns := append([]*client(nil), h.connections[workspaceID]...)
	h.mu.RUnlock()

	for _, c := range conns {
		if err := c.write(data); err != nil {
			h.logger.Debug("websocket write failed", zap.String("workspace_id", workspaceID.String()), zap.Error(err))
		}
	}
}

// Publish delivers msg to the workspace's tabs, through Redis when configured.
func (h *Hub) Publish(ctx context.Context, workspaceID uuid.UUID, msg models.WSMessage) {
	data, err := json.Marshal(msg)
	if err != nil {
		h.logger.Error("failed to encode event", zap.String("type", msg.Type), zap.Error(err))
		return
	}

	if h.redisClient == nil {
		h.broadcast(workspaceID, data)
		return
	}
	if err := h.redisClient.Publish(ctx, channelName(workspaceID), string(data)).Err(); err != nil {
		h.logger.Warn("redis publish failed, delivering locally", zap.String("type", msg.Type), zap.Error(err))
		h.broadcast(workspaceID, data)
	}
}

// Connections reports how many sockets are open for the workspace.
func (h *Hub) Connections(workspaceID uuid.UUID) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.connections[workspaceID])
}
