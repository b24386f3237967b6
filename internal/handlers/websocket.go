package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"golang.org/x/exp/slog"

	"fairplay-casino-backend/internal/lib/logger/sl"
	"fairplay-casino-backend/internal/models"
	"fairplay-casino-backend/internal/services"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = pongWait * 9 / 10
	maxMessageSize = 4096
	sendBuffer     = 64
	broadcastQueue = 1024
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

type Message struct {
	Type   string `json:"type"`
	UserID int64  `json:"user_id,omitempty"`
	GameID string `json:"game_id,omitempty"`
	Data   any    `json:"data,omitempty"`
}

type Client struct {
	UserID int64
	conn   *websocket.Conn
	send   chan []byte
}

// trySend queues a frame without blocking. A client that cannot keep up
// misses the frame.
func (c *Client) trySend(frame []byte) bool {
	select {
	case c.send <- frame:
		return true
	default:
		return false
	}
}

// WebSocketHub pushes game events to connected players. A player may hold
// several connections; closing the last one disconnects the player from
// their games.
type WebSocketHub struct {
	log    *slog.Logger
	engine *services.GameEngine

	mu      sync.RWMutex
	clients map[int64]map[*Client]struct{}

	register   chan *Client
	unregister chan *Client
	broadcast  chan *Message
	done       chan struct{}
}

var _ services.Broadcaster = (*WebSocketHub)(nil)

func NewWebSocketHub(log *slog.Logger, engine *services.GameEngine) *WebSocketHub {
	return &WebSocketHub{
		log:        log.With(slog.String("component", "handlers.websocket")),
		engine:     engine,
		clients:    make(map[int64]map[*Client]struct{}),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		broadcast:  make(chan *Message, broadcastQueue),
		done:       make(chan struct{}),
	}
}

// Run serves the hub until ctx is done.
func (hub *WebSocketHub) Run(ctx context.Context) {
	defer close(hub.done)

	for {
		select {
		case <-ctx.Done():
			hub.mu.RLock()
			for _, set := range hub.clients {
				for client := range set {
					client.conn.Close()
				}
			}
			hub.mu.RUnlock()
			return

		case client := <-hub.register:
			hub.mu.Lock()
			if hub.clients[client.UserID] == nil {
				hub.clients[client.UserID] = make(map[*Client]struct{})
			}
			hub.clients[client.UserID][client] = struct{}{}
			hub.mu.Unlock()
			hub.log.Debug("client registered", sl.Int64("user_id", client.UserID))

		case client := <-hub.unregister:
			hub.remove(client)

		case msg := <-hub.broadcast:
			hub.deliver(msg)
		}
	}
}

func (hub *WebSocketHub) remove(client *Client) {
	hub.mu.Lock()
	set, ok := hub.clients[client.UserID]
	if !ok {
		hub.mu.Unlock()
		return
	}
	if _, ok := set[client]; !ok {
		hub.mu.Unlock()
		return
	}
	delete(set, client)
	close(client.send)
	last := len(set) == 0
	if last {
		delete(hub.clients, client.UserID)
	}
	hub.mu.Unlock()

	hub.log.Debug("client unregistered", sl.Int64("user_id", client.UserID))
	if last {
		go hub.engine.Disconnect(context.Background(), client.UserID)
	}
}

func (hub *WebSocketHub) deliver(msg *Message) {
	frame, err := json.Marshal(msg)
	if err != nil {
		hub.log.Error("failed to marshal message", sl.String("type", msg.Type), sl.Err(err))
		return
	}

	hub.mu.RLock()
	defer hub.mu.RUnlock()

	if msg.UserID != 0 {
		for client := range hub.clients[msg.UserID] {
			if !client.trySend(frame) {
				hub.log.Warn("client too slow, dropping message", sl.Int64("user_id", msg.UserID), sl.String("type", msg.Type))
			}
		}
		return
	}
	for _, set := range hub.clients {
		for client := range set {
			client.trySend(frame)
		}
	}
}

func (hub *WebSocketHub) enqueue(msg *Message) {
	select {
	case hub.broadcast <- msg:
	default:
		hub.log.Warn("broadcast queue full, dropping message", sl.String("type", msg.Type))
	}
}

func (hub *WebSocketHub) SendToUser(userID int64, msgType, gameID string, data any) {
	hub.enqueue(&Message{Type: msgType, UserID: userID, GameID: gameID, Data: data})
}

func (hub *WebSocketHub) BroadcastAll(msgType string, data any) {
	hub.enqueue(&Message{Type: msgType, Data: data})
}

// Connections reports how many sockets the player holds open.
func (hub *WebSocketHub) Connections(userID int64) int {
	hub.mu.RLock()
	defer hub.mu.RUnlock()
	return len(hub.clients[userID])
}

func (hub *WebSocketHub) HandleWebSocket(c *gin.Context) {
	userID := c.GetInt64("user_id")

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		hub.log.Error("failed to upgrade to websocket", sl.Err(err))
		return
	}

	client := &Client{UserID: userID, conn: conn, send: make(chan []byte, sendBuffer)}
	select {
	case hub.register <- client:
	case <-hub.done:
		conn.Close()
		return
	}

	go hub.writePump(client)
	hub.sendBalance(c.Request.Context(), userID)
	hub.readPump(client)

	select {
	case hub.unregister <- client:
	case <-hub.done:
	}
}

func (hub *WebSocketHub) sendBalance(ctx context.Context, userID int64) {
	balance, err := hub.engine.Balance(ctx, userID)
	if err != nil {
		hub.log.Error("failed to get balance", sl.Int64("user_id", userID), sl.Err(err))
		return
	}
	hub.SendToUser(userID, services.MsgBalance, "", models.BalanceResponse{Balance: balance})
}

func (hub *WebSocketHub) readPump(client *Client) {
	client.conn.SetReadLimit(maxMessageSize)
	_ = client.conn.SetReadDeadline(time.Now().Add(pongWait))
	client.conn.SetPongHandler(func(string) error {
		return client.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		var msg Message
		if err := client.conn.ReadJSON(&msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				hub.log.Warn("websocket closed unexpectedly", sl.Int64("user_id", client.UserID), sl.Err(err))
			}
			return
		}

		switch msg.Type {
		case "ping":
			frame, _ := json.Marshal(Message{Type: "pong", Data: gin.H{"timestamp": time.Now().Unix()}})
			client.trySend(frame)
		default:
			hub.log.Debug("ignoring client message", sl.String("type", msg.Type))
		}
	}
}

// writePump owns every write on the connection.
func (hub *WebSocketHub) writePump(client *Client) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		client.conn.Close()
	}()

	for {
		select {
		case frame, ok := <-client.send:
			_ = client.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = client.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := client.conn.WriteMessage(websocket.TextMessage, frame); err != nil {
				return
			}
		case <-ticker.C:
			_ = client.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := client.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-hub.done:
			return
		}
	}
}
