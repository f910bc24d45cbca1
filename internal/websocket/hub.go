package websocket

import (
	"encoding/json"
	"net/http"
	"sync"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/Juanpabl/simECG-2022/internal/models"
)

// Hub управляет WebSocket соединениями и рассылает удары прогонов
// подписчикам
type Hub struct {
	log *zap.Logger

	// Зарегистрированные клиенты
	clients map[*Client]bool

	// Канал для регистрации клиентов
	register chan *Client

	// Канал для отмены регистрации клиентов
	unregister chan *Client

	// Канал исходящих сообщений
	broadcast chan envelope

	mu sync.RWMutex
}

// Client представляет WebSocket клиента
type Client struct {
	hub  *Hub
	conn *websocket.Conn

	// Буферизованный канал исходящих сообщений
	send chan []byte

	// ID прогона для фильтрации; пустой - все прогоны
	runID string
}

// BeatMessage - сообщение об одном ударе для фронтенда
type BeatMessage struct {
	RunID   string  `json:"run_id"`
	Seq     int     `json:"seq"`
	RR      float64 `json:"rr"`
	Label   string  `json:"label"`
	State   string  `json:"state"`
	OnsetMS int64   `json:"onset_ms"`
}

// RunCompleteMessage - сообщение о завершении прогона
type RunCompleteMessage struct {
	RunID      string `json:"run_id"`
	TotalBeats int    `json:"total_beats"`
	DurationMS int64  `json:"duration_ms"`
	Status     string `json:"status"`
}

type envelope struct {
	runID string
	data  []byte
}

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		// В продакшене следует проверять домен
		return true
	},
}

// NewHub создает новый Hub
func NewHub(log *zap.Logger) *Hub {
	return &Hub{
		log:        log,
		clients:    make(map[*Client]bool),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		broadcast:  make(chan envelope, 256),
	}
}

// Run запускает Hub
func (h *Hub) Run() {
	for {
		select {
		case client := <-h.register:
			h.mu.Lock()
			h.clients[client] = true
			h.mu.Unlock()
			h.log.Info("websocket client registered", zap.String("run_id", client.runID))

		case client := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				close(client.send)
			}
			h.mu.Unlock()
			h.log.Info("websocket client unregistered")

		case msg := <-h.broadcast:
			h.mu.Lock()
			for client := range h.clients {
				if client.runID != "" && client.runID != msg.runID {
					continue
				}
				select {
				case client.send <- msg.data:
				default:
					delete(h.clients, client)
					close(client.send)
				}
			}
			h.mu.Unlock()
		}
	}
}

// BroadcastBeat отправляет удар подписчикам прогона
func (h *Hub) BroadcastBeat(runID string, seq int, beat models.BeatRecord) {
	msg := BeatMessage{
		RunID:   runID,
		Seq:     seq,
		RR:      beat.RR,
		Label:   beat.Label.String(),
		State:   beat.State.String(),
		OnsetMS: beat.OnsetMS,
	}
	h.send(runID, msg)
}

// BroadcastRunComplete уведомляет подписчиков о завершении прогона
func (h *Hub) BroadcastRunComplete(runID string, stats models.RunStats) {
	msg := RunCompleteMessage{
		RunID:      runID,
		TotalBeats: stats.TotalBeats,
		DurationMS: stats.DurationMS,
		Status:     "completed",
	}
	h.send(runID, msg)
}

func (h *Hub) send(runID string, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		h.log.Error("failed to marshal websocket message", zap.Error(err))
		return
	}
	select {
	case h.broadcast <- envelope{runID: runID, data: data}:
	default:
		h.log.Warn("broadcast channel full, dropping message")
	}
}

// HandleWebSocket обрабатывает WebSocket соединения
func (h *Hub) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Error("failed to upgrade connection", zap.Error(err))
		return
	}

	client := &Client{
		hub:   h,
		conn:  conn,
		send:  make(chan []byte, 256),
		runID: r.URL.Query().Get("run_id"),
	}

	client.hub.register <- client

	go client.writePump()
	go client.readPump()
}

// readPump обрабатывает входящие сообщения от клиента
func (c *Client) readPump() {
	defer func() {
		c.hub.unregister <- c
		c.conn.Close()
	}()

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.hub.log.Error("websocket error", zap.Error(err))
			}
			break
		}
	}
}

// writePump отправляет сообщения клиенту
func (c *Client) writePump() {
	defer c.conn.Close()

	for message := range c.send {
		if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
			c.hub.log.Error("failed to write message", zap.Error(err))
			return
		}
	}
	c.conn.WriteMessage(websocket.CloseMessage, []byte{})
}
