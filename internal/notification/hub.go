// Package notification is the websocket channel: round events fan out
// to every client, and authenticated clients can play over the same
// socket. The engine calls the Hub outside its own lock; the Hub never
// blocks the caller, a client that cannot keep up is dropped.
package notification

import (
	"encoding/json"
	"net/http"
	"sync"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	log "github.com/sirupsen/logrus"

	"tonrush/internal/models"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		// Clients connect from the Telegram webview, origin varies.
		return true
	},
}

// Game is the slice of the engine the inbound channel drives.
type Game interface {
	PlaceBet(accountID, name string, amount float64, autoCashout *float64) (models.Bet, error)
	CashOut(accountID string) (models.Bet, error)
}

type Message struct {
	Type    string      `json:"type"`
	Payload interface{} `json:"payload"`
}

type inbound struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

type betPayload struct {
	RoundID string     `json:"roundId"`
	Bet     models.Bet `json:"bet"`
}

type crashPayload struct {
	RoundID    string  `json:"roundId"`
	CrashPoint float64 `json:"crashPoint"`
}

type Client struct {
	conn *websocket.Conn
	send chan Message

	// Set by the auth message; read and written only by this
	// client's readPump goroutine.
	accountID string
	name      string
}

type Hub struct {
	mu      sync.RWMutex
	clients map[*Client]bool
	game    Game
}

func NewHub() *Hub {
	return &Hub{clients: make(map[*Client]bool)}
}

// AttachGame wires the inbound bet/cashout messages to the engine.
// Called once at boot, after the engine exists; the engine itself is
// constructed with the hub as its notifier.
func (h *Hub) AttachGame(g Game) { h.game = g }

// Handle upgrades the connection and registers the client.
func (h *Hub) Handle(c *gin.Context) {
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.WithError(err).Warn("ws: upgrade failed")
		return
	}

	client := &Client{
		conn: conn,
		send: make(chan Message, 256),
	}

	h.mu.Lock()
	h.clients[client] = true
	h.mu.Unlock()

	go client.writePump()
	go client.readPump(h)
}

// Clients returns the number of connected clients.
func (h *Hub) Clients() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

func (c *Client) writePump() {
	defer c.conn.Close()

	for message := range c.send {
		if err := c.conn.WriteJSON(message); err != nil {
			return
		}
	}
}

func (c *Client) readPump(h *Hub) {
	defer func() {
		h.drop(c)
		c.conn.Close()
	}()

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			return
		}
		h.dispatch(c, data)
	}
}

// dispatch routes one inbound message. Failures answer the sending
// client with an error message and never close the connection.
func (h *Hub) dispatch(c *Client, data []byte) {
	var msg inbound
	if err := json.Unmarshal(data, &msg); err != nil {
		h.reply(c, Message{Type: "error", Payload: gin.H{"error": "malformed message"}})
		return
	}

	switch msg.Type {
	case "auth":
		var p struct {
			AccountID string `json:"accountId"`
			Name      string `json:"name"`
		}
		if err := json.Unmarshal(msg.Payload, &p); err != nil || p.AccountID == "" {
			h.reply(c, Message{Type: "error", Payload: gin.H{"error": "auth requires accountId"}})
			return
		}
		c.accountID = p.AccountID
		c.name = p.Name
		h.reply(c, Message{Type: "authed", Payload: gin.H{"accountId": p.AccountID}})

	case "place_bet":
		if c.accountID == "" || h.game == nil {
			h.reply(c, Message{Type: "error", Payload: gin.H{"error": "not authenticated"}})
			return
		}
		var p struct {
			Amount      float64  `json:"amount"`
			AutoCashout *float64 `json:"autoCashout"`
		}
		if err := json.Unmarshal(msg.Payload, &p); err != nil {
			h.reply(c, Message{Type: "error", Payload: gin.H{"error": "malformed message"}})
			return
		}
		if _, err := h.game.PlaceBet(c.accountID, c.name, p.Amount, p.AutoCashout); err != nil {
			h.reply(c, Message{Type: "error", Payload: gin.H{"error": err.Error()}})
		}
		// Success reaches everyone, this client included, as the
		// engine's bet_placed broadcast.

	case "cash_out":
		if c.accountID == "" || h.game == nil {
			h.reply(c, Message{Type: "error", Payload: gin.H{"error": "not authenticated"}})
			return
		}
		if _, err := h.game.CashOut(c.accountID); err != nil {
			h.reply(c, Message{Type: "error", Payload: gin.H{"error": err.Error()}})
		}

	default:
		h.reply(c, Message{Type: "error", Payload: gin.H{"error": "unknown message type"}})
	}
}

// reply queues a message for this client only. The membership check
// under the lock guarantees the send channel is still open.
func (h *Hub) reply(c *Client, msg Message) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	if !h.clients[c] {
		return
	}
	select {
	case c.send <- msg:
	default:
	}
}

func (h *Hub) drop(c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.clients[c] {
		delete(h.clients, c)
		close(c.send)
	}
}

// Broadcast queues the message for every client. A full send queue
// means the client stopped reading; it gets dropped, not waited on.
func (h *Hub) Broadcast(msg Message) {
	h.mu.RLock()
	var stale []*Client
	for client := range h.clients {
		select {
		case client.send <- msg:
		default:
			stale = append(stale, client)
		}
	}
	h.mu.RUnlock()

	for _, client := range stale {
		h.drop(client)
	}
}

// The methods below satisfy the engine's Notifier.

func (h *Hub) GameState(s models.RoundSnapshot) {
	h.Broadcast(Message{Type: "game_state", Payload: s})
}

// Tick carries the full consistent snapshot every 100ms: phase,
// multiplier, bets, and the crash point once the round has crashed.
func (h *Hub) Tick(s models.RoundSnapshot) {
	h.Broadcast(Message{Type: "tick", Payload: s})
}

func (h *Hub) BetPlaced(roundID string, bet models.Bet) {
	h.Broadcast(Message{Type: "bet_placed", Payload: betPayload{RoundID: roundID, Bet: bet}})
}

func (h *Hub) CashedOut(roundID string, bet models.Bet) {
	h.Broadcast(Message{Type: "cashout", Payload: betPayload{RoundID: roundID, Bet: bet}})
}

func (h *Hub) Crashed(roundID string, crashPoint float64) {
	h.Broadcast(Message{Type: "crash", Payload: crashPayload{RoundID: roundID, CrashPoint: crashPoint}})
}
