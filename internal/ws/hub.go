// Package ws pushes consult events to connected dashboards. Clients
// subscribe to request, channel, and agent feeds and can resume from
// their last acknowledged sequence after a disconnect.
package ws

import (
	"encoding/json"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingInterval   = 54 * time.Second
	replayLimit    = 100
	sendBufferSize = 256
)

// StreamEvent is one replayed event handed back by the streams layer.
type StreamEvent struct {
	Channel   string
	Sequence  int64
	Event     map[string]interface{}
	Timestamp time.Time
}

// StreamsProvider supplies replay and ack-cursor storage. The pubsub
// package implements it over redis streams.
type StreamsProvider interface {
	GetLastSequence(channel, connectionID string) (int64, error)
	AcknowledgeSequence(channel, connectionID string, sequence int64) error
	ReplayEvents(channel string, sinceSeq int64, limit int64) ([]StreamEvent, error)
}

// Event is one message queued for fan-out to a feed's subscribers.
type Event struct {
	Channel string
	Message map[string]interface{}
}

// Hub fans consult events out to subscribed connections. All
// subscription state lives here; connections only know which feeds
// they asked for.
type Hub struct {
	mu      sync.RWMutex
	conns   map[*Conn]bool
	subs    map[string]map[*Conn]bool
	publish chan Event
	streams StreamsProvider
	log     *zap.Logger
}

// Conn is one dashboard connection. userID is the directory id the
// connection authenticated as; it doubles as the replay-cursor key.
type Conn struct {
	ws     *websocket.Conn
	send   chan []byte
	hub    *Hub
	userID string
	subs   map[string]bool
}

func NewHub(log *zap.Logger) *Hub {
	return &Hub{
		conns:   make(map[*Conn]bool),
		subs:    make(map[string]map[*Conn]bool),
		publish: make(chan Event, sendBufferSize),
		log:     log,
	}
}

func (h *Hub) SetStreamsProvider(provider StreamsProvider) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.streams = provider
}

// Run is the fan-out loop. One goroutine owns it for the life of the
// process.
func (h *Hub) Run() {
	for event := range h.publish {
		h.broadcast(event)
	}
}

func (h *Hub) broadcast(event Event) {
	// Same envelope as replayed events, so clients handle live and
	// resumed traffic with one code path.
	frame := map[string]interface{}{
		"type":    "event",
		"channel": event.Channel,
		"data":    event.Message,
	}
	if seq, ok := event.Message["seq"]; ok {
		frame["seq"] = seq
	}
	msg, err := json.Marshal(frame)
	if err != nil {
		h.log.Error("Failed to encode event", zap.String("channel", event.Channel), zap.Error(err))
		return
	}

	// Sends happen under the read lock so no connection can be closed
	// mid-broadcast. The sends never block, so holding it is cheap.
	h.mu.RLock()
	var stalled []*Conn
	for conn := range h.subs[event.Channel] {
		select {
		case conn.send <- msg:
		default:
			stalled = append(stalled, conn)
		}
	}
	h.mu.RUnlock()

	// A connection that cannot keep up gets dropped; it can reconnect
	// and resume from its cursor.
	for _, conn := range stalled {
		h.unregister(conn)
	}
}

// deliver sends one frame to a single connection. The registered check
// under the read lock keeps the send from racing the channel close in
// unregister.
func (h *Hub) deliver(conn *Conn, msg []byte) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if !h.conns[conn] {
		return false
	}
	select {
	case conn.send <- msg:
		return true
	default:
		return false
	}
}

// Publish queues an event for every subscriber of a feed. Non-blocking;
// a full hub drops the event and logs.
func (h *Hub) Publish(channel string, message map[string]interface{}) {
	select {
	case h.publish <- Event{Channel: channel, Message: message}:
	default:
		h.log.Warn("Hub publish queue full, dropping event", zap.String("channel", channel))
	}
}

func (h *Hub) Register(conn *Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.conns[conn] = true
}

func (h *Hub) unregister(conn *Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if !h.conns[conn] {
		return
	}
	delete(h.conns, conn)
	close(conn.send)
	for channel := range conn.subs {
		h.dropSub(channel, conn)
	}
}

// Subscribe adds a connection to a feed.
func (h *Hub) Subscribe(conn *Conn, channel string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.subs[channel] == nil {
		h.subs[channel] = make(map[*Conn]bool)
	}
	h.subs[channel][conn] = true
	conn.subs[channel] = true
}

// Unsubscribe removes a connection from a feed.
func (h *Hub) Unsubscribe(conn *Conn, channel string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.dropSub(channel, conn)
	delete(conn.subs, channel)
}

// dropSub must be called with the hub lock held.
func (h *Hub) dropSub(channel string, conn *Conn) {
	if subs := h.subs[channel]; subs != nil {
		delete(subs, conn)
		if len(subs) == 0 {
			delete(h.subs, channel)
		}
	}
}

// Acknowledge records how far a connection has consumed a feed.
func (h *Hub) Acknowledge(conn *Conn, channel string, sequence int64) {
	if h.streams == nil {
		return
	}
	if err := h.streams.AcknowledgeSequence(channel, conn.userID, sequence); err != nil {
		h.log.Warn("Failed to record ack",
			zap.String("channel", channel),
			zap.Int64("sequence", sequence),
			zap.Error(err))
	}
}

// Resume replays a feed's events newer than sinceSeq to one connection.
func (h *Hub) Resume(conn *Conn, channel string, sinceSeq int64) {
	if h.streams == nil {
		h.log.Warn("No streams provider, cannot resume", zap.String("channel", channel))
		return
	}

	events, err := h.streams.ReplayEvents(channel, sinceSeq, replayLimit)
	if err != nil {
		h.log.Error("Failed to replay feed",
			zap.String("channel", channel),
			zap.Int64("since", sinceSeq),
			zap.Error(err))
		return
	}

	for _, event := range events {
		frame, _ := json.Marshal(map[string]interface{}{
			"type":    "event",
			"channel": event.Channel,
			"seq":     event.Sequence,
			"data":    event.Event,
		})
		if !h.deliver(conn, frame) {
			h.log.Warn("Replay delivery failed", zap.String("channel", channel))
			return
		}
	}

	h.log.Info("Feed resumed",
		zap.String("channel", channel),
		zap.String("connection", conn.userID),
		zap.Int64("since", sinceSeq),
		zap.Int("count", len(events)))
}

func NewConn(ws *websocket.Conn, hub *Hub, userID string) *Conn {
	return &Conn{
		ws:     ws,
		send:   make(chan []byte, sendBufferSize),
		hub:    hub,
		userID: userID,
		subs:   make(map[string]bool),
	}
}

// canSubscribe restricts personal feeds to their owner. Request and
// channel feeds are open to any authenticated connection.
func (c *Conn) canSubscribe(channel string) bool {
	if agentID, ok := strings.CutPrefix(channel, "agent:"); ok {
		return agentID == c.userID
	}
	return strings.HasPrefix(channel, "request:") || strings.HasPrefix(channel, "channel:")
}

// ReadPump consumes client messages until the connection dies.
func (c *Conn) ReadPump() {
	defer func() {
		c.hub.unregister(c)
		c.ws.Close()
	}()

	c.ws.SetReadDeadline(time.Now().Add(pongWait))
	c.ws.SetPongHandler(func(string) error {
		return c.ws.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, raw, err := c.ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.hub.log.Error("WebSocket read failed", zap.Error(err))
			}
			return
		}

		var msg map[string]interface{}
		if err := json.Unmarshal(raw, &msg); err != nil {
			c.hub.log.Warn("Unparseable client message", zap.Error(err))
			continue
		}
		c.handleMessage(msg)
	}
}

// WritePump drains the send buffer and keeps the connection alive with
// pings.
func (c *Conn) WritePump() {
	ticker := time.NewTicker(pingInterval)
	defer func() {
		ticker.Stop()
		c.ws.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.ws.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.ws.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}
		case <-ticker.C:
			c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (c *Conn) handleMessage(msg map[string]interface{}) {
	msgType, _ := msg["type"].(string)

	switch msgType {
	case "subscribe":
		channel, _ := msg["channel"].(string)
		if channel == "" {
			return
		}
		if !c.canSubscribe(channel) {
			c.sendAck("denied", channel)
			return
		}
		c.hub.Subscribe(c, channel)
		c.sendAck("subscribed", channel)
	case "unsubscribe":
		if channel, _ := msg["channel"].(string); channel != "" {
			c.hub.Unsubscribe(c, channel)
			c.sendAck("unsubscribed", channel)
		}
	case "ack":
		channel, _ := msg["channel"].(string)
		seq, _ := msg["seq"].(float64)
		if channel != "" && seq > 0 {
			c.hub.Acknowledge(c, channel, int64(seq))
		}
	case "resume":
		channel, _ := msg["channel"].(string)
		since, _ := msg["since"].(float64)
		if channel != "" && since >= 0 && c.canSubscribe(channel) {
			c.hub.Resume(c, channel, int64(since))
		}
	case "ping":
		c.sendAck("pong", "")
	default:
		c.hub.log.Warn("Unknown message type", zap.String("type", msgType))
	}
}

func (c *Conn) sendAck(msgType, channel string) {
	ack := map[string]interface{}{
		"type": "ack",
		"ack":  msgType,
	}
	if channel != "" {
		ack["channel"] = channel
	}
	msg, _ := json.Marshal(ack)
	c.hub.deliver(c, msg)
}
