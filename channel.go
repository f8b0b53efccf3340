package main

import (
	"encoding/json"
	"sync"

	"github.com/gorilla/websocket"
)

// GameNet is the slice of the network channel the game session consumes,
// small enough to fake in tests.
type GameNet interface {
	// On registers the handler for a wire event. Dispatch is single-slot:
	// registering twice for the same event replaces the first handler.
	On(event string, fn func(payload json.RawMessage))
	// Send serializes to the wire if the connection is open and silently
	// drops otherwise. Fire-and-forget, no queuing or retry.
	Send(msg any)
}

// NetworkChannel is a thin typed pub/sub wrapper over one WebSocket
// connection: incoming frames are JSON-decoded and dispatched by their
// "type" tag, outgoing messages are fire-and-forget.
type NetworkChannel struct {
	mu       sync.Mutex
	conn     *websocket.Conn
	handlers map[string]func(json.RawMessage)
	open     bool

	// PlayerID is filled in from the playerIdAssigned handshake reply.
	PlayerID int

	onClose func(err error)
}

// DialNetworkChannel connects and sends the join handshake. The caller must
// run ReadLoop to start receiving.
func DialNetworkChannel(url, nickname string) (*NetworkChannel, error) {
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		return nil, err
	}

	c := &NetworkChannel{
		conn:     conn,
		handlers: make(map[string]func(json.RawMessage)),
		open:     true,
	}
	c.Send(ClientMessage{Type: "join", Nickname: nickname})
	return c, nil
}

// newLoopbackChannel builds a channel with no connection, for in-process
// use; Send drops everything and Dispatch still works.
func newLoopbackChannel() *NetworkChannel {
	return &NetworkChannel{handlers: make(map[string]func(json.RawMessage))}
}

func (c *NetworkChannel) On(event string, fn func(payload json.RawMessage)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.handlers[event] = fn
}

// OnClose installs the connection-loss hook.
func (c *NetworkChannel) OnClose(fn func(err error)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onClose = fn
}

func (c *NetworkChannel) Send(msg any) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.open || c.conn == nil {
		return
	}
	// Send errors degrade to a dropped frame, same as a closed socket.
	_ = c.conn.WriteJSON(msg)
}

// ReadLoop pumps frames until the connection dies. It returns the read
// error that ended it.
func (c *NetworkChannel) ReadLoop() error {
	for {
		_, payload, err := c.conn.ReadMessage()
		if err != nil {
			c.mu.Lock()
			c.open = false
			onClose := c.onClose
			c.mu.Unlock()
			if onClose != nil {
				onClose(err)
			}
			return err
		}
		c.Dispatch(payload)
	}
}

// Dispatch decodes one frame and routes it to the registered handler.
// Unknown types are dropped.
func (c *NetworkChannel) Dispatch(frame []byte) {
	var envelope struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(frame, &envelope); err != nil || envelope.Type == "" {
		return
	}

	if envelope.Type == "playerIdAssigned" {
		var msg PlayerIDAssignedMessage
		if err := json.Unmarshal(frame, &msg); err == nil {
			c.mu.Lock()
			c.PlayerID = msg.PlayerID
			c.mu.Unlock()
		}
	}

	c.mu.Lock()
	handler := c.handlers[envelope.Type]
	c.mu.Unlock()

	if handler != nil {
		handler(json.RawMessage(frame))
	}
}

// AssignedPlayerID returns the ID granted by the join handshake, zero until
// playerIdAssigned arrives.
func (c *NetworkChannel) AssignedPlayerID() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.PlayerID
}

// Closed reports whether the connection has been torn down.
func (c *NetworkChannel) Closed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return !c.open
}

func (c *NetworkChannel) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.open = false
	if c.conn != nil {
		_ = c.conn.Close()
	}
}
