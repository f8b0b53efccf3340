package main

import (
	"log"
	"net/http"
	"strings"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/julienschmidt/httprouter"
	"github.com/skip2/go-qrcode"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// ArenaClient is one WebSocket connection. connID is assigned at upgrade
// time; playerID and nickname are filled in once the join succeeds.
type ArenaClient struct {
	conn   *websocket.Conn
	send   chan any
	connID string

	playerID int
	nickname string
}

func newArenaClient(conn *websocket.Conn) *ArenaClient {
	return &ArenaClient{
		conn:   conn,
		send:   make(chan any, 32),
		connID: uuid.NewString(),
	}
}

func (c *ArenaClient) readPump(lobby *Lobby) {
	defer func() {
		lobby.HandleDisconnect(c)
		close(c.send)
		_ = c.conn.Close()
	}()

	for {
		var msg ClientMessage
		if err := c.conn.ReadJSON(&msg); err != nil {
			return
		}

		switch msg.Type {
		case "join":
			lobby.HandleJoin(c, msg)
		case "chat", "playerMove", "placeBomb", "bombExploded",
			"wallDestroyed", "powerupCollected", "playerDied":
			lobby.HandleMessage(c, msg)
		default:
			// ignore unknown types
		}
	}
}

func (c *ArenaClient) writePump() {
	defer c.conn.Close()

	for msg := range c.send {
		if err := c.conn.WriteJSON(msg); err != nil {
			return
		}
	}
}

// serveArenaWS upgrades the connection and runs the pumps until it drops.
func serveArenaWS(lobby *Lobby) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			log.Println("upgrade error:", err)
			return
		}

		client := newArenaClient(conn)
		go client.writePump()
		client.readPump(lobby)
	}
}

// qrHandler generates a PNG QR code pointing at the arena URL, so a phone
// can scan its way into the game.
func qrHandler(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	scheme := "http"
	if r.TLS != nil {
		scheme = "https"
	}
	if proto := r.Header.Get("X-Forwarded-Proto"); proto != "" {
		scheme = proto
	}

	path := strings.TrimSuffix(r.URL.Path, "/qr")
	url := scheme + "://" + r.Host + path

	const qrSize = 320
	png, err := qrcode.Encode(url, qrcode.Medium, qrSize)
	if err != nil {
		http.Error(w, "qr generation failed", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "image/png")
	_, _ = w.Write(png)
}

// registerArena sets up routes so that:
//   - $path        → HTML client
//   - $path/ws     → shared matchmaking WebSocket
//   - $path/qr     → PNG QR code for the arena URL
func registerArena(cfg *Config, path string, mux *httprouter.Router, stop <-chan struct{}) *Lobby {
	lobby := newLobby(cfg)

	go lobby.run(stop)

	mux.GET(cfg.prefix+path, getArenaPageHandler(cfg))
	mux.GET(cfg.prefix+path+"/ws", serveArenaWS(lobby))
	mux.GET(cfg.prefix+path+"/qr", qrHandler)

	return lobby
}
