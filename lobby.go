package main

import (
	"crypto/rand"
	"fmt"
	"math/big"
	"regexp"
	"sort"
	"strings"
	"sync"
	"time"
)

const (
	MaxRooms          = 100
	MaxPlayersPerRoom = 4

	// The long countdown starts once a second player joins. When it runs
	// out, or a fourth player fills the room, the short final window
	// takes over; the game starts when that one reaches zero.
	LobbyCountdownSeconds    = 20
	FullRoomCountdownSeconds = 10

	// Seconds a finished room lingers on the leaderboard before resetting.
	ResetDelaySeconds = 5

	MinNicknameLength = 3
	MaxNicknameLength = 16

	MinSeed = 1
	MaxSeed = 100
)

var nicknamePattern = regexp.MustCompile(`^[A-Za-z0-9_]+$`)

type roomState int

const (
	roomWaiting roomState = iota
	roomCountdownLong
	roomCountdownShort
	roomPlaying
	roomFinished
)

// RoomPlayer is the server-side record for one seat in a room. The server
// never simulates movement; it only tracks identity, lives and elimination
// order, and relays everything else.
type RoomPlayer struct {
	client           *ArenaClient
	playerID         int
	nickname         string
	lives            int
	eliminated       bool
	eliminationOrder int
}

// Room is one four-seat match. All mutation happens under the owning
// Lobby's lock.
type Room struct {
	id      string
	players map[int]*RoomPlayer

	state      roomState
	countdown  int
	resetTicks int
	seed       int64

	eliminations int

	createdAt  time.Time
	lastActive time.Time
}

// Lobby owns every room and the nickname namespace. One instance per
// server; the tick scheduler and the per-connection read pumps all funnel
// through its lock.
type Lobby struct {
	cfg *Config

	mu          sync.Mutex
	rooms       map[string]*Room
	clientRooms map[string]*Room
	nicknames   map[string]bool

	// Tunables resolved from flags at construction; constants when unset.
	maxRooms       int
	lobbyCountdown int
	fullCountdown  int
	resetDelay     int

	// seedFn picks the shared map seed for a starting game. Swappable so
	// tests get deterministic arenas.
	seedFn func() int64
}

func newLobby(cfg *Config) *Lobby {
	l := &Lobby{
		cfg:            cfg,
		rooms:          make(map[string]*Room),
		clientRooms:    make(map[string]*Room),
		nicknames:      make(map[string]bool),
		maxRooms:       cfg.maxRooms,
		lobbyCountdown: cfg.lobbyCountdown,
		fullCountdown:  cfg.fullCountdown,
		resetDelay:     cfg.resetDelay,
		seedFn:         randomSeed,
	}
	if l.maxRooms == 0 {
		l.maxRooms = MaxRooms
	}
	if l.lobbyCountdown == 0 {
		l.lobbyCountdown = LobbyCountdownSeconds
	}
	if l.fullCountdown == 0 {
		l.fullCountdown = FullRoomCountdownSeconds
	}
	if l.resetDelay == 0 {
		l.resetDelay = ResetDelaySeconds
	}
	return l
}

func randomSeed() int64 {
	n, err := rand.Int(rand.Reader, big.NewInt(MaxSeed-MinSeed+1))
	if err != nil {
		return MinSeed
	}
	return MinSeed + n.Int64()
}

// run drives the countdown and reset timers at one tick per second until
// the context the caller arranges shuts the process down.
func (l *Lobby) run(stop <-chan struct{}) {
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			l.tick()
		}
	}
}

// tick advances every room's timer by one second.
func (l *Lobby) tick() {
	l.mu.Lock()
	defer l.mu.Unlock()

	for _, room := range l.rooms {
		switch room.state {
		case roomCountdownLong:
			room.countdown--
			l.broadcast(room, CountdownTickMessage{Type: "countdownTick", Seconds: room.countdown})
			if room.countdown <= 0 {
				l.startFinalCountdown(room)
			}
		case roomCountdownShort:
			room.countdown--
			l.broadcast(room, CountdownTickMessage{Type: "countdownTick", Seconds: room.countdown})
			if room.countdown <= 0 {
				l.startGame(room)
			}
		case roomFinished:
			room.resetTicks--
			if room.resetTicks <= 0 {
				l.resetRoom(room)
			}
		}
	}
}

// validateNickname returns a client-facing reason, or "" when acceptable.
func validateNickname(nickname string) string {
	if len(nickname) < MinNicknameLength || len(nickname) > MaxNicknameLength {
		return fmt.Sprintf("Nickname must be between %d and %d characters.", MinNicknameLength, MaxNicknameLength)
	}
	if !nicknamePattern.MatchString(nickname) {
		return "Nickname may only contain letters, numbers and underscores."
	}
	return ""
}

// HandleJoin seats a new connection: nickname checks, room assignment and
// the join handshake.
func (l *Lobby) HandleJoin(c *ArenaClient, msg ClientMessage) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if reason := validateNickname(msg.Nickname); reason != "" {
		l.send(nil, c, InvalidNicknameMessage{Type: "invalidNickname", Reason: reason})
		return
	}

	key := strings.ToLower(msg.Nickname)
	if l.nicknames[key] {
		l.send(nil, c, InvalidNicknameMessage{Type: "invalidNickname", Reason: "That nickname is already taken."})
		return
	}

	room := l.findOpenRoom()
	if room == nil {
		l.send(nil, c, RoomFullMessage{Type: "roomFull"})
		return
	}

	playerID := 0
	for id := 1; id <= MaxPlayersPerRoom; id++ {
		if _, taken := room.players[id]; !taken {
			playerID = id
			break
		}
	}
	if playerID == 0 {
		l.send(nil, c, RoomFullMessage{Type: "roomFull"})
		return
	}

	room.players[playerID] = &RoomPlayer{
		client:   c,
		playerID: playerID,
		nickname: msg.Nickname,
		lives:    StartingLives,
	}
	room.lastActive = time.Now()
	l.nicknames[key] = true
	l.clientRooms[c.connID] = room
	c.playerID = playerID
	c.nickname = msg.Nickname

	logf(l.cfg, "ARENA: %q joined room %s as player %d", msg.Nickname, room.id, playerID)

	l.send(room, c, RoomJoinedMessage{Type: "roomJoined", RoomID: room.id})
	l.send(room, c, PlayerIDAssignedMessage{Type: "playerIdAssigned", PlayerID: playerID})
	l.broadcast(room, PlayerCountMessage{Type: "playerCount", Count: len(room.players)})

	switch {
	case room.state == roomWaiting && len(room.players) >= 2:
		room.state = roomCountdownLong
		room.countdown = l.lobbyCountdown
		l.broadcast(room, CountdownTickMessage{Type: "countdownTick", Seconds: room.countdown})
	case room.state == roomCountdownLong && len(room.players) == MaxPlayersPerRoom:
		l.startFinalCountdown(room)
	}
}

// startFinalCountdown switches a room into the short pre-start window.
// The window restarts in full whether the long countdown expired or a
// fourth player cut it short.
func (l *Lobby) startFinalCountdown(room *Room) {
	room.state = roomCountdownShort
	room.countdown = l.fullCountdown
	l.broadcast(room, CountdownTickMessage{Type: "countdownTick", Seconds: room.countdown})
}

// findOpenRoom returns a joinable room, creating one if every existing
// room is full or already playing. Nil means the server is at capacity.
func (l *Lobby) findOpenRoom() *Room {
	var oldest *Room
	for _, room := range l.rooms {
		if room.state != roomWaiting && room.state != roomCountdownLong {
			continue
		}
		if len(room.players) >= MaxPlayersPerRoom {
			continue
		}
		if oldest == nil || room.createdAt.Before(oldest.createdAt) {
			oldest = room
		}
	}
	if oldest != nil {
		return oldest
	}

	if len(l.rooms) >= l.maxRooms {
		return nil
	}

	now := time.Now()
	room := &Room{
		id:         newRoomID(l.rooms),
		players:    make(map[int]*RoomPlayer),
		createdAt:  now,
		lastActive: now,
	}
	l.rooms[room.id] = room
	logf(l.cfg, "ARENA: Created room %s", room.id)
	return room
}

// newRoomID generates a crypto-random room ID that does not collide with
// an existing room.
func newRoomID(existing map[string]*Room) string {
	const letters = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789"
	for {
		buf := make([]byte, 8)
		if _, err := rand.Read(buf); err != nil {
			panic("crypto/rand failure: " + err.Error())
		}
		out := make([]byte, 8)
		for i := range out {
			out[i] = letters[int(buf[i])%len(letters)]
		}
		if _, exists := existing[string(out)]; !exists {
			return string(out)
		}
	}
}

func (l *Lobby) startGame(room *Room) {
	room.state = roomPlaying
	if room.seed == 0 {
		room.seed = l.seedFn()
	}
	room.eliminations = 0
	room.lastActive = time.Now()

	states := make([]PlayerState, 0, len(room.players))
	for _, p := range room.players {
		p.lives = StartingLives
		p.eliminated = false
		p.eliminationOrder = 0
		pos := SpawnPosition(p.playerID, DefaultMapWidth, DefaultMapHeight)
		states = append(states, PlayerState{
			PlayerID: p.playerID,
			Nickname: p.nickname,
			Position: pos,
			GridPosition: GridPosition{
				X: int((pos.X + TileSize/2) / TileSize),
				Y: int((pos.Y + TileSize/2) / TileSize),
			},
			Lives: p.lives,
		})
	}
	sort.Slice(states, func(i, j int) bool { return states[i].PlayerID < states[j].PlayerID })

	logf(l.cfg, "ARENA: Room %s started with %d players, seed %d", room.id, len(states), room.seed)
	l.broadcast(room, GameStartMessage{Type: "gameStart", Seed: room.seed, Players: states})
}

// HandleMessage routes an in-game frame from a seated client.
func (l *Lobby) HandleMessage(c *ArenaClient, msg ClientMessage) {
	l.mu.Lock()
	defer l.mu.Unlock()

	room := l.clientRooms[c.connID]
	if room == nil {
		return
	}
	room.lastActive = time.Now()

	if msg.Type == "chat" {
		if msg.Message != "" {
			l.broadcast(room, ChatMessage{Type: "chat", Message: c.nickname + ": " + msg.Message})
		}
		return
	}

	if room.state != roomPlaying {
		return
	}
	player := room.players[c.playerID]
	if player == nil || player.eliminated {
		return
	}

	switch msg.Type {
	case "playerMove":
		if msg.Position == nil || msg.GridPosition == nil || msg.Movement == nil {
			return
		}
		l.broadcastExcept(room, c, PlayerMovedMessage{
			Type:         "playerMoved",
			PlayerID:     c.playerID,
			Position:     *msg.Position,
			GridPosition: *msg.GridPosition,
			Movement:     *msg.Movement,
		})
	case "placeBomb":
		if msg.GridPosition == nil || msg.BombID == "" {
			return
		}
		l.broadcastExcept(room, c, BombPlacedMessage{
			Type:     "bombPlaced",
			PlayerID: c.playerID,
			Position: *msg.GridPosition,
			BombID:   msg.BombID,
		})
	case "bombExploded":
		if msg.BombID == "" {
			return
		}
		l.broadcastExcept(room, c, BombExplodedMessage{
			Type:           "bombExploded",
			BombID:         msg.BombID,
			ExplosionCells: msg.ExplosionCells,
		})
	case "wallDestroyed":
		if msg.GridPosition == nil {
			return
		}
		l.broadcastExcept(room, c, WallDestroyedMessage{
			Type:            "wallDestroyed",
			Position:        *msg.GridPosition,
			PowerupRevealed: msg.PowerupRevealed,
		})
	case "powerupCollected":
		if msg.GridPosition == nil {
			return
		}
		l.broadcastExcept(room, c, PowerupCollectedMessage{
			Type:        "powerupCollected",
			PlayerID:    c.playerID,
			Position:    *msg.GridPosition,
			PowerupType: msg.PowerupType,
		})
	case "playerDied":
		l.handleDeath(room, player)
	}
}

// handleDeath applies the authoritative life count, eliminates at zero and
// ends the game when at most one player is left standing.
func (l *Lobby) handleDeath(room *Room, player *RoomPlayer) {
	if player.lives <= 0 {
		return
	}
	player.lives--
	l.broadcast(room, PlayerDiedMessage{Type: "playerDied", PlayerID: player.playerID, Lives: player.lives})

	if player.lives > 0 {
		return
	}

	room.eliminations++
	player.eliminated = true
	player.eliminationOrder = room.eliminations
	logf(l.cfg, "ARENA: %q eliminated from room %s (order %d)", player.nickname, room.id, player.eliminationOrder)
	l.broadcast(room, PlayerEliminatedMessage{
		Type:             "playerEliminated",
		PlayerID:         player.playerID,
		Nickname:         player.nickname,
		EliminationOrder: player.eliminationOrder,
	})

	if l.aliveCount(room) <= 1 {
		l.finishGame(room)
	}
}

func (l *Lobby) aliveCount(room *Room) int {
	alive := 0
	for _, p := range room.players {
		if !p.eliminated {
			alive++
		}
	}
	return alive
}

// finishGame builds the leaderboard and parks the room on the results
// screen until the reset timer returns everyone to the lobby. Survivors
// rank first, then the eliminated in reverse elimination order.
func (l *Lobby) finishGame(room *Room) {
	room.state = roomFinished
	room.resetTicks = l.resetDelay

	ranked := make([]*RoomPlayer, 0, len(room.players))
	for _, p := range room.players {
		ranked = append(ranked, p)
	}
	sort.Slice(ranked, func(i, j int) bool {
		a, b := ranked[i], ranked[j]
		if a.eliminated != b.eliminated {
			return !a.eliminated
		}
		if a.eliminated {
			return a.eliminationOrder > b.eliminationOrder
		}
		return a.playerID < b.playerID
	})

	leaderboard := make([]LeaderboardEntry, 0, len(ranked))
	for i, p := range ranked {
		leaderboard = append(leaderboard, LeaderboardEntry{
			Rank:     i + 1,
			PlayerID: p.playerID,
			Nickname: p.nickname,
			Lives:    p.lives,
		})
	}

	var winner *LeaderboardEntry
	if len(leaderboard) > 0 && !ranked[0].eliminated {
		w := leaderboard[0]
		winner = &w
	}

	if winner != nil {
		logf(l.cfg, "ARENA: Room %s finished, %q wins", room.id, winner.Nickname)
	} else {
		logf(l.cfg, "ARENA: Room %s finished with no survivor", room.id)
	}
	l.broadcast(room, GameOverMessage{Type: "gameOver", Leaderboard: leaderboard, Winner: winner})
}

// resetRoom returns a finished room to the lobby; with enough players
// still seated the next countdown starts immediately.
func (l *Lobby) resetRoom(room *Room) {
	for _, p := range room.players {
		p.lives = StartingLives
		p.eliminated = false
		p.eliminationOrder = 0
	}
	room.eliminations = 0
	room.seed = 0
	room.state = roomWaiting

	l.broadcast(room, ReturnToLobbyMessage{Type: "returnToLobby", Message: "Returning to lobby."})
	l.broadcast(room, PlayerCountMessage{Type: "playerCount", Count: len(room.players)})

	if len(room.players) >= 2 {
		room.state = roomCountdownLong
		room.countdown = l.lobbyCountdown
		l.broadcast(room, CountdownTickMessage{Type: "countdownTick", Seconds: room.countdown})
	}
}

// HandleDisconnect unseats a dropped connection and tears down rooms that
// empty out.
func (l *Lobby) HandleDisconnect(c *ArenaClient) {
	l.mu.Lock()
	defer l.mu.Unlock()

	room := l.clientRooms[c.connID]
	if room == nil {
		return
	}
	delete(l.clientRooms, c.connID)

	player := room.players[c.playerID]
	if player == nil || player.client != c {
		return
	}
	delete(room.players, c.playerID)
	delete(l.nicknames, strings.ToLower(player.nickname))
	room.lastActive = time.Now()

	logf(l.cfg, "ARENA: %q left room %s", player.nickname, room.id)
	l.broadcast(room, PlayerDisconnectedMessage{Type: "playerDisconnected", PlayerID: player.playerID})

	if len(room.players) == 0 {
		delete(l.rooms, room.id)
		logf(l.cfg, "ARENA: Removed empty room %s", room.id)
		return
	}

	switch room.state {
	case roomWaiting, roomCountdownLong, roomCountdownShort:
		l.broadcast(room, PlayerCountMessage{Type: "playerCount", Count: len(room.players)})
		if room.state != roomWaiting && len(room.players) < 2 {
			room.state = roomWaiting
			room.countdown = 0
		}
	case roomPlaying:
		if !player.eliminated && l.aliveCount(room) <= 1 {
			l.finishGame(room)
		}
	}
}

// send delivers to one client; a full outbox drops the client from its
// room entirely, matching the broadcast backpressure rule.
func (l *Lobby) send(room *Room, c *ArenaClient, msg any) {
	select {
	case c.send <- msg:
	default:
		l.evict(room, c)
	}
}

func (l *Lobby) broadcast(room *Room, msg any) {
	for _, p := range room.players {
		l.send(room, p.client, msg)
	}
}

func (l *Lobby) broadcastExcept(room *Room, skip *ArenaClient, msg any) {
	for _, p := range room.players {
		if p.client == skip {
			continue
		}
		l.send(room, p.client, msg)
	}
}

// evict drops a client whose outbox is jammed. The websocket close makes
// the read pump report the disconnect through the normal path.
func (l *Lobby) evict(room *Room, c *ArenaClient) {
	if room == nil {
		return
	}
	if c.conn != nil {
		_ = c.conn.Close()
	}
}
