package main

// Wire protocol: JSON text frames over a single persistent WebSocket per
// client, each frame carrying a "type" tag. The server relays gameplay
// events between room members and stays authoritative only for lobby
// phase, lives and elimination order; the simulation itself runs on every
// client from the shared seed.

// Position is a continuous pixel coordinate.
type Position struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// GridPosition is a tile coordinate.
type GridPosition struct {
	X int `json:"x"`
	Y int `json:"y"`
}

// Movement is a normalized direction, each axis in {-1, 0, 1}.
type Movement struct {
	DX int `json:"dx"`
	DY int `json:"dy"`
}

// Powerups tracks how many of each powerup a player has collected.
type Powerups struct {
	Bombs  int `json:"bombs"`
	Flames int `json:"flames"`
	Speed  int `json:"speed"`
}

// Messages coming from clients
type ClientMessage struct {
	Type            string         `json:"type"`                      // "join", "chat", "playerMove", "placeBomb", "bombExploded", "wallDestroyed", "powerupCollected", "playerDied"
	Nickname        string         `json:"nickname,omitempty"`        // join
	Message         string         `json:"message,omitempty"`         // chat
	Position        *Position      `json:"position,omitempty"`        // playerMove
	GridPosition    *GridPosition  `json:"gridPosition,omitempty"`    // playerMove / placeBomb / wallDestroyed / powerupCollected
	Movement        *Movement      `json:"movement,omitempty"`        // playerMove
	BombID          string         `json:"bombId,omitempty"`          // placeBomb / bombExploded
	ExplosionCells  []GridPosition `json:"explosionCells,omitempty"`  // bombExploded
	PowerupRevealed CellType       `json:"powerupRevealed,omitempty"` // wallDestroyed (zero = none)
	PowerupType     CellType       `json:"powerupType,omitempty"`     // powerupCollected
	PlayerID        int            `json:"playerId,omitempty"`        // powerupCollected
}

// PlayerState is the per-player snapshot carried by the gameStart payload
// so every client can bootstrap an identical entity set.
type PlayerState struct {
	PlayerID     int          `json:"playerId"`
	Nickname     string       `json:"nickname"`
	Position     Position     `json:"position"`
	GridPosition GridPosition `json:"gridPosition"`
	Lives        int          `json:"lives"`
	Powerups     Powerups     `json:"powerups"`
}

// LeaderboardEntry is one row of the final ranking. Rank 1 is the survivor
// (or the most recently eliminated player if nobody survived).
type LeaderboardEntry struct {
	Rank     int    `json:"rank"`
	PlayerID int    `json:"playerId"`
	Nickname string `json:"nickname"`
	Lives    int    `json:"lives"`
}

// Messages sent to clients

type RoomJoinedMessage struct {
	Type   string `json:"type"` // "roomJoined"
	RoomID string `json:"roomId"`
}

type PlayerIDAssignedMessage struct {
	Type     string `json:"type"` // "playerIdAssigned"
	PlayerID int    `json:"playerId"`
}

// Sent to a single client when its nickname is rejected; the connection
// stays open so the client may retry.
type InvalidNicknameMessage struct {
	Type   string `json:"type"` // "invalidNickname"
	Reason string `json:"reason"`
}

type RoomFullMessage struct {
	Type string `json:"type"` // "roomFull"
}

type PlayerCountMessage struct {
	Type  string `json:"type"` // "playerCount"
	Count int    `json:"count"`
}

type CountdownTickMessage struct {
	Type    string `json:"type"` // "countdownTick"
	Seconds int    `json:"seconds"`
}

type GameStartMessage struct {
	Type    string        `json:"type"` // "gameStart"
	Seed    int64         `json:"seed"`
	Players []PlayerState `json:"players"`
}

type ChatMessage struct {
	Type    string `json:"type"` // "chat"
	Message string `json:"message"`
}

type PlayerMovedMessage struct {
	Type         string       `json:"type"` // "playerMoved"
	PlayerID     int          `json:"playerId"`
	Position     Position     `json:"position"`
	GridPosition GridPosition `json:"gridPosition"`
	Movement     Movement     `json:"movement"`
}

type BombPlacedMessage struct {
	Type     string       `json:"type"` // "bombPlaced"
	PlayerID int          `json:"playerId"`
	Position GridPosition `json:"position"`
	BombID   string       `json:"bombId"`
}

type BombExplodedMessage struct {
	Type           string         `json:"type"` // "bombExploded"
	BombID         string         `json:"bombId"`
	ExplosionCells []GridPosition `json:"explosionCells"`
}

type WallDestroyedMessage struct {
	Type            string       `json:"type"` // "wallDestroyed"
	Position        GridPosition `json:"position"`
	PowerupRevealed CellType     `json:"powerupRevealed,omitempty"`
}

type PowerupCollectedMessage struct {
	Type        string       `json:"type"` // "powerupCollected"
	PlayerID    int          `json:"playerId"`
	Position    GridPosition `json:"position"`
	PowerupType CellType     `json:"powerupType"`
}

type PlayerDiedMessage struct {
	Type     string `json:"type"` // "playerDied"
	PlayerID int    `json:"playerId"`
	Lives    int    `json:"lives"`
}

type PlayerEliminatedMessage struct {
	Type             string `json:"type"` // "playerEliminated"
	PlayerID         int    `json:"playerId"`
	Nickname         string `json:"nickname"`
	EliminationOrder int    `json:"eliminationOrder"`
}

type PlayerDisconnectedMessage struct {
	Type     string `json:"type"` // "playerDisconnected"
	PlayerID int    `json:"playerId"`
}

type GameOverMessage struct {
	Type        string             `json:"type"` // "gameOver"
	Leaderboard []LeaderboardEntry `json:"leaderboard"`
	Winner      *LeaderboardEntry  `json:"winner"`
}

type ReturnToLobbyMessage struct {
	Type    string `json:"type"` // "returnToLobby"
	Message string `json:"message"`
}
