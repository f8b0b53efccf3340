package main

import (
	"encoding/json"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeNet struct {
	mu       sync.Mutex
	handlers map[string]func(json.RawMessage)
	sent     []ClientMessage
}

func newFakeNet() *fakeNet {
	return &fakeNet{handlers: make(map[string]func(json.RawMessage))}
}

func (f *fakeNet) On(event string, fn func(payload json.RawMessage)) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.handlers[event] = fn
}

func (f *fakeNet) Send(msg any) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if cm, ok := msg.(ClientMessage); ok {
		f.sent = append(f.sent, cm)
	}
}

func (f *fakeNet) emit(t *testing.T, event string, msg any) {
	t.Helper()
	payload, err := json.Marshal(msg)
	require.NoError(t, err)
	f.mu.Lock()
	handler := f.handlers[event]
	f.mu.Unlock()
	require.NotNil(t, handler, "no handler for %q", event)
	handler(payload)
}

func (f *fakeNet) sentOfType(msgType string) []ClientMessage {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []ClientMessage
	for _, m := range f.sent {
		if m.Type == msgType {
			out = append(out, m)
		}
	}
	return out
}

func newTestSession(t *testing.T, seed int64) (*GameSession, *fakeNet, *manualClock) {
	t.Helper()

	net := newFakeNet()
	clock := newManualClock()
	doc := NewMemoryDocument()
	container := doc.CreateElement("div")

	start := GameStartMessage{
		Type: "gameStart",
		Seed: seed,
		Players: []PlayerState{
			{PlayerID: 1, Nickname: "alpha", Position: SpawnPosition(1, DefaultMapWidth, DefaultMapHeight), Lives: StartingLives},
			{PlayerID: 2, Nickname: "beta", Position: SpawnPosition(2, DefaultMapWidth, DefaultMapHeight), Lives: StartingLives},
		},
	}

	session := NewGameSession(net, clock, doc, container, start, 1)
	t.Cleanup(session.Close)
	return session, net, clock
}

func findByClass(n *MemoryNode, class string) *MemoryNode {
	if got, ok := n.Attribute("class"); ok && got == class {
		return n
	}
	for i := 0; i < n.ChildCount(); i++ {
		if child, ok := n.ChildAt(i).(*MemoryNode); ok {
			if found := findByClass(child, class); found != nil {
				return found
			}
		}
	}
	return nil
}

func TestHUDMountsPlayerCards(t *testing.T) {
	net := newFakeNet()
	doc := NewMemoryDocument()
	container := doc.CreateElement("div").(*MemoryNode)

	start := GameStartMessage{
		Type: "gameStart",
		Seed: 42,
		Players: []PlayerState{
			{PlayerID: 1, Nickname: "alpha", Position: SpawnPosition(1, DefaultMapWidth, DefaultMapHeight), Lives: StartingLives},
			{PlayerID: 2, Nickname: "beta", Position: SpawnPosition(2, DefaultMapWidth, DefaultMapHeight), Lives: StartingLives},
		},
	}
	session := NewGameSession(net, newManualClock(), doc, container, start, 1)
	t.Cleanup(session.Close)

	status := findByClass(container, "player-status")
	require.NotNil(t, status)
	assert.Equal(t, 2, status.ChildCount())

	card := findByClass(container, "player-card")
	require.NotNil(t, card)
	assert.Contains(t, card.Text(), "alpha")

	net.emit(t, "gameOver", GameOverMessage{Type: "gameOver"})
	assert.NotNil(t, findByClass(container, "game-over-overlay"))
}

func TestSessionBuildsSameArenaFromSameSeed(t *testing.T) {
	a, _, _ := newTestSession(t, 42)
	b, _, _ := newTestSession(t, 42)

	for y := 0; y < DefaultMapHeight; y++ {
		for x := 0; x < DefaultMapWidth; x++ {
			assert.Equal(t, a.CellAt(x, y), b.CellAt(x, y), "cell (%d,%d)", x, y)
		}
	}
}

func TestLocalMovementBroadcastsPosition(t *testing.T) {
	session, net, _ := newTestSession(t, 42)

	session.Input().Press("d")
	session.Step()

	local := session.LocalPlayer()
	assert.Equal(t, 62.0, local.Position.X)
	assert.Equal(t, 60.0, local.Position.Y)
	assert.Equal(t, DirRight, local.Direction)

	moves := net.sentOfType("playerMove")
	require.Len(t, moves, 1)
	assert.Equal(t, 62.0, moves[0].Position.X)
	assert.Equal(t, 1, moves[0].Movement.DX)
}

func TestBorderWallBlocksMovement(t *testing.T) {
	session, net, _ := newTestSession(t, 42)

	session.Input().Press("w")
	session.Step()

	local := session.LocalPlayer()
	assert.Equal(t, 60.0, local.Position.X)
	assert.Equal(t, 60.0, local.Position.Y)
	assert.Empty(t, net.sentOfType("playerMove"), "blocked movement should not broadcast")
}

func TestBombPlacementRespectsCap(t *testing.T) {
	session, net, _ := newTestSession(t, 42)

	session.Input().Press(" ")
	session.Step()

	assert.Equal(t, CellBomb, session.CellAt(1, 1))
	require.Len(t, net.sentOfType("placeBomb"), 1)

	// With no bomb powerups a second bomb is refused while the first ticks.
	session.Input().Release(" ")
	session.Input().Press(" ")
	session.Step()
	assert.Len(t, net.sentOfType("placeBomb"), 1)
}

func TestOwnBombPassThroughExpiresOnLeaving(t *testing.T) {
	session, net, _ := newTestSession(t, 42)

	session.Input().Press(" ")
	session.Step()
	session.Input().Release(" ")
	require.Len(t, net.sentOfType("placeBomb"), 1)

	// The placer can walk off their own bomb.
	session.Input().Press("d")
	for i := 0; i < 15; i++ {
		session.Step()
	}
	local := session.LocalPlayer()
	require.Equal(t, GridPosition{X: 2, Y: 1}, local.GridPosition())
	session.Input().Release("d")

	// Once off the tile the bomb turns solid again.
	session.Input().Press("a")
	session.Step()
	assert.Equal(t, 90.0, local.Position.X, "bomb tile should block re-entry")
}

func TestFuseDetonationDamagesAndBroadcasts(t *testing.T) {
	session, net, clock := newTestSession(t, 42)

	session.Input().Press(" ")
	session.Step()
	require.Equal(t, CellBomb, session.CellAt(1, 1))

	clock.Advance(BombFuse)

	assert.NotEqual(t, CellBomb, session.CellAt(1, 1))

	explosions := net.sentOfType("bombExploded")
	require.Len(t, explosions, 1)
	assert.Contains(t, explosions[0].ExplosionCells, GridPosition{X: 1, Y: 1})

	// Standing on the bomb costs a life and reports the death.
	local := session.LocalPlayer()
	assert.Equal(t, StartingLives-1, local.Lives)
	assert.True(t, local.IsInvincible)
	require.Len(t, net.sentOfType("playerDied"), 1)

	// The invincibility window expires through the session's own timer
	// path, so the flag flips even while the frame loop keeps reading it.
	clock.Advance(InvincibilityDuration)
	assert.False(t, local.IsInvincible)
}

func TestFlamesClearAfterDuration(t *testing.T) {
	session, _, clock := newTestSession(t, 42)

	session.Input().Press(" ")
	session.Step()
	clock.Advance(BombFuse)

	session.mu.Lock()
	burning := len(session.flames)
	session.mu.Unlock()
	require.NotZero(t, burning)

	clock.Advance(FlameDuration)

	session.mu.Lock()
	defer session.mu.Unlock()
	assert.Empty(t, session.flames)
}

func TestRemoteBombMirroredAndResolvedByBroadcast(t *testing.T) {
	session, net, _ := newTestSession(t, 42)

	net.emit(t, "bombPlaced", BombPlacedMessage{
		Type:     "bombPlaced",
		PlayerID: 2,
		Position: GridPosition{X: 13, Y: 1},
		BombID:   "2_1700000000000",
	})
	assert.Equal(t, CellBomb, session.CellAt(13, 1))

	net.emit(t, "bombExploded", BombExplodedMessage{
		Type:           "bombExploded",
		BombID:         "2_1700000000000",
		ExplosionCells: []GridPosition{{X: 13, Y: 1}, {X: 12, Y: 1}},
	})
	assert.NotEqual(t, CellBomb, session.CellAt(13, 1))
	// Remote blasts are applied, never re-broadcast.
	assert.Empty(t, net.sentOfType("bombExploded"))
}

func TestChainReactionDetonatesAfterStagger(t *testing.T) {
	session, net, clock := newTestSession(t, 42)

	net.emit(t, "bombPlaced", BombPlacedMessage{
		Type:     "bombPlaced",
		PlayerID: 2,
		Position: GridPosition{X: 1, Y: 2},
		BombID:   "2_1700000000000",
	})

	session.Input().Press(" ")
	session.Step()
	clock.Advance(BombFuse)

	// The neighbour is caught in the blast but detonates staggered.
	assert.Equal(t, CellBomb, session.CellAt(1, 2))
	require.Len(t, net.sentOfType("bombExploded"), 1)

	clock.Advance(ChainReactionStagger)
	assert.NotEqual(t, CellBomb, session.CellAt(1, 2))
	assert.Len(t, net.sentOfType("bombExploded"), 2)
}

func TestPowerupPickupBroadcasts(t *testing.T) {
	session, net, _ := newTestSession(t, 42)

	session.mu.Lock()
	session.grid[1][2] = CellSpeedPowerup
	session.mu.Unlock()

	session.Input().Press("d")
	for i := 0; i < 15; i++ {
		session.Step()
	}

	local := session.LocalPlayer()
	assert.Equal(t, 1, local.Powerups.Speed)
	assert.Equal(t, CellEmpty, session.CellAt(2, 1))

	pickups := net.sentOfType("powerupCollected")
	require.Len(t, pickups, 1)
	assert.Equal(t, CellSpeedPowerup, pickups[0].PowerupType)
}

func TestRemotePowerupCollectionAppliesToEntity(t *testing.T) {
	session, net, _ := newTestSession(t, 42)

	session.mu.Lock()
	session.grid[1][12] = CellBombPowerup
	session.mu.Unlock()

	net.emit(t, "powerupCollected", PowerupCollectedMessage{
		Type:        "powerupCollected",
		PlayerID:    2,
		Position:    GridPosition{X: 12, Y: 1},
		PowerupType: CellBombPowerup,
	})

	assert.Equal(t, CellEmpty, session.CellAt(12, 1))
	assert.Equal(t, 1, session.Player(2).Powerups.Bombs)
}

func TestRemotePlayerMovementDrivesAnimation(t *testing.T) {
	session, net, _ := newTestSession(t, 42)

	remote := session.Player(2)
	start := remote.Position

	net.emit(t, "playerMoved", PlayerMovedMessage{
		Type:     "playerMoved",
		PlayerID: 2,
		Position: Position{X: start.X - 4, Y: start.Y},
		Movement: Movement{DX: -1, DY: 0},
	})

	assert.Equal(t, start.X-4, remote.Position.X)
	assert.Equal(t, DirLeft, remote.Direction)
	assert.True(t, remote.IsMoving)
}

func TestEliminationTurnsLocalPlayerIntoSpectator(t *testing.T) {
	session, net, _ := newTestSession(t, 42)

	net.emit(t, "playerEliminated", PlayerEliminatedMessage{
		Type:             "playerEliminated",
		PlayerID:         1,
		Nickname:         "alpha",
		EliminationOrder: 1,
	})

	assert.True(t, session.Spectating())
	assert.Equal(t, 0, session.LocalPlayer().Lives)

	// Spectators no longer move or act.
	session.Input().Press("d")
	session.Step()
	assert.Equal(t, 60.0, session.LocalPlayer().Position.X)
	assert.Empty(t, net.sentOfType("playerMove"))
}

func TestServerLifeCountOverridesLocal(t *testing.T) {
	session, net, _ := newTestSession(t, 42)

	net.emit(t, "playerDied", PlayerDiedMessage{Type: "playerDied", PlayerID: 2, Lives: 1})

	remote := session.Player(2)
	assert.Equal(t, 1, remote.Lives)
	assert.True(t, remote.IsInvincible)
}

func TestGameOverFreezesSimulation(t *testing.T) {
	session, net, _ := newTestSession(t, 42)

	winner := &LeaderboardEntry{Rank: 1, PlayerID: 2, Nickname: "beta", Lives: 2}
	net.emit(t, "gameOver", GameOverMessage{
		Type:   "gameOver",
		Winner: winner,
		Leaderboard: []LeaderboardEntry{
			*winner,
			{Rank: 2, PlayerID: 1, Nickname: "alpha"},
		},
	})

	require.True(t, session.Over())

	session.Input().Press("d")
	session.Step()
	assert.Equal(t, 60.0, session.LocalPlayer().Position.X)
	assert.Empty(t, net.sentOfType("playerMove"))
}

func TestDisconnectedPlayerIsRemoved(t *testing.T) {
	session, net, _ := newTestSession(t, 42)

	net.emit(t, "playerDisconnected", PlayerDisconnectedMessage{Type: "playerDisconnected", PlayerID: 2})

	assert.Nil(t, session.Player(2))
	assert.NotNil(t, session.LocalPlayer())
}
