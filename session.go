package main

import (
	"encoding/json"
	"fmt"
	"sort"
	"sync"
	"time"
)

// GameSession runs one match on the client side: it rebuilds the arena from
// the shared seed, simulates the local player every frame, mirrors remote
// events as they arrive, and keeps the status UI mounted. All entry points
// take the session lock, so network callbacks and the frame loop can run on
// separate goroutines.
type GameSession struct {
	mu sync.Mutex

	net   GameNet
	clock Clock
	input *InputHandler
	ui    *VDOMManager

	localPlayerID  int
	players        map[int]*PlayerEntity
	grid           [][]CellType
	hiddenPowerups map[string]CellType
	mapWidth       int
	mapHeight      int

	activeBombs map[string]*BombEntity
	// passThrough holds bomb tiles the local player was standing on when
	// they were placed; those stay walkable until the player steps off.
	passThrough map[string]bool
	flames      map[string]bool
	flameTimers []Timer

	spectator   bool
	gameOver    bool
	winner      *LeaderboardEntry
	leaderboard []LeaderboardEntry
	closed      bool
	stop        chan struct{}
}

// NewGameSession builds the session from the gameStart payload: every client
// that feeds the same seed in gets the same arena out.
func NewGameSession(net GameNet, clock Clock, doc Document, container Node, start GameStartMessage, localPlayerID int) *GameSession {
	gen := NewMapGenerator(start.Seed, DefaultMapWidth, DefaultMapHeight, DefaultWallDensity, DefaultPowerupChance)
	arena := gen.Generate()

	s := &GameSession{
		net:            net,
		clock:          clock,
		input:          NewInputHandler(),
		localPlayerID:  localPlayerID,
		players:        make(map[int]*PlayerEntity),
		grid:           arena.Grid,
		hiddenPowerups: arena.HiddenPowerups,
		mapWidth:       DefaultMapWidth,
		mapHeight:      DefaultMapHeight,
		activeBombs:    make(map[string]*BombEntity),
		passThrough:    make(map[string]bool),
		flames:         make(map[string]bool),
		stop:           make(chan struct{}),
	}

	for _, p := range start.Players {
		pos := p.Position
		if pos.X == 0 && pos.Y == 0 {
			pos = SpawnPosition(p.PlayerID, DefaultMapWidth, DefaultMapHeight)
		}
		entity := NewPlayerEntity(pos.X, pos.Y, p.PlayerID, clock)
		entity.Nickname = p.Nickname
		entity.IsLocal = p.PlayerID == localPlayerID
		entity.SetTimerGuard(s.guardTimer)
		s.players[p.PlayerID] = entity
	}

	s.ui = NewVDOMManager(doc, container, s.renderStatus, s.statusState())
	_ = s.ui.Mount()

	s.registerHandlers()
	return s
}

// Input exposes the key handler so the host page or bot can feed it.
func (s *GameSession) Input() *InputHandler { return s.input }

// Player returns the entity for a player ID, or nil.
func (s *GameSession) Player(id int) *PlayerEntity {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.players[id]
}

// LocalPlayer returns the entity driven by this client.
func (s *GameSession) LocalPlayer() *PlayerEntity {
	return s.Player(s.localPlayerID)
}

// CellAt reads the current grid cell, clamping nothing: out-of-range
// coordinates return CellWall so callers treat the outside as solid.
func (s *GameSession) CellAt(x, y int) CellType {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cellAt(x, y)
}

func (s *GameSession) cellAt(x, y int) CellType {
	if y < 0 || y >= s.mapHeight || x < 0 || x >= s.mapWidth {
		return CellWall
	}
	return s.grid[y][x]
}

// Spectating reports whether the local player has run out of lives.
func (s *GameSession) Spectating() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.spectator
}

// Over reports whether the match has ended.
func (s *GameSession) Over() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.gameOver
}

// Run drives Step at the given frame interval until Close.
func (s *GameSession) Run(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-s.stop:
			return
		case <-ticker.C:
			s.Step()
		}
	}
}

// Step advances one frame: local movement and actions, then remote
// animation bookkeeping. Frozen once the match ends.
func (s *GameSession) Step() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.gameOver || s.closed {
		return
	}

	if !s.spectator {
		if s.input.ActionKeyPressed() {
			s.input.ConsumeActionKey()
			s.placeLocalBomb()
		}
		s.moveLocalPlayer()
	}

	for _, p := range s.players {
		if !p.IsLocal && p.IsMoving {
			p.AdvanceRemoteFrame()
		}
	}
}

func (s *GameSession) moveLocalPlayer() {
	p := s.players[s.localPlayerID]
	if p == nil || p.Dead() {
		return
	}

	move := s.input.MovementInput()
	speed := p.CurrentSpeed()
	startX, startY := p.Position.X, p.Position.Y

	if move.DX != 0 || move.DY != 0 {
		targetX := startX + float64(move.DX)*speed
		targetY := startY + float64(move.DY)*speed

		// Axes resolve independently so sliding along a wall works.
		if !s.isColliding(targetX, p.Position.Y) {
			p.Position.X = targetX
		} else if move.DY == 0 {
			p.Position.Y = s.cornerAssist(p.Position.Y, targetX, speed, true)
		}
		if !s.isColliding(p.Position.X, targetY) {
			p.Position.Y = targetY
		} else if move.DX == 0 {
			p.Position.X = s.cornerAssist(p.Position.X, targetY, speed, false)
		}
	}

	s.expirePassThrough(p)

	dx := p.Position.X - startX
	dy := p.Position.Y - startY
	p.UpdateAnimation(dx, dy)

	if dx != 0 || dy != 0 {
		s.collectPowerup(p)
		pos := p.Position
		gridPos := p.GridPosition()
		s.net.Send(ClientMessage{
			Type:         "playerMove",
			Position:     &pos,
			GridPosition: &gridPos,
			Movement:     &Movement{DX: move.DX, DY: move.DY},
		})
	}
}

// cornerAssist nudges the cross axis toward tile alignment when a straight
// push is blocked just off a corner, so players do not snag on wall edges.
// axisX says whether the blocked movement was horizontal; the return value
// is the adjusted cross-axis coordinate.
func (s *GameSession) cornerAssist(cross, target, speed float64, axisX bool) float64 {
	aligned := float64(int(cross/TileSize+0.5)) * TileSize
	offset := cross - aligned
	if offset == 0 || offset > CornerHelpRange || offset < -CornerHelpRange {
		return cross
	}

	// Only slide if full alignment would actually open the way.
	var clear bool
	if axisX {
		clear = !s.isColliding(target, aligned)
	} else {
		clear = !s.isColliding(aligned, target)
	}
	if !clear {
		return cross
	}

	step := speed
	if step > abs64(offset) {
		step = abs64(offset)
	}
	if offset > 0 {
		return cross - step
	}
	return cross + step
}

func abs64(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}

// isColliding tests the player's tile-sized box at (x, y) against solid
// cells, shrunk by a small grace margin so near-misses do not catch.
func (s *GameSession) isColliding(x, y float64) bool {
	corners := [4][2]float64{
		{x + CollisionGrace, y + CollisionGrace},
		{x + TileSize - CollisionGrace, y + CollisionGrace},
		{x + CollisionGrace, y + TileSize - CollisionGrace},
		{x + TileSize - CollisionGrace, y + TileSize - CollisionGrace},
	}
	for _, c := range corners {
		gx := int(c[0] / TileSize)
		gy := int(c[1] / TileSize)
		if s.isSolid(gx, gy) {
			return true
		}
	}
	return false
}

func (s *GameSession) isSolid(gx, gy int) bool {
	switch s.cellAt(gx, gy) {
	case CellWall, CellDestructible:
		return true
	case CellBomb:
		return !s.passThrough[tileKey(gx, gy)]
	default:
		return false
	}
}

// expirePassThrough revokes bomb walkability once the local player has
// fully left the bomb's tile.
func (s *GameSession) expirePassThrough(p *PlayerEntity) {
	if len(s.passThrough) == 0 {
		return
	}
	pos := p.GridPosition()
	for key := range s.passThrough {
		var x, y int
		fmt.Sscanf(key, "%d,%d", &x, &y)
		if pos.X != x || pos.Y != y {
			delete(s.passThrough, key)
		}
	}
}

func (s *GameSession) collectPowerup(p *PlayerEntity) {
	pos := p.GridPosition()
	cell := s.cellAt(pos.X, pos.Y)
	switch cell {
	case CellBombPowerup, CellFlamePowerup, CellSpeedPowerup:
	default:
		return
	}

	s.grid[pos.Y][pos.X] = CellEmpty
	p.CollectPowerup(cell)
	s.net.Send(ClientMessage{Type: "powerupCollected", GridPosition: &pos, PowerupType: cell})
	s.refreshUI()
}

// placeLocalBomb drops a bomb at the local player's tile, optimistically:
// the grid updates immediately and the server relays the placement to
// everyone else.
func (s *GameSession) placeLocalBomb() {
	p := s.players[s.localPlayerID]
	if p == nil || p.Dead() {
		return
	}

	active := 0
	for _, b := range s.activeBombs {
		if b.PlayerID == s.localPlayerID {
			active++
		}
	}
	if active >= 1+p.Powerups.Bombs {
		return
	}

	pos := p.GridPosition()
	switch s.cellAt(pos.X, pos.Y) {
	case CellEmpty, CellPlayerSpawn:
	default:
		return
	}

	id := NewBombID(s.localPlayerID, time.Now())
	s.placeBomb(pos, id, s.localPlayerID)
	s.passThrough[tileKey(pos.X, pos.Y)] = true
	s.net.Send(ClientMessage{Type: "placeBomb", GridPosition: &pos, BombID: id})
}

func (s *GameSession) placeBomb(pos GridPosition, id string, ownerID int) {
	if _, dup := s.activeBombs[id]; dup {
		return
	}
	bomb := NewBombEntity(pos.X, pos.Y, id, ownerID)
	s.grid[pos.Y][pos.X] = CellBomb
	s.activeBombs[id] = bomb

	// Only the owner's client runs a fuse and computes the explosion;
	// everyone else waits for the bombExploded broadcast.
	if ownerID == s.localPlayerID {
		bomb.StartFuse(s.clock, func() {
			s.mu.Lock()
			defer s.mu.Unlock()
			s.detonate(bomb)
		})
	}
}

// detonate removes the bomb, computes its blast, applies it locally and
// broadcasts the affected cells.
func (s *GameSession) detonate(bomb *BombEntity) {
	if s.closed {
		return
	}
	if _, live := s.activeBombs[bomb.BombID]; !live {
		return
	}
	bomb.Explode()
	delete(s.activeBombs, bomb.BombID)
	delete(s.passThrough, tileKey(bomb.X, bomb.Y))
	s.grid[bomb.Y][bomb.X] = CellEmpty

	owner := s.players[bomb.PlayerID]
	flamePower := 1
	if owner != nil {
		flamePower = owner.Powerups.Flames + 1
	}
	cells := PropagateExplosion(s.grid, bomb.X, bomb.Y, flamePower)

	s.applyExplosion(bomb.BombID, cells)
	s.net.Send(ClientMessage{Type: "bombExploded", BombID: bomb.BombID, ExplosionCells: cells})
}

// applyExplosion runs the blast effects for each affected cell: flames,
// wall destruction, chained bombs and local damage.
func (s *GameSession) applyExplosion(sourceBombID string, cells []GridPosition) {
	for _, cell := range cells {
		key := tileKey(cell.X, cell.Y)
		s.flames[key] = true
		s.scheduleFlameClear(key)

		switch s.cellAt(cell.X, cell.Y) {
		case CellDestructible:
			s.destroyWall(cell)
		case CellBomb:
			s.chainBombAt(cell, sourceBombID)
		}

		local := s.players[s.localPlayerID]
		if local != nil && !local.Dead() && !s.spectator {
			pos := local.GridPosition()
			if pos.X == cell.X && pos.Y == cell.Y {
				if local.TakeDamage() {
					s.net.Send(ClientMessage{Type: "playerDied"})
					s.refreshUI()
				}
			}
		}
	}
}

// guardTimer runs an entity timer callback under the session lock, the
// same way flame clears and bomb fuses already fire.
func (s *GameSession) guardTimer(fn func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	fn()
}

func (s *GameSession) scheduleFlameClear(key string) {
	t := s.clock.AfterFunc(FlameDuration, func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		delete(s.flames, key)
	})
	s.flameTimers = append(s.flameTimers, t)
}

func (s *GameSession) destroyWall(cell GridPosition) {
	key := tileKey(cell.X, cell.Y)
	revealed := CellEmpty
	if hidden, ok := s.hiddenPowerups[key]; ok {
		revealed = hidden
		delete(s.hiddenPowerups, key)
	}
	s.grid[cell.Y][cell.X] = revealed
	pos := cell
	s.net.Send(ClientMessage{Type: "wallDestroyed", GridPosition: &pos, PowerupRevealed: revealed})
}

// chainBombAt detonates a bomb caught in another blast after a short
// stagger, so chains ripple instead of firing as one flash.
func (s *GameSession) chainBombAt(cell GridPosition, sourceBombID string) {
	for id, b := range s.activeBombs {
		if id == sourceBombID || b.X != cell.X || b.Y != cell.Y {
			continue
		}
		// Chains are resolved by whoever owns the triggering blast.
		chained := b
		b.Explode()
		s.clock.AfterFunc(ChainReactionStagger, func() {
			s.mu.Lock()
			defer s.mu.Unlock()
			s.detonate(chained)
		})
		return
	}
}

// Close tears the session down: the frame loop stops, pending flame and
// fuse timers are cancelled, and further callbacks become no-ops.
func (s *GameSession) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.closed = true
	close(s.stop)
	for _, b := range s.activeBombs {
		b.Explode()
	}
	for _, t := range s.flameTimers {
		t.Stop()
	}
	s.input.Disable()
	s.ui.Unmount()
}

// --- remote event handlers ---

func (s *GameSession) registerHandlers() {
	s.net.On("playerMoved", s.onPlayerMoved)
	s.net.On("bombPlaced", s.onBombPlaced)
	s.net.On("bombExploded", s.onBombExploded)
	s.net.On("wallDestroyed", s.onWallDestroyed)
	s.net.On("powerupCollected", s.onPowerupCollected)
	s.net.On("playerDied", s.onPlayerDied)
	s.net.On("playerEliminated", s.onPlayerEliminated)
	s.net.On("playerDisconnected", s.onPlayerDisconnected)
	s.net.On("gameOver", s.onGameOver)
}

func (s *GameSession) onPlayerMoved(payload json.RawMessage) {
	var msg PlayerMovedMessage
	if json.Unmarshal(payload, &msg) != nil {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	p := s.players[msg.PlayerID]
	if p == nil || p.IsLocal {
		return
	}
	dx := msg.Position.X - p.Position.X
	dy := msg.Position.Y - p.Position.Y
	p.Position = msg.Position
	p.UpdateAnimation(dx, dy)
}

func (s *GameSession) onBombPlaced(payload json.RawMessage) {
	var msg BombPlacedMessage
	if json.Unmarshal(payload, &msg) != nil {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if msg.PlayerID == s.localPlayerID {
		return
	}
	s.placeBomb(msg.Position, msg.BombID, msg.PlayerID)
}

func (s *GameSession) onBombExploded(payload json.RawMessage) {
	var msg BombExplodedMessage
	if json.Unmarshal(payload, &msg) != nil {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if bomb, ok := s.activeBombs[msg.BombID]; ok {
		if bomb.PlayerID == s.localPlayerID {
			// Our own broadcast reflected back; already applied.
			return
		}
		bomb.Explode()
		delete(s.activeBombs, msg.BombID)
		s.grid[bomb.Y][bomb.X] = CellEmpty
	}
	s.applyExplosion(msg.BombID, msg.ExplosionCells)
}

func (s *GameSession) onWallDestroyed(payload json.RawMessage) {
	var msg WallDestroyedMessage
	if json.Unmarshal(payload, &msg) != nil {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cellAt(msg.Position.X, msg.Position.Y) == CellDestructible {
		key := tileKey(msg.Position.X, msg.Position.Y)
		delete(s.hiddenPowerups, key)
		s.grid[msg.Position.Y][msg.Position.X] = msg.PowerupRevealed
	}
}

func (s *GameSession) onPowerupCollected(payload json.RawMessage) {
	var msg PowerupCollectedMessage
	if json.Unmarshal(payload, &msg) != nil {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if msg.PlayerID == s.localPlayerID {
		return
	}
	cell := CellType(msg.PowerupType)
	if s.cellAt(msg.Position.X, msg.Position.Y) == cell {
		s.grid[msg.Position.Y][msg.Position.X] = CellEmpty
	}
	if p := s.players[msg.PlayerID]; p != nil {
		p.CollectPowerup(cell)
	}
	s.refreshUI()
}

func (s *GameSession) onPlayerDied(payload json.RawMessage) {
	var msg PlayerDiedMessage
	if json.Unmarshal(payload, &msg) != nil {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	p := s.players[msg.PlayerID]
	if p == nil {
		return
	}
	// The server's life count wins over whatever we computed locally.
	if !p.IsLocal && p.Lives > msg.Lives {
		p.TakeDamage()
	}
	p.Lives = msg.Lives
	s.refreshUI()
}

func (s *GameSession) onPlayerEliminated(payload json.RawMessage) {
	var msg PlayerEliminatedMessage
	if json.Unmarshal(payload, &msg) != nil {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if p := s.players[msg.PlayerID]; p != nil {
		p.Lives = 0
	}
	if msg.PlayerID == s.localPlayerID {
		s.spectator = true
		s.input.Disable()
	}
	s.refreshUI()
}

func (s *GameSession) onPlayerDisconnected(payload json.RawMessage) {
	var msg PlayerDisconnectedMessage
	if json.Unmarshal(payload, &msg) != nil {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.players, msg.PlayerID)
	s.refreshUI()
}

func (s *GameSession) onGameOver(payload json.RawMessage) {
	var msg GameOverMessage
	if json.Unmarshal(payload, &msg) != nil {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.gameOver = true
	s.winner = msg.Winner
	s.leaderboard = msg.Leaderboard
	s.input.Disable()
	s.refreshUI()
}

// --- status UI ---

func (s *GameSession) statusState() map[string]any {
	return map[string]any{
		"spectator":   s.spectator,
		"gameOver":    s.gameOver,
		"winner":      s.winner,
		"leaderboard": s.leaderboard,
		"players":     s.playerStates(),
	}
}

func (s *GameSession) playerStates() []PlayerState {
	states := make([]PlayerState, 0, len(s.players))
	for _, p := range s.players {
		states = append(states, PlayerState{
			PlayerID: p.PlayerID,
			Nickname: p.Nickname,
			Lives:    p.Lives,
			Powerups: p.Powerups,
		})
	}
	sort.Slice(states, func(i, j int) bool { return states[i].PlayerID < states[j].PlayerID })
	return states
}

func (s *GameSession) refreshUI() {
	s.ui.SetState(s.statusState())
}

// renderStatus builds the HUD: one keyed card per player, plus spectator
// and game-over overlays when they apply.
func (s *GameSession) renderStatus(state map[string]any, _ func(map[string]any)) *VNode {
	children := []any{}

	players, _ := state["players"].([]PlayerState)
	cards := make([]any, 0, len(players))
	for _, p := range players {
		cards = append(cards, NewVNode("div",
			map[string]any{"key": fmt.Sprintf("player-%d", p.PlayerID), "class": "player-card"},
			NewVNode("span", map[string]any{"class": "nickname"}, p.Nickname),
			NewVNode("span", map[string]any{"class": "lives"}, fmt.Sprintf("lives: %d", p.Lives)),
			NewVNode("span", map[string]any{"class": "powerups"},
				fmt.Sprintf("b%d f%d s%d", p.Powerups.Bombs, p.Powerups.Flames, p.Powerups.Speed)),
		))
	}
	children = append(children, NewVNode("div", map[string]any{"class": "player-status"}, cards...))

	if spectator, _ := state["spectator"].(bool); spectator {
		children = append(children, NewVNode("div",
			map[string]any{"class": "spectator-banner"}, "You are spectating"))
	}

	if over, _ := state["gameOver"].(bool); over {
		rows := []any{}
		if board, ok := state["leaderboard"].([]LeaderboardEntry); ok {
			for i, entry := range board {
				rows = append(rows, NewVNode("li",
					map[string]any{"key": fmt.Sprintf("rank-%d", entry.PlayerID)},
					fmt.Sprintf("%d. %s", i+1, entry.Nickname)))
			}
		}
		title := "Game over"
		if winner, ok := state["winner"].(*LeaderboardEntry); ok && winner != nil {
			title = fmt.Sprintf("%s wins!", winner.Nickname)
		}
		children = append(children, NewVNode("div",
			map[string]any{"class": "game-over-overlay"},
			NewVNode("h2", nil, title),
			NewVNode("ol", nil, rows...),
		))
	}

	return NewVNode("div", map[string]any{"class": "game-hud"}, children...)
}
