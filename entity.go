package main

import (
	"fmt"
	"time"
)

const (
	// BasePlayerSpeed is pixels per step; each speed powerup adds half a pixel.
	BasePlayerSpeed = 2.0
	SpeedPerPowerup = 0.5

	// CollisionGrace shrinks the player's collision box on every side so
	// near-misses feel fair on a 60px grid.
	CollisionGrace = 1.5

	// CornerHelpRange is how far off a lane center a blocked player may be
	// and still get snapped onto it.
	CornerHelpRange = 29.0

	FrameSpeed   = 6
	FramesPerRow = 4

	BombFuse               = 3 * time.Second
	FlameDuration          = 500 * time.Millisecond
	InvincibilityDuration  = 2 * time.Second
	ChainReactionStagger   = 100 * time.Millisecond
	StartingLives          = 3
	remoteAnimationTimeout = 150 * time.Millisecond
)

// Direction is a facing for sprite selection.
type Direction string

const (
	DirUp    Direction = "up"
	DirDown  Direction = "down"
	DirLeft  Direction = "left"
	DirRight Direction = "right"
)

// PlayerEntity is the client-side mirror of a player. Exactly one entity per
// session has IsLocal set; remote entities are driven purely by incoming
// events.
type PlayerEntity struct {
	PlayerID int
	Nickname string
	Position Position
	Lives    int
	Powerups Powerups

	IsLocal      bool
	IsInvincible bool

	Direction  Direction
	FrameIndex int
	frameTick  int
	IsMoving   bool

	clock          Clock
	guard          func(func())
	invincibleStop Timer
	movingStop     Timer
}

func NewPlayerEntity(x, y float64, playerID int, clock Clock) *PlayerEntity {
	return &PlayerEntity{
		PlayerID:  playerID,
		Position:  Position{X: x, Y: y},
		Lives:     StartingLives,
		Direction: DirDown,
		clock:     clock,
	}
}

// SetTimerGuard routes the entity's timer callbacks through fn, so an
// owner stepping the entity from another goroutine can take its lock
// before the callback mutates animation or invincibility state.
func (p *PlayerEntity) SetTimerGuard(fn func(func())) {
	p.guard = fn
}

func (p *PlayerEntity) runGuarded(fn func()) {
	if p.guard != nil {
		p.guard(fn)
		return
	}
	fn()
}

// GridPosition converts the pixel position to the tile under the player's
// center.
func (p *PlayerEntity) GridPosition() GridPosition {
	return GridPosition{
		X: int((p.Position.X + TileSize/2) / TileSize),
		Y: int((p.Position.Y + TileSize/2) / TileSize),
	}
}

// CurrentSpeed is the per-step movement distance in pixels.
func (p *PlayerEntity) CurrentSpeed() float64 {
	return BasePlayerSpeed + float64(p.Powerups.Speed)*SpeedPerPowerup
}

func (p *PlayerEntity) Dead() bool {
	return p.Lives <= 0
}

// CollectPowerup applies one collected powerup.
func (p *PlayerEntity) CollectPowerup(powerupType CellType) {
	switch powerupType {
	case CellBombPowerup:
		p.Powerups.Bombs++
	case CellFlamePowerup:
		p.Powerups.Flames++
	case CellSpeedPowerup:
		p.Powerups.Speed++
	}
}

// TakeDamage applies one hit. It is a no-op on invincible or dead players,
// which makes duplicate explosion-hit detection harmless. A surviving
// player gets a timed invincibility window.
func (p *PlayerEntity) TakeDamage() bool {
	if p.IsInvincible || p.Dead() {
		return false
	}

	p.Lives--
	p.IsInvincible = true

	if p.Lives > 0 {
		if p.invincibleStop != nil {
			p.invincibleStop.Stop()
		}
		p.invincibleStop = p.clock.AfterFunc(InvincibilityDuration, func() {
			p.runGuarded(func() {
				p.IsInvincible = false
			})
		})
	}
	return true
}

// ResetForLobby restores the entity for a fresh match.
func (p *PlayerEntity) ResetForLobby() {
	p.Lives = StartingLives
	p.Powerups = Powerups{}
	p.IsInvincible = false
	p.FrameIndex = 0
	p.frameTick = 0
	p.IsMoving = false
	if p.invincibleStop != nil {
		p.invincibleStop.Stop()
		p.invincibleStop = nil
	}
}

// UpdateAnimation derives facing and frame state from the actual
// displacement after collision resolution, so the sprite never walks into a
// wall it is blocked by. Remote players get a timeout-based moving flag
// because their stop is only implied by message silence.
func (p *PlayerEntity) UpdateAnimation(dx, dy float64) {
	if dx == 0 && dy == 0 {
		p.IsMoving = false
		p.FrameIndex = 0
		if p.movingStop != nil {
			p.movingStop.Stop()
			p.movingStop = nil
		}
		return
	}

	if p.IsLocal {
		p.IsMoving = true
	} else {
		p.setMovingWithTimeout()
	}

	if abs(dx) > abs(dy) {
		if dx > 0 {
			p.Direction = DirRight
		} else {
			p.Direction = DirLeft
		}
	} else {
		if dy > 0 {
			p.Direction = DirDown
		} else {
			p.Direction = DirUp
		}
	}

	if p.IsLocal {
		p.advanceFrame()
	}
}

// AdvanceRemoteFrame keeps a moving remote player animating between
// position updates.
func (p *PlayerEntity) AdvanceRemoteFrame() {
	if p.IsLocal || !p.IsMoving {
		return
	}
	p.advanceFrame()
}

func (p *PlayerEntity) advanceFrame() {
	p.frameTick++
	if p.frameTick >= FrameSpeed {
		p.FrameIndex = (p.FrameIndex + 1) % FramesPerRow
		p.frameTick = 0
	}
}

func (p *PlayerEntity) setMovingWithTimeout() {
	p.IsMoving = true
	if p.movingStop != nil {
		p.movingStop.Stop()
	}
	p.movingStop = p.clock.AfterFunc(remoteAnimationTimeout, func() {
		p.runGuarded(func() {
			p.IsMoving = false
			p.FrameIndex = 0
		})
	})
}

// BombEntity is one active bomb. Only the placing client runs the fuse; the
// explosion result is broadcast so remote mirrors never double-schedule.
type BombEntity struct {
	X, Y     int
	BombID   string
	PlayerID int
	Exploded bool
	fuse     Timer
}

func NewBombEntity(x, y int, bombID string, playerID int) *BombEntity {
	return &BombEntity{X: x, Y: y, BombID: bombID, PlayerID: playerID}
}

// NewBombID builds the wire bomb identifier.
func NewBombID(playerID int, now time.Time) string {
	return fmt.Sprintf("%d_%d", playerID, now.UnixMilli())
}

// StartFuse schedules detonation on the owner's clock.
func (b *BombEntity) StartFuse(clock Clock, fn func()) {
	b.fuse = clock.AfterFunc(BombFuse, fn)
}

// Explode marks the bomb terminal and cancels any pending fuse.
func (b *BombEntity) Explode() {
	b.Exploded = true
	if b.fuse != nil {
		b.fuse.Stop()
		b.fuse = nil
	}
}

// PropagateExplosion computes the affected tiles for a bomb at (x,y) with
// the given flame power. Per direction: a wall stops the flame before the
// tile, a destructible block is included and then stops it, and bombs and
// floor are passed through, which is what lets chain reactions work.
func PropagateExplosion(grid [][]CellType, x, y, flamePower int) []GridPosition {
	cells := []GridPosition{{X: x, Y: y}}

	directions := [4][2]int{{1, 0}, {-1, 0}, {0, 1}, {0, -1}}
	for _, d := range directions {
		for i := 1; i <= flamePower; i++ {
			nx := x + d[0]*i
			ny := y + d[1]*i

			if ny < 0 || ny >= len(grid) || nx < 0 || nx >= len(grid[ny]) {
				break
			}
			if grid[ny][nx] == CellWall {
				break
			}

			cells = append(cells, GridPosition{X: nx, Y: ny})

			if grid[ny][nx] == CellDestructible {
				break
			}
		}
	}

	return cells
}

func abs(f float64) float64 {
	if f < 0 {
		return -f
	}
	return f
}
