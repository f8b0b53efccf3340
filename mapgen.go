package main

import "fmt"

// CellType identifies what occupies a map tile.
type CellType int

const (
	CellEmpty        CellType = iota // walkable floor
	CellWall                         // indestructible
	CellDestructible                 // breakable, may hide a powerup
	CellPlayerSpawn
	CellBombPowerup
	CellFlamePowerup
	CellSpeedPowerup
	CellBomb // active bomb marker
)

const (
	// TileSize is the pixel size of one grid cell.
	TileSize = 60

	// DefaultMapWidth and DefaultMapHeight are the arena dimensions in tiles.
	DefaultMapWidth  = 15
	DefaultMapHeight = 11

	// DefaultWallDensity and DefaultPowerupChance are percentages.
	DefaultWallDensity   = 65
	DefaultPowerupChance = 30
)

// tileKey builds the "x,y" string used for sparse per-tile lookups
// (hidden powerups, pass-through bombs). The format is part of the
// synchronization contract with the map generator stream.
func tileKey(x, y int) string {
	return fmt.Sprintf("%d,%d", x, y)
}

// MapGenerator builds the tile grid and the hidden powerup table from a
// shared seed. The order of random draws is fixed: grid fill first, then
// spawns, then a row-major powerup scan. Reordering any of these would
// shift the random stream and desync peers, so generate() must not change
// its phase order.
type MapGenerator struct {
	seed          int64
	width, height int
	density       float64
	powerupChance float64
	random        *SeededRandom
}

// GeneratedMap is the output of a generator run.
type GeneratedMap struct {
	Grid           [][]CellType
	HiddenPowerups map[string]CellType
}

func NewMapGenerator(seed int64, width, height, density, powerupChance int) *MapGenerator {
	return &MapGenerator{
		seed:          seed,
		width:         width,
		height:        height,
		density:       float64(density) / 100,
		powerupChance: float64(powerupChance) / 100,
		random:        NewSeededRandom(seed),
	}
}

func (g *MapGenerator) Generate() *GeneratedMap {
	grid := g.initializeGrid()
	g.placePlayerSpawns(grid)
	hidden := g.placePowerups(grid)
	return &GeneratedMap{Grid: grid, HiddenPowerups: hidden}
}

// initializeGrid lays out walls and destructible blocks. Border cells and
// even/even interior cells are always walls; the four 3×3 corner zones are
// kept clear so every spawn is fair.
func (g *MapGenerator) initializeGrid() [][]CellType {
	grid := make([][]CellType, g.height)
	for y := 0; y < g.height; y++ {
		grid[y] = make([]CellType, g.width)
		for x := 0; x < g.width; x++ {
			switch {
			case x == 0 || x == g.width-1 || y == 0 || y == g.height-1:
				grid[y][x] = CellWall
			case x%2 == 0 && y%2 == 0:
				grid[y][x] = CellWall
			case g.isCornerZone(x, y):
				grid[y][x] = CellEmpty
			case g.random.Next() < g.density:
				grid[y][x] = CellDestructible
			default:
				grid[y][x] = CellEmpty
			}
		}
	}
	return grid
}

func (g *MapGenerator) isCornerZone(x, y int) bool {
	return (x <= 2 && y <= 2) ||
		(x >= g.width-3 && y <= 2) ||
		(x <= 2 && y >= g.height-3) ||
		(x >= g.width-3 && y >= g.height-3)
}

func (g *MapGenerator) placePlayerSpawns(grid [][]CellType) {
	spawns := [][2]int{
		{1, 1},
		{g.width - 2, 1},
		{1, g.height - 2},
		{g.width - 2, g.height - 2},
	}
	for _, s := range spawns {
		x, y := s[0], s[1]
		if x >= 0 && x < g.width && y >= 0 && y < g.height {
			grid[y][x] = CellPlayerSpawn
		}
	}
}

// placePowerups scans the grid in row-major order and hides a powerup under
// some destructible blocks. The visible cell stays destructible until it is
// blown up.
func (g *MapGenerator) placePowerups(grid [][]CellType) map[string]CellType {
	powerupTypes := []CellType{CellBombPowerup, CellFlamePowerup, CellSpeedPowerup}
	hidden := make(map[string]CellType)

	for y := 0; y < g.height; y++ {
		for x := 0; x < g.width; x++ {
			if grid[y][x] == CellDestructible && g.random.Chance(g.powerupChance) {
				hidden[tileKey(x, y)] = powerupTypes[g.random.NextInt(0, len(powerupTypes)-1)]
			}
		}
	}

	return hidden
}

// SpawnPosition returns the pixel spawn point for a player id (1..4).
func SpawnPosition(playerID, width, height int) Position {
	spawns := []Position{
		{X: TileSize, Y: TileSize},
		{X: float64((width - 2) * TileSize), Y: TileSize},
		{X: TileSize, Y: float64((height - 2) * TileSize)},
		{X: float64((width - 2) * TileSize), Y: float64((height - 2) * TileSize)},
	}
	if playerID < 1 || playerID > len(spawns) {
		return spawns[0]
	}
	return spawns[playerID-1]
}
