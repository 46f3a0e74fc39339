// Package grid models the rectangular battlefield: tiles, obstacles, spawn
// bands, procedural generation, and breadth-first pathfinding.
package grid

import (
	"errors"
	"fmt"
)

// Tile is the terrain type of one cell.
type Tile string

const (
	TileGrass Tile = "grass"
	TileDirt  Tile = "dirt"
	TileStone Tile = "stone"
	TileRock  Tile = "rock"
	TileWater Tile = "water"
)

// walkableTiles are the cosmetic floor variants drawn during generation.
var walkableTiles = []Tile{TileGrass, TileDirt, TileStone}

// obstacleTiles block movement and spawning.
var obstacleTiles = []Tile{TileRock, TileWater}

// Blocked reports whether the tile is an obstacle.
func (t Tile) Blocked() bool {
	return t == TileRock || t == TileWater
}

// Valid reports whether t is one of the known tile types.
func (t Tile) Valid() bool {
	switch t {
	case TileGrass, TileDirt, TileStone, TileRock, TileWater:
		return true
	}
	return false
}

// Point is a cell coordinate. X grows to the right, Y grows downward.
type Point struct {
	X int `json:"x"`
	Y int `json:"y"`
}

// Manhattan returns the taxicab distance between p and q.
//
// Postcondition: Returns >= 0.
func (p Point) Manhattan(q Point) int {
	return abs(p.X-q.X) + abs(p.Y-q.Y)
}

func (p Point) String() string { return fmt.Sprintf("(%d,%d)", p.X, p.Y) }

// neighbors are visited in this fixed order so every search is deterministic.
var neighbors = [4]Point{{1, 0}, {-1, 0}, {0, 1}, {0, -1}}

// Band identifies one of the three vertical regions of the map.
type Band int

const (
	BandLeft Band = iota
	BandMiddle
	BandRight
)

// Map is the serializable battlefield description.
//
// Invariant: len(Tiles) == Height and every row has Width entries; Tiles is
// indexed Tiles[y][x]; Obstacles lists exactly the blocked cells.
type Map struct {
	Width     int      `json:"width"`
	Height    int      `json:"height"`
	Tiles     [][]Tile `json:"tiles"`
	Obstacles []Point  `json:"obstacles"`
	// Relaxed is set when the connectivity check failed and half of the
	// obstacles were reverted; the map is accepted without a second check.
	Relaxed bool `json:"relaxed,omitempty"`
}

// InBounds reports whether p lies on the map.
func (m *Map) InBounds(p Point) bool {
	return p.X >= 0 && p.Y >= 0 && p.X < m.Width && p.Y < m.Height
}

// TileAt returns the tile at p.
//
// Precondition: m.InBounds(p).
func (m *Map) TileAt(p Point) Tile {
	return m.Tiles[p.Y][p.X]
}

// Walkable reports whether p is on the map and not an obstacle.
func (m *Map) Walkable(p Point) bool {
	return m.InBounds(p) && !m.TileAt(p).Blocked()
}

// BandOf returns the band containing column x. The outer bands are each
// Width/3 columns wide.
func (m *Map) BandOf(x int) Band {
	third := m.Width / 3
	switch {
	case x < third:
		return BandLeft
	case x >= m.Width-third:
		return BandRight
	default:
		return BandMiddle
	}
}

// Cells returns every walkable cell in band, scanning columns from the band's
// outer edge inward and rows top to bottom.
//
// Postcondition: Every returned point is Walkable.
func (m *Map) Cells(band Band) []Point {
	var out []Point
	if band == BandRight {
		for x := m.Width - 1; x >= 0; x-- {
			out = m.appendColumn(out, band, x)
		}
		return out
	}
	for x := 0; x < m.Width; x++ {
		out = m.appendColumn(out, band, x)
	}
	return out
}

func (m *Map) appendColumn(out []Point, band Band, x int) []Point {
	if m.BandOf(x) != band {
		return out
	}
	for y := 0; y < m.Height; y++ {
		p := Point{X: x, Y: y}
		if m.Walkable(p) {
			out = append(out, p)
		}
	}
	return out
}

// Validate checks the structural invariants of a decoded map.
//
// Postcondition: Returns nil iff dimensions are positive, the tile grid matches
// them, every tile is known, and Obstacles lists exactly the blocked cells.
func (m *Map) Validate() error {
	if m.Width <= 0 || m.Height <= 0 {
		return fmt.Errorf("grid: invalid dimensions %dx%d", m.Width, m.Height)
	}
	if len(m.Tiles) != m.Height {
		return fmt.Errorf("grid: expected %d rows, got %d", m.Height, len(m.Tiles))
	}
	blocked := 0
	for y, row := range m.Tiles {
		if len(row) != m.Width {
			return fmt.Errorf("grid: row %d has %d tiles, expected %d", y, len(row), m.Width)
		}
		for x, t := range row {
			if !t.Valid() {
				return fmt.Errorf("grid: unknown tile %q at (%d,%d)", t, x, y)
			}
			if t.Blocked() {
				blocked++
			}
		}
	}
	if blocked != len(m.Obstacles) {
		return errors.New("grid: obstacle list does not match tile grid")
	}
	for _, p := range m.Obstacles {
		if !m.InBounds(p) || !m.TileAt(p).Blocked() {
			return fmt.Errorf("grid: obstacle %s is not a blocked tile", p)
		}
	}
	return nil
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}
