package grid

import "github.com/cory-johannsen/classquest/internal/game/dice"

const (
	// ObstacleDensityPercent is the share of the whole map converted to
	// obstacles, all of them placed in the middle band.
	ObstacleDensityPercent = 12

	MinWidth  = 6
	MaxWidth  = 14
	MinHeight = 5
	MaxHeight = 10
)

// SizeFor derives battlefield dimensions from the expected headcount.
//
// Postcondition: MinWidth <= w <= MaxWidth and MinHeight <= h <= MaxHeight.
func SizeFor(headcount int) (w, h int) {
	if headcount < 0 {
		headcount = 0
	}
	return clamp(MinWidth+headcount/2, MinWidth, MaxWidth), clamp(MinHeight+headcount/3, MinHeight, MaxHeight)
}

// Generate builds a width×height battlefield. Floor cells get a random
// walkable tile; obstacles are sprinkled in the middle band only. A BFS then
// checks that the middle row of the left edge reaches the middle row of the
// right edge; if not, roughly half the obstacles are reverted to grass and the
// result is accepted with Relaxed set.
//
// Precondition: src must be non-nil; width and height are clamped to the
// supported range.
// Postcondition: Returns a map satisfying Validate. Obstacles never occupy the
// left or right band.
func Generate(width, height int, src dice.Source) *Map {
	width = clamp(width, MinWidth, MaxWidth)
	height = clamp(height, MinHeight, MaxHeight)

	m := &Map{Width: width, Height: height, Tiles: make([][]Tile, height)}
	for y := range m.Tiles {
		row := make([]Tile, width)
		for x := range row {
			row[x] = walkableTiles[src.Intn(len(walkableTiles))]
		}
		m.Tiles[y] = row
	}

	middle := m.Cells(BandMiddle)
	dice.Shuffle(src, len(middle), func(i, j int) { middle[i], middle[j] = middle[j], middle[i] })
	want := width * height * ObstacleDensityPercent / 100
	if want > len(middle) {
		want = len(middle)
	}
	for _, p := range middle[:want] {
		m.Tiles[p.Y][p.X] = obstacleTiles[src.Intn(len(obstacleTiles))]
	}
	m.Obstacles = append([]Point(nil), middle[:want]...)

	if !Connected(m, Point{X: 0, Y: height / 2}, Point{X: width - 1, Y: height / 2}) {
		m.relax(src)
	}
	return m
}

// relax reverts ceil(n/2) randomly chosen obstacles to grass.
func (m *Map) relax(src dice.Source) {
	obs := m.Obstacles
	dice.Shuffle(src, len(obs), func(i, j int) { obs[i], obs[j] = obs[j], obs[i] })
	revert := (len(obs) + 1) / 2
	for _, p := range obs[:revert] {
		m.Tiles[p.Y][p.X] = TileGrass
	}
	m.Obstacles = append([]Point(nil), obs[revert:]...)
	m.Relaxed = true
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
