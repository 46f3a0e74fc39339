package bestiary

import (
	"errors"
	"fmt"

	"github.com/cory-johannsen/classquest/internal/game/dice"
	"github.com/cory-johannsen/classquest/internal/game/grid"
)

// ErrNoSpace is returned when the battlefield has fewer free cells than the
// roster needs.
var ErrNoSpace = errors.New("bestiary: not enough free cells to place monsters")

// Spawn is one composed monster, ready to be turned into an encounter record.
type Spawn struct {
	Type     string
	Name     string
	Level    int
	Stats    Stats
	Skills   []Skill
	Position grid.Point
}

// RosterSize returns how many monsters face headcount students whose average
// level is avgLevel: headcount + max(1, headcount/3) + avgLevel/3.
//
// Postcondition: Returns >= 1 for any non-negative input.
func RosterSize(headcount, avgLevel int) int {
	if headcount < 0 {
		headcount = 0
	}
	if avgLevel < 0 {
		avgLevel = 0
	}
	extra := headcount / 3
	if extra < 1 {
		extra = 1
	}
	return headcount + extra + avgLevel/3
}

// Compose samples a roster for the tier, levels it, and places it on m.
// Types are drawn from the tier's weighted pool with repetition. Monsters
// take free cells of the right band in random order first; once the band is
// full placement continues leftwards through any free walkable cell.
// Duplicate types get ordinal suffixes ("Slime 1", "Slime 2").
//
// Precondition: m must be valid; src must be non-nil; occupied marks cells
// already held by participants (nil means none).
// Postcondition: Returns RosterSize(headcount, avgLevel) spawns on distinct
// walkable, unoccupied cells, or an error.
func (b *Bestiary) Compose(diff Difficulty, headcount, avgLevel int, m *grid.Map, occupied grid.Occupied, src dice.Source) ([]Spawn, error) {
	cfg, ok := b.Difficulty(diff)
	if !ok {
		return nil, fmt.Errorf("unknown difficulty %q", diff)
	}
	if avgLevel < 1 {
		avgLevel = 1
	}
	n := RosterSize(headcount, avgLevel)

	weights := make([]int, len(cfg.Pool))
	for i, e := range cfg.Pool {
		weights[i] = e.Weight
	}
	entries := make([]PoolEntry, n)
	counts := make(map[string]int)
	for i := range entries {
		entries[i] = cfg.Pool[dice.Weighted(src, weights)]
		counts[entries[i].Type]++
	}

	cells := freeCells(m, occupied, src)
	if len(cells) < n {
		return nil, fmt.Errorf("%w: need %d, have %d", ErrNoSpace, n, len(cells))
	}

	seen := make(map[string]int)
	out := make([]Spawn, n)
	for i, e := range entries {
		p := b.presets[e.Type]
		level := cfg.Level(avgLevel, e)
		name := p.Name
		if counts[e.Type] > 1 {
			seen[e.Type]++
			name = fmt.Sprintf("%s %d", p.Name, seen[e.Type])
		}
		out[i] = Spawn{
			Type:     p.Type,
			Name:     name,
			Level:    level,
			Stats:    p.StatsAt(level),
			Skills:   append([]Skill(nil), p.Skills...),
			Position: cells[i],
		}
	}
	return out, nil
}

// freeCells lists candidate spawn cells: the right band shuffled, then the
// middle and left bands scanned from the right edge inward.
func freeCells(m *grid.Map, occupied grid.Occupied, src dice.Source) []grid.Point {
	free := func(p grid.Point) bool { return occupied == nil || !occupied(p) }

	var right []grid.Point
	for _, p := range m.Cells(grid.BandRight) {
		if free(p) {
			right = append(right, p)
		}
	}
	dice.Shuffle(src, len(right), func(i, j int) { right[i], right[j] = right[j], right[i] })

	out := right
	for x := m.Width - 1; x >= 0; x-- {
		if m.BandOf(x) == grid.BandRight {
			continue
		}
		for y := 0; y < m.Height; y++ {
			p := grid.Point{X: x, Y: y}
			if m.Walkable(p) && free(p) {
				out = append(out, p)
			}
		}
	}
	return out
}
