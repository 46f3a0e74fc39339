package grid

import "sort"

// Occupied reports whether a cell holds another living entity. A nil Occupied
// treats every cell as free.
type Occupied func(p Point) bool

func (o Occupied) has(p Point) bool {
	return o != nil && o(p)
}

// OccupiedSet adapts a set of points to an Occupied predicate.
func OccupiedSet(cells map[Point]bool) Occupied {
	return func(p Point) bool { return cells[p] }
}

// Step is a reachable cell and its walking distance from the origin.
type Step struct {
	X        int `json:"x"`
	Y        int `json:"y"`
	Distance int `json:"distance"`
}

// Point returns the step's cell.
func (s Step) Point() Point { return Point{X: s.X, Y: s.Y} }

// Reachable returns every cell reachable from origin in at most maxDist
// orthogonal steps without entering obstacles or occupied cells.
//
// Precondition: m must be valid; origin must be in bounds.
// Postcondition: The first entry is origin at distance 0; all distances are
// shortest-path lengths <= maxDist; entries are ordered by distance, then Y, then X.
func Reachable(m *Map, origin Point, maxDist int, occupied Occupied) []Step {
	dist := bfs(m, origin, maxDist, occupied)
	out := make([]Step, 0, len(dist))
	for p, d := range dist {
		out = append(out, Step{X: p.X, Y: p.Y, Distance: d})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Distance != out[j].Distance {
			return out[i].Distance < out[j].Distance
		}
		if out[i].Y != out[j].Y {
			return out[i].Y < out[j].Y
		}
		return out[i].X < out[j].X
	})
	return out
}

// CanReach reports whether target is within maxDist walking steps of origin.
func CanReach(m *Map, origin, target Point, maxDist int, occupied Occupied) bool {
	_, ok := bfs(m, origin, maxDist, occupied)[target]
	return ok
}

// Connected reports whether a walkable path joins a and b, ignoring occupancy.
//
// Postcondition: Returns false if either endpoint is not walkable.
func Connected(m *Map, a, b Point) bool {
	if !m.Walkable(a) || !m.Walkable(b) {
		return false
	}
	_, ok := bfs(m, a, -1, nil)[b]
	return ok
}

// ShortestPath returns the cells of a shortest walkable path from a to b,
// excluding a and including b.
//
// Postcondition: Returns (nil, false) when b is unreachable; (empty, true) when a == b.
func ShortestPath(m *Map, a, b Point, occupied Occupied) ([]Point, bool) {
	if a == b {
		return []Point{}, true
	}
	prev := map[Point]Point{a: a}
	queue := []Point{a}
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		for _, d := range neighbors {
			next := Point{X: cur.X + d.X, Y: cur.Y + d.Y}
			if _, seen := prev[next]; seen || !m.Walkable(next) || occupied.has(next) {
				continue
			}
			prev[next] = cur
			if next == b {
				var path []Point
				for p := b; p != a; p = prev[p] {
					path = append([]Point{p}, path...)
				}
				return path, true
			}
			queue = append(queue, next)
		}
	}
	return nil, false
}

// GreedyStep picks the orthogonal neighbor of from that most reduces the
// Manhattan distance to target, skipping obstacles and occupied cells.
//
// Postcondition: Returns (next, true) with next.Manhattan(target) <
// from.Manhattan(target), or (from, false) if no neighbor gets closer.
func GreedyStep(m *Map, from, target Point, occupied Occupied) (Point, bool) {
	best := from
	bestDist := from.Manhattan(target)
	for _, d := range neighbors {
		next := Point{X: from.X + d.X, Y: from.Y + d.Y}
		if !m.Walkable(next) || occupied.has(next) {
			continue
		}
		if dd := next.Manhattan(target); dd < bestDist {
			best, bestDist = next, dd
		}
	}
	return best, best != from
}

// bfs returns walking distances from origin. A negative maxDist is unbounded.
// The origin is always included, even if it is occupied.
func bfs(m *Map, origin Point, maxDist int, occupied Occupied) map[Point]int {
	dist := map[Point]int{origin: 0}
	queue := []Point{origin}
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		d := dist[cur]
		if maxDist >= 0 && d >= maxDist {
			continue
		}
		for _, n := range neighbors {
			next := Point{X: cur.X + n.X, Y: cur.Y + n.Y}
			if _, seen := dist[next]; seen || !m.Walkable(next) || occupied.has(next) {
				continue
			}
			dist[next] = d + 1
			queue = append(queue, next)
		}
	}
	return dist
}
