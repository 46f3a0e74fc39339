// Package dice provides the randomness abstraction used by battlefield
// generation, encounter composition, and round resolution.
package dice

// Source is the randomness provider.
//
// Implementations MUST be safe for concurrent use.
type Source interface {
	// Intn returns a non-negative random int in [0, n).
	//
	// Precondition: n > 0.
	Intn(n int) int
}

// Chance reports true with probability percent/100.
//
// Precondition: src must be non-nil.
// Postcondition: Returns false when percent <= 0 and true when percent >= 100.
func Chance(src Source, percent int) bool {
	if percent <= 0 {
		return false
	}
	if percent >= 100 {
		return true
	}
	return src.Intn(100) < percent
}

// Weighted returns an index into weights chosen with probability proportional
// to its weight. Non-positive weights are never chosen.
//
// Precondition: src must be non-nil.
// Postcondition: Returns -1 iff the sum of positive weights is zero; otherwise
// returns i with weights[i] > 0.
func Weighted(src Source, weights []int) int {
	total := 0
	for _, w := range weights {
		if w > 0 {
			total += w
		}
	}
	if total == 0 {
		return -1
	}
	roll := src.Intn(total)
	for i, w := range weights {
		if w <= 0 {
			continue
		}
		if roll < w {
			return i
		}
		roll -= w
	}
	return len(weights) - 1
}

// Shuffle pseudo-randomizes the order of n elements using the Fisher-Yates
// algorithm. swap exchanges the elements at indexes i and j.
//
// Precondition: src and swap must be non-nil; n >= 0.
func Shuffle(src Source, n int, swap func(i, j int)) {
	for i := n - 1; i > 0; i-- {
		j := src.Intn(i + 1)
		swap(i, j)
	}
}
