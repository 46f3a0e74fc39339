package quiz

//go:generate mockgen -destination=mock/mock_oracle.go -package=mockquiz -source=oracle.go Oracle

import (
	"context"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/agnivade/levenshtein"

	"github.com/cory-johannsen/classquest/internal/scripting"
)

// Oracle decides whether an answer to a question is correct.
type Oracle interface {
	Grade(ctx context.Context, q *Question, answer string) (bool, error)
}

// Grader is the built-in Oracle.
//
//   - choice: the answer is the choice text, or its zero-based index when it
//     matches no choice text
//   - text: normalized comparison against Answer and Alternatives, forgiving
//     a few typos unless Strict is set
//   - number: |answer − Answer| <= Tolerance
//   - script: the question's Lua check(answer) function
type Grader struct {
	scripts *scripting.Checker
}

// NewGrader creates a Grader that runs script questions through checker.
//
// Precondition: checker must be non-nil.
func NewGrader(checker *scripting.Checker) *Grader {
	return &Grader{scripts: checker}
}

// Grade implements Oracle.
//
// Postcondition: Returns an error only for script failures or unknown kinds;
// malformed answers are simply incorrect.
func (g *Grader) Grade(ctx context.Context, q *Question, answer string) (bool, error) {
	switch q.Kind {
	case KindChoice:
		return gradeChoice(q, answer), nil
	case KindText:
		got := scripting.Normalize(answer)
		if got == "" {
			return false, nil
		}
		for _, want := range append([]string{q.Answer}, q.Alternatives...) {
			if matchText(got, scripting.Normalize(want), q.Strict) {
				return true, nil
			}
		}
		return false, nil
	case KindNumber:
		got, err := parseNumber(answer)
		if err != nil {
			return false, nil
		}
		want, err := parseNumber(q.Answer)
		if err != nil {
			return false, fmt.Errorf("question %q: stored answer is not a number: %w", q.ID, err)
		}
		return math.Abs(got-want) <= q.Tolerance, nil
	case KindScript:
		return g.scripts.Check(ctx, q.Script, answer)
	}
	return false, fmt.Errorf("question %q: unknown kind %q", q.ID, q.Kind)
}

// gradeChoice matches the answer against the choice texts first, so numeric
// choices are never read as indices; the index form applies only when no
// choice text matches.
func gradeChoice(q *Question, answer string) bool {
	got := scripting.Normalize(answer)
	want := scripting.Normalize(q.Answer)
	for _, c := range q.Choices {
		if scripting.Normalize(c) == got {
			return got == want
		}
	}
	if i, err := strconv.Atoi(strings.TrimSpace(answer)); err == nil {
		return i >= 0 && i < len(q.Choices) && q.Choices[i] == q.Answer
	}
	return false
}

func matchText(got, want string, strict bool) bool {
	if got == want {
		return true
	}
	if strict {
		return false
	}
	return levenshtein.ComputeDistance(got, want) <= typoLimit(len([]rune(want)))
}

// typoLimit is the edit distance tolerated for an expected answer of length runes.
func typoLimit(length int) int {
	switch {
	case length <= 2:
		return 0
	case length <= 4:
		return 1
	case length <= 8:
		return 2
	default:
		return 3
	}
}
