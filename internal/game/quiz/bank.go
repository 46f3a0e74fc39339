package quiz

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"gopkg.in/yaml.v3"

	"github.com/cory-johannsen/classquest/internal/game/dice"
)

// ErrNoEligibleQuestions is returned by Pick when an exercise has no items.
var ErrNoEligibleQuestions = errors.New("quiz: exercise has no eligible questions")

// Bank is a read-only source of questions.
type Bank interface {
	// Eligible returns the questions that may be asked for an exercise.
	Eligible(ctx context.Context, exerciseID string) ([]*Question, error)
	// Question returns one question by id, or ErrQuestionNotFound.
	Question(ctx context.Context, id string) (*Question, error)
}

// Pick draws one eligible question of exerciseID uniformly at random.
//
// Postcondition: Returns ErrNoEligibleQuestions when the exercise is empty.
func Pick(ctx context.Context, bank Bank, exerciseID string, src dice.Source) (*Question, error) {
	qs, err := bank.Eligible(ctx, exerciseID)
	if err != nil {
		return nil, fmt.Errorf("listing questions for exercise %q: %w", exerciseID, err)
	}
	if len(qs) == 0 {
		return nil, fmt.Errorf("%w: %q", ErrNoEligibleQuestions, exerciseID)
	}
	return qs[src.Intn(len(qs))], nil
}

// Pack is the YAML import format: a list of questions for one exercise.
type Pack struct {
	ExerciseID string      `yaml:"exercise_id"`
	Questions  []*Question `yaml:"questions"`
}

// LoadPack parses a question pack. Questions inherit the pack's exercise id
// when they do not set their own.
//
// Postcondition: Returns validated questions with unique ids, or an error.
func LoadPack(data []byte) ([]*Question, error) {
	var p Pack
	if err := yaml.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("parsing question pack: %w", err)
	}
	seen := make(map[string]bool, len(p.Questions))
	for _, q := range p.Questions {
		if q.ExerciseID == "" {
			q.ExerciseID = p.ExerciseID
		}
		if err := q.Validate(); err != nil {
			return nil, err
		}
		if seen[q.ID] {
			return nil, fmt.Errorf("question %q defined twice", q.ID)
		}
		seen[q.ID] = true
	}
	return p.Questions, nil
}

// MemoryBank is an in-process Bank. It is safe for concurrent use.
type MemoryBank struct {
	mu        sync.RWMutex
	questions map[string]*Question
}

// NewMemoryBank returns a bank holding qs.
func NewMemoryBank(qs ...*Question) *MemoryBank {
	b := &MemoryBank{questions: make(map[string]*Question)}
	b.Add(qs...)
	return b
}

// Add inserts or replaces questions by id.
func (b *MemoryBank) Add(qs ...*Question) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, q := range qs {
		b.questions[q.ID] = q
	}
}

// Eligible implements Bank. Results are ordered by id so random draws are
// reproducible for a given source.
func (b *MemoryBank) Eligible(_ context.Context, exerciseID string) ([]*Question, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	var out []*Question
	for _, q := range b.questions {
		if q.ExerciseID == exerciseID {
			out = append(out, q)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// Question implements Bank.
func (b *MemoryBank) Question(_ context.Context, id string) (*Question, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	q, ok := b.questions[id]
	if !ok {
		return nil, ErrQuestionNotFound
	}
	return q, nil
}
