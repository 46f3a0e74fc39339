// Package quiz models the quiz items asked at the start of every round and
// grades submitted answers.
package quiz

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// Kind is the answer format of a question.
type Kind string

const (
	KindChoice Kind = "choice"
	KindText   Kind = "text"
	KindNumber Kind = "number"
	KindScript Kind = "script"
)

// ErrQuestionNotFound is returned by banks for unknown question ids.
var ErrQuestionNotFound = errors.New("quiz: question not found")

// Question is one quiz item of an exercise. Answer, Alternatives, Tolerance,
// and Script are grading data and never leave the server.
type Question struct {
	ID         string   `yaml:"id" json:"id"`
	ExerciseID string   `yaml:"exercise_id" json:"exercise_id"`
	Prompt     string   `yaml:"prompt" json:"prompt"`
	Kind       Kind     `yaml:"kind" json:"kind"`
	Choices    []string `yaml:"choices,omitempty" json:"choices,omitempty"`
	Answer     string   `yaml:"answer,omitempty" json:"answer,omitempty"`
	// Alternatives are further accepted spellings for text questions.
	Alternatives []string `yaml:"alternatives,omitempty" json:"alternatives,omitempty"`
	// Strict disables typo tolerance for text questions.
	Strict    bool    `yaml:"strict,omitempty" json:"strict,omitempty"`
	Tolerance float64 `yaml:"tolerance,omitempty" json:"tolerance,omitempty"`
	// Script is a Lua checker defining check(answer) for script questions.
	Script string `yaml:"script,omitempty" json:"script,omitempty"`
}

// Payload is the client-facing view of a question.
type Payload struct {
	ID      string   `json:"id"`
	Prompt  string   `json:"prompt"`
	Kind    Kind     `json:"kind"`
	Choices []string `json:"choices,omitempty"`
}

// Payload strips grading data from q.
func (q *Question) Payload() Payload {
	return Payload{ID: q.ID, Prompt: q.Prompt, Kind: q.Kind, Choices: append([]string(nil), q.Choices...)}
}

// Validate checks that q can be graded.
//
// Postcondition: Returns nil iff identity and prompt are set and the fields
// required by Kind are present and well-formed.
func (q *Question) Validate() error {
	if q.ID == "" {
		return errors.New("question: id must not be empty")
	}
	if q.ExerciseID == "" {
		return fmt.Errorf("question %q: exercise_id must not be empty", q.ID)
	}
	if strings.TrimSpace(q.Prompt) == "" {
		return fmt.Errorf("question %q: prompt must not be empty", q.ID)
	}
	switch q.Kind {
	case KindChoice:
		if len(q.Choices) < 2 {
			return fmt.Errorf("question %q: choice questions need at least two choices", q.ID)
		}
		found := false
		for _, c := range q.Choices {
			found = found || c == q.Answer
		}
		if !found {
			return fmt.Errorf("question %q: answer %q is not one of the choices", q.ID, q.Answer)
		}
	case KindText:
		if strings.TrimSpace(q.Answer) == "" {
			return fmt.Errorf("question %q: answer must not be empty", q.ID)
		}
	case KindNumber:
		if _, err := parseNumber(q.Answer); err != nil {
			return fmt.Errorf("question %q: answer %q is not a number", q.ID, q.Answer)
		}
		if q.Tolerance < 0 {
			return fmt.Errorf("question %q: tolerance must be >= 0", q.ID)
		}
	case KindScript:
		if strings.TrimSpace(q.Script) == "" {
			return fmt.Errorf("question %q: script must not be empty", q.ID)
		}
	default:
		return fmt.Errorf("question %q: unknown kind %q", q.ID, q.Kind)
	}
	return nil
}

// parseNumber accepts both "3.5" and the French "3,5".
func parseNumber(s string) (float64, error) {
	return strconv.ParseFloat(strings.ReplaceAll(strings.TrimSpace(s), ",", "."), 64)
}
