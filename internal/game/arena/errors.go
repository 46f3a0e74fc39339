package arena

import (
	"errors"
	"fmt"
)

// RejectionKind classifies a caller-visible refusal.
type RejectionKind string

const (
	// KindPhase: the operation is not valid in the encounter's current phase.
	KindPhase RejectionKind = "phase"
	// KindAuthorization: the actor may not perform the operation.
	KindAuthorization RejectionKind = "authorization"
	// KindValidation: the request itself is invalid.
	KindValidation RejectionKind = "validation"
	// KindNotFound: a referenced entity does not exist.
	KindNotFound RejectionKind = "not_found"
	// KindConflict: another encounter is active or a concurrent write won.
	KindConflict RejectionKind = "conflict"
)

// Rejection is returned when a request is refused. A rejected request never
// mutates the encounter.
type Rejection struct {
	Kind    RejectionKind
	Message string
}

func (r *Rejection) Error() string {
	return fmt.Sprintf("%s: %s", r.Kind, r.Message)
}

func reject(kind RejectionKind, format string, args ...any) error {
	return &Rejection{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// IsRejection reports whether err is a Rejection of the given kind.
func IsRejection(err error, kind RejectionKind) bool {
	var r *Rejection
	return errors.As(err, &r) && r.Kind == kind
}

// AsRejection extracts the Rejection wrapped in err.
func AsRejection(err error) (*Rejection, bool) {
	var r *Rejection
	ok := errors.As(err, &r)
	return r, ok
}

func wrongPhase(op string, phase Phase) error {
	return reject(KindPhase, "%s is not allowed during %s", op, phase)
}
