package character

import (
	"errors"
	"fmt"
)

// Build freezes a snapshot for studentID playing classID at level. Stats are
// base + growth × (level − 1); only skills unlocked at or below level are kept.
//
// Precondition: studentID must be non-empty; level < 1 is treated as 1.
// Postcondition: Returns a validated *Snapshot, or an error if the class is unknown.
func (c *Catalog) Build(studentID, classID string, level int) (*Snapshot, error) {
	if studentID == "" {
		return nil, errors.New("student id must not be empty")
	}
	cl, ok := c.Class(classID)
	if !ok {
		return nil, fmt.Errorf("unknown class %q", classID)
	}
	if level < 1 {
		level = 1
	}
	snap := &Snapshot{
		StudentID: studentID,
		Class:     cl.ID,
		Level:     level,
		Stats:     cl.Base.Add(cl.Growth, level-1),
		MoveRange: cl.MoveRange,
	}
	for _, sk := range cl.Skills {
		if sk.Unlock <= level {
			sk.Unlock = 0
			snap.Skills = append(snap.Skills, sk)
		}
	}
	if err := snap.Validate(); err != nil {
		return nil, err
	}
	return snap, nil
}
