// Package outcome records what happened to each unit of work in a run: a
// file landed, a collection created, a dimension synchronized.
package outcome

import (
	"fmt"
	"strings"
)

// Status of one unit.
type Status string

const (
	Success Status = "success"
	Skipped Status = "skipped"
	Failed  Status = "failed"
)

// Outcome is the result of one unit of work.
type Outcome struct {
	Unit   string
	Status Status
	// Reason explains a skip.
	Reason string
	Err    error
}

// OK reports a successful unit.
func OK(unit string) Outcome { return Outcome{Unit: unit, Status: Success} }

// Skip reports a unit that was passed over.
func Skip(unit, reason string) Outcome {
	return Outcome{Unit: unit, Status: Skipped, Reason: reason}
}

// Fail reports a unit that failed without stopping the run.
func Fail(unit string, err error) Outcome {
	return Outcome{Unit: unit, Status: Failed, Err: err}
}

func (o Outcome) String() string {
	switch {
	case o.Err != nil:
		return fmt.Sprintf("%s: %s (%v)", o.Unit, o.Status, o.Err)
	case o.Reason != "":
		return fmt.Sprintf("%s: %s (%s)", o.Unit, o.Status, o.Reason)
	}
	return fmt.Sprintf("%s: %s", o.Unit, o.Status)
}

// List aggregates outcomes in the order they were recorded.
type List []Outcome

// Count returns how many outcomes have status s.
func (l List) Count(s Status) int {
	n := 0
	for _, o := range l {
		if o.Status == s {
			n++
		}
	}
	return n
}

// Find returns the first outcome for unit.
func (l List) Find(unit string) (Outcome, bool) {
	for _, o := range l {
		if o.Unit == unit {
			return o, true
		}
	}
	return Outcome{}, false
}

// Summary renders counts as "3 success, 1 skipped, 0 failed".
func (l List) Summary() string {
	parts := []string{
		fmt.Sprintf("%d %s", l.Count(Success), Success),
		fmt.Sprintf("%d %s", l.Count(Skipped), Skipped),
		fmt.Sprintf("%d %s", l.Count(Failed), Failed),
	}
	return strings.Join(parts, ", ")
}
