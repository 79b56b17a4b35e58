package pipeline

import (
	"github.com/airenas/memoir/internal/pkg/persistence"
)

// Decision is the fan-in verdict after a clip is finished
type Decision int

const (
	// Wait - more clips are running
	Wait Decision = iota
	// Advance - start extraction
	Advance
	// Fail - the cycle can't produce a story
	Fail
)

func (d Decision) String() string {
	switch d {
	case Advance:
		return "advance"
	case Fail:
		return "fail"
	}
	return "wait"
}

// Decide evaluates the cycle counters
// Advance is possible only when no clip is pending, so it is returned only by
// the worker that made the last countdown
func Decide(c *persistence.Cycle) Decision {
	if c == nil || c.Cancelled {
		return Wait
	}
	if c.Policy == persistence.PolicyBestEffort {
		if c.Pending > 0 {
			return Wait
		}
		if c.Succeeded >= MinRequired(c) {
			return Advance
		}
		return Fail
	}
	if c.Failed > 0 {
		return Fail
	}
	if c.Pending == 0 && c.Succeeded == c.Clips {
		return Advance
	}
	return Wait
}

// MinRequired returns how many clips must succeed for the cycle to go on
func MinRequired(c *persistence.Cycle) int {
	if c.Policy != persistence.PolicyBestEffort {
		return c.Clips
	}
	res := c.MinClips
	if res < 1 {
		res = 1
	}
	if res > c.Clips {
		res = c.Clips
	}
	return res
}

// ParsePolicy returns strict for unknown value
func ParsePolicy(s string) persistence.Policy {
	if persistence.Policy(s) == persistence.PolicyBestEffort {
		return persistence.PolicyBestEffort
	}
	return persistence.PolicyStrict
}
