// Package partition implements the keeper's network-partition
// detector: the decision of whether a primary that has lost contact
// with the monitor must stop itself to avoid split-brain, or is still
// within its grace window.
package partition

import (
	"time"
)

// Inputs bundles what Detect needs to decide, mirroring the component
// design's input list: current state, wall clock, the configured
// timeout, and a live replica probe.
type Inputs struct {
	LastMonitorContact   int64 // epoch seconds, 0 if never
	LastSecondaryContact int64 // epoch seconds, 0 if never
	Now                  time.Time
	TimeoutSeconds       int64
	HasReplica           bool
}

// Result is Detect's verdict.
type Result struct {
	Partitioned          bool
	LastSecondaryContact int64 // updated value the caller must persist
}

// Detect runs the three-step decision procedure. It is only ever
// meaningful when called for a node currently in the PRIMARY role that
// just failed to reach the monitor; callers enforce that precondition.
//
// Step 2 deliberately computes lag as now minus last contact, not the
// reverse: Now is always later than a previously recorded contact
// time, so subtracting in this order yields a non-negative duration
// the monitor's grace window can be compared against.
func Detect(in Inputs) Result {
	if in.HasReplica {
		return Result{
			Partitioned:          false,
			LastSecondaryContact: in.Now.Unix(),
		}
	}

	now := in.Now.Unix()
	monitorLag := now - in.LastMonitorContact
	secondaryLag := now - in.LastSecondaryContact

	if in.LastMonitorContact > 0 && in.LastSecondaryContact > 0 &&
		monitorLag > in.TimeoutSeconds && secondaryLag > in.TimeoutSeconds {
		return Result{
			Partitioned:          true,
			LastSecondaryContact: in.LastSecondaryContact,
		}
	}

	return Result{
		Partitioned:          false,
		LastSecondaryContact: in.LastSecondaryContact,
	}
}
