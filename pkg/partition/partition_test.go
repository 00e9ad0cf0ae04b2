package partition

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestDetectHealthyWhenReplicaConnected(t *testing.T) {
	now := time.Unix(1000, 0)
	res := Detect(Inputs{
		LastMonitorContact:   900,
		LastSecondaryContact: 500,
		Now:                  now,
		TimeoutSeconds:       10,
		HasReplica:           true,
	})
	assert.False(t, res.Partitioned)
	assert.Equal(t, now.Unix(), res.LastSecondaryContact)
}

func TestDetectStaysPrimaryWithinGraceWindow(t *testing.T) {
	now := time.Unix(1000, 0)
	res := Detect(Inputs{
		LastMonitorContact:   995,
		LastSecondaryContact: 995,
		Now:                  now,
		TimeoutSeconds:       10,
		HasReplica:           false,
	})
	assert.False(t, res.Partitioned)
}

// TestDetectPartitionsAfterBothTimeoutsElapse is end-to-end scenario S4:
// PRIMARY, monitor unreachable, no connected replica, timeout 10s; after
// both lag values exceed the timeout, Detect must report a partition.
func TestDetectPartitionsAfterBothTimeoutsElapse(t *testing.T) {
	now := time.Unix(1000, 0)
	res := Detect(Inputs{
		LastMonitorContact:   985, // 15s lag
		LastSecondaryContact: 985, // 15s lag
		Now:                  now,
		TimeoutSeconds:       10,
		HasReplica:           false,
	})
	assert.True(t, res.Partitioned)
}

func TestDetectNotPartitionedWhenContactNeverEstablished(t *testing.T) {
	now := time.Unix(1000, 0)
	res := Detect(Inputs{
		LastMonitorContact:   0,
		LastSecondaryContact: 0,
		Now:                  now,
		TimeoutSeconds:       10,
		HasReplica:           false,
	})
	assert.False(t, res.Partitioned, "zero contact timestamps mean 'never', not 'infinitely overdue'")
}

// TestLagIsNowMinusContactNeverNegative guards the REDESIGN FLAG fix:
// lag must be computed as now minus last contact, so a contact time
// safely in the past always yields a non-negative, growing lag. The
// reversed subtraction would instead shrink toward negative infinity
// and never trip the timeout.
func TestLagIsNowMinusContactNeverNegative(t *testing.T) {
	now := time.Unix(2000, 0)
	res := Detect(Inputs{
		LastMonitorContact:   1000, // 1000s in the past
		LastSecondaryContact: 1000,
		Now:                  now,
		TimeoutSeconds:       10,
		HasReplica:           false,
	})
	assert.True(t, res.Partitioned, "a contact 1000s in the past must read as overdue, not healthy")
}
