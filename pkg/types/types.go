// Package types holds the data shapes shared across the keeper: the
// node state machine's vocabulary, the persisted keeper record, the
// keeper's configuration, and the error kinds the rest of the agent
// switches on to pick behavior and exit codes.
package types

import "fmt"

// NodeState is the tagged enumeration of roles the FSM recognizes.
type NodeState string

const (
	NodeStateInit             NodeState = "init"
	NodeStateSingle           NodeState = "single"
	NodeStateWaitPrimary      NodeState = "wait_primary"
	NodeStatePrimary          NodeState = "primary"
	NodeStateWaitStandby      NodeState = "wait_standby"
	NodeStateCatchingUp       NodeState = "catchingup"
	NodeStateSecondary        NodeState = "secondary"
	NodeStateMaintenance      NodeState = "maintenance"
	NodeStateDraining         NodeState = "draining"
	NodeStateDemoted          NodeState = "demoted"
	NodeStateDemoteTimeout    NodeState = "demote_timeout"
	NodeStateStopReplication  NodeState = "stop_replication"
	NodeStatePrepPromotion    NodeState = "prep_promotion"
	NodeStateStandbyPromoted NodeState = "standby_promoted"
)

// validNodeStates is the membership table ParseNodeState checks against.
var validNodeStates = map[NodeState]bool{
	NodeStateInit:             true,
	NodeStateSingle:           true,
	NodeStateWaitPrimary:      true,
	NodeStatePrimary:          true,
	NodeStateWaitStandby:      true,
	NodeStateCatchingUp:       true,
	NodeStateSecondary:        true,
	NodeStateMaintenance:      true,
	NodeStateDraining:         true,
	NodeStateDemoted:          true,
	NodeStateDemoteTimeout:    true,
	NodeStateStopReplication:  true,
	NodeStatePrepPromotion:    true,
	NodeStateStandbyPromoted: true,
}

// Valid reports whether s is one of the recognized node states.
func (s NodeState) Valid() bool {
	return validNodeStates[s]
}

func (s NodeState) String() string {
	return string(s)
}

// ParseNodeState rejects any value not in the FSM's vocabulary, per the
// persisted-state invariant that unknown values are rejected on read.
func ParseNodeState(s string) (NodeState, error) {
	ns := NodeState(s)
	if !ns.Valid() {
		return "", fmt.Errorf("%w: unknown node state %q", ErrStateCorrupt, s)
	}
	return ns, nil
}

// KeeperState is the durable record StateStore persists once per tick.
// Field order matches the on-disk binary layout in pkg/state.
type KeeperState struct {
	FormatVersion       uint32
	PgVersion           string
	PgControlVersion    uint32
	SystemIdentifier    uint64
	CurrentNodeID       int64
	CurrentGroup        int64
	CurrentRole         NodeState
	AssignedRole        NodeState
	LastMonitorContact  int64 // epoch seconds, 0 if never
	LastSecondaryContact int64
	XlogLagBytes        int64
	PgIsRunning         bool
	SyncState           string
}

// PgSetup is the postgresql section of KeeperConfig.
type PgSetup struct {
	PgData     string
	PgPort     int
	AuthMethod string
}

// HTTPDConfig is the httpd section of KeeperConfig.
type HTTPDConfig struct {
	ListenAddress string
	Port          int
}

// Paths is the path section of KeeperConfig.
type Paths struct {
	Config string
	State  string
	Pid    string
}

// KeeperConfig is loaded once at startup and is read-only within a
// tick; ReconcileLoop re-reads it only when the reload flag is set, and
// keeps the previous value if the new file fails to parse.
type KeeperConfig struct {
	Formation                     string
	Nodename                      string
	PgSetup                       PgSetup
	MonitorURI                    string
	ReplicationSlotName           string
	ReplicationPassword           string
	NetworkPartitionTimeoutSeconds int
	HTTPD                         HTTPDConfig
	Path                          Paths
}

// MonitorAssignment is the transient, per-tick response from the monitor.
type MonitorAssignment struct {
	AssignedState NodeState
	NodeID        int64
	GroupID       int64
}

// TransitionRecord is one entry in the keeper-local FSM transition
// ledger kept by pkg/history, surfaced by the `show events` CLI.
type TransitionRecord struct {
	At     int64 // epoch seconds
	From   NodeState
	To     NodeState
	OK     bool
	Detail string
}
