// Package reconcile drives the keeper's per-node control loop: on each
// tick it loads state, probes Postgres, calls the monitor, and steers
// the FSM toward the monitor's assignment. Grounded directly on the
// teacher's Reconciler (pkg/reconciler/reconciler.go): a select-driven
// run loop (a time.After sleep between ticks, ctx cancellation, and
// atomic stop flags in place of a stop channel), the same metrics.Timer
// wrapping each cycle, the same warn-and-continue posture on a failed
// sub-step, generalized from "reconcile containers against desired
// state" to "reconcile one node's role against the monitor's
// assignment", with the five CHECK_FOR_FAST_SHUTDOWN barriers and the
// reload/graceful-stop/fast-stop flag handling the component design
// adds on top.
package reconcile

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/gmr/pg-auto-failover/pkg/config"
	"github.com/gmr/pg-auto-failover/pkg/fsm"
	"github.com/gmr/pg-auto-failover/pkg/history"
	"github.com/gmr/pg-auto-failover/pkg/log"
	"github.com/gmr/pg-auto-failover/pkg/metrics"
	"github.com/gmr/pg-auto-failover/pkg/monitor"
	"github.com/gmr/pg-auto-failover/pkg/partition"
	"github.com/gmr/pg-auto-failover/pkg/pgctl"
	"github.com/gmr/pg-auto-failover/pkg/pidfile"
	"github.com/gmr/pg-auto-failover/pkg/state"
	"github.com/gmr/pg-auto-failover/pkg/types"
)

// DefaultSleepInterval is PG_AUTOCTL_KEEPER_SLEEP_TIME: the pause
// between ticks when the previous tick made no transition.
const DefaultSleepInterval = 1 * time.Second

// Loop is the ReconcileLoop component. Exactly one Loop may run
// against a given PGDATA at a time, enforced by PidGuard.
type Loop struct {
	configPath string
	cfg        *types.KeeperConfig

	store  *state.Store
	guard  *pidfile.Guard
	ctrl   pgctl.Controller
	mon    monitor.Client
	ledger *history.Ledger
	sleep  time.Duration
	logger zerolog.Logger

	reload       atomic.Bool
	gracefulStop atomic.Bool
	fastStop     atomic.Bool

	lastTickTransitioned bool
}

// New builds a Loop. cfg is the already-loaded KeeperConfig; guard
// must already have been Acquire'd by the caller before Run starts.
func New(configPath string, cfg *types.KeeperConfig, store *state.Store, guard *pidfile.Guard, ctrl pgctl.Controller, mon monitor.Client, ledger *history.Ledger) *Loop {
	return &Loop{
		configPath: configPath,
		cfg:        cfg,
		store:      store,
		guard:      guard,
		ctrl:       ctrl,
		mon:        mon,
		ledger:     ledger,
		sleep:      DefaultSleepInterval,
		logger:     log.WithNode(cfg.Nodename).With().Str("component", "reconcile").Logger(),
	}
}

// RequestReload asks the next tick to re-parse the config file.
func (l *Loop) RequestReload() { l.reload.Store(true) }

// RequestGracefulStop asks the loop to finish the current tick and exit.
func (l *Loop) RequestGracefulStop() { l.gracefulStop.Store(true) }

// RequestFastStop asks the loop to exit at the next barrier without
// writing state.
func (l *Loop) RequestFastStop() { l.fastStop.Store(true) }

// tickOutcome is what one call to tick reports back to Run.
type tickOutcome struct {
	transitioned bool
	exit         bool
	err          error
}

// Run drives ticks until a stop is requested or ctx is canceled.
func (l *Loop) Run(ctx context.Context) error {
	l.logger.Info().Msg("reconcile loop started")

	for {
		select {
		case <-ctx.Done():
			return nil
		default:
		}

		sleep := l.sleep
		if l.lastTickTransitioned {
			sleep = 0 // fast retry after progress, per step 3
		}
		if sleep > 0 {
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(sleep):
			}
		}

		outcome := l.tick(ctx)
		l.lastTickTransitioned = outcome.transitioned

		if outcome.err != nil {
			l.logger.Error().Err(outcome.err).Msg("reconcile tick failed")
			if outcome.exit {
				return outcome.err
			}
		}
		if outcome.exit {
			l.logger.Info().Msg("reconcile loop stopping")
			return nil
		}
	}
}

// tick runs exactly one reconcile cycle: the numbered steps from the
// component design except step 3 (the inter-tick sleep, done by Run),
// each CHECK_FOR_FAST_SHUTDOWN barrier checked in order.
func (l *Loop) tick(ctx context.Context) tickOutcome {
	timer := metrics.NewTimer()
	defer func() {
		timer.ObserveDuration(metrics.ReconciliationDuration)
		metrics.ReconciliationCyclesTotal.Inc()
	}()

	// Step 1: honor reload flag.
	if l.reload.Swap(false) {
		next, err := config.Reload(l.configPath, l.cfg)
		if err != nil {
			l.logger.Warn().Err(err).Msg("config reload failed, keeping current config")
		} else {
			l.cfg = next
		}
	}

	// Step 2: honor graceful-stop flag.
	if l.gracefulStop.Load() {
		return tickOutcome{exit: true}
	}

	// Step 4: PidGuard check.
	if err := l.guard.Check(); err != nil {
		return tickOutcome{exit: true, err: err}
	}

	// Step 5: read state.
	st, err := l.store.Read()
	if err != nil {
		l.logger.Warn().Err(err).Msg("state read failed, will retry next tick")
		return tickOutcome{}
	}

	// Barrier: after state read.
	if l.fastStop.Load() {
		return tickOutcome{exit: true}
	}

	// Step 6: refresh Postgres probe.
	probe, err := l.ctrl.Probe(ctx)
	if err != nil {
		l.logger.Warn().Err(err).Msg("postgres probe failed")
	} else {
		st.PgIsRunning = probe.IsRunning
		st.SyncState = probe.SyncState
		st.XlogLagBytes = probe.WalLagBytes
	}

	// Barrier: after Postgres probe.
	if l.fastStop.Load() {
		return tickOutcome{exit: true}
	}

	now := time.Now()
	monitorReached := l.callMonitor(ctx, st, probe, now)

	// Barrier: after monitor call.
	if l.fastStop.Load() {
		return tickOutcome{exit: true}
	}

	deps := l.fsmDeps()

	if monitorReached {
		if err := fsm.EnsureCurrentState(ctx, st.CurrentRole, deps); err != nil {
			l.logger.Warn().Err(err).Msg("ensure_current_state failed")
		}
	}

	// Barrier: after ensure.
	if l.fastStop.Load() {
		return tickOutcome{exit: true}
	}

	transitioned := false
	if st.AssignedRole != st.CurrentRole {
		from := st.CurrentRole
		next, err := fsm.Transition(ctx, st.CurrentRole, st.AssignedRole, deps)
		ok := err == nil
		if ok {
			st.CurrentRole = next
			transitioned = true
			metrics.TransitionsTotal.WithLabelValues(string(from), string(next), "ok").Inc()
		} else {
			l.logger.Warn().Err(err).Str("from", string(from)).Str("to", string(st.AssignedRole)).
				Msg("fsm transition failed")
			metrics.TransitionsTotal.WithLabelValues(string(from), string(st.AssignedRole), "error").Inc()
		}
		if l.ledger != nil {
			detail := ""
			if err != nil {
				detail = err.Error()
			}
			_ = l.ledger.Append(types.TransitionRecord{
				At: now.Unix(), From: from, To: st.AssignedRole, OK: ok, Detail: detail,
			})
		}
	}
	metrics.SetCurrentRole(string(st.CurrentRole))

	// Barrier: after transition.
	if l.fastStop.Load() {
		return tickOutcome{exit: true}
	}

	// Step 10: persist regardless of transition outcome.
	if err := l.store.Write(st); err != nil {
		l.logger.Error().Err(err).Msg("state write failed")
	}

	// Step 11: fast-stop check; exit.
	if l.fastStop.Load() {
		return tickOutcome{transitioned: transitioned, exit: true}
	}
	return tickOutcome{transitioned: transitioned}
}

// callMonitor performs step 7: report to the monitor, update contact
// timestamps and assigned_role on success, or invoke PartitionDetector
// on failure while the node believes itself PRIMARY. It returns
// whether the monitor was reached this tick.
func (l *Loop) callMonitor(ctx context.Context, st *types.KeeperState, probe pgctl.Probe, now time.Time) bool {
	report := monitor.Report{
		Formation:   l.cfg.Formation,
		NodeName:    l.cfg.Nodename,
		Port:        l.cfg.PgSetup.PgPort,
		NodeID:      st.CurrentNodeID,
		Group:       st.CurrentGroup,
		CurrentRole: st.CurrentRole,
		PgIsRunning: st.PgIsRunning,
		WalLagBytes: st.XlogLagBytes,
		SyncState:   st.SyncState,
	}

	timer := metrics.NewTimer()
	assignment, err := l.mon.NodeActive(ctx, report)
	timer.ObserveDurationVec(metrics.MonitorCallDuration, "node_active")
	if err == nil {
		st.LastMonitorContact = now.Unix()
		st.AssignedRole = assignment.AssignedState
		return true
	}

	metrics.MonitorUnreachableTotal.Inc()
	l.logger.Warn().Err(err).Msg("monitor unreachable")

	if st.CurrentRole != types.NodeStatePrimary {
		return false
	}

	res := partition.Detect(partition.Inputs{
		LastMonitorContact:   st.LastMonitorContact,
		LastSecondaryContact: st.LastSecondaryContact,
		Now:                  now,
		TimeoutSeconds:       int64(l.cfg.NetworkPartitionTimeoutSeconds),
		HasReplica:           probe.HasReplica,
	})
	st.LastSecondaryContact = res.LastSecondaryContact
	if res.Partitioned {
		metrics.PartitionDetectedTotal.Inc()
		st.AssignedRole = types.NodeStateDemoteTimeout
	}
	return false
}

func (l *Loop) fsmDeps() fsm.Deps {
	return fsm.Deps{
		Controller:          l.ctrl,
		ReplicationSlotName: l.cfg.ReplicationSlotName,
		ReplicationUser:     "pgautofailover_replicator",
		ReplicationPassword: l.cfg.ReplicationPassword,
		PrimaryHost:         l.cfg.Nodename,
		PrimaryPort:         l.cfg.PgSetup.PgPort,
		StandbyHost:         l.cfg.Nodename,
		MonitorHost:         l.cfg.MonitorURI,
		MonitorAuthMethod:   l.cfg.PgSetup.AuthMethod,
	}
}
