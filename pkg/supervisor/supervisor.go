// Package supervisor runs the reconcile loop and the status server as
// two goroutines in one process and routes OS signals to them. The
// component design's source forks one child process per role; the
// design notes explicitly permit replacing that with two concurrent
// tasks in a single process as long as the state file keeps exactly
// one writer, which the ReconcileLoop serialized by pkg/pidfile's
// Guard already guarantees. Signal handling and the monitor-and-restart
// posture are grounded on cmd/warren/main.go's
// signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM) + ordered
// shutdown, and on the teacher's embedded containerd manager's
// watch-and-restart goroutine.
package supervisor

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog"

	"github.com/gmr/pg-auto-failover/pkg/log"
)

// ReconcileRunner is the subset of *reconcile.Loop the supervisor
// drives, kept as an interface so tests can substitute a stub.
type ReconcileRunner interface {
	Run(ctx context.Context) error
	RequestReload()
	RequestGracefulStop()
	RequestFastStop()
}

// StatusServerRunner is the subset of *statusserver.Server the
// supervisor drives.
type StatusServerRunner interface {
	Run(ctx context.Context) error
}

// MaxStatusServerRestarts bounds how many times the supervisor
// restarts a crashing status server before giving up on it (the
// reconcile loop continues regardless; losing the HTTP surface is not
// fatal to node health).
const MaxStatusServerRestarts = 5

// Supervisor owns the lifetime of one keeper process's two long-lived
// tasks and the signal routing between them.
type Supervisor struct {
	reconcile ReconcileRunner
	status    StatusServerRunner
	logger    zerolog.Logger
}

// New builds a Supervisor over an already-constructed reconcile loop
// and status server.
func New(reconcile ReconcileRunner, status StatusServerRunner) *Supervisor {
	return &Supervisor{
		reconcile: reconcile,
		status:    status,
		logger:    log.WithComponent("supervisor"),
	}
}

// Run installs signal handlers, starts both tasks, and blocks until
// the reconcile loop exits (clean stop or unrecoverable error) or ctx
// is canceled.
func (s *Supervisor) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGHUP, syscall.SIGTERM, syscall.SIGINT, syscall.SIGQUIT)
	defer signal.Stop(sigCh)

	go s.routeSignals(ctx, sigCh)

	reconcileErrCh := make(chan error, 1)
	go func() {
		reconcileErrCh <- s.reconcile.Run(ctx)
	}()

	go s.runStatusServerWithRestarts(ctx)

	select {
	case err := <-reconcileErrCh:
		if err != nil {
			s.logger.Error().Err(err).Msg("reconcile loop exited with error")
		} else {
			s.logger.Info().Msg("reconcile loop stopped cleanly")
		}
		return err
	case <-ctx.Done():
		return nil
	}
}

// routeSignals translates received signals into the flags the
// reconcile loop polls at its barriers: SIGHUP asks for a reload,
// SIGTERM asks for a graceful stop, SIGINT/SIGQUIT ask for a fast
// stop.
func (s *Supervisor) routeSignals(ctx context.Context, sigCh <-chan os.Signal) {
	for {
		select {
		case <-ctx.Done():
			return
		case sig := <-sigCh:
			switch sig {
			case syscall.SIGHUP:
				s.logger.Info().Msg("received SIGHUP, requesting config reload")
				s.reconcile.RequestReload()
			case syscall.SIGTERM:
				s.logger.Info().Msg("received SIGTERM, requesting graceful stop")
				s.reconcile.RequestGracefulStop()
			case syscall.SIGINT, syscall.SIGQUIT:
				s.logger.Info().Msg("received fast-stop signal, requesting fast stop")
				s.reconcile.RequestFastStop()
			}
		}
	}
}

// runStatusServerWithRestarts restarts the status server if it exits
// unexpectedly, up to MaxStatusServerRestarts times, then gives up on
// it while leaving the reconcile loop running.
func (s *Supervisor) runStatusServerWithRestarts(ctx context.Context) {
	restarts := 0
	for {
		err := s.status.Run(ctx)
		if ctx.Err() != nil {
			return
		}
		if err == nil {
			return
		}

		if restarts >= MaxStatusServerRestarts {
			s.logger.Error().Err(err).Int("restarts", restarts).Msg("status server exceeded restart limit, giving up")
			return
		}
		restarts++
		s.logger.Error().Err(err).Int("restart", restarts).Msg("status server exited, restarting")
	}
}
