package supervisor

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubReconcile struct {
	reloadCalled  atomic.Bool
	gracefulCalled atomic.Bool
	fastCalled    atomic.Bool
	done          chan struct{}
	err           error
}

func newStubReconcile() *stubReconcile {
	return &stubReconcile{done: make(chan struct{})}
}

func (s *stubReconcile) Run(ctx context.Context) error {
	select {
	case <-s.done:
		return s.err
	case <-ctx.Done():
		return nil
	}
}

func (s *stubReconcile) RequestReload()       { s.reloadCalled.Store(true) }
func (s *stubReconcile) RequestGracefulStop() { s.gracefulCalled.Store(true); close(s.done) }
func (s *stubReconcile) RequestFastStop()     { s.fastCalled.Store(true); close(s.done) }

type stubStatusServer struct {
	runs    atomic.Int32
	failN   int32
	failErr error
}

func (s *stubStatusServer) Run(ctx context.Context) error {
	n := s.runs.Add(1)
	if n <= s.failN {
		return s.failErr
	}
	<-ctx.Done()
	return nil
}

func TestRunReturnsWhenReconcileStopsCleanly(t *testing.T) {
	recon := newStubReconcile()
	status := &stubStatusServer{}
	sup := New(recon, status)

	go func() {
		time.Sleep(20 * time.Millisecond)
		close(recon.done)
	}()

	err := sup.Run(context.Background())
	assert.NoError(t, err)
}

func TestRunPropagatesReconcileError(t *testing.T) {
	recon := newStubReconcile()
	recon.err = errors.New("fatal")
	status := &stubStatusServer{}
	sup := New(recon, status)

	go func() {
		time.Sleep(20 * time.Millisecond)
		close(recon.done)
	}()

	err := sup.Run(context.Background())
	require.Error(t, err)
	assert.Equal(t, "fatal", err.Error())
}

func TestStatusServerRestartsUpToLimit(t *testing.T) {
	status := &stubStatusServer{failN: 3, failErr: errors.New("boom")}
	sup := New(newStubReconcile(), status)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go sup.runStatusServerWithRestarts(ctx)
	time.Sleep(50 * time.Millisecond)

	assert.GreaterOrEqual(t, status.runs.Load(), int32(4))
}
