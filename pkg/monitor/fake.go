package monitor

import (
	"context"
	"fmt"

	"github.com/gmr/pg-auto-failover/pkg/types"
)

// FakeClient is a scripted test double for Client: each call to
// NodeActive consumes the next entry from Assignments (or Err, if
// set), so a test can script a sequence of monitor responses across
// ticks without standing up an HTTP server.
type FakeClient struct {
	Assignments []types.MonitorAssignment
	Err         error

	RegisterNodeID  int64
	RegisterGroup   int64
	RegisterAssign  types.NodeState
	RegisterErr     error
	RemoveErr       error
	ExtensionVer    string
	ExtensionErr    error

	calls int
}

func (f *FakeClient) NodeActive(_ context.Context, _ Report) (*types.MonitorAssignment, error) {
	if f.Err != nil {
		return nil, f.Err
	}
	if f.calls >= len(f.Assignments) {
		return nil, fmt.Errorf("fake monitor: no scripted assignment for call %d", f.calls)
	}
	a := f.Assignments[f.calls]
	f.calls++
	return &a, nil
}

func (f *FakeClient) Register(_ context.Context, _ RegisterRequest) (int64, int64, types.NodeState, error) {
	if f.RegisterErr != nil {
		return 0, 0, "", f.RegisterErr
	}
	return f.RegisterNodeID, f.RegisterGroup, f.RegisterAssign, nil
}

func (f *FakeClient) Remove(_ context.Context, _, _ int64) error {
	return f.RemoveErr
}

func (f *FakeClient) ExtensionVersion(_ context.Context) (string, error) {
	if f.ExtensionErr != nil {
		return "", f.ExtensionErr
	}
	return f.ExtensionVer, nil
}
