// Package monitor implements the keeper's adapter to the remote
// coordinator: reporting the node's observed state and receiving back
// the assignment the FSM must converge toward. Modeled on the shared
// single-client-struct, one-method-per-RPC shape the teacher uses for
// its control-plane calls, with the RPC transport swapped for HTTP+JSON
// since no generated gRPC stubs were available to carry forward.
package monitor

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/gmr/pg-auto-failover/pkg/types"
)

// Report is what node_active sends on every tick.
type Report struct {
	Formation    string          `json:"formation"`
	NodeName     string          `json:"nodename"`
	Port         int             `json:"port"`
	NodeID       int64           `json:"node_id"`
	Group        int64           `json:"group"`
	CurrentRole  types.NodeState `json:"current_role"`
	PgIsRunning  bool            `json:"pg_is_running"`
	WalLagBytes  int64           `json:"wal_lag_bytes"`
	SyncState    string          `json:"sync_state"`
}

// RegisterRequest is what register sends when a node first joins a
// formation.
type RegisterRequest struct {
	Formation    string          `json:"formation"`
	NodeName     string          `json:"nodename"`
	Port         int             `json:"port"`
	InitialState types.NodeState `json:"initial_state"`
}

// Client is the MonitorClient adapter contract from the component
// design: node_active, register, remove, extension_version. Failure of
// any method is reported uniformly as MonitorUnreachable; retry policy
// belongs to the caller (ReconcileLoop), not to this package.
type Client interface {
	NodeActive(ctx context.Context, report Report) (*types.MonitorAssignment, error)
	Register(ctx context.Context, req RegisterRequest) (nodeID int64, group int64, assigned types.NodeState, err error)
	Remove(ctx context.Context, nodeID, group int64) error
	ExtensionVersion(ctx context.Context) (string, error)
}

// HTTPClient is the production Client, speaking JSON over a bounded
// net/http.Client the way the teacher holds one *http.Client per
// adapter and drives every call through it.
type HTTPClient struct {
	baseURL string
	http    *http.Client
}

// New returns an HTTPClient for the monitor at baseURL (the
// KeeperConfig MonitorURI), bounding every call to timeout so a single
// tick never blocks past the monitor call's slice of the tick budget.
func New(baseURL string, timeout time.Duration) *HTTPClient {
	return &HTTPClient{
		baseURL: baseURL,
		http:    &http.Client{Timeout: timeout},
	}
}

func (c *HTTPClient) NodeActive(ctx context.Context, report Report) (*types.MonitorAssignment, error) {
	var resp struct {
		AssignedState types.NodeState `json:"assigned_state"`
		NodeID        int64           `json:"node_id"`
		GroupID       int64           `json:"group_id"`
	}
	if err := c.call(ctx, "POST", "/node_active", report, &resp); err != nil {
		return nil, err
	}
	return &types.MonitorAssignment{
		AssignedState: resp.AssignedState,
		NodeID:        resp.NodeID,
		GroupID:       resp.GroupID,
	}, nil
}

func (c *HTTPClient) Register(ctx context.Context, req RegisterRequest) (int64, int64, types.NodeState, error) {
	var resp struct {
		NodeID        int64           `json:"node_id"`
		Group         int64           `json:"group"`
		AssignedState types.NodeState `json:"assigned_state"`
	}
	if err := c.call(ctx, "POST", "/register", req, &resp); err != nil {
		return 0, 0, "", err
	}
	return resp.NodeID, resp.Group, resp.AssignedState, nil
}

func (c *HTTPClient) Remove(ctx context.Context, nodeID, group int64) error {
	req := struct {
		NodeID int64 `json:"node_id"`
		Group  int64 `json:"group"`
	}{nodeID, group}
	return c.call(ctx, "POST", "/remove", req, nil)
}

func (c *HTTPClient) ExtensionVersion(ctx context.Context) (string, error) {
	var resp struct {
		Version string `json:"version"`
	}
	if err := c.call(ctx, "GET", "/extension_version", nil, &resp); err != nil {
		return "", err
	}
	return resp.Version, nil
}

// call performs one JSON request/response exchange and wraps every
// failure mode (dial, timeout, non-2xx, malformed body) as
// MonitorUnreachable, per the single-failure-kind adapter contract.
func (c *HTTPClient) call(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return types.NewError(types.ErrKindMonitorUnreachable, "monitor."+path, err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return types.NewError(types.ErrKindMonitorUnreachable, "monitor."+path, err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("X-Request-Id", uuid.NewString())

	resp, err := c.http.Do(req)
	if err != nil {
		return types.NewError(types.ErrKindMonitorUnreachable, "monitor."+path,
			fmt.Errorf("%w: %v", types.ErrMonitorUnreachable, err))
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return types.NewError(types.ErrKindMonitorUnreachable, "monitor."+path,
			fmt.Errorf("%w: status %d", types.ErrMonitorUnreachable, resp.StatusCode))
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return types.NewError(types.ErrKindMonitorUnreachable, "monitor."+path,
			fmt.Errorf("%w: decode response: %v", types.ErrMonitorUnreachable, err))
	}
	return nil
}
