package statusserver

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gmr/pg-auto-failover/pkg/state"
	"github.com/gmr/pg-auto-failover/pkg/types"
)

func newTestServer(t *testing.T) (*Server, *state.Store) {
	t.Helper()
	dir := t.TempDir()
	st := state.New(filepath.Join(dir, "pg_autoctl.state"))
	return New(filepath.Join(dir, "pg_autoctl.cfg"), "127.0.0.1:0", st), st
}

func TestRootReturnsHelloWorld(t *testing.T) {
	s, _ := newTestServer(t)
	rec := httptest.NewRecorder()
	s.dispatch(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, "Hello, world!\n", rec.Body.String())
}

func TestStateReturnsOk(t *testing.T) {
	s, _ := newTestServer(t)
	rec := httptest.NewRecorder()
	s.dispatch(rec, httptest.NewRequest(http.MethodGet, "/1.0/state", nil))
	assert.Equal(t, "Ok\n", rec.Body.String())
}

func TestUnknownPathIs404(t *testing.T) {
	s, _ := newTestServer(t)
	rec := httptest.NewRecorder()
	s.dispatch(rec, httptest.NewRequest(http.MethodGet, "/nope", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

// TestDispatchScansFullTableBeforeReturning404 guards the redesign
// note: every registered route must be compared against the request
// path (a full scan), not abandoned after the first mismatch, so a
// matching route later in the table is still found.
func TestDispatchScansFullTableBeforeReturning404(t *testing.T) {
	s, _ := newTestServer(t)
	for _, path := range []string{"/", "/versions", "/1.0/state", "/1.0/fsm/state", "/metrics"} {
		rec := httptest.NewRecorder()
		s.dispatch(rec, httptest.NewRequest(http.MethodGet, path, nil))
		assert.NotEqual(t, http.StatusNotFound, rec.Code, "route %s must be reachable regardless of table position", path)
	}
}

func TestFSMStateReportsCurrentAndAssignedRole(t *testing.T) {
	s, st := newTestServer(t)
	require.NoError(t, st.Write(&types.KeeperState{
		CurrentRole:  types.NodeStateSecondary,
		AssignedRole: types.NodeStatePrepPromotion,
		PgIsRunning:  true,
	}))

	rec := httptest.NewRecorder()
	s.dispatch(rec, httptest.NewRequest(http.MethodGet, "/1.0/fsm/state", nil))
	assert.Equal(t, http.StatusOK, rec.Code)

	var resp fsmStateResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, types.NodeStateSecondary, resp.FSM.CurrentRole)
	assert.Equal(t, types.NodeStatePrepPromotion, resp.FSM.AssignedRole)
}

func TestFSMStateReturns503WhenInMaintenance(t *testing.T) {
	s, st := newTestServer(t)
	require.NoError(t, st.Write(&types.KeeperState{
		CurrentRole:  types.NodeStateMaintenance,
		AssignedRole: types.NodeStateMaintenance,
	}))

	rec := httptest.NewRecorder()
	s.dispatch(rec, httptest.NewRequest(http.MethodGet, "/1.0/fsm/state", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

// TestFSMStateReturnsFixedErrorBodyOnFailure guards redesign note (b):
// when state cannot be read, the handler must write the constant error
// JSON, never a serialization of a zero-valued/unset struct.
func TestFSMStateReturnsFixedErrorBodyOnFailure(t *testing.T) {
	dir := t.TempDir()
	missing := state.New(filepath.Join(dir, "does-not-exist.state"))
	s := New(filepath.Join(dir, "pg_autoctl.cfg"), "127.0.0.1:0", missing)

	rec := httptest.NewRecorder()
	s.dispatch(rec, httptest.NewRequest(http.MethodGet, "/1.0/fsm/state", nil))

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.JSONEq(t, `{"error":"fsm state unavailable"}`, rec.Body.String())
}

func TestRunServesUntilContextCanceled(t *testing.T) {
	s, _ := newTestServer(t)
	ctx, cancel := context.WithCancel(context.Background())

	errCh := make(chan error, 1)
	go func() { errCh <- s.Run(ctx) }()

	time.Sleep(20 * time.Millisecond)
	cancel()

	select {
	case err := <-errCh:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after context cancellation")
	}
}
