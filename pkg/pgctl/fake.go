package pgctl

import "context"

// FakeController is an in-memory Controller double. Every call is
// recorded onto Calls in order, so a test can assert the action
// program an FSM edge produced without a live PostgreSQL instance.
type FakeController struct {
	Running     bool
	Promoted    bool
	ReplicaUp   bool
	WalLSN      string
	SyncState   string
	WalLagBytes int64
	Slots       map[string]bool
	Settings    map[string]string

	FailOn map[string]error

	Calls []string
}

// NewFake returns a FakeController with its maps initialized.
func NewFake() *FakeController {
	return &FakeController{
		Slots:    make(map[string]bool),
		Settings: make(map[string]string),
		FailOn:   make(map[string]error),
	}
}

func (f *FakeController) record(name string) error {
	f.Calls = append(f.Calls, name)
	if err, ok := f.FailOn[name]; ok {
		return err
	}
	return nil
}

func (f *FakeController) Probe(_ context.Context) (Probe, error) {
	if err := f.record("Probe"); err != nil {
		return Probe{}, err
	}
	return Probe{
		IsRunning:   f.Running,
		WalLSN:      f.WalLSN,
		SyncState:   f.SyncState,
		HasReplica:  f.ReplicaUp,
		WalLagBytes: f.WalLagBytes,
	}, nil
}

func (f *FakeController) HasReplica(_ context.Context, _ string) (bool, error) {
	if err := f.record("HasReplica"); err != nil {
		return false, err
	}
	return f.ReplicaUp, nil
}

func (f *FakeController) Start(_ context.Context) error {
	if err := f.record("Start"); err != nil {
		return err
	}
	f.Running = true
	return nil
}

func (f *FakeController) Stop(_ context.Context) error {
	if err := f.record("Stop"); err != nil {
		return err
	}
	f.Running = false
	return nil
}

func (f *FakeController) Restart(_ context.Context) error {
	if err := f.record("Restart"); err != nil {
		return err
	}
	f.Running = true
	return nil
}

func (f *FakeController) ReloadConf(_ context.Context) error {
	return f.record("ReloadConf")
}

func (f *FakeController) Promote(_ context.Context) error {
	if err := f.record("Promote"); err != nil {
		return err
	}
	f.Promoted = true
	return nil
}

func (f *FakeController) RewindTo(_ context.Context, _ string, _ int, _, _, _ string) error {
	return f.record("RewindTo")
}

func (f *FakeController) InitStandby(_ context.Context, _ string) error {
	return f.record("InitStandby")
}

func (f *FakeController) AddDefaultSettings(_ context.Context) error {
	return f.record("AddDefaultSettings")
}

func (f *FakeController) CreateReplicationSlot(_ context.Context, name string) error {
	if err := f.record("CreateReplicationSlot"); err != nil {
		return err
	}
	f.Slots[name] = true
	return nil
}

func (f *FakeController) DropReplicationSlot(_ context.Context, name string) error {
	if err := f.record("DropReplicationSlot"); err != nil {
		return err
	}
	delete(f.Slots, name)
	return nil
}

func (f *FakeController) EnableSyncRep(_ context.Context) error {
	if err := f.record("EnableSyncRep"); err != nil {
		return err
	}
	f.Settings["synchronous_commit"] = "on"
	return nil
}

func (f *FakeController) DisableSyncRep(_ context.Context) error {
	if err := f.record("DisableSyncRep"); err != nil {
		return err
	}
	f.Settings["synchronous_commit"] = "local"
	return nil
}

func (f *FakeController) CreateMonitorUser(_ context.Context, _, _ string) error {
	return f.record("CreateMonitorUser")
}

func (f *FakeController) CreateReplicationUser(_ context.Context, _, _ string) error {
	return f.record("CreateReplicationUser")
}

func (f *FakeController) AddStandbyToHBA(_ context.Context, _, _ string) error {
	return f.record("AddStandbyToHBA")
}
