package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gmr/pg-auto-failover/pkg/types"
)

const sampleINI = `[pg_autoctl]
formation = default
nodename = node1
monitor_uri = http://monitor:8080

[postgresql]
pgdata = /var/lib/postgresql/data
pgport = 5432
auth_method = trust

[replication]
slot_name = pgautofailover_standby
password = secret

[timeout]
network_partition_timeout_seconds = 20

[httpd]
listen_address = *
port = 8008
`

func writeSample(t *testing.T, contents string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "pg_autoctl.cfg")
	require.NoError(t, os.WriteFile(path, []byte(contents), 0644))
	return path
}

func TestLoadParsesAllSections(t *testing.T) {
	path := writeSample(t, sampleINI)
	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "default", cfg.Formation)
	assert.Equal(t, "node1", cfg.Nodename)
	assert.Equal(t, "/var/lib/postgresql/data", cfg.PgSetup.PgData)
	assert.Equal(t, 5432, cfg.PgSetup.PgPort)
	assert.Equal(t, "pgautofailover_standby", cfg.ReplicationSlotName)
	assert.Equal(t, 20, cfg.NetworkPartitionTimeoutSeconds)
	assert.Equal(t, 8008, cfg.HTTPD.Port)
}

func TestLoadRejectsMissingFormation(t *testing.T) {
	path := writeSample(t, "[postgresql]\npgport = 5432\n")
	_, err := Load(path)
	require.Error(t, err)
	assert.Equal(t, types.ErrKindConfigInvalid, types.KindOf(err))
}

func TestLoadRejectsMalformedLine(t *testing.T) {
	path := writeSample(t, "[pg_autoctl]\nthis is not a kv line\n")
	_, err := Load(path)
	require.Error(t, err)
	assert.Equal(t, types.ErrKindConfigInvalid, types.KindOf(err))
}

func TestReloadAppliesOnlyReloadableFields(t *testing.T) {
	path := writeSample(t, sampleINI)
	cfg, err := Load(path)
	require.NoError(t, err)

	updated := sampleINI
	updated = replaceOnce(updated, "network_partition_timeout_seconds = 20", "network_partition_timeout_seconds = 30")
	updated = replaceOnce(updated, "formation = default", "formation = renamed")
	require.NoError(t, os.WriteFile(path, []byte(updated), 0644))

	next, err := Reload(path, cfg)
	require.NoError(t, err)
	assert.Equal(t, 30, next.NetworkPartitionTimeoutSeconds)
	assert.Equal(t, "default", next.Formation, "non-reloadable field must not change")
}

func TestReloadKeepsCurrentOnParseError(t *testing.T) {
	path := writeSample(t, sampleINI)
	cfg, err := Load(path)
	require.NoError(t, err)

	require.NoError(t, os.WriteFile(path, []byte("not valid ini at all ="), 0644))

	next, err := Reload(path, cfg)
	require.Error(t, err)
	assert.Same(t, cfg, next)
}

func TestSaveThenLoadRoundTrips(t *testing.T) {
	path := writeSample(t, sampleINI)
	cfg, err := Load(path)
	require.NoError(t, err)

	out := filepath.Join(t.TempDir(), "written.cfg")
	require.NoError(t, Save(out, cfg))

	reloaded, err := Load(out)
	require.NoError(t, err)
	assert.Equal(t, cfg.Formation, reloaded.Formation)
	assert.Equal(t, cfg.PgSetup.PgPort, reloaded.PgSetup.PgPort)
}

func replaceOnce(s, old, new string) string {
	idx := indexOf(s, old)
	if idx < 0 {
		return s
	}
	return s[:idx] + new + s[idx+len(old):]
}

func indexOf(s, sub string) int {
	for i := 0; i+len(sub) <= len(s); i++ {
		if s[i:i+len(sub)] == sub {
			return i
		}
	}
	return -1
}
