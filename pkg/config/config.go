// Package config reads and writes the keeper's INI-style configuration
// file: sections pg_autoctl, postgresql, replication, timeout, httpd.
// No INI library turned up anywhere in the retrieval pack (the
// teacher's own config manifests are YAML, a different format
// entirely), so this is a small hand-rolled scanner in the same
// utilitarian style as the rest of the teacher's file-handling code.
package config

import (
	"bufio"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/gmr/pg-auto-failover/pkg/types"
)

// reloadableKeys are the "section.key" pairs SIGHUP is allowed to
// change; everything else keeps its original value across a reload.
var reloadableKeys = map[string]bool{
	"timeout.network_partition_timeout_seconds": true,
	"httpd.listen_address":                      true,
	"httpd.port":                                true,
}

// Load reads and parses the INI file at path into a fresh
// types.KeeperConfig.
func Load(path string) (*types.KeeperConfig, error) {
	sections, err := parse(path)
	if err != nil {
		return nil, err
	}
	return build(sections)
}

// Reload re-reads path and merges only the fields marked reloadable
// into a copy of current, leaving every non-reloadable field
// untouched. On any parse error, it returns current unchanged so a bad
// edit never takes down a running keeper.
func Reload(path string, current *types.KeeperConfig) (*types.KeeperConfig, error) {
	sections, err := parse(path)
	if err != nil {
		return current, fmt.Errorf("config: reload %s: %w", path, err)
	}

	next, err := build(sections)
	if err != nil {
		return current, fmt.Errorf("config: reload %s: %w", path, err)
	}

	merged := *current
	if reloadableKeys["timeout.network_partition_timeout_seconds"] {
		merged.NetworkPartitionTimeoutSeconds = next.NetworkPartitionTimeoutSeconds
	}
	if reloadableKeys["httpd.listen_address"] {
		merged.HTTPD.ListenAddress = next.HTTPD.ListenAddress
	}
	if reloadableKeys["httpd.port"] {
		merged.HTTPD.Port = next.HTTPD.Port
	}
	return &merged, nil
}

// Save writes cfg back to path in the same INI layout Load reads.
func Save(path string, cfg *types.KeeperConfig) error {
	var b strings.Builder

	fmt.Fprintf(&b, "[pg_autoctl]\n")
	fmt.Fprintf(&b, "formation = %s\n", cfg.Formation)
	fmt.Fprintf(&b, "nodename = %s\n", cfg.Nodename)
	fmt.Fprintf(&b, "monitor_uri = %s\n\n", cfg.MonitorURI)

	fmt.Fprintf(&b, "[postgresql]\n")
	fmt.Fprintf(&b, "pgdata = %s\n", cfg.PgSetup.PgData)
	fmt.Fprintf(&b, "pgport = %d\n", cfg.PgSetup.PgPort)
	fmt.Fprintf(&b, "auth_method = %s\n\n", cfg.PgSetup.AuthMethod)

	fmt.Fprintf(&b, "[replication]\n")
	fmt.Fprintf(&b, "slot_name = %s\n", cfg.ReplicationSlotName)
	fmt.Fprintf(&b, "password = %s\n\n", cfg.ReplicationPassword)

	fmt.Fprintf(&b, "[timeout]\n")
	fmt.Fprintf(&b, "network_partition_timeout_seconds = %d\n\n", cfg.NetworkPartitionTimeoutSeconds)

	fmt.Fprintf(&b, "[httpd]\n")
	fmt.Fprintf(&b, "listen_address = %s\n", cfg.HTTPD.ListenAddress)
	fmt.Fprintf(&b, "port = %d\n", cfg.HTTPD.Port)

	if err := os.WriteFile(path, []byte(b.String()), 0644); err != nil {
		return types.NewError(types.ErrKindConfigInvalid, "config.Save", err)
	}
	return nil
}

// parse scans path into section -> key -> value, tolerating blank
// lines and "#"/";" comments.
func parse(path string) (map[string]map[string]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, types.NewError(types.ErrKindConfigInvalid, "config.parse", err)
	}
	defer f.Close()

	sections := make(map[string]map[string]string)
	section := ""

	scanner := bufio.NewScanner(f)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") || strings.HasPrefix(line, ";") {
			continue
		}
		if strings.HasPrefix(line, "[") && strings.HasSuffix(line, "]") {
			section = strings.TrimSpace(line[1 : len(line)-1])
			if _, ok := sections[section]; !ok {
				sections[section] = make(map[string]string)
			}
			continue
		}
		idx := strings.Index(line, "=")
		if idx < 0 {
			return nil, types.NewError(types.ErrKindConfigInvalid, "config.parse",
				fmt.Errorf("%s:%d: expected 'key = value', got %q", path, lineNo, line))
		}
		key := strings.TrimSpace(line[:idx])
		value := strings.TrimSpace(line[idx+1:])
		if section == "" {
			return nil, types.NewError(types.ErrKindConfigInvalid, "config.parse",
				fmt.Errorf("%s:%d: key %q outside any section", path, lineNo, key))
		}
		sections[section][key] = value
	}
	if err := scanner.Err(); err != nil {
		return nil, types.NewError(types.ErrKindConfigInvalid, "config.parse", err)
	}
	return sections, nil
}

func build(sections map[string]map[string]string) (*types.KeeperConfig, error) {
	cfg := &types.KeeperConfig{}

	pga := sections["pg_autoctl"]
	cfg.Formation = pga["formation"]
	cfg.Nodename = pga["nodename"]
	cfg.MonitorURI = pga["monitor_uri"]

	pg := sections["postgresql"]
	cfg.PgSetup.PgData = pg["pgdata"]
	cfg.PgSetup.AuthMethod = pg["auth_method"]
	if port, err := intField(pg, "pgport"); err != nil {
		return nil, err
	} else {
		cfg.PgSetup.PgPort = port
	}

	repl := sections["replication"]
	cfg.ReplicationSlotName = repl["slot_name"]
	cfg.ReplicationPassword = repl["password"]

	timeout := sections["timeout"]
	if v, err := intField(timeout, "network_partition_timeout_seconds"); err != nil {
		return nil, err
	} else {
		cfg.NetworkPartitionTimeoutSeconds = v
	}

	httpd := sections["httpd"]
	cfg.HTTPD.ListenAddress = httpd["listen_address"]
	if port, err := intField(httpd, "port"); err != nil {
		return nil, err
	} else {
		cfg.HTTPD.Port = port
	}

	if cfg.Formation == "" {
		return nil, types.NewError(types.ErrKindConfigInvalid, "config.build",
			fmt.Errorf("pg_autoctl.formation is required"))
	}

	return cfg, nil
}

func intField(section map[string]string, key string) (int, error) {
	raw, ok := section[key]
	if !ok || raw == "" {
		return 0, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, types.NewError(types.ErrKindConfigInvalid, "config.intField",
			fmt.Errorf("field %q: %w", key, err))
	}
	return v, nil
}
