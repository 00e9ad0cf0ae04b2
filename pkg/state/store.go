// Package state implements the keeper's durable on-disk state record:
// a fixed binary layout, written crash-atomically via a sibling temp
// file plus rename, read back with a version and checksum check so a
// torn or foreign write is never silently accepted.
package state

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"hash/crc32"
	"os"
	"path/filepath"

	"github.com/gmr/pg-auto-failover/pkg/types"
)

// FormatVersion is the current on-disk layout version. Readers reject
// any other value.
const FormatVersion uint32 = 1

// Store reads and writes the keeper's persisted KeeperState.
type Store struct {
	path string
}

// New returns a Store backed by the file at path (typically
// KeeperConfig.Path.State, e.g. "{pgdata}/pg_autoctl.state").
func New(path string) *Store {
	return &Store{path: path}
}

// Read loads and validates the current state record. A version
// mismatch, a truncated body, or a checksum mismatch is reported as a
// KeeperError of kind StateCorrupt; a missing file is returned as the
// underlying os error, which callers distinguish with os.IsNotExist.
func (s *Store) Read() (*types.KeeperState, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		return nil, err
	}
	return decode(data)
}

// Write persists state crash-atomically: it is fully serialized into a
// buffer, written to "<path>.new", fsynced, and then renamed over the
// real path. After a crash at any point, Read returns either the prior
// record or this one, never a mixture.
func (s *Store) Write(st *types.KeeperState) error {
	st.FormatVersion = FormatVersion
	data := encode(st)

	tmp := s.path + ".new"
	if err := os.MkdirAll(filepath.Dir(s.path), 0755); err != nil {
		return fmt.Errorf("state: create state dir: %w", err)
	}

	f, err := os.OpenFile(tmp, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0600)
	if err != nil {
		return fmt.Errorf("state: open temp file: %w", err)
	}

	if _, err := f.Write(data); err != nil {
		f.Close()
		return fmt.Errorf("state: write temp file: %w", err)
	}
	if err := f.Sync(); err != nil {
		f.Close()
		return fmt.Errorf("state: fsync temp file: %w", err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("state: close temp file: %w", err)
	}

	if err := os.Rename(tmp, s.path); err != nil {
		return fmt.Errorf("state: rename temp file into place: %w", err)
	}
	return nil
}

// encode renders a KeeperState into the fixed binary layout: a header
// (version, body length, crc32 of the body) followed by the body,
// string fields length-prefixed.
func encode(st *types.KeeperState) []byte {
	var body bytes.Buffer

	putString(&body, st.PgVersion)
	putUint32(&body, st.PgControlVersion)
	putUint64(&body, st.SystemIdentifier)
	putInt64(&body, st.CurrentNodeID)
	putInt64(&body, st.CurrentGroup)
	putString(&body, string(st.CurrentRole))
	putString(&body, string(st.AssignedRole))
	putInt64(&body, st.LastMonitorContact)
	putInt64(&body, st.LastSecondaryContact)
	putInt64(&body, st.XlogLagBytes)
	putBool(&body, st.PgIsRunning)
	putString(&body, st.SyncState)

	bodyBytes := body.Bytes()
	checksum := crc32.ChecksumIEEE(bodyBytes)

	var out bytes.Buffer
	putUint32(&out, FormatVersion)
	putUint32(&out, uint32(len(bodyBytes)))
	putUint32(&out, checksum)
	out.Write(bodyBytes)
	return out.Bytes()
}

func decode(data []byte) (*types.KeeperState, error) {
	if len(data) < 12 {
		return nil, types.NewError(types.ErrKindStateCorrupt, "state.decode", fmt.Errorf("truncated header (%d bytes)", len(data)))
	}

	r := bytes.NewReader(data)
	version := mustUint32(r)
	if version != FormatVersion {
		return nil, types.NewError(types.ErrKindStateCorrupt, "state.decode", fmt.Errorf("unsupported format version %d", version))
	}

	length := mustUint32(r)
	checksum := mustUint32(r)

	body := make([]byte, length)
	if n, err := r.Read(body); err != nil || uint32(n) != length {
		return nil, types.NewError(types.ErrKindStateCorrupt, "state.decode", fmt.Errorf("truncated body"))
	}
	if crc32.ChecksumIEEE(body) != checksum {
		return nil, types.NewError(types.ErrKindStateCorrupt, "state.decode", fmt.Errorf("checksum mismatch"))
	}

	br := bytes.NewReader(body)
	st := &types.KeeperState{FormatVersion: version}
	st.PgVersion = getString(br)
	st.PgControlVersion = getUint32(br)
	st.SystemIdentifier = getUint64(br)
	st.CurrentNodeID = getInt64(br)
	st.CurrentGroup = getInt64(br)

	role, err := types.ParseNodeState(getString(br))
	if err != nil {
		return nil, err
	}
	st.CurrentRole = role

	assigned, err := types.ParseNodeState(getString(br))
	if err != nil {
		return nil, err
	}
	st.AssignedRole = assigned

	st.LastMonitorContact = getInt64(br)
	st.LastSecondaryContact = getInt64(br)
	st.XlogLagBytes = getInt64(br)
	st.PgIsRunning = getBool(br)
	st.SyncState = getString(br)

	return st, nil
}

func putUint32(buf *bytes.Buffer, v uint32) {
	var b [4]byte
	binary.BigEndian.PutUint32(b[:], v)
	buf.Write(b[:])
}

func putUint64(buf *bytes.Buffer, v uint64) {
	var b [8]byte
	binary.BigEndian.PutUint64(b[:], v)
	buf.Write(b[:])
}

func putInt64(buf *bytes.Buffer, v int64) {
	putUint64(buf, uint64(v))
}

func putBool(buf *bytes.Buffer, v bool) {
	if v {
		buf.WriteByte(1)
	} else {
		buf.WriteByte(0)
	}
}

func putString(buf *bytes.Buffer, s string) {
	putUint32(buf, uint32(len(s)))
	buf.WriteString(s)
}

func mustUint32(r *bytes.Reader) uint32 {
	return getUint32(r)
}

func getUint32(r *bytes.Reader) uint32 {
	var b [4]byte
	_, _ = r.Read(b[:])
	return binary.BigEndian.Uint32(b[:])
}

func getUint64(r *bytes.Reader) uint64 {
	var b [8]byte
	_, _ = r.Read(b[:])
	return binary.BigEndian.Uint64(b[:])
}

func getInt64(r *bytes.Reader) int64 {
	return int64(getUint64(r))
}

func getBool(r *bytes.Reader) bool {
	b, _ := r.ReadByte()
	return b != 0
}

func getString(r *bytes.Reader) string {
	n := getUint32(r)
	b := make([]byte, n)
	_, _ = r.Read(b)
	return string(b)
}
