// accessd - authenticated, time-bounded network access control
// Copyright (C) 2026 accessd-project
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Lesser General Public License as
// published by the Free Software Foundation, either version 3 of the
// License, or (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Lesser General Public License for more details.
//
// You should have received a copy of the GNU Lesser General Public License
// along with this program. If not, see <https://www.gnu.org/licenses/>.

// SPDX-License-Identifier: LGPL-3.0-or-later

// Package state persists the monotonic request IDs that defeat replay.
// The on-disk layout is part of the protocol: a YAML document holding
// cur_req_id (client) or a cur_req_ids mapping (server). A missing file
// is a first run and reads as the zero value.
package state

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// ClientState tracks the last request ID this client sent. It is
// incremented before each send and persisted after the increment.
type ClientState struct {
	CurReqID uint64 `yaml:"cur_req_id"`

	path string
}

// ServerState tracks the highest accepted request ID per peer. A request
// with req_id <= cur_req_ids[peer] is a duplicate.
type ServerState struct {
	CurReqIDs map[string]uint64 `yaml:"cur_req_ids"`

	path string
}

// ReadClientState loads client state from path, returning a zero state if
// the file does not exist.
func ReadClientState(path string) (*ClientState, error) {
	st := &ClientState{path: path}
	if err := readState(path, st); err != nil {
		return nil, err
	}
	return st, nil
}

// Write persists the state atomically.
func (s *ClientState) Write() error {
	return writeState(s.path, s)
}

// Path returns the backing file location.
func (s *ClientState) Path() string {
	return s.path
}

// ReadServerState loads server state from path, returning an empty state
// if the file does not exist.
func ReadServerState(path string) (*ServerState, error) {
	st := &ServerState{path: path}
	if err := readState(path, st); err != nil {
		return nil, err
	}
	if st.CurReqIDs == nil {
		st.CurReqIDs = make(map[string]uint64)
	}
	return st, nil
}

// CurFor returns the highest accepted request ID for peer, zero if none.
func (s *ServerState) CurFor(peer string) uint64 {
	return s.CurReqIDs[peer]
}

// Accept records req_id as the highest accepted ID for peer in memory.
// The caller persists with Write before any side effects propagate.
func (s *ServerState) Accept(peer string, reqID uint64) {
	s.CurReqIDs[peer] = reqID
}

// Write persists the state atomically.
func (s *ServerState) Write() error {
	return writeState(s.path, s)
}

// Path returns the backing file location.
func (s *ServerState) Path() string {
	return s.path
}

func readState(path string, v interface{}) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("failed to read state file %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, v); err != nil {
		return fmt.Errorf("failed to parse state file %s: %w", path, err)
	}
	return nil
}

// writeState replaces the state file via tempfile+rename so a crash
// mid-write cannot tear the replay counters.
func writeState(path string, v interface{}) error {
	data, err := yaml.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to serialize state: %w", err)
	}

	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, filepath.Base(path)+".tmp*")
	if err != nil {
		return fmt.Errorf("failed to create temp state file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write state: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to sync state: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to close temp state file: %w", err)
	}
	if err := os.Chmod(tmp.Name(), 0o600); err != nil {
		return fmt.Errorf("failed to chmod state file: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("failed to replace state file: %w", err)
	}
	return nil
}
