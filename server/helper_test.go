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

package server

import (
	"context"
	"net"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/accessd-project/accessd/internal/logger"
	"github.com/accessd-project/accessd/keys"
	"github.com/accessd-project/accessd/state"
)

// testClock is a mutable clock safe for the executor goroutines.
type testClock struct {
	mu sync.Mutex
	t  time.Time
}

func newTestClock() *testClock {
	return &testClock{t: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

type hookCall struct {
	action string
	addr   string
}

// fakeHook records invocations and optionally fails per action.
type fakeHook struct {
	mu     sync.Mutex
	calls  []hookCall
	fail   map[string]error
	output []byte
}

func (h *fakeHook) Run(ctx context.Context, action, addr string) ([]byte, error) {
	h.mu.Lock()
	h.calls = append(h.calls, hookCall{action: action, addr: addr})
	err := error(nil)
	if h.fail != nil {
		err = h.fail[action]
	}
	out := h.output
	h.mu.Unlock()
	return out, err
}

func (h *fakeHook) callCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.calls)
}

func (h *fakeHook) call(i int) hookCall {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.calls[i]
}

type testServer struct {
	*Server
	hookRec *fakeHook
	clock   *testClock
}

// newTestServer assembles a server around a fake hook and a controllable
// clock, with replay state in a temp dir.
func newTestServer(t *testing.T, duration time.Duration) *testServer {
	t.Helper()

	st, err := state.ReadServerState(filepath.Join(t.TempDir(), "state.yaml"))
	require.NoError(t, err)

	serverKP, err := keys.Generate()
	require.NoError(t, err)
	aliceKP, err := keys.Generate()
	require.NoError(t, err)
	bobKP, err := keys.Generate()
	require.NoError(t, err)

	kd := &keys.ServerKeyData{
		Secret: serverKP.Secret,
		PeerPublicKeys: map[string]keys.Key{
			"alice": aliceKP.Public,
			"bob":   bobKP.Public,
		},
	}

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	hook := &fakeHook{}
	clock := newTestClock()
	s := &Server{
		log:      logger.Nop(),
		keyData:  kd,
		hook:     hook,
		duration: duration,
		state:    st,
		leases:   newLeaseTable(),
		ctx:      ctx,
		now:      clock.Now,
	}
	return &testServer{Server: s, hookRec: hook, clock: clock}
}

func areq(peer string, id uint64, ip string) *authedReq {
	return &authedReq{peer: peer, reqID: id, clientIP: net.ParseIP(ip)}
}

// waitFor polls until cond holds.
func waitFor(t *testing.T, cond func() bool, msg string) {
	t.Helper()
	require.Eventually(t, cond, 2*time.Second, 5*time.Millisecond, msg)
}
