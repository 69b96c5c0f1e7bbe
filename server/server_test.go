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
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/accessd-project/accessd/client"
	"github.com/accessd-project/accessd/config"
	"github.com/accessd-project/accessd/internal/logger"
	"github.com/accessd-project/accessd/keys"
)

func freeUDPPort(t *testing.T) int {
	t.Helper()
	conn, err := net.ListenUDP("udp", &net.UDPAddr{IP: net.IPv4zero, Port: 0})
	require.NoError(t, err)
	port := conn.LocalAddr().(*net.UDPAddr).Port
	conn.Close()
	return port
}

// startDaemon writes key and state files for a server and one client,
// starts the daemon with a no-op hook, and returns the client's files.
func startDaemon(t *testing.T, durationSecs uint64) (port int, clientState, clientKeys string) {
	t.Helper()
	dir := t.TempDir()

	serverKP, err := keys.Generate()
	require.NoError(t, err)
	clientKP, err := keys.Generate()
	require.NoError(t, err)

	serverKeyFile := filepath.Join(dir, "accessd_keydata.yaml")
	kd := &keys.ServerKeyData{
		Secret:         serverKP.Secret,
		PeerPublicKeys: map[string]keys.Key{"alice": clientKP.Public},
	}
	data, err := yaml.Marshal(kd)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(serverKeyFile, data, 0o600))

	clientKeys = filepath.Join(dir, "keydata.yaml")
	ckd := &keys.ClientKeyData{Secret: clientKP.Secret, PeerPublic: serverKP.Public}
	data, err = yaml.Marshal(ckd)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(clientKeys, data, 0o600))

	clientState = filepath.Join(dir, "state.yaml")
	port = freeUDPPort(t)

	cfg := config.Default()
	cfg.Network.Port = port
	cfg.Session.DurationSeconds = durationSecs
	cfg.Paths.StateFile = filepath.Join(dir, "accessd_state.yaml")
	cfg.Paths.KeyDataFile = serverKeyFile
	cfg.Hook = "/bin/true"

	srv, err := New(cfg, logger.Nop())
	require.NoError(t, err)
	srv.SetHook(&fakeHook{})

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go func() {
		_ = srv.Run(ctx)
	}()

	// Wait until the socket answers reads, i.e. the bind happened.
	waitFor(t, func() bool {
		srv.mu.Lock()
		defer srv.mu.Unlock()
		return srv.conn != nil
	}, "server should bind")
	return port, clientState, clientKeys
}

func TestServer_EndToEnd(t *testing.T) {
	port, stateFile, keyFile := startDaemon(t, 900)

	c, err := client.New(stateFile, keyFile)
	require.NoError(t, err)
	remote := &net.UDPAddr{IP: net.ParseIP("127.0.0.1"), Port: port}

	t.Run("fresh grant", func(t *testing.T) {
		resp, err := c.Request(remote, net.ParseIP("203.0.113.5"))
		require.NoError(t, err)
		assert.Equal(t, "session granted for 900 seconds. 4 renewals allowed.", resp.String())
		assert.Equal(t, uint64(1), resp.ReqID)
	})

	t.Run("second request inside the lease is too soon", func(t *testing.T) {
		resp, err := c.Request(remote, net.ParseIP("203.0.113.5"))
		require.NoError(t, err)
		assert.Equal(t, uint64(2), resp.ReqID)
		require.NotNil(t, resp)
		assert.Contains(t, resp.String(), "before renewal window")
	})

	t.Run("unspecified address is leased for the source IP", func(t *testing.T) {
		resp, err := c.Request(remote, net.ParseIP("0.0.0.0"))
		require.NoError(t, err)
		// 127.0.0.1 differs from 203.0.113.5, so this is a fresh grant.
		assert.Contains(t, resp.String(), "session granted")
	})

	t.Run("replayed request id is denied", func(t *testing.T) {
		// A client over a new, empty state file starts again at request
		// id 1, which the server has already accepted.
		stale, err := client.New(filepath.Join(t.TempDir(), "fresh.yaml"), keyFile)
		require.NoError(t, err)
		resp, err := stale.Request(remote, net.ParseIP("203.0.113.99"))
		require.NoError(t, err)
		assert.Contains(t, resp.String(), "duplicate")
	})
}

func TestServer_IgnoresUnknownSender(t *testing.T) {
	port, stateFile, _ := startDaemon(t, 900)
	dir := t.TempDir()

	// A complete stranger: valid key format, not in the server's set.
	strangerKP, err := keys.Generate()
	require.NoError(t, err)
	serverish, err := keys.Generate()
	require.NoError(t, err)

	strangerKeys := filepath.Join(dir, "keydata.yaml")
	ckd := &keys.ClientKeyData{Secret: strangerKP.Secret, PeerPublic: serverish.Public}
	data, err := yaml.Marshal(ckd)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(strangerKeys, data, 0o600))

	c, err := client.New(stateFile, strangerKeys)
	require.NoError(t, err)
	c.Timeout = 300 * time.Millisecond

	remote := &net.UDPAddr{IP: net.ParseIP("127.0.0.1"), Port: port}
	_, err = c.Request(remote, net.ParseIP("203.0.113.5"))
	require.ErrorIs(t, err, client.ErrTimeout)
}
