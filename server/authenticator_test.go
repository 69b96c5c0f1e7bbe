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
	"net"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/accessd-project/accessd/internal/logger"
	"github.com/accessd-project/accessd/keys"
	"github.com/accessd-project/accessd/packet"
	"github.com/accessd-project/accessd/state"
	"github.com/accessd-project/accessd/wire"
)

// authTestServer builds a server whose peers' secret keys the test holds.
func authTestServer(t *testing.T) (*Server, map[string]*keys.Keypair, *keys.Keypair) {
	t.Helper()

	st, err := state.ReadServerState(filepath.Join(t.TempDir(), "state.yaml"))
	require.NoError(t, err)

	serverKP, err := keys.Generate()
	require.NoError(t, err)

	peers := make(map[string]*keys.Keypair)
	peerPublics := make(map[string]keys.Key)
	for _, name := range []string{"alice", "bob", "carol"} {
		kp, err := keys.Generate()
		require.NoError(t, err)
		peers[name] = kp
		peerPublics[name] = kp.Public
	}

	s := &Server{
		log:      logger.Nop(),
		keyData:  &keys.ServerKeyData{Secret: serverKP.Secret, PeerPublicKeys: peerPublics},
		hook:     &fakeHook{},
		duration: 10 * time.Second,
		state:    st,
		leases:   newLeaseTable(),
		now:      time.Now,
	}
	return s, peers, serverKP
}

func sealedReq(t *testing.T, kp *keys.Keypair, serverPublic keys.Key, reqID uint64, ip string) []byte {
	t.Helper()
	req := &wire.SessReq{ReqID: reqID, ReqData: wire.TimedAccess(net.ParseIP(ip))}
	body, err := req.Marshal()
	require.NoError(t, err)
	sealed, err := packet.Seal(body, &kp.Secret, &serverPublic)
	require.NoError(t, err)
	return sealed
}

func TestAuthenticate_IdentifiesPeerByTrialDecryption(t *testing.T) {
	s, peers, serverKP := authTestServer(t)
	src := net.ParseIP("198.51.100.9")

	for name, kp := range peers {
		pkt := sealedReq(t, kp, serverKP.Public, 7, "203.0.113.5")
		got, ok := s.authenticate(src, pkt)
		require.True(t, ok)
		assert.Equal(t, name, got.peer)
		assert.Equal(t, uint64(7), got.reqID)
		assert.Equal(t, "203.0.113.5", got.clientIP.String())
	}
}

func TestAuthenticate_SubstitutesSourceForUnspecified(t *testing.T) {
	s, peers, serverKP := authTestServer(t)

	t.Run("v4", func(t *testing.T) {
		pkt := sealedReq(t, peers["alice"], serverKP.Public, 1, "0.0.0.0")
		got, ok := s.authenticate(net.ParseIP("198.51.100.9"), pkt)
		require.True(t, ok)
		assert.Equal(t, "198.51.100.9", got.clientIP.String())
	})

	t.Run("v6", func(t *testing.T) {
		pkt := sealedReq(t, peers["bob"], serverKP.Public, 1, "::")
		got, ok := s.authenticate(net.ParseIP("2001:db8::9"), pkt)
		require.True(t, ok)
		assert.Equal(t, "2001:db8::9", got.clientIP.String())
	})
}

func TestAuthenticate_DropsUnknownPeer(t *testing.T) {
	s, _, serverKP := authTestServer(t)

	stranger, err := keys.Generate()
	require.NoError(t, err)
	pkt := sealedReq(t, stranger, serverKP.Public, 1, "203.0.113.5")

	_, ok := s.authenticate(net.ParseIP("198.51.100.9"), pkt)
	assert.False(t, ok)
}

func TestAuthenticate_DropsGarbage(t *testing.T) {
	s, _, _ := authTestServer(t)

	t.Run("noise", func(t *testing.T) {
		_, ok := s.authenticate(net.ParseIP("198.51.100.9"), []byte("not a packet at all"))
		assert.False(t, ok)
	})

	t.Run("short datagram", func(t *testing.T) {
		_, ok := s.authenticate(net.ParseIP("198.51.100.9"), []byte{1, 2, 3})
		assert.False(t, ok)
	})
}

func TestAuthenticate_DropsValidSealWithBadBody(t *testing.T) {
	s, peers, serverKP := authTestServer(t)

	sealed, err := packet.Seal([]byte{0xff, 0xfe}, &peers["alice"].Secret, &serverKP.Public)
	require.NoError(t, err)

	_, ok := s.authenticate(net.ParseIP("198.51.100.9"), sealed)
	assert.False(t, ok)
}

func TestAuthenticate_NoStateChangeOnAuthFailure(t *testing.T) {
	s, _, serverKP := authTestServer(t)

	stranger, err := keys.Generate()
	require.NoError(t, err)
	pkt := sealedReq(t, stranger, serverKP.Public, 99, "203.0.113.5")
	_, ok := s.authenticate(net.ParseIP("198.51.100.9"), pkt)
	require.False(t, ok)

	assert.Equal(t, uint64(0), s.state.CurFor("alice"))
	assert.Equal(t, 0, s.leases.len())
}
