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

// Package server implements the access daemon: authenticated request
// processing, the lease state machine, hook execution and the UDP
// service loop.
package server

import (
	"context"
	"fmt"
	"net"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/accessd-project/accessd/config"
	"github.com/accessd-project/accessd/health"
	"github.com/accessd-project/accessd/internal/logger"
	"github.com/accessd-project/accessd/keys"
	"github.com/accessd-project/accessd/packet"
	"github.com/accessd-project/accessd/state"
)

// maxDatagram bounds inbound reads; requests are a few hundred bytes at
// most.
const maxDatagram = 2048

// Server owns all lease and replay state. The mutex serializes the
// decision path and every timer/hook callback, preserving the exclusive
// state access the protocol requires.
type Server struct {
	cfg      *config.Config
	log      logger.Logger
	keyData  *keys.ServerKeyData
	hook     HookRunner
	duration time.Duration

	mu     sync.Mutex
	state  *state.ServerState
	leases *leaseTable

	conn *net.UDPConn
	ctx  context.Context

	// now is replaceable in tests.
	now func() time.Time
}

// New loads key data and replay state and assembles a server. Load
// failures here are fatal to startup.
func New(cfg *config.Config, log logger.Logger) (*Server, error) {
	kd, err := keys.ReadServerKeyData(cfg.Paths.KeyDataFile)
	if err != nil {
		return nil, err
	}
	st, err := state.ReadServerState(cfg.Paths.StateFile)
	if err != nil {
		return nil, err
	}

	return &Server{
		cfg:      cfg,
		log:      log,
		keyData:  kd,
		hook:     &ExecHook{Command: cfg.Hook},
		duration: cfg.Session.Duration(),
		state:    st,
		leases:   newLeaseTable(),
		ctx:      context.Background(),
		now:      time.Now,
	}, nil
}

// SetHook replaces the hook runner. Must be called before Run.
func (s *Server) SetHook(h HookRunner) {
	s.hook = h
}

// LeaseCount reports the current lease table size.
func (s *Server) LeaseCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.leases.len()
}

func (s *Server) durationSecs() uint64 {
	return uint64(s.duration / time.Second)
}

// Run binds the request port and serves until ctx is cancelled. The
// optional health listener runs in the same group.
func (s *Server) Run(ctx context.Context) error {
	s.ctx = ctx

	laddr := &net.UDPAddr{IP: net.IPv4zero, Port: s.cfg.Network.Port}
	conn, err := net.ListenUDP("udp", laddr)
	if err != nil {
		return fmt.Errorf("failed to bind %s: %w", laddr, err)
	}
	s.mu.Lock()
	s.conn = conn
	s.mu.Unlock()
	s.log.Info("listening",
		logger.String("addr", laddr.String()),
		logger.Duration("duration", s.duration),
		logger.Int("peers", len(s.keyData.PeerPublicKeys)))

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		<-ctx.Done()
		conn.Close()
		return nil
	})

	g.Go(func() error {
		return s.serve(ctx)
	})

	if s.cfg.Health != nil && s.cfg.Health.Enabled {
		hs := health.NewServer(health.NewChecker(s.cfg.Paths.StateFile, s.LeaseCount), s.log, s.cfg.Health.Port)
		g.Go(func() error {
			return hs.Run(ctx)
		})
	}

	if err := g.Wait(); err != nil && ctx.Err() == nil {
		return err
	}
	return nil
}

// serve is the datagram loop: decode, decide, reply. Per-datagram errors
// are logged and the loop continues.
func (s *Server) serve(ctx context.Context) error {
	buf := make([]byte, maxDatagram)
	for {
		n, src, err := s.conn.ReadFromUDP(buf)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("read failed: %w", err)
		}

		pkt := make([]byte, n)
		copy(pkt, buf[:n])
		s.handleDatagram(src, pkt)
	}
}

// handleDatagram drives one request through authenticate → state machine
// → sealed reply.
func (s *Server) handleDatagram(src *net.UDPAddr, pkt []byte) {
	req, ok := s.authenticate(src.IP, pkt)
	if !ok {
		return
	}

	resp := s.handleIncoming(req)

	peerPublic, ok := s.keyData.PeerPublicKeys[req.peer]
	if !ok {
		s.log.Error("no public key found", logger.String("peer", req.peer))
		return
	}

	body, err := resp.Marshal()
	if err != nil {
		s.log.Error("response encoding failed", logger.Error(err))
		return
	}
	sealed, err := packet.Seal(body, &s.keyData.Secret, &peerPublic)
	if err != nil {
		s.log.Error("response sealing failed", logger.Error(err))
		return
	}
	if _, err := s.conn.WriteToUDP(sealed, src); err != nil {
		s.log.Error("response send failed",
			logger.String("dst", src.String()),
			logger.Error(err))
	}
}
