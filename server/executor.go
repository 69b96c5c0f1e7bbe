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
	"os/exec"
	"strings"
	"time"

	"github.com/accessd-project/accessd/internal/logger"
	"github.com/accessd-project/accessd/internal/metrics"
)

// Hook actions.
const (
	HookGrant  = "grant"
	HookRevoke = "revoke"
)

// HookRunner executes the operator-supplied firewall hook. It is a black
// box invoked with two positional arguments: the action and the client
// address.
type HookRunner interface {
	Run(ctx context.Context, action, addr string) ([]byte, error)
}

// ExecHook runs the hook as an external command, capturing combined
// output.
type ExecHook struct {
	Command string
}

// Run implements HookRunner.
func (h *ExecHook) Run(ctx context.Context, action, addr string) ([]byte, error) {
	return exec.CommandContext(ctx, h.Command, action, addr).CombinedOutput()
}

// session carries one request's identity through the executor's
// asynchronous lifecycle: hook execution, the duration timer, and the
// timeout decision.
type session struct {
	id       string
	peer     string
	reqID    uint64
	addr     string
	duration time.Duration
}

func (s *Server) newSession(req *authedReq) *session {
	return &session{
		peer:     req.peer,
		reqID:    req.reqID,
		addr:     req.clientIP.String(),
		duration: s.duration,
	}
}

// timeoutAction is the arbitration result when a lease timer fires.
type timeoutAction int

const (
	timeoutRevoke timeoutAction = iota
	timeoutRenewed
	timeoutUnknown
)

// startGrant runs the grant hook asynchronously, confirms the reserved
// lease row on success, and arms the revocation timer. Called with the
// server mutex held; all real work happens in the spawned goroutine.
func (s *Server) startGrant(sess *session) {
	log := s.sessLog(sess)
	log.Info("new session")

	go func() {
		out, err := s.runHook(HookGrant, sess.addr)
		if err != nil {
			// The firewall was never opened; clear the reservation so the
			// client can retry.
			log.Error("grant hook failed", logger.Error(err))
			s.mu.Lock()
			s.leases.remove(sess.addr)
			metrics.ActiveLeases.Set(float64(s.leases.len()))
			s.mu.Unlock()
			return
		}
		logHookOutput(log, HookGrant, out)

		now := s.now()
		s.mu.Lock()
		if si, ok := s.leases.get(sess.addr); ok {
			si.provisioning = false
			si.sessionStart = now
			si.timeoutStart = now
			si.renewOK = true
		}
		s.mu.Unlock()

		s.awaitTimeout(sess, log)
	}()
}

// startRenew arms another duration timer; the existing firewall rule is
// left in place, so no hook runs. Called with the server mutex held.
func (s *Server) startRenew(sess *session) {
	log := s.sessLog(sess)
	log.Info("renew session")

	go func() {
		s.awaitTimeout(sess, log)
	}()
}

// awaitTimeout sleeps for the session duration and then arbitrates
// between revocation and a renewal that happened during the window.
func (s *Server) awaitTimeout(sess *session, log logger.Logger) {
	timer := time.NewTimer(sess.duration)
	defer timer.Stop()
	select {
	case <-timer.C:
	case <-s.ctx.Done():
		return
	}
	s.manageSession(sess, log)
}

func (s *Server) manageSession(sess *session, log logger.Logger) {
	switch s.arbitrateTimeout(sess) {
	case timeoutUnknown:
		log.Warn("timer fired for unknown session")
	case timeoutRenewed:
		// A renewal reset timeout_start during this window; its own timer
		// will decide.
	case timeoutRevoke:
		out, err := s.runHook(HookRevoke, sess.addr)
		if err != nil {
			log.Error("revoke hook failed", logger.Error(err))
		} else {
			logHookOutput(log, HookRevoke, out)
		}

		// The row goes away even if the hook failed; keeping it would
		// leak lease state behind a broken hook.
		s.mu.Lock()
		si, ok := s.leases.get(sess.addr)
		if ok {
			log.Info("removing session",
				logger.Duration("lifetime", s.now().Sub(si.sessionStart)))
			s.leases.remove(sess.addr)
			metrics.ActiveLeases.Set(float64(s.leases.len()))
		}
		s.mu.Unlock()
	}
}

// arbitrateTimeout decides what an expired timer means for the lease, and
// re-arms the renew permission when a renewal window lapsed.
func (s *Server) arbitrateTimeout(sess *session) timeoutAction {
	s.mu.Lock()
	defer s.mu.Unlock()

	si, ok := s.leases.get(sess.addr)
	if !ok {
		return timeoutUnknown
	}
	if s.now().Sub(si.timeoutStart) >= sess.duration {
		return timeoutRevoke
	}
	si.renewOK = true
	return timeoutRenewed
}

func (s *Server) runHook(action, addr string) ([]byte, error) {
	start := time.Now()
	out, err := s.hook.Run(s.ctx, action, addr)
	metrics.ObserveHook(action, err, time.Since(start))
	return out, err
}

func (s *Server) sessLog(sess *session) logger.Logger {
	return s.log.WithFields(
		logger.String("session", sess.id),
		logger.String("peer", sess.peer),
		logger.String("addr", sess.addr),
		logger.Uint64("req_id", sess.reqID))
}

func logHookOutput(log logger.Logger, action string, out []byte) {
	if text := strings.TrimSpace(string(out)); text != "" {
		log.Info(action+" hook output", logger.String("output", text))
	}
}
