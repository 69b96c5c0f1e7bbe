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
	"time"

	"github.com/accessd-project/accessd/internal/logger"
	"github.com/accessd-project/accessd/internal/metrics"
	"github.com/accessd-project/accessd/wire"
)

// MaxRenewals is the renewal quota per lease.
const MaxRenewals uint8 = 4

// renewOKFraction is how far into the lease the renewal window opens.
const renewOKFraction = 0.75

// handleIncoming runs the session state machine for an authenticated
// request and returns the response. The whole decision (replay check,
// state persistence, lease dispatch and row reservation) happens under
// the server mutex, so a rejected replay never touches lease state and a
// concurrent request for the same IP sees the reserved row.
func (s *Server) handleIncoming(req *authedReq) *wire.SessResp {
	s.mu.Lock()
	defer s.mu.Unlock()

	cur := s.state.CurFor(req.peer)
	if cur >= req.reqID {
		s.log.Info("duplicate request",
			logger.String("peer", req.peer),
			logger.Uint64("req_id", req.reqID),
			logger.Uint64("cur_req_id", cur))
		metrics.RequestsTotal.WithLabelValues("deny_duplicate").Inc()
		return &wire.SessResp{Action: wire.DenyDuplicateRequest, ReqID: req.reqID}
	}

	// Persist before any side effect propagates: a concurrently arriving
	// older req_id must lose even if this request's hook is still running.
	s.state.Accept(req.peer, req.reqID)
	if err := s.state.Write(); err != nil {
		metrics.StateWriteFailures.Inc()
		s.log.Error("state file write failed", logger.Error(err))
	}

	addr := req.clientIP.String()
	si, ok := s.leases.get(addr)
	if !ok {
		sess := s.newSession(req)
		row := newSessionInterval(s.now())
		row.provisioning = true
		sess.id = row.id
		s.leases.insert(addr, row)
		metrics.ActiveLeases.Set(float64(s.leases.len()))

		s.startGrant(sess)
		metrics.RequestsTotal.WithLabelValues("grant").Inc()
		return &wire.SessResp{
			Action:            wire.Grant,
			ReqID:             req.reqID,
			Duration:          s.durationSecs(),
			RenewalsRemaining: MaxRenewals,
		}
	}

	elapsed := uint64(s.now().Sub(si.timeoutStart) / time.Second)
	renewOKAfter := uint64(float64(s.durationSecs()) * renewOKFraction)
	switch {
	case elapsed < renewOKAfter:
		metrics.RequestsTotal.WithLabelValues("deny_renew_too_soon").Inc()
		return &wire.SessResp{
			Action:   wire.DenyRenewTooSoon,
			ReqID:    req.reqID,
			Duration: renewOKAfter - elapsed,
		}
	case si.renewals >= MaxRenewals:
		metrics.RequestsTotal.WithLabelValues("deny_max_renewals").Inc()
		return &wire.SessResp{Action: wire.DenyMaxRenewalsReached, ReqID: req.reqID}
	case !si.renewOK:
		metrics.RequestsTotal.WithLabelValues("deny_renew_in_progress").Inc()
		return &wire.SessResp{Action: wire.DenyRenewAlreadyInProgress, ReqID: req.reqID}
	default:
		si.timeoutStart = s.now()
		si.renewOK = false
		si.renewals++

		sess := s.newSession(req)
		sess.id = si.id
		s.startRenew(sess)
		metrics.RequestsTotal.WithLabelValues("renew").Inc()
		return &wire.SessResp{
			Action:            wire.Renew,
			ReqID:             req.reqID,
			Duration:          s.durationSecs(),
			RenewalsRemaining: MaxRenewals - si.renewals,
		}
	}
}
