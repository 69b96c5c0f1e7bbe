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

	"github.com/google/uuid"
)

// sessionInterval is one active lease. A lease is keyed by client IP, not
// peer name: one peer may hold leases for several IPs, and a second peer
// asking for an already-leased IP sees the existing entry.
type sessionInterval struct {
	// id correlates every log line of a lease's lifecycle.
	id string

	sessionStart time.Time
	timeoutStart time.Time
	renewOK      bool
	renewals     uint8

	// provisioning marks a row reserved at decision time whose grant hook
	// has not finished yet. It blocks a concurrent Grant for the same IP
	// from double-invoking the hook.
	provisioning bool
}

func newSessionInterval(now time.Time) *sessionInterval {
	return &sessionInterval{
		id:           uuid.NewString(),
		sessionStart: now,
		timeoutStart: now,
		renewOK:      true,
		renewals:     0,
	}
}

// leaseTable maps client-IP strings to their lease. It is not safe for
// concurrent use; the server's mutex serializes all access, playing the
// role the single-threaded reactor played in the protocol's reference
// deployment.
type leaseTable struct {
	leases map[string]*sessionInterval
}

func newLeaseTable() *leaseTable {
	return &leaseTable{leases: make(map[string]*sessionInterval)}
}

func (t *leaseTable) get(addr string) (*sessionInterval, bool) {
	si, ok := t.leases[addr]
	return si, ok
}

func (t *leaseTable) insert(addr string, si *sessionInterval) {
	t.leases[addr] = si
}

func (t *leaseTable) remove(addr string) {
	delete(t.leases, addr)
}

func (t *leaseTable) len() int {
	return len(t.leases)
}
