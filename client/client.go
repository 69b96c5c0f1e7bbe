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

// Package client sends a single access request and waits for the
// server's verdict.
package client

import (
	"errors"
	"fmt"
	"net"
	"time"

	"github.com/accessd-project/accessd/keys"
	"github.com/accessd-project/accessd/packet"
	"github.com/accessd-project/accessd/state"
	"github.com/accessd-project/accessd/wire"
)

// DefaultTimeout is how long the client waits for a reply.
const DefaultTimeout = 5 * time.Second

var (
	// ErrNoIPv4Addr indicates the remote resolved to no IPv4 address.
	ErrNoIPv4Addr = errors.New("no IPv4 address found")
	// ErrTimeout indicates no reply arrived within the wait window.
	ErrTimeout = errors.New("no response")
)

// Client holds the key material and replay state for one requesting
// party.
type Client struct {
	state   *state.ClientState
	keyData *keys.ClientKeyData
	Timeout time.Duration
}

// New loads the client's state and key files.
func New(stateFile, keyDataFile string) (*Client, error) {
	st, err := state.ReadClientState(stateFile)
	if err != nil {
		return nil, err
	}
	kd, err := keys.ReadClientKeyData(keyDataFile)
	if err != nil {
		return nil, err
	}
	return &Client{state: st, keyData: kd, Timeout: DefaultTimeout}, nil
}

// ResolveRemote resolves host to the daemon's UDP address. With
// preferIPv4, the first IPv4 address wins; otherwise the first address of
// any family is used.
func ResolveRemote(host string, preferIPv4 bool) (*net.UDPAddr, error) {
	ips, err := net.LookupIP(host)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve %s: %w", host, err)
	}
	if preferIPv4 {
		for _, ip := range ips {
			if ip.To4() != nil {
				return &net.UDPAddr{IP: ip, Port: wire.ReqPort}, nil
			}
		}
		return nil, ErrNoIPv4Addr
	}
	return &net.UDPAddr{IP: ips[0], Port: wire.ReqPort}, nil
}

// ParseClientAddr parses the address access is requested for. The
// unspecified address asks the server to use the datagram's source IP.
func ParseClientAddr(s string) (net.IP, error) {
	ip := net.ParseIP(s)
	if ip == nil {
		return nil, fmt.Errorf("invalid client address %q", s)
	}
	return ip, nil
}

// Request increments and persists the request ID, sends one sealed
// request for clientAddr to remote, and waits for the reply.
//
// The counter is persisted before the datagram leaves: losing an ID to a
// dropped reply is harmless, reusing one is not.
func (c *Client) Request(remote *net.UDPAddr, clientAddr net.IP) (*wire.SessResp, error) {
	c.state.CurReqID++
	if err := c.state.Write(); err != nil {
		return nil, err
	}

	req := &wire.SessReq{
		ReqID:   c.state.CurReqID,
		ReqData: wire.TimedAccess(clientAddr),
	}
	body, err := req.Marshal()
	if err != nil {
		return nil, err
	}
	sealed, err := packet.Seal(body, &c.keyData.Secret, &c.keyData.PeerPublic)
	if err != nil {
		return nil, err
	}

	conn, err := net.DialUDP("udp", nil, remote)
	if err != nil {
		return nil, fmt.Errorf("failed to open socket: %w", err)
	}
	defer conn.Close()

	if _, err := conn.Write(sealed); err != nil {
		return nil, fmt.Errorf("failed to send request: %w", err)
	}

	if err := conn.SetReadDeadline(time.Now().Add(c.Timeout)); err != nil {
		return nil, err
	}
	buf := make([]byte, 2048)
	n, err := conn.Read(buf)
	if err != nil {
		if nerr, ok := err.(net.Error); ok && nerr.Timeout() {
			return nil, fmt.Errorf("%w from %s", ErrTimeout, remote)
		}
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	plain, err := packet.Open(buf[:n], &c.keyData.Secret, &c.keyData.PeerPublic)
	if err != nil {
		return nil, fmt.Errorf("decrypt failed: %w", err)
	}
	return wire.UnmarshalSessResp(plain)
}
