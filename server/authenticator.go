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

	"github.com/accessd-project/accessd/internal/logger"
	"github.com/accessd-project/accessd/internal/metrics"
	"github.com/accessd-project/accessd/packet"
	"github.com/accessd-project/accessd/wire"
)

// authedReq is a request that passed packet authentication and body
// decoding, attributed to a trusted peer.
type authedReq struct {
	peer     string
	reqID    uint64
	clientIP net.IP
}

// authenticate identifies the originating peer by trial decryption against
// each trusted public key, decodes the request body, and substitutes the
// datagram source IP when the requested address is unspecified.
//
// A datagram no key opens is indistinguishable from noise and is dropped
// without a reply. Iteration over peers is O(peers); the trusted set is
// assumed modest.
func (s *Server) authenticate(src net.IP, buf []byte) (*authedReq, bool) {
	for name, public := range s.keyData.PeerPublicKeys {
		pub := public
		plain, err := packet.Open(buf, &s.keyData.Secret, &pub)
		if err != nil {
			continue
		}

		req, err := wire.UnmarshalSessReq(plain)
		if err != nil {
			s.log.Warn("invalid message",
				logger.String("peer", name),
				logger.String("src", src.String()),
				logger.Error(err))
			return nil, false
		}

		clientIP := req.ReqData.IP
		if clientIP.IsUnspecified() {
			clientIP = src
		}
		return &authedReq{peer: name, reqID: req.ReqID, clientIP: clientIP}, true
	}

	metrics.DroppedDatagrams.Inc()
	s.log.Debug("dropping datagram from unknown peer", logger.String("src", src.String()))
	return nil, false
}
