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

// Package wire defines the request and response message bodies and their
// CBOR encoding. Request data and response actions are closed sum types on
// the wire: an explicit tag drives the decoder, and unknown tags are
// decode errors, never ignored.
package wire

import (
	"errors"
	"fmt"
	"net"

	"github.com/fxamacker/cbor/v2"
)

// ReqPort is the UDP port the access daemon listens on.
const ReqPort = 7387

// ErrInvalidCodec indicates a message body that could not be decoded.
var ErrInvalidCodec = errors.New("invalid message encoding")

// Request data kinds.
const (
	// KindTimedAccess requests time-bounded access for an IP.
	KindTimedAccess uint8 = 1
)

// Address family tags used inside TimedAccess.
const (
	afInet  uint8 = 1
	afInet6 uint8 = 2
)

// Action is the server's decision on a session request.
type Action uint8

const (
	Grant Action = iota
	Renew
	DenyRenewTooSoon
	DenyMaxRenewalsReached
	DenyRenewAlreadyInProgress
	DenyDuplicateRequest

	actionCount
)

// String returns the operator-facing description of the action.
func (a Action) String() string {
	switch a {
	case Grant:
		return "session granted"
	case Renew:
		return "session renewed"
	case DenyRenewTooSoon:
		return "request received before renewal window"
	case DenyMaxRenewalsReached:
		return "max session renewals reached"
	case DenyRenewAlreadyInProgress:
		return "renewal already requested"
	case DenyDuplicateRequest:
		return "duplicate or replayed request"
	default:
		return fmt.Sprintf("unknown action %d", uint8(a))
	}
}

// ReqData is the tagged request payload. Kind is currently always
// KindTimedAccess; IP may be unspecified (0.0.0.0 / ::), meaning the
// server should use the datagram source address.
type ReqData struct {
	Kind uint8
	IP   net.IP
}

// TimedAccess builds the request payload for ip.
func TimedAccess(ip net.IP) ReqData {
	return ReqData{Kind: KindTimedAccess, IP: ip}
}

// SessReq is a session request as sent by the client.
type SessReq struct {
	ReqID   uint64
	ReqData ReqData
}

// SessResp is the server's reply. ReqID echoes the request. Duration is in
// seconds: the lease length on Grant/Renew, the seconds until the renewal
// window opens on DenyRenewTooSoon, zero otherwise.
type SessResp struct {
	Action            Action
	ReqID             uint64
	Duration          uint64
	RenewalsRemaining uint8
}

// String renders the response the way the client reports it.
func (r *SessResp) String() string {
	switch r.Action {
	case Grant:
		return fmt.Sprintf("%s for %d seconds. %d renewals allowed.",
			r.Action, r.Duration, r.RenewalsRemaining)
	case Renew:
		return fmt.Sprintf("%s for %d seconds. %d renewals remaining.",
			r.Action, r.Duration, r.RenewalsRemaining)
	case DenyRenewTooSoon:
		return fmt.Sprintf("%s, renewal ok in %d seconds.", r.Action, r.Duration)
	default:
		return r.Action.String()
	}
}

// Wire shapes. The address is a (family, bytes) pair so the decoder can
// reject malformed lengths instead of guessing.

type reqDataWire struct {
	Kind   uint8  `cbor:"kind"`
	Family uint8  `cbor:"family"`
	Addr   []byte `cbor:"addr"`
}

type sessReqWire struct {
	ReqID   uint64      `cbor:"req_id"`
	ReqData reqDataWire `cbor:"req_data"`
}

type sessRespWire struct {
	Action            uint8  `cbor:"action"`
	ReqID             uint64 `cbor:"req_id"`
	Duration          uint64 `cbor:"duration"`
	RenewalsRemaining uint8  `cbor:"renewals_remaining"`
}

// Marshal encodes the request as CBOR.
func (r *SessReq) Marshal() ([]byte, error) {
	rd, err := encodeReqData(r.ReqData)
	if err != nil {
		return nil, err
	}
	data, err := cbor.Marshal(sessReqWire{ReqID: r.ReqID, ReqData: rd})
	if err != nil {
		return nil, fmt.Errorf("failed to encode request: %w", err)
	}
	return data, nil
}

// UnmarshalSessReq decodes a request body.
func UnmarshalSessReq(data []byte) (*SessReq, error) {
	var w sessReqWire
	if err := cbor.Unmarshal(data, &w); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidCodec, err)
	}
	rd, err := decodeReqData(w.ReqData)
	if err != nil {
		return nil, err
	}
	return &SessReq{ReqID: w.ReqID, ReqData: rd}, nil
}

// Marshal encodes the response as CBOR.
func (r *SessResp) Marshal() ([]byte, error) {
	data, err := cbor.Marshal(sessRespWire{
		Action:            uint8(r.Action),
		ReqID:             r.ReqID,
		Duration:          r.Duration,
		RenewalsRemaining: r.RenewalsRemaining,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to encode response: %w", err)
	}
	return data, nil
}

// UnmarshalSessResp decodes a response body.
func UnmarshalSessResp(data []byte) (*SessResp, error) {
	var w sessRespWire
	if err := cbor.Unmarshal(data, &w); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidCodec, err)
	}
	if w.Action >= uint8(actionCount) {
		return nil, fmt.Errorf("%w: action tag %d", ErrInvalidCodec, w.Action)
	}
	return &SessResp{
		Action:            Action(w.Action),
		ReqID:             w.ReqID,
		Duration:          w.Duration,
		RenewalsRemaining: w.RenewalsRemaining,
	}, nil
}

func encodeReqData(rd ReqData) (reqDataWire, error) {
	if rd.Kind != KindTimedAccess {
		return reqDataWire{}, fmt.Errorf("%w: request kind %d", ErrInvalidCodec, rd.Kind)
	}
	if v4 := rd.IP.To4(); v4 != nil {
		return reqDataWire{Kind: rd.Kind, Family: afInet, Addr: v4}, nil
	}
	if v6 := rd.IP.To16(); v6 != nil {
		return reqDataWire{Kind: rd.Kind, Family: afInet6, Addr: v6}, nil
	}
	return reqDataWire{}, fmt.Errorf("%w: unencodable address", ErrInvalidCodec)
}

func decodeReqData(w reqDataWire) (ReqData, error) {
	if w.Kind != KindTimedAccess {
		return ReqData{}, fmt.Errorf("%w: request kind %d", ErrInvalidCodec, w.Kind)
	}
	switch w.Family {
	case afInet:
		if len(w.Addr) != net.IPv4len {
			return ReqData{}, fmt.Errorf("%w: %d-byte v4 address", ErrInvalidCodec, len(w.Addr))
		}
	case afInet6:
		if len(w.Addr) != net.IPv6len {
			return ReqData{}, fmt.Errorf("%w: %d-byte v6 address", ErrInvalidCodec, len(w.Addr))
		}
	default:
		return ReqData{}, fmt.Errorf("%w: address family %d", ErrInvalidCodec, w.Family)
	}
	ip := make(net.IP, len(w.Addr))
	copy(ip, w.Addr)
	return ReqData{Kind: w.Kind, IP: ip}, nil
}
