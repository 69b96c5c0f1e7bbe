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

// Package packet frames datagrams as nonce ‖ sealed-bytes using NaCl box
// authenticated public-key encryption between the two parties' static
// keys. Nonces are random per send; replay defense lives at the
// application layer, not here.
package packet

import (
	"crypto/rand"
	"errors"
	"fmt"

	"golang.org/x/crypto/nacl/box"

	"github.com/accessd-project/accessd/keys"
)

// NonceSize is the byte length of the nonce prefix.
const NonceSize = 24

var (
	// ErrInvalidNonce indicates a datagram too short to carry a nonce.
	ErrInvalidNonce = fmt.Errorf("invalid nonce data, make sure data is at least %d bytes", NonceSize)
	// ErrInvalidCiphertext indicates a ciphertext that failed authentication.
	ErrInvalidCiphertext = errors.New("ciphertext failed verification")
)

// Seal encrypts msg from secret to peerPublic under a fresh random nonce
// and returns the complete datagram payload.
func Seal(msg []byte, secret, peerPublic *keys.Key) ([]byte, error) {
	var nonce [NonceSize]byte
	if _, err := rand.Read(nonce[:]); err != nil {
		return nil, fmt.Errorf("failed to generate nonce: %w", err)
	}
	out := make([]byte, NonceSize, NonceSize+len(msg)+box.Overhead)
	copy(out, nonce[:])
	return box.Seal(out, msg, &nonce, peerPublic.Bytes(), secret.Bytes()), nil
}

// Open authenticates and decrypts a datagram produced by Seal on the
// other side.
func Open(pkt []byte, secret, peerPublic *keys.Key) ([]byte, error) {
	if len(pkt) < NonceSize {
		return nil, ErrInvalidNonce
	}
	var nonce [NonceSize]byte
	copy(nonce[:], pkt[:NonceSize])
	plain, ok := box.Open(nil, pkt[NonceSize:], &nonce, peerPublic.Bytes(), secret.Bytes())
	if !ok {
		return nil, ErrInvalidCiphertext
	}
	return plain, nil
}
