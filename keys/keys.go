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

// Package keys loads and persists the long-term key material used by the
// access protocol: curve25519 keypairs for NaCl box authenticated
// encryption, stored on disk as YAML with uppercase hex values.
package keys

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"os"
	"strings"

	"golang.org/x/crypto/nacl/box"
	"gopkg.in/yaml.v3"
)

// KeySize is the byte length of both public and secret box keys.
const KeySize = 32

var (
	// ErrKeyLength indicates a hex value that does not decode to KeySize bytes.
	ErrKeyLength = fmt.Errorf("key must be %d bytes", KeySize)
)

// Key is a curve25519 public or secret key. It serializes to YAML as
// uppercase base16 with no separators.
type Key [KeySize]byte

// MarshalYAML implements yaml.Marshaler.
func (k Key) MarshalYAML() (interface{}, error) {
	return strings.ToUpper(hex.EncodeToString(k[:])), nil
}

// UnmarshalYAML implements yaml.Unmarshaler.
func (k *Key) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return err
	}
	b, err := hex.DecodeString(s)
	if err != nil {
		return fmt.Errorf("failed to decode hex key: %w", err)
	}
	if len(b) != KeySize {
		return ErrKeyLength
	}
	copy(k[:], b)
	return nil
}

// Bytes returns the key as a fixed-size array pointer for use with nacl/box.
func (k *Key) Bytes() *[KeySize]byte {
	return (*[KeySize]byte)(k)
}

// Keypair is a party's long-term box keypair as written by the keygen tool.
type Keypair struct {
	Secret Key `yaml:"secret"`
	Public Key `yaml:"public"`
}

// ClientKeyData is the client-side key file: own secret plus the server's
// public key.
type ClientKeyData struct {
	Secret     Key `yaml:"secret"`
	PeerPublic Key `yaml:"peer_public"`
}

// ServerKeyData is the server-side key file: own secret plus the trusted
// client public keys, keyed by a human-readable peer name.
type ServerKeyData struct {
	Secret         Key            `yaml:"secret"`
	PeerPublicKeys map[string]Key `yaml:"peer_public_keys"`
}

// Generate creates a fresh keypair from a cryptographically secure source.
func Generate() (*Keypair, error) {
	pub, sec, err := box.GenerateKey(rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("failed to generate keypair: %w", err)
	}
	kp := &Keypair{}
	copy(kp.Public[:], pub[:])
	copy(kp.Secret[:], sec[:])
	return kp, nil
}

// WriteFile serializes the keypair to YAML at path with owner-only
// permissions.
func (kp *Keypair) WriteFile(path string) error {
	data, err := yaml.Marshal(kp)
	if err != nil {
		return fmt.Errorf("failed to serialize keypair: %w", err)
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	return nil
}

// ReadClientKeyData loads the client key file. The result is immutable
// after load.
func ReadClientKeyData(path string) (*ClientKeyData, error) {
	kd := &ClientKeyData{}
	if err := readYAML(path, kd); err != nil {
		return nil, err
	}
	return kd, nil
}

// ReadServerKeyData loads the server key file. The result is immutable
// after load.
func ReadServerKeyData(path string) (*ServerKeyData, error) {
	kd := &ServerKeyData{}
	if err := readYAML(path, kd); err != nil {
		return nil, err
	}
	if len(kd.PeerPublicKeys) == 0 {
		return nil, fmt.Errorf("%s: no peer public keys configured", path)
	}
	return kd, nil
}

func readYAML(path string, v interface{}) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read key data file: %w", err)
	}
	if err := yaml.Unmarshal(data, v); err != nil {
		return fmt.Errorf("failed to parse %s: %w", path, err)
	}
	return nil
}
