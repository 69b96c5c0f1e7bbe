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

package logger

import (
	"bytes"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func parseLine(t *testing.T, buf *bytes.Buffer) map[string]interface{} {
	t.Helper()
	var entry map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	return entry
}

func TestLogger_JSONOutput(t *testing.T) {
	var buf bytes.Buffer
	log := NewLogger(&buf, InfoLevel)

	log.Info("session granted",
		String("peer", "alice"),
		Uint64("req_id", 7),
		Duration("duration", 900*time.Second))

	entry := parseLine(t, &buf)
	assert.Equal(t, "INFO", entry["level"])
	assert.Equal(t, "session granted", entry["message"])
	assert.Equal(t, "alice", entry["peer"])
	assert.Equal(t, float64(7), entry["req_id"])
	assert.Equal(t, "15m0s", entry["duration"])
	assert.NotEmpty(t, entry["timestamp"])
}

func TestLogger_LevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	log := NewLogger(&buf, WarnLevel)

	log.Debug("hidden")
	log.Info("hidden")
	assert.Zero(t, buf.Len())

	log.Warn("shown")
	assert.NotZero(t, buf.Len())
}

func TestLogger_WithFields(t *testing.T) {
	var buf bytes.Buffer
	log := NewLogger(&buf, InfoLevel)

	sessLog := log.WithFields(String("session", "abc"), String("addr", "203.0.113.5"))
	sessLog.Info("renew session", Int("renewals", 2))

	entry := parseLine(t, &buf)
	assert.Equal(t, "abc", entry["session"])
	assert.Equal(t, "203.0.113.5", entry["addr"])
	assert.Equal(t, float64(2), entry["renewals"])
}

func TestLogger_ErrorField(t *testing.T) {
	var buf bytes.Buffer
	log := NewLogger(&buf, ErrorLevel)

	log.Error("hook failed", Error(errors.New("exit status 1")))
	entry := parseLine(t, &buf)
	assert.Equal(t, "exit status 1", entry["error"])

	buf.Reset()
	log.Error("no cause", Error(nil))
	entry = parseLine(t, &buf)
	assert.Nil(t, entry["error"])
}

func TestLogger_MultipleLines(t *testing.T) {
	var buf bytes.Buffer
	log := NewLogger(&buf, InfoLevel)

	log.Info("one")
	log.Info("two")

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 2)
}

func TestParseLevel(t *testing.T) {
	assert.Equal(t, DebugLevel, ParseLevel("debug"))
	assert.Equal(t, WarnLevel, ParseLevel("WARN"))
	assert.Equal(t, InfoLevel, ParseLevel("bogus"))
}

func TestLevel_String(t *testing.T) {
	assert.Equal(t, "DEBUG", DebugLevel.String())
	assert.Equal(t, "FATAL", FatalLevel.String())
	assert.Equal(t, "UNKNOWN", Level(42).String())
}

func TestSetLevel(t *testing.T) {
	log := NewLogger(&bytes.Buffer{}, InfoLevel)
	assert.Equal(t, InfoLevel, log.GetLevel())
	log.SetLevel(DebugLevel)
	assert.Equal(t, DebugLevel, log.GetLevel())
}
