// Copyright 2026 Teradata
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//	http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.
package main

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teradata-labs/weft/pkg/types"
)

func TestHookPayload_Decode(t *testing.T) {
	raw := `{
		"session_id": "sess-abc123",
		"cwd": "/home/dev/projects/api",
		"hook_event_name": "SessionStart",
		"transcript_path": "/home/dev/.claude/transcripts/sess-abc123.jsonl"
	}`

	var payload hookPayload
	err := json.NewDecoder(strings.NewReader(raw)).Decode(&payload)
	require.NoError(t, err)

	assert.Equal(t, "sess-abc123", payload.SessionID)
	assert.Equal(t, "/home/dev/projects/api", payload.CWD)
	assert.Equal(t, "SessionStart", payload.HookEventName)
	assert.Equal(t, "/home/dev/.claude/transcripts/sess-abc123.jsonl", payload.TranscriptPath)
}

func TestHookPayload_DecodeIgnoresUnknownFields(t *testing.T) {
	// Hosts add fields over time; the hook must not choke on them.
	raw := `{"session_id": "s1", "cwd": "/tmp", "source": "startup", "model": "whatever"}`

	var payload hookPayload
	err := json.NewDecoder(strings.NewReader(raw)).Decode(&payload)
	require.NoError(t, err)
	assert.Equal(t, "s1", payload.SessionID)
}

func TestHookStatus(t *testing.T) {
	tests := []struct {
		name     string
		session  *types.Session
		seeded   int
		expected string
	}{
		{
			name:     "global scope",
			session:  &types.Session{ID: "sess-abc123def456"},
			seeded:   0,
			expected: "weft: session sess-abc registered (global scope)",
		},
		{
			name:     "project by name",
			session:  &types.Session{ID: "s1", ProjectID: "prj_9f2a", ProjectName: "api"},
			seeded:   0,
			expected: "weft: session s1 registered (project api)",
		},
		{
			name:     "project without a name falls back to the id",
			session:  &types.Session{ID: "s1", ProjectID: "prj_9f2a"},
			seeded:   0,
			expected: "weft: session s1 registered (project prj_9f2a)",
		},
		{
			name:     "seeded channels mentioned",
			session:  &types.Session{ID: "s1", ProjectID: "prj_9f2a", ProjectName: "api"},
			seeded:   3,
			expected: "weft: session s1 registered (project api, 3 default channels)",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, hookStatus(tt.session, tt.seeded))
		})
	}
}

func TestShortID(t *testing.T) {
	assert.Equal(t, "sess-abc", shortID("sess-abc123def456"))
	assert.Equal(t, "short", shortID("short"))
	assert.Equal(t, "", shortID(""))
}
