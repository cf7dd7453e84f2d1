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
	"testing"

	"github.com/stretchr/testify/assert"

	weftconfig "github.com/teradata-labs/weft/pkg/config"
	"github.com/teradata-labs/weft/pkg/types"
)

func TestParseAgentArg(t *testing.T) {
	tests := []struct {
		input    string
		expected types.AgentRef
	}{
		{"alice", types.AgentRef{Name: "alice", Scope: types.ScopeGlobal}},
		{"reviewer:prj_9f2a", types.AgentRef{Name: "reviewer", Scope: "prj_9f2a"}},
		{"", types.AgentRef{Name: "", Scope: types.ScopeGlobal}},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			assert.Equal(t, tt.expected, parseAgentArg(tt.input))
		})
	}
}

func TestShortDigest(t *testing.T) {
	assert.Equal(t, "a1b2c3d4", shortDigest("a1b2c3d4e5f6"))
	assert.Equal(t, "a1b2", shortDigest("a1b2"))
}

func TestMaskSecret(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{"empty", "", "***"},
		{"short secret fully masked", "abc123", "***"},
		{"boundary at eight chars", "12345678", "***"},
		{"long secret shows edges", "sk-abcdef123456", "sk-a...3456"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, maskSecret(tt.input))
		})
	}
}

func TestSeedNames(t *testing.T) {
	seeds := []weftconfig.ChannelSeed{
		{Name: "general"},
		{Name: "announcements"},
	}
	assert.Equal(t, "general, announcements", seedNames(seeds))
	assert.Equal(t, "(none)", seedNames(nil))
}

func TestOrNone(t *testing.T) {
	assert.Equal(t, "(none)", orNone(""))
	assert.Equal(t, "value", orNone("value"))
}
