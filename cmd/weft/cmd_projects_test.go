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
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teradata-labs/weft/pkg/types"
)

func TestParseLinkType(t *testing.T) {
	tests := []struct {
		input    string
		expected types.ProjectLinkType
	}{
		{"", types.LinkBidirectional},
		{"bidirectional", types.LinkBidirectional},
		{"a-to-b", types.LinkAToB},
		{"a_to_b", types.LinkAToB},
		{"b-to-a", types.LinkBToA},
		{"b_to_a", types.LinkBToA},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := parseLinkType(tt.input)
			require.NoError(t, err)
			assert.Equal(t, tt.expected, got)
		})
	}
}

func TestParseLinkType_Unknown(t *testing.T) {
	_, err := parseLinkType("sideways")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "sideways")
	assert.Contains(t, err.Error(), "bidirectional")
}

func TestLinkArrow(t *testing.T) {
	assert.Equal(t, "->", linkArrow(types.LinkAToB))
	assert.Equal(t, "<-", linkArrow(types.LinkBToA))
	assert.Equal(t, "<->", linkArrow(types.LinkBidirectional))
}

func TestFormatTimeAgo(t *testing.T) {
	now := time.Now()

	tests := []struct {
		name     string
		input    time.Time
		expected string
	}{
		{"zero time", time.Time{}, "never"},
		{"seconds ago", now.Add(-30 * time.Second), "just now"},
		{"one minute", now.Add(-90 * time.Second), "1 minute ago"},
		{"minutes", now.Add(-5 * time.Minute), "5 minutes ago"},
		{"one hour", now.Add(-1 * time.Hour), "1 hour ago"},
		{"hours", now.Add(-3 * time.Hour), "3 hours ago"},
		{"one day", now.Add(-25 * time.Hour), "1 day ago"},
		{"days", now.Add(-5 * 24 * time.Hour), "5 days ago"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, formatTimeAgo(tt.input))
		})
	}
}
