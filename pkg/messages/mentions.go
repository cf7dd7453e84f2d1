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

package messages

import (
	"regexp"
	"strings"

	"github.com/teradata-labs/weft/pkg/types"
)

// mentionRe matches @name and @name:project tokens. The charset matches
// agent names; the optional suffix is the project scope.
var mentionRe = regexp.MustCompile(`@([A-Za-z0-9_-]+(?::[A-Za-z0-9_-]+)?)`)

// extractMentionTokens returns the mention tokens in content, without
// the @ prefix, first occurrence order, deduplicated.
func extractMentionTokens(content string) []string {
	raw := mentionRe.FindAllStringSubmatch(content, -1)
	if len(raw) == 0 {
		return nil
	}
	seen := make(map[string]bool, len(raw))
	var out []string
	for _, m := range raw {
		if !seen[m[1]] {
			seen[m[1]] = true
			out = append(out, m[1])
		}
	}
	return out
}

// parseRef turns "name" or "name:project" into an agent identity. A
// missing scope means global.
func parseRef(token string) types.AgentRef {
	name, scope, ok := strings.Cut(token, ":")
	if !ok || scope == "" {
		return types.AgentRef{Name: name, Scope: types.ScopeGlobal}
	}
	return types.AgentRef{Name: name, Scope: scope}
}
