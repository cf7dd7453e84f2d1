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

package semantic

import (
	"sync"

	"github.com/pkoukk/tiktoken-go"
)

// tokenCounter wraps tiktoken with the cl100k_base encoding. Embedding
// models cap their input, so oversized messages get truncated before
// indexing rather than rejected.
type tokenCounter struct {
	encoder *tiktoken.Tiktoken
	mu      sync.Mutex
}

var (
	sharedCounter *tokenCounter
	counterOnce   sync.Once
)

// getTokenCounter returns the process-wide counter. Loading the
// encoding is expensive, so it happens once.
func getTokenCounter() *tokenCounter {
	counterOnce.Do(func() {
		tkm, err := tiktoken.GetEncoding("cl100k_base")
		if err != nil {
			// Fall back to char-based estimation.
			sharedCounter = &tokenCounter{}
			return
		}
		sharedCounter = &tokenCounter{encoder: tkm}
	})
	return sharedCounter
}

// Count returns the token count of text, or a 4-chars-per-token
// estimate when the encoder is unavailable.
func (tc *tokenCounter) Count(text string) int {
	if tc.encoder == nil {
		return len(text) / 4
	}
	tc.mu.Lock()
	defer tc.mu.Unlock()
	return len(tc.encoder.Encode(text, nil, nil))
}

// Truncate cuts text down to at most maxTokens tokens.
func (tc *tokenCounter) Truncate(text string, maxTokens int) string {
	if maxTokens <= 0 {
		return text
	}
	if tc.encoder == nil {
		if len(text) > maxTokens*4 {
			return text[:maxTokens*4]
		}
		return text
	}
	tc.mu.Lock()
	defer tc.mu.Unlock()
	tokens := tc.encoder.Encode(text, nil, nil)
	if len(tokens) <= maxTokens {
		return text
	}
	return tc.encoder.Decode(tokens[:maxTokens])
}
