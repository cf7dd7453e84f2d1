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
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/teradata-labs/weft/pkg/observability"
	"github.com/teradata-labs/weft/pkg/semantic"
	"github.com/teradata-labs/weft/pkg/store"
	"github.com/teradata-labs/weft/pkg/types"
	"github.com/teradata-labs/weft/pkg/wefterr"
)

// Mode selects the search backend.
type Mode string

const (
	// ModeLexical is FTS keyword search, always available.
	ModeLexical Mode = "lexical"
	// ModeSemantic ranks by embedding similarity blended with
	// confidence and recency. Falls back to lexical when the vector
	// index is missing or failing.
	ModeSemantic Mode = "semantic"
)

// SearchParams describes one search.
type SearchParams struct {
	Viewer types.AgentRef
	Query  string
	// Mode defaults to lexical.
	Mode Mode
	// Profile names the semantic ranking profile.
	Profile string
	// Channels, Senders, IntentType, MinConfidence, and Since narrow
	// the result the same way in both modes.
	Channels      []string
	Senders       []string
	IntentType    string
	MinConfidence *float64
	Since         time.Time
	Limit         int
}

// Hit is one search result. Score is 0 in lexical mode.
type Hit struct {
	Message types.Message
	Score   float64
}

// SearchResult reports the hits and which backend produced them.
type SearchResult struct {
	Hits []Hit
	Mode Mode
	// Degraded is set when semantic search was requested but lexical
	// answered instead.
	Degraded bool
}

const defaultSearchLimit = 20

// Search runs a query against the selected backend. Results only ever
// contain messages from channels the viewer belongs to.
func (e *Engine) Search(ctx context.Context, p SearchParams) (*SearchResult, error) {
	ctx, span := e.tracer.StartSpan(ctx, "messages.search",
		observability.WithAttribute("mode", string(p.Mode)))
	defer e.tracer.EndSpan(span)

	if p.Limit <= 0 {
		p.Limit = defaultSearchLimit
	}
	switch p.Mode {
	case "":
		p.Mode = ModeLexical
	case ModeLexical, ModeSemantic:
	default:
		return nil, wefterr.New(wefterr.KindInvalidInput, "unknown search mode %q", p.Mode)
	}

	if p.Mode == ModeSemantic {
		result, err := e.semanticSearch(ctx, p)
		if err == nil {
			return result, nil
		}
		if wefterr.IsKind(err, wefterr.KindInvalidInput) {
			return nil, err
		}
		e.logger.Warn("semantic search failed, answering lexically", zap.Error(err))
		result, lexErr := e.lexicalSearch(ctx, p)
		if lexErr != nil {
			return nil, lexErr
		}
		result.Degraded = true
		return result, nil
	}
	return e.lexicalSearch(ctx, p)
}

func (e *Engine) lexicalSearch(ctx context.Context, p SearchParams) (*SearchResult, error) {
	msgs, err := e.store.SearchMessages(ctx, store.SearchQuery{
		Viewer:        p.Viewer,
		Query:         p.Query,
		Channels:      p.Channels,
		Senders:       p.Senders,
		IntentType:    p.IntentType,
		MinConfidence: p.MinConfidence,
		Since:         p.Since,
		Limit:         p.Limit,
	})
	if err != nil {
		return nil, err
	}
	hits := make([]Hit, 0, len(msgs))
	for _, m := range msgs {
		hits = append(hits, Hit{Message: m})
	}
	return &SearchResult{Hits: hits, Mode: ModeLexical}, nil
}

// semanticSearch ranks first and filters second: the vector index
// over-fetches, then membership and the caller's filters cut the ranked
// list down to the limit.
func (e *Engine) semanticSearch(ctx context.Context, p SearchParams) (*SearchResult, error) {
	if e.vectors == nil {
		return nil, wefterr.New(wefterr.KindDegradedSearch, "no vector index configured")
	}
	profile := p.Profile
	if profile == "" {
		profile = e.defaultProfile
	}
	matches, err := e.vectors.Search(ctx, semantic.Request{
		Text:          p.Query,
		Profile:       profile,
		HalfLifeHours: e.halfLifeHours,
		Limit:         p.Limit,
	})
	if err != nil {
		return nil, wefterr.Wrap(wefterr.KindDegradedSearch, err, "vector search failed")
	}

	channelSet := stringSet(p.Channels)
	senderSet := make(map[string]bool, len(p.Senders))
	for _, s := range p.Senders {
		senderSet[parseRef(s).Handle()] = true
	}

	result := &SearchResult{Mode: ModeSemantic}
	for _, match := range matches {
		if len(result.Hits) >= p.Limit {
			break
		}
		msg, err := e.store.GetMessage(ctx, match.MessageID)
		if err != nil {
			// The vector can outlive the row; skip strays.
			if wefterr.IsKind(err, wefterr.KindNotFound) {
				continue
			}
			return nil, err
		}
		if msg.Deleted() {
			continue
		}
		isMember, err := e.store.IsMember(ctx, msg.Channel, p.Viewer)
		if err != nil {
			return nil, err
		}
		if !isMember {
			continue
		}
		if len(channelSet) > 0 && !channelSet[msg.Channel] {
			continue
		}
		if len(senderSet) > 0 && !senderSet[msg.Sender().Handle()] {
			continue
		}
		if p.IntentType != "" && msg.IntentType != p.IntentType {
			continue
		}
		if p.MinConfidence != nil && (msg.Confidence == nil || *msg.Confidence < *p.MinConfidence) {
			continue
		}
		if !p.Since.IsZero() && msg.Timestamp.Before(p.Since) {
			continue
		}
		result.Hits = append(result.Hits, Hit{Message: *msg, Score: match.Score})
	}
	return result, nil
}

func stringSet(items []string) map[string]bool {
	if len(items) == 0 {
		return nil
	}
	set := make(map[string]bool, len(items))
	for _, s := range items {
		set[s] = true
	}
	return set
}
