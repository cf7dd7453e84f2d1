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

// Package semantic maintains a vector index over messages for
// similarity search. The index is a sidecar: the message store stays
// authoritative, vector writes are best-effort, and the whole directory
// can be rebuilt from stored messages at any time.
package semantic

import (
	"context"
	"fmt"
	"runtime"
	"sort"
	"strconv"
	"sync"
	"time"

	chromem "github.com/philippgille/chromem-go"
	"go.uber.org/zap"

	"github.com/teradata-labs/weft/pkg/types"
)

const (
	collectionName = "messages"

	// defaultMaxDocTokens caps indexed content. Embedding models cap
	// their input, so longer messages index a truncated prefix.
	defaultMaxDocTokens = 512

	// overFetch widens vector queries because permission filtering
	// happens after ranking and discards an unknown share of hits.
	overFetch = 4

	// defaultConfidence stands in for messages sent without one.
	defaultConfidence = 0.5
)

// Config configures an Index.
type Config struct {
	// Path is the persistence directory. Empty keeps the index in
	// memory only.
	Path string
	// Compress gzips the persisted vectors.
	Compress bool
	// Embedder defaults to the local hashing embedder.
	Embedder Embedder
	// MaxDocTokens caps indexed content, defaulting to 512.
	MaxDocTokens int
}

// Index is a chromem-backed vector index over message content.
type Index struct {
	db       *chromem.DB
	embedder Embedder
	counter  *tokenCounter
	logger   *zap.Logger

	mu  sync.Mutex
	col *chromem.Collection

	maxDocTokens int
}

// NewIndex opens or creates the vector index.
func NewIndex(cfg Config, logger *zap.Logger) (*Index, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.Embedder == nil {
		cfg.Embedder = NewHashingEmbedder(0)
	}
	if cfg.MaxDocTokens <= 0 {
		cfg.MaxDocTokens = defaultMaxDocTokens
	}

	var db *chromem.DB
	if cfg.Path != "" {
		var err error
		db, err = chromem.NewPersistentDB(cfg.Path, cfg.Compress)
		if err != nil {
			return nil, fmt.Errorf("open vector index at %s: %w", cfg.Path, err)
		}
	} else {
		db = chromem.NewDB()
	}

	idx := &Index{
		db:           db,
		embedder:     cfg.Embedder,
		counter:      getTokenCounter(),
		logger:       logger,
		maxDocTokens: cfg.MaxDocTokens,
	}
	if _, err := idx.collection(); err != nil {
		return nil, err
	}
	logger.Info("vector index ready",
		zap.String("path", cfg.Path),
		zap.String("embedder", cfg.Embedder.Name()),
		zap.Int("documents", idx.Count()))
	return idx, nil
}

func (x *Index) collection() (*chromem.Collection, error) {
	x.mu.Lock()
	defer x.mu.Unlock()
	if x.col != nil {
		return x.col, nil
	}
	embed := func(ctx context.Context, text string) ([]float32, error) {
		return x.embedder.Embed(ctx, text)
	}
	col, err := x.db.GetOrCreateCollection(collectionName, nil, embed)
	if err != nil {
		return nil, fmt.Errorf("open collection %s: %w", collectionName, err)
	}
	x.col = col
	return col, nil
}

// IndexMessage adds or replaces the message's vector. Deleted and blank
// messages index nothing.
func (x *Index) IndexMessage(ctx context.Context, msg *types.Message) error {
	if msg == nil || msg.Content == "" || msg.Deleted() {
		return nil
	}
	col, err := x.collection()
	if err != nil {
		return err
	}

	content := x.counter.Truncate(msg.Content, x.maxDocTokens)
	confidence := defaultConfidence
	if msg.Confidence != nil {
		confidence = *msg.Confidence
	}
	doc := chromem.Document{
		ID:      strconv.FormatInt(msg.ID, 10),
		Content: content,
		Metadata: map[string]string{
			"channel":    msg.Channel,
			"sender":     msg.Sender().Handle(),
			"thread":     msg.Thread,
			"intent":     msg.IntentType,
			"confidence": strconv.FormatFloat(confidence, 'f', 4, 64),
			"created_at": strconv.FormatInt(msg.Timestamp.Unix(), 10),
		},
	}
	if err := col.AddDocuments(ctx, []chromem.Document{doc}, runtime.NumCPU()); err != nil {
		return fmt.Errorf("index message %d: %w", msg.ID, err)
	}
	return nil
}

// RemoveMessage drops the message's vector. Missing ids are not an
// error.
func (x *Index) RemoveMessage(ctx context.Context, id int64) error {
	col, err := x.collection()
	if err != nil {
		return err
	}
	if err := col.Delete(ctx, nil, nil, strconv.FormatInt(id, 10)); err != nil {
		return fmt.Errorf("remove message %d from index: %w", id, err)
	}
	return nil
}

// Request is one semantic search.
type Request struct {
	Text string
	// Profile names a ranking profile; empty selects the default.
	Profile string
	// HalfLifeHours replaces the profile's recency half-life when
	// positive.
	HalfLifeHours float64
	// Limit is the caller's result budget. The index over-fetches so
	// the caller can filter by permission before cutting to Limit.
	Limit int
	// Now anchors recency decay; the zero value means time.Now().
	Now time.Time
}

// Match is one ranked hit.
type Match struct {
	MessageID  int64
	Similarity float64
	Confidence float64
	Recency    float64
	Score      float64
}

// Search embeds the query, retrieves nearest neighbors, and ranks them
// under the requested profile. Results come back ordered by score
// descending and may exceed Limit by the over-fetch factor.
func (x *Index) Search(ctx context.Context, req Request) ([]Match, error) {
	profile, err := ProfileByName(req.Profile)
	if err != nil {
		return nil, err
	}
	if req.HalfLifeHours > 0 {
		profile.HalfLifeHours = req.HalfLifeHours
	}
	if req.Text == "" {
		return nil, nil
	}
	if req.Limit <= 0 {
		req.Limit = 10
	}
	now := req.Now
	if now.IsZero() {
		now = time.Now()
	}

	col, err := x.collection()
	if err != nil {
		return nil, err
	}
	total := col.Count()
	if total == 0 {
		return nil, nil
	}
	n := req.Limit * overFetch
	if n > total {
		n = total
	}

	results, err := col.Query(ctx, req.Text, n, nil, nil)
	if err != nil {
		return nil, fmt.Errorf("vector query: %w", err)
	}

	matches := make([]Match, 0, len(results))
	for _, r := range results {
		id, err := strconv.ParseInt(r.ID, 10, 64)
		if err != nil {
			x.logger.Warn("skipping non-numeric vector id", zap.String("id", r.ID))
			continue
		}
		confidence := defaultConfidence
		if c, err := strconv.ParseFloat(r.Metadata["confidence"], 64); err == nil {
			confidence = c
		}
		recency := 1.0
		if createdAt, err := strconv.ParseInt(r.Metadata["created_at"], 10, 64); err == nil {
			recency = RecencyScore(now.Sub(time.Unix(createdAt, 0)), profile.HalfLifeHours)
		}
		similarity := float64(r.Similarity)
		matches = append(matches, Match{
			MessageID:  id,
			Similarity: similarity,
			Confidence: confidence,
			Recency:    recency,
			Score:      profile.Score(similarity, confidence, recency),
		})
	}
	sortMatches(matches)
	return matches, nil
}

// sortMatches orders by score descending, newest message first on ties.
func sortMatches(matches []Match) {
	sort.SliceStable(matches, func(i, j int) bool {
		if matches[i].Score != matches[j].Score {
			return matches[i].Score > matches[j].Score
		}
		return matches[i].MessageID > matches[j].MessageID
	})
}

// Count returns the number of indexed documents.
func (x *Index) Count() int {
	col, err := x.collection()
	if err != nil {
		return 0
	}
	return col.Count()
}

// Reset drops every vector. Used before a rebuild from the message
// store.
func (x *Index) Reset(ctx context.Context) error {
	x.mu.Lock()
	defer x.mu.Unlock()
	if err := x.db.DeleteCollection(collectionName); err != nil {
		return fmt.Errorf("reset vector index: %w", err)
	}
	x.col = nil
	return nil
}

// Rebuild repopulates the index from an authoritative message source.
// The iterator yields batches until it returns an empty slice.
func (x *Index) Rebuild(ctx context.Context, next func(ctx context.Context) ([]types.Message, error)) (int, error) {
	if err := x.Reset(ctx); err != nil {
		return 0, err
	}
	indexed := 0
	for {
		batch, err := next(ctx)
		if err != nil {
			return indexed, err
		}
		if len(batch) == 0 {
			return indexed, nil
		}
		for i := range batch {
			if err := x.IndexMessage(ctx, &batch[i]); err != nil {
				return indexed, err
			}
			indexed++
		}
	}
}
