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

package reconcile

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/klauspost/compress/zstd"
	"github.com/sergi/go-diff/diffmatchpatch"
	"go.uber.org/zap"

	"github.com/teradata-labs/weft/pkg/observability"
	"github.com/teradata-labs/weft/pkg/store"
	"github.com/teradata-labs/weft/pkg/types"
	"github.com/teradata-labs/weft/pkg/wefterr"
)

// Reconciler applies descriptor sources to the store and records each
// run in sync history.
type Reconciler struct {
	store  *store.Store
	logger *zap.Logger
	tracer observability.Tracer

	// Compression encoder/decoder (reusable, thread-safe).
	encoder *zstd.Encoder
	decoder *zstd.Decoder
}

// Option configures a Reconciler.
type Option func(*Reconciler)

// WithTracer attaches a tracer to reconcile runs.
func WithTracer(tracer observability.Tracer) Option {
	return func(r *Reconciler) {
		r.tracer = tracer
	}
}

// New creates a reconciler.
func New(st *store.Store, logger *zap.Logger, opts ...Option) (*Reconciler, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	encoder, err := zstd.NewWriter(nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create zstd encoder: %w", err)
	}
	decoder, err := zstd.NewReader(nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create zstd decoder: %w", err)
	}

	r := &Reconciler{
		store:   st,
		logger:  logger,
		tracer:  observability.NewNoOpTracer(),
		encoder: encoder,
		decoder: decoder,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r, nil
}

// Result summarizes one agent's reconciliation.
type Result struct {
	Agent    types.AgentRef
	Actions  []Action
	Applied  int
	Failed   int
	Digest   string
	RecordID string
	// Changed reports whether the desired state differs from the
	// previous sync of the same source.
	Changed bool
}

// Run reconciles every descriptor the source yields. Action failures are
// logged and counted per result; only load and history errors abort.
func (r *Reconciler) Run(ctx context.Context, source DescriptorSource) ([]Result, error) {
	ctx, span := r.tracer.StartSpan(ctx, "reconcile.run")
	defer r.tracer.EndSpan(span)

	descriptors, err := source.Descriptors(ctx)
	if err != nil {
		return nil, err
	}

	results := make([]Result, 0, len(descriptors))
	for _, desc := range descriptors {
		res, err := r.reconcileOne(ctx, source.Name(), desc)
		if err != nil {
			return results, err
		}
		results = append(results, *res)
	}
	r.logger.Info("reconcile run complete",
		zap.String("source", source.Name()),
		zap.Int("agents", len(results)))
	return results, nil
}

func (r *Reconciler) reconcileOne(ctx context.Context, sourceName string, desc Descriptor) (*Result, error) {
	desired := Desired(desc)
	current, err := r.loadCurrent(ctx, desired.Agent)
	if err != nil {
		return nil, err
	}
	actions := Diff(current, desired)

	res := &Result{Agent: desired.Agent, Actions: actions}
	for _, action := range actions {
		if err := r.apply(ctx, action, desired); err != nil {
			res.Failed++
			r.logger.Warn("reconcile action failed",
				zap.String("kind", string(action.Kind)),
				zap.String("agent", desired.Agent.Handle()),
				zap.String("channel", action.Channel),
				zap.Error(err))
			continue
		}
		res.Applied++
	}

	snapJSON, err := renderSnapshot(desired)
	if err != nil {
		return nil, err
	}
	sum := sha256.Sum256(snapJSON)
	res.Digest = hex.EncodeToString(sum[:])

	previous := ""
	latest, err := r.store.LatestSyncRecord(ctx, desired.Agent, sourceName)
	switch {
	case err == nil:
		res.Changed = latest.Digest != res.Digest
		if blob, err := r.store.GetSyncSnapshot(ctx, latest.ID); err == nil && len(blob) > 0 {
			raw, derr := r.decoder.DecodeAll(blob, nil)
			if derr != nil {
				r.logger.Warn("previous snapshot unreadable",
					zap.String("record", latest.ID), zap.Error(derr))
			} else {
				previous = string(raw)
			}
		}
	case wefterr.IsKind(err, wefterr.KindNotFound):
		res.Changed = true
	default:
		return nil, err
	}

	rec := &store.SyncRecord{
		Agent:    desired.Agent,
		Source:   sourceName,
		Digest:   res.Digest,
		Diff:     renderDiff(previous, string(snapJSON)),
		Snapshot: r.encoder.EncodeAll(snapJSON, nil),
		Applied:  res.Failed == 0,
	}
	if err := r.store.AppendSyncRecord(ctx, rec); err != nil {
		return nil, err
	}
	res.RecordID = rec.ID

	r.logger.Info("descriptor reconciled",
		zap.String("agent", desired.Agent.Handle()),
		zap.String("source", sourceName),
		zap.Int("actions", len(actions)),
		zap.Int("failed", res.Failed),
		zap.Bool("changed", res.Changed))
	return res, nil
}

// loadCurrent reads the store state Diff needs for one agent.
func (r *Reconciler) loadCurrent(ctx context.Context, ref types.AgentRef) (CurrentState, error) {
	current := CurrentState{Memberships: make(map[string]types.MemberSource)}

	agent, err := r.store.GetAgent(ctx, ref)
	switch {
	case err == nil:
		current.Agent = agent
		member, err := r.store.AgentChannels(ctx, ref)
		if err != nil {
			return current, err
		}
		for _, mc := range member {
			current.Memberships[mc.Channel.Handle] = mc.Membership.Source
		}
	case wefterr.IsKind(err, wefterr.KindNotFound):
	default:
		return current, err
	}

	scopes := []string{types.ScopeGlobal}
	if ref.Scope != "" && ref.Scope != types.ScopeGlobal {
		scopes = append(scopes, ref.Scope)
	}
	channels, err := r.store.ListChannels(ctx, store.ChannelFilter{
		Scopes:          scopes,
		Types:           []types.ChannelType{types.TypeChannel},
		IncludeArchived: true,
	})
	if err != nil {
		return current, err
	}
	current.Channels = channels
	return current, nil
}

func (r *Reconciler) apply(ctx context.Context, action Action, desired DesiredState) error {
	switch action.Kind {
	case ActionUpsertAgent:
		return r.store.UpsertAgent(ctx, &types.Agent{
			Name:            action.Agent.Name,
			Scope:           action.Agent.Scope,
			Description:     desired.Description,
			DMPolicy:        desired.DMPolicy,
			Discoverability: desired.Discoverability,
		})
	case ActionSetDMPolicy:
		return r.store.SetDMPolicy(ctx, action.Agent, types.DMPolicy(action.Value))
	case ActionSetDiscoverability:
		return r.store.SetDiscoverability(ctx, action.Agent, types.Discoverability(action.Value))
	case ActionCreateChannel:
		parsed, err := types.ParseHandle(action.Channel)
		if err != nil {
			return err
		}
		err = r.store.CreateChannel(ctx, &types.Channel{
			Handle:    action.Channel,
			Type:      types.TypeChannel,
			Access:    types.AccessOpen,
			Scope:     parsed.Scope,
			Name:      parsed.Name,
			CreatedBy: action.Agent.Handle(),
		})
		if wefterr.IsKind(err, wefterr.KindAlreadyExists) {
			return nil
		}
		return err
	case ActionSubscribe:
		_, err := r.store.AddMember(ctx, &types.Membership{
			Channel:    action.Channel,
			AgentName:  action.Agent.Name,
			AgentScope: action.Agent.Scope,
			InvitedBy:  types.InvitedBySystem,
			Source:     types.SourceFrontmatter,
			CanLeave:   true,
			CanSend:    true,
			CanInvite:  true,
		})
		return err
	case ActionUnsubscribe:
		_, err := r.store.RemoveMember(ctx, action.Channel, action.Agent)
		return err
	default:
		return wefterr.New(wefterr.KindInvalidInput, "unknown reconcile action %q", action.Kind)
	}
}

type snapshot struct {
	Agent           string   `json:"agent"`
	Description     string   `json:"description,omitempty"`
	DMPolicy        string   `json:"dm_policy,omitempty"`
	Discoverability string   `json:"discoverability,omitempty"`
	Channels        []string `json:"channels"`
	Patterns        []string `json:"patterns,omitempty"`
}

// renderSnapshot serializes the desired state in a stable, line-oriented
// form so history diffs stay readable.
func renderSnapshot(d DesiredState) ([]byte, error) {
	snap := snapshot{
		Agent:           d.Agent.Handle(),
		Description:     d.Description,
		DMPolicy:        string(d.DMPolicy),
		Discoverability: string(d.Discoverability),
		Channels:        d.Channels,
		Patterns:        d.Patterns,
	}
	if snap.Channels == nil {
		snap.Channels = []string{}
	}
	raw, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		return nil, wefterr.Wrap(wefterr.KindInternal, err, "desired state not serializable")
	}
	return append(raw, '\n'), nil
}

// renderDiff renders a readable diff between the previous and next
// snapshot.
func renderDiff(previous, next string) string {
	if previous == next {
		return ""
	}
	dmp := diffmatchpatch.New()
	diffs := dmp.DiffMain(previous, next, false)
	diffs = dmp.DiffCleanupSemantic(diffs)

	var b strings.Builder
	b.WriteString("--- previous\n")
	b.WriteString("+++ desired\n")
	for _, d := range diffs {
		switch d.Type {
		case diffmatchpatch.DiffInsert:
			b.WriteString("+ ")
			b.WriteString(strings.ReplaceAll(d.Text, "\n", "\n+ "))
			b.WriteString("\n")
		case diffmatchpatch.DiffDelete:
			b.WriteString("- ")
			b.WriteString(strings.ReplaceAll(d.Text, "\n", "\n- "))
			b.WriteString("\n")
		case diffmatchpatch.DiffEqual:
			lines := strings.Split(d.Text, "\n")
			if len(lines) > 4 {
				b.WriteString("  " + lines[0] + "\n")
				b.WriteString("  ...\n")
				b.WriteString("  " + lines[len(lines)-1] + "\n")
			} else {
				for _, line := range lines {
					if line != "" {
						b.WriteString("  " + line + "\n")
					}
				}
			}
		}
	}
	return b.String()
}
