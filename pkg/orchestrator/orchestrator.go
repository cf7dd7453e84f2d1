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

// Package orchestrator is the flat tool dispatcher. It owns the tool
// table, validates arguments against each tool's JSON schema, resolves
// the calling agent, applies the per-session dedup window to mutating
// tools, and shapes every outcome into a {ok, content} envelope.
package orchestrator

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/teradata-labs/weft/pkg/channels"
	"github.com/teradata-labs/weft/pkg/discovery"
	"github.com/teradata-labs/weft/pkg/mcp/protocol"
	"github.com/teradata-labs/weft/pkg/messages"
	"github.com/teradata-labs/weft/pkg/observability"
	"github.com/teradata-labs/weft/pkg/sessionctx"
	"github.com/teradata-labs/weft/pkg/store"
	"github.com/teradata-labs/weft/pkg/types"
	"github.com/teradata-labs/weft/pkg/wefterr"
)

// Result is the envelope every tool call returns. Content is a short
// sentence for acknowledgements and compact JSON for structured payloads.
type Result struct {
	OK      bool   `json:"ok"`
	Content string `json:"content,omitempty"`
	Error   string `json:"error,omitempty"`
	Kind    string `json:"kind,omitempty"`
	Dedup   bool   `json:"dedup,omitempty"`
}

// toolHandler executes one tool. viewer is the resolved caller, or the
// zero ref for agent-exempt tools.
type toolHandler func(ctx context.Context, viewer types.AgentRef, args map[string]interface{}) (interface{}, error)

// Orchestrator dispatches tool calls into the engines. One instance
// serves one MCP client; the session id ties dedup and project context
// to that client's registered session.
type Orchestrator struct {
	channels  *channels.Engine
	messages  *messages.Engine
	discovery *discovery.Engine
	sessions  *sessionctx.Engine
	logger    *zap.Logger
	tracer    observability.Tracer
	sessionID string

	tools    []protocol.Tool
	byName   map[string]protocol.Tool
	handlers map[string]toolHandler
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithTracer sets the tracer used for dispatch spans.
func WithTracer(t observability.Tracer) Option {
	return func(o *Orchestrator) {
		if t != nil {
			o.tracer = t
		}
	}
}

// WithSessionID binds the dispatcher to a registered session. Without a
// session, dedup is skipped and project-context tools report no project.
func WithSessionID(id string) Option {
	return func(o *Orchestrator) {
		o.sessionID = id
	}
}

// New creates an orchestrator over the four engines.
func New(ch *channels.Engine, msg *messages.Engine, disc *discovery.Engine, sess *sessionctx.Engine, logger *zap.Logger, opts ...Option) *Orchestrator {
	if logger == nil {
		logger = zap.NewNop()
	}

	o := &Orchestrator{
		channels:  ch,
		messages:  msg,
		discovery: disc,
		sessions:  sess,
		logger:    logger,
		tracer:    observability.NewNoOpTracer(),
	}
	for _, opt := range opts {
		opt(o)
	}

	o.tools = buildToolDefinitions()
	o.byName = make(map[string]protocol.Tool, len(o.tools))
	for _, t := range o.tools {
		o.byName[t.Name] = t
	}
	o.handlers = o.buildToolHandlers()
	return o
}

// ListTools implements server.ToolProvider.
func (o *Orchestrator) ListTools(_ context.Context) ([]protocol.Tool, error) {
	return o.tools, nil
}

// CallTool implements server.ToolProvider. Every outcome, including
// domain errors, arrives as a JSON envelope in one text content item.
func (o *Orchestrator) CallTool(ctx context.Context, name string, args map[string]interface{}) (*protocol.CallToolResult, error) {
	res := o.Dispatch(ctx, name, args)
	payload, err := json.Marshal(res)
	if err != nil {
		return nil, fmt.Errorf("marshal tool result: %w", err)
	}
	return &protocol.CallToolResult{
		Content: []protocol.Content{{Type: "text", Text: string(payload)}},
		IsError: !res.OK,
	}, nil
}

// Dispatch runs one tool call end to end.
func (o *Orchestrator) Dispatch(ctx context.Context, name string, args map[string]interface{}) Result {
	ctx, span := o.tracer.StartSpan(ctx, "orchestrator.dispatch",
		observability.WithAttribute("tool", name))
	defer o.tracer.EndSpan(span)

	tool, ok := o.byName[name]
	if !ok {
		return failure(wefterr.New(wefterr.KindNotFound, "unknown tool %q", name))
	}
	if args == nil {
		args = map[string]interface{}{}
	}

	if err := protocol.ValidateToolArguments(tool, args); err != nil {
		return failure(wefterr.Wrap(wefterr.KindInvalidInput, err, "arguments for %s rejected", name))
	}

	var viewer types.AgentRef
	if _, exempt := agentExempt[name]; !exempt {
		agentID, _ := args["agent_id"].(string)
		if agentID == "" {
			return failure(wefterr.New(wefterr.KindInvalidInput, "agent_id is required"))
		}
		agent, err := o.sessions.ResolveCaller(ctx, o.sessionID, agentID)
		if err != nil {
			return failure(err)
		}
		viewer = agent.Ref()
		span.SetAttribute("agent", viewer.Handle())
	}

	if o.sessionID != "" {
		if err := o.sessions.Touch(ctx, o.sessionID); err != nil {
			o.logger.Debug("session touch failed", zap.String("session", o.sessionID), zap.Error(err))
		}
		if isMutating(tool) {
			switch rc, err := o.sessions.RecordToolCall(ctx, o.sessionID, name, args); {
			case err != nil:
				// Dedup bookkeeping must never block the call itself.
				o.logger.Warn("tool call dedup check failed", zap.String("tool", name), zap.Error(err))
			case rc == store.ToolCallDuplicate:
				o.logger.Info("duplicate tool call",
					zap.String("tool", name),
					zap.String("session", o.sessionID))
				o.tracer.RecordMetric("orchestrator.dedup_hits", 1, map[string]string{"tool": name})
				return Result{OK: true, Content: "duplicate", Dedup: true}
			}
		}
	}

	handler := o.handlers[name]
	payload, err := handler(ctx, viewer, args)
	if err != nil {
		span.RecordError(err)
		return failure(err)
	}
	return success(payload)
}

// isMutating reports whether the tool's annotations mark it as a write.
// Only writes pass through the dedup window; repeating a read is always
// legitimate.
func isMutating(tool protocol.Tool) bool {
	ann := tool.Annotations
	return ann == nil || ann.ReadOnlyHint == nil || !*ann.ReadOnlyHint
}

func success(payload interface{}) Result {
	switch v := payload.(type) {
	case string:
		return Result{OK: true, Content: v}
	default:
		data, err := json.Marshal(v)
		if err != nil {
			return failure(wefterr.Wrap(wefterr.KindInternal, err, "result not serializable"))
		}
		return Result{OK: true, Content: string(data)}
	}
}

func failure(err error) Result {
	msg := err.Error()
	var we *wefterr.Error
	if errors.As(err, &we) {
		msg = we.UserMessage()
	}
	return Result{Error: msg, Kind: string(wefterr.KindOf(err))}
}

// resolveHandle applies scope defaulting to a channel argument: a bare
// name becomes global:name for global viewers and <project>:name
// otherwise. Anything containing a colon is already a handle.
func resolveHandle(viewer types.AgentRef, name string) string {
	if strings.Contains(name, ":") {
		return name
	}
	if viewer.IsGlobal() {
		return types.GlobalHandle(name)
	}
	return types.ProjectHandle(viewer.Scope, name)
}

// parseAgentHandle parses the discovery-listing form of an agent
// reference: "name" for global agents, "name:project" otherwise.
func parseAgentHandle(s string) (types.AgentRef, error) {
	name, scope, ok := strings.Cut(s, ":")
	if !ok || scope == "" {
		scope = types.ScopeGlobal
	}
	if !types.ValidAgentName(name) {
		return types.AgentRef{}, wefterr.New(wefterr.KindInvalidInput, "invalid agent reference %q", s)
	}
	if scope != types.ScopeGlobal && !types.IsProjectID(scope) {
		return types.AgentRef{}, wefterr.New(wefterr.KindInvalidInput, "invalid agent scope in %q", s)
	}
	return types.AgentRef{Name: name, Scope: scope}, nil
}

// Typed argument readers. Schema validation has already run, so these
// only coerce the shapes encoding/json produces, plus native ints from
// direct Go callers.

func stringArg(args map[string]interface{}, key string) string {
	v, _ := args[key].(string)
	return v
}

func intArg(args map[string]interface{}, key string) int {
	return int(int64Arg(args, key))
}

func int64Arg(args map[string]interface{}, key string) int64 {
	switch v := args[key].(type) {
	case float64:
		return int64(v)
	case int64:
		return v
	case int:
		return int64(v)
	}
	return 0
}

func floatArg(args map[string]interface{}, key string) (float64, bool) {
	switch v := args[key].(type) {
	case float64:
		return v, true
	case int64:
		return float64(v), true
	case int:
		return float64(v), true
	}
	return 0, false
}

// floatArgPtr distinguishes an absent number from an explicit zero.
func floatArgPtr(args map[string]interface{}, key string) *float64 {
	if v, ok := floatArg(args, key); ok {
		return &v
	}
	return nil
}

func boolArg(args map[string]interface{}, key string) bool {
	v, _ := args[key].(bool)
	return v
}

func stringsArg(args map[string]interface{}, key string) []string {
	raw, ok := args[key].([]interface{})
	if !ok {
		return nil
	}
	out := make([]string, 0, len(raw))
	for _, item := range raw {
		if s, ok := item.(string); ok {
			out = append(out, s)
		}
	}
	return out
}

func mapArg(args map[string]interface{}, key string) map[string]interface{} {
	v, _ := args[key].(map[string]interface{})
	return v
}
