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

// Package sessionctx ties tool sessions to project identity. It registers
// sessions, detects the project a working directory belongs to, resolves
// the calling agent for each dispatch, and classifies repeated tool calls
// inside the dedup window.
package sessionctx

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/teradata-labs/weft/pkg/observability"
	"github.com/teradata-labs/weft/pkg/store"
	"github.com/teradata-labs/weft/pkg/types"
	"github.com/teradata-labs/weft/pkg/wefterr"
)

// DefaultDedupWindow is how long a repeated tool call with identical
// inputs counts as a duplicate.
const DefaultDedupWindow = 10 * time.Minute

// Engine is the session and project context layer.
type Engine struct {
	store  *store.Store
	logger *zap.Logger
	tracer observability.Tracer
	cache  *sessionCache
	window time.Duration
}

// Option configures an Engine.
type Option func(*Engine)

// WithTracer attaches a tracer to engine operations.
func WithTracer(tracer observability.Tracer) Option {
	return func(e *Engine) {
		e.tracer = tracer
	}
}

// WithDedupWindow overrides the tool-call dedup window.
func WithDedupWindow(d time.Duration) Option {
	return func(e *Engine) {
		if d > 0 {
			e.window = d
		}
	}
}

// New creates a session context engine.
func New(st *store.Store, logger *zap.Logger, opts ...Option) *Engine {
	if logger == nil {
		logger = zap.NewNop()
	}
	e := &Engine{
		store:  st,
		logger: logger,
		tracer: observability.NewNoOpTracer(),
		cache:  newSessionCache(defaultCacheSize, defaultCacheTTL),
		window: DefaultDedupWindow,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// RegisterParams describes a session to register.
type RegisterParams struct {
	ID             string
	CWD            string
	TranscriptPath string
	// ProjectPath pins the session to this project root explicitly,
	// registering the project if it is new. When empty the project is
	// detected from CWD.
	ProjectPath string
	Metadata    map[string]interface{}
}

// Register upserts a session. The session attaches to a project when
// ProjectPath is given or CWD lies under a registered project root;
// otherwise it runs global. Re-registering refreshes the cached context.
func (e *Engine) Register(ctx context.Context, p RegisterParams) (*types.Session, error) {
	ctx, span := e.tracer.StartSpan(ctx, "sessionctx.register")
	defer e.tracer.EndSpan(span)

	if p.ID == "" {
		return nil, wefterr.New(wefterr.KindInvalidInput, "session id is required")
	}
	sess := &types.Session{
		ID:             p.ID,
		TranscriptPath: p.TranscriptPath,
		Scope:          types.SessionGlobal,
		Metadata:       p.Metadata,
	}

	var project *types.Project
	var err error
	switch {
	case p.ProjectPath != "":
		project, err = e.store.RegisterProject(ctx, p.ProjectPath)
		if err != nil {
			return nil, err
		}
	case p.CWD != "":
		project, err = e.projectUnder(ctx, p.CWD)
		if err != nil {
			return nil, err
		}
		if project != nil {
			if err := e.store.TouchProject(ctx, project.ID); err != nil {
				e.logger.Warn("touch project failed", zap.String("project", project.ID), zap.Error(err))
			}
		}
	}
	if project != nil {
		sess.Scope = types.SessionProject
		sess.ProjectID = project.ID
		sess.ProjectPath = project.Path
		sess.ProjectName = project.Name
	}

	if err := e.store.SaveSession(ctx, sess); err != nil {
		return nil, err
	}
	// The upsert preserves transcript and metadata from earlier
	// registrations, so cache the stored row, not the input.
	stored, err := e.store.GetSession(ctx, p.ID)
	if err != nil {
		return nil, err
	}
	e.cache.put(p.ID, stored)
	e.logger.Info("session registered",
		zap.String("session", p.ID),
		zap.String("scope", string(stored.Scope)),
		zap.String("project", stored.ProjectID))
	return stored, nil
}

// projectUnder finds the registered project whose root contains cwd.
// Nested roots resolve to the deepest one.
func (e *Engine) projectUnder(ctx context.Context, cwd string) (*types.Project, error) {
	cwd = filepath.Clean(cwd)
	projects, err := e.store.ListProjects(ctx)
	if err != nil {
		return nil, err
	}
	var best *types.Project
	for i := range projects {
		p := &projects[i]
		root := filepath.Clean(p.Path)
		if cwd != root && !strings.HasPrefix(cwd, root+string(filepath.Separator)) {
			continue
		}
		if best == nil || len(root) > len(filepath.Clean(best.Path)) {
			best = p
		}
	}
	return best, nil
}

// Get returns the session context, served from the cache inside its TTL.
func (e *Engine) Get(ctx context.Context, id string) (*types.Session, error) {
	if sess, ok := e.cache.get(id); ok {
		e.tracer.RecordMetric("sessionctx.cache.hit", 1, nil)
		return sess, nil
	}
	e.tracer.RecordMetric("sessionctx.cache.miss", 1, nil)
	sess, err := e.store.GetSession(ctx, id)
	if err != nil {
		return nil, err
	}
	e.cache.put(id, sess)
	return sess, nil
}

// Touch marks the session active so retention sweeps keep it.
func (e *Engine) Touch(ctx context.Context, id string) error {
	return e.store.TouchSession(ctx, id)
}

// ResolveCaller maps an agent_id of the form "name" or "name@hint" to a
// registered agent. The hint names a scope: "global", a project id, a
// project name, or a registered project path. Candidate scopes are tried
// in order: the explicit hint, the session's project, global, then the
// session project's linked projects newest link first.
func (e *Engine) ResolveCaller(ctx context.Context, sessionID, agentID string) (*types.Agent, error) {
	ctx, span := e.tracer.StartSpan(ctx, "sessionctx.resolve_caller")
	defer e.tracer.EndSpan(span)

	name, hint, hasHint := strings.Cut(agentID, "@")
	name = strings.TrimSpace(name)
	if !types.ValidAgentName(name) {
		return nil, wefterr.New(wefterr.KindInvalidInput, "invalid agent_id %q", agentID)
	}

	var scopes []string
	seen := make(map[string]bool)
	add := func(s string) {
		if s != "" && !seen[s] {
			seen[s] = true
			scopes = append(scopes, s)
		}
	}

	if hasHint {
		scope, err := e.resolveHint(ctx, hint)
		if err != nil {
			return nil, err
		}
		add(scope)
	}

	var sessionProject string
	if sessionID != "" {
		if sess, err := e.Get(ctx, sessionID); err == nil {
			sessionProject = sess.ProjectID
		}
	}
	add(sessionProject)
	add(types.ScopeGlobal)
	if sessionProject != "" {
		linked, err := e.store.LinkedProjects(ctx, sessionProject)
		if err != nil {
			return nil, err
		}
		for i := len(linked) - 1; i >= 0; i-- {
			add(linked[i])
		}
	}

	for _, scope := range scopes {
		agent, err := e.store.GetAgent(ctx, types.AgentRef{Name: name, Scope: scope})
		if err == nil {
			return agent, nil
		}
		if !wefterr.IsKind(err, wefterr.KindNotFound) {
			return nil, err
		}
	}
	return nil, wefterr.New(wefterr.KindNotFound, "agent %q not found in any reachable scope", agentID)
}

// resolveHint maps a project hint to a scope id.
func (e *Engine) resolveHint(ctx context.Context, hint string) (string, error) {
	hint = strings.TrimSpace(hint)
	switch {
	case hint == "":
		return "", wefterr.New(wefterr.KindInvalidInput, "empty project hint")
	case hint == types.ScopeGlobal:
		return types.ScopeGlobal, nil
	case types.IsProjectID(hint):
		return hint, nil
	case strings.ContainsRune(hint, '/'):
		project, err := e.store.GetProjectByPath(ctx, hint)
		if err != nil {
			return "", err
		}
		return project.ID, nil
	default:
		// A project name. Names are not unique across paths; the most
		// recently active project wins.
		projects, err := e.store.ListProjects(ctx)
		if err != nil {
			return "", err
		}
		for i := range projects {
			if projects[i].Name == hint {
				return projects[i].ID, nil
			}
		}
		return "", wefterr.New(wefterr.KindNotFound, "no project named %q", hint)
	}
}

// RecordToolCall classifies a tool call as new or duplicate inside the
// dedup window. Duplicates are reported, never suppressed here.
func (e *Engine) RecordToolCall(ctx context.Context, sessionID, tool string, inputs map[string]interface{}) (store.ToolCallResult, error) {
	ctx, span := e.tracer.StartSpan(ctx, "sessionctx.record_tool_call")
	defer e.tracer.EndSpan(span)

	digest, err := canonicalDigest(inputs)
	if err != nil {
		return "", err
	}
	return e.store.RecordToolCall(ctx, sessionID, tool, digest, e.window)
}

// canonicalDigest hashes the canonical JSON form of the inputs. Map keys
// marshal in sorted order at every level, so two calls with the same
// values always collide.
func canonicalDigest(inputs map[string]interface{}) (string, error) {
	raw, err := json.Marshal(inputs)
	if err != nil {
		return "", wefterr.Wrap(wefterr.KindInvalidInput, err, "tool inputs not serializable")
	}
	sum := sha256.Sum256(raw)
	return hex.EncodeToString(sum[:]), nil
}

// RegisterProject registers or touches a project root path.
func (e *Engine) RegisterProject(ctx context.Context, path string) (*types.Project, error) {
	return e.store.RegisterProject(ctx, path)
}

// Projects lists registered projects, most recently active first.
func (e *Engine) Projects(ctx context.Context) ([]types.Project, error) {
	return e.store.ListProjects(ctx)
}

// LinkedProjects returns the ids reachable from the project through
// enabled links.
func (e *Engine) LinkedProjects(ctx context.Context, id string) ([]string, error) {
	return e.store.LinkedProjects(ctx, id)
}

// LinkProjects declares a link between two registered projects.
func (e *Engine) LinkProjects(ctx context.Context, source, target string, linkType types.ProjectLinkType) error {
	return e.store.LinkProjects(ctx, source, target, linkType)
}
