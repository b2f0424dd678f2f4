// Package mcp exposes the read-only tool surface for programmatic clients
// authenticating with mcp_ tokens. Every invocation is audited.
package mcp

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/gofrs/uuid/v5"
	"go.uber.org/zap"

	"github.com/logtide/logtide/internal/authz"
	pkgcrypto "github.com/logtide/logtide/internal/crypto"
	"github.com/logtide/logtide/internal/errs"
	"github.com/logtide/logtide/internal/model"
	"github.com/logtide/logtide/internal/repository"
)

// Tool names.
const (
	ToolQueryLogs     = "query_logs"
	ToolSearchLogs    = "search_logs"
	ToolGetLog        = "get_log"
	ToolGetRecentLogs = "get_recent_logs"
	ToolListProjects  = "list_projects"
	ToolGetProject    = "get_project"
	ToolGetStats      = "get_stats"
)

const (
	maxQueryLimit  = 1000
	maxRecentLimit = 500
)

// Args is the common argument envelope shared by the tools. Tools ignore
// fields they have no use for.
type Args struct {
	ProjectIDs []uuid.UUID `json:"project_ids,omitempty"`
	ProjectID  *uuid.UUID  `json:"project_id,omitempty"`
	ID         *uuid.UUID  `json:"id,omitempty"`
	Levels     []string    `json:"levels,omitempty"`
	Source     string      `json:"source,omitempty"`
	Search     string      `json:"search,omitempty"`
	From       *time.Time  `json:"from,omitempty"`
	To         *time.Time  `json:"to,omitempty"`
	Limit      int         `json:"limit,omitempty"`
	Offset     int         `json:"offset,omitempty"`
	Scope      string      `json:"scope,omitempty"`
}

// Service resolves tokens, runs tools, and writes the audit trail.
type Service struct {
	tokens   repository.TokenRepository
	activity repository.ActivityRepository
	events   repository.EventRepository
	projects repository.ProjectRepository
	log      *zap.Logger
	now      func() time.Time
}

// New constructs the tool service.
func New(
	tokens repository.TokenRepository,
	activity repository.ActivityRepository,
	events repository.EventRepository,
	projects repository.ProjectRepository,
	log *zap.Logger,
) *Service {
	return &Service{
		tokens:   tokens,
		activity: activity,
		events:   events,
		projects: projects,
		log:      log,
		now:      time.Now,
	}
}

// Resolve authenticates an mcp_ bearer. The lookup goes through the
// fingerprint and the secret is then compared constant-time; expired,
// revoked, and unknown tokens are indistinguishable.
func (s *Service) Resolve(ctx context.Context, secret string) (*model.ToolToken, error) {
	if !strings.HasPrefix(secret, "mcp_") {
		return nil, errs.ErrUnauthorized
	}
	t, err := s.tokens.GetByHash(ctx, pkgcrypto.Fingerprint(secret))
	if err != nil {
		return nil, errs.ErrUnauthorized
	}
	if !pkgcrypto.VerifySecret(secret, t.TokenHash) || !t.ValidAt(s.now()) {
		return nil, errs.ErrUnauthorized
	}
	if err := s.tokens.TouchLastUsed(ctx, t.ID); err != nil {
		s.log.Warn("touch token", zap.Error(err))
	}
	return t, nil
}

// Call runs one tool under the token's grant and records the invocation,
// on failure as well as success.
func (s *Service) Call(ctx context.Context, token *model.ToolToken, tool string, raw json.RawMessage) (any, error) {
	started := s.now()

	var args Args
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &args); err != nil {
			s.audit(token, tool, nil, raw, started, errs.ErrInvalid)
			return nil, errs.ErrInvalid
		}
	}

	scope, result, err := s.run(ctx, token, tool, args)
	s.audit(token, tool, scope, raw, started, err)
	return result, err
}

func (s *Service) run(ctx context.Context, token *model.ToolToken, tool string, args Args) ([]uuid.UUID, any, error) {
	switch tool {
	case ToolQueryLogs, ToolSearchLogs:
		return s.queryLogs(ctx, token, args)
	case ToolGetLog:
		return s.getLog(ctx, token, args)
	case ToolGetRecentLogs:
		return s.recentLogs(ctx, token, args)
	case ToolListProjects:
		return s.listProjects(ctx, token)
	case ToolGetProject:
		return s.getProject(ctx, token, args)
	case ToolGetStats:
		return s.getStats(ctx, token, args)
	}
	return nil, nil, errs.ErrNotFound
}

// queryResult pages events for query_logs and search_logs.
type queryResult struct {
	Events []model.LogEvent `json:"events"`
	Total  int64            `json:"total"`
}

func (s *Service) queryLogs(ctx context.Context, token *model.ToolToken, args Args) ([]uuid.UUID, any, error) {
	scope, err := authz.NarrowGrant(token.Grant, args.ProjectIDs)
	if err != nil {
		return nil, nil, err
	}
	levels := make([]model.Level, 0, len(args.Levels))
	for _, l := range args.Levels {
		lvl := model.Level(strings.ToUpper(l))
		if !lvl.Valid() {
			return scope, nil, errs.ErrInvalid
		}
		levels = append(levels, lvl)
	}
	limit := args.Limit
	if limit <= 0 {
		limit = 100
	}
	if limit > maxQueryLimit {
		limit = maxQueryLimit
	}
	offset := args.Offset
	if offset < 0 {
		offset = 0
	}
	events, total, err := s.events.List(ctx, model.EventFilter{
		ProjectIDs: scope,
		Levels:     levels,
		Source:     args.Source,
		Search:     args.Search,
		From:       args.From,
		To:         args.To,
		Limit:      limit,
		Offset:     offset,
	})
	if err != nil {
		return scope, nil, err
	}
	return scope, queryResult{Events: events, Total: total}, nil
}

func (s *Service) getLog(ctx context.Context, token *model.ToolToken, args Args) ([]uuid.UUID, any, error) {
	if args.ID == nil {
		return nil, nil, errs.ErrInvalid
	}
	e, err := s.events.GetByID(ctx, *args.ID)
	if err != nil {
		return nil, nil, err
	}
	if !token.Grant.Allows(e.ProjectID) {
		return nil, nil, errs.ErrAccessDenied
	}
	return []uuid.UUID{e.ProjectID}, e, nil
}

func (s *Service) recentLogs(ctx context.Context, token *model.ToolToken, args Args) ([]uuid.UUID, any, error) {
	scope, err := authz.NarrowGrant(token.Grant, args.ProjectIDs)
	if err != nil {
		return nil, nil, err
	}
	limit := args.Limit
	if limit <= 0 {
		limit = 10
	}
	if limit > maxRecentLimit {
		limit = maxRecentLimit
	}
	events, err := s.events.Recent(ctx, scope, limit)
	if err != nil {
		return scope, nil, err
	}
	return scope, events, nil
}

func (s *Service) listProjects(ctx context.Context, token *model.ToolToken) ([]uuid.UUID, any, error) {
	all, err := s.projects.List(ctx)
	if err != nil {
		return nil, nil, err
	}
	visible := make([]model.Project, 0, len(all))
	ids := make([]uuid.UUID, 0, len(all))
	for _, p := range all {
		if token.Grant.Allows(p.ID) {
			visible = append(visible, scrubProject(p))
			ids = append(ids, p.ID)
		}
	}
	return ids, visible, nil
}

func (s *Service) getProject(ctx context.Context, token *model.ToolToken, args Args) ([]uuid.UUID, any, error) {
	id := args.ProjectID
	if id == nil {
		id = args.ID
	}
	if id == nil {
		return nil, nil, errs.ErrInvalid
	}
	p, err := s.projects.GetByID(ctx, *id)
	if err != nil {
		return nil, nil, err
	}
	if !token.Grant.Allows(p.ID) {
		return nil, nil, errs.ErrAccessDenied
	}
	scrubbed := scrubProject(*p)
	return []uuid.UUID{p.ID}, &scrubbed, nil
}

// statsResult aggregates counts for get_stats.
type statsResult struct {
	Total     int64                 `json:"total"`
	ByLevel   map[model.Level]int64 `json:"by_level"`
	ByProject []model.ProjectCount  `json:"by_project"`
}

func (s *Service) getStats(ctx context.Context, token *model.ToolToken, args Args) ([]uuid.UUID, any, error) {
	switch args.Scope {
	case "", "overview":
	case "project":
		id := args.ProjectID
		if id == nil {
			id = args.ID
		}
		if id == nil {
			return nil, nil, errs.ErrInvalid
		}
		args.ProjectIDs = []uuid.UUID{*id}
	default:
		return nil, nil, errs.ErrInvalid
	}
	scope, err := authz.NarrowGrant(token.Grant, args.ProjectIDs)
	if err != nil {
		return nil, nil, err
	}
	byLevel, err := s.events.CountByLevel(ctx, scope)
	if err != nil {
		return scope, nil, err
	}
	var total int64
	for _, n := range byLevel {
		total += n
	}
	byProject, err := s.events.CountByProject(ctx, scope)
	if err != nil {
		return scope, nil, err
	}
	return scope, statsResult{Total: total, ByLevel: byLevel, ByProject: byProject}, nil
}

// scrubProject strips credential material before a project leaves the tool
// surface. Tool clients never see key fingerprints.
func scrubProject(p model.Project) model.Project {
	p.APIKeyHash = ""
	return p
}

// audit writes one activity row. Failures to audit are logged but never
// turn a successful call into an error.
func (s *Service) audit(token *model.ToolToken, tool string, scope []uuid.UUID, raw json.RawMessage, started time.Time, callErr error) {
	rec := &model.ToolActivity{
		TokenID:    token.ID,
		Tool:       tool,
		ProjectIDs: scope,
		Args:       sanitizeArgs(raw),
		Success:    callErr == nil,
		DurationMS: s.now().Sub(started).Milliseconds(),
	}
	if callErr != nil {
		rec.Error = callErr.Error()
	}
	// Detached: the audit row must land even when the request context died.
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.activity.Append(ctx, rec); err != nil {
		s.log.Warn("append tool activity", zap.Error(err))
	}
}

// secretArgKeys are elided from audited arguments.
var secretArgKeys = []string{"token", "secret", "api_key", "apikey", "password", "authorization"}

// sanitizeArgs drops secret-bearing keys from the raw argument object so
// the audit trail never stores credentials.
func sanitizeArgs(raw json.RawMessage) json.RawMessage {
	if len(raw) == 0 {
		return json.RawMessage(`{}`)
	}
	var m map[string]json.RawMessage
	if err := json.Unmarshal(raw, &m); err != nil {
		return json.RawMessage(`{}`)
	}
	for key := range m {
		lower := strings.ToLower(key)
		for _, secret := range secretArgKeys {
			if strings.Contains(lower, secret) {
				delete(m, key)
				break
			}
		}
	}
	out, err := json.Marshal(m)
	if err != nil {
		return json.RawMessage(`{}`)
	}
	return out
}
