package mcp

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/gofrs/uuid/v5"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	pkgcrypto "github.com/logtide/logtide/internal/crypto"
	"github.com/logtide/logtide/internal/errs"
	"github.com/logtide/logtide/internal/model"
	"github.com/logtide/logtide/internal/repository"
)

type fakeTokens struct {
	repository.TokenRepository
	byHash  map[string]*model.ToolToken
	touched int
}

func (f *fakeTokens) GetByHash(_ context.Context, hash string) (*model.ToolToken, error) {
	t, ok := f.byHash[hash]
	if !ok {
		return nil, errs.ErrNotFound
	}
	return t, nil
}

func (f *fakeTokens) TouchLastUsed(context.Context, uuid.UUID) error {
	f.touched++
	return nil
}

type fakeActivity struct {
	repository.ActivityRepository
	rows []model.ToolActivity
}

func (f *fakeActivity) Append(_ context.Context, a *model.ToolActivity) error {
	f.rows = append(f.rows, *a)
	return nil
}

type fakeEvents struct {
	repository.EventRepository
	byID       map[uuid.UUID]*model.LogEvent
	lastFilter model.EventFilter
	lastScope  []uuid.UUID
}

func (f *fakeEvents) GetByID(_ context.Context, id uuid.UUID) (*model.LogEvent, error) {
	e, ok := f.byID[id]
	if !ok {
		return nil, errs.ErrNotFound
	}
	return e, nil
}

func (f *fakeEvents) List(_ context.Context, filter model.EventFilter) ([]model.LogEvent, int64, error) {
	f.lastFilter = filter
	return []model.LogEvent{}, 0, nil
}

func (f *fakeEvents) Recent(context.Context, []uuid.UUID, int) ([]model.LogEvent, error) {
	return []model.LogEvent{}, nil
}

func (f *fakeEvents) CountByLevel(_ context.Context, ids []uuid.UUID) (map[model.Level]int64, error) {
	f.lastScope = ids
	return map[model.Level]int64{model.LevelError: 2}, nil
}

func (f *fakeEvents) CountByProject(context.Context, []uuid.UUID) ([]model.ProjectCount, error) {
	return nil, nil
}

type fakeProjects struct {
	repository.ProjectRepository
	projects []model.Project
}

func (f *fakeProjects) List(context.Context) ([]model.Project, error) {
	return f.projects, nil
}

func (f *fakeProjects) GetByID(_ context.Context, id uuid.UUID) (*model.Project, error) {
	for i := range f.projects {
		if f.projects[i].ID == id {
			return &f.projects[i], nil
		}
	}
	return nil, errs.ErrNotFound
}

func fixture(t *testing.T, grant model.TokenGrant) (*Service, *model.ToolToken, string, *fakeActivity, *fakeEvents, *fakeProjects) {
	t.Helper()
	secret, err := pkgcrypto.NewToolToken()
	require.NoError(t, err)
	tok := &model.ToolToken{
		ID:        uuid.Must(uuid.NewV4()),
		Name:      "ci",
		TokenHash: pkgcrypto.Fingerprint(secret),
		Grant:     grant,
		Active:    true,
	}
	tokens := &fakeTokens{byHash: map[string]*model.ToolToken{tok.TokenHash: tok}}
	activity := &fakeActivity{}
	events := &fakeEvents{byID: map[uuid.UUID]*model.LogEvent{}}
	projects := &fakeProjects{}
	svc := New(tokens, activity, events, projects, zap.NewNop())
	return svc, tok, secret, activity, events, projects
}

func TestResolve(t *testing.T) {
	t.Parallel()
	svc, tok, secret, _, _, _ := fixture(t, model.TokenGrant{All: true})
	ctx := context.Background()

	got, err := svc.Resolve(ctx, secret)
	require.NoError(t, err)
	require.Equal(t, tok.ID, got.ID)

	_, err = svc.Resolve(ctx, "mcp_0000000000000000000000000000000000000000000000000000000000000000")
	require.ErrorIs(t, err, errs.ErrUnauthorized)
	_, err = svc.Resolve(ctx, "cl_not_a_tool_token")
	require.ErrorIs(t, err, errs.ErrUnauthorized)
}

func TestResolve_ExpiredAndRevoked(t *testing.T) {
	t.Parallel()
	svc, tok, secret, _, _, _ := fixture(t, model.TokenGrant{All: true})
	ctx := context.Background()

	past := time.Now().Add(-time.Hour)
	tok.ExpiresAt = &past
	_, err := svc.Resolve(ctx, secret)
	require.ErrorIs(t, err, errs.ErrUnauthorized)

	tok.ExpiresAt = nil
	tok.Active = false
	_, err = svc.Resolve(ctx, secret)
	require.ErrorIs(t, err, errs.ErrUnauthorized)
}

func TestCall_ScopesQueryToGrant(t *testing.T) {
	t.Parallel()
	granted := uuid.Must(uuid.NewV4())
	other := uuid.Must(uuid.NewV4())
	svc, tok, _, activity, events, _ := fixture(t, model.TokenGrant{Projects: []uuid.UUID{granted}})
	ctx := context.Background()

	// No explicit projects: the grant itself is the scope.
	_, err := svc.Call(ctx, tok, ToolQueryLogs, nil)
	require.NoError(t, err)
	require.Equal(t, []uuid.UUID{granted}, events.lastFilter.ProjectIDs)

	// Asking for an ungranted project is denied, and still audited.
	args, _ := json.Marshal(Args{ProjectIDs: []uuid.UUID{other}})
	_, err = svc.Call(ctx, tok, ToolQueryLogs, args)
	require.ErrorIs(t, err, errs.ErrAccessDenied)

	require.Len(t, activity.rows, 2)
	require.True(t, activity.rows[0].Success)
	require.False(t, activity.rows[1].Success)
	require.NotEmpty(t, activity.rows[1].Error)
}

func TestCall_GetLogChecksGrant(t *testing.T) {
	t.Parallel()
	granted := uuid.Must(uuid.NewV4())
	svc, tok, _, _, events, _ := fixture(t, model.TokenGrant{Projects: []uuid.UUID{granted}})

	mine := &model.LogEvent{ID: uuid.Must(uuid.NewV4()), ProjectID: granted}
	foreign := &model.LogEvent{ID: uuid.Must(uuid.NewV4()), ProjectID: uuid.Must(uuid.NewV4())}
	events.byID[mine.ID] = mine
	events.byID[foreign.ID] = foreign

	args, _ := json.Marshal(Args{ID: &mine.ID})
	res, err := svc.Call(context.Background(), tok, ToolGetLog, args)
	require.NoError(t, err)
	require.Equal(t, mine, res)

	args, _ = json.Marshal(Args{ID: &foreign.ID})
	_, err = svc.Call(context.Background(), tok, ToolGetLog, args)
	require.ErrorIs(t, err, errs.ErrAccessDenied)
}

func TestCall_ListProjectsFiltersAndScrubs(t *testing.T) {
	t.Parallel()
	granted := uuid.Must(uuid.NewV4())
	svc, tok, _, _, _, projects := fixture(t, model.TokenGrant{Projects: []uuid.UUID{granted}})
	projects.projects = []model.Project{
		{ID: granted, Name: "mine", APIKeyHash: "fingerprint"},
		{ID: uuid.Must(uuid.NewV4()), Name: "other"},
	}

	res, err := svc.Call(context.Background(), tok, ToolListProjects, nil)
	require.NoError(t, err)
	got := res.([]model.Project)
	require.Len(t, got, 1)
	require.Equal(t, "mine", got[0].Name)
	require.Empty(t, got[0].APIKeyHash, "credential material never leaves the tool surface")
}

func TestCall_GetStatsScope(t *testing.T) {
	t.Parallel()
	granted := uuid.Must(uuid.NewV4())
	other := uuid.Must(uuid.NewV4())
	svc, tok, _, _, events, _ := fixture(t, model.TokenGrant{Projects: []uuid.UUID{granted}})
	ctx := context.Background()

	// Default and explicit overview run over the full grant.
	_, err := svc.Call(ctx, tok, ToolGetStats, nil)
	require.NoError(t, err)
	require.Equal(t, []uuid.UUID{granted}, events.lastScope)

	args, _ := json.Marshal(Args{Scope: "overview"})
	_, err = svc.Call(ctx, tok, ToolGetStats, args)
	require.NoError(t, err)

	// Project scope narrows to the named project.
	args, _ = json.Marshal(Args{Scope: "project", ProjectID: &granted})
	res, err := svc.Call(ctx, tok, ToolGetStats, args)
	require.NoError(t, err)
	require.Equal(t, []uuid.UUID{granted}, events.lastScope)
	require.Equal(t, int64(2), res.(statsResult).Total)

	// Ungranted project, missing project, and unknown scope all fail.
	args, _ = json.Marshal(Args{Scope: "project", ProjectID: &other})
	_, err = svc.Call(ctx, tok, ToolGetStats, args)
	require.ErrorIs(t, err, errs.ErrAccessDenied)

	args, _ = json.Marshal(Args{Scope: "project"})
	_, err = svc.Call(ctx, tok, ToolGetStats, args)
	require.ErrorIs(t, err, errs.ErrInvalid)

	args, _ = json.Marshal(Args{Scope: "galaxy"})
	_, err = svc.Call(ctx, tok, ToolGetStats, args)
	require.ErrorIs(t, err, errs.ErrInvalid)
}

func TestCall_UnknownTool(t *testing.T) {
	t.Parallel()
	svc, tok, _, activity, _, _ := fixture(t, model.TokenGrant{All: true})
	_, err := svc.Call(context.Background(), tok, "drop_tables", nil)
	require.ErrorIs(t, err, errs.ErrNotFound)
	require.Len(t, activity.rows, 1)
	require.False(t, activity.rows[0].Success)
}

func TestSanitizeArgs(t *testing.T) {
	t.Parallel()
	raw := json.RawMessage(`{"search":"boom","api_key":"cl_secret","Authorization":"Bearer x"}`)
	var got map[string]any
	require.NoError(t, json.Unmarshal(sanitizeArgs(raw), &got))
	require.Equal(t, map[string]any{"search": "boom"}, got)

	require.JSONEq(t, `{}`, string(sanitizeArgs(nil)))
	require.JSONEq(t, `{}`, string(sanitizeArgs(json.RawMessage(`not json`))))
}
