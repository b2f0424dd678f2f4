package retention

import (
	"context"
	"testing"
	"time"

	"github.com/gofrs/uuid/v5"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/logtide/logtide/internal/model"
	"github.com/logtide/logtide/internal/repository"
)

type fakeProjects struct {
	repository.ProjectRepository
	projects []model.Project
}

func (f *fakeProjects) List(context.Context) ([]model.Project, error) {
	return f.projects, nil
}

type deletion struct {
	project uuid.UUID
	level   *model.Level
	keep    int
	byAge   bool
}

type fakeEvents struct {
	repository.EventRepository
	deletions []deletion
}

func (f *fakeEvents) DeleteOlderThan(_ context.Context, projectID uuid.UUID, level *model.Level, _ time.Time, _ int) (int64, error) {
	f.deletions = append(f.deletions, deletion{project: projectID, level: level, byAge: true})
	return 0, nil
}

func (f *fakeEvents) DeleteOverCount(_ context.Context, projectID uuid.UUID, level *model.Level, keep, _ int) (int64, error) {
	f.deletions = append(f.deletions, deletion{project: projectID, level: level, keep: keep})
	return 0, nil
}

func intp(n int) *int { return &n }

func TestSweep_PerLevelOverridesProjectCap(t *testing.T) {
	t.Parallel()
	p := model.Project{
		ID: uuid.Must(uuid.NewV4()),
		Retention: &model.RetentionPolicy{
			RetentionRule: model.RetentionRule{MaxCount: intp(1000)},
			Levels: map[model.Level]model.RetentionRule{
				model.LevelDebug: {MaxAgeDays: intp(1)},
			},
		},
	}
	events := &fakeEvents{}
	w := New(&fakeProjects{projects: []model.Project{p}}, events, time.Minute, zap.NewNop())

	require.NoError(t, w.Sweep(context.Background()))

	byLevel := map[model.Level][]deletion{}
	for _, d := range events.deletions {
		require.NotNil(t, d.level)
		byLevel[*d.level] = append(byLevel[*d.level], d)
	}

	// DEBUG: only the per-level age rule, no count cap.
	require.Len(t, byLevel[model.LevelDebug], 1)
	require.True(t, byLevel[model.LevelDebug][0].byAge)

	// Every other level: the project-wide count cap.
	for _, lvl := range []model.Level{model.LevelInfo, model.LevelWarn, model.LevelError, model.LevelCritical} {
		require.Len(t, byLevel[lvl], 1, "level %s", lvl)
		require.False(t, byLevel[lvl][0].byAge)
		require.Equal(t, 1000, byLevel[lvl][0].keep)
	}
}

func TestSweep_SkipsProjectsWithoutPolicy(t *testing.T) {
	t.Parallel()
	p := model.Project{ID: uuid.Must(uuid.NewV4())}
	events := &fakeEvents{}
	w := New(&fakeProjects{projects: []model.Project{p}}, events, time.Minute, zap.NewNop())

	require.NoError(t, w.Sweep(context.Background()))
	require.Empty(t, events.deletions)
}

func TestSweep_AgeAndCountBothEnforced(t *testing.T) {
	t.Parallel()
	p := model.Project{
		ID: uuid.Must(uuid.NewV4()),
		Retention: &model.RetentionPolicy{
			Levels: map[model.Level]model.RetentionRule{
				model.LevelInfo: {MaxAgeDays: intp(7), MaxCount: intp(100)},
			},
		},
	}
	events := &fakeEvents{}
	w := New(&fakeProjects{projects: []model.Project{p}}, events, time.Minute, zap.NewNop())

	require.NoError(t, w.Sweep(context.Background()))

	// Only INFO has a rule; other levels are uncapped.
	require.Len(t, events.deletions, 2)
	require.True(t, events.deletions[0].byAge)
	require.Equal(t, model.LevelInfo, *events.deletions[0].level)
	require.Equal(t, 100, events.deletions[1].keep)
}
