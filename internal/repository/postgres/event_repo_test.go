package postgres

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/gofrs/uuid/v5"
	pgxmock "github.com/pashagolub/pgxmock/v3"
	"github.com/stretchr/testify/require"

	"github.com/logtide/logtide/internal/model"
)

func eventRows(events ...model.LogEvent) *pgxmock.Rows {
	rows := pgxmock.NewRows([]string{
		"id", "project_id", "level", "message", "metadata", "source", "ts", "created_at",
	})
	for _, e := range events {
		rows.AddRow(e.ID, e.ProjectID, e.Level, e.Message, []byte(nil), e.Source, e.Timestamp, e.CreatedAt)
	}
	return rows
}

func TestEventRepo_InsertBatch_AllOrNone(t *testing.T) {
	db, mock := newDB(t)
	defer mock.Close()
	r := NewEventRepo(db)
	ctx := context.Background()

	now := time.Now()
	events := []model.LogEvent{
		{ID: uuid.Must(uuid.NewV4()), ProjectID: uuid.Must(uuid.NewV4()), Level: model.LevelInfo, Message: "a", Timestamp: now, CreatedAt: now},
		{ID: uuid.Must(uuid.NewV4()), ProjectID: uuid.Must(uuid.NewV4()), Level: model.LevelWarn, Message: "b", Timestamp: now, CreatedAt: now},
	}

	mock.ExpectBegin()
	for _, e := range events {
		mock.ExpectExec(`INSERT INTO logs`).
			WithArgs(e.ID, e.ProjectID, e.Level, e.Message, nil, e.Source, e.Timestamp, e.CreatedAt).
			WillReturnResult(pgxmock.NewResult("INSERT", 1))
	}
	mock.ExpectCommit()
	require.NoError(t, r.InsertBatch(ctx, events))

	// Second row fails: the transaction rolls back.
	boom := errors.New("disk full")
	mock.ExpectBegin()
	mock.ExpectExec(`INSERT INTO logs`).
		WithArgs(events[0].ID, events[0].ProjectID, events[0].Level, events[0].Message, nil, events[0].Source, events[0].Timestamp, events[0].CreatedAt).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectExec(`INSERT INTO logs`).
		WithArgs(events[1].ID, events[1].ProjectID, events[1].Level, events[1].Message, nil, events[1].Source, events[1].Timestamp, events[1].CreatedAt).
		WillReturnError(boom)
	mock.ExpectRollback()
	require.ErrorIs(t, r.InsertBatch(ctx, events), boom)

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestEventRepo_List_FilterAndPaging(t *testing.T) {
	db, mock := newDB(t)
	defer mock.Close()
	r := NewEventRepo(db)
	ctx := context.Background()

	pid := uuid.Must(uuid.NewV4())
	now := time.Now()
	e := model.LogEvent{ID: uuid.Must(uuid.NewV4()), ProjectID: pid, Level: model.LevelError, Message: "boom", Timestamp: now, CreatedAt: now}

	f := model.EventFilter{
		ProjectIDs: []uuid.UUID{pid},
		Levels:     []model.Level{model.LevelError},
		Search:     "50%_off",
		Limit:      20,
		Offset:     40,
	}

	mock.ExpectQuery(`SELECT count\(\*\) FROM logs WHERE project_id = ANY\(\$1\) AND level = ANY\(\$2\) AND message ILIKE`).
		WithArgs(f.ProjectIDs, []string{"ERROR"}, `50\%\_off`).
		WillReturnRows(pgxmock.NewRows([]string{"count"}).AddRow(int64(61)))
	mock.ExpectQuery(`SELECT .+ FROM logs WHERE .+ ORDER BY created_at DESC, id DESC LIMIT \$4 OFFSET \$5`).
		WithArgs(f.ProjectIDs, []string{"ERROR"}, `50\%\_off`, f.Limit, f.Offset).
		WillReturnRows(eventRows(e))

	got, total, err := r.List(ctx, f)
	require.NoError(t, err)
	require.Equal(t, int64(61), total)
	require.Len(t, got, 1)
	require.Equal(t, e.ID, got[0].ID)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestEventRepo_List_NoFilter(t *testing.T) {
	db, mock := newDB(t)
	defer mock.Close()
	r := NewEventRepo(db)

	mock.ExpectQuery(`SELECT count\(\*\) FROM logs$`).
		WillReturnRows(pgxmock.NewRows([]string{"count"}).AddRow(int64(0)))
	mock.ExpectQuery(`SELECT .+ FROM logs ORDER BY created_at DESC, id DESC LIMIT \$1 OFFSET \$2`).
		WithArgs(100, 0).
		WillReturnRows(eventRows())

	got, total, err := r.List(context.Background(), model.EventFilter{Limit: 100})
	require.NoError(t, err)
	require.Zero(t, total)
	require.Empty(t, got)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestEventRepo_DeleteOlderThan(t *testing.T) {
	db, mock := newDB(t)
	defer mock.Close()
	r := NewEventRepo(db)
	ctx := context.Background()

	pid := uuid.Must(uuid.NewV4())
	cutoff := time.Now().Add(-30 * 24 * time.Hour)

	// Project-wide rule.
	mock.ExpectExec(`DELETE FROM logs WHERE id IN \(\s*SELECT id FROM logs\s+WHERE project_id = \$1 AND created_at < \$2\s+ORDER BY created_at ASC, id ASC\s+LIMIT \$3\)`).
		WithArgs(pid, cutoff, 500).
		WillReturnResult(pgxmock.NewResult("DELETE", 42))
	n, err := r.DeleteOlderThan(ctx, pid, nil, cutoff, 500)
	require.NoError(t, err)
	require.Equal(t, int64(42), n)

	// Level-scoped rule only touches that level.
	lvl := model.LevelDebug
	mock.ExpectExec(`DELETE FROM logs WHERE id IN \(\s*SELECT id FROM logs\s+WHERE project_id = \$1 AND created_at < \$2 AND level = \$3`).
		WithArgs(pid, cutoff, "DEBUG", 500).
		WillReturnResult(pgxmock.NewResult("DELETE", 7))
	n, err = r.DeleteOlderThan(ctx, pid, &lvl, cutoff, 500)
	require.NoError(t, err)
	require.Equal(t, int64(7), n)

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestEventRepo_DeleteOverCount(t *testing.T) {
	db, mock := newDB(t)
	defer mock.Close()
	r := NewEventRepo(db)
	ctx := context.Background()

	pid := uuid.Must(uuid.NewV4())

	// Keep the newest 1000 rows; oldest beyond that go.
	mock.ExpectExec(`DELETE FROM logs WHERE id IN \(\s*SELECT id FROM logs\s+WHERE project_id = \$1\s+ORDER BY created_at DESC, id DESC\s+OFFSET \$2 LIMIT \$3\)`).
		WithArgs(pid, 1000, 500).
		WillReturnResult(pgxmock.NewResult("DELETE", 500))
	n, err := r.DeleteOverCount(ctx, pid, nil, 1000, 500)
	require.NoError(t, err)
	require.Equal(t, int64(500), n)

	lvl := model.LevelInfo
	mock.ExpectExec(`DELETE FROM logs WHERE id IN \(\s*SELECT id FROM logs\s+WHERE project_id = \$1 AND level = \$2\s+ORDER BY created_at DESC, id DESC\s+OFFSET \$3 LIMIT \$4\)`).
		WithArgs(pid, "INFO", 200, 500).
		WillReturnResult(pgxmock.NewResult("DELETE", 0))
	n, err = r.DeleteOverCount(ctx, pid, &lvl, 200, 500)
	require.NoError(t, err)
	require.Zero(t, n)

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestEventRepo_Delete(t *testing.T) {
	db, mock := newDB(t)
	defer mock.Close()
	r := NewEventRepo(db)

	ids := []uuid.UUID{uuid.Must(uuid.NewV4()), uuid.Must(uuid.NewV4())}
	mock.ExpectExec(`DELETE FROM logs WHERE id = ANY\(\$1\)`).
		WithArgs(ids).
		WillReturnResult(pgxmock.NewResult("DELETE", 2))

	n, err := r.Delete(context.Background(), ids)
	require.NoError(t, err)
	require.Equal(t, int64(2), n)

	// Empty input never touches the database.
	n, err = r.Delete(context.Background(), nil)
	require.NoError(t, err)
	require.Zero(t, n)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestEscapeLike(t *testing.T) {
	require.Equal(t, `100\%`, escapeLike(`100%`))
	require.Equal(t, `a\_b`, escapeLike(`a_b`))
	require.Equal(t, `c:\\tmp`, escapeLike(`c:\tmp`))
}
