package notify

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/gofrs/uuid/v5"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/logtide/logtide/internal/errs"
	"github.com/logtide/logtide/internal/model"
	"github.com/logtide/logtide/internal/repository"
)

type fakeChannels struct {
	repository.ChannelRepository
	byID map[uuid.UUID]*model.Channel
}

func (f *fakeChannels) GetByID(_ context.Context, id uuid.UUID) (*model.Channel, error) {
	if c, ok := f.byID[id]; ok {
		cpy := *c
		return &cpy, nil
	}
	return nil, errs.ErrNotFound
}

type fakeHistory struct {
	repository.HistoryRepository
	mu   sync.Mutex
	rows []model.NotificationRecord
}

func (f *fakeHistory) Append(_ context.Context, rec *model.NotificationRecord) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.rows = append(f.rows, *rec)
	return nil
}

type scriptedSender struct {
	mu    sync.Mutex
	errsq []error // one per attempt; nil terminates with success
	calls int
}

func (s *scriptedSender) Send(context.Context, *model.Channel, model.NotificationJob) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	if len(s.errsq) == 0 {
		return nil
	}
	err := s.errsq[0]
	s.errsq = s.errsq[1:]
	return err
}

func testDispatcher(ch *model.Channel, sender Sender) (*Dispatcher, *fakeHistory) {
	channels := &fakeChannels{byID: map[uuid.UUID]*model.Channel{}}
	if ch != nil {
		channels.byID[ch.ID] = ch
	}
	history := &fakeHistory{}
	d := New(nil, channels, history,
		map[model.ChannelType]Sender{model.ChannelDiscord: sender}, 1, zap.NewNop())
	d.base = time.Millisecond
	d.cap = time.Millisecond
	return d, history
}

func discordChannel(active bool) *model.Channel {
	return &model.Channel{
		ID:        uuid.Must(uuid.NewV4()),
		ProjectID: uuid.Must(uuid.NewV4()),
		Type:      model.ChannelDiscord,
		Name:      "ops",
		MinLevel:  model.LevelInfo,
		Active:    active,
	}
}

func jobFor(ch *model.Channel) model.NotificationJob {
	return model.NotificationJob{
		EventID:   uuid.Must(uuid.NewV4()),
		ChannelID: ch.ID,
		ProjectID: ch.ProjectID,
		Level:     model.LevelError,
		Message:   "disk full",
		Timestamp: time.Now(),
	}
}

func TestProcess_SuccessRecordsSent(t *testing.T) {
	t.Parallel()
	ch := discordChannel(true)
	d, history := testDispatcher(ch, &scriptedSender{})

	d.process(context.Background(), jobFor(ch))

	require.Len(t, history.rows, 1)
	rec := history.rows[0]
	require.Equal(t, model.NotifySent, rec.Status)
	require.NotNil(t, rec.SentAt)
	require.Empty(t, rec.Error)
}

func TestProcess_TransientRetriesThenSucceeds(t *testing.T) {
	t.Parallel()
	ch := discordChannel(true)
	sender := &scriptedSender{errsq: []error{
		transientf("boom"),
		transientf("boom again"),
	}}
	d, history := testDispatcher(ch, sender)

	d.process(context.Background(), jobFor(ch))

	require.Equal(t, 3, sender.calls)
	require.Equal(t, model.NotifySent, history.rows[0].Status)
}

func TestProcess_FatalDoesNotRetry(t *testing.T) {
	t.Parallel()
	ch := discordChannel(true)
	sender := &scriptedSender{errsq: []error{fatalf("bad webhook")}}
	d, history := testDispatcher(ch, sender)

	d.process(context.Background(), jobFor(ch))

	require.Equal(t, 1, sender.calls)
	rec := history.rows[0]
	require.Equal(t, model.NotifyFailed, rec.Status)
	require.Contains(t, rec.Error, "bad webhook")
	require.Nil(t, rec.SentAt)
}

func TestProcess_RateLimitedExhaustsAsRateLimited(t *testing.T) {
	t.Parallel()
	ch := discordChannel(true)
	limited := make([]error, maxAttempts)
	for i := range limited {
		limited[i] = rateLimitedf("429")
	}
	sender := &scriptedSender{errsq: limited}
	d, history := testDispatcher(ch, sender)

	d.process(context.Background(), jobFor(ch))

	require.Equal(t, maxAttempts, sender.calls)
	require.Equal(t, model.NotifyRateLimited, history.rows[0].Status)
}

func TestProcess_DropsWhenChannelGoneOrInactive(t *testing.T) {
	t.Parallel()

	// Deleted channel: job silently dropped, no history.
	gone := discordChannel(true)
	sender := &scriptedSender{}
	d, history := testDispatcher(nil, sender)
	d.process(context.Background(), jobFor(gone))
	require.Zero(t, sender.calls)
	require.Empty(t, history.rows)

	// Deactivated channel: same.
	off := discordChannel(false)
	d, history = testDispatcher(off, sender)
	d.process(context.Background(), jobFor(off))
	require.Zero(t, sender.calls)
	require.Empty(t, history.rows)
}

func TestClassifyStatus(t *testing.T) {
	t.Parallel()
	require.NoError(t, classifyStatus(200))
	require.NoError(t, classifyStatus(204))

	var de *DeliveryError
	require.True(t, errors.As(classifyStatus(429), &de))
	require.Equal(t, ClassRateLimited, de.Class)

	require.True(t, errors.As(classifyStatus(503), &de))
	require.Equal(t, ClassTransient, de.Class)

	require.True(t, errors.As(classifyStatus(400), &de))
	require.Equal(t, ClassFatal, de.Class)
}
