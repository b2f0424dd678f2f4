package notify

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/sethvargo/go-retry"
	"go.uber.org/zap"

	"github.com/logtide/logtide/internal/errs"
	"github.com/logtide/logtide/internal/model"
	"github.com/logtide/logtide/internal/repository"
)

// Retry policy for transient transport failures.
const (
	maxAttempts   = 5
	backoffBase   = time.Second
	backoffCap    = 60 * time.Second
	dequeueWindow = 5 * time.Second
)

// Queue is the job source the dispatcher drains.
type Queue interface {
	DequeueJob(ctx context.Context, timeout time.Duration) (model.NotificationJob, bool, error)
}

// Dispatcher drives at-least-once delivery of notification jobs.
type Dispatcher struct {
	queue    Queue
	channels repository.ChannelRepository
	history  repository.HistoryRepository
	senders  map[model.ChannelType]Sender
	workers  int
	log      *zap.Logger

	// overridable in tests to avoid real backoff sleeps
	base time.Duration
	cap  time.Duration
}

// New constructs a Dispatcher with one Sender per channel type.
func New(queue Queue, channels repository.ChannelRepository, history repository.HistoryRepository,
	senders map[model.ChannelType]Sender, workers int, log *zap.Logger) *Dispatcher {
	if workers <= 0 {
		workers = 4
	}
	return &Dispatcher{
		queue:    queue,
		channels: channels,
		history:  history,
		senders:  senders,
		workers:  workers,
		log:      log,
		base:     backoffBase,
		cap:      backoffCap,
	}
}

// Run blocks until ctx is cancelled, popping jobs with a worker pool.
func (d *Dispatcher) Run(ctx context.Context) {
	var wg sync.WaitGroup
	for i := 0; i < d.workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			d.worker(ctx)
		}()
	}
	wg.Wait()
}

func (d *Dispatcher) worker(ctx context.Context) {
	for {
		job, ok, err := d.queue.DequeueJob(ctx, dequeueWindow)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			d.log.Warn("dequeue", zap.Error(err))
			select {
			case <-ctx.Done():
				return
			case <-time.After(time.Second):
			}
			continue
		}
		if !ok {
			if ctx.Err() != nil {
				return
			}
			continue
		}
		d.process(ctx, job)
	}
}

// process delivers one job and records the outcome. Crash between delivery
// and the history write re-runs the job on restart; duplicates are allowed
// by the at-least-once contract.
func (d *Dispatcher) process(ctx context.Context, job model.NotificationJob) {
	ch, err := d.channels.GetByID(ctx, job.ChannelID)
	if err != nil {
		if errors.Is(err, errs.ErrNotFound) {
			// Channel deleted since enqueue; the job is moot.
			return
		}
		d.log.Warn("load channel", zap.Error(err))
		return
	}
	if !ch.Active {
		return
	}
	sender, ok := d.senders[ch.Type]
	if !ok {
		d.log.Error("no sender for channel type", zap.String("type", string(ch.Type)))
		return
	}

	rateLimited := false

	backoff := retry.WithMaxRetries(maxAttempts-1,
		retry.WithCappedDuration(d.cap, retry.NewExponential(d.base)))
	err = retry.Do(ctx, backoff, func(ctx context.Context) error {
		sendErr := sender.Send(ctx, ch, job)
		if sendErr == nil {
			return nil
		}
		var de *DeliveryError
		if errors.As(sendErr, &de) {
			switch de.Class {
			case ClassTransient:
				return retry.RetryableError(sendErr)
			case ClassRateLimited:
				rateLimited = true
				return retry.RetryableError(sendErr)
			}
		}
		return sendErr // fatal, no retry
	})
	now := time.Now()
	rec := model.NotificationRecord{
		EventID:   job.EventID,
		ChannelID: job.ChannelID,
		Status:    model.NotifySent,
		SentAt:    &now,
	}
	if err != nil {
		rec.Status = model.NotifyFailed
		if rateLimited {
			rec.Status = model.NotifyRateLimited
		}
		rec.Error = err.Error()
		rec.SentAt = nil
		d.log.Warn("delivery failed",
			zap.String("channel", ch.ID.String()),
			zap.String("type", string(ch.Type)),
			zap.Error(err),
		)
	}
	if err := d.history.Append(ctx, &rec); err != nil {
		d.log.Warn("record outcome", zap.Error(err))
	}
}
