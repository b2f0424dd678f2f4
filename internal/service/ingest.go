package service

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/gofrs/uuid/v5"
	"go.uber.org/zap"

	pkgcrypto "github.com/logtide/logtide/internal/crypto"
	"github.com/logtide/logtide/internal/errs"
	"github.com/logtide/logtide/internal/model"
	"github.com/logtide/logtide/internal/repository"
)

// MaxBatchSize bounds one batch submission.
const MaxBatchSize = 100

// sideEffectTimeout bounds detached post-commit work.
const sideEffectTimeout = 30 * time.Second

// Submission is one producer-supplied log record before normalization.
type Submission struct {
	Level     string          `json:"level"`
	Message   string          `json:"message"`
	Metadata  json.RawMessage `json:"metadata,omitempty"`
	Source    string          `json:"source,omitempty"`
	Timestamp string          `json:"timestamp,omitempty"`
}

// Broadcaster receives accepted events for live fan-out.
type Broadcaster interface {
	Broadcast(e model.Envelope)
}

// Publisher carries accepted events to cross-process subscribers and the
// notification queue.
type Publisher interface {
	PublishEvent(ctx context.Context, e model.Envelope) error
	EnqueueJob(ctx context.Context, job model.NotificationJob) error
}

// IngestService accepts producer submissions keyed by project API key.
type IngestService interface {
	// Authenticate maps an API key to its active project.
	Authenticate(ctx context.Context, apiKey string) (*model.Project, error)
	// Ingest validates, persists, and fans out one event.
	Ingest(ctx context.Context, project *model.Project, sub Submission) (*model.LogEvent, error)
	// IngestBatch persists up to MaxBatchSize events transactionally.
	// Items without a message are skipped; the rest are all-or-nothing.
	IngestBatch(ctx context.Context, project *model.Project, subs []Submission) ([]model.LogEvent, error)
}

// IngestServiceImpl implements IngestService.
type IngestServiceImpl struct {
	projects repository.ProjectRepository
	channels repository.ChannelRepository
	events   repository.EventRepository
	hub      Broadcaster
	pub      Publisher
	log      *zap.Logger
	now      func() time.Time

	// Per-project dispatch queues. One drainer per project keeps side
	// effects in accept order without serializing across projects.
	mu       sync.Mutex
	pending  map[uuid.UUID][]pendingDispatch
	draining map[uuid.UUID]bool
}

// pendingDispatch is one accepted batch awaiting fan-out.
type pendingDispatch struct {
	project *model.Project
	events  []model.LogEvent
}

// NewIngestService constructs IngestService.
func NewIngestService(
	projects repository.ProjectRepository,
	channels repository.ChannelRepository,
	events repository.EventRepository,
	hub Broadcaster,
	pub Publisher,
	log *zap.Logger,
) *IngestServiceImpl {
	return &IngestServiceImpl{
		projects: projects,
		channels: channels,
		events:   events,
		hub:      hub,
		pub:      pub,
		log:      log,
		now:      time.Now,
		pending:  make(map[uuid.UUID][]pendingDispatch),
		draining: make(map[uuid.UUID]bool),
	}
}

// Authenticate looks the project up by key fingerprint and confirms the key
// constant-time. Unknown keys and inactive projects are indistinguishable.
func (s *IngestServiceImpl) Authenticate(ctx context.Context, apiKey string) (*model.Project, error) {
	if apiKey == "" {
		return nil, errs.ErrUnauthorized
	}
	p, err := s.projects.GetByAPIKeyHash(ctx, pkgcrypto.Fingerprint(apiKey))
	if err != nil {
		return nil, errs.ErrUnauthorized
	}
	if !pkgcrypto.VerifySecret(apiKey, p.APIKeyHash) || !p.Active {
		return nil, errs.ErrUnauthorized
	}
	return p, nil
}

// normalize builds a LogEvent from a submission. Returns false when the
// submission has no message.
func (s *IngestServiceImpl) normalize(project *model.Project, sub Submission, acceptedAt time.Time) (model.LogEvent, bool) {
	if sub.Message == "" {
		return model.LogEvent{}, false
	}
	ts := acceptedAt
	if sub.Timestamp != "" {
		if parsed, err := time.Parse(time.RFC3339, sub.Timestamp); err == nil {
			ts = parsed
		}
		// Malformed timestamps fall back to accept-time.
	}
	id, err := uuid.NewV4()
	if err != nil {
		return model.LogEvent{}, false
	}
	return model.LogEvent{
		ID:        id,
		ProjectID: project.ID,
		Level:     model.ParseLevel(sub.Level),
		Message:   sub.Message,
		Metadata:  sub.Metadata,
		Source:    sub.Source,
		Timestamp: ts,
		CreatedAt: acceptedAt,
	}, true
}

// Ingest persists one event and dispatches side effects after commit. The
// response never waits on fan-out, pub/sub, or notification enqueue.
func (s *IngestServiceImpl) Ingest(ctx context.Context, project *model.Project, sub Submission) (*model.LogEvent, error) {
	e, ok := s.normalize(project, sub, s.now())
	if !ok {
		return nil, errs.ErrInvalid
	}
	if err := s.events.Insert(ctx, &e); err != nil {
		return nil, err
	}
	s.dispatch(project, []model.LogEvent{e})
	return &e, nil
}

// IngestBatch persists well-formed items in one transaction. The whole
// request is invalid when empty or over MaxBatchSize; items without a
// message are silently skipped.
func (s *IngestServiceImpl) IngestBatch(ctx context.Context, project *model.Project, subs []Submission) ([]model.LogEvent, error) {
	if len(subs) == 0 || len(subs) > MaxBatchSize {
		return nil, errs.ErrInvalid
	}
	acceptedAt := s.now()
	events := make([]model.LogEvent, 0, len(subs))
	for _, sub := range subs {
		if e, ok := s.normalize(project, sub, acceptedAt); ok {
			events = append(events, e)
		}
	}
	if err := s.events.InsertBatch(ctx, events); err != nil {
		return nil, err
	}
	s.dispatch(project, events)
	return events, nil
}

// dispatch queues post-commit side effects. Batches are appended under the
// lock on the request path, so one project's fan-out runs in accept order;
// the drainer itself is detached from the request.
func (s *IngestServiceImpl) dispatch(project *model.Project, events []model.LogEvent) {
	if len(events) == 0 {
		return
	}
	s.mu.Lock()
	s.pending[project.ID] = append(s.pending[project.ID], pendingDispatch{project: project, events: events})
	if s.draining[project.ID] {
		s.mu.Unlock()
		return
	}
	s.draining[project.ID] = true
	s.mu.Unlock()
	go s.drain(project.ID)
}

// drain fans out queued batches for one project until the queue is empty.
func (s *IngestServiceImpl) drain(projectID uuid.UUID) {
	for {
		s.mu.Lock()
		q := s.pending[projectID]
		if len(q) == 0 {
			delete(s.pending, projectID)
			delete(s.draining, projectID)
			s.mu.Unlock()
			return
		}
		batch := q[0]
		s.pending[projectID] = q[1:]
		s.mu.Unlock()
		s.fanOut(batch.project, batch.events)
	}
}

// fanOut broadcasts, publishes, and enqueues notification jobs for one
// batch on a detached context so the work outlives the request.
func (s *IngestServiceImpl) fanOut(project *model.Project, events []model.LogEvent) {
	ctx, cancel := context.WithTimeout(context.Background(), sideEffectTimeout)
	defer cancel()

	channels, err := s.channels.ListActiveByProject(ctx, project.ID)
	if err != nil {
		s.log.Warn("load channels for fan-out", zap.Error(err))
		channels = nil
	}

	for i := range events {
		e := &events[i]
		env := model.Envelope{
			ID:          e.ID,
			ProjectID:   e.ProjectID,
			ProjectName: project.Name,
			Level:       e.Level,
			Message:     e.Message,
			Metadata:    e.Metadata,
			Source:      e.Source,
			CreatedAt:   e.CreatedAt,
		}
		s.hub.Broadcast(env)
		if err := s.pub.PublishEvent(ctx, env); err != nil {
			s.log.Warn("publish event", zap.Error(err))
		}
		for j := range channels {
			ch := &channels[j]
			if !ch.Matches(e.Level) {
				continue
			}
			job := model.NotificationJob{
				EventID:   e.ID,
				ChannelID: ch.ID,
				ProjectID: e.ProjectID,
				Level:     e.Level,
				Message:   e.Message,
				Source:    e.Source,
				Timestamp: e.CreatedAt,
			}
			if err := s.pub.EnqueueJob(ctx, job); err != nil {
				s.log.Warn("enqueue notification", zap.Error(err))
			}
		}
	}
}
