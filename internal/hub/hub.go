// Package hub implements process-local fan-out of accepted events to live
// subscribers. Slow subscribers never back-pressure the writer: a full
// outbound queue drops the event for that subscriber only.
package hub

import (
	"hash/fnv"
	"sync"
	"sync/atomic"

	"github.com/gofrs/uuid/v5"

	"github.com/logtide/logtide/internal/model"
)

const (
	shardCount = 16

	// DefaultQueueSize bounds each subscriber's outbound queue.
	DefaultQueueSize = 256
)

// Subscriber is one live registration. The hub owns the registration entry;
// the connection task owns the transport and must call Unregister on exit.
type Subscriber struct {
	ID      uuid.UUID
	UserID  uuid.UUID
	IsAdmin bool

	// projects the subscriber's user may see; ignored when IsAdmin.
	projects map[uuid.UUID]bool
	// filter narrows to a single project when set.
	filter *uuid.UUID

	ch    chan model.Envelope
	drops atomic.Int64
	once  sync.Once
}

// Out is the subscriber's receive queue. Closed on Unregister.
func (s *Subscriber) Out() <-chan model.Envelope { return s.ch }

// Drops reports how many events were dropped for this subscriber.
func (s *Subscriber) Drops() int64 { return s.drops.Load() }

// wants reports whether an envelope is visible to this subscriber.
func (s *Subscriber) wants(e *model.Envelope) bool {
	if s.filter != nil && *s.filter != e.ProjectID {
		return false
	}
	if s.IsAdmin {
		return true
	}
	return s.projects[e.ProjectID]
}

type shard struct {
	mu   sync.Mutex
	subs map[uuid.UUID]*Subscriber
}

// Hub is the live-subscriber registry, partitioned by subscriber ID hash to
// keep registration contention away from the broadcast hot path.
type Hub struct {
	shards [shardCount]shard
	queue  int
}

// New constructs a Hub with the given per-subscriber queue size.
func New(queueSize int) *Hub {
	if queueSize <= 0 {
		queueSize = DefaultQueueSize
	}
	h := &Hub{queue: queueSize}
	for i := range h.shards {
		h.shards[i].subs = make(map[uuid.UUID]*Subscriber)
	}
	return h
}

func (h *Hub) shardFor(id uuid.UUID) *shard {
	f := fnv.New32a()
	f.Write(id[:])
	return &h.shards[f.Sum32()%shardCount]
}

// Register adds a live subscriber. projects is the set of project IDs the
// user holds a membership in; filter optionally narrows to one project.
func (h *Hub) Register(userID uuid.UUID, isAdmin bool, projects []uuid.UUID, filter *uuid.UUID) *Subscriber {
	sub := &Subscriber{
		ID:       uuid.Must(uuid.NewV4()),
		UserID:   userID,
		IsAdmin:  isAdmin,
		projects: make(map[uuid.UUID]bool, len(projects)),
		filter:   filter,
		ch:       make(chan model.Envelope, h.queue),
	}
	for _, p := range projects {
		sub.projects[p] = true
	}
	sh := h.shardFor(sub.ID)
	sh.mu.Lock()
	sh.subs[sub.ID] = sub
	sh.mu.Unlock()
	return sub
}

// Unregister removes a subscriber and closes its queue. Safe to call more
// than once.
func (h *Hub) Unregister(sub *Subscriber) {
	sh := h.shardFor(sub.ID)
	sh.mu.Lock()
	delete(sh.subs, sub.ID)
	sh.mu.Unlock()
	sub.once.Do(func() { close(sub.ch) })
}

// Broadcast delivers an envelope to every eligible subscriber without
// blocking. A full queue increments the subscriber's drop counter; order is
// preserved per subscriber, gaps are possible.
func (h *Hub) Broadcast(e model.Envelope) {
	for i := range h.shards {
		sh := &h.shards[i]
		sh.mu.Lock()
		for _, sub := range sh.subs {
			if !sub.wants(&e) {
				continue
			}
			select {
			case sub.ch <- e:
			default:
				sub.drops.Add(1)
			}
		}
		sh.mu.Unlock()
	}
}

// Len reports the current number of live subscribers.
func (h *Hub) Len() int {
	n := 0
	for i := range h.shards {
		sh := &h.shards[i]
		sh.mu.Lock()
		n += len(sh.subs)
		sh.mu.Unlock()
	}
	return n
}

// Close unregisters every subscriber, closing their queues.
func (h *Hub) Close() {
	for i := range h.shards {
		sh := &h.shards[i]
		sh.mu.Lock()
		for id, sub := range sh.subs {
			delete(sh.subs, id)
			sub.once.Do(func() { close(sub.ch) })
		}
		sh.mu.Unlock()
	}
}
