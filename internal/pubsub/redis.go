// Package pubsub publishes accepted events for cross-process subscribers and
// carries the durable notification work queue, both over Redis.
package pubsub

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/gofrs/uuid/v5"
	"github.com/redis/go-redis/v9"

	"github.com/logtide/logtide/internal/model"
)

// queueKey is the notification work queue list.
const queueKey = "notifications:queue"

// Client wraps the Redis connection for event publish and job queueing.
// origin tags published envelopes so the subscribing side of the same
// process can skip its own messages.
type Client struct {
	rdb    redis.UniversalClient
	origin string
}

// New constructs a Client over an established Redis connection.
func New(rdb redis.UniversalClient) *Client {
	return &Client{rdb: rdb, origin: uuid.Must(uuid.NewV4()).String()}
}

// Dial connects to Redis and verifies the connection.
func Dial(ctx context.Context, addr, password string, db int) (*Client, error) {
	rdb := redis.NewClient(&redis.Options{Addr: addr, Password: password, DB: db})
	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, err
	}
	return New(rdb), nil
}

// Close releases the underlying connection.
func (c *Client) Close() error { return c.rdb.Close() }

// Ping verifies the connection, for health checks.
func (c *Client) Ping(ctx context.Context) error { return c.rdb.Ping(ctx).Err() }

// channelFor names the per-project pub/sub channel.
func channelFor(projectID uuid.UUID) string { return "project:" + projectID.String() }

// wireEnvelope is the published payload: the envelope plus the origin tag.
type wireEnvelope struct {
	Origin string `json:"origin"`
	model.Envelope
}

// PublishEvent sends the envelope to the project's pub/sub channel for
// subscribers in other processes. Fire-and-forget: a publish with no
// listeners is not an error.
func (c *Client) PublishEvent(ctx context.Context, e model.Envelope) error {
	payload, err := json.Marshal(wireEnvelope{Origin: c.origin, Envelope: e})
	if err != nil {
		return err
	}
	return c.rdb.Publish(ctx, channelFor(e.ProjectID), payload).Err()
}

// SubscribeEvents relays envelopes published by other processes to handler
// until ctx is cancelled. Envelopes this process published are skipped; the
// local hub already saw them.
func (c *Client) SubscribeEvents(ctx context.Context, handler func(model.Envelope)) error {
	sub := c.rdb.PSubscribe(ctx, "project:*")
	defer func() { _ = sub.Close() }()

	ch := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			var we wireEnvelope
			if err := json.Unmarshal([]byte(msg.Payload), &we); err != nil {
				continue
			}
			if we.Origin == c.origin {
				continue
			}
			handler(we.Envelope)
		}
	}
}

// EnqueueJob appends a notification job to the durable work queue.
func (c *Client) EnqueueJob(ctx context.Context, job model.NotificationJob) error {
	payload, err := json.Marshal(job)
	if err != nil {
		return err
	}
	return c.rdb.LPush(ctx, queueKey, payload).Err()
}

// DequeueJob pops the next job, blocking up to timeout. Returns ok=false on
// timeout so callers can re-check cancellation between polls.
func (c *Client) DequeueJob(ctx context.Context, timeout time.Duration) (model.NotificationJob, bool, error) {
	var job model.NotificationJob
	res, err := c.rdb.BRPop(ctx, timeout, queueKey).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return job, false, nil
		}
		return job, false, err
	}
	// BRPop returns [key, value].
	if len(res) != 2 {
		return job, false, nil
	}
	if err := json.Unmarshal([]byte(res[1]), &job); err != nil {
		return job, false, err
	}
	return job, true, nil
}

// QueueLen reports the number of pending jobs.
func (c *Client) QueueLen(ctx context.Context) (int64, error) {
	return c.rdb.LLen(ctx, queueKey).Result()
}
