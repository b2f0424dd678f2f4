package hub

import (
	"testing"

	"github.com/gofrs/uuid/v5"
	"github.com/stretchr/testify/require"

	"github.com/logtide/logtide/internal/model"
)

func envFor(project uuid.UUID, msg string) model.Envelope {
	return model.Envelope{
		ID:        uuid.Must(uuid.NewV4()),
		ProjectID: project,
		Level:     model.LevelInfo,
		Message:   msg,
	}
}

func TestBroadcast_MembershipScoping(t *testing.T) {
	t.Parallel()
	h := New(8)
	projA := uuid.Must(uuid.NewV4())
	projB := uuid.Must(uuid.NewV4())

	member := h.Register(uuid.Must(uuid.NewV4()), false, []uuid.UUID{projA}, nil)
	admin := h.Register(uuid.Must(uuid.NewV4()), true, nil, nil)
	defer h.Unregister(member)
	defer h.Unregister(admin)

	h.Broadcast(envFor(projA, "a"))
	h.Broadcast(envFor(projB, "b"))

	require.Equal(t, "a", (<-member.Out()).Message)
	select {
	case e := <-member.Out():
		t.Fatalf("member received foreign project event %q", e.Message)
	default:
	}

	require.Equal(t, "a", (<-admin.Out()).Message)
	require.Equal(t, "b", (<-admin.Out()).Message)
}

func TestBroadcast_ProjectFilterNarrows(t *testing.T) {
	t.Parallel()
	h := New(8)
	projA := uuid.Must(uuid.NewV4())
	projB := uuid.Must(uuid.NewV4())

	// Admin can see both, but filters to projB.
	sub := h.Register(uuid.Must(uuid.NewV4()), true, nil, &projB)
	defer h.Unregister(sub)

	h.Broadcast(envFor(projA, "a"))
	h.Broadcast(envFor(projB, "b"))

	require.Equal(t, "b", (<-sub.Out()).Message)
	select {
	case e := <-sub.Out():
		t.Fatalf("filter leaked event %q", e.Message)
	default:
	}
}

func TestBroadcast_SlowSubscriberDropsWithoutBlocking(t *testing.T) {
	t.Parallel()
	h := New(2)
	proj := uuid.Must(uuid.NewV4())

	slow := h.Register(uuid.Must(uuid.NewV4()), true, nil, nil)
	healthy := h.Register(uuid.Must(uuid.NewV4()), true, nil, nil)
	defer h.Unregister(slow)

	// Nobody reads slow's queue; broadcasts beyond its capacity must not block.
	for i := 0; i < 10; i++ {
		h.Broadcast(envFor(proj, "x"))
		<-healthy.Out()
	}

	require.Equal(t, int64(8), slow.Drops())

	// Queued events are still delivered in order, with a gap after.
	require.Equal(t, "x", (<-slow.Out()).Message)
	require.Equal(t, "x", (<-slow.Out()).Message)

	h.Unregister(healthy)
	require.Equal(t, 1, h.Len())
}

func TestUnregister_Idempotent(t *testing.T) {
	t.Parallel()
	h := New(2)
	sub := h.Register(uuid.Must(uuid.NewV4()), false, nil, nil)
	h.Unregister(sub)
	h.Unregister(sub) // second close must not panic

	_, open := <-sub.Out()
	require.False(t, open)
	require.Equal(t, 0, h.Len())
}
