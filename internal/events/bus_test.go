package events

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestBus_PublishReachesTypedSubscriber(t *testing.T) {
	bus := NewBus()
	defer bus.Close()

	ch, cancel := Subscribe[BuildStarted](bus, 1)
	defer cancel()

	evt := BuildStarted{JobID: "j1", Package: "emoji", Cause: "change"}
	require.NoError(t, bus.Publish(context.Background(), evt))

	select {
	case got := <-ch:
		require.Equal(t, evt, got)
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for event")
	}
}

func TestBus_PublishSkipsOtherTypes(t *testing.T) {
	bus := NewBus()
	defer bus.Close()

	ch, cancel := Subscribe[BuildFinished](bus, 1)
	defer cancel()

	require.NoError(t, bus.Publish(context.Background(), BuildStarted{Package: "emoji"}))

	select {
	case <-ch:
		t.Fatal("BuildFinished subscriber must not see BuildStarted")
	case <-time.After(50 * time.Millisecond):
	}
}

func TestBus_CancelStopsDelivery(t *testing.T) {
	bus := NewBus()
	defer bus.Close()

	ch, cancel := Subscribe[RerunQueued](bus, 1)
	cancel()

	require.NoError(t, bus.Publish(context.Background(), RerunQueued{Package: "emoji"}))

	_, open := <-ch
	require.False(t, open, "channel should be closed after cancel")
}

func TestBus_PublishAfterCloseFails(t *testing.T) {
	bus := NewBus()
	bus.Close()

	err := bus.Publish(context.Background(), BuildStarted{})
	require.Error(t, err)
}

func TestBus_PublishHonorsContextWhenSubscriberFull(t *testing.T) {
	bus := NewBus()
	defer bus.Close()

	_, cancel := Subscribe[BuildStarted](bus, 0)
	defer cancel()

	ctx, stop := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer stop()

	err := bus.Publish(ctx, BuildStarted{Package: "emoji"})
	require.Error(t, err)
}
