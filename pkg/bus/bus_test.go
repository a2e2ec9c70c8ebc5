package bus_test

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/odvcencio/cadence/pkg/bus"
	"github.com/stretchr/testify/require"
)

func TestMemoryBusPublishSubscribe(t *testing.T) {
	b := bus.NewMemoryBus()
	defer b.Close()

	ctx := context.Background()
	received := make(chan *bus.Message, 1)

	sub, err := b.Subscribe(ctx, "agentrun.run-1.turn", func(msg *bus.Message) {
		received <- msg
	})
	require.NoError(t, err)
	defer sub.Unsubscribe()

	require.NoError(t, b.Publish(ctx, "agentrun.run-1.turn", []byte("turn-1")))

	select {
	case msg := <-received:
		require.Equal(t, "turn-1", string(msg.Data))
		require.Equal(t, "agentrun.run-1.turn", msg.Subject)
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for message")
	}
}

func TestMemoryBusWildcardSubject(t *testing.T) {
	b := bus.NewMemoryBus()
	defer b.Close()

	ctx := context.Background()
	received := make(chan *bus.Message, 4)

	sub, err := b.Subscribe(ctx, fmt.Sprintf(bus.SubjectTurn, "*"), func(msg *bus.Message) {
		received <- msg
	})
	require.NoError(t, err)
	defer sub.Unsubscribe()

	require.NoError(t, b.Publish(ctx, fmt.Sprintf(bus.SubjectTurn, "run-1"), []byte("a")))
	require.NoError(t, b.Publish(ctx, fmt.Sprintf(bus.SubjectTurn, "run-2"), []byte("b")))
	require.NoError(t, b.Publish(ctx, fmt.Sprintf(bus.SubjectReplan, "run-1"), []byte("ignored")))

	var got []string
	for i := 0; i < 2; i++ {
		select {
		case msg := <-received:
			got = append(got, string(msg.Data))
		case <-time.After(time.Second):
			t.Fatal("timed out waiting for wildcard matches")
		}
	}
	require.ElementsMatch(t, []string{"a", "b"}, got)
}

func TestMemoryBusPublishAfterCloseFails(t *testing.T) {
	b := bus.NewMemoryBus()
	require.NoError(t, b.Close())

	err := b.Publish(context.Background(), "agentrun.run-1.turn", []byte("x"))
	require.ErrorIs(t, err, bus.ErrClosed)

	_, err = b.Subscribe(context.Background(), "agentrun.run-1.turn", func(*bus.Message) {})
	require.ErrorIs(t, err, bus.ErrClosed)
}

func TestMemoryBusCloseIsNotIdempotent(t *testing.T) {
	b := bus.NewMemoryBus()
	require.NoError(t, b.Close())
	require.ErrorIs(t, b.Close(), bus.ErrClosed)
}

func TestMemoryBusUnsubscribeStopsDelivery(t *testing.T) {
	b := bus.NewMemoryBus()
	defer b.Close()

	ctx := context.Background()
	received := make(chan *bus.Message, 4)

	sub, err := b.Subscribe(ctx, "agentrun.run-1.audit", func(msg *bus.Message) {
		received <- msg
	})
	require.NoError(t, err)
	require.NoError(t, sub.Unsubscribe())

	require.NoError(t, b.Publish(ctx, "agentrun.run-1.audit", []byte("flushed")))

	select {
	case <-received:
		t.Fatal("expected no delivery after unsubscribe")
	case <-time.After(100 * time.Millisecond):
	}
}

func TestDefaultConfig(t *testing.T) {
	cfg := bus.DefaultConfig()
	require.NotEmpty(t, cfg.URL)
	require.NotZero(t, cfg.Timeout)
}
