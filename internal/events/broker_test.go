package events

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBroker(t *testing.T) {
	t.Run("delivers to every subscriber", func(t *testing.T) {
		b := NewBroker(nil, "relay:events")
		defer b.Close()

		s1 := b.Subscribe()
		s2 := b.Subscribe()
		assert.Equal(t, 2, b.SubscriberCount())

		b.Publish(Event{Type: EventHostRegistered, SessionID: "S1"})

		for _, s := range []*Subscriber{s1, s2} {
			select {
			case ev := <-s.Events:
				assert.Equal(t, EventHostRegistered, ev.Type)
				assert.Equal(t, "S1", ev.SessionID)
				assert.False(t, ev.At.IsZero())
			case <-time.After(time.Second):
				t.Fatal("event not delivered")
			}
		}
	})

	t.Run("unsubscribe closes done once", func(t *testing.T) {
		b := NewBroker(nil, "relay:events")
		defer b.Close()

		s := b.Subscribe()
		b.Unsubscribe(s)
		b.Unsubscribe(s)

		_, open := <-s.Done
		assert.False(t, open)
		assert.Equal(t, 0, b.SubscriberCount())
	})

	t.Run("full subscriber buffer drops instead of blocking", func(t *testing.T) {
		b := NewBroker(nil, "relay:events")
		defer b.Close()

		s := b.Subscribe()
		done := make(chan struct{})
		go func() {
			for i := 0; i < cap(s.Events)+10; i++ {
				b.Publish(Event{Type: EventRemoteJoined})
			}
			close(done)
		}()

		select {
		case <-done:
		case <-time.After(time.Second):
			t.Fatal("publish blocked on a full subscriber")
		}
		assert.Len(t, s.Events, cap(s.Events))
	})

	t.Run("close releases subscribers", func(t *testing.T) {
		b := NewBroker(nil, "relay:events")
		s := b.Subscribe()

		b.Close()

		select {
		case <-s.Done:
		default:
			require.Fail(t, "subscriber not released on close")
		}
		b.Unsubscribe(s)
	})
}
