package broadcast

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHubDeliversToTopicSubscribers(t *testing.T) {
	h := NewHub(nil)

	ch, cancel := h.Subscribe("chat:abc", "client1")
	defer cancel()
	other, cancelOther := h.Subscribe("chat:xyz", "client2")
	defer cancelOther()

	h.Publish(Event{Topic: "chat:abc", Type: "message_processed", Payload: "hello"})

	evt := <-ch
	assert.Equal(t, "message_processed", evt.Type)
	assert.Equal(t, "hello", evt.Payload)
	assert.Empty(t, other)
}

func TestHubCancelClosesChannel(t *testing.T) {
	h := NewHub(nil)
	ch, cancel := h.Subscribe("chat:abc", "client1")
	cancel()

	_, open := <-ch
	assert.False(t, open)

	// Publishing after cancel must not panic.
	h.Publish(Event{Topic: "chat:abc", Type: "message_processed"})
}

func TestHubDropsEventsForSlowSubscriber(t *testing.T) {
	h := NewHub(nil)
	ch, cancel := h.Subscribe("chat:abc", "slow")
	defer cancel()

	// Overfill the buffer; Publish must never block.
	for i := 0; i < 100; i++ {
		h.Publish(Event{Topic: "chat:abc", Type: "tick", Payload: i})
	}

	require.NotEmpty(t, ch)
	assert.LessOrEqual(t, len(ch), 16)
}

func TestHubMultipleSubscribersSameTopic(t *testing.T) {
	h := NewHub(nil)
	ch1, cancel1 := h.Subscribe("global", "a")
	defer cancel1()
	ch2, cancel2 := h.Subscribe("global", "b")
	defer cancel2()

	h.Publish(Event{Topic: "global", Type: "conversation_created"})

	assert.Len(t, ch1, 1)
	assert.Len(t, ch2, 1)
}
