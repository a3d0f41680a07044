package eventbus

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/TinyCloudLabs/tinycloud-node/pkg/tctypes"
)

func TestBrokerDeliversToSubscriber(t *testing.T) {
	b := NewBroker()
	b.Start()
	t.Cleanup(b.Stop)

	sub := b.Subscribe()
	defer b.Unsubscribe(sub)
	assert.Equal(t, 1, b.SubscriberCount())

	b.Publish(&Event{
		Type:     InvocationCommitted,
		Space:    tctypes.SpaceID("tinycloud:pkh:eip155:1:0xAAAA:default"),
		EventCID: "bafy123",
		Actor:    tctypes.DID("did:key:zInvoker"),
	})

	select {
	case ev := <-sub:
		assert.Equal(t, InvocationCommitted, ev.Type)
		assert.Equal(t, "bafy123", ev.EventCID)
		assert.False(t, ev.Timestamp.IsZero())
	case <-time.After(time.Second):
		t.Fatal("event not delivered")
	}
}

func TestBrokerUnsubscribeClosesChannel(t *testing.T) {
	b := NewBroker()
	b.Start()
	t.Cleanup(b.Stop)

	sub := b.Subscribe()
	b.Unsubscribe(sub)
	assert.Equal(t, 0, b.SubscriberCount())

	_, ok := <-sub
	assert.False(t, ok, "channel should be closed after Unsubscribe")
}

func TestBrokerPublishOnNilIsNoop(t *testing.T) {
	var b *Broker
	require.NotPanics(t, func() {
		b.Publish(&Event{Type: SpaceCreated})
	})
}

func TestBrokerDropsOnFullSubscriberBuffer(t *testing.T) {
	b := NewBroker()
	b.Start()
	t.Cleanup(b.Stop)

	sub := b.Subscribe()
	defer b.Unsubscribe(sub)

	for i := 0; i < 200; i++ {
		b.Publish(&Event{Type: DelegationCommitted})
	}

	// Draining should not block forever even though far fewer than 200
	// events fit in the subscriber's buffer.
	time.Sleep(50 * time.Millisecond)
	drained := 0
	for {
		select {
		case <-sub:
			drained++
		default:
			assert.Greater(t, 200, drained)
			return
		}
	}
}
