package event_test

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/javajoker/imi-licensing/internal/event"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func TestSubscribeReceivesPublishedEvent(t *testing.T) {
	eb := event.NewEventBus(nil, nil)
	defer eb.Stop()

	_, ch := eb.Subscribe(event.LicenseApproved)
	eb.Publish(event.LicenseApproved, event.NewEvent(event.LicenseApproved, event.LicenseEvent{Status: "approved"}))

	select {
	case evt := <-ch:
		data, ok := evt.Data.(event.LicenseEvent)
		require.True(t, ok)
		assert.Equal(t, "approved", data.Status)
		assert.Equal(t, event.LicenseApproved, evt.Type)
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for event")
	}
}

func TestPublishAsyncDeliversToHandlers(t *testing.T) {
	reg := prometheus.NewRegistry()
	eb := event.NewEventBus(reg, nil)

	var wg sync.WaitGroup
	var got atomic.Int32
	wg.Add(3)
	eb.SubscribeFunc(event.TransactionCompleted, func(event.Event) {
		got.Add(1)
		wg.Done()
	})

	for i := 0; i < 3; i++ {
		assert.True(t, eb.PublishAsync(event.TransactionCompleted, event.NewEvent(event.TransactionCompleted, i)))
	}
	wg.Wait()
	eb.Stop()

	assert.Equal(t, int32(3), got.Load())
	count, err := testutil.GatherAndCount(reg, "imi_event_published_total")
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestPanickingHandlerKeepsReceiving(t *testing.T) {
	eb := event.NewEventBus(nil, nil)

	var wg sync.WaitGroup
	wg.Add(2)
	calls := 0
	eb.SubscribeFunc(event.LicenseRevoked, func(event.Event) {
		calls++
		defer wg.Done()
		if calls == 1 {
			panic("first call fails")
		}
	})

	eb.Publish(event.LicenseRevoked, event.NewEvent(event.LicenseRevoked, nil))
	eb.Publish(event.LicenseRevoked, event.NewEvent(event.LicenseRevoked, nil))
	wg.Wait()
	eb.Stop()

	assert.Equal(t, 2, calls)
}

func TestUnsubscribeClosesChannel(t *testing.T) {
	eb := event.NewEventBus(nil, nil)
	defer eb.Stop()

	id, ch := eb.Subscribe(event.AuthorizationIssued)
	eb.Unsubscribe(event.AuthorizationIssued, id)

	_, ok := <-ch
	assert.False(t, ok)
}

func TestPublishAsyncAfterStopIsRejected(t *testing.T) {
	eb := event.NewEventBus(nil, nil)
	eb.Stop()
	eb.Stop()

	assert.False(t, eb.PublishAsync(event.LicenseExpired, event.NewEvent(event.LicenseExpired, nil)))
}
