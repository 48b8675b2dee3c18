package progress

import (
	"sync"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBroadcaster_SubscriberReceivesEvents(t *testing.T) {
	b := NewBroadcaster(logrus.New())
	sub := b.Subscribe()
	defer b.Unsubscribe(sub)

	b.Publish(Event{RunID: "run-1", Stage: StageScan, Message: "starting"})

	evt := <-sub.Channel
	assert.Equal(t, "run-1", evt.RunID)
	assert.Equal(t, StageScan, evt.Stage)
	assert.False(t, evt.Timestamp.IsZero())
}

func TestBroadcaster_UnsubscribedReceivesNothingNew(t *testing.T) {
	b := NewBroadcaster(logrus.New())
	sub := b.Subscribe()
	b.Unsubscribe(sub)

	b.Publish(Event{RunID: "run-1", Stage: StageScan})
	assert.Empty(t, sub.Channel)
}

func TestBroadcaster_SnapshotKeepsLatestPerStage(t *testing.T) {
	b := NewBroadcaster(logrus.New())
	b.Publish(Event{RunID: "run-1", Stage: StageScan, Processed: 1, Total: 4})
	b.Publish(Event{RunID: "run-1", Stage: StageScan, Processed: 4, Total: 4, Finished: true})
	b.Publish(Event{RunID: "run-2", Stage: StageEnrich, Processed: 1, Total: 2})

	snap := b.Snapshot()
	require.Len(t, snap, 2)
	assert.True(t, snap[StageScan].Finished)
	assert.Equal(t, 1, snap[StageEnrich].Processed)
}

func TestBroadcaster_FullSubscriberDropsInsteadOfBlocking(t *testing.T) {
	b := NewBroadcaster(logrus.New())
	sub := b.Subscribe()
	defer b.Unsubscribe(sub)

	for i := 0; i < cap(sub.Channel)+10; i++ {
		b.Publish(Event{RunID: "run-1", Stage: StageScan, Processed: i})
	}
	assert.Equal(t, cap(sub.Channel), len(sub.Channel))
}

// Publishers and disconnecting subscribers run concurrently in the API;
// neither side may panic or race the other.
func TestBroadcaster_ConcurrentPublishAndUnsubscribe(t *testing.T) {
	b := NewBroadcaster(logrus.New())

	var wg sync.WaitGroup
	done := make(chan struct{})

	wg.Add(1)
	go func() {
		defer wg.Done()
		for {
			select {
			case <-done:
				return
			default:
				b.Publish(Event{RunID: "run-1", Stage: StageScan})
			}
		}
	}()

	for i := 0; i < 200; i++ {
		sub := b.Subscribe()
		b.Unsubscribe(sub)
	}

	close(done)
	wg.Wait()
}

func TestEventPercent(t *testing.T) {
	assert.Equal(t, 0, Event{Total: 0}.Percent())
	assert.Equal(t, 50, Event{Processed: 2, Total: 4}.Percent())
	assert.Equal(t, 100, Event{Processed: 9, Total: 4}.Percent())
	assert.Equal(t, 100, Event{Finished: true}.Percent())
}
