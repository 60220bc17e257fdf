package services

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/trustmesh/go-signals/models"
)

// EventFanout forwards every event inserted into the signal store to a queue. Store listeners run on the
// writer's goroutine, so events are handed over on a buffered channel and published by a single worker.
// When the buffer is full the event is dropped and counted.
type EventFanout struct {
	publisher     models.QueuePublisher
	logger        models.Logger
	metricService models.MetricService
	events        chan *models.SignalEvent
	closeLock     sync.RWMutex
	closed        bool
	dropped       atomic.Int64
	unsubscribe   func()
	wg            sync.WaitGroup
}

func NewEventFanout(publisher models.QueuePublisher, logger models.Logger, metricService models.MetricService, bufferSize int) *EventFanout {
	if bufferSize <= 0 {
		bufferSize = models.DefaultFanoutBuffer
	}
	return &EventFanout{
		publisher:     publisher,
		logger:        logger,
		metricService: metricService,
		events:        make(chan *models.SignalEvent, bufferSize),
	}
}

// Start subscribes to the store and publishes until Stop is called. Publish errors are logged and the
// event is not retried; consumers can rebuild from the ledger.
func (f *EventFanout) Start(ctx context.Context, store *SignalStore) {
	f.unsubscribe = store.Subscribe(f.onStoreChange)
	f.wg.Add(1)
	go func() {
		defer f.wg.Done()
		for event := range f.events {
			pubCtx, cancel := context.WithTimeout(ctx, models.DefaultHttpWaitTime)
			if _, err := f.publisher.SendMessage(pubCtx, event); err != nil {
				f.logger.Errorf("fanout: failed to publish %s to %s: %v", event.Id, f.publisher.GetUrl(), err)
			}
			cancel()
		}
	}()
	f.logger.Infof("fanout: publishing stored events to %s", f.publisher.GetUrl())
}

func (f *EventFanout) onStoreChange(change StoreChange) {
	if change.Event == nil {
		return
	}
	// A notification already in flight can arrive after Stop has unsubscribed
	f.closeLock.RLock()
	defer f.closeLock.RUnlock()
	if f.closed {
		return
	}
	select {
	case f.events <- change.Event:
	default:
		f.dropped.Add(1)
		f.metricService.Count(context.Background(), models.MetricName_FanoutDropped, 1)
	}
}

// Stop unsubscribes and waits for buffered events to be published.
func (f *EventFanout) Stop() {
	if f.unsubscribe != nil {
		f.unsubscribe()
	}
	f.closeLock.Lock()
	if !f.closed {
		f.closed = true
		close(f.events)
	}
	f.closeLock.Unlock()
	f.wg.Wait()
}

func (f *EventFanout) Dropped() int64 {
	return f.dropped.Load()
}
