package services

import (
	"sync"

	"github.com/trustmesh/go-signals/models"
)

var _ models.EventSink = &SignalStore{}

// StoreChange is delivered to subscribers. Event is nil when the store was cleared.
type StoreChange struct {
	Event   *models.SignalEvent
	Cleared bool
}

type Listener func(change StoreChange)

type subscription struct {
	id       int
	listener Listener
}

// SignalStore is the de-duplicated, insertion-ordered log of canonical events. All mutation goes
// through its methods. Subscribers are called synchronously on the mutating goroutine after the store
// lock is released, so they may read the store.
type SignalStore struct {
	lock          sync.RWMutex
	events        []*models.SignalEvent
	ids           map[string]struct{}
	subsLock      sync.Mutex
	subscriptions []subscription
	nextSubId     int
	logger        models.Logger
}

func NewSignalStore(logger models.Logger) *SignalStore {
	return &SignalStore{
		events: make([]*models.SignalEvent, 0),
		ids:    make(map[string]struct{}),
		logger: logger,
	}
}

// Add inserts the event unless its id is already present. Returns whether it was inserted.
func (s *SignalStore) Add(event *models.SignalEvent) bool {
	if event == nil || len(event.Id) == 0 {
		return false
	}
	s.lock.Lock()
	if _, found := s.ids[event.Id]; found {
		s.lock.Unlock()
		return false
	}
	s.ids[event.Id] = struct{}{}
	s.events = append(s.events, event)
	s.lock.Unlock()

	s.notify(StoreChange{Event: event})
	return true
}

// GetAll returns events in insertion order. Insertion order is not consensus order across sources.
func (s *SignalStore) GetAll() []*models.SignalEvent {
	s.lock.RLock()
	defer s.lock.RUnlock()
	events := make([]*models.SignalEvent, len(s.events))
	copy(events, s.events)
	return events
}

func (s *SignalStore) GetByType(signalType models.SignalType) []*models.SignalEvent {
	return s.filter(func(event *models.SignalEvent) bool { return event.Type == signalType })
}

func (s *SignalStore) GetByClass(class models.SignalClass) []*models.SignalEvent {
	return s.filter(func(event *models.SignalEvent) bool { return event.Class == class })
}

func (s *SignalStore) filter(match func(event *models.SignalEvent) bool) []*models.SignalEvent {
	s.lock.RLock()
	defer s.lock.RUnlock()
	events := make([]*models.SignalEvent, 0)
	for _, event := range s.events {
		if match(event) {
			events = append(events, event)
		}
	}
	return events
}

func (s *SignalStore) Has(id string) bool {
	s.lock.RLock()
	defer s.lock.RUnlock()
	_, found := s.ids[id]
	return found
}

func (s *SignalStore) Len() int {
	s.lock.RLock()
	defer s.lock.RUnlock()
	return len(s.events)
}

func (s *SignalStore) Summary() models.StoreSummary {
	s.lock.RLock()
	defer s.lock.RUnlock()
	summary := models.StoreSummary{
		CountsByType: make(map[models.SignalType]int),
		CountsBySource: map[models.SignalSource]int{
			models.SignalSource_Hcs:       0,
			models.SignalSource_HcsCached: 0,
		},
		Total: len(s.events),
	}
	for _, event := range s.events {
		summary.CountsByType[event.Type]++
		summary.CountsBySource[event.Source]++
		if event.Timestamp > summary.LastTimestamp {
			summary.LastTimestamp = event.Timestamp
		}
	}
	return summary
}

func (s *SignalStore) Clear() {
	s.lock.Lock()
	s.events = make([]*models.SignalEvent, 0)
	s.ids = make(map[string]struct{})
	s.lock.Unlock()

	s.notify(StoreChange{Cleared: true})
}

// Subscribe registers a listener and returns a function that removes it. Calling the returned function
// more than once is harmless.
func (s *SignalStore) Subscribe(listener Listener) func() {
	s.subsLock.Lock()
	defer s.subsLock.Unlock()
	id := s.nextSubId
	s.nextSubId++
	s.subscriptions = append(s.subscriptions, subscription{id, listener})
	return func() {
		s.subsLock.Lock()
		defer s.subsLock.Unlock()
		for idx, sub := range s.subscriptions {
			if sub.id == id {
				s.subscriptions = append(s.subscriptions[:idx:idx], s.subscriptions[idx+1:]...)
				return
			}
		}
	}
}

func (s *SignalStore) notify(change StoreChange) {
	s.subsLock.Lock()
	subs := make([]subscription, len(s.subscriptions))
	copy(subs, s.subscriptions)
	s.subsLock.Unlock()

	for _, sub := range subs {
		s.safeNotify(sub, change)
	}
}

// A panicking listener must not take the writer down with it.
func (s *SignalStore) safeNotify(sub subscription, change StoreChange) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Errorf("signals: listener %d panicked: %v", sub.id, r)
		}
	}()
	sub.listener(change)
}
