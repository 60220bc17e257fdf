package services

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/trustmesh/go-signals/common/consensus"
	"github.com/trustmesh/go-signals/models"
)

type sourceState struct {
	stats     models.IngestStats
	lastError string
}

// IngestionService routes raw mirror messages into the signal store. Messages from the recognition
// topic go through the recognition decoder first; everything else, and any recognition message that is
// neither a definition nor an instance, goes through the normalizer.
type IngestionService struct {
	normalizer       *Normalizer
	store            *SignalStore
	cache            *RecognitionCache
	recognitionStore *RecognitionStore
	recognitionTopic string
	logger           models.Logger
	metricService    models.MetricService
	lock             sync.Mutex
	sources          map[string]*sourceState
	idleAfter        time.Duration
	now              func() time.Time
}

func NewIngestionService(
	normalizer *Normalizer,
	store *SignalStore,
	cache *RecognitionCache,
	recognitionStore *RecognitionStore,
	recognitionTopic string,
	logger models.Logger,
	metricService models.MetricService,
) *IngestionService {
	return &IngestionService{
		normalizer:       normalizer,
		store:            store,
		cache:            cache,
		recognitionStore: recognitionStore,
		recognitionTopic: recognitionTopic,
		logger:           logger,
		metricService:    metricService,
		sources:          make(map[string]*sourceState),
		idleAfter:        models.DefaultIdleAfter,
		now:              time.Now,
	}
}

// Ingest processes one batch for a source. Malformed messages are counted, never returned as errors. An
// error means durable state could not be written and the batch must not be acknowledged.
func (s *IngestionService) Ingest(ctx context.Context, source models.Source, raws []*models.RawMessage, signalSource models.SignalSource) (models.IngestResult, error) {
	result := models.IngestResult{}
	isRecognition := s.IsRecognitionSource(source)
	queued := false
	for idx, raw := range raws {
		if raw == nil {
			continue
		}
		if len(raw.TopicId) == 0 {
			raw.TopicId = source.TopicId
		}
		if _, ok := consensus.Parse(raw.ConsensusTimestamp); ok {
			result.MaxConsensus = consensus.Max(result.MaxConsensus, raw.ConsensusTimestamp)
		}
		if isRecognition {
			handled, pendingChanged, err := s.ingestRecognition(ctx, source.Name, raw, idx, signalSource, &result)
			if err != nil {
				return result, err
			}
			queued = queued || pendingChanged
			if handled {
				continue
			}
		}
		s.addEvent(s.normalizer.NormalizeAt(raw, signalSource, idx), &result)
	}
	if queued && s.recognitionStore != nil {
		if err := s.recognitionStore.SavePending(ctx, s.cache.PendingInstances()); err != nil {
			return result, fmt.Errorf("ingest: save pending recognitions: %w", err)
		}
	}
	s.record(source, signalSource, result)
	return result, nil
}

// ingestRecognition reports whether the decoder claimed the message and whether the pending queue changed.
func (s *IngestionService) ingestRecognition(ctx context.Context, sourceName string, raw *models.RawMessage, index int, signalSource models.SignalSource, result *models.IngestResult) (bool, bool, error) {
	decoded := DecodeRecognition(raw)
	switch {
	case IsDefinition(decoded):
		s.cache.UpsertDefinition(decoded.Definition)
		if s.recognitionStore != nil {
			if err := s.recognitionStore.SaveDefinition(ctx, decoded.Definition); err != nil {
				return true, false, fmt.Errorf("ingest: save definition %s: %w", decoded.Definition.Id, err)
			}
		}
		s.countRecognition(sourceName, func(stats *models.IngestStats) { stats.RecognitionDefinitions++ })
		published := s.cache.ReprocessPending(s.store)
		result.Inserted += published
		return true, published > 0, nil
	case IsInstance(decoded):
		instance := decoded.Instance
		instance.Source = signalSource
		instance.BatchIndex = index
		s.countRecognition(sourceName, func(stats *models.IngestStats) { stats.RecognitionInstances++ })
		if resolution := s.cache.ResolveInstance(instance); resolution != nil {
			s.addEvent(s.cache.RecognitionEvent(instance, resolution), result)
			return true, false, nil
		}
		result.Evicted += s.cache.QueueInstance(instance)
		return true, true, nil
	}
	return false, false, nil
}

func (s *IngestionService) addEvent(event *models.SignalEvent, result *models.IngestResult) {
	if event == nil {
		result.Failed++
		return
	}
	if s.store.Add(event) {
		result.Inserted++
	} else {
		result.Duplicates++
	}
}

func (s *IngestionService) countRecognition(sourceName string, update func(stats *models.IngestStats)) {
	s.lock.Lock()
	defer s.lock.Unlock()
	update(&s.state(sourceName).stats)
}

func (s *IngestionService) record(source models.Source, signalSource models.SignalSource, result models.IngestResult) {
	ctx := context.Background()
	if result.Inserted > 0 {
		s.metricService.Count(ctx, models.MetricName_SignalIngested, result.Inserted)
	}
	if result.Duplicates > 0 {
		s.metricService.Count(ctx, models.MetricName_SignalDuplicate, result.Duplicates)
	}
	if result.Failed > 0 {
		s.metricService.Count(ctx, models.MetricName_SignalFailed, result.Failed)
	}

	s.lock.Lock()
	defer s.lock.Unlock()
	state := s.state(source.Name)
	if signalSource == models.SignalSource_HcsCached {
		state.stats.Backfilled += result.Inserted
	} else {
		state.stats.Streamed += result.Inserted
	}
	state.stats.Duplicates += result.Duplicates
	state.stats.Failed += result.Failed
	if len(result.MaxConsensus) > 0 {
		state.stats.LastConsensusNs = result.MaxConsensus
	}
	if result.Inserted+result.Duplicates+result.Failed > 0 {
		state.stats.LastActivity = s.now().UnixMilli()
	}
	if s.IsRecognitionSource(source) {
		state.stats.RecognitionPending = s.cache.GetStats().PendingInstances
	}
	state.lastError = ""
}

// RecordFailure marks the source degraded until its next successful batch.
func (s *IngestionService) RecordFailure(source models.Source, err error) {
	s.lock.Lock()
	defer s.lock.Unlock()
	state := s.state(source.Name)
	state.stats.Failed++
	state.lastError = err.Error()
}

// RecordSuccess clears the degraded mark after a poll that fetched nothing.
func (s *IngestionService) RecordSuccess(source models.Source) {
	s.lock.Lock()
	defer s.lock.Unlock()
	s.state(source.Name).lastError = ""
}

// state must be called with the lock held.
func (s *IngestionService) state(name string) *sourceState {
	state, found := s.sources[name]
	if !found {
		state = &sourceState{}
		s.sources[name] = state
	}
	return state
}

func (s *IngestionService) Stats() map[string]models.IngestStats {
	s.lock.Lock()
	defer s.lock.Unlock()
	stats := make(map[string]models.IngestStats, len(s.sources))
	for name, state := range s.sources {
		stats[name] = state.stats
	}
	return stats
}

// Health is degraded when any source's last poll failed, ok when any source was active recently, and
// idle otherwise.
func (s *IngestionService) Health() models.Health {
	s.lock.Lock()
	defer s.lock.Unlock()
	health := models.Health{
		Status:  models.HealthStatus_Idle,
		Sources: make(map[string]models.SourceHealth, len(s.sources)),
	}
	cutoff := s.now().Add(-s.idleAfter).UnixMilli()
	degraded := false
	for name, state := range s.sources {
		status := models.HealthStatus_Idle
		switch {
		case len(state.lastError) > 0:
			status = models.HealthStatus_Degraded
			degraded = true
		case state.stats.LastActivity > cutoff:
			status = models.HealthStatus_Ok
			health.Status = models.HealthStatus_Ok
		}
		health.Sources[name] = models.SourceHealth{Status: status, LastError: state.lastError, IngestStats: state.stats}
		health.Total += state.stats.Backfilled + state.stats.Streamed
		health.Failed += state.stats.Failed
	}
	if degraded {
		health.Status = models.HealthStatus_Degraded
	}
	return health
}

// Reset drops all ingest counters. Stored events and cursors are untouched.
func (s *IngestionService) Reset() {
	s.lock.Lock()
	defer s.lock.Unlock()
	s.sources = make(map[string]*sourceState)
}

func (s *IngestionService) IsRecognitionSource(source models.Source) bool {
	return len(s.recognitionTopic) > 0 && source.TopicId == s.recognitionTopic
}
