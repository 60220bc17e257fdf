package services

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/trustmesh/go-signals/models"
)

const minPendingInstances = models.DefaultMaxPendingInstances

// RecognitionCache reconciles recognition instances with their definitions, which arrive on independent
// streams in any order. Unresolved instances wait in a bounded FIFO until their definition shows up.
type RecognitionCache struct {
	lock          sync.RWMutex
	definitions   map[string]*models.Definition
	slugs         map[string]string
	pending       []*models.Instance
	maxPending    int
	evicted       int64
	logger        models.Logger
	metricService models.MetricService
	now           func() time.Time
}

func NewRecognitionCache(logger models.Logger, metricService models.MetricService) *RecognitionCache {
	return &RecognitionCache{
		definitions:   make(map[string]*models.Definition),
		slugs:         make(map[string]string),
		pending:       make([]*models.Instance, 0),
		maxPending:    models.DefaultMaxPendingInstances,
		logger:        logger,
		metricService: metricService,
		now:           time.Now,
	}
}

// UpsertDefinition indexes the definition by id and slug. A later definition with the same id replaces
// the earlier one.
func (c *RecognitionCache) UpsertDefinition(def *models.Definition) {
	if def == nil || len(def.Id) == 0 {
		return
	}
	c.lock.Lock()
	defer c.lock.Unlock()
	if previous, found := c.definitions[def.Id]; found && len(previous.Slug) > 0 && previous.Slug != def.Slug {
		// The old slug may have been claimed by another definition since
		if c.slugs[previous.Slug] == def.Id {
			delete(c.slugs, previous.Slug)
		}
	}
	c.definitions[def.Id] = def
	if len(def.Slug) > 0 {
		c.slugs[def.Slug] = def.Id
	}
}

// ResolveInstance looks the referenced definition up by id, then by slug. It never queues.
func (c *RecognitionCache) ResolveInstance(instance *models.Instance) *models.ResolvedRecognition {
	c.lock.RLock()
	defer c.lock.RUnlock()
	return c.resolve(instance)
}

func (c *RecognitionCache) resolve(instance *models.Instance) *models.ResolvedRecognition {
	if instance == nil {
		return nil
	}
	def := c.lookup(instance.RecognitionId)
	if def == nil {
		return nil
	}
	return &models.ResolvedRecognition{
		Owner:      instance.Owner,
		Actor:      instance.Actor,
		Note:       instance.Note,
		Definition: def,
	}
}

func (c *RecognitionCache) lookup(idOrSlug string) *models.Definition {
	if def, found := c.definitions[idOrSlug]; found {
		return def
	}
	if id, found := c.slugs[idOrSlug]; found {
		return c.definitions[id]
	}
	return nil
}

// QueueInstance appends an unresolved instance. When the queue is at or above its bound, the oldest 10%
// of the current entries are evicted first. The count truncates, so queues under 10 entries evict
// nothing and grow one past the bound per overflowing insert. This is a memory-bound heuristic rather
// than a hard ceiling; it is kept as-is for compatibility with existing deployments.
func (c *RecognitionCache) QueueInstance(instance *models.Instance) int {
	if instance == nil {
		return 0
	}
	c.lock.Lock()
	pruned := 0
	if len(c.pending) >= c.maxPending {
		pruned = c.prune(len(c.pending) / 10)
	}
	c.pending = append(c.pending, instance)
	c.lock.Unlock()

	if pruned > 0 {
		c.logger.Infof("recognition: evicted %d oldest pending instances", pruned)
		c.metricService.Count(context.Background(), models.MetricName_RecognitionPendingEvicted, pruned)
	}
	return pruned
}

// prune drops the n oldest pending entries. Callers hold the write lock.
func (c *RecognitionCache) prune(n int) int {
	if n <= 0 {
		return 0
	}
	if n > len(c.pending) {
		n = len(c.pending)
	}
	remaining := make([]*models.Instance, len(c.pending)-n)
	copy(remaining, c.pending[n:])
	c.pending = remaining
	c.evicted += int64(n)
	return n
}

// ReprocessPending publishes every pending instance that now resolves and keeps the rest queued, in
// order. Events are handed to the sink after the cache lock is released so sink subscribers may read
// the cache.
func (c *RecognitionCache) ReprocessPending(sink models.EventSink) int {
	c.lock.Lock()
	resolved := make([]*models.SignalEvent, 0)
	remaining := make([]*models.Instance, 0, len(c.pending))
	for _, instance := range c.pending {
		if resolution := c.resolve(instance); resolution != nil {
			resolved = append(resolved, c.recognitionEvent(instance, resolution))
		} else {
			remaining = append(remaining, instance)
		}
	}
	c.pending = remaining
	c.lock.Unlock()

	published := 0
	for _, event := range resolved {
		if sink.Add(event) {
			published++
		}
	}
	if len(resolved) > 0 {
		c.logger.Debugf("recognition: resolved %d pending instances, %d still pending", len(resolved), len(remaining))
		c.metricService.Count(context.Background(), models.MetricName_RecognitionResolved, len(resolved))
	}
	return published
}

// RecognitionEvent materializes a resolved instance as a canonical event.
func (c *RecognitionCache) RecognitionEvent(instance *models.Instance, resolution *models.ResolvedRecognition) *models.SignalEvent {
	return c.recognitionEvent(instance, resolution)
}

func (c *RecognitionCache) recognitionEvent(instance *models.Instance, resolution *models.ResolvedRecognition) *models.SignalEvent {
	id := instance.MessageId
	if len(id) == 0 {
		id = fallbackEventId(instance.TopicId, instance.ConsensusTimestamp, instance.BatchIndex)
	}
	actor := instance.Actor
	if len(actor) == 0 {
		actor = "unknown"
	}
	timestamp := instance.Timestamp
	if timestamp == 0 {
		timestamp = c.now().UnixMilli()
	}
	source := instance.Source
	if len(source) == 0 {
		source = models.SignalSource_Hcs
	}
	return &models.SignalEvent{
		Id:                 id,
		Type:               models.SignalType_RecognitionMint,
		Class:              models.SignalClass_Recognition,
		Actor:              actor,
		Target:             instance.Owner,
		Timestamp:          timestamp,
		ConsensusTimestamp: instance.ConsensusTimestamp,
		TopicId:            instance.TopicId,
		Source:             source,
		Status:             models.SignalStatus_Onchain,
		Payload: map[string]any{
			"recognitionId": instance.RecognitionId,
			"owner":         resolution.Owner,
			"actor":         resolution.Actor,
			"note":          resolution.Note,
			"title":         resolution.Definition.Title,
			"definition":    resolution.Definition,
		},
	}
}

// SetMaxPendingInstances sets the pending bound, clamped to at least 100. Shrinking below the current
// queue length evicts the oldest excess immediately.
func (c *RecognitionCache) SetMaxPendingInstances(n int) int {
	if n < minPendingInstances {
		n = minPendingInstances
	}
	c.lock.Lock()
	c.maxPending = n
	pruned := 0
	if len(c.pending) > n {
		pruned = c.prune(len(c.pending) - n)
	}
	c.lock.Unlock()

	if pruned > 0 {
		c.metricService.Count(context.Background(), models.MetricName_RecognitionPendingEvicted, pruned)
	}
	return n
}

func (c *RecognitionCache) GetStats() models.CacheStats {
	c.lock.RLock()
	defer c.lock.RUnlock()
	return c.stats()
}

func (c *RecognitionCache) stats() models.CacheStats {
	return models.CacheStats{
		Definitions:         len(c.definitions),
		PendingInstances:    len(c.pending),
		MaxPendingInstances: c.maxPending,
		Evicted:             c.evicted,
	}
}

func (c *RecognitionCache) Debug() models.CacheDebug {
	c.lock.RLock()
	defer c.lock.RUnlock()
	definitionIds := make([]string, 0, len(c.definitions))
	for id := range c.definitions {
		definitionIds = append(definitionIds, id)
	}
	sort.Strings(definitionIds)
	pendingIds := make([]string, len(c.pending))
	for idx, instance := range c.pending {
		pendingIds[idx] = instance.RecognitionId
	}
	return models.CacheDebug{CacheStats: c.stats(), DefinitionIds: definitionIds, PendingIds: pendingIds}
}

// GetDefinition accepts an id or a slug.
func (c *RecognitionCache) GetDefinition(idOrSlug string) *models.Definition {
	c.lock.RLock()
	defer c.lock.RUnlock()
	return c.lookup(idOrSlug)
}

func (c *RecognitionCache) GetAllDefinitions() []*models.Definition {
	c.lock.RLock()
	defer c.lock.RUnlock()
	defs := make([]*models.Definition, 0, len(c.definitions))
	for _, def := range c.definitions {
		defs = append(defs, def)
	}
	sort.Slice(defs, func(i, j int) bool { return defs[i].Id < defs[j].Id })
	return defs
}

// PendingInstances returns a copy of the queue, oldest first.
func (c *RecognitionCache) PendingInstances() []*models.Instance {
	c.lock.RLock()
	defer c.lock.RUnlock()
	pending := make([]*models.Instance, len(c.pending))
	copy(pending, c.pending)
	return pending
}

// RestorePending queues previously persisted instances, oldest first, under the usual bound.
func (c *RecognitionCache) RestorePending(instances []*models.Instance) {
	for _, instance := range instances {
		c.QueueInstance(instance)
	}
}

// Clear drops definitions and pending instances. The bound and eviction counter are kept.
func (c *RecognitionCache) Clear() {
	c.lock.Lock()
	defer c.lock.Unlock()
	c.definitions = make(map[string]*models.Definition)
	c.slugs = make(map[string]string)
	c.pending = make([]*models.Instance, 0)
}

type pendingMonitor struct {
	cache *RecognitionCache
}

func (m pendingMonitor) GetValue(context.Context) (int, error) {
	return m.cache.GetStats().PendingInstances, nil
}

// PendingMonitor exposes the pending queue length for gauges.
func (c *RecognitionCache) PendingMonitor() models.ResourceMonitor {
	return pendingMonitor{c}
}
