package services

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/trustmesh/go-signals/common/consensus"
	"github.com/trustmesh/go-signals/models"
)

const PollMaxProcessingTime = 3 * time.Minute

// SourcePoller drives incremental polling of every configured source. Each poll step fetches messages
// after the source's watermark, ingests them, and only then advances the watermark, so a step that fails
// partway is retried from the same place.
type SourcePoller struct {
	sources       []models.Source
	mirror        models.MirrorReader
	cursors       *CursorStore
	ingestion     *IngestionService
	cache         *RecognitionCache
	store         *SignalStore
	recognitions  *RecognitionStore
	notifier      models.Notifier
	logger        models.Logger
	metricService models.MetricService
	interval      time.Duration
	loadsLock     sync.Mutex
	loads         map[string]*sourceLoad
	failureLock   sync.Mutex
	failures      map[string]int
}

func NewSourcePoller(
	sources []models.Source,
	mirror models.MirrorReader,
	cursors *CursorStore,
	ingestion *IngestionService,
	cache *RecognitionCache,
	store *SignalStore,
	recognitions *RecognitionStore,
	notifier models.Notifier,
	logger models.Logger,
	metricService models.MetricService,
	interval time.Duration,
) *SourcePoller {
	if interval <= 0 {
		interval = models.DefaultTick
	}
	return &SourcePoller{
		sources:       sources,
		mirror:        mirror,
		cursors:       cursors,
		ingestion:     ingestion,
		cache:         cache,
		store:         store,
		recognitions:  recognitions,
		notifier:      notifier,
		logger:        logger,
		metricService: metricService,
		interval:      interval,
		loads:         make(map[string]*sourceLoad),
		failures:      make(map[string]int),
	}
}

func (p *SourcePoller) Sources() []models.Source {
	sources := make([]models.Source, len(p.sources))
	copy(sources, p.sources)
	return sources
}

func (p *SourcePoller) Source(name string) (models.Source, error) {
	for _, source := range p.sources {
		if source.Name == name {
			return source, nil
		}
	}
	return models.Source{}, fmt.Errorf("poller: %s: %w", name, models.ErrUnknownSource)
}

// sourceLoad tracks the newest load of a source. The commit lock makes the final ticket check and the
// watermark write a single step with respect to resets.
type sourceLoad struct {
	ticket     atomic.Int64
	commitLock sync.Mutex
}

func (p *SourcePoller) load(name string) *sourceLoad {
	p.loadsLock.Lock()
	defer p.loadsLock.Unlock()
	load, found := p.loads[name]
	if !found {
		load = new(sourceLoad)
		p.loads[name] = load
	}
	return load
}

// supersede invalidates any load of the source that is still in flight.
func (p *SourcePoller) supersede(name string) int64 {
	return p.load(name).ticket.Add(1)
}

func (p *SourcePoller) superseded(ctx context.Context, source models.Source, ticket int64, discarded int) bool {
	if p.load(source.Name).ticket.Load() == ticket {
		return false
	}
	p.logger.Debugf("poller: discarding %d messages from superseded load of %s", discarded, source.Name)
	p.metricService.Count(ctx, models.MetricName_PollSuperseded, 1)
	return true
}

// commit advances the watermark unless the load was superseded. A reset holds the same lock while it
// clears the cursor, so a stale load can never write its watermark over the reset.
func (p *SourcePoller) commit(ctx context.Context, source models.Source, ticket int64, watermark string, result models.IngestResult, fetched int) error {
	load := p.load(source.Name)
	load.commitLock.Lock()
	defer load.commitLock.Unlock()
	if p.superseded(ctx, source, ticket, fetched) {
		return models.ErrSuperseded
	}
	if len(result.MaxConsensus) > 0 && consensus.Compare(result.MaxConsensus, watermark) > 0 {
		return p.cursors.Save(ctx, source.Name, result.MaxConsensus)
	}
	return nil
}

// PollOnce runs one poll step for a source. It returns models.ErrSuperseded, without applying anything,
// when another load of the same source started before this one finished.
func (p *SourcePoller) PollOnce(ctx context.Context, source models.Source) (models.IngestResult, error) {
	ticket := p.supersede(source.Name)

	since, err := p.cursors.Load(ctx, source.Name)
	if err != nil {
		return models.IngestResult{}, p.fail(source, err)
	}
	watermark := ""
	signalSource := models.SignalSource_HcsCached
	if since != nil {
		watermark = *since
		signalSource = models.SignalSource_Hcs
	}

	raws, err := p.mirror.FetchMessages(ctx, source.TopicId, watermark)
	if err != nil {
		return models.IngestResult{}, p.fail(source, err)
	}
	if p.superseded(ctx, source, ticket, len(raws)) {
		return models.IngestResult{}, models.ErrSuperseded
	}
	p.metricService.Distribution(ctx, models.MetricName_PollBatchSize, len(raws))
	if len(raws) == 0 {
		p.succeed(source)
		return models.IngestResult{}, nil
	}

	result, err := p.ingestion.Ingest(ctx, source, raws, signalSource)
	if err != nil {
		return result, p.fail(source, err)
	}
	if err = p.commit(ctx, source, ticket, watermark, result, len(raws)); err != nil {
		if errors.Is(err, models.ErrSuperseded) {
			return result, err
		}
		return result, p.fail(source, err)
	}
	p.logger.Infof(
		"poller: %s: fetched=%d inserted=%d duplicates=%d failed=%d watermark=%s",
		source.Name, len(raws), result.Inserted, result.Duplicates, result.Failed, result.MaxConsensus,
	)
	if result.Evicted > 0 {
		pending := p.cache.GetStats().PendingInstances
		p.notify(p.notifier.SendWarning, models.AlertDesc_PendingEvictions, fmt.Sprintf(models.AlertFmt_PendingEvictions, result.Evicted, pending))
	}
	p.succeed(source)
	return result, nil
}

// PollAll polls every source concurrently. Sources are independent: one failing does not cancel the
// others. The first error is returned once all have finished.
func (p *SourcePoller) PollAll(ctx context.Context) error {
	var group errgroup.Group
	for _, source := range p.sources {
		source := source
		group.Go(func() error {
			pollCtx, cancel := context.WithTimeout(ctx, PollMaxProcessingTime)
			defer cancel()
			if _, err := p.PollOnce(pollCtx, source); err != nil && !errors.Is(err, models.ErrSuperseded) {
				p.logger.Errorf("poller: %s (%s): %v", source.Name, source.TopicId, err)
				return err
			}
			return nil
		})
	}
	err := group.Wait()
	p.reprocessPending(ctx)
	return err
}

// Run polls on the configured interval until the context is cancelled.
func (p *SourcePoller) Run(ctx context.Context) {
	p.logger.Infof("poller: polling %d sources every %s", len(p.sources), p.interval)
	for {
		if err := p.PollAll(ctx); err != nil {
			p.logger.Errorf("poller: round failed: %v", err)
		}
		// Sleep even if we had errors so that we don't get stuck in a tight loop
		select {
		case <-ctx.Done():
			p.logger.Infof("poller: stopped")
			return
		case <-time.After(p.interval):
		}
	}
}

// ResetSource clears the source's watermark so the next poll backfills from the beginning. Any load in
// flight is superseded so it cannot write the old watermark back.
func (p *SourcePoller) ResetSource(ctx context.Context, name string) error {
	if _, err := p.Source(name); err != nil {
		return err
	}
	load := p.load(name)
	load.commitLock.Lock()
	defer load.commitLock.Unlock()
	load.ticket.Add(1)
	return p.cursors.Clear(ctx, name)
}

func (p *SourcePoller) ResetAll(ctx context.Context) error {
	// Locks are taken in configuration order
	for _, source := range p.sources {
		load := p.load(source.Name)
		load.commitLock.Lock()
		defer load.commitLock.Unlock()
		load.ticket.Add(1)
	}
	return p.cursors.ClearAll(ctx)
}

func (p *SourcePoller) reprocessPending(ctx context.Context) {
	if p.cache.GetStats().PendingInstances == 0 {
		return
	}
	if published := p.cache.ReprocessPending(p.store); published > 0 && p.recognitions != nil {
		if err := p.recognitions.SavePending(ctx, p.cache.PendingInstances()); err != nil {
			p.logger.Errorf("poller: error saving pending recognitions: %v", err)
		}
	}
}

func (p *SourcePoller) fail(source models.Source, err error) error {
	p.ingestion.RecordFailure(source, err)

	p.failureLock.Lock()
	p.failures[source.Name]++
	streak := p.failures[source.Name]
	p.failureLock.Unlock()

	if streak == models.DefaultFailureStreakAlert {
		p.notify(p.notifier.SendAlert, models.AlertDesc_MirrorFailures, fmt.Sprintf(models.AlertFmt_MirrorFailures, source.Name, source.TopicId, streak, err))
	}
	return fmt.Errorf("poller: %s: %w", source.Name, err)
}

func (p *SourcePoller) succeed(source models.Source) {
	p.ingestion.RecordSuccess(source)
	p.failureLock.Lock()
	defer p.failureLock.Unlock()
	delete(p.failures, source.Name)
}

func (p *SourcePoller) notify(send func(title, desc string) error, title, desc string) {
	if err := send(title, desc); err != nil {
		p.logger.Errorf("poller: error sending notification: %v", err)
	}
}
