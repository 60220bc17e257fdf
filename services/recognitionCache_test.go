package services

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trustmesh/go-signals/common/kv"
	"github.com/trustmesh/go-signals/common/loggers"
	"github.com/trustmesh/go-signals/models"
)

func newTestCache() (*RecognitionCache, *MockMetricService) {
	metricService := NewMockMetricService()
	return NewRecognitionCache(loggers.NewTestLogger(), metricService), metricService
}

func TestResolveByIdOrSlug(t *testing.T) {
	cache, _ := newTestCache()
	cache.UpsertDefinition(&models.Definition{Id: "def-1", Slug: "innovator", Title: "Innovator"})

	tests := map[string]struct {
		reference string
		resolves  bool
	}{
		"by id":   {reference: "def-1", resolves: true},
		"by slug": {reference: "innovator", resolves: true},
		"unknown": {reference: "mentor", resolves: false},
	}
	for name, test := range tests {
		t.Run(name, func(t *testing.T) {
			resolution := cache.ResolveInstance(&models.Instance{Owner: "tm-bob", RecognitionId: test.reference})
			if test.resolves {
				require.NotNil(t, resolution)
				assert.Equal(t, "Innovator", resolution.Definition.Title)
				assert.Equal(t, "tm-bob", resolution.Owner)
			} else {
				assert.Nil(t, resolution)
			}
		})
	}
	assert.Equal(t, 0, cache.GetStats().PendingInstances)
}

func TestUpsertReplacesDefinition(t *testing.T) {
	cache, _ := newTestCache()
	cache.UpsertDefinition(&models.Definition{Id: "def-1", Slug: "old", Title: "Old"})
	cache.UpsertDefinition(&models.Definition{Id: "def-1", Slug: "new", Title: "New"})

	assert.Equal(t, "New", cache.GetDefinition("def-1").Title)
	assert.Equal(t, "New", cache.GetDefinition("new").Title)
	assert.Nil(t, cache.GetDefinition("old"))
	assert.Len(t, cache.GetAllDefinitions(), 1)
}

func TestUpsertKeepsSlugClaimedByAnotherDefinition(t *testing.T) {
	cache, _ := newTestCache()
	cache.UpsertDefinition(&models.Definition{Id: "def-1", Slug: "shared", Title: "First"})
	cache.UpsertDefinition(&models.Definition{Id: "def-2", Slug: "shared", Title: "Second"})
	cache.UpsertDefinition(&models.Definition{Id: "def-1", Slug: "renamed", Title: "First"})

	require.NotNil(t, cache.GetDefinition("shared"))
	assert.Equal(t, "def-2", cache.GetDefinition("shared").Id)
	assert.Equal(t, "def-1", cache.GetDefinition("renamed").Id)
}

func TestPendingThenResolved(t *testing.T) {
	cache, metricService := newTestCache()
	store := NewSignalStore(loggers.NewTestLogger())
	instance := &models.Instance{Owner: "tm-bob", Actor: "tm-alice", RecognitionId: "innovator", TopicId: testTopic, MessageId: testTopic + "/8"}

	assert.Nil(t, cache.ResolveInstance(instance))
	cache.QueueInstance(instance)
	assert.Equal(t, 1, cache.GetStats().PendingInstances)
	assert.Equal(t, 0, store.Len())

	cache.UpsertDefinition(&models.Definition{Id: "innovator", Title: "Innovator"})
	assert.Equal(t, 1, cache.ReprocessPending(store))
	assert.Equal(t, 0, cache.GetStats().PendingInstances)

	events := store.GetByType(models.SignalType_RecognitionMint)
	require.Len(t, events, 1)
	assert.Equal(t, testTopic+"/8", events[0].Id)
	assert.Equal(t, "tm-bob", events[0].Target)
	assert.Equal(t, "tm-alice", events[0].Actor)
	assert.Equal(t, "Innovator", events[0].Payload["title"])
	assert.Equal(t, 1, metricService.CountOf(models.MetricName_RecognitionResolved))

	// Reprocessing again publishes nothing new
	assert.Equal(t, 0, cache.ReprocessPending(store))
}

func TestReprocessKeepsUnresolvedInOrder(t *testing.T) {
	cache, _ := newTestCache()
	store := NewSignalStore(loggers.NewTestLogger())
	for _, reference := range []string{"a", "b", "c", "b"} {
		cache.QueueInstance(&models.Instance{Owner: "tm-bob", RecognitionId: reference})
	}
	cache.UpsertDefinition(&models.Definition{Id: "b", Title: "B"})

	// Neither instance has a message id, so both get distinct synthetic ids
	assert.Equal(t, 2, cache.ReprocessPending(store))
	assert.Equal(t, []string{"a", "c"}, cache.Debug().PendingIds)
}

func TestPendingBound(t *testing.T) {
	tests := map[string]struct {
		max             int
		inserts         int
		expectedPending int
		expectedEvicted int64
	}{
		"small bound truncates to no pruning": {
			max:             3,
			inserts:         4,
			expectedPending: 4,
			expectedEvicted: 0,
		},
		"filling to the bound prunes nothing": {
			max:             100,
			inserts:         100,
			expectedPending: 100,
			expectedEvicted: 0,
		},
		"one past the bound prunes a tenth": {
			max:             100,
			inserts:         101,
			expectedPending: 91,
			expectedEvicted: 10,
		},
	}

	for name, test := range tests {
		t.Run(name, func(t *testing.T) {
			cache, metricService := newTestCache()
			cache.maxPending = test.max
			for i := 0; i < test.inserts; i++ {
				cache.QueueInstance(&models.Instance{Owner: "tm-bob", RecognitionId: fmt.Sprintf("r-%d", i)})
			}
			stats := cache.GetStats()
			assert.Equal(t, test.expectedPending, stats.PendingInstances)
			assert.Equal(t, test.expectedEvicted, stats.Evicted)
			assert.Equal(t, int(test.expectedEvicted), metricService.CountOf(models.MetricName_RecognitionPendingEvicted))
			if test.expectedEvicted > 0 {
				// Oldest entries go first
				assert.Equal(t, fmt.Sprintf("r-%d", test.expectedEvicted), cache.Debug().PendingIds[0])
			}
		})
	}
}

func TestSetMaxPendingInstances(t *testing.T) {
	cache, _ := newTestCache()
	assert.Equal(t, 100, cache.SetMaxPendingInstances(3))
	assert.Equal(t, 100, cache.GetStats().MaxPendingInstances)
	assert.Equal(t, 250, cache.SetMaxPendingInstances(250))

	for i := 0; i < 200; i++ {
		cache.QueueInstance(&models.Instance{Owner: "tm-bob", RecognitionId: fmt.Sprintf("r-%d", i)})
	}
	cache.SetMaxPendingInstances(150)
	stats := cache.GetStats()
	assert.Equal(t, 150, stats.PendingInstances)
	assert.Equal(t, int64(50), stats.Evicted)
}

func TestRecognitionStoreRestore(t *testing.T) {
	ctx := context.Background()
	recognitions := NewRecognitionStore(kv.NewMemoryStore())
	cache, _ := newTestCache()

	require.NoError(t, recognitions.SaveDefinition(ctx, &models.Definition{Id: "innovator", Slug: "inno", Title: "Innovator"}))
	require.NoError(t, recognitions.SavePending(ctx, []*models.Instance{{Owner: "tm-bob", RecognitionId: "mentor"}}))
	require.NoError(t, recognitions.Restore(ctx, cache))

	assert.NotNil(t, cache.GetDefinition("inno"))
	assert.Equal(t, []string{"mentor"}, cache.Debug().PendingIds)

	value, err := cache.PendingMonitor().GetValue(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, value)
}
