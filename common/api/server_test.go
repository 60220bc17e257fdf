package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trustmesh/go-signals/common/kv"
	"github.com/trustmesh/go-signals/common/loggers"
	"github.com/trustmesh/go-signals/models"
	"github.com/trustmesh/go-signals/services"
)

type testServer struct {
	handler http.Handler
	store   *services.SignalStore
	cursors *services.CursorStore
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	logger := loggers.NewTestLogger()
	metricService := services.NewMockMetricService()
	store := services.NewSignalStore(logger)
	cache := services.NewRecognitionCache(logger, metricService)
	kvStore := kv.NewMemoryStore()
	cursors := services.NewCursorStore(kvStore, logger)
	recognitions := services.NewRecognitionStore(kvStore)
	ingestion := services.NewIngestionService(services.NewNormalizer(logger), store, cache, recognitions, "0.0.5", logger, metricService)
	poller := services.NewSourcePoller(
		[]models.Source{{Name: "contacts", TopicId: "0.0.1"}},
		services.NewFakeMirrorReader(), cursors, ingestion, cache, store, recognitions, &services.FakeNotifier{}, logger, metricService, 0,
	)
	folder := services.NewStateFolder(store, 0)
	t.Cleanup(folder.Close)

	server := NewServer(Services{
		Ingestion:    ingestion,
		Poller:       poller,
		Cursors:      cursors,
		Store:        store,
		Recognitions: cache,
		Folder:       folder,
	}, logger)
	return &testServer{server.Handler(), store, cursors}
}

func (s *testServer) do(t *testing.T, method, path string) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	s.handler.ServeHTTP(rec, httptest.NewRequest(method, path, nil))
	return rec
}

func event(id string, signalType models.SignalType, actor, target string, ts int64) *models.SignalEvent {
	return &models.SignalEvent{
		Id:        id,
		Type:      signalType,
		Class:     models.ClassForType(signalType),
		Actor:     actor,
		Target:    target,
		Timestamp: ts,
		Source:    models.SignalSource_Hcs,
		Status:    models.SignalStatus_Onchain,
	}
}

func TestHealthAndStats(t *testing.T) {
	server := newTestServer(t)
	server.store.Add(event("0.0.1/1", models.SignalType_ContactRequest, "tm-alice", "tm-bob", 1000))

	rec := server.do(t, http.MethodGet, "/health")
	require.Equal(t, http.StatusOK, rec.Code)
	var health models.Health
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&health))
	assert.Equal(t, models.HealthStatus_Idle, health.Status)

	rec = server.do(t, http.MethodGet, "/stats")
	require.Equal(t, http.StatusOK, rec.Code)
	var stats statsResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&stats))
	assert.Equal(t, 1, stats.Store.Total)
	assert.Equal(t, 100, stats.Recognition.MaxPendingInstances)
}

func TestCursorRoutes(t *testing.T) {
	ctx := context.Background()
	server := newTestServer(t)
	require.NoError(t, server.cursors.Save(ctx, "contacts", "1700000000.1"))

	rec := server.do(t, http.MethodGet, "/cursors")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"contacts":"1700000000.1"}`, rec.Body.String())

	tests := map[string]struct {
		path         string
		expectedCode int
	}{
		"unknown source": {path: "/cursors/nope", expectedCode: http.StatusNotFound},
		"known source":   {path: "/cursors/contacts", expectedCode: http.StatusNoContent},
		"all sources":    {path: "/cursors", expectedCode: http.StatusNoContent},
	}
	for name, test := range tests {
		t.Run(name, func(t *testing.T) {
			assert.Equal(t, test.expectedCode, server.do(t, http.MethodDelete, test.path).Code)
		})
	}

	all, err := server.cursors.GetAll(ctx)
	require.NoError(t, err)
	assert.Empty(t, all)
}

func TestSignalsAndViews(t *testing.T) {
	server := newTestServer(t)
	server.store.Add(event("0.0.1/1", models.SignalType_ContactRequest, "tm-alice", "tm-maya-patel", 1000))
	server.store.Add(event("0.0.1/2", models.SignalType_ContactAccept, "tm-maya-patel", "tm-alice", 2000))
	server.store.Add(event("0.0.2/1", models.SignalType_TrustAllocate, "tm-alice", "tm-maya-patel", 3000))

	rec := server.do(t, http.MethodGet, "/signals?type=TRUST_ALLOCATE")
	require.Equal(t, http.StatusOK, rec.Code)
	var signals []models.SignalEvent
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&signals))
	require.Len(t, signals, 1)
	assert.Equal(t, "0.0.2/1", signals[0].Id)

	rec = server.do(t, http.MethodGet, "/signals?limit=2")
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&signals))
	assert.Len(t, signals, 2)

	rec = server.do(t, http.MethodGet, "/views/tm-alice/contacts")
	require.Equal(t, http.StatusOK, rec.Code)
	var contacts []models.BondedContact
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&contacts))
	require.Len(t, contacts, 1)
	assert.Equal(t, "Maya Patel", contacts[0].Handle)
	assert.Equal(t, 1, contacts[0].TrustLevel)

	rec = server.do(t, http.MethodGet, "/views/tm-maya-patel/trust")
	assert.JSONEq(t, `{"allocatedOut":0,"receivedIn":1,"cap":9}`, rec.Body.String())

	rec = server.do(t, http.MethodGet, "/views/tm-alice/levels")
	assert.JSONEq(t, `{"tm-maya-patel":{"allocatedTo":1,"receivedFrom":0}}`, rec.Body.String())

	rec = server.do(t, http.MethodGet, "/views/tm-alice/metrics")
	assert.JSONEq(t, `{"bondedContacts":1,"trustAllocated":1,"trustCapacity":9,"recognitionOwned":0}`, rec.Body.String())

	rec = server.do(t, http.MethodGet, "/views/tm-alice/recent?limit=1")
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&signals))
	require.Len(t, signals, 1)
	assert.Equal(t, models.SignalType_TrustAllocate, signals[0].Type)

	assert.Equal(t, http.StatusOK, server.do(t, http.MethodGet, "/recognitions").Code)
}
