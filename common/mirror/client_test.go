package mirror

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trustmesh/go-signals/common/loggers"
	"github.com/trustmesh/go-signals/models"
)

type countingMetricService struct {
	models.MetricService
	lock   sync.Mutex
	counts map[models.MetricName]int
}

func (m *countingMetricService) Count(ctx context.Context, name models.MetricName, val int) error {
	m.lock.Lock()
	defer m.lock.Unlock()
	if m.counts == nil {
		m.counts = make(map[models.MetricName]int)
	}
	m.counts[name] += val
	return nil
}

func encode(payload string) string {
	return base64.StdEncoding.EncodeToString([]byte(payload))
}

func newTestClient(t *testing.T, handler http.HandlerFunc) (*Client, *countingMetricService) {
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	metricService := &countingMetricService{}
	client, err := NewClient(Opts{BaseUrl: server.URL + "/api/v1", PageSize: 2, RateLimit: 100}, loggers.NewTestLogger(), metricService)
	require.NoError(t, err)
	return client, metricService
}

func TestFetchMessagesFollowsPagination(t *testing.T) {
	var requests []string
	client, metricService := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		requests = append(requests, r.URL.RequestURI())
		assert.Equal(t, "application/json", r.Header.Get("Accept"))
		w.Header().Set("Content-Type", "application/json")
		switch r.URL.Query().Get("page") {
		case "":
			fmt.Fprintf(w, `{"messages":[
				{"consensus_timestamp":"1697040093.500000000","topic_id":"0.0.1","sequence_number":1,"message":"%s"},
				{"consensus_timestamp":"1697040094.000000000","topic_id":"0.0.1","sequence_number":2,"message":"%s"}
			],"links":{"next":"/api/v1/topics/0.0.1/messages?page=2"}}`, encode(`{"type":"A"}`), encode(`{"type":"B"}`))
		case "2":
			fmt.Fprint(w, `{"messages":[
				{"consensus_timestamp":"1697040095.123456789","sequence_number":3,"message":"{\"type\":\"C\"}"}
			],"links":{"next":null}}`)
		}
	})

	messages, err := client.FetchMessages(context.Background(), "0.0.1", "1697040090.000000000")
	require.NoError(t, err)
	require.Len(t, messages, 3)
	assert.Equal(t, "1697040095.123456789", messages[2].ConsensusTimestamp)
	assert.Equal(t, int64(3), messages[2].SequenceNumber)
	// Topic id is filled in when a page omits it.
	assert.Equal(t, "0.0.1", messages[2].TopicId)

	require.Len(t, requests, 2)
	assert.Equal(t, "/api/v1/topics/0.0.1/messages?limit=2&order=asc&timestamp=gt%3A1697040090.000000000", requests[0])
	assert.Equal(t, "/api/v1/topics/0.0.1/messages?page=2", requests[1])
	assert.Equal(t, 2, metricService.counts[models.MetricName_MirrorPageFetched])
}

func TestFetchMessagesWithoutWatermark(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Empty(t, r.URL.Query().Get("timestamp"))
		fmt.Fprint(w, `{"messages":[],"links":{}}`)
	})
	messages, err := client.FetchMessages(context.Background(), "0.0.2", "")
	require.NoError(t, err)
	assert.Empty(t, messages)
}

func TestFetchMessagesStatuses(t *testing.T) {
	tests := map[string]struct {
		status    int
		expectErr bool
	}{
		"Missing topic is empty":  {status: http.StatusNotFound, expectErr: false},
		"Server error propagates": {status: http.StatusInternalServerError, expectErr: true},
		"Rate limited propagates": {status: http.StatusTooManyRequests, expectErr: true},
	}
	for name, test := range tests {
		t.Run(name, func(t *testing.T) {
			client, metricService := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				http.Error(w, "nope", test.status)
			})
			messages, err := client.FetchMessages(context.Background(), "0.0.3", "")
			if test.expectErr {
				require.Error(t, err)
				var statusErr *StatusError
				require.True(t, errors.As(err, &statusErr))
				assert.Equal(t, test.status, statusErr.StatusCode)
				assert.Equal(t, 1, metricService.counts[models.MetricName_MirrorFetchError])
				assert.Nil(t, messages)
			} else {
				require.NoError(t, err)
				assert.Empty(t, messages)
			}
		})
	}
}

func TestFetchMessagesCancelled(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"messages":[]}`)
	})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := client.FetchMessages(ctx, "0.0.4", "")
	require.Error(t, err)
}

func TestValidTopicId(t *testing.T) {
	tests := map[string]struct {
		topicId string
		valid   bool
	}{
		"entity id":     {topicId: "0.0.12345", valid: true},
		"empty":         {topicId: "", valid: false},
		"two parts":     {topicId: "0.12345", valid: false},
		"not numeric":   {topicId: "0.0.abc", valid: false},
		"trailing junk": {topicId: "0.0.1/", valid: false},
	}
	for name, test := range tests {
		t.Run(name, func(t *testing.T) {
			assert.Equal(t, test.valid, ValidTopicId(test.topicId))
		})
	}
}
