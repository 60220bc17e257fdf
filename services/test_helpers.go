package services

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/trustmesh/go-signals/common/consensus"
	"github.com/trustmesh/go-signals/models"
)

type FakeMirrorReader struct {
	lock     sync.Mutex
	messages map[string][]*models.RawMessage
	err      error
	sinces   []string

	// gate, when set, blocks fetches until it is closed or receives
	gate chan struct{}
}

func NewFakeMirrorReader() *FakeMirrorReader {
	return &FakeMirrorReader{messages: make(map[string][]*models.RawMessage)}
}

func (f *FakeMirrorReader) Publish(raws ...*models.RawMessage) {
	f.lock.Lock()
	defer f.lock.Unlock()
	for _, raw := range raws {
		f.messages[raw.TopicId] = append(f.messages[raw.TopicId], raw)
	}
}

func (f *FakeMirrorReader) FailWith(err error) {
	f.lock.Lock()
	defer f.lock.Unlock()
	f.err = err
}

func (f *FakeMirrorReader) FetchMessages(ctx context.Context, topicId, since string) ([]*models.RawMessage, error) {
	f.lock.Lock()
	gate := f.gate
	f.sinces = append(f.sinces, since)
	f.lock.Unlock()

	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	f.lock.Lock()
	defer f.lock.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	raws := make([]*models.RawMessage, 0)
	for _, raw := range f.messages[topicId] {
		if len(since) == 0 || consensus.Compare(raw.ConsensusTimestamp, since) > 0 {
			copied := *raw
			raws = append(raws, &copied)
		}
	}
	return raws, nil
}

func (f *FakeMirrorReader) Sinces() []string {
	f.lock.Lock()
	defer f.lock.Unlock()
	sinces := make([]string, len(f.sinces))
	copy(sinces, f.sinces)
	return sinces
}

type FakePublisher struct {
	messages    chan any
	numAttempts int
	errorOn     int
}

func (f *FakePublisher) GetUrl() string {
	return "https://sqs.local/signals-test-signal"
}

func (f *FakePublisher) SendMessage(ctx context.Context, event any) (string, error) {
	select {
	case <-ctx.Done():
		return "", errors.New("context cancelled")
	default:
		f.numAttempts = f.numAttempts + 1
		if f.numAttempts == f.errorOn {
			return "", errors.New("TestError")
		}
		f.messages <- event
		return "msgId", nil
	}
}

type MockMetricService struct {
	lock   sync.Mutex
	counts map[models.MetricName]int
	dists  map[models.MetricName][]int
}

func NewMockMetricService() *MockMetricService {
	return &MockMetricService{
		counts: make(map[models.MetricName]int),
		dists:  make(map[models.MetricName][]int),
	}
}

func (m *MockMetricService) Count(ctx context.Context, name models.MetricName, val int) error {
	m.lock.Lock()
	defer m.lock.Unlock()
	m.counts[name] += val
	return nil
}

func (m *MockMetricService) Gauge(ctx context.Context, name models.MetricName, monitor models.ResourceMonitor) error {
	return nil
}

func (m *MockMetricService) Distribution(ctx context.Context, name models.MetricName, val int) error {
	m.lock.Lock()
	defer m.lock.Unlock()
	m.dists[name] = append(m.dists[name], val)
	return nil
}

func (m *MockMetricService) Shutdown(ctx context.Context) {}

func (m *MockMetricService) CountOf(name models.MetricName) int {
	m.lock.Lock()
	defer m.lock.Unlock()
	return m.counts[name]
}

type FakeNotifier struct {
	lock     sync.Mutex
	alerts   []string
	warnings []string
}

func (f *FakeNotifier) SendAlert(title, desc string) error {
	f.lock.Lock()
	defer f.lock.Unlock()
	f.alerts = append(f.alerts, title+": "+desc)
	return nil
}

func (f *FakeNotifier) SendWarning(title, desc string) error {
	f.lock.Lock()
	defer f.lock.Unlock()
	f.warnings = append(f.warnings, title+": "+desc)
	return nil
}

func (f *FakeNotifier) Alerts() []string {
	f.lock.Lock()
	defer f.lock.Unlock()
	return append([]string(nil), f.alerts...)
}

func (f *FakeNotifier) Warnings() []string {
	f.lock.Lock()
	defer f.lock.Unlock()
	return append([]string(nil), f.warnings...)
}

// FailingKv fails writes once failWrites is set. Reads pass through.
type FailingKv struct {
	models.KeyValueRepository
	failWrites bool
}

func (f *FailingKv) Set(ctx context.Context, key, value string) error {
	if f.failWrites {
		return errors.New("kv unavailable")
	}
	return f.KeyValueRepository.Set(ctx, key, value)
}

func waitForMessages(messageChannel chan any, n int) []any {
	messages := make([]any, n)
	for i := 0; i < n; i++ {
		message := <-messageChannel
		messages[i] = message
	}
	return messages
}

// rawJson builds a mirror message whose body is the base64 encoded JSON of payload.
func rawJson(topicId string, seq int64, consensusTs string, payload any) *models.RawMessage {
	data, err := json.Marshal(payload)
	if err != nil {
		panic(fmt.Sprintf("test payload: %v", err))
	}
	return &models.RawMessage{
		TopicId:            topicId,
		ConsensusTimestamp: consensusTs,
		SequenceNumber:     seq,
		Message:            base64.StdEncoding.EncodeToString(data),
	}
}
