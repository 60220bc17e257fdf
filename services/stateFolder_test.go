package services

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trustmesh/go-signals/common/consensus"
	"github.com/trustmesh/go-signals/common/loggers"
	"github.com/trustmesh/go-signals/models"
)

var seq int

func signal(signalType models.SignalType, actor, target string, consensusTs string, payload map[string]any) *models.SignalEvent {
	seq++
	millis, _ := consensus.ToMillis(consensusTs)
	return &models.SignalEvent{
		Id:                 fmt.Sprintf("%s/%d", testTopic, seq),
		Type:               signalType,
		Class:              models.ClassForType(signalType),
		Actor:              actor,
		Target:             target,
		Timestamp:          millis,
		ConsensusTimestamp: consensusTs,
		TopicId:            testTopic,
		Source:             models.SignalSource_Hcs,
		Status:             models.SignalStatus_Onchain,
		Payload:            payload,
	}
}

func newTestFolder(events ...*models.SignalEvent) (*SignalStore, *StateFolder) {
	store := NewSignalStore(loggers.NewTestLogger())
	for _, event := range events {
		store.Add(event)
	}
	return store, NewStateFolder(store, DefaultFoldTtl)
}

func TestBondedContacts(t *testing.T) {
	const me = "tm-alex-chen"
	_, folder := newTestFolder(
		signal(models.SignalType_ContactRequest, me, "tm-maya-patel", "100.0", nil),
		signal(models.SignalType_ContactAccept, "tm-maya-patel", me, "101.0", nil),
		// Pending request, never accepted
		signal(models.SignalType_ContactRequest, me, "tm-pending-person", "102.0", nil),
		// Accepted in the other direction
		signal(models.SignalType_ContactRequest, "user-jane_doe", me, "103.0", nil),
		signal(models.SignalType_ContactAccept, me, "user-jane_doe", "104.0", nil),
		signal(models.SignalType_ProfileUpdate, "tm-sam-x", "", "105.0", map[string]any{"displayName": "Samuel"}),
		signal(models.SignalType_ContactAccept, "tm-sam-x", me, "106.0", nil),
		// Self pair
		signal(models.SignalType_ContactAccept, me, me, "107.0", nil),
		// Someone else's bond
		signal(models.SignalType_ContactAccept, "tm-omar-hassan", "tm-kofi-asante", "108.0", nil),
		signal(models.SignalType_TrustAllocate, me, "tm-maya-patel", "109.0", nil),
	)

	contacts := folder.BondedContacts(me)
	require.Len(t, contacts, 3)
	assert.Equal(t, models.BondedContact{PeerId: "tm-maya-patel", Handle: "Maya Patel", BondedAt: 101000, TrustLevel: 1}, contacts[0])
	assert.Equal(t, models.BondedContact{PeerId: "user-jane_doe", Handle: "Jane Doe", BondedAt: 104000}, contacts[1])
	assert.Equal(t, models.BondedContact{PeerId: "tm-sam-x", Handle: "Samuel", BondedAt: 106000}, contacts[2])

	assert.Empty(t, folder.BondedContacts("tm-nobody"))
}

func TestSynthesizeDisplayName(t *testing.T) {
	tests := map[string]struct {
		peerId   string
		expected string
	}{
		"two parts":       {peerId: "tm-jane-doe", expected: "Jane Doe"},
		"extra parts":     {peerId: "tm-jane-van-doe", expected: "Jane Van"},
		"one part":        {peerId: "user-bob", expected: "Bob"},
		"underscores":     {peerId: "alice__smith", expected: "Alice Smith"},
		"account id":      {peerId: "0.0.123456", expected: "123456"},
		"only separators": {peerId: "tm---", expected: "User tm---"},
	}
	for name, test := range tests {
		t.Run(name, func(t *testing.T) {
			assert.Equal(t, test.expected, SynthesizeDisplayName(test.peerId))
		})
	}
}

func TestTrustStatsLatestWins(t *testing.T) {
	const me = "tm-alice"
	_, folder := newTestFolder(
		// Inserted out of consensus order
		signal(models.SignalType_TrustRevoke, me, "tm-bob", "200.000000002", nil),
		signal(models.SignalType_TrustAllocate, me, "tm-bob", "200.000000001", nil),
		signal(models.SignalType_TrustAllocate, me, "tm-carol", "201.0", nil),
		signal(models.SignalType_TrustAllocate, me, "tm-carol", "202.0", nil),
		signal(models.SignalType_TrustAllocate, "tm-dave", me, "203.0", nil),
		signal(models.SignalType_TrustAllocate, "tm-erin", me, "204.0", nil),
		signal(models.SignalType_TrustRevoke, "tm-erin", me, "205.0", nil),
		signal(models.SignalType_TrustAllocate, me, me, "206.0", nil),
	)

	assert.Equal(t, models.TrustStats{AllocatedOut: 1, ReceivedIn: 1, Cap: models.TrustCircleSize}, folder.TrustStats(me))
	assert.Equal(t, map[string]models.TrustLevel{
		"tm-bob":   {},
		"tm-carol": {AllocatedTo: 1},
		"tm-dave":  {ReceivedFrom: 1},
		"tm-erin":  {},
	}, folder.TrustLevels(me))
}

func TestTrustRevokeWithBadTimestampSortsFirst(t *testing.T) {
	const me = "tm-alice"
	revoke := signal(models.SignalType_TrustRevoke, me, "tm-bob", "not-a-timestamp", nil)
	revoke.Timestamp = time.Now().UnixMilli()
	revoke.Status = models.SignalStatus_Error
	_, folder := newTestFolder(
		signal(models.SignalType_TrustAllocate, me, "tm-bob", "300.0", nil),
		revoke,
	)

	assert.Equal(t, 1, folder.TrustStats(me).AllocatedOut)
	assert.Equal(t, models.TrustLevel{AllocatedTo: 1}, folder.TrustLevels(me)["tm-bob"])
}

func TestFolderMemoization(t *testing.T) {
	const me = "tm-alice"
	store, folder := newTestFolder(signal(models.SignalType_TrustAllocate, me, "tm-bob", "300.0", nil))
	defer folder.Close()
	clock := time.Unix(1_700_000_000, 0)
	folder.now = func() time.Time { return clock }

	assert.Equal(t, 1, folder.TrustStats(me).AllocatedOut)
	entry := folder.memo[projection_TrustStats][me]

	// Unrelated events do not invalidate
	store.Add(signal(models.SignalType_ProfileUpdate, me, "", "301.0", map[string]any{"displayName": "Alice"}))
	folder.TrustStats(me)
	assert.Equal(t, entry.computedAt, folder.memo[projection_TrustStats][me].computedAt)

	// Relevant events invalidate immediately
	store.Add(signal(models.SignalType_TrustAllocate, me, "tm-carol", "302.0", nil))
	assert.Empty(t, folder.memo[projection_TrustStats])
	assert.Equal(t, 2, folder.TrustStats(me).AllocatedOut)

	// Entries expire after the TTL
	clock = clock.Add(DefaultFoldTtl + time.Second)
	folder.TrustStats(me)
	assert.Equal(t, clock, folder.memo[projection_TrustStats][me].computedAt)

	// Mutating a returned view does not leak into the memo
	levels := folder.TrustLevels(me)
	delete(levels, "tm-bob")
	assert.Len(t, folder.TrustLevels(me), 2)

	store.Clear()
	assert.Empty(t, folder.memo)
	assert.Equal(t, 0, folder.TrustStats(me).AllocatedOut)
}

func TestPersonalMetricsAndRecentSignals(t *testing.T) {
	const me = "tm-alice"
	_, folder := newTestFolder(
		signal(models.SignalType_ContactRequest, me, "tm-bob", "400.0", nil),
		signal(models.SignalType_ContactAccept, "tm-bob", me, "401.0", nil),
		signal(models.SignalType_TrustAllocate, me, "tm-bob", "402.0", nil),
		signal(models.SignalType_RecognitionMint, "tm-bob", me, "403.0", map[string]any{"recognitionId": "innovator"}),
		signal(models.SignalType_RecognitionMint, me, "tm-bob", "404.0", map[string]any{"recognitionId": "innovator"}),
		signal(models.SignalType_ContactRequest, "tm-carol", "tm-dave", "405.0", nil),
	)

	assert.Equal(t, models.PersonalMetrics{
		BondedContacts:   1,
		TrustAllocated:   1,
		TrustCapacity:    models.TrustCircleSize,
		RecognitionOwned: 1,
	}, folder.PersonalMetrics(me))

	recent := folder.RecentSignals(me, 2)
	require.Len(t, recent, 2)
	assert.Equal(t, models.SignalType_TrustAllocate, recent[0].Type)
	assert.Equal(t, models.SignalType_ContactAccept, recent[1].Type)
	assert.Len(t, folder.RecentSignals(me, 0), 3)
}
