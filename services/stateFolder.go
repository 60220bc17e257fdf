package services

import (
	"crypto/sha256"
	"encoding/hex"
	"sort"
	"sync"
	"time"

	"github.com/trustmesh/go-signals/common/consensus"
	"github.com/trustmesh/go-signals/models"
)

const DefaultFoldTtl = 10 * time.Second

type projection string

const (
	projection_Contacts    projection = "contacts"
	projection_TrustStats  projection = "trust-stats"
	projection_TrustLevels projection = "trust-levels"
)

var projectionTypes = map[projection]map[models.SignalType]bool{
	projection_Contacts: {
		models.SignalType_ContactRequest: true,
		models.SignalType_ContactAccept:  true,
		models.SignalType_ProfileUpdate:  true,
		models.SignalType_TrustAllocate:  true,
		models.SignalType_TrustRevoke:    true,
	},
	projection_TrustStats: {
		models.SignalType_TrustAllocate: true,
		models.SignalType_TrustRevoke:   true,
	},
	projection_TrustLevels: {
		models.SignalType_TrustAllocate: true,
		models.SignalType_TrustRevoke:   true,
	},
}

type memoEntry struct {
	hash       string
	computedAt time.Time
	value      any
}

// StateFolder derives read models from the signal store. It owns no data: every view is recomputed from
// the store, and memoized per session on a hash of the ids and types it depends on, for at most the TTL.
// Relevant store changes also drop memoized views eagerly.
type StateFolder struct {
	store       *SignalStore
	ttl         time.Duration
	now         func() time.Time
	lock        sync.Mutex
	memo        map[projection]map[string]memoEntry
	unsubscribe func()
}

func NewStateFolder(store *SignalStore, ttl time.Duration) *StateFolder {
	if ttl <= 0 {
		ttl = DefaultFoldTtl
	}
	f := &StateFolder{
		store: store,
		ttl:   ttl,
		now:   time.Now,
		memo:  make(map[projection]map[string]memoEntry),
	}
	f.unsubscribe = store.Subscribe(f.onStoreChange)
	return f
}

func (f *StateFolder) Close() {
	f.unsubscribe()
}

func (f *StateFolder) onStoreChange(change StoreChange) {
	f.lock.Lock()
	defer f.lock.Unlock()
	if change.Cleared {
		f.memo = make(map[projection]map[string]memoEntry)
		return
	}
	for proj, types := range projectionTypes {
		if types[change.Event.Type] {
			delete(f.memo, proj)
		}
	}
}

// BondedContacts lists peers with whom the session shares an accepted contact request, oldest bond first.
func (f *StateFolder) BondedContacts(session string) []models.BondedContact {
	value := f.memoized(projection_Contacts, session, func(events []*models.SignalEvent) any {
		return foldBondedContacts(events, session)
	})
	contacts := value.([]models.BondedContact)
	result := make([]models.BondedContact, len(contacts))
	copy(result, contacts)
	return result
}

// TrustStats counts live outbound and inbound allocations for the session.
func (f *StateFolder) TrustStats(session string) models.TrustStats {
	return f.memoized(projection_TrustStats, session, func(events []*models.SignalEvent) any {
		return foldTrustStats(events, session)
	}).(models.TrustStats)
}

// TrustLevels reports, per peer, the trust the session allocated to it and received from it.
func (f *StateFolder) TrustLevels(session string) map[string]models.TrustLevel {
	levels := f.memoized(projection_TrustLevels, session, func(events []*models.SignalEvent) any {
		return foldTrustLevels(events, session)
	}).(map[string]models.TrustLevel)
	result := make(map[string]models.TrustLevel, len(levels))
	for peer, level := range levels {
		result[peer] = level
	}
	return result
}

func (f *StateFolder) PersonalMetrics(session string) models.PersonalMetrics {
	owned := 0
	for _, event := range f.store.GetByType(models.SignalType_RecognitionMint) {
		if event.Target == session {
			owned++
		}
	}
	return models.PersonalMetrics{
		BondedContacts:   len(f.BondedContacts(session)),
		TrustAllocated:   f.TrustStats(session).AllocatedOut,
		TrustCapacity:    models.TrustCircleSize,
		RecognitionOwned: owned,
	}
}

// RecentSignals returns the latest contact and trust events involving the session, newest first.
func (f *StateFolder) RecentSignals(session string, limit int) []*models.SignalEvent {
	recent := make([]*models.SignalEvent, 0)
	for _, event := range f.store.GetAll() {
		if (event.Class == models.SignalClass_Contact || event.Class == models.SignalClass_Trust) &&
			(event.Actor == session || event.Target == session) {
			recent = append(recent, event)
		}
	}
	sort.SliceStable(recent, func(i, j int) bool { return compareEvents(recent[j], recent[i]) < 0 })
	if limit > 0 && len(recent) > limit {
		recent = recent[:limit]
	}
	return recent
}

func (f *StateFolder) memoized(proj projection, session string, compute func([]*models.SignalEvent) any) any {
	events := f.relevantEvents(proj)
	hash := contentHash(proj, events)

	f.lock.Lock()
	if entry, found := f.memo[proj][session]; found && entry.hash == hash && f.now().Sub(entry.computedAt) < f.ttl {
		f.lock.Unlock()
		return entry.value
	}
	f.lock.Unlock()

	value := compute(events)

	f.lock.Lock()
	defer f.lock.Unlock()
	if f.memo[proj] == nil {
		f.memo[proj] = make(map[string]memoEntry)
	}
	f.memo[proj][session] = memoEntry{hash, f.now(), value}
	return value
}

func (f *StateFolder) relevantEvents(proj projection) []*models.SignalEvent {
	types := projectionTypes[proj]
	return f.store.filter(func(event *models.SignalEvent) bool { return types[event.Type] })
}

// contentHash covers ids and types only. Events are immutable, so the pair identifies the content.
func contentHash(proj projection, events []*models.SignalEvent) string {
	h := sha256.New()
	h.Write([]byte(proj))
	h.Write([]byte{0})
	for _, event := range events {
		h.Write([]byte(event.Id))
		h.Write([]byte{0})
		h.Write([]byte(event.Type))
		h.Write([]byte{0})
	}
	return hex.EncodeToString(h.Sum(nil))
}

// compareEvents orders by consensus timestamp when both carry one, else by millisecond timestamp, then id.
func compareEvents(a, b *models.SignalEvent) int {
	if len(a.ConsensusTimestamp) > 0 && len(b.ConsensusTimestamp) > 0 {
		if cmp := consensus.Compare(a.ConsensusTimestamp, b.ConsensusTimestamp); cmp != 0 {
			return cmp
		}
	} else if a.Timestamp != b.Timestamp {
		if a.Timestamp < b.Timestamp {
			return -1
		}
		return 1
	}
	switch {
	case a.Id < b.Id:
		return -1
	case a.Id > b.Id:
		return 1
	}
	return 0
}

func sortedByConsensus(events []*models.SignalEvent) []*models.SignalEvent {
	sorted := make([]*models.SignalEvent, len(events))
	copy(sorted, events)
	sort.SliceStable(sorted, func(i, j int) bool { return compareEvents(sorted[i], sorted[j]) < 0 })
	return sorted
}

func counterpart(event *models.SignalEvent, session string) string {
	switch session {
	case event.Actor:
		return event.Target
	case event.Target:
		return event.Actor
	}
	return ""
}

func foldBondedContacts(events []*models.SignalEvent, session string) []models.BondedContact {
	type contactState struct {
		firstSeen int64
		bondedAt  int64
		bonded    bool
		handle    string
	}
	contacts := make(map[string]*contactState)
	profileNames := make(map[string]string)
	for _, event := range sortedByConsensus(events) {
		switch event.Type {
		case models.SignalType_ProfileUpdate:
			if name := profileDisplayName(event.Payload); len(name) > 0 {
				profileNames[event.Actor] = name
			}
			continue
		case models.SignalType_ContactRequest, models.SignalType_ContactAccept:
		default:
			continue
		}
		peer := counterpart(event, session)
		if len(peer) == 0 || peer == session {
			continue
		}
		state, found := contacts[peer]
		if !found {
			state = &contactState{firstSeen: event.Timestamp}
			contacts[peer] = state
		}
		if handle := stringField(event.Payload, "handle"); len(handle) > 0 && event.Actor == peer {
			state.handle = handle
		}
		if event.Type == models.SignalType_ContactAccept && !state.bonded {
			state.bonded = true
			state.bondedAt = event.Timestamp
		}
	}

	levels := foldTrustLevels(events, session)
	bonded := make([]models.BondedContact, 0)
	for peer, state := range contacts {
		if !state.bonded {
			continue
		}
		bonded = append(bonded, models.BondedContact{
			PeerId:     peer,
			Handle:     displayName(peer, profileNames[peer], state.handle),
			BondedAt:   state.bondedAt,
			TrustLevel: levels[peer].AllocatedTo,
		})
	}
	sort.Slice(bonded, func(i, j int) bool {
		if bonded[i].BondedAt != bonded[j].BondedAt {
			return bonded[i].BondedAt < bonded[j].BondedAt
		}
		return bonded[i].PeerId < bonded[j].PeerId
	})
	return bonded
}

// displayName prefers the curated table, then what the peer published, then a name built from the id.
func displayName(peer, profileName, handle string) string {
	if name, found := curatedName(peer); found {
		return name
	}
	if len(profileName) > 0 {
		return profileName
	}
	if len(handle) > 0 {
		return handle
	}
	return SynthesizeDisplayName(peer)
}

func profileDisplayName(payload map[string]any) string {
	if name := stringField(payload, "displayName", "name", "handle"); len(name) > 0 {
		return name
	}
	if profile := objectField(payload, "profile"); profile != nil {
		return stringField(profile, "displayName", "name", "handle")
	}
	return ""
}

// latestTrust keeps the last allocate or revoke per (actor, target) in consensus order. An event whose
// consensus timestamp does not parse sorts before every valid one, so a revoke with a bad timestamp
// never overrides an allocation that has a good one.
func latestTrust(events []*models.SignalEvent) map[[2]string]models.SignalType {
	latest := make(map[[2]string]models.SignalType)
	for _, event := range sortedByConsensus(events) {
		if event.Type != models.SignalType_TrustAllocate && event.Type != models.SignalType_TrustRevoke {
			continue
		}
		if len(event.Target) == 0 || event.Actor == event.Target {
			continue
		}
		latest[[2]string{event.Actor, event.Target}] = event.Type
	}
	return latest
}

// foldTrustStats gives every live allocation a weight of 1. The circle size is reported, not enforced.
func foldTrustStats(events []*models.SignalEvent, session string) models.TrustStats {
	stats := models.TrustStats{Cap: models.TrustCircleSize}
	for pair, signalType := range latestTrust(events) {
		if signalType != models.SignalType_TrustAllocate {
			continue
		}
		if pair[0] == session {
			stats.AllocatedOut++
		} else if pair[1] == session {
			stats.ReceivedIn++
		}
	}
	return stats
}

func foldTrustLevels(events []*models.SignalEvent, session string) map[string]models.TrustLevel {
	levels := make(map[string]models.TrustLevel)
	for pair, signalType := range latestTrust(events) {
		var peer string
		switch session {
		case pair[0]:
			peer = pair[1]
		case pair[1]:
			peer = pair[0]
		default:
			continue
		}
		level := levels[peer]
		if signalType == models.SignalType_TrustAllocate {
			if pair[0] == session {
				level.AllocatedTo = 1
			} else {
				level.ReceivedFrom = 1
			}
		}
		levels[peer] = level
	}
	return levels
}
