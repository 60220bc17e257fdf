package services

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/trustmesh/go-signals/models"
)

const (
	definitionKeyPrefix = "recognition:def:"
	pendingKey          = "recognition:pending"
)

// RecognitionStore persists the recognition catalog and the pending queue so a restart, which resumes
// from the cursor and never replays old definitions, can still resolve late instances.
type RecognitionStore struct {
	kv models.KeyValueRepository
}

func NewRecognitionStore(kv models.KeyValueRepository) *RecognitionStore {
	return &RecognitionStore{kv}
}

func (s *RecognitionStore) SaveDefinition(ctx context.Context, def *models.Definition) error {
	value, err := json.Marshal(def)
	if err != nil {
		return fmt.Errorf("recognition: marshal definition %s: %w", def.Id, err)
	}
	return s.kv.Set(ctx, definitionKeyPrefix+def.Id, string(value))
}

func (s *RecognitionStore) LoadDefinitions(ctx context.Context) ([]*models.Definition, error) {
	keys, err := s.kv.Keys(ctx, definitionKeyPrefix)
	if err != nil {
		return nil, err
	}
	defs := make([]*models.Definition, 0, len(keys))
	for _, key := range keys {
		value, found, err := s.kv.Get(ctx, key)
		if err != nil {
			return nil, err
		} else if !found {
			continue
		}
		def := new(models.Definition)
		if err = json.Unmarshal([]byte(value), def); err != nil {
			return nil, fmt.Errorf("recognition: unmarshal %s: %w", key, err)
		}
		defs = append(defs, def)
	}
	return defs, nil
}

func (s *RecognitionStore) SavePending(ctx context.Context, instances []*models.Instance) error {
	value, err := json.Marshal(instances)
	if err != nil {
		return fmt.Errorf("recognition: marshal pending: %w", err)
	}
	return s.kv.Set(ctx, pendingKey, string(value))
}

func (s *RecognitionStore) LoadPending(ctx context.Context) ([]*models.Instance, error) {
	value, found, err := s.kv.Get(ctx, pendingKey)
	if err != nil || !found {
		return nil, err
	}
	instances := make([]*models.Instance, 0)
	if err = json.Unmarshal([]byte(value), &instances); err != nil {
		return nil, fmt.Errorf("recognition: unmarshal pending: %w", err)
	}
	return instances, nil
}

// Restore loads persisted state into the cache.
func (s *RecognitionStore) Restore(ctx context.Context, cache *RecognitionCache) error {
	defs, err := s.LoadDefinitions(ctx)
	if err != nil {
		return err
	}
	for _, def := range defs {
		cache.UpsertDefinition(def)
	}
	pending, err := s.LoadPending(ctx)
	if err != nil {
		return err
	}
	cache.RestorePending(pending)
	return nil
}
