package services

import (
	"context"
	"fmt"
	"strings"

	"github.com/trustmesh/go-signals/models"
)

// CursorStore keeps one watermark per source under "cursor:{source}". Saves overwrite; callers only
// move a watermark forward, except when a source is cleared for replay.
type CursorStore struct {
	kv     models.KeyValueRepository
	logger models.Logger
}

func NewCursorStore(kv models.KeyValueRepository, logger models.Logger) *CursorStore {
	return &CursorStore{kv, logger}
}

// Load returns nil when the source has never been saved.
func (c *CursorStore) Load(ctx context.Context, source string) (*string, error) {
	value, found, err := c.kv.Get(ctx, models.CursorKey(source))
	if err != nil {
		return nil, fmt.Errorf("cursor: load %s: %w", source, err)
	} else if !found {
		return nil, nil
	}
	return &value, nil
}

func (c *CursorStore) Save(ctx context.Context, source, timestamp string) error {
	if err := c.kv.Set(ctx, models.CursorKey(source), timestamp); err != nil {
		return fmt.Errorf("cursor: save %s: %w", source, err)
	}
	c.logger.Debugf("cursor: %s -> %s", source, timestamp)
	return nil
}

func (c *CursorStore) Clear(ctx context.Context, source string) error {
	if err := c.kv.Delete(ctx, models.CursorKey(source)); err != nil {
		return fmt.Errorf("cursor: clear %s: %w", source, err)
	}
	c.logger.Infof("cursor: cleared %s", source)
	return nil
}

func (c *CursorStore) ClearAll(ctx context.Context) error {
	keys, err := c.kv.Keys(ctx, models.CursorKeyPrefix)
	if err != nil {
		return fmt.Errorf("cursor: list: %w", err)
	}
	for _, key := range keys {
		if err = c.kv.Delete(ctx, key); err != nil {
			return fmt.Errorf("cursor: clear %s: %w", key, err)
		}
	}
	c.logger.Infof("cursor: cleared %d cursors", len(keys))
	return nil
}

// GetAll maps source names to watermarks.
func (c *CursorStore) GetAll(ctx context.Context) (map[string]string, error) {
	keys, err := c.kv.Keys(ctx, models.CursorKeyPrefix)
	if err != nil {
		return nil, fmt.Errorf("cursor: list: %w", err)
	}
	cursors := make(map[string]string, len(keys))
	for _, key := range keys {
		value, found, err := c.kv.Get(ctx, key)
		if err != nil {
			return nil, fmt.Errorf("cursor: load %s: %w", key, err)
		} else if found {
			cursors[strings.TrimPrefix(key, models.CursorKeyPrefix)] = value
		}
	}
	return cursors, nil
}
