package redis

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/redis/go-redis/v9"

	"github.com/trustmesh/go-signals/common"
	"github.com/trustmesh/go-signals/models"
)

const scanBatch = 100

var _ models.KeyValueRepository = &KvStore{}

// KvStore keeps values under a shared namespace so several deployments can use one Redis. Keys are
// stored as "{namespace}:{key}".
type KvStore struct {
	client redis.UniversalClient
	prefix string
}

// NewClient parses a redis:// URL and verifies connectivity.
func NewClient(ctx context.Context, url string) (*redis.Client, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("redis: parse url: %w", err)
	}
	client := redis.NewClient(opts)

	pingCtx, pingCancel := context.WithTimeout(ctx, common.DefaultRpcWaitTime)
	defer pingCancel()

	if err = client.Ping(pingCtx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("redis: ping: %w", err)
	}
	return client, nil
}

func NewKvStore(client redis.UniversalClient, namespace string) *KvStore {
	prefix := ""
	if len(namespace) > 0 {
		prefix = namespace + ":"
	}
	return &KvStore{client, prefix}
}

func (r *KvStore) Get(ctx context.Context, key string) (string, bool, error) {
	value, err := r.client.Get(ctx, r.namespaced(key)).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	} else if err != nil {
		return "", false, fmt.Errorf("redis: get %s: %w", key, err)
	}
	return value, true, nil
}

func (r *KvStore) Set(ctx context.Context, key, value string) error {
	if err := r.client.Set(ctx, r.namespaced(key), value, 0).Err(); err != nil {
		return fmt.Errorf("redis: set %s: %w", key, err)
	}
	return nil
}

func (r *KvStore) Delete(ctx context.Context, key string) error {
	if err := r.client.Del(ctx, r.namespaced(key)).Err(); err != nil {
		return fmt.Errorf("redis: del %s: %w", key, err)
	}
	return nil
}

// Keys walks the keyspace with SCAN rather than KEYS so large databases are not blocked.
func (r *KvStore) Keys(ctx context.Context, prefix string) ([]string, error) {
	keys := make([]string, 0)
	iter := r.client.Scan(ctx, 0, r.namespaced(prefix)+"*", scanBatch).Iterator()
	for iter.Next(ctx) {
		keys = append(keys, r.unnamespaced(iter.Val()))
	}
	if err := iter.Err(); err != nil {
		return nil, fmt.Errorf("redis: scan %s: %w", prefix, err)
	}
	return keys, nil
}

func (r *KvStore) Health(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}

func (r *KvStore) namespaced(key string) string {
	return r.prefix + key
}

func (r *KvStore) unnamespaced(key string) string {
	return strings.TrimPrefix(key, r.prefix)
}
