package kvstore

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/redis/go-redis/v9"
)

// maxTxAttempts bounds optimistic retries when a watched key changes under us.
const maxTxAttempts = 32

type Redis struct {
	client    func() redis.UniversalClient
	namespace string
}

// NewRedis prefixes every key with namespace + ":".
func NewRedis(namespace string, client redis.UniversalClient) *Redis {
	return NewRedisWithSource(namespace, func() redis.UniversalClient { return client })
}

// NewRedisWithSource resolves the client on every call, so a redisholder
// reconnect is picked up without rebuilding the store.
func NewRedisWithSource(namespace string, source func() redis.UniversalClient) *Redis {
	return &Redis{
		client:    source,
		namespace: namespace,
	}
}

func (r *Redis) key(k string) string {
	if r.namespace == "" {
		return k
	}
	return r.namespace + ":" + k
}

func (r *Redis) Get(ctx context.Context, key string) (string, error) {
	v, err := r.client().Get(ctx, r.key(key)).Result()
	if errors.Is(err, redis.Nil) {
		return "", ErrNotFound
	}
	return v, err
}

func (r *Redis) Set(ctx context.Context, key, value string) error {
	return r.client().Set(ctx, r.key(key), value, 0).Err()
}

type scanner interface {
	Scan(ctx context.Context, cursor uint64, match string, count int64) *redis.ScanCmd
}

// Scan walks the keyspace with SCAN rather than KEYS so large namespaces do
// not block the server. Cluster clients are scanned master by master.
func (r *Redis) Scan(ctx context.Context, prefix string) ([]string, error) {
	match := escapeGlob(r.key(prefix)) + "*"
	strip := len(r.key(""))

	var (
		mu   sync.Mutex
		seen = make(map[string]struct{})
	)
	collect := func(ctx context.Context, node scanner) error {
		iter := node.Scan(ctx, 0, match, 100).Iterator()
		for iter.Next(ctx) {
			mu.Lock()
			seen[iter.Val()[strip:]] = struct{}{}
			mu.Unlock()
		}
		return iter.Err()
	}

	var err error
	client := r.client()
	if cc, ok := client.(*redis.ClusterClient); ok {
		err = cc.ForEachMaster(ctx, func(ctx context.Context, node *redis.Client) error {
			return collect(ctx, node)
		})
	} else {
		err = collect(ctx, client)
	}
	if err != nil {
		return nil, fmt.Errorf("scan %q: %w", match, err)
	}

	keys := make([]string, 0, len(seen))
	for k := range seen {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys, nil
}

// Update uses WATCH/MULTI so concurrent writers never lose an update.
func (r *Redis) Update(ctx context.Context, key string, fn UpdateFunc) error {
	k := r.key(key)

	txf := func(tx *redis.Tx) error {
		cur, err := tx.Get(ctx, k).Result()
		found := true
		if errors.Is(err, redis.Nil) {
			found = false
		} else if err != nil {
			return err
		}

		next, err := fn(cur, found)
		if err != nil {
			return err
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, k, next, 0)
			return nil
		})
		return err
	}

	for i := 0; i < maxTxAttempts; i++ {
		err := r.client().Watch(ctx, txf, k)
		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		return err
	}
	return fmt.Errorf("update %q: too much contention", k)
}

// Close is a no-op: the client belongs to the redisholder.
func (r *Redis) Close() error {
	return nil
}

func escapeGlob(s string) string {
	out := make([]byte, 0, len(s))
	for i := 0; i < len(s); i++ {
		switch s[i] {
		case '*', '?', '[', ']', '\\':
			out = append(out, '\\')
		}
		out = append(out, s[i])
	}
	return string(out)
}
