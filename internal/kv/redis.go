package kv

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/redis/go-redis/v9"
)

const scanBatch = 100

// Redis stores documents as plain string values under Namespace+key.
type Redis struct {
	client    *redis.Client
	namespace string
}

type RedisConfig struct {
	Addr      string
	Password  string
	DB        int
	Namespace string
}

func NewRedis(cfg RedisConfig) *Redis {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	return NewRedisFromClient(client, cfg.Namespace)
}

func NewRedisFromClient(client *redis.Client, namespace string) *Redis {
	return &Redis{client: client, namespace: namespace}
}

func (r *Redis) Get(ctx context.Context, key string) (json.RawMessage, bool, error) {
	data, err := r.client.Get(ctx, r.namespace+key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("kv get %s: %w", key, err)
	}
	return json.RawMessage(data), true, nil
}

func (r *Redis) Set(ctx context.Context, key string, value json.RawMessage) error {
	if err := validJSON(key, value); err != nil {
		return err
	}
	if err := r.client.Set(ctx, r.namespace+key, []byte(value), 0).Err(); err != nil {
		return fmt.Errorf("kv set %s: %w", key, err)
	}
	return nil
}

func (r *Redis) Delete(ctx context.Context, key string) error {
	if err := r.client.Del(ctx, r.namespace+key).Err(); err != nil {
		return fmt.Errorf("kv delete %s: %w", key, err)
	}
	return nil
}

func (r *Redis) GetByPrefix(ctx context.Context, prefix string) ([]Entry, error) {
	pattern := escapeGlob(r.namespace+prefix) + "*"
	var (
		cursor  uint64
		entries []Entry
	)
	seen := map[string]struct{}{}
	for {
		batch, next, err := r.client.Scan(ctx, cursor, pattern, scanBatch).Result()
		if err != nil {
			return nil, fmt.Errorf("kv scan %s: %w", prefix, err)
		}
		if keys := unseen(batch, seen); len(keys) > 0 {
			values, err := r.client.MGet(ctx, keys...).Result()
			if err != nil {
				return nil, fmt.Errorf("kv scan %s: %w", prefix, err)
			}
			for i, v := range values {
				s, ok := v.(string)
				if !ok {
					// deleted between SCAN and MGET
					continue
				}
				entries = append(entries, Entry{
					Key:   strings.TrimPrefix(keys[i], r.namespace),
					Value: json.RawMessage(s),
				})
			}
		}
		cursor = next
		if cursor == 0 {
			break
		}
	}
	return entries, nil
}

func (r *Redis) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}

func (r *Redis) Close() error {
	return r.client.Close()
}

// unseen drops keys already returned by an earlier SCAN page and records the
// rest. SCAN may report a key more than once over a full iteration.
func unseen(keys []string, seen map[string]struct{}) []string {
	out := keys[:0:0]
	for _, k := range keys {
		if _, dup := seen[k]; dup {
			continue
		}
		seen[k] = struct{}{}
		out = append(out, k)
	}
	return out
}

// escapeGlob quotes the metacharacters of Redis MATCH patterns.
func escapeGlob(s string) string {
	var b strings.Builder
	for _, c := range s {
		switch c {
		case '*', '?', '[', ']', '\\':
			b.WriteByte('\\')
		}
		b.WriteRune(c)
	}
	return b.String()
}
