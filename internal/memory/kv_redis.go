package memory

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

// RedisKV is the short-term KV adapter. Records are TTL'd and keyed
// "{namespace}:{memory_id}"; search is intentionally unsupported — short-term
// lookups are by id only, per the adapter contract.
type RedisKV struct {
	client    *redis.Client
	namespace string
	ttl       time.Duration
	log       *logrus.Entry
}

// RedisKVConfig configures the short-term adapter's connection and TTL.
type RedisKVConfig struct {
	Addr      string
	Password  string
	DB        int
	Namespace string
	TTL       time.Duration
}

// NewRedisKV dials Redis and returns a ready short-term adapter.
func NewRedisKV(cfg RedisKVConfig) *RedisKV {
	if cfg.Namespace == "" {
		cfg.Namespace = "aam"
	}
	if cfg.TTL <= 0 {
		cfg.TTL = 24 * time.Hour
	}
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	return &RedisKV{
		client:    client,
		namespace: cfg.Namespace,
		ttl:       cfg.TTL,
		log:       logrus.WithField("component", "kv_redis"),
	}
}

func (r *RedisKV) key(id string) string {
	return fmt.Sprintf("%s:%s", r.namespace, id)
}

// Store writes a record with the configured TTL.
func (r *RedisKV) Store(ctx context.Context, rec *Record) bool {
	data, err := json.Marshal(rec)
	if err != nil {
		r.log.WithError(err).WithField("id", rec.ID).Warn("marshal failed")
		return false
	}
	if err := r.client.Set(ctx, r.key(rec.ID), data, r.ttl).Err(); err != nil {
		r.log.WithError(err).WithField("id", rec.ID).Warn("store failed")
		return false
	}
	return true
}

// Retrieve reads a record by id, returning nil on miss or back-end failure.
func (r *RedisKV) Retrieve(ctx context.Context, id string) *Record {
	data, err := r.client.Get(ctx, r.key(id)).Bytes()
	if err != nil {
		if err != redis.Nil {
			r.log.WithError(err).WithField("id", id).Warn("retrieve failed")
		}
		return nil
	}
	var rec Record
	if err := json.Unmarshal(data, &rec); err != nil {
		r.log.WithError(err).WithField("id", id).Warn("unmarshal failed")
		return nil
	}
	return &rec
}

// Update overwrites an existing record, refreshing its TTL.
func (r *RedisKV) Update(ctx context.Context, rec *Record) bool {
	return r.Store(ctx, rec)
}

// Delete removes a record by id.
func (r *RedisKV) Delete(ctx context.Context, id string) bool {
	n, err := r.client.Del(ctx, r.key(id)).Result()
	if err != nil {
		r.log.WithError(err).WithField("id", id).Warn("delete failed")
		return false
	}
	return n > 0
}

// Search is unsupported on the short-term tier by contract: it always
// returns an empty slice. Search must go through the vector or graph adapter.
func (r *RedisKV) Search(ctx context.Context, query string, limit int) []*Record {
	return nil
}

// Close releases the Redis connection pool.
func (r *RedisKV) Close() error {
	return r.client.Close()
}

// Health pings Redis.
func (r *RedisKV) Health(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}
