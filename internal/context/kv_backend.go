package context

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

// RedisBackend is the KV-backed Backend implementation, the second of the
// "two backends behind a uniform interface" the spec requires.
type RedisBackend struct {
	client *redis.Client
	ttl    time.Duration
	log    *logrus.Entry
}

// NewRedisBackend builds a KV-backed session log. ttl defaults to 3600s.
func NewRedisBackend(client *redis.Client, ttl time.Duration) *RedisBackend {
	if ttl <= 0 {
		ttl = time.Hour
	}
	return &RedisBackend{client: client, ttl: ttl, log: logrus.WithField("component", "context_kv_backend")}
}

func sessionKey(sessionID string) string   { return "ctx:session:" + sessionID }
func touchKey(sessionID string) string     { return "ctx:touch:" + sessionID }
func archiveKeyFor(key string) string      { return "ctx:archive:" + key }
func indexKey() string                     { return "ctx:sessions" }

func (b *RedisBackend) load(sessionID string) []Message {
	data, err := b.client.Get(context.Background(), sessionKey(sessionID)).Bytes()
	if err != nil {
		return nil
	}
	var msgs []Message
	_ = json.Unmarshal(data, &msgs)
	return msgs
}

func (b *RedisBackend) save(sessionID string, msgs []Message) error {
	data, err := json.Marshal(msgs)
	if err != nil {
		return err
	}
	ctx := context.Background()
	if err := b.client.Set(ctx, sessionKey(sessionID), data, b.ttl).Err(); err != nil {
		return err
	}
	b.client.SAdd(ctx, indexKey(), sessionID)
	return b.client.Set(ctx, touchKey(sessionID), time.Now().Format(time.RFC3339Nano), b.ttl).Err()
}

func (b *RedisBackend) Append(sessionID string, msg Message) error {
	msgs := append(b.load(sessionID), msg)
	return b.save(sessionID, msgs)
}

func (b *RedisBackend) History(sessionID string, limit int, roleFilter Role) []Message {
	all := b.load(sessionID)
	var out []Message
	for _, m := range all {
		if roleFilter != "" && m.Role != roleFilter {
			continue
		}
		out = append(out, m)
	}
	if limit > 0 && len(out) > limit {
		out = out[len(out)-limit:]
	}
	return out
}

func (b *RedisBackend) DeleteMessages(sessionID string, before time.Time, roleFilter Role) int {
	all := b.load(sessionID)
	kept := all[:0]
	deleted := 0
	for _, m := range all {
		if m.Timestamp.Before(before) && (roleFilter == "" || m.Role == roleFilter) {
			deleted++
			continue
		}
		kept = append(kept, m)
	}
	if err := b.save(sessionID, kept); err != nil {
		b.log.WithError(err).Warn("save after delete failed")
	}
	return deleted
}

func (b *RedisBackend) Archive(sessionID, archiveKey string) bool {
	msgs := b.load(sessionID)
	if msgs == nil {
		return false
	}
	data, err := json.Marshal(msgs)
	if err != nil {
		return false
	}
	ctx := context.Background()
	if err := b.client.Set(ctx, archiveKeyFor(archiveKey), data, 0).Err(); err != nil {
		b.log.WithError(err).Warn("archive write failed")
		return false
	}
	b.client.Del(ctx, sessionKey(sessionID), touchKey(sessionID))
	b.client.SRem(ctx, indexKey(), sessionID)
	return true
}

func (b *RedisBackend) LastTouch(sessionID string) (time.Time, bool) {
	s, err := b.client.Get(context.Background(), touchKey(sessionID)).Result()
	if err != nil {
		return time.Time{}, false
	}
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}

func (b *RedisBackend) Sessions() []string {
	ids, err := b.client.SMembers(context.Background(), indexKey()).Result()
	if err != nil {
		return nil
	}
	return ids
}

func (b *RedisBackend) Purge(sessionID string) {
	ctx := context.Background()
	b.client.Del(ctx, sessionKey(sessionID), touchKey(sessionID))
	b.client.SRem(ctx, indexKey(), sessionID)
}
