package state

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/mohammad-safakhou/adaptwatch/internal/labels"
	"github.com/redis/go-redis/v9"
)

// Conn dials Redis and verifies the connection with PING.
func Conn(ctx context.Context, host, port, pass string, db int, timeout time.Duration) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:        fmt.Sprintf("%s:%s", host, port),
		DialTimeout: timeout,
		Password:    pass,
		DB:          db,
	})
	pong, err := client.Ping(ctx).Result()
	if err != nil {
		_ = client.Close()
		return nil, err
	}
	if pong != "PONG" {
		_ = client.Close()
		return nil, fmt.Errorf("expected PONG, got %s", pong)
	}
	return client, nil
}

// RedisExclusions stores the exclusion set in a Redis SET.
type RedisExclusions struct {
	client *redis.Client
	key    string
}

func NewRedisExclusions(client *redis.Client, prefix string) *RedisExclusions {
	return &RedisExclusions{client: client, key: prefix + "exclusions"}
}

func (r *RedisExclusions) Contains(ctx context.Context, hash string) (bool, error) {
	return r.client.SIsMember(ctx, r.key, strings.ToLower(hash)).Result()
}

func (r *RedisExclusions) Add(ctx context.Context, hash string) error {
	return r.client.SAdd(ctx, r.key, strings.ToLower(hash)).Err()
}

// RedisLedger keeps notifications as JSON values in a Redis HASH keyed by
// content hash, plus a second HASH from Message-ID to content hash.
type RedisLedger struct {
	client      *redis.Client
	key         string
	messagesKey string
}

func NewRedisLedger(client *redis.Client, prefix string) *RedisLedger {
	return &RedisLedger{
		client:      client,
		key:         prefix + "notified",
		messagesKey: prefix + "messages",
	}
}

func (r *RedisLedger) Get(ctx context.Context, hash string) (Notification, bool, error) {
	val, err := r.client.HGet(ctx, r.key, strings.ToLower(hash)).Result()
	if errors.Is(err, redis.Nil) {
		return Notification{}, false, nil
	}
	if err != nil {
		return Notification{}, false, err
	}
	var n Notification
	if err := json.Unmarshal([]byte(val), &n); err != nil {
		return Notification{}, false, fmt.Errorf("state: decode notification: %w", err)
	}
	return n, true, nil
}

// Record stores n unless the hash is already present.
func (r *RedisLedger) Record(ctx context.Context, n Notification) error {
	n.ContentHash = strings.ToLower(n.ContentHash)
	data, err := json.Marshal(n)
	if err != nil {
		return err
	}
	added, err := r.client.HSetNX(ctx, r.key, n.ContentHash, data).Result()
	if err != nil {
		return err
	}
	if added && n.MessageID != "" {
		return r.client.HSet(ctx, r.messagesKey, normalizeMessageID(n.MessageID), n.ContentHash).Err()
	}
	return nil
}

// Resolve marks hash resolved. The read-modify-write runs under WATCH so a
// concurrent update aborts instead of being lost.
func (r *RedisLedger) Resolve(ctx context.Context, hash string, v labels.Verdict, at time.Time) error {
	hash = strings.ToLower(hash)
	return r.client.Watch(ctx, func(tx *redis.Tx) error {
		val, err := tx.HGet(ctx, r.key, hash).Result()
		if errors.Is(err, redis.Nil) {
			return fmt.Errorf("%w: %s", ErrNotNotified, hash)
		}
		if err != nil {
			return err
		}
		var n Notification
		if err := json.Unmarshal([]byte(val), &n); err != nil {
			return fmt.Errorf("state: decode notification: %w", err)
		}
		at = at.UTC()
		n.ResolvedAt = &at
		n.Verdict = v
		data, err := json.Marshal(n)
		if err != nil {
			return err
		}
		_, err = tx.TxPipelined(ctx, func(p redis.Pipeliner) error {
			p.HSet(ctx, r.key, hash, data)
			return nil
		})
		return err
	}, r.key)
}

func (r *RedisLedger) LookupMessage(ctx context.Context, messageID string) (string, bool, error) {
	messageID = normalizeMessageID(messageID)
	if messageID == "" {
		return "", false, nil
	}
	hash, err := r.client.HGet(ctx, r.messagesKey, messageID).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return hash, true, nil
}

func (r *RedisLedger) Pending(ctx context.Context) ([]Notification, error) {
	vals, err := r.client.HVals(ctx, r.key).Result()
	if err != nil {
		return nil, err
	}
	var out []Notification
	for _, val := range vals {
		var n Notification
		if err := json.Unmarshal([]byte(val), &n); err != nil {
			return nil, fmt.Errorf("state: decode notification: %w", err)
		}
		if !n.Resolved() {
			out = append(out, n)
		}
	}
	sortByNotified(out)
	return out, nil
}

// RedisLock is a best-effort distributed lock built on SET NX with a TTL.
type RedisLock struct {
	client *redis.Client
	key    string
	ttl    time.Duration
	token  string
}

func NewRedisLock(client *redis.Client, key string, ttl time.Duration, token string) *RedisLock {
	return &RedisLock{client: client, key: key, ttl: ttl, token: token}
}

// Acquire returns false when another holder owns the lock.
func (l *RedisLock) Acquire(ctx context.Context) (bool, error) {
	return l.client.SetNX(ctx, l.key, l.token, l.ttl).Result()
}

var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0`)

// Release deletes the lock only if this holder still owns it.
func (l *RedisLock) Release(ctx context.Context) error {
	return releaseScript.Run(ctx, l.client, []string{l.key}, l.token).Err()
}
