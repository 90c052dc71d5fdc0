package state

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/mohammad-safakhou/adaptwatch/internal/labels"
	"github.com/redis/go-redis/v9"
	"github.com/testcontainers/testcontainers-go"
	tcRedis "github.com/testcontainers/testcontainers-go/modules/redis"
	"github.com/testcontainers/testcontainers-go/wait"
)

func startRedis(t *testing.T, ctx context.Context) *redis.Client {
	t.Helper()
	redisC, err := tcRedis.RunContainer(ctx, testcontainers.WithWaitStrategy(wait.ForListeningPort("6379/tcp")))
	if err != nil {
		t.Skipf("redis container unavailable: %v", err)
	}
	t.Cleanup(func() { _ = redisC.Terminate(context.Background()) })

	host, err := redisC.Host(ctx)
	if err != nil {
		t.Fatalf("redis host: %v", err)
	}
	port, err := redisC.MappedPort(ctx, "6379")
	if err != nil {
		t.Fatalf("redis port: %v", err)
	}
	client, err := Conn(ctx, host, port.Port(), "", 0, 5*time.Second)
	if err != nil {
		t.Fatalf("Conn: %v", err)
	}
	t.Cleanup(func() { _ = client.Close() })
	return client
}

func TestRedisStores(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	ctx := context.Background()
	client := startRedis(t, ctx)
	prefix := fmt.Sprintf("adaptwatch-test-%d:", time.Now().UnixNano())

	t.Run("exclusions", func(t *testing.T) {
		ex := NewRedisExclusions(client, prefix)
		if err := ex.Add(ctx, hashOf('A')); err != nil {
			t.Fatalf("Add: %v", err)
		}
		ok, err := ex.Contains(ctx, hashOf('a'))
		if err != nil || !ok {
			t.Fatalf("Contains = %v, %v", ok, err)
		}
	})

	t.Run("ledger", func(t *testing.T) {
		l := NewRedisLedger(client, prefix)
		sent := time.Date(2026, 10, 12, 6, 0, 0, 0, time.UTC)
		if err := l.Record(ctx, Notification{ContentHash: hashOf('b'), MessageID: "<m1@adaptwatch>", NotifiedAt: sent}); err != nil {
			t.Fatalf("Record: %v", err)
		}
		hash, ok, err := l.LookupMessage(ctx, "m1@adaptwatch")
		if err != nil || !ok || hash != hashOf('b') {
			t.Fatalf("LookupMessage = %q %v %v", hash, ok, err)
		}
		pending, err := l.Pending(ctx)
		if err != nil || len(pending) != 1 {
			t.Fatalf("Pending = %v, %v", pending, err)
		}
		if err := l.Resolve(ctx, hashOf('b'), labels.Never, sent.Add(time.Hour)); err != nil {
			t.Fatalf("Resolve: %v", err)
		}
		n, ok, err := l.Get(ctx, hashOf('b'))
		if err != nil || !ok || !n.Resolved() || n.Verdict != labels.Never {
			t.Fatalf("Get = %+v %v %v", n, ok, err)
		}
		if err := l.Resolve(ctx, hashOf('c'), labels.Approve, sent); !errors.Is(err, ErrNotNotified) {
			t.Fatalf("Resolve unknown = %v", err)
		}
	})

	t.Run("lock", func(t *testing.T) {
		a := NewRedisLock(client, prefix+"lock", time.Minute, "a")
		b := NewRedisLock(client, prefix+"lock", time.Minute, "b")
		ok, err := a.Acquire(ctx)
		if err != nil || !ok {
			t.Fatalf("a.Acquire = %v %v", ok, err)
		}
		ok, err = b.Acquire(ctx)
		if err != nil || ok {
			t.Fatalf("b.Acquire while held = %v %v", ok, err)
		}
		if err := b.Release(ctx); err != nil {
			t.Fatalf("b.Release: %v", err)
		}
		if ok, _ := b.Acquire(ctx); ok {
			t.Fatalf("foreign release must not drop the lock")
		}
		if err := a.Release(ctx); err != nil {
			t.Fatalf("a.Release: %v", err)
		}
		if ok, _ := b.Acquire(ctx); !ok {
			t.Fatalf("lock not released")
		}
	})
}
