package locks

import (
	"context"
	"errors"
	"os"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

func TestNormalizeKeys(t *testing.T) {
	got := normalizeKeys([]string{"b", "a", "b", "c", "a"})
	want := []string{"a", "b", "c"}
	if len(got) != len(want) {
		t.Fatalf("normalizeKeys = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("normalizeKeys = %v, want %v", got, want)
		}
	}
}

func TestBookingKey(t *testing.T) {
	if got := BookingKey("insp-1", "2026-03-10"); got != "booking:insp-1:2026-03-10" {
		t.Fatalf("BookingKey = %q", got)
	}
}

func exerciseMutualExclusion(t *testing.T, l Locker) {
	t.Helper()
	var inside, maxInside int32
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			// Mix key orders to catch lock-ordering deadlocks.
			keys := []string{"k1", "k2"}
			if i%2 == 0 {
				keys = []string{"k2", "k1"}
			}
			unlock, err := l.Lock(context.Background(), keys...)
			if err != nil {
				t.Errorf("lock: %v", err)
				return
			}
			n := atomic.AddInt32(&inside, 1)
			for {
				m := atomic.LoadInt32(&maxInside)
				if n <= m || atomic.CompareAndSwapInt32(&maxInside, m, n) {
					break
				}
			}
			time.Sleep(2 * time.Millisecond)
			atomic.AddInt32(&inside, -1)
			unlock()
		}(i)
	}
	wg.Wait()
	if maxInside != 1 {
		t.Fatalf("max concurrent holders = %d, want 1", maxInside)
	}
}

func TestLocalMutualExclusion(t *testing.T) {
	exerciseMutualExclusion(t, NewLocal())
}

func TestLocalRespectsContext(t *testing.T) {
	l := NewLocal()
	unlock, err := l.Lock(context.Background(), "k")
	if err != nil {
		t.Fatalf("lock: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if _, err := l.Lock(ctx, "other", "k"); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline exceeded, got %v", err)
	}

	// "other" must have been released by the failed attempt.
	u2, err := l.Lock(context.Background(), "other")
	if err != nil {
		t.Fatalf("lock other: %v", err)
	}
	u2()

	unlock()
	unlock() // idempotent
	if len(l.held) != 0 {
		t.Fatalf("expected no tracked keys, got %d", len(l.held))
	}
}

func testRedisClient(t *testing.T) *redis.Client {
	addr := os.Getenv("INSPECTD_TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("Skipping test: INSPECTD_TEST_REDIS_ADDR not set")
	}
	client := redis.NewClient(&redis.Options{Addr: addr})
	if err := client.Ping(context.Background()).Err(); err != nil {
		t.Skipf("Skipping test: redis unavailable: %v", err)
	}
	t.Cleanup(func() { _ = client.Close() })
	return client
}

func TestRedisMutualExclusion(t *testing.T) {
	client := testRedisClient(t)
	cfg := DefaultRedisConfig()
	cfg.KeyPrefix = "inspectd:test:" + time.Now().Format("150405.000000") + ":"
	exerciseMutualExclusion(t, NewRedis(client, cfg, zerolog.Nop()))
}

func TestRedisWaitTimeout(t *testing.T) {
	client := testRedisClient(t)
	cfg := DefaultRedisConfig()
	cfg.KeyPrefix = "inspectd:test:" + time.Now().Format("150405.000000") + ":"
	cfg.WaitTimeout = 50 * time.Millisecond
	l := NewRedis(client, cfg, zerolog.Nop())

	unlock, err := l.Lock(context.Background(), "k")
	if err != nil {
		t.Fatalf("lock: %v", err)
	}
	defer unlock()

	if _, err := l.Lock(context.Background(), "k"); !errors.Is(err, ErrLockTimeout) {
		t.Fatalf("expected ErrLockTimeout, got %v", err)
	}
}
