package cache

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"

	"cassa/internal/core"
	"cassa/internal/log"
)

func TestRedisCache_Unreachable(t *testing.T) {
	client := redis.NewClient(&redis.Options{
		Addr:        "127.0.0.1:1",
		DialTimeout: 50 * time.Millisecond,
		MaxRetries:  -1,
	})
	defer client.Close()
	c := NewRedisCache[core.MonthSummary](client, "test:", time.Minute, log.Discard())

	c.Set("k", core.MonthSummary{GroupID: "g1"})
	if _, ok := c.Get("k"); ok {
		t.Error("unreachable redis must behave as a miss")
	}
	if n := c.DeletePrefix("k"); n != 0 {
		t.Errorf("DeletePrefix() = %d, want 0", n)
	}
	if n := c.Size(); n != 0 {
		t.Errorf("Size() = %d, want 0", n)
	}
}

func TestRedisCache_Live(t *testing.T) {
	addr := os.Getenv("REDIS_TEST_ADDR")
	if addr == "" {
		t.Skip("REDIS_TEST_ADDR not set")
	}
	client, err := NewRedisClient(context.Background(), addr)
	if err != nil {
		t.Fatalf("NewRedisClient() error = %v", err)
	}
	defer client.Close()

	ns := "cassa-test-" + time.Now().Format("150405.000000") + ":"
	c := NewRedisCache[core.MonthSummary](client, ns, time.Minute, log.Discard())

	c.Set(SummaryKey("g1", 2025, 3), core.MonthSummary{GroupID: "g1", Year: 2025, Month: 3, PendingTasks: 2})
	c.Set(SummaryKey("g2", 2025, 3), core.MonthSummary{GroupID: "g2"})

	got, ok := c.Get(SummaryKey("g1", 2025, 3))
	if !ok || got.PendingTasks != 2 {
		t.Errorf("Get() = %+v, %v", got, ok)
	}
	if n := c.Size(); n != 2 {
		t.Errorf("Size() = %d, want 2", n)
	}
	if n := c.DeletePrefix(GroupPrefix("g1")); n != 1 {
		t.Errorf("DeletePrefix() = %d, want 1", n)
	}
	c.Delete(SummaryKey("g2", 2025, 3))
	if n := c.Size(); n != 0 {
		t.Errorf("Size() = %d, want 0", n)
	}
}
