package cache

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
)

type label struct {
	ID   uint   `json:"id"`
	Name string `json:"name"`
}

func TestDisabledCacheIsNoop(t *testing.T) {
	c := NewLabelCache(nil, time.Minute)
	ctx := context.Background()

	if err := c.Set(ctx, KindTags, true, []label{{1, "go"}}); err != nil {
		t.Fatalf("Set: %v", err)
	}
	var got []label
	if hit, err := c.Get(ctx, KindTags, true, &got); hit || err != nil {
		t.Fatalf("disabled cache must miss: hit=%v err=%v", hit, err)
	}
	if err := c.Invalidate(ctx, KindTags, KindPlaylists); err != nil {
		t.Fatalf("Invalidate: %v", err)
	}
}

// Runs against a real server when REDIS_TEST_ADDR is set.
func TestLabelCacheRoundTrip(t *testing.T) {
	addr := os.Getenv("REDIS_TEST_ADDR")
	if addr == "" {
		t.Skip("REDIS_TEST_ADDR not set")
	}
	client := redis.NewClient(&redis.Options{Addr: addr})
	defer client.Close()
	ctx := context.Background()

	if err := SelfTest(ctx, client); err != nil {
		t.Fatalf("SelfTest: %v", err)
	}

	c := NewLabelCache(client, time.Minute)
	defer c.Invalidate(ctx, KindPlaylists)

	want := []label{{1, "Backend"}, {2, "Frontend"}}
	if err := c.Set(ctx, KindPlaylists, false, want); err != nil {
		t.Fatalf("Set: %v", err)
	}
	var got []label
	if hit, err := c.Get(ctx, KindPlaylists, false, &got); !hit || err != nil || len(got) != 2 || got[1].Name != "Frontend" {
		t.Fatalf("Get: hit=%v err=%v got=%v", hit, err, got)
	}
	if hit, _ := c.Get(ctx, KindPlaylists, true, &got); hit {
		t.Fatalf("linked and unlinked lists must use separate keys")
	}
	c.Invalidate(ctx, KindPlaylists)
	if hit, _ := c.Get(ctx, KindPlaylists, false, &got); hit {
		t.Fatalf("Invalidate must drop the entry")
	}
}
