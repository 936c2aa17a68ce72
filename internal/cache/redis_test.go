package cache

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func newTestCache(t *testing.T) (*Cache, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return NewCache(client), mr
}

func TestCacheRoundTrip(t *testing.T) {
	c, mr := newTestCache(t)
	ctx := context.Background()

	var got string
	if err := c.Get(ctx, "read_text:abc", &got); !errors.Is(err, ErrMiss) {
		t.Fatalf("Get() on empty cache = %v, want ErrMiss", err)
	}

	if err := c.Set(ctx, "read_text:abc", "STOP", time.Minute); err != nil {
		t.Fatalf("Set() error: %v", err)
	}
	if err := c.Get(ctx, "read_text:abc", &got); err != nil || got != "STOP" {
		t.Fatalf("Get() = %q, %v", got, err)
	}

	mr.FastForward(2 * time.Minute)
	if err := c.Get(ctx, "read_text:abc", &got); !errors.Is(err, ErrMiss) {
		t.Fatalf("Get() after ttl = %v, want ErrMiss", err)
	}
	if err := c.Ping(ctx); err != nil {
		t.Fatalf("Ping() error: %v", err)
	}
}

func TestCacheUnreachable(t *testing.T) {
	c, mr := newTestCache(t)
	mr.Close()

	var got string
	err := c.Get(context.Background(), "k", &got)
	if err == nil || errors.Is(err, ErrMiss) {
		t.Fatalf("Get() = %v, want connection error", err)
	}
}

func TestKey(t *testing.T) {
	a := Key("describe_scene", []byte("payload"))
	b := Key("read_text", []byte("payload"))
	if a == b {
		t.Fatal("keys for different operations collide")
	}
	if !strings.HasPrefix(a, "describe_scene:") || len(a) != len("describe_scene:")+64 {
		t.Fatalf("key = %q", a)
	}
	if Key("describe_scene", []byte("payload")) != a {
		t.Fatal("key is not deterministic")
	}
}
