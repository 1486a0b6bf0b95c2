package cache

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
)

func setupTestCache(t *testing.T) (*RedisCache, *miniredis.Miniredis) {
	t.Helper()
	s := miniredis.RunT(t)
	c, err := NewRedisCache("redis://"+s.Addr(), 30*time.Second)
	if err != nil {
		t.Fatalf("failed to create redis cache: %v", err)
	}
	return c, s
}

func TestNewRedisCache(t *testing.T) {
	s := miniredis.RunT(t)
	defer s.Close()

	c, err := NewRedisCache("redis://"+s.Addr(), time.Minute)
	if err != nil {
		t.Fatalf("NewRedisCache failed: %v", err)
	}
	defer c.Close()

	if err := c.Ping(context.Background()); err != nil {
		t.Errorf("Ping failed: %v", err)
	}
}

func TestSetAndGetList(t *testing.T) {
	c, s := setupTestCache(t)
	defer c.Close()
	defer s.Close()

	ctx := context.Background()
	payload := []byte(`[{"id":"1","name":"EcoTech Solutions"}]`)

	if err := c.SetList(ctx, "companies", payload); err != nil {
		t.Fatalf("SetList failed: %v", err)
	}

	got, ok, err := c.GetList(ctx, "companies")
	if err != nil {
		t.Fatalf("GetList failed: %v", err)
	}
	if !ok {
		t.Fatal("expected cache hit")
	}
	if string(got) != string(payload) {
		t.Fatalf("payload mismatch: %s", got)
	}
}

func TestGetListMiss(t *testing.T) {
	c, s := setupTestCache(t)
	defer c.Close()
	defer s.Close()

	_, ok, err := c.GetList(context.Background(), "analyses")
	if err != nil {
		t.Fatalf("GetList failed: %v", err)
	}
	if ok {
		t.Fatal("expected miss on empty cache")
	}
}

func TestInvalidateDropsEntry(t *testing.T) {
	c, s := setupTestCache(t)
	defer c.Close()
	defer s.Close()

	ctx := context.Background()
	if err := c.SetList(ctx, "analyses", []byte(`[]`)); err != nil {
		t.Fatalf("SetList failed: %v", err)
	}
	if err := c.Invalidate(ctx, "analyses"); err != nil {
		t.Fatalf("Invalidate failed: %v", err)
	}

	_, ok, err := c.GetList(ctx, "analyses")
	if err != nil {
		t.Fatalf("GetList failed: %v", err)
	}
	if ok {
		t.Fatal("expected miss after invalidation")
	}
}

func TestEntryExpires(t *testing.T) {
	c, s := setupTestCache(t)
	defer c.Close()
	defer s.Close()

	ctx := context.Background()
	if err := c.SetList(ctx, "companies", []byte(`[]`)); err != nil {
		t.Fatalf("SetList failed: %v", err)
	}

	s.FastForward(time.Minute)

	_, ok, err := c.GetList(ctx, "companies")
	if err != nil {
		t.Fatalf("GetList failed: %v", err)
	}
	if ok {
		t.Fatal("expected entry to expire after TTL")
	}
}

func TestCollectionsAreIsolated(t *testing.T) {
	c, s := setupTestCache(t)
	defer c.Close()
	defer s.Close()

	ctx := context.Background()
	if err := c.SetList(ctx, "companies", []byte(`["a"]`)); err != nil {
		t.Fatalf("SetList failed: %v", err)
	}
	if err := c.SetList(ctx, "analyses", []byte(`["b"]`)); err != nil {
		t.Fatalf("SetList failed: %v", err)
	}
	if err := c.Invalidate(ctx, "companies"); err != nil {
		t.Fatalf("Invalidate failed: %v", err)
	}

	_, ok, err := c.GetList(ctx, "analyses")
	if err != nil {
		t.Fatalf("GetList failed: %v", err)
	}
	if !ok {
		t.Fatal("invalidating one collection must not drop another")
	}
}
