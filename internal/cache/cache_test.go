package cache

import (
	"testing"
	"time"
)

func TestMemoryCacheSetGet(t *testing.T) {
	mc := NewMemoryCache(0)
	defer mc.Close()

	rows := []map[string]any{{"title": "a"}}
	if err := mc.Set("k1", rows, time.Minute); err != nil {
		t.Fatalf("Set: %v", err)
	}

	got, ok := mc.Get("k1")
	if !ok {
		t.Fatal("expected hit")
	}
	if len(got) != 1 || got[0]["title"] != "a" {
		t.Errorf("unexpected rows: %+v", got)
	}
}

func TestMemoryCacheMiss(t *testing.T) {
	mc := NewMemoryCache(0)
	defer mc.Close()

	if _, ok := mc.Get("missing"); ok {
		t.Error("expected miss for absent key")
	}
}

func TestMemoryCacheExpiry(t *testing.T) {
	mc := NewMemoryCache(0)
	defer mc.Close()

	if err := mc.Set("k1", []map[string]any{{"a": 1}}, time.Millisecond); err != nil {
		t.Fatalf("Set: %v", err)
	}
	time.Sleep(10 * time.Millisecond)

	if _, ok := mc.Get("k1"); ok {
		t.Error("expected expired entry to miss")
	}
}

func TestMemoryCacheEvictsUnderSizePressure(t *testing.T) {
	mc := NewMemoryCache(1)
	defer mc.Close()

	mc.Set("k1", []map[string]any{{"a": 1}}, time.Minute)
	mc.Set("k2", []map[string]any{{"b": 2}}, time.Minute)

	if _, ok := mc.Get("k1"); ok {
		t.Error("expected k1 evicted under a tiny size cap")
	}
	if _, ok := mc.Get("k2"); !ok {
		t.Error("expected k2 (most recently set) to survive")
	}
}

func TestMemoryCacheDeleteAndClear(t *testing.T) {
	mc := NewMemoryCache(0)
	defer mc.Close()

	mc.Set("k1", []map[string]any{{"a": 1}}, time.Minute)
	if err := mc.Delete("k1"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, ok := mc.Get("k1"); ok {
		t.Error("expected deleted key to miss")
	}

	mc.Set("k2", []map[string]any{{"b": 2}}, time.Minute)
	if err := mc.Clear(); err != nil {
		t.Fatalf("Clear: %v", err)
	}
	if _, ok := mc.Get("k2"); ok {
		t.Error("expected cache empty after Clear")
	}
}

func TestKeyFor(t *testing.T) {
	if got := KeyFor("https://example.com", "scrapeList", ""); got != "scrapeList::https://example.com" {
		t.Errorf("unexpected key: %q", got)
	}
	if got := KeyFor("https://example.com", "scrapeSchema", ".item"); got != "scrapeSchema::https://example.com::.item" {
		t.Errorf("unexpected key: %q", got)
	}
}
