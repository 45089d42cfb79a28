package cache

import (
	"context"
	"testing"
	"time"
)

func TestMemoryStore_RoundTrip(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	if _, ok, _ := s.Get(ctx, "missing"); ok {
		t.Error("hit on missing key")
	}

	if err := s.Set(ctx, "k", "v"); err != nil {
		t.Fatalf("Set: %v", err)
	}
	v, ok, err := s.Get(ctx, "k")
	if err != nil || !ok || v != "v" {
		t.Errorf("Get = %q ok=%v err=%v", v, ok, err)
	}

	if err := s.Del(ctx, "k"); err != nil {
		t.Fatalf("Del: %v", err)
	}
	if _, ok, _ := s.Get(ctx, "k"); ok {
		t.Error("hit after delete")
	}
}

func TestMemoryStore_Expiry(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	base := time.Date(2026, 8, 30, 12, 0, 0, 0, time.UTC)
	now := base
	s.now = func() time.Time { return now }

	if err := s.SetEx(ctx, "k", "v", time.Minute); err != nil {
		t.Fatalf("SetEx: %v", err)
	}
	if _, ok, _ := s.Get(ctx, "k"); !ok {
		t.Fatal("miss before expiry")
	}

	now = base.Add(time.Minute)
	if _, ok, _ := s.Get(ctx, "k"); ok {
		t.Error("hit at expiry boundary")
	}
}

func TestPageCache_Key(t *testing.T) {
	pc := NewPageCache(NewMemoryStore())
	if got := pc.Key("share_page", "42:ios"); got != "c:share_page:ps:42:ios" {
		t.Errorf("Key = %q", got)
	}
}

func TestPageCache_RoundTrip(t *testing.T) {
	pc := NewPageCache(NewMemoryStore())
	ctx := context.Background()

	if _, ok, _ := pc.Get(ctx, "share_page", "1"); ok {
		t.Error("hit on empty cache")
	}

	if err := pc.Put(ctx, "share_page", "1", []byte("<p>hi</p>"), time.Minute); err != nil {
		t.Fatalf("Put: %v", err)
	}
	body, ok, err := pc.Get(ctx, "share_page", "1")
	if err != nil || !ok || string(body) != "<p>hi</p>" {
		t.Errorf("Get = %q ok=%v err=%v", body, ok, err)
	}

	// A different suffix is a different entry.
	if _, ok, _ := pc.Get(ctx, "share_page", "2"); ok {
		t.Error("suffixes share an entry")
	}
}
