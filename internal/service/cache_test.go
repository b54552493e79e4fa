package service

import (
	"testing"
	"time"

	"github.com/hugo-lorenzo-mato/jvmdiag/internal/core"
)

func TestCache_LazyEviction(t *testing.T) {
	clock := &fakeClock{now: time.Unix(0, 0)}
	c := NewCache(clock.Now)
	rec := &textRecord{Status: core.OK()}

	c.Put("k", rec, time.Second)
	if _, ok := c.Get("k"); !ok {
		t.Fatal("expected hit before expiry")
	}

	clock.Advance(time.Second)
	if c.Len() != 1 {
		t.Fatalf("expired entry should linger until looked up, Len() = %d", c.Len())
	}
	if _, ok := c.Get("k"); ok {
		t.Fatal("expected miss at expiry")
	}
	if c.Len() != 0 {
		t.Fatalf("lookup should evict, Len() = %d", c.Len())
	}
}

func TestCache_IgnoresFailuresAndZeroTTL(t *testing.T) {
	c := NewCache(nil)
	c.Put("fail", core.NewFailure(core.KindNone, core.ErrParse("bad")), time.Minute)
	c.Put("zero", &textRecord{Status: core.OK()}, 0)
	c.Put("nil", nil, time.Minute)

	if c.Len() != 0 {
		t.Fatalf("Len() = %d, want 0", c.Len())
	}
}

func TestCacheKey_ScopedByTarget(t *testing.T) {
	remote, err := core.NewRemoteTarget(core.RemoteOptions{Host: "u@h"})
	if err != nil {
		t.Fatal(err)
	}
	a := CacheKey(core.LocalTarget(), "get_thread_info", "pid=1")
	b := CacheKey(remote, "get_thread_info", "pid=1")
	if a == b {
		t.Fatal("keys for different targets must differ")
	}

	c := NewCache(nil)
	c.Put(a, &textRecord{Status: core.OK()}, time.Minute)
	c.Put(b, &textRecord{Status: core.OK()}, time.Minute)
	if n := c.InvalidateTarget(remote); n != 1 {
		t.Fatalf("InvalidateTarget() = %d, want 1", n)
	}
	if _, ok := c.Get(a); !ok {
		t.Fatal("local entry should survive")
	}
}
