package clientcache

import (
	"testing"
	"time"
)

func TestLookupMissWhenEmpty(t *testing.T) {
	c := New(time.Minute)
	_, ok, mtime := c.Lookup("/a.txt", 0, 10, time.Now())
	if ok {
		t.Fatalf("expected miss on empty cache")
	}
	if mtime != -1 {
		t.Fatalf("expected unknown mtime -1, got %d", mtime)
	}
}

func TestLookupHitWithinRangeAndFreshnessWindow(t *testing.T) {
	c := New(time.Minute)
	now := time.Now()
	c.Store("/a.txt", 0, []byte("hello world"), 1000, now)

	content, ok, mtime := c.Lookup("/a.txt", 2, 5, now.Add(time.Second))
	if !ok {
		t.Fatalf("expected hit within range and freshness window")
	}
	if string(content) != "llo w" {
		t.Fatalf("expected sub-range slice, got %q", content)
	}
	if mtime != 1000 {
		t.Fatalf("expected mtime 1000, got %d", mtime)
	}
}

func TestLookupMissWhenRangeNotCovered(t *testing.T) {
	c := New(time.Minute)
	now := time.Now()
	c.Store("/a.txt", 10, []byte("hello"), 1000, now)

	_, ok, _ := c.Lookup("/a.txt", 0, 5, now)
	if ok {
		t.Fatalf("expected miss when requested range precedes cached range")
	}
}

func TestLookupStaleOutsideFreshnessWindowReportsKnownMtime(t *testing.T) {
	c := New(10 * time.Millisecond)
	now := time.Now()
	c.Store("/a.txt", 0, []byte("hello"), 1000, now)

	_, ok, mtime := c.Lookup("/a.txt", 0, 5, now.Add(time.Second))
	if ok {
		t.Fatalf("expected stale entry to require revalidation")
	}
	if mtime != 1000 {
		t.Fatalf("expected stale lookup to still report known mtime, got %d", mtime)
	}
}

func TestTouchResetsFreshnessWithoutChangingContent(t *testing.T) {
	c := New(10 * time.Millisecond)
	now := time.Now()
	c.Store("/a.txt", 0, []byte("hello"), 1000, now)

	later := now.Add(time.Second)
	c.Touch("/a.txt", later)

	content, ok, _ := c.Lookup("/a.txt", 0, 5, later.Add(5*time.Millisecond))
	if !ok {
		t.Fatalf("expected hit after Touch refreshed validation time")
	}
	if string(content) != "hello" {
		t.Fatalf("expected content unchanged by Touch, got %q", content)
	}
}

func TestInvalidateDropsEntry(t *testing.T) {
	c := New(time.Minute)
	now := time.Now()
	c.Store("/a.txt", 0, []byte("hello"), 1000, now)
	c.Invalidate("/a.txt")

	_, ok, mtime := c.Lookup("/a.txt", 0, 5, now)
	if ok {
		t.Fatalf("expected miss after Invalidate")
	}
	if mtime != -1 {
		t.Fatalf("expected unknown mtime after Invalidate, got %d", mtime)
	}
}
