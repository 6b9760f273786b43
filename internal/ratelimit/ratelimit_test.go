package ratelimit

import (
	"testing"
	"time"
)

func TestPerKeyAllowsBudgetThenDenies(t *testing.T) {
	p := NewPerKey(3)
	defer p.Stop()

	for i := 0; i < 3; i++ {
		if !p.Allow("1.2.3.4") {
			t.Fatalf("request %d inside the budget was denied", i)
		}
	}
	if p.Allow("1.2.3.4") {
		t.Fatalf("request beyond the burst was allowed")
	}
}

func TestPerKeyIsolatesKeys(t *testing.T) {
	p := NewPerKey(1)
	defer p.Stop()

	if !p.Allow("1.1.1.1") {
		t.Fatalf("first key denied")
	}
	if p.Allow("1.1.1.1") {
		t.Fatalf("first key not exhausted")
	}
	if !p.Allow("2.2.2.2") {
		t.Fatalf("second key should have its own bucket")
	}
	if p.Len() != 2 {
		t.Fatalf("expected two buckets, got %d", p.Len())
	}
}

func TestPerKeyEvictsStaleBuckets(t *testing.T) {
	p := NewPerKey(5)
	defer p.Stop()

	current := time.Unix(1700000000, 0)
	p.now = func() time.Time { return current }

	p.Allow("old")
	current = current.Add(staleTTL + time.Second)
	p.Allow("fresh")

	p.evictStale()

	if p.Len() != 1 {
		t.Fatalf("expected one surviving bucket, got %d", p.Len())
	}
	if !p.Allow("old") {
		t.Fatalf("evicted key should start a fresh bucket")
	}
}

func TestPerKeyZeroBudget(t *testing.T) {
	p := NewPerKey(0)
	defer p.Stop()

	if !p.Allow("x") {
		t.Fatalf("floor budget of one should allow a single request")
	}
	if p.Allow("x") {
		t.Fatalf("floor budget should deny the second request")
	}
}

func TestPerKeyStopIsIdempotent(t *testing.T) {
	p := NewPerKey(1)
	p.Stop()
	p.Stop()
}
