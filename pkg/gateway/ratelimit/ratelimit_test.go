package ratelimit

import (
	"net/http/httptest"
	"testing"
	"time"
)

func TestAcquireLive_EnforcesConcurrency(t *testing.T) {
	l := New(Config{MaxLiveSessions: 1})
	now := time.Now()

	first := l.AcquireLive("ip_1", now)
	if !first.Allowed || first.Permit == nil {
		t.Fatalf("first allowed=%v permit=%v", first.Allowed, first.Permit)
	}
	if second := l.AcquireLive("ip_1", now); second.Allowed {
		t.Fatalf("second should be denied")
	}
	if other := l.AcquireLive("ip_2", now); !other.Allowed {
		t.Fatalf("other client should be allowed")
	}

	first.Permit.Release()
	first.Permit.Release()
	if third := l.AcquireLive("ip_1", now); !third.Allowed {
		t.Fatalf("third should be allowed after release")
	}
}

func TestAcquireRequest_TokenBucket(t *testing.T) {
	l := New(Config{RPS: 1, Burst: 2})
	now := time.Now()

	for i := 0; i < 2; i++ {
		if d := l.AcquireRequest("ip_1", now); !d.Allowed {
			t.Fatalf("request %d denied", i)
		}
	}
	d := l.AcquireRequest("ip_1", now)
	if d.Allowed || d.RetryAfter != 1 {
		t.Fatalf("third request = %+v", d)
	}
	if d := l.AcquireRequest("ip_1", now.Add(1100*time.Millisecond)); !d.Allowed {
		t.Fatalf("request after refill denied")
	}
}

func TestAcquireRequest_ConcurrencyCap(t *testing.T) {
	l := New(Config{MaxConcurrentRequests: 2})
	now := time.Now()

	a := l.AcquireRequest("ip_1", now)
	b := l.AcquireRequest("ip_1", now)
	if !a.Allowed || !b.Allowed {
		t.Fatalf("first two denied")
	}
	if c := l.AcquireRequest("ip_1", now); c.Allowed {
		t.Fatalf("third should be denied")
	}
	a.Permit.Release()
	if c := l.AcquireRequest("ip_1", now); !c.Allowed {
		t.Fatalf("allowed after release")
	}
}

func TestNilLimiterAllows(t *testing.T) {
	var l *Limiter
	if d := l.AcquireRequest("x", time.Now()); !d.Allowed {
		t.Fatal("nil limiter denied a request")
	}
	if d := l.AcquireLive("x", time.Now()); !d.Allowed {
		t.Fatal("nil limiter denied a live session")
	}
}

func TestEvictsIdleEntriesWhenFull(t *testing.T) {
	l := New(Config{MaxLiveSessions: 1, MaxEntries: 2, EntryTTL: time.Minute})
	now := time.Now()

	held := l.AcquireLive("ip_busy", now)
	l.AcquireRequest("ip_idle", now)
	l.AcquireRequest("ip_new", now.Add(2*time.Minute))

	if n := l.Len(); n != 2 {
		t.Fatalf("len=%d want 2", n)
	}
	if d := l.AcquireLive("ip_busy", now.Add(2*time.Minute)); d.Allowed {
		t.Fatal("busy client lost its in-flight session")
	}
	held.Permit.Release()
}

func TestClientKey(t *testing.T) {
	r := httptest.NewRequest("GET", "/", nil)
	r.RemoteAddr = "203.0.113.9:51234"
	if got := ClientKey(r); got != "ip_203.0.113.9" {
		t.Fatalf("ClientKey=%q", got)
	}
	r.RemoteAddr = ""
	if got := ClientKey(r); got != "anonymous" {
		t.Fatalf("ClientKey=%q", got)
	}
}

func TestConfigEnabled(t *testing.T) {
	if (Config{}).Enabled() {
		t.Fatal("zero config enabled")
	}
	if !(Config{MaxLiveSessions: 1}).Enabled() {
		t.Fatal("live cap not enabled")
	}
}
