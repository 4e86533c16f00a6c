package ratelimit

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"go.uber.org/goleak"

	"github.com/keithlinneman/oboxads-web/internal/httpmw"
)

func newTestLimiter(t *testing.T, opts ...Option) *IPLimiter {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	return New(ctx, append([]Option{WithRate(10, 5), WithTTL(time.Hour)}, opts...)...)
}

func TestAllow_BurstThenDeny(t *testing.T) {
	l := newTestLimiter(t, WithRate(1, 5))
	for i := 0; i < 5; i++ {
		if !l.allow("10.0.0.1") {
			t.Fatalf("request %d denied within burst", i+1)
		}
	}
	if l.allow("10.0.0.1") {
		t.Fatal("request past burst allowed")
	}
	if !l.allow("10.0.0.2") {
		t.Fatal("second client shares the first client's bucket")
	}
}

func TestAllow_Refills(t *testing.T) {
	l := newTestLimiter(t, WithRate(100, 1))
	l.allow("ip")
	if l.allow("ip") {
		t.Fatal("empty bucket allowed")
	}
	time.Sleep(30 * time.Millisecond)
	if !l.allow("ip") {
		t.Fatal("bucket did not refill")
	}
}

func TestAllow_Hooks(t *testing.T) {
	var first, every atomic.Int32
	l := newTestLimiter(t,
		WithRate(0.001, 1),
		WithOnFirstDenied(func(string) { first.Add(1) }),
		WithOnDenied(func(string) { every.Add(1) }),
	)
	for i := 0; i < 4; i++ {
		l.allow("ip")
	}
	if first.Load() != 1 || every.Load() != 3 {
		t.Fatalf("first=%d every=%d, want 1 and 3", first.Load(), every.Load())
	}
}

func TestEvict(t *testing.T) {
	l := newTestLimiter(t, WithTTL(time.Minute))
	l.allow("a")
	l.allow("b")
	l.mu.Lock()
	l.visitors["a"].lastSeen = time.Now().Add(-2 * time.Minute)
	l.mu.Unlock()

	l.evict(time.Now())
	if l.Len() != 1 {
		t.Fatalf("Len = %d after evict, want 1", l.Len())
	}
}

func TestCleanup_StopsWithContext(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	ctx, cancel := context.WithCancel(context.Background())
	l := New(ctx, WithTTL(10*time.Millisecond))
	l.allow("a")
	deadline := time.Now().Add(time.Second)
	for l.Len() != 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	cancel()
	if l.Len() != 0 {
		t.Fatal("idle visitor never evicted")
	}
}

func request(path, ip string) *http.Request {
	r := httptest.NewRequest(http.MethodGet, path, http.NoBody)
	return r.WithContext(httpmw.WithClientIP(r.Context(), ip))
}

func TestMiddleware(t *testing.T) {
	var served int
	l := newTestLimiter(t, WithRate(0.001, 2))
	h := l.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { served++ }))

	var codes []int
	for i := 0; i < 3; i++ {
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, request("/", "203.0.113.5"))
		codes = append(codes, rec.Code)
		if i == 2 && rec.Header().Get("Retry-After") == "" {
			t.Fatal("missing Retry-After")
		}
	}
	if fmt.Sprint(codes) != "[200 200 429]" || served != 2 {
		t.Fatalf("codes = %v served = %d", codes, served)
	}
}

func TestMiddleware_Exempt(t *testing.T) {
	l := newTestLimiter(t, WithRate(0.001, 1), WithExempt(func(r *http.Request) bool {
		return httpmw.IsStaticAsset(r.URL.Path)
	}))
	h := l.Middleware(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))

	for i := 0; i < 5; i++ {
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, request("/wp-content/plugins/p/js/public.js", "203.0.113.5"))
		if rec.Code != http.StatusOK {
			t.Fatalf("bundle request %d = %d", i, rec.Code)
		}
	}
	if l.Len() != 0 {
		t.Fatal("exempt requests created visitors")
	}
}

func TestMiddleware_Concurrent(t *testing.T) {
	l := newTestLimiter(t, WithRate(0.001, 10))
	h := l.Middleware(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))

	var ok atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, request("/", "198.51.100.1"))
			if rec.Code == http.StatusOK {
				ok.Add(1)
			}
		}()
	}
	wg.Wait()
	if ok.Load() != 10 {
		t.Fatalf("allowed %d, want exactly burst (10)", ok.Load())
	}
}
