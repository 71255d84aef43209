package middleware

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
)

func TestRateLimitConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		config  RateLimitConfig
		wantErr bool
	}{
		{"valid", FeedLimit(120), false},
		{"zero requests", RateLimitConfig{RequestsPerWindow: 0, WindowDuration: time.Minute}, true},
		{"negative window", RateLimitConfig{RequestsPerWindow: 1, WindowDuration: -time.Second}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := tt.config.Validate(); (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestInMemoryRateLimitStore_Allow(t *testing.T) {
	tests := []struct {
		name          string
		requestCount  int
		limit         int
		wantAllowed   []bool
		wantRemaining []int
	}{
		{
			name:          "allows requests under limit",
			requestCount:  3,
			limit:         5,
			wantAllowed:   []bool{true, true, true},
			wantRemaining: []int{4, 3, 2},
		},
		{
			name:          "blocks requests at limit",
			requestCount:  4,
			limit:         3,
			wantAllowed:   []bool{true, true, true, false},
			wantRemaining: []int{2, 1, 0, 0},
		},
		{
			name:          "single request limit",
			requestCount:  3,
			limit:         1,
			wantAllowed:   []bool{true, false, false},
			wantRemaining: []int{0, 0, 0},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := NewInMemoryRateLimitStore()
			config := RateLimitConfig{RequestsPerWindow: tt.limit, WindowDuration: time.Minute}

			for i := 0; i < tt.requestCount; i++ {
				allowed, remaining, retryAfter := store.Allow(context.Background(), "k", config)
				if allowed != tt.wantAllowed[i] {
					t.Errorf("request %d: got allowed=%v, want %v", i+1, allowed, tt.wantAllowed[i])
				}
				if remaining != tt.wantRemaining[i] {
					t.Errorf("request %d: got remaining=%d, want %d", i+1, remaining, tt.wantRemaining[i])
				}
				if !allowed && (retryAfter < 1 || retryAfter > 60) {
					t.Errorf("request %d: retryAfter %d out of range", i+1, retryAfter)
				}
			}
		})
	}
}

func TestInMemoryRateLimitStore_WindowReset(t *testing.T) {
	store := NewInMemoryRateLimitStore()
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	store.now = func() time.Time { return now }
	config := RateLimitConfig{RequestsPerWindow: 1, WindowDuration: time.Minute}
	ctx := context.Background()

	if allowed, _, _ := store.Allow(ctx, "k", config); !allowed {
		t.Fatal("first request should be allowed")
	}
	if allowed, _, _ := store.Allow(ctx, "k", config); allowed {
		t.Fatal("second request should be blocked")
	}

	now = now.Add(time.Minute)
	if allowed, _, _ := store.Allow(ctx, "k", config); !allowed {
		t.Error("request in the next window should be allowed")
	}

	now = now.Add(2 * time.Minute)
	store.Cleanup()
	if n := len(store.buckets); n != 0 {
		t.Errorf("expected expired buckets removed, got %d", n)
	}
}

func TestInMemoryRateLimitStore_Concurrent(t *testing.T) {
	store := NewInMemoryRateLimitStore()
	config := RateLimitConfig{RequestsPerWindow: 50, WindowDuration: time.Minute}

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		allowed int
	)
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if ok, _, _ := store.Allow(context.Background(), "shared", config); ok {
				mu.Lock()
				allowed++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	if allowed != 50 {
		t.Errorf("expected exactly 50 allowed, got %d", allowed)
	}
}

func newRedisStore(t *testing.T) (*RedisRateLimitStore, *miniredis.Miniredis, *Metrics) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	m := NewMetrics()
	if err := m.Register(prometheus.NewRegistry()); err != nil {
		t.Fatalf("Register() failed: %v", err)
	}
	return NewRedisRateLimitStore(client, nil, m), mr, m
}

func TestRedisRateLimitStore_Allow(t *testing.T) {
	store, mr, _ := newRedisStore(t)
	config := RateLimitConfig{RequestsPerWindow: 3, WindowDuration: time.Minute}
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		allowed, remaining, _ := store.Allow(ctx, "viewer:v1", config)
		if !allowed {
			t.Fatalf("request %d should be allowed", i+1)
		}
		if remaining != 2-i {
			t.Errorf("request %d: expected remaining=%d, got %d", i+1, 2-i, remaining)
		}
	}

	allowed, remaining, retryAfter := store.Allow(ctx, "viewer:v1", config)
	if allowed {
		t.Fatal("4th request should be blocked")
	}
	if remaining != 0 {
		t.Errorf("expected remaining=0, got %d", remaining)
	}
	if retryAfter < 1 || retryAfter > 60 {
		t.Errorf("expected retryAfter between 1 and 60, got %d", retryAfter)
	}

	if ttl := mr.TTL(RedisKeyPrefix + "viewer:v1"); ttl <= 0 || ttl > time.Minute {
		t.Errorf("expected counter to expire within the window, ttl=%v", ttl)
	}

	mr.FastForward(time.Minute)
	if allowed, _, _ := store.Allow(ctx, "viewer:v1", config); !allowed {
		t.Error("expected request after window expiry to be allowed")
	}
}

func TestRedisRateLimitStore_IndependentKeys(t *testing.T) {
	store, _, _ := newRedisStore(t)
	config := RateLimitConfig{RequestsPerWindow: 1, WindowDuration: time.Minute}
	ctx := context.Background()

	if allowed, _, _ := store.Allow(ctx, "viewer:a", config); !allowed {
		t.Fatal("viewer a should be allowed")
	}
	if allowed, _, _ := store.Allow(ctx, "viewer:b", config); !allowed {
		t.Error("viewer b should have its own limit")
	}
}

func TestRedisRateLimitStore_FailsOpen(t *testing.T) {
	store, mr, m := newRedisStore(t)
	mr.Close()

	allowed, remaining, _ := store.Allow(context.Background(), "viewer:v1", FeedLimit(5))
	if !allowed {
		t.Error("expected request to be allowed when Redis is down")
	}
	if remaining != 5 {
		t.Errorf("expected full remaining budget, got %d", remaining)
	}
	if got := getCounterValue(t, m.rateLimitStoreErrors); got != 1 {
		t.Errorf("expected 1 store error, got %v", got)
	}
}

func TestKeyFuncs(t *testing.T) {
	tests := []struct {
		name    string
		headers map[string]string
		remote  string
		viewer  string
		keyFunc KeyFunc
		want    string
	}{
		{name: "remote addr", remote: "10.0.0.1:5555", keyFunc: IPKeyFunc(), want: "ip:10.0.0.1"},
		{name: "remote addr without port", remote: "10.0.0.1", keyFunc: IPKeyFunc(), want: "ip:10.0.0.1"},
		{name: "forwarded for", headers: map[string]string{"X-Forwarded-For": " 1.2.3.4 , 10.0.0.1"}, remote: "10.0.0.1:1", keyFunc: IPKeyFunc(), want: "ip:1.2.3.4"},
		{name: "real ip", headers: map[string]string{"X-Real-IP": "5.6.7.8"}, remote: "10.0.0.1:1", keyFunc: IPKeyFunc(), want: "ip:5.6.7.8"},
		{name: "viewer", viewer: "v1", remote: "10.0.0.1:1", keyFunc: ViewerKeyFunc(), want: "viewer:v1"},
		{name: "anonymous viewer falls back to ip", remote: "10.0.0.1:1", keyFunc: ViewerKeyFunc(), want: "ip:10.0.0.1"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/feed", nil)
			req.RemoteAddr = tt.remote
			for k, v := range tt.headers {
				req.Header.Set(k, v)
			}
			if tt.viewer != "" {
				req = req.WithContext(SetViewerID(req.Context(), tt.viewer))
			}
			if got := tt.keyFunc(req); got != tt.want {
				t.Errorf("key = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestRateLimiter_Middleware(t *testing.T) {
	m := NewMetrics()
	if err := m.Register(prometheus.NewRegistry()); err != nil {
		t.Fatalf("Register() failed: %v", err)
	}
	config := RateLimitConfig{RequestsPerWindow: 2, WindowDuration: time.Minute}
	handler := RateLimiter(NewInMemoryRateLimitStore(), config, IPKeyFunc(), m)(
		http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusOK)
		}),
	)

	serve := func() *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodGet, "/feed", nil)
		req.RemoteAddr = "192.0.2.1:1234"
		rr := httptest.NewRecorder()
		handler.ServeHTTP(rr, req)
		return rr
	}

	for i := 0; i < 2; i++ {
		rr := serve()
		if rr.Code != http.StatusOK {
			t.Fatalf("request %d: expected 200, got %d", i+1, rr.Code)
		}
		if got := rr.Header().Get("X-RateLimit-Remaining"); got != strconv.Itoa(1-i) {
			t.Errorf("request %d: expected remaining %d, got %s", i+1, 1-i, got)
		}
	}

	rr := serve()
	if rr.Code != http.StatusTooManyRequests {
		t.Fatalf("expected 429, got %d", rr.Code)
	}
	if rr.Header().Get("Retry-After") == "" {
		t.Error("expected Retry-After header")
	}
	if rr.Header().Get("X-RateLimit-Reset") == "" {
		t.Error("expected X-RateLimit-Reset header")
	}
	if got := rr.Header().Get("X-RateLimit-Limit"); got != "2" {
		t.Errorf("expected limit 2, got %s", got)
	}

	var body struct {
		Error struct {
			Code string `json:"code"`
		} `json:"error"`
	}
	if err := json.NewDecoder(rr.Body).Decode(&body); err != nil {
		t.Fatalf("failed to decode body: %v", err)
	}
	if body.Error.Code != "rate_limited" {
		t.Errorf("expected rate_limited code, got %q", body.Error.Code)
	}

	if got := getCounterValue(t, m.rateLimitRequests.WithLabelValues("ip")); got != 3 {
		t.Errorf("expected 3 checks, got %v", got)
	}
	if got := getCounterValue(t, m.rateLimitBlocked.WithLabelValues("ip")); got != 1 {
		t.Errorf("expected 1 blocked, got %v", got)
	}
}

func TestRetryAfterSeconds(t *testing.T) {
	tests := []struct {
		in   time.Duration
		want int
	}{
		{0, 1},
		{-time.Second, 1},
		{500 * time.Millisecond, 1},
		{time.Second, 1},
		{1500 * time.Millisecond, 2},
		{time.Minute, 60},
	}
	for _, tt := range tests {
		if got := retryAfterSeconds(tt.in); got != tt.want {
			t.Errorf("retryAfterSeconds(%v) = %d, want %d", tt.in, got, tt.want)
		}
	}
}
