package proxy

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
)

func TestCacheKey(t *testing.T) {
	if got := CacheKey("/api/clients/1/profile", ""); got != "api:/api/clients/1/profile" {
		t.Errorf("CacheKey = %q", got)
	}
	if got := CacheKey("/api/clients/1/profile", "full=1"); got != "api:/api/clients/1/profile?full=1" {
		t.Errorf("CacheKey with query = %q", got)
	}
	if CacheKey("/p", "a=1") == CacheKey("/p", "a=2") {
		t.Error("different queries must not share a key")
	}
}

func TestCacheable(t *testing.T) {
	cases := []struct {
		method, path string
		want         bool
	}{
		{http.MethodGet, "/api/clients/12/profile", true},
		{http.MethodGet, "/api/clients/12/measurements", true},
		{http.MethodGet, "/api/trainers/dashboard", true},
		{http.MethodPost, "/api/clients/12/profile", false},
		{http.MethodGet, "/api/clients/abc/profile", false},
		{http.MethodGet, "/api/workouts", false},
		{http.MethodGet, "/api/clients/12/profile/extra", false},
	}
	for _, tc := range cases {
		if got := Cacheable(tc.method, tc.path); got != tc.want {
			t.Errorf("Cacheable(%s %s) = %v, want %v", tc.method, tc.path, got, tc.want)
		}
	}
}

func newTestProxy(t *testing.T, origin string) *APIProxy {
	t.Helper()
	return &APIProxy{
		KV:         newTestKV(t),
		Origin:     origin,
		Client:     &http.Client{Timeout: 2 * time.Second},
		TTL:        time.Hour,
		Log:        zerolog.Nop(),
		Background: syncBackground,
	}
}

func proxyEngine(p *APIProxy) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.NoRoute(p.Handle)
	return r
}

func TestProxyMissThenHit(t *testing.T) {
	var hits atomic.Int64
	origin := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		hits.Add(1)
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"clients":3}`))
	}))
	defer origin.Close()

	r := proxyEngine(newTestProxy(t, origin.URL))

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/trainers/dashboard", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	if got := w.Header().Get("X-Cache"); got != TagMiss {
		t.Errorf("first X-Cache = %q, want %q", got, TagMiss)
	}

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/trainers/dashboard", nil))
	if got := w.Header().Get("X-Cache"); got != TagHit {
		t.Errorf("second X-Cache = %q, want %q", got, TagHit)
	}
	if w.Body.String() != `{"clients":3}` {
		t.Errorf("cached body = %s", w.Body.String())
	}
	if hits.Load() != 1 {
		t.Errorf("origin hits = %d, want 1", hits.Load())
	}
}

func TestProxyUncacheablePassesThrough(t *testing.T) {
	var hits atomic.Int64
	origin := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		hits.Add(1)
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"ok":true}`))
	}))
	defer origin.Close()

	r := proxyEngine(newTestProxy(t, origin.URL))
	for i := 0; i < 2; i++ {
		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/workouts", nil))
		if got := w.Header().Get("X-Cache"); got != TagMiss {
			t.Errorf("request %d X-Cache = %q, want MISS every time", i, got)
		}
	}
	if hits.Load() != 2 {
		t.Errorf("origin hits = %d, want 2", hits.Load())
	}
}

func TestProxyForwardsMethodAndBody(t *testing.T) {
	origin := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		if req.Method != http.MethodPost {
			t.Errorf("method = %s", req.Method)
		}
		var body map[string]any
		if err := json.NewDecoder(req.Body).Decode(&body); err != nil || body["reps"] != float64(10) {
			t.Errorf("body = %v (%v)", body, err)
		}
		if req.Header.Get("Authorization") != "Bearer tok" {
			t.Error("Authorization header not forwarded")
		}
		w.WriteHeader(http.StatusCreated)
		w.Write([]byte(`{"id":1}`))
	}))
	defer origin.Close()

	r := proxyEngine(newTestProxy(t, origin.URL))
	req := httptest.NewRequest(http.MethodPost, "/api/workouts", strings.NewReader(`{"reps":10}`))
	req.Header.Set("Authorization", "Bearer tok")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	if w.Code != http.StatusCreated {
		t.Errorf("status = %d, want 201", w.Code)
	}
}

func TestProxyServesStaleOnOriginFailure(t *testing.T) {
	p := newTestProxy(t, "http://127.0.0.1:0") // unroutable origin
	key := CacheKey("/api/trainers/dashboard", "")

	// An expired entry: the live read misses but the shadow copy remains.
	if err := p.KV.Put(key, []byte(`{"clients":9}`), 10*time.Millisecond); err != nil {
		t.Fatalf("KV.Put: %v", err)
	}
	time.Sleep(50 * time.Millisecond)
	if _, found, _ := p.KV.Get(key); found {
		t.Fatal("precondition: entry should have expired")
	}

	r := proxyEngine(p)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/trainers/dashboard", nil))

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200 from stale data", w.Code)
	}
	if got := w.Header().Get("X-Cache"); got != TagStale {
		t.Errorf("X-Cache = %q, want %q", got, TagStale)
	}
	if w.Header().Get("X-Backend-Error") == "" {
		t.Error("X-Backend-Error missing on stale response")
	}
	if w.Body.String() != `{"clients":9}` {
		t.Errorf("stale body = %s", w.Body.String())
	}
}

func TestProxyUnavailableWithoutStale(t *testing.T) {
	p := newTestProxy(t, "http://127.0.0.1:0")
	r := proxyEngine(p)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/trainers/dashboard", nil))
	if w.Code != http.StatusServiceUnavailable {
		t.Fatalf("status = %d, want 503", w.Code)
	}
	var body map[string]string
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("body: %v", err)
	}
	if body["error"] != "Backend unavailable" {
		t.Errorf("error = %q", body["error"])
	}
	if body["message"] == "" {
		t.Error("message should carry the cause")
	}
}
