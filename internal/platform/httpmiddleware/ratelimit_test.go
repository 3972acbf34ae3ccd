package httpmiddleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"strconv"
	"testing"
	"time"

	"bmcheck.local/internal/platform/ratelimit"
	"github.com/go-chi/chi/v5"
	"github.com/redis/go-redis/v9"
)

func TestRateLimitMiddleware_HTTP(t *testing.T) {
	redisAddr := os.Getenv("REDIS_ADDR")
	if redisAddr == "" {
		redisAddr = "localhost:6379"
	}
	redisDB := 0
	if v := os.Getenv("REDIS_DB"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 0 {
			redisDB = n
		}
	}
	client := redis.NewClient(&redis.Options{
		Addr:     redisAddr,
		Password: os.Getenv("REDIS_PASSWORD"),
		DB:       redisDB,
	})
	t.Cleanup(func() { _ = client.Close() })

	pingCtx, cancel := context.WithTimeout(context.Background(), 800*time.Millisecond)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		t.Skipf("skip: redis not available at %s: %v", redisAddr, err)
	}

	prefix := "test-" + strconv.FormatInt(time.Now().UnixNano(), 10)
	window := 2 * time.Second
	limit := 2

	r := chi.NewRouter()
	r.With(RateLimit(ratelimit.NewLimiter(client), prefix, limit, window)).
		Get("/t", func(w http.ResponseWriter, r *http.Request) { w.Write([]byte("ok")) })

	doReq := func(remoteAddr string, headers map[string]string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodGet, "/t", nil)
		req.RemoteAddr = remoteAddr
		for k, v := range headers {
			req.Header.Set(k, v)
		}
		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, req)
		return rec
	}

	// 模拟 Cloudflare->Caddy：RemoteAddr=127.0.0.1(可信代理)，真实 IP 放在 CF-Connecting-IP。
	h := map[string]string{"CF-Connecting-IP": "203.0.113.10"}
	for i := 1; i <= limit; i++ {
		if got := doReq("127.0.0.1:1234", h).Code; got != http.StatusOK {
			t.Fatalf("request %d: got %d, want %d", i, got, http.StatusOK)
		}
	}

	rec := doReq("127.0.0.1:1234", h)
	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("over limit: got %d, want %d, body=%s", rec.Code, http.StatusTooManyRequests, rec.Body.String())
	}
	if rec.Header().Get("Retry-After") == "" {
		t.Fatal("Retry-After missing")
	}

	// 另一个客户端不受影响
	if got := doReq("127.0.0.1:1234", map[string]string{"CF-Connecting-IP": "203.0.113.11"}).Code; got != http.StatusOK {
		t.Fatalf("other client: got %d, want %d", got, http.StatusOK)
	}
}

func TestRateLimitMiddleware_NilLimiterPassesThrough(t *testing.T) {
	called := false
	h := RateLimit(nil, "x", 1, time.Second)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { called = true }))
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))
	if !called {
		t.Fatal("handler not called")
	}
}
