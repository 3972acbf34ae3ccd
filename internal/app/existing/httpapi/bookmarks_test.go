package httpapi

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"bmcheck.local/internal/app/existing"
	"bmcheck.local/internal/app/existing/cache"
	"bmcheck.local/internal/app/existing/remote"
	"bmcheck.local/internal/platform/auth"
	"github.com/go-chi/chi/v5"
)

type fakeChecker struct {
	mu          sync.Mutex
	requests    []existing.LookupRequest
	invalidated []string
	cancelled   []string

	res existing.Resolution
	err error
}

func (f *fakeChecker) Check(ctx context.Context, req existing.LookupRequest) (existing.Resolution, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.requests = append(f.requests, req)
	return f.res, f.err
}

func (f *fakeChecker) Invalidate(rawURL string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.invalidated = append(f.invalidated, rawURL)
}

func (f *fakeChecker) CancelOwner(ownerID string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cancelled = append(f.cancelled, ownerID)
	return true
}

func newRouter(svc Checker, opts Options) http.Handler {
	r := chi.NewRouter()
	r.Route("/api/v1", func(api chi.Router) {
		RegisterAPIRoutes(api, svc, opts)
	})
	return r
}

func do(h http.Handler, method, target, body string, headers map[string]string) *httptest.ResponseRecorder {
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
	} else {
		req = httptest.NewRequest(method, target, nil)
	}
	req.RemoteAddr = "198.51.100.7:5555"
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestCheckHandler_ReturnsFlattenedResolution(t *testing.T) {
	sim := 0.9
	svc := &fakeChecker{res: existing.NewResolution([]existing.CandidateMatch{
		{ID: 42, URL: "https://example.com/a", Title: "A", MatchType: existing.MatchURL, Priority: 1},
		{ID: 43, Title: "A2", Similarity: &sim, MatchType: existing.MatchTitle, Priority: 2},
	})}
	h := newRouter(svc, Options{})

	rec := do(h, http.MethodGet, "/api/v1/bookmarks/check?url=https://example.com/a&title=A", "", map[string]string{"X-Owner-ID": "tab-3"})
	if rec.Code != http.StatusOK {
		t.Fatalf("status: got %d, want %d, body=%s", rec.Code, http.StatusOK, rec.Body.String())
	}

	var body map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body["ok"] != true || body["found"] != true || body["count"] != float64(2) {
		t.Fatalf("body: got %v", body)
	}
	if body["id"] != float64(42) || body["matchType"] != "url" {
		t.Fatalf("flattened first match: got id=%v matchType=%v", body["id"], body["matchType"])
	}
	if _, ok := body["similarity"]; ok {
		t.Fatalf("url match must not carry similarity: %v", body)
	}

	if len(svc.requests) != 1 {
		t.Fatalf("requests: got %d, want 1", len(svc.requests))
	}
	got := svc.requests[0]
	if got.URL != "https://example.com/a" || got.Title != "A" || got.OwnerID != "tab-3" {
		t.Fatalf("request: got %+v", got)
	}
}

func TestCheckHandler_OwnerFallbacks(t *testing.T) {
	svc := &fakeChecker{res: existing.NotFound()}
	h := newRouter(svc, Options{})

	do(h, http.MethodGet, "/api/v1/bookmarks/check?url=x&owner=q-owner", "", nil)
	do(h, http.MethodGet, "/api/v1/bookmarks/check?url=x", "", nil)

	if svc.requests[0].OwnerID != "q-owner" {
		t.Fatalf("query owner: got %q", svc.requests[0].OwnerID)
	}
	if svc.requests[1].OwnerID != "" {
		t.Fatalf("no owner: got %q, want empty", svc.requests[1].OwnerID)
	}
}

func TestCheckHandler_RequestsWithoutOwnerDoNotSupersede(t *testing.T) {
	release := make(chan struct{})
	r := &blockingRemote{release: release}
	c, err := cache.New[existing.Resolution](16)
	if err != nil {
		t.Fatalf("cache.New: %v", err)
	}
	t.Cleanup(c.Close)
	set := existing.DefaultSettings()
	set.TitleSimilarityEnabled = false
	svc := existing.NewService(existing.StaticSettings(set), r, c)
	h := newRouter(svc, Options{})

	// 同一 IP 的两个请求，查的是不同页面
	first := make(chan *httptest.ResponseRecorder, 1)
	go func() {
		first <- do(h, http.MethodGet, "/api/v1/bookmarks/check?url=https://a.example/x", "", nil)
	}()
	for r.calls.Load() < 1 {
		time.Sleep(5 * time.Millisecond)
	}
	second := make(chan *httptest.ResponseRecorder, 1)
	go func() {
		second <- do(h, http.MethodGet, "/api/v1/bookmarks/check?url=https://b.example/y", "", nil)
	}()
	for r.calls.Load() < 2 {
		time.Sleep(5 * time.Millisecond)
	}
	close(release)

	for name, ch := range map[string]chan *httptest.ResponseRecorder{"first": first, "second": second} {
		select {
		case rec := <-ch:
			if rec.Code != http.StatusOK {
				t.Fatalf("%s: got %d, want %d, body=%s", name, rec.Code, http.StatusOK, rec.Body.String())
			}
		case <-time.After(2 * time.Second):
			t.Fatalf("%s: timeout", name)
		}
	}
}

type blockingRemote struct {
	release chan struct{}
	calls   atomic.Int32
}

func (b *blockingRemote) LookupByURL(ctx context.Context, _ string) (remote.URLResult, error) {
	b.calls.Add(1)
	<-b.release
	return remote.URLResult{Records: []remote.Record{}}, nil
}

func (b *blockingRemote) LookupTitleCandidates(context.Context, int) ([]remote.Record, error) {
	return []remote.Record{}, nil
}

func TestCheckHandler_Errors(t *testing.T) {
	h := newRouter(&fakeChecker{err: existing.ErrAborted}, Options{})

	if rec := do(h, http.MethodGet, "/api/v1/bookmarks/check?url=x", "", nil); rec.Code != http.StatusConflict {
		t.Fatalf("aborted: got %d, want %d", rec.Code, http.StatusConflict)
	}
	if rec := do(h, http.MethodGet, "/api/v1/bookmarks/check?title=x", "", nil); rec.Code != http.StatusBadRequest {
		t.Fatalf("missing url: got %d, want %d", rec.Code, http.StatusBadRequest)
	}
}

func TestCheckHandler_UnavailableIsOK(t *testing.T) {
	h := newRouter(&fakeChecker{res: existing.Unavailable()}, Options{})

	rec := do(h, http.MethodGet, "/api/v1/bookmarks/check?url=x", "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status: got %d, want %d", rec.Code, http.StatusOK)
	}
	if !strings.Contains(rec.Body.String(), `"ok":false`) {
		t.Fatalf("body: got %s", rec.Body.String())
	}
}

func TestInvalidateHandler(t *testing.T) {
	svc := &fakeChecker{}
	h := newRouter(svc, Options{})

	rec := do(h, http.MethodPost, "/api/v1/bookmarks/invalidate", `{"url":"https://example.com/a"}`, nil)
	if rec.Code != http.StatusNoContent {
		t.Fatalf("status: got %d, want %d", rec.Code, http.StatusNoContent)
	}
	if len(svc.invalidated) != 1 || svc.invalidated[0] != "https://example.com/a" {
		t.Fatalf("invalidated: got %v", svc.invalidated)
	}

	if rec := do(h, http.MethodPost, "/api/v1/bookmarks/invalidate", `{`, nil); rec.Code != http.StatusBadRequest {
		t.Fatalf("bad json: got %d, want %d", rec.Code, http.StatusBadRequest)
	}
	if rec := do(h, http.MethodPost, "/api/v1/bookmarks/invalidate", `{"url":""}`, nil); rec.Code != http.StatusBadRequest {
		t.Fatalf("empty url: got %d, want %d", rec.Code, http.StatusBadRequest)
	}
}

func TestCancelOwnerHandler(t *testing.T) {
	svc := &fakeChecker{}
	h := newRouter(svc, Options{})

	rec := do(h, http.MethodDelete, "/api/v1/owners/tab-7", "", nil)
	if rec.Code != http.StatusNoContent {
		t.Fatalf("status: got %d, want %d", rec.Code, http.StatusNoContent)
	}
	if len(svc.cancelled) != 1 || svc.cancelled[0] != "tab-7" {
		t.Fatalf("cancelled: got %v", svc.cancelled)
	}
}

func TestRoutes_RequireTokenWhenAuthEnabled(t *testing.T) {
	ts, err := auth.NewHS256Service("test-secret", "bmcheck", time.Hour)
	if err != nil {
		t.Fatalf("NewHS256Service: %v", err)
	}
	svc := &fakeChecker{res: existing.NotFound()}
	h := newRouter(svc, Options{TokenService: ts})

	if rec := do(h, http.MethodGet, "/api/v1/bookmarks/check?url=x", "", nil); rec.Code != http.StatusUnauthorized {
		t.Fatalf("no token: got %d, want %d", rec.Code, http.StatusUnauthorized)
	}

	token, err := ts.Sign("laptop", auth.ScopeCheck)
	if err != nil {
		t.Fatalf("Sign: %v", err)
	}
	rec := do(h, http.MethodGet, "/api/v1/bookmarks/check?url=x", "", map[string]string{
		"Authorization": "Bearer " + token,
		"X-Owner-ID":    "tab-1",
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("with token: got %d, want %d, body=%s", rec.Code, http.StatusOK, rec.Body.String())
	}
	// owner 以 client id 为命名空间
	if got := svc.requests[0].OwnerID; got != "laptop/tab-1" {
		t.Fatalf("owner: got %q, want %q", got, "laptop/tab-1")
	}

	other, _ := ts.Sign("ops", "metrics")
	if rec := do(h, http.MethodGet, "/api/v1/bookmarks/check?url=x", "", map[string]string{"Authorization": "Bearer " + other}); rec.Code != http.StatusForbidden {
		t.Fatalf("wrong scope: got %d, want %d", rec.Code, http.StatusForbidden)
	}
}
