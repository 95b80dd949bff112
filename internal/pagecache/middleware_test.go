package pagecache_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vasiliy-maslov/ecommerce-storefront/internal/pagecache"
)

type mapCache struct {
	mu    sync.Mutex
	pages map[string][]byte
	err   error
}

func newMapCache() *mapCache {
	return &mapCache{pages: map[string][]byte{}}
}

func (c *mapCache) Get(_ context.Context, path string) ([]byte, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.err != nil {
		return nil, c.err
	}
	body, ok := c.pages[path]
	if !ok {
		return nil, pagecache.ErrMiss
	}
	return body, nil
}

func (c *mapCache) Put(_ context.Context, path string, body []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.pages[path] = append([]byte(nil), body...)
	return nil
}

func (c *mapCache) Invalidate(_ context.Context, paths ...string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, p := range paths {
		delete(c.pages, p)
	}
	return nil
}

func newRouter(cache pagecache.Cache, calls *int) chi.Router {
	router := chi.NewRouter()
	router.With(pagecache.Middleware(cache)).Get("/products/{id}", func(w http.ResponseWriter, r *http.Request) {
		*calls++
		if chi.URLParam(r, "id") == "missing" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"` + chi.URLParam(r, "id") + `"}`))
	})
	return router
}

func get(t *testing.T, router http.Handler, path string) *httptest.ResponseRecorder {
	t.Helper()
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, path, nil))
	return rr
}

func TestMiddleware_CachesSuccessfulResponses(t *testing.T) {
	cache := newMapCache()
	calls := 0
	router := newRouter(cache, &calls)

	first := get(t, router, "/products/p1")
	require.Equal(t, http.StatusOK, first.Code)
	assert.Equal(t, "MISS", first.Header().Get(pagecache.HeaderCache))

	second := get(t, router, "/products/p1")
	require.Equal(t, http.StatusOK, second.Code)
	assert.Equal(t, "HIT", second.Header().Get(pagecache.HeaderCache))
	assert.Equal(t, first.Body.String(), second.Body.String())
	assert.Equal(t, 1, calls)

	require.NoError(t, cache.Invalidate(context.Background(), "/products/p1"))
	third := get(t, router, "/products/p1")
	assert.Equal(t, "MISS", third.Header().Get(pagecache.HeaderCache))
	assert.Equal(t, 2, calls)
}

func TestMiddleware_SkipsErrorResponses(t *testing.T) {
	cache := newMapCache()
	calls := 0
	router := newRouter(cache, &calls)

	get(t, router, "/products/missing")
	get(t, router, "/products/missing")

	assert.Equal(t, 2, calls)
	assert.Empty(t, cache.pages)
}

func TestMiddleware_CacheFailureFallsThrough(t *testing.T) {
	cache := newMapCache()
	cache.err = errors.New("connection refused")
	calls := 0
	router := newRouter(cache, &calls)

	rr := get(t, router, "/products/p1")
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.JSONEq(t, `{"id":"p1"}`, rr.Body.String())
	assert.Equal(t, 1, calls)
}
