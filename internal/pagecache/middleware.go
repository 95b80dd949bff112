package pagecache

import (
	"bytes"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog/hlog"
)

const HeaderCache = "X-Cache"

// Middleware serves GET requests from cache and stores successful JSON
// responses for later requests. Cache failures fall through to next.
func Middleware(cache Cache) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Method != http.MethodGet {
				next.ServeHTTP(w, r)
				return
			}
			path := r.URL.Path

			body, err := cache.Get(r.Context(), path)
			if err == nil {
				w.Header().Set("Content-Type", "application/json")
				w.Header().Set(HeaderCache, "HIT")
				w.WriteHeader(http.StatusOK)
				_, _ = w.Write(body)
				return
			}
			if !errors.Is(err, ErrMiss) {
				hlog.FromRequest(r).Warn().Err(err).Str("path", path).Msg("pagecache: lookup failed")
			}

			var buf bytes.Buffer
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			ww.Tee(&buf)
			w.Header().Set(HeaderCache, "MISS")

			next.ServeHTTP(ww, r)

			if ww.Status() != http.StatusOK {
				return
			}
			if err := cache.Put(r.Context(), path, buf.Bytes()); err != nil {
				hlog.FromRequest(r).Warn().Err(err).Str("path", path).Msg("pagecache: store failed")
			}
		})
	}
}
