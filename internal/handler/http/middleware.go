package http

import (
	"context"
	"net/http"

	"github.com/gofrs/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/hlog"
)

// HeaderUserID carries the authenticated owner id, set by the auth proxy in
// front of the service.
const HeaderUserID = "X-User-ID"

type ctxKey int

const userIDKey ctxKey = iota

// RequireUser rejects requests without a valid HeaderUserID and stores the
// parsed id in the request context.
func RequireUser(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw := r.Header.Get(HeaderUserID)
		userID, err := uuid.FromString(raw)
		if err != nil || userID == uuid.Nil {
			hlog.FromRequest(r).Warn().Str("user_id", raw).Msg("Missing or invalid user id header")
			respondWithError(w, http.StatusUnauthorized, "Missing or invalid "+HeaderUserID+" header")
			return
		}

		hlog.FromRequest(r).UpdateContext(func(c zerolog.Context) zerolog.Context {
			return c.Stringer("owner_id", userID)
		})
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), userIDKey, userID)))
	})
}

func userIDFrom(ctx context.Context) uuid.UUID {
	id, _ := ctx.Value(userIDKey).(uuid.UUID)
	return id
}
