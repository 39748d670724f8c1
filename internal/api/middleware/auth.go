package middleware

import (
	"context"
	"net/http"

	"github.com/edvin/pgbackup/internal/api/response"
	"github.com/edvin/pgbackup/internal/model"
)

type contextKey string

const APIKeyIdentityKey contextKey = "api_key_identity"

// Authenticator resolves a raw API key. *store.APIKeys satisfies it.
type Authenticator interface {
	Authenticate(ctx context.Context, rawKey string) (*model.APIKey, error)
}

// Auth returns a middleware that validates the X-API-Key header against the
// api_keys table.
func Auth(keys Authenticator) func(http.Handler) http.Handler {
	return authenticate(keys, false, unauthorized)
}

// AuthWithToken is Auth that also accepts a token query parameter, for
// browser websocket upgrades which cannot set headers.
func AuthWithToken(keys Authenticator) func(http.Handler) http.Handler {
	return authenticate(keys, true, unauthorized)
}

// AuthForbidden answers every failure with a fixed forbidden response, for
// download links that must not reveal why access was refused. It accepts
// the token query parameter.
func AuthForbidden(keys Authenticator) func(http.Handler) http.Handler {
	return authenticate(keys, true, func(w http.ResponseWriter, _ string) {
		response.WriteError(w, http.StatusForbidden, "forbidden")
	})
}

func unauthorized(w http.ResponseWriter, msg string) {
	response.WriteError(w, http.StatusUnauthorized, msg)
}

func authenticate(keys Authenticator, queryToken bool, deny func(w http.ResponseWriter, msg string)) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := r.Header.Get("X-API-Key")
			if key == "" && queryToken {
				key = r.URL.Query().Get("token")
			}
			if key == "" {
				deny(w, "missing API key")
				return
			}

			identity, err := keys.Authenticate(r.Context(), key)
			if err != nil {
				deny(w, "invalid API key")
				return
			}

			ctx := context.WithValue(r.Context(), APIKeyIdentityKey, identity)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// GetIdentity returns the authenticated key, or nil.
func GetIdentity(ctx context.Context) *model.APIKey {
	k, _ := ctx.Value(APIKeyIdentityKey).(*model.APIKey)
	return k
}

// RequireScope rejects keys lacking scope with a fixed forbidden response.
func RequireScope(scope string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			k := GetIdentity(r.Context())
			if k == nil || !model.HasScope(k.Scopes, scope) {
				response.WriteError(w, http.StatusForbidden, "forbidden")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
