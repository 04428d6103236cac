package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"path"
	"strings"

	"github.com/danielgtaylor/huma/v2"
	"github.com/sirupsen/logrus"

	"taskboard/internal/identity"
)

type identityKey struct{}

func withIdentity(ctx context.Context, id identity.Identity) context.Context {
	return context.WithValue(ctx, identityKey{}, id)
}

func identityFromContext(ctx context.Context) (identity.Identity, bool) {
	id, ok := ctx.Value(identityKey{}).(identity.Identity)
	return id, ok
}

// userIDFromContext is the only source of the uid used to derive storage keys.
func userIDFromContext(ctx context.Context) (string, huma.StatusError) {
	if id, ok := identityFromContext(ctx); ok && id.UserID != "" {
		return id.UserID, nil
	}
	return "", newAPIError(http.StatusUnauthorized, "Unauthorized")
}

func bearerToken(authz string) (string, bool) {
	parts := strings.Fields(authz)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") {
		return "", false
	}
	return parts[1], true
}

// publicPaths are served without a bearer token.
func publicPaths(basePath string) map[string]bool {
	public := map[string]bool{"/docs": true}
	for _, p := range []string{"health", "signup", "login", "openapi.json"} {
		public[path.Join("/", basePath, p)] = true
	}
	return public
}

func newAuthMiddleware(basePath string, verifier identity.Verifier, logger logrus.FieldLogger) func(http.Handler) http.Handler {
	public := publicPaths(basePath)
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			if public[req.URL.Path] {
				next.ServeHTTP(w, req)
				return
			}
			authz := strings.TrimSpace(req.Header.Get("Authorization"))
			if authz == "" {
				respondStatusError(w, newAPIError(http.StatusUnauthorized, "Unauthorized"))
				return
			}
			token, ok := bearerToken(authz)
			if !ok {
				respondStatusError(w, newAPIError(http.StatusUnauthorized, "Unauthorized"))
				return
			}
			id, err := verifier.Verify(req.Context(), token)
			if errors.Is(err, identity.ErrInvalidToken) {
				logger.WithError(err).WithField("path", req.URL.Path).Debug("bearer token rejected")
				respondStatusError(w, newAPIError(http.StatusUnauthorized, "Invalid token"))
				return
			}
			if err != nil {
				respondStatusError(w, handleError(err))
				return
			}
			next.ServeHTTP(w, req.WithContext(withIdentity(req.Context(), id)))
		})
	}
}

func respondStatusError(w http.ResponseWriter, err huma.StatusError) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(err.GetStatus())
	_ = json.NewEncoder(w).Encode(err)
}
