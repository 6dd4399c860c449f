package server

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"path"
	"strings"

	"github.com/danielgtaylor/huma/v2"

	"stardock/internal/engine/auth"
)

type AuthConfig struct {
	Tokens auth.Tokens
	// DevLogin enables POST /auth/token, which mints a token from a player
	// name alone.
	DevLogin bool
	Logger   *slog.Logger
}

type Principal struct {
	PlayerID string
	Source   string
}

type principalKey struct{}

func (c AuthConfig) logger() *slog.Logger {
	if c.Logger != nil {
		return c.Logger
	}
	return slog.Default()
}

func withPrincipal(ctx context.Context, p Principal) context.Context {
	return context.WithValue(ctx, principalKey{}, p)
}

func principalFromContext(ctx context.Context) (Principal, bool) {
	p, ok := ctx.Value(principalKey{}).(Principal)
	return p, ok
}

func playerIDFromContext(ctx context.Context) (string, huma.StatusError) {
	if p, ok := principalFromContext(ctx); ok && p.PlayerID != "" {
		return p.PlayerID, nil
	}
	return "", newAPIError(http.StatusUnauthorized, "unauthorized", "authentication required", nil)
}

func bearerToken(authz string) (string, bool) {
	parts := strings.Fields(authz)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") {
		return "", false
	}
	return parts[1], true
}

// publicRoutes reports which requests can be made without a token: health,
// the OpenAPI document, registration and the read-only galaxy views.
func publicRoutes(basePath string) func(method, p string) bool {
	exact := map[string]bool{}
	for _, r := range []struct{ method, p string }{
		{http.MethodGet, "health"},
		{http.MethodGet, "openapi.json"},
		{http.MethodGet, "world"},
		{http.MethodGet, "systems"},
		{http.MethodPost, "players"},
		{http.MethodPost, "auth/token"},
	} {
		exact[r.method+" "+path.Join(basePath, r.p)] = true
	}
	systems := path.Join(basePath, "systems") + "/"
	return func(method, p string) bool {
		return exact[method+" "+p] || (method == http.MethodGet && strings.HasPrefix(p, systems))
	}
}

func newAuthMiddleware(basePath string, cfg AuthConfig) func(http.Handler) http.Handler {
	public := publicRoutes(basePath)
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			// Only enforce for API base path.
			if basePath != "" && !strings.HasPrefix(req.URL.Path, basePath) {
				next.ServeHTTP(w, req)
				return
			}
			authz := strings.TrimSpace(req.Header.Get("Authorization"))
			if authz == "" {
				if public(req.Method, req.URL.Path) {
					next.ServeHTTP(w, req)
					return
				}
				respondStatusError(w, newAPIError(http.StatusUnauthorized, "unauthorized", "authentication required", nil))
				return
			}
			token, ok := bearerToken(authz)
			if !ok {
				respondStatusError(w, newAPIError(http.StatusUnauthorized, "invalid_credentials", "invalid credentials", nil))
				return
			}
			playerID, err := cfg.Tokens.Parse(token)
			if err != nil {
				cfg.logger().Debug("rejected bearer token", "path", req.URL.Path, "err", err)
				respondStatusError(w, newAPIError(http.StatusUnauthorized, "invalid_credentials", "invalid credentials", nil))
				return
			}
			ctx := withPrincipal(req.Context(), Principal{PlayerID: playerID, Source: "jwt"})
			next.ServeHTTP(w, req.WithContext(ctx))
		})
	}
}

func respondStatusError(w http.ResponseWriter, err huma.StatusError) {
	status := http.StatusInternalServerError
	if e, ok := err.(interface{ GetStatus() int }); ok {
		status = e.GetStatus()
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(err)
}
