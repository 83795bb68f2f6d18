package api

import (
	"net/http"
	"net/url"
	"slices"

	"github.com/go-chi/cors"
)

// corsMiddleware returns nil when no origins are configured.
func (s *Server) corsMiddleware() func(http.Handler) http.Handler {
	if len(s.config.CORSAllowedOrigins) == 0 {
		return nil
	}
	return cors.Handler(cors.Options{
		AllowedOrigins:   s.config.CORSAllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Request-ID"},
		ExposedHeaders:   []string{"X-Request-ID"},
		AllowCredentials: false,
		MaxAge:           300,
	})
}

// checkOrigin decides whether a websocket upgrade may proceed. Non-browser
// clients send no Origin; browsers must match the host or a CORS origin.
func (s *Server) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	if slices.Contains(s.config.CORSAllowedOrigins, "*") || slices.Contains(s.config.CORSAllowedOrigins, origin) {
		return true
	}
	u, err := url.Parse(origin)
	if err != nil {
		return false
	}
	return u.Host == r.Host
}
