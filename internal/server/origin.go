// Package server normalizes and validates HTTP origins for WebSocket requests
// to enforce configured access control.
package server

import (
	"net/http"
	"net/url"
	"strings"

	"github.com/rs/zerolog"
)

// normalizeOrigins returns the normalized allow-list, whether "*" was
// present, and the entries that could not be parsed.
func normalizeOrigins(origins []string) ([]string, bool, []string) {
	if len(origins) == 0 {
		return nil, false, nil
	}

	normalized := make([]string, 0, len(origins))
	allowAll := false
	var invalid []string

	for _, origin := range origins {
		trimmed := strings.TrimSpace(origin)
		if trimmed == "" {
			continue
		}

		if trimmed == "*" {
			allowAll = true
			continue
		}

		normalizedOrigin, ok := normalizeOrigin(trimmed)
		if !ok {
			invalid = append(invalid, origin)
			continue
		}

		normalized = append(normalized, normalizedOrigin)
	}

	return normalized, allowAll, invalid
}

func normalizeOrigin(origin string) (string, bool) {
	parsed, err := url.Parse(origin)
	if err != nil {
		return "", false
	}

	if parsed.Scheme == "" || parsed.Host == "" {
		return "", false
	}

	normalized := strings.ToLower(parsed.Scheme) + "://" + strings.ToLower(parsed.Host)
	return normalized, true
}

// OriginAllowed reports whether the request's Origin header is on the
// allow-list. Requests without an Origin header are refused.
func (c *Config) OriginAllowed(r *http.Request) bool {
	originHeader := r.Header.Get("Origin")
	if originHeader == "" {
		return false
	}

	normalizedOrigin, ok := normalizeOrigin(originHeader)
	if !ok {
		return false
	}

	if c.allowAllOrigins {
		return true
	}

	_, exists := c.normalizedOriginsSet[normalizedOrigin]
	return exists
}

// corsOrigins is the allow-list handed to the CORS middleware.
func (c *Config) corsOrigins() []string {
	if c.allowAllOrigins {
		return []string{"*"}
	}
	return c.AllowedOrigins
}

func checkOrigin(cfg *Config, log zerolog.Logger) func(r *http.Request) bool {
	return func(r *http.Request) bool {
		if cfg.OriginAllowed(r) {
			return true
		}

		log.Warn().Str("origin", r.Header.Get("Origin")).Msg("blocked websocket connection from disallowed origin")
		return false
	}
}
