package middleware

import (
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"hls-ingest/internal/logging"
)

// CORSConfig lists the origins allowed to call the service from a browser.
// The entry "*" allows any origin; the request origin is echoed back so that
// credentials remain usable.
type CORSConfig struct {
	Origins []string
}

type corsPolicy struct {
	any     bool
	allowed map[string]struct{}
}

func newCORSPolicy(cfg CORSConfig) (corsPolicy, error) {
	policy := corsPolicy{allowed: make(map[string]struct{})}
	for _, origin := range cfg.Origins {
		if strings.TrimSpace(origin) == "*" {
			policy.any = true
			continue
		}
		normalized, err := normalizeOrigin(origin)
		if err != nil {
			return corsPolicy{}, fmt.Errorf("parse origin %q: %w", origin, err)
		}
		if normalized != "" {
			policy.allowed[normalized] = struct{}{}
		}
	}
	return policy, nil
}

func normalizeOrigin(origin string) (string, error) {
	origin = strings.TrimSpace(origin)
	if origin == "" {
		return "", nil
	}
	parsed, err := url.Parse(origin)
	if err != nil {
		return "", err
	}
	if parsed.Scheme == "" || parsed.Host == "" {
		return "", fmt.Errorf("origin must include scheme and host")
	}
	return strings.ToLower(parsed.Scheme) + "://" + strings.ToLower(parsed.Host), nil
}

func (p corsPolicy) allows(origin string) bool {
	if p.any {
		return true
	}
	normalized, err := normalizeOrigin(origin)
	if err != nil || normalized == "" {
		return false
	}
	_, ok := p.allowed[normalized]
	return ok
}

// CORS returns middleware that adds CORS headers for allowed origins and
// answers preflight requests. Requests from other origins are served without
// CORS headers, leaving the browser to block them.
func CORS(cfg CORSConfig) (func(http.Handler) http.Handler, error) {
	policy, err := newCORSPolicy(cfg)
	if err != nil {
		return nil, err
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			origin := strings.TrimSpace(r.Header.Get("Origin"))
			if origin == "" {
				next.ServeHTTP(w, r)
				return
			}

			w.Header().Add("Vary", "Origin")
			allowed := policy.allows(origin)
			if !allowed {
				logging.Debug("CORS origin not allowed: %s", logging.SanitizeField(origin))
			} else {
				w.Header().Set("Access-Control-Allow-Origin", origin)
				w.Header().Set("Access-Control-Allow-Credentials", "true")
				w.Header().Set("Access-Control-Expose-Headers", JobIDHeader)
			}

			if r.Method == http.MethodOptions && r.Header.Get("Access-Control-Request-Method") != "" {
				if allowed {
					w.Header().Set("Access-Control-Allow-Methods", "GET, HEAD, POST, OPTIONS")
					if requested := r.Header.Get("Access-Control-Request-Headers"); requested != "" {
						w.Header().Set("Access-Control-Allow-Headers", requested)
					} else {
						w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Range")
					}
					w.Header().Set("Access-Control-Max-Age", "600")
				}
				w.WriteHeader(http.StatusNoContent)
				return
			}

			next.ServeHTTP(w, r)
		})
	}, nil
}
