package security

import (
	"fmt"
	"net/http"
	"time"
)

// HeaderPolicy selects the optional parts of the response hardening.
type HeaderPolicy struct {
	HSTS              bool
	HSTSMaxAge        time.Duration
	IncludeSubdomains bool
}

// baseHeaders apply to every response; the API serves JSON only.
var baseHeaders = [][2]string{
	{"X-Content-Type-Options", "nosniff"},
	{"X-Frame-Options", "DENY"},
	{"Referrer-Policy", "no-referrer"},
	{"Content-Security-Policy", "default-src 'none'; frame-ancestors 'none'"},
	{"Cache-Control", "no-store"},
}

// Headers returns middleware that writes the hardening headers before the
// handler runs. Strict-Transport-Security is only sent over TLS, including TLS
// terminated at a proxy that sets X-Forwarded-Proto.
func Headers(p HeaderPolicy) func(http.Handler) http.Handler {
	var hsts string
	if p.HSTS {
		maxAge := p.HSTSMaxAge
		if maxAge <= 0 {
			maxAge = 365 * 24 * time.Hour
		}
		hsts = fmt.Sprintf("max-age=%d", int64(maxAge/time.Second))
		if p.IncludeSubdomains {
			hsts += "; includeSubDomains"
		}
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			h := w.Header()
			for _, kv := range baseHeaders {
				h.Set(kv[0], kv[1])
			}
			if hsts != "" && (r.TLS != nil || r.Header.Get("X-Forwarded-Proto") == "https") {
				h.Set("Strict-Transport-Security", hsts)
			}
			next.ServeHTTP(w, r)
		})
	}
}
