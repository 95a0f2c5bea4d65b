package security

import (
	"crypto/tls"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func noContent() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})
}

func serve(h http.Handler, req *http.Request) http.Header {
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	return rr.Result().Header
}

func TestHeadersOverTLS(t *testing.T) {
	handler := Headers(HeaderPolicy{HSTS: true, IncludeSubdomains: true})(noContent())

	req := httptest.NewRequest(http.MethodGet, "https://api.example.org/fees/schedule", nil)
	req.TLS = &tls.ConnectionState{}
	headers := serve(handler, req)

	require.Equal(t, "nosniff", headers.Get("X-Content-Type-Options"))
	require.Equal(t, "DENY", headers.Get("X-Frame-Options"))
	require.Equal(t, "no-store", headers.Get("Cache-Control"))
	require.Equal(t, "max-age=31536000; includeSubDomains", headers.Get("Strict-Transport-Security"))
}

func TestHeadersHSTSBehindProxy(t *testing.T) {
	handler := Headers(HeaderPolicy{HSTS: true, HSTSMaxAge: 10 * time.Minute})(noContent())

	req := httptest.NewRequest(http.MethodGet, "http://api.internal/fees/schedule", nil)
	req.Header.Set("X-Forwarded-Proto", "https")
	require.Equal(t, "max-age=600", serve(handler, req).Get("Strict-Transport-Security"))

	plain := serve(handler, httptest.NewRequest(http.MethodGet, "http://api.internal/fees/schedule", nil))
	require.Empty(t, plain.Get("Strict-Transport-Security"))
	require.Equal(t, "nosniff", plain.Get("X-Content-Type-Options"))
}

func TestHeadersWithoutHSTS(t *testing.T) {
	handler := Headers(HeaderPolicy{})(noContent())
	req := httptest.NewRequest(http.MethodGet, "https://api.example.org/", nil)
	req.TLS = &tls.ConnectionState{}
	require.Empty(t, serve(handler, req).Get("Strict-Transport-Security"))
}
