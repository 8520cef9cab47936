package shield

import "net/http"

// Header is one response header set by SecurityHeaders.
type Header struct {
	Name, Value string
}

// DefaultHeaders covers the API, the upload form and preview pages. Preview
// images use absolute links built from the public URL, which may differ from
// the serving origin, so img-src accepts any http(s) source.
func DefaultHeaders() []Header {
	return []Header{
		{"Content-Security-Policy", "default-src 'self'; script-src 'self'; style-src 'self' 'unsafe-inline'; img-src 'self' data: http: https:; frame-ancestors 'none'"},
		{"X-Frame-Options", "DENY"},
		{"X-Content-Type-Options", "nosniff"},
		{"Referrer-Policy", "strict-origin-when-cross-origin"},
		{"Permissions-Policy", "camera=(), microphone=(), geolocation=()"},
	}
}

// SecurityHeaders sets headers on every response. Empty values are skipped.
func SecurityHeaders(headers []Header) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			h := w.Header()
			for _, hd := range headers {
				if hd.Value != "" {
					h.Set(hd.Name, hd.Value)
				}
			}
			next.ServeHTTP(w, r)
		})
	}
}
