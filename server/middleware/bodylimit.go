package middleware

import (
	"net/http"
)

// V1BodyLimitMiddleware caps request bodies at maxBytes. It runs ahead of the
// gate, which may read form bodies while looking for the auth code.
func V1BodyLimitMiddleware(maxBytes int64) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if maxBytes > 0 && r.Body != nil {
				r.Body = http.MaxBytesReader(w, r.Body, maxBytes)
			}
			next.ServeHTTP(w, r)
		})
	}
}
