package middleware

import (
	"net/http"
	"slices"

	"github.com/go-chi/cors"
)

// CORS applies the browser origin policy. The API only reads and posts, so
// other verbs are not advertised. A "*" origin turns credentials off since
// browsers refuse the combination anyway.
func CORS(origins []string) func(http.Handler) http.Handler {
	return cors.New(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Authorization", "Content-Type", "Idempotency-Key", requestIDHeader},
		// clients need these to honour rate limits and correlate replays
		ExposedHeaders:   []string{requestIDHeader, "Retry-After", ReplayedHeader},
		AllowCredentials: !slices.Contains(origins, "*"),
		MaxAge:           600,
	}).Handler
}
