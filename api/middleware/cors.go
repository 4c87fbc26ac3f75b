package middleware

import (
	"net/http"

	"github.com/go-chi/cors"
)

// CORS opens the read-only ops endpoints to any dashboard origin. No
// credentials cross this surface.
func CORS() func(http.Handler) http.Handler {
	return cors.New(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type", "X-Request-Id"},
		ExposedHeaders: []string{"X-Request-Id"},
		MaxAge:         300,
	}).Handler
}
