package middleware

import (
	"net/http"

	"github.com/rs/cors"

	"atlas-auth/internal/tenant"
)

func CORS(origins []string) func(http.Handler) http.Handler {
	if len(origins) == 0 {
		origins = []string{"*"}
	}

	handler := cors.New(cors.Options{
		AllowedOrigins:   origins,
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete, http.MethodOptions},
		AllowedHeaders:   []string{"Authorization", "Content-Type", "X-Request-ID", tenant.Header},
		ExposedHeaders:   []string{"X-Request-ID", "Retry-After"},
		MaxAge:           3600,
		AllowCredentials: false,
	})

	return handler.Handler
}
