package middleware

import (
	"encoding/json"
	"net/http"
	"time"

	"atlas-auth/internal/model"
)

const defaultRequestTimeout = 30 * time.Second

// Timeout cancels the request context after timeout and answers 503 with a
// REQUEST_TIMEOUT envelope. Work running in a tenant scope is abandoned with
// the context, so its connection returns to the pool.
func Timeout(timeout time.Duration) func(http.Handler) http.Handler {
	if timeout <= 0 {
		timeout = defaultRequestTimeout
	}

	body, _ := json.Marshal(model.APIResponse{
		Success: false,
		Error: &model.APIError{
			Code:    "REQUEST_TIMEOUT",
			Message: "Request timed out",
			Details: "exceeded " + timeout.String(),
		},
	})

	return func(next http.Handler) http.Handler {
		return http.TimeoutHandler(next, timeout, string(body))
	}
}
