package metrics

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"atlas-auth/internal/event"
)

func scrape(t *testing.T, m *Metrics) string {
	t.Helper()
	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	return string(body)
}

func TestInstrument_UsesRoutePattern(t *testing.T) {
	t.Parallel()
	m := New()

	r := chi.NewRouter()
	r.Use(m.Instrument)
	r.Get("/api/v1/users/{id}", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})

	for _, id := range []string{"a", "b", "c"} {
		r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/api/v1/users/"+id, nil))
	}

	out := scrape(t, m)
	assert.Contains(t, out, `http_requests_total{method="GET",route="/api/v1/users/{id}",status="404"} 3`)
	assert.Contains(t, out, "http_request_duration_seconds_bucket")
	assert.Contains(t, out, "http_in_flight_requests 0")
}

func TestConsume_CountsEvents(t *testing.T) {
	t.Parallel()
	m := New()
	bus := event.NewBus()
	var logs bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&logs, nil))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		m.Consume(ctx, bus, logger)
		close(done)
	}()

	// Wait for the subscription before publishing.
	require.Eventually(t, func() bool {
		bus.Publish(event.New(event.TypeLoginFailed, "acme", "", nil))
		return bytes.Contains([]byte(scrape(t, m)), []byte(`atlas_auth_events_total{type="auth.login_failed"}`))
	}, time.Second, 10*time.Millisecond)

	cancel()
	<-done
	assert.Contains(t, scrape(t, m), "atlas_auth_events_total")
}

func TestObserve(t *testing.T) {
	t.Parallel()
	m := New()

	m.Observe(event.New(event.TypeLoginSucceeded, "", "u1", nil))
	m.Observe(event.New(event.TypeLoginSucceeded, "", "u2", nil))

	assert.Contains(t, scrape(t, m), `atlas_auth_events_total{type="auth.login"} 2`)
}
