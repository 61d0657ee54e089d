package server

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"crewbot/internal/presence"
	"crewbot/internal/tracker"

	"github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var t0 = time.Date(2026, 10, 1, 12, 0, 0, 0, time.UTC)

func TestMonitorStatus(t *testing.T) {
	m := NewMonitor(3*time.Minute, func() int { return 7 })
	m.clock = func() time.Time { return t0.Add(time.Minute) }

	status := m.Status()
	assert.False(t, status.Healthy, "no tick yet")
	assert.Equal(t, 7, status.PendingEvents)

	m.Publish(context.Background(), tracker.Snapshot{At: t0, Regions: []tracker.RegionStatus{
		{Name: "EU", Available: true, Online: make([]presence.ResolvedPresence, 2)},
		{Name: "NA", Available: false},
	}})
	status = m.Status()
	assert.True(t, status.Healthy)
	assert.Equal(t, map[string]bool{"EU": true, "NA": false}, status.Regions)
	assert.Equal(t, 2, status.Online)

	m.clock = func() time.Time { return t0.Add(10 * time.Minute) }
	assert.False(t, m.Status().Healthy, "ticks stopped")
}

func TestMonitorEnrichmentAge(t *testing.T) {
	m := NewMonitor(time.Minute, nil)
	m.clock = func() time.Time { return t0.Add(90 * time.Second) }
	var refreshedAt time.Time
	m.TrackEnrichment(func() time.Time { return refreshedAt })

	status := m.Status()
	assert.Nil(t, status.EnrichmentRefreshedAt, "never fetched")
	assert.Zero(t, status.EnrichmentAgeSeconds)

	refreshedAt = t0
	status = m.Status()
	require.NotNil(t, status.EnrichmentRefreshedAt)
	assert.True(t, status.EnrichmentRefreshedAt.Equal(t0))
	assert.Equal(t, 90.0, status.EnrichmentAgeSeconds)
}

type fixedStatus Status

func (s fixedStatus) Status() Status {
	return Status(s)
}

func TestHealthz(t *testing.T) {
	tests := []struct {
		name   string
		status Status
		code   int
	}{
		{"healthy", Status{Healthy: true, Online: 3}, http.StatusOK},
		{"stale", Status{Healthy: false}, http.StatusServiceUnavailable},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			router := NewRouter(fixedStatus(tt.status))
			rec := httptest.NewRecorder()
			router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))

			assert.Equal(t, tt.code, rec.Code)
			var body Status
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
			assert.Equal(t, tt.status.Online, body.Online)
		})
	}
}

func TestMetricsEndpoint(t *testing.T) {
	router := NewRouter(fixedStatus{})
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "go_goroutines")
}

type fakeHTTPServer struct {
	listenErr error
	stop      chan struct{}
	shutdowns int
}

func (s *fakeHTTPServer) ListenAndServe() error {
	if s.listenErr != nil {
		return s.listenErr
	}
	<-s.stop
	return http.ErrServerClosed
}

func (s *fakeHTTPServer) Shutdown(context.Context) error {
	s.shutdowns++
	close(s.stop)
	return nil
}

func TestServiceShutsDownOnCancel(t *testing.T) {
	fake := &fakeHTTPServer{stop: make(chan struct{})}
	svc := NewService(fake, time.Second)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- svc.Serve(ctx) }()
	cancel()

	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(5 * time.Second):
		t.Fatal("Serve did not return")
	}
	assert.Equal(t, 1, fake.shutdowns)
}

func TestServiceReportsListenFailure(t *testing.T) {
	svc := NewService(&fakeHTTPServer{listenErr: errors.New("address in use")}, time.Second)
	err := svc.Serve(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "address in use")
}
