package health

import (
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/curtisra-gif/os-failover/internal/metrics"
	"github.com/curtisra-gif/os-failover/internal/model"
)

func newTestMonitor(t *testing.T) *Monitor {
	t.Helper()
	return NewMonitor(zap.NewNop(), metrics.New())
}

func probeAt(success bool, at time.Time) model.ProbeResult {
	res := model.ProbeResult{Success: success, CheckedAt: at}
	if !success {
		res.Error = "connection refused"
	}
	return res
}

func TestStatusEntersUnhealthyOnlyAtThreshold(t *testing.T) {
	m := newTestMonitor(t)
	s := m.Register(CheckConfig{
		ID:               "zone/primary",
		Target:           model.Endpoint{FQDN: "origin.example.com", Port: 443, Protocol: "https"},
		Interval:         30 * time.Second,
		FailureThreshold: 3,
	})

	// Probes fail at t=0, t=30, t=60: the flip happens on the third
	// consecutive failure, not before.
	start := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

	state, flipped := s.Apply(probeAt(false, start))
	assert.Equal(t, model.StateHealthy, state)
	assert.False(t, flipped)
	assert.True(t, s.Healthy())

	state, flipped = s.Apply(probeAt(false, start.Add(30*time.Second)))
	assert.Equal(t, model.StateHealthy, state)
	assert.False(t, flipped)
	assert.True(t, s.Healthy())

	state, flipped = s.Apply(probeAt(false, start.Add(60*time.Second)))
	assert.Equal(t, model.StateUnhealthy, state)
	assert.True(t, flipped)
	assert.False(t, s.Healthy())
}

func TestStatusRecoversOnSingleSuccess(t *testing.T) {
	m := newTestMonitor(t)
	s := m.Register(CheckConfig{
		ID:               "zone/primary",
		Target:           model.Endpoint{FQDN: "origin.example.com", Port: 443, Protocol: "https"},
		FailureThreshold: 3,
	})

	start := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	for i := 0; i < 10; i++ {
		s.Apply(probeAt(false, start.Add(time.Duration(i)*30*time.Second)))
	}
	require.False(t, s.Healthy())

	// One success at t=300 flips back immediately, regardless of the
	// length of the failure streak.
	state, flipped := s.Apply(probeAt(true, start.Add(300*time.Second)))
	assert.Equal(t, model.StateHealthy, state)
	assert.True(t, flipped)
	assert.True(t, s.Healthy())

	snap := s.Snapshot()
	assert.Equal(t, 0, snap.ConsecutiveFailures)
	assert.Empty(t, snap.LastError)
}

func TestStatusSuccessResetsFailureStreak(t *testing.T) {
	m := newTestMonitor(t)
	s := m.Register(CheckConfig{ID: "zone/primary", FailureThreshold: 3})

	now := time.Now()
	s.Apply(probeAt(false, now))
	s.Apply(probeAt(false, now))
	s.Apply(probeAt(true, now))
	s.Apply(probeAt(false, now))
	s.Apply(probeAt(false, now))

	// Five probes but never three consecutive failures.
	assert.True(t, s.Healthy())

	_, flipped := s.Apply(probeAt(false, now))
	assert.True(t, flipped)
	assert.False(t, s.Healthy())
}

func TestStatusStaysUnhealthyWhileFailing(t *testing.T) {
	m := newTestMonitor(t)
	s := m.Register(CheckConfig{ID: "zone/primary", FailureThreshold: 2})

	now := time.Now()
	s.Apply(probeAt(false, now))
	_, flipped := s.Apply(probeAt(false, now))
	require.True(t, flipped)

	// Further failures do not count as transitions.
	_, flipped = s.Apply(probeAt(false, now))
	assert.False(t, flipped)
	assert.False(t, s.Healthy())
}

func TestSnapshotReportsProbeTimes(t *testing.T) {
	m := newTestMonitor(t)
	s := m.Register(CheckConfig{
		ID:               "zone/secondary",
		Target:           model.Endpoint{FQDN: "backup.example.com", Port: 443, Protocol: "https"},
		FailureThreshold: 3,
	})

	snap := s.Snapshot()
	assert.Equal(t, model.StateHealthy, snap.State)
	assert.Nil(t, snap.LastProbe)
	assert.Nil(t, snap.LastHealthy)

	at := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	s.Apply(probeAt(true, at))

	snap = s.Snapshot()
	require.NotNil(t, snap.LastProbe)
	require.NotNil(t, snap.LastHealthy)
	assert.Equal(t, at, *snap.LastProbe)
	assert.Equal(t, at, *snap.LastHealthy)
	assert.Equal(t, "backup.example.com", snap.FQDN)
}

func TestProbeClassification(t *testing.T) {
	tests := []struct {
		name       string
		statusCode int
		success    bool
	}{
		{"200 is success", http.StatusOK, true},
		{"204 is success", http.StatusNoContent, true},
		{"301 is success", http.StatusMovedPermanently, true},
		{"404 is failure", http.StatusNotFound, false},
		{"500 is failure", http.StatusInternalServerError, false},
		{"503 is failure", http.StatusServiceUnavailable, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewTLSServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				if tt.statusCode == http.StatusMovedPermanently {
					w.Header().Set("Location", "https://elsewhere.example.com/")
				}
				w.WriteHeader(tt.statusCode)
			}))
			defer srv.Close()

			m := NewMonitor(zap.NewNop(), metrics.New())
			m.client = srv.Client()
			m.client.CheckRedirect = func(*http.Request, []*http.Request) error {
				return http.ErrUseLastResponse
			}

			res := m.probe(testCheckConfig(t, srv.URL))
			assert.Equal(t, tt.success, res.Success)
			assert.Equal(t, tt.statusCode, res.StatusCode)
			assert.False(t, res.CheckedAt.IsZero())
		})
	}
}

func TestProbeConnectionRefusedIsFailure(t *testing.T) {
	m := newTestMonitor(t)

	// Reserved TEST-NET address, nothing listens there.
	res := m.probe(CheckConfig{
		ID:      "zone/primary",
		Target:  model.Endpoint{FQDN: "192.0.2.1", Port: 443, Protocol: "https"},
		Timeout: 500 * time.Millisecond,
	})
	assert.False(t, res.Success)
	assert.NotEmpty(t, res.Error)
}

func TestMonitorLoopFlipsStateFromProbes(t *testing.T) {
	var healthy atomic.Bool
	healthy.Store(true)
	srv := httptest.NewTLSServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if healthy.Load() {
			w.WriteHeader(http.StatusOK)
			return
		}
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	m := NewMonitor(zap.NewNop(), metrics.New())
	m.client = srv.Client()

	s := m.Register(testCheckConfig(t, srv.URL))
	m.Start()
	defer m.Stop()

	require.Eventually(t, s.Healthy, 2*time.Second, 10*time.Millisecond)

	healthy.Store(false)
	require.Eventually(t, func() bool { return !s.Healthy() }, 5*time.Second, 10*time.Millisecond,
		"status should flip after threshold consecutive failures")

	healthy.Store(true)
	require.Eventually(t, s.Healthy, 2*time.Second, 10*time.Millisecond,
		"a single successful probe should restore the status")
}

// testCheckConfig points a check at an httptest TLS server.
func testCheckConfig(t *testing.T, rawURL string) CheckConfig {
	t.Helper()

	hostPort := strings.TrimPrefix(rawURL, "https://")
	host, portStr, ok := strings.Cut(hostPort, ":")
	require.True(t, ok)
	port, err := strconv.Atoi(portStr)
	require.NoError(t, err)

	return CheckConfig{
		ID:               "zone/primary",
		Target:           model.Endpoint{FQDN: host, Port: port, Protocol: "https"},
		Interval:         20 * time.Millisecond,
		Timeout:          time.Second,
		FailureThreshold: 3,
	}
}
