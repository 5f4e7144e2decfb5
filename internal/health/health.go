package health

import (
	"context"
	"crypto/tls"
	"net/http"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/curtisra-gif/os-failover/internal/metrics"
	"github.com/curtisra-gif/os-failover/internal/model"
)

// CheckConfig governs one probe loop.
type CheckConfig struct {
	ID               string
	Target           model.Endpoint
	Interval         time.Duration
	Timeout          time.Duration
	FailureThreshold int
}

// Status is the published health of a single check. It has exactly one
// writer (the check's probe loop) and any number of readers; the resolver
// reads the healthy bit atomically and never blocks on an in-flight probe.
type Status struct {
	cfg     CheckConfig
	healthy atomic.Bool

	mu                  sync.Mutex
	consecutiveFailures int
	lastProbe           time.Time
	lastHealthy         time.Time
	lastError           string
}

// Healthy reports the last-published state.
func (s *Status) Healthy() bool {
	return s.healthy.Load()
}

// State returns the last-published state as a model value.
func (s *Status) State() model.HealthState {
	if s.healthy.Load() {
		return model.StateHealthy
	}
	return model.StateUnhealthy
}

// Apply folds one probe result into the status. UNHEALTHY is entered only
// once consecutive failures reach the threshold; a single success flips
// back to HEALTHY immediately. Returns the new state and whether it
// flipped. The monitor's probe loop is the sole caller at runtime.
func (s *Status) Apply(res model.ProbeResult) (model.HealthState, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.lastProbe = res.CheckedAt
	was := s.healthy.Load()

	if res.Success {
		s.consecutiveFailures = 0
		s.lastHealthy = res.CheckedAt
		s.lastError = ""
		s.healthy.Store(true)
		return model.StateHealthy, !was
	}

	s.consecutiveFailures++
	s.lastError = res.Error
	if s.consecutiveFailures >= s.cfg.FailureThreshold {
		s.healthy.Store(false)
		return model.StateUnhealthy, was
	}
	return s.State(), false
}

// Snapshot returns the check's current status for the admin API.
func (s *Status) Snapshot() model.CheckStatus {
	s.mu.Lock()
	defer s.mu.Unlock()

	cs := model.CheckStatus{
		CheckID:             s.cfg.ID,
		FQDN:                s.cfg.Target.FQDN,
		State:               s.State(),
		ConsecutiveFailures: s.consecutiveFailures,
		LastError:           s.lastError,
	}
	if !s.lastProbe.IsZero() {
		t := s.lastProbe
		cs.LastProbe = &t
	}
	if !s.lastHealthy.IsZero() {
		t := s.lastHealthy
		cs.LastHealthy = &t
	}
	return cs
}

// Monitor owns the probe loops. Loops run from Start until Stop; there is
// no mid-probe cancellation, an in-flight probe runs to its timeout.
type Monitor struct {
	logger  *zap.Logger
	metrics *metrics.Metrics
	client  *http.Client

	mu       sync.Mutex
	statuses map[string]*Status

	stopCh chan struct{}
	wg     sync.WaitGroup
}

func NewMonitor(logger *zap.Logger, m *metrics.Metrics) *Monitor {
	return &Monitor{
		logger:  logger,
		metrics: m,
		client: &http.Client{
			Transport: &http.Transport{
				TLSClientConfig: &tls.Config{MinVersion: tls.VersionTLS12},
			},
			// A 3xx already counts as success; never follow it.
			CheckRedirect: func(*http.Request, []*http.Request) error {
				return http.ErrUseLastResponse
			},
		},
		statuses: make(map[string]*Status),
		stopCh:   make(chan struct{}),
	}
}

// Register creates the published status for a check. Checks start out
// healthy; the first probe cycle corrects that within one interval.
// Must be called before Start.
func (m *Monitor) Register(cfg CheckConfig) *Status {
	s := &Status{cfg: cfg}
	s.healthy.Store(true)

	m.mu.Lock()
	m.statuses[cfg.ID] = s
	m.mu.Unlock()

	m.metrics.HealthState.WithLabelValues(cfg.ID).Set(1)
	return s
}

// Start launches one probe loop per registered check.
func (m *Monitor) Start() {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, s := range m.statuses {
		m.wg.Add(1)
		go m.run(s)
	}
	m.logger.Info("health monitor started", zap.Int("checks", len(m.statuses)))
}

// Stop tears down all probe loops and waits for them to finish.
func (m *Monitor) Stop() {
	close(m.stopCh)
	m.wg.Wait()
	m.logger.Info("health monitor stopped")
}

// Snapshot returns the current status of every check, ordered by ID.
func (m *Monitor) Snapshot() []model.CheckStatus {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]model.CheckStatus, 0, len(m.statuses))
	for _, s := range m.statuses {
		out = append(out, s.Snapshot())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CheckID < out[j].CheckID })
	return out
}

func (m *Monitor) run(s *Status) {
	defer m.wg.Done()

	// Initial probe before settling into the fixed cadence.
	m.check(s)

	ticker := time.NewTicker(s.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-m.stopCh:
			return
		case <-ticker.C:
			m.check(s)
		}
	}
}

func (m *Monitor) check(s *Status) {
	res := m.probe(s.cfg)
	state, flipped := s.Apply(res)

	result := "failure"
	if res.Success {
		result = "success"
	}
	m.metrics.ProbesTotal.WithLabelValues(s.cfg.ID, result).Inc()
	m.metrics.ProbeDuration.WithLabelValues(s.cfg.ID).Observe(res.Latency.Seconds())

	if flipped {
		gauge := 0.0
		if state == model.StateHealthy {
			gauge = 1
		}
		m.metrics.HealthState.WithLabelValues(s.cfg.ID).Set(gauge)
		m.metrics.StateTransitions.WithLabelValues(s.cfg.ID, string(state)).Inc()
		m.logger.Warn("health state changed",
			zap.String("check", s.cfg.ID),
			zap.String("state", string(state)),
			zap.String("error", res.Error),
		)
		return
	}

	if !res.Success {
		m.logger.Warn("probe failed",
			zap.String("check", s.cfg.ID),
			zap.String("error", res.Error),
			zap.Int("threshold", s.cfg.FailureThreshold),
		)
	}
}

// probe issues one HTTPS request and classifies the response: 2xx/3xx is
// success, anything else (including transport errors) is failure.
func (m *Monitor) probe(cfg CheckConfig) model.ProbeResult {
	start := time.Now()
	res := model.ProbeResult{CheckedAt: start}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, cfg.Target.URL(), nil)
	if err != nil {
		res.Error = err.Error()
		res.Latency = time.Since(start)
		return res
	}

	resp, err := m.client.Do(req)
	res.Latency = time.Since(start)
	if err != nil {
		res.Error = err.Error()
		return res
	}
	defer resp.Body.Close()

	res.StatusCode = resp.StatusCode
	if resp.StatusCode >= 200 && resp.StatusCode < 400 {
		res.Success = true
	} else {
		res.Error = resp.Status
	}
	return res
}
