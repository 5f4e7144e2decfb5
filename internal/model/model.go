package model

import (
	"fmt"
	"net"
	"strconv"
	"time"
)

// HealthState is the binary liveness verdict for a probed endpoint.
type HealthState string

const (
	StateHealthy   HealthState = "healthy"
	StateUnhealthy HealthState = "unhealthy"
)

// Role identifies an origin's position in a failover policy.
type Role string

const (
	RolePrimary   Role = "primary"
	RoleSecondary Role = "secondary"
)

// Endpoint is a probed origin, immutable once configured.
type Endpoint struct {
	FQDN     string `yaml:"fqdn" json:"fqdn"`
	Port     int    `yaml:"port" json:"port"`
	Protocol string `yaml:"protocol" json:"protocol"`
}

// Addr returns the host:port dial address for the endpoint.
func (e Endpoint) Addr() string {
	return net.JoinHostPort(e.FQDN, strconv.Itoa(e.Port))
}

// URL returns the probe URL for the endpoint.
func (e Endpoint) URL() string {
	return fmt.Sprintf("%s://%s/", e.Protocol, e.Addr())
}

// ProbeResult is the outcome of a single liveness probe.
type ProbeResult struct {
	Success    bool          `json:"success"`
	StatusCode int           `json:"status_code,omitempty"`
	Latency    time.Duration `json:"latency_ms"`
	Error      string        `json:"error,omitempty"`
	CheckedAt  time.Time     `json:"checked_at"`
}

// CheckStatus is a point-in-time snapshot of one health check,
// as exposed by the admin API.
type CheckStatus struct {
	CheckID             string      `json:"check_id"`
	FQDN                string      `json:"fqdn"`
	State               HealthState `json:"state"`
	ConsecutiveFailures int         `json:"consecutive_failures"`
	LastProbe           *time.Time  `json:"last_probe,omitempty"`
	LastHealthy         *time.Time  `json:"last_healthy,omitempty"`
	LastError           string      `json:"last_error,omitempty"`
}
