package config

import (
	"fmt"
	"net"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/curtisra-gif/os-failover/internal/model"
)

const (
	DefaultProbeIntervalSec = 30
	DefaultProbeTimeoutSec  = 5
	DefaultFailureThreshold = 3
	DefaultSecondaryTTL     = 300
	DefaultZoneTTL          = 60
	DefaultHTTPSPort        = 443
)

type Config struct {
	Server Server                 `yaml:"server"`
	Zones  map[string]*ZoneConfig `yaml:"zones"`
}

type Server struct {
	ListenAddr string `yaml:"listen_addr"`
	AdminAddr  string `yaml:"admin_addr"`
	GeoDBPath  string `yaml:"geoip_db_path"`
	Throttling struct {
		RPS   float64 `yaml:"rps"`
		Burst int     `yaml:"burst"`
	} `yaml:"throttling"`
}

// ZoneConfig declares one failover policy: exactly one primary and one
// secondary origin for a zone apex.
type ZoneConfig struct {
	TTL       uint32           `yaml:"ttl"`
	Primary   *PrimaryOrigin   `yaml:"primary"`
	Secondary *SecondaryOrigin `yaml:"secondary"`
}

type PrimaryOrigin struct {
	Endpoint    model.Endpoint `yaml:"endpoint"`
	HealthCheck HealthCheck    `yaml:"health_check"`
	Alias       Alias          `yaml:"alias"`
}

// Alias binds the primary answer to a CDN distribution target. When
// EvaluateTargetHealth is set, the distribution's own health check gates
// the primary answer a second time.
type Alias struct {
	Target               string      `yaml:"target"`
	Addresses            []string    `yaml:"addresses"`
	EvaluateTargetHealth bool        `yaml:"evaluate_target_health"`
	HealthCheck          HealthCheck `yaml:"health_check"`
}

type SecondaryOrigin struct {
	Endpoint    model.Endpoint `yaml:"endpoint"`
	HealthCheck HealthCheck    `yaml:"health_check"`
	CNAME       string         `yaml:"cname"`
	TTL         uint32         `yaml:"ttl"`
}

type HealthCheck struct {
	IntervalSec      int `yaml:"interval_seconds"`
	TimeoutSec       int `yaml:"timeout_seconds"`
	FailureThreshold int `yaml:"failure_threshold"`
}

func (h HealthCheck) Interval() time.Duration { return time.Duration(h.IntervalSec) * time.Second }
func (h HealthCheck) Timeout() time.Duration  { return time.Duration(h.TimeoutSec) * time.Second }

func LoadConfig(path string) (*Config, error) {
	buf, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var cfg Config
	if err := yaml.Unmarshal(buf, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	return &cfg, nil
}

func (c *Config) applyDefaults() {
	for _, zone := range c.Zones {
		if zone.TTL == 0 {
			zone.TTL = DefaultZoneTTL
		}
		if zone.Primary != nil {
			defaultEndpoint(&zone.Primary.Endpoint)
			defaultHealthCheck(&zone.Primary.HealthCheck)
			defaultHealthCheck(&zone.Primary.Alias.HealthCheck)
		}
		if zone.Secondary != nil {
			defaultEndpoint(&zone.Secondary.Endpoint)
			defaultHealthCheck(&zone.Secondary.HealthCheck)
			if zone.Secondary.TTL == 0 {
				zone.Secondary.TTL = DefaultSecondaryTTL
			}
			if zone.Secondary.CNAME == "" {
				zone.Secondary.CNAME = zone.Secondary.Endpoint.FQDN
			}
		}
	}
}

func defaultEndpoint(e *model.Endpoint) {
	if e.Port == 0 {
		e.Port = DefaultHTTPSPort
	}
	if e.Protocol == "" {
		e.Protocol = "https"
	}
}

func defaultHealthCheck(h *HealthCheck) {
	if h.IntervalSec == 0 {
		h.IntervalSec = DefaultProbeIntervalSec
	}
	if h.TimeoutSec == 0 {
		h.TimeoutSec = DefaultProbeTimeoutSec
	}
	if h.FailureThreshold == 0 {
		h.FailureThreshold = DefaultFailureThreshold
	}
}

func (c *Config) Validate() error {
	if c.Server.ListenAddr == "" {
		return fmt.Errorf("server.listen_addr is required")
	}
	if len(c.Zones) == 0 {
		return fmt.Errorf("at least one zone must be configured")
	}
	for name, zone := range c.Zones {
		if zone.Primary == nil {
			return fmt.Errorf("zone %q: primary origin is required", name)
		}
		if zone.Secondary == nil {
			return fmt.Errorf("zone %q: secondary origin is required", name)
		}
		if zone.Primary.Endpoint.FQDN == "" {
			return fmt.Errorf("zone %q: primary.endpoint.fqdn is required", name)
		}
		if zone.Secondary.Endpoint.FQDN == "" {
			return fmt.Errorf("zone %q: secondary.endpoint.fqdn is required", name)
		}
		// Primary and secondary must never share a health-check identity.
		if zone.Primary.Endpoint.Addr() == zone.Secondary.Endpoint.Addr() {
			return fmt.Errorf("zone %q: primary and secondary endpoints must differ", name)
		}
		if len(zone.Primary.Alias.Addresses) == 0 {
			return fmt.Errorf("zone %q: primary.alias.addresses is required", name)
		}
		for _, a := range zone.Primary.Alias.Addresses {
			if net.ParseIP(a) == nil {
				return fmt.Errorf("zone %q: invalid alias address %q", name, a)
			}
		}
		if err := validateHealthCheck(zone.Primary.HealthCheck); err != nil {
			return fmt.Errorf("zone %q: primary.health_check: %w", name, err)
		}
		if err := validateHealthCheck(zone.Secondary.HealthCheck); err != nil {
			return fmt.Errorf("zone %q: secondary.health_check: %w", name, err)
		}
	}
	return nil
}

func validateHealthCheck(h HealthCheck) error {
	if h.IntervalSec <= 0 {
		return fmt.Errorf("interval_seconds must be positive")
	}
	if h.FailureThreshold <= 0 {
		return fmt.Errorf("failure_threshold must be positive")
	}
	return nil
}
