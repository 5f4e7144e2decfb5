package main

import (
	"context"
	"flag"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/curtisra-gif/os-failover/internal/api"
	"github.com/curtisra-gif/os-failover/internal/config"
	dnssrv "github.com/curtisra-gif/os-failover/internal/dns"
	"github.com/curtisra-gif/os-failover/internal/geo"
	"github.com/curtisra-gif/os-failover/internal/health"
	"github.com/curtisra-gif/os-failover/internal/metrics"
	"github.com/curtisra-gif/os-failover/internal/model"
	"github.com/curtisra-gif/os-failover/internal/throttler"
)

func initLogger() *zap.Logger {
	cfg := zap.NewProductionConfig()
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	logger, err := cfg.Build()
	if err != nil {
		panic(err)
	}
	return logger
}

func main() {
	configPath := flag.String("config", "config.yaml", "Path to YAML config file")
	flag.Parse()

	logger := initLogger()
	defer logger.Sync() // Flushes buffer before exit

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		logger.Fatal("failed to load config", zap.Error(err))
	}

	m := metrics.New()

	monitor := health.NewMonitor(logger.Named("health"), m)
	policies := buildPolicies(cfg, monitor)
	resolver := dnssrv.NewResolver(policies)

	locator, err := geo.Open(cfg.Server.GeoDBPath)
	if err != nil {
		logger.Fatal("failed to open GeoIP database", zap.Error(err))
	}

	handler := &dnssrv.Handler{
		Resolver:  resolver,
		Throttler: throttler.New(cfg.Server.Throttling.RPS, cfg.Server.Throttling.Burst),
		Geo:       locator,
		Logger:    logger.Named("dns"),
		Metrics:   m,
	}
	server := dnssrv.NewServer(cfg.Server.ListenAddr, handler, logger)

	monitor.Start()

	var admin *http.Server
	if cfg.Server.AdminAddr != "" {
		admin = &http.Server{
			Addr:    cfg.Server.AdminAddr,
			Handler: api.NewHandler(monitor, resolver, m.Handler(), logger.Named("api")).Router(),
		}
		go func() {
			logger.Info("admin server active", zap.String("addr", admin.Addr))
			if err := admin.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				logger.Error("admin server failed", zap.Error(err))
			}
		}()
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.ListenAndServe()
	}()
	logger.Info("failover DNS active",
		zap.String("addr", cfg.Server.ListenAddr),
		zap.Int("zones", len(cfg.Zones)),
	)

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-errCh:
		logger.Fatal("dns server failed", zap.Error(err))
	case sig := <-quit:
		logger.Info("shutting down", zap.String("signal", sig.String()))
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		logger.Error("dns shutdown failed", zap.Error(err))
	}
	if admin != nil {
		if err := admin.Shutdown(ctx); err != nil {
			logger.Error("admin shutdown failed", zap.Error(err))
		}
	}
	monitor.Stop()
	if err := locator.Close(); err != nil {
		logger.Error("failed to close GeoIP database", zap.Error(err))
	}
}

// buildPolicies registers one health check per origin (and one for the
// alias target when it gates the answer) and assembles the runtime
// policies the resolver serves from.
func buildPolicies(cfg *config.Config, monitor *health.Monitor) []*dnssrv.Policy {
	policies := make([]*dnssrv.Policy, 0, len(cfg.Zones))
	for name, zone := range cfg.Zones {
		primary := monitor.Register(checkConfig(name+"/primary", zone.Primary.Endpoint, zone.Primary.HealthCheck))
		secondary := monitor.Register(checkConfig(name+"/secondary", zone.Secondary.Endpoint, zone.Secondary.HealthCheck))

		var aliasStatus *health.Status
		if zone.Primary.Alias.EvaluateTargetHealth && zone.Primary.Alias.Target != "" {
			target := model.Endpoint{
				FQDN:     strings.TrimSuffix(zone.Primary.Alias.Target, "."),
				Port:     config.DefaultHTTPSPort,
				Protocol: "https",
			}
			aliasStatus = monitor.Register(checkConfig(name+"/alias", target, zone.Primary.Alias.HealthCheck))
		}

		addresses := make([]net.IP, 0, len(zone.Primary.Alias.Addresses))
		for _, a := range zone.Primary.Alias.Addresses {
			addresses = append(addresses, net.ParseIP(a))
		}

		policies = append(policies, &dnssrv.Policy{
			Zone:                 name,
			TTL:                  zone.TTL,
			Primary:              dnssrv.Origin{Endpoint: zone.Primary.Endpoint, Status: primary},
			AliasTarget:          zone.Primary.Alias.Target,
			AliasAddresses:       addresses,
			EvaluateTargetHealth: zone.Primary.Alias.EvaluateTargetHealth,
			AliasStatus:          aliasStatus,
			Secondary:            dnssrv.Origin{Endpoint: zone.Secondary.Endpoint, Status: secondary},
			SecondaryCNAME:       zone.Secondary.CNAME,
			SecondaryTTL:         zone.Secondary.TTL,
		})
	}
	return policies
}

func checkConfig(id string, target model.Endpoint, hc config.HealthCheck) health.CheckConfig {
	return health.CheckConfig{
		ID:               id,
		Target:           target,
		Interval:         hc.Interval(),
		Timeout:          hc.Timeout(),
		FailureThreshold: hc.FailureThreshold,
	}
}
