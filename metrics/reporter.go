package metrics

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/lcx/hopnet/log"
)

// PrometheusReporterConfig configures the scrape endpoint ("metrics" section).
type PrometheusReporterConfig struct {
	HTTPListenAddr  string `mapstructure:"httpListenAddr"`
	MetricPath      string `mapstructure:"metricPath"`
	HealthCheckPath string `mapstructure:"healthCheckPath"`
}

// GetName implements config.Config.
func (c *PrometheusReporterConfig) GetName() string {
	return "metrics"
}

// Validate implements config.Config.
func (c *PrometheusReporterConfig) Validate() error {
	if c.HTTPListenAddr == "" {
		return errors.New("httpListenAddr cannot be empty")
	}
	if c.MetricPath == "" {
		c.MetricPath = "/metrics"
	}
	if c.HealthCheckPath == "" {
		c.HealthCheckPath = "/health"
	}
	return nil
}

// PrometheusReporter serves the registry over HTTP.
type PrometheusReporter struct {
	cfg     *PrometheusReporterConfig
	promSvr *http.Server
	addr    net.Addr
}

// NewPrometheusReporter creates a reporter; Start opens the listener.
func NewPrometheusReporter(cfg *PrometheusReporterConfig) *PrometheusReporter {
	return &PrometheusReporter{cfg: cfg}
}

// Start listens on HTTPListenAddr and serves in the background.
func (x *PrometheusReporter) Start() error {
	if err := x.cfg.Validate(); err != nil {
		return err
	}
	l, err := net.Listen("tcp", x.cfg.HTTPListenAddr)
	if err != nil {
		return fmt.Errorf("metrics listen: %w", err)
	}
	x.addr = l.Addr()

	mux := http.NewServeMux()
	mux.Handle(x.cfg.MetricPath, promhttp.HandlerFor(_registry, promhttp.HandlerOpts{}))
	mux.HandleFunc(x.cfg.HealthCheckPath, func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})
	x.promSvr = &http.Server{Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		if err := x.promSvr.Serve(l); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error().Err(err).Msg("prometheus http server stopped")
		}
	}()
	log.Info().Str("addr", x.addr.String()).Str("path", x.cfg.MetricPath).Msg("prometheus reporter started")
	return nil
}

// Addr returns the bound address once started.
func (x *PrometheusReporter) Addr() net.Addr {
	return x.addr
}

// Stop shuts the HTTP server down.
func (x *PrometheusReporter) Stop() error {
	if x.promSvr == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	err := x.promSvr.Shutdown(ctx)
	x.promSvr = nil
	return err
}
