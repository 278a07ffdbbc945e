// Package service hosts the long-lived HTTP side of covergate: a healthz
// endpoint and the Prometheus metrics endpoint.
package service

import (
	"context"
	"errors"
	"net"
	"net/http"

	"github.com/rs/zerolog"

	"github.com/covergate/covergate/metrics"
)

const (
	HealthzHost = "0.0.0.0"
	HealthzPort = "8080"

	MetricsHost = "0.0.0.0"
	MetricsPort = "7300"
)

type Service struct {
	Healthz *HealthzServer
	Metrics *MetricsServer
	log     zerolog.Logger
}

func New(log zerolog.Logger) *Service {
	return &Service{
		Healthz: &HealthzServer{log: log},
		Metrics: &MetricsServer{},
		log:     log,
	}
}

func (s *Service) Start(ctx context.Context) {
	s.log.Info().Msg("service starting")

	go func() {
		addr := net.JoinHostPort(HealthzHost, HealthzPort)
		s.log.Info().Str("addr", addr).Msg("starting healthz server")
		if err := s.Healthz.Start(ctx, addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.log.Error().Err(err).Msg("error starting healthz server")
			metrics.RecordError("healthz_server")
		}
	}()

	go func() {
		addr := net.JoinHostPort(MetricsHost, MetricsPort)
		s.log.Info().Str("addr", addr).Msg("starting metrics server")
		if err := s.Metrics.Start(ctx, addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.log.Error().Err(err).Msg("error starting metrics server")
			metrics.RecordError("metrics_server")
		}
	}()

	s.log.Info().Msg("service started")
}

func (s *Service) Shutdown() {
	s.log.Info().Msg("service shutting down")

	_ = s.Healthz.Shutdown()
	s.log.Info().Msg("healthz stopped")

	_ = s.Metrics.Shutdown()
	s.log.Info().Msg("metrics stopped")
}
