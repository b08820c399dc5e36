package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/sync/errgroup"

	"github.com/angelmondragon/storyblok-sync/pkg/logger"
	"github.com/angelmondragon/storyblok-sync/pkg/metrics"
)

type pinger interface {
	Ping(context.Context) error
}

type consumer interface {
	Run(ctx context.Context) error
}

type ServiceParams struct {
	Logger      *logger.Logger
	DB          pinger
	Redis       pinger
	PubSub      pinger
	Consumer    consumer
	MetricsAddr string
	Gatherer    prometheus.Gatherer
}

type dependency struct {
	name string
	pinger
}

// Service runs the catalog consumer once every backing service answers.
type Service struct {
	logg        *logger.Logger
	deps        []dependency
	consumer    consumer
	metricsAddr string
	gatherer    prometheus.Gatherer
}

func NewService(p ServiceParams) (*Service, error) {
	if p.Logger == nil {
		return nil, errors.New("logger is required")
	}
	if p.Consumer == nil {
		return nil, errors.New("catalog consumer is required")
	}
	deps := []dependency{{"database", p.DB}, {"redis", p.Redis}, {"pubsub", p.PubSub}}
	for _, d := range deps {
		if d.pinger == nil {
			return nil, fmt.Errorf("%s client is required", d.name)
		}
	}
	return &Service{
		logg:        p.Logger,
		deps:        deps,
		consumer:    p.Consumer,
		metricsAddr: p.MetricsAddr,
		gatherer:    p.Gatherer,
	}, nil
}

// ready pings dependencies in order and stops at the first failure.
func (s *Service) ready(ctx context.Context) error {
	for _, d := range s.deps {
		if err := d.Ping(ctx); err != nil {
			s.logg.Error(s.logg.WithField(ctx, "dependency", d.name), "readiness ping failed", err)
			return fmt.Errorf("%s not ready: %w", d.name, err)
		}
	}
	s.logg.Info(ctx, "worker dependencies ready")
	return nil
}

// Run consumes until ctx is cancelled or the consumer fails. The metrics
// listener shares the consumer's lifetime.
func (s *Service) Run(ctx context.Context) error {
	if err := s.ready(ctx); err != nil {
		return err
	}

	g, gctx := errgroup.WithContext(ctx)
	if s.metricsAddr != "" {
		g.Go(func() error { return metrics.Serve(gctx, s.metricsAddr, s.gatherer) })
	}
	g.Go(func() error { return s.consumer.Run(gctx) })

	err := g.Wait()
	if err != nil && !errors.Is(err, context.Canceled) {
		s.logg.Error(ctx, "worker stopped unexpectedly", err)
	}
	return err
}
