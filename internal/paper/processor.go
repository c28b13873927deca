package paper

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/ksred/klear-accumulate/pkg/middleware"
)

type Processor struct {
	service  *Service
	limiter  *middleware.Limiter
	interval time.Duration // time between matching passes
}

// NewProcessor creates a matching loop; limiter may be nil
func NewProcessor(service *Service, limiter *middleware.Limiter, interval time.Duration) *Processor {
	if interval <= 0 {
		interval = time.Second
	}
	return &Processor{
		service:  service,
		limiter:  limiter,
		interval: interval,
	}
}

// Start runs matching passes until ctx is done
func (p *Processor) Start(ctx context.Context) {
	logger := log.With().Str("component", "venue_processor").Logger()
	logger.Info().Dur("interval", p.interval).Msg("starting venue processor")

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			logger.Info().Msg("shutting down venue processor")
			return
		case <-ticker.C:
			if err := p.service.Tick(); err != nil {
				logger.Error().Err(err).Msg("failed to process open orders")
			}
			if p.limiter != nil {
				p.limiter.Cleanup(3 * time.Minute)
			}
		}
	}
}
