package relay

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// SweepScheduler drives Relay.Sweep on a fixed interval, matching
// OutboxRelay's @Scheduled(fixedDelay = "30s") sweepOnce.
type SweepScheduler struct {
	relay    *Relay
	interval time.Duration
	batch    int
	log      *zap.SugaredLogger
}

func NewSweepScheduler(relay *Relay, interval time.Duration, batch int, log *zap.SugaredLogger) *SweepScheduler {
	return &SweepScheduler{relay: relay, interval: interval, batch: batch, log: log}
}

// Run blocks, sweeping on every tick until ctx is cancelled.
func (s *SweepScheduler) Run(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n := s.relay.Sweep(ctx, s.batch)
			if n > 0 {
				s.log.Infow("sweep published rows", "count", n)
			}
		}
	}
}
