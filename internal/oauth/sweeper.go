package oauth

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/grantorhq/grantor/internal/observability/logger"
)

// DefaultSweepInterval is how often expired codes and tokens get collected.
const DefaultSweepInterval = 5 * time.Minute

// Sweeper periodically deletes expired authorization codes and token
// records. It only touches rows already past expiry, so it never contends
// with redemption or rotation.
type Sweeper struct {
	codes    *CodeLedger
	tokens   *TokenLedger
	interval time.Duration
}

func NewSweeper(codes *CodeLedger, tokens *TokenLedger, interval time.Duration) *Sweeper {
	if interval <= 0 {
		interval = DefaultSweepInterval
	}
	return &Sweeper{codes: codes, tokens: tokens, interval: interval}
}

// Run loops until ctx is done. Sweep failures are logged and retried on the
// next tick; they never stop the loop.
func (s *Sweeper) Run(ctx context.Context) error {
	log := logger.From(ctx).With(logger.Component("sweeper"))
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			s.SweepOnce(ctx, log)
		}
	}
}

// SweepOnce runs a single collection pass.
func (s *Sweeper) SweepOnce(ctx context.Context, log *zap.Logger) {
	codes, err := s.codes.SweepExpired(ctx)
	if err != nil {
		log.Warn("code sweep failed", logger.Err(err))
	}
	tokens, err := s.tokens.SweepExpired(ctx)
	if err != nil {
		log.Warn("token sweep failed", logger.Err(err))
	}
	if codes > 0 || tokens > 0 {
		log.Info("expired records swept",
			logger.Int64("codes", codes), logger.Int64("tokens", tokens))
	}
}
