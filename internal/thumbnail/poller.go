package thumbnail

import (
	"context"
	"errors"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.uber.org/zap"
)

// ObjectProber is the slice of the object store the poller needs.
type ObjectProber interface {
	Probe(ctx context.Context, key string) error
}

type ProbeFunc func(ctx context.Context, key string) error

func (f ProbeFunc) Probe(ctx context.Context, key string) error { return f(ctx, key) }

type Readiness interface {
	WaitForReady(ctx context.Context, thumbPath string) bool
}

// Poller waits for a derived thumbnail to exist, probing under exponential
// backoff. A poll that exhausts its budget is a negative result, not an
// error: the caller decides the user-facing error kind.
type Poller struct {
	prober      ObjectProber
	initial     time.Duration
	maxInterval time.Duration
	budget      time.Duration
	log         *zap.Logger
}

func NewPoller(prober ObjectProber, initial, maxInterval, budget time.Duration, log *zap.Logger) *Poller {
	return &Poller{
		prober:      prober,
		initial:     initial,
		maxInterval: maxInterval,
		budget:      budget,
		log:         log,
	}
}

var errNotReady = errors.New("thumbnail not ready")

func (p *Poller) WaitForReady(ctx context.Context, thumbPath string) bool {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = p.initial
	b.Multiplier = 2
	b.MaxInterval = p.maxInterval
	b.MaxElapsedTime = p.budget
	b.RandomizationFactor = 0

	operation := func() error {
		if err := p.prober.Probe(ctx, thumbPath); err != nil {
			return errNotReady
		}
		return nil
	}

	if err := backoff.Retry(operation, backoff.WithContext(b, ctx)); err != nil {
		p.log.Warn("thumbnail did not appear within poll budget",
			zap.String("path", thumbPath),
			zap.Duration("budget", p.budget))
		return false
	}
	return true
}
