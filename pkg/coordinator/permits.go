package coordinator

import (
	"context"
	"time"

	"golang.org/x/time/rate"

	"github.com/vnykmshr/fanflow/pkg/common/errors"
)

type limiterPermits struct {
	l *rate.Limiter
}

// LimiterPermits adapts a golang.org/x/time/rate limiter into a permit
// source, so a coordinator can share a limiter with code that already
// paces itself with one.
func LimiterPermits(l *rate.Limiter) Permits {
	return limiterPermits{l: l}
}

// Reserve takes a permit if one is available now. Otherwise the
// reservation is returned to the limiter and its delay reported.
func (p limiterPermits) Reserve(_ context.Context) (time.Duration, error) {
	now := time.Now()
	r := p.l.ReserveN(now, 1)
	if !r.OK() {
		return 0, errors.NewValidationError("coordinator", "limiter burst", p.l.Burst(), "cannot admit a single permit").
			WithHint("use a burst of 1 or more")
	}
	d := r.DelayFrom(now)
	if d > 0 {
		r.CancelAt(now)
	}
	return d, nil
}

func (p limiterPermits) Tokens() float64 {
	return p.l.Tokens()
}
