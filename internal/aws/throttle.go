package aws

import (
	"context"
	"math"

	"golang.org/x/time/rate"
)

// Throttle caps the request rate shared by every AWS call of a run.
// A nil Throttle never waits.
type Throttle struct {
	limiter *rate.Limiter
}

// NewThrottle returns a throttle allowing rps requests per second, or nil
// when rps is not positive.
func NewThrottle(rps float64) *Throttle {
	if rps <= 0 {
		return nil
	}
	burst := int(math.Ceil(rps))
	return &Throttle{limiter: rate.NewLimiter(rate.Limit(rps), burst)}
}

// Wait blocks until a request may proceed or ctx is done.
func (t *Throttle) Wait(ctx context.Context) error {
	if t == nil {
		return nil
	}
	return t.limiter.Wait(ctx)
}
