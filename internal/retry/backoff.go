package retry

import (
	"errors"
	"fmt"
	"math"
	"slices"
	"time"

	"github.com/ShayCichocki/consumer-contracts/internal/schema"
	"github.com/ShayCichocki/consumer-contracts/internal/transport"
)

// Backoff strategies.
const (
	StrategyConstant    = "constant"
	StrategyExponential = "exponential"
)

// Backoff is a declarative dynamic policy, used by contract files that
// cannot supply a handler function.
type Backoff struct {
	// Strategy is StrategyConstant (default) or StrategyExponential.
	Strategy string
	// Delay is the constant delay, or the first delay when exponential.
	Delay time.Duration
	// MaxDelay caps exponential delays. Zero means no cap.
	MaxDelay time.Duration
	// StopOnStatus lists response statuses that end retrying at once.
	StopOnStatus []int
}

// Validate reports an unknown strategy.
func (b Backoff) Validate() error {
	switch b.Strategy {
	case "", StrategyConstant, StrategyExponential:
		return nil
	}
	return fmt.Errorf("unknown backoff strategy %q", b.Strategy)
}

// Handler returns the HandlerFunc implementing b.
func (b Backoff) Handler() HandlerFunc {
	return func(failure error, _ transport.Request, attempt int) (time.Duration, bool) {
		var verr *schema.ValidationError
		if errors.As(failure, &verr) && slices.Contains(b.StopOnStatus, verr.Status) {
			return 0, false
		}
		return b.delay(attempt), true
	}
}

func (b Backoff) delay(attempt int) time.Duration {
	if b.Strategy != StrategyExponential {
		return b.Delay
	}
	d := b.Delay
	for i := 0; i < attempt; i++ {
		if d > math.MaxInt64/2 {
			d = math.MaxInt64
			break
		}
		d *= 2
		if b.MaxDelay > 0 && d >= b.MaxDelay {
			return b.MaxDelay
		}
	}
	if b.MaxDelay > 0 && d > b.MaxDelay {
		return b.MaxDelay
	}
	return d
}
