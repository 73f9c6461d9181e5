package retry

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"
)

// FixedDelayPolicy retries up to attempts times with a constant pause in
// between. Exhaustion is logged at debug level; callers report the outcome.
func FixedDelayPolicy(name string, attempts int, delay time.Duration, log *zap.Logger) Policy {
	return Policy{
		Name:     name,
		Attempts: attempts,
		Backoff:  Constant{Delay: delay},
		OnExhaust: func(err error) {
			if log != nil && !errors.Is(err, context.Canceled) {
				log.Debug("retries exhausted", zap.String("policy", name), zap.Int("attempts", attempts), zap.Error(err))
			}
		},
	}
}
