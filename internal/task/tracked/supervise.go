// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package tracked

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"

	"github.com/ManuGH/mudcore/internal/metrics"
	"github.com/ManuGH/mudcore/internal/task"
)

var errOwnDeadline = errors.New("supervised deadline exceeded")

// Supervise bounds work by deadline. Running past the deadline ends the unit
// with no result and no error. Cancellation of the outer context is always
// returned to the caller, even when work swallowed it.
func Supervise(parentLabel string, deadline time.Duration, work task.Work, logger zerolog.Logger) task.Work {
	return func(ctx context.Context) error {
		if deadline <= 0 {
			return work(ctx)
		}
		runCtx, cancel := context.WithTimeoutCause(ctx, deadline, errOwnDeadline)
		defer cancel()

		err := work(runCtx)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if errors.Is(context.Cause(runCtx), errOwnDeadline) && (err == nil || errors.Is(err, context.DeadlineExceeded) || errors.Is(err, errOwnDeadline)) {
			metrics.SupervisedTimeoutsTotal.WithLabelValues(parentLabel).Inc()
			logger.Warn().
				Str("parent", parentLabel).
				Dur("deadline", deadline).
				Msg("supervised unit exceeded its deadline; dropping result")
			return nil
		}
		return err
	}
}
