package llm

import (
	"context"
	"encoding/json"
	"math/rand"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/rs/zerolog"

	"macrobench/internal/errors"
	"macrobench/internal/metrics"
	"macrobench/ports"
)

// maxAttempts bounds a forecaster invocation to 3 total attempts. Judge
// calls are never wrapped: judge feedback is part of the causal chain into
// the next tick, so a judge failure must surface immediately.
const maxAttempts = 3

// retrySignatures mark error messages worth retrying: rate limiting,
// transient server errors, and provider overload.
var retrySignatures = []string{
	"rate limit",
	"rate_limit",
	"429",
	"overloaded",
	"500",
	"502",
	"503",
	"504",
	"internal server error",
	"bad gateway",
	"service unavailable",
	"timeout",
}

// IsRetryable classifies an invocation error by its message signature.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.HasCode(err, errors.CodeRateLimited) {
		return true
	}
	if errors.HasCode(err, errors.CodeAuthError) || errors.HasCode(err, errors.CodeMalformedOutput) {
		return false
	}
	msg := strings.ToLower(err.Error())
	for _, sig := range retrySignatures {
		if strings.Contains(msg, sig) {
			return true
		}
	}
	return false
}

// retrySchedule waits 2^attempt seconds plus up to one second of random
// jitter between attempts.
type retrySchedule struct {
	attempt int
}

func (s *retrySchedule) NextBackOff() time.Duration {
	s.attempt++
	base := time.Duration(1<<uint(s.attempt)) * time.Second
	return base + time.Duration(rand.Int63n(int64(time.Second)))
}

func (s *retrySchedule) Reset() { s.attempt = 0 }

// WithRetry wraps an invoker with the forecaster retry policy.
func WithRetry(inner ports.ModelInvoker, logger zerolog.Logger) ports.ModelInvoker {
	return &retryInvoker{inner: inner, logger: logger}
}

type retryInvoker struct {
	inner  ports.ModelInvoker
	logger zerolog.Logger
}

func (r *retryInvoker) Invoke(ctx context.Context, prompt string) (json.RawMessage, error) {
	var out json.RawMessage
	op := func() error {
		result, err := r.inner.Invoke(ctx, prompt)
		if err != nil {
			if !IsRetryable(err) {
				return backoff.Permanent(err)
			}
			return err
		}
		out = result
		return nil
	}
	notify := func(err error, wait time.Duration) {
		metrics.InvocationRetries.Inc()
		r.logger.Warn().Err(err).Dur("backoff", wait).Msg("retrying model invocation")
	}

	schedule := backoff.WithContext(backoff.WithMaxRetries(&retrySchedule{}, maxAttempts-1), ctx)
	if err := backoff.RetryNotify(op, schedule, notify); err != nil {
		return nil, err
	}
	return out, nil
}
