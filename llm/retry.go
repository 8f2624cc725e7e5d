package llm

import (
	"context"
	"errors"
	"log/slog"
	"time"
)

// Retry retries failed calls up to retries additional times with exponential
// backoff starting at base. Permanent errors and context cancellation stop
// immediately. Each retry is logged.
func Retry(retries int, base time.Duration, logger *slog.Logger) Middleware {
	if retries < 0 {
		retries = 0
	}
	if base <= 0 {
		base = 250 * time.Millisecond
	}
	if logger == nil {
		logger = slog.Default()
	}
	return func(next Generator) Generator {
		return &retrying{next: next, retries: retries, base: base, logger: logger}
	}
}

type retrying struct {
	next    Generator
	retries int
	base    time.Duration
	logger  *slog.Logger
}

func (r *retrying) Generate(ctx context.Context, req Request) (string, error) {
	var last error
	for attempt := 0; attempt <= r.retries; attempt++ {
		if attempt > 0 {
			delay := r.base * time.Duration(1<<(attempt-1))
			r.logger.Warn("llm: retrying request",
				"attempt", attempt,
				"delay", delay,
				"error", last,
			)
			select {
			case <-time.After(delay):
			case <-ctx.Done():
				return "", ctx.Err()
			}
		}

		out, err := r.next.Generate(ctx, req)
		if err == nil {
			return out, nil
		}
		var pErr *PermanentError
		if errors.As(err, &pErr) {
			return "", err
		}
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		last = &TransportError{Attempt: attempt + 1, Err: err}
	}
	return "", last
}
