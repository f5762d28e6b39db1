package vision

import (
	"context"
	"time"

	"github.com/rs/zerolog"
	"github.com/sethvargo/go-retry"
	"golang.org/x/time/rate"
)

// Throttled limits outbound calls to a model.
type Throttled struct {
	next    Model
	limiter *rate.Limiter
}

// NewThrottled wraps next so that at most rps calls per second are made.
func NewThrottled(next Model, rps float64) *Throttled {
	burst := int(rps)
	if burst < 1 {
		burst = 1
	}
	return &Throttled{next: next, limiter: rate.NewLimiter(rate.Limit(rps), burst)}
}

// Name implements Model.
func (t *Throttled) Name() string { return t.next.Name() }

// Generate implements Model.
func (t *Throttled) Generate(ctx context.Context, req Request) (string, error) {
	if err := t.limiter.Wait(ctx); err != nil {
		return "", err
	}
	return t.next.Generate(ctx, req)
}

// Retrying retries transient model failures with exponential backoff.
type Retrying struct {
	next       Model
	maxRetries uint64
	base       time.Duration
	log        zerolog.Logger
}

// NewRetrying wraps next with up to maxRetries extra attempts.
func NewRetrying(next Model, maxRetries int, base time.Duration, log zerolog.Logger) *Retrying {
	if base <= 0 {
		base = 500 * time.Millisecond
	}
	if maxRetries < 0 {
		maxRetries = 0
	}
	return &Retrying{next: next, maxRetries: uint64(maxRetries), base: base, log: log}
}

// Name implements Model.
func (r *Retrying) Name() string { return r.next.Name() }

// Generate implements Model.
func (r *Retrying) Generate(ctx context.Context, req Request) (string, error) {
	var text string
	attempt := 0
	backoff := retry.WithMaxRetries(r.maxRetries, retry.NewExponential(r.base))

	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		attempt++
		out, err := r.next.Generate(ctx, req)
		if err != nil {
			if Transient(err) {
				r.log.Warn().Err(err).Int("attempt", attempt).Str("model", r.next.Name()).Msg("transient model error, retrying")
				return retry.RetryableError(err)
			}
			return err
		}
		text = out
		return nil
	})
	return text, err
}
