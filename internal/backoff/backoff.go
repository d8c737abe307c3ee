// Package backoff runs node and HTTP calls under a bounded exponential
// backoff with jitter.
package backoff

import (
	"context"
	"time"

	"github.com/avast/retry-go/v4"
	"go.uber.org/zap"

	"github.com/0gfoundation/airdrop-claimer/internal/config"
)

// Policy bounds how often and how fast a call is re-issued.
type Policy struct {
	Attempts  uint
	Delay     time.Duration
	MaxDelay  time.Duration
	MaxJitter time.Duration
}

// FromConfig builds the policy shared by the chain and voucher clients.
func FromConfig(cfg *config.Config) Policy {
	return Policy{
		Attempts:  cfg.RetryAttempts,
		Delay:     cfg.RetryDelay,
		MaxDelay:  cfg.RetryMaxDelay,
		MaxJitter: cfg.RetryMaxJitter,
	}
}

// Permanent marks err as not worth retrying.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return retry.Unrecoverable(err)
}

// IsPermanent reports whether err was marked with Permanent.
func IsPermanent(err error) bool {
	return err != nil && !retry.IsRecoverable(err)
}

// Do calls fn until it succeeds, returns a Permanent error, ctx is done, or
// the attempt budget is spent. Every failed attempt is logged with fields.
func Do(ctx context.Context, p Policy, log *zap.Logger, op string, fn func(ctx context.Context) error, fields ...zap.Field) error {
	attempts := p.Attempts
	if attempts == 0 {
		attempts = 1
	}
	delayType := retry.BackOffDelay
	if p.MaxJitter > 0 {
		delayType = retry.CombineDelay(retry.BackOffDelay, retry.RandomDelay)
	}
	return retry.Do(
		func() error {
			err := fn(ctx)
			if err != nil && !IsPermanent(err) && ctx.Err() == nil {
				log.Warn(op+" failed",
					append(fields, zap.Error(err))...,
				)
			}
			return err
		},
		retry.Context(ctx),
		retry.Attempts(attempts),
		retry.Delay(p.Delay),
		retry.MaxDelay(p.MaxDelay),
		retry.MaxJitter(p.MaxJitter),
		retry.DelayType(delayType),
		retry.LastErrorOnly(true),
	)
}
