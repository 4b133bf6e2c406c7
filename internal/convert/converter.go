// internal/convert/converter.go
package convert

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/holiman/uint256"
	"go.uber.org/zap"

	"github.com/givecurve/givecurve/internal/types"
)

// ErrConversionFailed is returned when the converter cannot produce a
// positive stable-unit amount: no registered rate, an unavailable feed, or
// a degenerate quote. The caller must abort the surrounding donation.
var ErrConversionFailed = errors.New("currency conversion failed")

// Converter exchanges a raw deposit into the stable accounting unit at the
// current market rate. Each call consumes rawAmount exactly once; a failed
// call transfers nothing.
type Converter interface {
	ConvertToStable(ctx context.Context, rawAmount *uint256.Int, kind types.AssetKind) (*uint256.Int, error)
}

// FixedRate converts at a constant num/den rate. Used for development
// deployments and tests, and for communities denominated directly in the
// stable unit (rate 1/1).
type FixedRate struct {
	num *uint256.Int
	den *uint256.Int
}

func NewFixedRate(num, den uint64) (*FixedRate, error) {
	if num == 0 || den == 0 {
		return nil, fmt.Errorf("fixed rate %d/%d: %w", num, den, ErrConversionFailed)
	}
	return &FixedRate{num: uint256.NewInt(num), den: uint256.NewInt(den)}, nil
}

func (c *FixedRate) ConvertToStable(_ context.Context, rawAmount *uint256.Int, _ types.AssetKind) (*uint256.Int, error) {
	out := new(uint256.Int).Mul(rawAmount, c.num)
	return out.Div(out, c.den), nil
}

// RateSource quotes the current raw→stable rate for an asset kind as a
// num/den pair. Implementations wrap an external market feed and may fail
// transiently.
type RateSource interface {
	Rate(ctx context.Context, kind types.AssetKind) (num, den uint64, err error)
}

// FeedConverter converts through a live RateSource, retrying transient feed
// failures with exponential backoff. Retrying here is safe: nothing has
// been committed yet, and the donation only proceeds once a rate is known
// good.
type FeedConverter struct {
	source   RateSource
	logger   *zap.Logger
	maxTries uint
	interval time.Duration
}

func NewFeedConverter(source RateSource, logger *zap.Logger) *FeedConverter {
	return &FeedConverter{
		source:   source,
		logger:   logger.Named("converter"),
		maxTries: 4,
		interval: 200 * time.Millisecond,
	}
}

func (c *FeedConverter) ConvertToStable(ctx context.Context, rawAmount *uint256.Int, kind types.AssetKind) (*uint256.Int, error) {
	if rawAmount.IsZero() {
		return uint256.NewInt(0), nil
	}

	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = c.interval
	policy.MaxInterval = c.interval * 10

	notify := func(err error, duration time.Duration) {
		c.logger.Info("Retrying rate fetch",
			zap.String("asset_kind", string(kind)),
			zap.Duration("backoff", duration),
			zap.Error(err))
	}

	operation := func() (rate [2]uint64, err error) {
		num, den, err := c.source.Rate(ctx, kind)
		if err != nil {
			return rate, err
		}
		return [2]uint64{num, den}, nil
	}

	rate, err := backoff.Retry(ctx, operation,
		backoff.WithBackOff(policy),
		backoff.WithMaxTries(c.maxTries),
		backoff.WithNotify(notify))
	if err != nil {
		c.logger.Error("Rate source unavailable",
			zap.String("asset_kind", string(kind)),
			zap.Error(err))
		return nil, fmt.Errorf("rate source for %s: %w", kind, ErrConversionFailed)
	}
	if rate[0] == 0 || rate[1] == 0 {
		return nil, fmt.Errorf("non-positive rate %d/%d for %s: %w", rate[0], rate[1], kind, ErrConversionFailed)
	}

	out := new(uint256.Int).Mul(rawAmount, uint256.NewInt(rate[0]))
	return out.Div(out, uint256.NewInt(rate[1])), nil
}
