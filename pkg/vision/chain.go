package vision

import (
	"context"
	"fmt"
	"image"
	"log/slog"
)

// Chain tries estimators in order until one succeeds.
type Chain struct {
	estimators []Estimator
	logger     *slog.Logger
}

// NewChain creates an estimator chain. Nil entries are skipped.
func NewChain(logger *slog.Logger, estimators ...Estimator) *Chain {
	if logger == nil {
		logger = slog.Default()
	}
	var list []Estimator
	for _, e := range estimators {
		if e != nil {
			list = append(list, e)
		}
	}
	return &Chain{
		estimators: list,
		logger:     logger.With("component", "vision.chain"),
	}
}

// Name lists the tiers.
func (c *Chain) Name() string {
	names := make([]string, len(c.estimators))
	for i, e := range c.estimators {
		names[i] = e.Name()
	}
	return fmt.Sprintf("chain%v", names)
}

// Len returns the number of tiers.
func (c *Chain) Len() int { return len(c.estimators) }

// Estimate asks each tier in turn. Tier failures are logged at debug and
// never surface unless every tier fails.
func (c *Chain) Estimate(ctx context.Context, frame *image.RGBA) (*Estimate, error) {
	if len(c.estimators) == 0 {
		return nil, ErrNoEstimators
	}

	var errs []error
	for i, e := range c.estimators {
		est, err := e.Estimate(ctx, frame)
		if err == nil && est != nil {
			if i > 0 {
				c.logger.Debug("fallback estimator used", "estimator", e.Name(), "tier", i)
			}
			if est.Source == "" {
				est.Source = e.Name()
			}
			return est, nil
		}
		if err == nil {
			err = fmt.Errorf("%s: no estimate", e.Name())
		}
		errs = append(errs, err)
		c.logger.Debug("estimator failed, trying next", "estimator", e.Name(), "error", err)

		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
	}
	return nil, &ChainError{Errors: errs}
}

// ChainError aggregates errors from all tiers.
type ChainError struct {
	Errors []error
}

// Error implements the error interface.
func (e *ChainError) Error() string {
	if len(e.Errors) == 0 {
		return "vision chain: no errors recorded"
	}
	return fmt.Sprintf("vision chain: all %d estimators failed, last error: %v",
		len(e.Errors), e.Errors[len(e.Errors)-1])
}

// Unwrap returns the last error in the chain.
func (e *ChainError) Unwrap() error {
	if len(e.Errors) == 0 {
		return nil
	}
	return e.Errors[len(e.Errors)-1]
}

var _ Estimator = (*Chain)(nil)
