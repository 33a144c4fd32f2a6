package riot

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/corey-cole/riot/models"
)

// faultPolicy decides skip, retry or abort. It is shared by all lanes of a run.
type faultPolicy struct {
	skipLimit    int64
	retryLimit   int
	retryBackoff time.Duration

	skipped atomic.Int64
}

func newFaultPolicy(opts StepOptions) *faultPolicy {
	return &faultPolicy{
		skipLimit:    int64(opts.SkipLimit),
		retryLimit:   opts.RetryLimit,
		retryBackoff: opts.RetryBackoff,
	}
}

// trySkip reserves one skip. It returns false once the limit is reached,
// so the skip count never goes past the limit.
func (p *faultPolicy) trySkip() bool {
	for {
		n := p.skipped.Load()
		if n >= p.skipLimit {
			return false
		}
		if p.skipped.CompareAndSwap(n, n+1) {
			return true
		}
	}
}

func (p *faultPolicy) skipCount() int64 {
	return p.skipped.Load()
}

// write hands the buffered chunk to the sink, replaying the same chunk on
// transient failures up to the retry limit.
func (p *faultPolicy) write(ctx context.Context, sink models.Sink, chunk models.Chunk, onRetry func(err error, wait time.Duration)) error {
	attempts := 0
	op := func() error {
		attempts++
		err := sink.Write(ctx, chunk)
		if err == nil || models.Classify(err) == models.FailureTransient {
			return err
		}
		return backoff.Permanent(err)
	}

	err := backoff.RetryNotify(op, p.backOff(ctx), onRetry)
	if err != nil && models.Classify(err) == models.FailureTransient {
		return &models.RetryLimitExceededError{Attempts: attempts, Cause: err}
	}
	return err
}

func (p *faultPolicy) backOff(ctx context.Context) backoff.BackOff {
	var b backoff.BackOff = &backoff.ZeroBackOff{}
	if p.retryBackoff > 0 {
		b = backoff.NewConstantBackOff(p.retryBackoff)
	}
	return backoff.WithContext(backoff.WithMaxRetries(b, uint64(p.retryLimit)), ctx)
}
