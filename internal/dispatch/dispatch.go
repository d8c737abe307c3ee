// Package dispatch fans a key list out over a fixed number of workers and
// isolates each account's failure from the rest of the batch.
package dispatch

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/0gfoundation/airdrop-claimer/internal/errlog"
	"github.com/0gfoundation/airdrop-claimer/internal/progress"
	"github.com/0gfoundation/airdrop-claimer/internal/workflow"
)

// Summary counts terminal results for a batch.
type Summary struct {
	Total     int
	Confirmed int
	Rejected  int
	Skipped   int
	Failed    int
}

func (s Summary) String() string {
	return fmt.Sprintf("%d accounts: %d confirmed, %d rejected, %d skipped, %d failed",
		s.Total, s.Confirmed, s.Rejected, s.Skipped, s.Failed)
}

func (s *Summary) add(r progress.Result) {
	switch r {
	case progress.Confirmed:
		s.Confirmed++
	case progress.Rejected:
		s.Rejected++
	case progress.Skipped:
		s.Skipped++
	default:
		s.Failed++
	}
}

type pool struct {
	runner   workflow.Runner
	failures errlog.Recorder
	tracker  *progress.Tracker
	log      *zap.Logger

	mu      sync.Mutex
	summary Summary
}

// Run processes every key exactly once with at most workers accounts in
// flight and returns when all of them reached a terminal result. Keys not
// started before ctx is cancelled are recorded as failures. tracker may be
// nil.
func Run(ctx context.Context, keys []string, runner workflow.Runner, workers int, failures errlog.Recorder, tracker *progress.Tracker, log *zap.Logger) Summary {
	if workers <= 0 {
		workers = 1
	}
	if workers > len(keys) {
		workers = len(keys)
	}
	p := &pool{
		runner:   runner,
		failures: failures,
		tracker:  tracker,
		log:      log,
		summary:  Summary{Total: len(keys)},
	}

	tasks := make(chan string)
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for key := range tasks {
				p.finish(ctx, p.process(ctx, key))
			}
		}()
	}
	for _, key := range keys {
		tasks <- key
	}
	close(tasks)
	wg.Wait()

	log.Info("all accounts processed",
		zap.String("action", runner.Name()),
		zap.Int("total", p.summary.Total),
		zap.Int("confirmed", p.summary.Confirmed),
		zap.Int("rejected", p.summary.Rejected),
		zap.Int("skipped", p.summary.Skipped),
		zap.Int("failed", p.summary.Failed),
	)
	return p.summary
}

// process is the per-account boundary: nothing escapes it.
func (p *pool) process(ctx context.Context, key string) (res progress.Result) {
	defer func() {
		if r := recover(); r != nil {
			res = p.fail(ctx, key, fmt.Errorf("panic: %v", r), zap.Stack("stack"))
		}
	}()

	if err := ctx.Err(); err != nil {
		return p.fail(ctx, key, fmt.Errorf("cancelled before start: %w", err))
	}

	out, err := p.runner.Run(ctx, key)
	if err != nil {
		return p.fail(ctx, key, err,
			zap.String("address", out.Address.Hex()),
			zap.Stringer("state", out.State),
		)
	}
	switch out.State {
	case workflow.Confirmed:
		return progress.Confirmed
	case workflow.Rejected:
		return progress.Rejected
	case workflow.Skipped:
		return progress.Skipped
	}
	return p.fail(ctx, key, fmt.Errorf("workflow stopped in state %s", out.State))
}

func (p *pool) fail(ctx context.Context, key string, err error, fields ...zap.Field) progress.Result {
	msg := "unexpected error"
	if errors.Is(err, context.Canceled) {
		msg = "account cancelled"
	}
	p.log.Error(msg, append([]zap.Field{
		zap.String("action", p.runner.Name()),
		zap.String("key", MaskKey(key)),
		zap.Error(err),
	}, fields...)...)

	// record even when the run is being torn down
	if werr := p.failures.Record(context.WithoutCancel(ctx), key); werr != nil {
		p.log.Error("failure log write failed", zap.String("key", MaskKey(key)), zap.Error(werr))
	}
	return progress.Failed
}

func (p *pool) finish(ctx context.Context, r progress.Result) {
	if p.tracker != nil {
		p.tracker.Record(ctx, r)
	}
	p.mu.Lock()
	p.summary.add(r)
	p.mu.Unlock()
}

// MaskKey keeps the first and last four hex digits of a key for log lines.
func MaskKey(key string) string {
	if len(key) <= 14 {
		return "***"
	}
	return key[:6] + "..." + key[len(key)-4:]
}
