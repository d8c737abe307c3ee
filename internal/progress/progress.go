// Package progress counts account outcomes for one run and optionally
// mirrors the counters into a Redis hash.
package progress

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// Result is the terminal classification of one account.
type Result string

const (
	Confirmed Result = "confirmed"
	Rejected  Result = "rejected"
	Skipped   Result = "skipped"
	Failed    Result = "failed"
)

const (
	runKeyPrefix = "claimer:run:"
	runKeyTTL    = 7 * 24 * time.Hour
)

// Snapshot is a point-in-time copy of the counters.
type Snapshot struct {
	RunID     string    `json:"run_id"`
	Action    string    `json:"action"`
	Total     int       `json:"total"`
	Done      int64     `json:"done"`
	Confirmed int64     `json:"confirmed"`
	Rejected  int64     `json:"rejected"`
	Skipped   int64     `json:"skipped"`
	Failed    int64     `json:"failed"`
	StartedAt time.Time `json:"started_at"`
}

// Tracker is safe for concurrent use.
type Tracker struct {
	runID   string
	action  string
	total   int
	started time.Time

	confirmed atomic.Int64
	rejected  atomic.Int64
	skipped   atomic.Int64
	failed    atomic.Int64

	rdb *redis.Client // nil disables the mirror
	log *zap.Logger
}

func New(action string, total int, rdb *redis.Client, log *zap.Logger) *Tracker {
	return &Tracker{
		runID:   uuid.NewString(),
		action:  action,
		total:   total,
		started: time.Now().UTC(),
		rdb:     rdb,
		log:     log,
	}
}

func (t *Tracker) RunID() string { return t.runID }

func RunKey(runID string) string { return runKeyPrefix + runID }

// Start writes the run header to Redis.
func (t *Tracker) Start(ctx context.Context) {
	if t.rdb == nil {
		return
	}
	key := RunKey(t.runID)
	pipe := t.rdb.TxPipeline()
	pipe.HSet(ctx, key,
		"run_id", t.runID,
		"action", t.action,
		"total", t.total,
		"started_at", t.started.Unix(),
	)
	pipe.Expire(ctx, key, runKeyTTL)
	if _, err := pipe.Exec(ctx); err != nil {
		t.log.Warn("progress: write run header", zap.String("run_id", t.runID), zap.Error(err))
	}
}

// Record counts one account. Redis errors are logged and otherwise ignored.
func (t *Tracker) Record(ctx context.Context, r Result) {
	switch r {
	case Confirmed:
		t.confirmed.Add(1)
	case Rejected:
		t.rejected.Add(1)
	case Skipped:
		t.skipped.Add(1)
	case Failed:
		t.failed.Add(1)
	default:
		t.log.Error("progress: unknown result", zap.String("result", string(r)))
		return
	}
	if t.rdb == nil {
		return
	}
	// the run context may already be cancelled when late failures arrive
	ctx = context.WithoutCancel(ctx)
	if err := t.rdb.HIncrBy(ctx, RunKey(t.runID), string(r), 1).Err(); err != nil {
		t.log.Warn("progress: mirror counter", zap.String("run_id", t.runID), zap.Error(err))
	}
}

func (t *Tracker) Snapshot() Snapshot {
	s := Snapshot{
		RunID:     t.runID,
		Action:    t.action,
		Total:     t.total,
		Confirmed: t.confirmed.Load(),
		Rejected:  t.rejected.Load(),
		Skipped:   t.skipped.Load(),
		Failed:    t.failed.Load(),
		StartedAt: t.started,
	}
	s.Done = s.Confirmed + s.Rejected + s.Skipped + s.Failed
	return s
}

func (s Snapshot) String() string {
	return fmt.Sprintf("%d/%d done: %d confirmed, %d rejected, %d skipped, %d failed",
		s.Done, s.Total, s.Confirmed, s.Rejected, s.Skipped, s.Failed)
}
