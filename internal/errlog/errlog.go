// Package errlog records the keys of accounts whose workflow failed, so a
// later run can be pointed at the list.
package errlog

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"

	"github.com/redis/go-redis/v9"
)

// Recorder appends one failed key.
type Recorder interface {
	Record(ctx context.Context, key string) error
}

// FileLog appends one key per line. Safe for concurrent use.
type FileLog struct {
	path string
	mu   sync.Mutex
}

func NewFileLog(path string) *FileLog {
	return &FileLog{path: path}
}

func (l *FileLog) Path() string { return l.path }

func (l *FileLog) Record(_ context.Context, key string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	f, err := os.OpenFile(l.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o600)
	if err != nil {
		return fmt.Errorf("open %s: %w", l.path, err)
	}
	if _, err := f.WriteString(key + "\n"); err != nil {
		f.Close()
		return fmt.Errorf("append %s: %w", l.path, err)
	}
	return f.Close()
}

const redisKeyFmt = "claimer:errors:%s" // %s = action

// RedisLog mirrors failures into a Redis list per action.
type RedisLog struct {
	rdb *redis.Client
	key string
}

func NewRedisLog(rdb *redis.Client, action string) *RedisLog {
	return &RedisLog{rdb: rdb, key: RedisKey(action)}
}

func RedisKey(action string) string {
	return fmt.Sprintf(redisKeyFmt, action)
}

func (l *RedisLog) Record(ctx context.Context, key string) error {
	return l.rdb.RPush(ctx, l.key, key).Err()
}

// Multi records to every sink and joins their errors. A failing sink does
// not stop the others.
type Multi []Recorder

func (m Multi) Record(ctx context.Context, key string) error {
	var errs []error
	for _, r := range m {
		if err := r.Record(ctx, key); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
