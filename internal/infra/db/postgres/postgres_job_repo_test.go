package postgres

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/jackc/pgconn"

	"interview-orchestrator/internal/domain/model"
	"interview-orchestrator/internal/infra/redis"
)

type fakeRedis struct {
	data map[string]string
}

func newFakeRedis() *fakeRedis { return &fakeRedis{data: make(map[string]string)} }

func (f *fakeRedis) Ping(ctx context.Context) error { return nil }

func (f *fakeRedis) Set(ctx context.Context, key string, value interface{}, _ time.Duration) error {
	f.data[key] = fmt.Sprintf("%s", value)
	return nil
}

func (f *fakeRedis) Get(ctx context.Context, key string) (string, error) {
	v, ok := f.data[key]
	if !ok {
		return "", errors.New("redis: nil")
	}
	return v, nil
}

func (f *fakeRedis) Incr(ctx context.Context, key string) (int64, error) { return 1, nil }

func (f *fakeRedis) Expire(ctx context.Context, key string, _ time.Duration) error { return nil }

func (f *fakeRedis) Del(ctx context.Context, keys ...string) error {
	for _, k := range keys {
		delete(f.data, k)
	}
	return nil
}

func (f *fakeRedis) Close() error { return nil }

func terminalJob(id string) *model.Job {
	j := model.NewJob(id, "iv-1", "a")
	j.Status = model.JobStatusCompleted
	j.Result = "Q2"
	return j
}

// The cache is populated only from committed state: never while a transaction
// is open, and never for non-terminal jobs. A cache write inside a transaction
// that later rolls back would keep serving a terminal status the store
// discarded.
func TestMaybeCacheSkipsOpenTransactions(t *testing.T) {
	ctx := context.Background()
	fake := newFakeRedis()
	repo := NewJobRepo(nil, nil, redis.NewJobCache(fake, time.Minute))

	repo.maybeCache(ctx, struct{}{}, terminalJob("j-1"))
	if len(fake.data) != 0 {
		t.Fatalf("cache written inside tx: %v", fake.data)
	}

	running := model.NewJob("j-2", "iv-1", "a")
	running.Status = model.JobStatusRunning
	repo.maybeCache(ctx, nil, running)
	if len(fake.data) != 0 {
		t.Fatalf("non-terminal job cached: %v", fake.data)
	}

	repo.maybeCache(ctx, nil, terminalJob("j-3"))
	if _, ok := fake.data["job:j-3"]; !ok {
		t.Fatalf("terminal job not cached: %v", fake.data)
	}
}

func TestMaybeCacheNilCache(t *testing.T) {
	repo := NewJobRepo(nil, nil, nil)
	repo.maybeCache(context.Background(), nil, terminalJob("j-1")) // must not panic
}

func TestIsUniqueViolation(t *testing.T) {
	if !isUniqueViolation(&pgconn.PgError{Code: "23505"}) {
		t.Fatal("unique violation not detected")
	}
	if !isUniqueViolation(fmt.Errorf("exec: %w", &pgconn.PgError{Code: "23505"})) {
		t.Fatal("wrapped unique violation not detected")
	}
	if isUniqueViolation(&pgconn.PgError{Code: "23503"}) {
		t.Fatal("foreign key violation misread as unique")
	}
	if isUniqueViolation(errors.New("boom")) {
		t.Fatal("plain error misread as unique")
	}
}
