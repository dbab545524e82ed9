package redis

import (
	"context"
	"encoding/json"
	"time"

	"interview-orchestrator/internal/domain/model"
)

// JobCache keeps snapshots of terminal jobs so the poll path can answer
// without touching Postgres. Only terminal jobs are stored; they are
// immutable, so a hit never serves stale state.
type JobCache struct {
	client RedisClient
	ttl    time.Duration
}

func NewJobCache(client RedisClient, ttl time.Duration) *JobCache {
	return &JobCache{client: client, ttl: ttl}
}

func (c *JobCache) StoreJob(ctx context.Context, job *model.Job) error {
	if !job.IsTerminal() {
		return nil
	}
	data, err := json.Marshal(job)
	if err != nil {
		return err
	}
	return c.client.Set(ctx, "job:"+job.ID, data, c.ttl)
}

func (c *JobCache) GetJob(ctx context.Context, jobID string) (*model.Job, error) {
	data, err := c.client.Get(ctx, "job:"+jobID)
	if err != nil {
		return nil, err
	}
	var job model.Job
	if err := json.Unmarshal([]byte(data), &job); err != nil {
		return nil, err
	}
	return &job, nil
}
