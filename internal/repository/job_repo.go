// Package repository keeps generation job records. Jobs are short lived, so
// they live in Redis with a TTL rather than in the history store.
package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"lalaquiz-backend/internal/models"
)

const (
	jobKeyPrefix  = "job:"
	jobTTL        = 24 * time.Hour
	maxJobRetries = 3
)

var ErrJobNotFound = errors.New("job not found")

type JobRepo struct {
	redis *redis.Client
	now   func() time.Time
}

func NewJobRepo(redisClient *redis.Client) *JobRepo {
	return &JobRepo{redis: redisClient, now: time.Now}
}

func jobKey(id uuid.UUID) string {
	return jobKeyPrefix + id.String()
}

// Create assigns an id and stores j as pending.
func (r *JobRepo) Create(ctx context.Context, j *models.Job) error {
	j.ID = uuid.New()
	j.Status = models.JobStatusPending
	j.RetryCount = 0
	j.MaxRetries = maxJobRetries
	j.CreatedAt = r.now().UTC()
	return r.save(ctx, j)
}

func (r *JobRepo) GetByID(ctx context.Context, id uuid.UUID) (*models.Job, error) {
	data, err := r.redis.Get(ctx, jobKey(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrJobNotFound
	}
	if err != nil {
		return nil, err
	}

	var j models.Job
	if err := json.Unmarshal(data, &j); err != nil {
		return nil, fmt.Errorf("corrupt job record %s: %w", id, err)
	}
	return &j, nil
}

func (r *JobRepo) UpdateStatus(ctx context.Context, id uuid.UUID, status string) error {
	return r.update(ctx, id, func(j *models.Job) {
		j.Status = status
		if status == models.JobStatusCompleted || status == models.JobStatusFailed {
			now := r.now().UTC()
			j.CompletedAt = &now
		}
	})
}

func (r *JobRepo) UpdateError(ctx context.Context, id uuid.UUID, code, errMsg string, retryCount int) error {
	return r.update(ctx, id, func(j *models.Job) {
		j.ErrorCode = code
		j.ErrorMessage = &errMsg
		j.RetryCount = retryCount
	})
}

// Complete marks the job done and records the session it produced.
func (r *JobRepo) Complete(ctx context.Context, id uuid.UUID, sessionID string) error {
	return r.update(ctx, id, func(j *models.Job) {
		now := r.now().UTC()
		j.Status = models.JobStatusCompleted
		j.SessionID = sessionID
		j.ErrorCode = ""
		j.ErrorMessage = nil
		j.CompletedAt = &now
	})
}

func (r *JobRepo) update(ctx context.Context, id uuid.UUID, fn func(*models.Job)) error {
	j, err := r.GetByID(ctx, id)
	if err != nil {
		return err
	}
	fn(j)
	return r.save(ctx, j)
}

func (r *JobRepo) save(ctx context.Context, j *models.Job) error {
	data, err := json.Marshal(j)
	if err != nil {
		return err
	}
	return r.redis.Set(ctx, jobKey(j.ID), data, jobTTL).Err()
}
