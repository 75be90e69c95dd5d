// Package worker runs quiz generation off the request path. Jobs are pushed
// onto a Redis list and picked up by a fixed set of goroutines.
package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"lalaquiz-backend/internal/models"
	"lalaquiz-backend/internal/services"
)

const (
	QueueName = "queue:quiz-generation"
	JobType   = "quiz-generation"

	popTimeout = 5 * time.Second
	lockTTL    = 10 * time.Minute
	jobTimeout = 5 * time.Minute
)

// SessionGenerator produces and saves a session for a request.
type SessionGenerator interface {
	Generate(ctx context.Context, userID uuid.UUID, req models.GenerateQuizRequest) (*models.Session, error)
}

// JobStore keeps the job records clients poll.
type JobStore interface {
	Create(ctx context.Context, j *models.Job) error
	UpdateStatus(ctx context.Context, id uuid.UUID, status string) error
	UpdateError(ctx context.Context, id uuid.UUID, code, errMsg string, retryCount int) error
	Complete(ctx context.Context, id uuid.UUID, sessionID string) error
}

type Pool struct {
	redis       *redis.Client
	sessions    SessionGenerator
	jobs        JobStore
	publisher   services.Publisher
	workerCount int

	requeue  func(job *models.Job, after time.Duration)
	stopChan chan struct{}
	wg       sync.WaitGroup
}

func NewPool(
	redisClient *redis.Client,
	sessions SessionGenerator,
	jobs JobStore,
	publisher services.Publisher,
	workerCount int,
) *Pool {
	p := &Pool{
		redis:       redisClient,
		sessions:    sessions,
		jobs:        jobs,
		publisher:   publisher,
		workerCount: workerCount,
		stopChan:    make(chan struct{}),
	}
	p.requeue = p.pushAfter
	return p
}

// Enqueue records a pending job for req and queues it.
func (p *Pool) Enqueue(ctx context.Context, userID uuid.UUID, req models.GenerateQuizRequest) (*models.Job, error) {
	job := &models.Job{UserID: userID, Type: JobType, Request: req}
	if err := p.jobs.Create(ctx, job); err != nil {
		return nil, fmt.Errorf("failed to create job: %w", err)
	}

	jobBytes, err := json.Marshal(job)
	if err != nil {
		return nil, err
	}
	if err := p.redis.LPush(ctx, QueueName, jobBytes).Err(); err != nil {
		return nil, fmt.Errorf("failed to queue job: %w", err)
	}
	return job, nil
}

func (p *Pool) Start() {
	for i := 0; i < p.workerCount; i++ {
		p.wg.Add(1)
		go p.worker(i)
	}
	log.Printf("Started %d worker goroutines", p.workerCount)
}

// Stop signals the workers and waits for in-flight jobs to finish.
func (p *Pool) Stop() {
	close(p.stopChan)
	p.wg.Wait()
}

func (p *Pool) worker(id int) {
	defer p.wg.Done()

	for {
		select {
		case <-p.stopChan:
			log.Printf("Worker %d shutting down", id)
			return
		default:
		}

		ctx := context.Background()

		result, err := p.redis.BLPop(ctx, popTimeout, QueueName).Result()
		if err != nil {
			if !errors.Is(err, redis.Nil) {
				log.Printf("Worker %d: queue read failed: %v", id, err)
				time.Sleep(time.Second)
			}
			continue
		}
		if len(result) < 2 {
			continue
		}

		var job models.Job
		if err := json.Unmarshal([]byte(result[1]), &job); err != nil {
			log.Printf("Worker %d: failed to parse job: %v", id, err)
			continue
		}

		lockKey := "job_lock:" + job.ID.String()
		locked, err := p.redis.SetNX(ctx, lockKey, "1", lockTTL).Result()
		if err != nil || !locked {
			continue
		}

		log.Printf("Worker %d: processing job %s", id, job.ID)
		p.process(ctx, &job)

		p.redis.Del(ctx, lockKey)
	}
}

// process runs one job to completion, retry or permanent failure.
func (p *Pool) process(ctx context.Context, job *models.Job) {
	p.jobs.UpdateStatus(ctx, job.ID, models.JobStatusProcessing)
	p.publish(ctx, job.UserID, models.WSMessage{
		Type: "status_update",
		Payload: models.StatusUpdate{
			JobID:                     job.ID,
			Step:                      1,
			StepName:                  "Generating quiz",
			EstimatedSecondsRemaining: 20,
		},
	})

	jobCtx, cancel := context.WithTimeout(ctx, jobTimeout)
	defer cancel()

	session, err := p.sessions.Generate(jobCtx, job.UserID, job.Request)
	if err != nil {
		p.handleFailure(ctx, job, err)
		return
	}
	p.handleSuccess(ctx, job, session)
}

func (p *Pool) handleSuccess(ctx context.Context, job *models.Job, session *models.Session) {
	p.jobs.Complete(ctx, job.ID, session.ID)

	p.publish(ctx, job.UserID, models.WSMessage{
		Type: "completed",
		Payload: models.CompletedEvent{
			JobID:      job.ID,
			ResultID:   session.ID,
			ResultType: "session",
		},
	})

	log.Printf("Job %s completed: session %s", job.ID, session.ID)
}

func (p *Pool) handleFailure(ctx context.Context, job *models.Job, err error) {
	job.RetryCount++
	errMsg := err.Error()
	code := services.ErrorCode(err)

	if services.Retryable(err) && job.RetryCount < job.MaxRetries {
		log.Printf("Job %s failed (attempt %d): %s, retrying", job.ID, job.RetryCount, errMsg)
		p.jobs.UpdateStatus(ctx, job.ID, models.JobStatusPending)
		p.jobs.UpdateError(ctx, job.ID, code, errMsg, job.RetryCount)

		backoff := time.Duration(1<<uint(job.RetryCount)) * time.Second
		p.requeue(job, backoff)
		return
	}

	log.Printf("Job %s failed permanently: %s", job.ID, errMsg)
	p.jobs.UpdateStatus(ctx, job.ID, models.JobStatusFailed)
	p.jobs.UpdateError(ctx, job.ID, code, errMsg, job.RetryCount)

	p.publish(ctx, job.UserID, models.WSMessage{
		Type: "error",
		Payload: models.ErrorEvent{
			JobID:        job.ID,
			ErrorCode:    code,
			ErrorMessage: errMsg,
		},
	})
}

func (p *Pool) pushAfter(job *models.Job, after time.Duration) {
	jobBytes, err := json.Marshal(job)
	if err != nil {
		log.Printf("Job %s could not be requeued: %v", job.ID, err)
		return
	}
	time.AfterFunc(after, func() {
		p.redis.LPush(context.Background(), QueueName, jobBytes)
	})
}

func (p *Pool) publish(ctx context.Context, userID uuid.UUID, msg models.WSMessage) {
	if p.publisher == nil {
		return
	}
	if err := p.publisher.Publish(ctx, userID, msg); err != nil && msg.Type != "status_update" {
		log.Printf("Job update %q not delivered to user %s: %v", msg.Type, userID, err)
	}
}
