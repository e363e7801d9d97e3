// Package queue carries geocode-fill jobs from the API to the worker.
// A job is published after a swafoto row is inserted; the worker resolves
// the detected administrative areas and writes them back.
package queue

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"
)

// GeocodeJob asks the worker to fill detected areas for a verification.
type GeocodeJob struct {
	VerificationID string  `json:"verification_id"`
	NPM            string  `json:"npm"`
	Lat            float64 `json:"lat"`
	Lng            float64 `json:"lng"`
}

// Queue is the abstraction over different backends.
type Queue interface {
	Publish(ctx context.Context, job GeocodeJob) error
	Consume(ctx context.Context) (<-chan GeocodeJob, error)
}

// InMemory is a minimal channel-backed queue for dev/testing.
type InMemory struct {
	ch chan GeocodeJob
}

// NewInMemory creates a bounded in-memory queue.
func NewInMemory(size int) *InMemory {
	return &InMemory{ch: make(chan GeocodeJob, size)}
}

// Publish enqueues a job.
func (q *InMemory) Publish(ctx context.Context, job GeocodeJob) error {
	select {
	case q.ch <- job:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Consume returns a channel for workers.
func (q *InMemory) Consume(ctx context.Context) (<-chan GeocodeJob, error) {
	out := make(chan GeocodeJob)
	go func() {
		defer close(out)
		for {
			select {
			case job := <-q.ch:
				select {
				case out <- job:
				case <-ctx.Done():
					return
				}
			case <-ctx.Done():
				return
			}
		}
	}()
	return out, nil
}

// RedisQueue implements a Redis list-backed queue.
type RedisQueue struct {
	client *redis.Client
	key    string
}

// NewRedisQueue builds a queue using LPUSH/BRPOP semantics.
func NewRedisQueue(client *redis.Client, key string) *RedisQueue {
	if key == "" {
		key = "kospresensi:geocode"
	}
	return &RedisQueue{client: client, key: key}
}

// Publish enqueues a job as JSON.
func (q *RedisQueue) Publish(ctx context.Context, job GeocodeJob) error {
	payload, err := json.Marshal(job)
	if err != nil {
		return err
	}
	return q.client.LPush(ctx, q.key, payload).Err()
}

// Consume streams jobs using BRPOP.
func (q *RedisQueue) Consume(ctx context.Context) (<-chan GeocodeJob, error) {
	out := make(chan GeocodeJob)
	go func() {
		defer close(out)
		for {
			res, err := q.client.BRPop(ctx, 5*time.Second, q.key).Result()
			if err != nil {
				if err == redis.Nil {
					continue
				}
				if ctx.Err() != nil {
					return
				}
				continue
			}
			if len(res) == 2 {
				var job GeocodeJob
				if err := json.Unmarshal([]byte(res[1]), &job); err == nil {
					out <- job
				}
			}
		}
	}()
	return out, nil
}
