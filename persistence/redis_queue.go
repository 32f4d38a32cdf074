package persistence

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/wfunc/callout/models"
)

// DefaultQueueName is the Redis list resolved challenges are pushed to.
const DefaultQueueName = "callout_challenges"

// RedisQueue pushes each resolved challenge as JSON onto a Redis list for an
// out-of-process historian to drain.
type RedisQueue struct {
	client    *redis.Client
	queueName string
}

// NewRedisQueue connects to addr and checks the connection with a ping.
func NewRedisQueue(addr string, db int, queueName string) (*RedisQueue, error) {
	client := redis.NewClient(&redis.Options{
		Addr: addr,
		DB:   db,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to Redis at %s: %w", addr, err)
	}
	return NewRedisQueueWithClient(client, queueName), nil
}

func NewRedisQueueWithClient(client *redis.Client, queueName string) *RedisQueue {
	if queueName == "" {
		queueName = DefaultQueueName
	}
	return &RedisQueue{client: client, queueName: queueName}
}

func (q *RedisQueue) RecordChallenge(ctx context.Context, rec models.ChallengeRecord) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("failed to marshal ChallengeRecord: %w", err)
	}
	if err := q.client.RPush(ctx, q.queueName, data).Err(); err != nil {
		return fmt.Errorf("failed to RPush to Redis list '%s': %w", q.queueName, err)
	}
	return nil
}

func (q *RedisQueue) Close() error {
	return q.client.Close()
}
