package service

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stemsi/quizrunner/internal/config"
	"github.com/stemsi/quizrunner/internal/model"
	"github.com/stemsi/quizrunner/internal/quiz"
)

// RedisBus publishes session events on the per-assessment monitor channel
// and lets staff monitors subscribe to them, across all gateway replicas.
type RedisBus struct {
	rdb *redis.Client
}

// NewRedisBus creates a new RedisBus.
func NewRedisBus(rdb *redis.Client) *RedisBus {
	return &RedisBus{rdb: rdb}
}

// Publish sends the event as JSON to the assessment's monitor channel.
func (b *RedisBus) Publish(ctx context.Context, e quiz.Event) error {
	payload, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("encode event: %w", err)
	}
	channel := config.CacheKey.AssessmentMonitorChannel(e.AssessmentID.String())
	return b.rdb.Publish(ctx, channel, payload).Err()
}

// Subscribe relays raw event payloads of one assessment until ctx ends or
// the returned stop function is called. The channel is closed afterwards.
func (b *RedisBus) Subscribe(ctx context.Context, assessmentID string) (<-chan string, func()) {
	pubsub := b.rdb.Subscribe(ctx, config.CacheKey.AssessmentMonitorChannel(assessmentID))
	out := make(chan string, 16)

	go func() {
		defer close(out)
		ch := pubsub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-ch:
				if !ok {
					return
				}
				select {
				case out <- msg.Payload:
				case <-ctx.Done():
					return
				}
			}
		}
	}()

	return out, func() { _ = pubsub.Close() }
}

// releaseLockScript deletes the lock only if it still holds our token, so
// an expired lock re-acquired by another replica is left alone.
var releaseLockScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// RedisSubmitLock is a SET NX lock with a TTL.
type RedisSubmitLock struct {
	rdb *redis.Client
}

// NewRedisSubmitLock creates a new RedisSubmitLock.
func NewRedisSubmitLock(rdb *redis.Client) *RedisSubmitLock {
	return &RedisSubmitLock{rdb: rdb}
}

// Acquire tries to take the lock. It returns the owner token on success.
func (l *RedisSubmitLock) Acquire(ctx context.Context, key string, ttl time.Duration) (string, bool, error) {
	token := uuid.New().String()
	ok, err := l.rdb.SetNX(ctx, key, token, ttl).Result()
	if err != nil {
		return "", false, fmt.Errorf("acquire %s: %w", key, err)
	}
	return token, ok, nil
}

// Release drops the lock if token still owns it.
func (l *RedisSubmitLock) Release(ctx context.Context, key, token string) error {
	return releaseLockScript.Run(ctx, l.rdb, []string{key}, token).Err()
}

// RedisLedgerQueue pushes ledger rows onto the persistence queue drained by
// the LedgerWorker.
type RedisLedgerQueue struct {
	rdb *redis.Client
}

// NewRedisLedgerQueue creates a new RedisLedgerQueue.
func NewRedisLedgerQueue(rdb *redis.Client) *RedisLedgerQueue {
	return &RedisLedgerQueue{rdb: rdb}
}

// Push enqueues one ledger row.
func (q *RedisLedgerQueue) Push(ctx context.Context, e model.LedgerEntry) error {
	payload, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("encode ledger entry: %w", err)
	}
	return q.rdb.RPush(ctx, config.WorkerKey.PersistAttemptsQueue, payload).Err()
}
