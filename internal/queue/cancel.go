package queue

import (
	"context"
	"sync"
	"time"

	redis "github.com/redis/go-redis/v9"
)

// CancelRegistry is the auxiliary signal a queueId/requestId has been
// cancelled from outside this process. The in-process Queue never needs it
// for correctness (cancel() also flips in-memory state directly); it exists
// so a future out-of-process ingress can request cancellation too.
type CancelRegistry interface {
	MarkCancelled(ctx context.Context, requestID string) error
	IsCancelled(ctx context.Context, requestID string) (bool, error)
}

// memoryCancelRegistry is the default backend when no Redis address is
// configured: a mutex-guarded set with no cross-process visibility.
type memoryCancelRegistry struct {
	mu        sync.Mutex
	cancelled map[string]struct{}
}

func newMemoryCancelRegistry() *memoryCancelRegistry {
	return &memoryCancelRegistry{cancelled: make(map[string]struct{})}
}

func (r *memoryCancelRegistry) MarkCancelled(_ context.Context, requestID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.cancelled[requestID] = struct{}{}
	return nil
}

func (r *memoryCancelRegistry) IsCancelled(_ context.Context, requestID string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.cancelled[requestID]
	return ok, nil
}

// redisCancelRegistry stores cancellation markers as Redis keys with a TTL
// long enough to outlive any dispatch, so a chat adapter running in a
// separate process can cancel a request it never held a Go channel for.
type redisCancelRegistry struct {
	client *redis.Client
}

const cancelKeyTTL = 24 * time.Hour

func newRedisCancelRegistry(addr string) (*redisCancelRegistry, error) {
	client := redis.NewClient(&redis.Options{Addr: addr})
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, err
	}
	return &redisCancelRegistry{client: client}, nil
}

func (r *redisCancelRegistry) MarkCancelled(ctx context.Context, requestID string) error {
	return r.client.Set(ctx, cancelKey(requestID), "1", cancelKeyTTL).Err()
}

func (r *redisCancelRegistry) IsCancelled(ctx context.Context, requestID string) (bool, error) {
	n, err := r.client.Exists(ctx, cancelKey(requestID)).Result()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func (r *redisCancelRegistry) Close() error {
	return r.client.Close()
}

func cancelKey(requestID string) string {
	return "qdc:cancel:" + requestID
}

// NewCancelRegistry builds a Redis-backed registry when addr is non-empty,
// falling back to an in-memory one otherwise. Redis is strictly additive:
// a failed Redis connection here is surfaced to the caller so the Supervisor
// can decide whether to fall back or fail startup.
func NewCancelRegistry(addr string) (CancelRegistry, error) {
	if addr == "" {
		return newMemoryCancelRegistry(), nil
	}
	return newRedisCancelRegistry(addr)
}
