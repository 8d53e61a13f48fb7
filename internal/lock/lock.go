package lock

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// Locker hands out named leases. Acquire reports false when another holder
// already owns the name.
type Locker interface {
	Acquire(ctx context.Context, name string) (Lease, bool, error)
}

// Lease is a held lock
type Lease interface {
	Release(ctx context.Context) error
}

// Local is a process-local reentrancy guard
type Local struct {
	mu   sync.Mutex
	held map[string]bool
}

// NewLocal creates a process-local locker
func NewLocal() *Local {
	return &Local{held: make(map[string]bool)}
}

func (l *Local) Acquire(_ context.Context, name string) (Lease, bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.held[name] {
		return nil, false, nil
	}
	l.held[name] = true
	return &localLease{owner: l, name: name}, true, nil
}

// Held reports whether name is currently locked in this process
func (l *Local) Held(name string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.held[name]
}

type localLease struct {
	owner *Local
	name  string
	once  sync.Once
}

func (l *localLease) Release(context.Context) error {
	l.once.Do(func() {
		l.owner.mu.Lock()
		delete(l.owner.held, l.name)
		l.owner.mu.Unlock()
	})
	return nil
}

// releaseScript deletes the key only while it still carries our token, so an
// expired lease never removes a successor's lock.
const releaseScript = `if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0`

// Redis is a lease shared by every instance connected to the same Redis
type Redis struct {
	client redis.Cmdable
	prefix string
	ttl    time.Duration
}

// NewRedis creates a Redis-backed locker. Leases expire after ttl even if the
// holder dies without releasing.
func NewRedis(client redis.Cmdable, prefix string, ttl time.Duration) *Redis {
	if ttl <= 0 {
		ttl = 30 * time.Minute
	}
	return &Redis{client: client, prefix: prefix, ttl: ttl}
}

// Key returns the Redis key used for name
func (r *Redis) Key(name string) string {
	return r.prefix + name
}

func (r *Redis) Acquire(ctx context.Context, name string) (Lease, bool, error) {
	key := r.Key(name)
	token := uuid.NewString()

	ok, err := r.client.SetNX(ctx, key, token, r.ttl).Result()
	if err != nil {
		return nil, false, fmt.Errorf("failed to acquire lease %s: %w", key, err)
	}
	if !ok {
		return nil, false, nil
	}
	return &redisLease{client: r.client, key: key, token: token}, true, nil
}

type redisLease struct {
	client redis.Cmdable
	key    string
	token  string
}

func (l *redisLease) Release(ctx context.Context) error {
	if err := l.client.Eval(ctx, releaseScript, []string{l.key}, l.token).Err(); err != nil {
		return fmt.Errorf("failed to release lease %s: %w", l.key, err)
	}
	return nil
}

// Chain acquires every locker in order and fails fast. Leases already taken
// are released when a later locker refuses or errors.
type Chain []Locker

func (c Chain) Acquire(ctx context.Context, name string) (Lease, bool, error) {
	held := make(multiLease, 0, len(c))
	for _, l := range c {
		lease, ok, err := l.Acquire(ctx, name)
		if err != nil || !ok {
			_ = held.Release(ctx)
			return nil, false, err
		}
		held = append(held, lease)
	}
	return held, true, nil
}

type multiLease []Lease

// Release frees leases in reverse acquisition order
func (m multiLease) Release(ctx context.Context) error {
	var first error
	for i := len(m) - 1; i >= 0; i-- {
		if err := m[i].Release(ctx); err != nil && first == nil {
			first = err
		}
	}
	return first
}
