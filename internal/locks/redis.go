package locks

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0`)

type RedisOptions struct {
	Addr     string
	Password string
	DB       int
}

// DialRedis builds a client and verifies the server answers.
func DialRedis(ctx context.Context, opts RedisOptions) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         opts.Addr,
		Password:     opts.Password,
		DB:           opts.DB,
		DialTimeout:  3 * time.Second,
		ReadTimeout:  2 * time.Second,
		WriteTimeout: 2 * time.Second,
	})
	pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("redis ping %s: %w", opts.Addr, err)
	}
	return client, nil
}

// Redis is a lease-based lock shared by every process pointing at the same server.
// A holder that dies releases its keys when TTL expires.
type Redis struct {
	Client redis.UniversalClient
	Prefix string
	TTL    time.Duration
	Retry  time.Duration
	Log    *zap.Logger
}

func (r *Redis) Lock(ctx context.Context, key string) (func(), error) {
	ttl := r.TTL
	if ttl <= 0 {
		ttl = 10 * time.Second
	}
	retry := r.Retry
	if retry <= 0 {
		retry = 25 * time.Millisecond
	}
	k := r.Prefix + key
	token := uuid.NewString()
	for {
		ok, err := r.Client.SetNX(ctx, k, token, ttl).Result()
		if err != nil {
			return nil, fmt.Errorf("acquire lock %s: %w", k, err)
		}
		if ok {
			break
		}
		t := time.NewTimer(retry)
		select {
		case <-ctx.Done():
			t.Stop()
			return nil, ctx.Err()
		case <-t.C:
		}
	}
	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if err := releaseScript.Run(ctx, r.Client, []string{k}, token).Err(); err != nil && r.Log != nil {
			r.Log.Warn("release lock", zap.String("key", k), zap.Error(err))
		}
	}, nil
}
