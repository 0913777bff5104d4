package cache

import (
	"context"
	"encoding/json"
	"time"

	redis "github.com/redis/go-redis/v9"

	"otsopos/backend/internal/domain"
)

const grantKeyPrefix = "otsopos:grant:"

type RedisGrantStore struct {
	client *redis.Client
}

func NewRedisGrantStore(addr string, password string, db int) *RedisGrantStore {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	return &RedisGrantStore{client: client}
}

func (c *RedisGrantStore) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

func (c *RedisGrantStore) Close() error {
	return c.client.Close()
}

func (c *RedisGrantStore) Put(ctx context.Context, grant domain.Grant, ttl time.Duration) error {
	payload, err := json.Marshal(grant)
	if err != nil {
		return err
	}
	return c.client.Set(ctx, grantKeyPrefix+grant.Token, payload, ttl).Err()
}

// Take reads and deletes the grant in one GETDEL round trip.
func (c *RedisGrantStore) Take(ctx context.Context, token string) (*domain.Grant, bool, error) {
	val, err := c.client.GetDel(ctx, grantKeyPrefix+token).Result()
	if err == redis.Nil {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}

	var grant domain.Grant
	if err := json.Unmarshal([]byte(val), &grant); err != nil {
		return nil, false, err
	}
	return &grant, true, nil
}
