package repository

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/CedricFinance/pollwatch/domain/entities"
	"github.com/CedricFinance/pollwatch/domain/services"
	"github.com/redis/go-redis/v9"
)

const DefaultRedisKey = "pollwatch:state"

type redisRepository struct {
	client redis.UniversalClient
	key    string
}

// NewRedis stores the state document as a single string key.
func NewRedis(client redis.UniversalClient, key string) services.Repository {
	if key == "" {
		key = DefaultRedisKey
	}
	return &redisRepository{client: client, key: key}
}

func (r *redisRepository) Load(ctx context.Context) (entities.State, error) {
	content, err := r.client.Get(ctx, r.key).Bytes()
	if errors.Is(err, redis.Nil) {
		return entities.NewState(), nil
	}
	if err != nil {
		return entities.State{}, err
	}

	return decodeState(content)
}

func (r *redisRepository) Save(ctx context.Context, state entities.State) error {
	content, err := json.Marshal(state)
	if err != nil {
		return err
	}

	return r.client.Set(ctx, r.key, content, 0).Err()
}
