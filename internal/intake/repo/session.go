package repo

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	errx "github.com/pricewatch/intake-core/internal/core/error"
	"github.com/pricewatch/intake-core/internal/intake/model"
	logx "github.com/pricewatch/intake-core/pkg/logger"
)

// Everything a session owns lives under intake:{id}: and shares one lifetime.
func stateKey(id string) string {
	return fmt.Sprintf("intake:%s:state", id)
}

func messagesKey(id string) string {
	return fmt.Sprintf("intake:%s:messages", id)
}

// RedisSessionStore keeps one JSON document per conversation. Saves and loads
// both refresh the lifetime of the state and its chat history, so only
// abandoned sessions expire.
type RedisSessionStore struct {
	rdb redis.Cmdable
	ttl time.Duration
}

func NewRedisSessionStore(rdb redis.Cmdable, ttl time.Duration) *RedisSessionStore {
	return &RedisSessionStore{rdb: rdb, ttl: ttl}
}

func (r *RedisSessionStore) Save(ctx context.Context, state model.ConversationState) error {
	b, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("marshal session state: %w", err)
	}
	key := stateKey(state.ID)
	_, err = r.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, key, b, r.ttl)
		if r.ttl > 0 {
			pipe.Expire(ctx, messagesKey(state.ID), r.ttl)
		}
		return nil
	})
	if err != nil {
		logx.Error().Err(err).Str("key", key).Msg("failed to save session state")
		return errx.WrapRedis(err)
	}
	return nil
}

func (r *RedisSessionStore) Load(ctx context.Context, id string) (model.ConversationState, error) {
	key := stateKey(id)
	var cmd *redis.StringCmd
	if r.ttl > 0 {
		cmd = r.rdb.GetEx(ctx, key, r.ttl)
	} else {
		cmd = r.rdb.Get(ctx, key)
	}
	raw, err := cmd.Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return model.ConversationState{}, errx.NotFound("session not found")
		}
		logx.Error().Err(err).Str("key", key).Msg("failed to load session state")
		return model.ConversationState{}, errx.WrapRedis(err)
	}
	var state model.ConversationState
	if err := json.Unmarshal(raw, &state); err != nil {
		return model.ConversationState{}, fmt.Errorf("unmarshal session state: %w", err)
	}
	return state, nil
}

var _ model.SessionStore = (*RedisSessionStore)(nil)
