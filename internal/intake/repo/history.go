package repo

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/cloudwego/eino/schema"
	"github.com/redis/go-redis/v9"

	errx "github.com/pricewatch/intake-core/internal/core/error"
	"github.com/pricewatch/intake-core/internal/intake/model"
	logx "github.com/pricewatch/intake-core/pkg/logger"
)

// historyCap bounds the stored exchange; prompts only ever read the tail.
const historyCap = 50

// RedisChatHistory keeps the assistant exchange of a session next to its
// state, under the same id and lifetime.
type RedisChatHistory struct {
	rdb redis.Cmdable
	ttl time.Duration
}

func NewRedisChatHistory(rdb redis.Cmdable, ttl time.Duration) *RedisChatHistory {
	return &RedisChatHistory{rdb: rdb, ttl: ttl}
}

func (r *RedisChatHistory) Append(ctx context.Context, sessionID string, messages ...*schema.Message) error {
	if len(messages) == 0 {
		return nil
	}
	values := make([]any, 0, len(messages))
	for _, m := range messages {
		b, err := json.Marshal(m)
		if err != nil {
			return fmt.Errorf("marshal message: %w", err)
		}
		values = append(values, b)
	}

	key := messagesKey(sessionID)
	_, err := r.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.RPush(ctx, key, values...)
		pipe.LTrim(ctx, key, -historyCap, -1)
		if r.ttl > 0 {
			pipe.Expire(ctx, key, r.ttl)
		}
		return nil
	})
	if err != nil {
		logx.Error().Err(err).Str("key", key).Msg("failed to append chat history")
		return errx.WrapRedis(err)
	}
	return nil
}

// Recent returns up to limit of the newest messages, oldest first, and
// extends the history's lifetime. A limit of zero returns everything kept.
func (r *RedisChatHistory) Recent(ctx context.Context, sessionID string, limit int) ([]*schema.Message, error) {
	key := messagesKey(sessionID)
	start := int64(0)
	if limit > 0 {
		start = -int64(limit)
	}

	var rows *redis.StringSliceCmd
	_, err := r.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		rows = pipe.LRange(ctx, key, start, -1)
		if r.ttl > 0 {
			pipe.Expire(ctx, key, r.ttl)
		}
		return nil
	})
	if err != nil {
		logx.Error().Err(err).Str("key", key).Msg("failed to load chat history")
		return nil, errx.WrapRedis(err)
	}

	msgs := make([]*schema.Message, 0, len(rows.Val()))
	for i, raw := range rows.Val() {
		var m schema.Message
		if err := json.Unmarshal([]byte(raw), &m); err != nil {
			logx.Warn().Err(err).Str("session_id", sessionID).Int("index", i).Msg("skipping unreadable chat message")
			continue
		}
		msgs = append(msgs, &m)
	}
	return msgs, nil
}

var _ model.ChatHistoryStore = (*RedisChatHistory)(nil)
