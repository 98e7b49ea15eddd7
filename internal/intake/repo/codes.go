package repo

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	errx "github.com/pricewatch/intake-core/internal/core/error"
	"github.com/pricewatch/intake-core/internal/intake/model"
	logx "github.com/pricewatch/intake-core/pkg/logger"
)

// deleteIfMatched removes a code record only while it still carries the
// expected id; concurrent verifications of the same code race on this script
// and exactly one of them observes a deletion.
var deleteIfMatched = redis.NewScript(`
if redis.call("HGET", KEYS[1], "id") == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// RedisCodeStore keeps each one-time code in a hash keyed by phone and code,
// expiring with the code itself.
type RedisCodeStore struct {
	rdb redis.Cmdable
}

func NewRedisCodeStore(rdb redis.Cmdable) *RedisCodeStore {
	return &RedisCodeStore{rdb: rdb}
}

func (r *RedisCodeStore) codeKey(phone, code string) string {
	return fmt.Sprintf("otp:%s:%s", phone, code)
}

func (r *RedisCodeStore) IssueCode(ctx context.Context, code model.OneTimeCode) error {
	key := r.codeKey(code.Phone, code.Code)
	_, err := r.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSet(ctx, key,
			"id", code.ID,
			"phone", code.Phone,
			"code", code.Code,
			"issued_at", code.IssuedAt.UTC().Format(time.RFC3339Nano),
			"expires_at", code.ExpiresAt.UTC().Format(time.RFC3339Nano),
		)
		pipe.PExpireAt(ctx, key, code.ExpiresAt)
		return nil
	})
	if err != nil {
		logx.Error().Err(err).Str("phone", logx.MaskPhone(code.Phone)).Msg("failed to store one-time code")
		return errx.WrapRedis(err)
	}
	return nil
}

func (r *RedisCodeStore) FindCode(ctx context.Context, phone, code string) (*model.OneTimeCode, error) {
	vals, err := r.rdb.HGetAll(ctx, r.codeKey(phone, code)).Result()
	if err != nil {
		return nil, errx.WrapRedis(err)
	}
	if len(vals) == 0 || vals["id"] == "" {
		return nil, nil
	}

	issuedAt, err := time.Parse(time.RFC3339Nano, vals["issued_at"])
	if err != nil {
		return nil, fmt.Errorf("parse issued_at: %w", err)
	}
	expiresAt, err := time.Parse(time.RFC3339Nano, vals["expires_at"])
	if err != nil {
		return nil, fmt.Errorf("parse expires_at: %w", err)
	}
	return &model.OneTimeCode{
		ID:        vals["id"],
		Phone:     vals["phone"],
		Code:      vals["code"],
		IssuedAt:  issuedAt,
		ExpiresAt: expiresAt,
	}, nil
}

func (r *RedisCodeStore) DeleteCode(ctx context.Context, code model.OneTimeCode) (bool, error) {
	n, err := deleteIfMatched.Run(ctx, r.rdb, []string{r.codeKey(code.Phone, code.Code)}, code.ID).Int64()
	if err != nil {
		return false, errx.WrapRedis(err)
	}
	return n == 1, nil
}

var _ model.CodeStore = (*RedisCodeStore)(nil)
