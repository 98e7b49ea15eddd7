package repo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	errx "github.com/pricewatch/intake-core/internal/core/error"
	"github.com/pricewatch/intake-core/internal/intake/model"
)

// claimMarker returns the marker value with its remaining lifetime and
// deletes it in one step.
var claimMarker = redis.NewScript(`
local token = redis.call("GET", KEYS[1])
if not token then
	return false
end
local ttl = redis.call("PTTL", KEYS[1])
redis.call("DEL", KEYS[1])
return {token, ttl}
`)

type RedisVerifiedPhoneStore struct {
	rdb redis.Cmdable
}

func NewRedisVerifiedPhoneStore(rdb redis.Cmdable) *RedisVerifiedPhoneStore {
	return &RedisVerifiedPhoneStore{rdb: rdb}
}

func (r *RedisVerifiedPhoneStore) verifiedKey(phone string) string {
	return fmt.Sprintf("otp:verified:%s", phone)
}

func (r *RedisVerifiedPhoneStore) MarkVerified(ctx context.Context, phone string, ttl time.Duration) error {
	if err := r.rdb.Set(ctx, r.verifiedKey(phone), uuid.NewString(), ttl).Err(); err != nil {
		return errx.WrapRedis(err)
	}
	return nil
}

func (r *RedisVerifiedPhoneStore) ClaimVerified(ctx context.Context, phone string) (model.VerifiedMarker, bool, error) {
	res, err := claimMarker.Run(ctx, r.rdb, []string{r.verifiedKey(phone)}).Slice()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return model.VerifiedMarker{}, false, nil
		}
		return model.VerifiedMarker{}, false, errx.WrapRedis(err)
	}
	if len(res) != 2 {
		return model.VerifiedMarker{}, false, errx.Storage(fmt.Errorf("unexpected claim reply %v", res))
	}
	token, _ := res[0].(string)
	ttl, _ := res[1].(int64)
	return model.VerifiedMarker{Token: token, TTL: time.Duration(ttl) * time.Millisecond}, true, nil
}

func (r *RedisVerifiedPhoneStore) RestoreVerified(ctx context.Context, phone string, marker model.VerifiedMarker) error {
	if marker.TTL <= 0 {
		return nil
	}
	if err := r.rdb.SetNX(ctx, r.verifiedKey(phone), marker.Token, marker.TTL).Err(); err != nil {
		return errx.WrapRedis(err)
	}
	return nil
}

var _ model.VerifiedPhoneStore = (*RedisVerifiedPhoneStore)(nil)
