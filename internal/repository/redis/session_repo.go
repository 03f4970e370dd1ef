package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

var (
	ErrTokenNotFound    = errors.New("token not found")
	ErrRedisUnavailable = errors.New("redis unavailable")
)

const UserTokenPrefix = "login:user:token"

// SessionRepository 每个用户只保留一个有效 token，新登录会顶掉旧的
type SessionRepository struct {
	RDB *redis.Client
	TTL time.Duration
}

func tokenKey(userID uint64) string {
	return fmt.Sprintf("%s:%d", UserTokenPrefix, userID)
}

func (r *SessionRepository) AddToken(ctx context.Context, userID uint64, token string) error {
	if err := r.RDB.Set(ctx, tokenKey(userID), token, r.TTL).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return nil
}

func (r *SessionRepository) GetToken(ctx context.Context, userID uint64) (string, error) {
	token, err := r.RDB.Get(ctx, tokenKey(userID)).Result()
	if errors.Is(err, redis.Nil) {
		return "", ErrTokenNotFound
	}
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return token, nil
}

// ExtendToken 滑动过期
func (r *SessionRepository) ExtendToken(ctx context.Context, userID uint64) error {
	if err := r.RDB.Expire(ctx, tokenKey(userID), r.TTL).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return nil
}

func (r *SessionRepository) DeleteToken(ctx context.Context, userID uint64) error {
	if err := r.RDB.Del(ctx, tokenKey(userID)).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return nil
}
