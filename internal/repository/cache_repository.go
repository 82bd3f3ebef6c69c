package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/SergeiKhy/linkhub/internal/models"
	"github.com/redis/go-redis/v9"
)

type CacheRepository interface {
	GetResolution(ctx context.Context, alias string) (*models.Resolution, error)
	SetResolution(ctx context.Context, alias string, res *models.Resolution, ttl time.Duration) error
	DeleteResolution(ctx context.Context, alias string) error
	// FirstVisit занимает отпечаток на время окна уникальности. Возвращает
	// true ровно один раз на пару (алиас, отпечаток) за окно: результат
	// SET NX и есть признак первого визита, а истечение ключа открывает
	// окно заново.
	FirstVisit(ctx context.Context, aliasID int64, fingerprint string, window time.Duration) (bool, error)
}

type cacheRepository struct {
	redis *RedisDB
}

func NewCacheRepository(redis *RedisDB) CacheRepository {
	return &cacheRepository{redis: redis}
}

func (r *cacheRepository) GetResolution(ctx context.Context, alias string) (*models.Resolution, error) {
	data, err := r.redis.Client.Get(ctx, r.resolveKey(alias)).Bytes()
	if err != nil {
		if err == redis.Nil {
			return nil, ErrCacheMiss
		}
		return nil, err
	}

	var res models.Resolution
	if err := json.Unmarshal(data, &res); err != nil {
		return nil, fmt.Errorf("failed to unmarshal resolution: %w", err)
	}
	return &res, nil
}

func (r *cacheRepository) SetResolution(ctx context.Context, alias string, res *models.Resolution, ttl time.Duration) error {
	data, err := json.Marshal(res)
	if err != nil {
		return fmt.Errorf("failed to marshal resolution: %w", err)
	}
	return r.redis.Client.Set(ctx, r.resolveKey(alias), data, ttl).Err()
}

func (r *cacheRepository) DeleteResolution(ctx context.Context, alias string) error {
	return r.redis.Client.Del(ctx, r.resolveKey(alias)).Err()
}

func (r *cacheRepository) FirstVisit(ctx context.Context, aliasID int64, fingerprint string, window time.Duration) (bool, error) {
	return r.redis.Client.SetNX(ctx, r.fingerprintKey(aliasID, fingerprint), 1, window).Result()
}

func (r *cacheRepository) resolveKey(alias string) string {
	return "resolve:" + alias
}

func (r *cacheRepository) fingerprintKey(aliasID int64, fingerprint string) string {
	return fmt.Sprintf("fp:%d:%s", aliasID, fingerprint)
}
