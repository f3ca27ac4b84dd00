package unread

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/hitoshi/changelog/internal/model"
)

// noneMarker は「公開済み投稿なし」をキャッシュするための値。
const noneMarker = "none"

// DefaultCacheTTL はキャッシュの有効期限の既定値。無効化漏れの上限になる。
const DefaultCacheTTL = time.Minute

// キャッシュ参照結果のラベル。
const (
	CacheHit         = "hit"
	CacheMiss        = "miss"
	CacheError       = "error"
	CacheInvalidated = "invalidated" // 取得中に無効化されたため保存しなかった
)

// CacheRecorder はキャッシュ参照結果を記録する。
type CacheRecorder interface {
	RecordUnreadCache(result string)
}

// RedisLatestCache はLatestSourceの結果をスコープ単位でRedisにキャッシュする。
// 公開・非公開の遷移をコミットした後にInvalidateを呼ぶこと。
// Redisが利用できない場合は元のSourceに委譲し、未読判定を失敗させない。
//
// ミス時の取得と保存はスコープ別・全体の世代キーをWATCHした上で行う。
// Invalidateは世代キーをINCRするため、無効化より前に取得を始めた読み手の
// SETはEXECで失敗し、コミット前のスナップショットがキャッシュに残らない。
type RedisLatestCache struct {
	source   LatestSource
	client   *redis.Client
	ttl      time.Duration
	prefix   string
	recorder CacheRecorder
}

// NewRedisLatestCache はRedisLatestCacheを生成する。ttlが0以下の場合はDefaultCacheTTLを使う。
func NewRedisLatestCache(source LatestSource, client *redis.Client, ttl time.Duration, recorder CacheRecorder) *RedisLatestCache {
	if ttl <= 0 {
		ttl = DefaultCacheTTL
	}
	return &RedisLatestCache{
		source:   source,
		client:   client,
		ttl:      ttl,
		prefix:   "changelog:latest:",
		recorder: recorder,
	}
}

var _ LatestSource = (*RedisLatestCache)(nil)

func (c *RedisLatestCache) key(tenantID string) string {
	return c.prefix + "scope:" + tenantID
}

func (c *RedisLatestCache) generationKey(tenantID string) string {
	return c.prefix + "gen:scope:" + tenantID
}

func (c *RedisLatestCache) globalGenerationKey() string {
	return c.prefix + "gen:global"
}

func encodeLatest(latest *time.Time) string {
	if latest == nil {
		return noneMarker
	}
	return latest.UTC().Format(time.RFC3339Nano)
}

func (c *RedisLatestCache) record(result string) {
	if c.recorder != nil {
		c.recorder.RecordUnreadCache(result)
	}
}

// LatestPublishedAt はキャッシュを参照し、なければSourceから取得して保存する。
func (c *RedisLatestCache) LatestPublishedAt(ctx context.Context, scope model.TenantScope) (*time.Time, error) {
	key := c.key(scope.TenantID)

	cached, err := c.client.Get(ctx, key).Result()
	switch {
	case err == nil:
		if cached == noneMarker {
			c.record(CacheHit)
			return nil, nil
		}
		if at, perr := time.Parse(time.RFC3339Nano, cached); perr == nil {
			c.record(CacheHit)
			at = at.UTC()
			return &at, nil
		}
		c.record(CacheMiss)
	case errors.Is(err, redis.Nil):
		c.record(CacheMiss)
	default:
		c.record(CacheError)
		return c.source.LatestPublishedAt(ctx, scope)
	}

	return c.fill(ctx, scope, key)
}

// fill はSourceから取得し、取得中に無効化されていなければキャッシュに保存する。
func (c *RedisLatestCache) fill(ctx context.Context, scope model.TenantScope, key string) (*time.Time, error) {
	var (
		latest    *time.Time
		sourceErr error
		fetched   bool
	)
	err := c.client.Watch(ctx, func(tx *redis.Tx) error {
		latest, sourceErr = c.source.LatestPublishedAt(ctx, scope)
		fetched = true
		if sourceErr != nil {
			return sourceErr
		}
		_, err := tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, encodeLatest(latest), c.ttl)
			return nil
		})
		return err
	}, c.generationKey(scope.TenantID), c.globalGenerationKey())

	switch {
	case sourceErr != nil:
		return nil, sourceErr
	case !fetched:
		// WATCH自体が失敗した
		c.record(CacheError)
		return c.source.LatestPublishedAt(ctx, scope)
	case errors.Is(err, redis.TxFailedErr):
		c.record(CacheInvalidated)
	case err != nil:
		c.record(CacheError)
	}
	return latest, nil
}

// Invalidate は投稿の公開状態が変わったスコープのキャッシュを削除する。
// テナント投稿はそのテナントのみ、グローバル投稿は全スコープが対象になる。
//
// 値を消す前に世代キーを進め、取得途中の読み手による古い値の書き戻しを防ぐ。
func (c *RedisLatestCache) Invalidate(ctx context.Context, tenantID *string) error {
	if tenantID != nil {
		_, err := c.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Incr(ctx, c.generationKey(*tenantID))
			pipe.Del(ctx, c.key(*tenantID))
			return nil
		})
		if err != nil {
			return fmt.Errorf("invalidate unread cache: %w", err)
		}
		return nil
	}
	if err := c.client.Incr(ctx, c.globalGenerationKey()).Err(); err != nil {
		return fmt.Errorf("advance unread cache generation: %w", err)
	}
	return c.invalidatePattern(ctx, c.prefix+"scope:*")
}

func (c *RedisLatestCache) invalidatePattern(ctx context.Context, pattern string) error {
	var cursor uint64
	for {
		keys, next, err := c.client.Scan(ctx, cursor, pattern, 100).Result()
		if err != nil {
			return fmt.Errorf("scan unread cache: %w", err)
		}
		if len(keys) > 0 {
			if err := c.client.Del(ctx, keys...).Err(); err != nil {
				return fmt.Errorf("invalidate unread cache: %w", err)
			}
		}
		cursor = next
		if cursor == 0 {
			return nil
		}
	}
}

// Ping はRedisへの疎通を確認する。
func (c *RedisLatestCache) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}
