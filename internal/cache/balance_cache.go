package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"

	"github.com/GTDGit/marketplace_api/internal/models"
)

// versionTTL outlives any balance entry so a lapsed counter cannot
// resurrect a superseded view.
const versionTTL = 24 * time.Hour

// setIfVersion writes KEYS[1] only while KEYS[2] still holds ARGV[1].
var setIfVersion = redis.NewScript(`
local v = redis.call('GET', KEYS[2]) or '0'
if v ~= ARGV[1] then
	return 0
end
redis.call('SET', KEYS[1], ARGV[2], 'PX', ARGV[3])
return 1
`)

// BalanceCache keeps a short-lived copy of each client's balance view.
// Every ledger write bumps the client's version and drops the entry. A view
// read from the database is only stored when the version it was read under
// is still current, so a deduction racing a read never leaves a stale entry.
type BalanceCache struct {
	redis *RedisClient
	ttl   time.Duration
}

// NewBalanceCache creates a new BalanceCache.
func NewBalanceCache(redis *RedisClient, ttl time.Duration) *BalanceCache {
	return &BalanceCache{redis: redis, ttl: ttl}
}

func (c *BalanceCache) key(clientID int64) string {
	return fmt.Sprintf("balance:%d", clientID)
}

func (c *BalanceCache) versionKey(clientID int64) string {
	return fmt.Sprintf("balance:ver:%d", clientID)
}

// Version returns the client's invalidation counter. Read it before loading
// the balance and hand it back to Set. ok is false when Redis is unreachable,
// in which case the caller must not cache.
func (c *BalanceCache) Version(ctx context.Context, clientID int64) (int64, bool) {
	raw, err := c.redis.Get(ctx, c.versionKey(clientID))
	if errors.Is(err, redis.Nil) {
		return 0, true
	}
	if err != nil {
		log.Warn().Err(err).Int64("client_id", clientID).Msg("Balance version read failed")
		return 0, false
	}
	v, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, false
	}
	return v, true
}

// Get returns the cached balance. Any Redis failure is reported as a miss.
func (c *BalanceCache) Get(ctx context.Context, clientID int64) (*models.Balance, bool) {
	raw, err := c.redis.Get(ctx, c.key(clientID))
	if errors.Is(err, redis.Nil) {
		return nil, false
	}
	if err != nil {
		log.Warn().Err(err).Int64("client_id", clientID).Msg("Balance cache read failed")
		return nil, false
	}
	var b models.Balance
	if err := json.Unmarshal([]byte(raw), &b); err != nil {
		log.Warn().Err(err).Int64("client_id", clientID).Msg("Discarding malformed cached balance")
		return nil, false
	}
	return &b, true
}

// Set stores the balance if no invalidation happened since version was read.
// EndDate bounds the TTL so an expiring subscription is never served from
// cache after it lapses.
func (c *BalanceCache) Set(ctx context.Context, clientID, version int64, b *models.Balance) {
	ttl := c.ttl
	if b.EndDate != nil {
		if left := time.Until(*b.EndDate); left < ttl {
			ttl = left
		}
	}
	if ttl <= 0 {
		return
	}
	data, err := json.Marshal(b)
	if err != nil {
		log.Warn().Err(err).Msg("Failed to marshal balance")
		return
	}
	keys := []string{c.key(clientID), c.versionKey(clientID)}
	stored, err := c.redis.RunScript(ctx, setIfVersion, keys, strconv.FormatInt(version, 10), string(data), ttl.Milliseconds())
	if err != nil {
		log.Warn().Err(err).Int64("client_id", clientID).Msg("Balance cache write failed")
		return
	}
	if n, _ := stored.(int64); n == 0 {
		log.Debug().Int64("client_id", clientID).Msg("Balance changed during read, not cached")
	}
}

// Invalidate bumps the client's version and drops the cached balance. The
// bump comes first so a reader that loaded the old balance cannot store it.
func (c *BalanceCache) Invalidate(ctx context.Context, clientID int64) {
	if _, err := c.redis.Incr(ctx, c.versionKey(clientID), versionTTL); err != nil {
		log.Warn().Err(err).Int64("client_id", clientID).Msg("Balance version bump failed")
	}
	if err := c.redis.Delete(ctx, c.key(clientID)); err != nil {
		log.Warn().Err(err).Int64("client_id", clientID).Msg("Balance cache invalidation failed")
	}
}
