package infrastructure

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"nexus-ledger/internal/pkg/redis"
	"nexus-ledger/internal/service/inventory/domain"

	"github.com/pkg/errors"
	goredis "github.com/redis/go-redis/v9"
)

const (
	snapshotKeyPrefix = "ledger:stock:"
	putSnapshotScript = "put_stock_snapshot"
)

// putSnapshotLua 只有新版本号大于缓存中的版本号时才写入，
// 并发提交的事务乱序刷新缓存时旧快照不会覆盖新快照。
const putSnapshotLua = `
local cur = redis.call('HGET', KEYS[1], 'version')
if cur and tonumber(cur) >= tonumber(ARGV[1]) then
  return 0
end
redis.call('HSET', KEYS[1], 'version', ARGV[1], 'data', ARGV[2])
if tonumber(ARGV[3]) > 0 then
  redis.call('PEXPIRE', KEYS[1], ARGV[3])
end
return 1
`

// RedisSnapshotCache 用 Redis Hash 缓存库存快照
type RedisSnapshotCache struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisSnapshotCache 创建缓存并加载 Lua 脚本
func NewRedisSnapshotCache(client *redis.Client, ttl time.Duration) (*RedisSnapshotCache, error) {
	if err := client.LoadScriptFromContent(putSnapshotScript, putSnapshotLua); err != nil {
		return nil, err
	}
	return &RedisSnapshotCache{client: client, ttl: ttl}, nil
}

func snapshotKey(id uint64) string {
	return fmt.Sprintf("%s%d", snapshotKeyPrefix, id)
}

// Get 读取快照，未命中返回 ok=false
func (c *RedisSnapshotCache) Get(ctx context.Context, id uint64) (*domain.StockRecord, bool, error) {
	raw, err := c.client.GetClient().HGet(ctx, snapshotKey(id), "data").Result()
	if err != nil {
		if errors.Is(err, goredis.Nil) {
			return nil, false, nil
		}
		return nil, false, errors.Wrapf(err, "redis: get snapshot %d", id)
	}
	var rec domain.StockRecord
	if err := json.Unmarshal([]byte(raw), &rec); err != nil {
		return nil, false, errors.Wrapf(err, "redis: decode snapshot %d", id)
	}
	return &rec, true, nil
}

// Put 按版本号条件写入
func (c *RedisSnapshotCache) Put(ctx context.Context, rec *domain.StockRecord) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return errors.Wrap(err, "redis: encode snapshot")
	}
	_, err = c.client.RunScript(ctx, putSnapshotScript,
		[]string{snapshotKey(rec.ID)},
		rec.Version, string(data), c.ttl.Milliseconds())
	if err != nil {
		return errors.Wrapf(err, "redis: put snapshot %d", rec.ID)
	}
	return nil
}
