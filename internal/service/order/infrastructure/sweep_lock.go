package infrastructure

import (
	"context"
	"time"

	"nexus-ledger/internal/pkg/redis"
	"nexus-ledger/internal/zookeeper"

	"github.com/bsm/redislock"
	"github.com/pkg/errors"
)

// RedisSweepLock 基于 redislock 的清扫器互斥，TTL 必须大于一次扫描的最长耗时
type RedisSweepLock struct {
	client *redis.Client
	key    string
	ttl    time.Duration
}

// NewRedisSweepLock 创建 Redis 互斥锁
func NewRedisSweepLock(client *redis.Client, key string, ttl time.Duration) *RedisSweepLock {
	return &RedisSweepLock{client: client, key: key, ttl: ttl}
}

// TryAcquire 实现 port.SweepLock
func (l *RedisSweepLock) TryAcquire(ctx context.Context) (func(ctx context.Context) error, bool, error) {
	lock, err := l.client.Locker().Obtain(ctx, l.key, l.ttl, nil)
	if errors.Is(err, redislock.ErrNotObtained) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, errors.Wrapf(err, "obtain sweeper lock %s", l.key)
	}
	return func(ctx context.Context) error {
		if err := lock.Release(ctx); err != nil && !errors.Is(err, redislock.ErrLockNotHeld) {
			return errors.Wrapf(err, "release sweeper lock %s", l.key)
		}
		return nil
	}, true, nil
}

// ZKSweepLock 基于 ZooKeeper 临时顺序节点的清扫器互斥，会话断开时锁自动释放
type ZKSweepLock struct {
	lock *zookeeper.DistributedLock
}

// NewZKSweepLock 创建 ZooKeeper 互斥锁
func NewZKSweepLock(conn *zookeeper.Conn, resourceID string) (*ZKSweepLock, error) {
	lock, err := zookeeper.NewDistributedLock(conn, resourceID)
	if err != nil {
		return nil, err
	}
	return &ZKSweepLock{lock: lock}, nil
}

// TryAcquire 实现 port.SweepLock
func (l *ZKSweepLock) TryAcquire(_ context.Context) (func(ctx context.Context) error, bool, error) {
	ok, err := l.lock.TryLock()
	if err != nil || !ok {
		return nil, false, err
	}
	return func(context.Context) error { return l.lock.Unlock() }, true, nil
}
