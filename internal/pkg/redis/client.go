// internal/pkg/redis/client.go
package redis

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/bsm/redislock"
	"github.com/pkg/errors"
	goredis "github.com/redis/go-redis/v9"
)

// Client 封装了 go-redis 客户端、Lua 脚本注册表以及分布式锁客户端
type Client struct {
	client goredis.UniversalClient
	locker *redislock.Client

	scripts   map[string]*goredis.Script
	scriptsMu sync.RWMutex
}

// NewClient 根据逗号分隔的地址创建客户端；多个地址时自动使用集群模式
func NewClient(addrs, password string, db int) (*Client, error) {
	if strings.TrimSpace(addrs) == "" {
		return nil, errors.New("redis: empty address list")
	}
	uc := goredis.NewUniversalClient(&goredis.UniversalOptions{
		Addrs:        strings.Split(addrs, ","),
		Password:     password,
		DB:           db,
		PoolSize:     100,
		DialTimeout:  3 * time.Second,
		ReadTimeout:  time.Second,
		WriteTimeout: time.Second,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := uc.Ping(ctx).Err(); err != nil {
		_ = uc.Close()
		return nil, errors.Wrapf(err, "redis: ping %s", addrs)
	}
	return Wrap(uc), nil
}

// Wrap 包装一个已存在的客户端（测试中用于接入 miniredis）
func Wrap(uc goredis.UniversalClient) *Client {
	return &Client{
		client:  uc,
		locker:  redislock.New(uc),
		scripts: make(map[string]*goredis.Script),
	}
}

// GetClient 返回底层客户端
func (c *Client) GetClient() goredis.UniversalClient {
	return c.client
}

// Locker 返回基于该连接的分布式锁客户端
func (c *Client) Locker() *redislock.Client {
	return c.locker
}

// LoadScriptFromContent 注册一段 Lua 脚本，并预先加载到服务端
func (c *Client) LoadScriptFromContent(name, content string) error {
	script := goredis.NewScript(content)

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := script.Load(ctx, c.client).Err(); err != nil {
		return errors.Wrapf(err, "redis: load script %s", name)
	}

	c.scriptsMu.Lock()
	c.scripts[name] = script
	c.scriptsMu.Unlock()
	return nil
}

// RunScript 执行已注册的脚本；脚本缓存被清空时 go-redis 会自动退回到 EVAL
func (c *Client) RunScript(ctx context.Context, name string, keys []string, args ...interface{}) (interface{}, error) {
	c.scriptsMu.RLock()
	script, ok := c.scripts[name]
	c.scriptsMu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("redis: script %q not loaded", name)
	}
	return script.Run(ctx, c.client, keys, args...).Result()
}

// Close 关闭连接
func (c *Client) Close() error {
	return c.client.Close()
}
