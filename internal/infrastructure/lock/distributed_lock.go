package lock

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
)

var ErrLockFailed = errors.New("获取分布式锁失败")

// DistributedLock 基于 Redis SetNX 的互斥锁
//
// 余额扣费本身靠存储层的条件更新保证并发安全，不需要锁；
// 这把锁只给管理后台的人工调账用：同一用户的人工充值/扣款
// 串行化，避免两个管理员同时操作时审计流水的前后余额交叉
type DistributedLock struct {
	client     *redis.Client
	key        string
	value      string        // 持有者标识，释放时校验，防止误删别人的锁
	expiration time.Duration // 过期兜底，持有进程崩溃时锁自动释放
}

func NewDistributedLock(client *redis.Client, key, value string, expiration time.Duration) *DistributedLock {
	return &DistributedLock{
		client:     client,
		key:        key,
		value:      value,
		expiration: expiration,
	}
}

// TryLock 非阻塞获取：SET key value NX EX，key 已存在则失败
func (l *DistributedLock) TryLock(ctx context.Context) (bool, error) {
	return l.client.SetNX(ctx, l.key, l.value, l.expiration).Result()
}

// Lock 阻塞式获取（带重试）
func (l *DistributedLock) Lock(ctx context.Context, retryInterval time.Duration, maxRetries int) error {
	for i := 0; i < maxRetries; i++ {
		success, err := l.TryLock(ctx)
		if err != nil {
			return err
		}
		if success {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(retryInterval):
		}
	}
	return ErrLockFailed
}

// Unlock 释放锁，用 Lua 保证"校验持有者 + 删除"的原子性
func (l *DistributedLock) Unlock(ctx context.Context) error {
	script := `
		if redis.call("GET", KEYS[1]) == ARGV[1] then
			return redis.call("DEL", KEYS[1])
		else
			return 0
		end
	`
	_, err := l.client.Eval(ctx, script, []string{l.key}, l.value).Result()
	return err
}

// NewAdjustLock 管理员人工调账锁（按用户维度，不同用户互不影响）
func NewAdjustLock(client *redis.Client, userID int64, operator string) *DistributedLock {
	key := fmt.Sprintf("balance:adjust:lock:user:%d", userID)
	return NewDistributedLock(client, key, operator, 30*time.Second)
}
