package storage

import (
	"context"
	"time"

	"mailguard/backend/internal/domain"
)

// SendLog 发送记录与冷却状态的计数存储抽象
//
// 速率限制器不直接持有进程内状态，而是通过本接口访问存储，
// 使得多实例部署可以切换到外部共享、支持 TTL 的存储（Redis）。
//
// 所有按 key 的操作中，key 是 domain.SenderKey 生成的发送方键。
type SendLog interface {
	// Append 追加一条已提交的发送记录
	Append(ctx context.Context, key string, record domain.SendRecord) error

	// RecordsSince 返回 key 下时间戳不早于 since 的记录，按时间升序
	RecordsSince(ctx context.Context, key string, since time.Time) ([]domain.SendRecord, error)

	// PruneBefore 删除 key 下早于 cutoff 的记录
	PruneBefore(ctx context.Context, key string, cutoff time.Time) error

	// SetCooldown 设置 key 的冷却截止时间
	SetCooldown(ctx context.Context, key string, until time.Time) error

	// Cooldown 返回 key 的冷却截止时间；不存在时第二个返回值为 false。
	// 截止时间是否已过由调用方对照自己的时钟判断
	Cooldown(ctx context.Context, key string) (time.Time, bool, error)

	// ClearCooldown 清除 key 的冷却状态
	ClearCooldown(ctx context.Context, key string) error

	// Reset 删除 key 的全部发送记录与冷却状态
	Reset(ctx context.Context, key string) error

	// Keys 返回具有指定前缀的所有发送方键
	Keys(ctx context.Context, prefix string) ([]string, error)

	// Health 检查存储可用性
	Health() error

	// Close 释放底层资源
	Close() error
}
