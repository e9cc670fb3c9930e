package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"mailguard/backend/internal/domain"
)

const (
	sendLogPrefix  = "sendlog:"
	cooldownPrefix = "cooldown:"

	// 发送日志键的 TTL，略长于 24 小时窗口，停止发送后由 Redis 自行回收
	sendLogTTL = domain.SendRecordRetention + time.Hour
)

// SendLog Redis 发送日志存储
//
// 每个发送方键对应一个有序集合，score 为发送时间（纳秒），member 为
// JSON 编码的发送记录（记录自带 uuid，保证 member 唯一）。冷却状态
// 是带 TTL 的独立键，到期后由 Redis 删除，天然实现惰性过期。
// 多个服务实例指向同一个 Redis 即共享同一份限流视图。
type SendLog struct {
	client *Client
}

// NewSendLog 创建 Redis 发送日志存储
func NewSendLog(client *Client) *SendLog {
	return &SendLog{client: client}
}

func sendLogKey(key string) string  { return sendLogPrefix + key }
func cooldownKey(key string) string { return cooldownPrefix + key }

// Append 追加一条发送记录并刷新键的 TTL
func (s *SendLog) Append(ctx context.Context, key string, record domain.SendRecord) error {
	data, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("marshal send record: %w", err)
	}

	pipe := s.client.Raw().Pipeline()
	pipe.ZAdd(ctx, sendLogKey(key), goredis.Z{
		Score:  float64(record.Timestamp.UnixNano()),
		Member: string(data),
	})
	pipe.Expire(ctx, sendLogKey(key), sendLogTTL)
	_, err = pipe.Exec(ctx)
	return err
}

// RecordsSince 返回时间戳不早于 since 的记录，按时间升序
func (s *SendLog) RecordsSince(ctx context.Context, key string, since time.Time) ([]domain.SendRecord, error) {
	members, err := s.client.Raw().ZRangeByScore(ctx, sendLogKey(key), &goredis.ZRangeBy{
		Min: strconv.FormatInt(since.UnixNano(), 10),
		Max: "+inf",
	}).Result()
	if err != nil {
		return nil, err
	}

	records := make([]domain.SendRecord, 0, len(members))
	for _, member := range members {
		var rec domain.SendRecord
		if err := json.Unmarshal([]byte(member), &rec); err != nil {
			// 跳过无法解析的残留数据
			continue
		}
		records = append(records, rec)
	}
	return records, nil
}

// PruneBefore 删除早于 cutoff 的记录
func (s *SendLog) PruneBefore(ctx context.Context, key string, cutoff time.Time) error {
	max := strconv.FormatInt(cutoff.UnixNano()-1, 10)
	return s.client.Raw().ZRemRangeByScore(ctx, sendLogKey(key), "-inf", max).Err()
}

// SetCooldown 写入带 TTL 的冷却键
func (s *SendLog) SetCooldown(ctx context.Context, key string, until time.Time) error {
	ttl := time.Until(until)
	if ttl <= 0 {
		return nil
	}
	return s.client.Raw().Set(ctx, cooldownKey(key), until.Format(time.RFC3339Nano), ttl).Err()
}

// Cooldown 读取冷却截止时间；键不存在（含 TTL 到期）时返回 false
func (s *SendLog) Cooldown(ctx context.Context, key string) (time.Time, bool, error) {
	val, err := s.client.Raw().Get(ctx, cooldownKey(key)).Result()
	if err != nil {
		if err == goredis.Nil {
			return time.Time{}, false, nil
		}
		return time.Time{}, false, err
	}

	until, err := time.Parse(time.RFC3339Nano, val)
	if err != nil {
		return time.Time{}, false, fmt.Errorf("parse cooldown expiry: %w", err)
	}
	if !time.Now().Before(until) {
		return time.Time{}, false, nil
	}
	return until, true, nil
}

// ClearCooldown 删除冷却键
func (s *SendLog) ClearCooldown(ctx context.Context, key string) error {
	return s.client.Raw().Del(ctx, cooldownKey(key)).Err()
}

// Reset 删除 key 的发送日志与冷却键
func (s *SendLog) Reset(ctx context.Context, key string) error {
	return s.client.Raw().Del(ctx, sendLogKey(key), cooldownKey(key)).Err()
}

// Keys 扫描具有指定前缀的所有发送方键
func (s *SendLog) Keys(ctx context.Context, prefix string) ([]string, error) {
	var keys []string
	iter := s.client.Raw().Scan(ctx, 0, sendLogPrefix+prefix+"*", 256).Iterator()
	for iter.Next(ctx) {
		keys = append(keys, strings.TrimPrefix(iter.Val(), sendLogPrefix))
	}
	if err := iter.Err(); err != nil {
		return nil, err
	}
	return keys, nil
}

// Health 检查 Redis 连通性
func (s *SendLog) Health() error {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	return s.client.Ping(ctx)
}

// Close 关闭底层连接
func (s *SendLog) Close() error {
	return s.client.Close()
}
