package memory

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"mailguard/backend/internal/domain"
)

// pruneOnWriteThreshold 单个发送方记录数超过该值时在写入路径触发清理，
// 避免只在检查路径清理导致停止发送的发送方无限保留记录
const pruneOnWriteThreshold = 4096

// Store 进程内发送日志存储，用于单实例部署与开发验证
//
// 记录按发送方键分片保存为时间有序的追加列表；冷却状态为键到截止
// 时间的映射，过期判断与回收由调用方负责。所有方法通过读写锁串行化，单次调用原子，
// 跨调用的 check-then-act 不做串行化（见 ratelimit.Tracker 的说明）。
type Store struct {
	mu        sync.RWMutex
	records   map[string][]domain.SendRecord
	cooldowns map[string]time.Time
}

// NewStore 创建内存存储实例
func NewStore() *Store {
	return &Store{
		records:   make(map[string][]domain.SendRecord),
		cooldowns: make(map[string]time.Time),
	}
}

// Append 追加一条发送记录
func (s *Store) Append(_ context.Context, key string, record domain.SendRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	recs := append(s.records[key], record)
	// 追加通常已按时间有序，乱序时钟下兜底排序
	if n := len(recs); n > 1 && recs[n-1].Timestamp.Before(recs[n-2].Timestamp) {
		sort.Slice(recs, func(i, j int) bool {
			return recs[i].Timestamp.Before(recs[j].Timestamp)
		})
	}

	if len(recs) > pruneOnWriteThreshold {
		cutoff := record.Timestamp.Add(-domain.SendRecordRetention)
		recs = dropBefore(recs, cutoff)
	}
	s.records[key] = recs
	return nil
}

// RecordsSince 返回时间戳不早于 since 的记录
func (s *Store) RecordsSince(_ context.Context, key string, since time.Time) ([]domain.SendRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	recs := s.records[key]
	idx := sort.Search(len(recs), func(i int) bool {
		return !recs[i].Timestamp.Before(since)
	})
	if idx >= len(recs) {
		return nil, nil
	}
	out := make([]domain.SendRecord, len(recs)-idx)
	copy(out, recs[idx:])
	return out, nil
}

// PruneBefore 删除早于 cutoff 的记录
func (s *Store) PruneBefore(_ context.Context, key string, cutoff time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	recs, ok := s.records[key]
	if !ok {
		return nil
	}
	pruned := dropBefore(recs, cutoff)
	if len(pruned) == 0 {
		delete(s.records, key)
		return nil
	}
	s.records[key] = pruned
	return nil
}

// SetCooldown 设置冷却截止时间
func (s *Store) SetCooldown(_ context.Context, key string, until time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cooldowns[key] = until
	return nil
}

// Cooldown 返回冷却截止时间
//
// 是否过期由调用方判断，过期条目由调用方通过 ClearCooldown 回收。
func (s *Store) Cooldown(_ context.Context, key string) (time.Time, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	until, ok := s.cooldowns[key]
	if !ok {
		return time.Time{}, false, nil
	}
	return until, true, nil
}

// ClearCooldown 清除冷却状态
func (s *Store) ClearCooldown(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.cooldowns, key)
	return nil
}

// Reset 删除 key 的全部记录与冷却状态
func (s *Store) Reset(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.records, key)
	delete(s.cooldowns, key)
	return nil
}

// Keys 返回具有指定前缀的所有发送方键
func (s *Store) Keys(_ context.Context, prefix string) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	seen := make(map[string]bool)
	for key := range s.records {
		if strings.HasPrefix(key, prefix) {
			seen[key] = true
		}
	}
	for key := range s.cooldowns {
		if strings.HasPrefix(key, prefix) {
			seen[key] = true
		}
	}

	keys := make([]string, 0, len(seen))
	for key := range seen {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys, nil
}

// Health 内存存储总是可用
func (s *Store) Health() error { return nil }

// Close 内存存储无需释放资源
func (s *Store) Close() error { return nil }

// dropBefore 返回去掉早于 cutoff 的前缀后的记录列表
func dropBefore(recs []domain.SendRecord, cutoff time.Time) []domain.SendRecord {
	idx := sort.Search(len(recs), func(i int) bool {
		return !recs[i].Timestamp.Before(cutoff)
	})
	if idx == 0 {
		return recs
	}
	out := make([]domain.SendRecord, len(recs)-idx)
	copy(out, recs[idx:])
	return out
}
