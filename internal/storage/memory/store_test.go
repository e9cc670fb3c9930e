package memory

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mailguard/backend/internal/domain"
)

func record(ts time.Time, recipient string) domain.SendRecord {
	return domain.SendRecord{
		ID:        fmt.Sprintf("msg-%d", ts.UnixNano()),
		Timestamp: ts,
		Recipient: recipient,
		Sender:    "alice@corp.com",
		OrgID:     "org-1",
	}
}

func TestStore_AppendAndRecordsSince(t *testing.T) {
	ctx := context.Background()
	base := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)

	t.Run("按时间过滤记录", func(t *testing.T) {
		store := NewStore()
		for i := 0; i < 3; i++ {
			require.NoError(t, store.Append(ctx, "org-1|alice@corp.com", record(base.Add(time.Duration(i)*time.Minute), "bob@example.com")))
		}

		recs, err := store.RecordsSince(ctx, "org-1|alice@corp.com", base.Add(time.Minute))
		require.NoError(t, err)
		require.Len(t, recs, 2)
		assert.Equal(t, base.Add(time.Minute), recs[0].Timestamp)
		assert.Equal(t, base.Add(2*time.Minute), recs[1].Timestamp)
	})

	t.Run("since 边界记录包含在内", func(t *testing.T) {
		store := NewStore()
		require.NoError(t, store.Append(ctx, "k", record(base, "bob@example.com")))

		recs, err := store.RecordsSince(ctx, "k", base)
		require.NoError(t, err)
		assert.Len(t, recs, 1)
	})

	t.Run("乱序写入后仍按时间有序", func(t *testing.T) {
		store := NewStore()
		require.NoError(t, store.Append(ctx, "k", record(base.Add(2*time.Minute), "bob@example.com")))
		require.NoError(t, store.Append(ctx, "k", record(base, "bob@example.com")))
		require.NoError(t, store.Append(ctx, "k", record(base.Add(time.Minute), "bob@example.com")))

		recs, err := store.RecordsSince(ctx, "k", time.Time{})
		require.NoError(t, err)
		require.Len(t, recs, 3)
		assert.True(t, recs[0].Timestamp.Before(recs[1].Timestamp))
		assert.True(t, recs[1].Timestamp.Before(recs[2].Timestamp))
	})

	t.Run("未知键返回空", func(t *testing.T) {
		store := NewStore()
		recs, err := store.RecordsSince(ctx, "missing", base)
		require.NoError(t, err)
		assert.Empty(t, recs)
	})

	t.Run("返回的切片与内部状态隔离", func(t *testing.T) {
		store := NewStore()
		require.NoError(t, store.Append(ctx, "k", record(base, "bob@example.com")))

		recs, err := store.RecordsSince(ctx, "k", time.Time{})
		require.NoError(t, err)
		recs[0].Recipient = "mutated@example.com"

		again, err := store.RecordsSince(ctx, "k", time.Time{})
		require.NoError(t, err)
		assert.Equal(t, "bob@example.com", again[0].Recipient)
	})
}

func TestStore_PruneBefore(t *testing.T) {
	ctx := context.Background()
	base := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)

	t.Run("删除早于 cutoff 的记录", func(t *testing.T) {
		store := NewStore()
		for i := 0; i < 4; i++ {
			require.NoError(t, store.Append(ctx, "k", record(base.Add(time.Duration(i)*time.Hour), "bob@example.com")))
		}

		require.NoError(t, store.PruneBefore(ctx, "k", base.Add(2*time.Hour)))

		recs, err := store.RecordsSince(ctx, "k", time.Time{})
		require.NoError(t, err)
		require.Len(t, recs, 2)
		assert.Equal(t, base.Add(2*time.Hour), recs[0].Timestamp)
	})

	t.Run("全部过期时清空键", func(t *testing.T) {
		store := NewStore()
		require.NoError(t, store.Append(ctx, "k", record(base, "bob@example.com")))
		require.NoError(t, store.PruneBefore(ctx, "k", base.Add(time.Hour)))

		keys, err := store.Keys(ctx, "")
		require.NoError(t, err)
		assert.Empty(t, keys)
	})

	t.Run("未知键不报错", func(t *testing.T) {
		store := NewStore()
		assert.NoError(t, store.PruneBefore(ctx, "missing", base))
	})
}

func TestStore_WritePathPruning(t *testing.T) {
	ctx := context.Background()
	base := time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)

	store := NewStore()
	for i := 0; i <= pruneOnWriteThreshold; i++ {
		require.NoError(t, store.Append(ctx, "k", record(base.Add(time.Duration(i)*time.Millisecond), "bob@example.com")))
	}
	// 最后一条写入时间远超保留期，写入路径应清掉全部旧记录
	require.NoError(t, store.Append(ctx, "k", record(base.Add(25*time.Hour), "bob@example.com")))

	recs, err := store.RecordsSince(ctx, "k", time.Time{})
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, base.Add(25*time.Hour), recs[0].Timestamp)
}

func TestStore_Cooldown(t *testing.T) {
	ctx := context.Background()
	until := time.Date(2026, 8, 1, 12, 5, 0, 0, time.UTC)

	t.Run("设置后可读取", func(t *testing.T) {
		store := NewStore()
		require.NoError(t, store.SetCooldown(ctx, "k", until))

		got, active, err := store.Cooldown(ctx, "k")
		require.NoError(t, err)
		assert.True(t, active)
		assert.Equal(t, until, got)
	})

	t.Run("已过截止时间的条目原样返回", func(t *testing.T) {
		// 过期判断属于调用方，存储层不持有时钟
		store := NewStore()
		past := time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC)
		require.NoError(t, store.SetCooldown(ctx, "k", past))

		got, active, err := store.Cooldown(ctx, "k")
		require.NoError(t, err)
		assert.True(t, active)
		assert.Equal(t, past, got)
	})

	t.Run("清除后不再返回", func(t *testing.T) {
		store := NewStore()
		require.NoError(t, store.SetCooldown(ctx, "k", until))
		require.NoError(t, store.ClearCooldown(ctx, "k"))

		_, active, err := store.Cooldown(ctx, "k")
		require.NoError(t, err)
		assert.False(t, active)
	})

	t.Run("未知键返回未激活", func(t *testing.T) {
		store := NewStore()
		_, active, err := store.Cooldown(ctx, "missing")
		require.NoError(t, err)
		assert.False(t, active)
	})
}

func TestStore_Reset(t *testing.T) {
	ctx := context.Background()
	base := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)

	store := NewStore()
	require.NoError(t, store.Append(ctx, "k", record(base, "bob@example.com")))
	require.NoError(t, store.SetCooldown(ctx, "k", base.Add(time.Minute)))

	require.NoError(t, store.Reset(ctx, "k"))

	recs, err := store.RecordsSince(ctx, "k", time.Time{})
	require.NoError(t, err)
	assert.Empty(t, recs)

	_, active, err := store.Cooldown(ctx, "k")
	require.NoError(t, err)
	assert.False(t, active)
}

func TestStore_Keys(t *testing.T) {
	ctx := context.Background()
	base := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)

	store := NewStore()
	require.NoError(t, store.Append(ctx, "org-1|alice@corp.com", record(base, "bob@example.com")))
	require.NoError(t, store.Append(ctx, "org-1|carol@corp.com", record(base, "bob@example.com")))
	require.NoError(t, store.Append(ctx, "org-2|dave@corp.com", record(base, "bob@example.com")))
	// 只有冷却状态、没有发送记录的键也应被列出
	require.NoError(t, store.SetCooldown(ctx, "org-1|erin@corp.com", base.Add(time.Minute)))

	keys, err := store.Keys(ctx, "org-1|")
	require.NoError(t, err)
	assert.Equal(t, []string{"org-1|alice@corp.com", "org-1|carol@corp.com", "org-1|erin@corp.com"}, keys)

	all, err := store.Keys(ctx, "")
	require.NoError(t, err)
	assert.Len(t, all, 4)
}

func TestStore_HealthAndClose(t *testing.T) {
	store := NewStore()
	assert.NoError(t, store.Health())
	assert.NoError(t, store.Close())
}
