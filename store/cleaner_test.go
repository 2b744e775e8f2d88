package store

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/BaSui01/clipflow/config"
	"github.com/BaSui01/clipflow/types"
	"github.com/BaSui01/clipflow/workflow"
)

// nopruneStore 隐藏 Prune 方法，用来验证不支持清理的后端。
type nopruneStore struct {
	Store
}

func TestStartCleaner_DisabledReturnsNil(t *testing.T) {
	c := StartCleaner(NewMemory(nil), config.CleanupConfig{Enabled: false}, zap.NewNop())
	assert.Nil(t, c)

	// nil 接收者 Stop 安全
	c.Stop()
}

func TestStartCleaner_UnsupportedBackend(t *testing.T) {
	s := nopruneStore{Store: NewMemory(nil)}
	c := StartCleaner(s, config.CleanupConfig{Enabled: true, Interval: time.Minute, MaxAge: time.Hour}, zap.NewNop())
	assert.Nil(t, c)
}

func TestStartCleaner_PrunesOldRecords(t *testing.T) {
	s := NewMemory(nil)
	ctx := context.Background()

	old := testWorkflow("wf-old", "过期记录", workflow.StatusSucceeded, baseTime().Add(-3*time.Hour))
	oldDone := baseTime().Add(-2 * time.Hour)
	old.FinishedAt = &oldDone
	require.NoError(t, s.SaveWorkflow(ctx, old))

	fresh := testWorkflow("wf-new", "新鲜记录", workflow.StatusSucceeded, baseTime())
	require.NoError(t, s.SaveWorkflow(ctx, fresh))

	c := StartCleaner(s, config.CleanupConfig{
		Enabled:  true,
		Interval: 10 * time.Millisecond,
		MaxAge:   time.Hour,
	}, zap.NewNop())
	require.NotNil(t, c)
	defer c.Stop()

	require.Eventually(t, func() bool {
		_, err := s.GetWorkflow(ctx, "wf-old")
		return types.IsErrorCode(err, types.ErrNotFound)
	}, 3*time.Second, 10*time.Millisecond)

	_, err := s.GetWorkflow(ctx, "wf-new")
	assert.NoError(t, err)
}

func TestCleaner_StopIdempotent(t *testing.T) {
	c := StartCleaner(NewMemory(nil), config.CleanupConfig{
		Enabled:  true,
		Interval: time.Minute,
		MaxAge:   time.Hour,
	}, zap.NewNop())
	require.NotNil(t, c)

	done := make(chan struct{})
	go func() {
		c.Stop()
		c.Stop()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Stop did not return")
	}
}
