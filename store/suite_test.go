package store

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BaSui01/clipflow/render"
	"github.com/BaSui01/clipflow/types"
	"github.com/BaSui01/clipflow/workflow"
)

// testWorkflow 构造一条可入库的工作流记录。时间统一用 UTC 整秒，
// 保证 JSON 往返后仍可精确比较。
func testWorkflow(id, topic string, status workflow.Status, createdAt time.Time) *workflow.Workflow {
	wf := &workflow.Workflow{
		ID:      id,
		Topic:   topic,
		Status:  status,
		Content: workflow.VideoContent{Title: "标题 " + id, Script: "第一句。第二句。"},
		Stages: []workflow.StageRecord{
			{Name: workflow.StageContentGeneration, Status: workflow.StageStatusSucceeded},
			{Name: workflow.StageTTS, Status: workflow.StageStatusSucceeded},
		},
		Progress:  100,
		CreatedAt: createdAt,
	}
	if status.IsTerminal() {
		done := createdAt.Add(time.Minute)
		wf.FinishedAt = &done
	}
	return wf
}

func testJob(id, workflowID string, status render.Status, enqueuedAt time.Time) *render.Job {
	job := &render.Job{
		ID:         id,
		WorkflowID: workflowID,
		TemplateID: "simple_text",
		Params:     map[string]any{"title": "标题 " + id},
		Status:     status,
		EnqueuedAt: enqueuedAt,
	}
	if status.IsTerminal() {
		done := enqueuedAt.Add(time.Minute)
		job.FinishedAt = &done
	}
	return job
}

func baseTime() time.Time {
	return time.Now().UTC().Truncate(time.Second)
}

// runStoreSuite 对任意后端跑同一组契约测试。
func runStoreSuite(t *testing.T, factory func(t *testing.T) Store) {
	t.Helper()
	ctx := context.Background()

	t.Run("WorkflowRoundTrip", func(t *testing.T) {
		s := factory(t)
		wf := testWorkflow("wf-1", "如何学习Go", workflow.StatusSucceeded, baseTime())
		wf.OutputFiles = []string{"/media/wf-1.mp4"}
		require.NoError(t, s.SaveWorkflow(ctx, wf))

		got, err := s.GetWorkflow(ctx, "wf-1")
		require.NoError(t, err)
		assert.Equal(t, "wf-1", got.ID)
		assert.Equal(t, "如何学习Go", got.Topic)
		assert.Equal(t, workflow.StatusSucceeded, got.Status)
		assert.Equal(t, "标题 wf-1", got.Content.Title)
		assert.Equal(t, []string{"/media/wf-1.mp4"}, got.OutputFiles)
		assert.Equal(t, 100.0, got.Progress)
		require.Len(t, got.Stages, 2)
		assert.Equal(t, workflow.StageContentGeneration, got.Stages[0].Name)
		require.NotNil(t, got.FinishedAt)
		assert.True(t, got.CreatedAt.Equal(wf.CreatedAt))
	})

	t.Run("WorkflowOverwrite", func(t *testing.T) {
		s := factory(t)
		wf := testWorkflow("wf-1", "如何学习Go", workflow.StatusRunning, baseTime())
		require.NoError(t, s.SaveWorkflow(ctx, wf))

		wf.Status = workflow.StatusSucceeded
		wf.Progress = 100
		require.NoError(t, s.SaveWorkflow(ctx, wf))

		got, err := s.GetWorkflow(ctx, "wf-1")
		require.NoError(t, err)
		assert.Equal(t, workflow.StatusSucceeded, got.Status)

		wfs, err := s.ListWorkflows(ctx, workflow.Filter{})
		require.NoError(t, err)
		assert.Len(t, wfs, 1)
	})

	t.Run("WorkflowNotFound", func(t *testing.T) {
		s := factory(t)
		_, err := s.GetWorkflow(ctx, "missing")
		require.Error(t, err)
		assert.True(t, types.IsErrorCode(err, types.ErrNotFound))
	})

	t.Run("WorkflowErrorRoundTrip", func(t *testing.T) {
		s := factory(t)
		wf := testWorkflow("wf-err", "失败的主题", workflow.StatusFailed, baseTime())
		wf.Error = types.NewError(types.ErrStageFailed, "stage TTS failed").WithStage("TTS")
		require.NoError(t, s.SaveWorkflow(ctx, wf))

		got, err := s.GetWorkflow(ctx, "wf-err")
		require.NoError(t, err)
		require.NotNil(t, got.Error)
		assert.Equal(t, types.ErrStageFailed, got.Error.Code)
		assert.Equal(t, "TTS", got.Error.Stage)
	})

	t.Run("ListOrderAndFilters", func(t *testing.T) {
		s := factory(t)
		base := baseTime()
		require.NoError(t, s.SaveWorkflow(ctx, testWorkflow("wf-a", "如何学习Go", workflow.StatusSucceeded, base.Add(-2*time.Hour))))
		require.NoError(t, s.SaveWorkflow(ctx, testWorkflow("wf-b", "如何学习Python", workflow.StatusFailed, base.Add(-time.Hour))))
		require.NoError(t, s.SaveWorkflow(ctx, testWorkflow("wf-c", "番茄炒蛋做法", workflow.StatusSucceeded, base)))

		all, err := s.ListWorkflows(ctx, workflow.Filter{})
		require.NoError(t, err)
		require.Len(t, all, 3)
		assert.Equal(t, "wf-c", all[0].ID)
		assert.Equal(t, "wf-b", all[1].ID)
		assert.Equal(t, "wf-a", all[2].ID)

		byStatus, err := s.ListWorkflows(ctx, workflow.Filter{Status: workflow.StatusSucceeded})
		require.NoError(t, err)
		require.Len(t, byStatus, 2)
		assert.Equal(t, "wf-c", byStatus[0].ID)

		byTopic, err := s.ListWorkflows(ctx, workflow.Filter{Topic: "如何学习"})
		require.NoError(t, err)
		assert.Len(t, byTopic, 2)

		limited, err := s.ListWorkflows(ctx, workflow.Filter{Limit: 1, Offset: 1})
		require.NoError(t, err)
		require.Len(t, limited, 1)
		assert.Equal(t, "wf-b", limited[0].ID)

		beyond, err := s.ListWorkflows(ctx, workflow.Filter{Offset: 10})
		require.NoError(t, err)
		assert.Empty(t, beyond)
	})

	t.Run("DeleteWorkflow", func(t *testing.T) {
		s := factory(t)
		require.NoError(t, s.SaveWorkflow(ctx, testWorkflow("wf-1", "待删除", workflow.StatusSucceeded, baseTime())))
		require.NoError(t, s.DeleteWorkflow(ctx, "wf-1"))

		_, err := s.GetWorkflow(ctx, "wf-1")
		assert.True(t, types.IsErrorCode(err, types.ErrNotFound))

		// 重复删除不报错
		require.NoError(t, s.DeleteWorkflow(ctx, "wf-1"))
	})

	t.Run("JobRoundTrip", func(t *testing.T) {
		s := factory(t)
		job := testJob("job-1", "wf-1", render.StatusSucceeded, baseTime())
		job.OutputPath = "/media/job-1.mp4"
		require.NoError(t, s.SaveJob(ctx, job))

		got, err := s.GetJob(ctx, "job-1")
		require.NoError(t, err)
		assert.Equal(t, "job-1", got.ID)
		assert.Equal(t, "wf-1", got.WorkflowID)
		assert.Equal(t, "simple_text", got.TemplateID)
		assert.Equal(t, render.StatusSucceeded, got.Status)
		assert.Equal(t, "/media/job-1.mp4", got.OutputPath)
		assert.Equal(t, "标题 job-1", got.Params["title"])

		_, err = s.GetJob(ctx, "missing")
		assert.True(t, types.IsErrorCode(err, types.ErrNotFound))
	})

	t.Run("ListJobs", func(t *testing.T) {
		s := factory(t)
		base := baseTime()
		require.NoError(t, s.SaveJob(ctx, testJob("job-b", "wf-1", render.StatusSucceeded, base.Add(time.Minute))))
		require.NoError(t, s.SaveJob(ctx, testJob("job-a", "wf-1", render.StatusSucceeded, base)))
		require.NoError(t, s.SaveJob(ctx, testJob("job-c", "wf-2", render.StatusRunning, base.Add(2*time.Minute))))

		all, err := s.ListJobs(ctx, "")
		require.NoError(t, err)
		require.Len(t, all, 3)
		assert.Equal(t, "job-a", all[0].ID)
		assert.Equal(t, "job-b", all[1].ID)
		assert.Equal(t, "job-c", all[2].ID)

		scoped, err := s.ListJobs(ctx, "wf-1")
		require.NoError(t, err)
		require.Len(t, scoped, 2)
		assert.Equal(t, "job-a", scoped[0].ID)
		assert.Equal(t, "job-b", scoped[1].ID)
	})

	t.Run("Stats", func(t *testing.T) {
		s := factory(t)
		base := baseTime()
		require.NoError(t, s.SaveWorkflow(ctx, testWorkflow("wf-a", "主题一", workflow.StatusSucceeded, base)))
		require.NoError(t, s.SaveWorkflow(ctx, testWorkflow("wf-b", "主题二", workflow.StatusSucceeded, base)))
		require.NoError(t, s.SaveWorkflow(ctx, testWorkflow("wf-c", "主题三", workflow.StatusFailed, base)))
		require.NoError(t, s.SaveJob(ctx, testJob("job-1", "wf-a", render.StatusSucceeded, base)))

		stats, err := s.Stats(ctx)
		require.NoError(t, err)
		assert.NotEmpty(t, stats.Backend)
		assert.Equal(t, 3, stats.Workflows)
		assert.Equal(t, 1, stats.Jobs)
		assert.Equal(t, 2, stats.ByStatus[string(workflow.StatusSucceeded)])
		assert.Equal(t, 1, stats.ByStatus[string(workflow.StatusFailed)])
	})

	t.Run("Ping", func(t *testing.T) {
		s := factory(t)
		require.NoError(t, s.Ping(ctx))
	})

	t.Run("ClosedErrors", func(t *testing.T) {
		s := factory(t)
		require.NoError(t, s.Close())

		assertClosed := func(err error) {
			t.Helper()
			require.Error(t, err)
			assert.True(t, types.IsErrorCode(err, types.ErrStoreClosed))
		}
		assertClosed(s.SaveWorkflow(ctx, testWorkflow("wf-1", "x", workflow.StatusPending, baseTime())))
		_, err := s.GetWorkflow(ctx, "wf-1")
		assertClosed(err)
		_, err = s.ListWorkflows(ctx, workflow.Filter{})
		assertClosed(err)
		assertClosed(s.DeleteWorkflow(ctx, "wf-1"))
		assertClosed(s.SaveJob(ctx, testJob("job-1", "wf-1", render.StatusQueued, baseTime())))
		_, err = s.GetJob(ctx, "job-1")
		assertClosed(err)
		_, err = s.ListJobs(ctx, "")
		assertClosed(err)
		_, err = s.Stats(ctx)
		assertClosed(err)
		assertClosed(s.Ping(ctx))

		// 重复关闭安全
		require.NoError(t, s.Close())
	})

	t.Run("Prune", func(t *testing.T) {
		s := factory(t)
		pruner, ok := s.(Pruner)
		require.True(t, ok, "backend should support pruning")

		base := baseTime()
		old := testWorkflow("wf-old", "过期记录", workflow.StatusSucceeded, base.Add(-3*time.Hour))
		oldDone := base.Add(-2 * time.Hour)
		old.FinishedAt = &oldDone
		require.NoError(t, s.SaveWorkflow(ctx, old))

		fresh := testWorkflow("wf-new", "新鲜记录", workflow.StatusSucceeded, base.Add(-time.Minute))
		freshDone := base.Add(-time.Minute)
		fresh.FinishedAt = &freshDone
		require.NoError(t, s.SaveWorkflow(ctx, fresh))

		running := testWorkflow("wf-running", "运行中", workflow.StatusRunning, base.Add(-3*time.Hour))
		require.NoError(t, s.SaveWorkflow(ctx, running))

		oldJob := testJob("job-old", "wf-old", render.StatusSucceeded, base.Add(-3*time.Hour))
		oldJobDone := base.Add(-2 * time.Hour)
		oldJob.FinishedAt = &oldJobDone
		require.NoError(t, s.SaveJob(ctx, oldJob))

		freshJob := testJob("job-new", "wf-new", render.StatusSucceeded, base.Add(-time.Minute))
		freshJobDone := base.Add(-time.Minute)
		freshJob.FinishedAt = &freshJobDone
		require.NoError(t, s.SaveJob(ctx, freshJob))

		n, err := pruner.Prune(ctx, base.Add(-time.Hour))
		require.NoError(t, err)
		assert.Equal(t, 1, n)

		_, err = s.GetWorkflow(ctx, "wf-old")
		assert.True(t, types.IsErrorCode(err, types.ErrNotFound))
		_, err = s.GetWorkflow(ctx, "wf-new")
		assert.NoError(t, err)
		_, err = s.GetWorkflow(ctx, "wf-running")
		assert.NoError(t, err)

		_, err = s.GetJob(ctx, "job-old")
		assert.True(t, types.IsErrorCode(err, types.ErrNotFound))
		_, err = s.GetJob(ctx, "job-new")
		assert.NoError(t, err)
	})
}
