package workflow

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/BaSui01/clipflow/ai"
	"github.com/BaSui01/clipflow/render"
	"github.com/BaSui01/clipflow/types"
)

// =============================================================================
// 测试替身
// =============================================================================

type invocation struct {
	Capability ai.Capability
	Input      string
	Params     map[string]any
}

// scriptedInvoker 按能力返回脚本化结果，可用 fn 覆盖行为。
type scriptedInvoker struct {
	mu    sync.Mutex
	calls []invocation
	fn    func(ctx context.Context, call invocation) (*ai.Result, error)
}

func (s *scriptedInvoker) Invoke(ctx context.Context, capability ai.Capability, input string, params map[string]any) (*ai.Result, error) {
	call := invocation{Capability: capability, Input: input, Params: params}
	s.mu.Lock()
	s.calls = append(s.calls, call)
	s.mu.Unlock()
	if s.fn != nil {
		return s.fn(ctx, call)
	}
	return scriptedResult(call), nil
}

func (s *scriptedInvoker) invocations(capability ai.Capability) []invocation {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []invocation
	for _, c := range s.calls {
		if c.Capability == capability {
			out = append(out, c)
		}
	}
	return out
}

func scriptedResult(call invocation) *ai.Result {
	switch call.Capability {
	case ai.CapabilityContentGeneration:
		return &ai.Result{
			Provider: "fake-content",
			Output:   `{"title":"学习指南","script":"第一句。第二句。"}`,
		}
	case ai.CapabilityTranslation:
		return &ai.Result{Provider: "fake-translate", Output: "[译] " + call.Input}
	case ai.CapabilityIconMatching:
		return &ai.Result{
			Provider: "fake-icons",
			Output:   "fallback-icon",
			Raw: map[string]any{
				"matches": []any{
					map[string]any{"keyword": "学习", "icon": "icon-book"},
					map[string]any{"keyword": "方法", "icon": "icon-bulb"},
				},
			},
		}
	case ai.CapabilityTTS:
		return &ai.Result{
			Provider: "fake-tts",
			Output:   "/media/audio-test.mp3",
			Raw:      map[string]any{"duration": 12.0},
		}
	}
	return &ai.Result{Provider: "fake", Output: "ok"}
}

// fakeQueue 渲染队列替身。默认每个任务立即到达 final 状态，
// hold 为真时任务停留在 running，由测试自行驱动。
type fakeQueue struct {
	mu         sync.Mutex
	specs      []render.Spec
	jobs       map[string]*render.Job
	final      render.Status
	finalErr   string
	hold       bool
	submitHook func(attempt int) error
	attempts   int
	cancelled  []string
}

func newFakeQueue() *fakeQueue {
	return &fakeQueue{jobs: make(map[string]*render.Job), final: render.StatusSucceeded}
}

func (q *fakeQueue) Submit(ctx context.Context, spec render.Spec) (string, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.attempts++
	if q.submitHook != nil {
		if err := q.submitHook(q.attempts); err != nil {
			return "", err
		}
	}
	q.specs = append(q.specs, spec)
	id := fmt.Sprintf("job-%d", len(q.specs))
	job := &render.Job{ID: id, WorkflowID: spec.WorkflowID, TemplateID: spec.TemplateID, Status: render.StatusRunning}
	if !q.hold {
		job.Status = q.final
		switch q.final {
		case render.StatusSucceeded:
			job.OutputPath = "/media/" + id + ".mp4"
		case render.StatusFailed:
			job.Err = q.finalErr
		}
	}
	q.jobs[id] = job
	return id, nil
}

func (q *fakeQueue) Status(jobID string) (*render.Job, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	job, ok := q.jobs[jobID]
	if !ok {
		return nil, types.NewError(types.ErrRenderJobNotFound, "render job not found: "+jobID)
	}
	c := *job
	return &c, nil
}

func (q *fakeQueue) Cancel(jobID string) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.cancelled = append(q.cancelled, jobID)
	job, ok := q.jobs[jobID]
	if !ok || job.Status.IsTerminal() {
		return false
	}
	job.Status = render.StatusCancelled
	return true
}

func (q *fakeQueue) lastSpec(t *testing.T) render.Spec {
	t.Helper()
	q.mu.Lock()
	defer q.mu.Unlock()
	require.NotEmpty(t, q.specs)
	return q.specs[len(q.specs)-1]
}

func (q *fakeQueue) submitAttempts() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.attempts
}

func (q *fakeQueue) cancelledJobs() []string {
	q.mu.Lock()
	defer q.mu.Unlock()
	return append([]string(nil), q.cancelled...)
}

// memStore Store 替身，记录每次保存时的工作流状态。
type memStore struct {
	mu    sync.Mutex
	wfs   map[string]*Workflow
	saves []Status
}

func newMemStore() *memStore {
	return &memStore{wfs: make(map[string]*Workflow)}
}

func (m *memStore) SaveWorkflow(ctx context.Context, wf *Workflow) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.wfs[wf.ID] = wf.Clone()
	m.saves = append(m.saves, wf.Status)
	return nil
}

func (m *memStore) GetWorkflow(ctx context.Context, id string) (*Workflow, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	wf, ok := m.wfs[id]
	if !ok {
		return nil, types.NewError(types.ErrNotFound, "workflow not found: "+id)
	}
	return wf.Clone(), nil
}

func (m *memStore) ListWorkflows(ctx context.Context, filter Filter) ([]*Workflow, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*Workflow
	for _, wf := range m.wfs {
		if filter.Status != "" && wf.Status != filter.Status {
			continue
		}
		out = append(out, wf.Clone())
	}
	return out, nil
}

func (m *memStore) statuses() []Status {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Status(nil), m.saves...)
}

func newTestEngine(t *testing.T, inv Invoker, q RenderQueue, store Store, mutate func(*EngineConfig)) *Engine {
	t.Helper()
	cfg := DefaultEngineConfig()
	cfg.MediaDir = t.TempDir()
	cfg.RenderPollInterval = 5 * time.Millisecond
	if mutate != nil {
		mutate(cfg)
	}
	e := NewEngine(inv, q, store, cfg, nil, zap.NewNop())
	t.Cleanup(e.Close)
	return e
}

func waitTerminal(t *testing.T, e *Engine, id string) *Workflow {
	t.Helper()
	var wf *Workflow
	require.Eventually(t, func() bool {
		got, err := e.Get(context.Background(), id)
		if err != nil {
			return false
		}
		wf = got
		return got.Status.IsTerminal()
	}, 5*time.Second, 5*time.Millisecond)
	return wf
}

func boolPtr(b bool) *bool { return &b }

// =============================================================================
// 流水线行为
// =============================================================================

func TestEngineRequiredOnlyWorkflow(t *testing.T) {
	inv := &scriptedInvoker{}
	q := newFakeQueue()
	e := newTestEngine(t, inv, q, nil, nil)

	id, err := e.Submit(context.Background(), Request{Topic: "如何学习Python"})
	require.NoError(t, err)
	require.NotEmpty(t, id)

	wf := waitTerminal(t, e, id)
	require.Equal(t, StatusSucceeded, wf.Status)
	assert.Equal(t, 100.0, wf.Progress)
	require.NotNil(t, wf.StartedAt)
	require.NotNil(t, wf.FinishedAt)

	assert.Equal(t, StageStatusSucceeded, wf.Stage(StageContentGeneration).Status)
	assert.Equal(t, StageStatusSkipped, wf.Stage(StageTranslation).Status)
	assert.Equal(t, StageStatusSkipped, wf.Stage(StageIconMatching).Status)
	assert.Equal(t, StageStatusSucceeded, wf.Stage(StageTTS).Status)
	assert.Equal(t, StageStatusSucceeded, wf.Stage(StageRendering).Status)
	assert.Equal(t, "fake-content", wf.Stage(StageContentGeneration).Provider)
	assert.Equal(t, "fake-tts", wf.Stage(StageTTS).Provider)
	assert.Equal(t, 1, wf.Stage(StageContentGeneration).Attempts)

	assert.Equal(t, "学习指南", wf.Content.Title)
	assert.Equal(t, "第一句。第二句。", wf.Content.Script)
	assert.Equal(t, "zh-CN", wf.Content.Language)
	assert.Equal(t, "/media/audio-test.mp3", wf.Content.AudioFile)
	assert.Equal(t, filepath.Join(e.cfg.MediaDir, "subtitles_"+id+".srt"), wf.Content.SubtitleFile)
	_, statErr := os.Stat(wf.Content.SubtitleFile)
	assert.NoError(t, statErr)

	assert.Equal(t, "job-1", wf.RenderJobID)
	require.NotEmpty(t, wf.OutputFiles)
	assert.Equal(t, "/media/job-1.mp4", wf.OutputFiles[0])
	assert.Contains(t, wf.OutputFiles, "/media/audio-test.mp3")
	assert.Contains(t, wf.OutputFiles, wf.Content.SubtitleFile)

	// 可选能力未被调用
	assert.Empty(t, inv.invocations(ai.CapabilityTranslation))
	assert.Empty(t, inv.invocations(ai.CapabilityIconMatching))

	contentCalls := inv.invocations(ai.CapabilityContentGeneration)
	require.Len(t, contentCalls, 1)
	assert.Equal(t, "如何学习Python", contentCalls[0].Input)
	assert.Equal(t, "default", contentCalls[0].Params["style"])
	assert.Equal(t, 60, contentCalls[0].Params["duration"])
	assert.Equal(t, "zh-CN", contentCalls[0].Params["language"])

	ttsCalls := inv.invocations(ai.CapabilityTTS)
	require.Len(t, ttsCalls, 1)
	assert.Equal(t, "第一句。第二句。", ttsCalls[0].Input)
	assert.Equal(t, "zh-CN", ttsCalls[0].Params["language"])

	spec := q.lastSpec(t)
	assert.Equal(t, id, spec.WorkflowID)
	assert.Equal(t, TemplateSimpleText, spec.TemplateID)
	require.NotNil(t, spec.Settings)
	assert.Equal(t, render.QualityMedium, spec.Settings.Quality)
	assert.Equal(t, "学习指南", spec.Params["title"])
	assert.Equal(t, "/media/audio-test.mp3", spec.Params["audio_file"])
	assert.Equal(t, wf.Content.SubtitleFile, spec.Params["subtitle_file"])
}

func TestEngineFullPipeline(t *testing.T) {
	inv := &scriptedInvoker{}
	q := newFakeQueue()
	e := newTestEngine(t, inv, q, nil, nil)

	id, err := e.Submit(context.Background(), Request{
		Topic: "如何学习Python",
		Options: Options{
			EnableTranslation:  boolPtr(true),
			TargetLanguage:     "en-US",
			EnableIconMatching: boolPtr(true),
			IconCount:          3,
		},
	})
	require.NoError(t, err)

	wf := waitTerminal(t, e, id)
	require.Equal(t, StatusSucceeded, wf.Status)
	assert.Equal(t, StageStatusSucceeded, wf.Stage(StageTranslation).Status)
	assert.Equal(t, StageStatusSucceeded, wf.Stage(StageIconMatching).Status)

	trCalls := inv.invocations(ai.CapabilityTranslation)
	require.Len(t, trCalls, 1)
	assert.Equal(t, "第一句。第二句。", trCalls[0].Input)
	assert.Equal(t, "zh-CN", trCalls[0].Params["source"])
	assert.Equal(t, "en-US", trCalls[0].Params["target"])
	assert.Equal(t, "[译] 第一句。第二句。", wf.Content.TranslatedScript)

	// 图标匹配始终消费原始脚本
	iconCalls := inv.invocations(ai.CapabilityIconMatching)
	require.Len(t, iconCalls, 1)
	assert.Equal(t, "第一句。第二句。", iconCalls[0].Input)
	assert.Equal(t, 3, iconCalls[0].Params["count"])
	assert.Equal(t, []string{"icon-book", "icon-bulb"}, wf.Content.Icons)

	// TTS 消费译文
	ttsCalls := inv.invocations(ai.CapabilityTTS)
	require.Len(t, ttsCalls, 1)
	assert.Equal(t, "[译] 第一句。第二句。", ttsCalls[0].Input)
	assert.Equal(t, "en-US", ttsCalls[0].Params["language"])

	spec := q.lastSpec(t)
	icons, ok := spec.Params["icons"].([]string)
	require.True(t, ok)
	assert.Equal(t, []string{"icon-book", "icon-bulb"}, icons)
}

func TestEngineUserProvidedContent(t *testing.T) {
	inv := &scriptedInvoker{}
	q := newFakeQueue()
	e := newTestEngine(t, inv, q, nil, nil)

	id, err := e.Submit(context.Background(), Request{
		Topic:   "备用标题",
		Content: &VideoContent{Script: "用户自带的脚本。"},
	})
	require.NoError(t, err)

	wf := waitTerminal(t, e, id)
	require.Equal(t, StatusSucceeded, wf.Status)
	assert.Equal(t, "user-provided", wf.Stage(StageContentGeneration).Provider)
	assert.Equal(t, "备用标题", wf.Content.Title)
	assert.Equal(t, "用户自带的脚本。", wf.Content.Script)

	assert.Empty(t, inv.invocations(ai.CapabilityContentGeneration))
	ttsCalls := inv.invocations(ai.CapabilityTTS)
	require.Len(t, ttsCalls, 1)
	assert.Equal(t, "用户自带的脚本。", ttsCalls[0].Input)
}

func TestEngineOptionalStageDegrades(t *testing.T) {
	inv := &scriptedInvoker{}
	inv.fn = func(ctx context.Context, call invocation) (*ai.Result, error) {
		if call.Capability == ai.CapabilityTranslation {
			return nil, types.NewPermanentError("fake-translate", "quota exceeded")
		}
		return scriptedResult(call), nil
	}
	q := newFakeQueue()
	e := newTestEngine(t, inv, q, nil, nil)

	id, err := e.Submit(context.Background(), Request{
		Topic:   "如何学习Python",
		Options: Options{EnableTranslation: boolPtr(true)},
	})
	require.NoError(t, err)

	wf := waitTerminal(t, e, id)
	require.Equal(t, StatusSucceeded, wf.Status)
	assert.Equal(t, 100.0, wf.Progress)

	tr := wf.Stage(StageTranslation)
	assert.Equal(t, StageStatusDegraded, tr.Status)
	assert.Contains(t, tr.Error, "quota exceeded")
	assert.Empty(t, wf.Content.TranslatedScript)

	// 降级后 TTS 回退原始脚本
	ttsCalls := inv.invocations(ai.CapabilityTTS)
	require.Len(t, ttsCalls, 1)
	assert.Equal(t, "第一句。第二句。", ttsCalls[0].Input)
}

func TestEngineRequiredStageFailsWorkflow(t *testing.T) {
	inv := &scriptedInvoker{}
	inv.fn = func(ctx context.Context, call invocation) (*ai.Result, error) {
		if call.Capability == ai.CapabilityContentGeneration {
			return nil, types.NewError(types.ErrProviderAllExhausted, "all providers failed for ContentGeneration")
		}
		return scriptedResult(call), nil
	}
	q := newFakeQueue()
	e := newTestEngine(t, inv, q, nil, nil)

	id, err := e.Submit(context.Background(), Request{Topic: "如何学习Python"})
	require.NoError(t, err)

	wf := waitTerminal(t, e, id)
	require.Equal(t, StatusFailed, wf.Status)
	require.NotNil(t, wf.Error)
	assert.Equal(t, types.ErrStageFailed, wf.Error.Code)
	assert.Equal(t, "ContentGeneration", wf.Error.Stage)
	assert.Contains(t, wf.Error.Message, "ContentGeneration")
	assert.Contains(t, wf.Error.Message, string(types.ErrProviderAllExhausted))
	assert.Contains(t, wf.Error.Message, "all providers failed")

	assert.Equal(t, StageStatusFailed, wf.Stage(StageContentGeneration).Status)
	// 失败后不再推进后续阶段
	assert.Equal(t, StageStatusPending, wf.Stage(StageTTS).Status)
	assert.Equal(t, StageStatusPending, wf.Stage(StageRendering).Status)
	assert.Empty(t, inv.invocations(ai.CapabilityTTS))
	assert.Equal(t, 0, q.submitAttempts())
}

func TestEngineRenderFailureFailsWorkflow(t *testing.T) {
	inv := &scriptedInvoker{}
	q := newFakeQueue()
	q.final = render.StatusFailed
	q.finalErr = "render process exited with status 1"
	e := newTestEngine(t, inv, q, nil, nil)

	id, err := e.Submit(context.Background(), Request{Topic: "如何学习Python"})
	require.NoError(t, err)

	wf := waitTerminal(t, e, id)
	require.Equal(t, StatusFailed, wf.Status)
	require.NotNil(t, wf.Error)
	assert.Equal(t, "Rendering", wf.Error.Stage)
	assert.Contains(t, wf.Error.Message, string(types.ErrRenderJobFailed))
	assert.Contains(t, wf.Error.Message, "render process exited with status 1")
	assert.Equal(t, StageStatusFailed, wf.Stage(StageRendering).Status)
	assert.Equal(t, "job-1", wf.RenderJobID)
}

func TestEngineRenderCancelledExternally(t *testing.T) {
	inv := &scriptedInvoker{}
	q := newFakeQueue()
	q.hold = true
	e := newTestEngine(t, inv, q, nil, nil)

	id, err := e.Submit(context.Background(), Request{Topic: "如何学习Python"})
	require.NoError(t, err)

	var jobID string
	require.Eventually(t, func() bool {
		wf, err := e.Get(context.Background(), id)
		if err != nil {
			return false
		}
		jobID = wf.RenderJobID
		return jobID != ""
	}, 5*time.Second, 5*time.Millisecond)

	q.Cancel(jobID)

	wf := waitTerminal(t, e, id)
	require.Equal(t, StatusFailed, wf.Status)
	require.NotNil(t, wf.Error)
	assert.Contains(t, wf.Error.Message, "cancelled externally")
	assert.Equal(t, StageStatusFailed, wf.Stage(StageRendering).Status)
}

func TestEngineRenderSaturationRetries(t *testing.T) {
	inv := &scriptedInvoker{}
	q := newFakeQueue()
	q.submitHook = func(attempt int) error {
		if attempt <= 2 {
			return types.NewError(types.ErrRenderQueueSaturated, "render queue is full")
		}
		return nil
	}
	e := newTestEngine(t, inv, q, nil, nil)

	id, err := e.Submit(context.Background(), Request{Topic: "如何学习Python"})
	require.NoError(t, err)

	wf := waitTerminal(t, e, id)
	require.Equal(t, StatusSucceeded, wf.Status)
	assert.Equal(t, 3, q.submitAttempts())
}

// =============================================================================
// 取消
// =============================================================================

func TestEngineCancelMidPipeline(t *testing.T) {
	inv := &scriptedInvoker{}
	entered := make(chan struct{})
	var once sync.Once
	inv.fn = func(ctx context.Context, call invocation) (*ai.Result, error) {
		if call.Capability == ai.CapabilityTTS {
			once.Do(func() { close(entered) })
			<-ctx.Done()
			return nil, ctx.Err()
		}
		return scriptedResult(call), nil
	}
	q := newFakeQueue()
	e := newTestEngine(t, inv, q, nil, nil)

	id, err := e.Submit(context.Background(), Request{Topic: "如何学习Python"})
	require.NoError(t, err)

	select {
	case <-entered:
	case <-time.After(2 * time.Second):
		t.Fatal("tts stage was never entered")
	}
	require.NoError(t, e.Cancel(id))

	wf := waitTerminal(t, e, id)
	require.Equal(t, StatusCancelled, wf.Status)
	assert.Nil(t, wf.Error)
	assert.Equal(t, StageStatusSucceeded, wf.Stage(StageContentGeneration).Status)
	assert.Equal(t, StageStatusCancelled, wf.Stage(StageTTS).Status)
	assert.Equal(t, StageStatusCancelled, wf.Stage(StageRendering).Status)
	assert.Equal(t, StageStatusSkipped, wf.Stage(StageTranslation).Status)
	assert.Equal(t, 0, q.submitAttempts())

	// 终态取消是幂等空操作
	require.NoError(t, e.Cancel(id))
}

func TestEngineCancelDuringRender(t *testing.T) {
	inv := &scriptedInvoker{}
	q := newFakeQueue()
	q.hold = true
	e := newTestEngine(t, inv, q, nil, nil)

	id, err := e.Submit(context.Background(), Request{Topic: "如何学习Python"})
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		wf, err := e.Get(context.Background(), id)
		return err == nil && wf.RenderJobID != ""
	}, 5*time.Second, 5*time.Millisecond)

	require.NoError(t, e.Cancel(id))

	wf := waitTerminal(t, e, id)
	require.Equal(t, StatusCancelled, wf.Status)
	assert.Contains(t, q.cancelledJobs(), wf.RenderJobID)
}

func TestEngineCancelUnknownWorkflow(t *testing.T) {
	e := newTestEngine(t, &scriptedInvoker{}, newFakeQueue(), nil, nil)
	err := e.Cancel("missing")
	require.Error(t, err)
	assert.True(t, types.IsErrorCode(err, types.ErrWorkflowNotFound))
}

func TestEngineCloseCancelsRunning(t *testing.T) {
	inv := &scriptedInvoker{}
	entered := make(chan struct{})
	var once sync.Once
	inv.fn = func(ctx context.Context, call invocation) (*ai.Result, error) {
		if call.Capability == ai.CapabilityContentGeneration {
			once.Do(func() { close(entered) })
			<-ctx.Done()
			return nil, ctx.Err()
		}
		return scriptedResult(call), nil
	}
	q := newFakeQueue()
	e := newTestEngine(t, inv, q, nil, nil)

	id, err := e.Submit(context.Background(), Request{Topic: "如何学习Python"})
	require.NoError(t, err)

	select {
	case <-entered:
	case <-time.After(2 * time.Second):
		t.Fatal("content stage was never entered")
	}
	e.Close()

	wf, err := e.Get(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, StatusCancelled, wf.Status)

	_, err = e.Submit(context.Background(), Request{Topic: "之后的提交"})
	require.Error(t, err)
	assert.True(t, types.IsErrorCode(err, types.ErrEngineClosed))
}

// =============================================================================
// 提交与校验
// =============================================================================

func TestEngineSubmitValidation(t *testing.T) {
	e := newTestEngine(t, &scriptedInvoker{}, newFakeQueue(), nil, nil)
	ctx := context.Background()

	_, err := e.Submit(ctx, Request{})
	assert.True(t, types.IsErrorCode(err, types.ErrValidation))

	_, err = e.Submit(ctx, Request{Topic: "t", Options: Options{Quality: "ultra"}})
	assert.True(t, types.IsErrorCode(err, types.ErrValidation))

	_, err = e.Submit(ctx, Request{Topic: "t", Options: Options{Speed: -1}})
	assert.True(t, types.IsErrorCode(err, types.ErrValidation))

	cancelled, cancel := context.WithCancel(ctx)
	cancel()
	_, err = e.Submit(cancelled, Request{Topic: "t"})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestEngineSubmitBatch(t *testing.T) {
	inv := &scriptedInvoker{}
	q := newFakeQueue()
	e := newTestEngine(t, inv, q, nil, nil)
	ctx := context.Background()

	ids, err := e.SubmitBatch(ctx, []Request{
		{Topic: "番茄炒蛋做法"},
		{Topic: "早晨拉伸动作"},
		{Topic: "三分钟冥想引导"},
	})
	require.NoError(t, err)
	require.Len(t, ids, 3)
	seen := map[string]bool{}
	for _, id := range ids {
		require.NotEmpty(t, id)
		require.False(t, seen[id])
		seen[id] = true
		wf := waitTerminal(t, e, id)
		assert.Equal(t, StatusSucceeded, wf.Status)
	}

	_, err = e.SubmitBatch(ctx, []Request{{}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "request 0")
}

func TestEngineConcurrencyLimit(t *testing.T) {
	inv := &scriptedInvoker{}
	release := make(chan struct{})
	inv.fn = func(ctx context.Context, call invocation) (*ai.Result, error) {
		if call.Capability == ai.CapabilityContentGeneration {
			select {
			case <-release:
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		}
		return scriptedResult(call), nil
	}
	q := newFakeQueue()
	e := newTestEngine(t, inv, q, nil, func(cfg *EngineConfig) {
		cfg.MaxConcurrent = 1
	})
	ctx := context.Background()

	id1, err := e.Submit(ctx, Request{Topic: "主题一"})
	require.NoError(t, err)
	id2, err := e.Submit(ctx, Request{Topic: "主题二"})
	require.NoError(t, err)

	// 只有一个工作流拿到执行权，另一个停在 pending
	require.Eventually(t, func() bool {
		var running, pending int
		for _, id := range []string{id1, id2} {
			wf, err := e.Get(ctx, id)
			if err != nil {
				return false
			}
			switch wf.Status {
			case StatusRunning:
				running++
			case StatusPending:
				pending++
			}
		}
		return running == 1 && pending == 1
	}, 5*time.Second, 5*time.Millisecond)

	close(release)
	assert.Equal(t, StatusSucceeded, waitTerminal(t, e, id1).Status)
	assert.Equal(t, StatusSucceeded, waitTerminal(t, e, id2).Status)
}

// =============================================================================
// 查询、事件与统计
// =============================================================================

func TestEngineWatchEvents(t *testing.T) {
	inv := &scriptedInvoker{}
	release := make(chan struct{})
	inv.fn = func(ctx context.Context, call invocation) (*ai.Result, error) {
		if call.Capability == ai.CapabilityContentGeneration {
			select {
			case <-release:
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		}
		return scriptedResult(call), nil
	}
	q := newFakeQueue()
	e := newTestEngine(t, inv, q, nil, nil)

	id, err := e.Submit(context.Background(), Request{Topic: "如何学习Python"})
	require.NoError(t, err)

	events, stop, err := e.Watch(id)
	require.NoError(t, err)
	defer stop()
	close(release)

	var got []Event
	for ev := range events {
		got = append(got, ev)
	}
	require.NotEmpty(t, got)

	last := got[len(got)-1]
	assert.Equal(t, EventWorkflowFinished, last.Type)
	assert.Equal(t, StatusSucceeded, last.Status)
	assert.Equal(t, 100.0, last.Progress)

	prev := -1.0
	finished := map[StageName]StageStatus{}
	for _, ev := range got {
		assert.Equal(t, id, ev.WorkflowID)
		assert.GreaterOrEqual(t, ev.Progress, prev)
		prev = ev.Progress
		if ev.Type == EventStageFinished {
			finished[ev.Stage] = ev.StageStatus
		}
	}
	assert.Equal(t, StageStatusSucceeded, finished[StageContentGeneration])
	assert.Equal(t, StageStatusSucceeded, finished[StageTTS])
	assert.Equal(t, StageStatusSucceeded, finished[StageRendering])
}

func TestEngineWatchTerminalWorkflow(t *testing.T) {
	inv := &scriptedInvoker{}
	e := newTestEngine(t, inv, newFakeQueue(), nil, nil)

	id, err := e.Submit(context.Background(), Request{Topic: "如何学习Python"})
	require.NoError(t, err)
	waitTerminal(t, e, id)

	events, stop, err := e.Watch(id)
	require.NoError(t, err)
	defer stop()

	ev, ok := <-events
	require.True(t, ok)
	assert.Equal(t, EventWorkflowFinished, ev.Type)
	assert.Equal(t, StatusSucceeded, ev.Status)
	_, ok = <-events
	assert.False(t, ok)
}

func TestEngineWatchUnknownWorkflow(t *testing.T) {
	e := newTestEngine(t, &scriptedInvoker{}, newFakeQueue(), nil, nil)
	_, _, err := e.Watch("missing")
	require.Error(t, err)
	assert.True(t, types.IsErrorCode(err, types.ErrWorkflowNotFound))
}

func TestEngineProgressMidway(t *testing.T) {
	inv := &scriptedInvoker{}
	release := make(chan struct{})
	var once sync.Once
	entered := make(chan struct{})
	inv.fn = func(ctx context.Context, call invocation) (*ai.Result, error) {
		if call.Capability == ai.CapabilityTTS {
			once.Do(func() { close(entered) })
			select {
			case <-release:
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		}
		return scriptedResult(call), nil
	}
	q := newFakeQueue()
	e := newTestEngine(t, inv, q, nil, nil)

	id, err := e.Submit(context.Background(), Request{Topic: "如何学习Python"})
	require.NoError(t, err)

	select {
	case <-entered:
	case <-time.After(2 * time.Second):
		t.Fatal("tts stage was never entered")
	}

	// 可选阶段跳过后权重折算: 内容 30 / (30+20+30)
	wf, err := e.Get(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, StatusRunning, wf.Status)
	assert.Equal(t, 37.5, wf.Progress)
	assert.Equal(t, StageStatusRunning, wf.Stage(StageTTS).Status)

	close(release)
	assert.Equal(t, 100.0, waitTerminal(t, e, id).Progress)
}

func TestEngineStats(t *testing.T) {
	inv := &scriptedInvoker{}
	inv.fn = func(ctx context.Context, call invocation) (*ai.Result, error) {
		if call.Capability == ai.CapabilityContentGeneration && call.Input == "会失败的主题" {
			return nil, types.NewPermanentError("fake-content", "no provider available")
		}
		return scriptedResult(call), nil
	}
	q := newFakeQueue()
	e := newTestEngine(t, inv, q, nil, nil)
	ctx := context.Background()

	okID, err := e.Submit(ctx, Request{Topic: "如何学习Python"})
	require.NoError(t, err)
	badID, err := e.Submit(ctx, Request{Topic: "会失败的主题"})
	require.NoError(t, err)
	waitTerminal(t, e, okID)
	waitTerminal(t, e, badID)

	require.Eventually(t, func() bool {
		s := e.Stats()
		return s.Submitted == 2 && s.Succeeded == 1 && s.Failed == 1 && s.Active == 0
	}, 2*time.Second, 5*time.Millisecond)
}

func TestEngineListInMemory(t *testing.T) {
	inv := &scriptedInvoker{}
	e := newTestEngine(t, inv, newFakeQueue(), nil, nil)
	ctx := context.Background()

	topics := []string{"番茄炒蛋做法", "Python 学习路线", "Python 异步编程"}
	ids := make([]string, 0, len(topics))
	for _, topic := range topics {
		id, err := e.Submit(ctx, Request{Topic: topic})
		require.NoError(t, err)
		ids = append(ids, id)
		waitTerminal(t, e, id)
	}

	all, err := e.List(ctx, Filter{})
	require.NoError(t, err)
	require.Len(t, all, 3)
	// 按创建时间倒序
	assert.Equal(t, "Python 异步编程", all[0].Topic)
	assert.Equal(t, "番茄炒蛋做法", all[2].Topic)

	byTopic, err := e.List(ctx, Filter{Topic: "Python"})
	require.NoError(t, err)
	assert.Len(t, byTopic, 2)

	byStatus, err := e.List(ctx, Filter{Status: StatusSucceeded})
	require.NoError(t, err)
	assert.Len(t, byStatus, 3)

	limited, err := e.List(ctx, Filter{Limit: 2})
	require.NoError(t, err)
	assert.Len(t, limited, 2)

	offset, err := e.List(ctx, Filter{Offset: 2})
	require.NoError(t, err)
	require.Len(t, offset, 1)
	assert.Equal(t, "番茄炒蛋做法", offset[0].Topic)

	beyond, err := e.List(ctx, Filter{Offset: 10})
	require.NoError(t, err)
	assert.Empty(t, beyond)
}

func TestEngineGetReturnsCopy(t *testing.T) {
	inv := &scriptedInvoker{}
	e := newTestEngine(t, inv, newFakeQueue(), nil, nil)

	id, err := e.Submit(context.Background(), Request{Topic: "如何学习Python"})
	require.NoError(t, err)
	wf := waitTerminal(t, e, id)

	wf.Topic = "mutated"
	wf.Stages[0].Status = StageStatusFailed

	again, err := e.Get(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, "如何学习Python", again.Topic)
	assert.Equal(t, StageStatusSucceeded, again.Stages[0].Status)
}

// =============================================================================
// 持久化与恢复
// =============================================================================

func TestEnginePersistsTransitions(t *testing.T) {
	inv := &scriptedInvoker{}
	store := newMemStore()
	e := newTestEngine(t, inv, newFakeQueue(), store, nil)

	id, err := e.Submit(context.Background(), Request{Topic: "如何学习Python"})
	require.NoError(t, err)
	waitTerminal(t, e, id)

	require.Eventually(t, func() bool {
		stored, err := store.GetWorkflow(context.Background(), id)
		return err == nil && stored.Status == StatusSucceeded
	}, 2*time.Second, 5*time.Millisecond)

	saves := store.statuses()
	require.NotEmpty(t, saves)
	assert.Equal(t, StatusPending, saves[0])
	assert.Contains(t, saves, StatusRunning)
	assert.Equal(t, StatusSucceeded, saves[len(saves)-1])
}

func TestEngineGetFallsBackToStore(t *testing.T) {
	store := newMemStore()
	seed := &Workflow{ID: "wf-1", Topic: "seeded", Status: StatusSucceeded, CreatedAt: time.Now()}
	require.NoError(t, store.SaveWorkflow(context.Background(), seed))

	e := newTestEngine(t, &scriptedInvoker{}, newFakeQueue(), store, nil)

	wf, err := e.Get(context.Background(), "wf-1")
	require.NoError(t, err)
	assert.Equal(t, "seeded", wf.Topic)

	_, err = e.Get(context.Background(), "missing")
	require.Error(t, err)
	assert.True(t, types.IsErrorCode(err, types.ErrWorkflowNotFound))
}

func TestEngineRecover(t *testing.T) {
	store := newMemStore()
	ctx := context.Background()
	now := time.Now()
	for _, seed := range []*Workflow{
		{ID: "wf-running", Status: StatusRunning, CreatedAt: now},
		{ID: "wf-pending", Status: StatusPending, CreatedAt: now},
		{ID: "wf-done", Status: StatusSucceeded, CreatedAt: now},
	} {
		require.NoError(t, store.SaveWorkflow(ctx, seed))
	}

	e := newTestEngine(t, &scriptedInvoker{}, newFakeQueue(), store, nil)
	n, err := e.Recover(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	for _, id := range []string{"wf-running", "wf-pending"} {
		wf, err := store.GetWorkflow(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, StatusFailed, wf.Status, id)
		require.NotNil(t, wf.Error, id)
		assert.Contains(t, wf.Error.Message, "process restarted")
		assert.NotNil(t, wf.FinishedAt, id)
	}

	done, err := store.GetWorkflow(ctx, "wf-done")
	require.NoError(t, err)
	assert.Equal(t, StatusSucceeded, done.Status)
	assert.Nil(t, done.Error)
}

func TestEngineRecoverWithoutStore(t *testing.T) {
	e := newTestEngine(t, &scriptedInvoker{}, newFakeQueue(), nil, nil)
	n, err := e.Recover(context.Background())
	require.NoError(t, err)
	assert.Zero(t, n)
}

// =============================================================================
// 内部辅助
// =============================================================================

func TestIconsFromResult(t *testing.T) {
	// 缓存 JSON round-trip 后的形态
	res := &ai.Result{Output: "fallback", Raw: map[string]any{"matches": []any{
		map[string]any{"keyword": "k", "icon": "icon-a"},
		map[string]any{"icon": "icon-b"},
		map[string]any{"keyword": "no-icon"},
	}}}
	assert.Equal(t, []string{"icon-a", "icon-b"}, iconsFromResult(res))

	// 结构化切片经 JSON 归一化
	type match struct {
		Keyword string `json:"keyword"`
		Icon    string `json:"icon"`
	}
	res = &ai.Result{Raw: map[string]any{"matches": []match{{Keyword: "k", Icon: "icon-x"}}}}
	assert.Equal(t, []string{"icon-x"}, iconsFromResult(res))

	// 无 matches 时回退 Output
	res = &ai.Result{Output: "plain-icon"}
	assert.Equal(t, []string{"plain-icon"}, iconsFromResult(res))

	res = &ai.Result{Output: "fb", Raw: map[string]any{"matches": []any{}}}
	assert.Equal(t, []string{"fb"}, iconsFromResult(res))

	res = &ai.Result{}
	assert.Nil(t, iconsFromResult(res))
}

func TestDurationFromResult(t *testing.T) {
	assert.Equal(t, 12.5, durationFromResult(&ai.Result{Raw: map[string]any{"duration": 12.5}}, "ignored"))
	assert.Equal(t, 7.0, durationFromResult(&ai.Result{Raw: map[string]any{"duration": 7}}, "ignored"))
	assert.Equal(t, 2.0, durationFromResult(&ai.Result{}, "abcdef"))
}

func TestComputeProgress(t *testing.T) {
	wf := &Workflow{Stages: []StageRecord{
		{Name: StageContentGeneration, Status: StageStatusSucceeded},
		{Name: StageTranslation, Status: StageStatusSkipped},
		{Name: StageIconMatching, Status: StageStatusSkipped},
		{Name: StageTTS, Status: StageStatusRunning},
		{Name: StageRendering, Status: StageStatusPending},
	}}
	assert.Equal(t, 37.5, computeProgress(wf))

	all := &Workflow{Stages: []StageRecord{
		{Name: StageContentGeneration, Status: StageStatusSucceeded},
		{Name: StageTranslation, Status: StageStatusDegraded},
		{Name: StageIconMatching, Status: StageStatusPending},
		{Name: StageTTS, Status: StageStatusPending},
		{Name: StageRendering, Status: StageStatusPending},
	}}
	assert.Equal(t, 40.0, computeProgress(all))

	empty := &Workflow{}
	assert.Equal(t, 0.0, computeProgress(empty))
}
