package workflow

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/BaSui01/clipflow/ai"
	"github.com/BaSui01/clipflow/internal/metrics"
	"github.com/BaSui01/clipflow/render"
	"github.com/BaSui01/clipflow/types"
)

// Invoker AI 能力调用入口。
type Invoker interface {
	Invoke(ctx context.Context, capability ai.Capability, input string, params map[string]any) (*ai.Result, error)
}

// RenderQueue 渲染队列入口。
type RenderQueue interface {
	Submit(ctx context.Context, spec render.Spec) (string, error)
	Status(jobID string) (*render.Job, error)
	Cancel(jobID string) bool
}

// EngineConfig 工作流引擎配置。
type EngineConfig struct {
	// 同时运行的工作流上限
	MaxConcurrent int
	// 未显式指定时是否启用翻译阶段
	EnableTranslation bool
	// 未显式指定时是否启用图标匹配阶段
	EnableIconMatching bool
	// 语言无法从输入推断时的缺省语言
	DefaultLanguage string
	// 缺省内容风格
	DefaultStyle string
	// 缺省目标时长（秒）
	TargetDuration int
	// 缺省渲染画质
	DefaultQuality string
	// 字幕等产物的输出目录
	MediaDir string
	// 渲染任务状态的轮询间隔
	RenderPollInterval time.Duration
}

// DefaultEngineConfig 返回默认引擎配置。
func DefaultEngineConfig() *EngineConfig {
	return &EngineConfig{
		MaxConcurrent:      4,
		EnableTranslation:  false,
		EnableIconMatching: false,
		DefaultLanguage:    "zh-CN",
		DefaultStyle:       "default",
		TargetDuration:     60,
		DefaultQuality:     "medium",
		MediaDir:           "./media",
		RenderPollInterval: 2 * time.Second,
	}
}

// 进度权重。跳过的阶段不参与折算。
var stageWeights = map[StageName]float64{
	StageContentGeneration: 30,
	StageTranslation:       10,
	StageIconMatching:      10,
	StageTTS:               20,
	StageRendering:         30,
}

// requiredStages 必选阶段失败即工作流失败。
var requiredStages = map[StageName]bool{
	StageContentGeneration: true,
	StageTTS:               true,
	StageRendering:         true,
}

type runHandle struct {
	cancel context.CancelFunc
	// 调用方请求过取消
	intent atomic.Bool
}

// Engine 工作流引擎。
//
// 驱动固定顺序的阶段流水线，AI 阶段委托给编排器，渲染阶段委托给
// 渲染队列。多个工作流并发运行，单个工作流内阶段严格串行。
type Engine struct {
	invoker   Invoker
	queue     RenderQueue
	store     Store
	cfg       *EngineConfig
	collector *metrics.Collector
	tracer    trace.Tracer
	logger    *zap.Logger

	mu        sync.RWMutex
	workflows map[string]*Workflow
	runs      map[string]*runHandle

	watchMu  sync.Mutex
	watchers map[string][]chan Event

	sem    chan struct{}
	closed atomic.Bool
	wg     sync.WaitGroup

	submitted atomic.Int64
	succeeded atomic.Int64
	failed    atomic.Int64
	cancelled atomic.Int64
}

// NewEngine 创建工作流引擎。store 与 collector 可以为 nil。
func NewEngine(invoker Invoker, queue RenderQueue, store Store, cfg *EngineConfig, collector *metrics.Collector, logger *zap.Logger) *Engine {
	if cfg == nil {
		cfg = DefaultEngineConfig()
	}
	if cfg.MaxConcurrent < 1 {
		cfg.MaxConcurrent = 1
	}
	if cfg.RenderPollInterval <= 0 {
		cfg.RenderPollInterval = 2 * time.Second
	}
	if cfg.MediaDir == "" {
		cfg.MediaDir = "./media"
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Engine{
		invoker:   invoker,
		queue:     queue,
		store:     store,
		cfg:       cfg,
		collector: collector,
		tracer:    otel.Tracer("github.com/BaSui01/clipflow/workflow"),
		logger:    logger.With(zap.String("component", "workflow_engine")),
		workflows: make(map[string]*Workflow),
		runs:      make(map[string]*runHandle),
		watchers:  make(map[string][]chan Event),
		sem:       make(chan struct{}, cfg.MaxConcurrent),
	}
}

// Submit 创建工作流并异步启动执行，立即返回工作流 ID。
func (e *Engine) Submit(ctx context.Context, req Request) (string, error) {
	if e.closed.Load() {
		return "", types.NewError(types.ErrEngineClosed, "workflow engine is closed")
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if err := req.Validate(); err != nil {
		return "", err
	}

	wf := e.newWorkflow(req)

	rctx, cancel := context.WithCancel(context.Background())
	h := &runHandle{cancel: cancel}

	e.mu.Lock()
	e.workflows[wf.ID] = wf
	e.runs[wf.ID] = h
	snap := wf.Clone()
	e.mu.Unlock()

	e.submitted.Add(1)
	e.persist(snap)
	e.logger.Info("创建工作流",
		zap.String("workflow_id", wf.ID),
		zap.String("topic", wf.Topic),
		zap.String("style", wf.Options.Style),
		zap.Bool("translation", *wf.Options.EnableTranslation),
		zap.Bool("icon_matching", *wf.Options.EnableIconMatching))

	e.wg.Add(1)
	go e.runWorkflow(rctx, wf.ID, h)
	return wf.ID, nil
}

// SubmitBatch 并发提交一批工作流。
// 部分失败时返回首个错误，已提交成功的工作流继续运行。
func (e *Engine) SubmitBatch(ctx context.Context, reqs []Request) ([]string, error) {
	ids := make([]string, len(reqs))
	g, gctx := errgroup.WithContext(ctx)
	for i, req := range reqs {
		i, req := i, req
		g.Go(func() error {
			id, err := e.Submit(gctx, req)
			if err != nil {
				return fmt.Errorf("request %d: %w", i, err)
			}
			ids[i] = id
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return ids, err
	}
	return ids, nil
}

// newWorkflow 把请求物化为初始工作流记录。
func (e *Engine) newWorkflow(req Request) *Workflow {
	opts := e.resolveOptions(req)

	content := VideoContent{
		Language:       opts.Language,
		Style:          opts.Style,
		TargetDuration: opts.TargetDuration,
	}
	if req.Content != nil {
		user := req.Content.Clone()
		content.Title = user.Title
		content.Script = user.Script
		content.TranslatedScript = user.TranslatedScript
		content.AudioFile = user.AudioFile
		if len(user.Icons) > 0 {
			content.Icons = user.Icons
		}
		if user.Language != "" {
			content.Language = user.Language
		}
		if user.Style != "" {
			content.Style = user.Style
		}
		if user.TargetDuration > 0 {
			content.TargetDuration = user.TargetDuration
		}
	}

	stages := make([]StageRecord, 0, len(StageOrder))
	for _, name := range StageOrder {
		status := StageStatusPending
		if name == StageTranslation && !*opts.EnableTranslation {
			status = StageStatusSkipped
		}
		if name == StageIconMatching && !*opts.EnableIconMatching {
			status = StageStatusSkipped
		}
		stages = append(stages, StageRecord{Name: name, Status: status})
	}

	return &Workflow{
		ID:        uuid.NewString(),
		Topic:     req.Topic,
		Options:   opts,
		Status:    StatusPending,
		Stages:    stages,
		Content:   content,
		CreatedAt: time.Now(),
	}
}

// resolveOptions 把请求选项补全成确定值，之后行为不再依赖引擎配置。
func (e *Engine) resolveOptions(req Request) Options {
	o := req.Options
	if o.Style == "" {
		o.Style = e.cfg.DefaultStyle
	}
	if o.TargetDuration <= 0 {
		o.TargetDuration = e.cfg.TargetDuration
	}
	if o.Language == "" {
		switch {
		case req.Content != nil && req.Content.Language != "":
			o.Language = req.Content.Language
		case req.Content != nil && req.Content.Script != "":
			o.Language = DetectLanguage(req.Content.Script)
		case req.Topic != "":
			o.Language = DetectLanguage(req.Topic)
		default:
			o.Language = e.cfg.DefaultLanguage
		}
	}
	translation := o.translationEnabled(e.cfg.EnableTranslation)
	o.EnableTranslation = &translation
	icons := o.iconMatchingEnabled(e.cfg.EnableIconMatching)
	o.EnableIconMatching = &icons
	if translation && o.TargetLanguage == "" {
		o.TargetLanguage = "zh-CN"
	}
	if icons && o.IconCount <= 0 {
		o.IconCount = 5
	}
	if o.Speed == 0 {
		o.Speed = 1.0
	}
	if o.Quality == "" {
		o.Quality = e.cfg.DefaultQuality
	}
	return o
}

// Get 返回工作流记录。内存优先，进程重启后回落持久层。
func (e *Engine) Get(ctx context.Context, id string) (*Workflow, error) {
	e.mu.RLock()
	wf := e.workflows[id]
	var snap *Workflow
	if wf != nil {
		snap = wf.Clone()
	}
	e.mu.RUnlock()
	if snap != nil {
		return snap, nil
	}

	if e.store != nil {
		stored, err := e.store.GetWorkflow(ctx, id)
		if err == nil {
			return stored, nil
		}
		if !types.IsErrorCode(err, types.ErrNotFound) {
			return nil, err
		}
	}
	return nil, types.NewError(types.ErrWorkflowNotFound, fmt.Sprintf("workflow %s not found", id))
}

// List 按过滤条件列出工作流。配置了持久层时以持久层为准。
func (e *Engine) List(ctx context.Context, filter Filter) ([]*Workflow, error) {
	if e.store != nil {
		return e.store.ListWorkflows(ctx, filter)
	}

	e.mu.RLock()
	all := make([]*Workflow, 0, len(e.workflows))
	for _, wf := range e.workflows {
		all = append(all, wf.Clone())
	}
	e.mu.RUnlock()

	sort.Slice(all, func(i, j int) bool { return all[i].CreatedAt.After(all[j].CreatedAt) })

	out := make([]*Workflow, 0, len(all))
	for _, wf := range all {
		if filter.Status != "" && wf.Status != filter.Status {
			continue
		}
		if filter.Topic != "" && !strings.Contains(wf.Topic, filter.Topic) {
			continue
		}
		out = append(out, wf)
	}
	if filter.Offset > 0 {
		if filter.Offset >= len(out) {
			return nil, nil
		}
		out = out[filter.Offset:]
	}
	if filter.Limit > 0 && len(out) > filter.Limit {
		out = out[:filter.Limit]
	}
	return out, nil
}

// Cancel 协作取消工作流。终态工作流是幂等空操作。
func (e *Engine) Cancel(id string) error {
	e.mu.RLock()
	wf := e.workflows[id]
	h := e.runs[id]
	var jobID string
	terminal := false
	if wf != nil {
		terminal = wf.Status.IsTerminal()
		jobID = wf.RenderJobID
	}
	e.mu.RUnlock()

	if wf == nil {
		return types.NewError(types.ErrWorkflowNotFound, fmt.Sprintf("workflow %s not found", id))
	}
	if terminal {
		return nil
	}

	if h != nil {
		h.intent.Store(true)
		h.cancel()
	}
	if jobID != "" && e.queue != nil {
		e.queue.Cancel(jobID)
	}
	e.logger.Info("工作流取消请求已下发", zap.String("workflow_id", id))
	return nil
}

// Watch 订阅工作流进度事件。返回的取消函数必须调用以释放订阅。
// 已终结的工作流立即收到最终事件后通道关闭。
func (e *Engine) Watch(id string) (<-chan Event, func(), error) {
	e.mu.RLock()
	wf := e.workflows[id]
	var snap *Workflow
	if wf != nil {
		snap = wf.Clone()
	}
	e.mu.RUnlock()
	if snap == nil {
		return nil, nil, types.NewError(types.ErrWorkflowNotFound, fmt.Sprintf("workflow %s not found", id))
	}

	ch := make(chan Event, 16)

	e.watchMu.Lock()
	defer e.watchMu.Unlock()
	if snap.Status.IsTerminal() {
		ch <- Event{
			Type:       EventWorkflowFinished,
			WorkflowID: id,
			Status:     snap.Status,
			Progress:   snap.Progress,
			At:         time.Now(),
		}
		close(ch)
		return ch, func() {}, nil
	}
	e.watchers[id] = append(e.watchers[id], ch)
	cancel := func() { e.removeWatcher(id, ch) }
	return ch, cancel, nil
}

func (e *Engine) removeWatcher(id string, ch chan Event) {
	e.watchMu.Lock()
	defer e.watchMu.Unlock()
	list := e.watchers[id]
	for i, c := range list {
		if c == ch {
			e.watchers[id] = append(list[:i], list[i+1:]...)
			close(c)
			return
		}
	}
}

// emit 推送事件。慢消费者丢事件而不是阻塞流水线。
func (e *Engine) emit(ev Event) {
	ev.At = time.Now()
	e.watchMu.Lock()
	defer e.watchMu.Unlock()
	for _, ch := range e.watchers[ev.WorkflowID] {
		select {
		case ch <- ev:
		default:
		}
	}
}

func (e *Engine) closeWatchers(id string) {
	e.watchMu.Lock()
	defer e.watchMu.Unlock()
	for _, ch := range e.watchers[id] {
		close(ch)
	}
	delete(e.watchers, id)
}

// EngineStats 引擎统计。
type EngineStats struct {
	Submitted int64 `json:"submitted"`
	Active    int   `json:"active"`
	Succeeded int64 `json:"succeeded"`
	Failed    int64 `json:"failed"`
	Cancelled int64 `json:"cancelled"`
}

// Stats 返回统计快照。
func (e *Engine) Stats() EngineStats {
	e.mu.RLock()
	active := len(e.runs)
	e.mu.RUnlock()
	return EngineStats{
		Submitted: e.submitted.Load(),
		Active:    active,
		Succeeded: e.succeeded.Load(),
		Failed:    e.failed.Load(),
		Cancelled: e.cancelled.Load(),
	}
}

// Recover 把上次进程中断遗留的未终结记录标记为失败。
// 应在启动接收新请求之前调用，返回处理的记录数。
func (e *Engine) Recover(ctx context.Context) (int, error) {
	if e.store == nil {
		return 0, nil
	}
	count := 0
	for _, status := range []Status{StatusPending, StatusRunning} {
		wfs, err := e.store.ListWorkflows(ctx, Filter{Status: status})
		if err != nil {
			return count, fmt.Errorf("list interrupted workflows: %w", err)
		}
		for _, wf := range wfs {
			wf.Status = StatusFailed
			wf.Error = types.NewError(types.ErrInternal, "process restarted during execution")
			now := time.Now()
			wf.FinishedAt = &now
			if err := e.store.SaveWorkflow(ctx, wf); err != nil {
				return count, fmt.Errorf("mark workflow %s failed: %w", wf.ID, err)
			}
			count++
		}
	}
	if count > 0 {
		e.logger.Warn("已标记进程中断遗留的工作流", zap.Int("count", count))
	}
	return count, nil
}

// Close 取消所有运行中的工作流并等待退出。
func (e *Engine) Close() {
	if e.closed.Swap(true) {
		return
	}
	e.mu.RLock()
	handles := make([]*runHandle, 0, len(e.runs))
	for _, h := range e.runs {
		handles = append(handles, h)
	}
	e.mu.RUnlock()
	for _, h := range handles {
		h.cancel()
	}
	e.wg.Wait()
}

// =============================================================================
// 执行流水线
// =============================================================================

func (e *Engine) runWorkflow(ctx context.Context, id string, h *runHandle) {
	defer e.wg.Done()

	// Submit 不阻塞，并发上限在 run goroutine 这里排队
	select {
	case e.sem <- struct{}{}:
		defer func() { <-e.sem }()
	case <-ctx.Done():
		e.finish(id, StatusCancelled, nil)
		return
	}
	if ctx.Err() != nil || h.intent.Load() {
		e.finish(id, StatusCancelled, nil)
		return
	}

	ctx, span := e.tracer.Start(ctx, "workflow.Run",
		trace.WithAttributes(attribute.String("workflow.id", id)))
	defer span.End()

	now := time.Now()
	e.update(id, func(wf *Workflow) {
		wf.Status = StatusRunning
		wf.StartedAt = &now
	})
	e.logger.Info("开始执行工作流", zap.String("workflow_id", id))

	for _, name := range StageOrder {
		if ctx.Err() != nil || h.intent.Load() {
			e.finish(id, StatusCancelled, nil)
			return
		}
		snap := e.snapshot(id)
		if snap == nil {
			return
		}
		if snap.Stage(name).Status == StageStatusSkipped {
			continue
		}

		err := e.executeStage(ctx, id, name, h)
		if err == nil {
			continue
		}
		if runCancelled(ctx, h, err) {
			e.finish(id, StatusCancelled, nil)
			return
		}
		if requiredStages[name] {
			span.RecordError(err)
			e.finish(id, StatusFailed, stageFailure(name, err))
			return
		}
		// 可选阶段降级，继续后续阶段
	}

	e.finish(id, StatusSucceeded, nil)
}

// executeStage 执行单个阶段并维护其记录、事件与指标。
func (e *Engine) executeStage(ctx context.Context, id string, name StageName, h *runHandle) error {
	ctx, span := e.tracer.Start(ctx, "workflow.Stage",
		trace.WithAttributes(attribute.String("workflow.stage", string(name))))
	defer span.End()

	started := time.Now()
	snap := e.update(id, func(wf *Workflow) {
		st := wf.Stage(name)
		st.Status = StageStatusRunning
		st.Attempts++
		st.StartedAt = &started
	})
	e.emit(Event{
		Type:        EventStageStarted,
		WorkflowID:  id,
		Stage:       name,
		StageStatus: StageStatusRunning,
		Progress:    snap.Progress,
	})

	var provider string
	var err error
	switch name {
	case StageContentGeneration:
		provider, err = e.stageContent(ctx, id)
	case StageTranslation:
		provider, err = e.stageTranslation(ctx, id)
	case StageIconMatching:
		provider, err = e.stageIcons(ctx, id)
	case StageTTS:
		provider, err = e.stageTTS(ctx, id)
	case StageRendering:
		provider, err = e.stageRender(ctx, id)
	}

	status := StageStatusSucceeded
	switch {
	case err == nil:
	case runCancelled(ctx, h, err):
		status = StageStatusCancelled
	case requiredStages[name]:
		status = StageStatusFailed
	default:
		status = StageStatusDegraded
	}

	finished := time.Now()
	snap = e.update(id, func(wf *Workflow) {
		st := wf.Stage(name)
		st.Status = status
		st.Provider = provider
		st.FinishedAt = &finished
		if err != nil {
			st.Error = publicMessage(err)
		}
		wf.Progress = computeProgress(wf)
	})

	e.collector.RecordStage(string(name), string(status), finished.Sub(started))
	e.emit(Event{
		Type:        EventStageFinished,
		WorkflowID:  id,
		Stage:       name,
		StageStatus: status,
		Progress:    snap.Progress,
		Message:     snap.Stage(name).Error,
	})

	switch status {
	case StageStatusSucceeded:
		e.logger.Info("阶段完成",
			zap.String("workflow_id", id),
			zap.String("stage", string(name)),
			zap.String("provider", provider),
			zap.Duration("elapsed", finished.Sub(started)))
	case StageStatusDegraded:
		e.logger.Warn("可选阶段降级",
			zap.String("workflow_id", id),
			zap.String("stage", string(name)),
			zap.Error(err))
	case StageStatusFailed:
		span.RecordError(err)
		e.logger.Error("阶段失败",
			zap.String("workflow_id", id),
			zap.String("stage", string(name)),
			zap.Error(err))
	}
	return err
}

// finish 置终态并收尾: 统计、指标、事件、订阅关闭、句柄回收。
func (e *Engine) finish(id string, status Status, terminalErr *types.Error) {
	now := time.Now()
	snap := e.update(id, func(wf *Workflow) {
		if wf.Status.IsTerminal() {
			return
		}
		wf.Status = status
		wf.FinishedAt = &now
		switch status {
		case StatusSucceeded:
			wf.Progress = 100
			wf.OutputFiles = collectOutputs(wf)
		case StatusCancelled:
			wf.Error = nil
			for i := range wf.Stages {
				if !wf.Stages[i].Status.IsTerminal() {
					wf.Stages[i].Status = StageStatusCancelled
				}
			}
		case StatusFailed:
			wf.Error = terminalErr
		}
	})
	if snap == nil {
		return
	}

	var elapsed time.Duration
	if snap.StartedAt != nil {
		elapsed = now.Sub(*snap.StartedAt)
	}
	switch status {
	case StatusSucceeded:
		e.succeeded.Add(1)
		e.logger.Info("工作流完成",
			zap.String("workflow_id", id),
			zap.Strings("outputs", snap.OutputFiles),
			zap.Duration("elapsed", elapsed))
	case StatusFailed:
		e.failed.Add(1)
		e.logger.Error("工作流失败",
			zap.String("workflow_id", id),
			zap.String("error", snap.Error.Message),
			zap.Duration("elapsed", elapsed))
	case StatusCancelled:
		e.cancelled.Add(1)
		e.logger.Info("工作流已取消", zap.String("workflow_id", id), zap.Duration("elapsed", elapsed))
	}
	e.collector.RecordWorkflow(string(status), elapsed)

	e.emit(Event{
		Type:       EventWorkflowFinished,
		WorkflowID: id,
		Status:     status,
		Progress:   snap.Progress,
		Message:    errMessage(snap.Error),
	})
	e.closeWatchers(id)

	e.mu.Lock()
	delete(e.runs, id)
	e.mu.Unlock()
}

// =============================================================================
// 阶段处理器
// =============================================================================

// stageContent 内容生成。用户已提供脚本时只做整理，不调用 Provider。
func (e *Engine) stageContent(ctx context.Context, id string) (string, error) {
	wf := e.snapshot(id)

	if wf.Content.Script != "" {
		e.update(id, func(w *Workflow) {
			if w.Content.Title == "" {
				w.Content.Title = w.Topic
			}
		})
		return "user-provided", nil
	}

	params := map[string]any{
		"style":    wf.Content.Style,
		"duration": wf.Content.TargetDuration,
		"language": wf.Content.Language,
	}
	res, err := e.invoker.Invoke(ctx, ai.CapabilityContentGeneration, wf.Topic, params)
	if err != nil {
		return "", err
	}
	e.update(id, func(w *Workflow) {
		ParseContent(&w.Content, w.Topic, res.Output)
	})
	return res.Provider, nil
}

// stageTranslation 翻译。失败由调用方降级，译文保持为空。
func (e *Engine) stageTranslation(ctx context.Context, id string) (string, error) {
	wf := e.snapshot(id)

	params := map[string]any{
		"source": wf.Content.Language,
		"target": wf.Options.TargetLanguage,
	}
	res, err := e.invoker.Invoke(ctx, ai.CapabilityTranslation, wf.Content.Script, params)
	if err != nil {
		return "", err
	}
	e.update(id, func(w *Workflow) {
		w.Content.TranslatedScript = res.Output
	})
	return res.Provider, nil
}

// stageIcons 图标匹配。始终针对原始脚本匹配。
func (e *Engine) stageIcons(ctx context.Context, id string) (string, error) {
	wf := e.snapshot(id)

	params := map[string]any{
		"count": wf.Options.IconCount,
		"style": wf.Content.Style,
	}
	res, err := e.invoker.Invoke(ctx, ai.CapabilityIconMatching, wf.Content.Script, params)
	if err != nil {
		return "", err
	}
	icons := iconsFromResult(res)
	e.update(id, func(w *Workflow) {
		w.Content.Icons = icons
	})
	return res.Provider, nil
}

// stageTTS 语音合成，随后尽力生成字幕文件。
func (e *Engine) stageTTS(ctx context.Context, id string) (string, error) {
	wf := e.snapshot(id)

	text := wf.Content.NarrationScript()
	language := wf.Content.Language
	if wf.Content.TranslatedScript != "" && wf.Options.TargetLanguage != "" {
		language = wf.Options.TargetLanguage
	}
	params := map[string]any{
		"language": language,
		"speed":    wf.Options.Speed,
	}
	if wf.Options.Voice != "" {
		params["voice"] = wf.Options.Voice
	}
	res, err := e.invoker.Invoke(ctx, ai.CapabilityTTS, text, params)
	if err != nil {
		return "", err
	}

	subtitle := ""
	srtPath := filepath.Join(e.cfg.MediaDir, "subtitles_"+id+".srt")
	if err := WriteSRT(srtPath, text, durationFromResult(res, text)); err != nil {
		e.logger.Warn("字幕生成失败",
			zap.String("workflow_id", id),
			zap.Error(err))
	} else {
		subtitle = srtPath
	}

	e.update(id, func(w *Workflow) {
		w.Content.AudioFile = res.Output
		w.Content.SubtitleFile = subtitle
	})
	return res.Provider, nil
}

// stageRender 提交渲染任务并等待其终结。
// 队列饱和按背压处理: 等待后重试而不是立即失败。
func (e *Engine) stageRender(ctx context.Context, id string) (string, error) {
	wf := e.snapshot(id)

	templateID := SelectTemplate(wf.Content, wf.Options.TemplateID)
	quality, err := render.ParseQuality(wf.Options.Quality)
	if err != nil {
		return "", types.NewError(types.ErrValidation, err.Error())
	}
	settings := render.SettingsForQuality(quality)
	settings.PreviewMode = wf.Options.PreviewMode

	spec := render.Spec{
		WorkflowID: id,
		TemplateID: templateID,
		Params:     RenderParams(wf.Content, templateID),
		Priority:   wf.Options.Priority,
		Settings:   &settings,
	}

	var jobID string
	for {
		jobID, err = e.queue.Submit(ctx, spec)
		if err == nil {
			break
		}
		if !types.IsErrorCode(err, types.ErrRenderQueueSaturated) {
			return "", err
		}
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-time.After(e.cfg.RenderPollInterval):
		}
	}

	e.update(id, func(w *Workflow) {
		w.RenderJobID = jobID
	})
	e.logger.Info("渲染任务已提交",
		zap.String("workflow_id", id),
		zap.String("job_id", jobID),
		zap.String("template", templateID))

	for {
		job, err := e.queue.Status(jobID)
		if err != nil {
			return "", err
		}
		if job.Status.IsTerminal() {
			switch job.Status {
			case render.StatusSucceeded:
				e.update(id, func(w *Workflow) {
					w.OutputFiles = append([]string{job.OutputPath}, w.OutputFiles...)
				})
				return "", nil
			case render.StatusCancelled:
				if ctx.Err() != nil {
					return "", ctx.Err()
				}
				return "", types.NewError(types.ErrRenderJobFailed, "render job was cancelled externally")
			default:
				return "", types.NewError(types.ErrRenderJobFailed, job.Err)
			}
		}
		select {
		case <-ctx.Done():
			e.queue.Cancel(jobID)
			return "", ctx.Err()
		case <-time.After(e.cfg.RenderPollInterval):
		}
	}
}

// =============================================================================
// 内部辅助
// =============================================================================

// update 在锁内修改记录并返回快照，随后尽力持久化。
func (e *Engine) update(id string, fn func(*Workflow)) *Workflow {
	e.mu.Lock()
	wf := e.workflows[id]
	if wf == nil {
		e.mu.Unlock()
		return nil
	}
	fn(wf)
	snap := wf.Clone()
	e.mu.Unlock()
	e.persist(snap)
	return snap
}

func (e *Engine) snapshot(id string) *Workflow {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if wf := e.workflows[id]; wf != nil {
		return wf.Clone()
	}
	return nil
}

func (e *Engine) persist(wf *Workflow) {
	if e.store == nil || wf == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := e.store.SaveWorkflow(ctx, wf); err != nil {
		e.logger.Warn("工作流持久化失败", zap.String("workflow_id", wf.ID), zap.Error(err))
	}
}

func runCancelled(ctx context.Context, h *runHandle, err error) bool {
	if h.intent.Load() || ctx.Err() != nil {
		return true
	}
	return errors.Is(err, context.Canceled)
}

// stageFailure 折算为对外的终态错误: 阶段名 + 错误类别 + 可读信息。
// Provider 粒度的失败明细留在日志与错误链里，不进对外记录。
func stageFailure(name StageName, err error) *types.Error {
	kind := types.GetErrorCode(err)
	if kind == "" {
		kind = types.ErrInternal
	}
	msg := fmt.Sprintf("stage %s failed [%s]: %s", name, kind, publicMessage(err))
	return types.NewError(types.ErrStageFailed, msg).WithStage(string(name)).WithCause(err)
}

func publicMessage(err error) string {
	if te := types.AsError(err); te != nil {
		return te.Message
	}
	return err.Error()
}

func errMessage(err *types.Error) string {
	if err == nil {
		return ""
	}
	return err.Message
}

func computeProgress(wf *Workflow) float64 {
	var total, done float64
	for _, st := range wf.Stages {
		if st.Status == StageStatusSkipped {
			continue
		}
		w := stageWeights[st.Name]
		total += w
		if st.Status.IsTerminal() {
			done += w
		}
	}
	if total == 0 {
		return 0
	}
	return math.Round(100*done/total*10) / 10
}

func collectOutputs(wf *Workflow) []string {
	out := make([]string, 0, 3)
	out = append(out, wf.OutputFiles...)
	if wf.Content.AudioFile != "" {
		out = append(out, wf.Content.AudioFile)
	}
	if wf.Content.SubtitleFile != "" {
		out = append(out, wf.Content.SubtitleFile)
	}
	return out
}

// iconsFromResult 提取图标列表。
// 直接调用时 matches 是结构化切片，缓存命中后经 JSON round-trip
// 变成 []any，两种形态都要兼容。
func iconsFromResult(res *ai.Result) []string {
	raw, ok := res.Raw["matches"]
	if !ok {
		if res.Output != "" {
			return []string{res.Output}
		}
		return nil
	}

	var icons []string
	switch m := raw.(type) {
	case []any:
		for _, item := range m {
			if entry, ok := item.(map[string]any); ok {
				if icon, ok := entry["icon"].(string); ok && icon != "" {
					icons = append(icons, icon)
				}
			}
		}
	default:
		// 结构化切片通过 JSON 归一化，避免对具体类型的依赖
		if data, err := jsonRemarshal(raw); err == nil {
			icons = data
		}
	}
	if len(icons) == 0 && res.Output != "" {
		return []string{res.Output}
	}
	return icons
}

func jsonRemarshal(raw any) ([]string, error) {
	data, err := json.Marshal(raw)
	if err != nil {
		return nil, err
	}
	var matches []struct {
		Icon string `json:"icon"`
	}
	if err := json.Unmarshal(data, &matches); err != nil {
		return nil, err
	}
	icons := make([]string, 0, len(matches))
	for _, m := range matches {
		if m.Icon != "" {
			icons = append(icons, m.Icon)
		}
	}
	return icons, nil
}

func durationFromResult(res *ai.Result, text string) float64 {
	if v, ok := res.Raw["duration"]; ok {
		switch d := v.(type) {
		case float64:
			return d
		case int:
			return float64(d)
		}
	}
	// 未上报时长时按 3 字符/秒估算
	var runes int
	for range text {
		runes++
	}
	return float64(runes) / 3.0
}
