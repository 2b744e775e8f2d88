package render

import (
	"container/heap"
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/BaSui01/clipflow/internal/metrics"
	"github.com/BaSui01/clipflow/types"
)

// JobStore 持久化任务记录。每次状态变更都会写入，失败只记日志不阻塞调度。
type JobStore interface {
	SaveJob(ctx context.Context, job *Job) error
}

// QueueConfig 渲染队列配置。
type QueueConfig struct {
	// 同时运行的任务上限
	MaxConcurrent int `json:"max_concurrent"`
	// 排队任务上限，0 表示不限
	MaxQueued int `json:"max_queued"`
	// 产物输出目录
	MediaDir string `json:"media_dir"`
	// Spec 未指定画质时使用的默认档位
	DefaultQuality Quality `json:"default_quality"`
}

// DefaultQueueConfig 返回默认队列配置。
func DefaultQueueConfig() *QueueConfig {
	return &QueueConfig{
		MaxConcurrent:  2,
		MaxQueued:      0,
		MediaDir:       "./media",
		DefaultQuality: QualityMedium,
	}
}

// Queue 有界并发的渲染任务队列。
//
// 高优先级先出队，同优先级保持提交顺序。同时运行的任务数
// 不超过 MaxConcurrent。失败不自动重试，重试策略归调用方。
type Queue struct {
	cfg       *QueueConfig
	exec      Executor
	store     JobStore
	collector *metrics.Collector
	logger    *zap.Logger

	mu      sync.Mutex
	pending jobHeap
	jobs    map[string]*Job
	cancels map[string]context.CancelFunc
	seq     uint64

	wake   chan struct{}
	quit   chan struct{}
	done   chan struct{}
	closed atomic.Bool
	wg     sync.WaitGroup

	running atomic.Int32

	// 计数
	submitted atomic.Int64
	completed atomic.Int64
	failed    atomic.Int64
	cancelled atomic.Int64
	rejected  atomic.Int64
}

// NewQueue 创建队列并启动调度循环。
// exec 为 nil 时使用内置模拟执行器；store 与 collector 可以为 nil。
func NewQueue(exec Executor, store JobStore, cfg *QueueConfig, collector *metrics.Collector, logger *zap.Logger) *Queue {
	if cfg == nil {
		cfg = DefaultQueueConfig()
	}
	if cfg.MaxConcurrent < 1 {
		cfg.MaxConcurrent = 1
	}
	if cfg.MediaDir == "" {
		cfg.MediaDir = "./media"
	}
	if !cfg.DefaultQuality.Valid() {
		cfg.DefaultQuality = QualityMedium
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if exec == nil {
		exec = NewSimulatedExecutor(cfg.MediaDir, 0, logger)
	}

	q := &Queue{
		cfg:       cfg,
		exec:      exec,
		store:     store,
		collector: collector,
		logger:    logger.With(zap.String("component", "render_queue")),
		jobs:      make(map[string]*Job),
		cancels:   make(map[string]context.CancelFunc),
		wake:      make(chan struct{}, 1),
		quit:      make(chan struct{}),
		done:      make(chan struct{}),
	}
	go q.dispatch()
	return q
}

// Submit 创建任务并入队，不阻塞等待执行。
// 队列已关闭返回 RENDER_QUEUE_CLOSED，排队上限已满返回 RENDER_QUEUE_SATURATED。
func (q *Queue) Submit(ctx context.Context, spec Spec) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if q.closed.Load() {
		return "", types.NewError(types.ErrRenderQueueClosed, "render queue is closed")
	}
	if err := spec.validate(); err != nil {
		return "", err
	}

	settings := RenderSettings{Quality: q.cfg.DefaultQuality}
	if spec.Settings != nil {
		settings = *spec.Settings
	}
	job := &Job{
		ID:         uuid.NewString(),
		WorkflowID: spec.WorkflowID,
		TemplateID: spec.TemplateID,
		Params:     spec.Params,
		Priority:   spec.Priority,
		Settings:   settings.Normalized(),
		Status:     StatusQueued,
		EnqueuedAt: time.Now(),
	}

	q.mu.Lock()
	if q.cfg.MaxQueued > 0 && q.pending.Len() >= q.cfg.MaxQueued {
		q.mu.Unlock()
		q.rejected.Add(1)
		return "", types.NewError(types.ErrRenderQueueSaturated,
			fmt.Sprintf("render queue is full (max_queued=%d)", q.cfg.MaxQueued))
	}
	q.seq++
	job.seq = q.seq
	heap.Push(&q.pending, job)
	q.jobs[job.ID] = job
	depth := q.pending.Len()
	snapshot := job.Clone()
	q.mu.Unlock()

	q.submitted.Add(1)
	q.collector.SetRenderQueueSize(depth)
	q.persist(snapshot)
	q.logger.Info("渲染任务入队",
		zap.String("job_id", job.ID),
		zap.String("template", job.TemplateID),
		zap.Int("priority", job.Priority),
		zap.Int("queue_depth", depth))
	q.signal()
	return job.ID, nil
}

// Status 返回任务记录的拷贝。
func (q *Queue) Status(jobID string) (*Job, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	job, ok := q.jobs[jobID]
	if !ok {
		return nil, types.NewError(types.ErrRenderJobNotFound, fmt.Sprintf("render job %s not found", jobID))
	}
	return job.Clone(), nil
}

// Cancel 取消任务。
//
// 排队中的任务直接移除并标记 Cancelled，返回 true。
// 运行中的任务只能协作取消: 取消其 ctx 后返回 false，执行器可能照常跑完，
// 队列在执行器返回后统一按 Cancelled 收尾。终态任务是幂等空操作，返回 false。
func (q *Queue) Cancel(jobID string) bool {
	q.mu.Lock()
	job, ok := q.jobs[jobID]
	if !ok {
		q.mu.Unlock()
		return false
	}

	switch job.Status {
	case StatusQueued:
		heap.Remove(&q.pending, job.heapIdx)
		now := time.Now()
		job.Status = StatusCancelled
		job.FinishedAt = &now
		depth := q.pending.Len()
		snapshot := job.Clone()
		q.mu.Unlock()

		q.cancelled.Add(1)
		q.collector.SetRenderQueueSize(depth)
		q.collector.RecordRenderJob(string(StatusCancelled), string(snapshot.Settings.Quality), 0)
		q.persist(snapshot)
		q.logger.Info("渲染任务已从队列移除", zap.String("job_id", jobID))
		return true

	case StatusRunning:
		job.cancelRequested = true
		cancel := q.cancels[jobID]
		q.mu.Unlock()
		if cancel != nil {
			cancel()
		}
		q.logger.Info("渲染任务取消请求已下发", zap.String("job_id", jobID))
		return false

	default:
		q.mu.Unlock()
		return false
	}
}

// Stats 返回队列统计快照。
func (q *Queue) Stats() Stats {
	q.mu.Lock()
	depth := q.pending.Len()
	q.mu.Unlock()
	return Stats{
		Queued:    depth,
		Running:   int(q.running.Load()),
		Workers:   q.cfg.MaxConcurrent,
		Submitted: q.submitted.Load(),
		Completed: q.completed.Load(),
		Failed:    q.failed.Load(),
		Cancelled: q.cancelled.Load(),
		Rejected:  q.rejected.Load(),
	}
}

// Close 停止调度并等待运行中的任务结束。排队中的任务不再启动。
func (q *Queue) Close() {
	if q.closed.Swap(true) {
		return
	}
	close(q.quit)
	<-q.done
	q.wg.Wait()
}

// signal 唤醒调度循环。缓冲为 1，重复信号合并。
func (q *Queue) signal() {
	select {
	case q.wake <- struct{}{}:
	default:
	}
}

func (q *Queue) dispatch() {
	defer close(q.done)
	for {
		select {
		case <-q.quit:
			return
		case <-q.wake:
			q.fill()
		}
	}
}

// fill 在有空闲槽位时持续出队启动任务。只被调度循环调用。
func (q *Queue) fill() {
	for {
		if q.closed.Load() {
			return
		}
		q.mu.Lock()
		if q.pending.Len() == 0 || int(q.running.Load()) >= q.cfg.MaxConcurrent {
			q.mu.Unlock()
			return
		}
		job := heap.Pop(&q.pending).(*Job)
		now := time.Now()
		job.Status = StatusRunning
		job.StartedAt = &now
		jctx, cancel := context.WithCancel(context.Background())
		q.cancels[job.ID] = cancel
		q.running.Add(1)
		depth := q.pending.Len()
		snapshot := job.Clone()
		q.mu.Unlock()

		q.collector.SetRenderQueueSize(depth)
		q.collector.SetRenderRunning(int(q.running.Load()))
		q.persist(snapshot)
		q.logger.Info("开始渲染任务",
			zap.String("job_id", job.ID),
			zap.String("template", job.TemplateID),
			zap.String("quality", string(job.Settings.Quality)))

		q.wg.Add(1)
		go q.run(jctx, cancel, job)
	}
}

// run 执行单个任务并收尾。每个运行中的任务占用一个 goroutine。
func (q *Queue) run(ctx context.Context, cancel context.CancelFunc, job *Job) {
	defer q.wg.Done()
	defer cancel()

	start := time.Now()
	out, err := q.execute(ctx, job)
	elapsed := time.Since(start)

	q.mu.Lock()
	delete(q.cancels, job.ID)
	now := time.Now()
	job.FinishedAt = &now
	switch {
	case job.cancelRequested:
		job.Status = StatusCancelled
		job.OutputPath = out
		if err != nil {
			job.Err = err.Error()
		}
	case err != nil:
		job.Status = StatusFailed
		job.Err = err.Error()
	default:
		job.Status = StatusSucceeded
		job.OutputPath = out
	}
	snapshot := job.Clone()
	q.mu.Unlock()
	q.running.Add(-1)

	switch snapshot.Status {
	case StatusCancelled:
		q.cancelled.Add(1)
		q.logger.Info("渲染任务已取消", zap.String("job_id", job.ID), zap.Duration("elapsed", elapsed))
	case StatusFailed:
		q.failed.Add(1)
		q.logger.Error("渲染任务失败",
			zap.String("job_id", job.ID),
			zap.Duration("elapsed", elapsed),
			zap.String("error", snapshot.Err))
	default:
		q.completed.Add(1)
		q.logger.Info("渲染任务完成",
			zap.String("job_id", job.ID),
			zap.Duration("elapsed", elapsed),
			zap.String("output", snapshot.OutputPath))
	}

	q.collector.SetRenderRunning(int(q.running.Load()))
	q.collector.RecordRenderJob(string(snapshot.Status), string(snapshot.Settings.Quality), elapsed)
	q.persist(snapshot)
	q.signal()
}

// execute 调用执行器，panic 折算为任务失败。
func (q *Queue) execute(ctx context.Context, job *Job) (out string, err error) {
	defer func() {
		if r := recover(); r != nil {
			q.logger.Error("渲染执行器 panic",
				zap.String("job_id", job.ID),
				zap.Any("panic", r))
			err = types.NewError(types.ErrRenderJobFailed, fmt.Sprintf("render executor panicked: %v", r))
		}
	}()
	return q.exec.Render(ctx, job.Clone())
}

// persist 尽力写入任务记录，失败只告警。
func (q *Queue) persist(job *Job) {
	if q.store == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := q.store.SaveJob(ctx, job); err != nil {
		q.logger.Warn("渲染任务持久化失败", zap.String("job_id", job.ID), zap.Error(err))
	}
}

// Stats 队列统计。
type Stats struct {
	Queued    int   `json:"queued"`
	Running   int   `json:"running"`
	Workers   int   `json:"workers"`
	Submitted int64 `json:"submitted"`
	Completed int64 `json:"completed"`
	Failed    int64 `json:"failed"`
	Cancelled int64 `json:"cancelled"`
	Rejected  int64 `json:"rejected"`
}

// jobHeap 优先级大顶堆，同优先级按提交序号先进先出。
type jobHeap []*Job

func (h jobHeap) Len() int { return len(h) }

func (h jobHeap) Less(i, j int) bool {
	if h[i].Priority != h[j].Priority {
		return h[i].Priority > h[j].Priority
	}
	return h[i].seq < h[j].seq
}

func (h jobHeap) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
	h[i].heapIdx = i
	h[j].heapIdx = j
}

func (h *jobHeap) Push(x any) {
	job := x.(*Job)
	job.heapIdx = len(*h)
	*h = append(*h, job)
}

func (h *jobHeap) Pop() any {
	old := *h
	n := len(old)
	job := old[n-1]
	old[n-1] = nil
	job.heapIdx = -1
	*h = old[:n-1]
	return job
}
