package store

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/BaSui01/clipflow/config"
	"github.com/BaSui01/clipflow/internal/metrics"
	"github.com/BaSui01/clipflow/render"
	"github.com/BaSui01/clipflow/types"
	"github.com/BaSui01/clipflow/workflow"
)

// Store 工作流与渲染任务记录的持久化后端。
//
// 写入方在每次状态变更时调用 Save*，因此所有实现都是同键覆盖语义。
// 记录不存在返回 NOT_FOUND，后端已关闭返回 STORE_CLOSED。
type Store interface {
	SaveWorkflow(ctx context.Context, wf *workflow.Workflow) error
	GetWorkflow(ctx context.Context, id string) (*workflow.Workflow, error)
	ListWorkflows(ctx context.Context, filter workflow.Filter) ([]*workflow.Workflow, error)
	DeleteWorkflow(ctx context.Context, id string) error

	SaveJob(ctx context.Context, job *render.Job) error
	GetJob(ctx context.Context, id string) (*render.Job, error)
	ListJobs(ctx context.Context, workflowID string) ([]*render.Job, error)

	Stats(ctx context.Context) (Stats, error)
	Ping(ctx context.Context) error
	Close() error
}

// Pruner 可选扩展: 删除 cutoff 之前终结的记录。
// 所有内置后端都实现它，清理循环通过类型断言发现。
type Pruner interface {
	Prune(ctx context.Context, cutoff time.Time) (int, error)
}

// Stats 存量统计。
type Stats struct {
	Backend   string         `json:"backend"`
	Workflows int            `json:"workflows"`
	Jobs      int            `json:"jobs"`
	ByStatus  map[string]int `json:"by_status,omitempty"`
}

// New 根据配置构建持久化后端。
// type=redis 时由本包创建并持有 Redis 客户端。
func New(cfg config.StoreConfig, redisCfg config.RedisConfig, collector *metrics.Collector, logger *zap.Logger) (Store, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	var (
		backend Store
		name    string
		err     error
	)
	switch cfg.Type {
	case "", "memory":
		name = "memory"
		backend = NewMemory(logger)
	case "file":
		name = "file"
		backend, err = NewFile(cfg.BaseDir, logger)
	case "redis":
		name = "redis"
		rdb := redis.NewClient(&redis.Options{
			Addr:         redisCfg.Addr,
			Password:     redisCfg.Password,
			DB:           redisCfg.DB,
			PoolSize:     redisCfg.PoolSize,
			MinIdleConns: redisCfg.MinIdleConns,
		})
		r := NewRedis(rdb, cfg.RecordTTL, logger)
		r.ownsClient = true
		backend = r
	case "sqlite":
		name = "sqlite"
		backend, err = NewSQLite(cfg.SQLitePath, logger)
	default:
		return nil, fmt.Errorf("unknown store backend: %q", cfg.Type)
	}
	if err != nil {
		return nil, err
	}
	return &instrumented{inner: backend, backend: name, collector: collector}, nil
}

// =============================================================================
// 指标装饰器
// =============================================================================

// instrumented 为每个存储操作记录耗时指标。
type instrumented struct {
	inner     Store
	backend   string
	collector *metrics.Collector
}

func (s *instrumented) record(op string, start time.Time) {
	s.collector.RecordStoreOp(s.backend, op, time.Since(start))
}

func (s *instrumented) SaveWorkflow(ctx context.Context, wf *workflow.Workflow) error {
	defer s.record("save_workflow", time.Now())
	return s.inner.SaveWorkflow(ctx, wf)
}

func (s *instrumented) GetWorkflow(ctx context.Context, id string) (*workflow.Workflow, error) {
	defer s.record("get_workflow", time.Now())
	return s.inner.GetWorkflow(ctx, id)
}

func (s *instrumented) ListWorkflows(ctx context.Context, filter workflow.Filter) ([]*workflow.Workflow, error) {
	defer s.record("list_workflows", time.Now())
	return s.inner.ListWorkflows(ctx, filter)
}

func (s *instrumented) DeleteWorkflow(ctx context.Context, id string) error {
	defer s.record("delete_workflow", time.Now())
	return s.inner.DeleteWorkflow(ctx, id)
}

func (s *instrumented) SaveJob(ctx context.Context, job *render.Job) error {
	defer s.record("save_job", time.Now())
	return s.inner.SaveJob(ctx, job)
}

func (s *instrumented) GetJob(ctx context.Context, id string) (*render.Job, error) {
	defer s.record("get_job", time.Now())
	return s.inner.GetJob(ctx, id)
}

func (s *instrumented) ListJobs(ctx context.Context, workflowID string) ([]*render.Job, error) {
	defer s.record("list_jobs", time.Now())
	return s.inner.ListJobs(ctx, workflowID)
}

func (s *instrumented) Stats(ctx context.Context) (Stats, error) {
	return s.inner.Stats(ctx)
}

func (s *instrumented) Ping(ctx context.Context) error {
	return s.inner.Ping(ctx)
}

func (s *instrumented) Close() error {
	return s.inner.Close()
}

func (s *instrumented) Prune(ctx context.Context, cutoff time.Time) (int, error) {
	p, ok := s.inner.(Pruner)
	if !ok {
		return 0, nil
	}
	defer s.record("prune", time.Now())
	return p.Prune(ctx, cutoff)
}

// =============================================================================
// 共享辅助
// =============================================================================

func errNotFound(kind, id string) error {
	return types.NewError(types.ErrNotFound, fmt.Sprintf("%s %s not found", kind, id))
}

func errClosed() error {
	return types.NewError(types.ErrStoreClosed, "store is closed")
}

// applyWorkflowFilter 在内存中过滤并按创建时间倒序排序。
// 无法下推查询条件的后端（memory/file/redis）共用。
func applyWorkflowFilter(wfs []*workflow.Workflow, filter workflow.Filter) []*workflow.Workflow {
	sort.Slice(wfs, func(i, j int) bool { return wfs[i].CreatedAt.After(wfs[j].CreatedAt) })

	out := make([]*workflow.Workflow, 0, len(wfs))
	for _, wf := range wfs {
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
			return nil
		}
		out = out[filter.Offset:]
	}
	if filter.Limit > 0 && len(out) > filter.Limit {
		out = out[:filter.Limit]
	}
	return out
}

func sortJobs(jobs []*render.Job) {
	sort.Slice(jobs, func(i, j int) bool { return jobs[i].EnqueuedAt.Before(jobs[j].EnqueuedAt) })
}

// prunableWorkflow 终结超过保留期的工作流可被清理。
func prunableWorkflow(wf *workflow.Workflow, cutoff time.Time) bool {
	return wf.Status.IsTerminal() && wf.FinishedAt != nil && wf.FinishedAt.Before(cutoff)
}

func prunableJob(job *render.Job, cutoff time.Time) bool {
	return job.Status.IsTerminal() && job.FinishedAt != nil && job.FinishedAt.Before(cutoff)
}
