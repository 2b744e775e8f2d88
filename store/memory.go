package store

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/BaSui01/clipflow/render"
	"github.com/BaSui01/clipflow/workflow"
)

// Memory 进程内存储，进程退出即丢失。默认后端。
type Memory struct {
	logger *zap.Logger

	mu     sync.RWMutex
	wfs    map[string]*workflow.Workflow
	jobs   map[string]*render.Job
	closed bool
}

// NewMemory 创建内存存储。
func NewMemory(logger *zap.Logger) *Memory {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Memory{
		logger: logger.With(zap.String("component", "memory_store")),
		wfs:    make(map[string]*workflow.Workflow),
		jobs:   make(map[string]*render.Job),
	}
}

func (m *Memory) SaveWorkflow(ctx context.Context, wf *workflow.Workflow) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return errClosed()
	}
	m.wfs[wf.ID] = wf.Clone()
	return nil
}

func (m *Memory) GetWorkflow(ctx context.Context, id string) (*workflow.Workflow, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return nil, errClosed()
	}
	wf, ok := m.wfs[id]
	if !ok {
		return nil, errNotFound("workflow", id)
	}
	return wf.Clone(), nil
}

func (m *Memory) ListWorkflows(ctx context.Context, filter workflow.Filter) ([]*workflow.Workflow, error) {
	m.mu.RLock()
	if m.closed {
		m.mu.RUnlock()
		return nil, errClosed()
	}
	all := make([]*workflow.Workflow, 0, len(m.wfs))
	for _, wf := range m.wfs {
		all = append(all, wf.Clone())
	}
	m.mu.RUnlock()

	return applyWorkflowFilter(all, filter), nil
}

func (m *Memory) DeleteWorkflow(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return errClosed()
	}
	delete(m.wfs, id)
	return nil
}

func (m *Memory) SaveJob(ctx context.Context, job *render.Job) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return errClosed()
	}
	m.jobs[job.ID] = job.Clone()
	return nil
}

func (m *Memory) GetJob(ctx context.Context, id string) (*render.Job, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return nil, errClosed()
	}
	job, ok := m.jobs[id]
	if !ok {
		return nil, errNotFound("render job", id)
	}
	return job.Clone(), nil
}

func (m *Memory) ListJobs(ctx context.Context, workflowID string) ([]*render.Job, error) {
	m.mu.RLock()
	if m.closed {
		m.mu.RUnlock()
		return nil, errClosed()
	}
	out := make([]*render.Job, 0, 4)
	for _, job := range m.jobs {
		if workflowID != "" && job.WorkflowID != workflowID {
			continue
		}
		out = append(out, job.Clone())
	}
	m.mu.RUnlock()

	sortJobs(out)
	return out, nil
}

func (m *Memory) Stats(ctx context.Context) (Stats, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return Stats{}, errClosed()
	}
	byStatus := make(map[string]int, 4)
	for _, wf := range m.wfs {
		byStatus[string(wf.Status)]++
	}
	return Stats{
		Backend:   "memory",
		Workflows: len(m.wfs),
		Jobs:      len(m.jobs),
		ByStatus:  byStatus,
	}, nil
}

func (m *Memory) Ping(ctx context.Context) error {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return errClosed()
	}
	return nil
}

func (m *Memory) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}

// Prune 删除 cutoff 之前终结的工作流及其任务，返回清理的工作流数。
func (m *Memory) Prune(ctx context.Context, cutoff time.Time) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return 0, errClosed()
	}

	pruned := make(map[string]bool)
	for id, wf := range m.wfs {
		if prunableWorkflow(wf, cutoff) {
			delete(m.wfs, id)
			pruned[id] = true
		}
	}
	for id, job := range m.jobs {
		if pruned[job.WorkflowID] || prunableJob(job, cutoff) {
			delete(m.jobs, id)
		}
	}
	if len(pruned) > 0 {
		m.logger.Info("已清理过期记录", zap.Int("workflows", len(pruned)))
	}
	return len(pruned), nil
}
