package store

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/BaSui01/clipflow/render"
	"github.com/BaSui01/clipflow/workflow"
)

// File 基于 JSON 文件的存储，每条记录一个文件。
// 写入先落临时文件再重命名，读取方不会看到半截记录。
type File struct {
	baseDir string
	wfDir   string
	jobDir  string
	logger  *zap.Logger

	mu     sync.RWMutex
	closed bool
}

// NewFile 创建文件存储，目录不存在时自动建立。
func NewFile(baseDir string, logger *zap.Logger) (*File, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if baseDir == "" {
		baseDir = "./data"
	}
	f := &File{
		baseDir: baseDir,
		wfDir:   filepath.Join(baseDir, "workflows"),
		jobDir:  filepath.Join(baseDir, "jobs"),
		logger:  logger.With(zap.String("component", "file_store")),
	}
	for _, dir := range []string{f.wfDir, f.jobDir} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create store dir %s: %w", dir, err)
		}
	}
	return f, nil
}

func (f *File) SaveWorkflow(ctx context.Context, wf *workflow.Workflow) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return errClosed()
	}
	return writeRecord(f.wfDir, wf.ID, wf)
}

func (f *File) GetWorkflow(ctx context.Context, id string) (*workflow.Workflow, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	if f.closed {
		return nil, errClosed()
	}
	var wf workflow.Workflow
	if err := readRecord(f.wfDir, "workflow", id, &wf); err != nil {
		return nil, err
	}
	return &wf, nil
}

func (f *File) ListWorkflows(ctx context.Context, filter workflow.Filter) ([]*workflow.Workflow, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	if f.closed {
		return nil, errClosed()
	}
	entries, err := os.ReadDir(f.wfDir)
	if err != nil {
		return nil, fmt.Errorf("list workflows: %w", err)
	}
	all := make([]*workflow.Workflow, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".json") {
			continue
		}
		var wf workflow.Workflow
		id := strings.TrimSuffix(entry.Name(), ".json")
		if err := readRecord(f.wfDir, "workflow", id, &wf); err != nil {
			f.logger.Warn("跳过损坏的工作流记录",
				zap.String("file", entry.Name()),
				zap.Error(err))
			continue
		}
		all = append(all, &wf)
	}
	return applyWorkflowFilter(all, filter), nil
}

func (f *File) DeleteWorkflow(ctx context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return errClosed()
	}
	path, ok := recordPath(f.wfDir, id)
	if !ok {
		return nil
	}
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("delete workflow %s: %w", id, err)
	}
	return nil
}

func (f *File) SaveJob(ctx context.Context, job *render.Job) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return errClosed()
	}
	return writeRecord(f.jobDir, job.ID, job)
}

func (f *File) GetJob(ctx context.Context, id string) (*render.Job, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	if f.closed {
		return nil, errClosed()
	}
	var job render.Job
	if err := readRecord(f.jobDir, "render job", id, &job); err != nil {
		return nil, err
	}
	return &job, nil
}

func (f *File) ListJobs(ctx context.Context, workflowID string) ([]*render.Job, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	if f.closed {
		return nil, errClosed()
	}
	entries, err := os.ReadDir(f.jobDir)
	if err != nil {
		return nil, fmt.Errorf("list jobs: %w", err)
	}
	out := make([]*render.Job, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".json") {
			continue
		}
		var job render.Job
		id := strings.TrimSuffix(entry.Name(), ".json")
		if err := readRecord(f.jobDir, "render job", id, &job); err != nil {
			f.logger.Warn("跳过损坏的任务记录",
				zap.String("file", entry.Name()),
				zap.Error(err))
			continue
		}
		if workflowID != "" && job.WorkflowID != workflowID {
			continue
		}
		out = append(out, &job)
	}
	sortJobs(out)
	return out, nil
}

func (f *File) Stats(ctx context.Context) (Stats, error) {
	wfs, err := f.ListWorkflows(ctx, workflow.Filter{})
	if err != nil {
		return Stats{}, err
	}
	jobs, err := f.ListJobs(ctx, "")
	if err != nil {
		return Stats{}, err
	}
	byStatus := make(map[string]int, 4)
	for _, wf := range wfs {
		byStatus[string(wf.Status)]++
	}
	return Stats{
		Backend:   "file",
		Workflows: len(wfs),
		Jobs:      len(jobs),
		ByStatus:  byStatus,
	}, nil
}

func (f *File) Ping(ctx context.Context) error {
	f.mu.RLock()
	defer f.mu.RUnlock()
	if f.closed {
		return errClosed()
	}
	if _, err := os.Stat(f.baseDir); err != nil {
		return fmt.Errorf("store dir unavailable: %w", err)
	}
	return nil
}

func (f *File) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	return nil
}

// Prune 删除 cutoff 之前终结的记录，返回清理的工作流数。
func (f *File) Prune(ctx context.Context, cutoff time.Time) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return 0, errClosed()
	}

	entries, err := os.ReadDir(f.wfDir)
	if err != nil {
		return 0, fmt.Errorf("prune workflows: %w", err)
	}
	pruned := make(map[string]bool)
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".json") {
			continue
		}
		id := strings.TrimSuffix(entry.Name(), ".json")
		var wf workflow.Workflow
		if err := readRecord(f.wfDir, "workflow", id, &wf); err != nil {
			continue
		}
		if !prunableWorkflow(&wf, cutoff) {
			continue
		}
		if err := os.Remove(filepath.Join(f.wfDir, entry.Name())); err != nil && !os.IsNotExist(err) {
			return len(pruned), fmt.Errorf("prune workflow %s: %w", id, err)
		}
		pruned[id] = true
	}

	jobEntries, err := os.ReadDir(f.jobDir)
	if err != nil {
		return len(pruned), fmt.Errorf("prune jobs: %w", err)
	}
	for _, entry := range jobEntries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".json") {
			continue
		}
		id := strings.TrimSuffix(entry.Name(), ".json")
		var job render.Job
		if err := readRecord(f.jobDir, "render job", id, &job); err != nil {
			continue
		}
		if !pruned[job.WorkflowID] && !prunableJob(&job, cutoff) {
			continue
		}
		if err := os.Remove(filepath.Join(f.jobDir, entry.Name())); err != nil && !os.IsNotExist(err) {
			return len(pruned), fmt.Errorf("prune job %s: %w", id, err)
		}
	}

	if len(pruned) > 0 {
		f.logger.Info("已清理过期记录", zap.Int("workflows", len(pruned)))
	}
	return len(pruned), nil
}

// recordPath 拼出记录文件路径。含路径分隔符的 ID 一律拒绝。
func recordPath(dir, id string) (string, bool) {
	if id == "" || strings.ContainsAny(id, `/\`) || id == "." || id == ".." {
		return "", false
	}
	return filepath.Join(dir, id+".json"), true
}

func writeRecord(dir, id string, v any) error {
	path, ok := recordPath(dir, id)
	if !ok {
		return fmt.Errorf("invalid record id %q", id)
	}
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal record %s: %w", id, err)
	}
	tmp, err := os.CreateTemp(dir, ".tmp-*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return fmt.Errorf("write record %s: %w", id, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("close record %s: %w", id, err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("commit record %s: %w", id, err)
	}
	return nil
}

func readRecord(dir, kind, id string, v any) error {
	path, ok := recordPath(dir, id)
	if !ok {
		return errNotFound(kind, id)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return errNotFound(kind, id)
		}
		return fmt.Errorf("read %s %s: %w", kind, id, err)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("parse %s %s: %w", kind, id, err)
	}
	return nil
}
