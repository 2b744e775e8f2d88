package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/glebarez/sqlite"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	gormlogger "gorm.io/gorm/logger"

	"github.com/BaSui01/clipflow/render"
	"github.com/BaSui01/clipflow/workflow"
)

// workflowRecord 工作流在 SQLite 中的行结构。
// payload 列存完整 JSON，其余列冗余出来做索引和过滤。
type workflowRecord struct {
	ID         string     `gorm:"primaryKey;size:64"`
	Status     string     `gorm:"size:32;index"`
	Topic      string     `gorm:"size:500"`
	Payload    []byte     `gorm:"type:text"`
	CreatedAt  time.Time  `gorm:"index"`
	FinishedAt *time.Time
	UpdatedAt  time.Time
}

func (workflowRecord) TableName() string { return "workflows" }

type jobRecord struct {
	ID         string     `gorm:"primaryKey;size:64"`
	WorkflowID string     `gorm:"size:64;index"`
	Status     string     `gorm:"size:32"`
	Payload    []byte     `gorm:"type:text"`
	EnqueuedAt time.Time  `gorm:"index"`
	FinishedAt *time.Time
	UpdatedAt  time.Time
}

func (jobRecord) TableName() string { return "render_jobs" }

// SQLite 基于 SQLite 的存储，适合单机部署下的持久化。
type SQLite struct {
	db     *gorm.DB
	logger *zap.Logger
	closed atomic.Bool
}

// NewSQLite 打开（必要时创建）SQLite 数据库并迁移表结构。
// path 为 ":memory:" 时使用内存库，进程退出即丢失。
func NewSQLite(path string, logger *zap.Logger) (*SQLite, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if path == "" {
		path = "./clipflow.db"
	}
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("open sqlite %s: %w", path, err)
	}
	if err := db.AutoMigrate(&workflowRecord{}, &jobRecord{}); err != nil {
		return nil, fmt.Errorf("migrate sqlite schema: %w", err)
	}
	return &SQLite{
		db:     db,
		logger: logger.With(zap.String("component", "sqlite_store")),
	}, nil
}

func (s *SQLite) SaveWorkflow(ctx context.Context, wf *workflow.Workflow) error {
	if s.closed.Load() {
		return errClosed()
	}
	payload, err := json.Marshal(wf)
	if err != nil {
		return fmt.Errorf("marshal workflow %s: %w", wf.ID, err)
	}
	rec := workflowRecord{
		ID:         wf.ID,
		Status:     string(wf.Status),
		Topic:      wf.Topic,
		Payload:    payload,
		CreatedAt:  wf.CreatedAt,
		FinishedAt: wf.FinishedAt,
		UpdatedAt:  time.Now(),
	}
	err = s.db.WithContext(ctx).
		Clauses(clause.OnConflict{UpdateAll: true}).
		Create(&rec).Error
	if err != nil {
		return fmt.Errorf("save workflow %s: %w", wf.ID, err)
	}
	return nil
}

func (s *SQLite) GetWorkflow(ctx context.Context, id string) (*workflow.Workflow, error) {
	if s.closed.Load() {
		return nil, errClosed()
	}
	var rec workflowRecord
	err := s.db.WithContext(ctx).First(&rec, "id = ?", id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, errNotFound("workflow", id)
		}
		return nil, fmt.Errorf("get workflow %s: %w", id, err)
	}
	var wf workflow.Workflow
	if err := json.Unmarshal(rec.Payload, &wf); err != nil {
		return nil, fmt.Errorf("parse workflow %s: %w", id, err)
	}
	return &wf, nil
}

func (s *SQLite) ListWorkflows(ctx context.Context, filter workflow.Filter) ([]*workflow.Workflow, error) {
	if s.closed.Load() {
		return nil, errClosed()
	}
	q := s.db.WithContext(ctx).Model(&workflowRecord{}).Order("created_at DESC")
	if filter.Status != "" {
		q = q.Where("status = ?", string(filter.Status))
	}
	if filter.Topic != "" {
		q = q.Where("topic LIKE ?", "%"+filter.Topic+"%")
	}
	if filter.Offset > 0 {
		q = q.Offset(filter.Offset)
	}
	if filter.Limit > 0 {
		q = q.Limit(filter.Limit)
	}
	var recs []workflowRecord
	if err := q.Find(&recs).Error; err != nil {
		return nil, fmt.Errorf("list workflows: %w", err)
	}
	out := make([]*workflow.Workflow, 0, len(recs))
	for _, rec := range recs {
		var wf workflow.Workflow
		if err := json.Unmarshal(rec.Payload, &wf); err != nil {
			s.logger.Warn("跳过损坏的工作流记录", zap.String("id", rec.ID), zap.Error(err))
			continue
		}
		out = append(out, &wf)
	}
	return out, nil
}

func (s *SQLite) DeleteWorkflow(ctx context.Context, id string) error {
	if s.closed.Load() {
		return errClosed()
	}
	err := s.db.WithContext(ctx).Delete(&workflowRecord{}, "id = ?", id).Error
	if err != nil {
		return fmt.Errorf("delete workflow %s: %w", id, err)
	}
	return nil
}

func (s *SQLite) SaveJob(ctx context.Context, job *render.Job) error {
	if s.closed.Load() {
		return errClosed()
	}
	payload, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("marshal render job %s: %w", job.ID, err)
	}
	rec := jobRecord{
		ID:         job.ID,
		WorkflowID: job.WorkflowID,
		Status:     string(job.Status),
		Payload:    payload,
		EnqueuedAt: job.EnqueuedAt,
		FinishedAt: job.FinishedAt,
		UpdatedAt:  time.Now(),
	}
	err = s.db.WithContext(ctx).
		Clauses(clause.OnConflict{UpdateAll: true}).
		Create(&rec).Error
	if err != nil {
		return fmt.Errorf("save render job %s: %w", job.ID, err)
	}
	return nil
}

func (s *SQLite) GetJob(ctx context.Context, id string) (*render.Job, error) {
	if s.closed.Load() {
		return nil, errClosed()
	}
	var rec jobRecord
	err := s.db.WithContext(ctx).First(&rec, "id = ?", id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, errNotFound("render job", id)
		}
		return nil, fmt.Errorf("get render job %s: %w", id, err)
	}
	var job render.Job
	if err := json.Unmarshal(rec.Payload, &job); err != nil {
		return nil, fmt.Errorf("parse render job %s: %w", id, err)
	}
	return &job, nil
}

func (s *SQLite) ListJobs(ctx context.Context, workflowID string) ([]*render.Job, error) {
	if s.closed.Load() {
		return nil, errClosed()
	}
	q := s.db.WithContext(ctx).Model(&jobRecord{}).Order("enqueued_at ASC")
	if workflowID != "" {
		q = q.Where("workflow_id = ?", workflowID)
	}
	var recs []jobRecord
	if err := q.Find(&recs).Error; err != nil {
		return nil, fmt.Errorf("list jobs: %w", err)
	}
	out := make([]*render.Job, 0, len(recs))
	for _, rec := range recs {
		var job render.Job
		if err := json.Unmarshal(rec.Payload, &job); err != nil {
			s.logger.Warn("跳过损坏的任务记录", zap.String("id", rec.ID), zap.Error(err))
			continue
		}
		out = append(out, &job)
	}
	return out, nil
}

func (s *SQLite) Stats(ctx context.Context) (Stats, error) {
	if s.closed.Load() {
		return Stats{}, errClosed()
	}
	stats := Stats{Backend: "sqlite", ByStatus: make(map[string]int, 4)}

	var wfCount int64
	if err := s.db.WithContext(ctx).Model(&workflowRecord{}).Count(&wfCount).Error; err != nil {
		return Stats{}, fmt.Errorf("store stats: %w", err)
	}
	stats.Workflows = int(wfCount)

	var jobCount int64
	if err := s.db.WithContext(ctx).Model(&jobRecord{}).Count(&jobCount).Error; err != nil {
		return Stats{}, fmt.Errorf("store stats: %w", err)
	}
	stats.Jobs = int(jobCount)

	var rows []struct {
		Status string
		Count  int
	}
	err := s.db.WithContext(ctx).Model(&workflowRecord{}).
		Select("status, count(*) as count").
		Group("status").
		Scan(&rows).Error
	if err != nil {
		return Stats{}, fmt.Errorf("store stats: %w", err)
	}
	for _, row := range rows {
		stats.ByStatus[row.Status] = row.Count
	}
	return stats, nil
}

func (s *SQLite) Ping(ctx context.Context) error {
	if s.closed.Load() {
		return errClosed()
	}
	sqlDB, err := s.db.DB()
	if err != nil {
		return fmt.Errorf("sqlite handle: %w", err)
	}
	return sqlDB.PingContext(ctx)
}

func (s *SQLite) Close() error {
	if s.closed.Swap(true) {
		return nil
	}
	sqlDB, err := s.db.DB()
	if err != nil {
		return nil
	}
	return sqlDB.Close()
}

// Prune 删除 cutoff 之前终结的记录，返回清理的工作流数。
func (s *SQLite) Prune(ctx context.Context, cutoff time.Time) (int, error) {
	if s.closed.Load() {
		return 0, errClosed()
	}
	terminal := []string{
		string(workflow.StatusSucceeded),
		string(workflow.StatusFailed),
		string(workflow.StatusCancelled),
	}

	var ids []string
	err := s.db.WithContext(ctx).Model(&workflowRecord{}).
		Where("status IN ? AND finished_at IS NOT NULL AND finished_at < ?", terminal, cutoff).
		Pluck("id", &ids).Error
	if err != nil {
		return 0, fmt.Errorf("prune workflows: %w", err)
	}
	if len(ids) == 0 {
		return 0, nil
	}

	if err := s.db.WithContext(ctx).Delete(&workflowRecord{}, "id IN ?", ids).Error; err != nil {
		return 0, fmt.Errorf("prune workflows: %w", err)
	}
	err = s.db.WithContext(ctx).
		Where("workflow_id IN ?", ids).
		Or("status IN ? AND finished_at IS NOT NULL AND finished_at < ?",
			[]string{string(render.StatusSucceeded), string(render.StatusFailed), string(render.StatusCancelled)}, cutoff).
		Delete(&jobRecord{}).Error
	if err != nil {
		return len(ids), fmt.Errorf("prune jobs: %w", err)
	}

	s.logger.Info("已清理过期记录", zap.Int("workflows", len(ids)))
	return len(ids), nil
}
