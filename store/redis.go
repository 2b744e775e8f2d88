package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/BaSui01/clipflow/render"
	"github.com/BaSui01/clipflow/workflow"
)

const (
	redisWorkflowPrefix = "clipflow:wf:"
	redisJobPrefix      = "clipflow:job:"
)

// Redis 基于 Redis Hash 的存储，每条记录一个 hash。
// payload 字段存完整 JSON，status / topic / workflow_id 单独成字段供统计和过滤。
type Redis struct {
	rdb        *redis.Client
	ttl        time.Duration
	logger     *zap.Logger
	ownsClient bool
	closed     atomic.Bool
}

// NewRedis 使用现有客户端创建 Redis 存储。ttl > 0 时记录自动过期。
// 客户端生命周期由调用方管理；通过 New 工厂创建时由本包持有并关闭。
func NewRedis(rdb *redis.Client, ttl time.Duration, logger *zap.Logger) *Redis {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Redis{
		rdb:    rdb,
		ttl:    ttl,
		logger: logger.With(zap.String("component", "redis_store")),
	}
}

func (r *Redis) SaveWorkflow(ctx context.Context, wf *workflow.Workflow) error {
	if r.closed.Load() {
		return errClosed()
	}
	payload, err := json.Marshal(wf)
	if err != nil {
		return fmt.Errorf("marshal workflow %s: %w", wf.ID, err)
	}
	key := redisWorkflowPrefix + wf.ID
	fields := map[string]any{
		"payload": payload,
		"status":  string(wf.Status),
		"topic":   wf.Topic,
	}
	if err := r.rdb.HSet(ctx, key, fields).Err(); err != nil {
		return fmt.Errorf("save workflow %s: %w", wf.ID, err)
	}
	return r.touchTTL(ctx, key)
}

func (r *Redis) GetWorkflow(ctx context.Context, id string) (*workflow.Workflow, error) {
	if r.closed.Load() {
		return nil, errClosed()
	}
	data, err := r.rdb.HGet(ctx, redisWorkflowPrefix+id, "payload").Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, errNotFound("workflow", id)
		}
		return nil, fmt.Errorf("get workflow %s: %w", id, err)
	}
	var wf workflow.Workflow
	if err := json.Unmarshal(data, &wf); err != nil {
		return nil, fmt.Errorf("parse workflow %s: %w", id, err)
	}
	return &wf, nil
}

func (r *Redis) ListWorkflows(ctx context.Context, filter workflow.Filter) ([]*workflow.Workflow, error) {
	if r.closed.Load() {
		return nil, errClosed()
	}
	var all []*workflow.Workflow
	iter := r.rdb.Scan(ctx, 0, redisWorkflowPrefix+"*", 100).Iterator()
	for iter.Next(ctx) {
		data, err := r.rdb.HGet(ctx, iter.Val(), "payload").Bytes()
		if err != nil {
			if errors.Is(err, redis.Nil) {
				continue
			}
			return nil, fmt.Errorf("list workflows: %w", err)
		}
		var wf workflow.Workflow
		if err := json.Unmarshal(data, &wf); err != nil {
			r.logger.Warn("跳过损坏的工作流记录", zap.String("key", iter.Val()), zap.Error(err))
			continue
		}
		all = append(all, &wf)
	}
	if err := iter.Err(); err != nil {
		return nil, fmt.Errorf("list workflows: %w", err)
	}
	return applyWorkflowFilter(all, filter), nil
}

func (r *Redis) DeleteWorkflow(ctx context.Context, id string) error {
	if r.closed.Load() {
		return errClosed()
	}
	if err := r.rdb.Del(ctx, redisWorkflowPrefix+id).Err(); err != nil {
		return fmt.Errorf("delete workflow %s: %w", id, err)
	}
	return nil
}

func (r *Redis) SaveJob(ctx context.Context, job *render.Job) error {
	if r.closed.Load() {
		return errClosed()
	}
	payload, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("marshal render job %s: %w", job.ID, err)
	}
	key := redisJobPrefix + job.ID
	fields := map[string]any{
		"payload":     payload,
		"status":      string(job.Status),
		"workflow_id": job.WorkflowID,
	}
	if err := r.rdb.HSet(ctx, key, fields).Err(); err != nil {
		return fmt.Errorf("save render job %s: %w", job.ID, err)
	}
	return r.touchTTL(ctx, key)
}

func (r *Redis) GetJob(ctx context.Context, id string) (*render.Job, error) {
	if r.closed.Load() {
		return nil, errClosed()
	}
	data, err := r.rdb.HGet(ctx, redisJobPrefix+id, "payload").Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, errNotFound("render job", id)
		}
		return nil, fmt.Errorf("get render job %s: %w", id, err)
	}
	var job render.Job
	if err := json.Unmarshal(data, &job); err != nil {
		return nil, fmt.Errorf("parse render job %s: %w", id, err)
	}
	return &job, nil
}

func (r *Redis) ListJobs(ctx context.Context, workflowID string) ([]*render.Job, error) {
	if r.closed.Load() {
		return nil, errClosed()
	}
	var out []*render.Job
	iter := r.rdb.Scan(ctx, 0, redisJobPrefix+"*", 100).Iterator()
	for iter.Next(ctx) {
		data, err := r.rdb.HGet(ctx, iter.Val(), "payload").Bytes()
		if err != nil {
			if errors.Is(err, redis.Nil) {
				continue
			}
			return nil, fmt.Errorf("list jobs: %w", err)
		}
		var job render.Job
		if err := json.Unmarshal(data, &job); err != nil {
			r.logger.Warn("跳过损坏的任务记录", zap.String("key", iter.Val()), zap.Error(err))
			continue
		}
		if workflowID != "" && job.WorkflowID != workflowID {
			continue
		}
		out = append(out, &job)
	}
	if err := iter.Err(); err != nil {
		return nil, fmt.Errorf("list jobs: %w", err)
	}
	sortJobs(out)
	return out, nil
}

func (r *Redis) Stats(ctx context.Context) (Stats, error) {
	if r.closed.Load() {
		return Stats{}, errClosed()
	}
	stats := Stats{Backend: "redis", ByStatus: make(map[string]int, 4)}

	iter := r.rdb.Scan(ctx, 0, redisWorkflowPrefix+"*", 100).Iterator()
	for iter.Next(ctx) {
		stats.Workflows++
		status, err := r.rdb.HGet(ctx, iter.Val(), "status").Result()
		if err == nil && status != "" {
			stats.ByStatus[status]++
		}
	}
	if err := iter.Err(); err != nil {
		return Stats{}, fmt.Errorf("store stats: %w", err)
	}

	jobIter := r.rdb.Scan(ctx, 0, redisJobPrefix+"*", 100).Iterator()
	for jobIter.Next(ctx) {
		stats.Jobs++
	}
	if err := jobIter.Err(); err != nil {
		return Stats{}, fmt.Errorf("store stats: %w", err)
	}
	return stats, nil
}

func (r *Redis) Ping(ctx context.Context) error {
	if r.closed.Load() {
		return errClosed()
	}
	return r.rdb.Ping(ctx).Err()
}

func (r *Redis) Close() error {
	if r.closed.Swap(true) {
		return nil
	}
	if r.ownsClient {
		return r.rdb.Close()
	}
	return nil
}

// Prune 删除 cutoff 之前终结的记录，返回清理的工作流数。
func (r *Redis) Prune(ctx context.Context, cutoff time.Time) (int, error) {
	if r.closed.Load() {
		return 0, errClosed()
	}
	pruned := make(map[string]bool)

	iter := r.rdb.Scan(ctx, 0, redisWorkflowPrefix+"*", 100).Iterator()
	for iter.Next(ctx) {
		data, err := r.rdb.HGet(ctx, iter.Val(), "payload").Bytes()
		if err != nil {
			continue
		}
		var wf workflow.Workflow
		if err := json.Unmarshal(data, &wf); err != nil {
			continue
		}
		if !prunableWorkflow(&wf, cutoff) {
			continue
		}
		if err := r.rdb.Del(ctx, iter.Val()).Err(); err != nil {
			return len(pruned), fmt.Errorf("prune workflow %s: %w", wf.ID, err)
		}
		pruned[wf.ID] = true
	}
	if err := iter.Err(); err != nil {
		return len(pruned), fmt.Errorf("prune workflows: %w", err)
	}

	jobIter := r.rdb.Scan(ctx, 0, redisJobPrefix+"*", 100).Iterator()
	for jobIter.Next(ctx) {
		data, err := r.rdb.HGet(ctx, jobIter.Val(), "payload").Bytes()
		if err != nil {
			continue
		}
		var job render.Job
		if err := json.Unmarshal(data, &job); err != nil {
			continue
		}
		if !pruned[job.WorkflowID] && !prunableJob(&job, cutoff) {
			continue
		}
		if err := r.rdb.Del(ctx, jobIter.Val()).Err(); err != nil {
			return len(pruned), fmt.Errorf("prune job %s: %w", job.ID, err)
		}
	}
	if err := jobIter.Err(); err != nil {
		return len(pruned), fmt.Errorf("prune jobs: %w", err)
	}

	if len(pruned) > 0 {
		r.logger.Info("已清理过期记录", zap.Int("workflows", len(pruned)))
	}
	return len(pruned), nil
}

func (r *Redis) touchTTL(ctx context.Context, key string) error {
	if r.ttl <= 0 {
		return nil
	}
	if err := r.rdb.Expire(ctx, key, r.ttl).Err(); err != nil {
		return fmt.Errorf("set record ttl: %w", err)
	}
	return nil
}
