package render

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/BaSui01/clipflow/types"
)

// Executor 外部渲染器。队列把任务交给它并等待返回。
//
// 实现可以忽略 ctx 取消（外部进程不一定能中断），队列不会强杀，
// 只在执行器返回后按取消状态收尾。
type Executor interface {
	Render(ctx context.Context, job *Job) (outputPath string, err error)
}

// outputPath 产物路径约定: <mediaDir>/<jobID>.<format>
func outputPath(mediaDir string, job *Job) string {
	return filepath.Join(mediaDir, job.ID+"."+job.Settings.Format)
}

// CommandExecutor 调用外部渲染命令完成渲染。
//
// 命令行约定: <binary> render <templateID> --resolution W,H --frame-rate N
// --format F --background C --output PATH [--preview] [--set k=v ...] 附加参数。
// stderr 会被捕获并写入失败信息。
type CommandExecutor struct {
	binary    string
	extraArgs []string
	timeout   time.Duration
	mediaDir  string
	logger    *zap.Logger
}

// NewCommandExecutor 创建外部命令执行器。timeout<=0 时不限时。
func NewCommandExecutor(binary string, extraArgs []string, timeout time.Duration, mediaDir string, logger *zap.Logger) *CommandExecutor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CommandExecutor{
		binary:    binary,
		extraArgs: extraArgs,
		timeout:   timeout,
		mediaDir:  mediaDir,
		logger:    logger.With(zap.String("component", "render_command")),
	}
}

// Render 启动渲染进程并等待退出。
func (e *CommandExecutor) Render(ctx context.Context, job *Job) (string, error) {
	if e.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.timeout)
		defer cancel()
	}
	if err := os.MkdirAll(e.mediaDir, 0o755); err != nil {
		return "", types.NewError(types.ErrRenderJobFailed, "create media dir: "+err.Error()).WithCause(err)
	}

	out := outputPath(e.mediaDir, job)
	args := e.buildArgs(job, out)

	cmd := exec.CommandContext(ctx, e.binary, args...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	e.logger.Debug("启动渲染进程",
		zap.String("job_id", job.ID),
		zap.String("binary", e.binary),
		zap.Strings("args", args))

	if err := cmd.Run(); err != nil {
		msg := strings.TrimSpace(stderr.String())
		if msg == "" {
			msg = err.Error()
		}
		if ctx.Err() == context.DeadlineExceeded {
			msg = fmt.Sprintf("render timed out after %s: %s", e.timeout, msg)
		}
		return "", types.NewError(types.ErrRenderJobFailed, tail(msg, 512)).WithCause(err)
	}
	if _, err := os.Stat(out); err != nil {
		return "", types.NewError(types.ErrRenderJobFailed,
			fmt.Sprintf("render process exited cleanly but produced no output at %s", out))
	}
	return out, nil
}

func (e *CommandExecutor) buildArgs(job *Job, out string) []string {
	s := job.Settings
	args := []string{
		"render", job.TemplateID,
		"--resolution", fmt.Sprintf("%d,%d", s.Width, s.Height),
		"--frame-rate", strconv.Itoa(s.FrameRate),
		"--format", s.Format,
		"--background", s.Background,
		"--output", out,
	}
	if s.PreviewMode {
		args = append(args, "--preview")
	}
	keys := make([]string, 0, len(job.Params))
	for k := range job.Params {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		args = append(args, "--set", fmt.Sprintf("%s=%v", k, job.Params[k]))
	}
	return append(args, e.extraArgs...)
}

// tail 保留 msg 的末尾 n 字节。渲染器的报错通常在输出尾部。
func tail(msg string, n int) string {
	if len(msg) <= n {
		return msg
	}
	return "..." + msg[len(msg)-n:]
}

// SimulatedExecutor 内置模拟执行器，写出占位产物文件。
// 未配置外部渲染命令时使用，也便于本地联调与测试。
type SimulatedExecutor struct {
	mediaDir string
	delay    time.Duration
	logger   *zap.Logger
}

// NewSimulatedExecutor 创建模拟执行器。delay 模拟渲染耗时，可为 0。
func NewSimulatedExecutor(mediaDir string, delay time.Duration, logger *zap.Logger) *SimulatedExecutor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SimulatedExecutor{
		mediaDir: mediaDir,
		delay:    delay,
		logger:   logger.With(zap.String("component", "render_simulated")),
	}
}

// Render 等待模拟耗时后写出占位文件。取消请求会被遵守。
func (e *SimulatedExecutor) Render(ctx context.Context, job *Job) (string, error) {
	if e.delay > 0 {
		t := time.NewTimer(e.delay)
		defer t.Stop()
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-t.C:
		}
	} else if err := ctx.Err(); err != nil {
		return "", err
	}

	if err := os.MkdirAll(e.mediaDir, 0o755); err != nil {
		return "", types.NewError(types.ErrRenderJobFailed, "create media dir: "+err.Error()).WithCause(err)
	}
	out := outputPath(e.mediaDir, job)
	s := job.Settings
	payload := fmt.Sprintf("CLIPFLOW SIMULATED RENDER\njob=%s template=%s %dx%d@%dfps quality=%s\n",
		job.ID, job.TemplateID, s.Width, s.Height, s.FrameRate, s.Quality)
	if err := os.WriteFile(out, []byte(payload), 0o644); err != nil {
		return "", types.NewError(types.ErrRenderJobFailed, "write output: "+err.Error()).WithCause(err)
	}
	e.logger.Debug("模拟渲染完成", zap.String("job_id", job.ID), zap.String("output", out))
	return out, nil
}
