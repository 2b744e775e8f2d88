// =============================================================================
// ClipFlow 主入口
// =============================================================================
// 完整服务入口点，包含工作流引擎、渲染队列、HTTP 管理接口、Prometheus 指标
//
// 使用方法:
//
//	clipflow serve                             # 启动服务
//	clipflow serve --config config.yaml        # 指定配置文件
//	clipflow workflow create --topic "..."     # 提交视频工作流
//	clipflow workflow status <id>              # 查看工作流状态
//	clipflow workflow cancel <id>              # 取消工作流
//	clipflow version                           # 显示版本信息
//	clipflow health                            # 健康检查
// =============================================================================

// @title ClipFlow API
// @version 1.0.0
// @description ClipFlow is a workflow and render orchestration engine for AI short-video pipelines.
// @description
// @description ## Features
// @description - Five-stage video workflow pipeline (content, translation, icons, TTS, render)
// @description - Capability-based AI provider fallback chains with result caching
// @description - Bounded-concurrency render queue with priority scheduling
// @description - WebSocket progress streaming, health monitoring and metrics

// @contact.name ClipFlow Team
// @contact.url https://github.com/BaSui01/clipflow

// @license.name MIT
// @license.url https://opensource.org/licenses/MIT

// @host localhost:8080
// @BasePath /
// @schemes http

package main

import (
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/BaSui01/clipflow/api"
	"github.com/BaSui01/clipflow/api/handlers"
	"github.com/BaSui01/clipflow/config"
	"github.com/BaSui01/clipflow/internal/telemetry"
	"github.com/BaSui01/clipflow/workflow"
)

// =============================================================================
// 📦 版本信息（构建时注入）
// =============================================================================

var (
	Version   = "dev"
	BuildTime = "unknown"
	GitCommit = "unknown"
)

// =============================================================================
// 🎯 主函数
// =============================================================================

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	switch os.Args[1] {
	case "serve":
		runServe(os.Args[2:])
	case "workflow":
		runWorkflow(os.Args[2:])
	case "version":
		printVersion()
	case "health":
		runHealthCheck(os.Args[2:])
	case "help", "-h", "--help":
		printUsage()
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", os.Args[1])
		printUsage()
		os.Exit(1)
	}
}

// =============================================================================
// 🖥️ serve 命令
// =============================================================================

func runServe(args []string) {
	// 解析命令行参数
	fs := flag.NewFlagSet("serve", flag.ExitOnError)
	configPath := fs.String("config", "", "Path to config file")
	fs.Parse(args)

	// 加载配置
	loader := config.NewLoader()
	if *configPath != "" {
		loader = loader.WithConfigPath(*configPath)
	}

	cfg, err := loader.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	// 验证配置
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "Invalid config: %v\n", err)
		os.Exit(1)
	}

	// 初始化日志
	logger := initLogger(cfg.Log)
	defer logger.Sync()

	logger.Info("Starting ClipFlow",
		zap.String("version", Version),
		zap.String("build_time", BuildTime),
		zap.String("git_commit", GitCommit),
	)

	// Initialize OpenTelemetry
	otelProviders, err := telemetry.Init(cfg.Telemetry, logger)
	if err != nil {
		logger.Warn("failed to initialize telemetry", zap.Error(err))
	}

	// 创建服务器
	server := NewServer(cfg, logger, otelProviders)

	// 启动服务器
	if err := server.Start(); err != nil {
		logger.Fatal("Failed to start server", zap.Error(err))
	}

	// 等待关闭信号
	server.WaitForShutdown()

	logger.Info("ClipFlow stopped")
}

// =============================================================================
// 🎞️ workflow 命令
// =============================================================================

func runWorkflow(args []string) {
	if len(args) < 1 {
		fmt.Fprintln(os.Stderr, "Usage: clipflow workflow <create|status|cancel> [options]")
		os.Exit(1)
	}

	switch args[0] {
	case "create":
		runWorkflowCreate(args[1:])
	case "status":
		runWorkflowStatus(args[1:])
	case "cancel":
		runWorkflowCancel(args[1:])
	default:
		fmt.Fprintf(os.Stderr, "Unknown workflow subcommand: %s\n", args[0])
		os.Exit(1)
	}
}

func runWorkflowCreate(args []string) {
	fs := flag.NewFlagSet("workflow create", flag.ExitOnError)
	addr := fs.String("addr", "http://localhost:8080", "Server address")
	topic := fs.String("topic", "", "Video topic")
	script := fs.String("script", "", "Explicit narration script, skips content generation input")
	style := fs.String("style", "", "Content style (default/educational/entertainment/lifestyle/business)")
	language := fs.String("language", "", "Source language, auto-detected when empty")
	duration := fs.Int("duration", 0, "Target duration in seconds")
	quality := fs.String("quality", "", "Render quality (low/medium/high/production)")
	voice := fs.String("voice", "", "TTS voice id")
	template := fs.String("template", "", "Render template id")
	translate := fs.Bool("translate", false, "Enable the translation stage")
	targetLang := fs.String("target-language", "", "Translation target language")
	icons := fs.Bool("icons", false, "Enable the icon matching stage")
	priority := fs.Int("priority", 0, "Render priority, higher runs earlier")
	preview := fs.Bool("preview", false, "Render in preview mode")
	wait := fs.Bool("wait", false, "Block until the workflow reaches a terminal state")
	poll := fs.Duration("poll", 2*time.Second, "Poll interval for --wait")
	fs.Parse(args)

	req := workflow.Request{
		Topic: *topic,
		Options: workflow.Options{
			Style:          *style,
			Language:       *language,
			TargetDuration: *duration,
			TargetLanguage: *targetLang,
			Voice:          *voice,
			Quality:        *quality,
			TemplateID:     *template,
			Priority:       *priority,
			PreviewMode:    *preview,
		},
	}
	if *script != "" {
		req.Content = &workflow.VideoContent{Script: *script}
	}
	// 布尔开关只有显式传入时才覆盖服务端默认值
	fs.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "translate":
			req.Options.EnableTranslation = translate
		case "icons":
			req.Options.EnableIconMatching = icons
		}
	})

	var created api.SubmitWorkflowResponse
	if err := callAPI(http.MethodPost, *addr+"/api/v1/workflows", req, &created); err != nil {
		fmt.Fprintf(os.Stderr, "Create workflow failed: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("Workflow created: %s\n", created.ID)

	if !*wait {
		return
	}
	if err := waitForWorkflow(*addr, created.ID, *poll); err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		os.Exit(1)
	}
}

// waitForWorkflow 轮询工作流直到终态，进度变化时打印一行。
func waitForWorkflow(addr, id string, poll time.Duration) error {
	if poll <= 0 {
		poll = 2 * time.Second
	}
	lastProgress := -1.0
	for {
		var wf workflow.Workflow
		if err := callAPI(http.MethodGet, addr+"/api/v1/workflows/"+id, nil, &wf); err != nil {
			return fmt.Errorf("poll workflow: %w", err)
		}
		if wf.Progress != lastProgress {
			lastProgress = wf.Progress
			fmt.Printf("  status=%s progress=%.1f%%\n", wf.Status, wf.Progress)
		}
		if wf.Status.IsTerminal() {
			printWorkflowOutcome(&wf)
			if wf.Status != workflow.StatusSucceeded {
				return fmt.Errorf("workflow %s %s", id, wf.Status)
			}
			return nil
		}
		time.Sleep(poll)
	}
}

func runWorkflowStatus(args []string) {
	fs := flag.NewFlagSet("workflow status", flag.ExitOnError)
	addr := fs.String("addr", "http://localhost:8080", "Server address")
	fs.Parse(args)

	id := fs.Arg(0)
	if id == "" {
		fmt.Fprintln(os.Stderr, "Usage: clipflow workflow status [--addr <url>] <id>")
		os.Exit(1)
	}

	var wf workflow.Workflow
	if err := callAPI(http.MethodGet, *addr+"/api/v1/workflows/"+id, nil, &wf); err != nil {
		fmt.Fprintf(os.Stderr, "Get workflow failed: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("Workflow %s\n", wf.ID)
	fmt.Printf("  Topic:    %s\n", wf.Topic)
	fmt.Printf("  Status:   %s\n", wf.Status)
	fmt.Printf("  Progress: %.1f%%\n", wf.Progress)
	for _, st := range wf.Stages {
		line := fmt.Sprintf("  Stage %-18s %s", st.Name, st.Status)
		if st.Provider != "" {
			line += " (" + st.Provider + ")"
		}
		if st.Error != "" {
			line += " - " + st.Error
		}
		fmt.Println(line)
	}
	printWorkflowOutcome(&wf)
}

// printWorkflowOutcome 打印终态工作流的产物或错误，非终态不打印。
func printWorkflowOutcome(wf *workflow.Workflow) {
	if !wf.Status.IsTerminal() {
		return
	}
	if wf.RenderJobID != "" {
		fmt.Printf("  Render job: %s\n", wf.RenderJobID)
	}
	for _, f := range wf.OutputFiles {
		fmt.Printf("  Output: %s\n", f)
	}
	if wf.Error != nil {
		fmt.Printf("  Error: %s\n", wf.Error.Message)
	}
}

func runWorkflowCancel(args []string) {
	fs := flag.NewFlagSet("workflow cancel", flag.ExitOnError)
	addr := fs.String("addr", "http://localhost:8080", "Server address")
	fs.Parse(args)

	id := fs.Arg(0)
	if id == "" {
		fmt.Fprintln(os.Stderr, "Usage: clipflow workflow cancel [--addr <url>] <id>")
		os.Exit(1)
	}

	var cancelled api.CancelWorkflowResponse
	if err := callAPI(http.MethodPost, *addr+"/api/v1/workflows/"+id+"/cancel", nil, &cancelled); err != nil {
		fmt.Fprintf(os.Stderr, "Cancel workflow failed: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("Cancel accepted: %s\n", cancelled.ID)
}

// =============================================================================
// 🌐 API 客户端辅助
// =============================================================================

// apiEnvelope 管理 API 的统一响应包装
type apiEnvelope struct {
	Success bool                `json:"success"`
	Data    json.RawMessage     `json:"data"`
	Error   *handlers.ErrorInfo `json:"error"`
}

// callAPI 执行一次管理 API 调用并把 data 解码进 out。
// 服务端错误转换为 "CODE: message" 形式的 error。
func callAPI(method, url string, body, out any) error {
	var reqBody io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		reqBody = bytes.NewReader(data)
	}

	req, err := http.NewRequest(method, url, reqBody)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	client := &http.Client{Timeout: 10 * time.Second}
	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	var env apiEnvelope
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		return fmt.Errorf("decode response (status %d): %w", resp.StatusCode, err)
	}
	if !env.Success {
		if env.Error != nil {
			return fmt.Errorf("%s: %s", env.Error.Code, env.Error.Message)
		}
		return fmt.Errorf("request failed with status %d", resp.StatusCode)
	}
	if out != nil {
		if err := json.Unmarshal(env.Data, out); err != nil {
			return fmt.Errorf("decode data: %w", err)
		}
	}
	return nil
}

// =============================================================================
// 🏥 健康检查命令
// =============================================================================

func runHealthCheck(args []string) {
	fs := flag.NewFlagSet("health", flag.ExitOnError)
	addr := fs.String("addr", "http://localhost:8080", "Server address")
	fs.Parse(args)

	client := &http.Client{Timeout: 5 * time.Second}
	resp, err := client.Get(*addr + "/health")
	if err != nil {
		fmt.Fprintf(os.Stderr, "Health check failed: %v\n", err)
		os.Exit(1)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		fmt.Fprintf(os.Stderr, "Health check failed: status %d\n", resp.StatusCode)
		os.Exit(1)
	}

	fmt.Println("OK")
}

// =============================================================================
// 📋 版本和帮助
// =============================================================================

func printVersion() {
	fmt.Printf("ClipFlow %s\n", Version)
	fmt.Printf("  Build Time: %s\n", BuildTime)
	fmt.Printf("  Git Commit: %s\n", GitCommit)
}

func printUsage() {
	fmt.Println(`ClipFlow - Workflow & Render Orchestration Engine

Usage:
  clipflow <command> [options]

Commands:
  serve     Start the ClipFlow server
  workflow  Manage workflows on a running server
  version   Show version information
  health    Check server health
  help      Show this help message

Options for 'serve':
  --config <path>   Path to configuration file (YAML)

Workflow subcommands:
  workflow create   Submit a new video workflow
  workflow status   Show workflow status and stage progress
  workflow cancel   Cancel a pending or running workflow

Examples:
  clipflow serve
  clipflow serve --config /etc/clipflow/config.yaml
  clipflow workflow create --topic "如何高效学习" --style educational --wait
  clipflow workflow create --script "今天我们聊三个记忆技巧。" --quality high
  clipflow workflow status 0b51a9e4-7c1d-4f1e-9f3a-2d8c41b7a6f0
  clipflow workflow cancel 0b51a9e4-7c1d-4f1e-9f3a-2d8c41b7a6f0
  clipflow health --addr http://localhost:8080
  clipflow version`)
}

// =============================================================================
// 🔧 日志初始化
// =============================================================================

func initLogger(cfg config.LogConfig) *zap.Logger {
	// 解析日志级别
	var level zapcore.Level
	switch cfg.Level {
	case "debug":
		level = zapcore.DebugLevel
	case "info":
		level = zapcore.InfoLevel
	case "warn":
		level = zapcore.WarnLevel
	case "error":
		level = zapcore.ErrorLevel
	default:
		level = zapcore.InfoLevel
	}

	// 配置编码器
	var encoderConfig zapcore.EncoderConfig
	if cfg.Format == "console" {
		encoderConfig = zap.NewDevelopmentEncoderConfig()
		encoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	} else {
		encoderConfig = zap.NewProductionEncoderConfig()
		encoderConfig.TimeKey = "timestamp"
		encoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	}

	outputPaths := cfg.OutputPaths
	if len(outputPaths) == 0 {
		outputPaths = []string{"stdout"}
	}

	// 构建配置
	zapConfig := zap.Config{
		Level:            zap.NewAtomicLevelAt(level),
		Development:      cfg.Format == "console",
		EncoderConfig:    encoderConfig,
		OutputPaths:      outputPaths,
		ErrorOutputPaths: []string{"stderr"},
	}

	if cfg.Format == "console" {
		zapConfig.Encoding = "console"
	} else {
		zapConfig.Encoding = "json"
	}

	var opts []zap.Option
	if cfg.EnableCaller {
		opts = append(opts, zap.AddCaller())
	}
	if cfg.EnableStacktrace {
		opts = append(opts, zap.AddStacktrace(zapcore.ErrorLevel))
	}

	// 构建 logger
	logger, err := zapConfig.Build(opts...)
	if err != nil {
		// 回退到基本 logger
		logger, _ = zap.NewProduction()
	}

	return logger
}
