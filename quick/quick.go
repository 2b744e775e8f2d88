// =============================================================================
// Package quick — One-Line Pipeline Construction
// =============================================================================
// Provides a convenience entry point for running the video workflow engine
// in-process with minimal boilerplate. Delegates to ai, render, workflow,
// cache, and store internally.
//
// The package lives under quick/ (not root) so the root package can stay a
// thin alias surface over it.
//
// Usage:
//
//	import "github.com/BaSui01/clipflow/quick"
//
//	p, err := quick.New(quick.WithMediaDir("./media"))
//	p, err := quick.New(quick.WithProvider(myProvider), quick.WithExecutor(myExec))
//
// =============================================================================
package quick

import (
	"context"
	"errors"
	"fmt"

	"github.com/BaSui01/clipflow/ai"
	"github.com/BaSui01/clipflow/ai/local"
	"github.com/BaSui01/clipflow/ai/retry"
	"github.com/BaSui01/clipflow/cache"
	"github.com/BaSui01/clipflow/config"
	"github.com/BaSui01/clipflow/render"
	"github.com/BaSui01/clipflow/store"
	"github.com/BaSui01/clipflow/workflow"

	"go.uber.org/zap"
)

// Option configures the pipeline created by New.
type Option func(*options)

type options struct {
	logger    *zap.Logger
	mediaDir  string
	quality   render.Quality
	providers []ai.Provider
	chains    map[ai.Capability][]string
	executor  render.Executor
	storage   store.Store
	workflows int
	renders   int
	noLocal   bool
}

// WithProvider registers a custom AI provider. Providers added this way come
// before the built-in local providers in their capability's fallback chain.
func WithProvider(p ai.Provider) Option {
	return func(o *options) { o.providers = append(o.providers, p) }
}

// WithChain overrides the fallback chain for one capability. Every name must
// belong to a registered provider of that capability.
func WithChain(c ai.Capability, names ...string) Option {
	return func(o *options) {
		if o.chains == nil {
			o.chains = make(map[ai.Capability][]string)
		}
		o.chains[c] = names
	}
}

// WithExecutor sets the render executor. Defaults to the built-in simulated
// executor, which writes placeholder artifacts without external tools.
func WithExecutor(e render.Executor) Option {
	return func(o *options) { o.executor = e }
}

// WithStore sets the persistence backend for workflows and render jobs.
// The pipeline takes ownership and closes it on Close. Defaults to an
// in-memory store that is lost on Close.
func WithStore(s store.Store) Option {
	return func(o *options) { o.storage = s }
}

// WithMediaDir sets the directory for rendered video and audio artifacts.
// Defaults to "./media".
func WithMediaDir(dir string) Option {
	return func(o *options) { o.mediaDir = dir }
}

// WithQuality sets the default render quality. Defaults to QualityMedium.
func WithQuality(q render.Quality) Option {
	return func(o *options) { o.quality = q }
}

// WithConcurrency caps concurrently running workflows and render jobs.
// Zero keeps the respective default.
func WithConcurrency(workflows, renders int) Option {
	return func(o *options) {
		o.workflows = workflows
		o.renders = renders
	}
}

// WithLogger sets a custom zap logger. Defaults to zap.NewNop().
func WithLogger(logger *zap.Logger) Option {
	return func(o *options) { o.logger = logger }
}

// WithoutLocalProviders skips registering the built-in offline providers.
// Every capability a workflow needs must then be covered via WithProvider.
func WithoutLocalProviders() Option {
	return func(o *options) { o.noLocal = true }
}

// Pipeline bundles the engine with the components it runs on, so embedded
// callers get a single handle to submit workflows and tear everything down.
type Pipeline struct {
	queue   *render.Queue
	engine  *workflow.Engine
	storage store.Store
	cache   cache.Cache
}

// New creates an in-process pipeline with minimal configuration.
// Without options it runs fully offline: local providers, simulated
// renderer, in-memory store.
func New(opts ...Option) (*Pipeline, error) {
	o := &options{
		mediaDir:  "./media",
		quality:   render.QualityMedium,
		workflows: config.DefaultWorkflowConfig().MaxConcurrent,
		renders:   config.DefaultRenderConfig().MaxConcurrent,
	}
	for _, opt := range opts {
		opt(o)
	}
	if o.logger == nil {
		o.logger = zap.NewNop()
	}

	c, err := cache.New(config.DefaultCacheConfig(), config.RedisConfig{}, o.logger)
	if err != nil {
		return nil, fmt.Errorf("create cache: %w", err)
	}

	storage := o.storage
	if storage == nil {
		storage, err = store.New(config.DefaultStoreConfig(), config.RedisConfig{}, nil, o.logger)
		if err != nil {
			return nil, fmt.Errorf("create store: %w", err)
		}
	}

	// Custom providers register first so they lead their capability chains;
	// local providers land on the chain tails as offline fallbacks.
	registry := ai.NewRegistry()
	for _, p := range o.providers {
		if err := registry.Register(p); err != nil {
			return nil, fmt.Errorf("register provider: %w", err)
		}
	}
	if !o.noLocal {
		if err := local.RegisterAll(registry, o.mediaDir, o.logger); err != nil {
			return nil, fmt.Errorf("register local providers: %w", err)
		}
	}
	for capability, names := range o.chains {
		if err := registry.SetChain(capability, names...); err != nil {
			return nil, fmt.Errorf("configure chain for %s: %w", capability, err)
		}
	}
	for _, required := range []ai.Capability{ai.CapabilityContentGeneration, ai.CapabilityTTS} {
		if registry.Len(required) == 0 {
			return nil, fmt.Errorf("no provider for %s: add one with WithProvider or keep local providers enabled", required)
		}
	}

	aiDefaults := config.DefaultAIConfig()
	orch := ai.NewOrchestrator(registry, c, &ai.OrchestratorConfig{
		CallTimeout: aiDefaults.CallTimeout,
		CacheTTL:    config.DefaultCacheConfig().TTL,
		RetryPolicy: retry.DefaultRetryPolicy(),
	}, nil, o.logger)

	queue := render.NewQueue(o.executor, storage, &render.QueueConfig{
		MaxConcurrent:  o.renders,
		MediaDir:       o.mediaDir,
		DefaultQuality: o.quality,
	}, nil, o.logger)

	wfDefaults := config.DefaultWorkflowConfig()
	engine := workflow.NewEngine(orch, queue, storage, &workflow.EngineConfig{
		MaxConcurrent:   o.workflows,
		DefaultLanguage: wfDefaults.DefaultLanguage,
		DefaultStyle:    wfDefaults.DefaultStyle,
		TargetDuration:  wfDefaults.TargetDuration,
		DefaultQuality:  string(o.quality),
		MediaDir:        o.mediaDir,
	}, nil, o.logger)

	return &Pipeline{
		queue:   queue,
		engine:  engine,
		storage: storage,
		cache:   c,
	}, nil
}

// Submit starts a workflow and returns its ID.
func (p *Pipeline) Submit(ctx context.Context, req workflow.Request) (string, error) {
	return p.engine.Submit(ctx, req)
}

// Get returns a snapshot of one workflow.
func (p *Pipeline) Get(ctx context.Context, id string) (*workflow.Workflow, error) {
	return p.engine.Get(ctx, id)
}

// List returns workflow snapshots matching the filter.
func (p *Pipeline) List(ctx context.Context, filter workflow.Filter) ([]*workflow.Workflow, error) {
	return p.engine.List(ctx, filter)
}

// Cancel requests cancellation of a running workflow.
func (p *Pipeline) Cancel(id string) error {
	return p.engine.Cancel(id)
}

// Watch subscribes to progress events of one workflow. The returned func
// unsubscribes; the channel closes once the workflow reaches a terminal state.
func (p *Pipeline) Watch(id string) (<-chan workflow.Event, func(), error) {
	return p.engine.Watch(id)
}

// Stats reports engine counters.
func (p *Pipeline) Stats() workflow.EngineStats {
	return p.engine.Stats()
}

// RenderStats reports render queue counters.
func (p *Pipeline) RenderStats() render.Stats {
	return p.queue.Stats()
}

// Close stops the engine and queue, then releases store and cache.
// Running workflows are cancelled.
func (p *Pipeline) Close() error {
	p.engine.Close()
	p.queue.Close()
	return errors.Join(p.storage.Close(), p.cache.Close())
}
