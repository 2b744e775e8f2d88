// Package clipflow provides a top-level convenience entry point for running
// the video workflow pipeline in-process with minimal boilerplate.
//
// Usage:
//
//	import "github.com/BaSui01/clipflow"
//
//	p, err := clipflow.New(clipflow.WithMediaDir("./media"))
//	p, err := clipflow.New(clipflow.WithProvider(myProvider), clipflow.WithExecutor(myExec))
//
// This is a thin wrapper around [quick.New]; both produce identical results.
// Use this package when you prefer the shorter import path.
package clipflow

import (
	"github.com/BaSui01/clipflow/quick"
)

// Option configures the pipeline created by [New].
type Option = quick.Option

// Pipeline is the embedded engine handle returned by [New].
type Pipeline = quick.Pipeline

// New creates a [quick.Pipeline] with minimal configuration. Without options
// it runs fully offline: local providers, simulated renderer, in-memory store.
func New(opts ...Option) (*Pipeline, error) {
	return quick.New(opts...)
}

// Re-export construction options so callers never need to import quick/.

// WithProvider registers a custom AI provider ahead of the local fallbacks.
var WithProvider = quick.WithProvider

// WithChain overrides the fallback chain for one capability.
var WithChain = quick.WithChain

// WithExecutor sets the render executor.
var WithExecutor = quick.WithExecutor

// WithStore sets the persistence backend.
var WithStore = quick.WithStore

// WithMediaDir sets the artifact output directory.
var WithMediaDir = quick.WithMediaDir

// WithQuality sets the default render quality.
var WithQuality = quick.WithQuality

// WithConcurrency caps concurrently running workflows and render jobs.
var WithConcurrency = quick.WithConcurrency

// WithLogger sets a custom zap logger.
var WithLogger = quick.WithLogger

// WithoutLocalProviders skips registering the built-in offline providers.
var WithoutLocalProviders = quick.WithoutLocalProviders
