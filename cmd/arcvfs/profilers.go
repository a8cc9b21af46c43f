package main

import (
	"context"
	"log/slog"
	"os"
	"runtime/pprof"
)

// profiler runs a profile from its start until it is stopped.
//
//nolint:containedctx
type profiler struct {
	ctx      context.Context
	cancel   context.CancelFunc
	doneChan chan struct{}
}

func newProfiler(ctx context.Context, run func(ctx context.Context)) *profiler {
	p := &profiler{doneChan: make(chan struct{})}
	p.ctx, p.cancel = context.WithCancel(ctx)

	go func() {
		defer close(p.doneChan)
		run(p.ctx)
	}()

	return p
}

func (p *profiler) Stop() {
	p.cancel()
	<-p.doneChan
}

// NewCPUProfiler returns a pointer to a new profiler writing a CPU profile
// to path, doing nothing if path is empty.
func NewCPUProfiler(ctx context.Context, path *string) *profiler { //nolint:revive
	return newProfiler(ctx, func(ctx context.Context) {
		if path == nil || *path == "" {
			return
		}

		f, err := os.Create(*path)
		if err != nil {
			slog.Error("Could not create cpu profile.", "path", *path, "err", err)

			return
		}
		defer f.Close()

		if err := pprof.StartCPUProfile(f); err != nil {
			slog.Error("Could not start cpu profile.", "err", err)

			return
		}
		defer pprof.StopCPUProfile()

		<-ctx.Done()
	})
}

// NewAllocProfiler returns a pointer to a new profiler writing the
// allocations profile to path when it is stopped.
func NewAllocProfiler(ctx context.Context, path *string) *profiler { //nolint:revive
	return newProfiler(ctx, func(ctx context.Context) {
		if path == nil || *path == "" {
			return
		}

		<-ctx.Done()

		f, err := os.Create(*path)
		if err != nil {
			slog.Error("Could not create allocs profile.", "path", *path, "err", err)

			return
		}
		defer f.Close()

		if err := pprof.Lookup("allocs").WriteTo(f, 0); err != nil {
			slog.Error("Could not write allocs profile.", "err", err)
		}
	})
}
