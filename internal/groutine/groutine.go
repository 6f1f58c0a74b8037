// Package groutine starts named goroutines. The name is attached as a pprof
// label so blocked BLE calls are easy to spot in goroutine dumps.
package groutine

import (
	"context"
	"runtime/pprof"
	"sync"
)

// LabelKey is the pprof label carrying the goroutine name.
const LabelKey = "goroutine_name"

// Go starts fn on a goroutine labelled with name.
// If parentCtx is nil, context.Background() is used.
//
//	groutine.Go(ctx, "ble-scan", func(ctx context.Context) {
//	    // work
//	})
func Go(parentCtx context.Context, name string, fn func(ctx context.Context)) {
	if parentCtx == nil {
		parentCtx = context.Background()
	}

	labels := pprof.Labels(LabelKey, name)

	go pprof.Do(parentCtx, labels, fn)
}

// Group tracks named goroutines so an owner can wait for them on shutdown.
type Group struct {
	wg sync.WaitGroup
}

// Go starts fn like the package-level Go and counts it in the group.
func (g *Group) Go(parentCtx context.Context, name string, fn func(ctx context.Context)) {
	g.wg.Add(1)
	Go(parentCtx, name, func(ctx context.Context) {
		defer g.wg.Done()
		fn(ctx)
	})
}

// Wait blocks until every goroutine started through the group has returned.
func (g *Group) Wait() {
	g.wg.Wait()
}
