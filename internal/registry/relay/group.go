package relay

import (
	"context"

	"golang.org/x/sync/errgroup"
)

// Group runs one Worker per sink. Each worker keeps its own cursor, so a slow
// or failing sink does not hold back the others.
type Group struct {
	workers []*Worker
}

func NewGroup(workers ...*Worker) *Group {
	return &Group{workers: workers}
}

func (g *Group) Len() int { return len(g.workers) }

// Notify wakes every worker.
func (g *Group) Notify() {
	for _, w := range g.workers {
		w.Notify()
	}
}

// Run blocks until ctx is cancelled or a worker returns an error.
func (g *Group) Run(ctx context.Context) error {
	eg, ctx := errgroup.WithContext(ctx)
	for _, w := range g.workers {
		eg.Go(func() error { return w.Run(ctx) })
	}
	return eg.Wait()
}
