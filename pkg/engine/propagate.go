// pkg/engine/propagate.go
package engine

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"

	"github.com/opd-ai/go-deadreckon/pkg/physics"
)

// Step is one command applied for Dt seconds
type Step struct {
	Command Command
	Dt      float64
}

// Propagate applies steps to initial in order and returns every state,
// starting with initial itself. It stops early with ctx.Err() if ctx is
// cancelled between steps.
func Propagate(ctx context.Context, model physics.Model, initial physics.StateVector, steps []Step) ([]physics.StateVector, error) {
	states := make([]physics.StateVector, 0, len(steps)+1)
	states = append(states, initial)

	current := initial
	for i, step := range steps {
		if err := ctx.Err(); err != nil {
			return states, err
		}
		if step.Command == nil {
			return states, fmt.Errorf("step %d: %w: missing command", i, ErrUnknownCommand)
		}
		current = step.Command.Apply(current, step.Dt, model)
		states = append(states, current)
	}

	return states, nil
}

// Run describes one independent propagation for PropagateAll
type Run struct {
	Name    string
	Model   physics.Model
	Initial physics.StateVector
	Steps   []Step
}

// Result holds the states produced for a Run
type Result struct {
	Name   string
	States []physics.StateVector
}

// PropagateAll propagates runs concurrently, at most limit at a time
// (limit <= 0 means no limit). Results keep the order of runs. The first
// failure cancels the remaining runs.
func PropagateAll(ctx context.Context, runs []Run, limit int) ([]Result, error) {
	results := make([]Result, len(runs))

	eg, ctx := errgroup.WithContext(ctx)
	if limit > 0 {
		eg.SetLimit(limit)
	}

	for i, run := range runs {
		i, run := i, run
		eg.Go(func() error {
			states, err := Propagate(ctx, run.Model, run.Initial, run.Steps)
			if err != nil {
				return fmt.Errorf("%s: %w", run.Name, err)
			}
			results[i] = Result{Name: run.Name, States: states}
			return nil
		})
	}

	if err := eg.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}
