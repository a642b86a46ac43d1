package engine

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/opd-ai/go-deadreckon/pkg/physics"
)

func TestPropagate(t *testing.T) {
	model := physics.DefaultModel()
	initial := physics.StateVector{XDot: 1}
	steps := []Step{
		{Command: HeadingCommand{Theta: 0}, Dt: 0.1},
		{Command: TurnRateCommand{ThetaDot: 20}, Dt: 0.1},
		{Command: AttitudeCommand{Theta: 0.1, Psi: 0.2}, Dt: 0.5},
	}

	states, err := Propagate(context.Background(), model, initial, steps)
	if err != nil {
		t.Fatalf("Propagate failed: %v", err)
	}
	if len(states) != len(steps)+1 {
		t.Fatalf("expected %d states, got %d", len(steps)+1, len(states))
	}
	if states[0] != initial {
		t.Errorf("first state must be the initial state, got %v", states[0])
	}

	want := initial
	for i, step := range steps {
		want = step.Command.Apply(want, step.Dt, model)
		if states[i+1] != want {
			t.Errorf("state %d = %v, want %v", i+1, states[i+1], want)
		}
	}

	if states[2].ThetaDot != physics.DefaultOmegaMax {
		t.Errorf("expected turn rate clamped to %v, got %v", physics.DefaultOmegaMax, states[2].ThetaDot)
	}
}

func TestPropagate_NoSteps(t *testing.T) {
	initial := physics.StateVector{X: 5}
	states, err := Propagate(context.Background(), physics.DefaultModel(), initial, nil)
	if err != nil {
		t.Fatalf("Propagate failed: %v", err)
	}
	if len(states) != 1 || states[0] != initial {
		t.Errorf("expected only the initial state, got %v", states)
	}
}

func TestPropagate_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	states, err := Propagate(ctx, physics.DefaultModel(), physics.StateVector{}, []Step{{Command: HoldCommand{}, Dt: 1}})
	if !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
	if len(states) != 1 {
		t.Errorf("expected propagation to stop before the first step, got %d states", len(states))
	}
}

func TestPropagate_MissingCommand(t *testing.T) {
	_, err := Propagate(context.Background(), physics.DefaultModel(), physics.StateVector{}, []Step{{Dt: 1}})
	if !errors.Is(err, ErrUnknownCommand) {
		t.Errorf("expected ErrUnknownCommand, got %v", err)
	}
}

func TestPropagateAll(t *testing.T) {
	runs := make([]Run, 8)
	for i := range runs {
		runs[i] = Run{
			Name:    fmt.Sprintf("run-%d", i),
			Model:   physics.DefaultModel(),
			Initial: physics.StateVector{XDot: float64(i + 1)},
			Steps:   []Step{{Command: HeadingCommand{Theta: 0.1}, Dt: 1}, {Command: HoldCommand{}, Dt: 1}},
		}
	}

	results, err := PropagateAll(context.Background(), runs, 3)
	if err != nil {
		t.Fatalf("PropagateAll failed: %v", err)
	}
	if len(results) != len(runs) {
		t.Fatalf("expected %d results, got %d", len(runs), len(results))
	}

	for i, result := range results {
		if result.Name != runs[i].Name {
			t.Errorf("result %d is %q, want %q", i, result.Name, runs[i].Name)
		}
		want, _ := Propagate(context.Background(), runs[i].Model, runs[i].Initial, runs[i].Steps)
		for j := range want {
			if result.States[j] != want[j] {
				t.Errorf("%s state %d differs from sequential propagation", result.Name, j)
			}
		}
	}
}

func TestPropagateAll_FailureNamesRun(t *testing.T) {
	runs := []Run{
		{Name: "good", Model: physics.DefaultModel(), Steps: []Step{{Command: HoldCommand{}, Dt: 1}}},
		{Name: "bad", Model: physics.DefaultModel(), Steps: []Step{{Dt: 1}}},
	}

	_, err := PropagateAll(context.Background(), runs, 0)
	if err == nil {
		t.Fatal("expected error")
	}
	if !errors.Is(err, ErrUnknownCommand) {
		t.Errorf("expected wrapped ErrUnknownCommand, got %v", err)
	}
}
