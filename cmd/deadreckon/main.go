package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"

	"github.com/alecthomas/kong"
	"gopkg.in/yaml.v3"

	"github.com/opd-ai/go-deadreckon/pkg/config"
	"github.com/opd-ai/go-deadreckon/pkg/engine"
	"github.com/opd-ai/go-deadreckon/pkg/logging"
	"github.com/opd-ai/go-deadreckon/pkg/physics"
	"github.com/opd-ai/go-deadreckon/pkg/render"
	"github.com/opd-ai/go-deadreckon/pkg/scenario"
	"github.com/opd-ai/go-deadreckon/pkg/trajectory"
)

var CLI struct {
	Models string `help:"Model configuration file (.yaml or .json). Defaults are used when empty." type:"existingfile"`

	Run struct {
		Scenarios []string `arg:"" name:"scenarios" help:"Scenario files to propagate." type:"existingfile"`
		Record    string   `help:"Write the trajectory to this file (one scenario only)." placeholder:"FILE.msgpack.zst"`
		Parallel  int      `help:"Maximum scenarios propagated at once." default:"4"`
	} `cmd:"" help:"Propagate scenario files and print every state."`

	Replay struct {
		Recording string `arg:"" name:"recording" help:"Recorded trajectory file." type:"existingfile"`
		Plot      bool   `help:"Draw the ground track after the states."`
		Width     int    `help:"Plot width in characters." default:"72"`
		Height    int    `help:"Plot height in characters." default:"24"`
	} `cmd:"" help:"Print the states of a recorded trajectory."`

	Demo struct {
		Scenario bool `help:"Print the demo as a YAML scenario instead of running it."`
	} `cmd:"" help:"Run the built-in two-step sample session."`

	Config struct {
		Out string `help:"Write to this file instead of standard output. The extension picks YAML or JSON." short:"o"`
	} `cmd:"" help:"Write the default model configuration."`
}

func writeError(err error) {
	fmt.Fprintf(os.Stderr, "%s\n", err)
	os.Exit(1)
}

func main() {
	ctx := kong.Parse(&CLI,
		kong.Name("deadreckon"),
		kong.Description("dead-reckoning kinematic propagation"),
		kong.UsageOnError(),
		kong.ConfigureHelp(kong.HelpOptions{
			Compact: true,
			Summary: true,
		}))

	runCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	var err error
	switch ctx.Command() {
	case "run <scenarios>":
		err = runCommand(runCtx, os.Stdout, CLI.Run.Scenarios, CLI.Run.Record, CLI.Run.Parallel)
	case "replay <recording>":
		width, height := 0, 0
		if CLI.Replay.Plot {
			width, height = CLI.Replay.Width, CLI.Replay.Height
		}
		err = replayCommand(os.Stdout, CLI.Replay.Recording, width, height)
	case "demo":
		err = demoCommand(runCtx, os.Stdout, CLI.Demo.Scenario)
	case "config":
		err = configCommand(os.Stdout, CLI.Config.Out)
	default:
		err = fmt.Errorf("unknown command %q", ctx.Command())
	}
	if err != nil {
		writeError(err)
	}
}

func modelConfig() (*config.ModelConfig, error) {
	cfg := config.DefaultConfig()
	if CLI.Models != "" {
		var err error
		if cfg, err = config.LoadConfig(CLI.Models); err != nil {
			return nil, err
		}
	}
	if err := config.ApplyEnvironmentOverrides(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func runCommand(ctx context.Context, w io.Writer, paths []string, record string, parallel int) error {
	if record != "" && len(paths) != 1 {
		return fmt.Errorf("--record needs exactly one scenario, got %d", len(paths))
	}

	cfg, err := modelConfig()
	if err != nil {
		return err
	}

	scenarios := make([]*scenario.Scenario, 0, len(paths))
	for _, path := range paths {
		s, err := scenario.Load(path)
		if err != nil {
			return err
		}
		scenarios = append(scenarios, s)
	}

	sessions, err := propagateScenarios(ctx, cfg, scenarios, parallel)
	if err != nil {
		return err
	}

	for i, sess := range sessions {
		if len(sessions) > 1 {
			if i > 0 {
				fmt.Fprintln(w)
			}
			fmt.Fprintf(w, "== %s\n", sess.scenario.Name)
		}
		if err := sess.print(w); err != nil {
			return err
		}
	}

	if record != "" {
		sess := sessions[0]
		path := record
		if !strings.HasSuffix(path, trajectory.Extension) {
			path += trajectory.Extension
		}
		class := sess.scenario.Class
		if class == "" {
			class = cfg.DefaultClass
		}
		t := &trajectory.Trajectory{Name: sess.scenario.Name, Class: class, States: sess.states}
		if err := t.WriteFile(path); err != nil {
			return err
		}
		logging.NewLoggerWithWriter(os.Stderr).Info(ctx, "Trajectory recorded",
			"path", path,
			"states", len(sess.states),
		)
	}
	return nil
}

// replayCommand prints a recording. A positive width and height also draw
// its ground track.
func replayCommand(w io.Writer, path string, width, height int) error {
	t, err := trajectory.ReadFile(path)
	if err != nil {
		return err
	}
	fmt.Fprintf(w, "# %s (%s), %d states\n", t.Name, t.Class, len(t.States))
	if err := t.WriteText(w); err != nil {
		return err
	}
	if width <= 0 || height <= 0 {
		return nil
	}

	plot := render.NewTrackRenderer(width, height)
	plot.Fit(t.States)
	plot.Plot(t.States)
	fmt.Fprintf(w, "\n# ground track, %v per cell\n", plot.Scale())
	return plot.Render(w)
}

func demoCommand(ctx context.Context, w io.Writer, asScenario bool) error {
	demo := scenario.Demo()
	if asScenario {
		data, err := scenario.Marshal(demo, scenario.FormatYAML)
		if err != nil {
			return err
		}
		_, err = w.Write(data)
		return err
	}

	sessions, err := propagateScenarios(ctx, config.DefaultConfig(), []*scenario.Scenario{demo}, 1)
	if err != nil {
		return err
	}
	return sessions[0].print(w)
}

func configCommand(w io.Writer, out string) error {
	if out != "" {
		return config.SaveConfig(config.DefaultConfig(), out)
	}
	data, err := yaml.Marshal(config.DefaultConfig())
	if err != nil {
		return err
	}
	_, err = w.Write(data)
	return err
}

// session is a propagated scenario: states[0] is the initial state and
// states[i+1] follows steps[i].
type session struct {
	scenario *scenario.Scenario
	steps    []scenario.Step
	states   []physics.StateVector
}

func propagateScenarios(ctx context.Context, cfg *config.ModelConfig, scenarios []*scenario.Scenario, parallel int) ([]session, error) {
	sessions := make([]session, len(scenarios))
	runs := make([]engine.Run, len(scenarios))

	for i, s := range scenarios {
		steps, err := s.ResolveSteps()
		if err != nil {
			return nil, fmt.Errorf("scenario %q: %w", s.Name, err)
		}
		run, err := s.EngineRun(cfg)
		if err != nil {
			return nil, fmt.Errorf("scenario %q: %w", s.Name, err)
		}
		sessions[i] = session{scenario: s, steps: steps}
		runs[i] = run
	}

	results, err := engine.PropagateAll(ctx, runs, parallel)
	if err != nil {
		return nil, err
	}
	for i, res := range results {
		sessions[i].states = res.States
	}
	return sessions, nil
}

// print writes each step as its label, the state before it and the state
// after it, with a blank line between steps.
func (s session) print(w io.Writer) error {
	if len(s.steps) == 0 {
		_, err := fmt.Fprintf(w, "initial: %v\n", s.states[0])
		return err
	}

	for i, step := range s.steps {
		if i > 0 {
			fmt.Fprintln(w)
		}
		if step.Label != "" {
			fmt.Fprintln(w, step.Label)
		}
		fmt.Fprintf(w, "initial: %v\n", s.states[i])
		if _, err := fmt.Fprintf(w, "update : %v\n", s.states[i+1]); err != nil {
			return err
		}
	}
	return nil
}
