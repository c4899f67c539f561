package components

import (
	"context"
	"fmt"

	"github.com/harunnryd/autosend/internal/daemon"
	"github.com/harunnryd/autosend/internal/runner"
)

type RunnerComponent struct {
	runner *runner.Runner
	deps   []string
}

func NewRunnerComponent(r *runner.Runner, dependencies ...string) *RunnerComponent {
	return &RunnerComponent{runner: r, deps: append([]string(nil), dependencies...)}
}

func (c *RunnerComponent) Name() string { return "runner" }

func (c *RunnerComponent) Dependencies() []string {
	return append([]string(nil), c.deps...)
}

func (c *RunnerComponent) Init(ctx context.Context) error {
	if c.runner == nil {
		return fmt.Errorf("runner not provided")
	}
	return c.runner.Init(ctx)
}

func (c *RunnerComponent) Start(ctx context.Context) error {
	return c.runner.Start(ctx)
}

func (c *RunnerComponent) Stop(ctx context.Context) error {
	if c.runner == nil {
		return nil
	}
	return c.runner.Stop(ctx)
}

func (c *RunnerComponent) Health(ctx context.Context) (*daemon.ComponentHealth, error) {
	if c.runner == nil {
		return daemon.NewComponentHealth(c.Name(), fmt.Errorf("not initialized")), nil
	}
	return daemon.NewComponentHealth(c.Name(), c.runner.Health(ctx)), nil
}
