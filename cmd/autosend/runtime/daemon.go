package runtime

import (
	"fmt"

	"github.com/harunnryd/autosend/internal/api"
	"github.com/harunnryd/autosend/internal/daemon"
	"github.com/harunnryd/autosend/internal/daemon/components"
	"github.com/harunnryd/autosend/internal/ingress"
	"github.com/harunnryd/autosend/internal/runner"
)

// NewDaemon registers the long-running components over an already built
// runtime. Runner and AMQP ingress are only added when enabled.
func NewDaemon(rt *RuntimeComponents) (*daemon.Daemon, error) {
	if rt == nil || rt.Config == nil {
		return nil, fmt.Errorf("runtime not provided")
	}
	cfg := rt.Config

	d, err := daemon.NewDaemon(cfg)
	if err != nil {
		return nil, err
	}

	d.AddComponent(components.NewDatabaseComponent(rt.DB, cfg.Store.MigrateOnStart))

	httpDeps := []string{"database"}

	if cfg.Runner.Enabled {
		r, err := runner.New(rt.Jobs, rt.Decisions, cfg.Runner)
		if err != nil {
			return nil, fmt.Errorf("init runner: %w", err)
		}
		d.AddComponent(components.NewRunnerComponent(r, "database"))
		httpDeps = append(httpDeps, "runner")
	}

	if cfg.Ingress.AMQP.Enabled {
		handler := ingress.NewHandler(rt.Decisions, rt.Loader, ingress.Defaults{})
		consumer, err := ingress.NewConsumer(handler, cfg.Ingress.AMQP)
		if err != nil {
			return nil, fmt.Errorf("init amqp ingress: %w", err)
		}
		d.AddComponent(components.NewIngressComponent(consumer, "database"))
	}

	server := api.NewServer(api.Deps{
		Executor: rt.Decisions,
		Jobs:     rt.Jobs,
		Loader:   rt.Loader,
		Health:   d.HealthErrors,
		Uptime:   d.Uptime,
	})
	d.AddComponent(components.NewHTTPServerComponent(&cfg.Server, server.Routes(), httpDeps...))

	return d, nil
}
