package components

import (
	"context"
	"fmt"

	"github.com/harunnryd/autosend/internal/daemon"
	"github.com/harunnryd/autosend/internal/ingress"
)

type IngressComponent struct {
	consumer *ingress.Consumer
	deps     []string
}

func NewIngressComponent(consumer *ingress.Consumer, dependencies ...string) *IngressComponent {
	return &IngressComponent{consumer: consumer, deps: append([]string(nil), dependencies...)}
}

func (c *IngressComponent) Name() string { return "ingress" }

func (c *IngressComponent) Dependencies() []string {
	return append([]string(nil), c.deps...)
}

func (c *IngressComponent) Init(ctx context.Context) error {
	if c.consumer == nil {
		return fmt.Errorf("amqp consumer not provided")
	}
	return nil
}

func (c *IngressComponent) Start(ctx context.Context) error {
	return c.consumer.Start(ctx)
}

func (c *IngressComponent) Stop(ctx context.Context) error {
	if c.consumer == nil {
		return nil
	}
	return c.consumer.Stop(ctx)
}

func (c *IngressComponent) Health(ctx context.Context) (*daemon.ComponentHealth, error) {
	if c.consumer == nil {
		return daemon.NewComponentHealth(c.Name(), fmt.Errorf("not initialized")), nil
	}
	return daemon.NewComponentHealth(c.Name(), c.consumer.Health(ctx)), nil
}
