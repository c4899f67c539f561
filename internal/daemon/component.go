package daemon

import (
	"context"
)

type HealthStatus string

const (
	StatusStarting HealthStatus = "starting"
	StatusRunning  HealthStatus = "running"
	StatusStopping HealthStatus = "stopping"
	StatusStopped  HealthStatus = "stopped"
)

type ComponentHealth struct {
	Name    string
	Healthy bool
	Error   error
}

// NewComponentHealth reports name as healthy exactly when err is nil.
func NewComponentHealth(name string, err error) *ComponentHealth {
	return &ComponentHealth{Name: name, Healthy: err == nil, Error: err}
}

// Component is one lifecycle unit of the daemon. Dependencies name other
// components that must finish Init and Start first; Stop runs in reverse.
type Component interface {
	Name() string
	Dependencies() []string
	Init(ctx context.Context) error
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
	Health(ctx context.Context) (*ComponentHealth, error)
}
