package daemon

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/harunnryd/autosend/internal/config"
)

type mockComponent struct {
	name         string
	dependencies []string
	log          *callLog
	initCalled   bool
	startCalled  bool
	stopCalled   bool
	initError    error
	startError   error
	stopError    error
	healthError  error
	healthResult *ComponentHealth
}

type callLog struct {
	mu    sync.Mutex
	calls []string
}

func (l *callLog) add(call string) {
	if l == nil {
		return
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.calls = append(l.calls, call)
}

func newMockComponent(name string, dependencies []string, log *callLog) *mockComponent {
	return &mockComponent{
		name:         name,
		dependencies: dependencies,
		log:          log,
		healthResult: &ComponentHealth{Name: name, Healthy: true},
	}
}

func (m *mockComponent) Name() string           { return m.name }
func (m *mockComponent) Dependencies() []string { return m.dependencies }

func (m *mockComponent) Init(ctx context.Context) error {
	m.initCalled = true
	m.log.add("init:" + m.name)
	return m.initError
}

func (m *mockComponent) Start(ctx context.Context) error {
	m.startCalled = true
	m.log.add("start:" + m.name)
	return m.startError
}

func (m *mockComponent) Stop(ctx context.Context) error {
	m.stopCalled = true
	m.log.add("stop:" + m.name)
	return m.stopError
}

func (m *mockComponent) Health(ctx context.Context) (*ComponentHealth, error) {
	return m.healthResult, m.healthError
}

func validConfig() *config.Config {
	return &config.Config{
		Server:   config.ServerConfig{Port: 8080},
		AutoSend: config.AutoSendConfig{DefaultThreshold: 0.9, MaxAttempts: 3},
		Store:    config.StoreConfig{Driver: "file"},
		Notify:   config.NotifyConfig{Transport: "null"},
		Daemon:   config.DaemonConfig{ShutdownTimeout: "1s", HealthCheckInterval: "1h"},
	}
}

func TestNewDaemon(t *testing.T) {
	if _, err := NewDaemon(nil); err == nil {
		t.Fatal("expected error for nil config")
	}

	d, err := NewDaemon(validConfig())
	if err != nil {
		t.Fatalf("NewDaemon() error = %v", err)
	}
	if len(d.components) != 0 {
		t.Errorf("components = %d, want 0", len(d.components))
	}
	if d.Health() != StatusStarting {
		t.Errorf("Health = %v, want %v", d.Health(), StatusStarting)
	}
}

func TestValidateConfig(t *testing.T) {
	cfg := validConfig()
	cfg.Server.Port = 0
	d, _ := NewDaemon(cfg)
	if err := d.validateConfig(); err == nil {
		t.Error("expected error for port 0")
	}

	cfg = validConfig()
	cfg.Store.Driver = "sqlite"
	d, _ = NewDaemon(cfg)
	if err := d.validateConfig(); err == nil {
		t.Error("expected error for unknown store driver")
	}
}

func TestInitializeComponents_DependencyOrder(t *testing.T) {
	log := &callLog{}
	d, _ := NewDaemon(validConfig())

	d.AddComponent(newMockComponent("http", []string{"runner", "database"}, log))
	d.AddComponent(newMockComponent("runner", []string{"database"}, log))
	d.AddComponent(newMockComponent("database", nil, log))

	if err := d.initializeComponents(context.Background()); err != nil {
		t.Fatalf("initializeComponents() error = %v", err)
	}

	want := []string{"init:database", "init:runner", "init:http"}
	if fmt.Sprint(log.calls) != fmt.Sprint(want) {
		t.Errorf("calls = %v, want %v", log.calls, want)
	}
}

func TestInitializeComponentsCircularDependency(t *testing.T) {
	d, _ := NewDaemon(validConfig())
	d.AddComponent(newMockComponent("a", []string{"b"}, nil))
	d.AddComponent(newMockComponent("b", []string{"a"}, nil))

	if err := d.initializeComponents(context.Background()); err == nil {
		t.Error("expected error for circular dependency")
	}
}

func TestInitializeComponentsMissingDependency(t *testing.T) {
	d, _ := NewDaemon(validConfig())
	d.AddComponent(newMockComponent("a", []string{"missing"}, nil))

	if err := d.initializeComponents(context.Background()); err == nil {
		t.Error("expected error for missing dependency")
	}
}

func TestShutdownReversesStartOrder(t *testing.T) {
	log := &callLog{}
	d, _ := NewDaemon(validConfig())
	d.AddComponent(newMockComponent("http", []string{"database"}, log))
	d.AddComponent(newMockComponent("database", nil, log))

	ctx := context.Background()
	if err := d.initializeComponents(ctx); err != nil {
		t.Fatal(err)
	}
	if err := d.startComponents(ctx); err != nil {
		t.Fatal(err)
	}
	if err := d.shutdownComponents(ctx); err != nil {
		t.Fatal(err)
	}

	want := []string{"init:database", "init:http", "start:database", "start:http", "stop:http", "stop:database"}
	if fmt.Sprint(log.calls) != fmt.Sprint(want) {
		t.Errorf("calls = %v, want %v", log.calls, want)
	}
	if d.Health() != StatusStopped {
		t.Errorf("Health = %v, want %v", d.Health(), StatusStopped)
	}
}

func TestShutdownCollectsStopErrors(t *testing.T) {
	d, _ := NewDaemon(validConfig())
	failing := newMockComponent("a", nil, nil)
	failing.stopError = fmt.Errorf("close failed")
	other := newMockComponent("b", nil, nil)
	d.AddComponent(failing)
	d.AddComponent(other)

	if err := d.shutdownComponents(context.Background()); err == nil {
		t.Error("expected stop error")
	}
	if !other.stopCalled {
		t.Error("b.Stop() should run even when a fails")
	}
}

func TestComponentHealth(t *testing.T) {
	d, _ := NewDaemon(validConfig())

	ok := newMockComponent("ok", nil, nil)
	bad := newMockComponent("bad", nil, nil)
	bad.healthResult = nil
	bad.healthError = fmt.Errorf("ping failed")

	d.AddComponent(ok)
	d.AddComponent(bad)

	healths := d.ComponentHealth(context.Background())
	if !healths["ok"].Healthy {
		t.Error("ok should be healthy")
	}
	if healths["bad"].Healthy || healths["bad"].Error == nil {
		t.Errorf("bad = %+v, want unhealthy with error", healths["bad"])
	}

	errs := d.HealthErrors(context.Background())
	if errs["ok"] != nil || errs["bad"] == nil {
		t.Errorf("HealthErrors = %v", errs)
	}
}

func TestStart_RollsBackOnInitFailure(t *testing.T) {
	d, _ := NewDaemon(validConfig())
	good := newMockComponent("good", nil, nil)
	broken := newMockComponent("broken", []string{"good"}, nil)
	broken.initError = fmt.Errorf("boom")
	d.AddComponent(good)
	d.AddComponent(broken)

	if err := d.Start(context.Background()); err == nil {
		t.Fatal("expected init failure")
	}
	if !good.stopCalled {
		t.Error("good.Stop() was not called during rollback")
	}
	if broken.startCalled {
		t.Error("broken.Start() should not be called")
	}
}

func TestStart_StopsOnContextCancel(t *testing.T) {
	d, _ := NewDaemon(validConfig())
	comp := newMockComponent("only", nil, nil)
	d.AddComponent(comp)

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- d.Start(ctx) }()

	deadline := time.Now().Add(2 * time.Second)
	for d.Health() != StatusRunning {
		if time.Now().After(deadline) {
			t.Fatal("daemon did not reach running")
		}
		time.Sleep(5 * time.Millisecond)
	}
	cancel()

	select {
	case err := <-errCh:
		if err != context.Canceled {
			t.Errorf("Start() error = %v, want context.Canceled", err)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("daemon did not stop")
	}
	if !comp.stopCalled {
		t.Error("Stop() was not called")
	}
}

func TestNewDaemon_RejectsBadTimings(t *testing.T) {
	cfg := validConfig()
	cfg.Daemon.ShutdownTimeout = "forever"
	if _, err := NewDaemon(cfg); err == nil {
		t.Error("expected error for unparseable shutdown timeout")
	}

	cfg = validConfig()
	cfg.Daemon.HealthCheckInterval = "0s"
	if _, err := NewDaemon(cfg); err == nil {
		t.Error("expected error for zero health check interval")
	}
}

func TestUptimeCountsFromConstruction(t *testing.T) {
	d, err := NewDaemon(validConfig())
	if err != nil {
		t.Fatalf("NewDaemon() error = %v", err)
	}
	first := d.Uptime()
	time.Sleep(5 * time.Millisecond)
	if second := d.Uptime(); second <= first {
		t.Errorf("uptime did not advance: %v then %v", first, second)
	}
}
