package components

import (
	"context"
	"io"
	"net"
	"net/http"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"

	"github.com/harunnryd/autosend/internal/autosend"
	"github.com/harunnryd/autosend/internal/config"
	"github.com/harunnryd/autosend/internal/jobs"
	"github.com/harunnryd/autosend/internal/runner"
)

func TestHTTPServerComponent_Lifecycle(t *testing.T) {
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, "ok")
	})
	comp := NewHTTPServerComponent(&config.ServerConfig{Port: 0}, handler, "runner")

	if deps := comp.Dependencies(); len(deps) != 1 || deps[0] != "runner" {
		t.Fatalf("dependencies = %v, want [runner]", deps)
	}
	deps := comp.Dependencies()
	deps[0] = "mutated"
	if comp.Dependencies()[0] != "runner" {
		t.Fatal("Dependencies() must return a copy")
	}

	ctx := context.Background()
	if h, _ := comp.Health(ctx); h.Healthy {
		t.Fatal("expected unhealthy before init")
	}
	if err := comp.Init(ctx); err != nil {
		t.Fatalf("Init() error = %v", err)
	}
	if err := comp.Start(ctx); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	defer comp.Stop(ctx)

	_, port, err := net.SplitHostPort(comp.Addr())
	if err != nil {
		t.Fatalf("split addr: %v", err)
	}
	resp, err := http.Get("http://127.0.0.1:" + port + "/")
	if err != nil {
		t.Fatalf("GET error = %v", err)
	}
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	if string(body) != "ok" {
		t.Fatalf("body = %q, want ok", body)
	}

	if h, _ := comp.Health(ctx); !h.Healthy {
		t.Fatalf("expected healthy, got %v", h.Error)
	}
	if err := comp.Stop(ctx); err != nil {
		t.Fatalf("Stop() error = %v", err)
	}
}

func TestDatabaseComponent(t *testing.T) {
	db, mock, err := sqlmock.New(sqlmock.MonitorPingsOption(true))
	if err != nil {
		t.Fatal(err)
	}

	mock.ExpectExec("CREATE TABLE IF NOT EXISTS workspaces").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectPing()
	mock.ExpectClose()

	comp := NewDatabaseComponent(db, true)
	ctx := context.Background()
	if err := comp.Init(ctx); err != nil {
		t.Fatalf("Init() error = %v", err)
	}
	if h, _ := comp.Health(ctx); !h.Healthy {
		t.Fatalf("expected healthy, got %v", h.Error)
	}
	if err := comp.Stop(ctx); err != nil {
		t.Fatalf("Stop() error = %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatal(err)
	}
}

type noDue struct{}

func (noDue) ListDue(context.Context, time.Time, int) ([]jobs.Job, error) { return nil, nil }

type noExec struct{}

func (noExec) ValidateAndExecute(context.Context, string) autosend.Outcome {
	return autosend.Skip{Reason: autosend.ReasonJobNotFound}
}

func TestRunnerComponent(t *testing.T) {
	r, err := runner.New(noDue{}, noExec{}, config.RunnerConfig{Schedule: "@every 1h"})
	if err != nil {
		t.Fatal(err)
	}
	comp := NewRunnerComponent(r, "database")
	ctx := context.Background()

	if err := comp.Init(ctx); err != nil {
		t.Fatalf("Init() error = %v", err)
	}
	if err := comp.Start(ctx); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	if h, _ := comp.Health(ctx); !h.Healthy {
		t.Fatalf("expected healthy, got %v", h.Error)
	}
	if err := comp.Stop(ctx); err != nil {
		t.Fatalf("Stop() error = %v", err)
	}
	if h, _ := comp.Health(ctx); h.Healthy {
		t.Fatal("expected unhealthy after stop")
	}
}
