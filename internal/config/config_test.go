package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/cobra"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	t.Setenv("OPENAI_API_KEY", "")
	t.Setenv("ANTHROPIC_API_KEY", "")
	t.Setenv("GEMINI_API_KEY", "")
	t.Setenv("DATABASE_URL", "")

	// We pass nil for cmd to skip flags
	cfg, err := Load(nil)
	if err != nil {
		t.Fatalf("Failed to load config: %v", err)
	}

	if cfg.Server.Port != DefaultServerPort {
		t.Errorf("Expected default port %d, got %d", DefaultServerPort, cfg.Server.Port)
	}
	if cfg.AutoSend.KillSwitch {
		t.Errorf("Expected kill switch to default to off")
	}
	if cfg.AutoSend.KillSwitchEnv != DefaultKillSwitchEnv {
		t.Errorf("Expected kill switch env %s, got %s", DefaultKillSwitchEnv, cfg.AutoSend.KillSwitchEnv)
	}
	if cfg.AutoSend.DefaultThreshold != DefaultThreshold {
		t.Errorf("Expected default threshold %v, got %v", DefaultThreshold, cfg.AutoSend.DefaultThreshold)
	}
	if cfg.AutoSend.PastRunBuffer != DefaultPastRunBuffer {
		t.Errorf("Expected past run buffer %s, got %s", DefaultPastRunBuffer, cfg.AutoSend.PastRunBuffer)
	}
	if cfg.AutoSend.MaxAttempts != DefaultMaxAttempts {
		t.Errorf("Expected max attempts %d, got %d", DefaultMaxAttempts, cfg.AutoSend.MaxAttempts)
	}
	if !cfg.AutoSend.RevisionEnabled {
		t.Errorf("Expected revision to be enabled by default")
	}
	if cfg.AutoSend.EvaluationTimeout != DefaultEvaluationTimeout {
		t.Errorf("Expected evaluation timeout %s, got %s", DefaultEvaluationTimeout, cfg.AutoSend.EvaluationTimeout)
	}
	if len(cfg.Safety.OptOutPhrases) != len(DefaultOptOutPhrases) {
		t.Errorf("Expected %d opt-out phrases, got %d", len(DefaultOptOutPhrases), len(cfg.Safety.OptOutPhrases))
	}
	if cfg.Models.Default != DefaultModelDefault {
		t.Errorf("Expected default model %s, got %s", DefaultModelDefault, cfg.Models.Default)
	}
	if cfg.Prompts.Evaluator.System != DefaultEvaluatorSystemPrompt {
		t.Errorf("Expected default evaluator system prompt, got %s", cfg.Prompts.Evaluator.System)
	}
	if cfg.Store.Driver != DefaultStoreDriver {
		t.Errorf("Expected store driver %s, got %s", DefaultStoreDriver, cfg.Store.Driver)
	}
	if cfg.Notify.Transport != DefaultNotifyTransport {
		t.Errorf("Expected notify transport %s, got %s", DefaultNotifyTransport, cfg.Notify.Transport)
	}
	if cfg.Runner.Schedule != DefaultRunnerSchedule {
		t.Errorf("Expected runner schedule %s, got %s", DefaultRunnerSchedule, cfg.Runner.Schedule)
	}
	if cfg.Runner.LeaseDuration != DefaultRunnerLeaseDuration {
		t.Errorf("Expected runner lease %s, got %s", DefaultRunnerLeaseDuration, cfg.Runner.LeaseDuration)
	}
	if cfg.Ingress.AMQP.Enabled {
		t.Errorf("Expected amqp ingress to be disabled by default")
	}
	if cfg.Ingress.AMQP.Queue != DefaultAMQPQueue {
		t.Errorf("Expected amqp queue %s, got %s", DefaultAMQPQueue, cfg.Ingress.AMQP.Queue)
	}
	if !cfg.Audit.Enabled {
		t.Errorf("Expected the decision audit trail to be enabled by default")
	}
	if cfg.Daemon.ShutdownTimeout != DefaultDaemonShutdownTimeout {
		t.Errorf("Expected daemon shutdown timeout %s, got %s", DefaultDaemonShutdownTimeout, cfg.Daemon.ShutdownTimeout)
	}
}

func TestLoadWithConfigFlag(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")
	content := []byte(`
server:
  port: 9090
autosend:
  default_threshold: 0.75
safety:
  rules:
    - name: competitor
      block: blacklist
      expr: lead_domain == "competitor.io"
`)
	if err := os.WriteFile(configPath, content, 0644); err != nil {
		t.Fatalf("failed to write config file: %v", err)
	}

	cmd := &cobra.Command{}
	cmd.Flags().String("config", "", "config file path")
	if err := cmd.Flags().Set("config", configPath); err != nil {
		t.Fatalf("failed to set config flag: %v", err)
	}

	cfg, err := Load(cmd)
	if err != nil {
		t.Fatalf("failed to load config with --config: %v", err)
	}

	if cfg.Server.Port != 9090 {
		t.Fatalf("expected port 9090, got %d", cfg.Server.Port)
	}
	if cfg.AutoSend.DefaultThreshold != 0.75 {
		t.Fatalf("expected threshold 0.75, got %v", cfg.AutoSend.DefaultThreshold)
	}
	if len(cfg.Safety.Rules) != 1 || cfg.Safety.Rules[0].Block != "blacklist" {
		t.Fatalf("expected one blacklist rule, got %+v", cfg.Safety.Rules)
	}
}

func TestLoadWithMissingConfigFlagReturnsError(t *testing.T) {
	cmd := &cobra.Command{}
	cmd.Flags().String("config", "", "config file path")
	if err := cmd.Flags().Set("config", filepath.Join(t.TempDir(), "missing.yaml")); err != nil {
		t.Fatalf("failed to set config flag: %v", err)
	}

	if _, err := Load(cmd); err == nil {
		t.Fatal("expected error when --config points to missing file")
	}
}

func TestLoad_EnvOverridesNestedKeys(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	t.Setenv("AUTOSEND_NOTIFY__TRANSPORT", "telegram")
	t.Setenv("AUTOSEND_SERVER__LOG_LEVEL", "debug")

	cfg, err := Load(nil)
	if err != nil {
		t.Fatalf("load config: %v", err)
	}

	if cfg.Notify.Transport != "telegram" {
		t.Fatalf("transport = %q, want telegram", cfg.Notify.Transport)
	}
	if cfg.Server.LogLevel != "debug" {
		t.Fatalf("log level = %q, want debug", cfg.Server.LogLevel)
	}
}

func TestLoad_RejectsInvalidThreshold(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")
	if err := os.WriteFile(configPath, []byte("autosend:\n  default_threshold: 1.5\n"), 0644); err != nil {
		t.Fatalf("write config file: %v", err)
	}

	cmd := &cobra.Command{}
	cmd.Flags().String("config", "", "config file path")
	if err := cmd.Flags().Set("config", configPath); err != nil {
		t.Fatalf("set config flag: %v", err)
	}

	if _, err := Load(cmd); err == nil {
		t.Fatal("expected error for threshold above 1")
	}
}

func TestLoad_ExpandsConfiguredPaths(t *testing.T) {
	tmpDir := t.TempDir()
	t.Setenv("HOME", tmpDir)

	configPath := filepath.Join(tmpDir, "config.yaml")
	content := []byte(`
store:
  driver: file
  file_path: ~/.autosend/jobs
notify:
  dedupe_path: ~/.autosend/dedupe.json
`)
	if err := os.WriteFile(configPath, content, 0644); err != nil {
		t.Fatalf("write config file: %v", err)
	}

	cmd := &cobra.Command{}
	cmd.Flags().String("config", "", "config file path")
	if err := cmd.Flags().Set("config", configPath); err != nil {
		t.Fatalf("set config flag: %v", err)
	}

	cfg, err := Load(cmd)
	if err != nil {
		t.Fatalf("load config: %v", err)
	}

	wantJobsPath := filepath.Join(tmpDir, ".autosend", "jobs")
	if cfg.Store.FilePath != wantJobsPath {
		t.Fatalf("jobs path = %q, want %q", cfg.Store.FilePath, wantJobsPath)
	}
	wantDedupePath := filepath.Join(tmpDir, ".autosend", "dedupe.json")
	if cfg.Notify.DedupePath != wantDedupePath {
		t.Fatalf("dedupe path = %q, want %q", cfg.Notify.DedupePath, wantDedupePath)
	}
}
