package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

const fullYAML = `
tenant: acme
database:
  driver: postgres
  host: db.internal
  port: 6543
  user: shopfloor
  password: secret
  name: mes
  sslmode: require

cascade:
  part_stage_policy: earliest
  max_conflict_retries: 8
  conflict_backoff: 25ms

notify:
  workers: 4
  queue_size: 64
  max_attempts: 5
  initial_backoff: 1s
  timeout: 3s
  webhooks: true
  slack:
    webhook_url: https://hooks.slack.com/services/T000/B000/XXX
    channel: "#floor"
  discord:
    webhook_url: https://discord.com/api/webhooks/123/abc
  nats:
    url: nats://127.0.0.1:4222
    subject_prefix: mes

dashboard:
  port: 9090

reconcile:
  enabled: true
  schedule: "*/5 * * * *"
`

func TestParse_FullConfig(t *testing.T) {
	cfg, err := Parse([]byte(fullYAML))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.Tenant != "acme" {
		t.Errorf("Tenant = %q, want %q", cfg.Tenant, "acme")
	}
	if cfg.Database.Driver != "postgres" {
		t.Errorf("Database.Driver = %q, want postgres", cfg.Database.Driver)
	}
	if cfg.Database.Port != 6543 {
		t.Errorf("Database.Port = %d, want 6543", cfg.Database.Port)
	}
	if cfg.Database.SSLMode != "require" {
		t.Errorf("Database.SSLMode = %q, want require", cfg.Database.SSLMode)
	}
	if cfg.Cascade.PartStagePolicy != PartStageEarliest {
		t.Errorf("Cascade.PartStagePolicy = %q, want %q", cfg.Cascade.PartStagePolicy, PartStageEarliest)
	}
	if cfg.Cascade.MaxConflictRetries != 8 {
		t.Errorf("Cascade.MaxConflictRetries = %d, want 8", cfg.Cascade.MaxConflictRetries)
	}
	if cfg.Cascade.ConflictBackoff != 25*time.Millisecond {
		t.Errorf("Cascade.ConflictBackoff = %v, want 25ms", cfg.Cascade.ConflictBackoff)
	}
	if cfg.Notify.Workers != 4 || cfg.Notify.QueueSize != 64 || cfg.Notify.MaxAttempts != 5 {
		t.Errorf("Notify = %+v, want workers=4 queue_size=64 max_attempts=5", cfg.Notify)
	}
	if cfg.Notify.InitialBackoff != time.Second {
		t.Errorf("Notify.InitialBackoff = %v, want 1s", cfg.Notify.InitialBackoff)
	}
	if !cfg.Notify.Webhooks {
		t.Error("Notify.Webhooks = false, want true")
	}
	if cfg.Notify.Slack.Channel != "#floor" {
		t.Errorf("Notify.Slack.Channel = %q, want #floor", cfg.Notify.Slack.Channel)
	}
	if cfg.Notify.NATS.SubjectPrefix != "mes" {
		t.Errorf("Notify.NATS.SubjectPrefix = %q, want mes", cfg.Notify.NATS.SubjectPrefix)
	}
	if cfg.Dashboard.Port != 9090 {
		t.Errorf("Dashboard.Port = %d, want 9090", cfg.Dashboard.Port)
	}
	if !cfg.Reconcile.Enabled || cfg.Reconcile.Schedule != "*/5 * * * *" {
		t.Errorf("Reconcile = %+v", cfg.Reconcile)
	}
}

func TestParse_Defaults(t *testing.T) {
	cfg, err := Parse([]byte("tenant: acme\n"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.Database.Driver != "sqlite" {
		t.Errorf("Database.Driver = %q, want sqlite", cfg.Database.Driver)
	}
	if cfg.Database.Path != "shopfloor.db" {
		t.Errorf("Database.Path = %q, want shopfloor.db", cfg.Database.Path)
	}
	if cfg.Cascade.PartStagePolicy != PartStageLatest {
		t.Errorf("Cascade.PartStagePolicy = %q, want %q", cfg.Cascade.PartStagePolicy, PartStageLatest)
	}
	if cfg.Cascade.MaxConflictRetries != 5 {
		t.Errorf("Cascade.MaxConflictRetries = %d, want 5", cfg.Cascade.MaxConflictRetries)
	}
	if cfg.Notify.Workers != 2 {
		t.Errorf("Notify.Workers = %d, want 2", cfg.Notify.Workers)
	}
	if cfg.Notify.QueueSize != 256 {
		t.Errorf("Notify.QueueSize = %d, want 256", cfg.Notify.QueueSize)
	}
	if cfg.Notify.Timeout != 10*time.Second {
		t.Errorf("Notify.Timeout = %v, want 10s", cfg.Notify.Timeout)
	}
	if cfg.Dashboard.Port != 8080 {
		t.Errorf("Dashboard.Port = %d, want 8080", cfg.Dashboard.Port)
	}
	if cfg.Reconcile.Schedule != "*/15 * * * *" {
		t.Errorf("Reconcile.Schedule = %q, want */15 * * * *", cfg.Reconcile.Schedule)
	}
	if cfg.Reconcile.CompletedWindow != 24*time.Hour {
		t.Errorf("Reconcile.CompletedWindow = %v, want 24h", cfg.Reconcile.CompletedWindow)
	}
}

func TestParse_MySQLDefaults(t *testing.T) {
	cfg, err := Parse([]byte("database:\n  driver: mysql\n  user: root\n"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Database.Host != "127.0.0.1" || cfg.Database.Port != 3306 {
		t.Errorf("Database = %s:%d, want 127.0.0.1:3306", cfg.Database.Host, cfg.Database.Port)
	}
}

func TestParse_ValidationErrors(t *testing.T) {
	tests := []struct {
		name string
		yaml string
		want []string
	}{
		{
			name: "unknown driver",
			yaml: "database:\n  driver: oracle\n",
			want: []string{`database.driver "oracle"`},
		},
		{
			name: "mysql without user",
			yaml: "database:\n  driver: mysql\n",
			want: []string{"database.user is required for mysql"},
		},
		{
			name: "bad policy",
			yaml: "cascade:\n  part_stage_policy: newest\n",
			want: []string{`cascade.part_stage_policy "newest"`},
		},
		{
			name: "bad discord url",
			yaml: "notify:\n  discord:\n    webhook_url: https://example.com/hook\n",
			want: []string{"notify.discord.webhook_url"},
		},
		{
			name: "negative completed window",
			yaml: "reconcile:\n  completed_window: -1h\n",
			want: []string{"reconcile.completed_window must not be negative"},
		},
		{
			name: "several errors",
			yaml: "database:\n  driver: postgres\ncascade:\n  part_stage_policy: x\n",
			want: []string{"database.user is required for postgres", "cascade.part_stage_policy"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.yaml))
			if err == nil {
				t.Fatal("expected validation error")
			}
			if !strings.HasPrefix(err.Error(), "config: validation failed: ") {
				t.Errorf("error = %q, want config: validation failed prefix", err.Error())
			}
			for _, w := range tt.want {
				if !strings.Contains(err.Error(), w) {
					t.Errorf("error = %q, want to contain %q", err.Error(), w)
				}
			}
		})
	}
}

func TestParse_InvalidYAML(t *testing.T) {
	_, err := Parse([]byte("database: [unclosed"))
	if err == nil {
		t.Fatal("expected parse error")
	}
	if !strings.Contains(err.Error(), "config: parse") {
		t.Errorf("error = %q, want to contain %q", err.Error(), "config: parse")
	}
}

func TestParse_EnvOverrides(t *testing.T) {
	t.Setenv("SHOPFLOOR_TENANT", "from-env")
	t.Setenv("SHOPFLOOR_SLACK_WEBHOOK_URL", "https://hooks.slack.com/services/env")

	cfg, err := Parse([]byte("tenant: from-yaml\n"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Tenant != "from-env" {
		t.Errorf("Tenant = %q, want from-env", cfg.Tenant)
	}
	if cfg.Notify.Slack.WebhookURL != "https://hooks.slack.com/services/env" {
		t.Errorf("Slack.WebhookURL = %q", cfg.Notify.Slack.WebhookURL)
	}
}

func TestLoad_FileNotFound(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	if err == nil {
		t.Fatal("expected error for missing file")
	}
	if !strings.Contains(err.Error(), "config: read") {
		t.Errorf("error = %q, want to contain %q", err.Error(), "config: read")
	}
}

func TestLoad_DotEnvNextToConfig(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "shopfloor.yaml"), []byte("database:\n  driver: sqlite\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, ".env"), []byte("SHOPFLOOR_NATS_URL=nats://env:4222\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { os.Unsetenv("SHOPFLOOR_NATS_URL") })

	cfg, err := Load(filepath.Join(dir, "shopfloor.yaml"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Notify.NATS.URL != "nats://env:4222" {
		t.Errorf("NATS.URL = %q, want nats://env:4222", cfg.Notify.NATS.URL)
	}
}
