package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestParseScraperArgsOverridesEnv(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://u:p@localhost/huisjacht")
	t.Setenv("SCAN_INTERVAL", "1h")

	cfg, cli, err := ParseScraperArgs([]string{
		"--sources=funda,pararius",
		"--cities=Amsterdam,Utrecht",
		"--interval=15m",
		"--max-concurrent=8",
		"--once",
	})
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if cli.ListSources || cli.AddQueryURL != "" {
		t.Fatalf("expected no one-shot command, got %+v", cli)
	}
	if len(cfg.Sources) != 2 || cfg.Sources[0] != "funda" {
		t.Fatalf("unexpected sources: %v", cfg.Sources)
	}
	if cfg.ScanInterval != 15*time.Minute {
		t.Fatalf("expected CLI interval to override env, got %v", cfg.ScanInterval)
	}
	if cfg.MaxConcurrent != 8 || !cfg.Once {
		t.Fatalf("unexpected cfg: %+v", cfg)
	}
}

func TestParseScraperArgsFallsBackToEnv(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://u:p@localhost/huisjacht")
	t.Setenv("SCAN_INTERVAL", "1h")
	t.Setenv("MAX_CONCURRENT", "16")

	cfg, _, err := ParseScraperArgs([]string{})
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if cfg.ScanInterval != time.Hour {
		t.Fatalf("expected env interval to survive without the flag, got %v", cfg.ScanInterval)
	}
	if cfg.MaxConcurrent != 16 {
		t.Fatalf("expected env concurrency to survive without the flag, got %d", cfg.MaxConcurrent)
	}
}

func TestParseScraperArgsAddQueryURL(t *testing.T) {
	_, cli, err := ParseScraperArgs([]string{
		"--add-query-url=pararius:https://www.pararius.com/apartments/utrecht",
		"--query-method=POST",
		"--query-description=utrecht sweep",
		"--query-body={}",
	})
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if cli.AddQueryURL != "pararius:https://www.pararius.com/apartments/utrecht" {
		t.Fatalf("unexpected add-query-url: %q", cli.AddQueryURL)
	}
	if cli.QueryMethod != "POST" || cli.QueryDesc != "utrecht sweep" || cli.QueryBody != "{}" {
		t.Fatalf("unexpected extras: %+v", cli)
	}
}

func TestParseNotifierArgsAdminCommands(t *testing.T) {
	_, cli, err := ParseNotifierArgs([]string{"--set-admin=123456", "--admin=true"})
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if !cli.HasSetAdmin || cli.SetAdminID != 123456 || !cli.SetAdminValue {
		t.Fatalf("unexpected cli: %+v", cli)
	}
}

func TestLoadReadsEnvDefaults(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://u:p@localhost/huisjacht")
	t.Setenv("MAX_PER_USER_PER_DAY", "7")
	t.Setenv("ADMIN_USER_IDS", "1, 2,3")

	cfg := Load()
	if cfg.MaxPerUserPerDay != 7 {
		t.Fatalf("expected daily cap 7, got %d", cfg.MaxPerUserPerDay)
	}
	if len(cfg.AdminIDs) != 3 || cfg.AdminIDs[2] != 3 {
		t.Fatalf("unexpected admin ids: %v", cfg.AdminIDs)
	}
	if cfg.NotificationInterval != 30*time.Second {
		t.Fatalf("expected default notification interval, got %v", cfg.NotificationInterval)
	}
}

func TestValidateRequiresDSN(t *testing.T) {
	cfg := &Config{}
	if err := cfg.Validate(false); err == nil {
		t.Fatalf("expected error for missing DATABASE_URL")
	}
	cfg.DatabaseDSN = "postgres://u:p@localhost/db"
	if err := cfg.Validate(false); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := cfg.Validate(true); err == nil {
		t.Fatalf("expected error for missing bot token")
	}
}

func TestLoadEvasionOverrides(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "evasion.yaml")
	doc := `
anti_bot_patterns:
  - "custom challenge phrase"
profiles:
  - user_agent: "TestAgent/1.0"
    accept_language: "nl-NL"
`
	if err := os.WriteFile(path, []byte(doc), 0o600); err != nil {
		t.Fatalf("write yaml: %v", err)
	}

	out, err := LoadEvasionOverrides(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(out.AntiBotPatterns) != 1 || out.AntiBotPatterns[0] != "custom challenge phrase" {
		t.Fatalf("unexpected patterns: %v", out.AntiBotPatterns)
	}
	if len(out.Profiles) != 1 || out.Profiles[0].UserAgent != "TestAgent/1.0" {
		t.Fatalf("unexpected profiles: %+v", out.Profiles)
	}
}

func TestLoadEvasionOverridesMissingFileIsNil(t *testing.T) {
	out, err := LoadEvasionOverrides(filepath.Join(t.TempDir(), "absent.yaml"))
	if err != nil {
		t.Fatalf("expected nil error for a missing file, got %v", err)
	}
	if out != nil {
		t.Fatalf("expected nil overrides for a missing file")
	}
}
