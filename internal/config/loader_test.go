package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestLoad_ExpandsEnv(t *testing.T) {
	t.Setenv("CFG_TEST_DSN", "postgres://u:p@host/db")

	path := filepath.Join(t.TempDir(), FileName)
	if err := os.WriteFile(path, []byte(validYAML), 0o600); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if len(cfg.Jobs) != 2 {
		t.Fatalf("jobs = %d, want 2", len(cfg.Jobs))
	}

	var s tableSettings
	if err := cfg.Jobs[0].Transfer.Source.Settings.Decode(&s); err != nil {
		t.Fatalf("decode settings: %v", err)
	}
	if s.DSN != "postgres://u:p@host/db" {
		t.Errorf("dsn = %q", s.DSN)
	}
}

func TestParse_DefaultValue(t *testing.T) {
	cfg := mustParse(t, validYAML)

	var s tableSettings
	if err := cfg.Jobs[0].Transfer.Source.Settings.Decode(&s); err != nil {
		t.Fatalf("decode settings: %v", err)
	}
	if s.DSN != "postgres://app:s3cret@db/orders" {
		t.Errorf("dsn = %q, want default", s.DSN)
	}
}

func TestParse_UnresolvedVariable(t *testing.T) {
	t.Parallel()

	_, err := Parse([]byte("version: ${CFG_TEST_SURELY_UNSET_VAR}\n"))
	if err == nil || !strings.Contains(err.Error(), "CFG_TEST_SURELY_UNSET_VAR") {
		t.Fatalf("expected unresolved variable error, got %v", err)
	}
}

func TestParse_UnknownField(t *testing.T) {
	t.Parallel()

	_, err := Parse([]byte("version: \"1\"\njobz: []\n"))
	if err == nil {
		t.Fatal("expected error for unknown field")
	}
}

func TestParse_Empty(t *testing.T) {
	t.Parallel()

	if _, err := Parse(nil); err == nil {
		t.Fatal("expected error for empty configuration")
	}
}

func TestLoad_MissingFile(t *testing.T) {
	t.Parallel()

	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Fatal("expected error for missing file")
	}
}

func TestResolvePath(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("XDG_CONFIG_HOME", dir)

	if got := ResolvePath("/etc/custom.yaml"); got != "/etc/custom.yaml" {
		t.Errorf("explicit path = %q", got)
	}

	want := filepath.Join(dir, "dbarchiver", FileName)
	if err := os.MkdirAll(filepath.Dir(want), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(want, []byte("version: \"1\"\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	if got := ResolvePath(""); got != want {
		t.Errorf("ResolvePath() = %q, want %q", got, want)
	}
}
