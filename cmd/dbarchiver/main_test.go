package main

import (
	"bytes"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"

	"github.com/flemzord/dbarchiver/internal/config"
	"github.com/flemzord/dbarchiver/modules/provider/bolt"
	"github.com/flemzord/dbarchiver/modules/provider/s3"
	"github.com/flemzord/dbarchiver/modules/provider/sqlstore"
)

func TestSettingFields(t *testing.T) {
	t.Parallel()

	got := settingFields(&sqlstore.Settings{})
	var keys []string
	for _, f := range got {
		keys = append(keys, f.Key)
	}
	want := []string{"connection_string", "schema", "table", "id_column", "condition", "pagination"}
	if !reflect.DeepEqual(keys, want) {
		t.Errorf("keys = %v, want %v", keys, want)
	}
	if !got[0].Secret || got[2].Secret {
		t.Error("only connection_string should be secret")
	}

	for _, f := range settingFields(&bolt.Settings{}) {
		if f.Key == "timeout" && f.Kind != reflect.String {
			t.Errorf("timeout kind = %v, want string", f.Kind)
		}
	}
	for _, f := range settingFields(&s3.Settings{}) {
		if f.Key == "use_path_style" && f.Kind != reflect.Bool {
			t.Errorf("use_path_style kind = %v", f.Kind)
		}
	}
}

func TestRenderConfig(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	raw, err := renderConfig(wizardAnswers{
		JobName:        "orders",
		Cron:           "@daily",
		BatchSize:      "500",
		Delete:         true,
		SourceProvider: "sqlite",
		TargetProvider: "bbolt",
		SourceSettings: map[string]string{
			"connection_string": filepath.Join(dir, "live.db"),
			"table":             "orders",
			"pagination":        "keyset",
			"condition":         "",
		},
		TargetSettings: map[string]string{
			"path":    filepath.Join(dir, "archive.db"),
			"bucket":  "orders",
			"timeout": "5s",
		},
	})
	if err != nil {
		t.Fatalf("renderConfig: %v", err)
	}

	cfg, err := config.Parse(raw)
	if err != nil {
		t.Fatalf("Parse: %v\n%s", err, raw)
	}
	c, err := config.Create(cfg)
	if err != nil {
		t.Fatalf("Create: %v\n%s", err, raw)
	}
	ts := c.Items[0].Transfer
	if ts.Source.BatchSize != 500 || !ts.Source.DeleteAfterArchived || ts.HasPreScript() {
		t.Errorf("transfer = %+v", ts)
	}
	if strings.Contains(string(raw), "condition") {
		t.Errorf("empty settings should be omitted:\n%s", raw)
	}
}

func TestRenderConfig_BadValues(t *testing.T) {
	t.Parallel()

	base := wizardAnswers{
		JobName: "x", Cron: "@daily", BatchSize: "10",
		SourceProvider: "sqlite", TargetProvider: "s3",
	}

	bad := base
	bad.BatchSize = "ten"
	if _, err := renderConfig(bad); err == nil {
		t.Error("expected batch size error")
	}

	bad = base
	bad.TargetSettings = map[string]string{"use_path_style": "maybe"}
	if _, err := renderConfig(bad); err == nil {
		t.Error("expected bool parse error")
	}

	bad = base
	bad.SourceProvider = "s3"
	if _, err := renderConfig(bad); err == nil {
		t.Error("s3 cannot be a source")
	}
}

func TestListProviders(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	listProviders(&buf)
	out := buf.String()
	for _, name := range []string{"sqlite", "postgresql", "mysql", "mssql", "mongodb", "couchbase", "bbolt", "s3"} {
		if !strings.Contains(out, name) {
			t.Errorf("missing %s in:\n%s", name, out)
		}
	}
	if !strings.Contains(out, "source+target") {
		t.Errorf("roles not printed:\n%s", out)
	}
}

func TestCheckConfig(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := filepath.Join(dir, "dbarchiver.yaml")
	content := `version: "1"
jobs:
  - schedule: {name: events, cron: "*/5 * * * *"}
    transfer:
      source:
        provider: pg
        batch_size: 100
        settings: {connection_string: "postgres://u:p@localhost/app", table: events}
      target:
        provider: sqlite
        settings: {connection_string: "` + filepath.Join(dir, "a.db") + `", table: events}
`
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}

	var buf bytes.Buffer
	if err := checkConfig(&buf, path); err != nil {
		t.Fatalf("checkConfig: %v", err)
	}
	if !strings.Contains(buf.String(), "Configuration OK") || !strings.Contains(buf.String(), "events") {
		t.Errorf("output = %q", buf.String())
	}

	if err := checkConfig(&buf, filepath.Join(dir, "missing.yaml")); err == nil {
		t.Error("expected error for missing file")
	}
}

func TestServiceConfig(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := filepath.Join(dir, "dbarchiver.yaml")
	content := "version: \"1\"\nservice:\n  name: archiver-eu\njobs: []\n"
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}

	sc, err := serviceConfig(path)
	if err != nil {
		t.Fatalf("serviceConfig: %v", err)
	}
	if sc.Name != "archiver-eu" || sc.DisplayName == "" {
		t.Errorf("config = %+v", sc)
	}
	if got := sc.Arguments; len(got) != 4 || got[0] != "service" || got[1] != "run" || got[3] != path {
		t.Errorf("arguments = %v", got)
	}

	sc, err = serviceConfig(filepath.Join(dir, "absent.yaml"))
	if err != nil {
		t.Fatalf("missing file should fall back to defaults: %v", err)
	}
	if sc.Name != "dbarchiver" {
		t.Errorf("default name = %q", sc.Name)
	}
}
