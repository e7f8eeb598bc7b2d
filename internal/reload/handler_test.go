package reload

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/flemzord/dbarchiver/internal/archive"
	"github.com/flemzord/dbarchiver/internal/archive/archivetest"
	"github.com/flemzord/dbarchiver/internal/config"
	"github.com/flemzord/dbarchiver/internal/core"
	"github.com/flemzord/dbarchiver/internal/provider"
	"github.com/flemzord/dbarchiver/internal/security"
)

func init() {
	provider.Register(provider.Info{
		Name: "reloadtest",
		Source: &provider.SourceInfo{
			NewSettings: func() archive.SourceSettings { return &archivetest.Settings{} },
			New:         func(provider.Deps) archive.Source { return &archivetest.MockSource{} },
		},
		Target: &provider.TargetInfo{
			NewSettings: func() archive.TargetSettings { return &archivetest.Settings{} },
			New:         func(provider.Deps) archive.Target { return &archivetest.MockTarget{} },
		},
	})
}

const validConfig = `version: "1"
gateway:
  bind: 127.0.0.1:9400
jobs:
  - schedule: {name: orders, cron: "@hourly"}
    transfer:
      source: {provider: reloadtest, batch_size: 10}
      target: {provider: reloadtest}
`

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "dbarchiver.yaml")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("writing file: %v", err)
	}
	return path
}

// recordingSwapper remembers every configuration it was given.
type recordingSwapper struct {
	mu  sync.Mutex
	got []*archive.Configuration
	err error
}

func (s *recordingSwapper) Swap(_ context.Context, c *archive.Configuration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.got = append(s.got, c)
	return s.err
}

func (s *recordingSwapper) calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.got)
}

// sectionModule records the configuration section it is reloaded with.
type sectionModule struct {
	bind string
}

func (m *sectionModule) ModuleInfo() core.ModuleInfo {
	return core.ModuleInfo{ID: config.GatewayModuleID, New: func() core.Module { return m }}
}

func (m *sectionModule) Reload(ctx *core.AppContext) error {
	node, ok := ctx.ModuleConfig()
	if !ok {
		return errors.New("no section")
	}
	var v struct {
		Bind string `yaml:"bind"`
	}
	if err := node.Decode(&v); err != nil {
		return err
	}
	m.bind = v.Bind
	return nil
}

func TestHandler_HandleReload_FileNotFound(t *testing.T) {
	t.Parallel()

	jobs := &recordingSwapper{}
	h := NewHandler(HandlerOptions{Jobs: jobs, Logger: testLogger()})

	if err := h.HandleReload(context.Background(), "/nonexistent/dbarchiver.yaml"); err == nil {
		t.Error("expected error for missing config file")
	}
	if jobs.calls() != 0 {
		t.Error("jobs must not be swapped")
	}
}

func TestHandler_HandleReload_InvalidConfig(t *testing.T) {
	t.Parallel()

	path := writeConfig(t, "version: \"1\"\njobs: []\n")
	jobs := &recordingSwapper{}
	red := security.NewRedactor()
	red.SetLiterals([]string{"old-secret"})
	h := NewHandler(HandlerOptions{
		Jobs:     jobs,
		Redactor: red,
		Secrets:  func(*config.Config, *archive.Configuration) []string { return []string{"new-secret"} },
		Logger:   testLogger(),
	})

	err := h.HandleReload(context.Background(), path)
	if !errors.Is(err, archive.ErrConfiguration) {
		t.Fatalf("error = %v, want ErrConfiguration", err)
	}
	if jobs.calls() != 0 {
		t.Error("jobs must not be swapped when the new configuration is invalid")
	}
	if got := red.Redact("old-secret"); got != security.RedactPlaceholder {
		t.Errorf("previous literals must be kept, Redact = %q", got)
	}
}

func TestHandler_Reload_Valid(t *testing.T) {
	t.Parallel()

	path := writeConfig(t, validConfig)
	jobs := &recordingSwapper{}
	red := security.NewRedactor()
	red.SetLiterals([]string{"old-secret"})

	mod := &sectionModule{}
	app := core.NewApp(core.NewAppContext(testLogger(), path))
	app.AppendModule(config.GatewayModuleID, mod)

	h := NewHandler(HandlerOptions{
		ConfigPath: path,
		Jobs:       jobs,
		App:        app,
		Redactor:   red,
		Secrets:    func(*config.Config, *archive.Configuration) []string { return []string{"hunter2"} },
		Logger:     testLogger(),
	})

	if err := h.Reload(context.Background()); err != nil {
		t.Fatalf("Reload: %v", err)
	}

	if jobs.calls() != 1 {
		t.Fatalf("swap calls = %d, want 1", jobs.calls())
	}
	if items := jobs.got[0].Items; len(items) != 1 || items[0].Schedule.Name != "orders" {
		t.Errorf("swapped items = %+v", items)
	}
	if mod.bind != "127.0.0.1:9400" {
		t.Errorf("module reloaded with bind %q", mod.bind)
	}
	if got := red.Redact("password hunter2"); strings.Contains(got, "hunter2") {
		t.Errorf("new secret not redacted: %q", got)
	}
	if got := red.Redact("old-secret"); got != "old-secret" {
		t.Errorf("stale literal still redacted: %q", got)
	}
}

func TestHandler_SwapFailure(t *testing.T) {
	t.Parallel()

	path := writeConfig(t, validConfig)
	jobs := &recordingSwapper{err: errors.New("cron: duplicate job name")}
	red := security.NewRedactor()
	red.SetLiterals([]string{"old-secret"})

	h := NewHandler(HandlerOptions{
		ConfigPath: path,
		Jobs:       jobs,
		Redactor:   red,
		Secrets:    func(*config.Config, *archive.Configuration) []string { return []string{"hunter2"} },
		Logger:     testLogger(),
	})

	if err := h.Reload(context.Background()); err == nil {
		t.Fatal("expected swap error")
	}
	if got := red.Redact("old-secret"); got != security.RedactPlaceholder {
		t.Errorf("old literal must stay redacted while old jobs run: %q", got)
	}
}

func TestHandler_HandleReloadFromConfig_CancelledContext(t *testing.T) {
	t.Parallel()

	jobs := &recordingSwapper{}
	h := NewHandler(HandlerOptions{Jobs: jobs, Logger: testLogger()})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := h.HandleReloadFromConfig(ctx, &config.Config{Version: "1"}, &archive.Configuration{})
	if err == nil {
		t.Error("expected error for cancelled context")
	}
	if jobs.calls() != 0 {
		t.Error("jobs must not be swapped")
	}
}
