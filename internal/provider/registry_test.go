package provider

import (
	"context"
	"errors"
	"strings"
	"testing"

	"gopkg.in/yaml.v3"

	"github.com/flemzord/dbarchiver/internal/archive"
)

type fakeSettings struct {
	ConnectionString string `yaml:"connection_string"`
	IDColumn         string `yaml:"id_column"`
	Table            string `yaml:"table"`
}

func (s *fakeSettings) KeyField() string { return s.IDColumn }

func (s *fakeSettings) SetDefaults() {
	if s.IDColumn == "" {
		s.IDColumn = "id"
	}
}

func (s *fakeSettings) Validate() error {
	if s.Table == "" {
		return errors.New("table is required")
	}
	return nil
}

func (s *fakeSettings) Secrets() []string { return []string{s.ConnectionString} }

type fakeStore struct{ deps Deps }

func (fakeStore) Cursor(context.Context, archive.SourceSettings, int) (archive.Cursor, error) {
	return nil, nil
}
func (fakeStore) Delete(context.Context, archive.SourceSettings, []archive.Record) error { return nil }
func (fakeStore) RunScript(context.Context, archive.TargetSettings, string) error      { return nil }
func (fakeStore) Insert(context.Context, archive.TargetSettings, []archive.Record) error {
	return nil
}

func sourceInfo() *SourceInfo {
	return &SourceInfo{
		NewSettings: func() archive.SourceSettings { return &fakeSettings{} },
		New:         func(d Deps) archive.Source { return fakeStore{deps: d} },
	}
}

func targetInfo() *TargetInfo {
	return &TargetInfo{
		NewSettings: func() archive.TargetSettings { return &fakeSettings{} },
		New:         func(d Deps) archive.Target { return fakeStore{deps: d} },
	}
}

func mustPanic(t *testing.T, name string, fn func()) {
	t.Helper()
	defer func() {
		if recover() == nil {
			t.Errorf("%s: expected panic", name)
		}
	}()
	fn()
}

func TestRegister_Panics(t *testing.T) {
	t.Cleanup(resetRegistry)

	mustPanic(t, "empty name", func() { Register(Info{Source: sourceInfo()}) })
	mustPanic(t, "no capability", func() { Register(Info{Name: "x"}) })
	mustPanic(t, "nil constructor", func() {
		Register(Info{Name: "x", Source: &SourceInfo{NewSettings: sourceInfo().NewSettings}})
	})

	Register(Info{Name: "postgresql", Aliases: []string{"pg"}, Source: sourceInfo(), Target: targetInfo()})
	mustPanic(t, "duplicate name", func() { Register(Info{Name: "PostgreSQL", Source: sourceInfo()}) })
	mustPanic(t, "duplicate alias", func() { Register(Info{Name: "other", Aliases: []string{"PG"}, Target: targetInfo()}) })
}

func TestRegister_SameNameDisjointCapabilities(t *testing.T) {
	t.Cleanup(resetRegistry)

	Register(Info{Name: "files", Source: sourceInfo()})
	Register(Info{Name: "files", Target: targetInfo()})

	if _, err := Resolve("files", CapSource); err != nil {
		t.Errorf("Resolve(source) error: %v", err)
	}
	if _, err := Resolve("files", CapTarget); err != nil {
		t.Errorf("Resolve(target) error: %v", err)
	}
}

func TestResolve(t *testing.T) {
	t.Cleanup(resetRegistry)

	Register(Info{Name: "postgresql", Aliases: []string{"postgres", "pg"}, Source: sourceInfo(), Target: targetInfo()})
	Register(Info{Name: "s3", Target: targetInfo()})

	for _, name := range []string{"postgresql", "PostgreSQL", "POSTGRES", "pg"} {
		info, err := Resolve(name, CapSource)
		if err != nil {
			t.Errorf("Resolve(%q) error: %v", name, err)
			continue
		}
		if info.Name != "postgresql" {
			t.Errorf("Resolve(%q) = %s", name, info.Name)
		}
	}

	_, err := Resolve("s3", CapSource)
	if !errors.Is(err, archive.ErrProviderNotFound) {
		t.Errorf("s3 as source: error = %v, want ErrProviderNotFound", err)
	}
	if !errors.Is(err, archive.ErrConfiguration) {
		t.Error("ErrProviderNotFound should be a configuration error")
	}

	if _, err := Resolve("oracle", CapTarget); !errors.Is(err, archive.ErrProviderNotFound) {
		t.Errorf("unknown provider: error = %v, want ErrProviderNotFound", err)
	}
}

func TestNewSource_LoggerScoped(t *testing.T) {
	t.Cleanup(resetRegistry)

	Register(Info{Name: "sqlite", Source: sourceInfo(), Target: targetInfo()})

	src, err := NewSource("SQLite", Deps{})
	if err != nil {
		t.Fatalf("NewSource() error: %v", err)
	}
	if src.(fakeStore).deps.Logger == nil {
		t.Error("logger should default when not provided")
	}
	if _, err := NewTarget("sqlite", Deps{}); err != nil {
		t.Errorf("NewTarget() error: %v", err)
	}
}

func TestList_Sorted(t *testing.T) {
	t.Cleanup(resetRegistry)

	Register(Info{Name: "sqlite", Source: sourceInfo()})
	Register(Info{Name: "bbolt", Source: sourceInfo()})
	Register(Info{Name: "mongodb", Target: targetInfo()})

	var names []string
	for _, info := range List() {
		names = append(names, info.Name)
	}
	if strings.Join(names, ",") != "bbolt,mongodb,sqlite" {
		t.Errorf("List() = %v", names)
	}
}

func TestCapability_String(t *testing.T) {
	t.Parallel()

	if got := (CapSource | CapTarget).String(); got != "source+target" {
		t.Errorf("String() = %q", got)
	}
}

func parseNode(t *testing.T, src string) *yaml.Node {
	t.Helper()
	var doc yaml.Node
	if err := yaml.Unmarshal([]byte(src), &doc); err != nil {
		t.Fatalf("yaml: %v", err)
	}
	return &doc
}

func TestBindSource(t *testing.T) {
	t.Cleanup(resetRegistry)
	Register(Info{Name: "sqlite", Source: sourceInfo(), Target: targetInfo()})

	settings, err := BindSource("sqlite", parseNode(t, "connection_string: file.db\ntable: orders\n"))
	if err != nil {
		t.Fatalf("BindSource() error: %v", err)
	}
	fs := settings.(*fakeSettings)
	if fs.Table != "orders" || fs.ConnectionString != "file.db" {
		t.Errorf("settings = %+v", fs)
	}
	if settings.KeyField() != "id" {
		t.Errorf("KeyField() = %q, want default id", settings.KeyField())
	}
	if got := Secrets(settings); len(got) != 1 || got[0] != "file.db" {
		t.Errorf("Secrets() = %v", got)
	}
}

func TestBindTarget_Errors(t *testing.T) {
	t.Cleanup(resetRegistry)
	Register(Info{Name: "sqlite", Source: sourceInfo(), Target: targetInfo()})

	tests := []struct {
		name string
		yaml string
	}{
		{"unknown field", "table: t\ntabel: typo\n"},
		{"validation", "connection_string: file.db\n"},
		{"wrong kind", "- a\n- b\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := BindTarget("sqlite", parseNode(t, tt.yaml))
			if !errors.Is(err, archive.ErrConfigurationBinding) {
				t.Errorf("error = %v, want ErrConfigurationBinding", err)
			}
		})
	}

	if _, err := BindTarget("sqlite", nil); !errors.Is(err, archive.ErrConfigurationBinding) {
		t.Errorf("nil node: error = %v, want ErrConfigurationBinding from Validate", err)
	}
	if _, err := BindTarget("nope", nil); !errors.Is(err, archive.ErrProviderNotFound) {
		t.Errorf("unknown provider: error = %v, want ErrProviderNotFound", err)
	}
}
