package core

import (
	"context"
	"errors"
	"slices"
	"sync"
	"testing"
)

// orderLog records lifecycle calls across modules.
type orderLog struct {
	mu    sync.Mutex
	calls []string
}

func (l *orderLog) add(s string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.calls = append(l.calls, s)
}

func (l *orderLog) get() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return slices.Clone(l.calls)
}

type lifecycleMod struct {
	id        ModuleID
	log       *orderLog
	startErr  error
	reloadErr error
}

func (m *lifecycleMod) ModuleInfo() ModuleInfo {
	return ModuleInfo{ID: m.id, New: func() Module { return m }}
}

func (m *lifecycleMod) Start() error {
	m.log.add("start " + string(m.id))
	return m.startErr
}

func (m *lifecycleMod) Stop(context.Context) error {
	m.log.add("stop " + string(m.id))
	return nil
}

func (m *lifecycleMod) Reload(*AppContext) error {
	m.log.add("reload " + string(m.id))
	return m.reloadErr
}

func newTestApp(mods ...*lifecycleMod) *App {
	app := NewApp(NewAppContext(nil, ""))
	for _, m := range mods {
		app.AppendModule(m.id, m)
	}
	return app
}

func TestApp_StartStopOrder(t *testing.T) {
	log := &orderLog{}
	app := newTestApp(
		&lifecycleMod{id: "tracing", log: log},
		&lifecycleMod{id: "jobs", log: log},
		&lifecycleMod{id: "gateway.http", log: log},
	)

	if err := app.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	app.Stop()

	want := []string{
		"start tracing", "start jobs", "start gateway.http",
		"stop gateway.http", "stop jobs", "stop tracing",
	}
	if got := log.get(); !slices.Equal(got, want) {
		t.Errorf("calls = %v\nwant %v", got, want)
	}
}

func TestApp_StartFailureStopsStarted(t *testing.T) {
	log := &orderLog{}
	app := newTestApp(
		&lifecycleMod{id: "a", log: log},
		&lifecycleMod{id: "b", log: log, startErr: errors.New("bind: address in use")},
		&lifecycleMod{id: "c", log: log},
	)

	if err := app.Start(); err == nil {
		t.Fatal("expected start error")
	}

	want := []string{"start a", "start b", "stop a"}
	if got := log.get(); !slices.Equal(got, want) {
		t.Errorf("calls = %v, want %v", got, want)
	}
}

func TestApp_StopIsIdempotent(t *testing.T) {
	log := &orderLog{}
	app := newTestApp(&lifecycleMod{id: "a", log: log})

	if err := app.Start(); err != nil {
		t.Fatal(err)
	}
	app.Stop()
	app.Stop()

	if got := log.get(); len(got) != 2 {
		t.Errorf("calls = %v, want one start and one stop", got)
	}
}

func TestApp_ReloadModulesJoinsErrors(t *testing.T) {
	log := &orderLog{}
	app := newTestApp(
		&lifecycleMod{id: "a", log: log, reloadErr: errors.New("boom")},
		&lifecycleMod{id: "b", log: log},
	)

	err := app.ReloadModules(NewAppContext(nil, ""))
	if err == nil {
		t.Fatal("expected reload error")
	}
	if got := log.get(); !slices.Equal(got, []string{"reload a", "reload b"}) {
		t.Errorf("calls = %v", got)
	}
}

func TestApp_Module(t *testing.T) {
	app := newTestApp(&lifecycleMod{id: "jobs", log: &orderLog{}})

	if _, ok := app.Module("jobs"); !ok {
		t.Error("expected jobs module")
	}
	if _, ok := app.Module("nope"); ok {
		t.Error("unexpected module")
	}
}
