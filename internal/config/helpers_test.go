package config

import (
	"context"
	"errors"

	"github.com/flemzord/dbarchiver/internal/archive"
	"github.com/flemzord/dbarchiver/internal/provider"
)

type tableSettings struct {
	DSN   string `yaml:"dsn"`
	Table string `yaml:"table"`
	ID    string `yaml:"id_column"`
}

func (s *tableSettings) KeyField() string { return s.ID }

func (s *tableSettings) SetDefaults() {
	if s.ID == "" {
		s.ID = "id"
	}
}

func (s *tableSettings) Validate() error {
	if s.Table == "" {
		return errors.New("table is required")
	}
	return nil
}

func (s *tableSettings) Secrets() []string { return []string{s.DSN} }

type nopStore struct{}

func (nopStore) Cursor(context.Context, archive.SourceSettings, int) (archive.Cursor, error) {
	return nil, nil
}
func (nopStore) Delete(context.Context, archive.SourceSettings, []archive.Record) error { return nil }
func (nopStore) RunScript(context.Context, archive.TargetSettings, string) error      { return nil }
func (nopStore) Insert(context.Context, archive.TargetSettings, []archive.Record) error {
	return nil
}

// Test providers: "cfgdb" is source+target, "cfgbucket" is target only.
func init() {
	provider.Register(provider.Info{
		Name:    "cfgdb",
		Aliases: []string{"cfg-db"},
		Source: &provider.SourceInfo{
			NewSettings: func() archive.SourceSettings { return &tableSettings{} },
			New:         func(provider.Deps) archive.Source { return nopStore{} },
		},
		Target: &provider.TargetInfo{
			NewSettings: func() archive.TargetSettings { return &tableSettings{} },
			New:         func(provider.Deps) archive.Target { return nopStore{} },
		},
	})
	provider.Register(provider.Info{
		Name: "cfgbucket",
		Target: &provider.TargetInfo{
			NewSettings: func() archive.TargetSettings { return &tableSettings{} },
			New:         func(provider.Deps) archive.Target { return nopStore{} },
		},
	})
}

const validYAML = `
version: "1"
logging:
  level: debug
jobs:
  - schedule:
      name: orders
      cron: "*/5 * * * *"
    transfer:
      source:
        provider: cfgdb
        host: db.internal:5432
        batch_size: 100
        delete_after_archived: true
        settings:
          dsn: ${CFG_TEST_DSN:-postgres://app:s3cret@db/orders}
          table: orders
      target:
        provider: CFG-DB
        pre_script: CREATE TABLE IF NOT EXISTS orders (id INT PRIMARY KEY)
        settings:
          dsn: archive.db
          table: orders
  - schedule:
      name: events
      cron: "0 */10 * * * *"
    transfer:
      source:
        provider: cfgdb
        batch_size: 500
        settings:
          table: events
          id_column: event_id
      target:
        provider: cfgbucket
        settings:
          table: events
`
