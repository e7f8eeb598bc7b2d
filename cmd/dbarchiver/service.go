package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/kardianos/service"
	"github.com/spf13/cobra"

	"github.com/flemzord/dbarchiver/internal/config"
	"github.com/flemzord/dbarchiver/pkg/app"
)

// program adapts app.Run to the service manager's start/stop callbacks.
type program struct {
	params app.RunParams
	stop   chan struct{}
	done   chan error
}

func (p *program) Start(service.Service) error {
	p.stop = make(chan struct{})
	p.done = make(chan error, 1)
	params := p.params
	params.Stop = p.stop
	go func() { p.done <- app.Run(params) }()
	return nil
}

func (p *program) Stop(service.Service) error {
	if p.stop == nil {
		return nil
	}
	close(p.stop)
	return <-p.done
}

// serviceConfig builds the service definition. The installed service runs
// "service run" with the absolute configuration path.
func serviceConfig(cfgPath string) (*service.Config, error) {
	abs, err := filepath.Abs(cfgPath)
	if err != nil {
		return nil, err
	}

	sc := config.ServiceConfig{}
	if cfg, err := config.Load(abs); err == nil {
		sc = cfg.Service
	} else if !errors.Is(err, os.ErrNotExist) {
		return nil, err
	}
	if sc.Name == "" {
		sc.Name = "dbarchiver"
	}
	if sc.DisplayName == "" {
		sc.DisplayName = "DB Archiver"
	}
	if sc.Description == "" {
		sc.Description = "Moves aged records from live databases into archive stores on a schedule."
	}

	return &service.Config{
		Name:        sc.Name,
		DisplayName: sc.DisplayName,
		Description: sc.Description,
		Executable:  "", // the current executable
		Arguments:   []string{"service", "run", "--config", abs},
	}, nil
}

type serviceOperation func(svc service.Service) error

func serviceCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "service",
		Short: "Install and control dbarchiver as an OS service",
	}

	ops := []struct {
		name  string
		short string
		op    serviceOperation
	}{
		{"install", "Register the service with the service manager", func(s service.Service) error { return s.Install() }},
		{"uninstall", "Remove the service from the service manager", func(s service.Service) error { return s.Uninstall() }},
		{"start", "Start the installed service", func(s service.Service) error { return s.Start() }},
		{"stop", "Stop the installed service", func(s service.Service) error { return s.Stop() }},
		{"restart", "Restart the installed service", func(s service.Service) error { return s.Restart() }},
		{"run", "Run under the service manager (used by the installed service)", func(s service.Service) error { return s.Run() }},
		{"status", "Print the service status", printStatus},
	}
	for _, o := range ops {
		cmd.AddCommand(&cobra.Command{
			Use:   o.name,
			Short: o.short,
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				return withService(cmd, o.name, o.op)
			},
		})
	}
	return cmd
}

func withService(cmd *cobra.Command, name string, op serviceOperation) error {
	params := runParams(cmd)
	params.ConfigPath = config.ResolvePath(params.ConfigPath)

	sc, err := serviceConfig(params.ConfigPath)
	if err != nil {
		return fmt.Errorf("service %s: %w", name, err)
	}
	params.ConfigPath = sc.Arguments[len(sc.Arguments)-1]

	svc, err := service.New(&program{params: params}, sc)
	if err != nil {
		return fmt.Errorf("service %s: %w", name, err)
	}
	if err := op(svc); err != nil {
		return fmt.Errorf("service %s: %w", name, err)
	}
	return nil
}

func printStatus(svc service.Service) error {
	st, err := svc.Status()
	if err != nil {
		return err
	}
	fmt.Println(statusString(st))
	return nil
}

func statusString(st service.Status) string {
	switch st {
	case service.StatusRunning:
		return "running"
	case service.StatusStopped:
		return "stopped"
	default:
		return "unknown"
	}
}
