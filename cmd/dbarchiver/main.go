// Package main is the entry point for the dbarchiver CLI.
package main

import (
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/flemzord/dbarchiver/internal/config"
	"github.com/flemzord/dbarchiver/internal/core"
	"github.com/flemzord/dbarchiver/internal/provider"
	"github.com/flemzord/dbarchiver/pkg/app"

	_ "github.com/flemzord/dbarchiver/modules/provider/all"
)

// Set by goreleaser ldflags.
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	if err := rootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "dbarchiver",
		Short:         "Move aged records from live databases into archive stores on a schedule",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringP("config", "c", "", "Path to configuration file")
	root.AddCommand(
		versionCmd(),
		startCmd(),
		runCmd(),
		configCmd(),
		providersCmd(),
		initCmd(),
		serviceCmd(),
	)
	return root
}

func runParams(cmd *cobra.Command) app.RunParams {
	cfgPath, _ := cmd.Flags().GetString("config")
	return app.RunParams{
		ConfigPath: cfgPath,
		Version:    version,
		Commit:     commit,
		Date:       date,
	}
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version, compiled providers and modules",
		Run: func(cmd *cobra.Command, _ []string) {
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "dbarchiver %s (commit: %s, built: %s)\n", version, commit, date)

			fmt.Fprintln(out, "\nCompiled providers:")
			for _, info := range provider.List() {
				fmt.Fprintf(out, "  %s\n", info.Name)
			}
			fmt.Fprintln(out, "\nCompiled modules:")
			for _, mod := range core.GetModules() {
				fmt.Fprintf(out, "  %s\n", mod.ID)
			}
		},
	}
}

func startCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "start",
		Short: "Schedule every configured job and run until interrupted",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return app.Run(runParams(cmd))
		},
	}
}

func runCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "run <job>",
		Short: "Run one job now and exit",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return app.RunOnce(runParams(cmd), args[0])
		},
	}
}

func configCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Configuration management",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "check [path]",
		Short: "Validate configuration and bind every job's settings",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			explicit, _ := cmd.Flags().GetString("config")
			if len(args) == 1 {
				explicit = args[0]
			}
			return checkConfig(cmd.OutOrStdout(), config.ResolvePath(explicit))
		},
	})
	return cmd
}

func checkConfig(out io.Writer, path string) error {
	cfg, err := config.Load(path)
	if err != nil {
		return err
	}
	c, err := config.Create(cfg)
	if err != nil {
		return err
	}

	fmt.Fprintf(out, "Configuration OK: %s (%d jobs)\n", path, len(c.Items))
	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "  JOB\tCRON\tSOURCE\tTARGET\tBATCH\tDELETE")
	for _, it := range c.Items {
		ts := it.Transfer
		fmt.Fprintf(tw, "  %s\t%s\t%s\t%s\t%d\t%t\n",
			it.Schedule.Name, it.Schedule.Cron,
			ts.Source.Provider, ts.Target.Provider,
			ts.Source.BatchSize, ts.Source.DeleteAfterArchived,
		)
	}
	if ids := cfg.ModuleIDs(); len(ids) > 0 {
		fmt.Fprintf(tw, "\n  Modules: %v\n", ids)
	}
	return tw.Flush()
}

func providersCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "providers",
		Short: "List the stores this binary can read from and write to",
		Run: func(cmd *cobra.Command, _ []string) {
			listProviders(cmd.OutOrStdout())
		},
	}
}

func listProviders(out io.Writer) {
	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "NAME\tROLES\tALIASES\tDESCRIPTION")
	for _, info := range provider.List() {
		aliases := "-"
		if len(info.Aliases) > 0 {
			aliases = fmt.Sprint(info.Aliases)
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", info.Name, info.Capabilities(), aliases, info.Description)
	}
	_ = tw.Flush()
}
