package main

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/flemzord/sitterd/internal/core"
	"github.com/flemzord/sitterd/pkg/app"
	"github.com/spf13/cobra"
)

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version and compiled modules",
		Run: func(_ *cobra.Command, _ []string) {
			fmt.Printf("sitterd %s (commit: %s, built: %s)\n", version, commit, date)
			fmt.Println("\nCompiled modules:")
			w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
			for _, info := range core.GetModules() {
				fmt.Fprintf(w, "  %s\t%s\n", info.ID, strings.Join(core.Hooks(info.New()), ","))
			}
			_ = w.Flush()
		},
	}
}

func startCmd(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "start",
		Short: "Start sitterd with all configured modules",
		Long: `Start sitterd in the foreground, or under the OS service manager when
installed with "sitterd service install". SIGHUP or an edit to the
configuration file restarts the modules from the new configuration.`,
		RunE: func(_ *cobra.Command, _ []string) error {
			params, err := opts.params()
			if err != nil {
				return err
			}
			svc, err := newService(params, nil)
			if err != nil {
				return err
			}
			return svc.Run()
		},
	}
}

func runCmd(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "run <job>",
		Short: "Run one maintenance job now and print its result as JSON",
		Example: `  sitterd run expire-invite-codes
  sitterd run notify-overdue-tasks -c /etc/sitterd/sitterd.yaml`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			params, err := opts.params()
			if err != nil {
				return err
			}
			return app.RunJob(cmd.Context(), params, args[0], cmd.OutOrStdout())
		},
	}
}

func jobsCmd(opts *globalOptions) *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "jobs",
		Short: "List the configured maintenance jobs",
		RunE: func(cmd *cobra.Command, _ []string) error {
			params, err := opts.params()
			if err != nil {
				return err
			}
			jobs, err := app.ListJobs(cmd.Context(), params)
			if err != nil {
				return err
			}
			if asJSON {
				return json.NewEncoder(cmd.OutOrStdout()).Encode(jobs)
			}
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			_, _ = fmt.Fprintln(tw, "JOB\tCOUNT KEY\tSCHEDULE")
			for _, j := range jobs {
				schedule := j.Schedule
				if schedule == "" {
					schedule = "-"
				}
				_, _ = fmt.Fprintf(tw, "%s\t%s\t%s\n", j.Name, j.CountKey, schedule)
			}
			return tw.Flush()
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print JSON instead of a table")
	return cmd
}

func configCmd(opts *globalOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Configuration management",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "check [path]",
		Short: "Validate configuration and provision every module",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			params, err := opts.params()
			if err != nil {
				return err
			}
			if len(args) == 1 {
				params.ConfigPath = args[0]
			}
			ids, err := app.CheckConfig(cmd.Context(), params)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			_, _ = fmt.Fprintf(out, "Configuration OK (%d modules)\n", len(ids))
			for _, id := range ids {
				_, _ = fmt.Fprintf(out, "  %s\n", id)
			}
			return nil
		},
	})
	return cmd
}
