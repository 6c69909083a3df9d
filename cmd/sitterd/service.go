package main

import (
	"fmt"
	"path/filepath"

	"github.com/flemzord/sitterd/pkg/app"
	"github.com/kardianos/service"
	"github.com/spf13/cobra"
)

// program adapts app.Daemon to the service manager.
type program struct {
	daemon *app.Daemon
}

func (p *program) Start(service.Service) error { return p.daemon.Start() }
func (p *program) Stop(service.Service) error  { return p.daemon.Stop() }

// newService builds the service definition. args are the arguments the
// installed unit passes back to the binary.
func newService(params app.Params, args []string) (service.Service, error) {
	cfg := &service.Config{
		Name:        "sitterd",
		DisplayName: "sitterd",
		Description: "Runs pet-sitting maintenance jobs and delivers notifications.",
		Arguments:   args,
	}
	return service.New(&program{daemon: app.NewDaemon(params)}, cfg)
}

// installArgs pins the config and data paths used at install time, so the
// service does not depend on the installing user's environment.
func installArgs(opts *globalOptions) ([]string, error) {
	cfgPath := opts.configPath
	if cfgPath == "" {
		resolved, err := app.ResolveConfigPath()
		if err != nil {
			return nil, err
		}
		cfgPath = resolved
	}
	abs, err := filepath.Abs(cfgPath)
	if err != nil {
		return nil, err
	}
	args := []string{"start", "--config", abs, "--no-color"}
	if opts.dataDir != "" {
		dir, err := filepath.Abs(opts.dataDir)
		if err != nil {
			return nil, err
		}
		args = append(args, "--data-dir", dir)
	}
	return args, nil
}

func serviceCmd(opts *globalOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "service",
		Short: "Manage sitterd as an OS service (systemd, launchd, Windows SCM)",
	}

	for _, action := range []string{"install", "uninstall", "start", "stop", "restart"} {
		cmd.AddCommand(&cobra.Command{
			Use:   action,
			Short: fmt.Sprintf("%s the sitterd service", action),
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				params, err := opts.params()
				if err != nil {
					return err
				}
				var args []string
				if action == "install" {
					if args, err = installArgs(opts); err != nil {
						return err
					}
				}
				svc, err := newService(params, args)
				if err != nil {
					return err
				}
				if err := service.Control(svc, action); err != nil {
					return err
				}
				_, _ = fmt.Fprintf(cmd.OutOrStdout(), "service %s: ok\n", action)
				return nil
			},
		})
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "status",
		Short: "Print the service status",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			params, err := opts.params()
			if err != nil {
				return err
			}
			svc, err := newService(params, nil)
			if err != nil {
				return err
			}
			st, err := svc.Status()
			if err != nil {
				return err
			}
			_, _ = fmt.Fprintln(cmd.OutOrStdout(), statusText(st))
			return nil
		},
	})
	return cmd
}

func statusText(st service.Status) string {
	switch st {
	case service.StatusRunning:
		return "running"
	case service.StatusStopped:
		return "stopped"
	default:
		return "unknown"
	}
}
