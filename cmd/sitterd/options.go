package main

import (
	"fmt"

	"github.com/flemzord/sitterd/internal/logging"
	"github.com/flemzord/sitterd/pkg/app"
	"github.com/spf13/cobra"
)

// globalOptions are the persistent flags shared by every command.
type globalOptions struct {
	configPath string
	dataDir    string
	logLevel   string
	noColor    bool
}

func (o *globalOptions) bind(cmd *cobra.Command) {
	f := cmd.PersistentFlags()
	f.StringVarP(&o.configPath, "config", "c", "", "Path to configuration file")
	f.StringVar(&o.dataDir, "data-dir", "", "Persistent data directory (default $XDG_DATA_HOME/sitterd)")
	f.StringVar(&o.logLevel, "log-level", "", "Override log level (debug, info, warn, error)")
	f.BoolVar(&o.noColor, "no-color", false, "Disable colored log output")
}

func (o *globalOptions) params() (app.Params, error) {
	p := app.Params{
		ConfigPath: o.configPath,
		Version:    version,
		Commit:     commit,
		Date:       date,
		DataDir:    o.dataDir,
		NoColor:    o.noColor,
	}
	if o.logLevel != "" {
		switch o.logLevel {
		case "debug", "info", "warn", "error":
		default:
			return p, fmt.Errorf("invalid --log-level %q", o.logLevel)
		}
		lvl := logging.ParseLevel(o.logLevel)
		p.LogLevel = &lvl
	}
	return p, nil
}
