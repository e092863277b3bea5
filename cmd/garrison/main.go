// Command garrison serves the logistics record-keeping API and runs its
// maintenance tasks.
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/erazemk/garrison/internal/config"
)

// app carries the resolved configuration from the root command to its children.
type app struct {
	v        *viper.Viper
	cfg      config.Config
	file     string
	envFile  string
	closeLog func()
}

func main() {
	a := &app{v: config.New()}
	if err := a.rootCommand().ExecuteContext(context.Background()); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func (a *app) rootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:           "garrison",
		Short:         "Military logistics record keeping",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			a.bindFlags(cmd)
			return a.load()
		},
		PersistentPostRun: func(cmd *cobra.Command, _ []string) {
			if a.closeLog != nil {
				a.closeLog()
			}
		},
	}

	pf := root.PersistentFlags()
	pf.StringVarP(&a.file, "config", "c", "", "config file (yaml, toml or json)")
	pf.StringVar(&a.envFile, "env-file", ".env", "dotenv file loaded before the environment is read")
	pf.StringP("db", "d", "", "SQLite database path (default garrison.sqlite3)")
	pf.StringP("log", "l", "", "log file path (default: stdout/stderr only)")
	pf.String("log-level", "", "log level: debug, info, warn or error (default info)")

	root.AddCommand(
		a.serveCommand(),
		a.initCommand(),
		a.migrateCommand(),
		a.auditCommand(),
		a.jobsCommand(),
	)
	return root
}

// flagKeys maps command-line flags to configuration keys.
var flagKeys = map[string]string{
	"db":                 "db.path",
	"log":                "log.path",
	"log-level":          "log.level",
	"addr":               "http.addr",
	"user":               "admin.username",
	"allow-registration": "auth.allow_registration",
	"metrics":            "metrics.enabled",
}

// bindFlags binds the flags of the command being run, so commands can share
// flag names without overriding each other's bindings.
func (a *app) bindFlags(cmd *cobra.Command) {
	for name, key := range flagKeys {
		if f := cmd.Flags().Lookup(name); f != nil {
			_ = a.v.BindPFlag(key, f)
		}
	}
}

// load resolves the configuration and sets up logging.
func (a *app) load() error {
	if err := config.LoadDotEnv(a.envFile); err != nil {
		return err
	}
	cfg, err := config.Load(a.v, a.file)
	if err != nil {
		return err
	}
	a.cfg = cfg

	closeLog, err := setupLogger(cfg.LogLevel(), cfg.Log.Path)
	if err != nil {
		return err
	}
	a.closeLog = closeLog
	return nil
}
