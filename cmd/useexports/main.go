package main

import (
	"os"

	"github.com/charmbracelet/log"
	"github.com/cockroachdb/errors"
	"github.com/spf13/cobra"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

// flags are the options shared by every command.
type flags struct {
	cwd        string
	configFile string
	project    string
	logLevel   string
	module     string
	target     string
}

func newRootCmd() *cobra.Command {
	f := &flags{}
	root := &cobra.Command{
		Use:   "useexports",
		Short: "Rewrite internal calls to exported functions so tests can stub them",
		Long: `useexports rewrites references to a module's own exported functions into
reads of the CommonJS exports table, so replacing exports.foo in a test also
changes what the module's other functions call.`,
		SilenceUsage: true,
	}

	pf := root.PersistentFlags()
	pf.StringVar(&f.cwd, "cwd", mustGetwd(), "current working directory")
	pf.StringVarP(&f.configFile, "config", "c", "", "path to .useexports.yaml (default: searched upwards from --cwd)")
	pf.StringVarP(&f.project, "project", "p", "", "tsconfig.json or a directory containing one")
	pf.StringVar(&f.logLevel, "log-level", "", "debug, info, warn, error or fatal")
	pf.StringVar(&f.module, "module", "", "override compilerOptions.module")
	pf.StringVar(&f.target, "target", "", "override compilerOptions.target")

	root.AddCommand(
		newServeCmd(f),
		newTransformCmd(f),
		newCheckCmd(f),
	)
	return root
}

func newLogger(level string) (*log.Logger, error) {
	logger := log.NewWithOptions(os.Stderr, log.Options{Prefix: "useexports"})
	if os.Getenv("DEBUG") == "1" {
		level = "debug"
	}
	if level == "" {
		level = "info"
	}
	lvl, err := log.ParseLevel(level)
	if err != nil {
		return nil, errors.Wrap(err, "--log-level")
	}
	logger.SetLevel(lvl)
	return logger, nil
}

func mustGetwd() string {
	cwd, err := os.Getwd()
	if err != nil {
		panic(err)
	}
	return cwd
}
