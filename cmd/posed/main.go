package main

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"posebridge/pkg/config"
)

// Version is set at build time via ldflags.
var Version = "dev"

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

func run(args []string, stdout io.Writer, stderr io.Writer) int {
	root := newRootCmd()
	root.SetArgs(args)
	root.SetOut(stdout)
	root.SetErr(stderr)

	if err := root.Execute(); err != nil {
		fmt.Fprintln(stderr, "error:", err)
		var usage usageError
		if errors.As(err, &usage) {
			return 2
		}
		return 1
	}
	return 0
}

// usageError marks failures caused by bad flags or arguments.
type usageError struct{ error }

type rootFlags struct {
	configPath string
	level      string
}

func newRootCmd() *cobra.Command {
	flags := &rootFlags{}
	root := &cobra.Command{
		Use:   "posed",
		Short: "Receive 6-DoF poses over TCP and drive a rendered transform",
		Long: `posed listens for a single sender streaming 28-byte pose frames
(quaternion w,x,y,z then position x,y,z as little-endian float32).
After the first client disconnects it accepts the next one on the
fallback address. The latest pose is applied to a transform every tick.`,
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.SetVersionTemplate("posed version {{.Version}}\n")
	root.SetFlagErrorFunc(func(cmd *cobra.Command, err error) error {
		return usageError{err}
	})

	root.PersistentFlags().StringVarP(&flags.configPath, "config", "c", config.DefaultConfigPath, "config file path")
	root.PersistentFlags().StringVar(&flags.level, "log-level", "", "log level (debug, info, warn, error)")

	root.AddCommand(
		newServeCmd(flags, false),
		newServeCmd(flags, true),
		newMockCmd(flags),
		newConfigCmd(flags),
	)
	return root
}

// loadConfig reads the config file if present and applies the global flags.
func (f *rootFlags) loadConfig() (config.Config, error) {
	cfg, _, err := config.LoadOrDefault(f.configPath)
	if err != nil {
		return config.Config{}, err
	}
	if f.level != "" {
		cfg.Log.Level = f.level
		if err := cfg.Validate(); err != nil {
			return config.Config{}, usageError{err}
		}
	}
	return cfg, nil
}

func newLogger(w io.Writer, level string) (*slog.Logger, error) {
	lvl, err := config.ParseLevel(level)
	if err != nil {
		return nil, usageError{err}
	}
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: lvl})), nil
}
