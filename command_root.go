package main

import (
	"io"
	"os"

	"github.com/spf13/cobra"

	"smallsh/internal/builtins"
	"smallsh/internal/config"
	"smallsh/internal/core"
	"smallsh/internal/executor"
	"smallsh/internal/repl"
	"smallsh/internal/signals"
)

type rootOptions struct {
	configPath string
	debug      bool
	prompt     string
}

func NewRootCmd() *cobra.Command {
	var opts rootOptions

	root := &cobra.Command{
		Use:           "smallsh",
		Short:         "A small interactive shell with background jobs",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(config.Path(opts.configPath))
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("prompt") {
				cfg.Prompt = &opts.prompt
			}
			if opts.debug {
				cfg.Debug = true
			}

			closeLog, err := configureLogging(cfg)
			if err != nil {
				return err
			}
			defer closeLog()

			return repl.New(cfg, core.DefaultStdio()).Run(cmd.Context())
		},
	}

	root.Flags().StringVarP(&opts.configPath, "config", "c", "", "config file (default $SMALLSH_CONFIG or ~/.smallsh.yaml)")
	root.Flags().BoolVar(&opts.debug, "debug", false, "log job-control diagnostics")
	root.Flags().StringVar(&opts.prompt, "prompt", config.DefaultPrompt, "prompt printed before each line")

	return root
}

// configureLogging points every package logger at the configured sink.
// Logging stays discarded unless debug is on.
func configureLogging(cfg *config.Config) (func(), error) {
	if !cfg.Debug {
		return func() {}, nil
	}

	var w io.Writer = os.Stderr
	closeFn := func() {}
	if cfg.LogFile != "" {
		f, err := os.OpenFile(cfg.LogFile, os.O_WRONLY|os.O_CREATE|os.O_APPEND, 0o644)
		if err != nil {
			return nil, err
		}
		w = f
		closeFn = func() { _ = f.Close() }
	}

	repl.SetLogOutput(w)
	executor.SetLogOutput(w)
	signals.SetLogOutput(w)
	builtins.SetLogOutput(w)
	return closeFn, nil
}
