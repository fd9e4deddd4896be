package repl

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"os"

	"smallsh/internal/builtins"
	"smallsh/internal/config"
	"smallsh/internal/core"
	"smallsh/internal/executor"
	"smallsh/internal/jobs"
	"smallsh/internal/parser"
	"smallsh/internal/signals"
	"smallsh/internal/status"
)

var logger = log.New(io.Discard, "repl: ", log.LstdFlags)

// SetLogOutput enables diagnostic logging to w.
func SetLogOutput(w io.Writer) {
	logger.SetOutput(w)
}

// Shell is one interactive session and owns all job-control state.
type Shell struct {
	prompt string
	pid    int
	stdio  *core.Stdio

	jobs     *jobs.Table
	last     *status.Last
	coord    *signals.Coordinator
	launcher *executor.Launcher
	env      *builtins.Env
}

func New(cfg *config.Config, stdio *core.Stdio) *Shell {
	table := jobs.NewTable()
	last := &status.Last{}
	return &Shell{
		prompt:   cfg.PromptString(),
		pid:      os.Getpid(),
		stdio:    stdio,
		jobs:     table,
		last:     last,
		coord:    signals.New(table, stdio.Err),
		launcher: executor.New(stdio, table, last, cfg.OutputMode()),
		env: &builtins.Env{
			Stdio:      stdio,
			Jobs:       table,
			Last:       last,
			ExitSignal: cfg.ExitSignal(),
		},
	}
}

// Run reads and executes lines until exit or end of input.
func (s *Shell) Run(ctx context.Context) error {
	s.coord.Start(ctx)
	defer s.coord.Stop()

	reader := bufio.NewReader(s.stdio.In)

	for {
		s.reportFinished()
		s.stdio.Print(s.prompt)

		input, err := reader.ReadString('\n')
		if input != "" {
			if execErr := s.Execute(input); errors.Is(execErr, builtins.ErrExit) {
				return nil
			}
		}
		if err != nil {
			// Same cleanup as the exit builtin.
			_, _ = builtins.Handle(s.env, []string{"exit"})
			if !errors.Is(err, io.EOF) {
				return fmt.Errorf("read input: %w", err)
			}
			logger.Printf("end of input")
			return nil
		}
	}
}

// Execute runs one raw input line. It returns builtins.ErrExit when the
// line was the exit builtin; every other failure is reported to the
// operator and swallowed.
func (s *Shell) Execute(input string) error {
	line := parser.Parse(parser.ExpandPID(input, s.pid))
	if line.Empty() {
		return nil
	}

	handled, err := builtins.Handle(s.env, line.Args)
	if handled {
		return err
	}

	background := line.Background && !s.coord.ForegroundOnly()
	if line.Background && !background {
		logger.Printf("foreground-only mode: running %q in the foreground", line.Args[0])
	}
	s.launcher.Launch(line.Args, background)
	return nil
}

// reportFinished prints completion notices for background jobs reaped
// since the last prompt.
func (s *Shell) reportFinished() {
	s.coord.Reap()
	for _, n := range s.coord.Drain() {
		s.stdio.Println(n)
	}
}
