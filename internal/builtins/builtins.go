package builtins

import (
	"errors"
	"io"
	"log"
	"os"

	"golang.org/x/sys/unix"

	"smallsh/internal/core"
	"smallsh/internal/jobs"
	"smallsh/internal/status"
)

var logger = log.New(io.Discard, "builtins: ", log.LstdFlags)

// SetLogOutput enables diagnostic logging to w.
func SetLogOutput(w io.Writer) {
	logger.SetOutput(w)
}

// ErrExit is returned by the exit builtin once background jobs are signalled.
var ErrExit = errors.New("exit")

// Env is the shell state the builtins read and act on.
type Env struct {
	Stdio      *core.Stdio
	Jobs       *jobs.Table
	Last       *status.Last
	ExitSignal unix.Signal
}

// Handle runs tokens as a builtin. It reports false when tokens[0] is not a
// builtin and should be launched as a program.
func Handle(env *Env, tokens []string) (bool, error) {
	if len(tokens) == 0 {
		return true, nil
	}

	switch tokens[0] {
	case "cd":
		return true, cd(env, tokens)
	case "status":
		env.Stdio.Println(env.Last.Load())
		return true, nil
	case "exit":
		terminateJobs(env)
		return true, ErrExit
	case "jobs":
		return true, listJobs(env)
	case "pwd":
		return true, pwd(env)
	default:
		return false, nil
	}
}

// IsBuiltin reports whether name is handled in-process.
func IsBuiltin(name string) bool {
	switch name {
	case "cd", "status", "exit", "jobs", "pwd":
		return true
	}
	return false
}

func cd(env *Env, tokens []string) error {
	target := ""
	if len(tokens) > 1 {
		target = tokens[1]
	} else {
		target = os.Getenv("HOME")
		if target == "" {
			env.Stdio.Errorf("cd: HOME not set\n")
			return nil
		}
	}

	if err := os.Chdir(target); err != nil {
		env.Stdio.Errorf("cd: %v\n", err)
	}
	return nil
}

func pwd(env *Env) error {
	dir, err := os.Getwd()
	if err != nil {
		env.Stdio.Errorf("pwd: %v\n", err)
		return nil
	}
	env.Stdio.Println(dir)
	return nil
}

func listJobs(env *Env) error {
	for _, job := range env.Jobs.Snapshot() {
		env.Stdio.Printf("[%d] %d %s\n", job.ID, job.PID, job.Cmd)
	}
	return nil
}

// terminateJobs signals every registered background job. Each job leads
// its own process group, so the group is signalled first to catch any
// grandchildren. Failures are logged and skipped.
func terminateJobs(env *Env) {
	sig := env.ExitSignal
	if sig == 0 {
		sig = unix.SIGTERM
	}
	for _, job := range env.Jobs.Snapshot() {
		err := unix.Kill(-job.PID, sig)
		if err != nil {
			err = unix.Kill(job.PID, sig)
		}
		if err != nil {
			logger.Printf("kill %d: %v", job.PID, err)
			continue
		}
		logger.Printf("sent %v to job %d (pid %d)", sig, job.ID, job.PID)
	}
}
