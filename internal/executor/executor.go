package executor

import (
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"os/exec"
	"strings"
	"sync"
	"time"

	"golang.org/x/sys/unix"
	"golang.org/x/term"

	"smallsh/internal/core"
	"smallsh/internal/jobs"
	"smallsh/internal/parser"
	"smallsh/internal/status"
)

var logger = log.New(io.Discard, "executor: ", log.LstdFlags)

// SetLogOutput enables diagnostic logging to w.
func SetLogOutput(w io.Writer) {
	logger.SetOutput(w)
}

// copyGrace bounds how long a foreground launch waits for its output
// copiers once the child is gone.
const copyGrace = 250 * time.Millisecond

// ErrNoCommand is returned when only redirections were given.
var ErrNoCommand = errors.New("missing command")

// Outcome describes what happened to one launch.
type Outcome struct {
	PID        int
	Background bool
	Started    bool          // a child process was created
	Status     status.Status // set for foreground commands that ran or failed before exec
	Err        error
}

// Launcher starts external programs. It owns its children: os/exec never
// waits on them, the launcher or the reaper does.
type Launcher struct {
	stdio      *core.Stdio
	jobs       *jobs.Table
	last       *status.Last
	outputMode os.FileMode
}

func New(stdio *core.Stdio, table *jobs.Table, last *status.Last, outputMode os.FileMode) *Launcher {
	if outputMode == 0 {
		outputMode = 0o644
	}
	return &Launcher{stdio: stdio, jobs: table, last: last, outputMode: outputMode}
}

// Launch runs argv. Foreground launches block until the child exits or is
// killed and record the result as the last status. Background launches
// register the child in the job table and return immediately.
func (l *Launcher) Launch(argv []string, background bool) Outcome {
	out := Outcome{Background: background}

	clean, redir, err := parser.ResolveRedirection(argv)
	if err == nil && len(clean) == 0 {
		err = ErrNoCommand
	}
	if err != nil {
		l.stdio.Errorf("smallsh: %v\n", err)
		out.Err = err
		return out
	}

	cmd := exec.Command(clean[0], clean[1:]...)
	// Background children get their own process group so the terminal's
	// SIGINT and SIGTSTP only reach the foreground.
	cmd.SysProcAttr = &unix.SysProcAttr{Setpgid: background}

	inFile, outFile, err := l.openRedirection(redir)
	if err != nil {
		return l.failedBeforeExec(out, err)
	}
	defer func() {
		if inFile != nil {
			inFile.Close()
		}
		if outFile != nil {
			outFile.Close()
		}
	}()

	var br bridge
	switch {
	case inFile != nil:
		cmd.Stdin = inFile
	case background:
		// nil makes os/exec bind the null device
	default:
		if f := br.reader(l.stdio.In); f != nil {
			cmd.Stdin = f
		}
	}
	switch {
	case outFile != nil:
		cmd.Stdout = outFile
	case background:
	default:
		if cmd.Stdout, err = br.writer(l.stdio.Out); err != nil {
			br.release()
			return l.failedToStart(out, clean[0], err)
		}
	}
	if cmd.Stderr, err = br.writer(l.stdio.Err); err != nil {
		br.release()
		return l.failedToStart(out, clean[0], err)
	}

	var restore func()
	if !background {
		restore = saveTerminal(l.stdio.In)
	}

	if err := cmd.Start(); err != nil {
		br.release()
		br.wait(copyGrace)
		return l.failedToStart(out, clean[0], err)
	}
	br.release()

	out.PID = cmd.Process.Pid
	out.Started = true
	// Waiting happens through wait4 on the pid, not through os.Process.
	_ = cmd.Process.Release()

	if background {
		job := l.jobs.Add(out.PID, strings.Join(argv, " "))
		logger.Printf("job %d started: pid=%d cmd=%q", job.ID, job.PID, job.Cmd)
		l.stdio.Printf("background pid is %d\n", out.PID)
		return out
	}

	st, err := waitForeground(out.PID)
	br.wait(copyGrace)
	if restore != nil {
		restore()
	}
	if err != nil {
		l.stdio.Errorf("smallsh: wait for pid %d: %v\n", out.PID, err)
		out.Err = err
		return out
	}
	out.Status = st
	l.last.Store(st)
	if st.Kind == status.Signaled {
		l.stdio.Printf("terminated by signal %d\n", st.Code)
	}
	return out
}

func (l *Launcher) openRedirection(redir parser.Redirection) (in, out *os.File, err error) {
	if redir.Input != "" {
		in, err = os.Open(redir.Input)
		if err != nil {
			return nil, nil, fmt.Errorf("input redirect: %w", err)
		}
	}
	if redir.Output != "" {
		out, err = os.OpenFile(redir.Output, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, l.outputMode)
		if err != nil {
			if in != nil {
				in.Close()
			}
			return nil, nil, fmt.Errorf("output redirect: %w", err)
		}
	}
	return in, out, nil
}

// failedBeforeExec handles errors that a forked child would have hit
// before exec: the command counts as having run and exited 1.
func (l *Launcher) failedBeforeExec(out Outcome, err error) Outcome {
	l.stdio.Errorf("smallsh: %v\n", err)
	out.Err = err
	if !out.Background {
		out.Status = status.Exit(core.ExitFailure)
		l.last.Store(out.Status)
	}
	return out
}

// failedToStart separates "could not run that program" from "could not
// create a process at all"; only the former touches the last status.
func (l *Launcher) failedToStart(out Outcome, name string, err error) Outcome {
	if isExecFailure(err) {
		return l.failedBeforeExec(out, err)
	}
	l.stdio.Errorf("smallsh: cannot start %s: %v\n", name, err)
	out.Err = err
	return out
}

func isExecFailure(err error) bool {
	var execErr *exec.Error
	if errors.As(err, &execErr) {
		return true
	}
	return errors.Is(err, exec.ErrNotFound) ||
		errors.Is(err, unix.ENOENT) ||
		errors.Is(err, unix.EACCES) ||
		errors.Is(err, unix.ENOEXEC) ||
		errors.Is(err, unix.ENOTDIR)
}

// waitForeground blocks until pid exits or is killed. A stopped child is
// resumed and waited on again.
func waitForeground(pid int) (status.Status, error) {
	for {
		var ws unix.WaitStatus
		wpid, err := unix.Wait4(pid, &ws, unix.WUNTRACED, nil)
		if err == unix.EINTR {
			continue
		}
		if err != nil {
			return status.Status{}, err
		}
		if wpid != pid {
			continue
		}
		if st, ok := status.FromWait(ws); ok {
			return st, nil
		}
		if ws.Stopped() {
			logger.Printf("pid %d stopped by %v, continuing", pid, ws.StopSignal())
			_ = unix.Kill(pid, unix.SIGCONT)
		}
	}
}

// saveTerminal snapshots the terminal attached to in, if any, and returns
// a func that puts it back.
func saveTerminal(in io.Reader) func() {
	f, ok := core.File(in)
	if !ok {
		return nil
	}
	fd := int(f.Fd())
	if !term.IsTerminal(fd) {
		return nil
	}
	state, err := term.GetState(fd)
	if err != nil {
		logger.Printf("save terminal state: %v", err)
		return nil
	}
	return func() {
		if err := term.Restore(fd, state); err != nil {
			logger.Printf("restore terminal state: %v", err)
		}
	}
}

// bridge hands the shell's streams to a child. Files are passed through
// directly; anything else is copied through a pipe.
type bridge struct {
	childEnds []*os.File
	wg        sync.WaitGroup
}

func (b *bridge) reader(r io.Reader) *os.File {
	if f, ok := core.File(r); ok {
		return f
	}
	// Non-file input belongs to the REPL; the child reads the null device.
	return nil
}

func (b *bridge) writer(w io.Writer) (*os.File, error) {
	if f, ok := core.File(w); ok {
		return f, nil
	}
	pr, pw, err := os.Pipe()
	if err != nil {
		return nil, err
	}
	b.childEnds = append(b.childEnds, pw)
	b.wg.Add(1)
	go func() {
		defer b.wg.Done()
		defer pr.Close()
		_, _ = io.Copy(w, pr)
	}()
	return pw, nil
}

// release closes the parent's copies of the child ends so copiers see EOF
// once the child exits.
func (b *bridge) release() {
	for _, f := range b.childEnds {
		f.Close()
	}
	b.childEnds = nil
}

// wait gives the copiers up to d to drain. A grandchild that inherited a
// pipe keeps it open after the child exits; its copier is left running and
// finishes when the grandchild does.
func (b *bridge) wait(d time.Duration) {
	done := make(chan struct{})
	go func() {
		b.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(d):
		logger.Printf("output still held open after %v, not waiting", d)
	}
}
