package repl

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"
	"time"

	"golang.org/x/sys/unix"

	"smallsh/internal/builtins"
	"smallsh/internal/config"
	"smallsh/internal/core"
	"smallsh/internal/status"
	"smallsh/internal/testutil"
)

func newShell(t *testing.T, input string) (*Shell, *testutil.Buffer, *testutil.Buffer) {
	t.Helper()
	stdio, out, errOut := testutil.CaptureStdio(input)
	return New(&config.Config{}, stdio), out, errOut
}

func TestRun_PromptAndStatus(t *testing.T) {
	sh, out, _ := newShell(t, "status\n")
	if err := sh.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}
	testutil.AssertOutput(t, out.String(), ": exit value: 0\n: ")
}

func TestRun_CustomPrompt(t *testing.T) {
	stdio, out, _ := testutil.CaptureStdio("\n")
	prompt := "$ "
	sh := New(&config.Config{Prompt: &prompt}, stdio)
	if err := sh.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}
	testutil.AssertOutput(t, out.String(), "$ $ ")
}

func TestRun_CommentsAndBlankLines(t *testing.T) {
	sh, out, errOut := newShell(t, "# a comment\n\n   \n#another\n")
	if err := sh.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}
	testutil.AssertOutput(t, out.String(), ": : : : : ")
	if errOut.String() != "" {
		t.Errorf("stderr = %q", errOut.String())
	}
}

func TestRun_ExitStopsReading(t *testing.T) {
	sh, out, _ := newShell(t, "exit\nstatus\n")
	if err := sh.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}
	testutil.AssertOutput(t, out.String(), ": ")
}

func TestRun_LastLineWithoutNewline(t *testing.T) {
	sh, out, _ := newShell(t, "status")
	if err := sh.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}
	testutil.AssertOutput(t, out.String(), ": exit value: 0\n")
}

func TestExecute_StatusReflectsForeground(t *testing.T) {
	sh, out, _ := newShell(t, "")
	sh.Execute("false\n")
	sh.Execute("status\n")
	sh.Execute("true\n")
	sh.Execute("status\n")
	testutil.AssertOutput(t, out.String(), "exit value: 1\nexit value: 0\n")
}

func TestExecute_SignalStatus(t *testing.T) {
	dir := t.TempDir()
	script := filepath.Join(dir, "selfkill.sh")
	if err := os.WriteFile(script, []byte("kill -TERM $$\n"), 0o755); err != nil {
		t.Fatal(err)
	}
	sh, out, _ := newShell(t, "")
	sh.Execute("sh " + script)
	sh.Execute("status")
	testutil.AssertOutputContains(t, out.String(), "terminated by signal: 15\n")
}

func TestExecute_ExpandsPIDBeforeTokenizing(t *testing.T) {
	dir := t.TempDir()
	testutil.Chdir(t, dir)
	sh, _, errOut := newShell(t, "")

	sh.Execute("echo $$ > out$$")
	pid := strconv.Itoa(os.Getpid())
	path := filepath.Join(dir, "out"+pid)
	testutil.AssertFileContent(t, path, pid+"\n")
	if errOut.String() != "" {
		t.Errorf("stderr = %q", errOut.String())
	}
}

func TestExecute_Background(t *testing.T) {
	sh, out, _ := newShell(t, "")
	sh.last.Store(status.Exit(3))

	start := time.Now()
	sh.Execute("sleep 0.2 &")
	if time.Since(start) > time.Second {
		t.Fatalf("background command blocked the loop")
	}
	snap := sh.jobs.Snapshot()
	if len(snap) != 1 {
		t.Fatalf("jobs = %+v, want one", snap)
	}
	pid := snap[0].PID
	testutil.AssertOutputContains(t, out.String(), "background pid is "+strconv.Itoa(pid)+"\n")

	done := "background pid " + strconv.Itoa(pid) + " is done: exit value: 0\n"
	if !testutil.WaitFor(t, 5*time.Second, func() bool {
		sh.reportFinished()
		return strings.Contains(out.String(), done)
	}) {
		t.Fatalf("no completion notice; output %q", out.String())
	}
	if strings.Count(out.String(), "is done") != 1 {
		t.Errorf("completion reported more than once: %q", out.String())
	}
	if got := sh.last.Load(); got != status.Exit(3) {
		t.Errorf("background completion changed last status to %v", got)
	}
}

func TestExecute_ForegroundNeverReported(t *testing.T) {
	sh, out, _ := newShell(t, "")
	sh.Execute("true")
	sh.Execute("false")
	sh.reportFinished()
	if strings.Contains(out.String(), "is done") {
		t.Errorf("foreground command reported as background completion: %q", out.String())
	}
}

func TestExecute_ForegroundOnlyMode(t *testing.T) {
	sh, out, errOut := newShell(t, "")
	sh.coord.HandleSignal(unix.SIGTSTP)
	testutil.AssertOutputContains(t, errOut.String(), "Entering foreground-only mode")

	sh.Execute("sh -c exit &")
	if sh.jobs.Len() != 0 {
		t.Fatalf("job registered in foreground-only mode")
	}
	if strings.Contains(out.String(), "background pid") {
		t.Errorf("background launch in foreground-only mode: %q", out.String())
	}

	sh.coord.HandleSignal(unix.SIGTSTP)
	testutil.AssertOutputContains(t, errOut.String(), "Exiting foreground-only mode")
	sh.Execute("sleep 0 &")
	if !testutil.WaitFor(t, 5*time.Second, func() bool {
		sh.reportFinished()
		return strings.Contains(out.String(), "is done")
	}) {
		t.Errorf("& ignored after leaving foreground-only mode: %q", out.String())
	}
}

func TestExecute_BuiltinsIgnoreBackgroundMarker(t *testing.T) {
	sh, out, _ := newShell(t, "")
	if err := sh.Execute("status &"); err != nil {
		t.Fatalf("Execute: %v", err)
	}
	testutil.AssertOutput(t, out.String(), "exit value: 0\n")
	if sh.jobs.Len() != 0 {
		t.Errorf("builtin registered as job")
	}
}

func TestExecute_UserErrorsKeepShellAlive(t *testing.T) {
	sh, _, errOut := newShell(t, "")
	for _, line := range []string{
		"cd /definitely/not/here",
		"no-such-program-abc",
		"cat < /definitely/not/here",
		"ls >",
	} {
		if err := sh.Execute(line); err != nil {
			t.Errorf("Execute(%q) = %v, want nil", line, err)
		}
	}
	testutil.AssertOutputContains(t, errOut.String(), "missing redirection target")
}

func TestExecute_ExitTerminatesBackgroundJobs(t *testing.T) {
	sh, _, _ := newShell(t, "")
	sh.Execute("sleep 30 &")
	sh.Execute("sleep 31 &")
	snap := sh.jobs.Snapshot()
	if len(snap) != 2 {
		t.Fatalf("jobs = %+v, want two", snap)
	}

	if err := sh.Execute("exit"); err != builtins.ErrExit {
		t.Fatalf("Execute(exit) = %v, want ErrExit", err)
	}
	for _, job := range snap {
		var ws unix.WaitStatus
		if _, err := unix.Wait4(job.PID, &ws, 0, nil); err != nil {
			t.Fatalf("wait4 %d: %v", job.PID, err)
		}
		if !ws.Signaled() || ws.Signal() != unix.SIGTERM {
			t.Errorf("pid %d ended with %#x, want SIGTERM", job.PID, uint32(ws))
		}
	}
}

type failingReader struct{ err error }

func (r failingReader) Read([]byte) (int, error) { return 0, r.err }

func TestRun_ReadErrorTerminatesBackgroundJobs(t *testing.T) {
	readErr := errors.New("terminal gone")
	out, errOut := &testutil.Buffer{}, &testutil.Buffer{}
	sh := New(&config.Config{}, core.NewStdio(failingReader{err: readErr}, out, errOut))

	sh.Execute("sleep 30 &")
	snap := sh.jobs.Snapshot()
	if len(snap) != 1 {
		t.Fatalf("jobs = %+v, want one", snap)
	}

	if err := sh.Run(context.Background()); !errors.Is(err, readErr) {
		t.Fatalf("Run = %v, want wrapped read error", err)
	}
	// The coordinator may have reaped the job before Run returned.
	var ws unix.WaitStatus
	_, err := unix.Wait4(snap[0].PID, &ws, 0, nil)
	switch {
	case errors.Is(err, unix.ECHILD):
		notices := sh.coord.Drain()
		if len(notices) != 1 || notices[0].Status != status.Signal(unix.SIGTERM) {
			t.Errorf("notices = %+v, want one SIGTERM completion", notices)
		}
	case err != nil:
		t.Fatalf("wait4 %d: %v", snap[0].PID, err)
	case !ws.Signaled() || ws.Signal() != unix.SIGTERM:
		t.Errorf("pid %d ended with %#x, want SIGTERM", snap[0].PID, uint32(ws))
	}
}
