// Package core provides the stdio plumbing shared by the shell packages.
package core

import (
	"fmt"
	"io"
	"os"
	"sync"
)

// Exit codes following POSIX conventions
const (
	ExitSuccess = 0
	ExitFailure = 1
	ExitUsage   = 2
)

// Stdio holds the standard I/O streams for the shell.
// Err is written from the signal goroutine as well as the REPL, so it is
// always wrapped in a lockedWriter.
type Stdio struct {
	In  io.Reader
	Out io.Writer
	Err io.Writer
}

// DefaultStdio returns Stdio configured with os.Stdin, os.Stdout, os.Stderr.
func DefaultStdio() *Stdio {
	return NewStdio(os.Stdin, os.Stdout, os.Stderr)
}

// NewStdio builds a Stdio whose error stream is safe for concurrent writers.
func NewStdio(in io.Reader, out, errOut io.Writer) *Stdio {
	if _, ok := errOut.(*lockedWriter); !ok {
		errOut = &lockedWriter{w: errOut}
	}
	return &Stdio{In: in, Out: out, Err: errOut}
}

// Errorf writes a formatted error message to stderr.
func (s *Stdio) Errorf(format string, args ...any) {
	fmt.Fprintf(s.Err, format, args...)
}

// Printf writes a formatted message to stdout.
func (s *Stdio) Printf(format string, args ...any) {
	fmt.Fprintf(s.Out, format, args...)
}

// Print writes a message to stdout.
func (s *Stdio) Print(args ...any) {
	fmt.Fprint(s.Out, args...)
}

// Println writes a message to stdout with a newline.
func (s *Stdio) Println(args ...any) {
	fmt.Fprintln(s.Out, args...)
}

// File returns the *os.File behind w, looking through the lock wrapper.
func File(w any) (*os.File, bool) {
	if lw, ok := w.(*lockedWriter); ok {
		w = lw.w
	}
	f, ok := w.(*os.File)
	return f, ok
}

type lockedWriter struct {
	mu sync.Mutex
	w  io.Writer
}

func (l *lockedWriter) Write(p []byte) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.w.Write(p)
}
