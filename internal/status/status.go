// Package status describes how a child process ended and keeps the
// outcome of the most recent foreground command.
package status

import (
	"fmt"
	"sync"

	"golang.org/x/sys/unix"
)

// Kind tells whether a process exited or was killed by a signal.
type Kind int

const (
	Exited Kind = iota
	Signaled
)

// Status is the outcome of a finished process.
type Status struct {
	Kind Kind
	Code int // exit code or signal number
}

// Exit returns an Exited status with the given code.
func Exit(code int) Status {
	return Status{Kind: Exited, Code: code}
}

// Signal returns a Signaled status for sig.
func Signal(sig unix.Signal) Status {
	return Status{Kind: Signaled, Code: int(sig)}
}

// FromWait translates a wait status. ok is false for states that do not
// end a process (stopped, continued).
func FromWait(ws unix.WaitStatus) (s Status, ok bool) {
	switch {
	case ws.Exited():
		return Exit(ws.ExitStatus()), true
	case ws.Signaled():
		return Signal(ws.Signal()), true
	default:
		return Status{}, false
	}
}

func (s Status) String() string {
	if s.Kind == Signaled {
		return fmt.Sprintf("terminated by signal: %d", s.Code)
	}
	return fmt.Sprintf("exit value: %d", s.Code)
}

// Last holds the status of the most recent foreground command.
// The zero value reports exit value 0.
type Last struct {
	mu sync.RWMutex
	s  Status
}

func (l *Last) Load() Status {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.s
}

func (l *Last) Store(s Status) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.s = s
}
