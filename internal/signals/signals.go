// Package signals turns SIGINT, SIGTSTP and SIGCHLD into shell events.
//
// Go delivers signals on a channel instead of running handlers on the
// interrupted thread, so every event is applied from one goroutine using
// the same locks as the REPL. Nothing here runs in signal context.
package signals

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"sync"
	"sync/atomic"

	"golang.org/x/sys/unix"

	"smallsh/internal/jobs"
	"smallsh/internal/status"
)

var logger = log.New(io.Discard, "signals: ", log.LstdFlags)

// SetLogOutput enables diagnostic logging to w.
func SetLogOutput(w io.Writer) {
	logger.SetOutput(w)
}

const (
	enterForegroundOnly = "\nEntering foreground-only mode (& is now ignored)\n"
	exitForegroundOnly  = "\nExiting foreground-only mode\n"
)

// Handled lists the signals the coordinator subscribes to.
var Handled = []os.Signal{unix.SIGINT, unix.SIGTSTP, unix.SIGCHLD}

// Notice reports a reaped background job.
type Notice struct {
	Job    jobs.Job
	Status status.Status
}

func (n Notice) String() string {
	return fmt.Sprintf("background pid %d is done: %s", n.Job.PID, n.Status)
}

// Coordinator owns the foreground-only flag and reaps background jobs.
type Coordinator struct {
	jobs   *jobs.Table
	errOut io.Writer

	foregroundOnly atomic.Bool

	reapMu sync.Mutex

	mu      sync.Mutex
	pending []Notice

	sigCh    chan os.Signal
	done     chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

// New returns a Coordinator reaping jobs from table. Toggle notices are
// written to errOut, which must be safe for concurrent use.
func New(table *jobs.Table, errOut io.Writer) *Coordinator {
	return &Coordinator{
		jobs:   table,
		errOut: errOut,
		sigCh:  make(chan os.Signal, 16),
		done:   make(chan struct{}),
	}
}

// Start subscribes to the handled signals and processes them until ctx is
// done or Stop is called.
func (c *Coordinator) Start(ctx context.Context) {
	signal.Notify(c.sigCh, Handled...)
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		for {
			select {
			case <-ctx.Done():
				return
			case <-c.done:
				return
			case sig := <-c.sigCh:
				c.HandleSignal(sig)
			}
		}
	}()
}

// Stop unsubscribes and waits for the signal goroutine to exit.
func (c *Coordinator) Stop() {
	c.stopOnce.Do(func() {
		signal.Stop(c.sigCh)
		close(c.done)
	})
	c.wg.Wait()
}

// HandleSignal applies the event for sig.
func (c *Coordinator) HandleSignal(sig os.Signal) {
	switch sig {
	case unix.SIGINT:
		// The shell survives interrupts; the foreground child gets its own copy
		// from the terminal.
		logger.Printf("interrupt ignored")
	case unix.SIGTSTP:
		c.Toggle()
	case unix.SIGCHLD:
		c.Reap()
	default:
		logger.Printf("unexpected signal %v", sig)
	}
}

// ForegroundOnly reports whether & is currently ignored.
func (c *Coordinator) ForegroundOnly() bool {
	return c.foregroundOnly.Load()
}

// Toggle flips foreground-only mode and announces the new mode on errOut.
// Only the signal goroutine calls it outside tests.
func (c *Coordinator) Toggle() bool {
	old := c.foregroundOnly.Load()
	c.foregroundOnly.Store(!old)

	msg := enterForegroundOnly
	if old {
		msg = exitForegroundOnly
	}
	_, _ = io.WriteString(c.errOut, msg)
	return !old
}

// Reap collects every registered background job that has finished and
// queues a Notice for it. Only pids in the job table are waited on, so a
// foreground child is never collected here. Returns the number reaped.
func (c *Coordinator) Reap() int {
	c.reapMu.Lock()
	defer c.reapMu.Unlock()

	reaped := 0
	for _, job := range c.jobs.Snapshot() {
		var ws unix.WaitStatus
		wpid, err := wait4NoHang(job.PID, &ws)
		switch {
		case errors.Is(err, unix.ECHILD):
			// Collected elsewhere; nothing left to report.
			c.jobs.Remove(job.PID)
			logger.Printf("pid %d is no longer a child", job.PID)
		case err != nil:
			logger.Printf("wait4 %d: %v", job.PID, err)
		case wpid == job.PID:
			st, ok := status.FromWait(ws)
			if !ok {
				continue
			}
			if removed, ok := c.jobs.Remove(job.PID); ok {
				c.push(Notice{Job: removed, Status: st})
				reaped++
				logger.Printf("reaped pid %d: %s", job.PID, st)
			}
		}
	}
	return reaped
}

// Drain returns queued notices in reap order and clears the queue.
func (c *Coordinator) Drain() []Notice {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := c.pending
	c.pending = nil
	return out
}

func (c *Coordinator) push(n Notice) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.pending = append(c.pending, n)
}

func wait4NoHang(pid int, ws *unix.WaitStatus) (int, error) {
	for {
		wpid, err := unix.Wait4(pid, ws, unix.WNOHANG, nil)
		if err == unix.EINTR {
			continue
		}
		return wpid, err
	}
}
