// Package jobs tracks background processes that have not been reaped yet.
package jobs

import (
	"sync"
	"time"
)

type Job struct {
	ID      int
	PID     int
	Cmd     string
	Started time.Time
}

// Table is an ordered registry of running background jobs.
// It is shared between the REPL and the signal goroutine.
type Table struct {
	mu        sync.Mutex
	jobs      []Job
	nextJobID int
}

func NewTable() *Table {
	return &Table{nextJobID: 1}
}

// Add registers a newly started background process.
func (t *Table) Add(pid int, cmd string) Job {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.nextJobID == 0 {
		t.nextJobID = 1
	}
	job := Job{
		ID:      t.nextJobID,
		PID:     pid,
		Cmd:     cmd,
		Started: time.Now(),
	}
	t.jobs = append(t.jobs, job)
	t.nextJobID++
	return job
}

// Remove deletes the job for pid. ok is false if pid was not registered,
// so only one caller can ever claim a given job.
func (t *Table) Remove(pid int) (Job, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	for i := range t.jobs {
		if t.jobs[i].PID == pid {
			job := t.jobs[i]
			t.jobs = append(t.jobs[:i], t.jobs[i+1:]...)
			return job, true
		}
	}
	return Job{}, false
}

func (t *Table) Contains(pid int) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	for _, job := range t.jobs {
		if job.PID == pid {
			return true
		}
	}
	return false
}

// Snapshot returns a copy of the registered jobs in launch order.
func (t *Table) Snapshot() []Job {
	t.mu.Lock()
	defer t.mu.Unlock()

	result := make([]Job, len(t.jobs))
	copy(result, t.jobs)
	return result
}

func (t *Table) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.jobs)
}
