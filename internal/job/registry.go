// Package job holds the in-memory, process-local registry of batch jobs.
// One runner writes each job; any number of pollers read it.
package job

import (
	"context"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Status is the lifecycle state of a job. Transitions only move forward:
// queued -> processing -> done | failed.
type Status string

const (
	StatusQueued     Status = "queued"
	StatusProcessing Status = "processing"
	StatusDone       Status = "done"
	StatusFailed     Status = "failed"
)

// Terminal reports whether no further transition can occur.
func (s Status) Terminal() bool { return s == StatusDone || s == StatusFailed }

// Job is one batch submission. Fields are mutated exclusively through
// Registry.Update by the runner owning the job.
type Job struct {
	ID        string
	CreatedAt time.Time
	Status    Status

	Total     int
	Processed int
	Succeeded int
	Failed    int
	Skipped   int
	Warnings  int

	CurrentItem string
	Message     string
	ZipPath     string
	WorkDir     string
}

// Snapshot is a point-in-time copy of a job handed to pollers.
type Snapshot struct {
	ID          string `json:"job_id"`
	Status      Status `json:"status"`
	Total       int    `json:"total"`
	Processed   int    `json:"processed"`
	Succeeded   int    `json:"succeeded"`
	Failed      int    `json:"failed"`
	Skipped     int    `json:"skipped"`
	Warnings    int    `json:"warnings"`
	CurrentItem string `json:"current_item"`
	Message     string `json:"message"`
	Progress    int    `json:"progress"`
	Ready       bool   `json:"-"`
	ZipPath     string `json:"-"`
}

// Registry is a concurrency-safe store of job records.
type Registry struct {
	mu   sync.RWMutex
	jobs map[string]*Job
}

func NewRegistry() *Registry {
	return &Registry{jobs: make(map[string]*Job)}
}

// Create registers a new queued job with zeroed counters.
func (r *Registry) Create(total int) *Job {
	j := &Job{
		ID:        uuid.NewString(),
		CreatedAt: time.Now(),
		Status:    StatusQueued,
		Total:     total,
	}
	r.mu.Lock()
	r.jobs[j.ID] = j
	r.mu.Unlock()
	return j
}

// Get returns a snapshot of the job, or false when the id is unknown.
// Readers never observe a torn update.
func (r *Registry) Get(id string) (Snapshot, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	j, ok := r.jobs[id]
	if !ok {
		return Snapshot{}, false
	}
	return snapshotOf(j), true
}

// Update applies fn to the job under the write lock. The whole mutation is
// atomic with respect to Get and other Updates. Unknown ids are ignored.
func (r *Registry) Update(id string, fn func(*Job)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if j, ok := r.jobs[id]; ok {
		fn(j)
	}
}

// StartJanitor evicts terminal jobs older than ttl, removing their work
// directories along with them. A ttl of zero disables eviction. The janitor
// stops when ctx is canceled.
func (r *Registry) StartJanitor(ctx context.Context, ttl, interval time.Duration, logger *slog.Logger) {
	if ttl <= 0 {
		return
	}
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				r.evictExpired(ttl, logger)
			}
		}
	}()
}

func (r *Registry) evictExpired(ttl time.Duration, logger *slog.Logger) {
	cutoff := time.Now().Add(-ttl)

	r.mu.Lock()
	var expired []*Job
	for id, j := range r.jobs {
		if j.Status.Terminal() && j.CreatedAt.Before(cutoff) {
			expired = append(expired, j)
			delete(r.jobs, id)
		}
	}
	r.mu.Unlock()

	for _, j := range expired {
		if j.WorkDir != "" {
			if err := os.RemoveAll(j.WorkDir); err != nil {
				logger.Warn("evict job artifacts failed", "job_id", j.ID, "work_dir", j.WorkDir, "err", err)
			}
		}
		logger.Info("evicted job", "job_id", j.ID, "status", j.Status)
	}
}

func snapshotOf(j *Job) Snapshot {
	progress := 0
	if j.Total > 0 {
		progress = j.Processed * 100 / j.Total
	}
	return Snapshot{
		ID:          j.ID,
		Status:      j.Status,
		Total:       j.Total,
		Processed:   j.Processed,
		Succeeded:   j.Succeeded,
		Failed:      j.Failed,
		Skipped:     j.Skipped,
		Warnings:    j.Warnings,
		CurrentItem: j.CurrentItem,
		Message:     j.Message,
		Progress:    progress,
		Ready:       j.Status == StatusDone && j.ZipPath != "",
		ZipPath:     j.ZipPath,
	}
}
