package cron

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// Job represents a scheduled task that runs inside the cron worker.
type Job interface {
	Name() string
	Run(ctx context.Context) error
}

type entry struct {
	job   Job
	every time.Duration
}

// Registry is the ordered job list for the worker. Names are unique because
// the service tracks cadence per name.
type Registry struct {
	entries []entry
	names   map[string]struct{}
}

// NewRegistry registers jobs that run every cycle. It panics on a nil job or
// a repeated name, both of which are wiring bugs.
func NewRegistry(jobs ...Job) *Registry {
	registry := &Registry{names: make(map[string]struct{})}
	for _, job := range jobs {
		if err := registry.Register(job); err != nil {
			panic(err)
		}
	}
	return registry
}

// Register adds a job that runs on every cycle.
func (r *Registry) Register(job Job) error {
	return r.Schedule(job, 0)
}

// Schedule adds a job that runs at most once per every. Non-positive
// cadences mean every cycle.
func (r *Registry) Schedule(job Job, every time.Duration) error {
	if job == nil {
		return errors.New("cron: nil job")
	}
	name := job.Name()
	if name == "" {
		return errors.New("cron: job name required")
	}
	if r.names == nil {
		r.names = make(map[string]struct{})
	}
	if _, dup := r.names[name]; dup {
		return fmt.Errorf("cron: job %q registered twice", name)
	}
	r.names[name] = struct{}{}
	r.entries = append(r.entries, entry{job: job, every: max(every, 0)})
	return nil
}

// Jobs returns the registered jobs in the order they were added.
func (r *Registry) Jobs() []Job {
	jobs := make([]Job, 0, len(r.entries))
	for _, e := range r.entries {
		jobs = append(jobs, e.job)
	}
	return jobs
}

func (r *Registry) schedule() []entry {
	out := make([]entry, len(r.entries))
	copy(out, r.entries)
	return out
}
