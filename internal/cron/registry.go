package cron

import (
	"context"
	"slices"
)

// Job is one maintenance task. Run reports how many rows it removed.
type Job interface {
	Name() string
	Run(ctx context.Context) (int64, error)
}

// Registry keeps jobs in registration order. A job registered under a name
// already present replaces the earlier one in place.
type Registry struct {
	jobs []Job
}

func NewRegistry(jobs ...Job) *Registry {
	r := &Registry{}
	for _, j := range jobs {
		r.Register(j)
	}
	return r
}

// Register adds job, ignoring nil.
func (r *Registry) Register(job Job) {
	if job == nil {
		return
	}
	i := slices.IndexFunc(r.jobs, func(j Job) bool { return j.Name() == job.Name() })
	if i >= 0 {
		r.jobs[i] = job
		return
	}
	r.jobs = append(r.jobs, job)
}

// Jobs returns a copy of the registered jobs.
func (r *Registry) Jobs() []Job {
	return slices.Clone(r.jobs)
}
