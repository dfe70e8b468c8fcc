// Package workers manages the background goroutines of a replica process,
// chiefly the interval sync job.
package workers

// Worker is a background unit of work. Run starts it; implementations spawn
// their goroutines internally and return.
type Worker interface {
	Run()
}

// Workers runs a set of workers together.
type Workers struct {
	workers []Worker
}

// NewWorkers aggregates workers for a single Run call.
func NewWorkers(list ...Worker) *Workers {
	return &Workers{workers: list}
}

// Run starts every worker.
func (w *Workers) Run() {
	for _, worker := range w.workers {
		worker.Run()
	}
}
