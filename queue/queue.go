package queue

import "sync"

// Queue is a bounded in-process job queue. Webhook deliveries are
// acknowledged fast and handled here in the background; dropping a job
// on overflow is acceptable because the platform redelivers and the
// orchestrator is idempotent.

type Job struct {
	Run    func() error
	OnFail func(error)
}

type Queue struct {
	jobs    chan Job
	workers int
	wg      sync.WaitGroup

	mu     sync.Mutex
	closed bool
}

func New(size, workers int) *Queue {
	if workers <= 0 {
		workers = 1
	}
	return &Queue{
		jobs:    make(chan Job, size),
		workers: workers,
	}
}

// Enqueue reports false when the queue is full or already stopped.
func (q *Queue) Enqueue(job Job) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return false
	}
	select {
	case q.jobs <- job:
		return true
	default:
		return false
	}
}

func (q *Queue) Start() {
	for range q.workers {
		q.wg.Add(1)
		go func() {
			defer q.wg.Done()
			for job := range q.jobs {
				if err := job.Run(); err != nil && job.OnFail != nil {
					job.OnFail(err)
				}
			}
		}()
	}
}

// Stop closes intake and waits for in-flight jobs to finish.
func (q *Queue) Stop() {
	q.mu.Lock()
	if !q.closed {
		q.closed = true
		close(q.jobs)
	}
	q.mu.Unlock()
	q.wg.Wait()
}
