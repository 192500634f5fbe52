package executor

import (
	"errors"
	"sync"
	"time"
)

var errPoolStopped = errors.New("batchjobs: worker pool is stopped")

// pool is a bounded worker pool with a bounded submission queue. Submissions
// block for at most the given timeout; the caller handles a full queue by
// executing the task itself.
type pool struct {
	tasks chan func()
	size  int
	wg    sync.WaitGroup

	mu      sync.Mutex
	stopped bool
}

func newPool(size, queueSize int) *pool {
	if size < 1 {
		size = 1
	}
	if queueSize < 0 {
		queueSize = 0
	}
	return &pool{tasks: make(chan func(), queueSize), size: size}
}

func (p *pool) start() {
	for i := 0; i < p.size; i++ {
		p.wg.Add(1)
		go func() {
			defer p.wg.Done()
			for task := range p.tasks {
				task()
			}
		}()
	}
}

// submit offers a task to the pool. It returns false when the queue stayed
// full for the whole timeout, and an error when the pool is not accepting
// work at all. The mutex is held across the send so a concurrent stop cannot
// close the queue mid-send.
func (p *pool) submit(task func(), timeout time.Duration) (bool, error) {
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.stopped {
		return false, errPoolStopped
	}

	select {
	case p.tasks <- task:
		return true, nil
	case <-timer.C:
		return false, nil
	}
}

// stop closes the queue and waits for in-flight tasks. A submit racing the
// stop either hands its task over first or fails with errPoolStopped.
func (p *pool) stop() {
	p.mu.Lock()
	if p.stopped {
		p.mu.Unlock()
		return
	}
	p.stopped = true
	close(p.tasks)
	p.mu.Unlock()

	p.wg.Wait()
}
