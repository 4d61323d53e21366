package workerpool

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
)

// Task is a unit of work.
type Task struct {
	ID string
	Fn func(context.Context) error
}

// Pool runs tasks on a bounded set of goroutines. The store service uses it
// to load table footers in parallel during startup.
type Pool struct {
	name      string
	queue     chan Task
	logger    *zap.Logger
	wg        sync.WaitGroup
	stopOnce  sync.Once
	stopChan  chan struct{}
	completed uint64
	failed    uint64
}

// New starts a pool with the given worker count and queue depth.
func New(name string, workers, queueSize int, logger *zap.Logger) *Pool {
	if workers <= 0 {
		workers = 4
	}
	if queueSize <= 0 {
		queueSize = workers * 4
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	p := &Pool{
		name:     name,
		queue:    make(chan Task, queueSize),
		logger:   logger,
		stopChan: make(chan struct{}),
	}
	for i := 0; i < workers; i++ {
		p.wg.Add(1)
		go p.worker(i)
	}
	p.logger.Debug("worker pool started",
		zap.String("name", name),
		zap.Int("workers", workers),
		zap.Int("queue_size", queueSize))
	return p
}

func (p *Pool) worker(id int) {
	defer p.wg.Done()
	for {
		select {
		case <-p.stopChan:
			return
		case task := <-p.queue:
			if err := p.run(task); err != nil {
				atomic.AddUint64(&p.failed, 1)
				p.logger.Error("task failed",
					zap.String("pool", p.name),
					zap.Int("worker_id", id),
					zap.String("task_id", task.ID),
					zap.Error(err))
			} else {
				atomic.AddUint64(&p.completed, 1)
			}
		}
	}
}

func (p *Pool) run(task Task) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("task panicked: %v", r)
		}
	}()
	return task.Fn(context.Background())
}

// Submit enqueues a task, blocking until accepted or ctx is canceled.
func (p *Pool) Submit(ctx context.Context, task Task) error {
	select {
	case <-p.stopChan:
		return fmt.Errorf("worker pool %q is stopped", p.name)
	case <-ctx.Done():
		return ctx.Err()
	case p.queue <- task:
		return nil
	}
}

// Stop shuts the pool down, waiting up to timeout for in-flight tasks.
func (p *Pool) Stop(timeout time.Duration) error {
	var err error
	p.stopOnce.Do(func() {
		close(p.stopChan)
		done := make(chan struct{})
		go func() {
			p.wg.Wait()
			close(done)
		}()
		select {
		case <-done:
		case <-time.After(timeout):
			err = fmt.Errorf("worker pool %q stop timeout after %v", p.name, timeout)
		}
	})
	return err
}

// Completed returns the number of tasks that finished without error.
func (p *Pool) Completed() uint64 {
	return atomic.LoadUint64(&p.completed)
}

// Failed returns the number of tasks that returned an error or panicked.
func (p *Pool) Failed() uint64 {
	return atomic.LoadUint64(&p.failed)
}
