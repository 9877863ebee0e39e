package services

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

// Dispatcher runs a task off the request/response path. The webhook response
// never waits for a dispatched task; errors surface on the task's own channel
// (the log), not to the gateway.
type Dispatcher interface {
	Dispatch(name string, task func(ctx context.Context) error)
}

// AsyncDispatcher runs tasks in their own goroutine with a per-task timeout.
type AsyncDispatcher struct {
	timeout time.Duration
	wg      sync.WaitGroup
}

// NewAsyncDispatcher creates an AsyncDispatcher. A zero timeout defaults to
// 30 seconds.
func NewAsyncDispatcher(timeout time.Duration) *AsyncDispatcher {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &AsyncDispatcher{timeout: timeout}
}

// Dispatch starts the task and returns immediately.
func (d *AsyncDispatcher) Dispatch(name string, task func(ctx context.Context) error) {
	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		ctx, cancel := context.WithTimeout(context.Background(), d.timeout)
		defer cancel()

		start := time.Now()
		if err := task(ctx); err != nil {
			log.Error().Err(err).Str("task", name).Dur("elapsed", time.Since(start)).Msg("Dispatched task failed")
			return
		}
		log.Debug().Str("task", name).Dur("elapsed", time.Since(start)).Msg("Dispatched task completed")
	}()
}

// Wait blocks until every dispatched task has finished. Used on shutdown.
func (d *AsyncDispatcher) Wait() {
	d.wg.Wait()
}
