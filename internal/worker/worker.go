package worker

import (
	"context"
	"sync"

	"github.com/andresmejia3/facerank/internal/types"
)

// Handler processes one image. It is called concurrently from every worker.
type Handler func(task types.ImageTask) types.ImageResult

// Config sizes the pool. The queue bound is independent of the worker count.
type Config struct {
	Workers   int
	QueueSize int
}

func (c Config) normalized() Config {
	if c.Workers < 1 {
		c.Workers = 1
	}
	if c.QueueSize < 0 {
		c.QueueSize = 0
	}
	return c
}

// Run feeds paths to cfg.Workers goroutines and collects their results in
// path order. onResult, if non-nil, is called from a single goroutine as each
// result becomes next in order.
//
// Once ctx is cancelled no further paths are dispatched; tasks already queued
// come back with ctx.Err() as their error. The returned slice covers every
// dispatched path, and the error is ctx.Err() if dispatch stopped early.
func Run(ctx context.Context, cfg Config, paths []string, handle Handler, onResult func(types.ImageResult)) ([]types.ImageResult, error) {
	cfg = cfg.normalized()

	taskChan := make(chan types.ImageTask, cfg.QueueSize)
	resultsChan := make(chan types.ImageResult, cfg.Workers*2)
	var wg sync.WaitGroup

	// Aggregator must run concurrently to prevent deadlock on resultsChan
	var ordered []types.ImageResult
	aggDone := make(chan struct{})
	go func() {
		ordered = collect(resultsChan, onResult)
		close(aggDone)
	}()

	for i := 0; i < cfg.Workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for task := range taskChan {
				if err := ctx.Err(); err != nil {
					resultsChan <- types.ImageResult{Index: task.Index, Path: task.Path, Err: err}
					continue
				}
				res := handle(task)
				res.Index, res.Path = task.Index, task.Path
				resultsChan <- res
			}
		}()
	}

	var dispatchErr error
dispatch:
	for i, path := range paths {
		select {
		case <-ctx.Done():
			dispatchErr = ctx.Err()
			break dispatch
		case taskChan <- types.ImageTask{Index: i, Path: path}:
		}
	}

	close(taskChan)
	wg.Wait()
	close(resultsChan)
	<-aggDone

	return ordered, dispatchErr
}

// collect re-orders results by Index (worker 2 might finish before worker 1).
// Indices are dispatched contiguously from zero.
func collect(results <-chan types.ImageResult, onResult func(types.ImageResult)) []types.ImageResult {
	buffer := make(map[int]types.ImageResult)
	var ordered []types.ImageResult
	next := 0

	for res := range results {
		buffer[res.Index] = res
		for {
			r, ok := buffer[next]
			if !ok {
				break
			}
			delete(buffer, next)
			if onResult != nil {
				onResult(r)
			}
			ordered = append(ordered, r)
			next++
		}
	}
	return ordered
}
