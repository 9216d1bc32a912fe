package utils

import (
	"context"
	"runtime"
	"sync"
)

// DefaultConcurrency bounds fan-out when the caller passes a non-positive limit.
var DefaultConcurrency = runtime.NumCPU()

// SemaphoreGather runs functions concurrently, at most maxConcurrency at a time.
// errs[i] is the error of functions[i]. Panics are recovered into PanicError.
func SemaphoreGather(ctx context.Context, maxConcurrency int, functions ...func() error) []error {
	wrapped := make([]func() (struct{}, error), len(functions))
	for i, fn := range functions {
		wrapped[i] = func() (struct{}, error) { return struct{}{}, fn() }
	}
	_, errs := SemaphoreGatherWithResults(ctx, maxConcurrency, wrapped...)
	return errs
}

// SemaphoreGatherWithResults executes functions concurrently and returns both
// results and errors, in the order of functions. A function that has not
// started when ctx is done is skipped and reports ctx.Err().
func SemaphoreGatherWithResults[T any](ctx context.Context, maxConcurrency int, functions ...func() (T, error)) ([]T, []error) {
	if len(functions) == 0 {
		return nil, nil
	}
	if maxConcurrency <= 0 {
		maxConcurrency = DefaultConcurrency
	}

	semaphore := make(chan struct{}, maxConcurrency)
	results := make([]T, len(functions))
	errs := make([]error, len(functions))
	var wg sync.WaitGroup

	for i, fn := range functions {
		wg.Add(1)
		go func() {
			defer wg.Done()
			defer RecoverWithCallback(func(err error) {
				errs[i] = err
			})

			select {
			case semaphore <- struct{}{}:
				defer func() { <-semaphore }()
			case <-ctx.Done():
				errs[i] = ctx.Err()
				return
			}
			if err := ctx.Err(); err != nil {
				errs[i] = err
				return
			}

			results[i], errs[i] = fn()
		}()
	}

	wg.Wait()
	return results, errs
}

// Batch splits items into consecutive slices of at most batchSize.
func Batch[T any](items []T, batchSize int) [][]T {
	if batchSize <= 0 {
		batchSize = 10
	}

	var batches [][]T
	for i := 0; i < len(items); i += batchSize {
		end := min(i+batchSize, len(items))
		batches = append(batches, items[i:end])
	}
	return batches
}
