// Package migval is the top-level convenience API over the validation
// engine: record/validator/bind/manager/verrors/errid. Most callers only
// need manager.Manager directly; this package adds the one cross-cutting
// operation that doesn't belong to a single Manager: fanning independent
// Managers out across a bounded, channel-based worker pool.
package migval

import (
	"context"
	"runtime"
	"sync"

	"github.com/Hochfrequenz/bo4e-migration-framework/manager"
	"github.com/Hochfrequenz/bo4e-migration-framework/record"
)

// ManagerJob pairs one Manager with the records it alone is responsible
// for validating.
type ManagerJob struct {
	Manager *manager.Manager
	Records []record.Record
}

// indexedResult preserves the submission order of jobs through the
// channel-based worker pool: each job is tagged with its index so results
// can be reassembled in submission order once every worker drains.
type indexedResult struct {
	index  int
	result *manager.Result
}

// RunConcurrentManagers validates each job's records against its Manager,
// running up to workers jobs concurrently. If workers <= 0 it defaults to
// runtime.NumCPU(). Results are returned in the same order as jobs; a
// Manager's own Validate call still processes its records sequentially
// (no cross-record parallelism within one Manager).
func RunConcurrentManagers(ctx context.Context, jobs []ManagerJob, workers int) []*manager.Result {
	if len(jobs) == 0 {
		return nil
	}
	if workers <= 0 {
		workers = runtime.NumCPU()
	}
	if workers > len(jobs) {
		workers = len(jobs)
	}

	type indexedJob struct {
		index int
		job   ManagerJob
	}

	jobChan := make(chan indexedJob, len(jobs))
	resultChan := make(chan indexedResult, len(jobs))

	var wg sync.WaitGroup
	wg.Add(workers)
	for i := 0; i < workers; i++ {
		go func() {
			defer wg.Done()
			for ij := range jobChan {
				select {
				case <-ctx.Done():
					return
				default:
				}
				result := ij.job.Manager.Validate(ctx, ij.job.Records...)
				resultChan <- indexedResult{index: ij.index, result: result}
			}
		}()
	}

	for i, job := range jobs {
		jobChan <- indexedJob{index: i, job: job}
	}
	close(jobChan)

	go func() {
		wg.Wait()
		close(resultChan)
	}()

	out := make([]*manager.Result, len(jobs))
	for ir := range resultChan {
		out[ir.index] = ir.result
	}
	return out
}
