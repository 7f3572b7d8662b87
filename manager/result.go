package manager

import (
	"sort"
	"sync"

	"github.com/Hochfrequenz/bo4e-migration-framework/record"
	"github.com/Hochfrequenz/bo4e-migration-framework/verrors"
)

// Result is returned by Manager.Validate. Its views are computed lazily and
// memoized on first access, deferring work until a caller actually asks for
// it.
type Result struct {
	handlers map[record.Record]*verrors.Handler

	succeedOnce sync.Once
	succeeded   []record.Record
	failed      map[record.Record][]*verrors.ValidationError

	allOnce sync.Once
	all     []*verrors.ValidationError

	perIDOnce sync.Once
	perID     map[int]int
}

func newResult(handlers map[record.Record]*verrors.Handler) *Result {
	return &Result{handlers: handlers}
}

func (r *Result) determineSucceeds() {
	r.succeedOnce.Do(func() {
		r.failed = make(map[record.Record][]*verrors.ValidationError)
		for rec, h := range r.handlers {
			errs := h.All()
			if len(errs) > 0 {
				r.failed[rec] = errs
			} else {
				r.succeeded = append(r.succeeded, rec)
			}
		}
	})
}

// SucceededRecords lists records validated without any error.
func (r *Result) SucceededRecords() []record.Record {
	r.determineSucceeds()
	return append([]record.Record(nil), r.succeeded...)
}

// RecordErrors maps records that raised at least one error to their errors.
func (r *Result) RecordErrors() map[record.Record][]*verrors.ValidationError {
	r.determineSucceeds()
	return r.failed
}

// AllErrors returns every ValidationError across every record, sorted by
// error id to enable grouping.
func (r *Result) AllErrors() []*verrors.ValidationError {
	r.allOnce.Do(func() {
		r.determineSucceeds()
		for _, errs := range r.failed {
			r.all = append(r.all, errs...)
		}
		sort.Slice(r.all, func(i, j int) bool { return r.all[i].ErrorID < r.all[j].ErrorID })
	})
	return r.all
}

// NumErrorsPerID maps each error id to how many times it occurred across
// every record.
func (r *Result) NumErrorsPerID() map[int]int {
	r.perIDOnce.Do(func() {
		r.perID = make(map[int]int)
		for _, e := range r.AllErrors() {
			r.perID[e.ErrorID]++
		}
	})
	return r.perID
}

// Total returns the number of records validated.
func (r *Result) Total() int { return len(r.handlers) }

// NumSucceeds returns the number of records with zero errors.
func (r *Result) NumSucceeds() int { return len(r.SucceededRecords()) }

// NumFails returns the number of records with at least one error.
func (r *Result) NumFails() int { return len(r.RecordErrors()) }

// NumErrorsTotal returns the total number of errors across every record.
func (r *Result) NumErrorsTotal() int { return len(r.AllErrors()) }
