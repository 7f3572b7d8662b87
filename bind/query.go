package bind

import (
	"fmt"
	"reflect"
	"sort"

	"github.com/Hochfrequenz/bo4e-migration-framework/record"
	"github.com/Hochfrequenz/bo4e-migration-framework/validator"
)

// IterChild is one element produced by an Iter step: a value plus the
// path-id suffix that names its origin (typically "[i]" for list
// elements).
type IterChild struct {
	Value  any
	Suffix string
}

// ListIter is a ready-made Iter function for []T/[N]T values, yielding
// (element, "[i]") pairs in index order.
func ListIter(value any) []IterChild {
	v := reflect.ValueOf(value)
	if v.Kind() != reflect.Slice && v.Kind() != reflect.Array {
		return nil
	}
	out := make([]IterChild, v.Len())
	for i := 0; i < v.Len(); i++ {
		out[i] = IterChild{Value: v.Index(i).Interface(), Suffix: fmt.Sprintf("[%d]", i)}
	}
	return out
}

type queryItem struct {
	Value   any
	PathID  string
}

type queryOutcome struct {
	item queryItem
	err  error
}

// Query is a composable pipeline of .Path/.Iter steps producing, given a
// record, a finite sequence of (value, path-id) pairs or binding errors.
type Query struct {
	eval func(rec record.Record) []queryOutcome
}

// NewQuery starts an empty query rooted at the record itself.
func NewQuery() *Query {
	return &Query{}
}

func (q *Query) parentOutcomes(rec record.Record) []queryOutcome {
	if q.eval == nil {
		return []queryOutcome{{item: queryItem{Value: rec, PathID: ""}}}
	}
	return q.eval(rec)
}

// Path navigates one attribute on each upstream value, appending ".name"
// to the path-id. A missing attribute yields an error for that branch
// rather than raising.
func (q *Query) Path(name string) *Query {
	parent := q
	return &Query{eval: func(rec record.Record) []queryOutcome {
		parentOutcomes := parent.parentOutcomes(rec)
		out := make([]queryOutcome, 0, len(parentOutcomes))
		for _, po := range parentOutcomes {
			if po.err != nil {
				out = append(out, po)
				continue
			}
			var val any
			var err error
			if r, ok := po.item.Value.(record.Record); ok {
				val, err = r.Get(name)
			} else {
				val, err = record.Get(po.item.Value, name)
			}
			pathID := joinDot(po.item.PathID, name)
			if err != nil {
				out = append(out, queryOutcome{err: fmt.Errorf("%s not provided: %w", pathID, err)})
				continue
			}
			out = append(out, queryOutcome{item: queryItem{Value: val, PathID: pathID}})
		}
		return out
	}}
}

// Iter expands one upstream value into many via iterFn, which must return
// an iterator (here: a slice) of (child, suffix) pairs.
func (q *Query) Iter(iterFn func(value any) []IterChild) *Query {
	parent := q
	return &Query{eval: func(rec record.Record) []queryOutcome {
		parentOutcomes := parent.parentOutcomes(rec)
		out := make([]queryOutcome, 0, len(parentOutcomes))
		for _, po := range parentOutcomes {
			if po.err != nil {
				out = append(out, po)
				continue
			}
			for _, child := range iterFn(po.item.Value) {
				out = append(out, queryOutcome{item: queryItem{Value: child.Value, PathID: po.item.PathID + child.Suffix}})
			}
		}
		return out
	}}
}

func joinDot(prefix, name string) string {
	if prefix == "" {
		return name
	}
	return prefix + "." + name
}

// QueryMapped binds a Validator's parameters via per-parameter Query
// pipelines, yielding the Cartesian product of their resolved sequences.
type QueryMapped struct {
	v       *validator.Validator
	queries map[string]*Query
}

// NewQueryMapped validates that queries' key set matches v's signature the
// same way PathMapped does, and builds a QueryMapped provider.
func NewQueryMapped(v *validator.Validator, queries map[string]*Query) (*QueryMapped, error) {
	if v == nil {
		return nil, &validator.ConfigError{Reason: "validator must not be nil"}
	}
	required := v.RequiredParamNames()
	all := make(map[string]bool, len(v.ParamNames()))
	for _, n := range v.ParamNames() {
		all[n] = true
	}

	var extra []string
	for name := range queries {
		if !all[name] {
			extra = append(extra, name)
		}
	}
	if len(extra) > 0 {
		return nil, &validator.ConfigError{Validator: v.Name(), Reason: fmt.Sprintf("has no parameter(s) %v", extra)}
	}
	var missing []string
	for name := range required {
		if _, ok := queries[name]; !ok {
			missing = append(missing, name)
		}
	}
	if len(missing) > 0 {
		return nil, &validator.ConfigError{Validator: v.Name(), Reason: fmt.Sprintf("misses parameter(s) %v", missing)}
	}

	copied := make(map[string]*Query, len(queries))
	for k, val := range queries {
		copied[k] = val
	}
	return &QueryMapped{v: v, queries: copied}, nil
}

// Validator returns the wrapped validator.
func (q *QueryMapped) Validator() *validator.Validator { return q.v }

// String names this provider for diagnostics.
func (q *QueryMapped) String() string {
	return fmt.Sprintf("%s(query-mapped, %d param(s))", q.v.Name(), len(q.queries))
}

// Equal reports whether other is a QueryMapped wrapping the same
// validator with the exact same Query pointers per parameter. Queries are
// closures and cannot be compared structurally, so identity is by
// pointer — registering the same (validator, query-map) value twice is
// idempotent, but two independently-built Query pipelines that happen to
// produce identical results are not considered equal.
func (q *QueryMapped) Equal(other ParameterProvider) bool {
	o, ok := other.(*QueryMapped)
	if !ok || !q.v.Equal(o.v) || len(q.queries) != len(o.queries) {
		return false
	}
	for name, query := range q.queries {
		if o.queries[name] != query {
			return false
		}
	}
	return true
}

// Provide resolves each parameter's Query into items/errors, excludes
// errors from the product for required parameters (re-emitting them as
// standalone error Outcomes afterward), degrades errors for optional
// parameters into "not provided" placeholders, and emits the Cartesian
// product of the resulting per-parameter candidate lists.
func (q *QueryMapped) Provide(rec record.Record) []Outcome {
	required := q.v.RequiredParamNames()

	names := make([]string, 0, len(q.queries))
	for name := range q.queries {
		names = append(names, name)
	}
	sort.Strings(names)

	candidatesByName := make(map[string][]queryCandidate, len(names))
	requiredErrs := make(map[string][]error, len(names))

	for _, name := range names {
		outcomes := q.queries[name].parentOutcomes(rec)
		var cands []queryCandidate
		for _, oc := range outcomes {
			if oc.err != nil {
				if required[name] {
					requiredErrs[name] = append(requiredErrs[name], oc.err)
				} else {
					cands = append(cands, queryCandidate{item: nil})
				}
				continue
			}
			item := oc.item
			cands = append(cands, queryCandidate{item: &item})
		}
		candidatesByName[name] = cands
	}

	var outcomes []Outcome
	combos := cartesianProduct(names, candidatesByName)
	for _, combo := range combos {
		params := make(map[string]Parameter, len(names))
		for _, name := range names {
			c := combo[name]
			if c.item == nil {
				decl, _ := q.v.Param(name)
				params[name] = Parameter{Name: name, Value: decl.Default, Provided: false}
			} else {
				params[name] = Parameter{Name: name, Value: c.item.Value, ParamID: c.item.PathID, Provided: true}
			}
		}
		outcomes = append(outcomes, Outcome{Params: NewParameters(q, params)})
	}

	for _, name := range names {
		for _, err := range requiredErrs[name] {
			outcomes = append(outcomes, Outcome{Err: err})
		}
	}

	return outcomes
}

type queryCandidate struct {
	item *queryItem
}

// cartesianProduct enumerates every combination of candidatesByName[name]
// across the (deterministically ordered) names, in the order Go's
// itertools-style nested iteration produces: innermost name varies
// fastest, matching Python's itertools.product behavior in the original
// implementation this engine's Query semantics are modeled on.
func cartesianProduct(names []string, candidatesByName map[string][]queryCandidate) []map[string]queryCandidate {
	if len(names) == 0 {
		return nil
	}
	result := []map[string]queryCandidate{{}}
	for _, name := range names {
		cands := candidatesByName[name]
		if len(cands) == 0 {
			return nil
		}
		next := make([]map[string]queryCandidate, 0, len(result)*len(cands))
		for _, partial := range result {
			for _, c := range cands {
				combo := make(map[string]queryCandidate, len(partial)+1)
				for k, v := range partial {
					combo[k] = v
				}
				combo[name] = c
				next = append(next, combo)
			}
		}
		result = next
	}
	return result
}
