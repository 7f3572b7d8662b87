// Package bind implements the ParameterProvider contract: binding a
// Validator's parameters from a Record, either by simple dotted-path maps
// (PathMapped) or by composable Query pipelines with Cartesian-product
// expansion (QueryMapped).
package bind

import (
	"github.com/Hochfrequenz/bo4e-migration-framework/record"
	"github.com/Hochfrequenz/bo4e-migration-framework/validator"
)

// Parameter is a single bound argument.
type Parameter struct {
	Name     string
	Value    any
	ParamID  string // human-readable origin, e.g. "z.x" or "x[3].x"
	Provided bool
}

// Parameters is an immutable set of bound parameters tied to a specific
// ParameterProvider.
type Parameters struct {
	Provider ParameterProvider
	byName   map[string]Parameter
}

// NewParameters builds a Parameters set from already-resolved Parameter
// values.
func NewParameters(provider ParameterProvider, params map[string]Parameter) *Parameters {
	return &Parameters{Provider: provider, byName: params}
}

// Param returns the bound Parameter by name.
func (p *Parameters) Param(name string) (Parameter, bool) {
	v, ok := p.byName[name]
	return v, ok
}

// All returns every bound parameter, provided or not.
func (p *Parameters) All() map[string]Parameter {
	return p.byName
}

// ParamDict returns the subset of name -> value for provided parameters
// only; this is what gets passed to the user function invocation.
func (p *Parameters) ParamDict() map[string]any {
	out := make(map[string]any, len(p.byName))
	for name, param := range p.byName {
		if param.Provided {
			out[name] = param.Value
		}
	}
	return out
}

// Outcome is one element yielded by ParameterProvider.Provide: either a
// ready-to-invoke Parameters set, or an error describing why one could not
// be built. Provide itself is never permitted to return an error directly;
// binding failures always surface as an Outcome.
type Outcome struct {
	Params *Parameters
	Err    error
}

// ParameterProvider binds a Validator's parameters from a Record.
type ParameterProvider interface {
	// Validator returns the wrapped validator.
	Validator() *validator.Validator

	// Provide returns a finite sequence of Outcomes for the given record.
	Provide(rec record.Record) []Outcome

	// Equal reports structural equality: same validator and same binding
	// spec. This is the identity used by the dependency graph.
	Equal(other ParameterProvider) bool

	// String names this provider for diagnostics (validator name plus a
	// short description of its binding spec).
	String() string
}
