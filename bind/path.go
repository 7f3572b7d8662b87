package bind

import (
	"errors"
	"fmt"

	"github.com/Hochfrequenz/bo4e-migration-framework/record"
	"github.com/Hochfrequenz/bo4e-migration-framework/validator"
)

// PathMapped binds a Validator's parameters from one or more
// {param name -> dotted path} maps. Each map yields exactly one Parameters
// set, so a validator can be registered once to run against multiple
// record locations.
type PathMapped struct {
	v    *validator.Validator
	maps []map[string]string
}

// NewPathMapped validates maps against v's signature (the key set of every
// map must be a superset of required parameters and a subset of all
// parameters) and builds a PathMapped provider.
func NewPathMapped(v *validator.Validator, maps ...map[string]string) (*PathMapped, error) {
	if v == nil {
		return nil, &validator.ConfigError{Reason: "validator must not be nil"}
	}
	required := v.RequiredParamNames()
	all := make(map[string]bool, len(v.ParamNames()))
	for _, n := range v.ParamNames() {
		all[n] = true
	}

	for _, m := range maps {
		var extra []string
		for name := range m {
			if !all[name] {
				extra = append(extra, name)
			}
		}
		if len(extra) > 0 {
			return nil, &validator.ConfigError{Validator: v.Name(), Reason: fmt.Sprintf("has no parameter(s) %v", extra)}
		}
		var missing []string
		for name := range required {
			if _, ok := m[name]; !ok {
				missing = append(missing, name)
			}
		}
		if len(missing) > 0 {
			return nil, &validator.ConfigError{Validator: v.Name(), Reason: fmt.Sprintf("misses parameter(s) %v", missing)}
		}
	}

	copied := make([]map[string]string, len(maps))
	for i, m := range maps {
		cp := make(map[string]string, len(m))
		for k, val := range m {
			cp[k] = val
		}
		copied[i] = cp
	}

	return &PathMapped{v: v, maps: copied}, nil
}

// Validator returns the wrapped validator.
func (p *PathMapped) Validator() *validator.Validator { return p.v }

// String names this provider for diagnostics.
func (p *PathMapped) String() string {
	return fmt.Sprintf("%s(path-mapped, %d map(s))", p.v.Name(), len(p.maps))
}

// Equal reports whether other is a PathMapped wrapping the same validator
// with the same ordered set of path maps.
func (p *PathMapped) Equal(other ParameterProvider) bool {
	o, ok := other.(*PathMapped)
	if !ok || !p.v.Equal(o.v) || len(p.maps) != len(o.maps) {
		return false
	}
	for i, m := range p.maps {
		om := o.maps[i]
		if len(m) != len(om) {
			return false
		}
		for k, v := range m {
			if om[k] != v {
				return false
			}
		}
	}
	return true
}

// Provide implements ParameterProvider: walk each param map's path on the
// record; a missing required path yields an error for that map and skips
// its remainder; a missing optional path degrades to provided=false with
// the declared default.
func (p *PathMapped) Provide(rec record.Record) []Outcome {
	required := p.v.RequiredParamNames()
	outcomes := make([]Outcome, 0, len(p.maps))

	for _, m := range p.maps {
		params := make(map[string]Parameter, len(m))
		var bindErr error

		for _, name := range p.v.ParamNames() {
			path, mapped := m[name]
			if !mapped {
				continue
			}
			value, err := rec.Get(path)
			var missing *record.MissingAttributeError
			if err != nil && errors.As(err, &missing) {
				if required[name] {
					bindErr = fmt.Errorf("parameter %q could not be bound: %w", name, err)
					break
				}
				decl, _ := p.v.Param(name)
				params[name] = Parameter{Name: name, Value: decl.Default, ParamID: path, Provided: false}
				continue
			}
			if err != nil {
				bindErr = err
				break
			}
			params[name] = Parameter{Name: name, Value: value, ParamID: path, Provided: true}
		}

		if bindErr != nil {
			outcomes = append(outcomes, Outcome{Err: bindErr})
			continue
		}
		outcomes = append(outcomes, Outcome{Params: NewParameters(p, params)})
	}

	return outcomes
}
