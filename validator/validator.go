// Package validator wraps a user-defined validation function and exposes
// the immutable descriptor of its signature: named parameters with types
// and optionality, whether it is asynchronous, and its display name.
//
// Signatures are declared explicitly rather than inferred by runtime
// introspection of fn: each Param names its type, required/optional, and
// default value. Construction still inspects fn via reflect to confirm
// arity and types line up with the declared params.
package validator

import (
	"context"
	"fmt"
	"reflect"
)

// Param describes one named, typed parameter of a validator function.
type Param struct {
	Name     string
	Type     reflect.Type
	Required bool
	// Default is used when the parameter is optional and absent from the
	// record. Ignored when Required is true.
	Default any
}

// ConfigError is raised at registration/construction time. It is never
// wrapped into a verrors.ValidationError: configuration failures are
// fatal to setup and must never enter the per-record run path.
type ConfigError struct {
	Validator string
	Reason    string
}

func (e *ConfigError) Error() string {
	if e.Validator == "" {
		return e.Reason
	}
	return fmt.Sprintf("%s: %s", e.Validator, e.Reason)
}

// Validator is an immutable descriptor of a single user validation
// function. Two Validators compare equal iff they wrap the same function,
// via Go's native function-pointer identity (see Equal).
type Validator struct {
	name      string
	fn        reflect.Value
	fnPtr     uintptr
	params    []Param
	byName    map[string]Param
	order     []string
	async     bool
	ctxOffset int // 1 if fn's first argument is a context.Context, else 0
}

// New constructs a Validator from fn and its declared parameter list.
// fn must be a func whose parameters, in order, match params' types, and
// whose only return value (if any) is of type error. Construction fails
// with a *ConfigError when params is empty, a parameter has no usable
// type, fn's arity/types don't line up, or fn is not a func.
func New(name string, fn any, params ...Param) (*Validator, error) {
	if len(params) == 0 {
		return nil, &ConfigError{Validator: name, Reason: "validator must declare at least one parameter"}
	}

	fv := reflect.ValueOf(fn)
	if fv.Kind() != reflect.Func {
		return nil, &ConfigError{Validator: name, Reason: "fn must be a function"}
	}
	ft := fv.Type()

	if ft.IsVariadic() {
		return nil, &ConfigError{Validator: name, Reason: "validator functions must not be variadic"}
	}

	async := isAsyncSignature(ft)
	ctxOffset := 0
	if async {
		ctxOffset = 1
	}
	if ft.NumIn()-ctxOffset != len(params) {
		return nil, &ConfigError{Validator: name, Reason: fmt.Sprintf(
			"function takes %d bindable argument(s), but %d parameter(s) were declared", ft.NumIn()-ctxOffset, len(params))}
	}

	errType := reflect.TypeOf((*error)(nil)).Elem()
	switch ft.NumOut() {
	case 0:
	case 1:
		if !ft.Out(0).Implements(errType) {
			return nil, &ConfigError{Validator: name, Reason: "non-error return values are discarded; declare func(...) or func(...) error"}
		}
	default:
		return nil, &ConfigError{Validator: name, Reason: "validator functions must return at most one value (error)"}
	}

	byName := make(map[string]Param, len(params))
	order := make([]string, len(params))
	for i, p := range params {
		if p.Name == "" {
			return nil, &ConfigError{Validator: name, Reason: "parameter has no name"}
		}
		if p.Type == nil {
			return nil, &ConfigError{Validator: name, Reason: fmt.Sprintf("parameter %q has no annotated type", p.Name)}
		}
		argType := ft.In(i + ctxOffset)
		if !p.Type.AssignableTo(argType) && p.Type != argType {
			return nil, &ConfigError{Validator: name, Reason: fmt.Sprintf(
				"parameter %q declared as %s but function argument %d is %s", p.Name, p.Type, i, argType)}
		}
		if _, dup := byName[p.Name]; dup {
			return nil, &ConfigError{Validator: name, Reason: fmt.Sprintf("duplicate parameter %q", p.Name)}
		}
		byName[p.Name] = p
		order[i] = p.Name
	}

	return &Validator{
		name:      name,
		fn:        fv,
		fnPtr:     fv.Pointer(),
		params:    append([]Param(nil), params...),
		byName:    byName,
		order:     order,
		async:     async,
		ctxOffset: ctxOffset,
	}, nil
}

// isAsyncSignature recognizes the Go convention for "this validator
// suspends": its first parameter is a context.Context. Such a validator may
// block/suspend on ctx, so the manager schedules it as a goroutine rather
// than running it inline (see manager.Manager's scheduling rule).
func isAsyncSignature(ft reflect.Type) bool {
	if ft.NumIn() == 0 {
		return false
	}
	return ft.In(0) == reflect.TypeOf((*context.Context)(nil)).Elem()
}

// Name returns the validator's display name.
func (v *Validator) Name() string { return v.name }

// IsAsync reports whether this validator must be scheduled as a
// suspending (goroutine-backed) task.
func (v *Validator) IsAsync() bool { return v.async }

// Params returns the declared parameters in call order.
func (v *Validator) Params() []Param {
	return append([]Param(nil), v.params...)
}

// ParamNames returns all parameter names, required and optional.
func (v *Validator) ParamNames() []string {
	return append([]string(nil), v.order...)
}

// RequiredParamNames returns the names of parameters without a default.
func (v *Validator) RequiredParamNames() map[string]bool {
	out := make(map[string]bool)
	for _, p := range v.params {
		if p.Required {
			out[p.Name] = true
		}
	}
	return out
}

// OptionalParamNames returns the names of parameters with a default.
func (v *Validator) OptionalParamNames() map[string]bool {
	out := make(map[string]bool)
	for _, p := range v.params {
		if !p.Required {
			out[p.Name] = true
		}
	}
	return out
}

// Param returns the declared Param by name.
func (v *Validator) Param(name string) (Param, bool) {
	p, ok := v.byName[name]
	return p, ok
}

// Call invokes the wrapped function with args built in the validator's
// declared parameter order. When the function is asynchronous (its first
// parameter is a context.Context), ctx is prepended automatically; ctx is
// otherwise ignored. The function's error return value, if any, is
// returned; a nil return type yields a nil error.
func (v *Validator) Call(ctx context.Context, args []reflect.Value) error {
	call := args
	if v.ctxOffset == 1 {
		call = make([]reflect.Value, 0, len(args)+1)
		call = append(call, reflect.ValueOf(ctx))
		call = append(call, args...)
	}
	out := v.fn.Call(call)
	if len(out) == 0 {
		return nil
	}
	if out[0].IsNil() {
		return nil
	}
	return out[0].Interface().(error)
}

// Equal reports whether two Validators wrap the same underlying function.
func (v *Validator) Equal(other *Validator) bool {
	if v == nil || other == nil {
		return v == other
	}
	return v.fnPtr == other.fnPtr
}
