package manager_test

import (
	"context"
	"fmt"
	"reflect"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Hochfrequenz/bo4e-migration-framework/bind"
	"github.com/Hochfrequenz/bo4e-migration-framework/errid"
	"github.com/Hochfrequenz/bo4e-migration-framework/manager"
	"github.com/Hochfrequenz/bo4e-migration-framework/record"
	"github.com/Hochfrequenz/bo4e-migration-framework/validator"
)

type traceRecorder struct {
	mu    sync.Mutex
	trace []string
}

func (t *traceRecorder) append(name string) {
	t.mu.Lock()
	t.trace = append(t.trace, name)
	t.mu.Unlock()
}

func pathMapped(t *testing.T, name string, fn any, mapping map[string]string, params ...validator.Param) bind.ParameterProvider {
	t.Helper()
	v, err := validator.New(name, fn, params...)
	require.NoError(t, err)
	pm, err := bind.NewPathMapped(v, mapping)
	require.NoError(t, err)
	return pm
}

func TestAsyncOrdering(t *testing.T) {
	tr := &traceRecorder{}
	a := pathMapped(t, "A", func(ctx context.Context, x string) {
		time.Sleep(30 * time.Millisecond)
		tr.append("A")
	}, map[string]string{"x": "x"}, validator.Param{Name: "x", Type: reflect.TypeOf(""), Required: true})

	b := pathMapped(t, "B", func(y int) {
		tr.append("B")
	}, map[string]string{"y": "y"}, validator.Param{Name: "y", Type: reflect.TypeOf(0), Required: true})

	m := manager.New()
	require.NoError(t, m.Register(a))
	require.NoError(t, m.Register(b))

	rec := record.NewMapRecord("r1", map[string]any{"x": "lo16", "y": 16})
	result := m.Validate(context.Background(), rec)

	assert.Equal(t, []string{"B", "A"}, tr.trace)
	assert.Equal(t, 0, result.NumErrorsTotal())
}

func TestDependencyFanIn(t *testing.T) {
	tr := &traceRecorder{}
	a := pathMapped(t, "A", func(ctx context.Context, x string) {
		time.Sleep(20 * time.Millisecond)
		tr.append("A")
	}, map[string]string{"x": "x"}, validator.Param{Name: "x", Type: reflect.TypeOf(""), Required: true})

	b := pathMapped(t, "B", func(y int) {
		tr.append("B")
	}, map[string]string{"y": "y"}, validator.Param{Name: "y", Type: reflect.TypeOf(0), Required: true})

	c := pathMapped(t, "C", func(x string, y int) error {
		tr.append("C")
		if x != fmt.Sprintf("lo%d", y) {
			return fmt.Errorf("x %q does not end with y %d", x, y)
		}
		return nil
	}, map[string]string{"x": "x", "y": "y"},
		validator.Param{Name: "x", Type: reflect.TypeOf(""), Required: true},
		validator.Param{Name: "y", Type: reflect.TypeOf(0), Required: true})

	m := manager.New()
	require.NoError(t, m.Register(a))
	require.NoError(t, m.Register(b))
	require.NoError(t, m.Register(c, manager.WithDependsOn(a, b)))

	rec := record.NewMapRecord("r1", map[string]any{"x": "lo16", "y": 16})
	result := m.Validate(context.Background(), rec)

	assert.Equal(t, []string{"B", "A", "C"}, tr.trace)
	assert.Equal(t, 0, result.NumErrorsTotal())
}

func TestDependencyFanInReportsMismatch(t *testing.T) {
	a := pathMapped(t, "A", func(ctx context.Context, x string) {
		time.Sleep(10 * time.Millisecond)
	}, map[string]string{"x": "x"}, validator.Param{Name: "x", Type: reflect.TypeOf(""), Required: true})

	b := pathMapped(t, "B", func(y int) {}, map[string]string{"y": "y"},
		validator.Param{Name: "y", Type: reflect.TypeOf(0), Required: true})

	c := pathMapped(t, "C", func(x string, y int) error {
		if x != fmt.Sprintf("lo%d", y) {
			return fmt.Errorf("x %q does not end with y %d", x, y)
		}
		return nil
	}, map[string]string{"x": "x", "y": "y"},
		validator.Param{Name: "x", Type: reflect.TypeOf(""), Required: true},
		validator.Param{Name: "y", Type: reflect.TypeOf(0), Required: true})

	m := manager.New()
	require.NoError(t, m.Register(a))
	require.NoError(t, m.Register(b))
	require.NoError(t, m.Register(c, manager.WithDependsOn(a, b)))

	rec := record.NewMapRecord("r1", map[string]any{"x": "lo16", "y": 17})
	result := m.Validate(context.Background(), rec)

	assert.Equal(t, 1, result.NumErrorsTotal())
}

func TestDependencyAbandonment(t *testing.T) {
	f := pathMapped(t, "F", func(x string) error {
		return fmt.Errorf("F always raises")
	}, map[string]string{"x": "x"}, validator.Param{Name: "x", Type: reflect.TypeOf(""), Required: true})

	gCalled := false
	g := pathMapped(t, "G", func(y int) {
		gCalled = true
	}, map[string]string{"y": "y"}, validator.Param{Name: "y", Type: reflect.TypeOf(0), Required: true})

	m := manager.New()
	require.NoError(t, m.Register(f))
	require.NoError(t, m.Register(g, manager.WithDependsOn(f)))

	rec := record.NewMapRecord("r1", map[string]any{"x": "hi", "y": 1})
	result := m.Validate(context.Background(), rec)

	assert.False(t, gCalled)
	errs := result.AllErrors()
	require.Len(t, errs, 2)
	ids := map[int]bool{}
	for _, e := range errs {
		ids[e.ErrorID] = true
	}
	assert.True(t, ids[errid.IDDependencyAbandoned])
}

func TestTimeout(t *testing.T) {
	a := pathMapped(t, "A", func(ctx context.Context, x string) error {
		select {
		case <-time.After(500 * time.Millisecond):
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	}, map[string]string{"x": "x"}, validator.Param{Name: "x", Type: reflect.TypeOf(""), Required: true})

	m := manager.New()
	require.NoError(t, m.Register(a, manager.WithTimeout(100*time.Millisecond)))

	rec := record.NewMapRecord("r1", map[string]any{"x": "hi"})
	result := m.Validate(context.Background(), rec)

	errs := result.AllErrors()
	require.Len(t, errs, 1)
	assert.Equal(t, errid.IDTimeout, errs[0].ErrorID)
	assert.Contains(t, errs[0].Detail, "Timeout (0.1s) during execution")
}

func TestZeroValidatorsEverySucceeds(t *testing.T) {
	m := manager.New()
	rec := record.NewMapRecord("r1", map[string]any{})
	result := m.Validate(context.Background(), rec)
	assert.Equal(t, 1, result.NumSucceeds())
	assert.Equal(t, 0, result.NumFails())
}

func TestZeroRecordsEmptyResult(t *testing.T) {
	m := manager.New()
	result := m.Validate(context.Background())
	assert.Equal(t, 0, result.Total())
}

func TestIdempotentReRegistration(t *testing.T) {
	a := pathMapped(t, "A", func(x string) {}, map[string]string{"x": "x"},
		validator.Param{Name: "x", Type: reflect.TypeOf(""), Required: true})

	m := manager.New()
	require.NoError(t, m.Register(a))
	require.NoError(t, m.Register(a))
}

func TestTypeMismatchYieldsTypeMismatchErrorInsteadOfPanic(t *testing.T) {
	called := false
	a := pathMapped(t, "A", func(y int) {
		called = true
	}, map[string]string{"y": "y"}, validator.Param{Name: "y", Type: reflect.TypeOf(0), Required: true})

	m := manager.New()
	require.NoError(t, m.Register(a))

	rec := record.NewMapRecord("r1", map[string]any{"y": "not-an-int"})
	result := m.Validate(context.Background(), rec)

	assert.False(t, called)
	errs := result.AllErrors()
	require.Len(t, errs, 1)
	assert.Equal(t, errid.IDTypeMismatch, errs[0].ErrorID)
}

func TestRegisterRejectsUnregisteredDependency(t *testing.T) {
	a := pathMapped(t, "A", func(x string) {}, map[string]string{"x": "x"},
		validator.Param{Name: "x", Type: reflect.TypeOf(""), Required: true})
	b := pathMapped(t, "B", func(x string) {}, map[string]string{"x": "x"},
		validator.Param{Name: "x", Type: reflect.TypeOf(""), Required: true})

	m := manager.New()
	err := m.Register(a, manager.WithDependsOn(b))
	require.Error(t, err)
	var cfgErr *manager.ConfigError
	require.ErrorAs(t, err, &cfgErr)
}
