package bind_test

import (
	"reflect"
	"regexp"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Hochfrequenz/bo4e-migration-framework/bind"
	"github.com/Hochfrequenz/bo4e-migration-framework/record"
	"github.com/Hochfrequenz/bo4e-migration-framework/validator"
)

func checkListRecord() *record.MapRecord {
	return record.NewMapRecord("r1", map[string]any{
		"x": []any{
			map[string]any{"x": "Hello"},
			map[string]any{"x": "World"},
			map[string]any{"x": "!"},
		},
		"y": "lul",
	})
}

func newCheckValidator(t *testing.T) *validator.Validator {
	t.Helper()
	fn := func(x string, y string) {}
	v, err := validator.New("check", fn,
		validator.Param{Name: "x", Type: reflect.TypeOf(""), Required: true},
		validator.Param{Name: "y", Type: reflect.TypeOf(""), Required: true},
	)
	require.NoError(t, err)
	return v
}

func TestQueryMappedIteratesList(t *testing.T) {
	v := newCheckValidator(t)
	queries := map[string]*bind.Query{
		"x": bind.NewQuery().Path("x").Iter(bind.ListIter).Path("x"),
		"y": bind.NewQuery().Path("y"),
	}
	qm, err := bind.NewQueryMapped(v, queries)
	require.NoError(t, err)

	outcomes := qm.Provide(checkListRecord())
	require.Len(t, outcomes, 3)

	idPattern := regexp.MustCompile(`x\[\d+\]\.x`)
	for _, oc := range outcomes {
		require.NoError(t, oc.Err)
		px, ok := oc.Params.Param("x")
		require.True(t, ok)
		assert.True(t, idPattern.MatchString(px.ParamID))
	}
}

func TestQueryMappedRequiredMissingSurfacesOneError(t *testing.T) {
	v := newCheckValidator(t)
	rec := record.NewMapRecord("r1", map[string]any{
		"x": []any{
			map[string]any{"x": "Hello"},
			map[string]any{"x": "World"},
			map[string]any{"x": "!"},
		},
		// y is absent
	})
	queries := map[string]*bind.Query{
		"x": bind.NewQuery().Path("x").Iter(bind.ListIter).Path("x"),
		"y": bind.NewQuery().Path("y"),
	}
	qm, err := bind.NewQueryMapped(v, queries)
	require.NoError(t, err)

	outcomes := qm.Provide(rec)

	var paramSets, errs int
	for _, oc := range outcomes {
		if oc.Err != nil {
			errs++
			assert.Contains(t, oc.Err.Error(), "y not provided")
			continue
		}
		paramSets++
	}
	assert.Equal(t, 0, paramSets)
	assert.Equal(t, 1, errs)
}
