package bind_test

import (
	"reflect"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Hochfrequenz/bo4e-migration-framework/bind"
	"github.com/Hochfrequenz/bo4e-migration-framework/record"
	"github.com/Hochfrequenz/bo4e-migration-framework/validator"
)

func TestPathMappedAllOptionalMissingUsesDefaults(t *testing.T) {
	fn := func(x string, y int) {}
	v, err := validator.New("check", fn,
		validator.Param{Name: "x", Type: reflect.TypeOf(""), Required: false, Default: "fallback"},
		validator.Param{Name: "y", Type: reflect.TypeOf(0), Required: false, Default: 7},
	)
	require.NoError(t, err)

	pm, err := bind.NewPathMapped(v, map[string]string{"x": "x", "y": "y"})
	require.NoError(t, err)

	rec := record.NewMapRecord("r1", map[string]any{})
	outcomes := pm.Provide(rec)
	require.Len(t, outcomes, 1)
	require.NoError(t, outcomes[0].Err)

	px, ok := outcomes[0].Params.Param("x")
	require.True(t, ok)
	assert.False(t, px.Provided)
	assert.Equal(t, "fallback", px.Value)
}

func TestPathMappedRequiredMissingYieldsError(t *testing.T) {
	fn := func(x string) {}
	v, err := validator.New("check", fn, validator.Param{Name: "x", Type: reflect.TypeOf(""), Required: true})
	require.NoError(t, err)

	pm, err := bind.NewPathMapped(v, map[string]string{"x": "missing"})
	require.NoError(t, err)

	rec := record.NewMapRecord("r1", map[string]any{})
	outcomes := pm.Provide(rec)
	require.Len(t, outcomes, 1)
	require.Error(t, outcomes[0].Err)
	assert.Nil(t, outcomes[0].Params)
}

func TestNewPathMappedRejectsMismatchedMap(t *testing.T) {
	fn := func(x string) {}
	v, err := validator.New("check", fn, validator.Param{Name: "x", Type: reflect.TypeOf(""), Required: true})
	require.NoError(t, err)

	_, err = bind.NewPathMapped(v, map[string]string{"z": "z"})
	require.Error(t, err)
}

func TestPathMappedIdempotentEqual(t *testing.T) {
	fn := func(x string) {}
	v, err := validator.New("check", fn, validator.Param{Name: "x", Type: reflect.TypeOf(""), Required: true})
	require.NoError(t, err)

	pm1, err := bind.NewPathMapped(v, map[string]string{"x": "x"})
	require.NoError(t, err)
	pm2, err := bind.NewPathMapped(v, map[string]string{"x": "x"})
	require.NoError(t, err)
	assert.True(t, pm1.Equal(pm2))
}
