package runtime

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestFlattenFlatFloat32(t *testing.T) {
	vec, err := Flatten([]float32{1, 2, 3})
	require.NoError(t, err)
	require.Equal(t, []float32{1, 2, 3}, vec)
}

func TestFlattenFloat64(t *testing.T) {
	vec, err := Flatten([]float64{0.5, 0.25})
	require.NoError(t, err)
	require.Equal(t, []float32{0.5, 0.25}, vec)
}

func TestFlattenIntSlice(t *testing.T) {
	vec, err := Flatten([]int{1, 2})
	require.NoError(t, err)
	require.Equal(t, []float32{1, 2}, vec)
}

func TestFlattenNestedSlices(t *testing.T) {
	vec, err := Flatten([][]float32{{1, 2}, {3}})
	require.NoError(t, err)
	require.Equal(t, []float32{1, 2, 3}, vec)
}

func TestFlattenInterfaceTree(t *testing.T) {
	// The shape a JSON decoder hands back.
	out := []interface{}{
		[]interface{}{1.0, 2.0},
		[]interface{}{3.0},
		4.0,
	}
	vec, err := Flatten(out)
	require.NoError(t, err)
	require.Equal(t, []float32{1, 2, 3, 4}, vec)
}

func TestFlattenRejectsNonNumeric(t *testing.T) {
	_, err := Flatten([]interface{}{"not a number"})
	require.Error(t, err)
	require.Contains(t, err.Error(), "unsupported model output element")
}

func TestFlattenRejectsEmpty(t *testing.T) {
	_, err := Flatten(nil)
	require.Error(t, err)

	_, err = Flatten([]float32{})
	require.Error(t, err)
}
