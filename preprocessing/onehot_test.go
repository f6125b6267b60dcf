package preprocessing

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"
)

func TestOneHotEncoderSortedCategories(t *testing.T) {
	enc := NewOneHotEncoder()
	out, err := enc.FitTransform([][]string{
		{"red", "blue", "red"},
		{"s", "m", "l"},
	})
	require.NoError(t, err)

	assert.Equal(t, [][]string{{"blue", "red"}, {"l", "m", "s"}}, enc.Categories)

	want := mat.NewDense(3, 5, []float64{
		0, 1, 0, 0, 1,
		1, 0, 0, 1, 0,
		0, 1, 1, 0, 0,
	})
	assert.True(t, mat.Equal(want, out))

	names, err := enc.FeatureNamesOut([]string{"color", "size"})
	require.NoError(t, err)
	assert.Equal(t, []string{"color_blue", "color_red", "size_l", "size_m", "size_s"}, names)
}

func TestOneHotEncoderUnseenCategoryIsAllZero(t *testing.T) {
	enc := NewOneHotEncoder()
	require.NoError(t, enc.Fit([][]string{{"a", "b"}}))

	out, err := enc.Transform([][]string{{"c", "b"}})
	require.NoError(t, err)
	assert.Equal(t, []float64{0, 0}, mat.Row(nil, 0, out))
	assert.Equal(t, []float64{0, 1}, mat.Row(nil, 1, out))
}
