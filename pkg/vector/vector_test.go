package vector

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCosine(t *testing.T) {
	assert.InDelta(t, 1.0, Cosine([]float32{1, 2, 3}, []float32{2, 4, 6}), 1e-9)
	assert.InDelta(t, -1.0, Cosine([]float32{1, 0}, []float32{-1, 0}), 1e-9)
	assert.InDelta(t, 0.0, Cosine([]float32{1, 0}, []float32{0, 1}), 1e-9)
}

func TestCosineZeroVector(t *testing.T) {
	got := Cosine([]float32{0.3, -0.2, 0.9}, []float32{0, 0, 0})
	assert.False(t, math.IsNaN(got))
	assert.Equal(t, 0.0, got)
	assert.Equal(t, 0.0, Cosine(nil, []float32{1}))
}

func TestCosineLengthMismatch(t *testing.T) {
	assert.InDelta(t, 1.0, Cosine([]float32{1, 1}, []float32{1, 1, 0, 0}), 1e-9)
}

func TestNormalize(t *testing.T) {
	v := Normalize([]float32{3, 4})
	assert.InDelta(t, 0.6, v[0], 1e-6)
	assert.InDelta(t, 0.8, v[1], 1e-6)
	assert.Equal(t, []float32{0, 0}, Normalize([]float32{0, 0}))
}

func TestEncodeDecode(t *testing.T) {
	in := []float32{0, 1.5, -2.25, float32(math.Pi)}
	b := Encode(in)
	require.Len(t, b, 16)

	out, err := Decode(b)
	require.NoError(t, err)
	assert.Equal(t, in, out)

	_, err = Decode([]byte{1, 2, 3})
	assert.Error(t, err)
}
