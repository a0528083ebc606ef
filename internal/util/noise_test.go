package util

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNoiseFieldDeterministic(t *testing.T) {
	a := NewNoiseField(42)
	b := NewNoiseField(42)
	for i := 0; i < 64; i++ {
		x := float64(i)/16 + 0.3
		y := float64(i)/7 - 1.1
		assert.Equal(t, a.Noise2D(x, y), b.Noise2D(x, y))
	}
	assert.Equal(t, int64(42), a.Seed())
}

func TestNoiseFieldSeedsDiffer(t *testing.T) {
	a := NewNoiseField(1)
	b := NewNoiseField(2)
	differs := false
	for i := 0; i < 32 && !differs; i++ {
		x := float64(i)*0.37 + 0.11
		differs = a.Noise2D(x, x*0.5) != b.Noise2D(x, x*0.5)
	}
	assert.True(t, differs)
}

func TestNoise2DUnitIsShiftedRaw(t *testing.T) {
	f := NewNoiseField(7)
	for i := 0; i < 20; i++ {
		x, y := float64(i)*0.173, float64(i)*0.091
		assert.InDelta(t, (f.Noise2D(x, y)+1)/2, f.Noise2DUnit(x, y), 1e-12)
	}
}

func TestNoise2DScaledStaysInRange(t *testing.T) {
	f := NewNoiseFieldOctaves(42, 1)
	above := 0
	for i := 0; i < 64; i++ {
		for j := 0; j < 64; j++ {
			x, y := float64(i)/4, float64(j)/4
			v := f.Noise2DScaled(x, y, 2)
			assert.GreaterOrEqual(t, v, -1.0)
			assert.LessOrEqual(t, v, 1.0)
			if raw := f.Noise2D(x, y) * 2; raw > -1 && raw < 1 {
				assert.Equal(t, raw, v)
			}
			if v > 0.8 {
				above++
			}
		}
	}
	assert.Positive(t, above, "усиленное поле должно превышать 0.8")
}

func TestOctavesClampToOne(t *testing.T) {
	a := NewNoiseFieldOctaves(5, 0)
	b := NewNoiseFieldOctaves(5, 1)
	assert.Equal(t, a.Noise2D(0.3, 0.7), b.Noise2D(0.3, 0.7))
	assert.Equal(t, NewNoiseField(5).Noise2D(0.3, 0.7), NewNoiseFieldOctaves(5, PerlinOctaves).Noise2D(0.3, 0.7))
}
