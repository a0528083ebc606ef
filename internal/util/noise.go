package util

import (
	"github.com/aquilax/go-perlin"
)

// Параметры шума Перлина. Зафиксированы: от них зависит хеш сгенерированного мира.
const (
	PerlinAlpha   = 2.0 // Сглаживание шума
	PerlinBeta    = 2.0 // Частота шума
	PerlinOctaves = 3   // Количество октав
)

// NoiseField - детерминированное поле шума Перлина для одного сида.
// После создания только читается, поэтому безопасно для нескольких горутин.
type NoiseField struct {
	seed  int64
	noise *perlin.Perlin
}

// NewNoiseField создаёт поле шума для сида
func NewNoiseField(seed int64) *NoiseField {
	return NewNoiseFieldOctaves(seed, PerlinOctaves)
}

// NewNoiseFieldOctaves создаёт поле с заданным числом октав
func NewNoiseFieldOctaves(seed int64, octaves int32) *NoiseField {
	if octaves < 1 {
		octaves = 1
	}
	return &NoiseField{
		seed:  seed,
		noise: perlin.NewPerlin(PerlinAlpha, PerlinBeta, octaves, seed),
	}
}

// Seed возвращает сид поля
func (f *NoiseField) Seed() int64 {
	return f.seed
}

// Noise2D возвращает сырое значение шума (примерно от -1 до 1)
func (f *NoiseField) Noise2D(x, y float64) float64 {
	return f.noise.Noise2D(x, y)
}

// Noise2DUnit возвращает значение шума в диапазоне от 0 до 1
func (f *NoiseField) Noise2DUnit(x, y float64) float64 {
	return (f.noise.Noise2D(x, y) + 1.0) / 2.0
}

// Noise2DScaled умножает сырой шум на gain и обрезает результат до [-1, 1].
// Одна октава go-perlin на практике не выходит за ±0.7, gain растягивает её на весь диапазон.
func (f *NoiseField) Noise2DScaled(x, y, gain float64) float64 {
	v := f.noise.Noise2D(x, y) * gain
	if v > 1 {
		return 1
	}
	if v < -1 {
		return -1
	}
	return v
}
