package vec

import (
	"fmt"
	"math"
)

// Vec2 представляет координаты колонки на плоскости XZ (координаты чанка)
type Vec2 struct {
	X, Z int
}

// Add складывает два вектора
func (v Vec2) Add(other Vec2) Vec2 {
	return Vec2{X: v.X + other.X, Z: v.Z + other.Z}
}

// Sub вычитает вектор
func (v Vec2) Sub(other Vec2) Vec2 {
	return Vec2{X: v.X - other.X, Z: v.Z - other.Z}
}

// ChebyshevDistance возвращает max(|dx|, |dz|) - радиус квадратного окна, в которое попадает точка
func (v Vec2) ChebyshevDistance(other Vec2) int {
	dx := absInt(v.X - other.X)
	dz := absInt(v.Z - other.Z)
	if dx > dz {
		return dx
	}
	return dz
}

// DistanceSq возвращает квадрат евклидова расстояния
func (v Vec2) DistanceSq(other Vec2) int {
	dx := v.X - other.X
	dz := v.Z - other.Z
	return dx*dx + dz*dz
}

// DistanceTo вычисляет расстояние до другой точки
func (v Vec2) DistanceTo(other Vec2) float64 {
	return math.Sqrt(float64(v.DistanceSq(other)))
}

// Less задаёт детерминированный порядок (сначала X, затем Z)
func (v Vec2) Less(other Vec2) bool {
	if v.X != other.X {
		return v.X < other.X
	}
	return v.Z < other.Z
}

// ChunkOf переводит мировую колонку в координаты чанка размера size (деление с округлением вниз)
func (v Vec2) ChunkOf(size int) Vec2 {
	return Vec2{X: floorDiv(v.X, size), Z: floorDiv(v.Z, size)}
}

func (v Vec2) String() string {
	return fmt.Sprintf("(%d,%d)", v.X, v.Z)
}

func absInt(a int) int {
	if a < 0 {
		return -a
	}
	return a
}

func floorDiv(a, b int) int {
	q := a / b
	if a%b != 0 && (a < 0) != (b < 0) {
		q--
	}
	return q
}
