package vec

import (
	"fmt"
	"math"

	"github.com/go-gl/mathgl/mgl32"
)

// Vec3 представляет трехмерный вектор с целочисленными координатами (позиция клетки)
type Vec3 struct {
	X int
	Y int
	Z int
}

// FaceOffsets - шесть соседей по граням в порядке +Z, +Y, -Z, -Y, -X, +X
var FaceOffsets = [6]Vec3{
	{0, 0, 1},
	{0, 1, 0},
	{0, 0, -1},
	{0, -1, 0},
	{-1, 0, 0},
	{1, 0, 0},
}

// Floor возвращает клетку, содержащую точку
func Floor(p mgl32.Vec3) Vec3 {
	return Vec3{
		X: int(math.Floor(float64(p[0]))),
		Y: int(math.Floor(float64(p[1]))),
		Z: int(math.Floor(float64(p[2]))),
	}
}

// Float возвращает минимальный угол клетки в мировых координатах
func (v Vec3) Float() mgl32.Vec3 {
	return mgl32.Vec3{float32(v.X), float32(v.Y), float32(v.Z)}
}

// XZ отбрасывает вертикальную координату
func (v Vec3) XZ() Vec2 {
	return Vec2{X: v.X, Z: v.Z}
}

// DistanceSq возвращает квадрат расстояния до другого вектора
func (v Vec3) DistanceSq(other Vec3) int {
	dx := v.X - other.X
	dy := v.Y - other.Y
	dz := v.Z - other.Z
	return dx*dx + dy*dy + dz*dz
}

// Equals проверяет равенство векторов
func (v Vec3) Equals(other Vec3) bool {
	return v.X == other.X && v.Y == other.Y && v.Z == other.Z
}

// Add складывает два вектора
func (v Vec3) Add(other Vec3) Vec3 {
	return Vec3{
		X: v.X + other.X,
		Y: v.Y + other.Y,
		Z: v.Z + other.Z,
	}
}

// Neighbors возвращает шесть соседей по граням
func (v Vec3) Neighbors() [6]Vec3 {
	var out [6]Vec3
	for i, off := range FaceOffsets {
		out[i] = v.Add(off)
	}
	return out
}

func (v Vec3) String() string {
	return fmt.Sprintf("(%d,%d,%d)", v.X, v.Y, v.Z)
}
