package physics

import (
	"math"

	"github.com/go-gl/mathgl/mgl32"

	"github.com/annel0/blockverse/internal/vec"
)

const (
	// VelocityEpsilon - скорость ниже этого порога обнуляется
	VelocityEpsilon = 1e-3
	// GroundProbeDepth - глубина проверки опоры под нижними углами
	GroundProbeDepth = 0.1
	// groundProbeInset - отступ углов внутрь, чтобы касание соседней колонны не считалось опорой
	groundProbeInset = 1e-3
	// contactSlop - перекрытие меньше этого значения считается касанием
	contactSlop = 1e-4
	// groundNormal - нормаль с y выше порога означает опору
	groundNormal = 0.7
)

// SolidSource отвечает на вопрос, твёрдая ли клетка
type SolidSource interface {
	IsSolidAt(p vec.Vec3) bool
}

// SolidFunc адаптирует функцию к SolidSource
type SolidFunc func(p vec.Vec3) bool

func (f SolidFunc) IsSolidAt(p vec.Vec3) bool { return f(p) }

// Params - параметры физики
type Params struct {
	Gravity          float32
	TerminalVelocity float32
}

// DefaultParams - гравитация и предельная скорость по умолчанию
var DefaultParams = Params{Gravity: 32, TerminalVelocity: 78.4}

// Body - AABB сущности: Origin - минимальный угол, Size - размеры по осям
type Body struct {
	Origin   mgl32.Vec3
	Size     mgl32.Vec3
	Velocity mgl32.Vec3
	Grounded bool
}

// Max возвращает максимальный угол AABB
func (b *Body) Max() mgl32.Vec3 {
	return b.Origin.Add(b.Size)
}

// Center возвращает центр AABB
func (b *Body) Center() mgl32.Vec3 {
	return b.Origin.Add(b.Size.Mul(0.5))
}

// Overlaps сообщает, пересекает ли тело единичный куб клетки по всем трём осям.
// Касание гранями пересечением не считается.
func Overlaps(b *Body, cell vec.Vec3) bool {
	c := [3]float32{float32(cell.X), float32(cell.Y), float32(cell.Z)}
	for k := 0; k < 3; k++ {
		if b.Origin[k]+b.Size[k] <= c[k]+contactSlop || b.Origin[k] >= c[k]+1-contactSlop {
			return false
		}
	}
	return true
}

// Colliding возвращает твёрдые клетки, пересекающие тело, в порядке обхода x, y, z
func Colliding(src SolidSource, b *Body) []vec.Vec3 {
	var out []vec.Vec3
	lo := vec.Floor(b.Origin.Sub(mgl32.Vec3{1, 1, 1}))
	hi := b.Max().Add(mgl32.Vec3{1, 1, 1})
	hx := int(math.Ceil(float64(hi[0])))
	hy := int(math.Ceil(float64(hi[1])))
	hz := int(math.Ceil(float64(hi[2])))

	for x := lo.X; x <= hx; x++ {
		for y := lo.Y; y <= hy; y++ {
			for z := lo.Z; z <= hz; z++ {
				cell := vec.Vec3{X: x, Y: y, Z: z}
				if Overlaps(b, cell) && src.IsSolidAt(cell) {
					out = append(out, cell)
				}
			}
		}
	}
	return out
}

// Step продвигает тело на dt: гравитация, пробное перемещение и, при столкновении,
// раздельный проход по осям X, Y, Z с выталкиванием по оси наименьшего перекрытия.
func Step(src SolidSource, b *Body, dt float32, p Params) {
	if !b.Grounded {
		b.Velocity[1] -= p.Gravity * dt
		if b.Velocity[1] < -p.TerminalVelocity {
			b.Velocity[1] = -p.TerminalVelocity
		}
	}

	origin0 := b.Origin
	b.Origin = origin0.Add(b.Velocity.Mul(dt))
	b.Grounded = false

	if len(Colliding(src, b)) == 0 {
		b.Grounded = probeGround(src, b)
		clampVelocity(b)
		return
	}

	b.Origin = origin0
	for axis := 0; axis < 3; axis++ {
		sweepAxis(src, b, axis, dt)
	}
	clampVelocity(b)
}

// sweepAxis сдвигает тело вдоль одной оси и разрешает контакты по одному.
// Если после разрешения тело всё ещё пересекает блоки, сдвиг по оси отменяется.
func sweepAxis(src SolidSource, b *Body, axis int, dt float32) {
	before := b.Origin
	b.Origin[axis] += b.Velocity[axis] * dt

	for _, cell := range Colliding(src, b) {
		if Overlaps(b, cell) {
			resolve(b, cell)
		}
	}

	if len(Colliding(src, b)) > 0 {
		b.Origin = before
		b.Velocity[axis] = 0
	}
}

// resolve выталкивает тело из клетки по оси наименьшего перекрытия
// (при равенстве - X, затем Y, затем Z) и гасит скорость, направленную внутрь.
func resolve(b *Body, cell vec.Vec3) {
	lo := cell.Float()
	hi := lo.Add(mgl32.Vec3{1, 1, 1})
	bmax := b.Max()

	axis := -1
	var best float32
	for k := 0; k < 3; k++ {
		overlap := min(hi[k]-b.Origin[k], bmax[k]-lo[k])
		if axis < 0 || overlap < best {
			axis, best = k, overlap
		}
	}

	var normal mgl32.Vec3
	if b.Center()[axis] >= lo[axis]+0.5 {
		normal[axis] = 1
		b.Origin[axis] = hi[axis]
	} else {
		normal[axis] = -1
		b.Origin[axis] = lo[axis] - b.Size[axis]
	}

	if vn := b.Velocity.Dot(normal); vn < 0 {
		b.Velocity = b.Velocity.Sub(normal.Mul(vn))
	}
	if normal[1] > groundNormal {
		b.Grounded = true
	}
}

// probeGround проверяет четыре нижних угла на глубине GroundProbeDepth
func probeGround(src SolidSource, b *Body) bool {
	y := b.Origin[1] - GroundProbeDepth
	x0, x1 := b.Origin[0]+groundProbeInset, b.Origin[0]+b.Size[0]-groundProbeInset
	z0, z1 := b.Origin[2]+groundProbeInset, b.Origin[2]+b.Size[2]-groundProbeInset

	for _, c := range [4][2]float32{{x0, z0}, {x1, z0}, {x0, z1}, {x1, z1}} {
		if src.IsSolidAt(vec.Floor(mgl32.Vec3{c[0], y, c[1]})) {
			return true
		}
	}
	return false
}

func clampVelocity(b *Body) {
	if b.Velocity.Len() < VelocityEpsilon {
		b.Velocity = mgl32.Vec3{}
	}
}
