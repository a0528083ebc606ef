package player

import (
	"math"

	"github.com/go-gl/mathgl/mgl32"

	"github.com/annel0/blockverse/internal/physics"
	"github.com/annel0/blockverse/internal/vec"
	"github.com/annel0/blockverse/internal/world/block"
)

const (
	// DefaultWalkSpeed - скорость ходьбы, блоков в секунду
	DefaultWalkSpeed = 4.3
	// DefaultJumpSpeed - начальная вертикальная скорость прыжка
	DefaultJumpSpeed = 9
	// EyeHeight - высота глаз над ногами
	EyeHeight = 1.62
	// MouseSensitivity - радиан на единицу смещения мыши
	MouseSensitivity = 0.0025

	maxPitch = math.Pi/2 - 0.01
)

// BodySize - хитбокс игрока
var BodySize = mgl32.Vec3{0.6, 1.8, 0.6}

// Input - состояние управления за один кадр
type Input struct {
	Forward bool
	Back    bool
	Left    bool
	Right   bool
	Jump    bool
	Break   bool
	Place   bool
	LookDX  float32
	LookDY  float32
	// Selected - блок, который ставится по Place
	Selected block.ID
}

// Config - параметры движения игрока
type Config struct {
	WalkSpeed float32
	JumpSpeed float32
}

// Controller управляет телом игрока и камерой. Yaw = 0 смотрит вдоль +Z,
// положительный pitch - вверх.
type Controller struct {
	Body      physics.Body
	Yaw       float32
	Pitch     float32
	walkSpeed float32
	jumpSpeed float32
}

// NewController создаёт игрока, стоящего ногами в точке feet
func NewController(feet mgl32.Vec3, cfg Config) *Controller {
	if cfg.WalkSpeed <= 0 {
		cfg.WalkSpeed = DefaultWalkSpeed
	}
	if cfg.JumpSpeed <= 0 {
		cfg.JumpSpeed = DefaultJumpSpeed
	}
	c := &Controller{walkSpeed: cfg.WalkSpeed, jumpSpeed: cfg.JumpSpeed}
	c.Body.Size = BodySize
	c.Teleport(feet)
	return c
}

// Teleport ставит игрока ногами в точку feet (центр подошвы) и гасит скорость
func (c *Controller) Teleport(feet mgl32.Vec3) {
	c.Body.Origin = mgl32.Vec3{feet[0] - c.Body.Size[0]/2, feet[1], feet[2] - c.Body.Size[2]/2}
	c.Body.Velocity = mgl32.Vec3{}
	c.Body.Grounded = false
}

// Feet возвращает центр подошвы
func (c *Controller) Feet() mgl32.Vec3 {
	return mgl32.Vec3{c.Body.Origin[0] + c.Body.Size[0]/2, c.Body.Origin[1], c.Body.Origin[2] + c.Body.Size[2]/2}
}

// Eye возвращает позицию камеры
func (c *Controller) Eye() mgl32.Vec3 {
	return c.Feet().Add(mgl32.Vec3{0, EyeHeight, 0})
}

// Look поворачивает камеру на смещение мыши
func (c *Controller) Look(dx, dy float32) {
	c.Yaw += dx * MouseSensitivity
	c.Pitch -= dy * MouseSensitivity
	if c.Pitch > maxPitch {
		c.Pitch = maxPitch
	}
	if c.Pitch < -maxPitch {
		c.Pitch = -maxPitch
	}
	c.Yaw = float32(math.Mod(float64(c.Yaw), 2*math.Pi))
}

// Forward возвращает единичный вектор взгляда
func (c *Controller) Forward() mgl32.Vec3 {
	sy, cy := math.Sincos(float64(c.Yaw))
	sp, cp := math.Sincos(float64(c.Pitch))
	return mgl32.Vec3{float32(sy * cp), float32(sp), float32(cy * cp)}
}

// ApplyInput поворачивает камеру, задаёт горизонтальную скорость по направлению взгляда
// и начинает прыжок, если игрок стоит на земле
func (c *Controller) ApplyInput(in Input) {
	c.Look(in.LookDX, in.LookDY)

	sy, cy := math.Sincos(float64(c.Yaw))
	forward := mgl32.Vec3{float32(sy), 0, float32(cy)}
	right := mgl32.Vec3{float32(cy), 0, float32(-sy)}

	var move mgl32.Vec3
	if in.Forward {
		move = move.Add(forward)
	}
	if in.Back {
		move = move.Sub(forward)
	}
	if in.Right {
		move = move.Add(right)
	}
	if in.Left {
		move = move.Sub(right)
	}
	if move.Len() > 1e-6 {
		move = move.Normalize().Mul(c.walkSpeed)
	}
	c.Body.Velocity[0] = move[0]
	c.Body.Velocity[2] = move[2]

	if in.Jump && c.Body.Grounded {
		c.Body.Velocity[1] = c.jumpSpeed
		c.Body.Grounded = false
	}
}

// Step продвигает тело игрока через физику
func (c *Controller) Step(src physics.SolidSource, dt float32, p physics.Params) {
	physics.Step(src, &c.Body, dt, p)
}

// ChunkCoord возвращает чанк, в котором стоит игрок
func (c *Controller) ChunkCoord(size int) vec.Vec2 {
	return vec.Floor(c.Feet()).XZ().ChunkOf(size)
}

// WantsCenter решает, нужно ли сдвигать центр окна резидентности. При deadZone > 0
// центр переносится только когда игрок ушёл дальше deadZone чанков.
func (c *Controller) WantsCenter(current vec.Vec2, size, deadZone int) (vec.Vec2, bool) {
	coord := c.ChunkCoord(size)
	if coord == current {
		return current, false
	}
	if coord.ChebyshevDistance(current) <= deadZone {
		return current, false
	}
	return coord, true
}
