package world

import (
	"math"

	"github.com/go-gl/mathgl/mgl32"

	"github.com/annel0/blockverse/internal/vec"
	"github.com/annel0/blockverse/internal/world/block"
)

// DefaultMaxPickDistance - дальность выбора блока по умолчанию (в клетках)
const DefaultMaxPickDistance = 8

const pickEpsilon = 1e-6

// BlockSource - чтение блоков по мировой позиции
type BlockSource interface {
	BlockAt(p vec.Vec3) block.ID
}

// PickResult - первая непустая клетка луча и пустая клетка перед ней
type PickResult struct {
	Hit  vec.Vec3 `json:"hit"`
	Prev vec.Vec3 `json:"prev"`
}

// Pick обходит сетку вдоль луча (Amanatides & Woo) не более maxSteps шагов.
// Prev - клетка, примыкающая к грани попадания: туда ставится новый блок.
func Pick(src BlockSource, origin, dir mgl32.Vec3, maxSteps int) (PickResult, bool) {
	current := vec.Floor(origin)
	prev := current

	var (
		pos    = [3]int{current.X, current.Y, current.Z}
		step   [3]int
		tMax   [3]float64
		tDelta [3]float64
		moving bool
	)

	for i := 0; i < 3; i++ {
		d := float64(dir[i])
		o := float64(origin[i])
		step[i] = 1
		if d < 0 {
			step[i] = -1
		}
		if math.Abs(d) < pickEpsilon {
			tMax[i] = math.Inf(1)
			tDelta[i] = math.Inf(1)
			continue
		}
		moving = true
		tDelta[i] = 1 / math.Abs(d)
		boundary := float64(pos[i])
		if d > 0 {
			boundary++
		}
		tMax[i] = (boundary - o) / d
	}
	if !moving {
		return PickResult{}, false
	}

	for n := 0; n < maxSteps; n++ {
		var a int
		switch {
		case tMax[0] <= tMax[1] && tMax[0] <= tMax[2]:
			a = 0
		case tMax[1] <= tMax[2]:
			a = 1
		default:
			a = 2
		}
		pos[a] += step[a]
		tMax[a] += tDelta[a]

		current = vec.Vec3{X: pos[0], Y: pos[1], Z: pos[2]}
		if src.BlockAt(current) != block.Empty {
			return PickResult{Hit: current, Prev: prev}, true
		}
		prev = current
	}
	return PickResult{}, false
}

// Pick выбирает блок лучом из глаз наблюдателя на дальность MaxPickDistance
func (s *Store) Pick(origin, dir mgl32.Vec3) (PickResult, bool) {
	return Pick(s, origin, dir, s.opts.MaxPickDistance)
}
