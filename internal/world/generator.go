package world

import (
	"math"

	"github.com/annel0/blockverse/internal/util"
	"github.com/annel0/blockverse/internal/vec"
	"github.com/annel0/blockverse/internal/world/block"
)

// Константы генерации рельефа
const (
	BaseHeight     = 64   // Средняя высота поверхности
	HeightAmp      = 8.0  // Амплитуда рельефа
	TerrainScale   = 16.0 // Масштаб шума высоты
	TreeScale      = 4.0  // Масштаб шума деревьев
	TreeThreshold  = 0.80 // Порог появления дерева
	TreeOctaves    = 1    // Октавы поля деревьев
	TreeGain       = 2.0  // Растяжение поля деревьев до [-1, 1]
	TreeMargin     = 2    // Отступ деревьев от края чанка
	DirtDepth      = 5    // Толщина слоя земли вместе с травой
	minTreeHeight  = 4
	treeHeightSpan = 15.0
)

// TerrainGenerator синтезирует чанки из сида и координат. Результат - чистая функция
// (coord, seed); генератор после создания только читается.
type TerrainGenerator struct {
	Seed  uint32
	dims  Dims
	noise *util.NoiseField
	trees *util.NoiseField
}

// NewTerrainGenerator создаёт генератор для сида
func NewTerrainGenerator(seed uint32, dims Dims) *TerrainGenerator {
	return &TerrainGenerator{
		Seed:  seed,
		dims:  dims,
		noise: util.NewNoiseField(int64(seed)),
		trees: util.NewNoiseFieldOctaves(int64(seed), TreeOctaves),
	}
}

// ColumnHeight возвращает высоту колонны: верхний блок травы лежит на y = height-1
func (g *TerrainGenerator) ColumnHeight(wx, wz int) int {
	n := g.noise.Noise2D(float64(wx)/TerrainScale, float64(wz)/TerrainScale)
	height := int(math.Floor(n*HeightAmp)) + BaseHeight
	if height < 1 {
		height = 1
	}
	if height > g.dims.Height {
		height = g.dims.Height
	}
	return height
}

// TreeValue возвращает значение шума деревьев для колонны в диапазоне [-1, 1].
// Сумма трёх октав почти никогда не превышает TreeThreshold, поэтому у деревьев своё
// однооктавное поле с усилением TreeGain.
func (g *TerrainGenerator) TreeValue(wx, wz int) float64 {
	half := float64(g.dims.Size / 2)
	return g.trees.Noise2DScaled((float64(wz)+half)/TreeScale, (float64(wx)+half)/TreeScale, TreeGain)
}

// TreeHeight - высота ствола для значения шума t
func TreeHeight(t float64) int {
	return int(math.Floor((1-t)*treeHeightSpan)) + minTreeHeight
}

// GenerateChunk генерирует чанк по его координатам и строит видимые инстансы
func (g *TerrainGenerator) GenerateChunk(coord vec.Vec2) *Chunk {
	chunk := NewChunk(coord, g.dims)
	s := g.dims.Size
	origin := chunk.Origin()

	heights := make([]int, s*s)
	for x := 0; x < s; x++ {
		for z := 0; z < s; z++ {
			height := g.ColumnHeight(origin.X+x, origin.Z+z)
			heights[x*s+z] = height
			g.fillColumn(chunk, x, z, height)
		}
	}

	g.plantTrees(chunk, heights)
	chunk.BuildVisibleInstances()
	return chunk
}

func (g *TerrainGenerator) fillColumn(c *Chunk, x, z, height int) {
	for y := 0; y < height; y++ {
		var id block.ID
		switch {
		case y < height-DirtDepth:
			id = block.Stone
		case y < height-1:
			id = block.Dirt
		default:
			id = block.Grass
		}
		c.Set(x, y, z, id)
	}
	c.Set(x, 0, z, block.UnderStone)
}

// plantTrees расставляет березы во внутренней области чанка
func (g *TerrainGenerator) plantTrees(c *Chunk, heights []int) {
	s := g.dims.Size
	origin := c.Origin()
	occupied := make([]bool, s*s)

	for x := TreeMargin + 1; x < s-TreeMargin; x++ {
		for z := TreeMargin + 1; z < s-TreeMargin; z++ {
			if occupied[x*s+z] {
				continue
			}
			t := g.TreeValue(origin.X+x, origin.Z+z)
			if t <= TreeThreshold {
				continue
			}

			g.placeBirch(c, x, z, heights[x*s+z], TreeHeight(t))

			for dx := -2; dx <= 2; dx++ {
				for dz := -2; dz <= 2; dz++ {
					ox, oz := x+dx, z+dz
					if ox >= 0 && ox < s && oz >= 0 && oz < s {
						occupied[ox*s+oz] = true
					}
				}
			}
		}
	}
}

// placeBirch ставит ствол высотой h начиная с base и три слоя листвы
func (g *TerrainGenerator) placeBirch(c *Chunk, x, z, base, h int) {
	for y := base; y < base+h; y++ {
		g.setInside(c, x, y, z, block.BirchLog)
	}

	top := base + h
	for dx := -2; dx <= 2; dx++ {
		for dz := -2; dz <= 2; dz++ {
			if dx == 0 && dz == 0 {
				continue
			}
			corner := abs(dx) == 2 && abs(dz) == 2
			if !corner {
				g.setInside(c, x+dx, top-1, z+dz, block.BirchLeaves)
			}
			g.setInside(c, x+dx, top-2, z+dz, block.BirchLeaves)
		}
	}

	for dx := -1; dx <= 1; dx++ {
		for dz := -1; dz <= 1; dz++ {
			if abs(dx) == 1 && abs(dz) == 1 {
				continue
			}
			g.setInside(c, x+dx, top, z+dz, block.BirchLeaves)
		}
	}
}

func (g *TerrainGenerator) setInside(c *Chunk, x, y, z int, id block.ID) {
	if g.dims.Contains(x, y, z) && c.at(x, y, z) == block.Empty {
		c.Set(x, y, z, id)
	}
}

func abs(a int) int {
	if a < 0 {
		return -a
	}
	return a
}
