package world

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/annel0/blockverse/internal/vec"
	"github.com/annel0/blockverse/internal/world/block"
)

func TestGenerationIsDeterministic(t *testing.T) {
	coord := vec.Vec2{X: 0, Z: 0}
	a := NewTerrainGenerator(42, DefaultDims).GenerateChunk(coord)
	b := NewTerrainGenerator(42, DefaultDims).GenerateChunk(coord)

	assert.Equal(t, a.BlocksSnapshot(), b.BlocksSnapshot(), "два прогона должны давать одинаковые блоки")
	assert.Equal(t, a.Hash64(), b.Hash64())
	assert.Equal(t, a.Instances(), b.Instances())

	other := NewTerrainGenerator(43, DefaultDims).GenerateChunk(coord)
	assert.NotEqual(t, a.Hash64(), other.Hash64(), "другой сид должен давать другой мир")
}

// Эталон для seed=42, (0,0), 16x256x16: worldgen-cli -cmd hash -seed 42.
// Смена версии go-perlin или параметров шума меняет все миры и ломает этот тест.
func TestGoldenChunkHash(t *testing.T) {
	c := NewTerrainGenerator(42, DefaultDims).GenerateChunk(vec.Vec2{})

	assert.Equal(t, uint64(0x39a52375e9ec19d6), c.Hash64())
	assert.Equal(t, 12, c.CountKind(block.BirchLog), "две березы по 6 блоков ствола")
	assert.Equal(t, 98, c.CountKind(block.BirchLeaves))
}

func TestGeneratedColumnsLayering(t *testing.T) {
	g := NewTerrainGenerator(42, DefaultDims)
	coord := vec.Vec2{X: -1, Z: 2}
	c := g.GenerateChunk(coord)
	origin := c.Origin()

	for x := 0; x < DefaultDims.Size; x++ {
		for z := 0; z < DefaultDims.Size; z++ {
			h := g.ColumnHeight(origin.X+x, origin.Z+z)
			require.Greater(t, h, DirtDepth)

			assert.Equal(t, block.UnderStone, c.Get(x, 0, z))
			for y := 1; y < h-DirtDepth; y++ {
				require.Equal(t, block.Stone, c.Get(x, y, z), "камень в (%d,%d,%d)", x, y, z)
			}
			for y := h - DirtDepth; y < h-1; y++ {
				require.Equal(t, block.Dirt, c.Get(x, y, z), "земля в (%d,%d,%d)", x, y, z)
			}
			assert.Equal(t, block.Grass, c.Get(x, h-1, z))

			for y := h; y < DefaultDims.Height; y++ {
				id := c.Get(x, y, z)
				assert.Contains(t, []block.ID{block.Empty, block.BirchLog, block.BirchLeaves}, id)
			}
		}
	}
	require.NoError(t, c.CheckInvariants(nil))
}

func TestTreesStayInsideChunkInterior(t *testing.T) {
	g := NewTerrainGenerator(7, DefaultDims)
	s := DefaultDims.Size
	logs := 0

	for cx := -3; cx <= 3; cx++ {
		for cz := -3; cz <= 3; cz++ {
			c := g.GenerateChunk(vec.Vec2{X: cx, Z: cz})
			for x := 0; x < s; x++ {
				for z := 0; z < s; z++ {
					for y := 0; y < DefaultDims.Height; y++ {
						if c.Get(x, y, z) != block.BirchLog {
							continue
						}
						logs++
						assert.True(t, x > TreeMargin && x < s-TreeMargin, "ствол у края по x: %d", x)
						assert.True(t, z > TreeMargin && z < s-TreeMargin, "ствол у края по z: %d", z)
					}
				}
			}
		}
	}
	require.Positive(t, logs, "в 49 чанках должны быть деревья")
}

func TestTreesAppearAcrossNearbyChunks(t *testing.T) {
	g := NewTerrainGenerator(42, DefaultDims)
	s := DefaultDims.Size
	withTrees := 0

	for cx := -2; cx <= 2; cx++ {
		for cz := -2; cz <= 2; cz++ {
			c := g.GenerateChunk(vec.Vec2{X: cx, Z: cz})
			if c.CountKind(block.BirchLog) == 0 {
				continue
			}
			withTrees++

			// Ствол стоит на траве своей колонны
			origin := c.Origin()
			for x := TreeMargin + 1; x < s-TreeMargin; x++ {
				for z := TreeMargin + 1; z < s-TreeMargin; z++ {
					h := g.ColumnHeight(origin.X+x, origin.Z+z)
					if c.Get(x, h, z) == block.BirchLog {
						assert.Equal(t, block.Grass, c.Get(x, h-1, z))
						assert.Greater(t, g.TreeValue(origin.X+x, origin.Z+z), TreeThreshold)
					}
				}
			}
		}
	}
	assert.GreaterOrEqual(t, withTrees, 10, "деревья есть в большинстве из 25 чанков")
}

func TestPlaceBirchShape(t *testing.T) {
	d := Dims{Size: 16, Height: 32}
	g := NewTerrainGenerator(1, d)
	c := NewChunk(vec.Vec2{}, d)

	const base, h = 10, 6
	g.placeBirch(c, 8, 8, base, h)

	assert.Equal(t, h, c.CountKind(block.BirchLog))
	for y := base; y < base+h; y++ {
		assert.Equal(t, block.BirchLog, c.Get(8, y, 8))
	}

	// 5x5 без углов и ствола + 5x5 без ствола + крест 3x3
	assert.Equal(t, 20+24+5, c.CountKind(block.BirchLeaves))
	assert.Equal(t, block.Empty, c.Get(6, base+h-1, 6), "угол верхнего слоя срезан")
	assert.Equal(t, block.BirchLeaves, c.Get(6, base+h-2, 6), "нижний слой полный")
	assert.Equal(t, block.BirchLeaves, c.Get(8, base+h, 8))
	assert.Equal(t, block.Empty, c.Get(9, base+h, 9), "углы верхушки удалены")
	assert.Equal(t, block.Empty, c.Get(8, base+h+1, 8))
}

func TestPlaceBirchClipsAtWorldTop(t *testing.T) {
	d := Dims{Size: 8, Height: 12}
	g := NewTerrainGenerator(1, d)
	c := NewChunk(vec.Vec2{}, d)

	assert.NotPanics(t, func() { g.placeBirch(c, 4, 4, 8, 6) })
	assert.Equal(t, 4, c.CountKind(block.BirchLog))
}

func TestTreeHeight(t *testing.T) {
	assert.Equal(t, 6, TreeHeight(0.85))
	assert.Equal(t, 4, TreeHeight(0.99))
	assert.Equal(t, 5, TreeHeight(0.9))
}
