package world

import (
	"fmt"

	"github.com/cespare/xxhash/v2"

	"github.com/annel0/blockverse/internal/vec"
	"github.com/annel0/blockverse/internal/world/block"
)

// Absent - значение cellToSlot для клетки без инстанса
const Absent int32 = -1

// Dims задаёт размеры чанка: Size по X и Z, Height по Y
type Dims struct {
	Size   int
	Height int
}

// DefaultDims - эталонные размеры 16x256x16
var DefaultDims = Dims{Size: 16, Height: 256}

// Volume возвращает число клеток в чанке
func (d Dims) Volume() int {
	return d.Size * d.Height * d.Size
}

// Contains проверяет, что локальные координаты лежат внутри чанка
func (d Dims) Contains(x, y, z int) bool {
	return x >= 0 && x < d.Size && y >= 0 && y < d.Height && z >= 0 && z < d.Size
}

// Index - биекция (x,y,z) -> x*H*S + y*S + z
func (d Dims) Index(x, y, z int) int {
	return x*d.Height*d.Size + y*d.Size + z
}

// Local - обратное преобразование индекса
func (d Dims) Local(idx int) (x, y, z int) {
	x = idx / (d.Height * d.Size)
	rem := idx % (d.Height * d.Size)
	return x, rem / d.Size, rem % d.Size
}

// Instance - запись буфера инстансов рендера (16 байт)
type Instance struct {
	Position [3]int32
	KindID   uint32
}

// Chunk представляет колонну блоков S x H x S с производным списком видимых инстансов.
// Чанк принадлежит одному владельцу (воркеру генерации, затем хранилищу мира)
// и не синхронизируется.
type Chunk struct {
	coord vec.Vec2
	dims  Dims

	blocks     []block.ID
	instances  []Instance // len(instances) == instance_top
	cellToSlot []int32

	edited        bool
	ChangeCounter int // Счетчик изменений через API редактирования
}

// NewChunk создаёт пустой чанк с указанными координатами
func NewChunk(coord vec.Vec2, dims Dims) *Chunk {
	n := dims.Volume()
	c := &Chunk{
		coord:      coord,
		dims:       dims,
		blocks:     make([]block.ID, n),
		cellToSlot: make([]int32, n),
	}
	for i := range c.cellToSlot {
		c.cellToSlot[i] = Absent
	}
	return c
}

// Coord возвращает координаты чанка
func (c *Chunk) Coord() vec.Vec2 { return c.coord }

// Dims возвращает размеры чанка
func (c *Chunk) Dims() Dims { return c.dims }

// Origin возвращает мировую позицию локальной клетки (0,0,0)
func (c *Chunk) Origin() vec.Vec3 {
	return vec.Vec3{X: c.coord.X * c.dims.Size, Y: 0, Z: c.coord.Z * c.dims.Size}
}

// WorldPos переводит локальные координаты в мировые
func (c *Chunk) WorldPos(x, y, z int) vec.Vec3 {
	o := c.Origin()
	return vec.Vec3{X: o.X + x, Y: y, Z: o.Z + z}
}

func (c *Chunk) mustIndex(x, y, z int) int {
	if !c.dims.Contains(x, y, z) {
		panic(&OutOfBoundsError{X: x, Y: y, Z: z, Dims: c.dims})
	}
	return c.dims.Index(x, y, z)
}

// Get возвращает блок по локальным координатам. Выход за границы - ошибка программиста (panic).
func (c *Chunk) Get(x, y, z int) block.ID {
	return c.blocks[c.mustIndex(x, y, z)]
}

// Set записывает блок. Инстансы не исправляются: этим занимается API редактирования.
func (c *Chunk) Set(x, y, z int, id block.ID) {
	c.blocks[c.mustIndex(x, y, z)] = id
}

// at возвращает блок или Empty за пределами чанка
func (c *Chunk) at(x, y, z int) block.ID {
	if !c.dims.Contains(x, y, z) {
		return block.Empty
	}
	return c.blocks[c.dims.Index(x, y, z)]
}

// Instances возвращает упакованный список инстансов [0, instance_top).
// Срез принадлежит чанку и не должен изменяться вызывающим.
func (c *Chunk) Instances() []Instance {
	return c.instances
}

// InstanceTop возвращает число занятых слотов
func (c *Chunk) InstanceTop() int {
	return len(c.instances)
}

// SlotOf возвращает слот инстанса клетки
func (c *Chunk) SlotOf(x, y, z int) (int, bool) {
	slot := c.cellToSlot[c.mustIndex(x, y, z)]
	return int(slot), slot != Absent
}

// cellOfInstance возвращает индекс клетки, которой принадлежит инстанс
func (c *Chunk) cellOfInstance(inst Instance) int {
	o := c.Origin()
	return c.dims.Index(int(inst.Position[0])-o.X, int(inst.Position[1]), int(inst.Position[2])-o.Z)
}

func (c *Chunk) instanceFor(idx int) Instance {
	x, y, z := c.dims.Local(idx)
	p := c.WorldPos(x, y, z)
	return Instance{
		Position: [3]int32{int32(p.X), int32(p.Y), int32(p.Z)},
		KindID:   uint32(c.blocks[idx]),
	}
}

// Edited сообщает, менялся ли чанк через API редактирования после генерации
func (c *Chunk) Edited() bool {
	return c.edited
}

// BlocksSnapshot возвращает копию массива блоков в порядке индексов
func (c *Chunk) BlocksSnapshot() []byte {
	out := make([]byte, len(c.blocks))
	for i, b := range c.blocks {
		out[i] = byte(b)
	}
	return out
}

// LoadBlocks заменяет содержимое чанка и перестраивает инстансы
func (c *Chunk) LoadBlocks(data []byte) error {
	if len(data) != len(c.blocks) {
		return fmt.Errorf("размер снимка %d не совпадает с объёмом чанка %d", len(data), len(c.blocks))
	}
	for i, b := range data {
		c.blocks[i] = block.ID(b)
	}
	c.BuildVisibleInstances()
	return nil
}

// Hash64 возвращает xxhash64 массива видов блоков
func (c *Chunk) Hash64() uint64 {
	return xxhash.Sum64(c.BlocksSnapshot())
}

// CountKind подсчитывает клетки указанного вида
func (c *Chunk) CountKind(id block.ID) int {
	n := 0
	for _, b := range c.blocks {
		if b == id {
			n++
		}
	}
	return n
}
