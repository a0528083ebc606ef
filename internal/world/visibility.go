package world

import (
	"github.com/annel0/blockverse/internal/vec"
	"github.com/annel0/blockverse/internal/world/block"
)

// outsideLookup возвращает блок по мировой позиции за пределами чанка
type outsideLookup func(p vec.Vec3) block.ID

// HasAnyVisibleFace сообщает, что клетка непуста и хотя бы один сосед по грани пуст.
// Соседи за пределами чанка считаются пустыми.
func (c *Chunk) HasAnyVisibleFace(x, y, z int) bool {
	return c.visibleWith(x, y, z, nil)
}

// visibleWith - то же, но соседи в других чанках берутся из outside.
// Соседи выше или ниже мира всегда пусты.
func (c *Chunk) visibleWith(x, y, z int, outside outsideLookup) bool {
	if c.blocks[c.mustIndex(x, y, z)] == block.Empty {
		return false
	}
	for _, off := range vec.FaceOffsets {
		nx, ny, nz := x+off.X, y+off.Y, z+off.Z
		if ny < 0 || ny >= c.dims.Height {
			return true
		}
		if c.dims.Contains(nx, ny, nz) {
			if c.blocks[c.dims.Index(nx, ny, nz)] == block.Empty {
				return true
			}
			continue
		}
		if outside == nil || outside(c.WorldPos(nx, ny, nz)) == block.Empty {
			return true
		}
	}
	return false
}

// BuildVisibleInstances перестраивает инстансы с нуля, обходя x, затем y, затем z по возрастанию
func (c *Chunk) BuildVisibleInstances() {
	c.instances = c.instances[:0]
	for i := range c.cellToSlot {
		c.cellToSlot[i] = Absent
	}

	for x := 0; x < c.dims.Size; x++ {
		for y := 0; y < c.dims.Height; y++ {
			for z := 0; z < c.dims.Size; z++ {
				if !c.HasAnyVisibleFace(x, y, z) {
					continue
				}
				idx := c.dims.Index(x, y, z)
				c.cellToSlot[idx] = int32(len(c.instances))
				c.instances = append(c.instances, c.instanceFor(idx))
			}
		}
	}
}

// syncSlot приводит инстанс клетки в соответствие с visible: добавляет его в конец,
// удаляет перестановкой последнего слота на освободившееся место или обновляет вид.
// Возвращает наименьший затронутый слот.
func (c *Chunk) syncSlot(idx int, visible bool) (touched int, changed bool) {
	slot := c.cellToSlot[idx]

	switch {
	case visible && slot == Absent:
		top := len(c.instances)
		c.instances = append(c.instances, c.instanceFor(idx))
		c.cellToSlot[idx] = int32(top)
		return top, true

	case !visible && slot != Absent:
		last := len(c.instances) - 1
		if int(slot) != last {
			moved := c.instances[last]
			c.instances[slot] = moved
			c.cellToSlot[c.cellOfInstance(moved)] = slot
		}
		c.instances = c.instances[:last]
		c.cellToSlot[idx] = Absent
		return int(slot), true

	case visible && c.instances[slot].KindID != uint32(c.blocks[idx]):
		c.instances[slot].KindID = uint32(c.blocks[idx])
		return int(slot), true
	}

	return 0, false
}

// repairCell пересчитывает видимость одной клетки
func (c *Chunk) repairCell(x, y, z int, outside outsideLookup) (int, bool) {
	return c.syncSlot(c.dims.Index(x, y, z), c.visibleWith(x, y, z, outside))
}

// CheckInvariants проверяет инварианты видимости и упаковки. Используется тестами и
// отладочным API; при нарушении возвращает описание первой проблемы.
func (c *Chunk) CheckInvariants(outside func(p vec.Vec3) block.ID) error {
	seen := make(map[int]struct{}, len(c.instances))
	for slot, inst := range c.instances {
		idx := c.cellOfInstance(inst)
		if _, dup := seen[idx]; dup {
			return &InvariantError{Coord: c.coord, Msg: "дубликат клетки в инстансах", Slot: slot}
		}
		seen[idx] = struct{}{}
		if int(c.cellToSlot[idx]) != slot {
			return &InvariantError{Coord: c.coord, Msg: "cellToSlot не указывает на слот", Slot: slot}
		}
		if inst.KindID != uint32(c.blocks[idx]) {
			return &InvariantError{Coord: c.coord, Msg: "вид инстанса устарел", Slot: slot}
		}
	}

	for idx := range c.blocks {
		x, y, z := c.dims.Local(idx)
		visible := c.visibleWith(x, y, z, outside)
		has := c.cellToSlot[idx] != Absent
		if visible != has {
			return &InvariantError{Coord: c.coord, Msg: "нарушен инвариант видимости", Slot: int(c.cellToSlot[idx]), Cell: vec.Vec3{X: x, Y: y, Z: z}}
		}
	}
	return nil
}
