package world

import (
	"fmt"

	"github.com/annel0/blockverse/internal/vec"
	"github.com/annel0/blockverse/internal/world/block"
)

// touchedChunk - наименьший изменённый слот чанка за одну правку
type touchedChunk struct {
	chunk *Chunk
	min   int
}

// Place ставит блок в мировую позицию, инкрементально исправляет инстансы
// клетки и её шести соседей (в том числе в соседних чанках) и уведомляет рендер.
func (s *Store) Place(p vec.Vec3, id block.ID) error {
	if !id.Valid() {
		blockEdits.WithLabelValues("invalid").Inc()
		return fmt.Errorf("блок %s: %w: %d", p, ErrUnknownBlock, id)
	}
	if p.Y < 0 || p.Y >= s.dims.Height {
		blockEdits.WithLabelValues("out_of_world").Inc()
		return fmt.Errorf("блок %s: %w", p, ErrOutOfWorld)
	}

	coord, local := s.AbsoluteBlockToChunk(p)
	chunk, ok := s.chunks[coord]
	if !ok {
		blockEdits.WithLabelValues("not_resident").Inc()
		return fmt.Errorf("блок %s (чанк %s): %w", p, coord, ErrNotResident)
	}

	old := chunk.Get(local.X, local.Y, local.Z)
	chunk.Set(local.X, local.Y, local.Z, id)
	if old != id {
		chunk.edited = true
		chunk.ChangeCounter++
	}

	lookup := s.outside()
	var touched []touchedChunk
	record := func(c *Chunk, slot int) {
		for i := range touched {
			if touched[i].chunk == c {
				if slot < touched[i].min {
					touched[i].min = slot
				}
				return
			}
		}
		touched = append(touched, touchedChunk{chunk: c, min: slot})
	}

	if slot, changed := chunk.repairCell(local.X, local.Y, local.Z, lookup); changed {
		record(chunk, slot)
	}

	for _, n := range p.Neighbors() {
		if n.Y < 0 || n.Y >= s.dims.Height {
			continue
		}
		nc, nl := s.AbsoluteBlockToChunk(n)
		nchunk, ok := s.chunks[nc]
		if !ok {
			continue
		}
		if slot, changed := nchunk.repairCell(nl.X, nl.Y, nl.Z, lookup); changed {
			record(nchunk, slot)
		}
	}

	for _, t := range touched {
		r := SlotRange{Start: t.min, End: t.chunk.InstanceTop()}
		instanceSlotsTouched.Add(float64(r.Len()))
		s.feed.Notify(InstancesChanged{Coord: t.chunk.Coord(), Range: r})
	}

	blockEdits.WithLabelValues("ok").Inc()
	s.logger.Trace("Блок %s: %s -> %s, затронуто чанков: %d", p, old, id, len(touched))
	return nil
}

// Remove удаляет блок (эквивалент Place с Empty)
func (s *Store) Remove(p vec.Vec3) error {
	return s.Place(p, block.Empty)
}
