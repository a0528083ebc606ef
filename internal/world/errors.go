package world

import (
	"errors"
	"fmt"

	"github.com/annel0/blockverse/internal/vec"
)

var (
	// ErrNotResident - чанк позиции не загружен
	ErrNotResident = errors.New("чанк не загружен")
	// ErrOutOfWorld - позиция вне вертикальных границ мира
	ErrOutOfWorld = errors.New("позиция вне мира")
	// ErrChannelClosed - пул генерации закрыт
	ErrChannelClosed = errors.New("канал генерации закрыт")
	// ErrGeneration - воркер упал при генерации чанка
	ErrGeneration = errors.New("ошибка генерации чанка")
	// ErrUnknownBlock - ID вне каталога
	ErrUnknownBlock = errors.New("неизвестный вид блока")
)

// OutOfBoundsError - значение panic при обращении к клетке вне чанка
type OutOfBoundsError struct {
	X, Y, Z int
	Dims    Dims
}

func (e *OutOfBoundsError) Error() string {
	return fmt.Sprintf("локальные координаты (%d,%d,%d) вне чанка %dx%dx%d",
		e.X, e.Y, e.Z, e.Dims.Size, e.Dims.Height, e.Dims.Size)
}

// InvariantError описывает нарушение инвариантов видимости или упаковки
type InvariantError struct {
	Coord vec.Vec2
	Msg   string
	Slot  int
	Cell  vec.Vec3
}

func (e *InvariantError) Error() string {
	return fmt.Sprintf("чанк %s: %s (слот %d, клетка %s)", e.Coord, e.Msg, e.Slot, e.Cell)
}
