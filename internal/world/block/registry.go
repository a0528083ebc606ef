package block

import "fmt"

// ID представляет идентификатор вида блока
type ID uint8

// Константы ID блоков. Empty обязан иметь ID 0.
const (
	Empty       ID = iota // 0 - пустота
	Grass                 // 1
	Dirt                  // 2
	Stone                 // 3
	UnderStone            // 4 - неразрушимое дно мира
	BirchLog              // 5
	BirchLeaves           // 6
	BirchPlank            // 7
	TestBlock             // 8

	kindCount
)

// Face - грань куба. Порядок фиксирован: +Z, +Y, -Z, -Y, -X, +X
type Face uint8

const (
	FacePosZ Face = iota
	FacePosY
	FaceNegZ
	FaceNegY
	FaceNegX
	FacePosX

	FaceCount = 6
)

// TexOffset - ячейка текстурного атласа
type TexOffset struct {
	U uint8 `yaml:"u" json:"u"`
	V uint8 `yaml:"v" json:"v"`
}

// Kind описывает вид блока
type Kind struct {
	ID    ID
	Name  string
	Solid bool
	Faces [FaceCount]TexOffset
}

var names = [kindCount]string{
	Empty:       "empty",
	Grass:       "grass",
	Dirt:        "dirt",
	Stone:       "stone",
	UnderStone:  "understone",
	BirchLog:    "birch_log",
	BirchLeaves: "birch_leaves",
	BirchPlank:  "birch_plank",
	TestBlock:   "test_block",
}

// String возвращает имя вида блока
func (id ID) String() string {
	if id < kindCount {
		return names[id]
	}
	return fmt.Sprintf("unknown(%d)", uint8(id))
}

// ParseID находит ID по имени
func ParseID(name string) (ID, bool) {
	for i, n := range names {
		if n == name {
			return ID(i), true
		}
	}
	return Empty, false
}

// Valid проверяет, что ID входит в закрытый набор видов
func (id ID) Valid() bool {
	return id < kindCount
}

// Catalog - неизменяемая таблица видов блоков. После создания доступна только для чтения
// и может разделяться между горутинами без синхронизации.
type Catalog struct {
	kinds [kindCount]Kind
}

func uniform(u, v uint8) [FaceCount]TexOffset {
	var f [FaceCount]TexOffset
	for i := range f {
		f[i] = TexOffset{U: u, V: v}
	}
	return f
}

// sided - отдельные текстуры для верха, низа и боковых граней
func sided(top, side, bottom TexOffset) [FaceCount]TexOffset {
	return [FaceCount]TexOffset{
		FacePosZ: side,
		FacePosY: top,
		FaceNegZ: side,
		FaceNegY: bottom,
		FaceNegX: side,
		FacePosX: side,
	}
}

func builtinKinds() [kindCount]Kind {
	var k [kindCount]Kind
	k[Empty] = Kind{ID: Empty}
	k[Grass] = Kind{ID: Grass, Solid: true, Faces: sided(TexOffset{0, 0}, TexOffset{1, 0}, TexOffset{2, 0})}
	k[Dirt] = Kind{ID: Dirt, Solid: true, Faces: uniform(2, 0)}
	k[Stone] = Kind{ID: Stone, Solid: true, Faces: uniform(3, 0)}
	k[UnderStone] = Kind{ID: UnderStone, Solid: true, Faces: uniform(4, 0)}
	k[BirchLog] = Kind{ID: BirchLog, Solid: true, Faces: sided(TexOffset{6, 0}, TexOffset{5, 0}, TexOffset{6, 0})}
	k[BirchLeaves] = Kind{ID: BirchLeaves, Solid: true, Faces: uniform(7, 0)}
	k[BirchPlank] = Kind{ID: BirchPlank, Solid: true, Faces: uniform(8, 0)}
	k[TestBlock] = Kind{ID: TestBlock, Solid: true, Faces: uniform(0, 1)}
	for i := range k {
		k[i].Name = names[i]
	}
	return k
}

var defaultCatalog = &Catalog{kinds: builtinKinds()}

// Default возвращает встроенный каталог
func Default() *Catalog {
	return defaultCatalog
}

// KindOf возвращает описание вида. Неизвестные ID отображаются в Empty.
func (c *Catalog) KindOf(id ID) Kind {
	if !id.Valid() {
		return c.kinds[Empty]
	}
	return c.kinds[id]
}

// IsSolid сообщает, твёрдый ли блок
func (c *Catalog) IsSolid(id ID) bool {
	return c.KindOf(id).Solid
}

// FaceTexOffset возвращает ячейку атласа для грани блока
func (c *Catalog) FaceTexOffset(id ID, face Face) TexOffset {
	if face >= FaceCount {
		return TexOffset{}
	}
	return c.KindOf(id).Faces[face]
}

// Kinds возвращает копию всех видов в порядке ID
func (c *Catalog) Kinds() []Kind {
	out := make([]Kind, len(c.kinds))
	copy(out, c.kinds[:])
	return out
}
