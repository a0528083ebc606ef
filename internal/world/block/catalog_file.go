package block

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// kindOverride - запись файла каталога. Незаданные поля сохраняют встроенные значения.
type kindOverride struct {
	Name  string               `yaml:"name"`
	Solid *bool                `yaml:"solid"`
	Faces map[string]TexOffset `yaml:"faces"`
}

type catalogFile struct {
	Kinds []kindOverride `yaml:"kinds"`
}

var faceNames = map[string]Face{
	"pos_z": FacePosZ,
	"pos_y": FacePosY,
	"neg_z": FaceNegZ,
	"neg_y": FaceNegY,
	"neg_x": FaceNegX,
	"pos_x": FacePosX,
}

// LoadCatalogFile загружает YAML-файл каталога поверх встроенной таблицы.
//
// Пример:
//
//	kinds:
//	  - name: grass
//	    faces:
//	      all: {u: 0, v: 2}
//	      pos_y: {u: 1, v: 2}
//	  - name: birch_leaves
//	    solid: true
func LoadCatalogFile(path string) (*Catalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("не удалось прочитать каталог блоков: %w", err)
	}
	return ParseCatalog(data)
}

// ParseCatalog разбирает содержимое файла каталога
func ParseCatalog(data []byte) (*Catalog, error) {
	var file catalogFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("не удалось разобрать каталог блоков: %w", err)
	}

	c := &Catalog{kinds: builtinKinds()}
	for _, o := range file.Kinds {
		id, ok := ParseID(o.Name)
		if !ok {
			return nil, fmt.Errorf("неизвестный вид блока %q", o.Name)
		}
		kind := c.kinds[id]

		if o.Solid != nil {
			if id == Empty && *o.Solid {
				return nil, fmt.Errorf("вид %q не может быть твёрдым", o.Name)
			}
			kind.Solid = *o.Solid
		}

		// "all" применяется первым, конкретные грани его переопределяют
		if all, ok := o.Faces["all"]; ok {
			kind.Faces = uniform(all.U, all.V)
		}
		for name, off := range o.Faces {
			if name == "all" {
				continue
			}
			face, ok := faceNames[name]
			if !ok {
				return nil, fmt.Errorf("вид %q: неизвестная грань %q", o.Name, name)
			}
			kind.Faces[face] = off
		}

		c.kinds[id] = kind
	}
	return c, nil
}
