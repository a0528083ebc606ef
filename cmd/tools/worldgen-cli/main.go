package main

import (
	"flag"
	"fmt"
	"log"
	"os"

	"github.com/annel0/blockverse/internal/vec"
	"github.com/annel0/blockverse/internal/world"
	"github.com/annel0/blockverse/internal/world/block"
)

func main() {
	var (
		command = flag.String("cmd", "hash", "Command: hash, column, tree")
		seed    = flag.Uint("seed", 42, "World seed")
		cx      = flag.Int("cx", 0, "Chunk X")
		cz      = flag.Int("cz", 0, "Chunk Z")
		size    = flag.Int("size", world.DefaultDims.Size, "Chunk size S")
		height  = flag.Int("height", world.DefaultDims.Height, "Chunk height H")
		x       = flag.Int("x", 0, "Local column X (column)")
		z       = flag.Int("z", 0, "Local column Z (column)")
	)
	flag.Parse()

	dims := world.Dims{Size: *size, Height: *height}
	if dims.Size <= 0 || dims.Height <= 0 {
		log.Fatalf("❌ Invalid chunk dims %dx%d", dims.Size, dims.Height)
	}
	gen := world.NewTerrainGenerator(uint32(*seed), dims)
	coord := vec.Vec2{X: *cx, Z: *cz}
	chunk := gen.GenerateChunk(coord)

	switch *command {
	case "hash":
		fmt.Printf("seed=%d chunk=%s dims=%dx%d\n", *seed, coord, dims.Size, dims.Height)
		fmt.Printf("hash=0x%016x instances=%d\n", chunk.Hash64(), chunk.InstanceTop())
	case "column":
		if !dims.Contains(*x, 0, *z) {
			log.Fatalf("❌ Column (%d,%d) is outside the chunk", *x, *z)
		}
		printColumn(chunk, *x, *z)
	case "tree":
		printTrees(gen, chunk)
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", *command)
		flag.Usage()
		os.Exit(2)
	}
}

// printColumn печатает колонну сверху вниз отрезками одного вида
func printColumn(c *world.Chunk, x, z int) {
	d := c.Dims()
	origin := c.Origin()
	fmt.Printf("column local=(%d,%d) world=(%d,%d)\n", x, z, origin.X+x, origin.Z+z)

	runStart := d.Height - 1
	kind := c.Get(x, runStart, z)
	for y := d.Height - 2; y >= -1; y-- {
		var next block.ID
		if y >= 0 {
			next = c.Get(x, y, z)
		}
		if y >= 0 && next == kind {
			continue
		}
		if kind != block.Empty {
			fmt.Printf("  y %3d..%3d  %s\n", y+1, runStart, kind)
		}
		runStart = y
		kind = next
	}
}

// printTrees находит основания стволов: бревно над травой
func printTrees(gen *world.TerrainGenerator, c *world.Chunk) {
	d := c.Dims()
	origin := c.Origin()
	found := 0
	for x := 0; x < d.Size; x++ {
		for z := 0; z < d.Size; z++ {
			base := gen.ColumnHeight(origin.X+x, origin.Z+z)
			if base <= 0 || base >= d.Height {
				continue
			}
			if c.Get(x, base, z) != block.BirchLog || c.Get(x, base-1, z) != block.Grass {
				continue
			}
			trunk := 0
			for y := base; y < d.Height && c.Get(x, y, z) == block.BirchLog; y++ {
				trunk++
			}
			t := gen.TreeValue(origin.X+x, origin.Z+z)
			fmt.Printf("birch local=(%d,%d) world=(%d,%d) base=%d trunk=%d noise=%.4f\n",
				x, z, origin.X+x, origin.Z+z, base, trunk, t)
			found++
		}
	}
	fmt.Printf("trees=%d\n", found)
}
