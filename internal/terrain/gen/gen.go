// Package gen generates deterministic terrain from a seed: a layered height
// field, three biomes and ore pockets. It can serve as a volume pager on its own
// or fill chunks a storage pager has never seen.
package gen

import (
	"voxelterrain/internal/geom"
	"voxelterrain/internal/volume"
	"voxelterrain/internal/voxel"
)

type Biome int

const (
	Plains Biome = iota
	Forest
	Desert
)

func (b Biome) String() string {
	switch b {
	case Forest:
		return "FOREST"
	case Desert:
		return "DESERT"
	default:
		return "PLAINS"
	}
}

type Palette struct {
	Air        voxel.Material
	Stone      voxel.Material
	Dirt       voxel.Material
	Grass      voxel.Material
	Sand       voxel.Material
	Water      voxel.Material
	CoalOre    voxel.Material
	IronOre    voxel.Material
	CrystalOre voxel.Material
}

var DefaultPalette = Palette{
	Air:        0,
	Stone:      1,
	Dirt:       2,
	Grass:      3,
	Sand:       4,
	Water:      5,
	CoalOre:    6,
	IronOre:    7,
	CrystalOre: 8,
}

type Config struct {
	Seed int64

	BaseHeight int
	Amplitude  int
	// Lattice spacing of the coarsest height octave.
	FeatureSize int
	SeaLevel    int

	BiomeRegionSize             int
	OreClusterProbScalePermille int

	Palette Palette
}

func (c *Config) defaults() {
	if c.Amplitude <= 0 {
		c.Amplitude = 24
	}
	if c.FeatureSize <= 0 {
		c.FeatureSize = 64
	}
	if c.BiomeRegionSize <= 0 {
		c.BiomeRegionSize = 128
	}
	if c.SeaLevel == 0 {
		c.SeaLevel = c.BaseHeight - c.Amplitude/4
	}
	if c.Palette == (Palette{}) {
		c.Palette = DefaultPalette
	}
}

type Generator struct {
	cfg Config
}

func New(cfg Config) *Generator {
	cfg.defaults()
	return &Generator{cfg: cfg}
}

func (g *Generator) Config() Config { return g.cfg }

func (g *Generator) BiomeAt(x, z int) Biome {
	rx := geom.FloorDiv(x, g.cfg.BiomeRegionSize)
	rz := geom.FloorDiv(z, g.cfg.BiomeRegionSize)
	return Biome(Hash2(g.cfg.Seed, rx, rz) % 3)
}

// SurfaceHeight is the y of the topmost solid voxel in column (x,z).
func (g *Generator) SurfaceHeight(x, z int) int {
	s := g.cfg.Seed
	f := g.cfg.FeatureSize
	n := 0.6*valueNoise(s+1, x, z, f) +
		0.3*valueNoise(s+2, x, z, max(1, f/2)) +
		0.1*valueNoise(s+3, x, z, max(1, f/4))
	return g.cfg.BaseHeight + int(float64(g.cfg.Amplitude)*(n-0.5)*2)
}

func (g *Generator) Material(x, y, z int) voxel.Material {
	return g.material(x, y, z, g.SurfaceHeight(x, z), g.BiomeAt(x, z))
}

func (g *Generator) material(x, y, z, h int, biome Biome) voxel.Material {
	p := g.cfg.Palette
	s := g.cfg.Seed
	ore := g.cfg.OreClusterProbScalePermille
	switch {
	case y > h:
		if y <= g.cfg.SeaLevel {
			return p.Water
		}
		return p.Air
	case y == h:
		if biome == Desert || h <= g.cfg.SeaLevel {
			return p.Sand
		}
		return p.Grass
	case y > h-4:
		if biome == Desert {
			return p.Sand
		}
		return p.Dirt
	}

	depth := h - y
	switch {
	case depth > 40 && InCluster(s+101, x, y, z, 48, 2, ScalePermille(200, ore)):
		return p.CrystalOre
	case depth > 16 && InCluster(s+102, x, y, z, 32, 3, ScalePermille(450, ore)):
		return p.IronOre
	case InCluster(s+104, x, y, z, 24, 2, ScalePermille(650, ore)):
		return p.CoalOre
	}
	return p.Stone
}

// Density gives the smooth-terrain voxel: full density well below the surface,
// ramping down to the surface, empty above it.
func (g *Generator) Density(x, y, z int) voxel.MaterialDensity {
	return g.density(x, y, z, g.SurfaceHeight(x, z), g.BiomeAt(x, z))
}

func (g *Generator) density(x, y, z, h int, biome Biome) voxel.MaterialDensity {
	if y > h {
		return voxel.MaterialDensity{}
	}
	m := g.material(x, y, z, h, biome)
	return voxel.MaterialDensity{Material: uint16(m), Density: uint8(min(255, 128+(h-y)*32))}
}

// Pager fills chunks from a Generator. PageOut discards data, so edits do not
// survive eviction unless the pager is used as a fallback behind a storage pager.
type Pager[V comparable] struct {
	gen   *Generator
	voxel func(x, y, z, h int, biome Biome) V
}

func NewMaterialPager(g *Generator) *Pager[voxel.Material] {
	return &Pager[voxel.Material]{gen: g, voxel: g.material}
}

func NewDensityPager(g *Generator) *Pager[voxel.MaterialDensity] {
	return &Pager[voxel.MaterialDensity]{gen: g, voxel: g.density}
}

func (p *Pager[V]) PageIn(r geom.Region, c *volume.Chunk[V]) (bool, error) {
	side := c.SideLength()
	for z := 0; z < side; z++ {
		for x := 0; x < side; x++ {
			wx, wz := r.Min.X+x, r.Min.Z+z
			h := p.gen.SurfaceHeight(wx, wz)
			b := p.gen.BiomeAt(wx, wz)
			for y := 0; y < side; y++ {
				c.SetVoxel(x, y, z, p.voxel(wx, r.Min.Y+y, wz, h, b))
			}
		}
	}
	return true, nil
}

func (p *Pager[V]) PageOut(geom.Region, *volume.Chunk[V]) error { return nil }
