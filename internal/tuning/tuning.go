// Package tuning loads the voxlod configuration file.
package tuning

import (
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/santhosh-tekuri/jsonschema/v5"
	"gopkg.in/yaml.v3"

	"voxelterrain/internal/geom"
)

//go:embed schema.json
var schemaJSON string

var ErrInvalidConfig = errors.New("invalid config")

type Tuning struct {
	Volume  VolumeSection  `yaml:"volume"`
	Octree  OctreeSection  `yaml:"octree"`
	Pager   PagerSection   `yaml:"pager"`
	Journal JournalSection `yaml:"journal"`
	Run     RunSection     `yaml:"run"`
}

type VolumeSection struct {
	ChunkSideLength   int      `yaml:"chunk_side_length"`
	MemoryBudget      ByteSize `yaml:"memory_budget"`
	BackgroundWorkers int      `yaml:"background_workers"`
}

type OctreeSection struct {
	BaseNodeSize     int        `yaml:"base_node_size"`
	ConstructionMode string     `yaml:"construction_mode"`
	Region           RegionSpec `yaml:"region"`
	LOD              LODSpec    `yaml:"lod"`
}

type RegionSpec struct {
	Min [3]int `yaml:"min"`
	Max [3]int `yaml:"max"`
}

func (r RegionSpec) Region() geom.Region {
	return geom.NewRegion(r.Min[0], r.Min[1], r.Min[2], r.Max[0], r.Max[1], r.Max[2])
}

// LODSpec names heights, not distances. A nil Minimum means the root height.
type LODSpec struct {
	Minimum   *uint   `yaml:"minimum"`
	Maximum   uint    `yaml:"maximum"`
	Threshold float32 `yaml:"threshold"`
}

type PagerSection struct {
	Kind            string `yaml:"kind"`
	Path            string `yaml:"path"`
	Compression     string `yaml:"compression"`
	Voxel           string `yaml:"voxel"`
	Seed            int64  `yaml:"seed"`
	GenerateMissing bool   `yaml:"generate_missing"`
}

type JournalSection struct {
	Dir      string `yaml:"dir"`
	Disabled bool   `yaml:"disabled"`
}

type RunSection struct {
	Frames        int     `yaml:"frames"`
	FrameMS       int     `yaml:"frame_ms"`
	EditsPerFrame int     `yaml:"edits_per_frame"`
	Speed         float32 `yaml:"speed"`
}

// ByteSize accepts a plain integer or a humanized size such as "64 MiB".
type ByteSize int64

func (b *ByteSize) UnmarshalYAML(n *yaml.Node) error {
	if n.Kind != yaml.ScalarNode {
		return fmt.Errorf("line %d: size must be a scalar", n.Line)
	}
	if n.ShortTag() == "!!int" {
		var v int64
		if err := n.Decode(&v); err != nil {
			return err
		}
		*b = ByteSize(v)
		return nil
	}
	v, err := humanize.ParseBytes(n.Value)
	if err != nil {
		return fmt.Errorf("line %d: %w", n.Line, err)
	}
	*b = ByteSize(v)
	return nil
}

func (b ByteSize) String() string {
	if b < 0 {
		return fmt.Sprintf("%d B", int64(b))
	}
	return humanize.IBytes(uint64(b))
}

func Defaults() Tuning {
	return Tuning{
		Volume: VolumeSection{
			ChunkSideLength:   32,
			MemoryBudget:      64 << 20,
			BackgroundWorkers: 4,
		},
		Octree: OctreeSection{
			BaseNodeSize:     32,
			ConstructionMode: "voxels",
			Region:           RegionSpec{Min: [3]int{-256, -64, -256}, Max: [3]int{255, 63, 255}},
			LOD:              LODSpec{Threshold: 1.0},
		},
		Pager: PagerSection{
			Kind:            "memory",
			Compression:     "zstd",
			Voxel:           "material",
			Seed:            1337,
			GenerateMissing: true,
		},
		Journal: JournalSection{Dir: "./data/journal"},
		Run: RunSection{
			Frames:        600,
			FrameMS:       16,
			EditsPerFrame: 4,
			Speed:         12,
		},
	}
}

// Load reads a YAML file over the defaults. An empty path returns the defaults.
func Load(path string) (Tuning, error) {
	t := Defaults()
	if strings.TrimSpace(path) == "" {
		return t, nil
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return t, err
	}
	return Parse(raw)
}

func Parse(raw []byte) (Tuning, error) {
	t := Defaults()
	if err := validateSchema(raw); err != nil {
		return t, fmt.Errorf("tuning.yaml: %w", err)
	}
	if err := yaml.Unmarshal(raw, &t); err != nil {
		return t, fmt.Errorf("tuning.yaml: %w", err)
	}
	t.Normalize()
	if err := t.Validate(); err != nil {
		return t, fmt.Errorf("tuning.yaml: %w", err)
	}
	return t, nil
}

var schema = jsonschema.MustCompileString("tuning.schema.json", schemaJSON)

// validateSchema checks the raw document against the embedded schema. Unknown
// keys and bad enum values fail here, before typed decoding.
func validateSchema(raw []byte) error {
	var doc any
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return err
	}
	if doc == nil {
		return nil
	}
	b, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	var v any
	if err := json.Unmarshal(b, &v); err != nil {
		return err
	}
	if err := schema.Validate(v); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	return nil
}

func (t *Tuning) Normalize() {
	if t == nil {
		return
	}
	t.Octree.ConstructionMode = strings.ToLower(strings.TrimSpace(t.Octree.ConstructionMode))
	t.Pager.Kind = strings.ToLower(strings.TrimSpace(t.Pager.Kind))
	t.Pager.Compression = strings.ToLower(strings.TrimSpace(t.Pager.Compression))
	t.Pager.Path = strings.TrimSpace(t.Pager.Path)
	if t.Pager.Compression == "" {
		t.Pager.Compression = "zstd"
	}
	if t.Pager.Voxel == "" {
		t.Pager.Voxel = "material"
	}
	if t.Octree.ConstructionMode == "" {
		t.Octree.ConstructionMode = "voxels"
	}
}

func (t Tuning) Validate() error {
	v, o, p := t.Volume, t.Octree, t.Pager
	if !geom.IsPowerOfTwo(v.ChunkSideLength) || v.ChunkSideLength > 256 {
		return fmt.Errorf("%w: volume.chunk_side_length %d must be a power of two up to 256", ErrInvalidConfig, v.ChunkSideLength)
	}
	if v.MemoryBudget <= 0 {
		return fmt.Errorf("%w: volume.memory_budget must be positive", ErrInvalidConfig)
	}
	if v.BackgroundWorkers < 0 {
		return fmt.Errorf("%w: volume.background_workers must be >= 0", ErrInvalidConfig)
	}
	if !geom.IsPowerOfTwo(o.BaseNodeSize) {
		return fmt.Errorf("%w: octree.base_node_size %d must be a power of two", ErrInvalidConfig, o.BaseNodeSize)
	}
	switch o.ConstructionMode {
	case "voxels", "cells":
	default:
		return fmt.Errorf("%w: octree.construction_mode %q", ErrInvalidConfig, o.ConstructionMode)
	}
	if !o.Region.Region().IsValid() {
		return fmt.Errorf("%w: octree.region %v is empty", ErrInvalidConfig, o.Region.Region())
	}
	if o.LOD.Minimum != nil && *o.LOD.Minimum < o.LOD.Maximum {
		return fmt.Errorf("%w: octree.lod.minimum %d is finer than maximum %d", ErrInvalidConfig, *o.LOD.Minimum, o.LOD.Maximum)
	}
	if o.LOD.Threshold <= 0 {
		return fmt.Errorf("%w: octree.lod.threshold must be positive", ErrInvalidConfig)
	}
	switch p.Kind {
	case "memory", "procedural":
	case "sqlite", "files":
		if p.Path == "" {
			return fmt.Errorf("%w: pager.path is required for %s", ErrInvalidConfig, p.Kind)
		}
	default:
		return fmt.Errorf("%w: pager.kind %q", ErrInvalidConfig, p.Kind)
	}
	switch p.Compression {
	case "zstd", "zlib", "none":
	default:
		return fmt.Errorf("%w: pager.compression %q", ErrInvalidConfig, p.Compression)
	}
	switch p.Voxel {
	case "material", "material_density":
	default:
		return fmt.Errorf("%w: pager.voxel %q", ErrInvalidConfig, p.Voxel)
	}
	if t.Run.Frames < 0 || t.Run.FrameMS <= 0 || t.Run.EditsPerFrame < 0 {
		return fmt.Errorf("%w: run needs frames >= 0, frame_ms > 0 and edits_per_frame >= 0", ErrInvalidConfig)
	}
	return nil
}
