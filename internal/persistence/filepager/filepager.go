// Package filepager keeps one file per chunk. Each file starts with a JSON
// header line naming the blob codec, followed by the encoded voxel blob.
package filepager

import (
	"bufio"
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"

	"voxelterrain/internal/geom"
	"voxelterrain/internal/persistence/codec"
	"voxelterrain/internal/volume"
)

const formatVersion = 2

type Header struct {
	Version int    `json:"version"`
	Codec   string `json:"codec"`
	Side    int    `json:"side"`
	Lower   [3]int `json:"lower"`
}

type Config[V comparable] struct {
	Dir      string
	Codec    codec.Chunk[V]
	Fallback volume.Pager[V]
}

type Pager[V comparable] struct {
	dir      string
	codec    codec.Chunk[V]
	fallback volume.Pager[V]

	loaded    atomic.Uint64
	stored    atomic.Uint64
	generated atomic.Uint64
}

func New[V comparable](cfg Config[V]) (*Pager[V], error) {
	if cfg.Dir == "" {
		return nil, fmt.Errorf("empty chunk dir")
	}
	if cfg.Codec.Words.ToWord == nil || cfg.Codec.Words.FromWord == nil || cfg.Codec.Compressor == nil {
		return nil, fmt.Errorf("filepager: incomplete chunk codec")
	}
	if err := os.MkdirAll(cfg.Dir, 0o755); err != nil {
		return nil, err
	}
	return &Pager[V]{dir: cfg.Dir, codec: cfg.Codec, fallback: cfg.Fallback}, nil
}

// Path is the file that holds the chunk with lower corner lower.
func (p *Pager[V]) Path(lower geom.Vec3i, side int) string {
	return filepath.Join(p.dir, fmt.Sprintf("%d_%d_%d_%d.chunk", lower.X, lower.Y, lower.Z, side))
}

func (p *Pager[V]) PageIn(r geom.Region, c *volume.Chunk[V]) (bool, error) {
	path := p.Path(r.Min, c.SideLength())
	raw, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		p.generated.Add(1)
		if p.fallback != nil {
			return p.fallback.PageIn(r, c)
		}
		return true, nil
	}
	if err != nil {
		return false, err
	}

	line, blob, ok := bytes.Cut(raw, []byte{'\n'})
	if !ok {
		return false, fmt.Errorf("%s: missing header line", path)
	}
	var h Header
	if err := json.Unmarshal(line, &h); err != nil {
		return false, fmt.Errorf("%s: header: %w", path, err)
	}
	if h.Version != formatVersion || h.Side != c.SideLength() {
		return false, fmt.Errorf("%s: header %+v does not match version %d side %d", path, h, formatVersion, c.SideLength())
	}
	cc, err := p.codecFor(h.Codec)
	if err != nil {
		return false, fmt.Errorf("%s: %w", path, err)
	}
	if err := cc.Decode(blob, c.Data()); err != nil {
		return false, fmt.Errorf("%s: %w", path, err)
	}
	p.loaded.Add(1)
	return false, nil
}

// codecFor lets files written under another compression setting still load, as
// long as the voxel flavour matches.
func (p *Pager[V]) codecFor(name string) (codec.Chunk[V], error) {
	if name == p.codec.Name() {
		return p.codec, nil
	}
	words, comp, ok := strings.Cut(name, "+")
	if !ok || words != p.codec.Words.Name {
		return codec.Chunk[V]{}, fmt.Errorf("codec %q is not a %s codec", name, p.codec.Words.Name)
	}
	c, err := codec.NewCompressor(comp)
	if err != nil {
		return codec.Chunk[V]{}, err
	}
	return codec.Chunk[V]{Words: p.codec.Words, Compressor: c}, nil
}

// PageOut writes to a temporary file and renames it into place.
func (p *Pager[V]) PageOut(r geom.Region, c *volume.Chunk[V]) error {
	blob, err := p.codec.Encode(c.Data())
	if err != nil {
		return fmt.Errorf("encode chunk %v: %w", r, err)
	}
	hb, err := json.Marshal(Header{
		Version: formatVersion,
		Codec:   p.codec.Name(),
		Side:    c.SideLength(),
		Lower:   [3]int{r.Min.X, r.Min.Y, r.Min.Z},
	})
	if err != nil {
		return err
	}

	path := p.Path(r.Min, c.SideLength())
	tmp := path + ".tmp"
	if err := writeFile(tmp, hb, blob); err != nil {
		_ = os.Remove(tmp)
		return err
	}
	if err := os.Rename(tmp, path); err != nil {
		return err
	}
	p.stored.Add(1)
	return nil
}

func writeFile(path string, header, blob []byte) error {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()

	bw := bufio.NewWriterSize(f, 64*1024)
	bw.Write(header)
	bw.WriteByte('\n')
	bw.Write(blob)
	if err := bw.Flush(); err != nil {
		return err
	}
	return f.Sync()
}

// Counts reports files loaded, files written and chunks handed to the fallback.
func (p *Pager[V]) Counts() (loaded, stored, generated uint64) {
	return p.loaded.Load(), p.stored.Load(), p.generated.Load()
}
