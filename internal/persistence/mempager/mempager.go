// Package mempager keeps evicted chunks as encoded blobs in memory.
package mempager

import (
	"fmt"
	"sync"

	"voxelterrain/internal/geom"
	"voxelterrain/internal/persistence/codec"
	"voxelterrain/internal/volume"
)

type Pager[V comparable] struct {
	codec    codec.Chunk[V]
	fallback volume.Pager[V]

	mu    sync.RWMutex
	blobs map[geom.Vec3i][]byte
	bytes int
}

// New returns a pager that encodes with c. fallback, if non-nil, fills chunks that
// were never paged out.
func New[V comparable](c codec.Chunk[V], fallback volume.Pager[V]) *Pager[V] {
	return &Pager[V]{codec: c, fallback: fallback, blobs: map[geom.Vec3i][]byte{}}
}

func (p *Pager[V]) PageIn(r geom.Region, c *volume.Chunk[V]) (bool, error) {
	p.mu.RLock()
	blob, ok := p.blobs[r.Min]
	p.mu.RUnlock()
	if !ok {
		if p.fallback != nil {
			return p.fallback.PageIn(r, c)
		}
		return true, nil
	}
	if err := p.codec.Decode(blob, c.Data()); err != nil {
		return false, fmt.Errorf("chunk %v: %w", r, err)
	}
	return false, nil
}

func (p *Pager[V]) PageOut(r geom.Region, c *volume.Chunk[V]) error {
	blob, err := p.codec.Encode(c.Data())
	if err != nil {
		return err
	}
	p.mu.Lock()
	p.bytes += len(blob) - len(p.blobs[r.Min])
	p.blobs[r.Min] = blob
	p.mu.Unlock()
	return nil
}

// Len is the number of stored chunks and Bytes their encoded size.
func (p *Pager[V]) Len() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return len(p.blobs)
}

func (p *Pager[V]) Bytes() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.bytes
}
