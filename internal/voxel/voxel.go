// Package voxel holds the voxel payload flavors and the small dense containers the
// extraction pipeline reads from. The paging and LOD core only needs payloads to be
// comparable and to have an "empty" value.
package voxel

import "voxelterrain/internal/geom"

// Material is a palette id; zero is air.
type Material uint16

// MaterialDensity is the smooth-terrain flavor. Its zero value is empty.
type MaterialDensity struct {
	Material uint16
	Density  uint8
}

// Source is read access to voxels by absolute position.
type Source[V comparable] interface {
	Voxel(x, y, z int) V
}

// Solid reports whether v differs from the empty value.
func Solid[V comparable](v, empty V) bool { return v != empty }

// Writer is write access to voxels by absolute position.
type Writer[V comparable] interface {
	SetVoxel(x, y, z int, v V)
}

// CopyRegion copies r from src into dst voxel by voxel.
func CopyRegion[V comparable](dst Writer[V], src Source[V], r geom.Region) {
	for z := r.Min.Z; z <= r.Max.Z; z++ {
		for y := r.Min.Y; y <= r.Max.Y; y++ {
			for x := r.Min.X; x <= r.Max.X; x++ {
				dst.SetVoxel(x, y, z, src.Voxel(x, y, z))
			}
		}
	}
}
