package voxel

import "voxelterrain/internal/geom"

// Downsample2x halves the resolution of src. Coarse cell (x,y,z) covers fine voxels
// [2x..2x+1] on each axis. A coarse cell is solid only if all eight fine voxels are
// solid, so coarse surfaces sit inside the fine ones; the payload chosen is the most
// frequent of the eight (lowest position wins ties).
func Downsample2x[V comparable](src *RawVolume[V], empty V) *RawVolume[V] {
	coarse := src.Region().ScaleDown(2)
	dst := NewRawVolume[V](coarse, empty)

	var vals [8]V
	for z := coarse.Min.Z; z <= coarse.Max.Z; z++ {
		for y := coarse.Min.Y; y <= coarse.Max.Y; y++ {
			for x := coarse.Min.X; x <= coarse.Max.X; x++ {
				fx, fy, fz := x*2, y*2, z*2
				allSolid := true
				n := 0
				for dz := 0; dz < 2 && allSolid; dz++ {
					for dy := 0; dy < 2 && allSolid; dy++ {
						for dx := 0; dx < 2; dx++ {
							v := src.Voxel(fx+dx, fy+dy, fz+dz)
							if v == empty {
								allSolid = false
								break
							}
							vals[n] = v
							n++
						}
					}
				}
				if !allSolid {
					continue
				}
				dst.SetVoxel(x, y, z, majority(vals[:n]))
			}
		}
	}
	return dst
}

// Downsample applies Downsample2x until the scale factor 2^levels is reached.
func Downsample[V comparable](src *RawVolume[V], empty V, levels uint) *RawVolume[V] {
	out := src
	for i := uint(0); i < levels; i++ {
		out = Downsample2x(out, empty)
	}
	return out
}

func majority[V comparable](vals []V) V {
	best, bestCount := vals[0], 0
	for i, v := range vals {
		count := 0
		for _, o := range vals[i:] {
			if o == v {
				count++
			}
		}
		if count > bestCount {
			best, bestCount = v, count
		}
	}
	return best
}

// ScaledRegion maps a fine region to the coarse grid at 2^levels.
func ScaledRegion(r geom.Region, levels uint) geom.Region {
	return r.ScaleDown(1 << levels)
}
