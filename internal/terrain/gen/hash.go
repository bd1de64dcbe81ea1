package gen

import "voxelterrain/internal/geom"

func mix64(z uint64) uint64 {
	z += 0x9e3779b97f4a7c15
	z = (z ^ (z >> 30)) * 0xbf58476d1ce4e5b9
	z = (z ^ (z >> 27)) * 0x94d049bb133111eb
	return z ^ (z >> 31)
}

func Hash2(seed int64, x, z int) uint64 {
	ux := uint64(uint32(int32(x)))
	uz := uint64(uint32(int32(z)))
	v := uint64(seed) ^ (ux * 0x9e3779b97f4a7c15) ^ (uz * 0xbf58476d1ce4e5b9)
	return mix64(v)
}

func Hash3(seed int64, x, y, z int) uint64 {
	ux := uint64(uint32(int32(x)))
	uy := uint64(uint32(int32(y)))
	uz := uint64(uint32(int32(z)))
	v := uint64(seed) ^ (ux * 0x9e3779b97f4a7c15) ^ (uy * 0xc2b2ae3d27d4eb4f) ^ (uz * 0xbf58476d1ce4e5b9)
	return mix64(v)
}

func ClampPermille(v int) int {
	if v < 0 {
		return 0
	}
	if v > 1000 {
		return 1000
	}
	return v
}

func ScalePermille(base uint64, scalePermille int) uint64 {
	if scalePermille <= 0 {
		scalePermille = 1000
	}
	scaled := (base*uint64(scalePermille) + 500) / 1000
	if scaled > 1000 {
		return 1000
	}
	return scaled
}

// InCluster reports whether (x,y,z) lies within radius of the random centre of its
// grid cell or one of the 26 neighbouring cells. Each cell has a centre with
// probability probPermille/1000.
func InCluster(seed int64, x, y, z, grid, radius int, probPermille uint64) bool {
	if grid <= 0 || radius <= 0 || probPermille == 0 {
		return false
	}
	gx := geom.FloorDiv(x, grid)
	gy := geom.FloorDiv(y, grid)
	gz := geom.FloorDiv(z, grid)
	r2 := radius * radius

	for dz := -1; dz <= 1; dz++ {
		for dy := -1; dy <= 1; dy++ {
			for dx := -1; dx <= 1; dx++ {
				cgx, cgy, cgz := gx+dx, gy+dy, gz+dz
				h := Hash3(seed, cgx, cgy, cgz)
				if h%1000 >= probPermille {
					continue
				}

				cx := cgx*grid + int((h>>10)%uint64(grid))
				cy := cgy*grid + int((h>>20)%uint64(grid))
				cz := cgz*grid + int((h>>30)%uint64(grid))

				ddx, ddy, ddz := x-cx, y-cy, z-cz
				if ddx*ddx+ddy*ddy+ddz*ddz <= r2 {
					return true
				}
			}
		}
	}
	return false
}

// valueNoise is smooth 2D lattice noise in [0,1).
func valueNoise(seed int64, x, z, cell int) float64 {
	gx, gz := geom.FloorDiv(x, cell), geom.FloorDiv(z, cell)
	fx := float64(geom.Mod(x, cell)) / float64(cell)
	fz := float64(geom.Mod(z, cell)) / float64(cell)
	fx = fx * fx * (3 - 2*fx)
	fz = fz * fz * (3 - 2*fz)

	corner := func(cx, cz int) float64 {
		return float64(Hash2(seed, cx, cz)>>11) / (1 << 53)
	}
	a := corner(gx, gz)
	b := corner(gx+1, gz)
	c := corner(gx, gz+1)
	d := corner(gx+1, gz+1)
	top := a + (b-a)*fx
	bottom := c + (d-c)*fx
	return top + (bottom-top)*fz
}
