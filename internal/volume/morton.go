package volume

// Morton (Z-order) interleave tables for local coordinates up to 255. The index of
// (x,y,z) is mortonX[x] | mortonY[y] | mortonZ[z].
var mortonX, mortonY, mortonZ [256]uint32

func init() {
	for i := 0; i < 256; i++ {
		e := expand3(uint32(i))
		mortonX[i] = e
		mortonY[i] = e << 1
		mortonZ[i] = e << 2
	}
}

func expand3(v uint32) uint32 {
	v = (v | (v << 16)) & 0x030000FF
	v = (v | (v << 8)) & 0x0300F00F
	v = (v | (v << 4)) & 0x030C30C3
	v = (v | (v << 2)) & 0x09249249
	return v
}

func mortonIndex(x, y, z int) uint32 {
	return mortonX[x] | mortonY[y] | mortonZ[z]
}

// mortonDecode inverts mortonIndex.
func mortonDecode(i uint32) (x, y, z int) {
	return int(compact3(i)), int(compact3(i >> 1)), int(compact3(i >> 2))
}

func compact3(v uint32) uint32 {
	v &= 0x09249249
	v = (v ^ (v >> 2)) & 0x030C30C3
	v = (v ^ (v >> 4)) & 0x0300F00F
	v = (v ^ (v >> 8)) & 0x030000FF
	v = (v ^ (v >> 16)) & 0x000003FF
	return v
}
