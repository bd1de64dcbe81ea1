package geom

import "github.com/go-gl/mathgl/mgl32"

// Vec3i is an integer voxel-space position.
type Vec3i struct{ X, Y, Z int }

func V(x, y, z int) Vec3i { return Vec3i{X: x, Y: y, Z: z} }

func (v Vec3i) Add(o Vec3i) Vec3i { return Vec3i{v.X + o.X, v.Y + o.Y, v.Z + o.Z} }
func (v Vec3i) Sub(o Vec3i) Vec3i { return Vec3i{v.X - o.X, v.Y - o.Y, v.Z - o.Z} }
func (v Vec3i) Scale(s int) Vec3i { return Vec3i{v.X * s, v.Y * s, v.Z * s} }

// Shr shifts every component right arithmetically, which floors for negative values.
func (v Vec3i) Shr(n uint) Vec3i { return Vec3i{v.X >> n, v.Y >> n, v.Z >> n} }

func (v Vec3i) Min(o Vec3i) Vec3i {
	return Vec3i{min(v.X, o.X), min(v.Y, o.Y), min(v.Z, o.Z)}
}

func (v Vec3i) Max(o Vec3i) Vec3i {
	return Vec3i{max(v.X, o.X), max(v.Y, o.Y), max(v.Z, o.Z)}
}

// AllLE reports whether v <= o componentwise.
func (v Vec3i) AllLE(o Vec3i) bool { return v.X <= o.X && v.Y <= o.Y && v.Z <= o.Z }

func (v Vec3i) Vec3() mgl32.Vec3 { return mgl32.Vec3{float32(v.X), float32(v.Y), float32(v.Z)} }
