package geom

import (
	"fmt"
	"math"

	"github.com/go-gl/mathgl/mgl32"
)

// Region is an axis-aligned box with inclusive bounds. It is valid iff Max >= Min
// componentwise. Methods never modify the receiver.
type Region struct {
	Min Vec3i
	Max Vec3i
}

// InvalidRegion is the empty sentinel: every bound is inverted, so accumulating
// any valid region into it yields that region.
var InvalidRegion = Region{
	Min: Vec3i{math.MaxInt32, math.MaxInt32, math.MaxInt32},
	Max: Vec3i{math.MinInt32, math.MinInt32, math.MinInt32},
}

func NewRegion(minX, minY, minZ, maxX, maxY, maxZ int) Region {
	return Region{Min: Vec3i{minX, minY, minZ}, Max: Vec3i{maxX, maxY, maxZ}}
}

// CubeAt returns the region of side length `side` whose lower corner is `lower`.
func CubeAt(lower Vec3i, side int) Region {
	return Region{Min: lower, Max: lower.Add(Vec3i{side - 1, side - 1, side - 1})}
}

func (r Region) String() string {
	return fmt.Sprintf("[%d,%d,%d..%d,%d,%d]", r.Min.X, r.Min.Y, r.Min.Z, r.Max.X, r.Max.Y, r.Max.Z)
}

func (r Region) IsValid() bool { return r.Min.AllLE(r.Max) }

func (r Region) Width() int  { return r.Max.X - r.Min.X + 1 }
func (r Region) Height() int { return r.Max.Y - r.Min.Y + 1 }
func (r Region) Depth() int  { return r.Max.Z - r.Min.Z + 1 }

// Dimensions is the size in voxels along each axis.
func (r Region) Dimensions() Vec3i { return Vec3i{r.Width(), r.Height(), r.Depth()} }

// Volume is the voxel count, zero for an invalid region.
func (r Region) Volume() int {
	if !r.IsValid() {
		return 0
	}
	return r.Width() * r.Height() * r.Depth()
}

// Centre is the integer centre (rounded toward Min).
func (r Region) Centre() Vec3i {
	return Vec3i{
		r.Min.X + (r.Max.X-r.Min.X)/2,
		r.Min.Y + (r.Max.Y-r.Min.Y)/2,
		r.Min.Z + (r.Max.Z-r.Min.Z)/2,
	}
}

// CentreF is the exact geometric centre of the voxel centres.
func (r Region) CentreF() mgl32.Vec3 {
	return r.Min.Vec3().Add(r.Max.Vec3()).Mul(0.5)
}

// DiagonalLength is |Max - Min|.
func (r Region) DiagonalLength() float32 {
	return r.Max.Sub(r.Min).Vec3().Len()
}

func (r Region) Contains(x, y, z int) bool {
	return x >= r.Min.X && x <= r.Max.X &&
		y >= r.Min.Y && y <= r.Max.Y &&
		z >= r.Min.Z && z <= r.Max.Z
}

func (r Region) ContainsVec(p Vec3i) bool { return r.Contains(p.X, p.Y, p.Z) }

// ContainsRegion reports whether o lies entirely inside r.
func (r Region) ContainsRegion(o Region) bool {
	return r.ContainsVec(o.Min) && r.ContainsVec(o.Max)
}

func (r Region) Intersects(o Region) bool {
	return r.Min.X <= o.Max.X && r.Max.X >= o.Min.X &&
		r.Min.Y <= o.Max.Y && r.Max.Y >= o.Min.Y &&
		r.Min.Z <= o.Max.Z && r.Max.Z >= o.Min.Z
}

// Intersect returns the overlap, which is invalid when the regions are disjoint.
func (r Region) Intersect(o Region) Region {
	return Region{Min: r.Min.Max(o.Min), Max: r.Max.Min(o.Max)}
}

// Accumulate returns the smallest region enclosing both.
func (r Region) Accumulate(o Region) Region {
	if !o.IsValid() {
		return r
	}
	return Region{Min: r.Min.Min(o.Min), Max: r.Max.Max(o.Max)}
}

// AccumulatePoint returns the smallest region enclosing r and p.
func (r Region) AccumulatePoint(p Vec3i) Region {
	return Region{Min: r.Min.Min(p), Max: r.Max.Max(p)}
}

func (r Region) Grow(amount int) Region { return r.GrowPerAxis(amount, amount, amount) }

func (r Region) GrowPerAxis(x, y, z int) Region {
	d := Vec3i{x, y, z}
	return Region{Min: r.Min.Sub(d), Max: r.Max.Add(d)}
}

func (r Region) Shrink(amount int) Region { return r.Grow(-amount) }

func (r Region) Translate(d Vec3i) Region {
	return Region{Min: r.Min.Add(d), Max: r.Max.Add(d)}
}

// ShiftMax moves only the upper corner.
func (r Region) ShiftMax(d Vec3i) Region { return Region{Min: r.Min, Max: r.Max.Add(d)} }

// ShiftMin moves only the lower corner.
func (r Region) ShiftMin(d Vec3i) Region { return Region{Min: r.Min.Add(d), Max: r.Max} }

// Cropped clips r to the bounds of o.
func (r Region) Cropped(o Region) Region { return r.Intersect(o) }

// ScaleDown divides both corners by factor using floor division, so the result
// covers every coarse cell touching r.
func (r Region) ScaleDown(factor int) Region {
	return Region{
		Min: Vec3i{FloorDiv(r.Min.X, factor), FloorDiv(r.Min.Y, factor), FloorDiv(r.Min.Z, factor)},
		Max: Vec3i{FloorDiv(r.Max.X, factor), FloorDiv(r.Max.Y, factor), FloorDiv(r.Max.Z, factor)},
	}
}

// ForEach calls fn for every position in r, x fastest.
func (r Region) ForEach(fn func(p Vec3i)) {
	for z := r.Min.Z; z <= r.Max.Z; z++ {
		for y := r.Min.Y; y <= r.Max.Y; y++ {
			for x := r.Min.X; x <= r.Max.X; x++ {
				fn(Vec3i{x, y, z})
			}
		}
	}
}
