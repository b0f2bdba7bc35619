package main

import (
	"math"

	"github.com/go-gl/mathgl/mgl64"
)

const geomEpsilon = 1e-9

// World axes. Forward is +Z, up is +Y, right is +X.
var (
	WorldUp      = mgl64.Vec3{0, 1, 0}
	WorldForward = mgl64.Vec3{0, 0, 1}
	WorldRight   = mgl64.Vec3{1, 0, 0}
)

// Pose is a world-space position and orientation
type Pose struct {
	Position mgl64.Vec3
	Rotation mgl64.Quat
}

// NewPose creates a pose at pos with identity rotation
func NewPose(pos mgl64.Vec3) Pose {
	return Pose{Position: pos, Rotation: mgl64.QuatIdent()}
}

func (p Pose) Forward() mgl64.Vec3 { return p.Rotation.Rotate(WorldForward) }
func (p Pose) Right() mgl64.Vec3   { return p.Rotation.Rotate(WorldRight) }
func (p Pose) Up() mgl64.Vec3      { return p.Rotation.Rotate(WorldUp) }

// ToLocal expresses a world pose relative to p.
func (p Pose) ToLocal(world Pose) Pose {
	inv := p.Rotation.Inverse()
	return Pose{
		Position: inv.Rotate(world.Position.Sub(p.Position)),
		Rotation: inv.Mul(world.Rotation).Normalize(),
	}
}

// FromLocal converts a pose relative to p back into world space.
func (p Pose) FromLocal(local Pose) Pose {
	return Pose{
		Position: p.Position.Add(p.Rotation.Rotate(local.Position)),
		Rotation: p.Rotation.Mul(local.Rotation).Normalize(),
	}
}

// LookRotation returns the rotation whose forward axis points along
// forward, keeping its up axis as close to up as possible. A zero forward
// yields the identity rotation.
func LookRotation(forward, up mgl64.Vec3) mgl64.Quat {
	if forward.Dot(forward) < geomEpsilon {
		return mgl64.QuatIdent()
	}
	f := forward.Normalize()
	r := up.Cross(f)
	if r.Dot(r) < geomEpsilon {
		// forward is parallel to up
		r = WorldForward.Cross(f)
		if r.Dot(r) < geomEpsilon {
			r = WorldRight
		}
	}
	r = r.Normalize()
	u := f.Cross(r)
	return mgl64.Mat4ToQuat(mgl64.Mat3FromCols(r, u, f).Mat4()).Normalize()
}

// lerpVec3 moves a toward b by fraction t, clamped to [0, 1]
func lerpVec3(a, b mgl64.Vec3, t float64) mgl64.Vec3 {
	t = clamp01(t)
	return a.Add(b.Sub(a).Mul(t))
}

// nlerpQuat interpolates along the shorter arc, clamped to [0, 1]
func nlerpQuat(a, b mgl64.Quat, t float64) mgl64.Quat {
	t = clamp01(t)
	if a.Dot(b) < 0 {
		b = b.Scale(-1)
	}
	return mgl64.QuatNlerp(a, b, t)
}

// Bounds is an axis-aligned box
type Bounds struct {
	Center mgl64.Vec3
	Size   mgl64.Vec3
}

// BoundsFromMinMax builds bounds spanning min..max
func BoundsFromMinMax(min, max mgl64.Vec3) Bounds {
	return Bounds{
		Center: min.Add(max).Mul(0.5),
		Size:   max.Sub(min),
	}
}

// BoundsFromPoints returns the world bounds of local points transformed by
// pose and per-axis scale.
func BoundsFromPoints(points []mgl64.Vec3, pose Pose, scale mgl64.Vec3) Bounds {
	if len(points) == 0 {
		return Bounds{Center: pose.Position}
	}
	transform := func(v mgl64.Vec3) mgl64.Vec3 {
		scaled := mgl64.Vec3{v[0] * scale[0], v[1] * scale[1], v[2] * scale[2]}
		return pose.Position.Add(pose.Rotation.Rotate(scaled))
	}
	min := transform(points[0])
	max := min
	for _, p := range points[1:] {
		w := transform(p)
		for i := 0; i < 3; i++ {
			min[i] = math.Min(min[i], w[i])
			max[i] = math.Max(max[i], w[i])
		}
	}
	return BoundsFromMinMax(min, max)
}

func (b Bounds) Min() mgl64.Vec3    { return b.Center.Sub(b.Size.Mul(0.5)) }
func (b Bounds) Max() mgl64.Vec3    { return b.Center.Add(b.Size.Mul(0.5)) }
func (b Bounds) Height() float64    { return b.Size[1] }
func (b Bounds) IsZero() bool       { return b.Size == mgl64.Vec3{} }
func (b Bounds) Expand(r float64) Bounds {
	return Bounds{Center: b.Center, Size: b.Size.Add(mgl64.Vec3{2 * r, 2 * r, 2 * r})}
}

// Contains reports whether p lies inside or on the box
func (b Bounds) Contains(p mgl64.Vec3) bool {
	min, max := b.Min(), b.Max()
	for i := 0; i < 3; i++ {
		if p[i] < min[i] || p[i] > max[i] {
			return false
		}
	}
	return true
}

// segmentExit returns the point where a segment starting inside b first
// leaves it. ok is false when the end point is still inside.
func (b Bounds) segmentExit(a, end mgl64.Vec3) (mgl64.Vec3, bool) {
	if b.Contains(end) {
		return end, false
	}
	min, max := b.Min(), b.Max()
	d := end.Sub(a)
	t := 1.0
	for i := 0; i < 3; i++ {
		if d[i] > geomEpsilon && end[i] > max[i] {
			t = math.Min(t, (max[i]-a[i])/d[i])
		} else if d[i] < -geomEpsilon && end[i] < min[i] {
			t = math.Min(t, (min[i]-a[i])/d[i])
		}
	}
	return a.Add(d.Mul(math.Max(t, 0))), true
}

// InventoryAnchor computes the idle anchor behind the holder's body:
// bounds center, raised by a quarter of the body height, pushed back by
// distance along the holder's forward axis.
func InventoryAnchor(body Bounds, holder Pose, distance float64) mgl64.Vec3 {
	return body.Center.
		Add(holder.Up().Mul(body.Height() / 4)).
		Sub(holder.Forward().Mul(distance))
}

// SlotAngle returns the arc angle in radians of slot i out of maxCount.
// Slots are spread evenly over 180 degrees; a single slot sits at 0.
func SlotAngle(i, maxCount int) float64 {
	if maxCount <= 1 {
		return 0
	}
	return float64(i) * math.Pi / float64(maxCount-1)
}

// SlotPositions lays maxCount slots on a half-circle arc around anchor in
// the holder's right/up plane.
func SlotPositions(anchor mgl64.Vec3, holder Pose, maxCount int, spreadH, spreadV float64) []mgl64.Vec3 {
	if maxCount <= 0 {
		return nil
	}
	right, up := holder.Right(), holder.Up()
	slots := make([]mgl64.Vec3, maxCount)
	for i := range slots {
		angle := SlotAngle(i, maxCount)
		slots[i] = anchor.
			Add(right.Mul(math.Cos(angle) * spreadH / 2)).
			Add(up.Mul(math.Sin(angle) * spreadV / 2))
	}
	return slots
}
