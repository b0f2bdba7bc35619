package main

import (
	"math"

	"github.com/go-gl/mathgl/mgl64"
)

// segmentSphereIntersect returns the fraction t in [0,1] along a->b where
// the segment first touches the sphere. A start point inside the sphere
// reports t = 0.
func segmentSphereIntersect(a, b, center mgl64.Vec3, r float64) (float64, bool) {
	d := b.Sub(a)
	f := a.Sub(center)
	c := f.Dot(f) - r*r
	if c <= 0 {
		return 0, true
	}
	qa := d.Dot(d)
	if qa < geomEpsilon {
		return 0, false
	}
	qb := 2 * f.Dot(d)
	discriminant := qb*qb - 4*qa*c
	if discriminant < 0 {
		return 0, false
	}
	discriminant = math.Sqrt(discriminant)
	t1 := (-qb - discriminant) / (2 * qa)
	if t1 >= 0 && t1 <= 1 {
		return t1, true
	}
	return 0, false
}

// segmentBoxIntersect tests a->b against an oriented box given by its pose
// and half extents using the slab method. Returns the entry fraction.
func segmentBoxIntersect(a, b mgl64.Vec3, box Pose, half mgl64.Vec3) (float64, bool) {
	inv := box.Rotation.Inverse()
	la := inv.Rotate(a.Sub(box.Position))
	lb := inv.Rotate(b.Sub(box.Position))
	d := lb.Sub(la)

	tmin, tmax := 0.0, 1.0
	for i := 0; i < 3; i++ {
		if math.Abs(d[i]) < geomEpsilon {
			if la[i] < -half[i] || la[i] > half[i] {
				return 0, false
			}
			continue
		}
		t1 := (-half[i] - la[i]) / d[i]
		t2 := (half[i] - la[i]) / d[i]
		if t1 > t2 {
			t1, t2 = t2, t1
		}
		tmin = math.Max(tmin, t1)
		tmax = math.Min(tmax, t2)
		if tmin > tmax {
			return 0, false
		}
	}
	return tmin, true
}

// closestPointsSegments returns the parameters s, t of the closest points
// between segments p1->q1 and p2->q2.
func closestPointsSegments(p1, q1, p2, q2 mgl64.Vec3) (float64, float64) {
	d1 := q1.Sub(p1)
	d2 := q2.Sub(p2)
	r := p1.Sub(p2)
	a := d1.Dot(d1)
	e := d2.Dot(d2)
	f := d2.Dot(r)

	if a < geomEpsilon && e < geomEpsilon {
		return 0, 0
	}
	var s, t float64
	if a < geomEpsilon {
		s = 0
		t = clamp01(f / e)
	} else {
		c := d1.Dot(r)
		if e < geomEpsilon {
			t = 0
			s = clamp01(-c / a)
		} else {
			b := d1.Dot(d2)
			denom := a*e - b*b
			if denom > geomEpsilon {
				s = clamp01((b*f - c*e) / denom)
			}
			t = (b*s + f) / e
			if t < 0 {
				t = 0
				s = clamp01(-c / a)
			} else if t > 1 {
				t = 1
				s = clamp01((b - c) / a)
			}
		}
	}
	return s, t
}

// segmentCapsuleIntersect treats the capsule p2->q2 with radius r as the
// set of points within r of its axis. Returns the fraction along a->b of
// the closest approach when it is within reach.
func segmentCapsuleIntersect(a, b, p2, q2 mgl64.Vec3, r float64) (float64, bool) {
	s, t := closestPointsSegments(a, b, p2, q2)
	c1 := a.Add(b.Sub(a).Mul(s))
	c2 := p2.Add(q2.Sub(p2).Mul(t))
	d := c1.Sub(c2)
	if d.Dot(d) > r*r {
		return 0, false
	}
	return s, true
}
