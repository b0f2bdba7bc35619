package main

import (
	"sort"

	"github.com/go-gl/mathgl/mgl64"
)

// Tag classifies an entity for collision filtering
type Tag uint8

const (
	TagSurface    Tag = iota // ordinary geometry
	TagSelf                  // the firing agent
	TagProjectile            // another needle
	TagTarget                // creature that may expose capabilities
)

func (t Tag) String() string {
	switch t {
	case TagSurface:
		return "surface"
	case TagSelf:
		return "self"
	case TagProjectile:
		return "projectile"
	case TagTarget:
		return "target"
	}
	return "unknown"
}

// ShapeKind selects the collider primitive
type ShapeKind uint8

const (
	ShapeSphere ShapeKind = iota
	ShapeBox
	ShapeCapsule // axis along local forward
)

// Shape is a collider in entity-local space. Box half extents are already
// scaled; Scale on the entity only drives attachment decisions.
type Shape struct {
	Kind        ShapeKind
	Radius      float64
	HalfExtents mgl64.Vec3
	HalfLength  float64
}

// Entity is anything with a pose and a collider living in a Scene
type Entity struct {
	ID       string
	Name     string
	Tag      Tag
	Pose     Pose
	Scale    mgl64.Vec3
	Parent   *Entity
	Shape    Shape
	Disabled bool // collider off

	pinnable Pinnable
	pullable Pullable
}

// NewEntity creates an entity with unit scale
func NewEntity(name string, tag Tag, pose Pose, shape Shape) *Entity {
	return &Entity{
		ID:    GenerateID(),
		Name:  name,
		Tag:   tag,
		Pose:  pose,
		Scale: mgl64.Vec3{1, 1, 1},
		Shape: shape,
	}
}

// SetPinnable registers the pinning capability for this entity
func (e *Entity) SetPinnable(p Pinnable) { e.pinnable = p }

// SetPullable registers the pulled capability for this entity
func (e *Entity) SetPullable(p Pullable) { e.pullable = p }

// PinnableCap looks up the pinning capability.
func (e *Entity) PinnableCap() (Pinnable, bool) {
	if e == nil || e.pinnable == nil {
		return nil, false
	}
	return e.pinnable, true
}

// PullableCap looks up the pulled capability.
func (e *Entity) PullableCap() (Pullable, bool) {
	if e == nil || e.pullable == nil {
		return nil, false
	}
	return e.pullable, true
}

// UnitScale reports whether the entity carries no scale
func (e *Entity) UnitScale() bool {
	return e.Scale.ApproxEqual(mgl64.Vec3{1, 1, 1})
}

// capsuleEnds returns the axis end points of a capsule collider
func (e *Entity) capsuleEnds() (mgl64.Vec3, mgl64.Vec3) {
	axis := e.Pose.Forward().Mul(e.Shape.HalfLength)
	return e.Pose.Position.Sub(axis), e.Pose.Position.Add(axis)
}

// WorldBounds returns the axis-aligned bounds of the collider
func (e *Entity) WorldBounds() Bounds {
	switch e.Shape.Kind {
	case ShapeBox:
		h := e.Shape.HalfExtents
		corners := make([]mgl64.Vec3, 0, 8)
		for _, sx := range []float64{-1, 1} {
			for _, sy := range []float64{-1, 1} {
				for _, sz := range []float64{-1, 1} {
					corners = append(corners, mgl64.Vec3{sx * h[0], sy * h[1], sz * h[2]})
				}
			}
		}
		return BoundsFromPoints(corners, e.Pose, mgl64.Vec3{1, 1, 1})
	case ShapeCapsule:
		a, b := e.capsuleEnds()
		return BoundsFromPoints([]mgl64.Vec3{a, b}, NewPose(mgl64.Vec3{}), mgl64.Vec3{1, 1, 1}).Expand(e.Shape.Radius)
	default:
		r := e.Shape.Radius
		return Bounds{Center: e.Pose.Position, Size: mgl64.Vec3{2 * r, 2 * r, 2 * r}}
	}
}

// IntersectSegment tests a->b against the collider, inflated by pad.
func (e *Entity) IntersectSegment(a, b mgl64.Vec3, pad float64) (Hit, bool) {
	var t float64
	var ok bool
	switch e.Shape.Kind {
	case ShapeBox:
		h := e.Shape.HalfExtents.Add(mgl64.Vec3{pad, pad, pad})
		t, ok = segmentBoxIntersect(a, b, e.Pose, h)
	case ShapeCapsule:
		p, q := e.capsuleEnds()
		t, ok = segmentCapsuleIntersect(a, b, p, q, e.Shape.Radius+pad)
	default:
		t, ok = segmentSphereIntersect(a, b, e.Pose.Position, e.Shape.Radius+pad)
	}
	if !ok {
		return Hit{}, false
	}
	d := b.Sub(a)
	return Hit{
		Entity:   e,
		Point:    a.Add(d.Mul(t)),
		Distance: d.Len() * t,
	}, true
}

// Hit is one contact along a query segment
type Hit struct {
	Entity   *Entity
	Point    mgl64.Vec3
	Distance float64 // from the segment start
}

// HitFilter returns true for entities a query may report
type HitFilter func(*Entity) bool

// Scene holds every collider the needles can interact with
type Scene struct {
	entities []*Entity
	byID     map[string]*Entity
	grid     *SpatialGrid
	bounds   Bounds
}

// NewScene creates an empty, unbounded scene
func NewScene() *Scene {
	return &Scene{
		byID: make(map[string]*Entity),
		grid: NewSpatialGrid(SpatialCellSize),
	}
}

// SetBounds limits the playable volume. Zero bounds mean unbounded.
func (s *Scene) SetBounds(b Bounds) { s.bounds = b }

// Bounds returns the playable volume and whether one is set
func (s *Scene) Bounds() (Bounds, bool) { return s.bounds, !s.bounds.IsZero() }

// Add registers an entity
func (s *Scene) Add(e *Entity) {
	if _, ok := s.byID[e.ID]; ok {
		return
	}
	s.entities = append(s.entities, e)
	s.byID[e.ID] = e
	s.grid.Insert(e.WorldBounds(), e)
}

// Entity looks up an entity by ID
func (s *Scene) Entity(id string) *Entity { return s.byID[id] }

// Entities returns all registered entities
func (s *Scene) Entities() []*Entity { return s.entities }

// Sync rebuilds the broad phase from current entity poses
func (s *Scene) Sync() {
	s.grid.Clear()
	for _, e := range s.entities {
		s.grid.Insert(e.WorldBounds(), e)
	}
}

func (s *Scene) candidates(a, b mgl64.Vec3, pad float64) []*Entity {
	var lo, hi mgl64.Vec3
	for i := 0; i < 3; i++ {
		lo[i] = min(a[i], b[i]) - pad
		hi[i] = max(a[i], b[i]) + pad
	}
	return s.grid.QueryBuf(lo, hi, nil)
}

// SegmentHits returns every enabled entity accepted by filter that the
// segment a->b touches, nearest to a first. Each entity appears once.
func (s *Scene) SegmentHits(a, b mgl64.Vec3, filter HitFilter) []Hit {
	return s.sweepHits(a, b, 0, filter)
}

// Raycast returns the nearest hit along a->b
func (s *Scene) Raycast(a, b mgl64.Vec3, filter HitFilter) (Hit, bool) {
	hits := s.SegmentHits(a, b, filter)
	if len(hits) == 0 {
		return Hit{}, false
	}
	return hits[0], true
}

// SphereSweep moves a sphere of radius from origin along dir up to
// maxDist and returns the first entity it touches.
func (s *Scene) SphereSweep(origin, dir mgl64.Vec3, radius, maxDist float64, filter HitFilter) (Hit, bool) {
	if dir.Dot(dir) < geomEpsilon {
		return Hit{}, false
	}
	end := origin.Add(dir.Normalize().Mul(maxDist))
	hits := s.sweepHits(origin, end, radius, filter)
	if len(hits) == 0 {
		return Hit{}, false
	}
	return hits[0], true
}

func (s *Scene) sweepHits(a, b mgl64.Vec3, pad float64, filter HitFilter) []Hit {
	var hits []Hit
	for _, e := range s.candidates(a, b, pad) {
		if e.Disabled {
			continue
		}
		if _, ok := s.byID[e.ID]; !ok {
			continue
		}
		if filter != nil && !filter(e) {
			continue
		}
		if h, ok := e.IntersectSegment(a, b, pad); ok {
			hits = append(hits, h)
		}
	}
	sort.Slice(hits, func(i, j int) bool { return hits[i].Distance < hits[j].Distance })
	return hits
}
