package main

import (
	"math"
	"math/rand"

	"github.com/go-gl/mathgl/mgl64"
)

const (
	MobRadius       = 0.5
	MobSpeed        = 3.0  // units/s
	MobTurnSpeed    = 4.0  // radians/s max turn rate
	MobKeepDistance = 2.5  // stops closing in at this range
	MobDetectRange  = 30.0 // chases the player inside this range
	MobWanderDrift  = 1.0  // max radians/s the wander heading changes
)

// MobBehavior is what drives the mob's pose
type MobBehavior uint8

const (
	MobChasing MobBehavior = iota
	MobPinned
)

func (b MobBehavior) String() string {
	if b == MobPinned {
		return "pinned"
	}
	return "chasing"
}

// Mob is a creature that walks toward the player and can be pinned by a
// power-fired needle
type Mob struct {
	ID          string
	Behavior    MobBehavior
	CanBePinned bool
	Yaw         float64
	WanderAngle float64

	body      *Entity
	rng       *rand.Rand
	arenaHalf float64
}

// NewMob places a mob at pos and registers its pinning capability
func NewMob(pos mgl64.Vec3, arenaSize float64, rng *rand.Rand) *Mob {
	m := &Mob{
		CanBePinned: true,
		rng:         rng,
		arenaHalf:   arenaSize / 2,
	}
	m.Yaw = (rng.Float64()*2 - 1) * math.Pi
	m.WanderAngle = m.Yaw
	m.body = NewEntity("mob", TagTarget, NewPose(pos), Shape{Kind: ShapeSphere, Radius: MobRadius})
	m.body.SetPinnable(m)
	m.ID = m.body.ID
	return m
}

// Body is the mob's collider
func (m *Mob) Body() *Entity { return m.body }

func (m *Mob) Pinnable() bool { return m.CanBePinned && m.Behavior != MobPinned }

// OnPinned stops autonomous movement and disables the collider so the
// pinning needle owns the mob's pose
func (m *Mob) OnPinned() {
	m.Behavior = MobPinned
	m.body.Disabled = true
}

// OnUnpinned hands the mob back to its own movement, upright
func (m *Mob) OnUnpinned() {
	m.Behavior = MobChasing
	m.body.Disabled = false
	m.body.Pose.Position[1] = MobRadius
	m.Yaw = yawOf(m.body.Pose.Forward())
	m.body.Pose.Rotation = mgl64.QuatRotate(m.Yaw, WorldUp)
}

// Update steers the mob toward target, keeping MobKeepDistance, or
// wanders when the target is out of range
func (m *Mob) Update(dt float64, target mgl64.Vec3) {
	if m.Behavior == MobPinned {
		return
	}
	pos := m.body.Pose.Position
	to := target.Sub(pos)
	to[1] = 0
	dist := to.Len()

	speed := MobSpeed
	var desired float64
	if dist < MobDetectRange && dist > geomEpsilon {
		desired = math.Atan2(to.X(), to.Z())
		if dist <= MobKeepDistance {
			speed = 0
		}
	} else {
		m.WanderAngle = NormalizeAngle(m.WanderAngle + (m.rng.Float64()*2-1)*MobWanderDrift*dt)
		desired = m.WanderAngle
		speed *= 0.5
	}

	diff := NormalizeAngle(desired - m.Yaw)
	maxTurn := MobTurnSpeed * dt
	m.Yaw += Clamp(diff, -maxTurn, maxTurn)

	step := mgl64.Vec3{math.Sin(m.Yaw), 0, math.Cos(m.Yaw)}.Mul(speed * dt)
	pos = pos.Add(step)
	if m.arenaHalf > 0 {
		limit := m.arenaHalf - MobRadius
		if math.Abs(pos.X()) > limit || math.Abs(pos.Z()) > limit {
			m.WanderAngle = NormalizeAngle(m.WanderAngle + math.Pi)
		}
		pos[0] = Clamp(pos[0], -limit, limit)
		pos[2] = Clamp(pos[2], -limit, limit)
	}
	pos[1] = MobRadius
	m.body.Pose = Pose{Position: pos, Rotation: mgl64.QuatRotate(m.Yaw, WorldUp)}
}

// yawOf returns the heading of v projected onto the ground plane
func yawOf(v mgl64.Vec3) float64 {
	if v.X()*v.X()+v.Z()*v.Z() < geomEpsilon {
		return 0
	}
	return math.Atan2(v.X(), v.Z())
}

// ToState converts to protocol state
func (m *Mob) ToState() MobState {
	return MobState{
		ID:     m.ID,
		Pos:    vec3State(m.body.Pose.Position),
		Rot:    quatState(m.body.Pose.Rotation),
		Pinned: m.Behavior == MobPinned,
	}
}
