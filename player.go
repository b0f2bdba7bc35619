package main

import (
	"math"

	"github.com/go-gl/mathgl/mgl64"
)

const (
	PlayerHeight    = 1.8
	PlayerRadius    = 0.4
	PlayerEyeHeight = 1.6   // above the feet
	PlayerMoveSpeed = 6.0   // units/s
	PlayerFriction  = 0.9   // horizontal impulse multiplier per tick
	PlayerGravity   = 20.0  // units/s²
	PlayerJumpSpeed = 7.0   // units/s
	PlayerMaxPitch  = 1.55  // radians, just short of straight up/down
	PlayerMaxFall   = -40.0 // terminal vertical speed
)

// Player is the kinematic body holding the needle pool. Position is the
// center of its collider box.
type Player struct {
	ID       string
	Name     string
	Position mgl64.Vec3
	Velocity mgl64.Vec3
	Yaw      float64 // radians around +Y, 0 faces +Z
	Pitch    float64 // radians, positive looks up

	MoveX, MoveZ float64 // strafe/forward input axes in [-1, 1]
	Jumping      bool
	Isometric    bool // alternate camera, firing disabled

	grounded       bool
	locked         bool
	launchDistance float64
	arenaHalf      float64
	body           *Entity
}

// NewPlayer creates a player standing at feet
func NewPlayer(id, name string, feet mgl64.Vec3, launchDistance, arenaSize float64) *Player {
	p := &Player{
		ID:             id,
		Name:           name,
		Position:       feet.Add(mgl64.Vec3{0, PlayerHeight / 2, 0}),
		launchDistance: launchDistance,
		arenaHalf:      arenaSize / 2,
		grounded:       feet.Y() <= 0,
	}
	p.body = NewEntity(name, TagSelf, p.Pose(), Shape{
		Kind:        ShapeBox,
		HalfExtents: mgl64.Vec3{PlayerRadius, PlayerHeight / 2, PlayerRadius},
	})
	return p
}

// Body is the player's collider, ignored by its own needles
func (p *Player) Body() *Entity { return p.body }

func (p *Player) Pose() Pose {
	return Pose{Position: p.Position, Rotation: mgl64.QuatRotate(p.Yaw, WorldUp)}
}

func (p *Player) Bounds() Bounds {
	return Bounds{Center: p.Position, Size: mgl64.Vec3{2 * PlayerRadius, PlayerHeight, 2 * PlayerRadius}}
}

// AimOrigin is the eye point
func (p *Player) AimOrigin() mgl64.Vec3 {
	return p.Position.Add(mgl64.Vec3{0, PlayerEyeHeight - PlayerHeight/2, 0})
}

// AimDirection is the unit look vector from yaw and pitch
func (p *Player) AimDirection() mgl64.Vec3 {
	cp := math.Cos(p.Pitch)
	return mgl64.Vec3{math.Sin(p.Yaw) * cp, math.Sin(p.Pitch), math.Cos(p.Yaw) * cp}
}

// LaunchPoint is where fired needles mount before flight
func (p *Player) LaunchPoint() mgl64.Vec3 {
	return p.AimOrigin().Add(p.AimDirection().Mul(p.launchDistance))
}

func (p *Player) FiringAllowed() bool { return !p.Isometric }

func (p *Player) SetMovementLocked(locked bool) { p.locked = locked }

// MovementLocked reports whether a charging needle holds the player still
func (p *Player) MovementLocked() bool { return p.locked }

func (p *Player) Grounded() bool { return p.grounded }

// Boost adds an instantaneous velocity change
func (p *Player) Boost(impulse mgl64.Vec3) {
	p.Velocity = p.Velocity.Add(impulse)
	if impulse.Y() > 0 {
		p.grounded = false
	}
}

// Look sets the view angles unless movement is locked
func (p *Player) Look(yaw, pitch float64) {
	if p.locked {
		return
	}
	p.Yaw = NormalizeAngle(yaw)
	p.Pitch = Clamp(pitch, -PlayerMaxPitch, PlayerMaxPitch)
}

// Update moves the player one tick (dt in seconds)
func (p *Player) Update(dt float64) {
	var walk mgl64.Vec3
	if !p.locked {
		pose := p.Pose()
		walk = pose.Forward().Mul(Clamp(p.MoveZ, -1, 1)).Add(pose.Right().Mul(Clamp(p.MoveX, -1, 1)))
		if l := walk.Len(); l > 1 {
			walk = walk.Mul(1 / l)
		}
		walk = walk.Mul(PlayerMoveSpeed)
		if p.Jumping && p.grounded {
			p.Velocity[1] = PlayerJumpSpeed
			p.grounded = false
		}
	}

	if !p.grounded {
		p.Velocity[1] = math.Max(p.Velocity[1]-PlayerGravity*dt, PlayerMaxFall)
	}
	p.Position = p.Position.Add(walk.Add(p.Velocity).Mul(dt))
	p.Velocity[0] *= PlayerFriction
	p.Velocity[2] *= PlayerFriction

	if floor := PlayerHeight / 2; p.Position.Y() <= floor {
		p.Position[1] = floor
		p.Velocity[1] = 0
		p.grounded = true
	}
	if p.arenaHalf > 0 {
		limit := p.arenaHalf - PlayerRadius
		p.Position[0] = Clamp(p.Position[0], -limit, limit)
		p.Position[2] = Clamp(p.Position[2], -limit, limit)
	}

	p.body.Pose = p.Pose()
}

// ToState converts to protocol state
func (p *Player) ToState() PlayerState {
	return PlayerState{
		ID:        p.ID,
		Name:      p.Name,
		Pos:       vec3State(p.Position),
		Yaw:       round3(p.Yaw),
		Pitch:     round3(p.Pitch),
		Grounded:  p.grounded,
		Locked:    p.locked,
		Isometric: p.Isometric,
	}
}
