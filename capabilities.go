package main

import "github.com/go-gl/mathgl/mgl64"

// Pinnable is exposed by targets a power-fired needle may pin. While
// pinned the target must stop moving on its own.
type Pinnable interface {
	Pinnable() bool
	OnPinned()
	OnUnpinned()
}

// Pullable is exposed by surfaces that react when a needle stuck in them
// is retrieved.
type Pullable interface {
	OnPulled()
}

// Holder is the body the inventory arranges its needles around
type Holder interface {
	Pose() Pose
	Bounds() Bounds
}

// AimSource supplies where needles launch from and whether the current
// view allows firing.
type AimSource interface {
	AimOrigin() mgl64.Vec3
	AimDirection() mgl64.Vec3
	LaunchPoint() mgl64.Vec3
	FiringAllowed() bool
}

// MovementLock suspends holder movement and look while engaged
type MovementLock interface {
	SetMovementLocked(locked bool)
}

// Booster receives the pull impulse of an airborne grab
type Booster interface {
	Grounded() bool
	Boost(impulse mgl64.Vec3)
}
