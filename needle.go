package main

import (
	"errors"
	"fmt"
	"log/slog"
	"math"
	"math/rand"

	"github.com/go-gl/mathgl/mgl64"
)

// NeedleState is the externally visible state of a needle
type NeedleState uint8

const (
	StateLoaded NeedleState = iota
	StateCharging
	StateFiring
	StatePowerFiring
	StateStuck
	StatePinning
)

func (s NeedleState) String() string {
	switch s {
	case StateLoaded:
		return "loaded"
	case StateCharging:
		return "charging"
	case StateFiring:
		return "firing"
	case StatePowerFiring:
		return "power_firing"
	case StateStuck:
		return "stuck"
	case StatePinning:
		return "pinning"
	}
	return "unknown"
}

// needleTransitions lists every legal state change. Mounting happens
// while the needle is still Loaded.
var needleTransitions = map[NeedleState][]NeedleState{
	StateLoaded:      {StateFiring, StateCharging},
	StateCharging:    {StatePowerFiring},
	StateFiring:      {StateStuck},
	StatePowerFiring: {StateStuck, StatePinning},
	StateStuck:       {StateLoaded},
	StatePinning:     {StateLoaded},
}

func canTransition(from, to NeedleState) bool {
	for _, s := range needleTransitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

var (
	ErrNeedleBusy        = errors.New("needle is busy")
	ErrNotAttached       = errors.New("needle is not attached")
	ErrIllegalTransition = errors.New("illegal needle state transition")
)

// needlePhase is the multi-tick procedure a needle is currently running
type needlePhase uint8

const (
	phaseIdle needlePhase = iota
	phaseMounting
	phaseLaunchDelay
	phaseCharging
	phaseFlying
	phaseAttached
	phaseRetrieving
)

// AttachmentKind says which way an attachment points
type AttachmentKind uint8

const (
	AttachNone    AttachmentKind = iota
	AttachSurface                // needle rides on Entity (nil Entity = world)
	AttachPinned                 // Entity rides on the needle
)

// Attachment is a re-assignable link to another entity plus the relative
// pose captured when it was made.
type Attachment struct {
	Kind   AttachmentKind
	Entity *Entity
	Local  Pose
}

// Needle is one throwable projectile
type Needle struct {
	ID string

	cfg        NeedleConfig
	state      NeedleState
	phase      needlePhase
	phaseTime  float64
	pose       Pose
	prevFront  mgl64.Vec3
	launch     mgl64.Vec3
	powered    bool
	attachment Attachment
	grabbable  bool
	returnTo   Pose

	shakeDir  mgl64.Vec3
	shakeHalf int

	body   *Entity
	rng    *rand.Rand
	sink   EventSink
	clock  func() float64
	pooled bool
}

// NewNeedle creates a Loaded needle at pose with its capsule collider
func NewNeedle(cfg NeedleConfig, pose Pose, rng *rand.Rand) *Needle {
	if rng == nil {
		rng = rand.New(rand.NewSource(1))
	}
	n := &Needle{
		cfg:   cfg,
		state: StateLoaded,
		pose:  pose,
		rng:   rng,
		sink:  discardSink{},
		clock: func() float64 { return 0 },
	}
	n.body = NewEntity("needle", TagProjectile, pose, Shape{
		Kind:       ShapeCapsule,
		Radius:     cfg.Radius,
		HalfLength: cfg.ForwardLength,
	})
	n.ID = n.body.ID
	n.prevFront = n.Front()
	return n
}

func (n *Needle) State() NeedleState     { return n.state }
func (n *Needle) Pose() Pose             { return n.pose }
func (n *Needle) Grabbable() bool        { return n.grabbable }
func (n *Needle) Attachment() Attachment { return n.attachment }
func (n *Needle) Body() *Entity          { return n.body }

// Front is the tip sample point
func (n *Needle) Front() mgl64.Vec3 {
	return n.pose.Position.Add(n.pose.Forward().Mul(n.cfg.ForwardLength))
}

// Back is the tail sample point
func (n *Needle) Back() mgl64.Vec3 {
	return n.pose.Position.Sub(n.pose.Forward().Mul(n.cfg.ForwardLength))
}

// Idle reports whether the needle runs no procedure and accepts commands
func (n *Needle) Idle() bool { return n.phase == phaseIdle }

// Retrieving reports whether the needle is travelling back to the pool
func (n *Needle) Retrieving() bool { return n.phase == phaseRetrieving }

// Charging reports whether a power fire has not yet finished charging
func (n *Needle) Charging() bool {
	return n.phase == phaseCharging || (n.powered && n.phase == phaseMounting)
}

// InFlight reports whether the needle is moving toward a target
func (n *Needle) InFlight() bool {
	switch n.phase {
	case phaseMounting, phaseLaunchDelay, phaseCharging, phaseFlying:
		return true
	}
	return false
}

func (n *Needle) setState(to NeedleState) error {
	from := n.state
	if !canTransition(from, to) {
		return fmt.Errorf("%w: %s -> %s", ErrIllegalTransition, from, to)
	}
	n.state = to
	slog.Debug("needle transition", "needle", n.ID, "from", from.String(), "to", to.String())
	n.emit(Event{Type: EvtTransition, From: from.String(), To: to.String()})
	return nil
}

func (n *Needle) emit(e Event) {
	e.NeedleID = n.ID
	e.Position = n.pose.Position
	e.Time = n.clock()
	n.sink.Record(e)
}

// setPose moves the needle and its collider together
func (n *Needle) setPose(p Pose) {
	n.pose = p
	n.body.Pose = p
}

// Fire mounts the needle at launch, facing away from aimOrigin, then
// flies it straight ahead.
func (n *Needle) Fire(launch, aimOrigin mgl64.Vec3) error {
	return n.begin(launch, aimOrigin, false)
}

// PowerFire mounts the needle at launch, charges it, then flies it. A
// power-fired needle pins pinnable targets.
func (n *Needle) PowerFire(launch, aimOrigin mgl64.Vec3) error {
	return n.begin(launch, aimOrigin, true)
}

func (n *Needle) begin(launch, aimOrigin mgl64.Vec3, powered bool) error {
	if n.state != StateLoaded || n.phase != phaseIdle {
		return fmt.Errorf("fire in state %s: %w", n.state, ErrNeedleBusy)
	}
	n.launch = launch
	n.powered = powered
	n.phase = phaseMounting
	n.phaseTime = 0
	rot := n.pose.Rotation
	if dir := launch.Sub(aimOrigin); dir.Dot(dir) > geomEpsilon {
		rot = LookRotation(dir, WorldUp)
	}
	n.setPose(Pose{Position: n.pose.Position, Rotation: rot})
	return nil
}

// Retrieve detaches the needle and sends it back toward target. The
// trip always ends within MaxRetrievalTime.
func (n *Needle) Retrieve(target Pose) error {
	if n.phase != phaseAttached || (n.state != StateStuck && n.state != StatePinning) {
		return fmt.Errorf("retrieve in state %s: %w", n.state, ErrNotAttached)
	}
	if n.attachment.Kind == AttachPinned {
		if p, ok := n.attachment.Entity.PinnableCap(); ok {
			p.OnUnpinned()
		}
		n.emit(Event{Type: EvtUnpinned, EntityID: n.attachment.Entity.ID})
	}
	if err := n.setState(StateLoaded); err != nil {
		return err
	}
	n.attachment = Attachment{}
	n.grabbable = false
	n.powered = false
	n.returnTo = target
	n.phase = phaseRetrieving
	n.phaseTime = 0
	n.emit(Event{Type: EvtRetrieving})
	return nil
}

// Retarget moves the retrieval destination, e.g. when the holder walks
func (n *Needle) Retarget(target Pose) {
	if n.phase == phaseRetrieving {
		n.returnTo = target
	}
}

// easeToward pulls an idle needle toward its slot
func (n *Needle) easeToward(target Pose, t float64) {
	if n.phase != phaseIdle {
		return
	}
	n.setPose(Pose{
		Position: lerpVec3(n.pose.Position, target.Position, t),
		Rotation: nlerpQuat(n.pose.Rotation, target.Rotation, t),
	})
}

// Update advances the current procedure by one tick
func (n *Needle) Update(dt float64, scene *Scene) {
	switch n.phase {
	case phaseMounting:
		n.mountStep(dt)
	case phaseLaunchDelay:
		n.phaseTime += dt
		if n.phaseTime >= n.cfg.LaunchDelay {
			n.startFlight(StateFiring)
		}
	case phaseCharging:
		n.chargeStep(dt)
	case phaseFlying:
		n.flyStep(dt, scene)
	case phaseAttached:
		n.follow()
	case phaseRetrieving:
		n.retrieveStep(dt)
	}
}

func (n *Needle) mountStep(dt float64) {
	n.phaseTime += dt
	pos := lerpVec3(n.pose.Position, n.launch, n.cfg.MountSpeed*dt)
	arrived := pos.Sub(n.launch).Len() <= n.cfg.MountTolerance
	if !arrived && n.phaseTime < n.cfg.MaxMountTime {
		n.setPose(Pose{Position: pos, Rotation: n.pose.Rotation})
		return
	}
	n.setPose(Pose{Position: n.launch, Rotation: n.pose.Rotation})
	n.phaseTime = 0

	switch {
	case n.powered:
		if err := n.setState(StateCharging); err != nil {
			slog.Error("needle charge", "needle", n.ID, "error", err)
			return
		}
		n.phase = phaseCharging
		n.shakeHalf = -1
	case n.cfg.LaunchDelay > 0:
		n.phase = phaseLaunchDelay
	default:
		n.startFlight(StateFiring)
	}
}

func (n *Needle) chargeStep(dt float64) {
	n.phaseTime += dt
	if n.phaseTime >= n.cfg.ChargeTime {
		n.setPose(Pose{Position: n.launch, Rotation: n.pose.Rotation})
		n.startFlight(StatePowerFiring)
		return
	}
	n.setPose(Pose{Position: n.launch.Add(n.shakeOffset()), Rotation: n.pose.Rotation})
}

// shakeOffset jitters around the launch point: a sine wave along a random
// direction that is redrawn every half period.
func (n *Needle) shakeOffset() mgl64.Vec3 {
	f := n.cfg.ShakeFrequency
	if f <= 0 || n.cfg.ShakeAmplitude <= 0 {
		return mgl64.Vec3{}
	}
	half := int(n.phaseTime * 2 * f)
	if half != n.shakeHalf {
		n.shakeHalf = half
		n.shakeDir = randomUnit(n.rng)
	}
	return n.shakeDir.Mul(math.Sin(2*math.Pi*f*n.phaseTime) * n.cfg.ShakeAmplitude)
}

func randomUnit(rng *rand.Rand) mgl64.Vec3 {
	for {
		v := mgl64.Vec3{rng.NormFloat64(), rng.NormFloat64(), rng.NormFloat64()}
		if l := v.Len(); l > geomEpsilon {
			return v.Mul(1 / l)
		}
	}
}

func (n *Needle) startFlight(state NeedleState) {
	if err := n.setState(state); err != nil {
		slog.Error("needle launch", "needle", n.ID, "error", err)
		return
	}
	n.phase = phaseFlying
	n.phaseTime = 0
	n.prevFront = n.Front()
	if state == StatePowerFiring {
		n.emit(Event{Type: EvtPowerFired})
	} else {
		n.emit(Event{Type: EvtFired})
	}
}

// flyStep casts the segment the needle is about to cover before moving.
func (n *Needle) flyStep(dt float64, scene *Scene) {
	fwd := n.pose.Forward()
	next := n.pose.Position.Add(fwd.Mul(n.cfg.FlightSpeed * dt))
	front := next.Add(fwd.Mul(n.cfg.ForwardLength))
	back := next.Sub(fwd.Mul(n.cfg.ForwardLength))

	if hit, ok := n.castHull(scene, front, back, n.prevFront); ok {
		n.resolveHit(hit)
		return
	}

	if b, bounded := scene.Bounds(); bounded {
		if exit, out := b.segmentExit(n.prevFront, front); out {
			n.setPose(Pose{Position: exit.Sub(fwd.Mul(n.cfg.ForwardLength)), Rotation: n.pose.Rotation})
			n.stick(n.pose.Position, nil)
			return
		}
	}

	n.setPose(Pose{Position: next, Rotation: n.pose.Rotation})
	n.prevFront = front
}

func (n *Needle) hitFilter(e *Entity) bool {
	return e != n.body && e.Tag != TagSelf && e.Tag != TagProjectile
}

// castHull casts the needle's own length (front to back) and the gap it
// travelled since the last tick (back to previous front). Among everything
// struck, the obstacle reached first along the travel direction wins.
func (n *Needle) castHull(scene *Scene, front, back, prevFront mgl64.Vec3) (Hit, bool) {
	struck := scene.SegmentHits(front, back, n.hitFilter)
	struck = append(struck, scene.SegmentHits(back, prevFront, n.hitFilter)...)
	if len(struck) == 0 {
		return Hit{}, false
	}

	fwd := n.pose.Forward()
	var best Hit
	bestTravel := math.Inf(1)
	for _, h := range struck {
		entry := h
		if e, ok := h.Entity.IntersectSegment(prevFront, front, 0); ok {
			entry = e
		}
		if travel := entry.Point.Sub(prevFront).Dot(fwd); travel < bestTravel {
			bestTravel = travel
			best = entry
		}
	}
	return best, true
}

func (n *Needle) resolveHit(hit Hit) {
	if n.state == StatePowerFiring {
		if p, ok := hit.Entity.PinnableCap(); ok && p.Pinnable() {
			n.pin(hit.Point, hit.Entity, p)
			return
		}
	}
	n.stick(hit.Point, hit.Entity)
}

// stick embeds the needle at point and attaches it to surface. Scaled
// surfaces hand the attachment to their parent so the needle never
// inherits the scale; a nil surface attaches to the world.
func (n *Needle) stick(point mgl64.Vec3, surface *Entity) {
	if err := n.setState(StateStuck); err != nil {
		slog.Error("needle stick", "needle", n.ID, "error", err)
		return
	}
	n.setPose(Pose{Position: point, Rotation: n.pose.Rotation})

	anchor := surface
	if anchor != nil && !anchor.UnitScale() {
		anchor = anchor.Parent
	}
	n.attachment = Attachment{Kind: AttachSurface, Entity: anchor}
	entityID := ""
	if anchor != nil {
		n.attachment.Local = anchor.Pose.ToLocal(n.pose)
		entityID = anchor.ID
	}
	n.grabbable = true
	n.phase = phaseAttached
	slog.Debug("needle stuck", "needle", n.ID, "surface", entityID)
	n.emit(Event{Type: EvtStuck, EntityID: entityID})
}

// pin anchors target to the needle: the target snaps to the needle's
// origin, faces against its forward axis and stops moving on its own.
func (n *Needle) pin(point mgl64.Vec3, target *Entity, p Pinnable) {
	if err := n.setState(StatePinning); err != nil {
		slog.Error("needle pin", "needle", n.ID, "error", err)
		return
	}
	n.setPose(Pose{Position: point, Rotation: n.pose.Rotation})

	local := Pose{
		Position: mgl64.Vec3{},
		Rotation: n.pose.Rotation.Inverse().Mul(LookRotation(n.pose.Forward().Mul(-1), WorldUp)).Normalize(),
	}
	n.attachment = Attachment{Kind: AttachPinned, Entity: target, Local: local}
	target.Pose = n.pose.FromLocal(local)
	p.OnPinned()

	n.grabbable = true
	n.phase = phaseAttached
	slog.Debug("needle pinned target", "needle", n.ID, "target", target.ID)
	n.emit(Event{Type: EvtPinned, EntityID: target.ID})
}

// follow keeps an attachment consistent for this tick
func (n *Needle) follow() {
	a := n.attachment
	if a.Entity == nil {
		return
	}
	switch a.Kind {
	case AttachSurface:
		n.setPose(a.Entity.Pose.FromLocal(a.Local))
	case AttachPinned:
		a.Entity.Pose = n.pose.FromLocal(a.Local)
	}
}

func (n *Needle) retrieveStep(dt float64) {
	n.phaseTime += dt
	t := n.cfg.RetrievalSpeed * dt
	n.setPose(Pose{
		Position: lerpVec3(n.pose.Position, n.returnTo.Position, t),
		Rotation: nlerpQuat(n.pose.Rotation, n.returnTo.Rotation, t),
	})
	near := n.pose.Position.Sub(n.returnTo.Position).Len() <= n.cfg.RetrievalTolerance
	if near || n.phaseTime >= n.cfg.MaxRetrievalTime {
		if !near {
			slog.Debug("needle retrieval timed out", "needle", n.ID, "elapsed", n.phaseTime)
		}
		n.phase = phaseIdle
		n.phaseTime = 0
		n.prevFront = n.Front()
	}
}
