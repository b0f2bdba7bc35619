package main

import (
	"log/slog"
	"math"
	"math/rand"

	"github.com/go-gl/mathgl/mgl64"
)

// regenSlack absorbs float drift when comparing accumulated tick time
// against the regeneration interval
const regenSlack = 1e-9

// minLaunchDistance keeps a blocked launch point off the eye
const minLaunchDistance = 0.05

// Inventory owns a bounded pool of needles arranged on an arc behind the
// holder. queue holds idle needles in slot order; returning holds needles
// travelling back, each reserving the slot after the queue.
type Inventory struct {
	cfg       InventoryConfig
	needleCfg NeedleConfig

	holder  Holder
	aim     AimSource
	scene   *Scene
	lock    MovementLock
	booster Booster
	sink    EventSink
	rng     *rand.Rand

	anchor    mgl64.Vec3
	slots     []mgl64.Vec3
	needles   []*Needle
	byBody    map[*Entity]*Needle
	queue     []*Needle
	returning []*Needle
	charging  *Needle
	canFire   bool
	candidate *Needle

	clock      float64
	regenClock float64
}

// InventoryOption configures optional collaborators
type InventoryOption func(*Inventory)

// WithMovementLock engages lock while a power fire charges
func WithMovementLock(lock MovementLock) InventoryOption {
	return func(inv *Inventory) { inv.lock = lock }
}

// WithBooster receives the pull impulse of airborne grabs
func WithBooster(b Booster) InventoryOption {
	return func(inv *Inventory) { inv.booster = b }
}

// WithEventSink records mechanic events
func WithEventSink(sink EventSink) InventoryOption {
	return func(inv *Inventory) {
		if sink != nil {
			inv.sink = sink
		}
	}
}

// WithRand seeds the charge shake of every needle the pool creates
func WithRand(rng *rand.Rand) InventoryOption {
	return func(inv *Inventory) {
		if rng != nil {
			inv.rng = rng
		}
	}
}

// NewInventory creates a full pool of needles sitting on their slots
func NewInventory(cfg InventoryConfig, needleCfg NeedleConfig, holder Holder, aim AimSource, scene *Scene, opts ...InventoryOption) *Inventory {
	inv := &Inventory{
		cfg:       cfg,
		needleCfg: needleCfg,
		holder:    holder,
		aim:       aim,
		scene:     scene,
		sink:      discardSink{},
		rng:       rand.New(rand.NewSource(1)),
		byBody:    make(map[*Entity]*Needle),
		canFire:   true,
	}
	for _, opt := range opts {
		opt(inv)
	}

	inv.UpdateAnchor()
	inv.slots = SlotPositions(inv.anchor, holder.Pose(), cfg.MaxCount, cfg.SpreadHorizontal, cfg.SpreadVertical)
	for i := 0; i < cfg.MaxCount; i++ {
		inv.queue = append(inv.queue, inv.manufacture(inv.slotPose(i)))
	}
	return inv
}

func (inv *Inventory) manufacture(pose Pose) *Needle {
	n := NewNeedle(inv.needleCfg, pose, inv.rng)
	n.sink = inv.sink
	n.clock = func() float64 { return inv.clock }
	n.pooled = true
	inv.needles = append(inv.needles, n)
	inv.byBody[n.body] = n
	inv.scene.Add(n.body)
	return n
}

func (inv *Inventory) slotPose(i int) Pose {
	if i >= len(inv.slots) {
		i = len(inv.slots) - 1
	}
	if i < 0 {
		return inv.holder.Pose()
	}
	return Pose{Position: inv.slots[i], Rotation: inv.holder.Pose().Rotation}
}

func (inv *Inventory) emit(e Event) {
	e.Time = inv.clock
	inv.sink.Record(e)
}

// UpdateAnchor recomputes the arc center behind the holder
func (inv *Inventory) UpdateAnchor() {
	inv.anchor = InventoryAnchor(inv.holder.Bounds(), inv.holder.Pose(), inv.cfg.DistanceFromHolder)
}

// UpdateSlots recomputes slot positions and eases idle needles toward them
func (inv *Inventory) UpdateSlots(dt float64) {
	inv.slots = SlotPositions(inv.anchor, inv.holder.Pose(), inv.cfg.MaxCount, inv.cfg.SpreadHorizontal, inv.cfg.SpreadVertical)
	t := inv.cfg.FollowSpeed * dt
	for i, n := range inv.queue {
		n.easeToward(inv.slotPose(i), t)
	}
}

// Update runs one tick without commands
func (inv *Inventory) Update(dt float64) {
	inv.Prepare(dt)
	inv.Advance(dt)
}

// Prepare opens a tick: clock, anchor, slots and idle easing. Commands
// issued between Prepare and Advance see this tick's slots.
func (inv *Inventory) Prepare(dt float64) {
	inv.clock += dt
	inv.scene.Sync()

	inv.UpdateAnchor()
	inv.UpdateSlots(dt)
}

// Advance closes a tick: needle procedures, retrieval completion, charge
// release, regeneration, then the grab candidate sweep.
func (inv *Inventory) Advance(dt float64) {
	for _, n := range inv.needles {
		if !n.pooled {
			n.Update(dt, inv.scene)
		}
	}

	kept := inv.returning[:0]
	for _, n := range inv.returning {
		if n.Idle() {
			n.pooled = true
			inv.queue = append(inv.queue, n)
			inv.emit(Event{Type: EvtReturned, NeedleID: n.ID, Position: n.pose.Position})
			continue
		}
		kept = append(kept, n)
	}
	inv.returning = kept
	for i, n := range inv.returning {
		n.Retarget(inv.slotPose(len(inv.queue) + i))
	}

	if inv.charging != nil && !inv.charging.Charging() {
		inv.charging = nil
		inv.canFire = true
		if inv.lock != nil {
			inv.lock.SetMovementLocked(false)
		}
	}

	inv.Regenerate()

	inv.scene.Sync()
	inv.updateCandidate()
}

// Fire launches the head of the pool. It is a no-op returning false when
// the pool is empty, a power fire is charging or the view forbids firing.
func (inv *Inventory) Fire() bool {
	n, ok := inv.pop("fire")
	if !ok {
		return false
	}
	if err := n.Fire(inv.launchPoint(), inv.aim.AimOrigin()); err != nil {
		inv.unpop(n)
		inv.reject("fire", err.Error())
		return false
	}
	return true
}

// PowerFire launches the head of the pool charged. Further fire commands
// and holder movement stay locked until the charge completes.
func (inv *Inventory) PowerFire() bool {
	n, ok := inv.pop("power_fire")
	if !ok {
		return false
	}
	if err := n.PowerFire(inv.launchPoint(), inv.aim.AimOrigin()); err != nil {
		inv.unpop(n)
		inv.reject("power_fire", err.Error())
		return false
	}
	inv.canFire = false
	inv.charging = n
	if inv.lock != nil {
		inv.lock.SetMovementLocked(true)
	}
	return true
}

// launchPoint is the aim source's launch point, pulled back in front of
// any geometry between the eye and it so the needle never mounts inside
// a wall.
func (inv *Inventory) launchPoint() mgl64.Vec3 {
	origin, launch := inv.aim.AimOrigin(), inv.aim.LaunchPoint()
	solid := func(e *Entity) bool { return e.Tag != TagSelf && e.Tag != TagProjectile }
	hit, ok := inv.scene.Raycast(origin, launch, solid)
	if !ok {
		return launch
	}
	clearance := inv.needleCfg.ForwardLength + inv.needleCfg.Radius
	dist := math.Max(hit.Distance-clearance, minLaunchDistance)
	return origin.Add(launch.Sub(origin).Normalize().Mul(dist))
}

func (inv *Inventory) pop(command string) (*Needle, bool) {
	switch {
	case len(inv.queue) == 0:
		inv.reject(command, "pool empty")
		return nil, false
	case !inv.canFire:
		inv.reject(command, "charging")
		return nil, false
	case !inv.aim.FiringAllowed():
		inv.reject(command, "firing not allowed")
		return nil, false
	}
	n := inv.queue[0]
	inv.queue = inv.queue[1:]
	n.pooled = false
	return n, true
}

// unpop puts a needle that failed to launch back at the head of the pool
func (inv *Inventory) unpop(n *Needle) {
	n.pooled = true
	inv.queue = append([]*Needle{n}, inv.queue...)
}

func (inv *Inventory) reject(command, reason string) {
	slog.Debug("needle command rejected", "command", command, "reason", reason)
	inv.emit(Event{Type: EvtRejected, Detail: command + ": " + reason})
}

// Grab retrieves the current candidate. Airborne holders are pulled toward
// the needle and a pullable surface is notified before the needle leaves.
func (inv *Inventory) Grab() bool {
	n := inv.candidate
	if n == nil || !n.Grabbable() || n.pooled {
		inv.reject("grab", "no candidate")
		return false
	}
	if len(inv.queue)+len(inv.returning) >= inv.cfg.MaxCount {
		inv.reject("grab", "pool full")
		return false
	}

	if inv.booster != nil && !inv.booster.Grounded() {
		holderY := inv.holder.Pose().Position.Y()
		if n.pose.Position.Y() >= holderY-inv.cfg.GrabBoostLeniency {
			inv.booster.Boost(WorldUp.Mul(inv.cfg.GrabUpwardPull))
		} else {
			inv.booster.Boost(WorldUp.Mul(-inv.cfg.GrabDownwardPull))
		}
	}

	surface := n.attachment.Entity
	if n.attachment.Kind == AttachSurface {
		if p, ok := surface.PullableCap(); ok {
			p.OnPulled()
			inv.emit(Event{Type: EvtPulled, NeedleID: n.ID, EntityID: surface.ID, Position: n.pose.Position})
		}
	}

	if err := n.Retrieve(inv.slotPose(len(inv.queue) + len(inv.returning))); err != nil {
		inv.reject("grab", err.Error())
		return false
	}
	inv.returning = append(inv.returning, n)
	inv.candidate = nil
	return true
}

// Regenerate adds one needle per interval while the pool has room. The
// clock is held while the pool is full, so a freshly opened slot waits a
// whole interval.
func (inv *Inventory) Regenerate() {
	interval := inv.cfg.RegenInterval
	if interval <= 0 {
		return
	}
	if len(inv.queue)+len(inv.returning) >= inv.cfg.MaxCount {
		inv.regenClock = inv.clock
		return
	}
	if inv.clock-inv.regenClock+regenSlack < interval {
		return
	}
	inv.regenClock += interval

	n := inv.manufacture(inv.slotPose(len(inv.queue)))
	inv.queue = append(inv.queue, n)
	slog.Debug("needle regenerated", "needle", n.ID, "count", len(inv.queue))
	inv.emit(Event{Type: EvtRegenerated, NeedleID: n.ID, Position: n.pose.Position})
}

// updateCandidate sweeps along the aim for the nearest grabbable needle
func (inv *Inventory) updateCandidate() {
	inv.candidate = nil
	filter := func(e *Entity) bool {
		n, ok := inv.byBody[e]
		return ok && !n.pooled && n.Grabbable()
	}
	hit, ok := inv.scene.SphereSweep(inv.aim.AimOrigin(), inv.aim.AimDirection(), inv.cfg.GrabRadius, inv.cfg.GrabDistance, filter)
	if ok {
		inv.candidate = inv.byBody[hit.Entity]
	}
}

// Count is the number of idle needles ready to fire
func (inv *Inventory) Count() int { return len(inv.queue) }

// Returning is the number of needles travelling back to the pool
func (inv *Inventory) Returning() int { return len(inv.returning) }

// CanFire reports whether no power fire holds the fire lock
func (inv *Inventory) CanFire() bool { return inv.canFire }

// Candidate is the needle a Grab would retrieve, if any
func (inv *Inventory) Candidate() *Needle { return inv.candidate }

// Needles returns every needle the pool has created
func (inv *Inventory) Needles() []*Needle { return inv.needles }

func (inv *Inventory) Anchor() mgl64.Vec3 { return inv.anchor }

// Slots returns the current slot positions
func (inv *Inventory) Slots() []mgl64.Vec3 {
	out := make([]mgl64.Vec3, len(inv.slots))
	copy(out, inv.slots)
	return out
}

// Positions returns the idle needles' positions in pool order
func (inv *Inventory) Positions() []mgl64.Vec3 {
	out := make([]mgl64.Vec3, len(inv.queue))
	for i, n := range inv.queue {
		out[i] = n.pose.Position
	}
	return out
}

// NeedleView is a read-only copy of one needle
type NeedleView struct {
	ID        string
	State     NeedleState
	Pose      Pose
	Pooled    bool
	Grabbable bool
	Attached  string // entity ID, empty when detached or stuck in the world
}

// InventoryView is a read-only copy of the pool
type InventoryView struct {
	Count     int
	Max       int
	CanFire   bool
	Candidate string
	Anchor    mgl64.Vec3
	Slots     []mgl64.Vec3
	Needles   []NeedleView
}

// Snapshot copies the pool for rendering or transport
func (inv *Inventory) Snapshot() InventoryView {
	v := InventoryView{
		Count:   len(inv.queue),
		Max:     inv.cfg.MaxCount,
		CanFire: inv.canFire,
		Anchor:  inv.anchor,
		Slots:   inv.Slots(),
		Needles: make([]NeedleView, 0, len(inv.needles)),
	}
	if inv.candidate != nil {
		v.Candidate = inv.candidate.ID
	}
	for _, n := range inv.needles {
		nv := NeedleView{
			ID:        n.ID,
			State:     n.state,
			Pose:      n.pose,
			Pooled:    n.pooled,
			Grabbable: n.grabbable,
		}
		if n.attachment.Entity != nil {
			nv.Attached = n.attachment.Entity.ID
		}
		v.Needles = append(v.Needles, nv)
	}
	return v
}
