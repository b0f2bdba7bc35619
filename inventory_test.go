package main

import (
	"math/rand"
	"strings"
	"testing"

	"github.com/go-gl/mathgl/mgl64"
	"github.com/pixil98/go-testutil"
)

type inventoryRig struct {
	scene  *Scene
	player *Player
	inv    *Inventory
	log    *eventLog
}

func newInventoryRig(t *testing.T, mutate func(*Config)) *inventoryRig {
	t.Helper()
	cfg := DefaultConfig()
	cfg.Inventory.RegenInterval = 0
	if mutate != nil {
		mutate(&cfg)
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("invalid test config: %v", err)
	}

	r := &inventoryRig{
		scene: NewScene(),
		log:   &eventLog{},
	}
	r.player = NewPlayer("p1", "tester", mgl64.Vec3{}, cfg.Sandbox.LaunchDistance, 0)
	r.scene.Add(r.player.Body())
	r.inv = NewInventory(cfg.Inventory, cfg.Needle, r.player, r.player, r.scene,
		WithMovementLock(r.player),
		WithBooster(r.player),
		WithEventSink(r.log),
		WithRand(rand.New(rand.NewSource(3))),
	)
	return r
}

func (r *inventoryRig) tick(n int) {
	for i := 0; i < n; i++ {
		r.inv.Update(testDT)
	}
}

// stickOne fires the head of the pool and ticks until it lands
func (r *inventoryRig) stickOne(t *testing.T) *Needle {
	t.Helper()
	if len(r.inv.queue) == 0 {
		t.Fatal("pool is empty")
	}
	n := r.inv.queue[0]
	if !r.inv.Fire() {
		t.Fatal("fire rejected")
	}
	for i := 0; i < 300; i++ {
		r.inv.Update(testDT)
		if n.State() == StateStuck {
			return n
		}
	}
	t.Fatalf("needle never landed, state %s", n.State())
	return nil
}

func (r *inventoryRig) rejections() []string {
	var out []string
	for _, e := range r.log.events {
		if e.Type == EvtRejected {
			out = append(out, e.Detail)
		}
	}
	return out
}

func TestInventoryStartsFull(t *testing.T) {
	r := newInventoryRig(t, nil)

	testutil.AssertEqual(t, "count", r.inv.Count(), 5)
	testutil.AssertEqual(t, "needles", len(r.inv.Needles()), 5)
	testutil.AssertEqual(t, "can fire", r.inv.CanFire(), true)

	slots := r.inv.Slots()
	pos := r.inv.Positions()
	for i := range slots {
		if !vecNear(pos[i], slots[i]) {
			t.Errorf("needle %d: expected at slot %v, got %v", i, slots[i], pos[i])
		}
	}
	if !vecNear(r.inv.Anchor(), mgl64.Vec3{0, 0.9 + PlayerHeight/4, -0.6}) {
		t.Errorf("unexpected anchor %v", r.inv.Anchor())
	}
}

func TestInventorySlotsFollowHolder(t *testing.T) {
	r := newInventoryRig(t, nil)
	r.player.Position = r.player.Position.Add(mgl64.Vec3{10, 0, 0})

	r.tick(120)
	slots := r.inv.Slots()
	pos := r.inv.Positions()
	for i := range slots {
		if slots[i].X() < 9 {
			t.Fatalf("slot %d did not move with the holder: %v", i, slots[i])
		}
		if d := pos[i].Sub(slots[i]).Len(); d > 0.01 {
			t.Errorf("needle %d lags its slot by %f", i, d)
		}
	}
}

func TestInventoryFireDecrementsCount(t *testing.T) {
	r := newInventoryRig(t, nil)

	if !r.inv.Fire() {
		t.Fatal("expected fire to succeed")
	}
	testutil.AssertEqual(t, "count", r.inv.Count(), 4)

	r.tick(1)
	fired := 0
	for _, n := range r.inv.Needles() {
		if !n.pooled {
			fired++
			if !n.InFlight() {
				t.Errorf("expected fired needle in flight, phase %d", n.phase)
			}
		}
	}
	testutil.AssertEqual(t, "fired", fired, 1)
}

func TestInventoryFireEmptyPool(t *testing.T) {
	r := newInventoryRig(t, func(c *Config) { c.Inventory.MaxCount = 1 })

	if !r.inv.Fire() {
		t.Fatal("expected first fire to succeed")
	}
	if r.inv.Fire() {
		t.Error("expected fire on an empty pool to be a no-op")
	}
	if r.inv.PowerFire() {
		t.Error("expected power fire on an empty pool to be a no-op")
	}
	testutil.AssertEqual(t, "count", r.inv.Count(), 0)
	rej := r.rejections()
	if len(rej) != 2 || rej[0] != "fire: pool empty" {
		t.Errorf("unexpected rejections %v", rej)
	}
}

func TestInventoryFireBlockedInIsometricView(t *testing.T) {
	r := newInventoryRig(t, nil)
	r.player.Isometric = true

	if r.inv.Fire() || r.inv.PowerFire() {
		t.Error("expected firing to be disabled in isometric view")
	}
	testutil.AssertEqual(t, "count", r.inv.Count(), 5)

	r.player.Isometric = false
	if !r.inv.Fire() {
		t.Error("expected fire once the view allows it")
	}
}

func TestInventoryPowerFireLocksUntilCharged(t *testing.T) {
	r := newInventoryRig(t, nil)
	yaw := r.player.Yaw

	if !r.inv.PowerFire() {
		t.Fatal("expected power fire to succeed")
	}
	testutil.AssertEqual(t, "can fire", r.inv.CanFire(), false)
	testutil.AssertEqual(t, "movement locked", r.player.MovementLocked(), true)
	if r.inv.Fire() || r.inv.PowerFire() {
		t.Error("expected fire commands to be rejected while charging")
	}
	testutil.AssertEqual(t, "count", r.inv.Count(), 4)

	r.player.Look(yaw+1, 0.5)
	testutil.AssertEqual(t, "yaw while locked", r.player.Yaw, yaw)

	charged := false
	for i := 0; i < 300; i++ {
		r.inv.Update(testDT)
		if r.inv.CanFire() {
			charged = true
			break
		}
		if !r.player.MovementLocked() {
			t.Fatal("movement unlocked before the charge finished")
		}
	}
	if !charged {
		t.Fatal("charge never completed")
	}
	testutil.AssertEqual(t, "movement locked", r.player.MovementLocked(), false)

	powered := 0
	for _, n := range r.inv.Needles() {
		if n.State() == StatePowerFiring {
			powered++
		}
	}
	testutil.AssertEqual(t, "power firing needles", powered, 1)

	if !r.inv.Fire() {
		t.Error("expected fire to work after the charge")
	}
}

func TestInventoryRegeneratesOnePerInterval(t *testing.T) {
	r := newInventoryRig(t, func(c *Config) {
		c.Inventory.MaxCount = 3
		c.Inventory.RegenInterval = 1
	})
	for i := 0; i < 3; i++ {
		if !r.inv.Fire() {
			t.Fatalf("fire %d rejected", i)
		}
	}
	testutil.AssertEqual(t, "count after firing", r.inv.Count(), 0)

	steps := []struct {
		ticks int
		want  int
	}{
		{3, 0},
		{1, 1},
		{4, 2},
		{4, 3},
		{8, 3},
	}
	for i, s := range steps {
		for j := 0; j < s.ticks; j++ {
			r.inv.Update(0.25)
			if r.inv.Count()+r.inv.Returning() > 3 {
				t.Fatal("pool exceeded its capacity")
			}
		}
		if got := r.inv.Count(); got != s.want {
			t.Errorf("step %d: expected %d needles, got %d", i, s.want, got)
		}
	}
	testutil.AssertEqual(t, "regenerated events", r.log.count(EvtRegenerated), 3)
}

func TestInventoryRegenClockHeldWhileFull(t *testing.T) {
	r := newInventoryRig(t, func(c *Config) {
		c.Inventory.MaxCount = 2
		c.Inventory.RegenInterval = 1
	})
	for i := 0; i < 10; i++ {
		r.inv.Update(0.25)
	}
	if !r.inv.Fire() {
		t.Fatal("fire rejected")
	}

	// A full interval must pass after the slot opens
	for i := 0; i < 3; i++ {
		r.inv.Update(0.25)
	}
	testutil.AssertEqual(t, "count before interval", r.inv.Count(), 1)
	r.inv.Update(0.25)
	testutil.AssertEqual(t, "count after interval", r.inv.Count(), 2)
}

func TestInventoryGrabReturnsNeedle(t *testing.T) {
	r := newInventoryRig(t, nil)
	wall := NewEntity("wall", TagSurface, NewPose(mgl64.Vec3{0, 2, 10}), Shape{Kind: ShapeBox, HalfExtents: mgl64.Vec3{5, 2, 0.25}})
	r.scene.Add(wall)

	n := r.stickOne(t)
	testutil.AssertEqual(t, "count", r.inv.Count(), 4)
	if n.Attachment().Entity != wall {
		t.Fatal("expected needle in the wall")
	}
	if r.inv.Candidate() != n {
		t.Fatal("expected the stuck needle to be the grab candidate")
	}
	testutil.AssertEqual(t, "snapshot candidate", r.inv.Snapshot().Candidate, n.ID)

	if !r.inv.Grab() {
		t.Fatal("grab rejected")
	}
	testutil.AssertEqual(t, "returning", r.inv.Returning(), 1)
	testutil.AssertEqual(t, "grabbable", n.Grabbable(), false)
	if r.inv.Candidate() != nil {
		t.Error("expected candidate cleared after grab")
	}
	if r.inv.Grab() {
		t.Error("expected second grab without a candidate to fail")
	}
	// Grounded holders are not pulled
	testutil.AssertEqual(t, "velocity", r.player.Velocity, mgl64.Vec3{})

	limit := int(DefaultConfig().Needle.MaxRetrievalTime/testDT) + 1
	for i := 0; i < limit && r.inv.Returning() > 0; i++ {
		r.inv.Update(testDT)
	}
	testutil.AssertEqual(t, "returning", r.inv.Returning(), 0)
	testutil.AssertEqual(t, "count", r.inv.Count(), 5)
	testutil.AssertEqual(t, "returned events", r.log.count(EvtReturned), 1)
	if !n.pooled || !n.Idle() {
		t.Error("expected needle back in the pool")
	}
}

func TestInventoryRetrievalFollowsMovingHolder(t *testing.T) {
	r := newInventoryRig(t, nil)
	r.scene.Add(NewEntity("wall", TagSurface, NewPose(mgl64.Vec3{0, 2, 10}), Shape{Kind: ShapeBox, HalfExtents: mgl64.Vec3{5, 2, 0.25}}))

	n := r.stickOne(t)
	if !r.inv.Grab() {
		t.Fatal("grab rejected")
	}
	r.player.Position = r.player.Position.Add(mgl64.Vec3{10, 0, 0})

	limit := int(DefaultConfig().Needle.MaxRetrievalTime/testDT) + 1
	for i := 0; i < limit && r.inv.Returning() > 0; i++ {
		r.inv.Update(testDT)
	}
	testutil.AssertEqual(t, "returning", r.inv.Returning(), 0)
	testutil.AssertEqual(t, "count", r.inv.Count(), 5)

	slot := r.inv.Slots()[4]
	if d := n.Pose().Position.Sub(slot).Len(); d > DefaultConfig().Needle.RetrievalTolerance+0.01 {
		t.Errorf("expected needle at the moved slot %v, got %v", slot, n.Pose().Position)
	}
	if n.Pose().Position.X() < 7 {
		t.Errorf("needle returned to the old slot: %v", n.Pose().Position)
	}
}

func TestInventoryGrabUsesCurrentSlots(t *testing.T) {
	r := newInventoryRig(t, nil)
	r.scene.Add(NewEntity("wall", TagSurface, NewPose(mgl64.Vec3{0, 2, 10}), Shape{Kind: ShapeBox, HalfExtents: mgl64.Vec3{5, 2, 0.25}}))

	n := r.stickOne(t)
	r.player.Position = r.player.Position.Add(mgl64.Vec3{3, 0, 0})
	r.inv.Prepare(testDT)
	if !r.inv.Grab() {
		t.Fatal("grab rejected")
	}
	if !vecNear(n.returnTo.Position, r.inv.Slots()[4]) {
		t.Errorf("expected target %v, got %v", r.inv.Slots()[4], n.returnTo.Position)
	}
	if n.returnTo.Position.X() < 2 {
		t.Errorf("grab targeted last tick's slot: %v", n.returnTo.Position)
	}
	r.inv.Advance(testDT)
	testutil.AssertEqual(t, "returning", r.inv.Returning(), 1)
}

func TestInventoryLaunchPointClearsWalls(t *testing.T) {
	r := newInventoryRig(t, nil)
	r.scene.Add(wallEntity("close", 1.5, 0.1))
	r.tick(1)

	n := r.inv.queue[0]
	if !r.inv.Fire() {
		t.Fatal("fire rejected")
	}
	cfg := DefaultConfig().Needle
	want := r.player.AimOrigin().Add(mgl64.Vec3{0, 0, 1.4 - cfg.ForwardLength - cfg.Radius})
	if !vecNear(n.launch, want) {
		t.Errorf("expected launch pulled back to %v, got %v", want, n.launch)
	}

	open := newInventoryRig(t, nil)
	open.tick(1)
	m := open.inv.queue[0]
	if !open.inv.Fire() {
		t.Fatal("fire rejected")
	}
	if !vecNear(m.launch, open.player.LaunchPoint()) {
		t.Errorf("expected full launch distance %v, got %v", open.player.LaunchPoint(), m.launch)
	}
}

func TestInventoryGrabPullsWindowAndBoostsUp(t *testing.T) {
	r := newInventoryRig(t, nil)
	w := NewWindow(NewPose(mgl64.Vec3{0, 1.6, 10}))
	for _, e := range w.Entities() {
		r.scene.Add(e)
	}

	n := r.stickOne(t)
	if n.Attachment().Entity != w.Frame() {
		t.Fatal("expected needle attached to the window frame")
	}

	r.player.Boost(mgl64.Vec3{0, 1, 0})
	if !r.inv.Grab() {
		t.Fatal("grab rejected")
	}
	cfg := DefaultConfig().Inventory
	if !vecNear(r.player.Velocity, mgl64.Vec3{0, 1 + cfg.GrabUpwardPull, 0}) {
		t.Errorf("expected upward pull, got velocity %v", r.player.Velocity)
	}
	testutil.AssertEqual(t, "window broken", w.Broken, true)
	testutil.AssertEqual(t, "pane disabled", w.Pane().Disabled, true)
	testutil.AssertEqual(t, "pulled events", r.log.count(EvtPulled), 1)
}

func TestInventoryGrabBoostsDownFromAbove(t *testing.T) {
	r := newInventoryRig(t, nil)
	r.scene.Add(wallEntity("wall", 10, 0.25))

	r.stickOne(t)
	if r.inv.Candidate() == nil {
		t.Fatal("expected a grab candidate")
	}

	// Holder is now high above the needle and airborne
	r.player.Position[1] = 10
	r.player.Boost(mgl64.Vec3{0, 1, 0})
	r.player.Velocity = mgl64.Vec3{}

	if !r.inv.Grab() {
		t.Fatal("grab rejected")
	}
	cfg := DefaultConfig().Inventory
	if !vecNear(r.player.Velocity, mgl64.Vec3{0, -cfg.GrabDownwardPull, 0}) {
		t.Errorf("expected downward pull, got velocity %v", r.player.Velocity)
	}
}

func TestInventoryGrabRequiresOpenSlot(t *testing.T) {
	r := newInventoryRig(t, func(c *Config) {
		c.Inventory.MaxCount = 2
		c.Inventory.RegenInterval = 0.25
	})
	r.scene.Add(wallEntity("wall", 10, 0.25))

	n := r.stickOne(t)
	testutil.AssertEqual(t, "count refilled", r.inv.Count(), 2)
	if r.inv.Candidate() != n {
		t.Fatal("expected the stuck needle to be the grab candidate")
	}
	if r.inv.Grab() {
		t.Fatal("expected grab to fail with a full pool")
	}
	testutil.AssertEqual(t, "state", n.State(), StateStuck)
	found := false
	for _, d := range r.rejections() {
		if strings.HasPrefix(d, "grab: pool full") {
			found = true
		}
	}
	if !found {
		t.Errorf("expected pool full rejection, got %v", r.rejections())
	}
}

func TestInventoryPoolInvariants(t *testing.T) {
	r := newInventoryRig(t, func(c *Config) {
		c.Inventory.MaxCount = 4
		c.Inventory.RegenInterval = 0.5
		c.Needle.ChargeTime = 0.1
	})
	r.scene.Add(wallEntity("wall", 8, 0.25))
	r.scene.SetBounds(BoundsFromMinMax(mgl64.Vec3{-20, -20, -20}, mgl64.Vec3{20, 20, 20}))
	rng := rand.New(rand.NewSource(42))

	for tick := 0; tick < 3000; tick++ {
		switch rng.Intn(12) {
		case 0:
			r.inv.Fire()
		case 1:
			r.inv.PowerFire()
		case 2, 3:
			r.inv.Grab()
		}
		r.inv.Update(testDT)

		if total := r.inv.Count() + r.inv.Returning(); total > 4 {
			t.Fatalf("tick %d: %d needles in or returning to a pool of 4", tick, total)
		}
		inQueue := make(map[*Needle]int)
		for _, n := range r.inv.queue {
			inQueue[n]++
		}
		for _, n := range r.inv.Needles() {
			if n.pooled {
				if inQueue[n] != 1 {
					t.Fatalf("tick %d: pooled needle queued %d times", tick, inQueue[n])
				}
				if n.State() != StateLoaded || !n.Idle() {
					t.Fatalf("tick %d: pooled needle in state %s", tick, n.State())
				}
				continue
			}
			modes := 0
			if n.InFlight() {
				modes++
			}
			if n.phase == phaseAttached {
				modes++
			}
			if n.Retrieving() {
				modes++
			}
			if modes != 1 {
				t.Fatalf("tick %d: needle in %d modes", tick, modes)
			}
		}
	}
}

func TestInventorySnapshot(t *testing.T) {
	r := newInventoryRig(t, nil)
	r.scene.Add(wallEntity("wall", 10, 0.25))
	n := r.stickOne(t)

	v := r.inv.Snapshot()
	testutil.AssertEqual(t, "count", v.Count, 4)
	testutil.AssertEqual(t, "max", v.Max, 5)
	testutil.AssertEqual(t, "needles", len(v.Needles), 5)
	testutil.AssertEqual(t, "slots", len(v.Slots), 5)
	for _, nv := range v.Needles {
		if nv.ID != n.ID {
			continue
		}
		testutil.AssertEqual(t, "pooled", nv.Pooled, false)
		testutil.AssertEqual(t, "state", nv.State, StateStuck)
		if nv.Attached == "" {
			t.Error("expected attached entity ID")
		}
	}
}

func TestMultiSinkSkipsNil(t *testing.T) {
	a, b := &eventLog{}, &eventLog{}
	sink := MultiSink(a, nil, b)
	sink.Record(Event{Type: EvtFired})
	testutil.AssertEqual(t, "first", len(a.events), 1)
	testutil.AssertEqual(t, "second", len(b.events), 1)

	var got string
	EventSinkFunc(func(e Event) { got = e.Type }).Record(Event{Type: EvtStuck})
	testutil.AssertEqual(t, "func sink", got, EvtStuck)
}
