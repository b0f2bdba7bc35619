package main

import (
	"errors"
	"math"
	"math/rand"
	"testing"

	"github.com/go-gl/mathgl/mgl64"
	"github.com/pixil98/go-testutil"
)

// testDT is exact in binary so accumulated time has no drift
const testDT = 1.0 / 64

func testNeedleConfig() NeedleConfig {
	cfg := DefaultConfig().Needle
	cfg.LaunchDelay = 0
	cfg.ShakeAmplitude = 0
	cfg.FlightSpeed = 600
	return cfg
}

type eventLog struct {
	events []Event
}

func (l *eventLog) Record(e Event) { l.events = append(l.events, e) }

func (l *eventLog) types() []string {
	out := make([]string, len(l.events))
	for i, e := range l.events {
		out[i] = e.Type
	}
	return out
}

func (l *eventLog) count(typ string) int {
	n := 0
	for _, e := range l.events {
		if e.Type == typ {
			n++
		}
	}
	return n
}

// newTestNeedle places a needle at the origin facing +Z
func newTestNeedle(scene *Scene, cfg NeedleConfig) *Needle {
	n := NewNeedle(cfg, NewPose(mgl64.Vec3{}), rand.New(rand.NewSource(7)))
	scene.Add(n.Body())
	return n
}

func fireForward(t *testing.T, n *Needle, powered bool) {
	t.Helper()
	launch := n.Pose().Position
	aim := launch.Sub(WorldForward)
	var err error
	if powered {
		err = n.PowerFire(launch, aim)
	} else {
		err = n.Fire(launch, aim)
	}
	if err != nil {
		t.Fatalf("fire: %v", err)
	}
}

// flyUntilSettled ticks until the needle leaves its flight states
func flyUntilSettled(t *testing.T, n *Needle, scene *Scene) {
	t.Helper()
	for i := 0; i < 500; i++ {
		n.Update(testDT, scene)
		if n.State() == StateStuck || n.State() == StatePinning {
			return
		}
	}
	t.Fatalf("needle never landed, state %s", n.State())
}

func TestNeedleTransitionTable(t *testing.T) {
	allowed := map[[2]NeedleState]bool{
		{StateLoaded, StateFiring}:        true,
		{StateLoaded, StateCharging}:      true,
		{StateCharging, StatePowerFiring}: true,
		{StateFiring, StateStuck}:         true,
		{StatePowerFiring, StateStuck}:    true,
		{StatePowerFiring, StatePinning}:  true,
		{StateStuck, StateLoaded}:         true,
		{StatePinning, StateLoaded}:       true,
	}
	states := []NeedleState{StateLoaded, StateCharging, StateFiring, StatePowerFiring, StateStuck, StatePinning}
	for _, from := range states {
		for _, to := range states {
			want := allowed[[2]NeedleState{from, to}]
			if got := canTransition(from, to); got != want {
				t.Errorf("%s -> %s: expected %v, got %v", from, to, want, got)
			}
		}
	}
}

func TestNeedleStateString(t *testing.T) {
	testutil.AssertEqual(t, "power firing", StatePowerFiring.String(), "power_firing")
	testutil.AssertEqual(t, "unknown", NeedleState(99).String(), "unknown")
}

func TestNeedleFireWhileBusy(t *testing.T) {
	scene := NewScene()
	n := newTestNeedle(scene, testNeedleConfig())
	fireForward(t, n, false)

	err := n.Fire(mgl64.Vec3{}, mgl64.Vec3{0, 0, -1})
	if !errors.Is(err, ErrNeedleBusy) {
		t.Errorf("expected ErrNeedleBusy, got %v", err)
	}
	if err := n.PowerFire(mgl64.Vec3{}, mgl64.Vec3{0, 0, -1}); !errors.Is(err, ErrNeedleBusy) {
		t.Errorf("expected ErrNeedleBusy for power fire, got %v", err)
	}
}

func TestNeedleRetrieveRequiresAttachment(t *testing.T) {
	scene := NewScene()
	n := newTestNeedle(scene, testNeedleConfig())

	if err := n.Retrieve(NewPose(mgl64.Vec3{})); !errors.Is(err, ErrNotAttached) {
		t.Errorf("expected ErrNotAttached for loaded needle, got %v", err)
	}
	fireForward(t, n, false)
	n.Update(testDT, scene)
	if err := n.Retrieve(NewPose(mgl64.Vec3{})); !errors.Is(err, ErrNotAttached) {
		t.Errorf("expected ErrNotAttached in flight, got %v", err)
	}
}

func TestNeedleSweptHitThinObstacle(t *testing.T) {
	scene := NewScene()
	wall := wallEntity("wall", 20, 0.005)
	scene.Add(wall)
	cfg := testNeedleConfig()
	n := newTestNeedle(scene, cfg)
	log := &eventLog{}
	n.sink = log

	fireForward(t, n, false)
	n.Update(testDT, scene)
	testutil.AssertEqual(t, "state after mount", n.State(), StateFiring)

	// The wall is far thinner than one tick of travel
	if cfg.FlightSpeed*testDT < 100*0.01 {
		t.Fatalf("flight step too short for this test")
	}
	flyUntilSettled(t, n, scene)

	testutil.AssertEqual(t, "state", n.State(), StateStuck)
	a := n.Attachment()
	if a.Entity != wall {
		t.Fatalf("expected needle attached to wall, got %v", a.Entity)
	}
	if z := n.Pose().Position.Z(); math.Abs(z-19.995) > 1e-6 {
		t.Errorf("expected needle at the wall face z=19.995, got %f", z)
	}
	testutil.AssertEqual(t, "grabbable", n.Grabbable(), true)

	want := []string{EvtTransition, EvtFired, EvtTransition, EvtStuck}
	got := log.types()
	if len(got) != len(want) {
		t.Fatalf("expected events %v, got %v", want, got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("event %d: expected %s, got %s", i, want[i], got[i])
		}
	}
	if log.events[2].From != "firing" || log.events[2].To != "stuck" {
		t.Errorf("expected firing -> stuck, got %s -> %s", log.events[2].From, log.events[2].To)
	}
}

func TestNeedleNearestObstacleWins(t *testing.T) {
	scene := NewScene()
	far := wallEntity("far", 7, 0.05)
	near := wallEntity("near", 4, 0.05)
	scene.Add(far)
	scene.Add(near)
	n := newTestNeedle(scene, testNeedleConfig())

	fireForward(t, n, false)
	flyUntilSettled(t, n, scene)

	if n.Attachment().Entity != near {
		t.Errorf("expected nearest wall, got %s", n.Attachment().Entity.Name)
	}
	if z := n.Pose().Position.Z(); math.Abs(z-3.95) > 1e-6 {
		t.Errorf("expected needle at z=3.95, got %f", z)
	}
}

func TestNeedleIgnoresSelfAndProjectiles(t *testing.T) {
	scene := NewScene()
	self := NewEntity("player", TagSelf, NewPose(mgl64.Vec3{0, 0, 3}), Shape{Kind: ShapeBox, HalfExtents: mgl64.Vec3{1, 1, 1}})
	other := NewEntity("needle", TagProjectile, NewPose(mgl64.Vec3{0, 0, 5}), Shape{Kind: ShapeSphere, Radius: 0.5})
	wall := wallEntity("wall", 8, 0.05)
	scene.Add(self)
	scene.Add(other)
	scene.Add(wall)
	n := newTestNeedle(scene, testNeedleConfig())

	fireForward(t, n, false)
	flyUntilSettled(t, n, scene)

	if n.Attachment().Entity != wall {
		t.Errorf("expected wall, got %s", n.Attachment().Entity.Name)
	}
}

func TestNeedleAttachesToParentOfScaledSurface(t *testing.T) {
	scene := NewScene()
	w := NewWindow(NewPose(mgl64.Vec3{0, 0, 6}))
	for _, e := range w.Entities() {
		scene.Add(e)
	}
	n := newTestNeedle(scene, testNeedleConfig())

	fireForward(t, n, false)
	flyUntilSettled(t, n, scene)

	a := n.Attachment()
	if a.Entity != w.Frame() {
		t.Fatalf("expected attachment to the unscaled frame, got %v", a.Entity)
	}
	testutil.AssertEqual(t, "kind", a.Kind, AttachSurface)

	// The needle rides along with the frame
	w.Frame().Pose.Position = mgl64.Vec3{1, 0, 6}
	n.Update(testDT, scene)
	if !vecNear(n.Pose().Position, mgl64.Vec3{1, 0, 6 - WindowThickness/2}) {
		t.Errorf("expected needle to follow the frame, got %v", n.Pose().Position)
	}
}

func TestNeedleSticksToWorldOnBoundsExit(t *testing.T) {
	scene := NewScene()
	scene.SetBounds(BoundsFromMinMax(mgl64.Vec3{-5, -5, -5}, mgl64.Vec3{5, 5, 5}))
	cfg := testNeedleConfig()
	n := newTestNeedle(scene, cfg)

	fireForward(t, n, false)
	flyUntilSettled(t, n, scene)

	a := n.Attachment()
	testutil.AssertEqual(t, "kind", a.Kind, AttachSurface)
	if a.Entity != nil {
		t.Errorf("expected world attachment, got %s", a.Entity.Name)
	}
	if z := n.Front().Z(); math.Abs(z-5) > 1e-6 {
		t.Errorf("expected tip on the boundary, got %f", z)
	}
	testutil.AssertEqual(t, "grabbable", n.Grabbable(), true)

	// World-stuck needles stay put
	before := n.Pose().Position
	n.Update(testDT, scene)
	if n.Pose().Position != before {
		t.Error("world-stuck needle moved")
	}
}

func TestNeedlePowerFirePinsTarget(t *testing.T) {
	scene := NewScene()
	mob := NewMob(mgl64.Vec3{0, 0, 10}, 0, rand.New(rand.NewSource(1)))
	scene.Add(mob.Body())
	cfg := testNeedleConfig()
	cfg.ChargeTime = 0.25
	cfg.ShakeAmplitude = 0.05
	n := newTestNeedle(scene, cfg)
	log := &eventLog{}
	n.sink = log

	fireForward(t, n, true)
	if !n.Charging() {
		t.Error("expected power fire to report charging while mounting")
	}
	n.Update(testDT, scene)
	testutil.AssertEqual(t, "state after mount", n.State(), StateCharging)

	shook := false
	for i := 0; i < 100 && n.State() == StateCharging; i++ {
		n.Update(testDT, scene)
		off := n.Pose().Position.Len()
		if off > cfg.ShakeAmplitude+1e-9 {
			t.Fatalf("shake offset %f exceeds amplitude", off)
		}
		if off > 0 {
			shook = true
		}
	}
	testutil.AssertEqual(t, "state after charge", n.State(), StatePowerFiring)
	if !shook {
		t.Error("expected the needle to shake while charging")
	}
	if n.Pose().Position != (mgl64.Vec3{}) {
		t.Errorf("expected needle back at the launch point, got %v", n.Pose().Position)
	}

	flyUntilSettled(t, n, scene)
	testutil.AssertEqual(t, "state", n.State(), StatePinning)
	testutil.AssertEqual(t, "mob behavior", mob.Behavior, MobPinned)
	testutil.AssertEqual(t, "mob collider disabled", mob.Body().Disabled, true)
	testutil.AssertEqual(t, "power fired events", log.count(EvtPowerFired), 1)
	testutil.AssertEqual(t, "pinned events", log.count(EvtPinned), 1)

	if !vecNear(mob.Body().Pose.Position, n.Pose().Position) {
		t.Errorf("expected mob at the needle, got %v vs %v", mob.Body().Pose.Position, n.Pose().Position)
	}
	if !vecNear(mob.Body().Pose.Forward(), n.Pose().Forward().Mul(-1)) {
		t.Errorf("expected mob facing the shooter, got forward %v", mob.Body().Pose.Forward())
	}

	// A pinned mob does not walk away
	mob.Update(testDT, mgl64.Vec3{20, 0, 0})
	n.Update(testDT, scene)
	if !vecNear(mob.Body().Pose.Position, n.Pose().Position) {
		t.Error("pinned mob left the needle")
	}

	if err := n.Retrieve(NewPose(mgl64.Vec3{})); err != nil {
		t.Fatalf("retrieve: %v", err)
	}
	testutil.AssertEqual(t, "mob behavior after release", mob.Behavior, MobChasing)
	testutil.AssertEqual(t, "mob collider enabled", mob.Body().Disabled, false)
	testutil.AssertEqual(t, "state after retrieve", n.State(), StateLoaded)
	testutil.AssertEqual(t, "grabbable after retrieve", n.Grabbable(), false)
	testutil.AssertEqual(t, "unpinned events", log.count(EvtUnpinned), 1)
	if !vecNear(mob.Body().Pose.Up(), WorldUp) {
		t.Errorf("expected released mob upright, got up %v", mob.Body().Pose.Up())
	}
}

func TestNeedlePowerFireSticksToUnpinnable(t *testing.T) {
	scene := NewScene()
	mob := NewMob(mgl64.Vec3{0, 0, 10}, 0, rand.New(rand.NewSource(1)))
	mob.CanBePinned = false
	scene.Add(mob.Body())
	cfg := testNeedleConfig()
	cfg.ChargeTime = 0.1
	n := newTestNeedle(scene, cfg)

	fireForward(t, n, true)
	flyUntilSettled(t, n, scene)

	testutil.AssertEqual(t, "state", n.State(), StateStuck)
	testutil.AssertEqual(t, "mob behavior", mob.Behavior, MobChasing)
	if n.Attachment().Entity != mob.Body() {
		t.Error("expected needle stuck in the mob")
	}
}

func TestNeedleNormalFireNeverPins(t *testing.T) {
	scene := NewScene()
	mob := NewMob(mgl64.Vec3{0, 0, 10}, 0, rand.New(rand.NewSource(1)))
	scene.Add(mob.Body())
	n := newTestNeedle(scene, testNeedleConfig())

	fireForward(t, n, false)
	flyUntilSettled(t, n, scene)

	testutil.AssertEqual(t, "state", n.State(), StateStuck)
	testutil.AssertEqual(t, "mob behavior", mob.Behavior, MobChasing)
}

func TestNeedleRetrievalArrives(t *testing.T) {
	scene := NewScene()
	scene.Add(wallEntity("wall", 10, 0.1))
	cfg := testNeedleConfig()
	n := newTestNeedle(scene, cfg)
	fireForward(t, n, false)
	flyUntilSettled(t, n, scene)

	target := NewPose(mgl64.Vec3{1, 1, 0})
	if err := n.Retrieve(target); err != nil {
		t.Fatalf("retrieve: %v", err)
	}
	if !n.Retrieving() {
		t.Fatal("expected needle to be retrieving")
	}
	for i := 0; i < 200 && !n.Idle(); i++ {
		n.Update(testDT, scene)
	}
	if !n.Idle() {
		t.Fatal("retrieval never completed")
	}
	if d := n.Pose().Position.Sub(target.Position).Len(); d > cfg.RetrievalTolerance {
		t.Errorf("expected needle within tolerance of target, got %f", d)
	}
}

func TestNeedleRetrievalForcedCompletion(t *testing.T) {
	scene := NewScene()
	scene.Add(wallEntity("wall", 10, 0.1))
	cfg := testNeedleConfig()
	cfg.RetrievalSpeed = 0.001
	cfg.MaxRetrievalTime = 2
	n := newTestNeedle(scene, cfg)
	fireForward(t, n, false)
	flyUntilSettled(t, n, scene)

	if err := n.Retrieve(NewPose(mgl64.Vec3{1e6, 0, 0})); err != nil {
		t.Fatalf("retrieve: %v", err)
	}
	ticks := int(cfg.MaxRetrievalTime / testDT)
	for i := 0; i < ticks-1; i++ {
		n.Update(testDT, scene)
	}
	if n.Idle() {
		t.Fatal("retrieval ended before the time limit")
	}
	n.Update(testDT, scene)
	if !n.Idle() {
		t.Error("expected retrieval to be forced complete at the time limit")
	}
	testutil.AssertEqual(t, "state", n.State(), StateLoaded)
}

func TestNeedleMountTimeout(t *testing.T) {
	scene := NewScene()
	cfg := testNeedleConfig()
	cfg.MountSpeed = 0.01
	cfg.MaxMountTime = 0.25
	n := newTestNeedle(scene, cfg)

	launch := mgl64.Vec3{0, 0, 5}
	if err := n.Fire(launch, mgl64.Vec3{0, 0, 4}); err != nil {
		t.Fatalf("fire: %v", err)
	}
	for i := 0; i < 16; i++ {
		n.Update(testDT, scene)
	}
	testutil.AssertEqual(t, "state", n.State(), StateFiring)
	if !vecNear(n.Pose().Position, launch) {
		t.Errorf("expected needle snapped to launch point, got %v", n.Pose().Position)
	}
}

func TestNeedleLaunchDelay(t *testing.T) {
	scene := NewScene()
	cfg := testNeedleConfig()
	cfg.LaunchDelay = 0.125
	n := newTestNeedle(scene, cfg)
	fireForward(t, n, false)

	n.Update(testDT, scene)
	testutil.AssertEqual(t, "state while waiting", n.State(), StateLoaded)
	if !n.InFlight() {
		t.Error("expected a waiting needle to count as in flight")
	}
	for i := 0; i < 8; i++ {
		n.Update(testDT, scene)
	}
	testutil.AssertEqual(t, "state after delay", n.State(), StateFiring)
}
