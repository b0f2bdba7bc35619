package main

import (
	"log"
	"math/rand"
	"sync"
	"time"

	"github.com/go-gl/mathgl/mgl64"
	"github.com/vmihailenco/msgpack/v5"
)

const (
	maxClientsPerSession  = 8
	maxEventsPerBroadcast = 64
	arenaHeight           = 40.0 // scene bounds above the floor
	wallHeight            = 4.0
	wallThickness         = 0.5
)

// Broadcaster interface for sending messages to clients
type Broadcaster interface {
	SendJSON(msg interface{})
	SendBinary(data []byte)
}

// inputEdges are button presses seen since the last tick
type inputEdges struct {
	fire, power, grab bool
}

// Game is one needle sandbox: a single holder, its pool, a few mobs and
// windows inside a walled arena. One client drives, the rest watch.
type Game struct {
	mu        sync.RWMutex
	cfg       Config
	dt        float64
	every     uint64 // ticks between broadcasts
	scene     *Scene
	player    *Player
	inventory *Inventory
	mobs      []*Mob
	windows   []*Window
	walls     []*Entity
	clients   map[string]Broadcaster
	order     []string // client IDs in join order
	driverID  string
	held      ClientInput
	pressed   inputEdges
	events    []Event
	tick      uint64
	running   bool
	stop      chan struct{}
}

// NewGame builds the arena described by cfg. sink may be nil.
func NewGame(cfg Config, sink EventSink) *Game {
	seed := cfg.Sandbox.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	rng := rand.New(rand.NewSource(seed))

	g := &Game{
		cfg:     cfg,
		dt:      1.0 / float64(cfg.Sandbox.TickRate),
		every:   uint64(max(cfg.Sandbox.TickRate/cfg.Sandbox.BroadcastRate, 1)),
		scene:   NewScene(),
		clients: make(map[string]Broadcaster),
		stop:    make(chan struct{}),
	}
	g.buildArena(rng)

	g.player = NewPlayer(GenerateID(), "holder", mgl64.Vec3{}, cfg.Sandbox.LaunchDistance, cfg.Sandbox.ArenaSize)
	g.scene.Add(g.player.Body())

	collect := EventSinkFunc(func(e Event) { g.events = append(g.events, e) })
	g.inventory = NewInventory(cfg.Inventory, cfg.Needle, g.player, g.player, g.scene,
		WithMovementLock(g.player),
		WithBooster(g.player),
		WithEventSink(MultiSink(collect, sink)),
		WithRand(rng),
	)
	return g
}

// buildArena adds the floor, boundary walls, windows and mobs
func (g *Game) buildArena(rng *rand.Rand) {
	size := g.cfg.Sandbox.ArenaSize
	half := size / 2
	g.scene.SetBounds(BoundsFromMinMax(
		mgl64.Vec3{-half, -1, -half},
		mgl64.Vec3{half, arenaHeight, half},
	))

	addWall := func(center, halfExtents mgl64.Vec3) {
		w := NewEntity("wall", TagSurface, NewPose(center), Shape{Kind: ShapeBox, HalfExtents: halfExtents})
		g.walls = append(g.walls, w)
		g.scene.Add(w)
	}
	addWall(mgl64.Vec3{0, -0.5, 0}, mgl64.Vec3{half, 0.5, half})
	inner := half - wallThickness
	addWall(mgl64.Vec3{0, wallHeight / 2, inner}, mgl64.Vec3{half, wallHeight / 2, wallThickness})
	addWall(mgl64.Vec3{0, wallHeight / 2, -inner}, mgl64.Vec3{half, wallHeight / 2, wallThickness})
	addWall(mgl64.Vec3{inner, wallHeight / 2, 0}, mgl64.Vec3{wallThickness, wallHeight / 2, half})
	addWall(mgl64.Vec3{-inner, wallHeight / 2, 0}, mgl64.Vec3{wallThickness, wallHeight / 2, half})

	for _, x := range []float64{-size / 6, size / 6} {
		w := NewWindow(NewPose(mgl64.Vec3{x, WindowHeight/2 + 0.5, size / 4}))
		g.windows = append(g.windows, w)
		for _, e := range w.Entities() {
			g.scene.Add(e)
		}
	}

	for i := 0; i < g.cfg.Sandbox.Mobs; i++ {
		spread := half * 0.8
		pos := mgl64.Vec3{(rng.Float64()*2 - 1) * spread, MobRadius, size/8 + rng.Float64()*spread/2}
		m := NewMob(pos, size, rng)
		g.mobs = append(g.mobs, m)
		g.scene.Add(m.Body())
	}
}

// Run starts the game loop
func (g *Game) Run() {
	g.mu.Lock()
	g.running = true
	g.mu.Unlock()

	ticker := time.NewTicker(time.Second / time.Duration(g.cfg.Sandbox.TickRate))
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			g.update()
		case <-g.stop:
			return
		}
	}
}

// Stop terminates the game loop
func (g *Game) Stop() {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.running {
		g.running = false
		close(g.stop)
	}
}

// AddClient attaches a client. The first client drives the holder; later
// ones only watch. Returns "" when the sandbox is full.
func (g *Game) AddClient(client Broadcaster) (string, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if len(g.clients) >= maxClientsPerSession {
		return "", false
	}
	id := GenerateID()
	g.clients[id] = client
	g.order = append(g.order, id)
	if g.driverID == "" {
		g.driverID = id
	}
	return id, g.driverID == id
}

// RemoveClient detaches a client. A leaving driver hands the holder to
// the longest-attached viewer, keeping the current view angles.
func (g *Game) RemoveClient(id string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if _, ok := g.clients[id]; !ok {
		return
	}
	delete(g.clients, id)
	for i, other := range g.order {
		if other == id {
			g.order = append(g.order[:i], g.order[i+1:]...)
			break
		}
	}
	if g.driverID != id {
		return
	}

	g.driverID = ""
	g.held = ClientInput{Yaw: g.held.Yaw, Pitch: g.held.Pitch}
	g.pressed = inputEdges{}
	g.applyHeld()
	if len(g.order) > 0 {
		g.driverID = g.order[0]
		g.clients[g.driverID].SendJSON(Envelope{T: MsgWelcome, Data: g.welcome(g.driverID)})
	}
}

// ClientCount returns the number of attached clients
func (g *Game) ClientCount() int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return len(g.clients)
}

// Welcome describes the static arena to a newly attached client
func (g *Game) Welcome(id string) WelcomeMsg {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.welcome(id)
}

func (g *Game) welcome(id string) WelcomeMsg {
	msg := WelcomeMsg{
		ID:     id,
		Driver: id == g.driverID,
		Arena:  g.cfg.Sandbox.ArenaSize,
		Walls:  make([]WallState, 0, len(g.walls)),
	}
	for _, w := range g.walls {
		msg.Walls = append(msg.Walls, WallState{
			ID:   w.ID,
			Pos:  vec3State(w.Pose.Position),
			Rot:  quatState(w.Pose.Rotation),
			Half: vec3State(w.Shape.HalfExtents),
		})
	}
	return msg
}

// HandleInput records the driver's input. Button presses are latched
// until the next tick so that short taps are never lost.
func (g *Game) HandleInput(clientID string, input ClientInput) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if clientID == "" || clientID != g.driverID || !input.Valid() {
		return
	}
	if input.Fire && !g.held.Fire {
		g.pressed.fire = true
	}
	if input.Power && !g.held.Power {
		g.pressed.power = true
	}
	if input.Grab && !g.held.Grab {
		g.pressed.grab = true
	}
	g.held = input
	g.applyHeld()
}

func (g *Game) applyHeld() {
	p := g.player
	p.Look(g.held.Yaw, g.held.Pitch)
	p.MoveX = g.held.MoveX
	p.MoveZ = g.held.MoveZ
	p.Jumping = g.held.Jump
	p.Isometric = g.held.Isometric
}

// update runs one game tick
func (g *Game) update() {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.tick++
	g.player.Update(g.dt)
	for _, m := range g.mobs {
		m.Update(g.dt, g.player.Position)
	}

	g.inventory.Prepare(g.dt)

	pressed := g.pressed
	g.pressed = inputEdges{}
	if pressed.fire {
		g.inventory.Fire()
	}
	if pressed.power {
		g.inventory.PowerFire()
	}
	if pressed.grab {
		g.inventory.Grab()
	}

	wasLocked := g.player.MovementLocked()
	g.inventory.Advance(g.dt)
	if wasLocked && !g.player.MovementLocked() {
		g.applyHeld()
	}

	if g.tick%g.every == 0 {
		g.broadcastState()
	}
}

// snapshot builds the broadcast state; callers hold the lock
func (g *Game) snapshot() SandboxState {
	view := g.inventory.Snapshot()
	state := SandboxState{
		Player:  g.player.ToState(),
		Needles: make([]ProjectileState, 0, len(view.Needles)),
		Inventory: InventoryState{
			Count:     view.Count,
			Max:       view.Max,
			CanFire:   view.CanFire,
			Candidate: view.Candidate,
			Anchor:    vec3State(view.Anchor),
			Slots:     make([]Vec3State, 0, len(view.Slots)),
		},
		Mobs:    make([]MobState, 0, len(g.mobs)),
		Windows: make([]WindowState, 0, len(g.windows)),
		Tick:    g.tick,
	}
	for _, s := range view.Slots {
		state.Inventory.Slots = append(state.Inventory.Slots, vec3State(s))
	}
	for _, n := range view.Needles {
		state.Needles = append(state.Needles, ProjectileState{
			ID:        n.ID,
			State:     n.State.String(),
			Pos:       vec3State(n.Pose.Position),
			Rot:       quatState(n.Pose.Rotation),
			Pooled:    n.Pooled,
			Grabbable: n.Grabbable,
			Attached:  n.Attached,
		})
	}
	for _, m := range g.mobs {
		state.Mobs = append(state.Mobs, m.ToState())
	}
	for _, w := range g.windows {
		state.Windows = append(state.Windows, w.ToState())
	}
	return state
}

// Snapshot returns the current state
func (g *Game) Snapshot() SandboxState {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.snapshot()
}

// broadcastState sends the state to all clients, then any mechanic
// events recorded since the last broadcast
func (g *Game) broadcastState() {
	data, err := msgpack.Marshal(g.snapshot())
	if err != nil {
		log.Printf("state marshal error: %v", err)
		return
	}
	for _, client := range g.clients {
		client.SendBinary(data)
	}

	events := g.events
	if len(events) > maxEventsPerBroadcast {
		events = events[len(events)-maxEventsPerBroadcast:]
	}
	for _, e := range events {
		g.broadcastMsg(Envelope{T: MsgEvent, Data: eventMsg(e)})
	}
	g.events = g.events[:0]
}

// broadcastMsg sends a message to all clients in the session
func (g *Game) broadcastMsg(msg Envelope) {
	for _, client := range g.clients {
		client.SendJSON(msg)
	}
}
