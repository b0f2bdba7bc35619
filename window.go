package main

import "github.com/go-gl/mathgl/mgl64"

const (
	WindowWidth     = 3.0
	WindowHeight    = 2.0
	WindowThickness = 0.05
)

// Window is a breakable pane held by an unscaled frame. Needles that hit
// the scaled pane attach to the frame; pulling one out breaks the pane.
type Window struct {
	ID     string
	Broken bool

	frame *Entity
	pane  *Entity
}

// NewWindow places a window centered at pose
func NewWindow(pose Pose) *Window {
	w := &Window{}
	w.frame = NewEntity("window-frame", TagSurface, pose, Shape{Kind: ShapeSphere})
	w.frame.Disabled = true
	w.frame.SetPullable(w)

	half := mgl64.Vec3{WindowWidth / 2, WindowHeight / 2, WindowThickness / 2}
	w.pane = NewEntity("window-pane", TagSurface, pose, Shape{Kind: ShapeBox, HalfExtents: half})
	w.pane.Scale = mgl64.Vec3{WindowWidth, WindowHeight, WindowThickness}
	w.pane.Parent = w.frame
	w.ID = w.frame.ID
	return w
}

// Entities returns the frame and the pane for scene registration
func (w *Window) Entities() []*Entity { return []*Entity{w.frame, w.pane} }

// Frame is the unscaled parent needles attach to
func (w *Window) Frame() *Entity { return w.frame }

// Pane is the scaled collider needles hit
func (w *Window) Pane() *Entity { return w.pane }

// OnPulled breaks the pane the first time a needle is pulled out of it
func (w *Window) OnPulled() {
	if w.Broken {
		return
	}
	w.Broken = true
	w.pane.Disabled = true
}

// ToState converts to protocol state
func (w *Window) ToState() WindowState {
	return WindowState{
		ID:     w.ID,
		Pos:    vec3State(w.frame.Pose.Position),
		Rot:    quatState(w.frame.Pose.Rotation),
		Size:   vec3State(w.pane.Scale),
		Broken: w.Broken,
	}
}
