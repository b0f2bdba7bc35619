package main

import (
	"encoding/json"
	"math"

	"github.com/go-gl/mathgl/mgl64"
)

// Client -> Server message types
const (
	MsgLogin  = "login" // operator password for a viewer token
	MsgCreate = "create"
	MsgJoin   = "join"
	MsgInput  = "input"
	MsgLeave  = "leave"
	MsgList   = "list"
	MsgCheck  = "check"
)

// Server -> Client message types
const (
	MsgState    = "state" // sent as msgpack binary frames
	MsgWelcome  = "welcome"
	MsgAuthOK   = "auth_ok"
	MsgSessions = "sessions"
	MsgJoined   = "joined"
	MsgCreated  = "created"
	MsgError    = "error"
	MsgChecked  = "checked"
	MsgEvent    = "event" // needle mechanic event
)

// Envelope wraps all outgoing messages with a type field
type Envelope struct {
	T    string      `json:"t"`
	Data interface{} `json:"d,omitempty"`
}

// InEnvelope is used for incoming messages, json.RawMessage avoids double-unmarshal
type InEnvelope struct {
	T string          `json:"t"`
	D json.RawMessage `json:"d,omitempty"`
}

// ClientInput is sent by the driving client every frame. Buttons are
// level-held; the sandbox derives press edges.
type ClientInput struct {
	Yaw       float64 `json:"yaw"`
	Pitch     float64 `json:"pitch"`
	MoveX     float64 `json:"mx"` // strafe axis
	MoveZ     float64 `json:"mz"` // forward axis
	Fire      bool    `json:"fire"`
	Power     bool    `json:"power"`
	Grab      bool    `json:"grab"`
	Jump      bool    `json:"jump"`
	Isometric bool    `json:"iso"`
}

// Input bounds; anything outside is a broken or hostile client
const (
	maxInputAngle = 1000.0 // radians
	maxInputAxis  = 2.0
)

// Valid reports whether every analog field is finite and within range
func (in ClientInput) Valid() bool {
	return inRange(in.Yaw, maxInputAngle) && inRange(in.Pitch, maxInputAngle) &&
		inRange(in.MoveX, maxInputAxis) && inRange(in.MoveZ, maxInputAxis)
}

// inRange is false for NaN and infinities
func inRange(v, limit float64) bool {
	return v >= -limit && v <= limit
}

// LoginMsg exchanges the operator password for a token
type LoginMsg struct {
	Password string `json:"password"`
}

// AuthOKMsg carries a viewer token
type AuthOKMsg struct {
	Token string `json:"token"`
}

// CreateMsg is sent when a client wants a new sandbox
type CreateMsg struct {
	Name        string `json:"name"`
	SessionName string `json:"sname"`
	Token       string `json:"token,omitempty"`
}

// JoinMsg is sent when a client wants to drive or watch a sandbox
type JoinMsg struct {
	Name      string `json:"name"`
	SessionID string `json:"sid"`
	Token     string `json:"token,omitempty"`
}

// Vec3State is a rounded vector on the wire
type Vec3State [3]float64

// QuatState is a rounded quaternion on the wire, scalar first
type QuatState [4]float64

// PlayerState is the holder's broadcast state
type PlayerState struct {
	ID        string    `json:"id" msgpack:"id"`
	Name      string    `json:"n" msgpack:"n"`
	Pos       Vec3State `json:"p" msgpack:"p"`
	Yaw       float64   `json:"y" msgpack:"y"`
	Pitch     float64   `json:"pi" msgpack:"pi"`
	Grounded  bool      `json:"g" msgpack:"g"`
	Locked    bool      `json:"l,omitempty" msgpack:"l,omitempty"`
	Isometric bool      `json:"iso,omitempty" msgpack:"iso,omitempty"`
}

// ProjectileState is broadcast per needle
type ProjectileState struct {
	ID        string    `json:"id" msgpack:"id"`
	State     string    `json:"s" msgpack:"s"`
	Pos       Vec3State `json:"p" msgpack:"p"`
	Rot       QuatState `json:"r" msgpack:"r"`
	Pooled    bool      `json:"pl,omitempty" msgpack:"pl,omitempty"`
	Grabbable bool      `json:"gb,omitempty" msgpack:"gb,omitempty"`
	Attached  string    `json:"at,omitempty" msgpack:"at,omitempty"`
}

// InventoryState summarises the pool
type InventoryState struct {
	Count     int         `json:"c" msgpack:"c"`
	Max       int         `json:"m" msgpack:"m"`
	CanFire   bool        `json:"f" msgpack:"f"`
	Candidate string      `json:"cd,omitempty" msgpack:"cd,omitempty"`
	Anchor    Vec3State   `json:"a" msgpack:"a"`
	Slots     []Vec3State `json:"sl" msgpack:"sl"`
}

// MobState is broadcast per mob
type MobState struct {
	ID     string    `json:"id" msgpack:"id"`
	Pos    Vec3State `json:"p" msgpack:"p"`
	Rot    QuatState `json:"r" msgpack:"r"`
	Pinned bool      `json:"pn,omitempty" msgpack:"pn,omitempty"`
}

// WindowState is broadcast per window
type WindowState struct {
	ID     string    `json:"id" msgpack:"id"`
	Pos    Vec3State `json:"p" msgpack:"p"`
	Rot    QuatState `json:"r" msgpack:"r"`
	Size   Vec3State `json:"sz" msgpack:"sz"`
	Broken bool      `json:"b,omitempty" msgpack:"b,omitempty"`
}

// WallState describes static geometry, sent once on join
type WallState struct {
	ID   string    `json:"id"`
	Pos  Vec3State `json:"p"`
	Rot  QuatState `json:"r"`
	Half Vec3State `json:"h"`
}

// SandboxState is the full state broadcast
type SandboxState struct {
	Player    PlayerState       `json:"pl" msgpack:"pl"`
	Needles   []ProjectileState `json:"n" msgpack:"n"`
	Inventory InventoryState    `json:"i" msgpack:"i"`
	Mobs      []MobState        `json:"m" msgpack:"m"`
	Windows   []WindowState     `json:"w" msgpack:"w"`
	Tick      uint64            `json:"tick" msgpack:"tick"`
}

// WelcomeMsg is sent to a client when it joins
type WelcomeMsg struct {
	ID     string      `json:"id"`
	Driver bool        `json:"driver"` // false for read-only viewers
	Arena  float64     `json:"arena"`
	Walls  []WallState `json:"walls"`
}

// EventMsg forwards a needle mechanic event
type EventMsg struct {
	Type   string    `json:"type"`
	Needle string    `json:"needle,omitempty"`
	Entity string    `json:"entity,omitempty"`
	From   string    `json:"from,omitempty"`
	To     string    `json:"to,omitempty"`
	Detail string    `json:"detail,omitempty"`
	Pos    Vec3State `json:"p"`
	Time   float64   `json:"time"`
}

// SessionInfo is used in the session list
type SessionInfo struct {
	ID      string `json:"id"`
	Name    string `json:"name"`
	Clients int    `json:"clients"`
}

// ErrorMsg sends error to client
type ErrorMsg struct {
	Msg string `json:"msg"`
}

// CheckMsg is sent by client to check if a session exists
type CheckMsg struct {
	SID string `json:"sid"`
}

// CheckedMsg is the response to a session check
type CheckedMsg struct {
	SID     string `json:"sid"`
	Exists  bool   `json:"exists"`
	Name    string `json:"name,omitempty"`
	Clients int    `json:"clients,omitempty"`
}

func round3(v float64) float64 {
	return math.Round(v*1000) / 1000
}

func vec3State(v mgl64.Vec3) Vec3State {
	return Vec3State{round3(v[0]), round3(v[1]), round3(v[2])}
}

func quatState(q mgl64.Quat) QuatState {
	return QuatState{round3(q.W), round3(q.V[0]), round3(q.V[1]), round3(q.V[2])}
}

func eventMsg(e Event) EventMsg {
	return EventMsg{
		Type:   e.Type,
		Needle: e.NeedleID,
		Entity: e.EntityID,
		From:   e.From,
		To:     e.To,
		Detail: e.Detail,
		Pos:    vec3State(e.Position),
		Time:   round3(e.Time),
	}
}
