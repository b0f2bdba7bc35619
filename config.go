package main

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/pixil98/go-errors"
)

// NeedleConfig tunes a single needle's flight, charge and retrieval
type NeedleConfig struct {
	FlightSpeed        float64 `json:"flight_speed"`         // units/s
	MountSpeed         float64 `json:"mount_speed"`          // lerp rate toward launch point
	MountTolerance     float64 `json:"mount_tolerance"`      // arrival distance
	MaxMountTime       float64 `json:"max_mount_time"`       // seconds before snapping to launch point
	LaunchDelay        float64 `json:"launch_delay"`         // pause between mount and flight
	ChargeTime         float64 `json:"charge_time"`          // power fire charge
	ShakeAmplitude     float64 `json:"shake_amplitude"`      // charge jitter distance
	ShakeFrequency     float64 `json:"shake_frequency"`      // charge jitter Hz
	ForwardLength      float64 `json:"forward_length"`       // half-length, center to tip
	Radius             float64 `json:"radius"`               // grab collider radius
	RetrievalSpeed     float64 `json:"retrieval_speed"`      // lerp rate back to slot
	RetrievalTolerance float64 `json:"retrieval_tolerance"`  // arrival distance
	MaxRetrievalTime   float64 `json:"max_retrieval_time"`   // forced completion
}

func (c *NeedleConfig) Validate() error {
	el := errors.NewErrorList()

	positive := map[string]float64{
		"flight_speed":        c.FlightSpeed,
		"mount_speed":         c.MountSpeed,
		"mount_tolerance":     c.MountTolerance,
		"max_mount_time":      c.MaxMountTime,
		"forward_length":      c.ForwardLength,
		"retrieval_speed":     c.RetrievalSpeed,
		"retrieval_tolerance": c.RetrievalTolerance,
		"max_retrieval_time":  c.MaxRetrievalTime,
	}
	for name, v := range positive {
		if v <= 0 {
			el.Add(fmt.Errorf("%s must be positive", name))
		}
	}
	if c.LaunchDelay < 0 {
		el.Add(fmt.Errorf("launch_delay must not be negative"))
	}
	if c.ChargeTime < 0 {
		el.Add(fmt.Errorf("charge_time must not be negative"))
	}
	if c.ShakeAmplitude < 0 || c.ShakeFrequency < 0 {
		el.Add(fmt.Errorf("shake_amplitude and shake_frequency must not be negative"))
	}
	if c.Radius < 0 {
		el.Add(fmt.Errorf("radius must not be negative"))
	}

	return el.Err()
}

// InventoryConfig tunes the pool arrangement, grab and regeneration
type InventoryConfig struct {
	MaxCount           int     `json:"max_count"`
	SpreadHorizontal   float64 `json:"spread_horizontal"`
	SpreadVertical     float64 `json:"spread_vertical"`
	DistanceFromHolder float64 `json:"distance_from_holder"`
	FollowSpeed        float64 `json:"follow_speed"`
	RegenInterval      float64 `json:"regen_interval"` // seconds, 0 disables
	GrabDistance       float64 `json:"grab_distance"`
	GrabRadius         float64 `json:"grab_radius"`
	GrabBoostLeniency  float64 `json:"grab_boost_leniency"` // how far below the holder a grab still pulls up
	GrabUpwardPull     float64 `json:"grab_upward_pull"`
	GrabDownwardPull   float64 `json:"grab_downward_pull"`
}

func (c *InventoryConfig) Validate() error {
	el := errors.NewErrorList()

	if c.MaxCount < 1 {
		el.Add(fmt.Errorf("max_count must be at least 1"))
	}
	if c.FollowSpeed <= 0 {
		el.Add(fmt.Errorf("follow_speed must be positive"))
	}
	if c.RegenInterval < 0 {
		el.Add(fmt.Errorf("regen_interval must not be negative"))
	}
	if c.GrabDistance <= 0 {
		el.Add(fmt.Errorf("grab_distance must be positive"))
	}
	if c.GrabRadius < 0 {
		el.Add(fmt.Errorf("grab_radius must not be negative"))
	}

	return el.Err()
}

// SandboxConfig tunes the hosted arena
type SandboxConfig struct {
	TickRate       int     `json:"tick_rate"`
	BroadcastRate  int     `json:"broadcast_rate"`
	Seed           int64   `json:"seed"` // 0 picks a time-based seed
	ArenaSize      float64 `json:"arena_size"`
	Mobs           int     `json:"mobs"`
	LaunchDistance float64 `json:"launch_distance"` // launch point ahead of the eye
	IdleTimeout    string  `json:"idle_timeout"`
}

func (c *SandboxConfig) Validate() error {
	el := errors.NewErrorList()

	if c.TickRate < 1 || c.TickRate > 240 {
		el.Add(fmt.Errorf("tick_rate must be between 1 and 240"))
	}
	if c.BroadcastRate < 1 || c.BroadcastRate > c.TickRate {
		el.Add(fmt.Errorf("broadcast_rate must be between 1 and tick_rate"))
	}
	if c.ArenaSize <= 0 {
		el.Add(fmt.Errorf("arena_size must be positive"))
	}
	if c.Mobs < 0 {
		el.Add(fmt.Errorf("mobs must not be negative"))
	}
	if _, err := time.ParseDuration(c.IdleTimeout); err != nil {
		el.Add(fmt.Errorf("parsing idle_timeout: %w", err))
	}

	return el.Err()
}

// JournalConfig configures the SQLite event journal
type JournalConfig struct {
	Path          string `json:"path"` // empty disables the journal
	BufferSize    int    `json:"buffer_size"`
	FlushInterval string `json:"flush_interval"`
}

func (c *JournalConfig) Validate() error {
	el := errors.NewErrorList()

	if c.Path == "" {
		return nil
	}
	if c.BufferSize < 1 {
		el.Add(fmt.Errorf("buffer_size must be at least 1"))
	}
	d, err := time.ParseDuration(c.FlushInterval)
	if err != nil {
		el.Add(fmt.Errorf("parsing flush_interval: %w", err))
	} else if d <= 0 {
		el.Add(fmt.Errorf("flush_interval must be positive"))
	}

	return el.Err()
}

// Config is the full server configuration
type Config struct {
	Needle    NeedleConfig    `json:"needle"`
	Inventory InventoryConfig `json:"inventory"`
	Sandbox   SandboxConfig   `json:"sandbox"`
	Journal   JournalConfig   `json:"journal"`
}

func (c *Config) Validate() error {
	el := errors.NewErrorList()

	if err := c.Needle.Validate(); err != nil {
		el.Add(fmt.Errorf("needle: %w", err))
	}
	if err := c.Inventory.Validate(); err != nil {
		el.Add(fmt.Errorf("inventory: %w", err))
	}
	if err := c.Sandbox.Validate(); err != nil {
		el.Add(fmt.Errorf("sandbox: %w", err))
	}
	if err := c.Journal.Validate(); err != nil {
		el.Add(fmt.Errorf("journal: %w", err))
	}

	return el.Err()
}

// DefaultConfig returns the tuning the sandbox ships with
func DefaultConfig() Config {
	return Config{
		Needle: NeedleConfig{
			FlightSpeed:        60,
			MountSpeed:         12,
			MountTolerance:     0.1,
			MaxMountTime:       1,
			LaunchDelay:        0.05,
			ChargeTime:         0.6,
			ShakeAmplitude:     0.05,
			ShakeFrequency:     12,
			ForwardLength:      0.35,
			Radius:             0.08,
			RetrievalSpeed:     8,
			RetrievalTolerance: 1,
			MaxRetrievalTime:   2,
		},
		Inventory: InventoryConfig{
			MaxCount:           5,
			SpreadHorizontal:   1.6,
			SpreadVertical:     0.8,
			DistanceFromHolder: 0.6,
			FollowSpeed:        10,
			RegenInterval:      5,
			GrabDistance:       30,
			GrabRadius:         0.5,
			GrabBoostLeniency:  1,
			GrabUpwardPull:     8,
			GrabDownwardPull:   4,
		},
		Sandbox: SandboxConfig{
			TickRate:       60,
			BroadcastRate:  30,
			ArenaSize:      80,
			Mobs:           3,
			LaunchDistance: 2.5,
			IdleTimeout:    "2m",
		},
		Journal: JournalConfig{
			Path:          "needles.db",
			BufferSize:    1024,
			FlushInterval: "1s",
		},
	}
}

// LoadConfig reads a JSON config over the defaults. An empty path returns
// the defaults.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return cfg, fmt.Errorf("reading config: %w", err)
		}
		if err := json.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("parsing config: %w", err)
		}
	}
	if err := cfg.Validate(); err != nil {
		return cfg, fmt.Errorf("validating config: %w", err)
	}
	return cfg, nil
}
