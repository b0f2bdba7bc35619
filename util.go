package main

import (
	"math"

	"github.com/google/uuid"
)

// GenerateID returns a random entity identifier
func GenerateID() string {
	return uuid.NewString()
}

// GenerateUUID returns a random UUID v4 string for session identifiers
func GenerateUUID() string {
	return uuid.New().String()
}

// Clamp restricts v to [min, max]
func Clamp(v, min, max float64) float64 {
	if v < min {
		return min
	}
	if v > max {
		return max
	}
	return v
}

func clamp01(v float64) float64 {
	return Clamp(v, 0, 1)
}

// NormalizeAngle wraps angle to [-PI, PI]. Non-finite input yields NaN.
func NormalizeAngle(a float64) float64 {
	return math.Remainder(a, 2*math.Pi)
}
