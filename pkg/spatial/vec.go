// Package spatial holds the geometry shared by the speech scheduler and the
// audio backends: logical positions, listener orientation, distance
// attenuation and the mapping from a logical position to rendering
// parameters.
//
// Coordinates are expressed in the listener frame: +X is right, +Y is up and
// +Z is in front of the listener.
package spatial

import (
	"fmt"
	"math"
	"strings"
)

// Vec3 is a point or direction in 3D space.
type Vec3 struct {
	X float64 `json:"x" yaml:"x"`
	Y float64 `json:"y" yaml:"y"`
	Z float64 `json:"z" yaml:"z"`
}

// Add returns v + o.
func (v Vec3) Add(o Vec3) Vec3 { return Vec3{v.X + o.X, v.Y + o.Y, v.Z + o.Z} }

// Sub returns v - o.
func (v Vec3) Sub(o Vec3) Vec3 { return Vec3{v.X - o.X, v.Y - o.Y, v.Z - o.Z} }

// Scale returns v multiplied by s on every axis.
func (v Vec3) Scale(s float64) Vec3 { return Vec3{v.X * s, v.Y * s, v.Z * s} }

// Dot returns the dot product of v and o.
func (v Vec3) Dot(o Vec3) float64 { return v.X*o.X + v.Y*o.Y + v.Z*o.Z }

// Cross returns the cross product v × o.
func (v Vec3) Cross(o Vec3) Vec3 {
	return Vec3{
		X: v.Y*o.Z - v.Z*o.Y,
		Y: v.Z*o.X - v.X*o.Z,
		Z: v.X*o.Y - v.Y*o.X,
	}
}

// Len returns the Euclidean length of v.
func (v Vec3) Len() float64 { return math.Sqrt(v.Dot(v)) }

// Normalize returns v scaled to unit length. The zero vector is returned
// unchanged.
func (v Vec3) Normalize() Vec3 {
	l := v.Len()
	if l == 0 {
		return v
	}
	return v.Scale(1 / l)
}

// IsZero reports whether all components are zero.
func (v Vec3) IsZero() bool { return v == Vec3{} }

func (v Vec3) String() string {
	return fmt.Sprintf("(%g, %g, %g)", v.X, v.Y, v.Z)
}

// ── Direction presets ────────────────────────────────────────────────────────

// Named logical positions one unit away from the listener.
var (
	Center = Vec3{0, 0, 0}
	Left   = Vec3{-1, 0, 0}
	Right  = Vec3{1, 0, 0}
	Front  = Vec3{0, 0, 1}
	Back   = Vec3{0, 0, -1}
	Above  = Vec3{0, 1, 0}
	Below  = Vec3{0, -1, 0}
)

var directions = map[string]Vec3{
	"center": Center,
	"left":   Left,
	"right":  Right,
	"front":  Front,
	"back":   Back,
	"above":  Above,
	"below":  Below,
}

// ParseDirection resolves a preset name ("left", "front", ...) to its logical
// position. Matching is case-insensitive.
func ParseDirection(name string) (Vec3, error) {
	v, ok := directions[strings.ToLower(strings.TrimSpace(name))]
	if !ok {
		return Vec3{}, fmt.Errorf("spatial: unknown direction %q", name)
	}
	return v, nil
}
