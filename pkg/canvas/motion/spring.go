// Package motion animates blocks toward their target positions.
//
// The integrator is a damped spring stepped once per frame. Given the same
// constants and the same sequence of frame durations it produces the same
// trajectory. Large frame durations are split into bounded substeps so the
// integration stays stable, and a block within SnapDistance of its target
// snaps onto it, which ends the animation.
package motion

import (
	"math"

	"github.com/matzehuels/spatialcanvas/pkg/canvas"
)

// Default spring constants.
const (
	DefaultStiffness    = 10.0
	DefaultDamping      = 0.8
	DefaultSnapDistance = 1.0
	DefaultMaxStep      = 0.05
	DefaultMaxSubsteps  = 40
)

// Spring holds the integrator constants.
type Spring struct {
	// Stiffness scales the pull toward the target.
	Stiffness float64
	// Damping multiplies the velocity every step (0..1).
	Damping float64
	// SnapDistance ends the animation when the block is this close.
	SnapDistance float64
	// MaxStep is the longest single integration step in seconds.
	MaxStep float64
	// MaxSubsteps caps the work done for one very long frame.
	MaxSubsteps int
}

// Default returns a spring with the standard constants.
func Default() Spring {
	return Spring{
		Stiffness:    DefaultStiffness,
		Damping:      DefaultDamping,
		SnapDistance: DefaultSnapDistance,
		MaxStep:      DefaultMaxStep,
		MaxSubsteps:  DefaultMaxSubsteps,
	}
}

func (s Spring) normalized() Spring {
	d := Default()
	if s.Stiffness <= 0 {
		s.Stiffness = d.Stiffness
	}
	if s.Damping <= 0 || s.Damping > 1 {
		s.Damping = d.Damping
	}
	if s.SnapDistance <= 0 {
		s.SnapDistance = d.SnapDistance
	}
	if s.MaxStep <= 0 {
		s.MaxStep = d.MaxStep
	}
	if s.MaxSubsteps <= 0 {
		s.MaxSubsteps = d.MaxSubsteps
	}
	return s
}

// Step advances b by dt seconds and reports whether the block arrived at
// its target during this call. Blocks without a target, non-positive or
// non-finite dt are left untouched.
func (s Spring) Step(b *canvas.Block, dt float64) bool {
	if b.Target == nil || !(dt > 0) || math.IsInf(dt, 0) {
		return false
	}
	s = s.normalized()

	n := s.MaxSubsteps
	if steps := math.Ceil(dt / s.MaxStep); steps < float64(n) {
		n = int(steps)
	}
	h := dt / float64(n)
	if h > s.MaxStep {
		h = s.MaxStep
	}

	for range n {
		if s.step(b, h) {
			return true
		}
	}
	return false
}

// step is one explicit integration step: snap check, then
// v = v*damping + f*h and p += v*h.
func (s Spring) step(b *canvas.Block, h float64) bool {
	delta := b.Target.Sub(b.Position)
	if delta.Len() < s.SnapDistance {
		b.Position = *b.Target
		b.ClearMotion()
		return true
	}
	force := delta.Scale(s.Stiffness)
	b.Velocity = b.Velocity.Scale(s.Damping).Plus(force.Scale(h))
	b.Position = b.Position.Add(b.Velocity.Scale(h))
	return false
}

// Animate sets a new target on b. Setting the current position as target
// is a no-op that clears any pending motion.
func Animate(b *canvas.Block, target canvas.Point) {
	if b.Position == target {
		b.ClearMotion()
		return
	}
	t := target
	b.Target = &t
}

// StepAll advances every animating block and returns the ids of the ones
// that arrived.
func (s Spring) StepAll(blocks []*canvas.Block, dt float64) []string {
	var arrived []string
	for _, b := range blocks {
		if s.Step(b, dt) {
			arrived = append(arrived, b.ID)
		}
	}
	return arrived
}
