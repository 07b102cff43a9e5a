package motion

import (
	"fmt"
	"math"
	"testing"

	"github.com/matzehuels/spatialcanvas/pkg/canvas"
)

func animating(from, to canvas.Point) *canvas.Block {
	b := canvas.NewBlock(canvas.Unlinked(canvas.KindNote), "moving")
	b.Position = from
	Animate(b, to)
	return b
}

func TestStepConverges(t *testing.T) {
	target := canvas.Point{X: 100, Y: 0}
	b := animating(canvas.Point{}, target)
	s := Default()

	prev := math.Inf(1)
	ticks := 0
	for b.Animating() {
		ticks++
		if ticks > 400 {
			t.Fatalf("no arrival after %d ticks, at %v", ticks, b.Position)
		}
		s.Step(b, 0.016)
		d := b.Position.Distance(target)
		if d > prev+1e-9 {
			t.Errorf("tick %d: distance grew from %v to %v", ticks, prev, d)
		}
		prev = d
	}

	if b.Position != target {
		t.Errorf("Position = %v, want %v", b.Position, target)
	}
	if b.Target != nil || b.Velocity != (canvas.Vector{}) {
		t.Errorf("motion not cleared: target=%v velocity=%v", b.Target, b.Velocity)
	}
}

func TestStepDeterministic(t *testing.T) {
	run := func() []canvas.Point {
		b := animating(canvas.Point{X: 10, Y: 20}, canvas.Point{X: -300, Y: 450})
		var trace []canvas.Point
		for i := 0; i < 50; i++ {
			Default().Step(b, 0.016)
			trace = append(trace, b.Position)
		}
		return trace
	}

	a, b := run(), run()
	for i := range a {
		if a[i] != b[i] {
			t.Fatalf("step %d differs: %v vs %v", i, a[i], b[i])
		}
	}
}

func TestStepLargeDelta(t *testing.T) {
	for _, dt := range []float64{0.05, 0.5, 2, 60, 1e6} {
		t.Run(fmt.Sprint(dt), func(t *testing.T) {
			target := canvas.Point{X: 100, Y: 0}
			b := animating(canvas.Point{}, target)
			for i := 0; b.Animating(); i++ {
				if i > 100 {
					t.Fatalf("dt=%v did not converge, at %v", dt, b.Position)
				}
				Default().Step(b, dt)
				if !b.Position.IsFinite() {
					t.Fatalf("dt=%v diverged to %v", dt, b.Position)
				}
			}
			if b.Position != target {
				t.Errorf("Position = %v, want %v", b.Position, target)
			}
		})
	}
}

func TestStepIgnoresBadDelta(t *testing.T) {
	for _, dt := range []float64{0, -1, math.NaN(), math.Inf(1)} {
		b := animating(canvas.Point{}, canvas.Point{X: 100, Y: 0})
		if Default().Step(b, dt) {
			t.Errorf("Step(%v) reported arrival", dt)
		}
		if b.Position != (canvas.Point{}) || b.Velocity != (canvas.Vector{}) {
			t.Errorf("Step(%v) moved the block to %v", dt, b.Position)
		}
	}
}

func TestStepSnapsWhenClose(t *testing.T) {
	b := animating(canvas.Point{X: 99.5, Y: 0}, canvas.Point{X: 100, Y: 0})
	if !Default().Step(b, 0.016) {
		t.Fatal("Step should report arrival within the snap distance")
	}
	if b.Position.X != 100 || b.Animating() {
		t.Errorf("block = %v animating=%v", b.Position, b.Animating())
	}
}

func TestStepAll(t *testing.T) {
	near := animating(canvas.Point{X: 0, Y: 0}, canvas.Point{X: 0.5, Y: 0})
	far := animating(canvas.Point{X: 0, Y: 0}, canvas.Point{X: 500, Y: 0})
	idle := canvas.NewBlock(canvas.Unlinked(canvas.KindNote), "idle")

	arrived := Default().StepAll([]*canvas.Block{near, far, idle}, 0.016)
	if len(arrived) != 1 || arrived[0] != near.ID {
		t.Errorf("arrived = %v, want [%s]", arrived, near.ID)
	}
	if !far.Animating() {
		t.Error("far block should still be animating")
	}
}

func TestAnimateToCurrentPosition(t *testing.T) {
	b := animating(canvas.Point{X: 5, Y: 5}, canvas.Point{X: 50, Y: 5})
	Animate(b, b.Position)
	if b.Animating() {
		t.Error("animating to the current position should clear motion")
	}
}
