package canvas

import (
	"testing"

	"github.com/matzehuels/spatialcanvas/pkg/errors"
)

func TestRectIntersects(t *testing.T) {
	base := Rect{MinX: 0, MinY: 0, MaxX: 10, MaxY: 10}

	tests := []struct {
		name  string
		other Rect
		want  bool
	}{
		{"overlapping", Rect{5, 5, 15, 15}, true},
		{"contained", Rect{2, 2, 4, 4}, true},
		{"touching edge", Rect{10, 0, 20, 10}, false},
		{"disjoint", Rect{20, 20, 30, 30}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := base.Intersects(tt.other); got != tt.want {
				t.Errorf("Intersects() = %v, want %v", got, tt.want)
			}
			if got := tt.other.Intersects(base); got != tt.want {
				t.Errorf("Intersects() not symmetric")
			}
		})
	}
}

func TestRectWithin(t *testing.T) {
	outer := Rect{0, 0, 100, 100}
	if !(Rect{10, 10, 90, 90}).Within(outer) {
		t.Error("inner rect should be within outer")
	}
	if (Rect{-1, 10, 90, 90}).Within(outer) {
		t.Error("rect crossing the edge should not be within")
	}
}

func TestPointMath(t *testing.T) {
	p := Point{3, 4}
	if d := p.Distance(Point{}); d != 5 {
		t.Errorf("Distance() = %v, want 5", d)
	}
	if got := p.Add(Vector{1, -1}); got != (Point{4, 3}) {
		t.Errorf("Add() = %v", got)
	}
	if got := (Size{10, 20}).Center(); got != (Point{5, 10}) {
		t.Errorf("Center() = %v", got)
	}
}

func TestScopeKey(t *testing.T) {
	tests := []struct {
		scope Scope
		want  string
	}{
		{Scope{DocumentType: "project", DocumentID: "42"}, "project/42"},
		{Scope{DocumentType: "project", DocumentID: "42", SpaceID: "s1"}, "project/42/s1"},
	}

	for _, tt := range tests {
		if got := tt.scope.Key(); got != tt.want {
			t.Errorf("Key() = %q, want %q", got, tt.want)
		}
		parsed, err := ParseScope(tt.want)
		if err != nil {
			t.Fatalf("ParseScope(%q) error: %v", tt.want, err)
		}
		if parsed != tt.scope {
			t.Errorf("ParseScope(%q) = %+v, want %+v", tt.want, parsed, tt.scope)
		}
	}
}

func TestScopeValidate(t *testing.T) {
	tests := []struct {
		name    string
		scope   Scope
		wantErr bool
	}{
		{"valid", Scope{DocumentType: "doc", DocumentID: "1"}, false},
		{"missing id", Scope{DocumentType: "doc"}, true},
		{"separator in part", Scope{DocumentType: "doc", DocumentID: "a/b"}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.scope.Validate()
			if (err != nil) != tt.wantErr {
				t.Fatalf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil && !errors.Is(err, errors.ErrCodeInvalidScope) {
				t.Errorf("code = %v, want INVALID_SCOPE", errors.GetCode(err))
			}
		})
	}

	if _, err := ParseScope("only-one-part"); err == nil {
		t.Error("ParseScope should reject a single part")
	}
}
