package scene

import (
	"math"
	"strings"
	"testing"

	"github.com/chazu/metaball/pkg/kernel"
	v3 "github.com/deadsy/sdfx/vec/v3"
)

func TestNewDefaults(t *testing.T) {
	s := New()
	if s.Settings.MinSize != DefaultMinSize {
		t.Errorf("MinSize = %f, want %f", s.Settings.MinSize, DefaultMinSize)
	}
	if s.Settings.Mode != kernel.ModeSkin {
		t.Errorf("Mode = %q, want skin", s.Settings.Mode)
	}
	if s.BlobCount() != 0 {
		t.Errorf("BlobCount = %d, want 0", s.BlobCount())
	}
}

func TestAddBlobAndLookup(t *testing.T) {
	s := New()
	a := &Blob{Name: "a", Positions: []v3.Vec{{X: 1}}}
	b := &Blob{Name: "b", Positions: []v3.Vec{{Y: 1}, {Z: 1}}}
	for _, blob := range []*Blob{a, b} {
		if err := s.AddBlob(blob); err != nil {
			t.Fatalf("AddBlob(%q): %v", blob.Name, err)
		}
	}

	if s.Lookup("b") != b {
		t.Error("Lookup(b) returned wrong blob")
	}
	if s.Lookup("missing") != nil {
		t.Error("Lookup(missing) should be nil")
	}
	if s.SourceCount() != 3 {
		t.Errorf("SourceCount = %d, want 3", s.SourceCount())
	}
	if s.Blobs[0] != a || s.Blobs[1] != b {
		t.Error("blob order should follow definition order")
	}

	if err := s.AddBlob(&Blob{Name: "a"}); err == nil {
		t.Error("expected duplicate name error")
	}
	if err := s.AddBlob(&Blob{}); err == nil {
		t.Error("expected empty name error")
	}
}

func TestCombined(t *testing.T) {
	s := New()
	_ = s.AddBlob(&Blob{Name: "a", Positions: []v3.Vec{{X: 1}}})
	_ = s.AddBlob(&Blob{Name: "b", Positions: []v3.Vec{{Y: 2}, {Z: 3}}})

	sh, err := s.Combined()
	if err != nil {
		t.Fatal(err)
	}
	if sh.Len() != 3 {
		t.Fatalf("Len = %d, want 3", sh.Len())
	}
	if sh.Source(2).Pos != (v3.Vec{Z: 3}) {
		t.Errorf("source order not preserved: %v", sh.Source(2).Pos)
	}
}

func TestBlobShapeRejectsNaN(t *testing.T) {
	b := &Blob{Name: "bad", Positions: []v3.Vec{{X: math.NaN()}}}
	if _, err := b.Shape(); err == nil || !strings.Contains(err.Error(), "bad") {
		t.Errorf("Shape() error = %v, want error naming the blob", err)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name      string
		build     func() *Scene
		wantErr   bool
		wantWarns int
		contains  string
	}{
		{
			name: "valid",
			build: func() *Scene {
				s := New()
				_ = s.AddBlob(&Blob{Name: "a", Positions: []v3.Vec{{}, {X: 0.5}}})
				return s
			},
		},
		{
			name: "empty blob",
			build: func() *Scene {
				s := New()
				_ = s.AddBlob(&Blob{Name: "a"})
				return s
			},
			wantWarns: 1,
			contains:  "no sources",
		},
		{
			name: "coincident sources",
			build: func() *Scene {
				s := New()
				_ = s.AddBlob(&Blob{Name: "a", Positions: []v3.Vec{{X: 1}, {}, {X: 1}}})
				return s
			},
			wantWarns: 1,
			contains:  "coincide",
		},
		{
			name: "bad resolution",
			build: func() *Scene {
				s := New()
				s.Settings.MinSize = 0
				return s
			},
			wantErr:  true,
			contains: "resolution",
		},
		{
			name: "bad mode",
			build: func() *Scene {
				s := New()
				s.Settings.Mode = "voxels"
				return s
			},
			wantErr:  true,
			contains: "unknown mode",
		},
		{
			name: "nan position",
			build: func() *Scene {
				s := New()
				_ = s.AddBlob(&Blob{Name: "a", Positions: []v3.Vec{{Y: math.NaN()}}})
				return s
			},
			wantErr:  true,
			contains: "not finite",
		},
		{
			name: "depth capped",
			build: func() *Scene {
				s := New()
				s.Settings.MinSize = 1e-4
				_ = s.AddBlob(&Blob{Name: "a", Positions: []v3.Vec{{}}})
				return s
			},
			wantWarns: 1,
			contains:  "depth",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			errs := Validate(tt.build())
			if HasErrors(errs) != tt.wantErr {
				t.Fatalf("HasErrors = %v, want %v (%v)", !tt.wantErr, tt.wantErr, errs)
			}
			warns := 0
			for _, e := range errs {
				if e.Severity == SeverityWarning {
					warns++
				}
			}
			if warns != tt.wantWarns {
				t.Errorf("got %d warnings, want %d: %v", warns, tt.wantWarns, errs)
			}
			if tt.contains != "" {
				found := false
				for _, e := range errs {
					if strings.Contains(e.Error(), tt.contains) {
						found = true
					}
				}
				if !found {
					t.Errorf("no finding contains %q: %v", tt.contains, errs)
				}
			}
		})
	}
}

func TestRequiredDepth(t *testing.T) {
	tests := []struct {
		extent, minSize float64
		want            int
	}{
		{2, 0.5, 2},
		{2, 0.25, 3},
		{2, 0.3, 3},
		{2, 4, 0},
		{2, 2, 0},
	}
	for _, tt := range tests {
		if got := RequiredDepth(tt.extent, tt.minSize); got != tt.want {
			t.Errorf("RequiredDepth(%g, %g) = %d, want %d", tt.extent, tt.minSize, got, tt.want)
		}
	}
}

func TestValidationErrorString(t *testing.T) {
	e := ValidationError{Blob: "x", Message: "boom", Severity: SeverityWarning}
	if got := e.Error(); got != `[warning] blob "x": boom` {
		t.Errorf("Error() = %q", got)
	}
	e = ValidationError{Message: "boom"}
	if got := e.Error(); got != "[error] boom" {
		t.Errorf("Error() = %q", got)
	}
}
