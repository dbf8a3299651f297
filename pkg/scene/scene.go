// Package scene defines the scene produced by evaluating a scene script:
// an ordered set of named blobs, each a composite metaball field, plus the
// settings used to mesh them.
package scene

import (
	"fmt"

	"github.com/chazu/metaball/pkg/field"
	"github.com/chazu/metaball/pkg/kernel"
	v3 "github.com/deadsy/sdfx/vec/v3"
)

// DefaultMinSize is the default octree leaf size.
const DefaultMinSize = 0.25

// DefaultMode is the default meshing strategy.
const DefaultMode = kernel.ModeSkin

// Settings contains scene-wide meshing settings.
type Settings struct {
	MinSize float64     `json:"minSize"`
	Mode    kernel.Mode `json:"mode"`
}

// SourceRef records where in the script a blob was defined.
type SourceRef struct {
	Line int `json:"line,omitempty"`
}

// Blob is a named group of sources meshed as one composite field.
type Blob struct {
	Name      string    `json:"name"`
	Positions []v3.Vec  `json:"positions"`
	Source    SourceRef `json:"source"`
}

// Shape builds the blob's composite field.
func (b *Blob) Shape() (*field.Shape, error) {
	s, err := field.New(b.Positions...)
	if err != nil {
		return nil, fmt.Errorf("blob %q: %w", b.Name, err)
	}
	return s, nil
}

// Scene is the immutable result of one script evaluation.
// Blob order is definition order.
type Scene struct {
	Blobs     []*Blob        `json:"blobs"`
	NameIndex map[string]int `json:"nameIndex"`
	Settings  Settings       `json:"settings"`
}

// New creates an empty Scene with default settings.
func New() *Scene {
	return &Scene{
		NameIndex: make(map[string]int),
		Settings: Settings{
			MinSize: DefaultMinSize,
			Mode:    DefaultMode,
		},
	}
}

// AddBlob appends a blob. Names must be unique.
func (s *Scene) AddBlob(b *Blob) error {
	if b.Name == "" {
		return fmt.Errorf("scene: blob name must not be empty")
	}
	if _, dup := s.NameIndex[b.Name]; dup {
		return fmt.Errorf("scene: duplicate blob name %q", b.Name)
	}
	s.NameIndex[b.Name] = len(s.Blobs)
	s.Blobs = append(s.Blobs, b)
	return nil
}

// Lookup returns the blob with the given name, or nil.
func (s *Scene) Lookup(name string) *Blob {
	i, ok := s.NameIndex[name]
	if !ok {
		return nil
	}
	return s.Blobs[i]
}

// BlobCount returns the number of blobs.
func (s *Scene) BlobCount() int {
	return len(s.Blobs)
}

// SourceCount returns the total number of sources over all blobs.
func (s *Scene) SourceCount() int {
	n := 0
	for _, b := range s.Blobs {
		n += len(b.Positions)
	}
	return n
}

// Combined returns one field over every source in the scene, in blob order.
// Raycasting uses it so a ray sees all blobs at once.
func (s *Scene) Combined() (*field.Shape, error) {
	all := make([]v3.Vec, 0, s.SourceCount())
	for _, b := range s.Blobs {
		all = append(all, b.Positions...)
	}
	return field.New(all...)
}
