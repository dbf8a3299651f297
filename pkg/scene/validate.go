package scene

import (
	"fmt"
	"math"

	"github.com/chazu/metaball/pkg/extract"
	"github.com/chazu/metaball/pkg/kernel"
	v3 "github.com/deadsy/sdfx/vec/v3"
)

// ValidationSeverity indicates whether a validation finding blocks meshing
// or is merely informational.
type ValidationSeverity int

const (
	SeverityError   ValidationSeverity = iota // blocks meshing
	SeverityWarning                           // informational
)

func (s ValidationSeverity) String() string {
	switch s {
	case SeverityError:
		return "error"
	case SeverityWarning:
		return "warning"
	default:
		return fmt.Sprintf("ValidationSeverity(%d)", int(s))
	}
}

// ValidationError describes a single validation finding.
type ValidationError struct {
	Blob     string             // which blob has the problem (empty if scene-level)
	Line     int                // script line of the blob, if known
	Message  string             // human-readable description
	Severity ValidationSeverity // error or warning
}

func (e ValidationError) Error() string {
	if e.Blob == "" {
		return fmt.Sprintf("[%s] %s", e.Severity, e.Message)
	}
	return fmt.Sprintf("[%s] blob %q: %s", e.Severity, e.Blob, e.Message)
}

// Validate checks the scene and returns its findings. An empty slice means
// the scene is valid. It never mutates the scene.
func Validate(s *Scene) []ValidationError {
	var errs []ValidationError
	errs = append(errs, validateSettings(s)...)
	errs = append(errs, validatePositions(s)...)
	errs = append(errs, validateEmpty(s)...)
	errs = append(errs, validateCoincident(s)...)
	errs = append(errs, validateDepth(s)...)
	return errs
}

// HasErrors reports whether any finding is blocking.
func HasErrors(errs []ValidationError) bool {
	for _, e := range errs {
		if e.Severity == SeverityError {
			return true
		}
	}
	return false
}

func validateSettings(s *Scene) []ValidationError {
	var errs []ValidationError
	if !(s.Settings.MinSize > 0) || math.IsInf(s.Settings.MinSize, 0) {
		errs = append(errs, ValidationError{
			Message:  fmt.Sprintf("resolution must be positive and finite, got %v", s.Settings.MinSize),
			Severity: SeverityError,
		})
	}
	if _, err := kernel.ParseMode(string(s.Settings.Mode)); err != nil {
		errs = append(errs, ValidationError{Message: err.Error(), Severity: SeverityError})
	}
	return errs
}

func validatePositions(s *Scene) []ValidationError {
	var errs []ValidationError
	for _, b := range s.Blobs {
		if _, err := b.Shape(); err != nil {
			errs = append(errs, ValidationError{
				Blob:     b.Name,
				Line:     b.Source.Line,
				Message:  err.Error(),
				Severity: SeverityError,
			})
		}
	}
	return errs
}

func validateEmpty(s *Scene) []ValidationError {
	var errs []ValidationError
	for _, b := range s.Blobs {
		if len(b.Positions) == 0 {
			errs = append(errs, ValidationError{
				Blob:     b.Name,
				Line:     b.Source.Line,
				Message:  "blob has no sources and produces no geometry",
				Severity: SeverityWarning,
			})
		}
	}
	return errs
}

// validateCoincident flags sources at identical positions. They are legal
// but usually a typo.
func validateCoincident(s *Scene) []ValidationError {
	var errs []ValidationError
	for _, b := range s.Blobs {
		seen := make(map[v3.Vec]int, len(b.Positions))
		for i, p := range b.Positions {
			if j, ok := seen[p]; ok {
				errs = append(errs, ValidationError{
					Blob:     b.Name,
					Line:     b.Source.Line,
					Message:  fmt.Sprintf("sources %d and %d coincide at %v", j, i, p),
					Severity: SeverityWarning,
				})
				continue
			}
			seen[p] = i
		}
	}
	return errs
}

// RequiredDepth returns the octree depth at which cells of the given
// bounds become no larger than minSize.
func RequiredDepth(extent, minSize float64) int {
	if extent <= minSize {
		return 0
	}
	return int(math.Ceil(math.Log2(extent / minSize)))
}

func validateDepth(s *Scene) []ValidationError {
	if !(s.Settings.MinSize > 0) || s.Settings.Mode == kernel.ModeMarching {
		return nil
	}
	var errs []ValidationError
	for _, b := range s.Blobs {
		if len(b.Positions) == 0 {
			continue
		}
		sh, err := b.Shape()
		if err != nil {
			continue
		}
		extent := sh.Bounds().Size().MaxComponent()
		if d := RequiredDepth(extent, s.Settings.MinSize); d > extract.DefaultMaxDepth {
			errs = append(errs, ValidationError{
				Blob: b.Name,
				Line: b.Source.Line,
				Message: fmt.Sprintf("resolution %g needs octree depth %d, capped at %d; leaves will be coarser",
					s.Settings.MinSize, d, extract.DefaultMaxDepth),
				Severity: SeverityWarning,
			})
		}
	}
	return errs
}
