package main

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/chazu/metaball/pkg/engine"
	"github.com/chazu/metaball/pkg/kernel"
	"github.com/chazu/metaball/pkg/raycast"
	"github.com/chazu/metaball/pkg/scene"
	"github.com/chazu/metaball/pkg/tessellate"
	"github.com/deadsy/sdfx/render"
	"github.com/deadsy/sdfx/sdf"
	v3 "github.com/deadsy/sdfx/vec/v3"
)

// TessellateTimeout bounds meshing of one evaluated scene.
const TessellateTimeout = 30 * time.Second

// colorPalette is a default palette used to assign distinct colors to blobs.
var colorPalette = []string{
	"#4A90D9", "#E67E22", "#2ECC71", "#9B59B6",
	"#E74C3C", "#1ABC9C", "#F39C12", "#3498DB",
}

// App is the backend shared by the CLI and the websocket server.
type App struct {
	engine *engine.Engine

	mu     sync.Mutex
	scene  *scene.Scene
	meshes []*kernel.Mesh
}

// MeshData is the JSON-serializable mesh format sent to clients.
type MeshData struct {
	Vertices    []float32 `json:"vertices"`
	Normals     []float32 `json:"normals"`
	Indices     []uint32  `json:"indices"`
	PartName    string    `json:"partName"`
	Color       string    `json:"color"`
	Approximate int       `json:"approximate,omitempty"`
}

// EvalErrorData is a JSON-serializable eval error or warning.
type EvalErrorData struct {
	Line    int    `json:"line"`
	Col     int    `json:"col"`
	Message string `json:"message"`
}

// EvalResult is the full result of one evaluation.
type EvalResult struct {
	Meshes   []MeshData      `json:"meshes"`
	Errors   []EvalErrorData `json:"errors"`
	Warnings []EvalErrorData `json:"warnings"`
	Mode     kernel.Mode     `json:"mode,omitempty"`
	Sources  int             `json:"sources"`
}

// RayResult is the JSON-serializable result of a raycast.
type RayResult struct {
	Hit       bool       `json:"hit"`
	Point     [3]float64 `json:"point"`
	T         float64    `json:"t"`
	Normal    [3]float64 `json:"normal"`
	HasNormal bool       `json:"hasNormal"`
	Error     string     `json:"error,omitempty"`
}

// NewApp creates a new App with a fresh engine.
func NewApp() *App {
	return &App{engine: engine.NewEngine()}
}

// Evaluate takes Lisp source and returns mesh data, errors and warnings.
// On success the scene is kept for later raycasts.
func (a *App) Evaluate(source string) EvalResult {
	return a.EvaluateContext(context.Background(), source)
}

// EvaluateContext is Evaluate bounded by ctx. Cancelling ctx abandons
// both script evaluation and tessellation.
func (a *App) EvaluateContext(ctx context.Context, source string) EvalResult {
	result := EvalResult{
		Meshes:   []MeshData{},
		Errors:   []EvalErrorData{},
		Warnings: []EvalErrorData{},
	}

	// Step 1: Evaluate the Lisp source into a scene.
	res := a.engine.EvaluateResult(ctx, source)
	if len(res.Errors) > 0 {
		for _, e := range res.Errors {
			result.Errors = append(result.Errors, EvalErrorData{Line: e.Line, Col: e.Col, Message: e.Message})
		}
		return result
	}
	for _, w := range res.Warnings {
		result.Warnings = append(result.Warnings, EvalErrorData{Line: w.Line, Col: w.Col, Message: w.Message})
	}
	sc := res.Scene
	result.Mode = sc.Settings.Mode
	result.Sources = sc.SourceCount()

	// Step 2: Tessellate each blob with the scene's kernel.
	ctx, cancel := context.WithTimeout(ctx, TessellateTimeout)
	defer cancel()
	meshes, err := tessellate.Scene(ctx, sc)
	if err != nil {
		log.Printf("Tessellate error: %v", err)
		result.Errors = append(result.Errors, EvalErrorData{Message: "tessellation failed: " + err.Error()})
		return result
	}

	// Step 3: Convert kernel meshes to MeshData.
	for i, m := range meshes {
		if m.Approximate > 0 {
			result.Warnings = append(result.Warnings, EvalErrorData{
				Message: fmt.Sprintf("blob %q: %d vertices did not converge onto the surface", m.PartName, m.Approximate),
			})
		}
		result.Meshes = append(result.Meshes, MeshData{
			Vertices:    m.Vertices,
			Normals:     m.Normals,
			Indices:     m.Indices,
			PartName:    m.PartName,
			Color:       colorPalette[i%len(colorPalette)],
			Approximate: m.Approximate,
		})
	}

	a.mu.Lock()
	a.scene = sc
	a.meshes = meshes
	a.mu.Unlock()

	return result
}

// Raycast casts a ray against every source of the last evaluated scene.
func (a *App) Raycast(origin, dir [3]float64) RayResult {
	a.mu.Lock()
	sc := a.scene
	a.mu.Unlock()

	if sc == nil {
		return RayResult{Error: "no scene evaluated"}
	}
	shape, err := sc.Combined()
	if err != nil {
		return RayResult{Error: err.Error()}
	}
	ray, err := raycast.NewRay(toVec(origin), toVec(dir))
	if err != nil {
		return RayResult{Error: err.Error()}
	}

	hit, ok := raycast.Intersect(shape, ray)
	if !ok {
		return RayResult{}
	}
	return RayResult{
		Hit:       true,
		Point:     fromVec(hit.Point),
		T:         hit.T,
		Normal:    fromVec(hit.Normal),
		HasNormal: hit.HasNormal,
	}
}

// ExportSTL writes the meshes of the last successful evaluation to one
// binary STL file.
func (a *App) ExportSTL(path string) error {
	a.mu.Lock()
	meshes := a.meshes
	a.mu.Unlock()

	if meshes == nil {
		return fmt.Errorf("export: no scene evaluated")
	}
	var tris []*sdf.Triangle3
	for _, m := range meshes {
		tris = append(tris, m.Triangles()...)
	}
	if len(tris) == 0 {
		return fmt.Errorf("export: scene produced no triangles")
	}
	if err := render.SaveSTL(path, tris); err != nil {
		return fmt.Errorf("export: %w", err)
	}
	return nil
}

func toVec(a [3]float64) v3.Vec {
	return v3.Vec{X: a[0], Y: a[1], Z: a[2]}
}

func fromVec(v v3.Vec) [3]float64 {
	return [3]float64{v.X, v.Y, v.Z}
}
