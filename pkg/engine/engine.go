// Package engine provides the Lisp evaluation engine for metaball scenes.
// It wraps zygomys in a sandboxed environment and produces a scene.Scene
// from user source code.
package engine

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/chazu/metaball/pkg/scene"
	zygo "github.com/glycerine/zygomys/zygo"
)

// EvalError represents a non-fatal error encountered during evaluation,
// such as a parse error or a runtime error in user code.
type EvalError struct {
	Line    int    `json:"line"`
	Col     int    `json:"col"`
	Message string `json:"message"`
}

func (e EvalError) Error() string {
	if e.Line > 0 {
		return fmt.Sprintf("line %d: %s", e.Line, e.Message)
	}
	return e.Message
}

// EvalWarning represents a non-fatal warning produced during evaluation.
type EvalWarning struct {
	Line    int    `json:"line"`
	Col     int    `json:"col"`
	Message string `json:"message"`
	Blob    string `json:"blob,omitempty"`
}

// EvalResult bundles the full output of an evaluation for use by the
// app and server.
type EvalResult struct {
	Scene    *scene.Scene
	Errors   []EvalError
	Warnings []EvalWarning
}

// EvalTimeout is the hard limit for a single evaluation.
const EvalTimeout = 5 * time.Second

var (
	// ErrEvalTimeout is returned when a script runs past its deadline.
	ErrEvalTimeout = errors.New("evaluation timed out")
	// ErrSuperseded is returned to a caller whose evaluation was replaced
	// by a newer one on the same Engine.
	ErrSuperseded = errors.New("evaluation superseded by newer request")
)

// Engine wraps the zygomys interpreter for scene evaluation.
// It is safe for concurrent use; each call to Evaluate creates a fresh
// sandboxed environment for determinism. Starting an evaluation cancels
// the one still in flight.
type Engine struct {
	mu         sync.Mutex
	generation uint64
	cancel     context.CancelFunc
}

// NewEngine creates a new Engine instance.
func NewEngine() *Engine {
	return &Engine{}
}

// evalResult passes evaluation results out of the worker goroutine.
type evalResult struct {
	scene  *scene.Scene
	errors []EvalError
	err    error
}

// Evaluate takes Lisp source code and produces a new Scene.
// Each call creates a fresh zygomys sandbox for deterministic evaluation.
// The script runs under ctx bounded by EvalTimeout.
//
// Return semantics:
//   - On success: returns scene + nil errors + nil error
//   - On parse/eval/validation failure: returns nil scene + eval errors + nil error
//   - On timeout, cancellation, panic or supersession: returns nil + nil + error
func (e *Engine) Evaluate(ctx context.Context, source string) (*scene.Scene, []EvalError, error) {
	ctx, cancel := context.WithTimeout(ctx, EvalTimeout)
	defer cancel()

	e.mu.Lock()
	if e.cancel != nil {
		e.cancel()
	}
	e.generation++
	gen := e.generation
	e.cancel = cancel
	e.mu.Unlock()

	ch := make(chan evalResult, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				ch <- evalResult{err: fmt.Errorf("panic during evaluation: %v", r)}
			}
		}()
		sc, evalErrs, err := e.evaluate(ctx, source)
		ch <- evalResult{scene: sc, errors: evalErrs, err: err}
	}()

	select {
	case res := <-ch:
		if err := e.interrupted(ctx, gen); err != nil {
			return nil, nil, err
		}
		return res.scene, res.errors, res.err
	case <-ctx.Done():
		// Scripts that never call a builtin keep running; their result is
		// dropped when the goroutine sends into the buffered channel.
		return nil, nil, e.interrupted(ctx, gen)
	}
}

// interrupted reports why the result of generation gen must be discarded,
// or nil when it is still wanted.
func (e *Engine) interrupted(ctx context.Context, gen uint64) error {
	e.mu.Lock()
	current := e.generation
	e.mu.Unlock()

	switch {
	case gen != current:
		return ErrSuperseded
	case errors.Is(ctx.Err(), context.DeadlineExceeded):
		return ErrEvalTimeout
	}
	return ctx.Err()
}

// EvaluateResult runs Evaluate and attaches validation warnings.
// A fatal error is reported as a single EvalError.
func (e *Engine) EvaluateResult(ctx context.Context, source string) EvalResult {
	sc, evalErrs, err := e.Evaluate(ctx, source)
	if err != nil {
		return EvalResult{Errors: []EvalError{{Message: err.Error()}}}
	}
	if sc == nil {
		return EvalResult{Errors: evalErrs}
	}
	return EvalResult{Scene: sc, Warnings: Warnings(sc)}
}

// evaluate performs the actual zygomys evaluation in a fresh sandbox.
func (e *Engine) evaluate(ctx context.Context, source string) (*scene.Scene, []EvalError, error) {
	if err := ctx.Err(); err != nil {
		return nil, nil, err
	}
	sc := scene.New()

	// Empty source is a valid program that produces an empty scene.
	if strings.TrimSpace(source) == "" {
		return sc, nil, nil
	}

	// Sandbox mode prevents user code from accessing the filesystem or syscalls.
	env := zygo.NewZlispSandbox()
	defer env.Stop()

	registerBuiltins(ctx, env, sc)

	if err := env.LoadString(preprocessSource(source)); err != nil {
		return nil, parseZygomysError(err), nil
	}
	if _, err := env.Run(); err != nil {
		return nil, parseZygomysError(err), nil
	}

	attachLines(sc, source)

	if findings := scene.Validate(sc); scene.HasErrors(findings) {
		var evalErrs []EvalError
		for _, f := range findings {
			if f.Severity == scene.SeverityError {
				evalErrs = append(evalErrs, EvalError{Line: f.Line, Message: f.Error()})
			}
		}
		return nil, evalErrs, nil
	}

	return sc, nil, nil
}

// Warnings converts the scene's non-blocking validation findings into
// EvalWarnings.
func Warnings(sc *scene.Scene) []EvalWarning {
	var warns []EvalWarning
	for _, f := range scene.Validate(sc) {
		if f.Severity != scene.SeverityWarning {
			continue
		}
		warns = append(warns, EvalWarning{Line: f.Line, Message: f.Message, Blob: f.Blob})
	}
	return warns
}

// blobPattern finds blob definitions in unprocessed source.
var blobPattern = regexp.MustCompile(`\(\s*blob\s+"((?:[^"\\]|\\.)*)"`)

// attachLines records the script line of each blob's definition.
func attachLines(sc *scene.Scene, source string) {
	for _, m := range blobPattern.FindAllStringSubmatchIndex(source, -1) {
		name := source[m[2]:m[3]]
		b := sc.Lookup(name)
		if b == nil || b.Source.Line != 0 {
			continue
		}
		b.Source.Line = strings.Count(source[:m[0]], "\n") + 1
	}
}

// linePattern matches zygomys error messages that include "Error on line N: ..."
var linePattern = regexp.MustCompile(`(?i)(?:error )?on line (\d+):\s*(.*)`)

// linePatternShort matches simpler "line N: ..." patterns.
var linePatternShort = regexp.MustCompile(`(?i)^line (\d+):\s*(.*)`)

// parseZygomysError converts a zygomys error into one or more EvalError values.
// zygomys formats parse errors as "Error on line N: <details>\n".
func parseZygomysError(err error) []EvalError {
	msg := err.Error()

	for _, re := range []*regexp.Regexp{linePattern, linePatternShort} {
		if m := re.FindStringSubmatch(msg); m != nil {
			line, _ := strconv.Atoi(m[1])
			return []EvalError{{
				Line:    line,
				Message: strings.TrimSpace(m[2]),
			}}
		}
	}

	return []EvalError{{Message: strings.TrimSpace(msg)}}
}
