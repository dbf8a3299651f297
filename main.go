// Command metaball evaluates metaball scene scripts, meshes them and
// answers raycasts, either once from the command line or as a websocket
// server.
package main

import (
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"strconv"
	"strings"
)

func main() {
	if err := run(os.Args[1:], os.Stdout); err != nil {
		fmt.Fprintln(os.Stderr, "metaball:", err)
		os.Exit(1)
	}
}

func run(args []string, stdout io.Writer) error {
	fs := flag.NewFlagSet("metaball", flag.ContinueOnError)
	scenePath := fs.String("scene", "", "scene script to evaluate")
	out := fs.String("out", "", "write the meshed scene to this STL file")
	mode := fs.String("mode", "", "override the scene's mode (skin, cubes, marching)")
	ray := fs.String("ray", "", "cast a ray: ox,oy,oz,dx,dy,dz")
	serve := fs.String("serve", "", "serve the websocket API on this address, e.g. :8080")
	if err := fs.Parse(args); err != nil {
		return err
	}

	app := NewApp()

	if *serve != "" {
		return NewServer(app).ListenAndServe(*serve)
	}
	if *scenePath == "" {
		fs.Usage()
		return fmt.Errorf("one of -scene or -serve is required")
	}

	src, err := os.ReadFile(*scenePath)
	if err != nil {
		return err
	}
	source := string(src)
	if *mode != "" {
		// Later settings win, so an appended form overrides the script.
		source += fmt.Sprintf("\n(mode :%s)\n", *mode)
	}

	res := app.Evaluate(source)
	for _, w := range res.Warnings {
		log.Printf("warning: %s", formatEvalError(w))
	}
	if len(res.Errors) > 0 {
		for _, e := range res.Errors {
			fmt.Fprintln(stdout, "error:", formatEvalError(e))
		}
		return fmt.Errorf("%s: evaluation failed", *scenePath)
	}

	triangles := 0
	for _, m := range res.Meshes {
		n := len(m.Indices) / 3
		triangles += n
		fmt.Fprintf(stdout, "%s: %d triangles\n", m.PartName, n)
	}
	fmt.Fprintf(stdout, "mode %s, %d sources, %d blobs, %d triangles\n",
		res.Mode, res.Sources, len(res.Meshes), triangles)

	if *ray != "" {
		origin, dir, err := parseRay(*ray)
		if err != nil {
			return err
		}
		r := app.Raycast(origin, dir)
		switch {
		case r.Error != "":
			return fmt.Errorf("raycast: %s", r.Error)
		case r.Hit:
			fmt.Fprintf(stdout, "hit at (%.4f, %.4f, %.4f), t=%.4f\n", r.Point[0], r.Point[1], r.Point[2], r.T)
		default:
			fmt.Fprintln(stdout, "no hit")
		}
	}

	if *out != "" {
		if err := app.ExportSTL(*out); err != nil {
			return err
		}
		fmt.Fprintf(stdout, "wrote %s\n", *out)
	}
	return nil
}

func formatEvalError(e EvalErrorData) string {
	if e.Line > 0 {
		return fmt.Sprintf("line %d: %s", e.Line, e.Message)
	}
	return e.Message
}

// parseRay parses "ox,oy,oz,dx,dy,dz".
func parseRay(s string) (origin, dir [3]float64, err error) {
	parts := strings.Split(s, ",")
	if len(parts) != 6 {
		return origin, dir, fmt.Errorf("ray: want 6 comma-separated numbers, got %d", len(parts))
	}
	var v [6]float64
	for i, p := range parts {
		v[i], err = strconv.ParseFloat(strings.TrimSpace(p), 64)
		if err != nil {
			return origin, dir, fmt.Errorf("ray: %w", err)
		}
	}
	return [3]float64{v[0], v[1], v[2]}, [3]float64{v[3], v[4], v[5]}, nil
}
