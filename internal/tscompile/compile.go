// Package tscompile implements the TypeScript compiler pass of spec
// §4.10: strip types from a project's .ts files and lower each one to the
// AMD module form internal/amd expects, using github.com/evanw/esbuild
// per-file transpile-only transforms.
package tscompile

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	esbuild "github.com/evanw/esbuild/pkg/api"

	"github.com/cryguy/tsbridge/internal/bridge"
)

// File is one compiled source file: its module id (the path relative to
// the project root, without extension, matching the id a compiled AMD
// define() call is given) and its AMD-wrapped JavaScript.
type File struct {
	ID     string
	Source string
}

// Output is the result of compiling an entire project tree.
type Output struct {
	Files []File
}

// Project is one script-root directory to compile.
type Project struct {
	Root string
}

// NewProject returns a Project rooted at root.
func NewProject(root string) *Project {
	return &Project{Root: root}
}

// Compile walks p.Root for .ts files, strips their types via esbuild, and
// wraps each result in an AMD define() call under its relative-path
// module id. Diagnostics are translated to *bridge.TypeError, matching
// spec §7's taxonomy so a caller can handle a compile failure the same
// way it handles any other binding error.
func (p *Project) Compile() (*Output, error) {
	var files []string
	err := filepath.WalkDir(p.Root, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		if strings.HasSuffix(path, ".ts") && !strings.HasSuffix(path, ".d.ts") {
			files = append(files, path)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("tscompile: walking %q: %w", p.Root, err)
	}

	out := &Output{}
	for _, path := range files {
		src, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("tscompile: reading %q: %w", path, err)
		}
		rel, err := filepath.Rel(p.Root, path)
		if err != nil {
			return nil, fmt.Errorf("tscompile: resolving relative path for %q: %w", path, err)
		}
		id := strings.TrimSuffix(filepath.ToSlash(rel), ".ts")

		result := esbuild.Transform(string(src), esbuild.TransformOptions{
			Loader: esbuild.LoaderTS,
			Target: esbuild.ES2022,
			Format: esbuild.FormatCommonJS,
		})
		if len(result.Errors) > 0 {
			msgs := make([]string, len(result.Errors))
			for i, e := range result.Errors {
				msgs[i] = e.Text
			}
			return nil, bridge.NewTypeError(id, "compiling %s: %s", rel, strings.Join(msgs, "; "))
		}

		out.Files = append(out.Files, File{ID: id, Source: wrapAMD(id, string(result.Code))})
	}
	return out, nil
}

// wrapAMD wraps an esbuild CommonJS-format transpile in a define() call:
// the transpiled body already references `exports` and `require` as free
// variables (esbuild's CommonJS output convention), which line up
// exactly with the two parameters an AMD factory receives for the
// ["require", "exports"] dependency list.
func wrapAMD(id, body string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "define(%q, [\"require\", \"exports\"], function(require, exports) {\n", id)
	b.WriteString(body)
	b.WriteString("\n});\n")
	return b.String()
}
