package compiler

import (
	"fmt"
	"os"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"

	"github.com/roach88/gpuflat/internal/ir"
)

// CompileFiles compiles each CUE file on its own and merges the kernels in
// file order. Kernel names must be unique across files.
func CompileFiles(paths ...string) (*ir.Module, error) {
	ctx := cuecontext.New()
	mod := &ir.Module{}
	seen := make(map[string]string)

	for _, path := range paths {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", path, err)
		}
		part, err := CompileModule(ctx.CompileBytes(data, cue.Filename(path)))
		if err != nil {
			return nil, err
		}
		for _, fn := range part.Funcs {
			if prev, ok := seen[fn.Name]; ok {
				return nil, &CompileError{
					Field:   KernelsField,
					Message: fmt.Sprintf("kernel %q declared in both %s and %s", fn.Name, prev, path),
				}
			}
			seen[fn.Name] = path
			mod.Funcs = append(mod.Funcs, fn)
		}
	}
	return mod, nil
}
