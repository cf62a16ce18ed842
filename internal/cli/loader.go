package cli

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"slices"

	"cuelang.org/go/cue/token"

	"github.com/roach88/gpuflat/internal/compiler"
	"github.com/roach88/gpuflat/internal/ir"
)

// LoadResult contains the kernels loaded from one or more paths.
type LoadResult struct {
	Module *ir.Module
	Files  []string // CUE files compiled, in order
}

// LoadError represents an error that occurred during kernel loading.
type LoadError struct {
	Code    string
	Message string
	Pos     token.Pos // CUE position if available
}

func (e *LoadError) Error() string {
	if e.Pos.IsValid() {
		return fmt.Sprintf("%s:%d:%d: %s: %s", e.Pos.Filename(), e.Pos.Line(), e.Pos.Column(), e.Code, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// LoadKernels compiles the CUE files named by path. A directory contributes
// every .cue file below it in lexical order.
func LoadKernels(path string) (*LoadResult, error) {
	info, err := os.Stat(path)
	if os.IsNotExist(err) {
		return nil, &LoadError{Code: ErrCodeNotFound, Message: fmt.Sprintf("path not found: %s", path)}
	}
	if err != nil {
		return nil, &LoadError{Code: ErrCodeNotFound, Message: fmt.Sprintf("error accessing %s: %v", path, err)}
	}

	files := []string{path}
	if info.IsDir() {
		if files, err = FindCUEFiles(path); err != nil {
			return nil, &LoadError{Code: ErrCodeScanError, Message: fmt.Sprintf("error scanning directory: %v", err)}
		}
		if len(files) == 0 {
			return nil, &LoadError{Code: ErrCodeNoFiles, Message: fmt.Sprintf("no CUE files found in %s", path)}
		}
	}

	mod, err := compiler.CompileFiles(files...)
	if err != nil {
		return nil, convertCompileError(err)
	}
	return &LoadResult{Module: mod, Files: files}, nil
}

// selectFunc narrows mod to the named kernel. An empty name keeps all.
func selectFunc(mod *ir.Module, name string) (*ir.Module, error) {
	if name == "" {
		return mod, nil
	}
	fn, ok := mod.Lookup(name)
	if !ok {
		return nil, &LoadError{
			Code:    ErrCodeUnknownFunc,
			Message: fmt.Sprintf("kernel %q not found (have %v)", name, mod.Names()),
		}
	}
	return &ir.Module{Funcs: []*ir.Func{fn}}, nil
}

// FindCUEFiles walks the directory and returns all .cue file paths sorted.
func FindCUEFiles(dir string) ([]string, error) {
	var files []string
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() && filepath.Ext(path) == ".cue" {
			files = append(files, path)
		}
		return nil
	})
	slices.Sort(files)
	return files, err
}

// convertCompileError converts a compiler error to a LoadError with position info.
func convertCompileError(err error) *LoadError {
	var compileErr *compiler.CompileError
	if errors.As(err, &compileErr) {
		return &LoadError{
			Code:    MapFieldToErrorCode(compileErr.Field),
			Message: compileErr.Message,
			Pos:     compileErr.Pos,
		}
	}
	return &LoadError{
		Code:    ErrCodeLoadFailed,
		Message: err.Error(),
	}
}

// Error code constants - unified across all CLI commands.
const (
	ErrCodeGeneric     = "E001" // Generic/unknown error
	ErrCodeScanError   = "E002" // Directory scan error
	ErrCodeNoFiles     = "E003" // No CUE files found
	ErrCodeLoadFailed  = "E004" // Kernel file could not be read
	ErrCodeNotFound    = "E005" // Path not found
	ErrCodeBuildFailed = "E006" // CUE evaluation failed
	ErrCodeWriteFailed = "E007" // File write error
	ErrCodeUnknownFunc = "E008" // --func names no kernel
	ErrCodeBadFlag     = "E009" // Malformed flag value
	ErrCodeStoreFailed = "E010" // Remark journal error

	// Kernel compile errors
	ErrCodeKernel    = "E101" // Kernel declaration
	ErrCodeArgs      = "E102" // Parameter list or type
	ErrCodeBody      = "E103" // Body entry shape or op
	ErrCodeUndefined = "E104" // Undefined or redefined name
	ErrCodeLoop      = "E105" // Parallel loop shape
)

// MapFieldToErrorCode maps a compiler error field to an error code.
func MapFieldToErrorCode(field string) string {
	switch field {
	case "kernel":
		return ErrCodeKernel
	case "args", "type":
		return ErrCodeArgs
	case "body", "op", "operands", "size":
		return ErrCodeBody
	case "operand", "name":
		return ErrCodeUndefined
	case "iv", "parallel":
		return ErrCodeLoop
	case "cue":
		return ErrCodeBuildFailed
	default:
		return ErrCodeGeneric
	}
}

// errorCodeOf returns the code and message to report for err.
func errorCodeOf(err error) (string, string) {
	var loadErr *LoadError
	if errors.As(err, &loadErr) {
		if loadErr.Pos.IsValid() {
			return loadErr.Code, fmt.Sprintf("%s:%d:%d: %s",
				loadErr.Pos.Filename(), loadErr.Pos.Line(), loadErr.Pos.Column(), loadErr.Message)
		}
		return loadErr.Code, loadErr.Message
	}
	return ErrCodeGeneric, err.Error()
}

// commandError reports err through the formatter and returns an exit code 2
// error.
func commandError(f *OutputFormatter, err error) error {
	code, message := errorCodeOf(err)
	_ = f.Error(code, message, nil)
	return WrapExitError(ExitCommandError, code, err)
}
