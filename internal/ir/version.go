package ir

// Version constants for the IR schema and the lowering pass.
const (
	// IRVersion is the IR schema version.
	IRVersion = "1"

	// PassVersion is the gpuflat pass version.
	PassVersion = "0.1.0"
)
