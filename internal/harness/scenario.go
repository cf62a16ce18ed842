package harness

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/roach88/gpuflat/internal/rewrite"
)

// Scenario defines a lowering scenario.
type Scenario struct {
	// Name uniquely identifies this scenario. It also names the golden file.
	Name string `yaml:"name"`

	// Description explains what this scenario validates.
	Description string `yaml:"description"`

	// Kernels lists paths to CUE kernel files to compile.
	// Paths are relative to the scenario file location.
	Kernels []string `yaml:"kernels"`

	// Func selects one kernel. If empty, every kernel is converted.
	Func string `yaml:"func,omitempty"`

	// Mode is "full" (default) or "partial".
	Mode string `yaml:"mode,omitempty"`

	// RunID is an optional fixed run id.
	// If empty, defaults to "test-run-default".
	RunID string `yaml:"run_id,omitempty"`

	// Args binds scalar parameters for the equivalent assertion.
	Args map[string]int64 `yaml:"args,omitempty"`

	// Buffers binds buffer parameters: "N" for N zeroed elements or
	// "[a, b, c]" for explicit contents.
	Buffers map[string]string `yaml:"buffers,omitempty"`

	// Expect specifies the expected outcome.
	Expect ExpectClause `yaml:"expect"`

	// Assertions validate remarks and the converted IR.
	Assertions []Assertion `yaml:"assertions,omitempty"`
}

// ExpectClause specifies the expected conversion outcome.
type ExpectClause struct {
	// Outcome is "converged", "partial" or "failed".
	Outcome Outcome `yaml:"outcome"`

	// Code is the error code expected on failure, e.g. LEGALIZATION_FAILED.
	Code string `yaml:"code,omitempty"`
}

// Assertion validates remarks or the converted IR.
type Assertion struct {
	// Type specifies the assertion type, see the package documentation.
	Type string `yaml:"type"`

	// Kind is the remark kind (remark_contains, remark_count).
	Kind string `yaml:"kind,omitempty"`

	// Code is the remark code (remark_contains).
	Code string `yaml:"code,omitempty"`

	// Count is the expected number (remark_count, loops_remaining).
	Count int `yaml:"count,omitempty"`

	// Kinds is the expected remark kind order (remark_order).
	Kinds []string `yaml:"kinds,omitempty"`

	// Launch is the launch index in pre-order (launch_sizes).
	Launch int `yaml:"launch,omitempty"`

	// Grid and Block are the expected launch sizes (launch_sizes).
	Grid  []int64 `yaml:"grid,omitempty"`
	Block []int64 `yaml:"block,omitempty"`
}

// Assertion type constants.
const (
	AssertRemarkContains = "remark_contains"
	AssertRemarkCount    = "remark_count"
	AssertRemarkOrder    = "remark_order"
	AssertLaunchSizes    = "launch_sizes"
	AssertLoopsRemaining = "loops_remaining"
	AssertEquivalent     = "equivalent"
	AssertUnchanged      = "unchanged"
)

// LoadScenario reads and parses a scenario YAML file, resolving kernel paths
// relative to the file's directory.
// Returns an error if the file doesn't exist, is malformed,
// contains unknown fields (typos), or is missing required fields.
func LoadScenario(path string) (*Scenario, error) {
	return LoadScenarioWithBasePath(path, filepath.Dir(path))
}

// LoadScenarioWithBasePath reads and parses a scenario YAML file,
// resolving kernel paths relative to the provided base path.
func LoadScenarioWithBasePath(path, basePath string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}

	// Parse YAML with strict field validation (catches typos like "assertion:" vs "assertions:")
	var scenario Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true) // Reject unknown fields
	if err := decoder.Decode(&scenario); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	// Resolve kernel paths relative to base path BEFORE validation
	for i, path := range scenario.Kernels {
		if !filepath.IsAbs(path) && basePath != "" {
			scenario.Kernels[i] = filepath.Join(basePath, path)
		}
	}

	if err := validateScenario(&scenario); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}

	return &scenario, nil
}

// validateScenario checks that required fields are present and valid.
func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}

	if s.Description == "" {
		return fmt.Errorf("description is required")
	}

	if len(s.Kernels) == 0 {
		return fmt.Errorf("kernels list is required and must be non-empty")
	}

	for _, path := range s.Kernels {
		if _, err := os.Stat(path); os.IsNotExist(err) {
			return fmt.Errorf("kernel file not found: %s", path)
		}
	}

	if s.Mode != "" {
		if _, err := rewrite.ParseMode(s.Mode); err != nil {
			return err
		}
	}

	switch s.Expect.Outcome {
	case OutcomeConverged, OutcomePartial, OutcomeFailed:
	case "":
		return fmt.Errorf("expect.outcome is required")
	default:
		return fmt.Errorf("expect.outcome %q must be converged, partial or failed", s.Expect.Outcome)
	}

	for i := range s.Assertions {
		if err := validateAssertion(i, &s.Assertions[i], s); err != nil {
			return err
		}
	}

	return nil
}

// validateAssertion validates a single assertion based on its type.
func validateAssertion(index int, a *Assertion, s *Scenario) error {
	if a.Type == "" {
		return fmt.Errorf("assertions[%d]: type is required", index)
	}

	switch a.Type {
	case AssertRemarkContains, AssertRemarkCount:
		if a.Kind == "" {
			return fmt.Errorf("assertions[%d]: kind is required for %s", index, a.Type)
		}
	case AssertRemarkOrder:
		if len(a.Kinds) == 0 {
			return fmt.Errorf("assertions[%d]: kinds list is required for remark_order", index)
		}
	case AssertLaunchSizes:
		if len(a.Grid) != 3 || len(a.Block) != 3 {
			return fmt.Errorf("assertions[%d]: grid and block need 3 sizes each", index)
		}
	case AssertEquivalent:
		if s.Func == "" {
			return fmt.Errorf("assertions[%d]: equivalent requires func", index)
		}
	case AssertLoopsRemaining, AssertUnchanged:
	default:
		return fmt.Errorf("assertions[%d]: unknown assertion type %q", index, a.Type)
	}

	return nil
}
