package harness

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"
)

// ScenarioNotFoundError is returned when a scenario path does not exist.
type ScenarioNotFoundError struct {
	Path string
}

// Error implements the error interface.
func (e *ScenarioNotFoundError) Error() string {
	return fmt.Sprintf("scenario file %q does not exist", e.Path)
}

// SuiteResult summarizes a run over several scenario files.
type SuiteResult struct {
	Total    int                `json:"total"`
	Passed   int                `json:"passed"`
	Failed   int                `json:"failed"`
	Failures []ScenarioFailure  `json:"failures,omitempty"`
	Results  map[string]*Result `json:"-"`
}

// ScenarioFailure describes one failed scenario.
type ScenarioFailure struct {
	Scenario string   `json:"scenario"`
	Path     string   `json:"path"`
	Errors   []string `json:"errors"`
}

// FindScenarios expands path into scenario files: a file is returned as
// is, a directory yields its *.yaml and *.yml files in name order.
func FindScenarios(path string) ([]string, error) {
	info, err := os.Stat(path)
	if os.IsNotExist(err) {
		return nil, &ScenarioNotFoundError{Path: path}
	}
	if err != nil {
		return nil, err
	}
	if !info.IsDir() {
		return []string{path}, nil
	}
	entries, err := os.ReadDir(path)
	if err != nil {
		return nil, err
	}
	var files []string
	for _, e := range entries {
		ext := strings.ToLower(filepath.Ext(e.Name()))
		if !e.IsDir() && (ext == ".yaml" || ext == ".yml") {
			files = append(files, filepath.Join(path, e.Name()))
		}
	}
	slices.Sort(files)
	return files, nil
}

// RunSuite loads and runs every scenario under path. A scenario that
// fails to load or run counts as failed; the suite keeps going.
func RunSuite(ctx context.Context, path string, opts ...Option) (*SuiteResult, error) {
	files, err := FindScenarios(path)
	if err != nil {
		return nil, err
	}
	suite := &SuiteResult{Results: make(map[string]*Result)}
	for _, file := range files {
		suite.Total++
		fail := func(name string, errors ...string) {
			suite.Failed++
			suite.Failures = append(suite.Failures, ScenarioFailure{Scenario: name, Path: file, Errors: errors})
		}

		scenario, err := LoadScenario(file)
		if err != nil {
			fail(filepath.Base(file), fmt.Sprintf("failed to load scenario: %v", err))
			continue
		}
		result, err := Run(ctx, scenario, opts...)
		if err != nil {
			fail(scenario.Name, fmt.Sprintf("scenario execution failed: %v", err))
			continue
		}
		suite.Results[file] = result
		if !result.Pass {
			fail(scenario.Name, result.Errors...)
			continue
		}
		suite.Passed++
	}
	return suite, nil
}
