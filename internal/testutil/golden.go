// Package testutil provides shared test helpers for nixeval Go tests.
package testutil

import (
	"errors"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// ScenariosDir is the relative path from the module root to the golden
// scenarios.
const ScenariosDir = "testdata/scenarios"

// Scenario is one golden test: a Nix file and either the canonical strict
// rendering of its value or the diagnostic code it must fail with.
type Scenario struct {
	Name  string
	Dir   string
	Input string // path of input.nix

	// Expected holds expected.txt, the printed value.
	Expected string
	// ExpectedError holds expected_error.txt, a diagnostic code optionally
	// followed by a message fragment on the next line.
	ExpectedError string
	// Expanded selects the multi-line rendering (an `expanded` marker file).
	Expanded bool
}

// WantsError reports whether the scenario must fail.
func (s *Scenario) WantsError() bool {
	return s.ExpectedError != ""
}

// ErrorCode returns the expected diagnostic code.
func (s *Scenario) ErrorCode() string {
	code, _, _ := strings.Cut(s.ExpectedError, "\n")
	return strings.TrimSpace(code)
}

// ErrorFragment returns the text the error message must contain, if any.
func (s *Scenario) ErrorFragment() string {
	_, frag, _ := strings.Cut(s.ExpectedError, "\n")
	return strings.TrimSpace(frag)
}

// LoadScenario loads the scenario stored in dir.
func LoadScenario(dir string) (*Scenario, error) {
	s := &Scenario{
		Name:  filepath.Base(dir),
		Dir:   dir,
		Input: filepath.Join(dir, "input.nix"),
	}
	if _, err := os.Stat(s.Input); err != nil {
		return nil, err
	}
	expected, err := readOptional(filepath.Join(dir, "expected.txt"))
	if err != nil {
		return nil, err
	}
	s.Expected = strings.TrimRight(expected, "\n")
	if s.ExpectedError, err = readOptional(filepath.Join(dir, "expected_error.txt")); err != nil {
		return nil, err
	}
	if s.Expected == "" && s.ExpectedError == "" {
		return nil, errors.New(dir + ": neither expected.txt nor expected_error.txt present")
	}
	if _, err := os.Stat(filepath.Join(dir, "expanded")); err == nil {
		s.Expanded = true
	}
	return s, nil
}

func readOptional(path string) (string, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return "", nil
	}
	return string(data), err
}

// ListScenarios returns all scenario directories under root in name order.
func ListScenarios(root string) ([]string, error) {
	entries, err := os.ReadDir(root)
	if err != nil {
		return nil, err
	}
	var dirs []string
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		if _, err := os.Stat(filepath.Join(root, e.Name(), "input.nix")); err == nil {
			dirs = append(dirs, filepath.Join(root, e.Name()))
		}
	}
	sort.Strings(dirs)
	return dirs, nil
}
