// Package capabilities implements the restricted-evaluation policy: which
// filesystem paths and environment variables an evaluation may read.
package capabilities

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/adrg/xdg"
	"github.com/bmatcuk/doublestar/v4"
	"github.com/goccy/go-json"
)

// ErrForbidden is returned for paths and variables the policy does not allow.
var ErrForbidden = errors.New("not allowed by policy")

// PolicyFileName is looked up in the project directory; the user policy
// lives at $XDG_CONFIG_HOME/nixeval/policy.json.
const PolicyFileName = ".nixeval-policy.json"

const userPolicyRelPath = "nixeval/policy.json"

// Policy decides which paths and environment variables may be read. Path
// entries are doublestar globs; an entry without glob characters allows the
// path itself and everything below it. Deny entries override allow entries.
type Policy struct {
	paths        []string
	deny         []string
	env          []string
	unrestricted bool
}

// PolicyFile represents the JSON structure of a policy file.
type PolicyFile struct {
	AllowPaths []string `json:"allowPaths,omitempty"`
	DenyPaths  []string `json:"denyPaths,omitempty"`
	AllowEnv   []string `json:"allowEnv,omitempty"`
}

// New builds a restricting policy, validating every pattern.
func New(pf PolicyFile) (*Policy, error) {
	p := &Policy{}
	for _, list := range [][]string{pf.AllowPaths, pf.DenyPaths, pf.AllowEnv} {
		for _, patt := range list {
			if !doublestar.ValidatePattern(patt) {
				return nil, fmt.Errorf("invalid pattern %q", patt)
			}
		}
	}
	for _, patt := range pf.AllowPaths {
		p.paths = append(p.paths, cleanPattern(patt))
	}
	for _, patt := range pf.DenyPaths {
		p.deny = append(p.deny, cleanPattern(patt))
	}
	p.env = append(p.env, pf.AllowEnv...)
	return p, nil
}

func cleanPattern(patt string) string {
	if strings.HasPrefix(patt, "~/") {
		if home, err := os.UserHomeDir(); err == nil {
			patt = filepath.Join(home, patt[2:])
		}
	}
	if !strings.ContainsAny(patt, "*?[{") {
		return filepath.Clean(patt)
	}
	return patt
}

func matches(patt, path string) bool {
	if !strings.ContainsAny(patt, "*?[{") {
		return path == patt || strings.HasPrefix(path, strings.TrimSuffix(patt, "/")+"/")
	}
	ok, err := doublestar.Match(patt, path)
	return err == nil && ok
}

// CheckPath returns ErrForbidden unless path may be read.
func (p *Policy) CheckPath(path string) error {
	if p == nil || p.unrestricted {
		return nil
	}
	path = filepath.Clean(path)
	for _, patt := range p.deny {
		if matches(patt, path) {
			return ErrForbidden
		}
	}
	for _, patt := range p.paths {
		if matches(patt, path) {
			return nil
		}
	}
	return ErrForbidden
}

// CheckEnv returns ErrForbidden unless the variable may be read.
func (p *Policy) CheckEnv(name string) error {
	if p == nil || p.unrestricted {
		return nil
	}
	for _, patt := range p.env {
		if ok, err := doublestar.Match(patt, name); err == nil && ok {
			return nil
		}
	}
	return ErrForbidden
}

// Allow extends the policy with more readable paths, e.g. the directory of
// the file being evaluated.
func (p *Policy) Allow(paths ...string) {
	for _, path := range paths {
		p.paths = append(p.paths, cleanPattern(path))
	}
}

// LoadPolicy loads the restricted-evaluation policy.
// Precedence: project (.nixeval-policy.json) → user (xdg config) → deny-all.
func LoadPolicy(projectDir string) (*Policy, *PolicyFile, error) {
	projectPath := filepath.Join(projectDir, PolicyFileName)
	pf, err := loadPolicyFile(projectPath)
	switch {
	case err == nil:
		p, err := New(*pf)
		return p, pf, err
	case !errors.Is(err, os.ErrNotExist):
		return nil, nil, err
	}

	if userPath, err := xdg.SearchConfigFile(userPolicyRelPath); err == nil {
		pf, err := loadPolicyFile(userPath)
		if err != nil {
			return nil, nil, err
		}
		p, err := New(*pf)
		return p, pf, err
	}

	return DenyAll(), nil, nil
}

func loadPolicyFile(path string) (*PolicyFile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var pf PolicyFile
	if err := json.Unmarshal(data, &pf); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return &pf, nil
}

// AllowAll returns a policy that permits every read.
func AllowAll() *Policy {
	return &Policy{unrestricted: true}
}

// DenyAll returns a policy that denies all reads.
func DenyAll() *Policy {
	return &Policy{}
}
