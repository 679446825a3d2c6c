package stdlib

import (
	"strconv"

	"github.com/thomasrohde/nixeval/pkg/evaluator"
)

// versionComponents splits a version string into runs of digits and runs
// of non-digits. '.' and '-' separate components and are dropped.
func versionComponents(s string) []string {
	var out []string
	for p := 0; p < len(s); {
		if s[p] == '.' || s[p] == '-' {
			p++
			continue
		}
		start := p
		digits := isDigit(s[p])
		for p < len(s) && s[p] != '.' && s[p] != '-' && isDigit(s[p]) == digits {
			p++
		}
		out = append(out, s[start:p])
	}
	return out
}

func isDigit(c byte) bool { return c >= '0' && c <= '9' }

func numericComponent(c string) (int64, bool) {
	if c == "" || !isDigit(c[0]) {
		return 0, false
	}
	n, err := strconv.ParseInt(c, 10, 64)
	return n, err == nil
}

// componentLess orders two version components: numbers numerically, the
// empty component before numbers, "pre" before everything else and
// numbers after other words.
func componentLess(a, b string) bool {
	an, aNum := numericComponent(a)
	bn, bNum := numericComponent(b)
	switch {
	case aNum && bNum:
		return an < bn
	case a == "" && bNum:
		return true
	case a == "pre" && b != "pre":
		return true
	case b == "pre":
		return false
	case bNum:
		return true
	case aNum:
		return false
	}
	return a < b
}

// CompareVersions returns -1, 0 or 1 as a is older, equal to or newer
// than b.
func CompareVersions(a, b string) int {
	ac, bc := versionComponents(a), versionComponents(b)
	for i := 0; i < len(ac) || i < len(bc); i++ {
		var x, y string
		if i < len(ac) {
			x = ac[i]
		}
		if i < len(bc) {
			y = bc[i]
		}
		if componentLess(x, y) {
			return -1
		}
		if componentLess(y, x) {
			return 1
		}
	}
	return 0
}

// compareVersions a b → -1 | 0 | 1
func stdlibCompareVersions(ev *evaluator.Evaluator, args []*evaluator.Thunk) (evaluator.Value, error) {
	a, err := evaluator.ForceString(args[0])
	if err != nil {
		return nil, err
	}
	b, err := evaluator.ForceString(args[1])
	if err != nil {
		return nil, err
	}
	return evaluator.NewInt(int64(CompareVersions(a.Value, b.Value))), nil
}

// splitVersion string → [components]
func stdlibSplitVersion(ev *evaluator.Evaluator, args []*evaluator.Thunk) (evaluator.Value, error) {
	s, err := evaluator.ForceString(args[0])
	if err != nil {
		return nil, err
	}
	comps := versionComponents(s.Value)
	items := make([]*evaluator.Thunk, len(comps))
	for i, c := range comps {
		items[i] = evaluator.NewValueThunk(evaluator.NewString(c))
	}
	return evaluator.NewList(items), nil
}
