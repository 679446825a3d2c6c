package stdlib

import (
	"regexp"

	"github.com/tidwall/tinylru"

	"github.com/thomasrohde/nixeval/pkg/diagnostics"
	"github.com/thomasrohde/nixeval/pkg/evaluator"
)

// regexCache holds compiled expressions keyed by their source.
var regexCache tinylru.LRU

func compileRegex(pattern string, anchored bool) (*regexp.Regexp, error) {
	src := pattern
	if anchored {
		src = `\A(?:` + pattern + `)\z`
	}
	if re, ok := regexCache.Get(src); ok {
		return re.(*regexp.Regexp), nil
	}
	re, err := regexp.Compile(src)
	if err != nil {
		return nil, evaluator.Errorf(diagnostics.EEval, "invalid regular expression '%s': %v", pattern, err)
	}
	regexCache.Set(src, re)
	return re, nil
}

func groupList(s string, loc []int) evaluator.Value {
	groups := make([]*evaluator.Thunk, 0, len(loc)/2-1)
	for i := 2; i < len(loc); i += 2 {
		if loc[i] < 0 {
			groups = append(groups, evaluator.NewValueThunk(evaluator.NewNull()))
			continue
		}
		groups = append(groups, evaluator.NewValueThunk(evaluator.NewString(s[loc[i]:loc[i+1]])))
	}
	return evaluator.NewList(groups)
}

// match regex string → null, or the list of capture groups when regex
// matches the whole string
func stdlibMatch(ev *evaluator.Evaluator, args []*evaluator.Thunk) (evaluator.Value, error) {
	pattern, err := evaluator.ForceString(args[0])
	if err != nil {
		return nil, err
	}
	s, err := evaluator.ForceString(args[1])
	if err != nil {
		return nil, err
	}
	re, err := compileRegex(pattern.Value, true)
	if err != nil {
		return nil, err
	}
	loc := re.FindStringSubmatchIndex(s.Value)
	if loc == nil {
		return evaluator.NewNull(), nil
	}
	return groupList(s.Value, loc), nil
}

// split regex string → [ text [groups] text ... ]
func stdlibSplit(ev *evaluator.Evaluator, args []*evaluator.Thunk) (evaluator.Value, error) {
	pattern, err := evaluator.ForceString(args[0])
	if err != nil {
		return nil, err
	}
	s, err := evaluator.ForceString(args[1])
	if err != nil {
		return nil, err
	}
	re, err := compileRegex(pattern.Value, false)
	if err != nil {
		return nil, err
	}
	var items []*evaluator.Thunk
	prev := 0
	for _, loc := range re.FindAllStringSubmatchIndex(s.Value, -1) {
		items = append(items,
			evaluator.NewValueThunk(evaluator.NewString(s.Value[prev:loc[0]])),
			evaluator.NewValueThunk(groupList(s.Value, loc)))
		prev = loc[1]
	}
	items = append(items, evaluator.NewValueThunk(evaluator.NewString(s.Value[prev:])))
	return evaluator.NewList(items), nil
}
