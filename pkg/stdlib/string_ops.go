package stdlib

import (
	"crypto/md5"
	"crypto/sha1"
	"crypto/sha256"
	"crypto/sha512"
	"encoding/hex"
	"hash"
	"path/filepath"
	"strings"

	"github.com/thomasrohde/nixeval/pkg/diagnostics"
	"github.com/thomasrohde/nixeval/pkg/evaluator"
)

// coerce forces th and converts it like string interpolation does.
func coerce(ev *evaluator.Evaluator, th *evaluator.Thunk, more bool) (evaluator.String, error) {
	v, err := th.Force()
	if err != nil {
		return evaluator.String{}, err
	}
	return ev.CoerceToString(v, more)
}

// toString x → string; also converts numbers, Booleans, null and lists
func stdlibToString(ev *evaluator.Evaluator, args []*evaluator.Thunk) (evaluator.Value, error) {
	s, err := coerce(ev, args[0], true)
	if err != nil {
		return nil, err
	}
	return s, nil
}

// baseNameOf path → last path component
func stdlibBaseNameOf(ev *evaluator.Evaluator, args []*evaluator.Thunk) (evaluator.Value, error) {
	s, err := coerce(ev, args[0], false)
	if err != nil {
		return nil, err
	}
	return evaluator.NewStringWithContext(baseName(s.Value), s.Context), nil
}

func baseName(s string) string {
	end := len(s)
	if end > 0 && s[end-1] == '/' {
		end--
	}
	return s[strings.LastIndexByte(s[:end], '/')+1 : end]
}

// dirOf path → parent directory; paths stay paths
func stdlibDirOf(ev *evaluator.Evaluator, args []*evaluator.Thunk) (evaluator.Value, error) {
	v, err := args[0].Force()
	if err != nil {
		return nil, err
	}
	if p, ok := v.(evaluator.Path); ok {
		return evaluator.NewPath(filepath.Dir(p.Value)), nil
	}
	s, err := ev.CoerceToString(v, false)
	if err != nil {
		return nil, err
	}
	var dir string
	switch pos := strings.LastIndexByte(s.Value, '/'); pos {
	case -1:
		dir = "."
	case 0:
		dir = "/"
	default:
		dir = s.Value[:pos]
	}
	return evaluator.NewStringWithContext(dir, s.Context), nil
}

// concatStringsSep sep [strings] → string
func stdlibConcatStringsSep(ev *evaluator.Evaluator, args []*evaluator.Thunk) (evaluator.Value, error) {
	sep, err := evaluator.ForceString(args[0])
	if err != nil {
		return nil, err
	}
	list, err := evaluator.ForceList(args[1])
	if err != nil {
		return nil, err
	}
	var sb strings.Builder
	ctx := sep.Context
	for i, th := range list.Items {
		s, err := coerce(ev, th, false)
		if err != nil {
			return nil, err
		}
		if i > 0 {
			sb.WriteString(sep.Value)
		}
		sb.WriteString(s.Value)
		ctx = evaluator.MergeContext(ctx, s.Context)
	}
	return evaluator.NewStringWithContext(sb.String(), ctx), nil
}

// hashString algo string → hex digest
func stdlibHashString(ev *evaluator.Evaluator, args []*evaluator.Thunk) (evaluator.Value, error) {
	algo, err := evaluator.ForceString(args[0])
	if err != nil {
		return nil, err
	}
	s, err := evaluator.ForceString(args[1])
	if err != nil {
		return nil, err
	}
	var h hash.Hash
	switch algo.Value {
	case "md5":
		h = md5.New()
	case "sha1":
		h = sha1.New()
	case "sha256":
		h = sha256.New()
	case "sha512":
		h = sha512.New()
	default:
		return nil, evaluator.Errorf(diagnostics.EEval, "unknown hash algorithm '%s'", algo.Value)
	}
	h.Write([]byte(s.Value))
	return evaluator.NewString(hex.EncodeToString(h.Sum(nil))), nil
}

// parseDrvName "name-version" → { name; version; }
func stdlibParseDrvName(ev *evaluator.Evaluator, args []*evaluator.Thunk) (evaluator.Value, error) {
	s, err := coerce(ev, args[0], false)
	if err != nil {
		return nil, err
	}
	name, version := s.Value, ""
	for i := 0; i+1 < len(s.Value); i++ {
		if s.Value[i] == '-' && !isLetter(s.Value[i+1]) {
			name, version = s.Value[:i], s.Value[i+1:]
			break
		}
	}
	out := evaluator.NewAttrSet()
	out.SetValue("name", evaluator.NewString(name))
	out.SetValue("version", evaluator.NewString(version))
	return out, nil
}

func isLetter(c byte) bool {
	return c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z'
}

// replaceStrings [from] [to] string → string. At each position the first
// matching pattern wins; an empty pattern matches between characters.
func stdlibReplaceStrings(ev *evaluator.Evaluator, args []*evaluator.Thunk) (evaluator.Value, error) {
	fromList, err := evaluator.ForceList(args[0])
	if err != nil {
		return nil, err
	}
	toList, err := evaluator.ForceList(args[1])
	if err != nil {
		return nil, err
	}
	if len(fromList.Items) != len(toList.Items) {
		return nil, evaluator.Errorf(diagnostics.EEval, "'from' and 'to' arguments passed to builtins.replaceStrings have different lengths")
	}
	from := make([]string, len(fromList.Items))
	for i, th := range fromList.Items {
		s, err := evaluator.ForceString(th)
		if err != nil {
			return nil, err
		}
		from[i] = s.Value
	}
	s, err := evaluator.ForceString(args[2])
	if err != nil {
		return nil, err
	}

	to := make([]*evaluator.String, len(toList.Items))
	replacement := func(i int) (evaluator.String, error) {
		if to[i] == nil {
			r, err := evaluator.ForceString(toList.Items[i])
			if err != nil {
				return r, err
			}
			to[i] = &r
		}
		return *to[i], nil
	}

	var sb strings.Builder
	ctx := s.Context
	src := s.Value
	for p := 0; p <= len(src); {
		found := false
		for i, pat := range from {
			if !strings.HasPrefix(src[p:], pat) {
				continue
			}
			found = true
			r, err := replacement(i)
			if err != nil {
				return nil, err
			}
			sb.WriteString(r.Value)
			ctx = evaluator.MergeContext(ctx, r.Context)
			if pat == "" {
				if p < len(src) {
					sb.WriteByte(src[p])
				}
				p++
			} else {
				p += len(pat)
			}
			break
		}
		if !found {
			if p < len(src) {
				sb.WriteByte(src[p])
			}
			p++
		}
	}
	return evaluator.NewStringWithContext(sb.String(), ctx), nil
}

// stringLength string → int (bytes)
func stdlibStringLength(ev *evaluator.Evaluator, args []*evaluator.Thunk) (evaluator.Value, error) {
	s, err := coerce(ev, args[0], false)
	if err != nil {
		return nil, err
	}
	return evaluator.NewInt(int64(len(s.Value))), nil
}

// substring start len string → string; a negative len means to the end
func stdlibSubstring(ev *evaluator.Evaluator, args []*evaluator.Thunk) (evaluator.Value, error) {
	start, err := evaluator.ForceInt(args[0])
	if err != nil {
		return nil, err
	}
	length, err := evaluator.ForceInt(args[1])
	if err != nil {
		return nil, err
	}
	s, err := coerce(ev, args[2], false)
	if err != nil {
		return nil, err
	}
	if start < 0 {
		return nil, evaluator.Errorf(diagnostics.EEval, "negative start position in 'substring'")
	}
	size := int64(len(s.Value))
	if start >= size {
		return evaluator.NewStringWithContext("", s.Context), nil
	}
	end := size
	if length >= 0 && start+length < size {
		end = start + length
	}
	return evaluator.NewStringWithContext(s.Value[start:end], s.Context), nil
}
