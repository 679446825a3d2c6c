package formatter

import (
	"strconv"
	"strings"

	"github.com/thomasrohde/nixeval/pkg/evaluator"
)

const indent = "  "

// Options controls value printing.
type Options struct {
	// Strict forces the value deeply before printing. Otherwise
	// unevaluated thunks print as «thunk».
	Strict bool
	// Expanded prints one member per line.
	Expanded bool
}

// FormatValue prints v the way nix-instantiate --eval does. ev is only
// needed in strict mode.
func FormatValue(ev *evaluator.Evaluator, v evaluator.Value, opts Options) (string, error) {
	if opts.Strict {
		if err := ev.DeepForce(v); err != nil {
			return "", err
		}
	}
	p := &printer{opts: opts, active: make(map[any]bool)}
	p.value(v, 0)
	return p.sb.String(), nil
}

// FormatFloat renders a float with at most six significant digits.
func FormatFloat(f float64) string {
	return strconv.FormatFloat(f, 'g', 6, 64)
}

type printer struct {
	sb     strings.Builder
	opts   Options
	active map[any]bool
}

func (p *printer) newline(depth int) {
	p.sb.WriteByte('\n')
	for i := 0; i < depth; i++ {
		p.sb.WriteString(indent)
	}
}

func (p *printer) thunk(th *evaluator.Thunk, depth int) {
	switch th.State() {
	case evaluator.Evaluated:
		p.value(th.Value(), depth)
	case evaluator.Failed:
		p.sb.WriteString("«error»")
	default:
		p.sb.WriteString("«thunk»")
	}
}

func (p *printer) value(v evaluator.Value, depth int) {
	switch val := v.(type) {
	case evaluator.Null:
		p.sb.WriteString("null")
	case evaluator.Bool:
		p.sb.WriteString(strconv.FormatBool(val.Value))
	case evaluator.Int:
		p.sb.WriteString(strconv.FormatInt(val.Value, 10))
	case evaluator.Float:
		p.sb.WriteString(FormatFloat(val.Value))
	case evaluator.String:
		p.sb.WriteString(QuoteString(val.Value))
	case evaluator.Path:
		p.sb.WriteString(val.Value)
	case *evaluator.Lambda:
		p.sb.WriteString("<LAMBDA>")
	case *evaluator.Builtin:
		if len(val.Args) > 0 {
			p.sb.WriteString("<PRIMOP-APP>")
		} else {
			p.sb.WriteString("<PRIMOP>")
		}
	case evaluator.List:
		p.list(val, depth)
	case *evaluator.AttrSet:
		p.attrs(val, depth)
	}
}

func (p *printer) list(l evaluator.List, depth int) {
	if len(l.Items) == 0 {
		p.sb.WriteString("[ ]")
		return
	}
	key := &l.Items[0]
	if p.active[key] {
		p.sb.WriteString("«repeated»")
		return
	}
	p.active[key] = true
	defer delete(p.active, key)

	p.sb.WriteByte('[')
	for _, th := range l.Items {
		if p.opts.Expanded {
			p.newline(depth + 1)
		} else {
			p.sb.WriteByte(' ')
		}
		p.thunk(th, depth+1)
	}
	if p.opts.Expanded {
		p.newline(depth)
	} else {
		p.sb.WriteByte(' ')
	}
	p.sb.WriteByte(']')
}

func (p *printer) attrs(set *evaluator.AttrSet, depth int) {
	if set.Len() == 0 {
		p.sb.WriteString("{ }")
		return
	}
	if p.active[set] {
		p.sb.WriteString("«repeated»")
		return
	}
	p.active[set] = true
	defer delete(p.active, set)

	p.sb.WriteByte('{')
	set.Each(func(name string, th *evaluator.Thunk) bool {
		if p.opts.Expanded {
			p.newline(depth + 1)
		} else {
			p.sb.WriteByte(' ')
		}
		p.sb.WriteString(FormatAttrName(name))
		p.sb.WriteString(" = ")
		p.thunk(th, depth+1)
		p.sb.WriteByte(';')
		return true
	})
	if p.opts.Expanded {
		p.newline(depth)
	} else {
		p.sb.WriteByte(' ')
	}
	p.sb.WriteByte('}')
}
