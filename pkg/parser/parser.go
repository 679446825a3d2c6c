// Package parser implements the Nix language parser.
package parser

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/thomasrohde/nixeval/pkg/ast"
	"github.com/thomasrohde/nixeval/pkg/diagnostics"
	"github.com/thomasrohde/nixeval/pkg/lexer"
)

type parser struct {
	tokens []lexer.Token
	pos    int
	diags  []diagnostics.Diagnostic
}

// maxErrors bounds how many diagnostics are collected before giving up.
const maxErrors = 10

// Parse tokenizes source and parses it into a single expression.
func Parse(source, filename string) (ast.Expr, []diagnostics.Diagnostic) {
	tokens, err := lexer.Tokenize(source, filename)
	if err != nil {
		if le, ok := err.(*lexer.LexError); ok {
			return nil, []diagnostics.Diagnostic{le.Diag}
		}
		return nil, []diagnostics.Diagnostic{diagnostics.MakeDiag(diagnostics.ELex, err.Error(), nil, "")}
	}

	p := &parser{tokens: tokens, pos: 0}
	expr := p.parseExpr()
	if len(p.diags) == 0 && p.peek() != lexer.TokEOF {
		tok := p.current()
		p.addError(fmt.Sprintf("unexpected %s, expected end of file", describe(tok)), &tok.Span)
	}
	if len(p.diags) > 0 {
		return nil, p.diags
	}
	return expr, nil
}

func (p *parser) current() lexer.Token {
	if p.pos >= len(p.tokens) {
		return p.tokens[len(p.tokens)-1] // EOF
	}
	return p.tokens[p.pos]
}

func (p *parser) peek() lexer.TokenType {
	return p.current().Type
}

func (p *parser) peekAt(offset int) lexer.TokenType {
	idx := p.pos + offset
	if idx >= len(p.tokens) {
		return lexer.TokEOF
	}
	return p.tokens[idx].Type
}

func (p *parser) advance() lexer.Token {
	tok := p.current()
	if p.pos < len(p.tokens)-1 {
		p.pos++
	}
	return tok
}

func (p *parser) failed() bool {
	return len(p.diags) > 0
}

func (p *parser) expect(typ lexer.TokenType) (lexer.Token, bool) {
	tok := p.current()
	if tok.Type != typ {
		p.addError(fmt.Sprintf("unexpected %s, expected %s", describe(tok), tokenName(typ)), &tok.Span)
		return tok, false
	}
	return p.advance(), true
}

func (p *parser) addError(msg string, span *ast.Span) {
	if len(p.diags) >= maxErrors {
		return
	}
	p.diags = append(p.diags, diagnostics.MakeDiag(diagnostics.EParse, msg, span, ""))
	// Jump to EOF; recovery inside expressions produces cascades of
	// unhelpful follow-up errors.
	p.pos = len(p.tokens) - 1
}

func (p *parser) spanFrom(start ast.Span) ast.Span {
	prev := start
	if p.pos > 0 {
		prev = p.tokens[p.pos-1].Span
	}
	return ast.Span{
		File:      start.File,
		StartLine: start.StartLine,
		StartCol:  start.StartCol,
		EndLine:   prev.EndLine,
		EndCol:    prev.EndCol,
	}
}

func (p *parser) spanFromTo(start, end ast.Span) ast.Span {
	return ast.Span{
		File:      start.File,
		StartLine: start.StartLine,
		StartCol:  start.StartCol,
		EndLine:   end.EndLine,
		EndCol:    end.EndCol,
	}
}

func tokenName(t lexer.TokenType) string {
	switch t {
	case lexer.TokLBrace:
		return "'{'"
	case lexer.TokRBrace:
		return "'}'"
	case lexer.TokLBracket:
		return "'['"
	case lexer.TokRBracket:
		return "']'"
	case lexer.TokLParen:
		return "'('"
	case lexer.TokRParen:
		return "')'"
	case lexer.TokColon:
		return "':'"
	case lexer.TokSemicolon:
		return "';'"
	case lexer.TokComma:
		return "','"
	case lexer.TokEquals:
		return "'='"
	case lexer.TokThen:
		return "'then'"
	case lexer.TokElse:
		return "'else'"
	case lexer.TokIn:
		return "'in'"
	case lexer.TokIdent:
		return "identifier"
	case lexer.TokStringEnd:
		return "'\"'"
	case lexer.TokIndStringEnd:
		return "\"''\""
	case lexer.TokEOF:
		return "end of file"
	default:
		return fmt.Sprintf("token(%d)", t)
	}
}

func describe(tok lexer.Token) string {
	if tok.Type == lexer.TokEOF {
		return "end of file"
	}
	return fmt.Sprintf("'%s'", tok.Value)
}

// --- Expressions ---

// parseExpr parses the lowest-precedence forms: functions, let, with,
// assert and if.
func (p *parser) parseExpr() ast.Expr {
	if p.failed() {
		return nil
	}
	tok := p.current()
	switch tok.Type {
	case lexer.TokIdent:
		switch p.peekAt(1) {
		case lexer.TokColon:
			p.advance()
			p.advance()
			body := p.parseExpr()
			return &ast.Lambda{Span: p.spanFrom(tok.Span), Param: tok.Value, Body: body}
		case lexer.TokAt:
			p.advance()
			p.advance()
			formals := p.parseFormals()
			if formals == nil {
				return nil
			}
			formals.Bind = tok.Value
			if _, ok := p.expect(lexer.TokColon); !ok {
				return nil
			}
			body := p.parseExpr()
			return &ast.Lambda{Span: p.spanFrom(tok.Span), Formals: formals, Body: body}
		}
	case lexer.TokLBrace:
		if p.isFormalsAhead() {
			formals := p.parseFormals()
			if formals == nil {
				return nil
			}
			if p.peek() == lexer.TokAt {
				p.advance()
				name, ok := p.expect(lexer.TokIdent)
				if !ok {
					return nil
				}
				formals.Bind = name.Value
			}
			if _, ok := p.expect(lexer.TokColon); !ok {
				return nil
			}
			body := p.parseExpr()
			return &ast.Lambda{Span: p.spanFrom(tok.Span), Formals: formals, Body: body}
		}
	case lexer.TokLet:
		if p.peekAt(1) == lexer.TokLBrace {
			break
		}
		p.advance()
		bindings := p.parseBindings(lexer.TokIn)
		if _, ok := p.expect(lexer.TokIn); !ok {
			return nil
		}
		body := p.parseExpr()
		return &ast.LetExpr{Span: p.spanFrom(tok.Span), Bindings: bindings, Body: body}
	case lexer.TokWith:
		p.advance()
		scope := p.parseExpr()
		if _, ok := p.expect(lexer.TokSemicolon); !ok {
			return nil
		}
		body := p.parseExpr()
		return &ast.WithExpr{Span: p.spanFrom(tok.Span), Scope: scope, Body: body}
	case lexer.TokAssert:
		p.advance()
		cond := p.parseExpr()
		if _, ok := p.expect(lexer.TokSemicolon); !ok {
			return nil
		}
		body := p.parseExpr()
		return &ast.AssertExpr{Span: p.spanFrom(tok.Span), Cond: cond, Body: body}
	case lexer.TokIf:
		p.advance()
		cond := p.parseExpr()
		if _, ok := p.expect(lexer.TokThen); !ok {
			return nil
		}
		then := p.parseExpr()
		if _, ok := p.expect(lexer.TokElse); !ok {
			return nil
		}
		els := p.parseExpr()
		return &ast.IfExpr{Span: p.spanFrom(tok.Span), Cond: cond, Then: then, Else: els}
	}
	return p.parseImpl()
}

// isFormalsAhead decides whether a '{' starts a lambda pattern rather than
// an attribute set.
func (p *parser) isFormalsAhead() bool {
	switch p.peekAt(1) {
	case lexer.TokDotDotDot:
		return true
	case lexer.TokRBrace:
		next := p.peekAt(2)
		return next == lexer.TokColon || next == lexer.TokAt
	case lexer.TokIdent:
		switch p.peekAt(2) {
		case lexer.TokComma, lexer.TokQuestion:
			return true
		case lexer.TokRBrace:
			next := p.peekAt(3)
			return next == lexer.TokColon || next == lexer.TokAt
		}
	}
	return false
}

func (p *parser) parseFormals() *ast.Formals {
	start, ok := p.expect(lexer.TokLBrace)
	if !ok {
		return nil
	}
	formals := &ast.Formals{}
	seen := make(map[string]bool)
	for p.peek() != lexer.TokRBrace {
		if p.peek() == lexer.TokDotDotDot {
			p.advance()
			formals.Ellipsis = true
			break
		}
		name, ok := p.expect(lexer.TokIdent)
		if !ok {
			return nil
		}
		if seen[name.Value] {
			p.addError(fmt.Sprintf("duplicate formal function argument '%s'", name.Value), &name.Span)
			return nil
		}
		seen[name.Value] = true
		formal := ast.Formal{Span: name.Span, Name: name.Value}
		if p.peek() == lexer.TokQuestion {
			p.advance()
			formal.Default = p.parseExpr()
			if p.failed() {
				return nil
			}
			formal.Span = p.spanFrom(name.Span)
		}
		formals.Entries = append(formals.Entries, formal)
		if p.peek() != lexer.TokComma {
			break
		}
		p.advance()
	}
	if _, ok := p.expect(lexer.TokRBrace); !ok {
		return nil
	}
	formals.Span = p.spanFrom(start.Span)
	return formals
}

func (p *parser) binary(op ast.BinaryOp, left, right ast.Expr) ast.Expr {
	if left == nil || right == nil {
		return nil
	}
	return &ast.BinaryExpr{Span: p.spanFromTo(left.NodeSpan(), right.NodeSpan()), Op: op, Left: left, Right: right}
}

// parseImpl: a -> b (right associative)
func (p *parser) parseImpl() ast.Expr {
	left := p.parseOrOp()
	if p.peek() == lexer.TokArrow {
		p.advance()
		right := p.parseImpl()
		return p.binary(ast.OpImpl, left, right)
	}
	return left
}

func (p *parser) parseOrOp() ast.Expr {
	left := p.parseAndOp()
	for p.peek() == lexer.TokOrOr {
		p.advance()
		left = p.binary(ast.OpOr, left, p.parseAndOp())
	}
	return left
}

func (p *parser) parseAndOp() ast.Expr {
	left := p.parseEquality()
	for p.peek() == lexer.TokAndAnd {
		p.advance()
		left = p.binary(ast.OpAnd, left, p.parseEquality())
	}
	return left
}

// parseEquality: == and != are non-associative.
func (p *parser) parseEquality() ast.Expr {
	left := p.parseComparison()
	var op ast.BinaryOp
	switch p.peek() {
	case lexer.TokEqEq:
		op = ast.OpEq
	case lexer.TokBangEq:
		op = ast.OpNeq
	default:
		return left
	}
	p.advance()
	expr := p.binary(op, left, p.parseComparison())
	if t := p.peek(); t == lexer.TokEqEq || t == lexer.TokBangEq {
		tok := p.current()
		p.addError(fmt.Sprintf("unexpected %s, operator is non-associative", describe(tok)), &tok.Span)
		return nil
	}
	return expr
}

// parseComparison: < <= > >= are non-associative.
func (p *parser) parseComparison() ast.Expr {
	left := p.parseUpdate()
	op, ok := comparisonOp(p.peek())
	if !ok {
		return left
	}
	p.advance()
	expr := p.binary(op, left, p.parseUpdate())
	if _, again := comparisonOp(p.peek()); again {
		tok := p.current()
		p.addError(fmt.Sprintf("unexpected %s, operator is non-associative", describe(tok)), &tok.Span)
		return nil
	}
	return expr
}

func comparisonOp(t lexer.TokenType) (ast.BinaryOp, bool) {
	switch t {
	case lexer.TokLt:
		return ast.OpLt, true
	case lexer.TokLtEq:
		return ast.OpLtEq, true
	case lexer.TokGt:
		return ast.OpGt, true
	case lexer.TokGtEq:
		return ast.OpGtEq, true
	}
	return "", false
}

// parseUpdate: a // b (right associative)
func (p *parser) parseUpdate() ast.Expr {
	left := p.parseNot()
	if p.peek() == lexer.TokUpdate {
		p.advance()
		return p.binary(ast.OpUpdate, left, p.parseUpdate())
	}
	return left
}

func (p *parser) parseNot() ast.Expr {
	if p.peek() == lexer.TokBang {
		tok := p.advance()
		operand := p.parseNot()
		if operand == nil {
			return nil
		}
		return &ast.UnaryExpr{Span: p.spanFrom(tok.Span), Op: ast.OpNot, Operand: operand}
	}
	return p.parseAdditive()
}

func (p *parser) parseAdditive() ast.Expr {
	left := p.parseMultiplicative()
	for {
		var op ast.BinaryOp
		switch p.peek() {
		case lexer.TokPlus:
			op = ast.OpAdd
		case lexer.TokMinus:
			op = ast.OpSub
		default:
			return left
		}
		p.advance()
		left = p.binary(op, left, p.parseMultiplicative())
	}
}

func (p *parser) parseMultiplicative() ast.Expr {
	left := p.parseConcat()
	for {
		var op ast.BinaryOp
		switch p.peek() {
		case lexer.TokStar:
			op = ast.OpMul
		case lexer.TokSlash:
			op = ast.OpDiv
		default:
			return left
		}
		p.advance()
		left = p.binary(op, left, p.parseConcat())
	}
}

// parseConcat: a ++ b (right associative)
func (p *parser) parseConcat() ast.Expr {
	left := p.parseHasAttr()
	if p.peek() == lexer.TokConcat {
		p.advance()
		return p.binary(ast.OpConcat, left, p.parseConcat())
	}
	return left
}

func (p *parser) parseHasAttr() ast.Expr {
	left := p.parseNegate()
	if p.peek() == lexer.TokQuestion && left != nil {
		p.advance()
		path := p.parseAttrPath()
		if path == nil {
			return nil
		}
		return &ast.HasAttr{Span: p.spanFrom(left.NodeSpan()), Expr: left, Path: path}
	}
	return left
}

func (p *parser) parseNegate() ast.Expr {
	if p.peek() == lexer.TokMinus {
		tok := p.advance()
		operand := p.parseNegate()
		if operand == nil {
			return nil
		}
		return &ast.UnaryExpr{Span: p.spanFrom(tok.Span), Op: ast.OpNeg, Operand: operand}
	}
	return p.parseApplication()
}

func (p *parser) parseApplication() ast.Expr {
	fn := p.parseSelect()
	for fn != nil && p.startsSimple() {
		arg := p.parseSelect()
		if arg == nil {
			return nil
		}
		fn = &ast.Apply{Span: p.spanFromTo(fn.NodeSpan(), arg.NodeSpan()), Func: fn, Arg: arg}
	}
	return fn
}

// startsSimple reports whether the current token can begin an
// application argument.
func (p *parser) startsSimple() bool {
	switch p.peek() {
	case lexer.TokIdent, lexer.TokIntLit, lexer.TokFloatLit, lexer.TokPath,
		lexer.TokSearchPath, lexer.TokURI, lexer.TokStringStart, lexer.TokIndStringStart,
		lexer.TokLParen, lexer.TokLBracket, lexer.TokLBrace, lexer.TokRec:
		return true
	case lexer.TokLet:
		return p.peekAt(1) == lexer.TokLBrace
	}
	return false
}

func (p *parser) parseSelect() ast.Expr {
	expr := p.parsePrimary()
	if expr == nil || p.peek() != lexer.TokDot {
		return expr
	}
	p.advance()
	path := p.parseAttrPath()
	if path == nil {
		return nil
	}
	sel := &ast.Select{Expr: expr, Path: path}
	if p.peek() == lexer.TokOr {
		p.advance()
		sel.Default = p.parseSelect()
		if sel.Default == nil {
			return nil
		}
	}
	sel.Span = p.spanFrom(expr.NodeSpan())
	return sel
}

func (p *parser) parsePrimary() ast.Expr {
	if p.failed() {
		return nil
	}
	tok := p.current()
	switch tok.Type {
	case lexer.TokIdent:
		p.advance()
		return &ast.Ident{Span: tok.Span, Name: tok.Value}
	case lexer.TokIntLit:
		p.advance()
		v, err := strconv.ParseInt(tok.Value, 10, 64)
		if err != nil {
			p.addError(fmt.Sprintf("invalid integer '%s'", tok.Value), &tok.Span)
			return nil
		}
		return &ast.IntLiteral{Span: tok.Span, Value: v}
	case lexer.TokFloatLit:
		p.advance()
		v, err := strconv.ParseFloat(tok.Value, 64)
		if err != nil && !math.IsInf(v, 0) {
			p.addError(fmt.Sprintf("invalid float '%s'", tok.Value), &tok.Span)
			return nil
		}
		return &ast.FloatLiteral{Span: tok.Span, Value: v}
	case lexer.TokPath:
		p.advance()
		return &ast.PathLiteral{Span: tok.Span, Value: tok.Value}
	case lexer.TokSearchPath:
		p.advance()
		return &ast.SearchPath{Span: tok.Span, Value: tok.Value}
	case lexer.TokURI:
		p.advance()
		return &ast.StringExpr{Span: tok.Span, Parts: []ast.StrPart{{Text: tok.Value}}}
	case lexer.TokStringStart:
		return p.parseString()
	case lexer.TokIndStringStart:
		return p.parseIndString()
	case lexer.TokLParen:
		p.advance()
		inner := p.parseExpr()
		if _, ok := p.expect(lexer.TokRParen); !ok {
			return nil
		}
		return inner
	case lexer.TokLBracket:
		return p.parseList()
	case lexer.TokLBrace:
		return p.parseAttrSet(false)
	case lexer.TokRec:
		p.advance()
		if p.peek() != lexer.TokLBrace {
			next := p.current()
			p.addError(fmt.Sprintf("unexpected %s, expected '{' after 'rec'", describe(next)), &next.Span)
			return nil
		}
		set := p.parseAttrSet(true)
		if set != nil {
			set.(*ast.AttrSet).Span = p.spanFrom(tok.Span)
		}
		return set
	case lexer.TokLet:
		if p.peekAt(1) == lexer.TokLBrace {
			p.advance()
			p.advance()
			bindings := p.parseBindings(lexer.TokRBrace)
			if _, ok := p.expect(lexer.TokRBrace); !ok {
				return nil
			}
			return &ast.LegacyLet{Span: p.spanFrom(tok.Span), Bindings: bindings}
		}
	}
	p.addError(fmt.Sprintf("unexpected %s", describe(tok)), &tok.Span)
	return nil
}

func (p *parser) parseList() ast.Expr {
	start := p.advance() // [
	list := &ast.ListExpr{}
	for p.peek() != lexer.TokRBracket && !p.failed() {
		if p.peek() == lexer.TokEOF {
			tok := p.current()
			p.addError("unexpected end of file, expected ']'", &tok.Span)
			return nil
		}
		item := p.parseSelect()
		if item == nil {
			return nil
		}
		list.Items = append(list.Items, item)
	}
	if _, ok := p.expect(lexer.TokRBracket); !ok {
		return nil
	}
	list.Span = p.spanFrom(start.Span)
	return list
}

func (p *parser) parseAttrSet(rec bool) ast.Expr {
	start := p.advance() // {
	bindings := p.parseBindings(lexer.TokRBrace)
	if _, ok := p.expect(lexer.TokRBrace); !ok {
		return nil
	}
	return &ast.AttrSet{Span: p.spanFrom(start.Span), Rec: rec, Bindings: bindings}
}

// parseBindings parses `path = expr;` and `inherit ...;` entries up to the
// terminator token, which is left unconsumed.
func (p *parser) parseBindings(end lexer.TokenType) []ast.Binding {
	var bindings []ast.Binding
	for p.peek() != end && !p.failed() {
		tok := p.current()
		if tok.Type == lexer.TokEOF {
			p.addError(fmt.Sprintf("unexpected end of file, expected %s", tokenName(end)), &tok.Span)
			return nil
		}
		if tok.Type == lexer.TokInherit {
			if b := p.parseInherit(); b != nil {
				bindings = append(bindings, b)
			}
			continue
		}
		path := p.parseAttrPath()
		if path == nil {
			return nil
		}
		if _, ok := p.expect(lexer.TokEquals); !ok {
			return nil
		}
		value := p.parseExpr()
		if _, ok := p.expect(lexer.TokSemicolon); !ok {
			return nil
		}
		bindings = append(bindings, &ast.AttrBinding{Span: p.spanFrom(tok.Span), Path: path, Value: value})
	}
	return bindings
}

func (p *parser) parseInherit() ast.Binding {
	start := p.advance() // inherit
	inh := &ast.Inherit{}
	if p.peek() == lexer.TokLParen {
		p.advance()
		inh.From = p.parseExpr()
		if _, ok := p.expect(lexer.TokRParen); !ok {
			return nil
		}
	}
	for p.peek() != lexer.TokSemicolon && !p.failed() {
		key, ok := p.parseAttrKey()
		if !ok {
			return nil
		}
		if key.Dynamic != nil {
			p.addError("dynamic attributes not allowed in inherit", &key.Span)
			return nil
		}
		inh.Names = append(inh.Names, key)
	}
	if _, ok := p.expect(lexer.TokSemicolon); !ok {
		return nil
	}
	inh.Span = p.spanFrom(start.Span)
	return inh
}

func (p *parser) parseAttrPath() []ast.AttrKey {
	var path []ast.AttrKey
	for {
		key, ok := p.parseAttrKey()
		if !ok {
			return nil
		}
		path = append(path, key)
		if p.peek() != lexer.TokDot {
			return path
		}
		p.advance()
	}
}

func (p *parser) parseAttrKey() (ast.AttrKey, bool) {
	tok := p.current()
	switch tok.Type {
	case lexer.TokIdent, lexer.TokOr:
		p.advance()
		return ast.AttrKey{Span: tok.Span, Name: tok.Value}, true
	case lexer.TokStringStart:
		str := p.parseString()
		if str == nil {
			return ast.AttrKey{}, false
		}
		s := str.(*ast.StringExpr)
		if v, ok := s.Static(); ok {
			return ast.AttrKey{Span: s.Span, Name: v}, true
		}
		return ast.AttrKey{Span: s.Span, Dynamic: s}, true
	case lexer.TokDollarBrace:
		p.advance()
		inner := p.parseExpr()
		if _, ok := p.expect(lexer.TokRBrace); !ok {
			return ast.AttrKey{}, false
		}
		return ast.AttrKey{Span: p.spanFrom(tok.Span), Dynamic: inner}, true
	}
	p.addError(fmt.Sprintf("unexpected %s, expected attribute name", describe(tok)), &tok.Span)
	return ast.AttrKey{}, false
}

// --- Strings ---

func (p *parser) parseInterpolation() ast.Expr {
	p.advance() // ${
	inner := p.parseExpr()
	if _, ok := p.expect(lexer.TokRBrace); !ok {
		return nil
	}
	return inner
}

func (p *parser) parseString() ast.Expr {
	start := p.advance() // "
	str := &ast.StringExpr{}
	for p.peek() != lexer.TokStringEnd {
		switch p.peek() {
		case lexer.TokStrText:
			str.Parts = append(str.Parts, ast.StrPart{Text: p.advance().Value})
		case lexer.TokDollarBrace:
			inner := p.parseInterpolation()
			if inner == nil {
				return nil
			}
			str.Parts = append(str.Parts, ast.StrPart{Interp: inner})
		default:
			tok := p.current()
			p.addError(fmt.Sprintf("unexpected %s in string", describe(tok)), &tok.Span)
			return nil
		}
	}
	p.advance() // closing "
	str.Span = p.spanFrom(start.Span)
	return str
}

// indPart is a raw piece of an indented string before indentation is
// stripped.
type indPart struct {
	text    string
	escaped bool
	interp  ast.Expr
}

func (p *parser) parseIndString() ast.Expr {
	start := p.advance() // ''
	var parts []indPart
	for p.peek() != lexer.TokIndStringEnd {
		switch p.peek() {
		case lexer.TokStrText:
			parts = append(parts, indPart{text: p.advance().Value})
		case lexer.TokIndStrEscape:
			parts = append(parts, indPart{text: p.advance().Value, escaped: true})
		case lexer.TokDollarBrace:
			inner := p.parseInterpolation()
			if inner == nil {
				return nil
			}
			parts = append(parts, indPart{interp: inner})
		default:
			tok := p.current()
			p.addError(fmt.Sprintf("unexpected %s in indented string", describe(tok)), &tok.Span)
			return nil
		}
	}
	p.advance() // closing ''
	return &ast.StringExpr{Span: p.spanFrom(start.Span), Parts: stripIndentation(parts), Indented: true}
}

// stripIndentation removes the common leading whitespace of an indented
// string, its first line when that line is blank, and trailing spaces on
// its last line. Escapes and interpolations count as content.
func stripIndentation(parts []indPart) []ast.StrPart {
	minIndent := math.MaxInt
	atStart := true
	cur := 0
	for _, part := range parts {
		if part.interp != nil || part.escaped {
			if atStart {
				atStart = false
				minIndent = min(minIndent, cur)
			}
			continue
		}
		for i := 0; i < len(part.text); i++ {
			c := part.text[i]
			switch {
			case atStart && c == ' ':
				cur++
			case atStart && c == '\n':
				cur = 0
			case atStart:
				atStart = false
				minIndent = min(minIndent, cur)
			case c == '\n':
				atStart = true
				cur = 0
			}
		}
	}

	var out []ast.StrPart
	atStart = true
	dropped := 0
	for idx, part := range parts {
		if part.interp != nil {
			atStart = false
			out = append(out, ast.StrPart{Interp: part.interp})
			continue
		}
		if part.escaped {
			atStart = false
			out = appendText(out, part.text)
			continue
		}
		text := part.text
		if idx == 0 {
			text = dropBlankFirstLine(text)
		}
		var sb strings.Builder
		for i := 0; i < len(text); i++ {
			c := text[i]
			switch {
			case atStart && c == ' ' && dropped < minIndent:
				dropped++
			case atStart && c == '\n':
				sb.WriteByte(c)
				dropped = 0
			case atStart:
				atStart = false
				sb.WriteByte(c)
			case c == '\n':
				atStart = true
				dropped = 0
				sb.WriteByte(c)
			default:
				sb.WriteByte(c)
			}
		}
		s := sb.String()
		if idx == len(parts)-1 {
			if nl := strings.LastIndexByte(s, '\n'); nl >= 0 && strings.Trim(s[nl+1:], " ") == "" {
				s = s[:nl+1]
			}
		}
		out = appendText(out, s)
	}
	return out
}

func dropBlankFirstLine(text string) string {
	for i := 0; i < len(text); i++ {
		switch text[i] {
		case ' ', '\t':
			continue
		case '\n':
			return text[i+1:]
		}
		return text
	}
	return text
}

func appendText(out []ast.StrPart, text string) []ast.StrPart {
	if text == "" {
		return out
	}
	if n := len(out); n > 0 && out[n-1].Interp == nil {
		out[n-1].Text += text
		return out
	}
	return append(out, ast.StrPart{Text: text})
}
