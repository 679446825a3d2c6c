// Package lexer implements the Nix language tokenizer.
package lexer

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/thomasrohde/nixeval/pkg/ast"
	"github.com/thomasrohde/nixeval/pkg/diagnostics"
)

// TokenType identifies the type of a lexer token.
type TokenType int

const (
	// Keywords
	TokIf TokenType = iota
	TokThen
	TokElse
	TokAssert
	TokWith
	TokLet
	TokIn
	TokRec
	TokInherit
	TokOr

	// Literals
	TokIntLit
	TokFloatLit
	TokPath       // ./a, /a, ~/a
	TokSearchPath // <nixpkgs>
	TokURI

	// Strings
	TokStringStart    // "
	TokStringEnd      // "
	TokIndStringStart // ''
	TokIndStringEnd   // ''
	TokStrText        // literal text inside a string
	TokIndStrEscape   // escaped text inside an indented string
	TokDollarBrace    // ${

	// Identifiers
	TokIdent

	// Punctuation
	TokLBrace    // {
	TokRBrace    // }
	TokLBracket  // [
	TokRBracket  // ]
	TokLParen    // (
	TokRParen    // )
	TokColon     // :
	TokSemicolon // ;
	TokComma     // ,
	TokDotDotDot // ...
	TokDot       // .
	TokAt        // @
	TokQuestion  // ?
	TokEquals    // =

	// Operators
	TokPlus     // +
	TokMinus    // -
	TokStar     // *
	TokSlash    // /
	TokConcat   // ++
	TokUpdate   // //
	TokEqEq     // ==
	TokBangEq   // !=
	TokLt       // <
	TokLtEq     // <=
	TokGt       // >
	TokGtEq     // >=
	TokAndAnd   // &&
	TokOrOr     // ||
	TokArrow    // ->
	TokBang     // !

	// Special
	TokEOF
)

// Token represents a single lexer token.
type Token struct {
	Type  TokenType
	Value string
	Span  ast.Span
}

var keywords = map[string]TokenType{
	"if":      TokIf,
	"then":    TokThen,
	"else":    TokElse,
	"assert":  TokAssert,
	"with":    TokWith,
	"let":     TokLet,
	"in":      TokIn,
	"rec":     TokRec,
	"inherit": TokInherit,
	"or":      TokOr,
}

// IsKeyword reports whether t is a reserved word.
func IsKeyword(t TokenType) bool {
	return t >= TokIf && t <= TokOr
}

// IsReserved reports whether word lexes as a keyword.
func IsReserved(word string) bool {
	_, ok := keywords[word]
	return ok
}

type mode int

const (
	modeExpr mode = iota
	modeString
	modeIndString
)

type scanner struct {
	source   string
	filename string
	pos      int
	line     int
	col      int
	modes    []mode
}

func newScanner(source, filename string) *scanner {
	return &scanner{
		source:   source,
		filename: filename,
		pos:      0,
		line:     1,
		col:      1,
		modes:    []mode{modeExpr},
	}
}

func (s *scanner) atEnd() bool {
	return s.pos >= len(s.source)
}

func (s *scanner) peek() byte {
	if s.atEnd() {
		return 0
	}
	return s.source[s.pos]
}

func (s *scanner) peekAt(offset int) byte {
	p := s.pos + offset
	if p >= len(s.source) {
		return 0
	}
	return s.source[p]
}

func (s *scanner) advance() byte {
	ch := s.source[s.pos]
	s.pos++
	if ch == '\n' {
		s.line++
		s.col = 1
	} else {
		s.col++
	}
	return ch
}

func (s *scanner) advanceN(n int) {
	for i := 0; i < n && !s.atEnd(); i++ {
		s.advance()
	}
}

func (s *scanner) span(startLine, startCol int) ast.Span {
	return ast.Span{
		File:      s.filename,
		StartLine: startLine,
		StartCol:  startCol,
		EndLine:   s.line,
		EndCol:    s.col,
	}
}

func (s *scanner) mode() mode {
	return s.modes[len(s.modes)-1]
}

func (s *scanner) push(m mode) {
	s.modes = append(s.modes, m)
}

func (s *scanner) pop() {
	if len(s.modes) > 1 {
		s.modes = s.modes[:len(s.modes)-1]
	}
}

func (s *scanner) skipWhitespaceAndComments() error {
	for !s.atEnd() {
		ch := s.peek()
		switch {
		case ch == ' ' || ch == '\t' || ch == '\r' || ch == '\n':
			s.advance()
		case ch == '#':
			for !s.atEnd() && s.peek() != '\n' {
				s.advance()
			}
		case ch == '/' && s.peekAt(1) == '*':
			startLine, startCol := s.line, s.col
			s.advanceN(2)
			for {
				if s.atEnd() {
					return s.lexError(startLine, startCol, "unterminated block comment")
				}
				if s.peek() == '*' && s.peekAt(1) == '/' {
					s.advanceN(2)
					break
				}
				s.advance()
			}
		default:
			return nil
		}
	}
	return nil
}

func isAlpha(ch byte) bool {
	return (ch >= 'a' && ch <= 'z') || (ch >= 'A' && ch <= 'Z') || ch == '_'
}

func isDigit(ch byte) bool {
	return ch >= '0' && ch <= '9'
}

func isIdentChar(ch byte) bool {
	return isAlpha(ch) || isDigit(ch) || ch == '\'' || ch == '-'
}

func isPathChar(ch byte) bool {
	return isAlpha(ch) || isDigit(ch) || ch == '.' || ch == '-' || ch == '+'
}

func isSchemeChar(ch byte) bool {
	return isAlpha(ch) || isDigit(ch) || ch == '+' || ch == '-' || ch == '.'
}

func isURIChar(ch byte) bool {
	if isAlpha(ch) || isDigit(ch) {
		return true
	}
	return strings.IndexByte("%/?:@&=+$,-_.!~*'", ch) >= 0
}

// matchPath returns the length of a path literal starting at the current
// position, or 0. A path is an optional prefix of path characters followed
// by one or more /segment groups.
func (s *scanner) matchPath() int {
	i := s.pos
	for i < len(s.source) && isPathChar(s.source[i]) {
		i++
	}
	groups := 0
	for i+1 < len(s.source) && s.source[i] == '/' && isPathChar(s.source[i+1]) {
		i++
		for i < len(s.source) && isPathChar(s.source[i]) {
			i++
		}
		groups++
	}
	if groups == 0 {
		return 0
	}
	return i - s.pos
}

// matchURI returns the length of a URI literal starting at the current
// position, or 0.
func (s *scanner) matchURI() int {
	i := s.pos
	if i >= len(s.source) || !((s.source[i] >= 'a' && s.source[i] <= 'z') || (s.source[i] >= 'A' && s.source[i] <= 'Z')) {
		return 0
	}
	i++
	for i < len(s.source) && isSchemeChar(s.source[i]) {
		i++
	}
	if i >= len(s.source) || s.source[i] != ':' {
		return 0
	}
	i++
	start := i
	for i < len(s.source) && isURIChar(s.source[i]) {
		i++
	}
	if i == start {
		return 0
	}
	return i - s.pos
}

// matchSearchPath returns the length of a <name/sub> literal, or 0.
func (s *scanner) matchSearchPath() int {
	i := s.pos + 1
	start := i
	for i < len(s.source) && (isPathChar(s.source[i]) || s.source[i] == '/') {
		i++
	}
	if i == start || i >= len(s.source) || s.source[i] != '>' {
		return 0
	}
	body := s.source[start:i]
	if strings.HasPrefix(body, "/") || strings.HasSuffix(body, "/") || strings.Contains(body, "//") {
		return 0
	}
	return i + 1 - s.pos
}

func (s *scanner) take(typ TokenType, n int) Token {
	startLine, startCol := s.line, s.col
	start := s.pos
	s.advanceN(n)
	return Token{Type: typ, Value: s.source[start:s.pos], Span: s.span(startLine, startCol)}
}

func (s *scanner) scanNumber() (Token, error) {
	startLine, startCol := s.line, s.col
	startPos := s.pos
	isFloat := false

	for !s.atEnd() && isDigit(s.peek()) {
		s.advance()
	}

	if !s.atEnd() && s.peek() == '.' && (s.pos > startPos || isDigit(s.peekAt(1))) {
		isFloat = true
		s.advance() // consume '.'
		for !s.atEnd() && isDigit(s.peek()) {
			s.advance()
		}
	}

	if isFloat && (s.peek() == 'e' || s.peek() == 'E') {
		off := 1
		if s.peekAt(1) == '+' || s.peekAt(1) == '-' {
			off = 2
		}
		if isDigit(s.peekAt(off)) {
			s.advanceN(off)
			for !s.atEnd() && isDigit(s.peek()) {
				s.advance()
			}
		}
	}

	text := s.source[startPos:s.pos]
	tokType := TokIntLit
	if isFloat {
		tokType = TokFloatLit
	}
	if !s.atEnd() && isAlpha(s.peek()) {
		return Token{}, s.lexError(startLine, startCol, fmt.Sprintf("invalid number literal '%s%c'", text, s.peek()))
	}

	return Token{
		Type:  tokType,
		Value: text,
		Span:  s.span(startLine, startCol),
	}, nil
}

func (s *scanner) scanIdentOrKeyword() Token {
	startLine, startCol := s.line, s.col
	startPos := s.pos

	for !s.atEnd() && isIdentChar(s.peek()) {
		s.advance()
	}

	text := s.source[startPos:s.pos]
	if tokType, ok := keywords[text]; ok {
		return Token{
			Type:  tokType,
			Value: text,
			Span:  s.span(startLine, startCol),
		}
	}

	return Token{
		Type:  TokIdent,
		Value: text,
		Span:  s.span(startLine, startCol),
	}
}

// scanStringPart scans inside a double-quoted string up to the next
// interpolation or the closing quote.
func (s *scanner) scanStringPart() (Token, error) {
	startLine, startCol := s.line, s.col

	if s.peek() == '"' {
		s.advance()
		s.pop()
		return Token{Type: TokStringEnd, Value: `"`, Span: s.span(startLine, startCol)}, nil
	}
	if s.peek() == '$' && s.peekAt(1) == '{' {
		s.advanceN(2)
		s.push(modeExpr)
		return Token{Type: TokDollarBrace, Value: "${", Span: s.span(startLine, startCol)}, nil
	}

	var buf strings.Builder
	for !s.atEnd() {
		ch := s.peek()
		if ch == '"' || (ch == '$' && s.peekAt(1) == '{') {
			break
		}
		if ch == '$' && s.peekAt(1) == '$' {
			buf.WriteString("$$")
			s.advanceN(2)
			continue
		}
		if ch == '\\' {
			s.advance()
			if s.atEnd() {
				break
			}
			switch esc := s.advance(); esc {
			case 'n':
				buf.WriteByte('\n')
			case 'r':
				buf.WriteByte('\r')
			case 't':
				buf.WriteByte('\t')
			default:
				buf.WriteByte(esc)
			}
			continue
		}
		r, size := utf8.DecodeRuneInString(s.source[s.pos:])
		if r == utf8.RuneError && size == 1 {
			return Token{}, s.lexError(s.line, s.col, "invalid UTF-8 character in string")
		}
		buf.WriteString(s.source[s.pos : s.pos+size])
		s.advanceN(size)
	}
	if s.atEnd() {
		return Token{}, s.lexError(startLine, startCol, "unterminated string literal")
	}
	return Token{Type: TokStrText, Value: buf.String(), Span: s.span(startLine, startCol)}, nil
}

// scanIndStringPart scans inside an indented ('') string. Escapes are
// returned as separate tokens so that indentation stripping treats them as
// content.
func (s *scanner) scanIndStringPart() (Token, error) {
	startLine, startCol := s.line, s.col

	if s.peek() == '\'' && s.peekAt(1) == '\'' {
		switch s.peekAt(2) {
		case '$':
			s.advanceN(3)
			return Token{Type: TokIndStrEscape, Value: "$", Span: s.span(startLine, startCol)}, nil
		case '\'':
			s.advanceN(3)
			return Token{Type: TokIndStrEscape, Value: "''", Span: s.span(startLine, startCol)}, nil
		case '\\':
			s.advanceN(3)
			if s.atEnd() {
				return Token{}, s.lexError(startLine, startCol, "unterminated indented string")
			}
			var v string
			switch esc := s.advance(); esc {
			case 'n':
				v = "\n"
			case 'r':
				v = "\r"
			case 't':
				v = "\t"
			default:
				v = string(esc)
			}
			return Token{Type: TokIndStrEscape, Value: v, Span: s.span(startLine, startCol)}, nil
		}
		s.advanceN(2)
		s.pop()
		return Token{Type: TokIndStringEnd, Value: "''", Span: s.span(startLine, startCol)}, nil
	}
	if s.peek() == '$' && s.peekAt(1) == '{' {
		s.advanceN(2)
		s.push(modeExpr)
		return Token{Type: TokDollarBrace, Value: "${", Span: s.span(startLine, startCol)}, nil
	}

	startPos := s.pos
	for !s.atEnd() {
		ch := s.peek()
		if ch == '\'' && s.peekAt(1) == '\'' {
			break
		}
		if ch == '$' && s.peekAt(1) == '{' {
			break
		}
		if ch == '$' && s.peekAt(1) == '$' {
			s.advanceN(2)
			continue
		}
		s.advance()
	}
	if s.atEnd() {
		return Token{}, s.lexError(startLine, startCol, "unterminated indented string")
	}
	return Token{Type: TokStrText, Value: s.source[startPos:s.pos], Span: s.span(startLine, startCol)}, nil
}

func (s *scanner) lexError(line, col int, msg string) error {
	diag := diagnostics.MakeDiag(
		diagnostics.ELex,
		msg,
		&ast.Span{File: s.filename, StartLine: line, StartCol: col, EndLine: line, EndCol: col + 1},
		"",
	)
	return &LexError{Diag: diag}
}

// LexError wraps a diagnostic for lex errors.
type LexError struct {
	Diag diagnostics.Diagnostic
}

func (e *LexError) Error() string {
	return e.Diag.Message
}

func (s *scanner) nextToken() (Token, error) {
	switch s.mode() {
	case modeString:
		if s.atEnd() {
			return Token{}, s.lexError(s.line, s.col, "unterminated string literal")
		}
		return s.scanStringPart()
	case modeIndString:
		if s.atEnd() {
			return Token{}, s.lexError(s.line, s.col, "unterminated indented string")
		}
		return s.scanIndStringPart()
	}

	if err := s.skipWhitespaceAndComments(); err != nil {
		return Token{}, err
	}

	if s.atEnd() {
		return Token{
			Type:  TokEOF,
			Value: "",
			Span:  s.span(s.line, s.col),
		}, nil
	}

	ch := s.peek()
	startLine, startCol := s.line, s.col

	// Single-char tokens
	switch ch {
	case '{':
		s.push(modeExpr)
		return s.take(TokLBrace, 1), nil
	case '}':
		s.pop()
		return s.take(TokRBrace, 1), nil
	case '[':
		return s.take(TokLBracket, 1), nil
	case ']':
		return s.take(TokRBracket, 1), nil
	case '(':
		return s.take(TokLParen, 1), nil
	case ')':
		return s.take(TokRParen, 1), nil
	case ':':
		return s.take(TokColon, 1), nil
	case ';':
		return s.take(TokSemicolon, 1), nil
	case ',':
		return s.take(TokComma, 1), nil
	case '@':
		return s.take(TokAt, 1), nil
	case '?':
		return s.take(TokQuestion, 1), nil
	case '*':
		return s.take(TokStar, 1), nil
	case '"':
		s.push(modeString)
		return s.take(TokStringStart, 1), nil
	}

	// Multi-char tokens
	switch ch {
	case '$':
		if s.peekAt(1) == '{' {
			s.push(modeExpr)
			return s.take(TokDollarBrace, 2), nil
		}
	case '\'':
		if s.peekAt(1) == '\'' {
			s.push(modeIndString)
			return s.take(TokIndStringStart, 2), nil
		}
	case '+':
		if s.peekAt(1) == '+' {
			return s.take(TokConcat, 2), nil
		}
		return s.take(TokPlus, 1), nil
	case '-':
		if s.peekAt(1) == '>' {
			return s.take(TokArrow, 2), nil
		}
		return s.take(TokMinus, 1), nil
	case '=':
		if s.peekAt(1) == '=' {
			return s.take(TokEqEq, 2), nil
		}
		return s.take(TokEquals, 1), nil
	case '!':
		if s.peekAt(1) == '=' {
			return s.take(TokBangEq, 2), nil
		}
		return s.take(TokBang, 1), nil
	case '&':
		if s.peekAt(1) == '&' {
			return s.take(TokAndAnd, 2), nil
		}
	case '|':
		if s.peekAt(1) == '|' {
			return s.take(TokOrOr, 2), nil
		}
	case '>':
		if s.peekAt(1) == '=' {
			return s.take(TokGtEq, 2), nil
		}
		return s.take(TokGt, 1), nil
	case '<':
		if n := s.matchSearchPath(); n > 0 {
			tok := s.take(TokSearchPath, n)
			tok.Value = tok.Value[1 : len(tok.Value)-1]
			return tok, nil
		}
		if s.peekAt(1) == '=' {
			return s.take(TokLtEq, 2), nil
		}
		return s.take(TokLt, 1), nil
	case '~':
		if s.peekAt(1) == '/' {
			save := s.pos
			s.pos++
			n := s.matchPath()
			s.pos = save
			if n > 0 {
				return s.take(TokPath, n+1), nil
			}
		}
	case '/':
		if n := s.matchPath(); n > 0 {
			return s.pathToken(n)
		}
		if s.peekAt(1) == '/' {
			return s.take(TokUpdate, 2), nil
		}
		return s.take(TokSlash, 1), nil
	case '.':
		if s.peekAt(1) == '.' && s.peekAt(2) == '.' {
			return s.take(TokDotDotDot, 3), nil
		}
		if n := s.matchPath(); n > 0 {
			return s.pathToken(n)
		}
		if isDigit(s.peekAt(1)) {
			return s.scanNumber()
		}
		return s.take(TokDot, 1), nil
	}

	if isAlpha(ch) || isDigit(ch) {
		if isAlpha(ch) {
			if n := s.matchURI(); n > 0 {
				return s.take(TokURI, n), nil
			}
		}
		if n := s.matchPath(); n > 0 {
			return s.pathToken(n)
		}
		if isDigit(ch) {
			return s.scanNumber()
		}
		return s.scanIdentOrKeyword(), nil
	}

	s.advance()
	return Token{}, s.lexError(startLine, startCol, fmt.Sprintf("unexpected character '%c'", ch))
}

func (s *scanner) pathToken(n int) (Token, error) {
	startLine, startCol := s.line, s.col
	if s.pos+n < len(s.source) && s.source[s.pos+n] == '/' {
		s.advanceN(n + 1)
		return Token{}, s.lexError(startLine, startCol, fmt.Sprintf("path '%s' has a trailing slash", s.source[s.pos-n-1:s.pos]))
	}
	return s.take(TokPath, n), nil
}

// Tokenize breaks source code into a slice of tokens.
func Tokenize(source, filename string) ([]Token, error) {
	s := newScanner(source, filename)
	var tokens []Token

	for {
		tok, err := s.nextToken()
		if err != nil {
			return nil, err
		}
		tokens = append(tokens, tok)
		if tok.Type == TokEOF {
			break
		}
	}

	return tokens, nil
}
