package lexer

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/thomasrohde/nixeval/pkg/diagnostics"
)

// mustTokenize tokenizes source and strips the trailing EOF.
func mustTokenize(t *testing.T, source string) []Token {
	t.Helper()
	tokens, err := Tokenize(source, "test.nix")
	require.NoError(t, err, "source %q", source)
	require.NotEmpty(t, tokens)
	require.Equal(t, TokEOF, tokens[len(tokens)-1].Type, "last token is not EOF")
	return tokens[:len(tokens)-1]
}

func types(tokens []Token) []TokenType {
	out := make([]TokenType, len(tokens))
	for i, tok := range tokens {
		out[i] = tok.Type
	}
	return out
}

func lexError(t *testing.T, source string) *LexError {
	t.Helper()
	_, err := Tokenize(source, "test.nix")
	require.Error(t, err, "source %q", source)
	var lexErr *LexError
	require.True(t, errors.As(err, &lexErr))
	assert.Equal(t, diagnostics.ELex, lexErr.Diag.Code)
	return lexErr
}

func TestEmptyInput(t *testing.T) {
	tokens, err := Tokenize("", "test.nix")
	require.NoError(t, err)
	require.Len(t, tokens, 1)
	assert.Equal(t, TokEOF, tokens[0].Type)
}

func TestKeywords(t *testing.T) {
	tests := map[string]TokenType{
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
	for word, want := range tests {
		tokens := mustTokenize(t, word)
		require.Len(t, tokens, 1)
		assert.Equal(t, want, tokens[0].Type, word)
		assert.True(t, IsKeyword(tokens[0].Type), word)
		assert.True(t, IsReserved(word), word)
	}
	assert.False(t, IsReserved("import"))
	assert.False(t, IsKeyword(TokIdent))
}

func TestIdentifiers(t *testing.T) {
	tokens := mustTokenize(t, "foo _bar x' let-in a-b_1 true")
	want := []string{"foo", "_bar", "x'", "let-in", "a-b_1", "true"}
	require.Len(t, tokens, len(want))
	for i, tok := range tokens {
		assert.Equal(t, TokIdent, tok.Type)
		assert.Equal(t, want[i], tok.Value)
	}
}

func TestOperators(t *testing.T) {
	tokens := mustTokenize(t, "+ - * / ++ // == != < <= > >= && || -> ! . ... @ ? = : ; ,")
	assert.Equal(t, []TokenType{
		TokPlus, TokMinus, TokStar, TokSlash, TokConcat, TokUpdate,
		TokEqEq, TokBangEq, TokLt, TokLtEq, TokGt, TokGtEq,
		TokAndAnd, TokOrOr, TokArrow, TokBang, TokDot, TokDotDotDot,
		TokAt, TokQuestion, TokEquals, TokColon, TokSemicolon, TokComma,
	}, types(tokens))
}

func TestDelimiters(t *testing.T) {
	tokens := mustTokenize(t, "{ [ ( ) ] }")
	assert.Equal(t, []TokenType{TokLBrace, TokLBracket, TokLParen, TokRParen, TokRBracket, TokRBrace}, types(tokens))
}

func TestNumbers(t *testing.T) {
	tests := []struct {
		src  string
		typ  TokenType
		text string
	}{
		{"0", TokIntLit, "0"},
		{"42", TokIntLit, "42"},
		{"1.5", TokFloatLit, "1.5"},
		{".5", TokFloatLit, ".5"},
		{"2.", TokFloatLit, "2."},
		{"2.5e3", TokFloatLit, "2.5e3"},
		{"1.0E-2", TokFloatLit, "1.0E-2"},
	}
	for _, tt := range tests {
		tokens := mustTokenize(t, tt.src)
		require.Len(t, tokens, 1, tt.src)
		assert.Equal(t, tt.typ, tokens[0].Type, tt.src)
		assert.Equal(t, tt.text, tokens[0].Value, tt.src)
	}
}

func TestNegativeNumberIsTwoTokens(t *testing.T) {
	tokens := mustTokenize(t, "-1")
	assert.Equal(t, []TokenType{TokMinus, TokIntLit}, types(tokens))
}

func TestSelectIsNotPath(t *testing.T) {
	tokens := mustTokenize(t, "a.b.c")
	assert.Equal(t, []TokenType{TokIdent, TokDot, TokIdent, TokDot, TokIdent}, types(tokens))
}

func TestPaths(t *testing.T) {
	tests := []string{"./foo", "./foo/bar.nix", "../up", "/abs/path", "~/home", "a/b", "foo-1.0/x+y"}
	for _, src := range tests {
		tokens := mustTokenize(t, src)
		require.Len(t, tokens, 1, src)
		assert.Equal(t, TokPath, tokens[0].Type, src)
		assert.Equal(t, src, tokens[0].Value, src)
	}
}

func TestDivisionIsNotPath(t *testing.T) {
	tokens := mustTokenize(t, "a / b")
	assert.Equal(t, []TokenType{TokIdent, TokSlash, TokIdent}, types(tokens))
	tokens = mustTokenize(t, "a // b")
	assert.Equal(t, []TokenType{TokIdent, TokUpdate, TokIdent}, types(tokens))
}

func TestPathTrailingSlash(t *testing.T) {
	err := lexError(t, "./foo/")
	assert.Contains(t, err.Diag.Message, "trailing slash")
}

func TestSearchPath(t *testing.T) {
	tokens := mustTokenize(t, "<nixpkgs/lib>")
	require.Len(t, tokens, 1)
	assert.Equal(t, TokSearchPath, tokens[0].Type)
	assert.Equal(t, "nixpkgs/lib", tokens[0].Value)

	tokens = mustTokenize(t, "a < b")
	assert.Equal(t, []TokenType{TokIdent, TokLt, TokIdent}, types(tokens))
}

func TestURI(t *testing.T) {
	tokens := mustTokenize(t, "https://example.org/a?b=c")
	require.Len(t, tokens, 1)
	assert.Equal(t, TokURI, tokens[0].Type)
	assert.Equal(t, "https://example.org/a?b=c", tokens[0].Value)

	tokens = mustTokenize(t, "x: x")
	assert.Equal(t, []TokenType{TokIdent, TokColon, TokIdent}, types(tokens))
}

func TestSimpleString(t *testing.T) {
	tokens := mustTokenize(t, `"hello"`)
	assert.Equal(t, []TokenType{TokStringStart, TokStrText, TokStringEnd}, types(tokens))
	assert.Equal(t, "hello", tokens[1].Value)

	tokens = mustTokenize(t, `""`)
	assert.Equal(t, []TokenType{TokStringStart, TokStringEnd}, types(tokens))
}

func TestStringEscapes(t *testing.T) {
	tokens := mustTokenize(t, `"a\nb\t\"\\\${x}"`)
	require.Len(t, tokens, 3)
	assert.Equal(t, "a\nb\t\"\\${x}", tokens[1].Value)
}

func TestStringInterpolation(t *testing.T) {
	tokens := mustTokenize(t, `"a${ { b = 1; }.b }c"`)
	assert.Equal(t, []TokenType{
		TokStringStart, TokStrText, TokDollarBrace,
		TokLBrace, TokIdent, TokEquals, TokIntLit, TokSemicolon, TokRBrace, TokDot, TokIdent,
		TokRBrace, TokStrText, TokStringEnd,
	}, types(tokens))
	assert.Equal(t, "a", tokens[1].Value)
	assert.Equal(t, "c", tokens[12].Value)
}

func TestNestedInterpolation(t *testing.T) {
	tokens := mustTokenize(t, `"${"${x}"}"`)
	assert.Equal(t, []TokenType{
		TokStringStart, TokDollarBrace,
		TokStringStart, TokDollarBrace, TokIdent, TokRBrace, TokStringEnd,
		TokRBrace, TokStringEnd,
	}, types(tokens))
}

func TestIndentedString(t *testing.T) {
	tokens := mustTokenize(t, "''\n  a ''$ b '''\n''")
	assert.Equal(t, []TokenType{
		TokIndStringStart, TokStrText, TokIndStrEscape, TokStrText, TokIndStrEscape, TokStrText, TokIndStringEnd,
	}, types(tokens))
	assert.Equal(t, "\n  a ", tokens[1].Value)
	assert.Equal(t, "$", tokens[2].Value)
	assert.Equal(t, "''", tokens[4].Value)
}

func TestIndentedStringEscapesAndInterpolation(t *testing.T) {
	tokens := mustTokenize(t, `''x''\ny${z}''`)
	assert.Equal(t, []TokenType{
		TokIndStringStart, TokStrText, TokIndStrEscape, TokStrText, TokDollarBrace, TokIdent, TokRBrace, TokIndStringEnd,
	}, types(tokens))
	assert.Equal(t, "\n", tokens[2].Value)
	assert.Equal(t, "y", tokens[3].Value)
}

func TestComments(t *testing.T) {
	tokens := mustTokenize(t, "# line\n1 /* block\n comment */ 2 # trailing")
	assert.Equal(t, []TokenType{TokIntLit, TokIntLit}, types(tokens))
}

func TestSpans(t *testing.T) {
	tokens := mustTokenize(t, "a\n  bc")
	require.Len(t, tokens, 2)
	span := tokens[1].Span
	assert.Equal(t, "test.nix", span.File)
	assert.Equal(t, 2, span.StartLine)
	assert.Equal(t, 3, span.StartCol)
	assert.Equal(t, 2, span.EndLine)
	assert.Equal(t, 5, span.EndCol)
}

func TestLexErrors(t *testing.T) {
	tests := map[string]string{
		`"abc`:      "unterminated string literal",
		"''abc":     "unterminated indented string",
		"/* open":   "unterminated block comment",
		"1 % 2":     "unexpected character '%'",
		"12ab":      "invalid number literal '12a'",
		"\"\xff\"": "invalid UTF-8 character in string",
	}
	for src, want := range tests {
		err := lexError(t, src)
		assert.Equal(t, want, err.Diag.Message, src)
		assert.Equal(t, want, err.Error(), src)
	}
}

func TestLexErrorLocation(t *testing.T) {
	err := lexError(t, "x\n  $")
	require.NotNil(t, err.Diag.Span)
	assert.Equal(t, "test.nix", err.Diag.Span.File)
	assert.Equal(t, 2, err.Diag.Span.StartLine)
	assert.Equal(t, 3, err.Diag.Span.StartCol)
}
