package stdlib_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/thomasrohde/nixeval/pkg/capabilities"
	"github.com/thomasrohde/nixeval/pkg/diagnostics"
	"github.com/thomasrohde/nixeval/pkg/evaluator"
	"github.com/thomasrohde/nixeval/pkg/runtime"
)

func evalString(t *testing.T, src string) string {
	t.Helper()
	rt, _ := newRuntime()
	v, err := rt.EvalString(context.Background(), src, "")
	require.NoError(t, err, src)
	s, ok := v.(evaluator.String)
	require.True(t, ok, "%s is %s", src, evaluator.TypeName(v))
	return s.Value
}

func TestTypePredicates(t *testing.T) {
	runCases(t, []evalCase{
		{`builtins.typeOf 1`, `"int"`},
		{`builtins.typeOf 1.0`, `"float"`},
		{`builtins.typeOf ./x`, `"path"`},
		{`builtins.typeOf (x: x)`, `"lambda"`},
		{`builtins.typeOf builtins.add`, `"lambda"`},
		{`builtins.typeOf { }`, `"set"`},
		{`isNull null`, "true"},
		{`builtins.isAttrs { }`, "true"},
		{`builtins.isBool false`, "true"},
		{`builtins.isFloat 1`, "false"},
		{`builtins.isFunction (builtins.add 1)`, "true"},
		{`builtins.isList [ ]`, "true"},
		{`builtins.isPath /a`, "true"},
		{`builtins.isString "s"`, "true"},
		{`builtins.isString /a`, "false"},
	})
}

func TestMathBuiltins(t *testing.T) {
	runCases(t, []evalCase{
		{`builtins.add 1 2`, "3"},
		{`builtins.add 1 0.5`, "1.5"},
		{`builtins.sub 1 3`, "-2"},
		{`builtins.mul 4 2.5`, "10"},
		{`builtins.div 7 2`, "3"},
		{`builtins.div 7.0 2`, "3.5"},
		{`builtins.bitAnd 12 10`, "8"},
		{`builtins.bitOr 12 10`, "14"},
		{`builtins.bitXor 12 10`, "6"},
		{`builtins.ceil 1.2`, "2"},
		{`builtins.floor (-1.5)`, "-2"},
		{`builtins.floor 3`, "3"},
		{`builtins.lessThan 1 2`, "true"},
		{`builtins.lessThan "b" "a"`, "false"},
		{`builtins.lessThan [ 1 2 ] [ 1 3 ]`, "true"},
	})
	runErrCases(t, []errCase{
		{`builtins.div 1 0`, diagnostics.EDivisionByZero},
		{`builtins.add 1 "a"`, diagnostics.ETypeMismatch},
		{`builtins.bitAnd 1.0 1`, diagnostics.ETypeMismatch},
		{`builtins.lessThan 1 "a"`, diagnostics.ETypeMismatch},
	})
}

func TestRegexBuiltins(t *testing.T) {
	runCases(t, []evalCase{
		{`builtins.match "a(b+)(c)?" "abb"`, `[ "bb" null ]`},
		{`builtins.match "b" "abc"`, "null"},
		{`builtins.match "(.*)\\.nix" "foo.nix"`, `[ "foo" ]`},
		{`builtins.match "[a-z]+" "abc"`, "[ ]"},
		{`builtins.split "(a)|b" "xaybz"`, `[ "x" [ "a" ] "y" [ null ] "z" ]`},
		{`builtins.split "," "a,b"`, `[ "a" [ ] "b" ]`},
		{`builtins.split "x" "abc"`, `[ "abc" ]`},
		{`map (builtins.match "v([0-9]+)") [ "v1" "v22" "x" ]`, `[ [ "1" ] [ "22" ] null ]`},
	})
	runErrCases(t, []errCase{
		{`builtins.match "(" "x"`, diagnostics.EEval},
		{`builtins.split "[" "x"`, diagnostics.EEval},
	})
}

func TestToJSON(t *testing.T) {
	tests := []evalCase{
		{`builtins.toJSON { b = [ 1 2.5 "s" null true ]; a = { }; }`, `{"a":{},"b":[1,2.5,"s",null,true]}`},
		{`builtins.toJSON 1.0`, "1.0"},
		{`builtins.toJSON "a\"b<>"`, `"a\"b<>"`},
		{`builtins.toJSON /a/b`, `"/a/b"`},
		{`builtins.toJSON { __toString = _: "s"; }`, `"s"`},
		{`builtins.toJSON { outPath = "/o"; other = 1; }`, `"/o"`},
		{`builtins.toJSON [ ]`, "[]"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, evalString(t, tt.src), tt.src)
	}
	runErrCases(t, []errCase{
		{`builtins.toJSON (x: x)`, diagnostics.EEval},
		{`builtins.toJSON { a = throw "inner"; }`, diagnostics.EThrow},
	})
}

func TestFromJSON(t *testing.T) {
	runCases(t, []evalCase{
		{`builtins.fromJSON ''{"a": [1, 2.5, "x", null, true], "b": {}}''`, `{ a = [ 1 2.5 "x" null true ]; b = { }; }`},
		{`builtins.fromJSON "1e2"`, "100"},
		{`builtins.isFloat (builtins.fromJSON "1e2")`, "true"},
		{`builtins.isInt (builtins.fromJSON "-7")`, "true"},
		{`builtins.fromJSON (builtins.toJSON { a = [ 1 "x" ]; })`, `{ a = [ 1 "x" ]; }`},
	})
	runErrCases(t, []errCase{
		{`builtins.fromJSON "{"`, diagnostics.EEval},
		{`builtins.fromJSON "1 2"`, diagnostics.EEval},
	})
}

func TestStringContext(t *testing.T) {
	runCases(t, []evalCase{
		{`builtins.hasContext "plain"`, "false"},
		{`builtins.hasContext "${/a/b}"`, "true"},
		{`builtins.getContext "x${/a/b}"`, `{ "/a/b" = { path = true; }; }`},
		{`builtins.getContext "${/b}${/a}"`, `{ "/a" = { path = true; }; "/b" = { path = true; }; }`},
		{`builtins.hasContext (builtins.unsafeDiscardStringContext "${/a/b}")`, "false"},
		{`builtins.hasContext (builtins.toJSON [ "${/a}" ])`, "true"},
		{`builtins.hasContext (builtins.concatStringsSep "," [ "x" "${/a}" ])`, "true"},
		{`builtins.hasContext (baseNameOf "${/a/b}")`, "true"},
	})
}

func TestControlBuiltins(t *testing.T) {
	runCases(t, []evalCase{
		{`builtins.seq [ (throw "x") ] 1`, "1"},
		{`builtins.deepSeq { a = 1; } 2`, "2"},
		{`builtins.tryEval (throw "x")`, "{ success = false; value = false; }"},
		{`builtins.tryEval (assert false; 1)`, "{ success = false; value = false; }"},
		{`builtins.tryEval 1`, "{ success = true; value = 1; }"},
		{`(builtins.tryEval { a = throw "x"; }).success`, "true"},
		{`builtins.addErrorContext "unused" 1`, "1"},
	})
	runErrCases(t, []errCase{
		{`builtins.seq (throw "x") 1`, diagnostics.EThrow},
		{`builtins.deepSeq [ (throw "x") ] 1`, diagnostics.EThrow},
		{`builtins.tryEval (abort "x")`, diagnostics.EAbort},
		{`builtins.tryEval (1 + "a")`, diagnostics.ETypeMismatch},
	})
}

func TestThrowAndAbortMessages(t *testing.T) {
	err := evalErr(t, `throw "boom"`)
	assert.Equal(t, "boom", err.Error())

	err = evalErr(t, `abort "stop ${toString 1}"`)
	assert.Equal(t, "evaluation aborted with the following error message: 'stop 1'", err.Error())
}

func TestAddErrorContext(t *testing.T) {
	err := evalErr(t, `builtins.addErrorContext "while testing" (throw "inner")`)
	d := diagnostics.FromError(err)
	assert.Equal(t, diagnostics.EThrow, d.Code)
	var messages []string
	for _, f := range d.Trace {
		messages = append(messages, f.Message)
	}
	assert.Contains(t, messages, "while testing")
}

func TestTraceAndWarn(t *testing.T) {
	rt, rec := newRuntime()
	v, err := rt.EvalString(context.Background(), `builtins.trace "hello" (builtins.trace 42 (builtins.warn "careful" 1))`, "")
	require.NoError(t, err)
	assert.Equal(t, evaluator.NewInt(1), v)
	assert.Equal(t, []string{"hello", "42"}, rec.traces)
	assert.Equal(t, []string{"careful"}, rec.warns)
}

func TestTraceVerbose(t *testing.T) {
	src := `builtins.traceVerbose "v" 1`

	rt, rec := newRuntime()
	_, err := rt.EvalString(context.Background(), src, "")
	require.NoError(t, err)
	assert.Empty(t, rec.traces)

	rt, rec = newRuntime(runtime.WithTraceVerbose(true))
	_, err = rt.EvalString(context.Background(), src, "")
	require.NoError(t, err)
	assert.Equal(t, []string{"v"}, rec.traces)
}

func TestTraceIsNotGlobal(t *testing.T) {
	rt, _ := newRuntime()
	_, err := rt.EvalString(context.Background(), `trace "x" 1`, "")
	require.Error(t, err)
	assert.Equal(t, diagnostics.EUndefinedVar, diagnostics.FromError(err).Code)
}

func projectDir(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.txt"), []byte("hello"), 0o644))
	require.NoError(t, os.Mkdir(filepath.Join(dir, "sub"), 0o755))
	return dir
}

func TestPathBuiltins(t *testing.T) {
	dir := projectDir(t)
	runCases(t, []evalCase{
		{`builtins.readFile ./a.txt`, `"hello"`},
		{`builtins.pathExists ./a.txt`, "true"},
		{`builtins.pathExists ./missing`, "false"},
		{`builtins.readDir ./.`, `{ "a.txt" = "regular"; sub = "directory"; }`},
		{`builtins.readFileType ./sub`, `"directory"`},
		{`builtins.readFileType ./a.txt`, `"regular"`},
		{`builtins.toPath "/a/../b"`, `"/b"`},
	}, runtime.WithBaseDir(dir))
	runErrCases(t, []errCase{
		{`builtins.readFile ./missing`, diagnostics.EIO},
		{`builtins.readDir ./a.txt`, diagnostics.EIO},
		{`builtins.readFile "relative"`, diagnostics.EEval},
	}, runtime.WithBaseDir(dir))
}

func TestRestrictedPaths(t *testing.T) {
	dir := projectDir(t)
	t.Setenv("NIXEVAL_TEST_VAR", "v")

	runErrCases(t, []errCase{
		{`builtins.readFile ./a.txt`, diagnostics.ERestricted},
		{`builtins.pathExists ./a.txt`, diagnostics.ERestricted},
		{`builtins.getEnv "NIXEVAL_TEST_VAR"`, diagnostics.ERestricted},
	}, runtime.WithBaseDir(dir), runtime.WithPolicy(capabilities.DenyAll()))

	policy, err := capabilities.New(capabilities.PolicyFile{
		AllowPaths: []string{dir},
		DenyPaths:  []string{filepath.Join(dir, "sub")},
		AllowEnv:   []string{"NIXEVAL_TEST_*"},
	})
	require.NoError(t, err)
	opts := []runtime.Option{runtime.WithBaseDir(dir), runtime.WithPolicy(policy)}
	runCases(t, []evalCase{
		{`builtins.readFile ./a.txt`, `"hello"`},
		{`builtins.getEnv "NIXEVAL_TEST_VAR"`, `"v"`},
		{`builtins.getEnv "NIXEVAL_TEST_UNSET"`, `""`},
	}, opts...)
	runErrCases(t, []errCase{
		{`builtins.readFileType ./sub`, diagnostics.ERestricted},
		{`builtins.getEnv "HOME"`, diagnostics.ERestricted},
	}, opts...)
}
