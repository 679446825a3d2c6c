package stdlib_test

import (
	"testing"

	"github.com/thomasrohde/nixeval/pkg/diagnostics"
)

func TestListBuiltins(t *testing.T) {
	runCases(t, []evalCase{
		{`map (x: x * 2) [ 1 2 3 ]`, "[ 2 4 6 ]"},
		{`builtins.filter (x: x > 1) [ 1 2 3 ]`, "[ 2 3 ]"},
		{`builtins.length [ 1 (throw "lazy") 3 ]`, "3"},
		{`builtins.length (map (x: throw "lazy") [ 1 2 ])`, "2"},
		{`builtins.head [ 1 2 ]`, "1"},
		{`builtins.tail [ 1 2 3 ]`, "[ 2 3 ]"},
		{`builtins.elemAt [ "a" "b" ] 1`, `"b"`},
		{`builtins.elem 2 [ 1 2 ]`, "true"},
		{`builtins.elem { a = 1; } [ { a = 1; } ]`, "true"},
		{`builtins.elem 3 [ 1 2 ]`, "false"},
		{`builtins.all (x: x > 0) [ 1 2 ]`, "true"},
		{`builtins.all (x: x > 0) [ ]`, "true"},
		{`builtins.any (x: x > 5) [ 1 2 ]`, "false"},
		{`builtins.any (x: x == 1) [ 1 (throw "short-circuit") ]`, "true"},
		{`builtins.concatLists [ [ 1 ] [ ] [ 2 3 ] ]`, "[ 1 2 3 ]"},
		{`builtins.concatMap (x: [ x x ]) [ 1 2 ]`, "[ 1 1 2 2 ]"},
		{`builtins.foldl' (acc: x: acc + x) 0 [ 1 2 3 ]`, "6"},
		{`builtins.foldl' (acc: x: [ x ] ++ acc) [ ] [ 1 2 3 ]`, "[ 3 2 1 ]"},
		{`builtins.genList (x: x * x) 4`, "[ 0 1 4 9 ]"},
		{`builtins.length (builtins.genList (x: throw "lazy") 3)`, "3"},
		{`builtins.sort builtins.lessThan [ 3 1 2 ]`, "[ 1 2 3 ]"},
		{`builtins.sort (a: b: a > b) [ "b" "c" "a" ]`, `[ "c" "b" "a" ]`},
		{
			`map (x: x.v) (builtins.sort (a: b: a.k < b.k) [ { k = 1; v = "a"; } { k = 0; v = "b"; } { k = 1; v = "c"; } ])`,
			`[ "b" "a" "c" ]`,
		},
		{`builtins.partition (x: x > 2) [ 1 3 2 4 ]`, "{ right = [ 3 4 ]; wrong = [ 1 2 ]; }"},
		{`builtins.groupBy (x: if x > 2 then "big" else "small") [ 1 3 2 4 ]`, "{ big = [ 3 4 ]; small = [ 1 2 ]; }"},
	})
}

func TestListBuiltinErrors(t *testing.T) {
	runErrCases(t, []errCase{
		{`builtins.head [ ]`, diagnostics.EEval},
		{`builtins.tail [ ]`, diagnostics.EEval},
		{`builtins.elemAt [ 1 2 ] 5`, diagnostics.EEval},
		{`builtins.elemAt [ 1 2 ] (-1)`, diagnostics.EEval},
		{`builtins.genList (x: x) (-1)`, diagnostics.EEval},
		{`builtins.filter (x: 1) [ 1 ]`, diagnostics.ETypeMismatch},
		{`builtins.sort (a: b: throw "cmp") [ 1 2 ]`, diagnostics.EThrow},
		{`builtins.groupBy (x: x) [ 1 ]`, diagnostics.ETypeMismatch},
		{`builtins.length { }`, diagnostics.ETypeMismatch},
		{`map 1 [ 1 ]`, diagnostics.ETypeMismatch},
	})
}
