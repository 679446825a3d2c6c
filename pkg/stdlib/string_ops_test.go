package stdlib_test

import (
	"testing"

	"github.com/thomasrohde/nixeval/pkg/diagnostics"
)

func TestStringBuiltins(t *testing.T) {
	runCases(t, []evalCase{
		{`builtins.replaceStrings [ "o" "a" ] [ "0" "4" ] "foobar"`, `"f00b4r"`},
		{`builtins.replaceStrings [ "oo" "o" ] [ "1" "2" ] "fooo"`, `"f12"`},
		{`builtins.replaceStrings [ "" ] [ "-" ] "ab"`, `"-a-b-"`},
		{`builtins.replaceStrings [ "x" ] [ (throw "unused") ] "abc"`, `"abc"`},
		{`builtins.substring 1 3 "hello"`, `"ell"`},
		{`builtins.substring 3 (-1) "hello"`, `"lo"`},
		{`builtins.substring 3 100 "hello"`, `"lo"`},
		{`builtins.substring 10 2 "hi"`, `""`},
		{`builtins.stringLength "héllo"`, "6"},
		{`builtins.stringLength ""`, "0"},
		{`builtins.concatStringsSep "-" [ "a" "b" "c" ]`, `"a-b-c"`},
		{`builtins.concatStringsSep "-" [ ]`, `""`},
		{`builtins.concatStringsSep "/" [ "a" /b ]`, `"a//b"`},
		{`toString [ 1 [ 2 3 ] "x" ]`, `"1 2 3 x"`},
		{`toString null`, `""`},
		{`toString true`, `"1"`},
		{`toString false`, `""`},
		{`toString 2.5`, `"2.500000"`},
		{`toString /a/b`, `"/a/b"`},
		{`toString { __toString = self: "custom ${self.x}"; x = "y"; }`, `"custom y"`},
		{`toString { outPath = "/out"; }`, `"/out"`},
		{`baseNameOf "/a/b/c.nix"`, `"c.nix"`},
		{`baseNameOf "/a/b/"`, `"b"`},
		{`baseNameOf "plain"`, `"plain"`},
		{`dirOf "/a/b/c"`, `"/a/b"`},
		{`dirOf "abc"`, `"."`},
		{`dirOf "/x"`, `"/"`},
		{`dirOf /a/b`, "/a"},
		{`builtins.parseDrvName "nix-0.12pre12876"`, `{ name = "nix"; version = "0.12pre12876"; }`},
		{`builtins.parseDrvName "hello-world"`, `{ name = "hello-world"; version = ""; }`},
		{`builtins.parseDrvName "foo-bar-1.2-3"`, `{ name = "foo-bar"; version = "1.2-3"; }`},
		{`builtins.hashString "sha256" ""`, `"e3b0c44298fc1c149afbf4c8996fb92427ae41e4649b934ca495991b7852b855"`},
		{`builtins.hashString "md5" "abc"`, `"900150983cd24fb0d6963f7d28e17f72"`},
		{`builtins.hashString "sha1" "abc"`, `"a9993e364706816aba3e25717850c26c9cd0d89d"`},
	})
}

func TestStringBuiltinErrors(t *testing.T) {
	runErrCases(t, []errCase{
		{`builtins.replaceStrings [ "a" ] [ ] "a"`, diagnostics.EEval},
		{`builtins.substring (-1) 1 "abc"`, diagnostics.EEval},
		{`builtins.hashString "crc32" "abc"`, diagnostics.EEval},
		{`builtins.stringLength 1`, diagnostics.ETypeMismatch},
		{`toString (x: x)`, diagnostics.ETypeMismatch},
		{`builtins.concatStringsSep "," [ 1 ]`, diagnostics.ETypeMismatch},
	})
}

func TestVersionBuiltins(t *testing.T) {
	runCases(t, []evalCase{
		{`builtins.splitVersion "1.2.3pre4-rc"`, `[ "1" "2" "3" "pre" "4" "rc" ]`},
		{`builtins.splitVersion ""`, "[ ]"},
		{`builtins.compareVersions "1.0" "2.3"`, "-1"},
		{`builtins.compareVersions "2.1" "2.1"`, "0"},
		{`builtins.compareVersions "1.10" "1.9"`, "1"},
	})
}
