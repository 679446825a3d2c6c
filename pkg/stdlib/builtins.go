package stdlib

import (
	"runtime"
	"time"

	"github.com/thomasrohde/nixeval/pkg/ast"
	"github.com/thomasrohde/nixeval/pkg/evaluator"
)

// Version constants reported by builtins.nixVersion and builtins.langVersion.
const (
	NixVersion  = "2.18.1"
	LangVersion = 6
	StoreDir    = "/nix/store"
)

// RegisterDefaults adds all built-ins.
func RegisterDefaults(r *Registry) {
	// Constants
	r.Register(Fn{Name: "true", Const: constant(evaluator.NewBool(true)), Global: true})
	r.Register(Fn{Name: "false", Const: constant(evaluator.NewBool(false)), Global: true})
	r.Register(Fn{Name: "null", Const: constant(evaluator.NewNull()), Global: true})
	r.Register(Fn{Name: "nixVersion", Const: constant(evaluator.NewString(NixVersion))})
	r.Register(Fn{Name: "langVersion", Const: constant(evaluator.NewInt(LangVersion))})
	r.Register(Fn{Name: "storeDir", Const: constant(evaluator.NewString(StoreDir))})
	r.Register(Fn{Name: "currentSystem", Const: constant(evaluator.NewString(CurrentSystem()))})
	r.Register(Fn{Name: "currentTime", Const: func(*evaluator.Evaluator) evaluator.Value {
		return evaluator.NewInt(time.Now().Unix())
	}})
	r.Register(Fn{Name: "nixPath", Const: nixPathValue})

	// Control
	r.Register(Fn{Name: "abort", Arity: 1, Impl: stdlibAbort, Global: true})
	r.Register(Fn{Name: "throw", Arity: 1, Impl: stdlibThrow, Global: true})
	r.Register(Fn{Name: "addErrorContext", Arity: 2, Impl: stdlibAddErrorContext})
	r.Register(Fn{Name: "seq", Arity: 2, Impl: stdlibSeq})
	r.Register(Fn{Name: "deepSeq", Arity: 2, Impl: stdlibDeepSeq})
	r.Register(Fn{Name: "trace", Arity: 2, Impl: stdlibTrace})
	r.Register(Fn{Name: "traceVerbose", Arity: 2, Impl: stdlibTraceVerbose})
	r.Register(Fn{Name: "warn", Arity: 2, Impl: stdlibWarn})
	r.Register(Fn{Name: "tryEval", Arity: 1, Impl: stdlibTryEval})
	r.Register(Fn{Name: "import", Arity: 1, Impl: stdlibImport, Global: true})

	// Type predicates
	r.Register(Fn{Name: "isAttrs", Arity: 1, Impl: isType("set")})
	r.Register(Fn{Name: "isBool", Arity: 1, Impl: isType("bool")})
	r.Register(Fn{Name: "isFloat", Arity: 1, Impl: isType("float")})
	r.Register(Fn{Name: "isFunction", Arity: 1, Impl: isType("lambda")})
	r.Register(Fn{Name: "isInt", Arity: 1, Impl: isType("int")})
	r.Register(Fn{Name: "isList", Arity: 1, Impl: isType("list")})
	r.Register(Fn{Name: "isNull", Arity: 1, Impl: isType("null"), Global: true})
	r.Register(Fn{Name: "isPath", Arity: 1, Impl: isType("path")})
	r.Register(Fn{Name: "isString", Arity: 1, Impl: isType("string")})
	r.Register(Fn{Name: "typeOf", Arity: 1, Impl: stdlibTypeOf})

	// Arithmetic
	r.Register(Fn{Name: "add", Arity: 2, Impl: arith(ast.OpAdd)})
	r.Register(Fn{Name: "sub", Arity: 2, Impl: arith(ast.OpSub)})
	r.Register(Fn{Name: "mul", Arity: 2, Impl: arith(ast.OpMul)})
	r.Register(Fn{Name: "div", Arity: 2, Impl: arith(ast.OpDiv)})
	r.Register(Fn{Name: "bitAnd", Arity: 2, Impl: bitwise(func(a, b int64) int64 { return a & b })})
	r.Register(Fn{Name: "bitOr", Arity: 2, Impl: bitwise(func(a, b int64) int64 { return a | b })})
	r.Register(Fn{Name: "bitXor", Arity: 2, Impl: bitwise(func(a, b int64) int64 { return a ^ b })})
	r.Register(Fn{Name: "ceil", Arity: 1, Impl: rounding(true)})
	r.Register(Fn{Name: "floor", Arity: 1, Impl: rounding(false)})
	r.Register(Fn{Name: "lessThan", Arity: 2, Impl: stdlibLessThan})

	// Lists
	r.Register(Fn{Name: "all", Arity: 2, Impl: quantifier(true)})
	r.Register(Fn{Name: "any", Arity: 2, Impl: quantifier(false)})
	r.Register(Fn{Name: "concatLists", Arity: 1, Impl: stdlibConcatLists})
	r.Register(Fn{Name: "concatMap", Arity: 2, Impl: stdlibConcatMap})
	r.Register(Fn{Name: "elem", Arity: 2, Impl: stdlibElem})
	r.Register(Fn{Name: "elemAt", Arity: 2, Impl: stdlibElemAt})
	r.Register(Fn{Name: "filter", Arity: 2, Impl: stdlibFilter})
	r.Register(Fn{Name: "foldl'", Arity: 3, Impl: stdlibFoldl})
	r.Register(Fn{Name: "genList", Arity: 2, Impl: stdlibGenList})
	r.Register(Fn{Name: "groupBy", Arity: 2, Impl: stdlibGroupBy})
	r.Register(Fn{Name: "head", Arity: 1, Impl: stdlibHead})
	r.Register(Fn{Name: "length", Arity: 1, Impl: stdlibLength})
	r.Register(Fn{Name: "map", Arity: 2, Impl: stdlibMap, Global: true})
	r.Register(Fn{Name: "partition", Arity: 2, Impl: stdlibPartition})
	r.Register(Fn{Name: "sort", Arity: 2, Impl: stdlibSort})
	r.Register(Fn{Name: "tail", Arity: 1, Impl: stdlibTail})

	// Attribute sets
	r.Register(Fn{Name: "attrNames", Arity: 1, Impl: stdlibAttrNames})
	r.Register(Fn{Name: "attrValues", Arity: 1, Impl: stdlibAttrValues})
	r.Register(Fn{Name: "catAttrs", Arity: 2, Impl: stdlibCatAttrs})
	r.Register(Fn{Name: "functionArgs", Arity: 1, Impl: stdlibFunctionArgs})
	r.Register(Fn{Name: "getAttr", Arity: 2, Impl: stdlibGetAttr})
	r.Register(Fn{Name: "hasAttr", Arity: 2, Impl: stdlibHasAttr})
	r.Register(Fn{Name: "intersectAttrs", Arity: 2, Impl: stdlibIntersectAttrs})
	r.Register(Fn{Name: "listToAttrs", Arity: 1, Impl: stdlibListToAttrs})
	r.Register(Fn{Name: "mapAttrs", Arity: 2, Impl: stdlibMapAttrs})
	r.Register(Fn{Name: "removeAttrs", Arity: 2, Impl: stdlibRemoveAttrs, Global: true})
	r.Register(Fn{Name: "zipAttrsWith", Arity: 2, Impl: stdlibZipAttrsWith})

	// Strings
	r.Register(Fn{Name: "baseNameOf", Arity: 1, Impl: stdlibBaseNameOf, Global: true})
	r.Register(Fn{Name: "dirOf", Arity: 1, Impl: stdlibDirOf, Global: true})
	r.Register(Fn{Name: "compareVersions", Arity: 2, Impl: stdlibCompareVersions})
	r.Register(Fn{Name: "splitVersion", Arity: 1, Impl: stdlibSplitVersion})
	r.Register(Fn{Name: "parseDrvName", Arity: 1, Impl: stdlibParseDrvName})
	r.Register(Fn{Name: "concatStringsSep", Arity: 2, Impl: stdlibConcatStringsSep})
	r.Register(Fn{Name: "hashString", Arity: 2, Impl: stdlibHashString})
	r.Register(Fn{Name: "match", Arity: 2, Impl: stdlibMatch})
	r.Register(Fn{Name: "split", Arity: 2, Impl: stdlibSplit})
	r.Register(Fn{Name: "replaceStrings", Arity: 3, Impl: stdlibReplaceStrings})
	r.Register(Fn{Name: "stringLength", Arity: 1, Impl: stdlibStringLength})
	r.Register(Fn{Name: "substring", Arity: 3, Impl: stdlibSubstring})
	r.Register(Fn{Name: "toString", Arity: 1, Impl: stdlibToString, Global: true})

	// Serialization
	r.Register(Fn{Name: "fromJSON", Arity: 1, Impl: stdlibFromJSON})
	r.Register(Fn{Name: "toJSON", Arity: 1, Impl: stdlibToJSON})

	// Filesystem and environment
	r.Register(Fn{Name: "getEnv", Arity: 1, Impl: stdlibGetEnv})
	r.Register(Fn{Name: "pathExists", Arity: 1, Impl: stdlibPathExists})
	r.Register(Fn{Name: "readDir", Arity: 1, Impl: stdlibReadDir})
	r.Register(Fn{Name: "readFile", Arity: 1, Impl: stdlibReadFile})
	r.Register(Fn{Name: "readFileType", Arity: 1, Impl: stdlibReadFileType})
	r.Register(Fn{Name: "toPath", Arity: 1, Impl: stdlibToPath})

	// String context
	r.Register(Fn{Name: "getContext", Arity: 1, Impl: stdlibGetContext})
	r.Register(Fn{Name: "hasContext", Arity: 1, Impl: stdlibHasContext})
	r.Register(Fn{Name: "unsafeDiscardStringContext", Arity: 1, Impl: stdlibDiscardContext})
}

func constant(v evaluator.Value) func(*evaluator.Evaluator) evaluator.Value {
	return func(*evaluator.Evaluator) evaluator.Value { return v }
}

// CurrentSystem returns the Nix system double of the host, e.g.
// "x86_64-linux".
func CurrentSystem() string {
	arch := runtime.GOARCH
	switch arch {
	case "amd64":
		arch = "x86_64"
	case "arm64":
		arch = "aarch64"
	case "386":
		arch = "i686"
	}
	return arch + "-" + runtime.GOOS
}

func nixPathValue(ev *evaluator.Evaluator) evaluator.Value {
	entries := ev.NixPath()
	items := make([]*evaluator.Thunk, len(entries))
	for i, e := range entries {
		set := evaluator.NewAttrSet()
		set.SetValue("prefix", evaluator.NewString(e.Prefix))
		set.SetValue("path", evaluator.NewString(e.Path))
		items[i] = evaluator.NewValueThunk(set)
	}
	return evaluator.NewList(items)
}
