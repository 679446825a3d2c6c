package stdlib

import (
	"io/fs"
	"os"
	"path/filepath"

	"github.com/thomasrohde/nixeval/pkg/diagnostics"
	"github.com/thomasrohde/nixeval/pkg/evaluator"
)

// readablePath forces th to a path and checks it against the access policy.
func readablePath(ev *evaluator.Evaluator, th *evaluator.Thunk) (string, error) {
	path, err := ev.ForcePath(th)
	if err != nil {
		return "", err
	}
	path = filepath.Clean(path)
	if err := ev.CheckPath(path); err != nil {
		return "", err
	}
	return path, nil
}

func ioError(op, path string, err error) error {
	return evaluator.Errorf(diagnostics.EIO, "%s '%s': %v", op, path, err)
}

func fileType(mode fs.FileMode) string {
	switch {
	case mode.IsRegular():
		return "regular"
	case mode.IsDir():
		return "directory"
	case mode&fs.ModeSymlink != 0:
		return "symlink"
	}
	return "unknown"
}

// getEnv name → value, or "" when unset
func stdlibGetEnv(ev *evaluator.Evaluator, args []*evaluator.Thunk) (evaluator.Value, error) {
	name, err := evaluator.ForceString(args[0])
	if err != nil {
		return nil, err
	}
	if err := ev.CheckEnv(name.Value); err != nil {
		return nil, err
	}
	return evaluator.NewString(os.Getenv(name.Value)), nil
}

// pathExists path → bool
func stdlibPathExists(ev *evaluator.Evaluator, args []*evaluator.Thunk) (evaluator.Value, error) {
	path, err := readablePath(ev, args[0])
	if err != nil {
		return nil, err
	}
	_, err = os.Lstat(path)
	return evaluator.NewBool(err == nil), nil
}

// readFile path → contents
func stdlibReadFile(ev *evaluator.Evaluator, args []*evaluator.Thunk) (evaluator.Value, error) {
	path, err := readablePath(ev, args[0])
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, ioError("cannot read", path, err)
	}
	return evaluator.NewString(string(data)), nil
}

// readDir path → { name = "regular" | "directory" | "symlink" | "unknown"; }
func stdlibReadDir(ev *evaluator.Evaluator, args []*evaluator.Thunk) (evaluator.Value, error) {
	path, err := readablePath(ev, args[0])
	if err != nil {
		return nil, err
	}
	entries, err := os.ReadDir(path)
	if err != nil {
		return nil, ioError("cannot read directory", path, err)
	}
	set := evaluator.NewAttrSet()
	for _, e := range entries {
		set.SetValue(e.Name(), evaluator.NewString(fileType(e.Type())))
	}
	return set, nil
}

// readFileType path → "regular" | "directory" | "symlink" | "unknown"
func stdlibReadFileType(ev *evaluator.Evaluator, args []*evaluator.Thunk) (evaluator.Value, error) {
	path, err := readablePath(ev, args[0])
	if err != nil {
		return nil, err
	}
	info, err := os.Lstat(path)
	if err != nil {
		return nil, ioError("cannot stat", path, err)
	}
	return evaluator.NewString(fileType(info.Mode())), nil
}

// toPath string → absolute path string
func stdlibToPath(ev *evaluator.Evaluator, args []*evaluator.Thunk) (evaluator.Value, error) {
	path, err := ev.ForcePath(args[0])
	if err != nil {
		return nil, err
	}
	return evaluator.NewString(filepath.Clean(path)), nil
}
