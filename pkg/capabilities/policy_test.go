package capabilities_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/thomasrohde/nixeval/pkg/capabilities"
)

func TestCheckPath(t *testing.T) {
	p, err := capabilities.New(capabilities.PolicyFile{
		AllowPaths: []string{"/src/project", "/data/**/*.nix"},
		DenyPaths:  []string{"/src/project/secrets"},
	})
	require.NoError(t, err)

	tests := []struct {
		path    string
		allowed bool
	}{
		{"/src/project", true},
		{"/src/project/default.nix", true},
		{"/src/project/lib/../default.nix", true},
		{"/src/projectx/default.nix", false},
		{"/src/project/secrets", false},
		{"/src/project/secrets/key.nix", false},
		{"/data/a/b/c.nix", true},
		{"/data/a/b/c.json", false},
		{"/etc/passwd", false},
	}
	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			err := p.CheckPath(tt.path)
			if tt.allowed {
				assert.NoError(t, err)
			} else {
				assert.ErrorIs(t, err, capabilities.ErrForbidden)
			}
		})
	}
}

func TestCheckEnv(t *testing.T) {
	p, err := capabilities.New(capabilities.PolicyFile{AllowEnv: []string{"HOME", "NIX_*"}})
	require.NoError(t, err)

	assert.NoError(t, p.CheckEnv("HOME"))
	assert.NoError(t, p.CheckEnv("NIX_PATH"))
	assert.ErrorIs(t, p.CheckEnv("AWS_SECRET_ACCESS_KEY"), capabilities.ErrForbidden)
}

func TestInvalidPattern(t *testing.T) {
	_, err := capabilities.New(capabilities.PolicyFile{AllowPaths: []string{"/a/[b"}})
	assert.Error(t, err)
}

func TestAllowAllAndDenyAll(t *testing.T) {
	assert.NoError(t, capabilities.AllowAll().CheckPath("/etc/passwd"))
	assert.NoError(t, capabilities.AllowAll().CheckEnv("HOME"))
	assert.ErrorIs(t, capabilities.DenyAll().CheckPath("/etc/passwd"), capabilities.ErrForbidden)
	assert.ErrorIs(t, capabilities.DenyAll().CheckEnv("HOME"), capabilities.ErrForbidden)
}

func TestAllowExtendsPolicy(t *testing.T) {
	p := capabilities.DenyAll()
	p.Allow("/work")
	assert.NoError(t, p.CheckPath("/work/x.nix"))
	assert.Error(t, p.CheckPath("/other"))
}

func TestLoadPolicyFromProject(t *testing.T) {
	dir := t.TempDir()
	content := `{"allowPaths": ["/nix/**"], "allowEnv": ["USER"]}`
	require.NoError(t, os.WriteFile(filepath.Join(dir, capabilities.PolicyFileName), []byte(content), 0o644))

	p, pf, err := capabilities.LoadPolicy(dir)
	require.NoError(t, err)
	require.NotNil(t, pf)
	assert.Equal(t, []string{"/nix/**"}, pf.AllowPaths)
	assert.NoError(t, p.CheckPath("/nix/store/x"))
	assert.NoError(t, p.CheckEnv("USER"))
	assert.Error(t, p.CheckEnv("HOME"))
}

func TestLoadPolicyMalformed(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, capabilities.PolicyFileName), []byte("{not json"), 0o644))

	_, _, err := capabilities.LoadPolicy(dir)
	assert.Error(t, err)
}
