package main

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/thomasrohde/nixeval/pkg/diagnostics"
	"github.com/thomasrohde/nixeval/pkg/evaluator"
	"github.com/thomasrohde/nixeval/pkg/runtime"
)

func newTestSession() (*session, *bytes.Buffer) {
	var out bytes.Buffer
	rt := runtime.New(runtime.WithoutValidation(), runtime.WithTrace(runtime.NewTraceWriter(&bytes.Buffer{}, nil)))
	return newSession(rt, &out), &out
}

func TestSessionBindingsPersist(t *testing.T) {
	s, out := newTestSession()
	ctx := context.Background()
	for _, line := range []string{"x = 20", "y = x + 1", "x * 2 + y - 20"} {
		done, err := s.handle(ctx, line)
		require.NoError(t, err)
		assert.False(t, done)
	}
	assert.Equal(t, "Added x.\nAdded y.\n41\n", out.String())
}

func TestSessionEqualityIsNotBinding(t *testing.T) {
	s, out := newTestSession()
	_, err := s.handle(context.Background(), "builtins == 1")
	require.NoError(t, err)
	assert.Equal(t, "false\n", out.String())
}

func TestSessionCommands(t *testing.T) {
	s, out := newTestSession()
	ctx := context.Background()

	_, err := s.handle(ctx, ":t { }")
	require.NoError(t, err)
	_, err = s.handle(ctx, ":p { a = [ 1 ]; }")
	require.NoError(t, err)
	assert.Equal(t, "set\n{\n  a = [\n    1\n  ];\n}\n", out.String())

	done, err := s.handle(ctx, ":q")
	require.NoError(t, err)
	assert.True(t, done)

	_, err = s.handle(ctx, ":nope")
	assert.Error(t, err)
}

func TestSessionErrorsKeepScope(t *testing.T) {
	s, out := newTestSession()
	ctx := context.Background()
	_, err := s.handle(ctx, "x = throw \"boom\"")
	require.NoError(t, err)
	_, err = s.handle(ctx, "x")
	assert.True(t, evaluator.IsCode(err, diagnostics.EThrow))
	_, err = s.handle(ctx, "1 + 1")
	require.NoError(t, err)
	assert.True(t, strings.HasSuffix(out.String(), "2\n"))
}

func TestSessionComplete(t *testing.T) {
	s, _ := newTestSession()
	_, err := s.handle(context.Background(), "myValue = 1")
	require.NoError(t, err)
	assert.Contains(t, s.complete("1 + myV"), "1 + myValue")
	assert.Contains(t, s.complete("builtins.conc"), "builtins.concatStringsSep")
}
