package main

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func exec(t *testing.T, run func([]string) (string, error), argv ...string) string {
	t.Helper()
	out, err := run(argv)
	require.NoError(t, err, "%v", argv)
	return out
}

func TestCommands(t *testing.T) {
	v, err := install(t.TempDir(), false, 3, zaptest.NewLogger(t))
	require.NoError(t, err)
	defer v.Close()

	ctx := context.Background()
	call := func(argv []string) (string, error) {
		c, ok := findCommand(argv[0])
		require.True(t, ok, argv[0])
		args, err := c.parseArgs(argv[1:])
		if err != nil {
			return "", err
		}
		return c.run(ctx, v, args)
	}

	exec(t, call, "mkdir", "/docs/a")
	assert.Equal(t, "true", exec(t, call, "exists", "/docs/a"))
	assert.Equal(t, "5 bytes", exec(t, call, "put", "/docs/a/x.txt", "hello"))
	assert.Equal(t, "hello", exec(t, call, "cat", "/docs/a/x.txt"))
	assert.Equal(t, "5", exec(t, call, "size", "/docs/a/x.txt"))
	assert.Len(t, exec(t, call, "sum", "/docs/a/x.txt"), 16)

	_, err = call([]string{"rm", "/docs"})
	assert.Error(t, err, "non-empty directory")
	exec(t, call, "rm", "/docs", "true")
	assert.Equal(t, "false", exec(t, call, "exists", "/docs"))

	assert.Contains(t, exec(t, call, "bench", "16", "512"), "16 pages of 512 bytes")
	assert.Contains(t, exec(t, call, "metrics"), "xWrite")
}

func TestParseArgs(t *testing.T) {
	c, ok := findCommand("bench")
	require.True(t, ok)

	args, err := c.parseArgs(nil)
	require.NoError(t, err)
	assert.Equal(t, []any{uint32(1000), uint32(4096)}, args)

	_, err = c.parseArgs([]string{"x"})
	assert.Error(t, err)
	_, err = c.parseArgs([]string{"1", "2", "3"})
	assert.Error(t, err)

	rm, _ := findCommand("rm")
	_, err = rm.parseArgs(nil)
	assert.ErrorContains(t, err, "missing name")

	_, ok = findCommand("nope")
	assert.False(t, ok)
}

func TestRunRecursiveFlag(t *testing.T) {
	v, err := install("", false, 0, zaptest.NewLogger(t))
	require.NoError(t, err)
	defer v.Close()

	ctx := context.Background()
	require.NoError(t, run(ctx, v, []string{"put", "/d/f", "x"}))
	require.Error(t, run(ctx, v, []string{"rm", "/d"}))
	require.NoError(t, run(ctx, v, []string{"rm", "-r", "/d"}))
	require.Error(t, run(ctx, v, []string{"frobnicate"}))
}
