package cmd

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRootCmd_HasSubcommands(t *testing.T) {
	root := NewRootCmd()

	names := make([]string, 0)
	for _, c := range root.Commands() {
		names = append(names, c.Name())
	}
	assert.Contains(t, names, "serve")
	assert.Contains(t, names, "index")
	assert.Contains(t, names, "status")
	assert.Contains(t, names, "version")
}

func TestVersionCmd_Short(t *testing.T) {
	t.Setenv("HOME", t.TempDir())

	root := NewRootCmd()
	out := &bytes.Buffer{}
	root.SetOut(out)
	root.SetErr(out)
	root.SetArgs([]string{"version", "--short"})

	require.NoError(t, root.Execute())
	assert.NotEmpty(t, out.String())
}

func TestServeCmd_RequiresArchive(t *testing.T) {
	t.Setenv("HOME", t.TempDir())

	root := NewRootCmd()
	out := &bytes.Buffer{}
	root.SetOut(out)
	root.SetErr(out)
	root.SetArgs([]string{"serve"})

	err := root.Execute()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "archive")
}

func TestIndexCmd_RequiresArchive(t *testing.T) {
	t.Setenv("HOME", t.TempDir())

	root := NewRootCmd()
	out := &bytes.Buffer{}
	root.SetOut(out)
	root.SetErr(out)
	root.SetArgs([]string{"index"})

	err := root.Execute()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "archive")
}
