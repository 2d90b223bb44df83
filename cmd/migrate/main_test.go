package main

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCreateThenValidate(t *testing.T) {
	dir := t.TempDir()
	out := &bytes.Buffer{}

	root := newRootCmd(out)
	root.SetArgs([]string{"create", "add invoice notes", "--dir", dir})
	require.NoError(t, root.Execute())
	assert.Contains(t, out.String(), "_add_invoice_notes.sql")

	out.Reset()
	root = newRootCmd(out)
	root.SetArgs([]string{"validate", "--dir", dir})
	require.NoError(t, root.Execute())
	assert.Equal(t, "migrations ok\n", out.String())

	require.NoError(t, os.WriteFile(filepath.Join(dir, "broken.sql"), []byte("select 1;"), 0o644))
	root = newRootCmd(out)
	root.SetArgs([]string{"validate", "--dir", dir})
	assert.Error(t, root.Execute())
}

func TestToRequiresVersion(t *testing.T) {
	root := newRootCmd(&bytes.Buffer{})
	root.SetArgs([]string{"to"})
	assert.Error(t, root.Execute())
}
