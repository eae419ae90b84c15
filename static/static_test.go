package static

import (
	"io/fs"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFiles(t *testing.T) {
	t.Parallel()
	_, err := fs.Stat(Files(), "index.html")
	require.NoError(t, err)

	_, err = fs.Stat(Files(), "templates/index.html")
	assert.ErrorIs(t, err, fs.ErrNotExist)
	_, err = fs.Stat(Files(), "templates")
	assert.ErrorIs(t, err, fs.ErrNotExist)
}

func TestTemplates(t *testing.T) {
	t.Parallel()
	bs, err := fs.ReadFile(Templates(), "index.html")
	require.NoError(t, err)
	assert.Contains(t, string(bs), "{{.Request.Method}}")
}
