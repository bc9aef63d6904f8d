package utils

import (
	"os"
	"path/filepath"
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestMakeDirectory verifies nested directories are created, existing ones accepted and files rejected.
func TestMakeDirectory(t *testing.T) {
	root := t.TempDir()
	nested := filepath.Join(root, "a", "b", "c")

	require.NoError(t, MakeDirectory(nested))
	info, err := os.Stat(nested)
	require.NoError(t, err)
	assert.True(t, info.IsDir())
	assert.NoError(t, MakeDirectory(nested))

	file := filepath.Join(root, "file")
	require.NoError(t, os.WriteFile(file, []byte{}, 0644))
	assert.Error(t, MakeDirectory(file))
}

// TestSliceSelect verifies elements are mapped in order.
func TestSliceSelect(t *testing.T) {
	assert.Equal(t, []string{"1", "2", "3"}, SliceSelect([]int{1, 2, 3}, strconv.Itoa))
	assert.Empty(t, SliceSelect([]int{}, strconv.Itoa))
}
