package migrations

import (
	"io/fs"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUp_OrderedAndPaired(t *testing.T) {
	files, err := Up()
	require.NoError(t, err)
	require.NotEmpty(t, files)
	assert.IsIncreasing(t, files)

	for _, up := range files {
		down := up[:len(up)-len(".up.sql")] + ".down.sql"
		_, err := fs.Stat(FS, down)
		assert.NoError(t, err, "missing %s", down)
	}
}
