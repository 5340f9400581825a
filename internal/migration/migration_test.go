package migration

import (
	"errors"
	"io"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEmbeddedMigrationsAreSequential(t *testing.T) {
	src, err := newSource()
	require.NoError(t, err)
	defer src.Close()

	version, err := src.First()
	require.NoError(t, err)

	versions := []uint{version}
	for {
		next, err := src.Next(version)
		if errors.Is(err, os.ErrNotExist) {
			break
		}
		require.NoError(t, err)
		versions = append(versions, next)
		version = next
	}
	assert.Equal(t, []uint{1, 2, 3, 4}, versions)

	for _, v := range versions {
		up, _, err := src.ReadUp(v)
		require.NoError(t, err)
		body, err := io.ReadAll(up)
		require.NoError(t, err)
		up.Close()
		assert.NotEmpty(t, body)

		down, _, err := src.ReadDown(v)
		require.NoError(t, err)
		down.Close()
	}
}

func TestRunMigrationsRequiresHandle(t *testing.T) {
	assert.Error(t, RunMigrations(nil))
}
