package database

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadMigrations(t *testing.T) {
	migrations, err := LoadMigrations()
	require.NoError(t, err)
	require.NotEmpty(t, migrations)

	first := migrations[0]
	assert.Equal(t, "0001", first.Version)
	assert.Equal(t, "init", first.Title)
	assert.Len(t, first.Checksum, 64)
	assert.Contains(t, first.UpSQL, "CREATE TABLE IF NOT EXISTS survey_drafts")

	for i := 1; i < len(migrations); i++ {
		assert.Less(t, migrations[i-1].Version, migrations[i].Version)
	}
}
