package db

import (
	"io/fs"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMigrateURLRewritesScheme(t *testing.T) {
	assert.Equal(t, "pgx5://u:p@localhost:5432/tutorly?sslmode=disable",
		migrateURL("postgres://u:p@localhost:5432/tutorly?sslmode=disable"))
	assert.Equal(t, "pgx5://db/tutorly", migrateURL("postgresql://db/tutorly"))
	assert.Equal(t, "pgx5://already", migrateURL("pgx5://already"))
}

func TestMigrationsArePaired(t *testing.T) {
	ups, err := fs.Glob(migrationsFS, "migrations/*.up.sql")
	require.NoError(t, err)
	downs, err := fs.Glob(migrationsFS, "migrations/*.down.sql")
	require.NoError(t, err)
	require.NotEmpty(t, ups)
	assert.Len(t, downs, len(ups))
}

func TestRollbackRejectsNonPositiveSteps(t *testing.T) {
	require.Error(t, Rollback("postgres://localhost/none", 0))
}
