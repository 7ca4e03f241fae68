package database

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/clinidesk/clinidesk/internal/models"
)

func TestOpenSQLiteInMemoryAndMigrate(t *testing.T) {
	db, err := Open(Config{Driver: "sqlite"})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	t.Cleanup(func() { _ = sqlDB.Close() })

	require.NoError(t, AutoMigrateAndSeed(db))

	var admins int64
	require.NoError(t, db.Model(&models.User{}).Where("role = ?", models.RoleAdmin).Count(&admins).Error)
	require.EqualValues(t, 1, admins)

	// Seeding twice must not duplicate the default admin.
	require.NoError(t, SeedData(db))
	require.NoError(t, db.Model(&models.User{}).Where("role = ?", models.RoleAdmin).Count(&admins).Error)
	require.EqualValues(t, 1, admins)
}
