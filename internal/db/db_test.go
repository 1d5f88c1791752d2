package db

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm/logger"

	"equipment-service-backend/config"
	"equipment-service-backend/internal/model"
)

func TestInit_SQLiteMigratesAllTables(t *testing.T) {
	gormDB, err := Init(&config.DatabaseConfig{DSN: "file:dbinit?mode=memory&cache=shared", MaxOpenConns: 1}, zap.NewNop())
	require.NoError(t, err)
	sqlDB, _ := gormDB.DB()
	defer sqlDB.Close()

	for _, m := range Models {
		assert.True(t, gormDB.Migrator().HasTable(m), "missing table for %T", m)
	}
	assert.True(t, gormDB.Migrator().HasColumn(&model.Issue{}, "warranty_repair_started_at"))
	assert.True(t, gormDB.Migrator().HasColumn(&model.MaintenanceTask{}, "scheduled_date"))
}

func TestDialector(t *testing.T) {
	assert.Equal(t, "postgres", dialector("postgres://svc@localhost/service").Name())
	assert.Equal(t, "postgres", dialector("postgresql://svc@localhost/service").Name())
	assert.Equal(t, "sqlite", dialector("file:service.db").Name())
}

func TestLogLevel(t *testing.T) {
	assert.Equal(t, logger.Silent, logLevel("silent"))
	assert.Equal(t, logger.Info, logLevel("INFO"))
	assert.Equal(t, logger.Warn, logLevel(""))
}
