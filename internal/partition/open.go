package partition

import (
	"fmt"

	"gorm.io/driver/mysql"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gorm_logger "gorm.io/gorm/logger"
)

// OpenDatabase opens the cache store for the configured backend and
// migrates the schema.
func OpenDatabase(driver, sqlitePath, mysqlDSN string) (*gorm.DB, error) {
	cfg := &gorm.Config{
		Logger: gorm_logger.Default.LogMode(gorm_logger.Silent),
	}

	var (
		db  *gorm.DB
		err error
	)
	switch driver {
	case "sqlite", "":
		db, err = gorm.Open(sqlite.Open(sqlitePath), cfg)
	case "mysql":
		db, err = gorm.Open(mysql.Open(mysqlDSN), cfg)
	default:
		return nil, fmt.Errorf("unsupported database driver %q", driver)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to open cache store: %w", err)
	}
	if err := AutoMigrate(db); err != nil {
		return nil, err
	}
	return db, nil
}
