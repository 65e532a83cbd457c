// Package database provides the relational store for the tradingbot
// pipeline: the five tables (transactions, orders, portfolio, used,
// budget), schema management, and the queries the workers run against
// them. Connections go through GORM; the driver is selected by
// configuration so production runs on PostgreSQL while tests can run on
// SQLite.
package database

import (
	"fmt"

	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// Database holds the GORM database connection.
type Database struct {
	db *gorm.DB
}

// DB returns the underlying GORM instance for direct access when needed.
func (d *Database) DB() *gorm.DB {
	return d.db
}

// Connect establishes a database connection. driver is "postgres" or
// "sqlite"; for sqlite the database name is the file path and the other
// parameters are ignored.
func Connect(driver, host, dbname, user, password string) (*Database, error) {
	var dialector gorm.Dialector
	switch driver {
	case "postgres":
		dsn := fmt.Sprintf("host=%s dbname=%s user=%s password=%s sslmode=disable",
			host, dbname, user, password)
		dialector = postgres.Open(dsn)
	case "sqlite":
		dialector = sqlite.Open(dbname)
	default:
		return nil, fmt.Errorf("unsupported database driver: %s", driver)
	}

	db, err := gorm.Open(dialector, &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	return &Database{db: db}, nil
}

// Close closes the database connection
func (d *Database) Close() error {
	sqlDB, err := d.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
