package db

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"

	"docuchat/models"

	_ "modernc.org/sqlite" // Use pure Go SQLite driver (no CGO required)
)

// ErrSlotNotFound is returned by GetSlot when nothing was stored under a key
var ErrSlotNotFound = errors.New("slot not found")

// DB is the durable key/value slot storage backing the client stores
type DB struct {
	gorm *gorm.DB
}

// Open initializes the SQLite database at dbPath, creating parent
// directories as needed
func Open(dbPath string) (*DB, error) {
	if dir := filepath.Dir(dbPath); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	config := &gorm.Config{
		Logger:      logger.Default.LogMode(logger.Silent),
		PrepareStmt: true,
	}

	dsn := dbPath + "?_pragma=busy_timeout(5000)&_time_format=sqlite"
	sqlDB, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite database: %w", err)
	}

	gdb, err := gorm.Open(sqlite.Dialector{Conn: sqlDB}, config)
	if err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	// WAL keeps a reader (another docuchat process) from blocking the writer
	if err := gdb.Exec("PRAGMA journal_mode = WAL;").Error; err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}
	if err := gdb.Exec("PRAGMA synchronous = NORMAL;").Error; err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("failed to set synchronous mode: %w", err)
	}

	// SQLite only supports one writer at a time
	sqlDB.SetMaxOpenConns(1)
	sqlDB.SetMaxIdleConns(1)
	sqlDB.SetConnMaxLifetime(time.Hour)

	if err := gdb.AutoMigrate(&models.Slot{}); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return &DB{gorm: gdb}, nil
}

// GetSlot returns the value stored under key
func (d *DB) GetSlot(key string) (string, error) {
	var slot models.Slot
	result := d.gorm.Where(&models.Slot{Key: key}).First(&slot)
	if errors.Is(result.Error, gorm.ErrRecordNotFound) {
		return "", ErrSlotNotFound
	}
	if result.Error != nil {
		return "", fmt.Errorf("failed to read slot %s: %w", key, result.Error)
	}
	return slot.Value, nil
}

// SetSlot stores value under key, replacing any previous value
func (d *DB) SetSlot(key, value string) error {
	slot := models.Slot{Key: key, Value: value, UpdatedAt: time.Now()}
	result := d.gorm.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "key"}},
		DoUpdates: clause.AssignmentColumns([]string{"value", "updated_at"}),
	}).Create(&slot)
	if result.Error != nil {
		return fmt.Errorf("failed to write slot %s: %w", key, result.Error)
	}
	return nil
}

// DeleteSlot removes key. Deleting a missing key is not an error.
func (d *DB) DeleteSlot(key string) error {
	result := d.gorm.Where(&models.Slot{Key: key}).Delete(&models.Slot{})
	if result.Error != nil {
		return fmt.Errorf("failed to delete slot %s: %w", key, result.Error)
	}
	return nil
}

// Keys lists the stored slot keys in name order
func (d *DB) Keys() ([]string, error) {
	var keys []string
	result := d.gorm.Model(&models.Slot{}).Order(clause.OrderByColumn{Column: clause.Column{Name: "key"}}).Pluck("key", &keys)
	if result.Error != nil {
		return nil, fmt.Errorf("failed to list slots: %w", result.Error)
	}
	return keys, nil
}

// Close closes the database connection
func (d *DB) Close() error {
	sqlDB, err := d.gorm.DB()
	if err != nil {
		return fmt.Errorf("failed to get database instance: %w", err)
	}
	return sqlDB.Close()
}
