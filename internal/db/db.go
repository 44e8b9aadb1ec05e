package db

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"sync"

	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"ticketsync/internal/models"
)

const (
	// DataDir is the directory name for ticketsync data
	DataDir = ".ticketsync"
	// DBFileName is the database filename within DataDir
	DBFileName = "db.sqlite"
	// SchemaVersion is the current schema version
	SchemaVersion = "1"
)

var (
	db   *gorm.DB
	dbMu sync.RWMutex
)

// InitDB initializes the database connection and runs migrations
func InitDB(dbPath string) (*gorm.DB, error) {
	// Ensure the directory exists
	dir := filepath.Dir(dbPath)
	if dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	config := &gorm.Config{
		Logger:         logger.Default.LogMode(logger.Silent),
		TranslateError: true,
	}

	database, err := gorm.Open(sqlite.Open(dbPath), config)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	// The webhook server reconciles deliveries concurrently; sqlite still
	// serializes the writers.
	sqlDB, err := database.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get underlying sql.DB: %w", err)
	}
	sqlDB.SetMaxOpenConns(5)
	sqlDB.SetMaxIdleConns(2)

	if err := database.Exec("PRAGMA journal_mode=WAL").Error; err != nil {
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}
	if err := database.Exec("PRAGMA busy_timeout=5000").Error; err != nil {
		return nil, fmt.Errorf("failed to set busy timeout: %w", err)
	}

	if err := runMigrations(database); err != nil {
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	dbMu.Lock()
	db = database
	dbMu.Unlock()
	return database, nil
}

// runMigrations runs all database migrations
func runMigrations(database *gorm.DB) error {
	return database.AutoMigrate(
		&models.Config{},
		&models.SyncLink{},
		&models.IdentityMapping{},
		&models.IssueLink{},
		&models.MilestoneLink{},
	)
}

// GetDB returns the current database connection
func GetDB() *gorm.DB {
	dbMu.RLock()
	defer dbMu.RUnlock()
	return db
}

// SetDB sets the database connection (used for testing)
func SetDB(database *gorm.DB) {
	dbMu.Lock()
	defer dbMu.Unlock()
	db = database
}

// CloseDB closes the database connection
func CloseDB() error {
	dbMu.Lock()
	defer dbMu.Unlock()

	if db == nil {
		return nil
	}

	sqlDB, err := db.DB()
	if err != nil {
		return fmt.Errorf("failed to get underlying sql.DB: %w", err)
	}

	err = sqlDB.Close()
	db = nil
	return err
}

// FindProjectRoot searches for a directory containing the ticketsync data dir
func FindProjectRoot() (string, error) {
	cwd, err := os.Getwd()
	if err != nil {
		return "", fmt.Errorf("failed to get current directory: %w", err)
	}

	dir := cwd
	for {
		dataPath := filepath.Join(dir, DataDir)
		if info, err := os.Stat(dataPath); err == nil && info.IsDir() {
			return dir, nil
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			return "", fmt.Errorf("no %s/ found in this directory or its parents", DataDir)
		}
		dir = parent
	}
}

// GetDefaultDBPath returns the default database path for the current directory
func GetDefaultDBPath() (string, error) {
	root, err := FindProjectRoot()
	if err != nil {
		cwd, cwdErr := os.Getwd()
		if cwdErr != nil {
			return "", cwdErr
		}
		return filepath.Join(cwd, DataDir, DBFileName), nil
	}
	return filepath.Join(root, DataDir, DBFileName), nil
}

// EnsureInitialized opens the database at dbPath (or the default path when
// empty) unless a connection is already open.
func EnsureInitialized(dbPath string) error {
	dbMu.RLock()
	isNil := db == nil
	dbMu.RUnlock()

	if isNil {
		if dbPath == "" {
			var err error
			dbPath, err = GetDefaultDBPath()
			if err != nil {
				return err
			}
		}
		if _, err := os.Stat(dbPath); os.IsNotExist(err) {
			return fmt.Errorf("ticketsync not initialized. Run 'ticketsync init' first")
		}
		if _, err := InitDB(dbPath); err != nil {
			return err
		}
		return checkSchemaVersion()
	}
	return nil
}

// checkSchemaVersion refuses databases written by a newer schema, or whose
// recorded version is not a number. A missing version (a database created
// before init recorded one) is accepted.
func checkSchemaVersion() error {
	stored, err := GetConfig(models.ConfigSchemaVersion)
	if err != nil || stored == "" {
		return nil
	}
	supported, _ := strconv.Atoi(SchemaVersion)
	version, err := strconv.Atoi(stored)
	if err != nil {
		CloseDB()
		return fmt.Errorf("database schema version %q is not a number", stored)
	}
	if version > supported {
		CloseDB()
		return fmt.Errorf("database schema version %d is newer than supported version %d", version, supported)
	}
	return nil
}

// SetConfig sets a configuration value
func SetConfig(key, value string) error {
	config := models.Config{Key: key, Value: value}
	return GetDB().Save(&config).Error
}

// GetConfig gets a configuration value
func GetConfig(key string) (string, error) {
	var config models.Config
	err := GetDB().Where("key = ?", key).First(&config).Error
	if err != nil {
		return "", err
	}
	return config.Value, nil
}
