package db

import (
	"os"
	"path/filepath"
	"testing"

	"ticketsync/internal/models"
)

func setupTestDB(t *testing.T) func() {
	t.Helper()

	// Create temp directory
	tmpDir, err := os.MkdirTemp("", "ticketsync-test-*")
	if err != nil {
		t.Fatalf("Failed to create temp dir: %v", err)
	}

	dbPath := filepath.Join(tmpDir, "test.db")
	_, err = InitDB(dbPath)
	if err != nil {
		os.RemoveAll(tmpDir)
		t.Fatalf("Failed to init test DB: %v", err)
	}

	// Return cleanup function
	return func() {
		CloseDB()
		os.RemoveAll(tmpDir)
	}
}

func TestInitDB(t *testing.T) {
	cleanup := setupTestDB(t)
	defer cleanup()

	db := GetDB()
	if db == nil {
		t.Fatal("GetDB() returned nil after InitDB")
	}

	for _, table := range []string{"sync_links", "identity_mappings", "issue_links", "milestone_links", "config"} {
		if !db.Migrator().HasTable(table) {
			t.Errorf("table %s missing after migrations", table)
		}
	}
}

func TestSetGetConfig(t *testing.T) {
	cleanup := setupTestDB(t)
	defer cleanup()

	// Set config
	err := SetConfig("test_key", "test_value")
	if err != nil {
		t.Fatalf("SetConfig() error: %v", err)
	}

	// Get config
	value, err := GetConfig("test_key")
	if err != nil {
		t.Fatalf("GetConfig() error: %v", err)
	}
	if value != "test_value" {
		t.Errorf("GetConfig() = %s, want test_value", value)
	}

	// Update config
	err = SetConfig("test_key", "updated_value")
	if err != nil {
		t.Fatalf("SetConfig() update error: %v", err)
	}

	value, err = GetConfig("test_key")
	if err != nil {
		t.Fatalf("GetConfig() after update error: %v", err)
	}
	if value != "updated_value" {
		t.Errorf("GetConfig() after update = %s, want updated_value", value)
	}

	// Get non-existent config
	_, err = GetConfig("nonexistent")
	if err == nil {
		t.Error("GetConfig() should error for non-existent key")
	}
}

func TestEnsureInitializedMissingFile(t *testing.T) {
	if err := CloseDB(); err != nil {
		t.Fatalf("CloseDB() error: %v", err)
	}

	missing := filepath.Join(t.TempDir(), "nope", "db.sqlite")
	if err := EnsureInitialized(missing); err == nil {
		t.Error("EnsureInitialized() should error when the database file does not exist")
	}
}

func TestEnsureInitializedSchemaVersion(t *testing.T) {
	tests := []struct {
		name    string
		version string
		wantErr bool
	}{
		{"current", SchemaVersion, false},
		{"unrecorded", "", false},
		{"newer", "9", true},
		{"newer by more digits", "10", true},
		{"zero padded newer", "09", true},
		{"zero padded current", "01", false},
		{"garbage", "v2", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dbPath := filepath.Join(t.TempDir(), DBFileName)
			if _, err := InitDB(dbPath); err != nil {
				t.Fatalf("InitDB() error: %v", err)
			}
			if tt.version != "" {
				if err := SetConfig(models.ConfigSchemaVersion, tt.version); err != nil {
					t.Fatalf("SetConfig() error: %v", err)
				}
			}
			CloseDB()

			err := EnsureInitialized(dbPath)
			defer CloseDB()
			if (err != nil) != tt.wantErr {
				t.Fatalf("EnsureInitialized() error = %v, wantErr %v", err, tt.wantErr)
			}
			if tt.wantErr && GetDB() != nil {
				t.Error("a rejected database should not stay open")
			}
		})
	}
}

func TestGetDefaultDBPathFindsParentDataDir(t *testing.T) {
	root := t.TempDir()
	if err := os.MkdirAll(filepath.Join(root, DataDir), 0755); err != nil {
		t.Fatal(err)
	}
	nested := filepath.Join(root, "a", "b")
	if err := os.MkdirAll(nested, 0755); err != nil {
		t.Fatal(err)
	}
	wd, _ := os.Getwd()
	if err := os.Chdir(nested); err != nil {
		t.Fatal(err)
	}
	defer os.Chdir(wd)

	got, err := GetDefaultDBPath()
	if err != nil {
		t.Fatalf("GetDefaultDBPath() error: %v", err)
	}
	want := filepath.Join(root, DataDir, DBFileName)
	// t.TempDir may sit behind a symlink (macOS /var -> /private/var).
	if resolved, err := filepath.EvalSymlinks(filepath.Dir(got)); err == nil {
		got = filepath.Join(resolved, DBFileName)
	}
	if resolved, err := filepath.EvalSymlinks(filepath.Dir(want)); err == nil {
		want = filepath.Join(resolved, DBFileName)
	}
	if got != want {
		t.Errorf("GetDefaultDBPath() = %s, want %s", got, want)
	}
}

func TestCloseDB(t *testing.T) {
	cleanup := setupTestDB(t)
	defer cleanup()

	err := CloseDB()
	if err != nil {
		t.Fatalf("CloseDB() error: %v", err)
	}

	// Should be nil after close
	if GetDB() != nil {
		t.Error("GetDB() should return nil after CloseDB()")
	}

	// Calling CloseDB again should be safe
	err = CloseDB()
	if err != nil {
		t.Errorf("CloseDB() second call error: %v", err)
	}
}
