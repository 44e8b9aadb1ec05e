package models

import (
	"time"
)

// Config stores key-value settings for the sync database
type Config struct {
	Key       string    `gorm:"primaryKey;size:100" json:"key"`
	Value     string    `gorm:"type:text" json:"value"`
	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

// TableName specifies the table name for Config
func (Config) TableName() string {
	return "config"
}

// Common config keys
const (
	ConfigSchemaVersion = "schema_version"
	ConfigInitializedAt = "initialized_at"
)

// Keyring entries
const (
	KeyringServiceName      = "ticketsync"
	KeyringWebhookSecretKey = "webhook-secret"
	KeyringLinearAPIKeyKey  = "linear-api-key"
	KeyringGitHubTokenKey   = "github-token"
)

// DateTimeShortFormat is used for timestamps in CLI output
const DateTimeShortFormat = "2006-01-02 15:04"
