package cmd

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
	"github.com/zalando/go-keyring"

	"ticketsync/internal/db"
	"ticketsync/internal/logging"
	"ticketsync/internal/models"
	"ticketsync/internal/reconcile"
)

// ConfigFileName is the config file looked up in the data dir and the
// working directory.
const ConfigFileName = "ticketsync.yaml"

// Config keys
const (
	keyDatabasePath         = "database.path"
	keyServerAddr           = "server.addr"
	keyWebhookSecret        = "webhook.secret"
	keyLogLevel             = "log.level"
	keyLogFormat            = "log.format"
	keyLogFile              = "log.file"
	keyLogMaxSizeMB         = "log.max_size_mb"
	keyLogMaxBackups        = "log.max_backups"
	keyLogMaxAgeDays        = "log.max_age_days"
	keyLabelAllowList       = "sync.label_allow_list"
	keyInternalMarker       = "sync.internal_marker_prefix"
	keySyntheticIDMarker    = "sync.synthetic_id_marker"
	keyTitleTicketID        = "sync.title_ticket_id"
	keyBodyFooter           = "sync.body_footer"
	keyAttachmentTitle      = "sync.attachment_title"
	keyOutboundTimeout      = "outbound.timeout"
	keyOutboundAttempts     = "outbound.attempts"
	keyOutboundBackoff      = "outbound.backoff"
	keyLinearAPIKey         = "credentials.linear_api_key"
	keyGitHubToken          = "credentials.github_token"
	keyGitHubAPIURL         = "github.api_url"
	keyLinearAPIURL         = "linear.api_url"
	keyServerShutdownPeriod = "server.shutdown_timeout"
)

var cfg = viper.New()

// setDefaults registers the default of every key.
func setDefaults(v *viper.Viper) {
	defaults := reconcile.DefaultOptions()
	v.SetDefault(keyDatabasePath, "")
	v.SetDefault(keyServerAddr, ":8080")
	v.SetDefault(keyServerShutdownPeriod, "10s")
	v.SetDefault(keyLogLevel, "info")
	v.SetDefault(keyLogFormat, "text")
	v.SetDefault(keyLogFile, "")
	v.SetDefault(keyLogMaxSizeMB, 50)
	v.SetDefault(keyLogMaxBackups, 5)
	v.SetDefault(keyLogMaxAgeDays, 28)
	v.SetDefault(keyLabelAllowList, defaults.LabelAllowList)
	v.SetDefault(keyInternalMarker, defaults.InternalMarkerPrefix)
	v.SetDefault(keySyntheticIDMarker, defaults.SyntheticIDMarker)
	v.SetDefault(keyTitleTicketID, defaults.TitleTicketID)
	v.SetDefault(keyBodyFooter, defaults.BodyFooter)
	v.SetDefault(keyAttachmentTitle, defaults.AttachmentTitle)
	v.SetDefault(keyOutboundTimeout, defaults.Policy.Timeout.String())
	v.SetDefault(keyOutboundAttempts, defaults.Policy.Attempts)
	v.SetDefault(keyOutboundBackoff, "1s")
	v.SetDefault(keyWebhookSecret, "")
	v.SetDefault(keyLinearAPIKey, "")
	v.SetDefault(keyGitHubToken, "")
	v.SetDefault(keyGitHubAPIURL, "")
	v.SetDefault(keyLinearAPIURL, "")
}

// loadConfig reads the config file (when there is one) and the environment
// into v.
func loadConfig(v *viper.Viper, file string) error {
	setDefaults(v)
	v.SetEnvPrefix("TICKETSYNC")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if file != "" {
		v.SetConfigFile(file)
	} else {
		v.SetConfigName(strings.TrimSuffix(ConfigFileName, filepath.Ext(ConfigFileName)))
		v.SetConfigType("yaml")
		if root, err := db.FindProjectRoot(); err == nil {
			v.AddConfigPath(filepath.Join(root, db.DataDir))
		}
		v.AddConfigPath(".")
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if errors.As(err, &notFound) && file == "" {
			return nil
		}
		return fmt.Errorf("failed to read config: %w", err)
	}
	return nil
}

func initConfig() error {
	return loadConfig(cfg, configFile)
}

// settingsDBPath is --db, then database.path, then the default.
func settingsDBPath() string {
	if dbPath != "" {
		return dbPath
	}
	return cfg.GetString(keyDatabasePath)
}

// engineOptions builds the engine options from v. Override credentials come
// from the config or environment, then the keyring.
func engineOptions(v *viper.Viper) (reconcile.Options, error) {
	opts := reconcile.DefaultOptions()
	opts.LabelAllowList = stringList(v, keyLabelAllowList)
	opts.InternalMarkerPrefix = v.GetString(keyInternalMarker)
	opts.SyntheticIDMarker = v.GetString(keySyntheticIDMarker)
	opts.TitleTicketID = v.GetBool(keyTitleTicketID)
	opts.BodyFooter = v.GetBool(keyBodyFooter)
	opts.AttachmentTitle = v.GetString(keyAttachmentTitle)
	opts.Policy = reconcile.CallPolicy{
		Timeout:  v.GetDuration(keyOutboundTimeout),
		Attempts: v.GetInt(keyOutboundAttempts),
		Backoff:  v.GetDuration(keyOutboundBackoff),
	}
	if opts.Policy.Attempts < 1 {
		return opts, fmt.Errorf("%s must be at least 1", keyOutboundAttempts)
	}
	opts.Overrides = reconcile.Credentials{
		LinearAPIKey: secret(v, keyLinearAPIKey, models.KeyringLinearAPIKeyKey),
		GitHubToken:  secret(v, keyGitHubToken, models.KeyringGitHubTokenKey),
	}
	return opts, nil
}

// stringList reads a list key that may also be given as a comma separated
// string, as environment variables are.
func stringList(v *viper.Viper, key string) []string {
	var out []string
	for _, item := range v.GetStringSlice(key) {
		for _, part := range strings.Split(item, ",") {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}
	}
	return out
}

func loggingConfig(v *viper.Viper) logging.Config {
	return logging.Config{
		Level:      v.GetString(keyLogLevel),
		Format:     v.GetString(keyLogFormat),
		File:       v.GetString(keyLogFile),
		MaxSizeMB:  v.GetInt(keyLogMaxSizeMB),
		MaxBackups: v.GetInt(keyLogMaxBackups),
		MaxAgeDays: v.GetInt(keyLogMaxAgeDays),
	}
}

// secret returns the configured value of key, falling back to the keyring.
// Missing secrets are empty.
func secret(v *viper.Viper, key, keyringKey string) string {
	if value := v.GetString(key); value != "" {
		return value
	}
	value, err := keyring.Get(models.KeyringServiceName, keyringKey)
	if err != nil {
		return ""
	}
	return value
}

// GetWebhookSecret retrieves the webhook secret from config, environment or
// keyring.
func GetWebhookSecret() (string, error) {
	if s := secret(cfg, keyWebhookSecret, models.KeyringWebhookSecretKey); s != "" {
		return s, nil
	}
	return "", fmt.Errorf("webhook secret not found. Run 'ticketsync config credentials --webhook-secret <secret>' or set TICKETSYNC_WEBHOOK_SECRET")
}

// writeDefaultConfig writes the defaults to path unless a file exists there.
func writeDefaultConfig(path string) error {
	v := viper.New()
	setDefaults(v)
	if err := v.SafeWriteConfigAs(path); err != nil {
		var exists viper.ConfigFileAlreadyExistsError
		if errors.As(err, &exists) {
			return nil
		}
		if _, statErr := os.Stat(path); statErr == nil {
			return nil
		}
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	return nil
}
