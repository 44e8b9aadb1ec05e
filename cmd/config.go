package cmd

import (
	"fmt"
	"sort"
	"strings"

	"github.com/spf13/cobra"
	"github.com/zalando/go-keyring"

	"ticketsync/internal/models"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage ticketsync configuration",
}

var configCredentialsCmd = &cobra.Command{
	Use:   "credentials",
	Short: "Store deployment secrets in the system keyring",
	Long: `Store the webhook secret and the override credentials in the system keyring.

The webhook secret verifies the Linear-Signature header of incoming webhooks.
The Linear API key and GitHub token, when set, replace the credentials of
every sync link. Values from ticketsync.yaml or TICKETSYNC_* environment
variables take precedence over the keyring.`,
	RunE: runConfigCredentials,
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show the effective configuration",
	RunE:  runConfigShow,
}

var (
	configWebhookSecret string
	configLinearAPIKey  string
	configGitHubToken   string
	configCredsShow     bool
	configCredsClear    bool
)

// credentialEntry ties a keyring entry to the config key that overrides it.
type credentialEntry struct {
	name       string
	configKey  string
	keyringKey string
}

var credentialEntries = []credentialEntry{
	{"webhook_secret", keyWebhookSecret, models.KeyringWebhookSecretKey},
	{"linear_api_key", keyLinearAPIKey, models.KeyringLinearAPIKeyKey},
	{"github_token", keyGitHubToken, models.KeyringGitHubTokenKey},
}

func init() {
	rootCmd.AddCommand(configCmd)
	configCmd.AddCommand(configCredentialsCmd)
	configCmd.AddCommand(configShowCmd)

	configCredentialsCmd.Flags().StringVar(&configWebhookSecret, "webhook-secret", "", "Webhook signing secret")
	configCredentialsCmd.Flags().StringVar(&configLinearAPIKey, "linear-api-key", "", "Linear API key overriding every link's key")
	configCredentialsCmd.Flags().StringVar(&configGitHubToken, "github-token", "", "GitHub token overriding every link's token")
	configCredentialsCmd.Flags().BoolVar(&configCredsShow, "show", false, "Show which credentials are set")
	configCredentialsCmd.Flags().BoolVar(&configCredsClear, "clear", false, "Remove all credentials from the keyring")
}

func runConfigCredentials(cmd *cobra.Command, args []string) error {
	if configCredsShow {
		return showCredentials()
	}
	if configCredsClear {
		return clearCredentials()
	}

	values := map[string]string{
		models.KeyringWebhookSecretKey: configWebhookSecret,
		models.KeyringLinearAPIKeyKey:  configLinearAPIKey,
		models.KeyringGitHubTokenKey:   configGitHubToken,
	}
	stored := 0
	for _, entry := range credentialEntries {
		value := strings.TrimSpace(values[entry.keyringKey])
		if value == "" {
			continue
		}
		if err := keyring.Set(models.KeyringServiceName, entry.keyringKey, value); err != nil {
			return fmt.Errorf("failed to store %s in keyring: %w", entry.name, err)
		}
		stored++
	}
	if stored == 0 {
		return fmt.Errorf("nothing to store. Pass --webhook-secret, --linear-api-key or --github-token")
	}

	if IsJSONOutput() {
		OutputJSON(map[string]interface{}{"success": true, "stored": stored})
	} else {
		fmt.Printf("%d credential(s) stored in system keyring\n", stored)
	}
	return nil
}

// credentialSource reports where a credential comes from: config, keyring or
// nowhere.
func credentialSource(entry credentialEntry) string {
	if cfg.GetString(entry.configKey) != "" {
		return "config"
	}
	if _, err := keyring.Get(models.KeyringServiceName, entry.keyringKey); err == nil {
		return "keyring"
	}
	return ""
}

func showCredentials() error {
	sources := make(map[string]string, len(credentialEntries))
	for _, entry := range credentialEntries {
		sources[entry.name] = credentialSource(entry)
	}

	if IsJSONOutput() {
		OutputJSON(sources)
		return nil
	}

	fmt.Println("Credentials:")
	for _, entry := range credentialEntries {
		source := sources[entry.name]
		if source == "" {
			source = "not configured"
		}
		fmt.Printf("  %-15s (%s)\n", entry.name+":", source)
	}
	return nil
}

func clearCredentials() error {
	for _, entry := range credentialEntries {
		keyring.Delete(models.KeyringServiceName, entry.keyringKey)
	}

	if IsJSONOutput() {
		OutputJSON(map[string]interface{}{"success": true, "message": "credentials cleared"})
	} else {
		fmt.Println("Credentials cleared from system keyring")
	}
	return nil
}

// maskedSettings returns every setting with credentials replaced by a marker.
func maskedSettings() map[string]interface{} {
	out := make(map[string]interface{})
	for _, key := range cfg.AllKeys() {
		out[key] = cfg.Get(key)
	}
	for _, entry := range credentialEntries {
		if cfg.GetString(entry.configKey) != "" {
			out[entry.configKey] = "********"
		}
	}
	return out
}

func runConfigShow(cmd *cobra.Command, args []string) error {
	settings := maskedSettings()
	if IsJSONOutput() {
		OutputJSON(settings)
		return nil
	}

	if used := cfg.ConfigFileUsed(); used != "" {
		fmt.Printf("Config file: %s\n\n", used)
	} else {
		fmt.Println("Config file: (none, defaults and environment only)")
		fmt.Println()
	}
	keys := make([]string, 0, len(settings))
	for key := range settings {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	for _, key := range keys {
		fmt.Printf("  %-30s %v\n", key, settings[key])
	}
	return nil
}
