package cmd

import (
	"io"
	"log/slog"

	"github.com/spf13/viper"

	"ticketsync/internal/db"
	"ticketsync/internal/github"
	"ticketsync/internal/linear"
	"ticketsync/internal/logging"
	"ticketsync/internal/models"
	"ticketsync/internal/reconcile"
)

// clientFactory hands the engine a GitHub client and a Linear client per sync
// link.
type clientFactory struct {
	github *github.Factory
	linear *linear.Factory
}

func newClientFactory(v *viper.Viper) *clientFactory {
	httpClient := github.NewHTTPClient()
	return &clientFactory{
		github: &github.Factory{HTTPClient: httpClient, BaseURL: v.GetString(keyGitHubAPIURL)},
		linear: &linear.Factory{HTTPClient: httpClient, Endpoint: v.GetString(keyLinearAPIURL)},
	}
}

func (f *clientFactory) Counterpart(link *models.SyncLink, creds reconcile.Credentials) reconcile.Counterpart {
	return f.github.Counterpart(link, creds)
}

func (f *clientFactory) Source(link *models.SyncLink, creds reconcile.Credentials) reconcile.Source {
	return f.linear.Source(link, creds)
}

// newEngine wires the engine from the loaded configuration and the open
// database. The returned closer flushes the log file.
func newEngine(v *viper.Viper) (*reconcile.Engine, *slog.Logger, io.Closer, error) {
	logger, closer, err := logging.New(loggingConfig(v))
	if err != nil {
		return nil, nil, nil, err
	}
	opts, err := engineOptions(v)
	if err != nil {
		closer.Close()
		return nil, nil, nil, err
	}
	store := db.NewStore(db.GetDB())
	engine := reconcile.New(store, newClientFactory(v), logger, opts)
	return engine, logger, closer, nil
}
