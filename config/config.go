package config

import (
	"fmt"
	"os"

	"github.com/BurntSushi/toml"
)

// Config holds the service-level settings loaded from the TOML config file.
// Feeds themselves live in the database, not in configuration. Every field
// can be overridden by a CLI flag or GYOKA_* environment variable.
type Config struct {
	// Hostname the generator is served from, e.g. "feeds.example.com".
	// Used for the did:web document and default document links.
	Hostname string `toml:"hostname"`

	// PublisherDID identifies the feed publisher in describeFeedGenerator.
	PublisherDID string `toml:"publisher_did"`

	// Database is the SQLite database file location.
	Database string `toml:"database"`

	// Port the HTTP server listens on.
	Port int `toml:"port"`
}

// LoadConfig reads and parses the TOML config at path.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("error reading config file: %w", err)
	}

	var config Config
	if err := toml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("error parsing config file: %w", err)
	}

	return &config, nil
}
