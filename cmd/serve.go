package cmd

import (
	"fmt"
	"os"
	"os/signal"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/urfave/cli/v2"

	"github.com/nus25/gyoka/config"
	"github.com/nus25/gyoka/db"
	"github.com/nus25/gyoka/feeds"
	"github.com/nus25/gyoka/server"
)

func serveCmd() *cli.Command {
	return &cli.Command{
		Name:  "serve",
		Usage: "Serve the feed generator",
		Description: `Starts the feed generator HTTP server.

		Runs pending database migrations, then serves both the editor API and
		the AT Protocol feed skeleton endpoints until interrupted.`,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "database",
				Aliases: []string{"d"},
				Value:   "gyoka.db",
				Usage:   "SQLite database file location",
				EnvVars: []string{"GYOKA_DATABASE"},
			},
			&cli.IntFlag{
				Name:    "port",
				Aliases: []string{"p"},
				Value:   3000,
				Usage:   "Port to listen on",
				EnvVars: []string{"GYOKA_PORT"},
			},
			&cli.StringFlag{
				Name:    "hostname",
				Aliases: []string{"n"},
				Usage:   "The hostname where the server is running",
				EnvVars: []string{"GYOKA_HOSTNAME"},
			},
			&cli.StringFlag{
				Name:    "publisher-did",
				Usage:   "DID of the feed publisher account",
				EnvVars: []string{"GYOKA_PUBLISHER_DID"},
			},
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "Path to TOML configuration file",
				EnvVars: []string{"GYOKA_CONFIG"},
			},
		},
		Action: func(ctx *cli.Context) error {
			cfg, err := resolveConfig(ctx)
			if err != nil {
				return err
			}
			if cfg.Hostname == "" {
				return fmt.Errorf("a hostname is required, set --hostname or GYOKA_HOSTNAME")
			}

			if err := db.Migrate(cfg.Database); err != nil {
				return fmt.Errorf("failed to migrate database: %w", err)
			}

			database, err := db.NewDB(cfg.Database)
			if err != nil {
				return fmt.Errorf("failed to open database: %w", err)
			}
			defer database.Close()

			registry := feeds.NewRegistry(database)
			app := server.Server(&server.ServerConfig{
				Hostname:     cfg.Hostname,
				PublisherDID: cfg.PublisherDID,
				Registry:     registry,
				Store:        feeds.NewStore(database, registry),
				Query:        feeds.NewQuery(database, registry),
				DB:           database,
			})

			// Graceful shutdown
			c := make(chan os.Signal, 1)
			signal.Notify(c, os.Interrupt)
			var wg sync.WaitGroup
			wg.Add(1)

			go func() {
				<-c
				log.Info("Gracefully shutting down...")
				if err := app.ShutdownWithTimeout(60 * time.Second); err != nil {
					log.WithFields(log.Fields{"error": err}).Error("Shutdown failed")
				}
				wg.Done()
			}()

			log.WithFields(log.Fields{
				"hostname": cfg.Hostname,
				"port":     cfg.Port,
				"database": cfg.Database,
			}).Info("Starting server")
			if err := app.Listen(fmt.Sprintf(":%d", cfg.Port)); err != nil {
				return fmt.Errorf("server stopped: %w", err)
			}

			wg.Wait()
			return nil
		},
	}
}

// resolveConfig merges the optional TOML config file with CLI flags. A flag
// that was set explicitly, including via its environment variable, wins over
// the file value.
func resolveConfig(ctx *cli.Context) (*config.Config, error) {
	cfg := &config.Config{}
	if path := ctx.String("config"); path != "" {
		loaded, err := config.LoadConfig(path)
		if err != nil {
			return nil, fmt.Errorf("failed to load config: %w", err)
		}
		cfg = loaded
	}

	if ctx.IsSet("database") || cfg.Database == "" {
		cfg.Database = ctx.String("database")
	}
	if ctx.IsSet("port") || cfg.Port == 0 {
		cfg.Port = ctx.Int("port")
	}
	if ctx.IsSet("hostname") || cfg.Hostname == "" {
		cfg.Hostname = ctx.String("hostname")
	}
	if ctx.IsSet("publisher-did") || cfg.PublisherDID == "" {
		cfg.PublisherDID = ctx.String("publisher-did")
	}
	if cfg.PublisherDID == "" && cfg.Hostname != "" {
		cfg.PublisherDID = "did:web:" + cfg.Hostname
	}
	return cfg, nil
}
