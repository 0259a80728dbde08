package cmd

import (
	"fmt"

	"github.com/urfave/cli/v2"

	"github.com/nus25/gyoka/db"
	"github.com/nus25/gyoka/feeds"
)

func trimCmd() *cli.Command {
	return &cli.Command{
		Name:  "trim",
		Usage: "Trim a feed down to its most recent posts",
		Description: `Trim a feed by removing all but the newest posts.

		Deletes every post of the given feed except the most recent ones.
		This is to keep the database size down and to keep the feed fresh.`,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "database",
				Aliases: []string{"d"},
				Value:   "gyoka.db",
				Usage:   "SQLite database file location",
				EnvVars: []string{"GYOKA_DATABASE"},
			},
			&cli.StringFlag{
				Name:     "feed",
				Aliases:  []string{"f"},
				Usage:    "AT URI of the feed to trim",
				Required: true,
			},
			&cli.IntFlag{
				Name:    "remain",
				Aliases: []string{"r"},
				Value:   1000,
				Usage:   "Number of newest posts to keep",
			},
		},
		Action: func(ctx *cli.Context) error {
			database, err := db.NewDB(ctx.String("database"))
			if err != nil {
				return fmt.Errorf("failed to open database: %w", err)
			}
			defer database.Close()

			store := feeds.NewStore(database, feeds.NewRegistry(database))
			deleted, err := store.Trim(ctx.Context, ctx.String("feed"), ctx.Int("remain"))
			if err != nil {
				return err
			}
			fmt.Printf("Deleted %d posts\n", deleted)
			return nil
		},
	}
}
