package cmd

import (
	"github.com/urfave/cli/v2"
)

func RootApp() *cli.App {
	return &cli.App{
		Name:  "gyoka",
		Usage: "A curated Bluesky feed generator",
		Description: `Gyoka serves Bluesky feed skeletons from a curated post store.

		Feeds are registered at runtime through the editor API and filled by
		external curators posting references into them. The stored posts are
		served back as feed skeletons via the AT Protocol XRPC endpoints,
		optionally filtered by the caller's language preferences.

		Flags can generally be set via environment variables, e.g.:

		--database => GYOKA_DATABASE=gyoka.db
		--port => GYOKA_PORT=3000
		`,
		Commands: []*cli.Command{
			serveCmd(),
			migrateCmd(),
			rollbackCmd(),
			trimCmd(),
			publishCmd(),
			unpublishCmd(),
		},
		Action: func(ctx *cli.Context) error {
			// Show help if no command is specified
			return ctx.App.Run([]string{"", "help"})
		},
	}
}
