package cmd

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/bluesky-social/indigo/api/bsky"
	lexutil "github.com/bluesky-social/indigo/lex/util"
	"github.com/bluesky-social/indigo/util"
	"github.com/cqroot/prompt"
	"github.com/cqroot/prompt/input"
	"github.com/samber/lo"
	"github.com/urfave/cli/v2"

	"github.com/nus25/gyoka/bluesky"
)

// publishCmd represents the publish command
func publishCmd() *cli.Command {
	return &cli.Command{
		Name:  "publish",
		Usage: "Publish a feed on Bluesky",
		Description: `Publishes a feed generator record on Bluesky.

A Bluesky user account is required to publish feeds on Bluesky.
Registers the feed with your preferred name, description, etc.`,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "hostname",
				Aliases: []string{"n"},
				Usage:   "The hostname where the server is running",
				EnvVars: []string{"GYOKA_HOSTNAME"},
			},
			&cli.StringFlag{
				Name:     "feed",
				Aliases:  []string{"f"},
				Usage:    "AT URI of the feed to publish",
				Required: true,
			},
			&cli.StringFlag{
				Name:     "display-name",
				Usage:    "Display name shown for the feed",
				Required: true,
			},
			&cli.StringFlag{
				Name:  "description",
				Usage: "Description shown for the feed",
			},
			&cli.StringFlag{
				Name:  "avatar",
				Usage: "Path to an avatar image file for the feed",
			},
		},
		Action: func(ctx *cli.Context) error {
			// This command was made possible thanks to the appreciated work by the Bluesky Furry Feed team

			// Hostname of the Feed Generator
			hostname := ctx.String("hostname")
			if hostname == "" {
				return errors.New("please specify a hostname")
			}

			rkey, err := bluesky.RkeyFromFeedUri(ctx.String("feed"))
			if err != nil {
				return err
			}

			handle, err := prompt.New().Ask("Handle:").Input("myname.bsky.social")
			if err != nil {
				return err
			}

			password, err := prompt.New().Ask("Password:").Input("", input.WithEchoMode(input.EchoNone))
			if err != nil {
				return err
			}

			client, err := bluesky.ClientFromCredentials(ctx.Context, bluesky.DefaultPDSHost, &bluesky.Credentials{
				Identifier: handle,
				Password:   password,
			})
			if err != nil {
				return fmt.Errorf("could not create client with provided credentials: %w", err)
			}

			actorFeeds, err := client.GetActorFeeds(ctx.Context, handle)
			if err != nil {
				return fmt.Errorf("could not get actor feeds: %w", err)
			}

			existingFeed, ok := lo.Find(actorFeeds.Feeds, func(f *bsky.FeedDefs_GeneratorView) bool {
				parsed, err := util.ParseAtUri(f.Uri)
				if err != nil {
					return false
				}
				return parsed.Rkey == rkey
			})

			var cid *string
			if ok && existingFeed != nil {
				cid = &existingFeed.Cid
			}

			// Get the feed avatar from file
			var blob *lexutil.LexBlob
			if avatarPath := ctx.String("avatar"); avatarPath != "" {
				f, err := os.Open(avatarPath)
				if err != nil {
					return fmt.Errorf("could not open avatar file: %w", err)
				}
				defer f.Close()

				blob, err = client.UploadBlob(ctx.Context, f)
				if err != nil {
					return fmt.Errorf("could not upload avatar blob: %w", err)
				}
			}

			description := ctx.String("description")
			err = client.PutFeedGenerator(ctx.Context, rkey, &bsky.FeedGenerator{
				Avatar:      blob,
				Did:         fmt.Sprintf("did:web:%s", hostname),
				CreatedAt:   bluesky.FormatTime(time.Now().UTC()),
				DisplayName: ctx.String("display-name"),
				Description: &description,
			}, cid)
			if err != nil {
				return fmt.Errorf("could not publish feed: %w", err)
			}

			fmt.Println("Published feed...", ctx.String("display-name"))
			return nil
		},
	}
}

func unpublishCmd() *cli.Command {
	return &cli.Command{
		Name:  "unpublish",
		Usage: "Unpublish a feed from Bluesky",
		Description: `Removes a feed generator record from Bluesky.

A Bluesky user account is required to unpublish feeds on Bluesky.`,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:     "feed",
				Aliases:  []string{"f"},
				Usage:    "AT URI of the feed to unpublish",
				Required: true,
			},
		},
		Action: func(ctx *cli.Context) error {
			rkey, err := bluesky.RkeyFromFeedUri(ctx.String("feed"))
			if err != nil {
				return err
			}

			handle, err := prompt.New().Ask("Handle:").Input("myname.bsky.social")
			if err != nil {
				return err
			}

			password, err := prompt.New().Ask("Password:").Input("", input.WithEchoMode(input.EchoNone))
			if err != nil {
				return err
			}

			client, err := bluesky.ClientFromCredentials(ctx.Context, bluesky.DefaultPDSHost, &bluesky.Credentials{
				Identifier: handle,
				Password:   password,
			})
			if err != nil {
				return err
			}

			fmt.Println("Unpublishing feed...")
			return client.DeleteFeedGenerator(ctx.Context, rkey)
		},
	}
}
