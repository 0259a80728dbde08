package bluesky

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/bluesky-social/indigo/api/atproto"
	"github.com/bluesky-social/indigo/api/bsky"
	lexutil "github.com/bluesky-social/indigo/lex/util"
	util "github.com/bluesky-social/indigo/util"
	"github.com/bluesky-social/indigo/xrpc"
	"github.com/cenkalti/backoff/v4"
	"github.com/labstack/gommon/log"
)

const DefaultPDSHost = "https://bsky.social"

type Credentials struct {
	Identifier string
	Password   string
}

type Client struct {
	xrpc *xrpc.Client
}

// ClientFromCredentials authenticates against the PDS with an app password
// and returns a client holding the session. Transient failures are retried
// with exponential backoff.
func ClientFromCredentials(ctx context.Context, host string, creds *Credentials) (*Client, error) {
	var auth *atproto.ServerCreateSession_Output
	err := backoff.Retry(func() error {
		var err error
		auth, err = atproto.ServerCreateSession(ctx, &xrpc.Client{Host: host}, &atproto.ServerCreateSession_Input{
			Identifier: creds.Identifier,
			Password:   creds.Password,
		})
		if err != nil {
			var xrpcErr *xrpc.Error
			if errors.As(err, &xrpcErr) && xrpcErr.StatusCode >= 400 && xrpcErr.StatusCode < 500 {
				// Bad credentials will not get better on retry
				return backoff.Permanent(err)
			}
			log.Warnf("session creation failed, retrying: %s", err)
		}
		return err
	}, backoff.WithContext(backoff.NewExponentialBackOff(), ctx))

	if err != nil {
		return nil, fmt.Errorf("failed to create session: %w", err)
	}

	xrpcClient := &xrpc.Client{
		Host: host,
		Auth: &xrpc.AuthInfo{
			AccessJwt:  auth.AccessJwt,
			RefreshJwt: auth.RefreshJwt,
			Handle:     auth.Handle,
			Did:        auth.Did,
		},
		Client: http.DefaultClient,
	}

	return &Client{xrpc: xrpcClient}, nil
}

// Did returns the DID of the authenticated account.
func (c *Client) Did() string {
	return c.xrpc.Auth.Did
}

// UploadBlob uploads a blob (binary data like an image) to the Bluesky network.
// It takes a context and an io.Reader containing the blob data.
// Returns the uploaded blob's metadata or an error if the upload fails.
func (c *Client) UploadBlob(ctx context.Context, r io.Reader) (*lexutil.LexBlob, error) {
	resp, err := atproto.RepoUploadBlob(ctx, c.xrpc, r)
	if err != nil {
		return nil, fmt.Errorf("failed to upload blob: %w", err)
	}
	return resp.Blob, nil
}

// PutFeedGenerator creates a feed generator record for the current user.
// If the feed generator already exists, it will be updated.
// The rkey is the unique identifier for the feed generator in your own user repository.
func (c *Client) PutFeedGenerator(ctx context.Context, rkey string, record *bsky.FeedGenerator, cid *string) error {
	_, err := atproto.RepoPutRecord(ctx, c.xrpc, &atproto.RepoPutRecord_Input{
		Collection: "app.bsky.feed.generator",
		Repo:       c.xrpc.Auth.Did,
		Rkey:       rkey,
		SwapRecord: cid,
		Record: &lexutil.LexiconTypeDecoder{
			Val: record,
		},
	})
	if err != nil {
		// Display the entire http response error so we can see what went wrong
		log.Errorf("failed to put record: %s", err)
		return fmt.Errorf("failed to put record: %w", err)
	}
	return nil
}

// DeleteFeedGenerator removes the feed generator record with the given rkey
// from the current user's repository.
func (c *Client) DeleteFeedGenerator(ctx context.Context, rkey string) error {
	err := atproto.RepoDeleteRecord(ctx, c.xrpc, &atproto.RepoDeleteRecord_Input{
		Collection: "app.bsky.feed.generator",
		Repo:       c.xrpc.Auth.Did,
		Rkey:       rkey,
	})
	if err != nil {
		return fmt.Errorf("failed to delete feed %s: %w", rkey, err)
	}
	return nil
}

// GetActorFeeds lists the feed generator records published by actor.
func (c *Client) GetActorFeeds(ctx context.Context, actor string) (*bsky.FeedGetActorFeeds_Output, error) {
	return bsky.FeedGetActorFeeds(ctx, c.xrpc, actor, "", 100)
}

// FormatTime formats a time.Time into the format expected by AT Protocol
func FormatTime(t time.Time) string {
	return t.Format("2006-01-02T15:04:05.000Z")
}

// RkeyFromFeedUri extracts the record key from a feed generator at-uri.
func RkeyFromFeedUri(feedUri string) (string, error) {
	uri, err := util.ParseAtUri(feedUri)
	if err != nil {
		return "", fmt.Errorf("failed to parse at uri: %w", err)
	}
	return uri.Rkey, nil
}
