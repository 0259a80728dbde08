package models

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// AllLanguages is the wildcard language code. A post tagged with it matches
// every language filter. It is only ever stored as the sole language of a
// post and is never exposed at the API boundary.
const AllLanguages = "*"

// Reason $type discriminants from app.bsky.feed.defs.
const (
	ReasonRepost = "app.bsky.feed.defs#skeletonReasonRepost"
	ReasonPin    = "app.bsky.feed.defs#skeletonReasonPin"
)

// TimeLayout is the canonical instant representation for indexed_at values.
// Fixed millisecond precision in UTC so that lexicographic order on stored
// strings equals temporal order.
const TimeLayout = "2006-01-02T15:04:05.000Z"

// FormatTime renders t in the canonical indexed_at representation.
func FormatTime(t time.Time) string {
	return t.UTC().Format(TimeLayout)
}

// ParseTime parses a canonical indexed_at string.
func ParseTime(s string) (time.Time, error) {
	return time.Parse(TimeLayout, s)
}

// CanonicalTime truncates t to the precision that survives a storage
// round trip.
func CanonicalTime(t time.Time) time.Time {
	return t.UTC().Truncate(time.Millisecond)
}

// Feed is a registered feed generator feed.
type Feed struct {
	Uri        string `json:"uri"`
	LangFilter bool   `json:"langFilter"`
	IsActive   bool   `json:"isActive"`
}

// FeedRecord is a Feed with its internal database id, as resolved by the
// registry. The id never leaves the process.
type FeedRecord struct {
	ID int64 `json:"-"`
	Feed
}

// Reason is the closed tagged union attached to a post: either a repost
// reference or a pin marker.
type Reason struct {
	Type   string `json:"$type"`
	Repost string `json:"repost,omitempty"`
}

// Validate checks the discriminant and its payload requirements.
func (r *Reason) Validate() error {
	switch r.Type {
	case ReasonRepost:
		if r.Repost == "" {
			return fmt.Errorf("%w: reason type %s needs repost field", ErrInvalidReason, ReasonRepost)
		}
		return nil
	case ReasonPin:
		return nil
	default:
		return fmt.Errorf("%w: unknown reason type %q", ErrInvalidReason, r.Type)
	}
}

// MarshalJSON drops the repost payload for pin reasons even if set.
func (r Reason) MarshalJSON() ([]byte, error) {
	type alias Reason
	if r.Type == ReasonPin {
		r.Repost = ""
	}
	return json.Marshal(alias(r))
}

// Post is a curated post reference in a feed.
type Post struct {
	Uri         string    `json:"uri"`
	Cid         string    `json:"cid"`
	Languages   []string  `json:"languages,omitempty"`
	IndexedAt   time.Time `json:"indexedAt"`
	FeedContext string    `json:"feedContext,omitempty"`
	Reason      *Reason   `json:"reason,omitempty"`
}

// Did returns the DID authority of the post URI. Stored alongside the post
// as a secondary lookup key.
func (p *Post) Did() string {
	parts := strings.Split(p.Uri, "/")
	if len(parts) < 3 {
		return ""
	}
	return parts[2]
}

// SkeletonPost is a single entry of a feed skeleton response.
type SkeletonPost struct {
	Post        string  `json:"post"`
	Reason      *Reason `json:"reason,omitempty"`
	FeedContext string  `json:"feedContext,omitempty"`
}

// FeedSkeleton is the response body of app.bsky.feed.getFeedSkeleton.
type FeedSkeleton struct {
	Cursor *string        `json:"cursor,omitempty"`
	Feed   []SkeletonPost `json:"feed"`
}

// PostPage is one page of the editor post listing.
type PostPage struct {
	Posts  []Post  `json:"posts"`
	Cursor *string `json:"cursor,omitempty"`
}

// Document types recognized by the service.
const (
	DocumentTos           = "tos"
	DocumentPrivacyPolicy = "privacy_policy"
)

// Document is a singleton-per-type service document (terms of service or
// privacy policy) with an optional URL and optional inline content.
type Document struct {
	Type    string  `json:"type"`
	Url     *string `json:"url"`
	Content *string `json:"content"`
}

// KnownDocumentType reports whether t is one of the recognized types.
func KnownDocumentType(t string) bool {
	return t == DocumentTos || t == DocumentPrivacyPolicy
}
