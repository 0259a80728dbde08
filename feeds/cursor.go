package feeds

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/nus25/gyoka/models"
)

const cursorSeparator = "::"

// Cursor is the decoded keyset position of the last row a client has seen.
// Pagination resumes strictly after it under the
// (indexedAt DESC, cid DESC) ordering.
type Cursor struct {
	IndexedAt time.Time
	Cid       string
}

// EncodeCursor renders the opaque "<epoch-millis>::<cid>" token.
func EncodeCursor(indexedAt time.Time, cid string) string {
	return fmt.Sprintf("%d%s%s", indexedAt.UnixMilli(), cursorSeparator, cid)
}

// ParseCursor decodes a pagination token. The token must split into exactly
// two non-empty parts with a numeric first half; anything else is
// ErrMalformedCursor. A well-formed token referencing a row that no longer
// exists is not an error here, it simply matches nothing at query time.
func ParseCursor(token string) (*Cursor, error) {
	parts := strings.Split(token, cursorSeparator)
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return nil, fmt.Errorf("%w: %q", models.ErrMalformedCursor, token)
	}
	millis, err := strconv.ParseInt(parts[0], 10, 64)
	if err != nil {
		return nil, fmt.Errorf("%w: %q", models.ErrMalformedCursor, token)
	}
	return &Cursor{
		IndexedAt: time.UnixMilli(millis).UTC(),
		Cid:       parts[1],
	}, nil
}
