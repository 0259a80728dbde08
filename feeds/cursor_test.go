package feeds_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nus25/gyoka/feeds"
	"github.com/nus25/gyoka/models"
)

func TestCursorRoundTrip(t *testing.T) {
	at := time.Date(2024, 5, 1, 12, 30, 45, 123_000_000, time.UTC)
	cid := "bafyreib2rxk3rw6lvwsxvws4pxwmv7lqsm5kfgbeoditps2azeidbzqyhe"

	token := feeds.EncodeCursor(at, cid)
	assert.Equal(t, "1714566645123::"+cid, token)

	cursor, err := feeds.ParseCursor(token)
	require.NoError(t, err)
	assert.True(t, cursor.IndexedAt.Equal(at))
	assert.Equal(t, cid, cursor.Cid)
}

func TestParseCursorMalformed(t *testing.T) {
	tests := []struct {
		name  string
		token string
	}{
		{name: "empty", token: ""},
		{name: "no separator", token: "1714566645123"},
		{name: "separator only", token: "::"},
		{name: "missing cid", token: "1714566645123::"},
		{name: "missing timestamp", token: "::bafycid"},
		{name: "non numeric timestamp", token: "not-a-number::bafycid"},
		{name: "too many parts", token: "1::2::3"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := feeds.ParseCursor(tt.token)
			assert.ErrorIs(t, err, models.ErrMalformedCursor)
		})
	}
}
