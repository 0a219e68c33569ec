// Package pagination implements the opaque cursors used by the warning
// history endpoint. A cursor is the (timestamp, id) key of the last item
// on a page, base64-encoded so clients treat it as a token.
package pagination

import (
	"encoding/base64"
	"errors"
	"strconv"
	"strings"
	"time"
)

var errInvalidCursor = errors.New("invalid cursor")

// Cursor is the decoded position of the last item a client has seen.
type Cursor struct {
	CreatedAt time.Time
	ID        string
}

// Encode packs a (timestamp, id) key into an opaque token.
func Encode(createdAt time.Time, id string) string {
	raw := strconv.FormatInt(createdAt.UnixNano(), 10) + "|" + id
	return base64.URLEncoding.EncodeToString([]byte(raw))
}

// Decode unpacks a token produced by Encode. An empty token means "start
// from the beginning" and decodes to nil.
func Decode(s string) (*Cursor, error) {
	if s == "" {
		return nil, nil
	}
	raw, err := base64.URLEncoding.DecodeString(s)
	if err != nil {
		return nil, errInvalidCursor
	}
	nanosPart, id, found := strings.Cut(string(raw), "|")
	if !found {
		return nil, errInvalidCursor
	}
	nanos, err := strconv.ParseInt(nanosPart, 10, 64)
	if err != nil {
		return nil, errInvalidCursor
	}
	return &Cursor{CreatedAt: time.Unix(0, nanos).UTC(), ID: id}, nil
}

// ComputePage trims a slice fetched with limit+1 items down to the page
// the client gets. extractKey pulls the (timestamp, id) key from the last
// item kept, which becomes the next cursor when more items remain.
func ComputePage[T any](items []T, limit int, extractKey func(T) (time.Time, string)) (page []T, next string, hasMore bool) {
	if len(items) <= limit {
		return items, "", false
	}
	page = items[:limit]
	createdAt, id := extractKey(page[len(page)-1])
	return page, Encode(createdAt, id), true
}
