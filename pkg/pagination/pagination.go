// Package pagination implements cursor-based listing: a result limit plus an
// opaque "resume after this record" cursor.
package pagination

import (
	"encoding/base64"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
)

// ErrBadCursor indicates a cursor that this server did not produce, or one
// produced for a different ordering.
var ErrBadCursor = errors.New("malformed pagination cursor")

// Cursor resumes a listing after a specific record. It encodes the sort key
// and the id of the last record seen; it is only valid for the ordering that
// produced it.
type Cursor struct {
	Key time.Time
	ID  uuid.UUID
}

// IsZero reports whether the cursor is unset.
func (c Cursor) IsZero() bool {
	return c.Key.IsZero() && c.ID == uuid.Nil
}

// Encode returns the opaque wire form of the cursor.
func (c Cursor) Encode() string {
	if c.IsZero() {
		return ""
	}
	raw := c.Key.UTC().Format(time.RFC3339Nano) + "|" + c.ID.String()
	return base64.RawURLEncoding.EncodeToString([]byte(raw))
}

// DecodeCursor parses the opaque wire form produced by Encode.
func DecodeCursor(s string) (Cursor, error) {
	if s == "" {
		return Cursor{}, nil
	}
	raw, err := base64.RawURLEncoding.DecodeString(s)
	if err != nil {
		return Cursor{}, ErrBadCursor
	}
	parts := strings.SplitN(string(raw), "|", 2)
	if len(parts) != 2 {
		return Cursor{}, ErrBadCursor
	}
	key, err := time.Parse(time.RFC3339Nano, parts[0])
	if err != nil {
		return Cursor{}, ErrBadCursor
	}
	id, err := uuid.Parse(parts[1])
	if err != nil {
		return Cursor{}, ErrBadCursor
	}
	return Cursor{Key: key, ID: id}, nil
}

// Params holds pagination parameters extracted from a request. A zero Limit
// means the collection's default cap applies.
type Params struct {
	Limit int
	After Cursor
}

// FromContext extracts pagination parameters from the echo context. The limit
// travels as ?limit= and the cursor as ?cursor=.
func FromContext(c echo.Context) (Params, error) {
	limit, _ := strconv.Atoi(c.QueryParam("limit"))
	if limit < 0 {
		limit = 0
	}

	after, err := DecodeCursor(c.QueryParam("cursor"))
	if err != nil {
		return Params{}, fmt.Errorf("cursor query parameter: %w", err)
	}
	return Params{Limit: limit, After: after}, nil
}

// Clamp applies the collection cap: unset or oversized limits collapse to the
// cap, anything else passes through.
func (p Params) Clamp(ceiling int) int {
	if p.Limit <= 0 || p.Limit > ceiling {
		return ceiling
	}
	return p.Limit
}

// Response wraps one page of a listing.
type Response struct {
	Data       interface{} `json:"data"`
	Limit      int         `json:"limit"`
	NextCursor string      `json:"next_cursor,omitempty"`
	HasMore    bool        `json:"has_more"`
}

// NewResponse builds a page. A zero next cursor marks the final page.
func NewResponse(data interface{}, limit int, next Cursor) *Response {
	return &Response{
		Data:       data,
		Limit:      limit,
		NextCursor: next.Encode(),
		HasMore:    !next.IsZero(),
	}
}
