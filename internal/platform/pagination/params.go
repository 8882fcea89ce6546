package pagination

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
)

const (
	// DefaultPageSize is used when the client omits pageSize.
	DefaultPageSize = 50
	// MaxPageSize caps pageSize.
	MaxPageSize = 200
)

var (
	// ErrInvalidPageSize indicates a non-numeric or non-positive pageSize.
	ErrInvalidPageSize = errors.New("pagination: invalid pageSize")
	// ErrInvalidPageToken indicates a page token that does not decode.
	ErrInvalidPageToken = errors.New("pagination: invalid pageToken")
)

// Cursor is the position after the last returned document. Listings order by name then id.
type Cursor struct {
	Name string `json:"n"`
	ID   string `json:"i"`
}

// IsZero reports whether the cursor points at the first page.
func (c Cursor) IsZero() bool {
	return c.Name == "" && c.ID == ""
}

// Params are the paging values extracted from a request.
type Params struct {
	PageSize int
	Cursor   Cursor
}

// Page is one page of results.
type Page[T any] struct {
	Items         []T
	NextPageToken string
}

// Parse reads pageSize and pageToken from the query string. Oversized page sizes are clamped.
func Parse(r *http.Request) (Params, error) {
	params := Params{PageSize: DefaultPageSize}
	query := r.URL.Query()

	if raw := strings.TrimSpace(query.Get("pageSize")); raw != "" {
		size, err := strconv.Atoi(raw)
		if err != nil || size <= 0 {
			return Params{}, fmt.Errorf("%w: %q", ErrInvalidPageSize, raw)
		}
		params.PageSize = min(size, MaxPageSize)
	}

	cursor, err := DecodeToken(query.Get("pageToken"))
	if err != nil {
		return Params{}, err
	}
	params.Cursor = cursor
	return params, nil
}

// EncodeToken serialises cursor into a URL safe token. The zero cursor encodes to "".
func EncodeToken(cursor Cursor) string {
	if cursor.IsZero() {
		return ""
	}
	data, _ := json.Marshal(cursor)
	return base64.RawURLEncoding.EncodeToString(data)
}

// DecodeToken parses a token produced by EncodeToken.
func DecodeToken(token string) (Cursor, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return Cursor{}, nil
	}
	decoded, err := base64.RawURLEncoding.DecodeString(token)
	if err != nil {
		return Cursor{}, fmt.Errorf("%w: %v", ErrInvalidPageToken, err)
	}
	var cursor Cursor
	if err := json.Unmarshal(decoded, &cursor); err != nil {
		return Cursor{}, fmt.Errorf("%w: %v", ErrInvalidPageToken, err)
	}
	if cursor.ID == "" {
		return Cursor{}, fmt.Errorf("%w: missing id", ErrInvalidPageToken)
	}
	return cursor, nil
}
