package tools

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
)

// defaultPageSize bounds list outputs when the caller does not size them.
const defaultPageSize = 10

// cursor is the decoded form of a continuation token. The token is opaque
// to clients. Filters are never encoded in it; they travel alongside as
// the literal call arguments.
type cursor struct {
	Offset   int `json:"o"`
	PageSize int `json:"n"`
}

func encodeCursor(c cursor) string {
	raw, _ := json.Marshal(c)
	return base64.RawURLEncoding.EncodeToString(raw)
}

func decodeCursor(token string) (cursor, error) {
	raw, err := base64.RawURLEncoding.DecodeString(token)
	if err != nil {
		return cursor{}, fmt.Errorf("malformed continuation token")
	}
	var c cursor
	if err := json.Unmarshal(raw, &c); err != nil || c.Offset < 0 || c.PageSize <= 0 {
		return cursor{}, fmt.Errorf("malformed continuation token")
	}
	return c, nil
}
