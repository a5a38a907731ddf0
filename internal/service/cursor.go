package service

import (
	"encoding/base64"
	"strconv"
)

// Result cursors are the last row id, base64 over the decimal text so clients
// treat them as opaque tokens.

func EncodeCursor(id int64) string {
	return base64.StdEncoding.EncodeToString([]byte(strconv.FormatInt(id, 10)))
}

// DecodeCursor returns (0, false) for empty, non-base64 or non-numeric input:
// a bad cursor restarts pagination from the beginning instead of failing the
// request.
func DecodeCursor(cursor string) (int64, bool) {
	if cursor == "" {
		return 0, false
	}
	raw, err := base64.StdEncoding.DecodeString(cursor)
	if err != nil {
		return 0, false
	}
	id, err := strconv.ParseInt(string(raw), 10, 64)
	if err != nil || id < 0 {
		return 0, false
	}
	return id, true
}
