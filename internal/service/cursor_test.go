package service_test

import (
	"encoding/base64"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"searchjob-service/internal/service"
)

func TestCursor_RoundTrip(t *testing.T) {
	for _, id := range []int64{0, 1, 42, 1000, 1<<62 + 7} {
		got, ok := service.DecodeCursor(service.EncodeCursor(id))
		require.True(t, ok, "id=%d", id)
		assert.Equal(t, id, got)
	}
}

func TestCursor_DecodeGarbage(t *testing.T) {
	cases := []string{
		"",
		"not-base64!!!",
		base64.StdEncoding.EncodeToString([]byte("abc")),
		base64.StdEncoding.EncodeToString([]byte("12.5")),
		base64.StdEncoding.EncodeToString([]byte("-3")),
	}
	for _, c := range cases {
		id, ok := service.DecodeCursor(c)
		assert.False(t, ok, "cursor=%q", c)
		assert.Zero(t, id)
	}
}
