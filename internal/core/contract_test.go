package core

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testEntry struct {
	ID string `json:"id"`
}

func TestDecodeArrayPlainJSON(t *testing.T) {
	var entries []testEntry
	err := DecodeArray(`[{"id":"a"},{"id":"b"}]`, &entries)

	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, "a", entries[0].ID)
}

func TestDecodeArrayStripsCodeFences(t *testing.T) {
	var entries []testEntry
	err := DecodeArray("```json\n[{\"id\":\"a\"}]\n```", &entries)

	require.NoError(t, err)
	require.Len(t, entries, 1)
}

func TestDecodeArrayFencesAreCaseInsensitive(t *testing.T) {
	var entries []testEntry
	err := DecodeArray("```JSON\n[{\"id\":\"a\"}]\n```", &entries)

	require.NoError(t, err)
	require.Len(t, entries, 1)
}

func TestDecodeArrayBareFences(t *testing.T) {
	var entries []testEntry
	err := DecodeArray("```\n[{\"id\":\"a\"}]\n```", &entries)

	require.NoError(t, err)
	require.Len(t, entries, 1)
}

func TestDecodeArrayGarbageReturnsParseError(t *testing.T) {
	raw := "I could not produce JSON today"
	var entries []testEntry
	err := DecodeArray(raw, &entries)

	var parseErr *ParseError
	require.True(t, errors.As(err, &parseErr))
	assert.Equal(t, raw, parseErr.Raw)
}

func TestDecodeArrayFenceWithTrailingGarbage(t *testing.T) {
	var entries []testEntry
	err := DecodeArray("```json\n[{\"id\":\"a\"}]\nand some trailing explanation", &entries)

	var parseErr *ParseError
	require.True(t, errors.As(err, &parseErr))
}

func TestDecodeArrayObjectIsNotAnArray(t *testing.T) {
	var entries []testEntry
	err := DecodeArray(`{"id":"a"}`, &entries)

	var parseErr *ParseError
	require.True(t, errors.As(err, &parseErr))
}
