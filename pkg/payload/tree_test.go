package payload

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const screenBody = `{"screenConfig":{"entity":{"videoId":"old"},"timePeriod":{"entity":{"videoId":"old"}}},"list":[{"videoId":"old","n":12345678901234567}],"videoIdCount":3}`

func TestSubstituteReplacesEveryOccurrence(t *testing.T) {
	tree, err := Decode([]byte(screenBody))
	require.NoError(t, err)

	out, n := Substitute(tree, "videoId", "new")
	assert.Equal(t, 3, n)
	assert.True(t, Contains(out, "videoId", "new"))
	assert.False(t, Contains(out, "videoId", "old"))

	// 原树不变
	assert.True(t, Contains(tree, "videoId", "old"))
	assert.False(t, Contains(tree, "videoId", "new"))
}

func TestSubstituteWithoutKeyReportsZero(t *testing.T) {
	tree, err := Decode([]byte(`{"a":{"b":[1,2,{"c":"d"}]}}`))
	require.NoError(t, err)

	out, n := Substitute(tree, "videoId", "x")
	assert.Equal(t, 0, n)

	before, _ := Encode(tree)
	after, _ := Encode(out)
	assert.JSONEq(t, string(before), string(after))
}

func TestSubstituteSkipsNonStringValues(t *testing.T) {
	tree, err := Decode([]byte(`{"videoId":{"nested":"keep"},"other":{"videoId":7}}`))
	require.NoError(t, err)
	_, n := Substitute(tree, "videoId", "x")
	assert.Equal(t, 0, n)
}

func TestEncodePreservesLargeNumbers(t *testing.T) {
	tree, err := Decode([]byte(screenBody))
	require.NoError(t, err)
	b, err := Encode(tree)
	require.NoError(t, err)
	assert.Contains(t, string(b), "12345678901234567")
}

func TestCopyIsDeep(t *testing.T) {
	tree, err := Decode([]byte(`{"a":[{"b":"c"}]}`))
	require.NoError(t, err)
	cp := Copy(tree).(map[string]any)
	cp["a"].([]any)[0].(map[string]any)["b"] = "z"
	assert.True(t, Contains(tree, "b", "c"))
}

func TestDecodeRejectsTrailingData(t *testing.T) {
	_, err := Decode([]byte(`{"a":1} {"b":2}`))
	assert.Error(t, err)
}
