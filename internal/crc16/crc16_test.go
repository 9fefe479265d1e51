package crc16

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSlotKnownValues(t *testing.T) {
	assert.Equal(t, 12182, Slot("foo"))
	assert.Equal(t, 0, Slot(""))
}

func TestSlotHashTag(t *testing.T) {
	assert.Equal(t, Slot("tag"), Slot("{tag}key"))
	assert.Equal(t, Slot("{user1000}.following"), Slot("{user1000}.followers"))
}

func TestSlotHashTagEdgeCases(t *testing.T) {
	// An empty tag ("{}") is not a valid hash tag; the whole key hashes.
	assert.Equal(t, Slot("a{}b"), Slot("a{}b"))
	assert.NotEqual(t, Slot("a"), Slot("a{}b"))

	// No closing brace: no tag, whole key hashes.
	assert.Equal(t, Slot("a{b"), Slot("a{b"))
}

func TestSlotIsInRange(t *testing.T) {
	keys := []string{"a", "b", "c", "some-long-key-name", "{tag}rest", "12345"}
	for _, k := range keys {
		s := Slot(k)
		require.GreaterOrEqual(t, s, 0)
		require.Less(t, s, 16384)
	}
}
