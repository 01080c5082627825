package document

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReservedFieldAccessors(t *testing.T) {
	t.Run("present", func(t *testing.T) {
		doc := Document{"_id": "x", "_rev": "1-abcdef01", "title": "t"}
		assert.Equal(t, "x", doc.ID())
		assert.Equal(t, "1-abcdef01", doc.Rev())
	})

	t.Run("absent", func(t *testing.T) {
		doc := Document{"title": "t"}
		assert.Empty(t, doc.ID())
		assert.Empty(t, doc.Rev())
	})

	t.Run("wrong type", func(t *testing.T) {
		doc := Document{"_id": 42, "_rev": true}
		assert.Empty(t, doc.ID())
		assert.Empty(t, doc.Rev())
	})
}

func TestMerge(t *testing.T) {
	t.Run("input wins on overlap, base fields preserved", func(t *testing.T) {
		base := Document{"_id": "x", "_rev": "1-a", "keep": "old", "both": "old"}
		input := Document{"_rev": "1-a", "both": "new", "added": float64(7)}

		merged := Merge(base, input)

		assert.Equal(t, "old", merged["keep"])
		assert.Equal(t, "new", merged["both"])
		assert.Equal(t, float64(7), merged["added"])
		assert.Equal(t, "x", merged["_id"])
	})

	t.Run("nil base clones input", func(t *testing.T) {
		input := Document{"a": "b"}
		merged := Merge(nil, input)
		assert.Equal(t, Document{"a": "b"}, merged)

		merged["a"] = "mutated"
		assert.Equal(t, "b", input["a"])
	})

	t.Run("arguments untouched", func(t *testing.T) {
		base := Document{"n": float64(1)}
		input := Document{"n": float64(2)}
		_ = Merge(base, input)
		assert.Equal(t, float64(1), base["n"])
	})
}

func TestCloneIsDeep(t *testing.T) {
	doc := Document{
		"nested": map[string]any{"inner": "v"},
		"list":   []any{"a", map[string]any{"k": "v"}},
	}

	clone := doc.Clone()
	require.Equal(t, doc, clone)

	clone["nested"].(map[string]any)["inner"] = "changed"
	clone["list"].([]any)[1].(map[string]any)["k"] = "changed"

	assert.Equal(t, "v", doc["nested"].(map[string]any)["inner"])
	assert.Equal(t, "v", doc["list"].([]any)[1].(map[string]any)["k"])
}

func TestCloneNil(t *testing.T) {
	var doc Document
	assert.Nil(t, doc.Clone())
}
