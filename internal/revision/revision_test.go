package revision

import (
	"regexp"
	"testing"

	"github.com/stretchr/testify/assert"
)

var revPattern = regexp.MustCompile(`^[0-9]+-[0-9a-f]{8}$`)

func TestNext(t *testing.T) {
	t.Run("new document starts at generation 1", func(t *testing.T) {
		rev := Next("")
		assert.Regexp(t, revPattern, rev)
		assert.Equal(t, 1, Generation(rev))
	})

	t.Run("generation increments", func(t *testing.T) {
		rev := Next("3-deadbeef")
		assert.Regexp(t, revPattern, rev)
		assert.Equal(t, 4, Generation(rev))
	})

	t.Run("malformed prefix treated as generation 0", func(t *testing.T) {
		for _, prev := range []string{"x-deadbeef", "-deadbeef", "nonsense", "-1-ff"} {
			rev := Next(prev)
			assert.Equal(t, 1, Generation(rev), "prev=%q", prev)
		}
	})

	t.Run("nonces differ for equal generations", func(t *testing.T) {
		assert.NotEqual(t, Next("1-aaaaaaaa"), Next("1-aaaaaaaa"))
	})
}

func TestGenerationMonotonicAcrossWrites(t *testing.T) {
	rev := ""
	last := 0
	for i := 0; i < 20; i++ {
		rev = Next(rev)
		gen := Generation(rev)
		assert.Greater(t, gen, last)
		last = gen
	}
	assert.Equal(t, 20, last)
}

func TestGeneration(t *testing.T) {
	assert.Equal(t, 0, Generation(""))
	assert.Equal(t, 7, Generation("7-0123abcd"))
	assert.Equal(t, 12, Generation("12-whatever"))
	assert.Equal(t, 0, Generation("bogus"))
}
