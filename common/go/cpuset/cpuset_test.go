package cpuset

import (
	"slices"
	"testing"

	"github.com/stretchr/testify/assert"
)

func Test_WithTrailing(t *testing.T) {
	assert.True(t, WithTrailing(0).IsEmpty())
	assert.False(t, WithTrailing(4).IsEmpty())
	assert.False(t, WithTrailing(Max).IsEmpty())
}

func Test_Iter(t *testing.T) {
	s := WithTrailing(3)

	got := slices.Collect(s.Iter())

	assert.Equal(t, []uint32{0, 1, 2}, got)
}
