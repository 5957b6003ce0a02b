package xslices

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCopy(t *testing.T) {
	s := []int32{3, 1, 2}
	c := Copy(s)
	c[0] = 7
	assert.Equal(t, []int32{3, 1, 2}, s)
	assert.Nil(t, Copy[int]([]int{}))
}

func TestMax(t *testing.T) {
	assert.Equal(t, int32(9), Max([]int32{3, 9, 1}))
	require.Panics(t, func() { Max([]int{}) })
}
