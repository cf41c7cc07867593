//go:build unit

package nilcheck

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

type widget struct{}

func TestInterface_NilValues(t *testing.T) {
	t.Parallel()

	var typedNil *widget

	var nilMap map[string]int

	var nilSlice []string

	var nilChan chan struct{}

	var nilFunc func()

	assert.True(t, Interface(nil))
	assert.True(t, Interface(typedNil))
	assert.True(t, Interface(nilMap))
	assert.True(t, Interface(nilSlice))
	assert.True(t, Interface(nilChan))
	assert.True(t, Interface(nilFunc))
}

func TestInterface_NonNilValues(t *testing.T) {
	t.Parallel()

	assert.False(t, Interface(&widget{}))
	assert.False(t, Interface(widget{}))
	assert.False(t, Interface("text"))
	assert.False(t, Interface(0))
	assert.False(t, Interface(map[string]int{}))
	assert.False(t, Interface([]string{}))
	assert.False(t, Interface(func() {}))
}
