package uuid

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
)

func TestNewString(t *testing.T) {
	a := NewString()
	b := NewString()
	assert.NotEqual(t, a, b)
	assert.True(t, IsValid(a))

	u, err := Parse(a)
	assert.NoError(t, err)
	assert.Equal(t, uuid.Version(7), u.Version())
}

func TestIsValid(t *testing.T) {
	assert.True(t, IsValid("a3810a62-1f62-11e1-9219-406186ea4fc5"))
	assert.False(t, IsValid("a3810a621f6211e19219406186ea4fc5"))
	assert.False(t, IsValid("not-a-uuid"))
	assert.False(t, IsValid(""))
}
