package xid

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNewIsPrefixedAndUnique(t *testing.T) {
	a, b := New("ord"), New("ord")
	assert.True(t, strings.HasPrefix(a, "ord-"))
	assert.NotEqual(t, a, b)
}

func TestShortLength(t *testing.T) {
	assert.Len(t, Short(8), 8)
	assert.Len(t, Short(0), 32)
}
