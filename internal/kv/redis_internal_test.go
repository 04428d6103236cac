package kv

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestUnseenSkipsRepeatedScanKeys(t *testing.T) {
	seen := map[string]struct{}{}
	assert.Equal(t, []string{"k1", "k2"}, unseen([]string{"k1", "k2"}, seen))
	// a later page repeating k1 after a rehash
	assert.Equal(t, []string{"k3"}, unseen([]string{"k1", "k3", "k3"}, seen))
	assert.Empty(t, unseen([]string{"k2"}, seen))
	assert.Len(t, seen, 3)
}

func TestEscapeGlob(t *testing.T) {
	assert.Equal(t, `user:a\*\?\[x\]\\:task:`, escapeGlob(`user:a*?[x]\:task:`))
	assert.Equal(t, "user:u1:task:", escapeGlob("user:u1:task:"))
}
