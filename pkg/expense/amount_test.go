package expense

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseAmount(t *testing.T) {
	n, ok := ParseAmount("15000")
	assert.True(t, ok)
	assert.Equal(t, int64(15000), n)
	n, ok = ParseAmount(" 2500.00 ")
	assert.True(t, ok)
	assert.Equal(t, int64(2500), n)
	for _, bad := range []string{"abc", "", "0", "-5", "12.5", "99999999999999999999"} {
		_, ok := ParseAmount(bad)
		assert.False(t, ok, bad)
	}
}
