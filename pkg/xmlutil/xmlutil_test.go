package xmlutil

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestEscape(t *testing.T) {
	assert.Equal(t, "a &amp; b", Escape("a & b"))
	assert.Equal(t, "&lt;review&gt;", Escape("<review>"))
	assert.Equal(t, "&quot;quoted&quot; &apos;text&apos;", Escape(`"quoted" 'text'`))
	assert.Equal(t, "plain", Escape("plain"))
	assert.Equal(t, "", Escape(""))
}
