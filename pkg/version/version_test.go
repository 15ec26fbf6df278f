package version

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestVersion(t *testing.T) {
	assert.NotEmpty(t, Version)
	assert.True(t, strings.HasPrefix(Version, "v"), "Version %q should start with v", Version)
}
