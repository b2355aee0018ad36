package version

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestGet(t *testing.T) {
	info := Get()
	assert.Equal(t, Version, info.Version)
	assert.NotEmpty(t, info.GoVersion)
	assert.Contains(t, info.Platform, "/")
}

func TestString(t *testing.T) {
	line := Get().String()
	assert.True(t, strings.HasPrefix(line, "kaiwabot v"))
	assert.Contains(t, line, Version)
}

func TestValidate(t *testing.T) {
	assert.NoError(t, Validate())
}
