package utils

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestResolvePath(t *testing.T) {
	base := filepath.Join(string(filepath.Separator), "project")
	abs := filepath.Join(string(filepath.Separator), "etc", "job.yaml")

	assert.Equal(t, "", ResolvePath("", base))
	assert.Equal(t, abs, ResolvePath(abs, base))
	assert.Equal(t, filepath.Join(base, "config", "tasks.yaml"), ResolvePath(filepath.Join("config", "tasks.yaml"), base))
}
