package version

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestString(t *testing.T) {
	v, commit, built := Version, GitCommit, BuildTime
	t.Cleanup(func() { Version, GitCommit, BuildTime = v, commit, built })

	Version, GitCommit, BuildTime = "v1.2.3", "unknown", "unknown"
	assert.Equal(t, "v1.2.3", String())

	GitCommit, BuildTime = "abc123", "2026-10-16"
	assert.Equal(t, "v1.2.3 (commit abc123, built 2026-10-16)", String())
}
